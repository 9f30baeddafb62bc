// Package telemetry carries snapshots out of the simulation and control
// requests into it. The simulation only ever produces immutable values here;
// consumers (websocket stream, recorder, inspector) never touch agent state.
package telemetry

import "github.com/stuphys1729/SenHons/internal/space"

// Kind tags a telemetry message.
type Kind string

const (
	KindLayout Kind = "layout"
	KindFrame  Kind = "frame"
	KindStop   Kind = "stop"
)

// Message is the envelope every consumer receives.
type Message struct {
	Kind   Kind    `json:"kind"`
	Layout *Layout `json:"layout,omitempty"`
	Frame  *Frame  `json:"frame,omitempty"`
}

// Location is a town center as shown to consumers.
type Location struct {
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
}

// Layout is the one-time payload sent before the first frame.
type Layout struct {
	RunID     string           `json:"run_id"`
	Seed      int64            `json:"seed"`
	Extent    space.Extent     `json:"extent"`
	Locations []Location       `json:"locations"`
	Patients  []space.Position `json:"patients"`
}

// Frame is a periodic snapshot of vendor positions and qualities. The Y
// columns are omitted for one-dimensional runs.
type Frame struct {
	Step            int       `json:"step"`
	SellerX         []float64 `json:"seller_x"`
	SellerY         []float64 `json:"seller_y,omitempty"`
	SellerQuality   []float64 `json:"seller_quality"`
	SupplierX       []float64 `json:"supplier_x"`
	SupplierY       []float64 `json:"supplier_y,omitempty"`
	SupplierQuality []float64 `json:"supplier_quality"`
	Stats           StepStats `json:"stats"`
}

// StepStats summarizes one simulation step.
type StepStats struct {
	Step        int     `json:"step"`
	Sales       int     `json:"sales"`
	MeanQuality float64 `json:"mean_quality"`
	StockOuts   int     `json:"stock_outs"`
	Exhausted   int     `json:"exhausted"`
	Dormant     int     `json:"dormant"`
	Sellers     int     `json:"sellers"`
	Suppliers   int     `json:"suppliers"`
	Spawned     int     `json:"spawned"`
	Retired     int     `json:"retired"`
	TopVendor   uint64  `json:"top_vendor"`
	TopChoices  int     `json:"top_choices"`
	TopQuality  float64 `json:"top_quality"`
	TopSeller   uint64  `json:"top_seller"`
}

// Stop is the sentinel message telling consumers the run is over.
func Stop() Message {
	return Message{Kind: KindStop}
}

// StockView is the economic state of a vendor as reported to the inspector.
type StockView struct {
	Cash               float64 `json:"cash"`
	Supply             int     `json:"supply"`
	Price              float64 `json:"price"`
	Quality            float64 `json:"quality"`
	Strategy           float64 `json:"strategy"`
	Shortfalls         int     `json:"shortfalls"`
	ExpansionThreshold int     `json:"expansion_threshold"`
}

// ExperienceView is one entry of a buyer's ledger.
type ExperienceView struct {
	Vendor    uint64  `json:"vendor"`
	Successes int     `json:"successes"`
	Trials    int     `json:"trials"`
	Distance  float64 `json:"distance"`
	Active    bool    `json:"active"`
}

// AgentView is the serialized state of one agent.
type AgentView struct {
	ID          uint64           `json:"id"`
	Role        string           `json:"role"`
	Position    space.Position   `json:"position"`
	Trials      int              `json:"trials"`
	MinPurchase int              `json:"min_purchase"`
	Stock       *StockView       `json:"stock,omitempty"`
	Experience  []ExperienceView `json:"experience"`
}

// Status is a summary of the running simulation.
type Status struct {
	RunID       string  `json:"run_id"`
	Seed        int64   `json:"seed"`
	Step        int     `json:"step"`
	Paused      bool    `json:"paused"`
	Patients    int     `json:"patients"`
	Sellers     int     `json:"sellers"`
	Suppliers   int     `json:"suppliers"`
	TotalSales  int     `json:"total_sales"`
	MeanQuality float64 `json:"mean_quality"`
	Dropped     uint64  `json:"dropped_frames"`
	NextID      uint64  `json:"next_id"`
}
