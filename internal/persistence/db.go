// Package persistence provides SQLite-based run state storage: run metadata,
// the agent population with its ledgers, and per-step market history.
package persistence

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/stuphys1729/SenHons/internal/agents"
	"github.com/stuphys1729/SenHons/internal/engine"
	"github.com/stuphys1729/SenHons/internal/space"
	"github.com/stuphys1729/SenHons/internal/telemetry"
)

// ErrNoState is returned when the database holds no saved run.
var ErrNoState = errors.New("no saved run state")

// DB wraps a SQLite connection for run state persistence.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS agents (
		id INTEGER PRIMARY KEY,
		role INTEGER NOT NULL,
		pos_x REAL NOT NULL,
		pos_y REAL NOT NULL,
		trials INTEGER NOT NULL,
		min_purchase INTEGER NOT NULL,
		cash REAL NOT NULL DEFAULT 0,
		supply INTEGER NOT NULL DEFAULT 0,
		price REAL NOT NULL DEFAULT 0,
		quality REAL NOT NULL DEFAULT 0,
		strategy REAL NOT NULL DEFAULT 0,
		shortfalls INTEGER NOT NULL DEFAULT 0,
		expansion_threshold INTEGER NOT NULL DEFAULT 0,
		bust_threshold INTEGER NOT NULL DEFAULT 0,
		running_cost REAL NOT NULL DEFAULT 0,
		seq INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS experience (
		agent_id INTEGER NOT NULL,
		vendor_id INTEGER NOT NULL,
		successes INTEGER NOT NULL,
		trials INTEGER NOT NULL,
		PRIMARY KEY (agent_id, vendor_id)
	);

	CREATE TABLE IF NOT EXISTS step_stats (
		run_id TEXT NOT NULL,
		step INTEGER NOT NULL,
		sales INTEGER NOT NULL,
		mean_quality REAL NOT NULL,
		stock_outs INTEGER NOT NULL,
		exhausted INTEGER NOT NULL,
		dormant INTEGER NOT NULL,
		sellers INTEGER NOT NULL,
		suppliers INTEGER NOT NULL,
		spawned INTEGER NOT NULL,
		retired INTEGER NOT NULL,
		PRIMARY KEY (run_id, step)
	);

	CREATE TABLE IF NOT EXISTS run_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_agents_role ON agents(role);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// agentRow mirrors one row of the agents table.
type agentRow struct {
	ID                 uint64  `db:"id"`
	Role               uint8   `db:"role"`
	X                  float64 `db:"pos_x"`
	Y                  float64 `db:"pos_y"`
	Trials             int     `db:"trials"`
	MinPurchase        int     `db:"min_purchase"`
	Cash               float64 `db:"cash"`
	Supply             int     `db:"supply"`
	Price              float64 `db:"price"`
	Quality            float64 `db:"quality"`
	Strategy           float64 `db:"strategy"`
	Shortfalls         int     `db:"shortfalls"`
	ExpansionThreshold int     `db:"expansion_threshold"`
	BustThreshold      int     `db:"bust_threshold"`
	RunningCost        float64 `db:"running_cost"`
	Seq                int     `db:"seq"`
}

type experienceRow struct {
	AgentID   uint64 `db:"agent_id"`
	VendorID  uint64 `db:"vendor_id"`
	Successes int    `db:"successes"`
	Trials    int    `db:"trials"`
}

func rowFor(a *agents.Actor, st *agents.Stock, seq int) agentRow {
	r := agentRow{
		ID:          uint64(a.ID),
		Role:        uint8(a.Role),
		X:           a.Position.X,
		Y:           a.Position.Y,
		Trials:      a.Trials,
		MinPurchase: a.MinPurchase,
		Seq:         seq,
	}
	if st != nil {
		r.Cash = st.Cash
		r.Supply = st.Supply
		r.Price = st.Price
		r.Quality = st.Quality
		r.Strategy = st.Strategy
		r.Shortfalls = st.Shortfalls
		r.ExpansionThreshold = st.ExpansionThreshold
		r.BustThreshold = st.BustThreshold
	}
	return r
}

// SaveAgents writes the whole population and its ledgers (full replace).
func (db *DB) SaveAgents(sim *engine.Simulation) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM agents"); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM experience"); err != nil {
		return err
	}

	insertAgent, err := tx.PrepareNamed(`INSERT INTO agents
		(id, role, pos_x, pos_y, trials, min_purchase, cash, supply, price, quality,
		 strategy, shortfalls, expansion_threshold, bust_threshold, running_cost, seq)
		VALUES (:id, :role, :pos_x, :pos_y, :trials, :min_purchase, :cash, :supply, :price, :quality,
		 :strategy, :shortfalls, :expansion_threshold, :bust_threshold, :running_cost, :seq)`)
	if err != nil {
		return err
	}
	defer insertAgent.Close()

	insertExp, err := tx.Preparex(`INSERT INTO experience
		(agent_id, vendor_id, successes, trials) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer insertExp.Close()

	save := func(a *agents.Actor, row agentRow) error {
		if _, err := insertAgent.Exec(row); err != nil {
			return fmt.Errorf("insert agent %d: %w", a.ID, err)
		}
		for vendor, r := range a.Experience {
			if _, err := insertExp.Exec(a.ID, vendor, r.Successes, r.Trials); err != nil {
				return fmt.Errorf("insert experience %d/%d: %w", a.ID, vendor, err)
			}
		}
		return nil
	}

	for i, p := range sim.Patients {
		if err := save(&p.Actor, rowFor(&p.Actor, nil, i)); err != nil {
			return err
		}
	}
	for i, s := range sim.Sellers {
		if err := save(&s.Actor, rowFor(&s.Actor, &s.Stock, i)); err != nil {
			return err
		}
	}
	for i, s := range sim.Suppliers {
		row := rowFor(&s.Actor, &s.Stock, i)
		row.RunningCost = s.RunningCost
		if err := save(&s.Actor, row); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// LoadAgents reads the saved population in its saved order.
func (db *DB) LoadAgents() (engine.Population, error) {
	var pop engine.Population

	var rows []agentRow
	if err := db.conn.Select(&rows, "SELECT * FROM agents ORDER BY role, seq"); err != nil {
		return pop, fmt.Errorf("select agents: %w", err)
	}
	var exps []experienceRow
	if err := db.conn.Select(&exps, "SELECT agent_id, vendor_id, successes, trials FROM experience"); err != nil {
		return pop, fmt.Errorf("select experience: %w", err)
	}
	ledgers := make(map[agents.AgentID]agents.Experience)
	for _, e := range exps {
		id := agents.AgentID(e.AgentID)
		if ledgers[id] == nil {
			ledgers[id] = make(agents.Experience)
		}
		ledgers[id][agents.AgentID(e.VendorID)] = agents.Record{Successes: e.Successes, Trials: e.Trials}
	}

	for _, r := range rows {
		actor := agents.Actor{
			ID:          agents.AgentID(r.ID),
			Role:        agents.Role(r.Role),
			Position:    space.Position{X: r.X, Y: r.Y},
			Experience:  ledgers[agents.AgentID(r.ID)],
			Distances:   make(map[agents.AgentID]float64),
			Trials:      r.Trials,
			MinPurchase: r.MinPurchase,
		}
		if actor.Experience == nil {
			actor.Experience = make(agents.Experience)
		}
		stock := agents.Stock{
			Cash:               r.Cash,
			Supply:             r.Supply,
			Price:              r.Price,
			Quality:            r.Quality,
			Strategy:           r.Strategy,
			Shortfalls:         r.Shortfalls,
			ExpansionThreshold: r.ExpansionThreshold,
			BustThreshold:      r.BustThreshold,
		}
		switch actor.Role {
		case agents.RolePatient:
			pop.Patients = append(pop.Patients, &agents.Patient{Actor: actor})
		case agents.RoleSeller:
			pop.Sellers = append(pop.Sellers, &agents.Seller{Actor: actor, Stock: stock})
		case agents.RoleSupplier:
			pop.Suppliers = append(pop.Suppliers, &agents.Supplier{Actor: actor, Stock: stock, RunningCost: r.RunningCost})
		default:
			return pop, fmt.Errorf("agent %d: unknown role %d", r.ID, r.Role)
		}
	}
	return pop, nil
}

// SaveStep appends one step's statistics.
func (db *DB) SaveStep(runID string, s telemetry.StepStats) error {
	_, err := db.conn.Exec(`INSERT OR REPLACE INTO step_stats
		(run_id, step, sales, mean_quality, stock_outs, exhausted, dormant, sellers, suppliers, spawned, retired)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, s.Step, s.Sales, s.MeanQuality, s.StockOuts, s.Exhausted, s.Dormant,
		s.Sellers, s.Suppliers, s.Spawned, s.Retired,
	)
	return err
}

type stepRow struct {
	Step        int     `db:"step"`
	Sales       int     `db:"sales"`
	MeanQuality float64 `db:"mean_quality"`
	StockOuts   int     `db:"stock_outs"`
	Exhausted   int     `db:"exhausted"`
	Dormant     int     `db:"dormant"`
	Sellers     int     `db:"sellers"`
	Suppliers   int     `db:"suppliers"`
	Spawned     int     `db:"spawned"`
	Retired     int     `db:"retired"`
}

// StepHistory returns the most recent limit steps of a run, oldest first.
func (db *DB) StepHistory(runID string, limit int) ([]telemetry.StepStats, error) {
	var rows []stepRow
	err := db.conn.Select(&rows, `SELECT step, sales, mean_quality, stock_outs, exhausted, dormant,
		sellers, suppliers, spawned, retired
		FROM (SELECT * FROM step_stats WHERE run_id = ? ORDER BY step DESC LIMIT ?)
		ORDER BY step`, runID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]telemetry.StepStats, 0, len(rows))
	for _, r := range rows {
		out = append(out, telemetry.StepStats{
			Step: r.Step, Sales: r.Sales, MeanQuality: r.MeanQuality,
			StockOuts: r.StockOuts, Exhausted: r.Exhausted, Dormant: r.Dormant,
			Sellers: r.Sellers, Suppliers: r.Suppliers, Spawned: r.Spawned, Retired: r.Retired,
		})
	}
	return out, nil
}

// SaveMeta stores a key-value pair in run metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO run_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM run_meta WHERE key = ?", key)
	return value, err
}

// HasRunState reports whether a run has been saved.
func (db *DB) HasRunState() bool {
	_, err := db.GetMeta("run_id")
	return err == nil
}

// RunState is the metadata needed to resume a run.
type RunState struct {
	RunID  string
	Seed   int64
	Step   int
	NextID agents.AgentID
	Pop    engine.Population
}

// SaveRunState performs a full save of the simulation.
func (db *DB) SaveRunState(sim *engine.Simulation) error {
	slog.Info("saving run state",
		"step", sim.StepCount,
		"patients", len(sim.Patients),
		"sellers", len(sim.Sellers),
		"suppliers", len(sim.Suppliers),
	)

	if err := db.SaveAgents(sim); err != nil {
		return fmt.Errorf("save agents: %w", err)
	}
	meta := map[string]string{
		"run_id":  sim.RunID,
		"seed":    strconv.FormatInt(sim.Seed(), 10),
		"step":    strconv.Itoa(sim.StepCount),
		"next_id": strconv.FormatUint(uint64(sim.Spawner.NextID()), 10),
	}
	for k, v := range meta {
		if err := db.SaveMeta(k, v); err != nil {
			return fmt.Errorf("save meta %s: %w", k, err)
		}
	}

	slog.Info("run state saved")
	return nil
}

// LoadRunState reads a saved run.
func (db *DB) LoadRunState() (RunState, error) {
	var st RunState
	runID, err := db.GetMeta("run_id")
	if errors.Is(err, sql.ErrNoRows) {
		return st, ErrNoState
	}
	if err != nil {
		return st, fmt.Errorf("load meta: %w", err)
	}
	st.RunID = runID

	ints := map[string]*int64{}
	var seed, step, next int64
	ints["seed"], ints["step"], ints["next_id"] = &seed, &step, &next
	for k, dst := range ints {
		v, err := db.GetMeta(k)
		if err != nil {
			return st, fmt.Errorf("load meta %s: %w", k, err)
		}
		if *dst, err = strconv.ParseInt(v, 10, 64); err != nil {
			return st, fmt.Errorf("parse meta %s: %w", k, err)
		}
	}
	st.Seed, st.Step, st.NextID = seed, int(step), agents.AgentID(next)

	if st.Pop, err = db.LoadAgents(); err != nil {
		return st, err
	}
	return st, nil
}
