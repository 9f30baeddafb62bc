package agents

// Record counts how often a vendor has been tried and how often it delivered.
// Trials >= Successes >= 0 always holds.
type Record struct {
	Successes int `json:"successes"`
	Trials    int `json:"trials"`
}

// Ratio returns the observed success ratio, or 0 for an untried vendor.
func (r Record) Ratio() float64 {
	if r.Trials == 0 {
		return 0
	}
	return float64(r.Successes) / float64(r.Trials)
}

// Halved returns the record with both counts halved, rounded down. Flooring
// both counts keeps successes at or below trials.
func (r Record) Halved() Record {
	return Record{Successes: r.Successes / 2, Trials: r.Trials / 2}
}

// Experience is a buyer's ledger of vendors it has considered. Entries are
// never removed, even when the vendor retires.
type Experience map[AgentID]Record

// TryGet returns the record for a vendor without registering it.
func (e Experience) TryGet(id AgentID) (Record, bool) {
	r, ok := e[id]
	return r, ok
}

// GetOrInsert returns the record for a vendor, registering an empty one on
// first encounter. The bool reports whether the vendor was new.
func (e Experience) GetOrInsert(id AgentID) (Record, bool) {
	if r, ok := e[id]; ok {
		return r, false
	}
	e[id] = Record{}
	return Record{}, true
}

// Observe records one tested transaction with a vendor.
func (e Experience) Observe(id AgentID, success bool) {
	r := e[id]
	r.Trials++
	if success {
		r.Successes++
	}
	e[id] = r
}

// Seed installs a record for a vendor the buyer has not yet met. It does
// nothing when the vendor is already known.
func (e Experience) Seed(id AgentID, r Record) bool {
	if _, ok := e[id]; ok {
		return false
	}
	e[id] = r
	return true
}

// Halved returns a deep copy with every record halved.
func (e Experience) Halved() Experience {
	out := make(Experience, len(e))
	for id, r := range e {
		out[id] = r.Halved()
	}
	return out
}

// Clone returns a deep copy.
func (e Experience) Clone() Experience {
	out := make(Experience, len(e))
	for id, r := range e {
		out[id] = r
	}
	return out
}
