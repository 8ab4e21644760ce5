package engine

// Decision is the outcome of resolving one candidate fact. Each variant
// carries exactly the payload that outcome produces, so an inconsistent
// decision (a fill with a conflict score, a flag without one) cannot be
// constructed.
type Decision interface {
	decision()
	// Outcome returns the short name used in logs and batch counters.
	Outcome() string
}

// Filled reports an empty field populated with the candidate value.
type Filled struct {
	EntityID  int64
	FieldName string
	Value     string
	LogID     int64
}

// Reconciled reports a non-empty field overwritten with the candidate value.
type Reconciled struct {
	EntityID  int64
	FieldName string
	OldValue  string
	NewValue  string
	LogID     int64
}

// Enrolled reports a brand-new entity created with a single field populated.
type Enrolled struct {
	EntityID  int64
	Kind      string
	Name      string
	FieldName string
	Value     string
	LogID     int64
}

// Flagged reports a conflict handed off to human review.
type Flagged struct {
	FlagID        int64
	ConflictScore float64
	Reason        string
}

// Unchanged reports that the field already held an equivalent value.
// Re-submitting the same fact is free of observable effect: no mutation,
// no audit record, no flag.
type Unchanged struct {
	EntityID  int64
	FieldName string
}

func (Filled) decision()     {}
func (Reconciled) decision() {}
func (Enrolled) decision()   {}
func (Flagged) decision()    {}
func (Unchanged) decision()  {}

func (Filled) Outcome() string     { return "filled" }
func (Reconciled) Outcome() string { return "reconciled" }
func (Enrolled) Outcome() string   { return "enrolled" }
func (Flagged) Outcome() string    { return "flagged" }
func (Unchanged) Outcome() string  { return "unchanged" }
