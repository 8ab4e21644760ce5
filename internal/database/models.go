package database

// Entity kinds.
const (
	KindArtist = "ARTIST"
	KindGroup  = "GROUP"
)

// Resolution types recorded in the audit log.
const (
	ResolutionFill      = "FILL"
	ResolutionReconcile = "RECONCILE"
	ResolutionEnroll    = "ENROLL"
)

// Conflict flag statuses. OPEN is the only non-terminal state.
const (
	ConflictOpen      = "OPEN"
	ConflictResolved  = "RESOLVED"
	ConflictDismissed = "DISMISSED"
)

// Entity is a canonical artist or group record.
type Entity struct {
	ID               int64
	Kind             string
	Name             string
	Verified         bool
	ReliabilityScore float64
	CreatedAt        *string
}

// ResolutionLogEntry is one append-only audit record of an automatic decision.
type ResolutionLogEntry struct {
	ID                int64
	ArticleID         *int64
	ArticleTitle      *string
	EntityKind        string
	EntityID          int64
	FieldName         string
	OldValue          *string
	NewValue          string
	ResolutionType    string
	Reasoning         *string
	Confidence        float64
	SourceReliability float64
	CreatedAt         *string
}

// ConflictFlag is a disputed field change awaiting (or past) human review.
// EntityID is nil for flags raised on entities that don't exist yet.
type ConflictFlag struct {
	ID               int64
	ArticleID        *int64
	ArticleTitle     *string
	EntityKind       string
	EntityID         *int64
	EntityName       string
	FieldName        string
	ExistingValue    *string
	ConflictingValue string
	Reason           *string
	ConflictScore    float64
	Status           string
	ResolvedBy       *string
	ResolvedAt       *string
	CreatedAt        *string
}

// Article is a harvested article. The scraper owns these rows; this core only
// reads them for review context and references them from audit records.
type Article struct {
	ID            int64
	URL           string
	Title         string
	Source        *string
	Reliability   float64
	PublishedDate *string
	CollectedAt   *string
}

// Summary aggregates automation activity over a trailing time window.
type Summary struct {
	WindowHours       int     `json:"window_hours"`
	TotalDecisions    int     `json:"total_decisions"`
	FillCount         int     `json:"fill_count"`
	ReconcileCount    int     `json:"reconcile_count"`
	EnrollCount       int     `json:"enroll_count"`
	ConflictsResolved int     `json:"conflicts_resolved"`
	OpenConflicts     int     `json:"open_conflicts"`
	AvgReliability    float64 `json:"avg_reliability"`
}

// Stats contains aggregate database statistics.
type Stats struct {
	Entities          int
	Artists           int
	Groups            int
	Articles          int
	Decisions         int
	OpenConflicts     int
	ResolvedConflicts int
}
