package types

// ResultQuery carries the filter, sort and pagination parameters of a
// unified result view query. Zero values mean "no filter".
type ResultQuery struct {
	Status    string
	Search    string
	Currency  string
	AmountMin *float64
	AmountMax *float64
	Page      int
	PageSize  int
	SortBy    string // txn_time | delta | match_score
	SortDir   string // asc | desc
}

// UnifiedRow is one row of the result view: either a match (row_id "M:...")
// or an exception case (row_id "E:...") under a common schema.
type UnifiedRow struct {
	RowID       string   `json:"row_id"`
	Status      string   `json:"status"`
	RRN         string   `json:"rrn"`
	ARN         string   `json:"arn,omitempty"`
	TxnTime     string   `json:"txn_time"`
	AmountLeft  *float64 `json:"amount_left"`
	AmountRight *float64 `json:"amount_right"`
	Delta       *float64 `json:"delta"`
	Currency    string   `json:"currency"`
	MatchScore  *float64 `json:"match_score"`
	ReasonCode  string   `json:"reason_code"`
	PANMasked   string   `json:"pan_masked"`
	LeftTxnID   string   `json:"-"`
	RightTxnID  string   `json:"-"`
}

// ResultSummary aggregates a whole run's unified rows.
type ResultSummary struct {
	Matched        int     `json:"matched"`
	UnmatchedLeft  int     `json:"unmatched_left"`
	UnmatchedRight int     `json:"unmatched_right"`
	Partial        int     `json:"partial"`
	Duplicates     int     `json:"duplicates"`
	AmountDelta    float64 `json:"amount_delta"`
}

// ExceptionFilter narrows an exception case listing.
type ExceptionFilter struct {
	BusinessDate string
	Category     string
	Status       string
	RunID        string
}

// AuditFilter narrows an audit event listing.
type AuditFilter struct {
	Actor      string
	ObjectType string
	Action     string
	Result     string
}

// FieldDiff is one differing business field between the two sides of a
// match, with a triage severity.
type FieldDiff struct {
	Field    string `json:"field"`
	Left     any    `json:"left"`
	Right    any    `json:"right"`
	Severity string `json:"severity"`
}
