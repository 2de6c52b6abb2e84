// Package types defines the core data structures for the reconciliation
// engine: normalized transactions, ingest files, match runs and their
// outputs, exception cases, and the append-only audit trail.
package types

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Side labels the two reconciled sources. LEFT is the issuer-side ledger,
// RIGHT the network clearing file.
type Side string

const (
	SideLeft  Side = "LEFT"
	SideRight Side = "RIGHT"
)

// IsValid reports whether s is one of the two known sides.
func (s Side) IsValid() bool {
	return s == SideLeft || s == SideRight
}

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideLeft {
		return SideRight
	}
	return SideLeft
}

// OpType is the normalized operation type of a transaction.
type OpType string

const (
	OpPurchase   OpType = "PURCHASE"
	OpClearing   OpType = "CLEARING"
	OpSettlement OpType = "SETTLEMENT"
	OpRefund     OpType = "REFUND"
	OpReversal   OpType = "REVERSAL"
	OpChargeback OpType = "CHARGEBACK"
	OpAdjustment OpType = "ADJUSTMENT"
)

// IsValid reports whether the op type is one of the known values.
func (o OpType) IsValid() bool {
	switch o {
	case OpPurchase, OpClearing, OpSettlement, OpRefund, OpReversal, OpChargeback, OpAdjustment:
		return true
	}
	return false
}

// IngestFile records one accepted (or deduplicated) normalized file.
// Rows are immutable once written; the (Side, BusinessDate, Checksum)
// triple is unique and is the sole dedup mechanism for concurrent ingest.
type IngestFile struct {
	ID            string    `json:"file_id"`
	Side          Side      `json:"source_side"`
	SourceSystem  string    `json:"source_system"`
	BusinessDate  string    `json:"business_date"`
	FileName      string    `json:"file_name"`
	Checksum      string    `json:"checksum_sha256"`
	ParserProfile string    `json:"parser_profile,omitempty"`
	ReceivedAt    time.Time `json:"received_at"`
	Status        string    `json:"status"`
	RecordCount   int       `json:"record_count"`
	CreatedBy     string    `json:"created_by"`
}

// Txn is a normalized transaction from either side. Created by ingest,
// never mutated afterwards.
type Txn struct {
	ID           string          `json:"txn_id"`
	Side         Side            `json:"source_side"`
	SourceSystem string          `json:"source_system"`
	BusinessDate string          `json:"business_date"`
	RRN          string          `json:"rrn"`
	ARN          string          `json:"arn,omitempty"`
	PANMasked    string          `json:"pan_masked"`
	PANHash      string          `json:"pan_hash,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	TxnTime      string          `json:"txn_time"`
	OpType       OpType          `json:"op_type"`
	MerchantID   string          `json:"merchant_id"`
	ChannelID    string          `json:"channel_id"`
	StatusNorm   string          `json:"status_norm"`
	FeeAmount    decimal.Decimal `json:"fee_amount"`
	FeeCurrency  string          `json:"fee_currency,omitempty"`
}

// Ruleset is a versioned set of matching parameters. At most one row is
// active at any time.
type Ruleset struct {
	Version         string          `json:"version"`
	IsActive        bool            `json:"is_active"`
	AmountTolerance decimal.Decimal `json:"amount_tolerance"`
	DateWindowDays  int             `json:"date_window_days"`
	ScoreThreshold  float64         `json:"score_threshold"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Validate checks the ruleset parameter bounds.
func (r *Ruleset) Validate() error {
	if r.AmountTolerance.IsNegative() {
		return fmt.Errorf("amount_tolerance must be >= 0")
	}
	if r.DateWindowDays < 1 {
		return fmt.Errorf("date_window_days must be >= 1")
	}
	if r.ScoreThreshold < 0 || r.ScoreThreshold > 1 {
		return fmt.Errorf("score_threshold must be within [0,1]")
	}
	return nil
}

// RunStatus is the lifecycle state of a match run.
type RunStatus string

const (
	RunRunning  RunStatus = "RUNNING"
	RunFinished RunStatus = "FINISHED"
	RunFailed   RunStatus = "FAILED"
)

// MatchRun is one execution of the matcher over a business-date cohort
// pair with a pinned ruleset version.
type MatchRun struct {
	ID             string     `json:"run_id"`
	BusinessDate   string     `json:"business_date"`
	ScopeFilter    string     `json:"scope_filter,omitempty"`
	RulesetVersion string     `json:"ruleset_version"`
	StartedAt      time.Time  `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
	Status         RunStatus  `json:"status"`
	CreatedBy      string     `json:"created_by"`
}

// MatchType classifies a persisted match row.
type MatchType string

const (
	MatchFull      MatchType = "MATCHED"
	MatchPartial   MatchType = "PARTIAL_MATCH"
	MatchDuplicate MatchType = "DUPLICATE_SUSPECT"
)

// MatchResult links a LEFT transaction to (optionally) a RIGHT one.
type MatchResult struct {
	ID         string         `json:"match_id"`
	RunID      string         `json:"run_id"`
	LeftTxnID  string         `json:"left_txn_id"`
	RightTxnID string         `json:"right_txn_id,omitempty"`
	MatchType  MatchType      `json:"match_type"`
	Score      float64        `json:"score"`
	ReasonCode string         `json:"reason_code"`
	Explain    map[string]any `json:"explain"`
}

// ExceptionCategory classifies why an item needs human attention.
type ExceptionCategory string

const (
	CatMissingInLeft  ExceptionCategory = "MISSING_IN_LEFT"
	CatMissingInRight ExceptionCategory = "MISSING_IN_RIGHT"
	CatDuplicate      ExceptionCategory = "DUPLICATE"
	CatAmountMismatch ExceptionCategory = "AMOUNT_MISMATCH"
	CatDateMismatch   ExceptionCategory = "DATE_MISMATCH"
	CatStatusMismatch ExceptionCategory = "STATUS_MISMATCH"
	CatOpTypeMismatch ExceptionCategory = "OPTYPE_MISMATCH"
)

// CaseStatus is the workflow state of an exception case.
type CaseStatus string

const (
	CaseNew        CaseStatus = "NEW"
	CaseTriaged    CaseStatus = "TRIAGED"
	CaseInProgress CaseStatus = "IN_PROGRESS"
	CaseClosed     CaseStatus = "CLOSED"
)

// IsValid reports whether the case status is one of the workflow states.
func (c CaseStatus) IsValid() bool {
	switch c {
	case CaseNew, CaseTriaged, CaseInProgress, CaseClosed:
		return true
	}
	return false
}

// ExceptionCase is a persisted unmatched or ambiguous item.
type ExceptionCase struct {
	ID             string            `json:"case_id"`
	RunID          string            `json:"run_id"`
	BusinessDate   string            `json:"business_date"`
	Category       ExceptionCategory `json:"category"`
	Severity       string            `json:"severity"`
	Status         CaseStatus        `json:"status"`
	PrimaryTxnID   string            `json:"primary_txn_id"`
	OwnerUserID    string            `json:"owner_user_id,omitempty"`
	AgingDays      int               `json:"aging_days"`
	ResolutionCode string            `json:"resolution_code,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	ClosedAt       *time.Time        `json:"closed_at,omitempty"`
}

// ActionType names a workflow action on an exception case.
type ActionType string

const (
	ActionAssign       ActionType = "assign"
	ActionComment      ActionType = "comment"
	ActionStatusChange ActionType = "status_change"
	ActionClose        ActionType = "close"
)

// IsValid reports whether the action type is supported.
func (a ActionType) IsValid() bool {
	switch a {
	case ActionAssign, ActionComment, ActionStatusChange, ActionClose:
		return true
	}
	return false
}

// ExceptionAction is one append-only workflow action record.
type ExceptionAction struct {
	ID         string         `json:"action_id"`
	CaseID     string         `json:"case_id"`
	Actor      string         `json:"actor_user_id"`
	ActionAt   time.Time      `json:"action_at"`
	ActionType ActionType     `json:"action_type"`
	Payload    map[string]any `json:"action_payload"`
}

// AuditResult is the outcome tag of an audit event.
type AuditResult string

const (
	AuditSuccess   AuditResult = "SUCCESS"
	AuditFailure   AuditResult = "FAILURE"
	AuditDuplicate AuditResult = "DUPLICATE"
)

// AuditEvent is one append-only audit record. Every write path emits one
// in the same transactional unit as its data changes.
type AuditEvent struct {
	ID         string      `json:"audit_id"`
	At         time.Time   `json:"event_at"`
	Actor      string      `json:"actor_login"`
	SourceIP   string      `json:"source_ip,omitempty"`
	ObjectType string      `json:"object_type"`
	ObjectID   string      `json:"object_id,omitempty"`
	Action     string      `json:"action"`
	Result     AuditResult `json:"result"`
	Details    string      `json:"details,omitempty"`
}

// User is a static workflow user.
type User struct {
	Login    string   `json:"login"`
	FullName string   `json:"full_name"`
	Status   string   `json:"status"`
	Roles    []string `json:"roles,omitempty"`
}
