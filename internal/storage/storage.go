// Package storage defines the store contract for the reconciliation core.
//
// The concrete implementation lives in the sqlite sub-package. Consumers
// depend on these interfaces so alternative backends and mocks can be
// substituted.
package storage

import (
	"context"
	"errors"

	"github.com/cardworks/recon/internal/types"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateFile is returned when an ingest file with the same
// (side, business date, checksum) already exists.
var ErrDuplicateFile = errors.New("duplicate ingest file")

// Store is the read surface plus the unit-of-work entrypoint.
type Store interface {
	// Unit of work. fn runs inside a transaction on a dedicated
	// connection; a nil return commits, an error rolls back whatever the
	// last Checkpoint has not already made durable.
	WithUnit(ctx context.Context, fn func(u Unit) error) error

	// Ingest
	GetIngestFile(ctx context.Context, id string) (*types.IngestFile, error)

	// Transactions
	GetTxn(ctx context.Context, id string) (*types.Txn, error)
	ListTxns(ctx context.Context, side types.Side, businessDate string) ([]types.Txn, error)
	CountTxns(ctx context.Context, side types.Side, businessDate string) (int, error)
	CountIngestFiles(ctx context.Context, side types.Side, businessDate string) (int, error)

	// Users and roles
	GetUser(ctx context.Context, login string) (*types.User, error)
	RolesForUser(ctx context.Context, login string) ([]string, error)
	ListUsers(ctx context.Context) ([]types.User, error)

	// Rulesets
	ActiveRuleset(ctx context.Context) (*types.Ruleset, error)
	ListRulesets(ctx context.Context) ([]types.Ruleset, error)

	// Runs
	GetRun(ctx context.Context, id string) (*types.MatchRun, error)
	LatestRun(ctx context.Context, businessDate string) (*types.MatchRun, error)
	ListRuns(ctx context.Context, businessDate string, limit int) ([]types.MatchRun, error)
	MatchTypeCounts(ctx context.Context, runID string) (map[string]int, error)
	ExceptionCategoryCounts(ctx context.Context, runID string) (map[string]int, error)
	RunOutputCounts(ctx context.Context, runID string) (matches, exceptions int, err error)

	// Result view
	UnifiedSummary(ctx context.Context, runID string) (*types.ResultSummary, error)
	UnifiedPage(ctx context.Context, runID string, q types.ResultQuery) (items []types.UnifiedRow, total int, err error)
	GetMatchResult(ctx context.Context, matchID string) (*types.MatchResult, error)

	// Exceptions
	GetExceptionCase(ctx context.Context, caseID string) (*types.ExceptionCase, error)
	ListExceptionCases(ctx context.Context, f types.ExceptionFilter, limit int) ([]types.ExceptionCase, error)
	ListExceptionActions(ctx context.Context, caseID string) ([]types.ExceptionAction, error)
	OpenExceptionStats(ctx context.Context, runID string) (count int, meanAgingDays float64, err error)

	// Analytics
	MatchedUniqueLeft(ctx context.Context, runID string) (int, error)
	PartialMatchCount(ctx context.Context, runID string) (int, error)
	AmountVariance(ctx context.Context, runID string) (float64, error)

	// Audit
	ListAuditEvents(ctx context.Context, f types.AuditFilter, limit int) ([]types.AuditEvent, error)

	// Lifecycle
	Close() error
}

// Unit is the write surface of one transactional unit of work.
//
// Checkpoint force-commits everything staged so far and opens a fresh
// transaction on the same connection; it is the mechanism behind the run
// orchestrator's mid-run RUNNING publication. Restart discards the current
// transaction and opens a fresh one, for compensating writes after a
// failure.
type Unit interface {
	Checkpoint(ctx context.Context) error
	Restart(ctx context.Context) error

	InsertIngestFile(ctx context.Context, f *types.IngestFile) error
	FindIngestFileByKey(ctx context.Context, side types.Side, businessDate, checksum string) (*types.IngestFile, error)
	InsertTxn(ctx context.Context, t *types.Txn) error
	ListTxns(ctx context.Context, side types.Side, businessDate string) ([]types.Txn, error)

	InsertMatchRun(ctx context.Context, r *types.MatchRun) error
	FinishRun(ctx context.Context, runID string, status types.RunStatus) error
	InsertMatchResult(ctx context.Context, m *types.MatchResult) error
	InsertExceptionCase(ctx context.Context, c *types.ExceptionCase) error

	GetExceptionCase(ctx context.Context, caseID string) (*types.ExceptionCase, error)
	AssignCase(ctx context.Context, caseID, owner string) error
	SetCaseStatus(ctx context.Context, caseID string, status types.CaseStatus) error
	CloseCase(ctx context.Context, caseID, resolutionCode string) error
	InsertExceptionAction(ctx context.Context, a *types.ExceptionAction) error
	GetUser(ctx context.Context, login string) (*types.User, error)

	ActiveRuleset(ctx context.Context) (*types.Ruleset, error)
	DeactivateRulesets(ctx context.Context) error
	InsertRuleset(ctx context.Context, rs *types.Ruleset) error

	InsertAuditEvent(ctx context.Context, e *types.AuditEvent) error
}
