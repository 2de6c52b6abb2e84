package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cardworks/recon/internal/storage"
	"github.com/cardworks/recon/internal/types"
)

// Unit is one transactional unit of work bound to a dedicated connection.
// The current transaction is replaced by Checkpoint and Restart, so writes
// always go through u.tx, never the pool.
type Unit struct {
	conn *sql.Conn
	tx   *sql.Tx
}

// Checkpoint commits everything staged so far and opens a fresh transaction
// on the same connection. Used to make a row durable mid-unit, e.g. the
// RUNNING marker of a match run before the long matching stage.
func (u *Unit) Checkpoint(ctx context.Context) error {
	if err := u.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit at checkpoint: %w", err)
	}
	tx, err := u.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction after checkpoint: %w", err)
	}
	u.tx = tx
	return nil
}

// Restart discards the current transaction and opens a fresh one, for
// compensating writes after a failure inside the unit.
func (u *Unit) Restart(ctx context.Context) error {
	_ = u.tx.Rollback()
	tx, err := u.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction after restart: %w", err)
	}
	u.tx = tx
	return nil
}

func (u *Unit) InsertIngestFile(ctx context.Context, f *types.IngestFile) error {
	return insertIngestFile(ctx, u.tx, f)
}

func (u *Unit) FindIngestFileByKey(ctx context.Context, side types.Side, businessDate, checksum string) (*types.IngestFile, error) {
	return findIngestFileByKey(ctx, u.tx, side, businessDate, checksum)
}

func (u *Unit) InsertTxn(ctx context.Context, t *types.Txn) error {
	return insertTxn(ctx, u.tx, t)
}

func (u *Unit) ListTxns(ctx context.Context, side types.Side, businessDate string) ([]types.Txn, error) {
	return listTxns(ctx, u.tx, side, businessDate)
}

func (u *Unit) InsertMatchRun(ctx context.Context, r *types.MatchRun) error {
	return insertMatchRun(ctx, u.tx, r)
}

func (u *Unit) FinishRun(ctx context.Context, runID string, status types.RunStatus) error {
	return finishRun(ctx, u.tx, runID, status)
}

func (u *Unit) InsertMatchResult(ctx context.Context, m *types.MatchResult) error {
	return insertMatchResult(ctx, u.tx, m)
}

func (u *Unit) InsertExceptionCase(ctx context.Context, c *types.ExceptionCase) error {
	return insertExceptionCase(ctx, u.tx, c)
}

func (u *Unit) GetExceptionCase(ctx context.Context, caseID string) (*types.ExceptionCase, error) {
	return getExceptionCase(ctx, u.tx, caseID)
}

func (u *Unit) AssignCase(ctx context.Context, caseID, owner string) error {
	return assignCase(ctx, u.tx, caseID, owner)
}

func (u *Unit) SetCaseStatus(ctx context.Context, caseID string, status types.CaseStatus) error {
	return setCaseStatus(ctx, u.tx, caseID, status)
}

func (u *Unit) CloseCase(ctx context.Context, caseID, resolutionCode string) error {
	return closeCase(ctx, u.tx, caseID, resolutionCode)
}

func (u *Unit) InsertExceptionAction(ctx context.Context, a *types.ExceptionAction) error {
	return insertExceptionAction(ctx, u.tx, a)
}

func (u *Unit) GetUser(ctx context.Context, login string) (*types.User, error) {
	return getUser(ctx, u.tx, login)
}

func (u *Unit) ActiveRuleset(ctx context.Context) (*types.Ruleset, error) {
	return activeRuleset(ctx, u.tx)
}

func (u *Unit) DeactivateRulesets(ctx context.Context) error {
	return deactivateRulesets(ctx, u.tx)
}

func (u *Unit) InsertRuleset(ctx context.Context, rs *types.Ruleset) error {
	return insertRuleset(ctx, u.tx, rs)
}

func (u *Unit) InsertAuditEvent(ctx context.Context, e *types.AuditEvent) error {
	return insertAuditEvent(ctx, u.tx, e)
}

var _ storage.Unit = (*Unit)(nil)
