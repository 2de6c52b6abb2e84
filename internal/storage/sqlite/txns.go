package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/cardworks/recon/internal/storage"
	"github.com/cardworks/recon/internal/types"
)

const txnColumns = `txn_id, source_side, source_system, business_date, rrn, arn, pan_masked,
	pan_hash, amount, currency, txn_time, op_type, merchant_id, channel_id, status_norm,
	fee_amount, fee_currency`

func scanTxn(row rowScanner) (*types.Txn, error) {
	var t types.Txn
	var arn, feeCurrency sql.NullString
	var amount, feeAmount float64
	err := row.Scan(&t.ID, &t.Side, &t.SourceSystem, &t.BusinessDate, &t.RRN, &arn, &t.PANMasked,
		&t.PANHash, &amount, &t.Currency, &t.TxnTime, &t.OpType, &t.MerchantID, &t.ChannelID,
		&t.StatusNorm, &feeAmount, &feeCurrency)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan txn: %w", err)
	}
	t.ARN = strOrEmpty(arn)
	t.FeeCurrency = strOrEmpty(feeCurrency)
	t.Amount = decimal.NewFromFloat(amount)
	t.FeeAmount = decimal.NewFromFloat(feeAmount)
	return &t, nil
}

func getTxn(ctx context.Context, q querier, id string) (*types.Txn, error) {
	return scanTxn(q.QueryRowContext(ctx, `SELECT `+txnColumns+` FROM txns WHERE txn_id = ?`, id))
}

func listTxns(ctx context.Context, q querier, side types.Side, businessDate string) ([]types.Txn, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+txnColumns+` FROM txns WHERE source_side = ? AND business_date = ? ORDER BY txn_id`,
		side, businessDate)
	if err != nil {
		return nil, fmt.Errorf("failed to query txns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []types.Txn
	for rows.Next() {
		t, err := scanTxn(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating txns: %w", err)
	}
	return out, nil
}

func insertTxn(ctx context.Context, q querier, t *types.Txn) error {
	amount, _ := t.Amount.Float64()
	feeAmount, _ := t.FeeAmount.Float64()
	_, err := q.ExecContext(ctx, `
		INSERT INTO txns (txn_id, source_side, source_system, business_date, rrn, arn, pan_masked,
			pan_hash, amount, currency, txn_time, op_type, merchant_id, channel_id, status_norm,
			fee_amount, fee_currency)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.Side, t.SourceSystem, t.BusinessDate, t.RRN, nullStr(t.ARN), t.PANMasked,
		t.PANHash, amount, t.Currency, t.TxnTime, t.OpType, t.MerchantID, t.ChannelID,
		t.StatusNorm, feeAmount, nullStr(t.FeeCurrency))
	if err != nil {
		return fmt.Errorf("failed to insert txn: %w", err)
	}
	return nil
}

// GetTxn returns one transaction by id.
func (s *Store) GetTxn(ctx context.Context, id string) (*types.Txn, error) {
	return getTxn(ctx, s.db, id)
}

// ListTxns returns the cohort for one side and business date.
func (s *Store) ListTxns(ctx context.Context, side types.Side, businessDate string) ([]types.Txn, error) {
	return listTxns(ctx, s.db, side, businessDate)
}

// CountTxns counts the cohort for one side and business date.
func (s *Store) CountTxns(ctx context.Context, side types.Side, businessDate string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM txns WHERE source_side = ? AND business_date = ?`,
		side, businessDate).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count txns: %w", err)
	}
	return n, nil
}
