package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cardworks/recon/internal/storage"
	"github.com/cardworks/recon/internal/types"
)

const ingestFileColumns = `file_id, source_side, source_system, business_date, file_name,
	checksum_sha256, parser_profile, received_at, status, record_count, created_by`

func scanIngestFile(row rowScanner) (*types.IngestFile, error) {
	var f types.IngestFile
	var profile sql.NullString
	var receivedAt string
	err := row.Scan(&f.ID, &f.Side, &f.SourceSystem, &f.BusinessDate, &f.FileName,
		&f.Checksum, &profile, &receivedAt, &f.Status, &f.RecordCount, &f.CreatedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan ingest file: %w", err)
	}
	f.ParserProfile = strOrEmpty(profile)
	f.ReceivedAt = parseTime(receivedAt)
	return &f, nil
}

func getIngestFile(ctx context.Context, q querier, id string) (*types.IngestFile, error) {
	return scanIngestFile(q.QueryRowContext(ctx,
		`SELECT `+ingestFileColumns+` FROM ingest_files WHERE file_id = ?`, id))
}

func findIngestFileByKey(ctx context.Context, q querier, side types.Side, businessDate, checksum string) (*types.IngestFile, error) {
	return scanIngestFile(q.QueryRowContext(ctx,
		`SELECT `+ingestFileColumns+` FROM ingest_files
		 WHERE source_side = ? AND business_date = ? AND checksum_sha256 = ?`,
		side, businessDate, checksum))
}

func insertIngestFile(ctx context.Context, q querier, f *types.IngestFile) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO ingest_files (file_id, source_side, source_system, business_date, file_name,
			checksum_sha256, parser_profile, received_at, status, record_count, created_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, f.ID, f.Side, f.SourceSystem, f.BusinessDate, f.FileName,
		f.Checksum, f.ParserProfile, fmtTime(f.ReceivedAt), f.Status, f.RecordCount, f.CreatedBy)
	if err != nil {
		return fmt.Errorf("failed to insert ingest file: %w", err)
	}
	return nil
}

func countIngestFiles(ctx context.Context, q querier, side types.Side, businessDate string) (int, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ingest_files WHERE source_side = ? AND business_date = ?`,
		side, businessDate).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count ingest files: %w", err)
	}
	return n, nil
}

// GetIngestFile returns the ingest file with the given id.
func (s *Store) GetIngestFile(ctx context.Context, id string) (*types.IngestFile, error) {
	return getIngestFile(ctx, s.db, id)
}

// CountIngestFiles counts ingest files for one side and business date.
func (s *Store) CountIngestFiles(ctx context.Context, side types.Side, businessDate string) (int, error) {
	return countIngestFiles(ctx, s.db, side, businessDate)
}
