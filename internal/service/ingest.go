package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cardworks/recon/internal/auth"
	"github.com/cardworks/recon/internal/normalize"
	"github.com/cardworks/recon/internal/storage"
	"github.com/cardworks/recon/internal/types"
)

// TxnRecord is one normalized transaction in an ingest request.
type TxnRecord struct {
	RRN         string   `json:"rrn"`
	ARN         string   `json:"arn"`
	PANMasked   string   `json:"pan_masked"`
	Amount      *float64 `json:"amount"`
	Currency    string   `json:"currency"`
	TxnTime     string   `json:"txn_time"`
	OpType      string   `json:"op_type"`
	MerchantID  string   `json:"merchant_id"`
	ChannelID   string   `json:"channel_id"`
	StatusNorm  string   `json:"status_norm"`
	FeeAmount   float64  `json:"fee_amount"`
	FeeCurrency string   `json:"fee_currency"`
}

// IngestRequest registers one normalized file with its records.
type IngestRequest struct {
	Source        string      `json:"source"`
	BusinessDate  string      `json:"business_date"`
	FileName      string      `json:"file_name"`
	Checksum      string      `json:"checksum_sha256"`
	ParserProfile string      `json:"parser_profile"`
	ReceivedAt    string      `json:"received_at"`
	Records       []TxnRecord `json:"records"`
}

// IngestResult reports the outcome of an ingest request.
type IngestResult struct {
	FileID      string `json:"file_id"`
	Status      string `json:"status"`
	RecordCount int    `json:"record_count"`
	Duplicate   bool   `json:"duplicate"`
}

// Ingest registers a file and its transactions in one unit of work. A
// repeat of an already-accepted (side, business date, checksum) triple is
// answered with the original file's identity and no new rows.
func (s *Service) Ingest(ctx context.Context, actor, sourceIP string, req *IngestRequest) (*IngestResult, error) {
	if err := s.CheckPermission(ctx, actor, auth.PermIngestWrite); err != nil {
		return nil, err
	}

	var missing []string
	for _, f := range []struct{ name, value string }{
		{"source", req.Source},
		{"business_date", req.BusinessDate},
		{"file_name", req.FileName},
		{"checksum_sha256", req.Checksum},
		{"parser_profile", req.ParserProfile},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return nil, validationf("missing required fields: %s", strings.Join(missing, ", "))
	}

	source := strings.ToUpper(strings.TrimSpace(req.Source))
	side, err := s.sideForSource(source)
	if err != nil {
		return nil, err
	}

	receivedAt := time.Now().UTC()
	if req.ReceivedAt != "" {
		if t, err := time.Parse(time.RFC3339, req.ReceivedAt); err == nil {
			receivedAt = t
		}
	}

	var out IngestResult
	err = s.store.WithUnit(ctx, func(u storage.Unit) error {
		existing, err := u.FindIngestFileByKey(ctx, side, req.BusinessDate, req.Checksum)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		if existing != nil {
			out = IngestResult{
				FileID:      existing.ID,
				Status:      existing.Status,
				RecordCount: existing.RecordCount,
				Duplicate:   true,
			}
			s.metrics.IngestFile(ctx, "duplicate", 0)
			return u.InsertAuditEvent(ctx, newAuditEvent(actor, sourceIP,
				"ingest_file", existing.ID, "INGEST_REGISTER", types.AuditDuplicate,
				"Idempotent duplicate request"))
		}

		file := &types.IngestFile{
			ID:            uuid.NewString(),
			Side:          side,
			SourceSystem:  source,
			BusinessDate:  req.BusinessDate,
			FileName:      req.FileName,
			Checksum:      req.Checksum,
			ParserProfile: req.ParserProfile,
			ReceivedAt:    receivedAt,
			Status:        "PARSED",
			RecordCount:   len(req.Records),
			CreatedBy:     actor,
		}
		if err := u.InsertIngestFile(ctx, file); err != nil {
			return err
		}

		for i := range req.Records {
			txn, err := s.buildTxn(side, source, req.BusinessDate, &req.Records[i])
			if err != nil {
				return err
			}
			if err := u.InsertTxn(ctx, txn); err != nil {
				return err
			}
		}

		if err := u.InsertAuditEvent(ctx, newAuditEvent(actor, sourceIP,
			"ingest_file", file.ID, "INGEST_REGISTER", types.AuditSuccess,
			fmt.Sprintf("records=%d", len(req.Records)))); err != nil {
			return err
		}

		out = IngestResult{FileID: file.ID, Status: "PARSED", RecordCount: len(req.Records)}
		s.metrics.IngestFile(ctx, "accepted", len(req.Records))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Service) buildTxn(side types.Side, source, businessDate string, rec *TxnRecord) (*types.Txn, error) {
	var missing []string
	if strings.TrimSpace(rec.RRN) == "" {
		missing = append(missing, "rrn")
	}
	if rec.Amount == nil {
		missing = append(missing, "amount")
	}
	if strings.TrimSpace(rec.Currency) == "" {
		missing = append(missing, "currency")
	}
	if strings.TrimSpace(rec.TxnTime) == "" {
		missing = append(missing, "txn_time")
	}
	if strings.TrimSpace(rec.MerchantID) == "" {
		missing = append(missing, "merchant_id")
	}
	if strings.TrimSpace(rec.ChannelID) == "" {
		missing = append(missing, "channel_id")
	}
	if len(missing) > 0 {
		return nil, validationf("transaction missing required fields: %s", strings.Join(missing, ", "))
	}

	masked := normalize.PANMasked(rec.PANMasked)
	statusNorm := strings.ToUpper(strings.TrimSpace(rec.StatusNorm))
	if statusNorm == "" {
		statusNorm = "BOOKED"
	}
	feeCurrency := rec.FeeCurrency
	if feeCurrency == "" {
		feeCurrency = rec.Currency
	}

	return &types.Txn{
		ID:           uuid.NewString(),
		Side:         side,
		SourceSystem: source,
		BusinessDate: businessDate,
		RRN:          normalize.Ref(rec.RRN),
		ARN:          normalize.Ref(rec.ARN),
		PANMasked:    masked,
		PANHash:      normalize.PANHash(masked, s.cfg.PANHashSecret),
		Amount:       decimal.NewFromFloat(*rec.Amount),
		Currency:     normalize.Currency(rec.Currency),
		TxnTime:      rec.TxnTime,
		OpType:       normalize.OpType(rec.OpType),
		MerchantID:   normalize.Ref(rec.MerchantID),
		ChannelID:    normalize.Ref(rec.ChannelID),
		StatusNorm:   statusNorm,
		FeeAmount:    decimal.NewFromFloat(rec.FeeAmount),
		FeeCurrency:  normalize.Currency(feeCurrency),
	}, nil
}

// IngestStatus returns the registered state of one ingest file.
func (s *Service) IngestStatus(ctx context.Context, actor, fileID string) (*types.IngestFile, error) {
	if err := s.CheckPermission(ctx, actor, auth.PermIngestRead); err != nil {
		return nil, err
	}
	f, err := s.store.GetIngestFile(ctx, fileID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, notFoundf("ingest file not found")
	}
	return f, err
}
