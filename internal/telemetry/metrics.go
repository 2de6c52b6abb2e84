package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const serviceScopeName = "github.com/cardworks/recon/service"

// Metrics holds the domain counters emitted by the service layer. All
// instruments come from the global meter provider, so with telemetry
// disabled every Add is a no-op.
type Metrics struct {
	ingestFiles  metric.Int64Counter
	ingestTxns   metric.Int64Counter
	matchRuns    metric.Int64Counter
	matchResults metric.Int64Counter
	exceptions   metric.Int64Counter
	actions      metric.Int64Counter
}

// NewMetrics creates the service instrument set.
func NewMetrics() *Metrics {
	m := Meter(serviceScopeName)
	ingestFiles, _ := m.Int64Counter("recon.ingest.files",
		metric.WithDescription("Ingest files accepted, by result"),
	)
	ingestTxns, _ := m.Int64Counter("recon.ingest.txns",
		metric.WithDescription("Transactions ingested"),
	)
	matchRuns, _ := m.Int64Counter("recon.match.runs",
		metric.WithDescription("Match runs executed, by final status"),
	)
	matchResults, _ := m.Int64Counter("recon.match.results",
		metric.WithDescription("Match result rows persisted"),
	)
	exceptions, _ := m.Int64Counter("recon.exceptions.created",
		metric.WithDescription("Exception cases created"),
	)
	actions, _ := m.Int64Counter("recon.exceptions.actions",
		metric.WithDescription("Exception workflow actions, by type"),
	)
	return &Metrics{
		ingestFiles:  ingestFiles,
		ingestTxns:   ingestTxns,
		matchRuns:    matchRuns,
		matchResults: matchResults,
		exceptions:   exceptions,
		actions:      actions,
	}
}

func (m *Metrics) IngestFile(ctx context.Context, result string, records int) {
	if m == nil {
		return
	}
	m.ingestFiles.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
	if records > 0 {
		m.ingestTxns.Add(ctx, int64(records))
	}
}

func (m *Metrics) MatchRun(ctx context.Context, status string, matches, exceptions int) {
	if m == nil {
		return
	}
	m.matchRuns.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	if matches > 0 {
		m.matchResults.Add(ctx, int64(matches))
	}
	if exceptions > 0 {
		m.exceptions.Add(ctx, int64(exceptions))
	}
}

func (m *Metrics) ExceptionAction(ctx context.Context, actionType string) {
	if m == nil {
		return
	}
	m.actions.Add(ctx, 1, metric.WithAttributes(attribute.String("action", actionType)))
}
