// Package service implements the application operations on top of the
// store: ingest, match runs, the unified result view, the exception
// workflow, rulesets, audit and analytics. Every operation authorizes the
// acting user first and every write path emits an audit event inside the
// same unit of work as its data changes.
package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cardworks/recon/internal/auth"
	"github.com/cardworks/recon/internal/config"
	"github.com/cardworks/recon/internal/storage"
	"github.com/cardworks/recon/internal/telemetry"
	"github.com/cardworks/recon/internal/types"
)

// Service wires the store to the HTTP surface.
type Service struct {
	store   storage.Store
	cfg     *config.Config
	metrics *telemetry.Metrics

	// runHook, when set, runs after a match run's outputs are staged but
	// before they commit. Tests use it to force the failure path.
	runHook func() error
}

// New creates a Service over the given store.
func New(store storage.Store, cfg *config.Config) *Service {
	return &Service{
		store:   store,
		cfg:     cfg,
		metrics: telemetry.NewMetrics(),
	}
}

// CheckPermission verifies the actor holds the permission via their role
// grants. Unknown users hold no roles and are always denied.
func (s *Service) CheckPermission(ctx context.Context, actor, permission string) error {
	roles, err := s.store.RolesForUser(ctx, actor)
	if err != nil {
		return err
	}
	if !auth.HasPermission(roles, permission) {
		return forbiddenf("user %q lacks permission %q", actor, permission)
	}
	return nil
}

// sideForSource resolves the reconciliation side of a source_system value
// by configured prefix.
func (s *Service) sideForSource(source string) (types.Side, error) {
	for _, p := range s.cfg.Sources.LeftPrefixes {
		if strings.HasPrefix(source, p) {
			return types.SideLeft, nil
		}
	}
	for _, p := range s.cfg.Sources.RightPrefixes {
		if strings.HasPrefix(source, p) {
			return types.SideRight, nil
		}
	}
	return "", validationf("unknown source %q: no side prefix matches", source)
}

func newAuditEvent(actor, sourceIP, objectType, objectID, action string, result types.AuditResult, details string) *types.AuditEvent {
	return &types.AuditEvent{
		ID:         uuid.NewString(),
		At:         time.Now().UTC(),
		Actor:      actor,
		SourceIP:   sourceIP,
		ObjectType: objectType,
		ObjectID:   objectID,
		Action:     action,
		Result:     result,
		Details:    details,
	}
}
