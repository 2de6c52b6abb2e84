package server

import (
	"net/http"
	"strconv"

	"github.com/cardworks/recon/internal/service"
	"github.com/cardworks/recon/internal/types"
)

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("POST /api/v1/ingest/files", s.handleIngest)
	mux.HandleFunc("GET /api/v1/ingest/files/{id}/status", s.handleIngestStatus)

	mux.HandleFunc("POST /api/v1/match/runs", s.handleStartRun)
	mux.HandleFunc("GET /api/v1/match/runs", s.handleListRuns)
	mux.HandleFunc("GET /api/v1/match/runs/{id}", s.handleGetRun)
	mux.HandleFunc("GET /api/v1/match/status", s.handleRunStatus)

	mux.HandleFunc("GET /api/v1/results/run/{id}", s.handleRunResults)
	mux.HandleFunc("GET /api/v1/results/latest", s.handleLatestResults)
	mux.HandleFunc("GET /api/v1/results/details/{rowId}", s.handleResultDetails)

	mux.HandleFunc("GET /api/v1/exceptions", s.handleListExceptions)
	mux.HandleFunc("GET /api/v1/exceptions/{id}", s.handleGetException)
	mux.HandleFunc("POST /api/v1/exceptions/{id}/actions", s.handleExceptionAction)

	mux.HandleFunc("GET /api/v1/admin/rulesets", s.handleListRulesets)
	mux.HandleFunc("PUT /api/v1/admin/rulesets", s.handlePutRuleset)

	mux.HandleFunc("GET /api/v1/audit/events", s.handleListAudit)

	mux.HandleFunc("GET /api/v1/monitor/source-balance", s.handleSourceBalance)
	mux.HandleFunc("GET /api/v1/analytics/hardcoded", s.handleAnalytics)

	mux.HandleFunc("GET /api/v1/meta/users", s.handleListUsers)

	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req service.IngestRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	out, err := s.svc.Ingest(r.Context(), actor(r), clientIP(r), &req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleIngestStatus(w http.ResponseWriter, r *http.Request) {
	out, err := s.svc.IngestStatus(r.Context(), actor(r), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BusinessDate string `json:"business_date"`
		ScopeFilter  string `json:"scope_filter"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	out, err := s.svc.RunMatching(r.Context(), actor(r), clientIP(r), req.BusinessDate, req.ScopeFilter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := intQuery(r, "limit", 0)
	items, err := s.svc.ListRuns(r.Context(), actor(r), r.URL.Query().Get("business_date"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	out, err := s.svc.GetRun(r.Context(), actor(r), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRunStatus(w http.ResponseWriter, r *http.Request) {
	out, err := s.svc.LatestRunStatus(r.Context(), actor(r), r.URL.Query().Get("business_date"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRunResults(w http.ResponseWriter, r *http.Request) {
	q, err := resultQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}
	out, err := s.svc.RunResults(r.Context(), actor(r), r.PathValue("id"), q)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleLatestResults(w http.ResponseWriter, r *http.Request) {
	q, err := resultQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}
	out, err := s.svc.LatestResults(r.Context(), actor(r), r.URL.Query().Get("business_date"), q)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleResultDetails(w http.ResponseWriter, r *http.Request) {
	out, err := s.svc.ResultRowDetails(r.Context(), actor(r), r.PathValue("rowId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleListExceptions(w http.ResponseWriter, r *http.Request) {
	f := types.ExceptionFilter{
		BusinessDate: r.URL.Query().Get("business_date"),
		Category:     r.URL.Query().Get("category"),
		Status:       r.URL.Query().Get("status"),
		RunID:        r.URL.Query().Get("run_id"),
	}
	out, err := s.svc.ListExceptions(r.Context(), actor(r), f)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetException(w http.ResponseWriter, r *http.Request) {
	out, err := s.svc.GetException(r.Context(), actor(r), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleExceptionAction(w http.ResponseWriter, r *http.Request) {
	var req service.ExceptionActionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	out, err := s.svc.ExceptionAction(r.Context(), actor(r), clientIP(r), r.PathValue("id"), &req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleListRulesets(w http.ResponseWriter, r *http.Request) {
	out, err := s.svc.ListRulesets(r.Context(), actor(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePutRuleset(w http.ResponseWriter, r *http.Request) {
	var req service.RulesetRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	rs, err := s.svc.PutRuleset(r.Context(), actor(r), clientIP(r), &req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"active_version": rs.Version, "rules": rs})
}

func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	f := types.AuditFilter{
		Actor:      r.URL.Query().Get("actor_login"),
		ObjectType: r.URL.Query().Get("object_type"),
		Action:     r.URL.Query().Get("action"),
		Result:     r.URL.Query().Get("result"),
	}
	out, err := s.svc.ListAudit(r.Context(), actor(r), f)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSourceBalance(w http.ResponseWriter, r *http.Request) {
	out, err := s.svc.GetSourceBalance(r.Context(), actor(r), r.URL.Query().Get("business_date"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	out, err := s.svc.GetAnalytics(r.Context(), actor(r), r.URL.Query().Get("business_date"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	out, err := s.svc.ListUsers(r.Context(), actor(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func intQuery(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// resultQuery parses the unified-view filter parameters. Numeric filters
// that fail to parse are validation errors rather than silent defaults.
func resultQuery(r *http.Request) (types.ResultQuery, error) {
	vals := r.URL.Query()
	q := types.ResultQuery{
		Status:   vals.Get("status"),
		Search:   vals.Get("q"),
		Currency: vals.Get("currency"),
		Page:     intQuery(r, "page", 1),
		PageSize: intQuery(r, "page_size", 50),
		SortBy:   vals.Get("sort_by"),
		SortDir:  vals.Get("sort_dir"),
	}
	if v := vals.Get("amount_min"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return q, &service.ValidationError{Message: "amount_min must be a number"}
		}
		q.AmountMin = &f
	}
	if v := vals.Get("amount_max"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return q, &service.ValidationError{Message: "amount_max must be a number"}
		}
		q.AmountMax = &f
	}
	return q, nil
}
