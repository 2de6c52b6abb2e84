// Package server exposes the reconciliation service over HTTP/JSON.
//
// The actor is taken from the X-User header (default "admin"); the client
// IP accompanies every audited write. Error kinds map onto status codes:
// validation 400, forbidden 403, not found 404, anything else 500.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cardworks/recon/internal/service"
)

// Server is the HTTP front of the reconciliation service.
type Server struct {
	svc        *service.Service
	httpServer *http.Server
	listener   net.Listener
	addr       string
}

// New creates a Server listening on addr once started.
func New(svc *service.Service, addr string) *Server {
	return &Server{svc: svc, addr: addr}
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Handler:      s.routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	var err error
	s.listener, err = net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr returns the bound listen address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// actor resolves the acting user from the X-User header.
func actor(r *http.Request) string {
	if u := strings.TrimSpace(r.Header.Get("X-User")); u != "" {
		return u
	}
	return "admin"
}

// clientIP extracts the caller address for the audit trail.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i > 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps service error kinds onto status codes. A validation
// message that itself parses as a JSON object is surfaced as the body
// verbatim, preserving nested bulk-validation payloads.
func writeError(w http.ResponseWriter, err error) {
	var vErr *service.ValidationError
	var nfErr *service.NotFoundError
	var fbErr *service.ForbiddenError
	switch {
	case errors.As(err, &vErr):
		var nested map[string]any
		if json.Unmarshal([]byte(vErr.Message), &nested) == nil && nested != nil {
			writeJSON(w, http.StatusBadRequest, nested)
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": vErr.Message})
	case errors.As(err, &nfErr):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": nfErr.Message})
	case errors.As(err, &fbErr):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": fbErr.Message})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func decodeBody(r *http.Request, v any) error {
	defer func() { _ = r.Body.Close() }()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return &service.ValidationError{Message: "invalid JSON body"}
	}
	return nil
}
