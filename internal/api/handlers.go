package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nordmail/formsync/internal/form"
	"github.com/nordmail/formsync/internal/mailer"
	"github.com/nordmail/formsync/internal/metrics"
	"github.com/nordmail/formsync/internal/reconcile"
)

// SubmissionRequest is the request body for POST /forms/{formID}/submissions
type SubmissionRequest struct {
	// Values maps form field ids to submitted values; multi-valued
	// inputs may be sent as arrays and are flattened server-side.
	Values    map[string]any `json:"values"`
	SourceURL string         `json:"source_url,omitempty"`
}

// SubmissionResponse is the response for POST /forms/{formID}/submissions
type SubmissionResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// SiteDataResponse is the response for GET /sites/{domain}
type SiteDataResponse struct {
	Lists      []mailer.List     `json:"lists"`
	Consents   []mailer.Consent  `json:"consents"`
	Properties []mailer.Property `json:"properties"`
}

// StatusResponse is the response for GET /status
type StatusResponse struct {
	Valid bool `json:"valid"`
}

// HealthResponse is the response for GET /health
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

// ErrorResponse is the error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// Version is set at build time
var Version = "dev"

// handleSubmission handles POST /api/v1/forms/{formID}/submissions.
// Reconciliation runs synchronously within the request, but its outcome
// is fire-and-forget: the submitter always gets 202 for a known form,
// and failures are logged only.
func (s *Server) handleSubmission(w http.ResponseWriter, r *http.Request) {
	formID := chi.URLParam(r, "formID")
	f := s.config.FormByID(formID)
	if f == nil {
		s.sendError(w, http.StatusNotFound, "unknown form")
		return
	}

	var req SubmissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id := uuid.New().String()
	entry := form.Flatten(req.Values)
	metrics.IncSubmissions(formID)

	logger := s.logger.With("submission", id, "form", formID)
	logger.Info("submission received", "fields", len(entry))

	if err := s.reconciler.Run(r.Context(), f, entry, req.SourceURL); err != nil {
		var ae *reconcile.AbortError
		if !errors.As(err, &ae) {
			logger.Error("reconciliation failed", "error", err)
		}
		// aborts are already logged with their reason by the reconciler
	}

	s.sendJSON(w, http.StatusAccepted, SubmissionResponse{ID: id, Status: "accepted"})
}

// handleSiteData handles GET /api/v1/sites/{domain}. It serves the
// mailing lists, consents and mappable properties of a site for
// configuration UIs. The email and sms pseudo-properties lead the
// property list so identity fields can be mapped like any other.
func (s *Server) handleSiteData(w http.ResponseWriter, r *http.Request) {
	domain := chi.URLParam(r, "domain")

	site := s.snapshots.Snapshot(r.Context(), domain)
	if site == nil {
		s.sendError(w, http.StatusNotFound, "site not found")
		return
	}

	resp := SiteDataResponse{
		Lists:      site.Lists,
		Consents:   site.Consents,
		Properties: append(mailer.CoreProperties(), site.Properties...),
	}
	if resp.Lists == nil {
		resp.Lists = []mailer.List{}
	}
	if resp.Consents == nil {
		resp.Consents = []mailer.Consent{}
	}
	s.sendJSON(w, http.StatusOK, resp)
}

// handleStatus handles GET /api/v1/status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, StatusResponse{Valid: s.conn.Status(r.Context())})
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: Version,
		Uptime:  time.Since(s.startTime).Round(time.Second).String(),
	})
}

// sendJSON writes a JSON response
func (s *Server) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// sendError writes a JSON error response
func (s *Server) sendError(w http.ResponseWriter, status int, message string) {
	s.sendJSON(w, status, ErrorResponse{Error: message})
}
