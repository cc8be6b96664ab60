// Package adminapi exposes the governance hub over HTTP for operators and
// the CLI. The API is JSON in, JSON out; mutating routes are rate limited.
package adminapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/polisai/govhub/pkg/compliance"
	"github.com/polisai/govhub/pkg/domain"
	"github.com/polisai/govhub/pkg/governance"
	"github.com/polisai/govhub/pkg/hub"
	"github.com/polisai/govhub/pkg/registry"
	"github.com/polisai/govhub/pkg/review"
	"github.com/polisai/govhub/pkg/telemetry"
)

// Server wires the governance components to HTTP routes.
type Server struct {
	manager  *governance.Manager
	registry *registry.Registry
	tracker  *compliance.Tracker
	reviews  *review.Pipeline
	bot      *hub.Bot
	metrics  *telemetry.Metrics
	limiter  *Limiter
	logger   *slog.Logger
}

// Config collects the server dependencies.
type Config struct {
	Manager  *governance.Manager
	Registry *registry.Registry
	Tracker  *compliance.Tracker
	Reviews  *review.Pipeline
	Bot      *hub.Bot
	Metrics  *telemetry.Metrics
	Limit    LimitConfig
	Logger   *slog.Logger
}

// NewServer builds the admin API server.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		manager:  cfg.Manager,
		registry: cfg.Registry,
		tracker:  cfg.Tracker,
		reviews:  cfg.Reviews,
		bot:      cfg.Bot,
		metrics:  cfg.Metrics,
		limiter:  NewLimiter(cfg.Limit),
		logger:   logger,
	}
}

// Handler returns the routed, instrumented handler tree.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	mux.HandleFunc("POST /v1/domains", s.handleRegisterDomain)
	mux.HandleFunc("GET /v1/domains", s.handleListDomains)
	mux.HandleFunc("POST /v1/domains/{code}/status", s.handleSetDomainStatus)

	mux.HandleFunc("POST /v1/integrations", s.handleRequestIntegration)
	mux.HandleFunc("GET /v1/integrations", s.handleListIntegrations)
	mux.HandleFunc("GET /v1/integrations/{id}", s.handleGetIntegration)
	mux.HandleFunc("POST /v1/integrations/{id}/approve", s.handleApprove)
	mux.HandleFunc("POST /v1/integrations/{id}/reject", s.handleReject)

	mux.HandleFunc("GET /v1/topology", s.handleTopology)
	mux.HandleFunc("GET /v1/compliance", s.handleComplianceSummary)
	mux.HandleFunc("GET /v1/compliance/{domain}", s.handleDomainCompliance)
	mux.HandleFunc("GET /v1/reviews/metrics", s.handleReviewMetrics)
	mux.HandleFunc("GET /v1/hub/stats", s.handleHubStats)

	return otelhttp.NewHandler(s.limiter.middleware(mux), "govhub.admin")
}

type registerDomainRequest struct {
	Code                   string   `json:"code"`
	Capabilities           []string `json:"capabilities"`
	ComplianceRequirements []string `json:"compliance_requirements"`
}

func (s *Server) handleRegisterDomain(w http.ResponseWriter, r *http.Request) {
	var req registerDomainRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.manager.RegisterDomain(r.Context(), req.Code, req.Capabilities, req.ComplianceRequirements)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleListDomains(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.registry.Domains())
}

type setDomainStatusRequest struct {
	Status domain.DomainStatus `json:"status"`
}

func (s *Server) handleSetDomainStatus(w http.ResponseWriter, r *http.Request) {
	var req setDomainStatusRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.registry.SetDomainStatus(r.PathValue("code"), req.Status); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type requestIntegrationRequest struct {
	Source      string          `json:"source"`
	Target      string          `json:"target"`
	Type        string          `json:"type"`
	Description string          `json:"description"`
	Priority    domain.Priority `json:"priority"`
}

func (s *Server) handleRequestIntegration(w http.ResponseWriter, r *http.Request) {
	var req requestIntegrationRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Priority == "" {
		req.Priority = domain.PriorityNormal
	}
	res, err := s.manager.RequestIntegration(r.Context(), req.Source, req.Target, req.Type, req.Description, req.Priority)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleListIntegrations(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.manager.Integrations())
}

func (s *Server) handleGetIntegration(w http.ResponseWriter, r *http.Request) {
	integ, err := s.manager.Integration(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, integ)
}

type reviewActionRequest struct {
	Reviewer string `json:"reviewer"`
	Notes    string `json:"notes"`
	Reason   string `json:"reason"`
}

type reviewActionResponse struct {
	IntegrationID string                   `json:"integration_id"`
	Status        domain.IntegrationStatus `json:"status"`
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	var req reviewActionRequest
	if !s.decode(w, r, &req) {
		return
	}
	id := r.PathValue("id")
	status, err := s.manager.ApproveIntegration(r.Context(), id, req.Reviewer, req.Notes)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, reviewActionResponse{IntegrationID: id, Status: status})
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	var req reviewActionRequest
	if !s.decode(w, r, &req) {
		return
	}
	id := r.PathValue("id")
	status, err := s.manager.RejectIntegration(r.Context(), id, req.Reviewer, req.Reason)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, reviewActionResponse{IntegrationID: id, Status: status})
}

func (s *Server) handleTopology(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.registry.Topology())
}

func (s *Server) handleComplianceSummary(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.tracker.EcosystemSummary())
}

func (s *Server) handleDomainCompliance(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.tracker.DomainSummary(r.PathValue("domain")))
}

func (s *Server) handleReviewMetrics(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.reviews.Metrics())
}

func (s *Server) handleHubStats(w http.ResponseWriter, _ *http.Request) {
	if s.bot == nil {
		s.writeJSON(w, http.StatusOK, hub.Stats{})
		return
	}
	s.writeJSON(w, http.StatusOK, s.bot.Stats())
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body: " + err.Error()})
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("Response encode failed", "error", err)
	}
}

// writeError maps the governance error taxonomy onto HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrUnknownDomain),
		errors.Is(err, domain.ErrUnknownIntegration),
		errors.Is(err, domain.ErrUnknownReview),
		errors.Is(err, domain.ErrUnknownRecord):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrDuplicateDomain),
		errors.Is(err, domain.ErrDuplicateEdge),
		errors.Is(err, domain.ErrDuplicateRecord),
		errors.Is(err, domain.ErrSelfIntegration),
		errors.Is(err, domain.ErrNotInReview),
		errors.Is(err, domain.ErrReviewNotApproved),
		errors.Is(err, domain.ErrNoReviewers):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrPolicyDenied):
		status = http.StatusForbidden
	default:
		status = http.StatusBadRequest
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
