package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/kirillkom/safety-report-retrieval/internal/config"
	"github.com/kirillkom/safety-report-retrieval/internal/core/domain"
	"github.com/kirillkom/safety-report-retrieval/internal/core/ports"
	"github.com/kirillkom/safety-report-retrieval/internal/observability/metrics"
)

const (
	serviceName     = "api"
	maxRequestBytes = 1 << 20
)

// RetrievalService is what the router needs from the retrieval core.
type RetrievalService interface {
	ports.Retriever
	ports.QueryPlanner
	LowAchievementRuns(ctx context.Context, threshold float64, limit int) ([]domain.RetrievalRun, error)
}

type Router struct {
	cfg        config.Config
	svc        RetrievalService
	metrics    *metrics.HTTPServerMetrics
	breakers   func() map[string]string
	logger     *slog.Logger
	validation bool
}

type RouterOption func(*Router)

func WithMetrics(m *metrics.HTTPServerMetrics) RouterOption {
	return func(rt *Router) { rt.metrics = m }
}

// WithBreakerStates reports circuit breaker states on /healthz.
func WithBreakerStates(states func() map[string]string) RouterOption {
	return func(rt *Router) { rt.breakers = states }
}

func WithLogger(logger *slog.Logger) RouterOption {
	return func(rt *Router) { rt.logger = logger }
}

// WithoutRequestValidation skips OpenAPI request validation.
func WithoutRequestValidation() RouterOption {
	return func(rt *Router) { rt.validation = false }
}

func NewRouter(cfg config.Config, svc RetrievalService, opts ...RouterOption) *Router {
	rt := &Router{
		cfg:        cfg,
		svc:        svc,
		logger:     slog.Default(),
		validation: true,
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("POST /v1/retrieval/search", rt.search)
	mux.HandleFunc("POST /v1/retrieval/queries", rt.planQueries)
	mux.HandleFunc("POST /v1/retrieval/dynamic-k", rt.dynamicK)
	mux.HandleFunc("GET /v1/retrieval/runs/low-coverage", rt.lowCoverageRuns)
	mux.HandleFunc("GET /openapi.yaml", rt.openAPI)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	if rt.validation {
		handler = requestValidationMiddleware(handler, rt.logger)
	}
	if rt.cfg.APIRequestTimeoutSeconds > 0 {
		handler = http.TimeoutHandler(handler, time.Duration(rt.cfg.APIRequestTimeoutSeconds)*time.Second, `{"error":"request timeout"}`)
	}
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxInFlight, time.Duration(rt.cfg.APIBackpressureWaitMS)*time.Millisecond, rt.reject)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst, rt.reject)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = accessLogMiddleware(handler, rt.logger)
	return requestIDMiddleware(handler)
}

func (rt *Router) reject(reason string) {
	if rt.metrics != nil {
		rt.metrics.RecordRejected(serviceName, reason)
	}
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponseDTO{Status: "ok"}
	if rt.breakers != nil {
		resp.Breakers = rt.breakers()
		for _, state := range resp.Breakers {
			if state == "open" {
				resp.Status = "degraded"
				break
			}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (rt *Router) openAPI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(openAPISpec)
}

func (rt *Router) search(w http.ResponseWriter, r *http.Request) {
	var req searchRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	st, err := req.Stakeholder.toDomain()
	if err != nil {
		writeError(w, r, err)
		return
	}

	result := rt.svc.Search(r.Context(), ports.SearchRequest{
		Stakeholder: st,
		UserID:      req.UserID,
		Hybrid:      req.Hybrid,
		MaxQueries:  req.MaxQueries,
	})
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) planQueries(w http.ResponseWriter, r *http.Request) {
	var req planRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	st, err := req.Stakeholder.toDomain()
	if err != nil {
		writeError(w, r, err)
		return
	}

	plan := rt.svc.Plan(st, req.MaxQueries)
	writeJSON(w, http.StatusOK, planResponseDTO{
		StakeholderID: st.ID,
		Queries:       plan.Queries,
		Weights:       plan.Weights,
		Category:      plan.Category,
	})
}

func (rt *Router) dynamicK(w http.ResponseWriter, r *http.Request) {
	var req dynamicKRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	st, err := req.Stakeholder.toDomain()
	if err != nil {
		writeError(w, r, err)
		return
	}
	if req.TotalChunks < 0 {
		writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "dynamic k", errors.New("total_chunks must be >= 0")))
		return
	}

	k := rt.svc.DynamicK(req.TotalChunks, st, req.StoreType)
	writeJSON(w, http.StatusOK, dynamicKResponseDTO{
		StakeholderID: st.ID,
		TotalChunks:   req.TotalChunks,
		StoreType:     req.StoreType,
		DynamicK:      k,
		SearchK:       rt.svc.SearchK(k),
	})
}

func (rt *Router) lowCoverageRuns(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	var threshold float64
	if raw := query.Get("threshold"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 || v > 1 {
			writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "parse threshold", errors.New("threshold must be a number in [0,1]")))
			return
		}
		threshold = v
	}
	limit := 0
	if raw := query.Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "parse limit", errors.New("limit must be a positive integer")))
			return
		}
		limit = v
	}

	runs, err := rt.svc.LowAchievementRuns(r.Context(), threshold, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if runs == nil {
		runs = []domain.RetrievalRun{}
	}
	writeJSON(w, http.StatusOK, runsResponseDTO{Threshold: threshold, Runs: runs})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes))
	if err := dec.Decode(dst); err != nil {
		writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "decode request", errors.New("invalid json")))
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	writeJSON(w, status, errorResponseDTO{Error: msg, Code: domain.Code(err), RequestID: requestIDFromContext(r.Context())})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
