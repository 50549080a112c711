package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/shipment-tariff-agent/internal/config"
	"github.com/kirillkom/shipment-tariff-agent/internal/core/domain"
	"github.com/kirillkom/shipment-tariff-agent/internal/core/ports"
	"github.com/kirillkom/shipment-tariff-agent/internal/core/usecase"
	"github.com/kirillkom/shipment-tariff-agent/internal/jobs"
	"github.com/kirillkom/shipment-tariff-agent/internal/observability/metrics"
)

const maxRequestBodyBytes = 8 << 20

type Router struct {
	cfg      config.Config
	grouper  ports.ShipmentGrouper
	enricher ports.ShipmentEnricher
	jobs     *jobs.Registry
	metrics  *metrics.HTTPServerMetrics
	logger   *slog.Logger
}

func NewRouter(
	cfg config.Config,
	grouper ports.ShipmentGrouper,
	enricher ports.ShipmentEnricher,
	registry *jobs.Registry,
	httpMetrics *metrics.HTTPServerMetrics,
) *Router {
	if registry == nil {
		registry = jobs.NewRegistry(cfg.EnrichJobTTL)
	}
	return &Router{
		cfg:      cfg,
		grouper:  grouper,
		enricher: enricher,
		jobs:     registry,
		metrics:  httpMetrics,
		logger:   slog.Default(),
	}
}

// WithLogger sets the logger used for access and job logs.
func (rt *Router) WithLogger(logger *slog.Logger) *Router {
	if logger != nil {
		rt.logger = logger
	}
	return rt
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}
	mux.HandleFunc("POST /v1/shipments/group", rt.groupDocuments)
	mux.HandleFunc("POST /v1/shipments/enrich", rt.enrichShipment)
	mux.HandleFunc("POST /v1/enrichment-jobs", rt.startEnrichmentJob)
	mux.HandleFunc("GET /v1/enrichment-jobs/{id}", rt.getEnrichmentJob)

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxInFlight, rt.cfg.APIBackpressureWait)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware("api", handler)
	}
	handler = accessLogMiddleware(rt.logger, handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) groupDocuments(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Files []domain.ExtractedDocument `json:"files"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}

	groups, err := rt.grouper.Group(r.Context(), req.Files)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	if groups == nil {
		groups = []domain.ShipmentGroup{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"groups": groups})
}

func (rt *Router) enrichShipment(w http.ResponseWriter, r *http.Request) {
	var req domain.EnrichmentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}

	resp, err := usecase.RunEnrichmentRequest(r.Context(), rt.enricher, req)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (rt *Router) startEnrichmentJob(w http.ResponseWriter, r *http.Request) {
	var req domain.EnrichmentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	if req.Shipment == nil {
		rt.writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "start enrichment job", errors.New("shipment is required")))
		return
	}

	rt.jobs.Sweep()
	job := rt.jobs.Create()
	requestID := requestIDFromContext(r.Context())

	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), rt.jobTimeout())
		defer cancel()

		resp, err := usecase.RunEnrichmentRequest(ctx, rt.enricher, req)
		if err != nil {
			rt.logger.Warn("enrichment_job_failed", "job_id", job.ID, "request_id", requestID, "error", err)
			rt.jobs.Complete(job.ID, nil, err)
			return
		}
		rt.jobs.Complete(job.ID, resp, nil)
	}()

	w.Header().Set("Location", "/v1/enrichment-jobs/"+job.ID)
	writeJSON(w, http.StatusAccepted, job)
}

func (rt *Router) getEnrichmentJob(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "job id is required"})
		return
	}

	job, ok := rt.jobs.Fetch(id)
	if !ok {
		rt.writeError(w, r, domain.WrapError(domain.ErrNotFound, "get enrichment job", errors.New("id="+id)))
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (rt *Router) jobTimeout() time.Duration {
	if rt.cfg.EnrichJobTimeout > 0 {
		return rt.cfg.EnrichJobTimeout
	}
	return 5 * time.Minute
}

func decodeJSON(w http.ResponseWriter, r *http.Request, out any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "decode request", err)
	}
	return nil
}

func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		rt.logger.Error("request_failed", "request_id", requestIDFromContext(r.Context()), "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
