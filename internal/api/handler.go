package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/opensource-finance/fraudscore/internal/audit"
	"github.com/opensource-finance/fraudscore/internal/domain"
	"github.com/opensource-finance/fraudscore/internal/scoring"
	"github.com/opensource-finance/fraudscore/internal/stats"
	"github.com/opensource-finance/fraudscore/internal/worker"
)

const (
	maxBodyBytes    = 1 << 20
	maxSummaryRows  = 100000
	readinessBudget = 2 * time.Second
)

// Dependencies are the collaborators of the HTTP handlers.
// Only Scoring is required.
type Dependencies struct {
	Scoring *scoring.Service

	// AuditPath is the CSV log read by the summary endpoint.
	AuditPath       string
	SummaryWindow   int
	SummaryCacheTTL time.Duration

	Cache      domain.Cache
	Bus        domain.EventBus
	Repository domain.Repository
	Stats      *stats.Service
	Worker     WorkerStatus

	Tracing bool
	Version string
}

// WorkerStatus reports the background consumers' subscriptions.
type WorkerStatus interface {
	GetStats() worker.Stats
}

// Handler holds dependencies for API handlers.
type Handler struct {
	deps   Dependencies
	legacy bool
}

// NewHandler creates a new API handler.
func NewHandler(cfg domain.ServerConfig, deps Dependencies) *Handler {
	if deps.SummaryWindow <= 0 {
		deps.SummaryWindow = 200
	}
	return &Handler{
		deps:   deps,
		legacy: cfg.LegacyErrorStatus,
	}
}

// PredictRequest is the request body for POST /predict.
type PredictRequest struct {
	Features map[string]any `json:"features"`
}

// ErrorResponse is the body of every failed request. The name lists are
// filled for feature contract violations only.
type ErrorResponse struct {
	Error      string   `json:"error"`
	Missing    []string `json:"missing,omitempty"`
	Unexpected []string `json:"unexpected,omitempty"`
	NonNumeric []string `json:"non_numeric,omitempty"`
}

// Predict handles POST /predict.
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()

	var req PredictRequest
	if err := dec.Decode(&req); err != nil {
		var typeErr *json.UnmarshalTypeError
		var sizeErr *http.MaxBytesError
		switch {
		case errors.As(err, &typeErr) && typeErr.Field == "features":
			writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: "features must be a JSON object"})
			return
		case errors.As(err, &sizeErr):
			writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{Error: "request body too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid JSON request body"})
		return
	}
	// Exactly one JSON value per body.
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid JSON request body"})
		return
	}
	if req.Features == nil {
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: "features object is required"})
		return
	}

	result, err := h.deps.Scoring.Score(ctx, req.Features)
	if err != nil {
		status, body := h.failure(err)
		writeJSON(w, status, body)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// failure maps a scoring error to its status and body.
func (h *Handler) failure(err error) (int, ErrorResponse) {
	status := http.StatusInternalServerError
	body := ErrorResponse{Error: err.Error()}

	var cerr *domain.ContractError
	var sf *domain.ScoringFailure
	switch {
	case errors.As(err, &cerr):
		status = http.StatusUnprocessableEntity
		body.Missing = cerr.Missing
		body.Unexpected = cerr.Unexpected
		body.NonNumeric = cerr.NonNumeric
	case errors.As(err, &sf):
		body.Error = "scoring failed: " + sf.Reason
	default:
		body.Error = "internal server error"
	}

	if h.legacy {
		status = http.StatusOK
	}
	return status, body
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Scoring.Introspect())
}

// ReadyResponse reports dependency checks.
type ReadyResponse struct {
	Ready   bool              `json:"ready"`
	Model   string            `json:"model"`
	Version string            `json:"version,omitempty"`
	Checks  map[string]string `json:"checks"`
	Topics  []string          `json:"topics,omitempty"`
}

// Ready handles GET /ready. Any failing dependency makes the service unready.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessBudget)
	defer cancel()

	resp := ReadyResponse{
		Ready:   true,
		Model:   h.deps.Scoring.ModelKind(),
		Version: h.deps.Version,
		Checks:  make(map[string]string),
	}

	type pinger interface {
		Ping(context.Context) error
	}
	checks := []struct {
		name string
		dep  pinger
	}{
		{"cache", h.deps.Cache},
		{"bus", h.deps.Bus},
		{"repository", h.deps.Repository},
	}
	for _, c := range checks {
		if c.dep == nil {
			continue
		}
		if err := c.dep.Ping(ctx); err != nil {
			resp.Ready = false
			resp.Checks[c.name] = err.Error()
			slog.WarnContext(ctx, "readiness check failed", "dependency", c.name, "error", err)
			continue
		}
		resp.Checks[c.name] = "ok"
	}

	if h.deps.Worker != nil {
		st := h.deps.Worker.GetStats()
		resp.Topics = st.Topics
		if st.SubscriptionCount == 0 {
			resp.Ready = false
			resp.Checks["worker"] = "no active subscriptions"
		} else {
			resp.Checks["worker"] = "ok"
		}
	}

	status := http.StatusOK
	if !resp.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// AuditSummary handles GET /audit/summary?window=N.
// Results are cached for SummaryCacheTTL when a cache is configured.
func (h *Handler) AuditSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	window := h.deps.SummaryWindow
	if v := r.URL.Query().Get("window"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxSummaryRows {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error: fmt.Sprintf("window must be an integer between 1 and %d", maxSummaryRows),
			})
			return
		}
		window = n
	}

	key := "summary:" + strconv.Itoa(window)
	useCache := h.deps.Cache != nil && h.deps.SummaryCacheTTL > 0

	if useCache {
		cached, err := h.deps.Cache.Get(ctx, key)
		if err != nil {
			slog.WarnContext(ctx, "summary cache read failed", "error", err)
		} else if cached != nil {
			writeRawJSON(w, http.StatusOK, cached)
			return
		}
	}

	records, err := audit.ReadRecords(h.deps.AuditPath)
	if err != nil {
		slog.ErrorContext(ctx, "failed to read audit log", "path", h.deps.AuditPath, "error", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "audit log unreadable"})
		return
	}

	payload, err := json.Marshal(audit.Summarize(records, window))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	if useCache {
		if err := h.deps.Cache.Set(ctx, key, payload, h.deps.SummaryCacheTTL); err != nil {
			slog.WarnContext(ctx, "summary cache write failed", "error", err)
		}
	}

	writeRawJSON(w, http.StatusOK, payload)
}

// Stats handles GET /stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	if h.deps.Stats == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "decision counters are not configured"})
		return
	}

	snap, err := h.deps.Stats.Snapshot(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to read decision counters", "error", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "decision counters unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeRawJSON(w http.ResponseWriter, status int, payload []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(payload)
	_, _ = io.WriteString(w, "\n")
}
