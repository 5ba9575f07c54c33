package rest

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sentinelpay/fraud-scoring-backend/internal/domain/errors"
	"github.com/sentinelpay/fraud-scoring-backend/internal/domain/transaction"
)

const maxRequestBody = 1 << 20 // 1 MiB

// Scorer is the slice of the scoring service the handlers need.
type Scorer interface {
	Score(ctx context.Context, tx *transaction.Transaction) (*transaction.ScoreResult, transaction.ScoreSource, error)
	Ready() bool
}

// Pinger is a dependency the readiness probe checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds the HTTP endpoints.
type Handler struct {
	scorer  Scorer
	checks  map[string]Pinger
	logger  *zap.Logger
	version string
}

// NewHandler wires the endpoints. checks maps dependency names to their
// liveness probes for /readyz; nil entries are skipped.
func NewHandler(scorer Scorer, checks map[string]Pinger, version string, logger *zap.Logger) *Handler {
	return &Handler{
		scorer:  scorer,
		checks:  checks,
		logger:  logger,
		version: version,
	}
}

// Routes assembles the mux with the standard middleware chain.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/score", h.handleScore)
	mux.HandleFunc("GET /healthz", h.handleHealth)
	mux.HandleFunc("GET /readyz", h.handleReady)
	mux.Handle("GET /metrics", promhttp.Handler())

	return chain(mux,
		recoveryMiddleware(h.logger),
		requestIDMiddleware,
		loggingMiddleware(h.logger),
	)
}

// scoreResponse is the wire shape of a scoring response. The result fields
// are flattened in; source is transport metadata and never part of the
// cached result itself.
type scoreResponse struct {
	*transaction.ScoreResult
	Source transaction.ScoreSource `json:"source"`
}

func (h *Handler) handleScore(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		h.writeError(w, r, errors.NewValidationError("INVALID_BODY", "failed to read request body"))
		return
	}

	var tx transaction.Transaction
	if err := json.Unmarshal(body, &tx); err != nil {
		h.writeError(w, r, errors.NewValidationError("INVALID_JSON", "request body is not valid JSON").WithCause(err))
		return
	}

	result, source, err := h.scorer.Score(r.Context(), &tx)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, scoreResponse{ScoreResult: result, Source: source})
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": h.version,
	})
}

// handleReady reports 503 until the model is loaded and every registered
// dependency answers its ping.
func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	deps := make(map[string]string, len(h.checks)+1)

	if h.scorer.Ready() {
		deps["model"] = "ok"
	} else {
		deps["model"] = "not loaded"
		status = http.StatusServiceUnavailable
	}

	for name, p := range h.checks {
		if p == nil {
			continue
		}
		if err := p.Ping(r.Context()); err != nil {
			deps[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}

	h.writeJSON(w, status, map[string]interface{}{
		"status":       readyLabel(status),
		"dependencies": deps,
	})
}

func readyLabel(status int) string {
	if status == http.StatusOK {
		return "ready"
	}
	return "not ready"
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Type    errors.ErrorType       `json:"type"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errors.GetStatusCode(err)

	body := errorBody{
		Type:    errors.ErrorTypeInternal,
		Code:    "INTERNAL_ERROR",
		Message: "an internal error occurred",
	}
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		body = errorBody{
			Type:    appErr.Type,
			Code:    appErr.Code,
			Message: appErr.Message,
			Details: appErr.Details,
		}
	}

	if status >= 500 {
		h.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err))
	}

	h.writeJSON(w, status, errorEnvelope{Error: body})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}
