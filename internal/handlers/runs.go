package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/wintersim/muonio/internal/storage"
	"github.com/wintersim/muonio/pkg/queue"
	"github.com/wintersim/muonio/pkg/scenario"
)

// defaultListLimit caps GET /v1/runs when no limit is given.
const defaultListLimit = 50

type ErrorResponse struct {
	Error string `json:"error"`
}

// RunListResponse is the body of GET /v1/runs.
type RunListResponse struct {
	Runs  []*scenario.Record `json:"runs"`
	Count int                `json:"count"`
}

// RunRequest is the body of POST /v1/runs.
type RunRequest struct {
	Config   scenario.Config `json:"config"`
	Realtime bool            `json:"realtime,omitempty"`
}

// RunAcceptedResponse is returned once a run request is queued.
type RunAcceptedResponse struct {
	RequestID string    `json:"request_id"`
	RunID     uuid.UUID `json:"run_id"`
	Message   string    `json:"message"`
}

// RunEnqueuer queues scenario runs for the workers.
type RunEnqueuer interface {
	Enqueue(ctx context.Context, req *queue.Request) error
}

type RunsHandler struct {
	storage storage.Storage
	queue   RunEnqueuer
	logger  *slog.Logger
}

func NewRunsHandler(storage storage.Storage, logger *slog.Logger) *RunsHandler {
	return &RunsHandler{
		storage: storage,
		logger:  logger,
	}
}

// WithQueue enables POST /v1/runs, which queues runs on q.
func (h *RunsHandler) WithQueue(q RunEnqueuer) *RunsHandler {
	h.queue = q
	return h
}

// ServeHTTP handles HTTP requests for scenario runs
// Routes:
// GET  /v1/runs?limit=N - List runs, newest first
// GET  /v1/runs/{id}    - Read one run record
// POST /v1/runs         - Queue a run (only with a queue configured)
func (h *RunsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/runs"), "/")

	switch {
	case r.Method == http.MethodPost && path == "" && h.queue != nil:
		h.handleEnqueue(w, r)
		return
	case r.Method != http.MethodGet:
		h.logger.Warn("Method not allowed for runs endpoint", "method", r.Method)
		h.writeError(w, http.StatusMethodNotAllowed, "Method not allowed. Only GET is supported.")
		return
	}

	if path == "" {
		h.handleList(w, r)
		return
	}

	runID, err := uuid.Parse(path)
	if err != nil {
		h.logger.Warn("Invalid run ID", "id", path, "error", err)
		h.writeError(w, http.StatusBadRequest, "Invalid run ID format")
		return
	}
	h.handleRead(w, r, runID)
}

func (h *RunsHandler) handleList(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			h.writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	runs, err := h.storage.ListRuns(r.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list runs", "error", err)
		h.writeError(w, http.StatusInternalServerError, "Failed to list runs")
		return
	}
	if runs == nil {
		runs = []*scenario.Record{}
	}

	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(RunListResponse{Runs: runs, Count: len(runs)}); err != nil {
		h.logger.Error("Failed to encode run list", "error", err)
	}
}

func (h *RunsHandler) handleRead(w http.ResponseWriter, r *http.Request, runID uuid.UUID) {
	rec, err := h.storage.LoadRun(r.Context(), runID)
	if err != nil {
		h.logger.Error("Failed to load run", "error", err, "run_id", runID.String())
		h.writeError(w, http.StatusInternalServerError, "Failed to retrieve run")
		return
	}
	if rec == nil {
		h.writeError(w, http.StatusNotFound, "Run not found")
		return
	}

	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(rec); err != nil {
		h.logger.Error("Failed to encode run", "error", err, "run_id", runID.String())
	}
}

func (h *RunsHandler) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var body RunRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.logger.Warn("Invalid JSON in run request", "error", err)
		h.writeError(w, http.StatusBadRequest, "Invalid JSON in request body")
		return
	}
	if err := body.Config.Validate(); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid scenario config: "+err.Error())
		return
	}

	req := queue.NewRunRequest(body.Config, body.Realtime)
	if err := h.queue.Enqueue(r.Context(), req); err != nil {
		h.logger.Error("Failed to enqueue run", "error", err, "scenario", body.Config.Name)
		h.writeError(w, http.StatusServiceUnavailable, "Failed to queue run")
		return
	}
	h.logger.Info("Run queued",
		"request_id", req.RequestID,
		"run_id", req.RunID.String(),
		"scenario", body.Config.Name)

	w.WriteHeader(http.StatusAccepted)
	if err := json.NewEncoder(w).Encode(RunAcceptedResponse{
		RequestID: req.RequestID,
		RunID:     req.RunID,
		Message:   "Run queued",
	}); err != nil {
		h.logger.Error("Failed to encode run response", "error", err)
	}
}

func (h *RunsHandler) writeError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(ErrorResponse{Error: msg}); err != nil {
		h.logger.Error("Failed to encode error response", "error", err)
	}
}
