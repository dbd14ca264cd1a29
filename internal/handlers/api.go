package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/eligo/internal/common"
	"github.com/ternarybob/eligo/internal/interfaces"
	"github.com/ternarybob/eligo/internal/jobs"
	"github.com/ternarybob/eligo/internal/models"
)

// SessionChecker reports whether an authenticated browser profile exists.
type SessionChecker interface {
	ProfileExists() bool
}

// APIHandler serves the REST surface: run submission, run history, server
// status and version.
type APIHandler struct {
	config    *common.Config
	scheduler *jobs.Scheduler
	storage   interfaces.RunStorage
	sessions  SessionChecker
	logger    arbor.ILogger
}

// NewAPIHandler creates the REST handler
func NewAPIHandler(config *common.Config, scheduler *jobs.Scheduler, storage interfaces.RunStorage, sessions SessionChecker, logger arbor.ILogger) *APIHandler {
	return &APIHandler{
		config:    config,
		scheduler: scheduler,
		storage:   storage,
		sessions:  sessions,
		logger:    logger,
	}
}

// SubmitRunHandler admits a run and blocks until it terminates. Interactive
// clients stream progress over the websocket instead; this endpoint suits
// scripted callers that just want the final result.
func (h *APIHandler) SubmitRunHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req models.RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result := h.scheduler.Submit(r.Context(), &req)

	status := http.StatusOK
	if result.Failed() {
		status = http.StatusUnprocessableEntity
	}
	WriteJSON(w, status, result)
}

// ListRunsHandler returns recent run history, newest first.
func (h *APIHandler) ListRunsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}

	records, err := h.storage.ListRuns(r.Context(), limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list runs")
		WriteError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if records == nil {
		records = []*models.RunRecord{}
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  records,
		"count": len(records),
	})
}

// GetRunHandler returns one run record by ID.
func (h *APIHandler) GetRunHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	id := r.PathValue("id")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "missing run id")
		return
	}

	record, err := h.storage.GetRun(r.Context(), id)
	if err != nil {
		h.logger.Error().Err(err).Str("run_id", id).Msg("Failed to get run")
		WriteError(w, http.StatusInternalServerError, "failed to get run")
		return
	}
	if record == nil {
		WriteError(w, http.StatusNotFound, "run not found")
		return
	}

	WriteJSON(w, http.StatusOK, record)
}

// StatusHandler reports scheduler stats and authentication readiness.
func (h *APIHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	stats := h.scheduler.Snapshot()

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":          "ONLINE",
		"scheduler":       stats,
		"graph_available": h.config.Graph.AccessToken != "",
		"session_ready":   h.sessions.ProfileExists(),
		"access_required": h.config.Access.Code != "",
	})
}

// VersionHandler returns build information.
func (h *APIHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"version": common.Version,
		"build":   common.Build,
		"commit":  common.GitCommit,
	})
}
