package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/eligo/internal/common"
	"github.com/ternarybob/eligo/internal/jobs"
	"github.com/ternarybob/eligo/internal/models"
	"github.com/ternarybob/eligo/internal/services/analyzer"
	"github.com/ternarybob/eligo/internal/services/events"
)

type stubRunner struct {
	result *models.RunResult
}

func (r *stubRunner) Run(ctx context.Context, job *models.Job, log analyzer.LogSink) *models.RunResult {
	return r.result
}

type stubStorage struct {
	mu      sync.Mutex
	records []*models.RunRecord
}

func (s *stubStorage) SaveRun(ctx context.Context, record *models.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

func (s *stubStorage) GetRun(ctx context.Context, id string) (*models.RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, nil
}

func (s *stubStorage) ListRuns(ctx context.Context, limit int) ([]*models.RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.RunRecord(nil), s.records...), nil
}

type stubSessions struct{ ready bool }

func (s *stubSessions) ProfileExists() bool { return s.ready }

func newTestAPI(t *testing.T, runResult *models.RunResult) (*APIHandler, *stubStorage) {
	config := common.DefaultConfig()
	config.Analyzer.JobTimeout = ""
	logger := arbor.NewLogger()
	storage := &stubStorage{}
	scheduler := jobs.NewScheduler(config, &stubRunner{result: runResult}, events.NewService(logger), storage, logger)
	return NewAPIHandler(config, scheduler, storage, &stubSessions{ready: true}, logger), storage
}

func TestSubmitRunHandler(t *testing.T) {
	api, storage := newTestAPI(t, &models.RunResult{Winner: "winner_user", Qualified: []string{"winner_user"}})

	body := `{"post_url":"https://www.instagram.com/p/ABC/","competitors":["compA"]}`
	req := httptest.NewRequest(http.MethodPost, "/api/runs", strings.NewReader(body))
	rec := httptest.NewRecorder()

	api.SubmitRunHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var result models.RunResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "winner_user", result.Winner)
	assert.Len(t, storage.records, 1)
}

func TestSubmitRunHandlerInvalidBody(t *testing.T) {
	api, _ := newTestAPI(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/runs", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()

	api.SubmitRunHandler(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitRunHandlerFailedRun(t *testing.T) {
	api, _ := newTestAPI(t, models.ErrorResult("no valid commenters found"))

	body := `{"post_url":"https://www.instagram.com/p/ABC/","competitors":["compA"]}`
	req := httptest.NewRequest(http.MethodPost, "/api/runs", strings.NewReader(body))
	rec := httptest.NewRecorder()

	api.SubmitRunHandler(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var result models.RunResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Contains(t, result.Error, "no valid commenters")
}

func TestSubmitRunHandlerRejectsGet(t *testing.T) {
	api, _ := newTestAPI(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/runs", nil)
	rec := httptest.NewRecorder()

	api.SubmitRunHandler(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestListRunsHandler(t *testing.T) {
	api, storage := newTestAPI(t, nil)
	storage.records = []*models.RunRecord{
		{ID: "job_1", Status: models.JobStatusCompleted},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/runs?limit=10", nil)
	rec := httptest.NewRecorder()

	api.ListRunsHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var payload struct {
		Runs  []*models.RunRecord `json:"runs"`
		Count int                 `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, 1, payload.Count)
	assert.Equal(t, "job_1", payload.Runs[0].ID)
}

func TestStatusHandler(t *testing.T) {
	api, _ := newTestAPI(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rec := httptest.NewRecorder()

	api.StatusHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, "ONLINE", payload["status"])
	assert.Equal(t, true, payload["session_ready"])
	assert.Equal(t, false, payload["graph_available"])
	assert.Equal(t, false, payload["access_required"])
}

func TestVersionHandler(t *testing.T) {
	api, _ := newTestAPI(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/version", nil)
	rec := httptest.NewRecorder()

	api.VersionHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var payload map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.NotEmpty(t, payload["version"])
}
