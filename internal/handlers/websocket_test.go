package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/eligo/internal/common"
	"github.com/ternarybob/eligo/internal/jobs"
	"github.com/ternarybob/eligo/internal/models"
	"github.com/ternarybob/eligo/internal/services/analyzer"
	"github.com/ternarybob/eligo/internal/services/events"
)

type runnerFunc func(ctx context.Context, job *models.Job, log analyzer.LogSink) *models.RunResult

func (f runnerFunc) Run(ctx context.Context, job *models.Job, log analyzer.LogSink) *models.RunResult {
	return f(ctx, job, log)
}

// dialTestHandler serves the handler over a real websocket and returns a
// connected client.
func dialTestHandler(t *testing.T, h *WebSocketHandler) *websocket.Conn {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(h.HandleWebSocket))
	t.Cleanup(server.Close)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readFrame reads until a frame of the wanted type arrives, skipping status
// and log traffic in between.
func readFrame(t *testing.T, conn *websocket.Conn, want string) WSMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var msg WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("no %q frame received: %v", want, err)
		}
		if msg.Type == want {
			return msg
		}
	}
}

func newWSTestHandler(t *testing.T, config *common.Config, runner jobs.Runner) *WebSocketHandler {
	config.Analyzer.JobTimeout = ""
	logger := arbor.NewLogger()
	bus := events.NewService(logger)
	scheduler := jobs.NewScheduler(config, runner, bus, nil, logger)
	return NewWebSocketHandler(config, scheduler, bus, logger)
}

func TestStartWithBadAccessCodeGetsResultFrame(t *testing.T) {
	config := common.DefaultConfig()
	config.Access.Code = "secret"
	h := newWSTestHandler(t, config, runnerFunc(func(ctx context.Context, job *models.Job, log analyzer.LogSink) *models.RunResult {
		t.Fatal("runner must not be invoked without access")
		return nil
	}))

	conn := dialTestHandler(t, h)
	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"action":      "start",
		"post_url":    "https://www.instagram.com/p/ABC/",
		"competitors": []string{"compA"},
		"access_code": "wrong",
	}))

	frame := readFrame(t, conn, "result")
	payload, err := json.Marshal(frame.Payload)
	require.NoError(t, err)
	assert.Contains(t, string(payload), "invalid access code")
}

func TestStartWhenBusyGetsResultFrame(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})

	config := common.DefaultConfig()
	config.Scheduler.MaxConcurrent = 1
	h := newWSTestHandler(t, config, runnerFunc(func(ctx context.Context, job *models.Job, log analyzer.LogSink) *models.RunResult {
		close(started)
		<-release
		return &models.RunResult{Winner: "w"}
	}))
	defer close(release)

	conn := dialTestHandler(t, h)
	start := map[string]interface{}{
		"action":      "start",
		"post_url":    "https://www.instagram.com/p/ABC/",
		"competitors": []string{"compA"},
	}
	require.NoError(t, conn.WriteJSON(start))
	<-started

	require.NoError(t, conn.WriteJSON(start))

	frame := readFrame(t, conn, "result")
	payload, err := json.Marshal(frame.Payload)
	require.NoError(t, err)
	assert.Contains(t, string(payload), "Server busy")
}

func TestStartStreamsTerminalResult(t *testing.T) {
	config := common.DefaultConfig()
	h := newWSTestHandler(t, config, runnerFunc(func(ctx context.Context, job *models.Job, log analyzer.LogSink) *models.RunResult {
		log("checking candidates")
		return &models.RunResult{Winner: "winner_user", Qualified: []string{"winner_user"}}
	}))

	conn := dialTestHandler(t, h)
	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"action":      "start",
		"post_url":    "https://www.instagram.com/p/ABC/",
		"competitors": []string{"compA"},
	}))

	logFrame := readFrame(t, conn, "log")
	logPayload, err := json.Marshal(logFrame.Payload)
	require.NoError(t, err)
	assert.Contains(t, string(logPayload), "checking candidates")

	frame := readFrame(t, conn, "result")
	payload, err := json.Marshal(frame.Payload)
	require.NoError(t, err)
	assert.Contains(t, string(payload), "winner_user")
}

func TestVerifyAccessAction(t *testing.T) {
	config := common.DefaultConfig()
	config.Access.Code = "secret"
	h := newWSTestHandler(t, config, runnerFunc(func(ctx context.Context, job *models.Job, log analyzer.LogSink) *models.RunResult {
		return nil
	}))

	conn := dialTestHandler(t, h)
	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"action":      "verify_access",
		"access_code": "secret",
	}))

	frame := readFrame(t, conn, "access")
	payload, err := json.Marshal(frame.Payload)
	require.NoError(t, err)
	assert.Contains(t, string(payload), `"granted":true`)
}
