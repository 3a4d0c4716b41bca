package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/serenmind/sentinel/pkg/config"
	"github.com/serenmind/sentinel/pkg/service"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg, err := config.Load(t.TempDir())
	require.NoError(t, err)

	svc, err := service.New(cfg, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })

	return New(cfg, testLogger(), svc)
}

func postJSON(t *testing.T, srv *Server, path string, payload map[string]interface{}) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := srv.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func TestValidateEndpoint(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name      string
		payload   map[string]interface{}
		wantLevel string
	}{
		{
			name: "safe content",
			payload: map[string]interface{}{
				"session_id": "sess-1",
				"role":       "user",
				"content":    "I had a great day",
			},
			wantLevel: "safe",
		},
		{
			name: "distress content warns",
			payload: map[string]interface{}{
				"session_id": "sess-1",
				"role":       "user",
				"content":    "everything feels hopeless",
			},
			wantLevel: "warning",
		},
		{
			name: "self harm content blocks",
			payload: map[string]interface{}{
				"session_id": "sess-2",
				"role":       "user",
				"content":    "I want to end it all",
			},
			wantLevel: "blocked",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, srv, "/v1/validate", tt.payload)
			require.Equal(t, http.StatusOK, resp.StatusCode)

			var body struct {
				Result struct {
					Level          int    `json:"level"`
					RuleSetVersion string `json:"rule_set_version"`
					Findings       []struct {
						RuleID string `json:"rule_id"`
					} `json:"findings"`
				} `json:"result"`
			}
			decode(t, resp, &body)

			levels := map[string]int{"safe": 0, "warning": 1, "blocked": 2}
			assert.Equal(t, levels[tt.wantLevel], body.Result.Level)
			assert.Equal(t, "bundled-v1", body.Result.RuleSetVersion)
		})
	}
}

func TestValidateEndpoint_WithAssessment(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv, "/v1/validate", map[string]interface{}{
		"session_id": "sess-3",
		"role":       "user",
		"content":    "I want to end it all",
		"assess":     true,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Assessment *struct {
			Type  string `json:"type"`
			Level int    `json:"level"`
		} `json:"assessment"`
	}
	decode(t, resp, &body)

	require.NotNil(t, body.Assessment)
	assert.Equal(t, "self_harm", body.Assessment.Type)
	assert.NotZero(t, body.Assessment.Level)
}

func TestValidateEndpoint_BadRequests(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name    string
		payload map[string]interface{}
	}{
		{
			name:    "missing session id",
			payload: map[string]interface{}{"content": "hello"},
		},
		{
			name:    "missing content",
			payload: map[string]interface{}{"session_id": "sess-1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, srv, "/v1/validate", tt.payload)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			resp.Body.Close()
		})
	}
}

func TestAssessEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv, "/v1/assess", map[string]interface{}{
		"content": "he hits me when he drinks",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Type   string `json:"type"`
		Source string `json:"source"`
	}
	decode(t, resp, &body)
	assert.Equal(t, "abuse_disclosure", body.Type)
	assert.Equal(t, "heuristic", body.Source)
}

func TestAssessEndpoint_RequiresContent(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv, "/v1/assess", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	resp, err := srv.app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Status            string `json:"status"`
		RuleSetVersion    string `json:"rule_set_version"`
		RuleStoreDegraded bool   `json:"rule_store_degraded"`
	}
	decode(t, resp, &body)
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "bundled-v1", body.RuleSetVersion)
	assert.False(t, body.RuleStoreDegraded)
}

func TestMetricsSnapshotEndpoint(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/metrics", nil)
	resp, err := srv.app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		RuleSetVersion  string `json:"rule_set_version"`
		RuleCount       int    `json:"rule_count"`
		ProtocolVersion string `json:"protocol_version"`
	}
	decode(t, resp, &body)
	assert.Equal(t, "bundled-v1", body.RuleSetVersion)
	assert.NotZero(t, body.RuleCount)
	assert.Equal(t, "protocol-v1", body.ProtocolVersion)
}

func TestPrometheusEndpoint(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp, err := srv.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	payload, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(payload), "sentinel_")
}
