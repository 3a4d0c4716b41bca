package classifier

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/serenmind/sentinel/pkg/domain/crisis"
	"github.com/serenmind/sentinel/pkg/domain/safety"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestHeuristic_Assess(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		wantType  crisis.Type
		wantLevel crisis.Level
	}{
		{
			name:      "no signal",
			content:   "I had a great day",
			wantType:  crisis.TypeNone,
			wantLevel: crisis.LevelNone,
		},
		{
			name:      "direct self harm intent",
			content:   "I want to end it all",
			wantType:  crisis.TypeSelfHarm,
			wantLevel: crisis.LevelHigh,
		},
		{
			name:      "explicit self harm is critical",
			content:   "I am going to kill myself",
			wantType:  crisis.TypeSelfHarm,
			wantLevel: crisis.LevelCritical,
		},
		{
			name:      "abuse disclosure",
			content:   "he hits me when he drinks",
			wantType:  crisis.TypeAbuseDisclosure,
			wantLevel: crisis.LevelHigh,
		},
		{
			name:      "severe distress",
			content:   "I can't take this anymore, nobody would care",
			wantType:  crisis.TypeSevereDistress,
			wantLevel: crisis.LevelModerate,
		},
		{
			name:      "mild distress",
			content:   "I had a panic attack at work",
			wantType:  crisis.TypeSevereDistress,
			wantLevel: crisis.LevelLow,
		},
	}

	h := NewHeuristic()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := h.Assess(context.Background(), tt.content, nil)
			assert.Equal(t, tt.wantType, got.Type)
			assert.Equal(t, tt.wantLevel, got.Level)
			assert.Equal(t, crisis.SourceHeuristic, got.Source)
			if tt.wantLevel > crisis.LevelNone {
				assert.NotEmpty(t, got.Evidence)
				assert.Greater(t, got.Confidence, 0.0)
			}
		})
	}
}

func TestHeuristic_MultipleSignalsAccumulateConfidence(t *testing.T) {
	h := NewHeuristic()

	single := h.Assess(context.Background(), "I want to end it all", nil)
	double := h.Assess(context.Background(), "I want to end it all, there is no reason to go on", nil)

	assert.Greater(t, double.Confidence, single.Confidence)
	assert.Len(t, double.Evidence, 2)
}

func TestHeuristic_HistoryCorroborationRaisesLevel(t *testing.T) {
	h := NewHeuristic()
	content := "no reason to keep going"

	cold := h.Assess(context.Background(), content, nil)
	require.Equal(t, crisis.LevelModerate, cold.Level)

	history := []crisis.HistoryEntry{
		{Role: safety.RoleUser, Content: "I feel suicidal sometimes", At: time.Now()},
		{Role: safety.RoleAgent, Content: "thank you for telling me", At: time.Now()},
	}
	warm := h.Assess(context.Background(), content, history)
	assert.Equal(t, crisis.LevelHigh, warm.Level)
	assert.Greater(t, warm.Confidence, cold.Confidence)
}

func TestHeuristic_AgentHistoryDoesNotCorroborate(t *testing.T) {
	h := NewHeuristic()
	history := []crisis.HistoryEntry{
		{Role: safety.RoleAgent, Content: "some people feel suicidal under stress", At: time.Now()},
	}

	got := h.Assess(context.Background(), "no reason to keep going", history)
	assert.Equal(t, crisis.LevelModerate, got.Level)
}

func TestRemote_Assess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req remoteRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "I want to end it all", req.Content)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		json.NewEncoder(w).Encode(remoteResponse{
			Type:       "self_harm",
			Level:      "critical",
			Confidence: 0.95,
		})
	}))
	defer server.Close()

	remote := NewRemote(RemoteConfig{
		Endpoint: server.URL,
		APIKey:   "test-key",
		Timeout:  time.Second,
	}, server.Client())

	got, err := remote.Assess(context.Background(), "I want to end it all", nil)
	require.NoError(t, err)
	assert.Equal(t, crisis.TypeSelfHarm, got.Type)
	assert.Equal(t, crisis.LevelCritical, got.Level)
	assert.Equal(t, 0.95, got.Confidence)
	assert.Equal(t, crisis.SourceRemote, got.Source)
}

func TestRemote_Assess_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	remote := NewRemote(RemoteConfig{Endpoint: server.URL, Timeout: time.Second}, server.Client())
	_, err := remote.Assess(context.Background(), "anything", nil)
	assert.Error(t, err)
}

func TestRemote_Assess_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	remote := NewRemote(RemoteConfig{
		Endpoint:    server.URL,
		Timeout:     time.Second,
		MaxFailures: 2,
	}, server.Client())

	for i := 0; i < 5; i++ {
		_, err := remote.Assess(context.Background(), "anything", nil)
		assert.Error(t, err)
	}
	// After the breaker opens, calls stop reaching the backend.
	assert.Equal(t, 2, calls)
}

func TestRemote_UnknownLevelOverDetects(t *testing.T) {
	assert.Equal(t, crisis.LevelHigh, parseLevel("brand-new-level"))
	assert.Equal(t, crisis.LevelNone, parseLevel("none"))
}

func TestHybrid_FallsBackToHeuristic(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	remote := NewRemote(RemoteConfig{Endpoint: server.URL, Timeout: time.Second}, server.Client())
	hybrid := NewHybrid(remote, NewHeuristic(), testLogger())

	got := hybrid.Assess(context.Background(), "I want to end it all", nil)
	assert.Equal(t, crisis.TypeSelfHarm, got.Type)
	assert.GreaterOrEqual(t, got.Level, crisis.LevelHigh)
	assert.Equal(t, crisis.SourceHeuristic, got.Source)
}

func TestHybrid_MoreSevereWins(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(remoteResponse{
			Type:       "severe_distress",
			Level:      "low",
			Confidence: 0.99,
		})
	}))
	defer server.Close()

	remote := NewRemote(RemoteConfig{Endpoint: server.URL, Timeout: time.Second}, server.Client())
	hybrid := NewHybrid(remote, NewHeuristic(), testLogger())

	// The heuristic sees a high-severity signal the remote service missed;
	// the merged assessment must not be less sensitive than the heuristic.
	got := hybrid.Assess(context.Background(), "I want to end it all", nil)
	assert.GreaterOrEqual(t, got.Level, crisis.LevelHigh)
}

func TestHybrid_NoRemoteConfigured(t *testing.T) {
	hybrid := NewHybrid(nil, NewHeuristic(), testLogger())
	got := hybrid.Assess(context.Background(), "I had a great day", nil)
	assert.False(t, got.Detected())
}
