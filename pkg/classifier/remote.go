package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/serenmind/sentinel/pkg/domain/crisis"
	"github.com/serenmind/sentinel/pkg/domain/safety"
)

// Remote calls the external crisis-classification service. Every call runs
// under the configured deadline and behind a circuit breaker so a slow or
// failing dependency cannot hold the synchronous validation path hostage.
type Remote struct {
	endpoint string
	apiKey   string
	timeout  time.Duration
	client   *http.Client
	breaker  *gobreaker.CircuitBreaker
}

type RemoteConfig struct {
	Endpoint    string
	APIKey      string
	Timeout     time.Duration
	MaxFailures uint32
}

type remoteRequest struct {
	Content string                `json:"content"`
	History []crisis.HistoryEntry `json:"history,omitempty"`
}

type remoteResponse struct {
	Type       string        `json:"type"`
	Level      string        `json:"level"`
	Confidence float64       `json:"confidence"`
	Evidence   []safety.Span `json:"evidence,omitempty"`
}

func NewRemote(cfg RemoteConfig, client *http.Client) *Remote {
	if client == nil {
		client = &http.Client{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 200 * time.Millisecond
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 3
	}
	settings := gobreaker.Settings{
		Name:        "crisis_classifier",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
	}
	return &Remote{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		timeout:  cfg.Timeout,
		client:   client,
		breaker:  gobreaker.NewCircuitBreaker(settings),
	}
}

func (r *Remote) Assess(ctx context.Context, content string, history []crisis.HistoryEntry) (crisis.Assessment, error) {
	result, err := r.breaker.Execute(func() (interface{}, error) {
		return r.call(ctx, content, history)
	})
	if err != nil {
		return crisis.Assessment{}, fmt.Errorf("breaker (crisis_classifier): %w", err)
	}
	assessment, ok := result.(crisis.Assessment)
	if !ok {
		return crisis.Assessment{}, fmt.Errorf("unexpected classifier result type %T", result)
	}
	return assessment, nil
}

func (r *Remote) call(ctx context.Context, content string, history []crisis.HistoryEntry) (crisis.Assessment, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	body, err := json.Marshal(remoteRequest{Content: content, History: history})
	if err != nil {
		return crisis.Assessment{}, fmt.Errorf("failed to marshal classifier request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return crisis.Assessment{}, fmt.Errorf("failed to create classifier request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return crisis.Assessment{}, fmt.Errorf("classifier request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(resp.Body)
		return crisis.Assessment{}, fmt.Errorf("classifier returned status %d: %s", resp.StatusCode, string(payload))
	}

	var out remoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return crisis.Assessment{}, fmt.Errorf("failed to decode classifier response: %w", err)
	}

	return crisis.Assessment{
		Type:       crisis.Type(out.Type),
		Level:      parseLevel(out.Level),
		Confidence: out.Confidence,
		Evidence:   out.Evidence,
		Source:     crisis.SourceRemote,
		AssessedAt: time.Now(),
	}, nil
}

func parseLevel(s string) crisis.Level {
	switch s {
	case "none":
		return crisis.LevelNone
	case "low":
		return crisis.LevelLow
	case "moderate":
		return crisis.LevelModerate
	case "high":
		return crisis.LevelHigh
	case "critical":
		return crisis.LevelCritical
	default:
		// An unknown level from the remote service is treated as high so a
		// contract drift can only over-detect.
		return crisis.LevelHigh
	}
}
