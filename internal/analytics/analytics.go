package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/winfeed/backend/internal/config"
	"github.com/winfeed/backend/internal/logging"
)

// Event is a domain audit event shipped to the analytics collector.
type Event struct {
	Name       string         `json:"name"`
	UserID     string         `json:"user_id,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Emitter ships events to an external collector, fire-and-forget. Delivery
// failure never propagates to the caller; the breaker stops us hammering a
// collector that is down.
type Emitter struct {
	endpoint string
	client   *http.Client
	breaker  *gobreaker.CircuitBreaker
}

// NewEmitter creates an emitter. With an empty endpoint events are logged
// locally and never shipped.
func NewEmitter(cfg *config.AnalyticsConfig) *Emitter {
	settings := gobreaker.Settings{
		Name:        "analytics-collector",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger := logging.NewLogger("analytics")
			logger.Warn().
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Analytics breaker state changed")
		},
	}

	return &Emitter{
		endpoint: cfg.Endpoint,
		client:   &http.Client{Timeout: 5 * time.Second},
		breaker:  gobreaker.NewCircuitBreaker(settings),
	}
}

// Emit records an event asynchronously. Safe to call on a nil emitter.
func (e *Emitter) Emit(name, userID string, properties map[string]any) {
	if e == nil {
		return
	}

	event := Event{
		Name:       name,
		UserID:     userID,
		Properties: properties,
		Timestamp:  time.Now().UTC(),
	}

	go e.deliver(event)
}

func (e *Emitter) deliver(event Event) {
	logger := logging.NewLogger("analytics")

	if e.endpoint == "" {
		logger.Info().
			Str("event", event.Name).
			Str("user_id", event.UserID).
			Interface("properties", event.Properties).
			Msg("Analytics event")
		return
	}

	_, err := e.breaker.Execute(func() (any, error) {
		body, err := json.Marshal(event)
		if err != nil {
			return nil, err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := e.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("collector returned status %d", resp.StatusCode)
		}
		return nil, nil
	})
	if err != nil {
		logger.Debug().
			Err(err).
			Str("event", event.Name).
			Msg("Failed to deliver analytics event")
	}
}
