package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/wintersim/muonio/pkg/sim"
)

// EventType represents the type of event being broadcast
type EventType string

const (
	EventTypeScenarioStarted   EventType = "scenario.started"
	EventTypeScenarioCompleted EventType = "scenario.completed"
	EventTypeScenarioFailed    EventType = "scenario.failed"
	EventTypeWeatherUpdated    EventType = "control.weather_updated"
)

// ControlChannel carries events from the interactive control loop.
const ControlChannel = "control-events"

// ScenarioChannel is the channel a scenario run publishes on.
func ScenarioChannel(runID uuid.UUID) string {
	return fmt.Sprintf("scenario-events:%s", runID.String())
}

// Event represents a generic event structure
type Event struct {
	Type  EventType              `json:"type"`
	RunID string                 `json:"run_id,omitempty"`
	Data  map[string]interface{} `json:"data,omitempty"`
}

// Publisher is what the runner and the control loop publish through.
type Publisher interface {
	PublishScenarioStarted(ctx context.Context, runID uuid.UUID, name, scenarioType string) error
	PublishScenarioCompleted(ctx context.Context, runID uuid.UUID, verdict string, ticks int, simSeconds float64) error
	PublishScenarioFailed(ctx context.Context, runID uuid.UUID, errorMsg string) error
	PublishWeatherUpdated(ctx context.Context, w sim.Weather) error
}

// Broadcaster publishes events to Redis Pub/Sub for SSE distribution
type Broadcaster struct {
	redisClient *redis.Client
	logger      *slog.Logger
}

var _ Publisher = (*Broadcaster)(nil)

// NewBroadcaster creates a new event broadcaster
func NewBroadcaster(redisClient *redis.Client, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		redisClient: redisClient,
		logger:      logger,
	}
}

// PublishScenarioStarted publishes a scenario.started event
func (b *Broadcaster) PublishScenarioStarted(ctx context.Context, runID uuid.UUID, name, scenarioType string) error {
	return b.publish(ctx, ScenarioChannel(runID), scenarioStarted(runID, name, scenarioType))
}

// PublishScenarioCompleted publishes a scenario.completed event
func (b *Broadcaster) PublishScenarioCompleted(ctx context.Context, runID uuid.UUID, verdict string, ticks int, simSeconds float64) error {
	return b.publish(ctx, ScenarioChannel(runID), scenarioCompleted(runID, verdict, ticks, simSeconds))
}

// PublishScenarioFailed publishes a scenario.failed event
func (b *Broadcaster) PublishScenarioFailed(ctx context.Context, runID uuid.UUID, errorMsg string) error {
	return b.publish(ctx, ScenarioChannel(runID), scenarioFailed(runID, errorMsg))
}

// PublishWeatherUpdated publishes a control.weather_updated event
func (b *Broadcaster) PublishWeatherUpdated(ctx context.Context, w sim.Weather) error {
	return b.publish(ctx, ControlChannel, weatherUpdated(w))
}

func (b *Broadcaster) publish(ctx context.Context, channel string, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		b.logger.Error("Failed to marshal event", "error", err, "event_type", event.Type)
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := b.redisClient.Publish(ctx, channel, data).Err(); err != nil {
		b.logger.Error("Failed to publish event", "error", err, "channel", channel)
		return fmt.Errorf("failed to publish event: %w", err)
	}

	b.logger.Debug("Event published",
		"channel", channel,
		"event_type", event.Type,
		"run_id", event.RunID,
	)
	return nil
}

func scenarioStarted(runID uuid.UUID, name, scenarioType string) Event {
	return Event{
		Type:  EventTypeScenarioStarted,
		RunID: runID.String(),
		Data: map[string]interface{}{
			"status":   "running",
			"scenario": name,
			"type":     scenarioType,
		},
	}
}

func scenarioCompleted(runID uuid.UUID, verdict string, ticks int, simSeconds float64) Event {
	return Event{
		Type:  EventTypeScenarioCompleted,
		RunID: runID.String(),
		Data: map[string]interface{}{
			"status":      "completed",
			"verdict":     verdict,
			"ticks":       ticks,
			"sim_seconds": simSeconds,
		},
	}
}

func scenarioFailed(runID uuid.UUID, errorMsg string) Event {
	return Event{
		Type:  EventTypeScenarioFailed,
		RunID: runID.String(),
		Data: map[string]interface{}{
			"status": "failed",
			"error":  errorMsg,
		},
	}
}

func weatherUpdated(w sim.Weather) Event {
	return Event{
		Type: EventTypeWeatherUpdated,
		Data: map[string]interface{}{
			"weather": w,
		},
	}
}

// Nop drops every event. Used when no Redis is configured.
type Nop struct{}

var _ Publisher = Nop{}

func (Nop) PublishScenarioStarted(context.Context, uuid.UUID, string, string) error { return nil }
func (Nop) PublishScenarioCompleted(context.Context, uuid.UUID, string, int, float64) error {
	return nil
}
func (Nop) PublishScenarioFailed(context.Context, uuid.UUID, string) error { return nil }
func (Nop) PublishWeatherUpdated(context.Context, sim.Weather) error       { return nil }

// MockPublisher records events in memory for tests.
type MockPublisher struct {
	mu     sync.Mutex
	events []Event
	err    error
}

var _ Publisher = (*MockPublisher)(nil)

// SetError makes every publish fail with err.
func (m *MockPublisher) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Events returns a copy of everything published so far.
func (m *MockPublisher) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

func (m *MockPublisher) record(e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, e)
	return nil
}

func (m *MockPublisher) PublishScenarioStarted(_ context.Context, runID uuid.UUID, name, scenarioType string) error {
	return m.record(scenarioStarted(runID, name, scenarioType))
}

func (m *MockPublisher) PublishScenarioCompleted(_ context.Context, runID uuid.UUID, verdict string, ticks int, simSeconds float64) error {
	return m.record(scenarioCompleted(runID, verdict, ticks, simSeconds))
}

func (m *MockPublisher) PublishScenarioFailed(_ context.Context, runID uuid.UUID, errorMsg string) error {
	return m.record(scenarioFailed(runID, errorMsg))
}

func (m *MockPublisher) PublishWeatherUpdated(_ context.Context, w sim.Weather) error {
	return m.record(weatherUpdated(w))
}
