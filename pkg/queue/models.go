package queue

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/wintersim/muonio/pkg/scenario"
)

// RequestType identifies the type of request in the queue
type RequestType string

const (
	// RequestTypeRun asks a worker to run a scenario to completion
	RequestTypeRun RequestType = "run"
)

// Request is a queued scenario run. RunID is assigned at enqueue time so the
// caller can follow the run's events and read its record once it is stored.
type Request struct {
	RequestID  string          `json:"request_id"`
	Type       RequestType     `json:"type"`
	RunID      uuid.UUID       `json:"run_id"`
	Config     scenario.Config `json:"config"`
	Realtime   bool            `json:"realtime,omitempty"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// NewRunRequest creates a run request for cfg with fresh IDs.
func NewRunRequest(cfg scenario.Config, realtime bool) *Request {
	return &Request{
		RequestID:  uuid.New().String(),
		Type:       RequestTypeRun,
		RunID:      uuid.New(),
		Config:     cfg,
		Realtime:   realtime,
		EnqueuedAt: time.Now().UTC(),
	}
}

// ToJSON converts the request to JSON bytes for Redis
func (r *Request) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

// FromJSON parses a request from JSON bytes
func FromJSON(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, err
	}
	return &req, nil
}
