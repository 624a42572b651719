package scenario

import (
	"time"

	"github.com/google/uuid"
	"github.com/wintersim/muonio/pkg/atomic"
)

// Record is the persisted summary of one scenario run.
type Record struct {
	ID         uuid.UUID              `json:"id"`
	Scenario   string                 `json:"scenario"`
	Type       string                 `json:"type"`
	Town       string                 `json:"town,omitempty"`
	Backend    string                 `json:"backend,omitempty"`
	Verdict    Verdict                `json:"verdict"`
	Criteria   []atomic.Result        `json:"criteria,omitempty"`
	Ticks      int                    `json:"ticks"`
	SimSeconds float64                `json:"sim_seconds"`
	Params     map[string]interface{} `json:"params,omitempty"`
	Error      string                 `json:"error,omitempty"`
	StartedAt  time.Time              `json:"started_at"`
	FinishedAt time.Time              `json:"finished_at"`
}

// NewRecord starts a record for cfg with a fresh ID.
func NewRecord(cfg *Config) *Record {
	return &Record{
		ID:        uuid.New(),
		Scenario:  cfg.Name,
		Type:      cfg.Type,
		Town:      cfg.Town,
		StartedAt: time.Now().UTC(),
	}
}

// Duration is the wall-clock length of the run.
func (r *Record) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
