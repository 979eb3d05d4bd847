package entity

import (
	"time"

	"github.com/google/uuid"
)

// BatchRun represents one processing attempt of a batch for data transfer between layers.
type BatchRun struct {
	ID           uuid.UUID  `json:"id"`
	CycleID      string     `json:"cycle_id"`
	BatchName    string     `json:"batch_name"`
	BatchPath    string     `json:"batch_path"`
	Status       string     `json:"status"`
	ErrorMessage *string    `json:"error_message,omitempty"`
	PageCount    int        `json:"page_count"`
	Attempts     int        `json:"attempts"` // repeated identical skips collapse into one run
	OutputPath   *string    `json:"output_path,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

// Duration is zero until the run has finished.
func (r BatchRun) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
