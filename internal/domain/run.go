package domain

import (
	"time"

	"canvasflow/internal/value"
)

// RunStatus is the coordinator state of one code block.
type RunStatus string

const (
	RunStatusEmpty      RunStatus = "EMPTY"
	RunStatusRunning    RunStatus = "RUNNING"
	RunStatusFormatting RunStatus = "FORMATTING"
	RunStatusSuccess    RunStatus = "SUCCESS"
	RunStatusError      RunStatus = "ERROR"
)

// Busy reports whether a run or format is in flight.
func (s RunStatus) Busy() bool {
	return s == RunStatusRunning || s == RunStatusFormatting
}

// Result is one entry of the session result store.
type Result struct {
	Key      string    `json:"key"`
	BlockID  string    `json:"blockId"`
	Value    value.Obj `json:"value"`
	StoredAt time.Time `json:"storedAt"`
}

type ResultStore interface {
	PutResult(r *Result) error
	GetResult(key string) (*Result, error)
	ListResults(blockID string) ([]Result, error)
	ClearBlock(blockID string) error
	ClearAll() error
}

// Schedule re-runs a code block on a cron expression.
type Schedule struct {
	ID        string    `json:"id"`
	BlockID   string    `json:"blockId"`
	Cron      string    `json:"cron"`
	Enabled   bool      `json:"enabled"`
	LastRunAt string    `json:"lastRunAt"`
	CreatedAt time.Time `json:"createdAt"`
}

type ScheduleStore interface {
	CreateSchedule(s *Schedule) error
	ListEnabledSchedules() ([]Schedule, error)
	ListSchedulesByBlock(blockID string) ([]Schedule, error)
	UpdateSchedule(s *Schedule) error
	DeleteSchedule(id string) error
	DeleteSchedulesByBlock(blockID string) error
}
