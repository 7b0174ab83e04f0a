// Package events defines the run lifecycle events published on the bus.
package events

import (
	"time"

	"canvasflow/internal/domain"
)

type RunStarted struct {
	BlockID  string
	Language string
}

type RunFinished struct {
	BlockID  string
	Status   domain.RunStatus
	Outputs  int
	Err      error
	Duration time.Duration
}

type ExecutorSpawned struct {
	BlockID string
	Command string
}

type FormatFinished struct {
	BlockID string
	Err     error
}
