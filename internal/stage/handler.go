package stage

import (
	"context"
	"log/slog"
	"time"
)

// Batch is the state one pipeline operation threads through its stages.
type Batch struct {
	RunID     string
	Operation string
	// Date is the local midnight the run targets.
	Date time.Time
	Now  time.Time

	Stats map[string]any
}

// Record stores a stat under key, creating the map on first use.
func (b *Batch) Record(key string, value any) {
	if b.Stats == nil {
		b.Stats = make(map[string]any)
	}
	b.Stats[key] = value
}

// Handler describes the contract the pipeline needs from each stage.
type Handler interface {
	Execute(context.Context, *Batch) error
	HealthCheck(context.Context) Health
}

// LoggerAware stages accept a run-scoped logger before they execute.
type LoggerAware interface {
	SetLogger(*slog.Logger)
}
