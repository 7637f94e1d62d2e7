package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"newsboy/internal/services"
)

// ErrBusy reports that another run already holds the pipeline.
var ErrBusy = errors.New("a pipeline run is already in progress")

// Operation names a dispatchable pipeline operation.
type Operation string

const (
	OpRunFull              Operation = "run-full"
	OpRegenerateToday      Operation = "regenerate-today"
	OpBackfillIllustration Operation = "backfill-illustrations"
	OpGenerateBriefing     Operation = "generate-briefing"
	OpRegenerateBriefing   Operation = "regenerate-briefing"
)

const (
	stageIngest     = "ingest"
	stageScore      = "score"
	stageSchedule   = "schedule"
	stageReschedule = "reschedule"
	stageIllustrate = "illustrate"
	stageBriefing   = "briefing"
	stageRebrief    = "rebrief"
)

// dispatch maps each operation to its ordered stages.
var dispatch = map[Operation][]string{
	OpRunFull:              {stageIngest, stageScore, stageSchedule, stageIllustrate, stageBriefing},
	OpRegenerateToday:      {stageReschedule, stageIllustrate},
	OpBackfillIllustration: {stageIllustrate},
	OpGenerateBriefing:     {stageBriefing},
	OpRegenerateBriefing:   {stageRebrief},
}

var operationOrder = []Operation{
	OpRunFull,
	OpRegenerateToday,
	OpBackfillIllustration,
	OpGenerateBriefing,
	OpRegenerateBriefing,
}

// Operations lists every operation in display order.
func Operations() []Operation {
	out := make([]Operation, len(operationOrder))
	copy(out, operationOrder)
	return out
}

// Stages returns the stage names op runs.
func (op Operation) Stages() []string {
	stages := dispatch[op]
	out := make([]string, len(stages))
	copy(out, stages)
	return out
}

// ParseOperation validates a user-supplied operation name.
func ParseOperation(value string) (Operation, error) {
	op := Operation(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := dispatch[op]; ok {
		return op, nil
	}
	names := make([]string, 0, len(operationOrder))
	for _, known := range operationOrder {
		names = append(names, string(known))
	}
	return "", services.Wrap(services.ErrValidation, "pipeline", "parse operation",
		fmt.Sprintf("unknown operation %q (want one of %s)", value, strings.Join(names, ", ")), nil)
}
