package daemon

import (
	"sync"
	"time"

	"newsboy/internal/config"
	"newsboy/internal/pipeline"
	"newsboy/internal/store"
)

// Phase is the scheduler's position in its daily cycle.
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseArmed   Phase = "armed"
	PhaseRunning Phase = "running"
)

// Trigger is the local time of day the daily batch becomes due.
type Trigger struct {
	Hour     int
	Minute   int
	Location *time.Location
}

// TriggerFrom reads the trigger from the schedule section.
func TriggerFrom(cfg *config.Config) Trigger {
	return Trigger{
		Hour:     cfg.Schedule.TriggerHour,
		Minute:   cfg.Schedule.TriggerMinute,
		Location: cfg.Location(),
	}
}

func (t Trigger) location() *time.Location {
	if t.Location == nil {
		return time.Local
	}
	return t.Location
}

// On returns the trigger instant on day's local date.
func (t Trigger) On(day time.Time) time.Time {
	d := store.DayOf(day, t.location())
	return time.Date(d.Year(), d.Month(), d.Day(), t.Hour, t.Minute, 0, 0, t.location())
}

// Due reports whether the batch should fire at now. The guard is the date of
// the last successful batch, so a daemon started late still fires once.
func (t Trigger) Due(now time.Time, lastBatch *time.Time) bool {
	today := store.DayOf(now, t.location())
	if lastBatch != nil && !store.DayOf(*lastBatch, t.location()).Before(today) {
		return false
	}
	return !now.Before(t.On(today))
}

// Next returns when the batch will next fire, or now if it is already due.
func (t Trigger) Next(now time.Time, lastBatch *time.Time) time.Time {
	if t.Due(now, lastBatch) {
		return now
	}
	today := store.DayOf(now, t.location())
	if lastBatch != nil && !store.DayOf(*lastBatch, t.location()).Before(today) {
		return t.On(today.AddDate(0, 0, 1))
	}
	return t.On(today)
}

// Snapshot is a copy of State safe to hand out.
type Snapshot struct {
	Phase     Phase
	Operation pipeline.Operation
	LastBatch *time.Time
	LastRun   *store.Run
}

// State holds the scheduler's running flag and last-batch marker. Transitions
// are Idle to Armed when the trigger is due, Armed or Idle to Running when a
// run begins, and Running back to Idle when it ends.
type State struct {
	mu        sync.Mutex
	phase     Phase
	operation pipeline.Operation
	lastBatch *time.Time
	lastRun   *store.Run
}

// NewState returns an idle state with no marker.
func NewState() *State {
	return &State{phase: PhaseIdle}
}

// Restore seeds the marker from storage.
func (s *State) Restore(lastBatch *time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastBatch = copyTime(lastBatch)
}

// Arm records that the trigger is due. It fails while a run is in flight.
func (s *State) Arm() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseRunning {
		return false
	}
	s.phase = PhaseArmed
	return true
}

// Begin claims the running flag for op.
func (s *State) Begin(op pipeline.Operation) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseRunning {
		return false
	}
	s.phase = PhaseRunning
	s.operation = op
	return true
}

// Finish releases the running flag. A non-nil batchDay advances the marker;
// it never moves backwards.
func (s *State) Finish(run *store.Run, batchDay *time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = PhaseIdle
	s.operation = ""
	if run != nil {
		s.lastRun = run
	}
	if batchDay != nil && (s.lastBatch == nil || batchDay.After(*s.lastBatch)) {
		s.lastBatch = copyTime(batchDay)
	}
}

// LastBatch returns the marker, or nil before the first successful batch.
func (s *State) LastBatch() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyTime(s.lastBatch)
}

// Snapshot copies the current state.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Phase:     s.phase,
		Operation: s.operation,
		LastBatch: copyTime(s.lastBatch),
		LastRun:   s.lastRun,
	}
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
