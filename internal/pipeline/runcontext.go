package pipeline

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RunContext carries the identity and bookkeeping of one command run. It
// is created per run and passed explicitly; nothing about a run lives in
// package state.
type RunContext struct {
	ID      string
	Command string
	Started time.Time

	mu       sync.Mutex
	stages   []stageTiming
	counters map[string]int
	flushed  bool
}

type stageTiming struct {
	name string
	dur  time.Duration
}

// NewRunContext starts a run of command with a fresh random id.
func NewRunContext(command string) *RunContext {
	return &RunContext{
		ID:       uuid.NewString(),
		Command:  command,
		Started:  time.Now(),
		counters: make(map[string]int),
	}
}

// Stage starts timing the named stage; call the returned func when it ends.
// Stages may overlap.
func (r *RunContext) Stage(name string) func() {
	start := time.Now()
	return func() {
		r.mu.Lock()
		r.stages = append(r.stages, stageTiming{name: name, dur: time.Since(start)})
		r.mu.Unlock()
	}
}

// Add increments a counter.
func (r *RunContext) Add(counter string, n int) {
	r.mu.Lock()
	r.counters[counter] += n
	r.mu.Unlock()
}

// Counter returns the current value of a counter.
func (r *RunContext) Counter(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters[name]
}

// Flush writes the run's single summary log line. err is the run outcome.
// Only the first call logs.
func (r *RunContext) Flush(log *slog.Logger, err error) {
	r.mu.Lock()
	if r.flushed {
		r.mu.Unlock()
		return
	}
	r.flushed = true

	stages := make([]any, 0, len(r.stages))
	for _, s := range r.stages {
		stages = append(stages, slog.Duration(s.name, s.dur))
	}
	names := make([]string, 0, len(r.counters))
	for name := range r.counters {
		names = append(names, name)
	}
	sort.Strings(names)
	counters := make([]any, 0, len(names))
	for _, name := range names {
		counters = append(counters, slog.Int(name, r.counters[name]))
	}
	r.mu.Unlock()

	attrs := []any{
		"run_id", r.ID,
		"command", r.Command,
		"duration", time.Since(r.Started),
		slog.Group("stages", stages...),
		slog.Group("counters", counters...),
	}
	if err != nil {
		log.Error("run failed", append(attrs, "error", err)...)
		return
	}
	log.Info("run complete", attrs...)
}
