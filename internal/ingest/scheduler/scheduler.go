// Package scheduler drives recurring ingestion runs. Each registered source
// owns a tiny state machine, Idle or Running, and a run is only admitted from
// Idle. Failures land the source back in Idle so the next trigger fires.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	ingestconfig "amlwatch/internal/ingest/config"
	"amlwatch/internal/ingest/ports"
	dErrors "amlwatch/pkg/domain-errors"
)

// State is the execution state of one source.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
)

// SourceStatus is the externally visible view of one source.
type SourceStatus struct {
	Source      string            `json:"source"`
	State       State             `json:"state"`
	NextRun     time.Time         `json:"next_run"`
	LastRun     *time.Time        `json:"last_run,omitempty"`
	LastError   string            `json:"last_error,omitempty"`
	LastSummary *ports.RunSummary `json:"last_summary,omitempty"`
}

type sourceEntry struct {
	source ports.Source

	state       State
	lastRun     *time.Time
	lastError   string
	lastSummary *ports.RunSummary
}

// Scheduler runs every registered source shortly after startup and then
// daily at the configured hour. Manual triggers share the same admission
// rule as scheduled runs.
type Scheduler struct {
	runner ports.Runner
	cfg    *ingestconfig.Config
	logger *slog.Logger

	mu      sync.Mutex
	sources map[string]*sourceEntry
	order   []string
	baseCtx context.Context
	wg      sync.WaitGroup

	now func() time.Time
}

type Option func(*Scheduler)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func New(runner ports.Runner, cfg *ingestconfig.Config, opts ...Option) *Scheduler {
	s := &Scheduler{
		runner:  runner,
		cfg:     cfg,
		logger:  slog.Default(),
		sources: make(map[string]*sourceEntry),
		baseCtx: context.Background(),
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Register adds a source to the schedule. Registering twice replaces the
// source but keeps its run history.
func (s *Scheduler) Register(source ports.Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name := source.Name()
	if entry, ok := s.sources[name]; ok {
		entry.source = source
		return
	}
	s.sources[name] = &sourceEntry{source: source, state: StateIdle}
	s.order = append(s.order, name)
}

// Start blocks until ctx is cancelled, firing the startup run once and the
// daily run at the configured hour thereafter.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()

	s.logger.Info("scheduler started",
		slog.Duration("startup_delay", s.cfg.StartupDelay),
		slog.Int("run_hour_utc", s.cfg.RunHourUTC))

	startup := time.NewTimer(s.cfg.StartupDelay)
	defer startup.Stop()

	select {
	case <-ctx.Done():
		s.wg.Wait()
		return ctx.Err()
	case <-startup.C:
		s.triggerAll()
	}

	for {
		wait := time.Until(s.nextRunAt(s.now().UTC()))
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.wg.Wait()
			return ctx.Err()
		case <-timer.C:
			s.triggerAll()
		}
	}
}

// Trigger starts a run for the named source if it is idle. The run proceeds
// in the background; callers poll Status for the outcome.
func (s *Scheduler) Trigger(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.sources[name]
	if !ok {
		return dErrors.Newf(dErrors.CodeNotFound, "unknown source %q", name)
	}
	if entry.state == StateRunning {
		return dErrors.Newf(dErrors.CodeConflict, "ingestion already running for %q", name)
	}
	entry.state = StateRunning

	s.wg.Add(1)
	go s.execute(s.baseCtx, name, entry.source)
	return nil
}

// Status reports the state of one source.
func (s *Scheduler) Status(name string) (SourceStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.sources[name]
	if !ok {
		return SourceStatus{}, dErrors.Newf(dErrors.CodeNotFound, "unknown source %q", name)
	}
	return SourceStatus{
		Source:      name,
		State:       entry.state,
		NextRun:     s.nextRunAt(s.now().UTC()),
		LastRun:     entry.lastRun,
		LastError:   entry.lastError,
		LastSummary: entry.lastSummary,
	}, nil
}

// Sources lists registered source names in registration order.
func (s *Scheduler) Sources() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

func (s *Scheduler) triggerAll() {
	for _, name := range s.Sources() {
		if err := s.Trigger(name); err != nil {
			// A still-running source just skips this cycle.
			s.logger.Warn("scheduled trigger not admitted",
				slog.String("source", name),
				slog.String("error", err.Error()))
		}
	}
}

// execute runs one ingestion cycle and records the outcome. Errors are
// absorbed here; a failed run must never take the scheduler down.
func (s *Scheduler) execute(ctx context.Context, name string, source ports.Source) {
	defer s.wg.Done()

	summary, err := s.runner.Run(ctx, source)

	finished := s.now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.sources[name]
	if !ok {
		return
	}
	entry.state = StateIdle
	entry.lastRun = &finished
	entry.lastSummary = &summary
	if err != nil {
		entry.lastError = err.Error()
		return
	}
	entry.lastError = ""
}

// nextRunAt returns the next occurrence of the configured run hour, UTC.
func (s *Scheduler) nextRunAt(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), s.cfg.RunHourUTC, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
