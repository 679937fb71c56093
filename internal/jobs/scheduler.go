package jobs

import (
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Scheduler drives periodic work (incremental syncs, session sweeps)
// through cron expressions. Jobs themselves still run through the
// queue; the scheduler only enqueues or invokes the registered closure.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
}

// cronParser accepts standard 5-field cron expressions plus descriptors
// like @every.
var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// NewScheduler creates a stopped scheduler.
func NewScheduler(logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(cron.WithParser(cronParser)),
		logger: logger,
	}
}

// Add registers a named periodic function.
func (s *Scheduler) Add(spec, name string, fn func()) error {
	_, err := s.cron.AddFunc(spec, func() {
		s.logger.Debug("scheduler firing", "name", name)
		fn()
	})
	if err != nil {
		return err
	}
	s.logger.Info("scheduled", "name", name, "spec", spec)
	return nil
}

// Start begins the cron ticker.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the ticker without interrupting a running entry.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}
