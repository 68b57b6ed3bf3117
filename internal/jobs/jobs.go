// Package jobs runs periodic maintenance checks.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/robfig/cron/v3"

	"subzone/internal/model"
)

// Disabled turns a job off when used as its schedule.
const Disabled = "off"

const driftTimeout = 2 * time.Minute

type DriftReporter interface {
	DriftReport(ctx context.Context) ([]model.CountDrift, error)
}

type Scheduler struct {
	cron *cron.Cron
	log  logr.Logger
}

// New schedules the drift check with a cron expression. It does not start
// the scheduler.
func New(spec string, drift DriftReporter, log logr.Logger) (*Scheduler, error) {
	log = log.WithName("jobs")
	s := &Scheduler{
		cron: cron.New(cron.WithLogger(log), cron.WithChain(cron.Recover(log), cron.SkipIfStillRunning(log))),
		log:  log,
	}
	if spec == Disabled {
		log.Info("drift check disabled")
		return s, nil
	}
	if _, err := s.cron.AddFunc(spec, func() { CheckDrift(context.Background(), drift, log) }); err != nil {
		return nil, fmt.Errorf("scheduling drift check %q: %w", spec, err)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop waits for running jobs to finish or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.log.Info("jobs still running at shutdown")
	}
}

// CheckDrift logs every account whose record_count disagrees with its
// records. Nothing is repaired.
func CheckDrift(ctx context.Context, drift DriftReporter, log logr.Logger) int {
	ctx, cancel := context.WithTimeout(ctx, driftTimeout)
	defer cancel()

	report, err := drift.DriftReport(ctx)
	if err != nil {
		log.Error(err, "drift check failed")
		return 0
	}
	for _, d := range report {
		log.Info("record count drift", "account", d.AccountID, "email", d.Email, "stored", d.Stored, "actual", d.Actual)
	}
	return len(report)
}
