package services

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// DefaultTuitionCron runs the tuition batch at 00:05 every day (seconds field first).
const DefaultTuitionCron = "0 5 0 * * *"

// ScheduleManager runs the periodic ledger jobs.
type ScheduleManager struct {
	cron       *cron.Cron
	enrollment *EnrollmentService
	now        func() time.Time
}

func NewScheduleManager(enrollment *EnrollmentService) *ScheduleManager {
	return &ScheduleManager{
		cron:       cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger))),
		enrollment: enrollment,
		now:        time.Now,
	}
}

// Start registers the daily tuition job under spec and starts the cron loop.
func (sm *ScheduleManager) Start(spec string) error {
	if spec == "" {
		spec = DefaultTuitionCron
	}
	if _, err := sm.cron.AddFunc(spec, sm.RunTuitionBatch); err != nil {
		return err
	}
	sm.cron.Start()
	logrus.WithField("schedule", spec).Info("Tuition scheduler started")
	return nil
}

// RunTuitionBatch charges every running group for the current month.
func (sm *ScheduleManager) RunTuitionBatch() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	if _, err := sm.enrollment.ChargeActiveGroups(ctx, sm.now()); err != nil {
		logrus.WithError(err).Error("Daily tuition batch failed")
	}
}

// Stop waits for a running job to finish.
func (sm *ScheduleManager) Stop() {
	<-sm.cron.Stop().Done()
	logrus.Info("Tuition scheduler stopped")
}
