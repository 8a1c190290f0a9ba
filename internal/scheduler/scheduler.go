package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/tazhate/remindbot/config"
	"github.com/tazhate/remindbot/internal/service"
)

// Sender delivers rendered text to a recipient. Every error is treated as
// retryable; the reason is only logged.
type Sender interface {
	Send(recipient, text string) error
}

// CycleResult summarizes one scan.
type CycleResult struct {
	Due    int
	Sent   int
	Failed int
}

type Scheduler struct {
	cron            *cron.Cron
	cfg             *config.Config
	reminderService *service.ReminderService
	sender          Sender
	interval        time.Duration
	now             func() time.Time
	log             *log.Logger

	started atomic.Bool
	stopped atomic.Bool
	done    chan struct{}
}

func New(cfg *config.Config, reminderSvc *service.ReminderService) *Scheduler {
	location := cfg.Timezone
	if location == nil {
		location = time.UTC
	}

	return &Scheduler{
		cron:            cron.New(cron.WithLocation(location)),
		cfg:             cfg,
		reminderService: reminderSvc,
		interval:        cfg.Scheduler.ScanInterval,
		now:             time.Now,
		log:             log.New(log.Writer(), "[scheduler] ", log.Flags()),
		done:            make(chan struct{}),
	}
}

func (s *Scheduler) SetSender(sender Sender) {
	s.sender = sender
}

func (s *Scheduler) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Scheduler) SetLogger(l *log.Logger) {
	s.log = l
}

// Start scans once immediately and then every interval until ctx is
// cancelled. A cycle that is running when ctx is cancelled finishes first.
// Start after Stop, or with a cancelled ctx, returns without scanning.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.interval <= 0 {
		return fmt.Errorf("scan interval must be positive, got %s", s.interval)
	}
	if s.started.Swap(true) {
		return errors.New("scheduler already started")
	}
	defer close(s.done)

	// started выставлен до проверки stopped: Stop либо увидит started и
	// дождётся done, либо мы увидим stopped здесь
	if s.stopped.Load() || ctx.Err() != nil {
		return nil
	}

	if spec := s.cfg.DigestCron(); spec != "" {
		if _, err := s.cron.AddFunc(spec, s.dailyDigest); err != nil {
			return fmt.Errorf("add daily digest: %w", err)
		}
	}
	s.cron.Start()

	s.log.Printf("Started (TZ: %s, interval: %s, digest: %q)",
		s.cfg.Timezone, s.interval, s.cfg.Scheduler.DigestTime)

	s.CheckReminders()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if ctx.Err() != nil {
				return nil
			}
			s.CheckReminders()
		}
	}
}

// Stop halts cron jobs and waits for the scan loop to return. After Stop no
// new cycle begins, even if Start has not been entered yet.
// The context passed to Start must be cancelled first.
func (s *Scheduler) Stop() {
	s.stopped.Store(true)
	ctx := s.cron.Stop()
	<-ctx.Done()
	if s.started.Load() {
		<-s.done
	}
	s.log.Println("Stopped")
}

// CheckReminders runs one scan: every due reminder is sent and, only after a
// confirmed send, marked. Failures are logged and retried on the next scan.
func (s *Scheduler) CheckReminders() CycleResult {
	var res CycleResult
	if s.sender == nil {
		return res
	}

	now := s.now()
	due := s.reminderService.DueSince(now)
	res.Due = len(due)

	for _, r := range due {
		text := s.reminderService.RenderNotification(r)
		if err := s.sender.Send(r.Owner, text); err != nil {
			s.log.Printf("Error sending reminder %s to %s: %v", r.ID, r.Owner, err)
			res.Failed++
			continue
		}

		if err := s.reminderService.MarkSent(r.ID); err != nil {
			// не помечено, уйдёт повторно на следующем цикле
			s.log.Printf("Error marking reminder %s as sent: %v", r.ID, err)
			res.Failed++
			continue
		}
		res.Sent++
	}

	if res.Due > 0 {
		s.log.Printf("Cycle done: due=%d sent=%d failed=%d", res.Due, res.Sent, res.Failed)
	}
	return res
}
