// Package poller runs the background schedule loop: a cron-driven reminder
// poll plus an optional daily overdue digest.
package poller

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"todosched/internal/notifier"
	"todosched/internal/sched/coordinator"
	"todosched/internal/sched/overdue"
	"todosched/internal/task"
	"todosched/pkg/logx"
)

// Config controls the poll loop.
type Config struct {
	Enabled         bool
	Interval        time.Duration // reminder poll period; 0 means 30s
	OverdueDigestAt string        // "HH:MM" in Timezone; empty disables the digest
	LookaheadDays   int           // upcoming window in the digest; 0 means 7
	Timezone        string
}

// Service drives coordinator.PollReminders on a fixed cadence. A tick that
// finds the previous poll still running is skipped, never queued.
type Service struct {
	mu sync.Mutex

	cfg   Config
	coord *coordinator.Coordinator
	notif *notifier.Service
	log   logx.Logger

	c       *cron.Cron
	polling atomic.Bool

	// Watchdog, when set, is invoked after every completed poll pass. The app
	// layer points it at the systemd watchdog keepalive.
	Watchdog func()
}

func New(cfg Config, coord *coordinator.Coordinator, notif *notifier.Service, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, coord: coord, notif: notif, log: log}
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Apply swaps the config. A running loop is restarted when the cadence,
// digest time or timezone changed.
func (s *Service) Apply(ctx context.Context, cfg Config) {
	s.mu.Lock()
	changed := cfg != s.cfg
	running := s.c != nil
	s.cfg = cfg
	s.mu.Unlock()

	if !changed {
		return
	}
	if running {
		s.Stop(ctx)
	}
	if cfg.Enabled {
		s.Start(ctx)
	}
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil || !s.cfg.Enabled {
		return
	}

	loc := time.Local
	if tz := strings.TrimSpace(s.cfg.Timezone); tz != "" {
		if l, err := time.LoadLocation(tz); err == nil {
			loc = l
		} else {
			s.log.Warn("bad poller timezone, using local", logx.String("tz", tz), logx.Err(err))
		}
	}

	interval := s.cfg.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	c := cron.New(cron.WithLocation(loc))
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", interval), func() { s.pollOnce(ctx) }); err != nil {
		s.log.Error("poll schedule rejected", logx.Err(err))
		return
	}

	if at := strings.TrimSpace(s.cfg.OverdueDigestAt); at != "" {
		h, m, err := parseHHMM(at)
		if err != nil {
			s.log.Warn("overdue digest disabled", logx.String("at", at), logx.Err(err))
		} else {
			spec := fmt.Sprintf("%d %d * * *", m, h)
			if _, err := c.AddFunc(spec, func() { s.digestOnce(ctx) }); err != nil {
				s.log.Warn("digest schedule rejected", logx.Err(err))
			}
		}
	}

	s.c = c
	c.Start()
	s.log.Info("poller started",
		logx.Duration("interval", interval),
		logx.String("digest_at", s.cfg.OverdueDigestAt))
}

// Stop halts the cron loop and waits for an in-flight job to finish, bounded
// by ctx.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}

	stopped := c.Stop() // waits for running jobs via its context
	select {
	case <-stopped.Done():
	case <-ctx.Done():
	}
	s.log.Info("poller stopped")
}

// pollOnce runs one reminder poll pass. Failures log and wait for the next
// tick; the loop itself never dies.
func (s *Service) pollOnce(ctx context.Context) {
	if !s.polling.CompareAndSwap(false, true) {
		s.log.Debug("poll tick skipped, previous pass still running")
		return
	}
	defer s.polling.Store(false)

	res := s.coord.PollReminders(ctx, time.Now())
	if !res.OK {
		s.log.Warn("reminder poll failed",
			logx.String("kind", string(res.ErrorKind)),
			logx.String("msg", res.Message))
	}

	s.mu.Lock()
	wd := s.Watchdog
	s.mu.Unlock()
	if wd != nil {
		wd()
	}
}

// digestOnce sends one daily summary notification: overdue tasks plus the
// upcoming window. An empty digest is not sent.
func (s *Service) digestOnce(ctx context.Context) {
	now := time.Now()

	s.mu.Lock()
	days := s.cfg.LookaheadDays
	s.mu.Unlock()
	if days <= 0 {
		days = 7
	}

	res := s.coord.GetOverdue(ctx, now)
	if !res.OK {
		s.log.Warn("overdue digest failed", logx.String("msg", res.Message))
		return
	}
	entries, _ := res.Data.([]overdue.Entry)

	var buckets []overdue.Bucket
	if res := s.coord.GetUpcoming(ctx, now, days, ""); res.OK {
		buckets, _ = res.Data.([]overdue.Bucket)
	} else {
		s.log.Warn("upcoming digest failed", logx.String("msg", res.Message))
	}

	if len(entries) == 0 && len(buckets) == 0 {
		return
	}

	var b strings.Builder
	if len(entries) > 0 {
		fmt.Fprintf(&b, "%d task(s) overdue:\n", len(entries))
		for _, e := range entries {
			fmt.Fprintf(&b, "- [%s] %s (overdue %s)\n", e.Task.Priority, e.Task.Title, e.Overdue.Round(time.Minute))
		}
	}
	if len(buckets) > 0 {
		fmt.Fprintf(&b, "Due in the next %d day(s):\n", days)
		for _, bk := range buckets {
			for _, t := range bk.Tasks {
				fmt.Fprintf(&b, "- [%s] %s (due %s)\n", t.Priority, t.Title, bk.Date.Format("2006-01-02"))
			}
		}
	}

	if s.notif == nil {
		s.log.Info("schedule digest", logx.Int("overdue", len(entries)), logx.Int("upcoming_days", days))
		return
	}
	err := s.notif.Notify(ctx, notifier.Notification{
		Channel:  task.ChannelNotification,
		Priority: task.PriorityHigh,
		Subject:  "Daily schedule digest",
		Body:     strings.TrimRight(b.String(), "\n"),
	})
	if err != nil {
		s.log.Warn("schedule digest not queued", logx.Err(err))
	}
}

func parseHHMM(s string) (hour, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}
