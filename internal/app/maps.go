package app

import (
	"fmt"
	"strings"
	"time"

	"todosched/internal/config"
	"todosched/internal/notifier"
	"todosched/internal/poller"
	"todosched/internal/storage"
	"todosched/internal/task"
	"todosched/pkg/logx"
)

func mapStoreConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Store
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)

	switch driver {
	case "", "memory":
		return storage.Config{Driver: "memory"}, nil
	case "file":
		if path == "" {
			return storage.Config{}, fmt.Errorf("store.path is required when store.driver=file")
		}
		return storage.Config{Driver: "file", Path: path}, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, fmt.Errorf("store.path is required when store.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("store.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, err
		}
		return storage.Config{Driver: "sqlite", Path: path, BusyTimeout: busy}, nil
	default:
		return storage.Config{}, fmt.Errorf("unknown store.driver: %s", sc.Driver)
	}
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	nc := cfg.Notifier
	if nc == nil {
		// Console-only delivery out of the box.
		return notifier.Config{Enabled: true}, nil
	}

	retryBase, err := config.ParseDurationField("notifier.retry_base", nc.RetryBase)
	if err != nil {
		return notifier.Config{}, err
	}
	retryMaxDelay, err := config.ParseDurationField("notifier.retry_max_delay", nc.RetryMaxDelay)
	if err != nil {
		return notifier.Config{}, err
	}
	dedup, err := config.ParseDurationField("notifier.dedup_window", nc.DedupWindow)
	if err != nil {
		return notifier.Config{}, err
	}
	if nc.Workers < 0 {
		return notifier.Config{}, fmt.Errorf("notifier.workers must be >= 0")
	}
	if nc.QueueSize < 0 {
		return notifier.Config{}, fmt.Errorf("notifier.queue_size must be >= 0")
	}
	if nc.RetryMax < 0 {
		return notifier.Config{}, fmt.Errorf("notifier.retry_max must be >= 0")
	}

	return notifier.Config{
		Enabled:       nc.Enabled,
		Workers:       nc.Workers,
		QueueSize:     nc.QueueSize,
		RatePerSec:    nc.RatePerSec,
		RetryMax:      nc.RetryMax,
		RetryBase:     retryBase,
		RetryMaxDelay: retryMaxDelay,
		DedupWindow:   dedup,
	}, nil
}

func mapPollerConfig(cfg *config.Config) (poller.Config, error) {
	pc := cfg.Poller
	interval, err := config.ParseDurationOrDefault("poller.interval", pc.Interval, time.Minute)
	if err != nil {
		return poller.Config{}, err
	}
	if pc.LookaheadDays < 0 {
		return poller.Config{}, fmt.Errorf("poller.lookahead_days must be >= 0")
	}
	return poller.Config{
		Enabled:         pc.Enabled,
		Interval:        interval,
		OverdueDigestAt: strings.TrimSpace(pc.OverdueDigestAt),
		LookaheadDays:   pc.LookaheadDays,
		Timezone:        cfg.Timezone,
	}, nil
}

// buildSenders assembles the per-channel delivery map. Console is always
// present; email and telegram join when configured. A telegram sender that
// fails to initialize only logs: reminders for that channel fall back to
// console.
func buildSenders(cfg *config.Config, log logx.Logger) map[task.Channel]notifier.Sender {
	senders := map[task.Channel]notifier.Sender{
		task.ChannelConsole: &notifier.ConsoleSender{Log: log},
	}
	nc := cfg.Notifier
	if nc == nil {
		return senders
	}
	if ec := nc.Email; ec != nil && ec.Host != "" {
		senders[task.ChannelEmail] = &notifier.EmailSender{
			Host:     ec.Host,
			Port:     ec.Port,
			From:     ec.From,
			To:       ec.To,
			Username: ec.Username,
			Password: ec.Password,
		}
	}
	if tc := nc.Telegram; tc != nil && tc.Token != "" {
		ts, err := notifier.NewTelegramSender(tc.Token, tc.ChatID)
		if err != nil {
			log.Warn("telegram sender unavailable, using console", logx.Err(err))
		} else {
			senders[task.ChannelNotification] = ts
		}
	}
	return senders
}
