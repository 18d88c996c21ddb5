package config

import (
	"strings"

	logx "todosched/pkg/logx"
)

// SummarizeChange returns a compact list of changed sections plus safe
// structured attrs for logging (never includes secrets like SMTP passwords
// or bot tokens).
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 5)
	attrs := make([]logx.Field, 0, 10)

	if strings.TrimSpace(oldCfg.Timezone) != strings.TrimSpace(newCfg.Timezone) {
		changed = append(changed, "timezone")
		attrs = append(attrs, logx.String("timezone", strings.TrimSpace(newCfg.Timezone)))
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file", newCfg.Logging.File.Enabled),
		)
	}

	if oldCfg.Store != newCfg.Store {
		changed = append(changed, "store")
		attrs = append(attrs, logx.String("store.driver", strings.TrimSpace(newCfg.Store.Driver)))
	}

	if oldCfg.Poller != newCfg.Poller {
		changed = append(changed, "poller")
		attrs = append(attrs,
			logx.Bool("poller.enabled", newCfg.Poller.Enabled),
			logx.String("poller.interval", strings.TrimSpace(newCfg.Poller.Interval)),
		)
	}

	if !notifierEqual(oldCfg.Notifier, newCfg.Notifier) {
		changed = append(changed, "notifier")
		if n := newCfg.Notifier; n != nil {
			attrs = append(attrs,
				logx.Bool("notifier.enabled", n.Enabled),
				logx.Int("notifier.workers", n.Workers),
				logx.Bool("notifier.email", n.Email != nil),
				logx.Bool("notifier.telegram", n.Telegram != nil),
			)
		}
	}

	return changed, attrs
}

func notifierEqual(a, b *NotifierConfig) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	if a.Enabled != b.Enabled || a.Workers != b.Workers || a.QueueSize != b.QueueSize ||
		a.RatePerSec != b.RatePerSec || a.RetryMax != b.RetryMax ||
		a.RetryBase != b.RetryBase || a.RetryMaxDelay != b.RetryMaxDelay ||
		a.DedupWindow != b.DedupWindow {
		return false
	}
	ea, eb := a.Email, b.Email
	if (ea == nil) != (eb == nil) || (ea != nil && *ea != *eb) {
		return false
	}
	ta, tb := a.Telegram, b.Telegram
	if (ta == nil) != (tb == nil) || (ta != nil && *ta != *tb) {
		return false
	}
	return true
}
