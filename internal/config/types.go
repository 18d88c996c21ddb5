package config

type Config struct {
	// Timezone is the single canonical IANA timezone all schedule computation
	// runs in (e.g. "Europe/Berlin"). Empty means the process-local zone.
	Timezone string `json:"timezone,omitempty"`

	Logging LoggingConfig `json:"logging"`

	// Store configures the task store backend the engine reads and mutates.
	Store StoreConfig `json:"store"`

	// Poller controls the background reminder poll loop.
	Poller PollerConfig `json:"poller"`

	// Notifier controls the async delivery pipeline for due reminders.
	// If the whole section is omitted, the notifier defaults to enabled=true.
	Notifier *NotifierConfig `json:"notifier,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StoreConfig selects the task store driver.
//
// Example:
//
//	"store": { "driver": "sqlite", "path": "./todosched.db" }
type StoreConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// PollerConfig controls the background loop.
//
// All durations are Go duration strings (e.g. "30s", "1m").
//
// Defaults (when fields are omitted/zero):
//   - interval: "1m"
//   - lookahead_days: 7
type PollerConfig struct {
	Enabled  bool   `json:"enabled"`
	Interval string `json:"interval,omitempty"`

	// OverdueDigestAt enables a daily overdue summary notification at HH:MM
	// (poller timezone). Empty disables the digest.
	OverdueDigestAt string `json:"overdue_digest_at,omitempty"`

	// LookaheadDays is the default window for the upcoming-task digest.
	LookaheadDays int `json:"lookahead_days,omitempty"`
}

// NotifierConfig controls the async notification pipeline.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type NotifierConfig struct {
	Enabled       bool   `json:"enabled"`
	Workers       int    `json:"workers"`
	QueueSize     int    `json:"queue_size"`
	RatePerSec    int    `json:"rate_per_sec"`
	RetryMax      int    `json:"retry_max"`
	RetryBase     string `json:"retry_base"`
	RetryMaxDelay string `json:"retry_max_delay"`
	DedupWindow   string `json:"dedup_window"`

	// Email configures the smtp sender for the "email" reminder channel.
	Email *EmailChannelConfig `json:"email,omitempty"`

	// Telegram configures the push sender for the "notification" channel.
	Telegram *TelegramChannelConfig `json:"telegram,omitempty"`
}

type EmailChannelConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	From string `json:"from"`
	To   string `json:"to"`
	// Username/Password enable SMTP PLAIN auth; leave empty for open relays.
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

type TelegramChannelConfig struct {
	Token  string `json:"token"`
	ChatID int64  `json:"chat_id"`
}
