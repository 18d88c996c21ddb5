package notifier

import (
	"context"
	"time"

	"todosched/internal/task"
)

// Config controls the async notification pipeline.
type Config struct {
	Enabled         bool
	Workers         int
	QueueSize       int
	RatePerSec      int
	RetryMax        int
	RetryBase       time.Duration
	RetryMaxDelay   time.Duration
	DedupWindow     time.Duration
	DedupMaxEntries int
}

// Notification is one message headed for a delivery channel.
type Notification struct {
	Channel  task.Channel
	Priority task.Priority
	TaskID   int64
	Subject  string
	Body     string
}

// Sender delivers a notification over one channel. Implementations must be
// safe for concurrent use; the worker pool calls them from multiple
// goroutines.
type Sender interface {
	Send(ctx context.Context, n Notification) error
}

type HistoryItem struct {
	At      time.Time
	Channel task.Channel
	Subject string
}

// NotificationEvent is emitted on the event bus for notifier lifecycle events
// (queued, sent, deduped, dropped, failed). Keep it small; subscribers may log
// or serialize it.
type NotificationEvent struct {
	Channel task.Channel `json:"channel"`
	TaskID  int64        `json:"task_id"`
	Key     string       `json:"key"`
	At      time.Time    `json:"at"`
	Error   string       `json:"error,omitempty"`
}
