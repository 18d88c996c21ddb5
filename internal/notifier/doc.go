// Package notifier delivers due-reminder notifications asynchronously.
//
// Notifications flow through a bounded queue into a small worker pool that
// applies a global token-bucket rate limit, bounded retry with jittered
// backoff, and a dedup window that suppresses identical notifications fired
// in quick succession.
//
// # Channels
//
// Delivery is pluggable per reminder channel via the Sender interface:
// console (structured log), email (SMTP) and a Telegram push for the
// "notification" channel. Channels without a configured sender fall back to
// console, so a reminder is never silently lost to configuration.
//
// # History
//
// For debugging and operator visibility, the service keeps a small in-memory
// history of recently delivered notifications.
package notifier
