package notifier

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"todosched/internal/task"
	"todosched/pkg/logx"
)

// ConsoleSender writes the notification to the structured log. It is the
// default channel and the fallback for unconfigured ones.
type ConsoleSender struct {
	Log logx.Logger
}

func (c *ConsoleSender) Send(_ context.Context, n Notification) error {
	log := c.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	log.Info(n.Subject,
		logx.String("channel", string(n.Channel)),
		logx.Int64("task_id", n.TaskID),
		logx.String("priority", string(n.Priority)),
		logx.String("body", n.Body))
	return nil
}

// EmailSender delivers over SMTP with optional plain auth.
type EmailSender struct {
	Host     string
	Port     int
	From     string
	To       string
	Username string
	Password string
}

func (e *EmailSender) Send(_ context.Context, n Notification) error {
	if e.Host == "" || e.From == "" || e.To == "" {
		return fmt.Errorf("email sender not configured")
	}
	port := e.Port
	if port == 0 {
		port = 587
	}
	addr := fmt.Sprintf("%s:%d", e.Host, port)

	var auth smtp.Auth
	if e.Username != "" {
		auth = smtp.PlainAuth("", e.Username, e.Password, e.Host)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", e.From)
	fmt.Fprintf(&b, "To: %s\r\n", e.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", n.Subject)
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(n.Body)
	b.WriteString("\r\n")

	return smtp.SendMail(addr, auth, e.From, []string{e.To}, []byte(b.String()))
}

// TelegramSender pushes the "notification" channel to a Telegram chat.
type TelegramSender struct {
	bot    *tele.Bot
	chatID int64
}

// NewTelegramSender builds a send-only bot; it never polls for updates.
func NewTelegramSender(token string, chatID int64) (*TelegramSender, error) {
	bot, err := tele.NewBot(tele.Settings{Token: token})
	if err != nil {
		return nil, fmt.Errorf("telegram sender: %w", err)
	}
	return &TelegramSender{bot: bot, chatID: chatID}, nil
}

func (t *TelegramSender) Send(_ context.Context, n Notification) error {
	text := fmt.Sprintf("%s%s\n%s", priorityMarker(n.Priority), n.Subject, n.Body)
	_, err := t.bot.Send(tele.ChatID(t.chatID), text)
	return err
}

func priorityMarker(p task.Priority) string {
	switch p {
	case task.PriorityHigh:
		return "⚠️ "
	case task.PriorityMedium:
		return "ℹ️ "
	default:
		return ""
	}
}
