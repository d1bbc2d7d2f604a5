package models

import "time"

// TelegramConfig holds Telegram notification configuration.
type TelegramConfig struct {
	BotToken string
	ChatID   string
}

// TelegramMessage holds the data for a wake cycle notification.
type TelegramMessage struct {
	Host   string // machine running the daemon
	Phase  string
	Status string
	Target string
	Cycle  uint64
	Time   time.Time
}

// TelegramResult holds the result of a Telegram notification.
type TelegramResult struct {
	MessageSent bool
	Error       error
}
