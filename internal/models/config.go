// Package models contains the data structures used throughout gowol-homelab.
package models

// Config holds the complete configuration for the wake daemon and CLI.
type Config struct {
	WOL         WOLConfig
	Probe       ProbeConfig
	Network     NetworkConfig
	API         APIConfig
	Telegram    *TelegramConfig    // nil if not configured
	AMQP        *AMQPConfig        // nil if not configured
	SSHShutdown *SSHShutdownConfig // nil if not configured
}

// NetworkConfig selects the local interface whose address is published.
type NetworkConfig struct {
	Interface     string // empty selects the default route interface
	ReadyInterval int    // milliseconds between readiness checks
}

// APIConfig holds HTTP control surface settings.
type APIConfig struct {
	Listen    string
	RateLimit float64 // function calls per second
	Burst     int
}
