package models

import "time"

// StatusEvent describes one status change of the wake cycle.
type StatusEvent struct {
	Phase   string
	Status  string
	Target  string // dotted IPv4, empty before the first command
	Attempt int    // probe attempt, zero outside probing
	Cycle   uint64
	Time    time.Time
}

// AMQPConfig holds RabbitMQ status publishing configuration.
type AMQPConfig struct {
	URL      string
	Exchange string
}
