package models

import "time"

// Overlap policies for commands issued while a cycle is running.
const (
	OverlapReject  = "reject"
	OverlapPreempt = "preempt"
)

// WOLConfig holds Wake-on-LAN and verification cycle configuration.
type WOLConfig struct {
	BroadcastIP    string
	Port           int
	ParseMode      string        // "strict" (default) or "lenient"
	OverlapPolicy  string        // "reject" (default) or "preempt"
	MaxAttempts    int           // reachability probes per cycle
	SettleDelay    time.Duration // wait after the magic packet before probing
	RetryDelay     time.Duration // wait between failed probes
	ConfirmDisplay time.Duration // how long "Reachable" is held before idling
	FailureDisplay time.Duration // how long "Unreachable" is held before idling
}
