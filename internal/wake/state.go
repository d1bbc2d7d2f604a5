// Package wake implements the wake-and-verify state machine.
//
// The machine is a pure function of (session, event) returning the next
// session and the effects the caller must carry out: broadcasting a magic
// packet, probing the target, arming a timer, or publishing a status change.
// It performs no I/O and never sleeps, so every transition can be driven
// directly from tests.
//
// Every accepted command starts a new cycle. Completions and timers carry the
// cycle they were issued for, and anything from an older cycle is dropped.
package wake

import (
	"time"

	"github.com/fgeck/gowol-homelab/internal/address"
)

// Phase is the coarse state of the wake cycle.
type Phase int

const (
	PhaseDisconnected Phase = iota
	PhaseIdle
	PhaseSendingWake
	PhaseWakeSent
	PhaseProbing
	PhaseConfirmedAwake
	PhaseUnreachable
)

var phaseNames = map[Phase]string{
	PhaseDisconnected:   "disconnected",
	PhaseIdle:           "idle",
	PhaseSendingWake:    "sending_wake",
	PhaseWakeSent:       "wake_sent",
	PhaseProbing:        "probing",
	PhaseConfirmedAwake: "confirmed_awake",
	PhaseUnreachable:    "unreachable",
}

// String returns the snake_case name of the phase.
func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return "unknown"
}

// Active reports whether a cycle is in progress.
func (p Phase) Active() bool {
	switch p {
	case PhaseSendingWake, PhaseWakeSent, PhaseProbing, PhaseConfirmedAwake, PhaseUnreachable:
		return true
	}
	return false
}

// Status strings published to callers. All fit in 31 characters.
const (
	StatusIdle             = ""
	StatusSendingWOL       = "Sending WOL"
	StatusSentWOL          = "Sent WOL"
	StatusSendFailed       = "WOL send failed"
	StatusPinging          = "Pinging"
	StatusReachable        = "Reachable"
	StatusUnreachable      = "Unreachable"
	StatusInvalidArguments = "Invalid arguments"
	StatusCancelled        = "Cancelled"
)

// MaxStatusLength bounds the published status string.
const MaxStatusLength = 31

// Session is the mutable state of the orchestrator.
type Session struct {
	Phase   Phase
	Attempt int // 1..MaxAttempts while probing, 0 otherwise
	Target  address.IPv4
	Status  string
	Cycle   uint64
	// Outcome is the status of the last finished cycle. It stays visible
	// once the machine is back to idle.
	Outcome string
}

// NewSession returns a session waiting for the network.
func NewSession() Session {
	return Session{Phase: PhaseDisconnected, Status: StatusIdle}
}

// Overlap decides what happens to a command issued mid-cycle.
type Overlap int

const (
	// OverlapReject fails the command with ErrBusy.
	OverlapReject Overlap = iota
	// OverlapPreempt abandons the running cycle and starts the new one.
	OverlapPreempt
)

// Config holds the timing and retry policy of the machine.
type Config struct {
	MaxAttempts    int
	SettleDelay    time.Duration
	RetryDelay     time.Duration
	ConfirmDisplay time.Duration
	FailureDisplay time.Duration
	Overlap        Overlap
}

// DefaultConfig returns three attempts with one-second settle and retry
// delays.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    3,
		SettleDelay:    time.Second,
		RetryDelay:     time.Second,
		ConfirmDisplay: 2500 * time.Millisecond,
		FailureDisplay: 2 * time.Second,
		Overlap:        OverlapReject,
	}
}
