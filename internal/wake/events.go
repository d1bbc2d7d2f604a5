package wake

import (
	"time"

	"github.com/fgeck/gowol-homelab/internal/address"
	"github.com/fgeck/gowol-homelab/internal/services/wol"
)

// Event is an input to the machine.
type Event interface {
	event()
}

// NetworkReady signals that the local interface has an address.
type NetworkReady struct{}

// WakeCommand asks for a magic packet to MAC followed by verification of Target.
type WakeCommand struct {
	Target address.IPv4
	MAC    address.MAC
}

// PingCommand asks for verification of Target without sending a packet.
type PingCommand struct {
	Target address.IPv4
}

// InvalidCommand records a command whose arguments did not parse.
type InvalidCommand struct{}

// CancelCommand abandons the running cycle.
type CancelCommand struct{}

// BroadcastDone reports the end of a Broadcast effect.
type BroadcastDone struct {
	Cycle uint64
	Err   error
}

// ProbeDone reports the end of a Probe effect.
type ProbeDone struct {
	Cycle     uint64
	Attempt   int
	Reachable bool
}

// TimerFired reports the expiry of a Schedule effect.
type TimerFired struct {
	Cycle   uint64
	Phase   Phase
	Attempt int
}

func (NetworkReady) event()   {}
func (WakeCommand) event()    {}
func (PingCommand) event()    {}
func (InvalidCommand) event() {}
func (CancelCommand) event()  {}
func (BroadcastDone) event()  {}
func (ProbeDone) event()      {}
func (TimerFired) event()     {}

// Effect is work the caller must perform after a transition.
type Effect interface {
	effect()
}

// Broadcast sends Packet and must be answered with BroadcastDone.
type Broadcast struct {
	Cycle  uint64
	Packet wol.Packet
}

// Probe checks Target once and must be answered with ProbeDone.
type Probe struct {
	Cycle   uint64
	Attempt int
	Target  address.IPv4
}

// Schedule arms a timer that must be answered with TimerFired.
type Schedule struct {
	Cycle   uint64
	After   time.Duration
	Phase   Phase
	Attempt int
}

// StatusChanged publishes the session after a transition.
type StatusChanged struct {
	Session Session
}

func (Broadcast) effect()     {}
func (Probe) effect()         {}
func (Schedule) effect()      {}
func (StatusChanged) effect() {}

// Fired returns the event the timer delivers.
func (s Schedule) Fired() TimerFired {
	return TimerFired{Cycle: s.Cycle, Phase: s.Phase, Attempt: s.Attempt}
}
