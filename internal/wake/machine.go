package wake

import (
	"errors"

	"github.com/fgeck/gowol-homelab/internal/address"
	"github.com/fgeck/gowol-homelab/internal/services/wol"
)

var (
	// ErrBusy is returned for commands issued mid-cycle under OverlapReject.
	ErrBusy = errors.New("a wake cycle is already running")
	// ErrNotReady is returned for commands issued before the network is up.
	ErrNotReady = errors.New("network is not ready")
)

// Step applies ev to s. On error the returned session equals s and there are
// no effects.
func Step(cfg Config, s Session, ev Event) (Session, []Effect, error) {
	switch ev := ev.(type) {
	case NetworkReady:
		if s.Phase != PhaseDisconnected {
			return s, nil, nil
		}
		s.Phase = PhaseIdle
		s.Status = StatusIdle
		return s, changed(s), nil

	case InvalidCommand:
		s.Status = StatusInvalidArguments
		return s, changed(s), nil

	case WakeCommand:
		if err := admit(cfg, s); err != nil {
			return s, nil, err
		}
		s = begin(s, ev.Target)
		s.Phase = PhaseSendingWake
		s.Status = StatusSendingWOL
		return s, append(changed(s), Broadcast{Cycle: s.Cycle, Packet: wol.Build(ev.MAC)}), nil

	case PingCommand:
		if err := admit(cfg, s); err != nil {
			return s, nil, err
		}
		s = begin(s, ev.Target)
		return startProbing(s)

	case CancelCommand:
		if !s.Phase.Active() {
			return s, nil, nil
		}
		s.Cycle++
		s.Phase = PhaseIdle
		s.Attempt = 0
		s.Status = StatusCancelled
		s.Outcome = StatusCancelled
		return s, changed(s), nil

	case BroadcastDone:
		if ev.Cycle != s.Cycle || s.Phase != PhaseSendingWake {
			return s, nil, nil
		}
		s.Phase = PhaseWakeSent
		s.Status = StatusSentWOL
		if ev.Err != nil {
			s.Status = StatusSendFailed
		}
		return s, append(changed(s), Schedule{Cycle: s.Cycle, After: cfg.SettleDelay, Phase: PhaseWakeSent}), nil

	case ProbeDone:
		if ev.Cycle != s.Cycle || s.Phase != PhaseProbing || ev.Attempt != s.Attempt {
			return s, nil, nil
		}
		return probed(cfg, s, ev.Reachable)

	case TimerFired:
		if ev.Cycle != s.Cycle || ev.Phase != s.Phase || ev.Attempt != s.Attempt {
			return s, nil, nil
		}
		return expired(s)
	}

	return s, nil, nil
}

func admit(cfg Config, s Session) error {
	if s.Phase == PhaseDisconnected {
		return ErrNotReady
	}
	if s.Phase.Active() && cfg.Overlap == OverlapReject {
		return ErrBusy
	}
	return nil
}

// begin opens a fresh cycle for target. Bumping the cycle orphans every
// outstanding effect of the previous one.
func begin(s Session, target address.IPv4) Session {
	s.Cycle++
	s.Target = target
	s.Attempt = 0
	return s
}

func startProbing(s Session) (Session, []Effect, error) {
	s.Phase = PhaseProbing
	s.Attempt = 1
	s.Status = StatusPinging
	return s, append(changed(s), Probe{Cycle: s.Cycle, Attempt: 1, Target: s.Target}), nil
}

func probed(cfg Config, s Session, reachable bool) (Session, []Effect, error) {
	switch {
	case reachable:
		s.Phase = PhaseConfirmedAwake
		s.Attempt = 0
		s.Status = StatusReachable
		s.Outcome = StatusReachable
		return s, append(changed(s), Schedule{Cycle: s.Cycle, After: cfg.ConfirmDisplay, Phase: PhaseConfirmedAwake}), nil

	case s.Attempt < cfg.MaxAttempts:
		s.Attempt++
		s.Status = StatusPinging
		return s, append(changed(s), Schedule{Cycle: s.Cycle, After: cfg.RetryDelay, Phase: PhaseProbing, Attempt: s.Attempt}), nil

	default:
		s.Phase = PhaseUnreachable
		s.Attempt = 0
		s.Status = StatusUnreachable
		s.Outcome = StatusUnreachable
		return s, append(changed(s), Schedule{Cycle: s.Cycle, After: cfg.FailureDisplay, Phase: PhaseUnreachable}), nil
	}
}

func expired(s Session) (Session, []Effect, error) {
	switch s.Phase {
	case PhaseWakeSent:
		return startProbing(s)

	case PhaseProbing:
		return s, []Effect{Probe{Cycle: s.Cycle, Attempt: s.Attempt, Target: s.Target}}, nil

	case PhaseConfirmedAwake, PhaseUnreachable:
		s.Phase = PhaseIdle
		s.Status = s.Outcome
		return s, changed(s), nil
	}
	return s, nil, nil
}

func changed(s Session) []Effect {
	return []Effect{StatusChanged{Session: s}}
}

// Machine owns a session and applies events to it. It is not safe for
// concurrent use; callers serialize access.
type Machine struct {
	cfg     Config
	session Session
}

// NewMachine creates a machine in the disconnected phase.
func NewMachine(cfg Config) *Machine {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Machine{cfg: cfg, session: NewSession()}
}

// Session returns a copy of the current session.
func (m *Machine) Session() Session {
	return m.session
}

// Apply steps the machine with ev and returns the effects to perform.
func (m *Machine) Apply(ev Event) ([]Effect, error) {
	next, effects, err := Step(m.cfg, m.session, ev)
	if err != nil {
		return nil, err
	}
	m.session = next
	return effects, nil
}
