package wake

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/fgeck/gowol-homelab/internal/address"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testTarget = address.IPv4{192, 168, 1, 50}
	testMAC    = address.MAC{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}
)

func readyMachine(t *testing.T, cfg Config) *Machine {
	t.Helper()
	m := NewMachine(cfg)
	_, err := m.Apply(NetworkReady{})
	require.NoError(t, err)
	return m
}

func effectsOf[T Effect](effects []Effect) []T {
	var out []T
	for _, e := range effects {
		if v, ok := e.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

// runProbes answers every Probe and Schedule effect until the cycle settles
// in a display phase, using results for successive probe attempts.
func runProbes(t *testing.T, m *Machine, effects []Effect, results ...bool) (calls int) {
	t.Helper()
	queue := effects
	for len(queue) > 0 {
		e := queue[0]
		queue = queue[1:]

		var next []Effect
		var err error
		switch e := e.(type) {
		case Probe:
			require.Less(t, calls, len(results), "unexpected probe call %d", calls+1)
			next, err = m.Apply(ProbeDone{Cycle: e.Cycle, Attempt: e.Attempt, Reachable: results[calls]})
			calls++
		case Schedule:
			if e.Phase == PhaseConfirmedAwake || e.Phase == PhaseUnreachable {
				continue
			}
			next, err = m.Apply(e.Fired())
		}
		require.NoError(t, err)
		queue = append(queue, next...)
	}
	return calls
}

func TestNewMachine_StartsDisconnected(t *testing.T) {
	m := NewMachine(DefaultConfig())

	s := m.Session()
	assert.Equal(t, PhaseDisconnected, s.Phase)
	assert.Equal(t, StatusIdle, s.Status)
}

func TestNetworkReady(t *testing.T) {
	m := NewMachine(DefaultConfig())

	effects, err := m.Apply(NetworkReady{})
	require.NoError(t, err)
	assert.Equal(t, PhaseIdle, m.Session().Phase)
	assert.Len(t, effectsOf[StatusChanged](effects), 1)

	// Second signal is a no-op.
	effects, err = m.Apply(NetworkReady{})
	require.NoError(t, err)
	assert.Empty(t, effects)
}

func TestCommands_RejectedWhileDisconnected(t *testing.T) {
	m := NewMachine(DefaultConfig())

	_, err := m.Apply(WakeCommand{Target: testTarget, MAC: testMAC})
	assert.ErrorIs(t, err, ErrNotReady)

	_, err = m.Apply(PingCommand{Target: testTarget})
	assert.ErrorIs(t, err, ErrNotReady)

	assert.Equal(t, PhaseDisconnected, m.Session().Phase)
}

func TestWakeCommand_SendsOnePacketAndReportsSent(t *testing.T) {
	m := readyMachine(t, DefaultConfig())

	effects, err := m.Apply(WakeCommand{Target: testTarget, MAC: testMAC})
	require.NoError(t, err)

	s := m.Session()
	assert.Equal(t, PhaseSendingWake, s.Phase)
	assert.Equal(t, testTarget, s.Target)
	assert.Equal(t, StatusSendingWOL, s.Status)

	broadcasts := effectsOf[Broadcast](effects)
	require.Len(t, broadcasts, 1)
	pkt := broadcasts[0].Packet.Bytes()
	require.Len(t, pkt, 102)
	assert.Equal(t, bytes.Repeat([]byte{0xFF}, 6), pkt[:6])
	assert.Equal(t, bytes.Repeat(testMAC[:], 16), pkt[6:])

	effects, err = m.Apply(BroadcastDone{Cycle: broadcasts[0].Cycle})
	require.NoError(t, err)

	s = m.Session()
	assert.Equal(t, PhaseWakeSent, s.Phase)
	assert.Equal(t, StatusSentWOL, s.Status)

	schedules := effectsOf[Schedule](effects)
	require.Len(t, schedules, 1)
	assert.Equal(t, time.Second, schedules[0].After)
	assert.Equal(t, PhaseWakeSent, schedules[0].Phase)
}

func TestWakeCommand_BroadcastFailureStillVerifies(t *testing.T) {
	m := readyMachine(t, DefaultConfig())

	effects, err := m.Apply(WakeCommand{Target: testTarget, MAC: testMAC})
	require.NoError(t, err)
	cycle := effectsOf[Broadcast](effects)[0].Cycle

	effects, err = m.Apply(BroadcastDone{Cycle: cycle, Err: errors.New("network is down")})
	require.NoError(t, err)
	assert.Equal(t, PhaseWakeSent, m.Session().Phase)
	assert.Equal(t, StatusSendFailed, m.Session().Status)

	effects, err = m.Apply(effectsOf[Schedule](effects)[0].Fired())
	require.NoError(t, err)
	assert.Equal(t, PhaseProbing, m.Session().Phase)
	assert.Equal(t, 1, m.Session().Attempt)
	assert.Len(t, effectsOf[Probe](effects), 1)
}

func TestFullWakeCycle_Reachable(t *testing.T) {
	m := readyMachine(t, DefaultConfig())

	effects, err := m.Apply(WakeCommand{Target: testTarget, MAC: testMAC})
	require.NoError(t, err)
	effects, err = m.Apply(BroadcastDone{Cycle: effectsOf[Broadcast](effects)[0].Cycle})
	require.NoError(t, err)

	calls := runProbes(t, m, effects, true)

	assert.Equal(t, 1, calls)
	assert.Equal(t, PhaseConfirmedAwake, m.Session().Phase)
	assert.Equal(t, StatusReachable, m.Session().Status)
}

func TestPingHost_ThreeFailuresUnreachable(t *testing.T) {
	m := readyMachine(t, DefaultConfig())

	effects, err := m.Apply(PingCommand{Target: testTarget})
	require.NoError(t, err)
	assert.Equal(t, StatusPinging, m.Session().Status)

	calls := runProbes(t, m, effects, false, false, false)

	assert.Equal(t, 3, calls)
	assert.Equal(t, PhaseUnreachable, m.Session().Phase)
	assert.Equal(t, StatusUnreachable, m.Session().Status)
}

func TestPingHost_SecondAttemptSucceeds(t *testing.T) {
	m := readyMachine(t, DefaultConfig())

	effects, err := m.Apply(PingCommand{Target: testTarget})
	require.NoError(t, err)

	// runProbes fails the test if a third probe is requested.
	calls := runProbes(t, m, effects, false, true)

	assert.Equal(t, 2, calls)
	assert.Equal(t, PhaseConfirmedAwake, m.Session().Phase)
	assert.Equal(t, StatusReachable, m.Session().Status)
}

func TestProbing_RetryUsesDelayAndAttemptCounter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RetryDelay = 300 * time.Millisecond
	m := readyMachine(t, cfg)

	effects, err := m.Apply(PingCommand{Target: testTarget})
	require.NoError(t, err)
	probe := effectsOf[Probe](effects)[0]
	assert.Equal(t, 1, probe.Attempt)

	effects, err = m.Apply(ProbeDone{Cycle: probe.Cycle, Attempt: 1, Reachable: false})
	require.NoError(t, err)
	assert.Equal(t, 2, m.Session().Attempt)
	assert.Empty(t, effectsOf[Probe](effects), "retry must wait for the timer")

	sched := effectsOf[Schedule](effects)
	require.Len(t, sched, 1)
	assert.Equal(t, 300*time.Millisecond, sched[0].After)

	effects, err = m.Apply(sched[0].Fired())
	require.NoError(t, err)
	probes := effectsOf[Probe](effects)
	require.Len(t, probes, 1)
	assert.Equal(t, 2, probes[0].Attempt)
}

func TestDisplayPhases_ReturnToIdleKeepingOutcome(t *testing.T) {
	for _, reachable := range []bool{true, false} {
		cfg := DefaultConfig()
		cfg.MaxAttempts = 1
		m := readyMachine(t, cfg)

		effects, err := m.Apply(PingCommand{Target: testTarget})
		require.NoError(t, err)
		probe := effectsOf[Probe](effects)[0]

		effects, err = m.Apply(ProbeDone{Cycle: probe.Cycle, Attempt: 1, Reachable: reachable})
		require.NoError(t, err)

		sched := effectsOf[Schedule](effects)[0]
		wantStatus := StatusUnreachable
		wantAfter := cfg.FailureDisplay
		if reachable {
			wantStatus = StatusReachable
			wantAfter = cfg.ConfirmDisplay
		}
		assert.Equal(t, wantAfter, sched.After)

		effects, err = m.Apply(sched.Fired())
		require.NoError(t, err)
		assert.Equal(t, PhaseIdle, m.Session().Phase)
		assert.Equal(t, wantStatus, m.Session().Status)
		assert.Len(t, effectsOf[StatusChanged](effects), 1)
	}
}

func TestInvalidCommand_KeepsPhase(t *testing.T) {
	m := readyMachine(t, DefaultConfig())

	effects, err := m.Apply(InvalidCommand{})
	require.NoError(t, err)

	assert.Equal(t, PhaseIdle, m.Session().Phase)
	assert.Equal(t, StatusInvalidArguments, m.Session().Status)
	assert.Empty(t, effectsOf[Broadcast](effects))
	assert.Len(t, effectsOf[StatusChanged](effects), 1)
}

func TestPingHost_RepeatedInIdleStartsFreshCycle(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxAttempts = 1
	m := readyMachine(t, cfg)

	var lastCycle uint64
	for i := 0; i < 3; i++ {
		effects, err := m.Apply(PingCommand{Target: testTarget})
		require.NoError(t, err)

		s := m.Session()
		assert.Equal(t, PhaseProbing, s.Phase)
		assert.Equal(t, 1, s.Attempt)
		assert.Greater(t, s.Cycle, lastCycle)
		lastCycle = s.Cycle

		probe := effectsOf[Probe](effects)[0]
		assert.Equal(t, 1, probe.Attempt)

		// Finish the cycle so the machine is idle again.
		effects, err = m.Apply(ProbeDone{Cycle: probe.Cycle, Attempt: 1, Reachable: false})
		require.NoError(t, err)
		_, err = m.Apply(effectsOf[Schedule](effects)[0].Fired())
		require.NoError(t, err)
		require.Equal(t, PhaseIdle, m.Session().Phase)
	}
}

func TestOverlap_Reject(t *testing.T) {
	m := readyMachine(t, DefaultConfig())

	_, err := m.Apply(PingCommand{Target: testTarget})
	require.NoError(t, err)
	before := m.Session()

	_, err = m.Apply(WakeCommand{Target: address.IPv4{10, 0, 0, 1}, MAC: testMAC})
	assert.ErrorIs(t, err, ErrBusy)
	_, err = m.Apply(PingCommand{Target: address.IPv4{10, 0, 0, 1}})
	assert.ErrorIs(t, err, ErrBusy)

	assert.Equal(t, before, m.Session())
}

func TestOverlap_PreemptDropsStaleCompletions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Overlap = OverlapPreempt
	m := readyMachine(t, cfg)

	effects, err := m.Apply(PingCommand{Target: testTarget})
	require.NoError(t, err)
	oldProbe := effectsOf[Probe](effects)[0]

	effects, err = m.Apply(WakeCommand{Target: address.IPv4{10, 0, 0, 1}, MAC: testMAC})
	require.NoError(t, err)
	assert.Equal(t, PhaseSendingWake, m.Session().Phase)
	newCycle := effectsOf[Broadcast](effects)[0].Cycle
	assert.Greater(t, newCycle, oldProbe.Cycle)

	// The old probe finishing must not disturb the new cycle.
	effects, err = m.Apply(ProbeDone{Cycle: oldProbe.Cycle, Attempt: 1, Reachable: true})
	require.NoError(t, err)
	assert.Empty(t, effects)
	assert.Equal(t, PhaseSendingWake, m.Session().Phase)
	assert.Equal(t, address.IPv4{10, 0, 0, 1}, m.Session().Target)
}

func TestCancel(t *testing.T) {
	m := readyMachine(t, DefaultConfig())

	effects, err := m.Apply(WakeCommand{Target: testTarget, MAC: testMAC})
	require.NoError(t, err)
	cycle := effectsOf[Broadcast](effects)[0].Cycle

	effects, err = m.Apply(CancelCommand{})
	require.NoError(t, err)
	assert.Equal(t, PhaseIdle, m.Session().Phase)
	assert.Equal(t, StatusCancelled, m.Session().Status)
	assert.Len(t, effectsOf[StatusChanged](effects), 1)

	effects, err = m.Apply(BroadcastDone{Cycle: cycle})
	require.NoError(t, err)
	assert.Empty(t, effects)
	assert.Equal(t, PhaseIdle, m.Session().Phase)

	// Cancelling while idle does nothing.
	effects, err = m.Apply(CancelCommand{})
	require.NoError(t, err)
	assert.Empty(t, effects)
}

func TestStaleTimerIgnored(t *testing.T) {
	m := readyMachine(t, DefaultConfig())

	_, err := m.Apply(PingCommand{Target: testTarget})
	require.NoError(t, err)
	s := m.Session()

	effects, err := m.Apply(TimerFired{Cycle: s.Cycle, Phase: PhaseWakeSent})
	require.NoError(t, err)
	assert.Empty(t, effects)

	effects, err = m.Apply(TimerFired{Cycle: s.Cycle - 1, Phase: PhaseProbing, Attempt: 1})
	require.NoError(t, err)
	assert.Empty(t, effects)
	assert.Equal(t, s, m.Session())
}

func TestStatusStrings_FitPublishedVariable(t *testing.T) {
	for _, s := range []string{
		StatusIdle, StatusSendingWOL, StatusSentWOL, StatusSendFailed, StatusPinging,
		StatusReachable, StatusUnreachable, StatusInvalidArguments, StatusCancelled,
	} {
		assert.LessOrEqual(t, len(s), MaxStatusLength, s)
	}
}

func TestPhase_String(t *testing.T) {
	assert.Equal(t, "probing", PhaseProbing.String())
	assert.Equal(t, "confirmed_awake", PhaseConfirmedAwake.String())
	assert.Equal(t, "unknown", Phase(42).String())
	assert.True(t, PhaseWakeSent.Active())
	assert.False(t, PhaseIdle.Active())
}
