// Package runner drives the wake state machine against the real network.
//
// Commands are applied synchronously under a mutex so callers learn at once
// whether they were accepted. Broadcasts and probes run on a single worker
// goroutine with a context scoped to their cycle; timers and completions are
// fed back through Run, which must be running for a cycle to progress.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fgeck/gowol-homelab/internal/address"
	"github.com/fgeck/gowol-homelab/internal/models"
	"github.com/fgeck/gowol-homelab/internal/services/probe"
	"github.com/fgeck/gowol-homelab/internal/services/wol"
	"github.com/fgeck/gowol-homelab/internal/wake"
	"github.com/rs/zerolog"
)

const (
	eventBuffer      = 16
	subscriberBuffer = 16
)

// Service defines the interface of the wake orchestrator.
type Service interface {
	Run(ctx context.Context) error
	NetworkReady(ip address.IPv4)
	Wake(param string) (wake.Session, error)
	Ping(param string) (wake.Session, error)
	WakeHost(param string) bool
	PingHost(param string) bool
	Cancel() bool
	Status() string
	Address() string
	Snapshot() wake.Session
	Subscribe() (<-chan wake.Session, func())
	Await(ctx context.Context, cycle uint64) (wake.Session, error)
}

type job struct {
	ctx    context.Context
	effect wake.Effect
}

// Impl implements the runner Service interface.
type Impl struct {
	wolSvc    wol.Service
	probeSvc  probe.Service
	notifiers *notifyQueue
	logger    zerolog.Logger

	mode        address.Mode
	destination wol.Destination

	mu          sync.Mutex
	machine     *wake.Machine
	addr        address.IPv4
	cycle       uint64
	cycleCtx    context.Context
	cycleCancel context.CancelFunc
	timers      []*time.Timer
	subs        map[int]chan wake.Session
	nextSub     int

	jobsMu    sync.Mutex
	jobs      []job
	jobSignal chan struct{}

	events chan wake.Event
	done   chan struct{}
}

// Settings converts the wol configuration section into machine settings.
func Settings(cfg models.WOLConfig) (wake.Config, address.Mode, wol.Destination, error) {
	mc := wake.DefaultConfig()
	if cfg.MaxAttempts > 0 {
		mc.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.SettleDelay > 0 {
		mc.SettleDelay = cfg.SettleDelay
	}
	if cfg.RetryDelay > 0 {
		mc.RetryDelay = cfg.RetryDelay
	}
	if cfg.ConfirmDisplay > 0 {
		mc.ConfirmDisplay = cfg.ConfirmDisplay
	}
	if cfg.FailureDisplay > 0 {
		mc.FailureDisplay = cfg.FailureDisplay
	}

	switch cfg.OverlapPolicy {
	case "", models.OverlapReject:
		mc.Overlap = wake.OverlapReject
	case models.OverlapPreempt:
		mc.Overlap = wake.OverlapPreempt
	default:
		return mc, 0, wol.Destination{}, fmt.Errorf("unknown overlap policy %q", cfg.OverlapPolicy)
	}

	mode, err := address.ParseMode(cfg.ParseMode)
	if err != nil {
		return mc, 0, wol.Destination{}, err
	}

	dst := wol.Destination{IP: wol.DefaultBroadcast, Port: wol.DefaultPort}
	if cfg.BroadcastIP != "" {
		ip, err := address.ParseIPv4(cfg.BroadcastIP, address.ModeStrict)
		if err != nil {
			return mc, 0, wol.Destination{}, fmt.Errorf("invalid broadcast address: %w", err)
		}
		dst.IP = ip
	}
	if cfg.Port != 0 {
		if cfg.Port < 0 || cfg.Port > 65535 {
			return mc, 0, wol.Destination{}, fmt.Errorf("invalid wol port %d", cfg.Port)
		}
		dst.Port = uint16(cfg.Port)
	}

	return mc, mode, dst, nil
}

// New creates a runner with the real broadcaster and the configured probe.
func New(logger zerolog.Logger, cfg models.Config, notifiers ...Notifier) (*Impl, error) {
	probeSvc, err := probe.New(logger, cfg.Probe)
	if err != nil {
		return nil, err
	}
	return NewWithServices(logger, cfg.WOL, wol.New(logger), probeSvc, notifiers...)
}

// NewWithServices creates a runner with custom services (for testing).
func NewWithServices(
	logger zerolog.Logger,
	cfg models.WOLConfig,
	wolSvc wol.Service,
	probeSvc probe.Service,
	notifiers ...Notifier,
) (*Impl, error) {
	mc, mode, dst, err := Settings(cfg)
	if err != nil {
		return nil, err
	}

	cycleCtx, cycleCancel := context.WithCancel(context.Background())
	return &Impl{
		wolSvc:      wolSvc,
		probeSvc:    probeSvc,
		notifiers:   newNotifyQueue(logger, notifiers),
		logger:      logger,
		mode:        mode,
		destination: dst,
		machine:     wake.NewMachine(mc),
		cycleCtx:    cycleCtx,
		cycleCancel: cycleCancel,
		subs:        make(map[int]chan wake.Session),
		jobSignal:   make(chan struct{}, 1),
		events:      make(chan wake.Event, eventBuffer),
		done:        make(chan struct{}),
	}, nil
}

// Run processes timers and completions until ctx ends.
func (s *Impl) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.work(ctx)
	}()
	go func() {
		defer wg.Done()
		s.notifiers.run(ctx)
	}()

	s.logger.Info().
		Str("broadcast", s.destination.String()).
		Str("parse_mode", s.mode.String()).
		Msg("wake runner started")

	defer func() {
		s.mu.Lock()
		s.stopTimers()
		s.cycleCancel()
		s.mu.Unlock()
		wg.Wait()
		close(s.done)
		s.logger.Info().Msg("wake runner stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-s.events:
			if _, err := s.apply(ev); err != nil {
				s.logger.Warn().Err(err).Msg("event rejected")
			}
		}
	}
}

// NetworkReady records the local address and leaves the disconnected phase.
func (s *Impl) NetworkReady(ip address.IPv4) {
	s.mu.Lock()
	s.addr = ip
	s.mu.Unlock()

	if _, err := s.apply(wake.NetworkReady{}); err != nil {
		s.logger.Warn().Err(err).Msg("network ready rejected")
	}
}

// Wake parses "<ipv4>;<mac>" and starts a wake cycle.
func (s *Impl) Wake(param string) (wake.Session, error) {
	cmd, err := wake.ParseWakeParameter(param, s.mode)
	if err != nil {
		return s.invalid("wakeHost", param, err)
	}
	s.logger.Info().
		Str("target", cmd.Target.String()).
		Str("mac", cmd.MAC.String()).
		Msg("wake requested")
	return s.apply(cmd)
}

// Ping parses an IPv4 address and starts a verification cycle.
func (s *Impl) Ping(param string) (wake.Session, error) {
	cmd, err := wake.ParsePingParameter(param, s.mode)
	if err != nil {
		return s.invalid("pingHost", param, err)
	}
	s.logger.Info().Str("target", cmd.Target.String()).Msg("ping requested")
	return s.apply(cmd)
}

func (s *Impl) invalid(function, param string, err error) (wake.Session, error) {
	s.logger.Warn().Err(err).Str("function", function).Str("arg", param).Msg("invalid arguments")
	sess, applyErr := s.apply(wake.InvalidCommand{})
	if applyErr != nil {
		return sess, applyErr
	}
	return sess, err
}

// WakeHost is Wake reporting success as a bool.
func (s *Impl) WakeHost(param string) bool {
	_, err := s.Wake(param)
	return err == nil
}

// PingHost is Ping reporting success as a bool.
func (s *Impl) PingHost(param string) bool {
	_, err := s.Ping(param)
	return err == nil
}

// Cancel abandons the running cycle. It reports whether one was running.
func (s *Impl) Cancel() bool {
	before := s.Snapshot()
	if !before.Phase.Active() {
		return false
	}
	after, err := s.apply(wake.CancelCommand{})
	return err == nil && after.Cycle != before.Cycle
}

// Status returns the published status string.
func (s *Impl) Status() string {
	return s.Snapshot().Status
}

// Address returns the published local address, empty until the network is ready.
func (s *Impl) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.addr.IsZero() {
		return ""
	}
	return s.addr.String()
}

// Snapshot returns a copy of the session.
func (s *Impl) Snapshot() wake.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.Session()
}

// Subscribe returns a channel receiving every session change. Slow readers
// lose the oldest pending changes. The returned func unsubscribes.
func (s *Impl) Subscribe() (<-chan wake.Session, func()) {
	ch := make(chan wake.Session, subscriberBuffer)

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// Await blocks until cycle reaches its outcome, is cancelled or is replaced
// by a newer cycle, and returns the session at that point.
func (s *Impl) Await(ctx context.Context, cycle uint64) (wake.Session, error) {
	updates, unsubscribe := s.Subscribe()
	defer unsubscribe()

	sess := s.Snapshot()
	for !settled(sess, cycle) {
		select {
		case <-ctx.Done():
			return sess, ctx.Err()
		case <-s.done:
			return sess, errors.New("runner stopped")
		case sess = <-updates:
		}
	}
	return sess, nil
}

func settled(sess wake.Session, cycle uint64) bool {
	if sess.Cycle != cycle {
		return sess.Cycle > cycle
	}
	switch sess.Phase {
	case wake.PhaseConfirmedAwake, wake.PhaseUnreachable, wake.PhaseIdle:
		return true
	}
	return false
}

// apply steps the machine and dispatches the resulting effects.
func (s *Impl) apply(ev wake.Event) (wake.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	effects, err := s.machine.Apply(ev)
	sess := s.machine.Session()
	if err != nil {
		return sess, err
	}

	if sess.Cycle != s.cycle {
		// A new cycle orphans everything still running for the old one.
		s.cycleCancel()
		s.stopTimers()
		s.cycleCtx, s.cycleCancel = context.WithCancel(context.Background())
		s.cycle = sess.Cycle
	}

	for _, effect := range effects {
		switch e := effect.(type) {
		case wake.Broadcast, wake.Probe:
			s.enqueue(job{ctx: s.cycleCtx, effect: e})
		case wake.Schedule:
			fired := e.Fired()
			s.timers = append(s.timers, time.AfterFunc(e.After, func() { s.post(fired) }))
		case wake.StatusChanged:
			s.publish(e.Session)
		}
	}

	return sess, nil
}

func (s *Impl) stopTimers() {
	for _, t := range s.timers {
		t.Stop()
	}
	s.timers = nil
}

// publish fans sess out. Called with mu held so subscribers see changes in order.
func (s *Impl) publish(sess wake.Session) {
	s.logger.Info().
		Str("phase", sess.Phase.String()).
		Str("status", sess.Status).
		Int("attempt", sess.Attempt).
		Uint64("cycle", sess.Cycle).
		Msg("status changed")

	for _, ch := range s.subs {
		select {
		case ch <- sess:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- sess:
			default:
			}
		}
	}

	ev := models.StatusEvent{
		Phase:   sess.Phase.String(),
		Status:  sess.Status,
		Attempt: sess.Attempt,
		Cycle:   sess.Cycle,
		Time:    time.Now(),
	}
	if !sess.Target.IsZero() {
		ev.Target = sess.Target.String()
	}
	s.notifiers.push(ev)
}

func (s *Impl) post(ev wake.Event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

func (s *Impl) enqueue(j job) {
	s.jobsMu.Lock()
	s.jobs = append(s.jobs, j)
	s.jobsMu.Unlock()

	select {
	case s.jobSignal <- struct{}{}:
	default:
	}
}

func (s *Impl) dequeue() (job, bool) {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	if len(s.jobs) == 0 {
		return job{}, false
	}
	j := s.jobs[0]
	s.jobs = s.jobs[1:]
	return j, true
}

// work executes broadcasts and probes one at a time.
func (s *Impl) work(ctx context.Context) {
	for {
		j, ok := s.dequeue()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-s.jobSignal:
				continue
			}
		}

		if ev := s.execute(j); ev != nil {
			select {
			case s.events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *Impl) execute(j job) wake.Event {
	switch e := j.effect.(type) {
	case wake.Broadcast:
		if j.ctx.Err() != nil {
			return nil
		}
		err := s.wolSvc.Send(j.ctx, e.Packet, s.destination)
		if err != nil {
			s.logger.Error().Err(err).Uint64("cycle", e.Cycle).Msg("failed to send magic packet")
		} else {
			s.logger.Info().Str("destination", s.destination.String()).Uint64("cycle", e.Cycle).Msg("magic packet sent")
		}
		return wake.BroadcastDone{Cycle: e.Cycle, Err: err}

	case wake.Probe:
		if j.ctx.Err() != nil {
			return nil
		}
		reachable := false
		result, err := s.probeSvc.Probe(j.ctx, e.Target)
		switch {
		case err != nil:
			s.logger.Warn().Err(err).Str("target", e.Target.String()).Msg("probe could not run")
		case result.Error != nil:
			s.logger.Debug().Err(result.Error).Str("target", e.Target.String()).Int("attempt", e.Attempt).Msg("target did not answer")
		default:
			reachable = result.Reachable
			s.logger.Debug().Str("target", e.Target.String()).Dur("rtt", result.RTT).Msg("target answered")
		}
		return wake.ProbeDone{Cycle: e.Cycle, Attempt: e.Attempt, Reachable: reachable}
	}
	return nil
}
