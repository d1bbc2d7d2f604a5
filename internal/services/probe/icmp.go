package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync/atomic"
	"time"

	"github.com/fgeck/gowol-homelab/internal/address"
	"github.com/fgeck/gowol-homelab/internal/models"
	"github.com/rs/zerolog"
	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

const protocolICMP = 1 // IANA protocol number, used by icmp.ParseMessage

var echoPayload = []byte("gowol-homelab")

// PacketConn is the subset of *icmp.PacketConn used by the probe.
type PacketConn interface {
	WriteTo(b []byte, dst net.Addr) (int, error)
	ReadFrom(b []byte) (int, net.Addr, error)
	SetReadDeadline(t time.Time) error
	Close() error
}

// Listener opens ICMP endpoints. It allows mocking in tests.
type Listener interface {
	Listen() (PacketConn, error)
}

// DefaultListener opens real ICMP sockets.
type DefaultListener struct {
	// Privileged selects raw sockets. Otherwise unprivileged datagram
	// sockets are used, which Linux allows via net.ipv4.ping_group_range.
	Privileged bool
}

// Listen opens an ICMP endpoint on all local addresses.
func (l *DefaultListener) Listen() (PacketConn, error) {
	network := "udp4"
	if l.Privileged {
		network = "ip4:icmp"
	}
	conn, err := icmp.ListenPacket(network, "0.0.0.0")
	if err != nil {
		return nil, fmt.Errorf("failed to open %s socket: %w", network, err)
	}
	return conn, nil
}

// ICMPImpl probes with a single ICMP echo request.
type ICMPImpl struct {
	listener   Listener
	privileged bool
	timeout    time.Duration
	id         int
	seq        atomic.Uint32
	logger     zerolog.Logger
}

// NewICMP creates an ICMP echo probe.
func NewICMP(logger zerolog.Logger, cfg models.ProbeConfig) *ICMPImpl {
	return NewICMPWithListener(logger, cfg, &DefaultListener{Privileged: cfg.Privileged})
}

// NewICMPWithListener creates an ICMP probe with a custom listener (for testing).
func NewICMPWithListener(logger zerolog.Logger, cfg models.ProbeConfig, listener Listener) *ICMPImpl {
	return &ICMPImpl{
		listener:   listener,
		privileged: cfg.Privileged,
		timeout:    timeoutOf(cfg),
		id:         os.Getpid() & 0xffff,
		logger:     logger,
	}
}

// Probe sends one echo request to target and waits for the matching reply.
func (s *ICMPImpl) Probe(ctx context.Context, target address.IPv4) (*models.ProbeResult, error) {
	result := &models.ProbeResult{}

	if err := ctx.Err(); err != nil {
		result.Error = err
		return result, nil
	}

	conn, err := s.listener.Listen()
	if err != nil {
		return nil, err
	}

	// Closing the endpoint is what unblocks ReadFrom on cancellation.
	done := make(chan struct{})
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		select {
		case <-ctx.Done():
		case <-done:
		}
		_ = conn.Close()
	}()
	defer func() {
		close(done)
		<-closed
	}()

	seq := int(s.seq.Add(1) & 0xffff)
	msg := icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Code: 0,
		Body: &icmp.Echo{ID: s.id, Seq: seq, Data: echoPayload},
	}
	wb, err := msg.Marshal(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal echo request: %w", err)
	}

	var dst net.Addr = &net.UDPAddr{IP: target.IP()}
	if s.privileged {
		dst = &net.IPAddr{IP: target.IP()}
	}

	deadline := time.Now().Add(s.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("failed to set read deadline: %w", err)
	}

	s.logger.Debug().
		Str("target", target.String()).
		Int("seq", seq).
		Msg("sending echo request")

	start := time.Now()
	if _, err := conn.WriteTo(wb, dst); err != nil {
		result.Error = s.readErr(ctx, fmt.Errorf("failed to send echo request: %w", err))
		return result, nil
	}

	buf := make([]byte, 1500)
	for {
		n, peer, err := conn.ReadFrom(buf)
		if err != nil {
			result.Error = s.readErr(ctx, err)
			return result, nil
		}

		if !s.isReply(buf[:n], peer, target, seq) {
			continue
		}

		result.Reachable = true
		result.RTT = time.Since(start)
		s.logger.Debug().
			Str("target", target.String()).
			Dur("rtt", result.RTT).
			Msg("echo reply received")
		return result, nil
	}
}

func (s *ICMPImpl) isReply(b []byte, peer net.Addr, target address.IPv4, seq int) bool {
	msg, err := icmp.ParseMessage(protocolICMP, b)
	if err != nil || msg.Type != ipv4.ICMPTypeEchoReply {
		return false
	}
	echo, ok := msg.Body.(*icmp.Echo)
	if !ok || echo.Seq != seq {
		return false
	}
	// Datagram sockets get their identifier rewritten by the kernel.
	if s.privileged && echo.ID != s.id {
		return false
	}

	var from net.IP
	switch a := peer.(type) {
	case *net.UDPAddr:
		from = a.IP
	case *net.IPAddr:
		from = a.IP
	default:
		return false
	}
	return from.Equal(target.IP())
}

func (s *ICMPImpl) readErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var netErr net.Error
	if errors.Is(err, os.ErrDeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return ErrProbeTimeout
	}
	return err
}
