// Package wol provides Wake-on-LAN packet construction and delivery.
package wol

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/fgeck/gowol-homelab/internal/address"
	"github.com/rs/zerolog"
)

// Default destination for magic packets.
const (
	DefaultPort = 7
)

// DefaultBroadcast is the limited broadcast address 255.255.255.255.
var DefaultBroadcast = address.IPv4{255, 255, 255, 255}

// ErrNetwork wraps every failure to put a magic packet on the wire.
var ErrNetwork = errors.New("network error")

// Destination is where a magic packet is sent.
type Destination struct {
	IP   address.IPv4
	Port uint16
}

// String returns host:port.
func (d Destination) String() string {
	return net.JoinHostPort(d.IP.String(), fmt.Sprintf("%d", d.Port))
}

// Service defines the interface for broadcasting magic packets.
type Service interface {
	Send(ctx context.Context, pkt Packet, dst Destination) error
}

// PacketConn is the subset of *net.UDPConn used to send a datagram.
type PacketConn interface {
	WriteTo(b []byte, addr net.Addr) (int, error)
	Close() error
}

// Dialer opens the ephemeral endpoint a packet is sent from.
type Dialer interface {
	Open() (PacketConn, error)
}

// DefaultDialer binds an ephemeral IPv4 UDP socket.
type DefaultDialer struct{}

// Open binds 0.0.0.0:0. The Go runtime enables SO_BROADCAST on UDP sockets.
func (d *DefaultDialer) Open() (PacketConn, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Impl implements the broadcast Service interface.
type Impl struct {
	dialer Dialer
	logger zerolog.Logger
}

// New creates a new broadcaster.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		dialer: &DefaultDialer{},
		logger: logger,
	}
}

// NewWithDialer creates a new broadcaster with a custom dialer (for testing).
func NewWithDialer(logger zerolog.Logger, dialer Dialer) *Impl {
	return &Impl{
		dialer: dialer,
		logger: logger,
	}
}

// Send writes pkt as a single datagram to dst. The endpoint is released before
// Send returns, including when ctx is cancelled mid-write.
func (s *Impl) Send(ctx context.Context, pkt Packet, dst Destination) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	conn, err := s.dialer.Open()
	if err != nil {
		return fmt.Errorf("%w: failed to open UDP endpoint: %w", ErrNetwork, err)
	}

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

	addr := &net.UDPAddr{IP: dst.IP.IP(), Port: int(dst.Port)}

	s.logger.Debug().
		Str("destination", dst.String()).
		Int("bytes", PacketLength).
		Msg("sending magic packet")

	n, err := conn.WriteTo(pkt.Bytes(), addr)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: failed to send magic packet to %s: %w", ErrNetwork, dst, err)
	}
	if n != PacketLength {
		return fmt.Errorf("%w: incomplete magic packet sent to %s: %d of %d bytes", ErrNetwork, dst, n, PacketLength)
	}

	return nil
}
