package wol

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/fgeck/gowol-homelab/internal/address"
	"github.com/rs/zerolog"
)

// Received is a magic packet observed by a Listener.
type Received struct {
	Target address.MAC
	Source net.Addr
}

// Listener receives magic packets on a UDP port. It is a diagnostic aid for
// checking that broadcasts reach a segment.
type Listener struct {
	conn   net.PacketConn
	logger zerolog.Logger
}

// Listen binds addr (for example ":9").
func Listen(addr string, logger zerolog.Logger) (*Listener, error) {
	conn, err := net.ListenPacket("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to listen on %s: %w", ErrNetwork, addr, err)
	}
	return &Listener{conn: conn, logger: logger}, nil
}

// Addr returns the bound local address.
func (l *Listener) Addr() net.Addr {
	return l.conn.LocalAddr()
}

// Serve calls handle for each valid magic packet until ctx is done. Datagrams
// that are not magic packets are logged and skipped.
func (l *Listener) Serve(ctx context.Context, handle func(Received)) error {
	go func() {
		<-ctx.Done()
		_ = l.conn.Close()
	}()

	buf := make([]byte, 1500)
	for {
		n, src, err := l.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("%w: read failed: %w", ErrNetwork, err)
		}

		mac, err := Decode(buf[:n])
		if err != nil {
			l.logger.Debug().Err(err).Str("source", src.String()).Int("bytes", n).Msg("ignoring datagram")
			continue
		}

		handle(Received{Target: mac, Source: src})
	}
}

// Close releases the socket.
func (l *Listener) Close() error {
	return l.conn.Close()
}
