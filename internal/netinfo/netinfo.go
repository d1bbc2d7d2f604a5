// Package netinfo finds the local IPv4 address and reports when the network is usable.
package netinfo

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/fgeck/gowol-homelab/internal/address"
	"github.com/fgeck/gowol-homelab/internal/models"
	"github.com/rs/zerolog"
)

// DefaultReadyInterval is the polling interval of WaitReady.
const DefaultReadyInterval = time.Second

// ErrNoAddress is returned while the interface has no usable IPv4 address.
var ErrNoAddress = errors.New("no usable IPv4 address")

// LookupFunc resolves the IPv4 address of iface. An empty iface selects the
// interface carrying the default route.
type LookupFunc func(iface string) (address.IPv4, error)

// Monitor waits for the local interface to obtain an address.
type Monitor struct {
	lookup   LookupFunc
	iface    string
	interval time.Duration
	logger   zerolog.Logger
}

// NewMonitor creates a monitor backed by LocalIPv4.
func NewMonitor(logger zerolog.Logger, cfg models.NetworkConfig) *Monitor {
	return NewMonitorWithLookup(logger, cfg, LocalIPv4)
}

// NewMonitorWithLookup creates a monitor with a custom lookup (for testing).
func NewMonitorWithLookup(logger zerolog.Logger, cfg models.NetworkConfig, lookup LookupFunc) *Monitor {
	interval := time.Duration(cfg.ReadyInterval) * time.Millisecond
	if interval <= 0 {
		interval = DefaultReadyInterval
	}
	return &Monitor{
		lookup:   lookup,
		iface:    cfg.Interface,
		interval: interval,
		logger:   logger,
	}
}

// WaitReady blocks until the interface has an IPv4 address and returns it.
func (m *Monitor) WaitReady(ctx context.Context) (address.IPv4, error) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		ip, err := m.lookup(m.iface)
		if err == nil {
			m.logger.Info().
				Str("interface", m.iface).
				Str("address", ip.String()).
				Msg("network ready")
			return ip, nil
		}
		m.logger.Debug().Err(err).Str("interface", m.iface).Msg("network not ready yet")

		select {
		case <-ctx.Done():
			return address.IPv4{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// pickIPv4 returns the first global unicast IPv4 address in ips.
func pickIPv4(iface string, ips []net.IP) (address.IPv4, error) {
	for _, ip := range ips {
		if ip.IsLoopback() || ip.IsLinkLocalUnicast() || !ip.IsGlobalUnicast() {
			continue
		}
		if v4, ok := address.FromIP(ip); ok {
			return v4, nil
		}
	}
	return address.IPv4{}, fmt.Errorf("%w on %s", ErrNoAddress, iface)
}
