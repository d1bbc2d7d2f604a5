package netinfo

import (
	"context"
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fgeck/gowol-homelab/internal/address"
	"github.com/fgeck/gowol-homelab/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func TestWaitReady_PollsUntilAddress(t *testing.T) {
	var calls atomic.Int32
	var gotIface string
	lookup := func(iface string) (address.IPv4, error) {
		gotIface = iface
		if calls.Add(1) < 3 {
			return address.IPv4{}, ErrNoAddress
		}
		return address.IPv4{192, 168, 1, 2}, nil
	}

	cfg := models.NetworkConfig{Interface: "wlan0", ReadyInterval: 10}
	m := NewMonitorWithLookup(testLogger(), cfg, lookup)

	ip, err := m.WaitReady(context.Background())

	require.NoError(t, err)
	assert.Equal(t, address.IPv4{192, 168, 1, 2}, ip)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, "wlan0", gotIface)
}

func TestWaitReady_ContextCancelled(t *testing.T) {
	lookup := func(string) (address.IPv4, error) {
		return address.IPv4{}, ErrNoAddress
	}
	m := NewMonitorWithLookup(testLogger(), models.NetworkConfig{ReadyInterval: 5}, lookup)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := m.WaitReady(ctx)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewMonitor_DefaultInterval(t *testing.T) {
	m := NewMonitor(testLogger(), models.NetworkConfig{})
	assert.Equal(t, DefaultReadyInterval, m.interval)
}

func TestPickIPv4(t *testing.T) {
	tests := []struct {
		name    string
		ips     []net.IP
		want    address.IPv4
		wantErr bool
	}{
		{
			name: "first global",
			ips:  []net.IP{net.ParseIP("192.168.1.10"), net.ParseIP("10.0.0.1")},
			want: address.IPv4{192, 168, 1, 10},
		},
		{
			name: "skips loopback and link local",
			ips:  []net.IP{net.ParseIP("127.0.0.1"), net.ParseIP("169.254.3.4"), net.ParseIP("10.1.2.3")},
			want: address.IPv4{10, 1, 2, 3},
		},
		{
			name: "skips ipv6",
			ips:  []net.IP{net.ParseIP("fd00::1"), net.ParseIP("172.16.0.9")},
			want: address.IPv4{172, 16, 0, 9},
		},
		{
			name:    "nothing usable",
			ips:     []net.IP{net.ParseIP("127.0.0.1"), net.ParseIP("fe80::1")},
			wantErr: true,
		},
		{
			name:    "empty",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := pickIPv4("eth0", tt.ips)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNoAddress)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
