//go:build integration

package integration

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/fgeck/gowol-homelab/internal/address"
	"github.com/fgeck/gowol-homelab/internal/models"
	"github.com/fgeck/gowol-homelab/internal/services/probe"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

// icmpProbe skips the test when the kernel does not allow ICMP sockets for
// this user (see net.ipv4.ping_group_range).
func icmpProbe(t *testing.T, privileged bool) *probe.ICMPImpl {
	t.Helper()
	listener := &probe.DefaultListener{Privileged: privileged}
	conn, err := listener.Listen()
	if err != nil {
		t.Skipf("ICMP sockets not permitted: %v", err)
	}
	_ = conn.Close()

	return probe.NewICMPWithListener(testLogger(), models.ProbeConfig{
		Method:     models.ProbeICMP,
		Timeout:    time.Second,
		Privileged: privileged,
	}, listener)
}

func TestICMPProbe_Loopback_Integration(t *testing.T) {
	svc := icmpProbe(t, false)

	result, err := svc.Probe(context.Background(), address.IPv4{127, 0, 0, 1})

	require.NoError(t, err)
	assert.True(t, result.Reachable)
	assert.NoError(t, result.Error)
}

func TestICMPProbe_RepeatedProbes_Integration(t *testing.T) {
	svc := icmpProbe(t, false)

	for i := 0; i < 3; i++ {
		result, err := svc.Probe(context.Background(), address.IPv4{127, 0, 0, 1})
		require.NoError(t, err)
		assert.True(t, result.Reachable, "probe %d", i)
	}
}

func TestICMPProbe_Privileged_Integration(t *testing.T) {
	svc := icmpProbe(t, true)

	result, err := svc.Probe(context.Background(), address.IPv4{127, 0, 0, 1})

	require.NoError(t, err)
	assert.True(t, result.Reachable)
}

func TestICMPProbe_Unroutable_Integration(t *testing.T) {
	svc := icmpProbe(t, false)

	// TEST-NET-1 is reserved for documentation and never answers.
	result, err := svc.Probe(context.Background(), address.IPv4{192, 0, 2, 1})

	require.NoError(t, err)
	assert.False(t, result.Reachable)
	assert.Error(t, result.Error)
}
