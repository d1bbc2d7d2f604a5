//go:build e2e

package e2e

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/fgeck/gowol-homelab/internal/models"
	"github.com/fgeck/gowol-homelab/internal/services/ssh"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sshTarget returns the credentials from the environment and the host the
// shutdown command would receive as its argument. The host is deliberately
// left out of the config so every test goes through ForHost.
func sshTarget(t *testing.T) (models.SSHShutdownConfig, string) {
	t.Helper()

	host := os.Getenv("TEST_SSH_HOST")
	if host == "" {
		t.Skip("TEST_SSH_HOST not set")
	}
	keyPath := os.Getenv("TEST_SSH_KEY_PATH")
	if keyPath == "" {
		t.Skip("TEST_SSH_KEY_PATH not set")
	}

	port := 0
	if s := os.Getenv("TEST_SSH_PORT"); s != "" {
		p, err := strconv.Atoi(s)
		require.NoError(t, err)
		port = p
	}

	user := os.Getenv("TEST_SSH_USER")
	if user == "" {
		user = "root"
	}
	targetOS := os.Getenv("TEST_SSH_OS")
	if targetOS == "" {
		targetOS = "linux"
	}

	return models.SSHShutdownConfig{
		Port:          port,
		Username:      user,
		KeyPath:       keyPath,
		KnownHosts:    os.Getenv("TEST_SSH_KNOWN_HOSTS"),
		ShutdownDelay: 60,
		OS:            targetOS,
	}, host
}

func TestSSHTestConnection_HostFromArgument_E2E(t *testing.T) {
	cfg, host := sshTarget(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, err := ssh.New(testLogger()).TestConnection(ctx, ssh.ForHost(cfg, host))

	require.NoError(t, err)
	assert.Nil(t, result.Error)
	assert.True(t, result.CommandRun)
	assert.Contains(t, result.Output, "OK")
}

func TestSSHKnownHosts_UnknownHostRejected_E2E(t *testing.T) {
	cfg, host := sshTarget(t)
	cfg.KnownHosts = filepath.Join(t.TempDir(), "known_hosts")
	require.NoError(t, os.WriteFile(cfg.KnownHosts, nil, 0o600))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, err := ssh.New(testLogger()).TestConnection(ctx, ssh.ForHost(cfg, host))

	require.NoError(t, err)
	assert.False(t, result.CommandRun)
	require.Error(t, result.Error)
	assert.Contains(t, result.Error.Error(), "knownhosts")
}

func TestHostShutdown_Unreachable_E2E(t *testing.T) {
	cfg, _ := sshTarget(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := ssh.NewHostShutdown(ssh.New(testLogger()), cfg).Shutdown(ctx, "192.168.255.254")

	assert.Error(t, err)
}

func TestShutdownCommand_MatchesTargetOS_E2E(t *testing.T) {
	cfg, host := sshTarget(t)

	cmd := ssh.ShutdownCommand(ssh.ForHost(cfg, host))

	if cfg.OS == "windows" {
		assert.Equal(t, "shutdown /s /t 3600", cmd)
	} else {
		assert.Equal(t, "sudo shutdown -h +60", cmd)
	}
}

// WARNING: this schedules a real shutdown one hour out on TEST_SSH_HOST.
// Cancel it with `shutdown -c` (linux) or `shutdown /a` (windows).
func TestHostShutdown_E2E(t *testing.T) {
	if os.Getenv("TEST_SSH_SHUTDOWN_ENABLED") != "true" {
		t.Skip("TEST_SSH_SHUTDOWN_ENABLED is not true - skipping actual shutdown test")
	}
	cfg, host := sshTarget(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := ssh.NewHostShutdown(ssh.New(testLogger()), cfg).Shutdown(ctx, host)

	require.NoError(t, err)
}
