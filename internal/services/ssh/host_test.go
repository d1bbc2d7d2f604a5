package ssh

import (
	"context"
	"errors"
	"testing"

	"github.com/fgeck/gowol-homelab/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockService struct {
	shutdownFunc func(ctx context.Context, cfg models.SSHShutdownConfig) (*models.SSHResult, error)
}

func (m *mockService) Shutdown(ctx context.Context, cfg models.SSHShutdownConfig) (*models.SSHResult, error) {
	if m.shutdownFunc != nil {
		return m.shutdownFunc(ctx, cfg)
	}
	return &models.SSHResult{CommandRun: true}, nil
}

func (m *mockService) TestConnection(_ context.Context, _ models.SSHShutdownConfig) (*models.SSHResult, error) {
	return &models.SSHResult{CommandRun: true}, nil
}

func TestHostShutdown_TargetsArgument(t *testing.T) {
	var got models.SSHShutdownConfig
	svc := &mockService{
		shutdownFunc: func(_ context.Context, cfg models.SSHShutdownConfig) (*models.SSHResult, error) {
			got = cfg
			return &models.SSHResult{CommandRun: true}, nil
		},
	}

	h := NewHostShutdown(svc, models.SSHShutdownConfig{Username: "admin", KeyPath: "/key"})
	err := h.Shutdown(context.Background(), "192.168.1.50")

	require.NoError(t, err)
	assert.Equal(t, "192.168.1.50", got.Host)
	assert.Equal(t, DefaultPort, got.Port)
	assert.Equal(t, "admin", got.Username)
}

func TestHostShutdown_ResultError(t *testing.T) {
	svc := &mockService{
		shutdownFunc: func(context.Context, models.SSHShutdownConfig) (*models.SSHResult, error) {
			return &models.SSHResult{Error: errors.New("connection refused")}, nil
		},
	}

	err := NewHostShutdown(svc, models.SSHShutdownConfig{}).Shutdown(context.Background(), "10.0.0.2")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestHostShutdown_CommandNotRun(t *testing.T) {
	svc := &mockService{
		shutdownFunc: func(context.Context, models.SSHShutdownConfig) (*models.SSHResult, error) {
			return &models.SSHResult{}, nil
		},
	}

	err := NewHostShutdown(svc, models.SSHShutdownConfig{}).Shutdown(context.Background(), "10.0.0.2")

	assert.EqualError(t, err, "shutdown command was not run")
}
