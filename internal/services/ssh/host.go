package ssh

import (
	"context"
	"errors"

	"github.com/fgeck/gowol-homelab/internal/models"
)

// HostShutdown shuts down any host with one set of configured credentials.
type HostShutdown struct {
	svc Service
	cfg models.SSHShutdownConfig
}

// NewHostShutdown binds svc to the ssh_shutdown credentials.
func NewHostShutdown(svc Service, cfg models.SSHShutdownConfig) *HostShutdown {
	return &HostShutdown{svc: svc, cfg: cfg}
}

// Shutdown runs the shutdown command on host.
func (h *HostShutdown) Shutdown(ctx context.Context, host string) error {
	result, err := h.svc.Shutdown(ctx, ForHost(h.cfg, host))
	if err != nil {
		return err
	}
	if result.Error != nil {
		return result.Error
	}
	if !result.CommandRun {
		return errors.New("shutdown command was not run")
	}
	return nil
}
