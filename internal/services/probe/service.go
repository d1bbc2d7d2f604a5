// Package probe checks whether a host answers on the network.
package probe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fgeck/gowol-homelab/internal/address"
	"github.com/fgeck/gowol-homelab/internal/models"
	"github.com/rs/zerolog"
)

// DefaultTimeout bounds a single probe attempt when none is configured.
const DefaultTimeout = time.Second

// ErrProbeTimeout is reported when the target does not answer in time.
var ErrProbeTimeout = errors.New("no reply before probe timeout")

// Service defines the interface for reachability probes.
//
// Probe performs exactly one attempt. An unreachable target is reported in
// the result; the returned error is reserved for probes that could not run.
type Service interface {
	Probe(ctx context.Context, target address.IPv4) (*models.ProbeResult, error)
}

// New creates the probe selected by cfg.Method.
func New(logger zerolog.Logger, cfg models.ProbeConfig) (Service, error) {
	switch cfg.Method {
	case "", models.ProbeICMP:
		return NewICMP(logger, cfg), nil
	case models.ProbeHTTP:
		if cfg.URL == "" {
			return nil, fmt.Errorf("probe method %q requires a url", cfg.Method)
		}
		return NewHTTP(logger, cfg), nil
	default:
		return nil, fmt.Errorf("unknown probe method %q", cfg.Method)
	}
}

func timeoutOf(cfg models.ProbeConfig) time.Duration {
	if cfg.Timeout <= 0 {
		return DefaultTimeout
	}
	return cfg.Timeout
}
