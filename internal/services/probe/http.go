package probe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fgeck/gowol-homelab/internal/address"
	"github.com/fgeck/gowol-homelab/internal/models"
	"github.com/rs/zerolog"
)

// TargetPlaceholder in a probe URL is replaced by the target address.
const TargetPlaceholder = "{ip}"

// HTTPClient allows mocking HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPImpl probes by issuing a single GET request. Any response counts as
// reachable, whatever its status code.
type HTTPImpl struct {
	httpClient HTTPClient
	url        string
	timeout    time.Duration
	logger     zerolog.Logger
}

// NewHTTP creates an HTTP probe.
func NewHTTP(logger zerolog.Logger, cfg models.ProbeConfig) *HTTPImpl {
	return NewHTTPWithClient(logger, cfg, &http.Client{})
}

// NewHTTPWithClient creates an HTTP probe with a custom client (for testing).
func NewHTTPWithClient(logger zerolog.Logger, cfg models.ProbeConfig, httpClient HTTPClient) *HTTPImpl {
	return &HTTPImpl{
		httpClient: httpClient,
		url:        cfg.URL,
		timeout:    timeoutOf(cfg),
		logger:     logger,
	}
}

// Probe requests the configured URL for target.
func (s *HTTPImpl) Probe(ctx context.Context, target address.IPv4) (*models.ProbeResult, error) {
	result := &models.ProbeResult{}
	url := strings.ReplaceAll(s.url, TargetPlaceholder, target.String())

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	start := time.Now()
	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.logger.Debug().Err(err).Str("url", url).Msg("target not ready yet")
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			result.Error = ErrProbeTimeout
		} else {
			result.Error = err
		}
		return result, nil
	}
	_ = resp.Body.Close()

	result.Reachable = true
	result.RTT = time.Since(start)

	s.logger.Debug().
		Str("url", url).
		Int("status", resp.StatusCode).
		Dur("rtt", result.RTT).
		Msg("target answered")

	return result, nil
}
