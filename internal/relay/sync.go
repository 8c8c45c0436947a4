package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Control surface paths on the relay.
const (
	ConfigPath = "/v1/config"
	HealthPath = "/v1/health"
	ModelsPath = "/v1/models"
)

// HealthTimeout bounds a health check so a hung relay cannot stall a poll.
const HealthTimeout = 1 * time.Second

// Liveness reports whether the relay process is running. It must not block.
type Liveness interface {
	IsRunning() bool
}

// Synchronizer pushes configuration to, and reads state from, the relay.
// ApplyConfig and ListModels refuse with ErrNotRunning before any network
// I/O when the liveness source says the relay is down. None of the calls
// retry.
type Synchronizer struct {
	live          Liveness
	timeout       time.Duration
	healthTimeout time.Duration
}

// NewSynchronizer creates a Synchronizer gated on live.
func NewSynchronizer(live Liveness) *Synchronizer {
	return &Synchronizer{
		live:          live,
		timeout:       DefaultTimeout,
		healthTimeout: HealthTimeout,
	}
}

// ApplyConfig sends cfg to the relay at endpoint in a single POST.
func (s *Synchronizer) ApplyConfig(ctx context.Context, endpoint string, cfg LiveConfig) error {
	if !s.live.IsRunning() {
		return ErrNotRunning
	}

	slog.Debug("Applying live configuration", "endpoint", endpoint, "memcached", cfg.MemcachedEnabled,
		"rate_limit", cfg.RateLimit.Enabled, "value", cfg.RateLimit.Value, "period", cfg.RateLimit.Period)

	if _, err := NewClient(endpoint, s.timeout).Post(ctx, ConfigPath, cfg, nil); err != nil {
		return &ApplyError{Endpoint: endpoint, Err: err}
	}
	return nil
}

// CheckHealth queries the relay's health endpoint. A 2xx answer is Healthy,
// any other status Unhealthy, and a network fault or timeout Unreachable.
// It never fails and is not gated on liveness.
func (s *Synchronizer) CheckHealth(ctx context.Context, endpoint string) HealthStatus {
	ctx, cancel := context.WithTimeout(ctx, s.healthTimeout)
	defer cancel()

	_, err := NewClient(endpoint, s.healthTimeout).Get(ctx, HealthPath, nil)
	if err == nil {
		return Healthy
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		slog.Debug("Relay health check failed", "endpoint", endpoint, "status", apiErr.StatusCode)
		return Unhealthy
	}
	slog.Debug("Relay unreachable", "endpoint", endpoint, "error", err)
	return Unreachable
}

// ListModels returns the model ids the relay serves, in listing order.
func (s *Synchronizer) ListModels(ctx context.Context, endpoint string) ([]string, error) {
	if !s.live.IsRunning() {
		return nil, ErrNotRunning
	}

	var list ModelList
	if _, err := NewClient(endpoint, s.timeout).Get(ctx, ModelsPath, &list); err != nil {
		return nil, &FetchError{Endpoint: endpoint, Err: err}
	}
	if list.Data == nil {
		return nil, &FetchError{Endpoint: endpoint, Err: fmt.Errorf("response has no data array")}
	}

	ids := make([]string, 0, len(list.Data))
	for _, m := range list.Data {
		if m.ID == "" {
			continue
		}
		ids = append(ids, m.ID)
	}
	return ids, nil
}
