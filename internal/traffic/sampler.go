// Package traffic implements traffic-rate sampling from the system's
// network I/O counters.
package traffic

import (
	"context"
	"errors"
	"fmt"
	"time"

	psnet "github.com/shirou/gopsutil/v3/net"
	"go.uber.org/zap"

	"github.com/HerbHall/netdiag/pkg/models"
)

// Config holds the traffic sampler configuration.
type Config struct {
	// AlertThresholdBytes marks a sample when either delta exceeds it.
	// 0 disables the alert.
	AlertThresholdBytes uint64 `mapstructure:"alert_threshold_bytes"`
}

// DefaultConfig returns the default sampler configuration.
func DefaultConfig() Config {
	return Config{AlertThresholdBytes: 1 << 20}
}

// counterFunc reads the current system-wide bytes sent and received.
type counterFunc func(ctx context.Context) (bytesSent, bytesRecv uint64, err error)

// Sampler measures bytes sent/received over a sampling window.
type Sampler struct {
	threshold uint64
	counters  counterFunc
	logger    *zap.Logger
}

// New creates a sampler backed by the system network counters.
func New(cfg Config, logger *zap.Logger) *Sampler {
	return &Sampler{
		threshold: cfg.AlertThresholdBytes,
		counters:  systemCounters,
		logger:    logger,
	}
}

// systemCounters reads aggregate I/O counters across all interfaces.
func systemCounters(ctx context.Context) (uint64, uint64, error) {
	stats, err := psnet.IOCountersWithContext(ctx, false)
	if err != nil {
		return 0, 0, err
	}
	if len(stats) == 0 {
		return 0, 0, errors.New("no network counters reported")
	}
	return stats[0].BytesSent, stats[0].BytesRecv, nil
}

// Sample snapshots the counters, waits for d, snapshots again, and
// returns the deltas. d == 0 is a valid boundary case yielding zero
// deltas without error. A counter source that cannot be read reports a
// DependencyUnavailableError; zero observed traffic is a zero-valued
// sample, not an error.
func (s *Sampler) Sample(ctx context.Context, d time.Duration) (*models.TrafficSample, error) {
	if d < 0 {
		return nil, fmt.Errorf("sampling duration must not be negative, got %v", d)
	}

	sentBefore, recvBefore, err := s.counters(ctx)
	if err != nil {
		return nil, &models.DependencyUnavailableError{Dependency: "network I/O counters", Err: err}
	}
	if d == 0 {
		return &models.TrafficSample{Duration: 0}, nil
	}

	s.logger.Debug("sampling network traffic", zap.Duration("window", d))
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	sentAfter, recvAfter, err := s.counters(ctx)
	if err != nil {
		return nil, &models.DependencyUnavailableError{Dependency: "network I/O counters", Err: err}
	}

	sample := &models.TrafficSample{
		BytesSent: clampedDelta(sentAfter, sentBefore),
		BytesRecv: clampedDelta(recvAfter, recvBefore),
		Duration:  d,
	}
	if s.threshold > 0 && (sample.BytesSent > s.threshold || sample.BytesRecv > s.threshold) {
		sample.Alert = true
		s.logger.Warn("high network traffic detected",
			zap.Uint64("bytes_sent", sample.BytesSent),
			zap.Uint64("bytes_recv", sample.BytesRecv),
			zap.Uint64("threshold", s.threshold),
		)
	}

	s.logger.Info("traffic sample complete",
		zap.Uint64("bytes_sent", sample.BytesSent),
		zap.Uint64("bytes_recv", sample.BytesRecv),
		zap.Duration("window", d),
	)
	return sample, nil
}

// clampedDelta guards against counter resets; a reset reports 0 rather
// than an underflowed value.
func clampedDelta(after, before uint64) uint64 {
	if after < before {
		return 0
	}
	return after - before
}
