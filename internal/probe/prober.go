// Package probe implements ICMP reachability probing.
package probe

import (
	"context"
	"errors"
	"runtime"
	"time"

	probing "github.com/prometheus-community/pro-bing"
	"go.uber.org/zap"

	"github.com/HerbHall/netdiag/pkg/models"
)

// Config holds the reachability prober configuration.
type Config struct {
	// Count is the default number of echo probes per invocation.
	Count int `mapstructure:"count"`
	// Timeout is the per-probe reply deadline.
	Timeout time.Duration `mapstructure:"timeout"`
	// Interval is the pause between consecutive probes.
	Interval time.Duration `mapstructure:"interval"`
}

// DefaultConfig returns the default prober configuration.
func DefaultConfig() Config {
	return Config{
		Count:    4,
		Timeout:  2 * time.Second,
		Interval: time.Second,
	}
}

// Prober sends ICMP echo probes and reports liveness and latency.
type Prober struct {
	count    int
	timeout  time.Duration
	interval time.Duration
	logger   *zap.Logger
}

// New creates a prober. Zero or negative config values fall back to
// the defaults.
func New(cfg Config, logger *zap.Logger) *Prober {
	def := DefaultConfig()
	if cfg.Count <= 0 {
		cfg.Count = def.Count
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	return &Prober{
		count:    cfg.Count,
		timeout:  cfg.Timeout,
		interval: cfg.Interval,
		logger:   logger,
	}
}

// Probe sends count echo probes to host and collects one round-trip
// time per reply, in probe send order. count <= 0 uses the configured
// default.
//
// A lost or timed-out probe is a loss in the result, never an error;
// Probe fails only when the host cannot be resolved, reported as a
// ResolutionError. When the preferred socket mode is not permitted the
// prober retries in the other mode and marks the result degraded.
func (p *Prober) Probe(ctx context.Context, host string, count int) (*models.PingResult, error) {
	if count <= 0 {
		count = p.count
	}

	// Raw ICMP sockets need no extra setup on Windows; elsewhere the
	// unprivileged datagram mode is the one that usually works.
	privileged := runtime.GOOS == "windows"

	result, err := p.run(ctx, host, count, privileged)
	if err == nil {
		return result, nil
	}
	var resErr *models.ResolutionError
	if errors.As(err, &resErr) {
		return nil, resErr
	}

	p.logger.Debug("ping socket mode failed, retrying in fallback mode",
		zap.String("host", host),
		zap.Bool("privileged", privileged),
		zap.Error(err),
	)
	result, err = p.run(ctx, host, count, !privileged)
	if err != nil {
		return nil, err
	}
	result.Degraded = true
	return result, nil
}

// run executes one pinger pass. Probes are sequential within the
// pinger, so the RTT sequence preserves send order.
func (p *Prober) run(ctx context.Context, host string, count int, privileged bool) (*models.PingResult, error) {
	pinger, err := probing.NewPinger(host)
	if err != nil {
		return nil, &models.ResolutionError{Host: host, Err: err}
	}

	pinger.Count = count
	pinger.Interval = p.interval
	pinger.Timeout = time.Duration(count)*p.interval + p.timeout
	pinger.SetPrivileged(privileged)

	rtts := make([]time.Duration, 0, count)
	pinger.OnRecv = func(pkt *probing.Packet) {
		rtts = append(rtts, pkt.Rtt)
	}

	p.logger.Debug("probing host",
		zap.String("host", host),
		zap.Int("count", count),
		zap.Bool("privileged", privileged),
	)

	done := make(chan error, 1)
	go func() {
		done <- pinger.Run()
	}()

	select {
	case err = <-done:
	case <-ctx.Done():
		pinger.Stop()
		<-done
		err = nil // whatever was collected before the interrupt stands
	}
	if err != nil {
		return nil, err
	}

	stats := pinger.Statistics()
	result := &models.PingResult{
		Host:     host,
		Sent:     stats.PacketsSent,
		Received: stats.PacketsRecv,
		RTTs:     rtts,
	}

	p.logger.Info("probe finished",
		zap.String("host", host),
		zap.Int("sent", result.Sent),
		zap.Int("received", result.Received),
		zap.Float64("loss", result.PacketLoss()),
		zap.Duration("avg_rtt", result.AvgRTT()),
	)
	return result, nil
}
