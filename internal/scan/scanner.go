// Package scan implements the concurrent TCP connect scanner.
package scan

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/HerbHall/netdiag/pkg/models"
)

// Per-port slot codes. Workers write disjoint slots, so the only
// synchronization needed is atomic store/load for the post-cancel read.
const (
	slotUnclassified int32 = iota
	slotOpen
	slotClosed
	slotFiltered
)

// Config holds the port scanner configuration.
type Config struct {
	// Timeout is the uniform per-port connect timeout.
	Timeout time.Duration `mapstructure:"timeout"`
	// Concurrency caps simultaneously in-flight connection attempts.
	Concurrency int `mapstructure:"concurrency"`
	// CancelGrace bounds how long an interrupted scan waits for
	// in-flight attempts before abandoning them.
	CancelGrace time.Duration `mapstructure:"cancel_grace"`
	// DialsPerSecond paces connection attempts. 0 disables pacing.
	DialsPerSecond int `mapstructure:"dials_per_second"`
}

// DefaultConfig returns the default scanner configuration.
func DefaultConfig() Config {
	return Config{
		Timeout:        500 * time.Millisecond,
		Concurrency:    128,
		CancelGrace:    2 * time.Second,
		DialsPerSecond: 0,
	}
}

type dialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// Scanner performs bounded-concurrency TCP connect scans.
type Scanner struct {
	timeout     time.Duration
	concurrency int
	grace       time.Duration
	limiter     *rate.Limiter
	dial        dialFunc
	logger      *zap.Logger
}

// New creates a scanner. Zero or negative config values fall back to
// the defaults.
func New(cfg Config, logger *zap.Logger) *Scanner {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.CancelGrace <= 0 {
		cfg.CancelGrace = def.CancelGrace
	}

	var limiter *rate.Limiter
	if cfg.DialsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.DialsPerSecond), cfg.DialsPerSecond)
	}

	d := &net.Dialer{Timeout: cfg.Timeout}
	return &Scanner{
		timeout:     cfg.Timeout,
		concurrency: cfg.Concurrency,
		grace:       cfg.CancelGrace,
		limiter:     limiter,
		dial:        d.DialContext,
		logger:      logger,
	}
}

// Scan classifies every port of the target as open, closed, or
// filtered. Results come back sorted by ascending port number.
//
// When ctx is cancelled mid-scan, Scan stops issuing new attempts,
// waits up to the cancel grace period for in-flight attempts, marks
// unsettled in-flight ports filtered, and returns a partial report
// listing the never-attempted ports as abandoned.
func (s *Scanner) Scan(ctx context.Context, target models.ScanTarget) (*models.ScanReport, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}

	addrs, err := net.DefaultResolver.LookupHost(ctx, target.Host)
	if err != nil || len(addrs) == 0 {
		if err == nil {
			err = errors.New("no addresses returned")
		}
		return nil, &models.ResolutionError{Host: target.Host, Err: err}
	}
	ip := addrs[0]

	n := target.PortCount()
	s.logger.Info("starting port scan",
		zap.String("host", target.Host),
		zap.String("ip", ip),
		zap.Int("ports", n),
		zap.Int("concurrency", s.concurrency),
		zap.Duration("timeout", s.timeout),
	)

	// One slot per port, keyed by offset from the start port. Each
	// worker owns exactly one slot, so the merge step needs no lock.
	slots := make([]int32, n)

	start := time.Now()
	var wg sync.WaitGroup
	sem := make(chan struct{}, s.concurrency)
	dispatched := 0

dispatch:
	for i := 0; i < n; i++ {
		select {
		case <-ctx.Done():
			break dispatch
		case sem <- struct{}{}:
		}
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				<-sem
				break dispatch
			}
		}
		dispatched = i + 1
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()
			code := s.classify(ctx, ip, target.StartPort+idx)
			atomic.StoreInt32(&slots[idx], code)
		}(i)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	if ctx.Err() != nil {
		// Bounded wait for in-flight attempts; stragglers are
		// abandoned and their ports classified filtered below.
		select {
		case <-done:
		case <-time.After(s.grace):
			s.logger.Warn("abandoning in-flight connection attempts",
				zap.Duration("grace", s.grace))
		}
	} else {
		<-done
	}
	partial := ctx.Err() != nil

	results := make([]models.PortResult, 0, dispatched)
	for i := 0; i < dispatched; i++ {
		state := stateFromSlot(atomic.LoadInt32(&slots[i]))
		results = append(results, models.PortResult{
			Port:  target.StartPort + i,
			State: state,
		})
	}
	abandoned := make([]int, 0, n-dispatched)
	for i := dispatched; i < n; i++ {
		abandoned = append(abandoned, target.StartPort+i)
	}

	report := &models.ScanReport{
		Host:      target.Host,
		IP:        ip,
		Results:   results,
		Abandoned: abandoned,
		Partial:   partial,
		Elapsed:   time.Since(start),
	}

	s.logger.Info("port scan finished",
		zap.String("ip", ip),
		zap.Ints("open", report.OpenPorts()),
		zap.Int("classified", len(results)),
		zap.Int("abandoned", len(abandoned)),
		zap.Bool("partial", partial),
		zap.Duration("elapsed", report.Elapsed),
	)

	return report, nil
}

// classify attempts one TCP connection and maps the outcome to a slot
// code. Active refusal means closed; anything else without a
// successful connect (timeout, unreachable, cancellation) counts as
// filtered since no response was observed.
func (s *Scanner) classify(ctx context.Context, ip string, port int) int32 {
	addr := net.JoinHostPort(ip, strconv.Itoa(port))
	conn, err := s.dial(ctx, "tcp", addr)
	if err == nil {
		conn.Close()
		return slotOpen
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return slotClosed
	}
	return slotFiltered
}

func stateFromSlot(code int32) models.PortState {
	switch code {
	case slotOpen:
		return models.PortOpen
	case slotClosed:
		return models.PortClosed
	default:
		// Unclassified slots belong to attempts abandoned after the
		// grace period; report them filtered, never blank.
		return models.PortFiltered
	}
}
