package scan

import (
	"context"
	"errors"
	"net"
	"os"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/netdiag/pkg/models"
)

func TestScannerDefaults(t *testing.T) {
	logger := zap.NewNop()

	t.Run("defaults when zero values provided", func(t *testing.T) {
		s := New(Config{}, logger)
		if s.timeout != 500*time.Millisecond {
			t.Errorf("expected default timeout 500ms, got %v", s.timeout)
		}
		if s.concurrency != 128 {
			t.Errorf("expected default concurrency 128, got %d", s.concurrency)
		}
		if s.grace != 2*time.Second {
			t.Errorf("expected default grace 2s, got %v", s.grace)
		}
		if s.limiter != nil {
			t.Error("expected no limiter by default")
		}
	})

	t.Run("custom values preserved", func(t *testing.T) {
		s := New(Config{Timeout: time.Second, Concurrency: 16, CancelGrace: 5 * time.Second, DialsPerSecond: 50}, logger)
		if s.timeout != time.Second {
			t.Errorf("expected timeout 1s, got %v", s.timeout)
		}
		if s.concurrency != 16 {
			t.Errorf("expected concurrency 16, got %d", s.concurrency)
		}
		if s.limiter == nil {
			t.Error("expected limiter when dials_per_second set")
		}
	})
}

func TestScanRejectsInvalidTarget(t *testing.T) {
	s := New(Config{}, zap.NewNop())

	targets := []models.ScanTarget{
		{Host: "", StartPort: 1, EndPort: 10},
		{Host: "localhost", StartPort: 0, EndPort: 10},
		{Host: "localhost", StartPort: 10, EndPort: 1},
		{Host: "localhost", StartPort: 1, EndPort: 70000},
	}
	for _, target := range targets {
		if _, err := s.Scan(context.Background(), target); err == nil {
			t.Errorf("Scan(%+v) expected validation error, got nil", target)
		}
	}
}

func TestScanResolutionError(t *testing.T) {
	s := New(Config{}, zap.NewNop())

	_, err := s.Scan(context.Background(), models.ScanTarget{
		Host:      "netdiag-does-not-exist.invalid",
		StartPort: 1,
		EndPort:   1,
	})
	var resErr *models.ResolutionError
	if !errors.As(err, &resErr) {
		t.Fatalf("expected ResolutionError, got %v", err)
	}
	if resErr.Host != "netdiag-does-not-exist.invalid" {
		t.Errorf("unexpected host in error: %q", resErr.Host)
	}
}

func TestScanClassifiesOpenPort(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	s := New(Config{Timeout: time.Second, Concurrency: 4}, zap.NewNop())
	report, err := s.Scan(context.Background(), models.ScanTarget{
		Host:      "127.0.0.1",
		StartPort: port,
		EndPort:   port,
	})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(report.Results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(report.Results))
	}
	if report.Results[0].State != models.PortOpen {
		t.Errorf("expected open, got %q", report.Results[0].State)
	}
	if report.Partial {
		t.Error("uninterrupted scan must not be partial")
	}
}

func TestScanClassifiesClosedPort(t *testing.T) {
	// Grab a loopback port and close the listener so nothing accepts.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	s := New(Config{Timeout: time.Second, Concurrency: 4}, zap.NewNop())
	report, err := s.Scan(context.Background(), models.ScanTarget{
		Host:      "127.0.0.1",
		StartPort: port,
		EndPort:   port,
	})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if report.Results[0].State != models.PortClosed {
		t.Errorf("expected closed, got %q", report.Results[0].State)
	}
}

// fakeDial builds a dialFunc returning the given error for every
// attempt, recording how many attempts were made.
func fakeDial(err error, attempts *int64) dialFunc {
	return func(_ context.Context, _, _ string) (net.Conn, error) {
		if attempts != nil {
			atomic.AddInt64(attempts, 1)
		}
		return nil, err
	}
}

func TestScanCompleteRangeOrdered(t *testing.T) {
	var attempts int64
	s := New(Config{Timeout: 100 * time.Millisecond, Concurrency: 8}, zap.NewNop())
	s.dial = fakeDial(syscall.ECONNREFUSED, &attempts)

	const start, end = 2000, 2199
	report, err := s.Scan(context.Background(), models.ScanTarget{
		Host:      "127.0.0.1",
		StartPort: start,
		EndPort:   end,
	})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	if got, want := len(report.Results), end-start+1; got != want {
		t.Fatalf("expected %d results, got %d", want, got)
	}
	if atomic.LoadInt64(&attempts) != int64(end-start+1) {
		t.Errorf("expected one dial per port, got %d", attempts)
	}
	for i, res := range report.Results {
		if res.Port != start+i {
			t.Fatalf("results not in ascending port order at index %d: got %d", i, res.Port)
		}
		if res.State != models.PortClosed {
			t.Errorf("port %d: expected closed, got %q", res.Port, res.State)
		}
	}
	if len(report.Abandoned) != 0 || report.Partial {
		t.Error("complete scan must have no abandoned ports")
	}
}

func TestScanTimeoutClassifiedFiltered(t *testing.T) {
	s := New(Config{Timeout: 50 * time.Millisecond, Concurrency: 4}, zap.NewNop())
	s.dial = fakeDial(os.ErrDeadlineExceeded, nil)

	report, err := s.Scan(context.Background(), models.ScanTarget{
		Host:      "127.0.0.1",
		StartPort: 3000,
		EndPort:   3009,
	})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	for _, res := range report.Results {
		if res.State != models.PortFiltered {
			t.Errorf("port %d: expected filtered, got %q", res.Port, res.State)
		}
	}
}

func TestScanCancellationReturnsPartial(t *testing.T) {
	s := New(Config{Timeout: 10 * time.Second, Concurrency: 2, CancelGrace: time.Second}, zap.NewNop())
	// Dial blocks until the context is cancelled.
	s.dial = func(ctx context.Context, _, _ string) (net.Conn, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	const start, end = 1, 50
	began := time.Now()
	report, err := s.Scan(ctx, models.ScanTarget{
		Host:      "127.0.0.1",
		StartPort: start,
		EndPort:   end,
	})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if elapsed := time.Since(began); elapsed > 3*time.Second {
		t.Errorf("cancelled scan took %v, expected prompt return", elapsed)
	}

	if !report.Partial {
		t.Fatal("expected partial report after cancellation")
	}
	if got := len(report.Results) + len(report.Abandoned); got != end-start+1 {
		t.Fatalf("classified+abandoned = %d, want %d", got, end-start+1)
	}
	if len(report.Abandoned) == 0 {
		t.Error("expected undispatched ports to be reported abandoned")
	}
	for _, res := range report.Results {
		if res.State != models.PortFiltered {
			t.Errorf("port %d: interrupted attempt should be filtered, got %q", res.Port, res.State)
		}
	}
	// Abandoned ports must continue where classifications stop.
	if len(report.Abandoned) > 0 {
		lastClassified := report.Results[len(report.Results)-1].Port
		if report.Abandoned[0] != lastClassified+1 {
			t.Errorf("abandoned list starts at %d, want %d", report.Abandoned[0], lastClassified+1)
		}
	}
}
