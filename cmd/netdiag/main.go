// Command netdiag is the interactive front-end for the diagnostic
// engine: host reachability, TCP port scanning, traffic sampling, and
// ARP device discovery.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli"
	"go.uber.org/zap"

	"github.com/HerbHall/netdiag/internal/config"
	"github.com/HerbHall/netdiag/internal/discover"
	"github.com/HerbHall/netdiag/internal/probe"
	"github.com/HerbHall/netdiag/internal/report"
	"github.com/HerbHall/netdiag/internal/scan"
	"github.com/HerbHall/netdiag/internal/traffic"
	"github.com/HerbHall/netdiag/pkg/models"
)

var version = "0.1.0"

func main() {
	app := cli.NewApp()
	app.Name = "netdiag"
	app.Usage = "network diagnostics: reachability, port scans, traffic rates, device discovery"
	app.Version = version
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Usage: "path to a YAML config file",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:      "ping",
			Usage:     "Probe a host with ICMP echo requests",
			ArgsUsage: "<host>",
			Flags: []cli.Flag{
				cli.IntFlag{Name: "count, n", Usage: "number of probes (0 uses the configured default)"},
			},
			Action: pingAction,
		},
		{
			Name:      "scan",
			Usage:     "Scan a TCP port range on a host",
			ArgsUsage: "<host>",
			Flags: []cli.Flag{
				cli.IntFlag{Name: "start, s", Value: 1, Usage: "first port of the range"},
				cli.IntFlag{Name: "end, e", Value: 1024, Usage: "last port of the range"},
			},
			Action: scanAction,
		},
		{
			Name:  "traffic",
			Usage: "Sample system-wide network traffic over a window",
			Flags: []cli.Flag{
				cli.DurationFlag{Name: "duration, d", Value: time.Second, Usage: "sampling window"},
			},
			Action: trafficAction,
		},
		{
			Name:   "discover",
			Usage:  "List devices from the system ARP cache",
			Action: discoverAction,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads configuration and builds a logger tagged with a fresh
// operation ID.
func setup(c *cli.Context) (*config.Config, *zap.Logger, error) {
	cfg, _, err := config.Load(c.GlobalString("config"))
	if err != nil {
		return nil, nil, err
	}
	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger.With(zap.String("op_id", uuid.NewString())), nil
}

// signalContext returns a context cancelled on SIGINT/SIGTERM so a
// long scan stops issuing attempts and reports its partial result.
func signalContext(logger *zap.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received interrupt, cancelling operation", zap.String("signal", sig.String()))
		cancel()
	}()
	return ctx, cancel
}

func pingAction(c *cli.Context) error {
	host := c.Args().First()
	if host == "" {
		return cli.NewExitError("specify a host to ping", 1)
	}
	cfg, logger, err := setup(c)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signalContext(logger)
	defer cancel()

	res, err := probe.New(cfg.Probe, logger).Probe(ctx, host, c.Int("count"))
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	fmt.Print(report.Ping(res))
	return nil
}

func scanAction(c *cli.Context) error {
	host := c.Args().First()
	if host == "" {
		return cli.NewExitError("specify a host to scan", 1)
	}
	cfg, logger, err := setup(c)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	defer func() { _ = logger.Sync() }()

	target := models.ScanTarget{
		Host:      host,
		StartPort: c.Int("start"),
		EndPort:   c.Int("end"),
	}
	if err := target.Validate(); err != nil {
		return cli.NewExitError(err.Error(), 1)
	}

	ctx, cancel := signalContext(logger)
	defer cancel()

	rep, err := scan.New(cfg.Scan, logger).Scan(ctx, target)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	fmt.Print(report.Scan(rep))
	return nil
}

func trafficAction(c *cli.Context) error {
	cfg, logger, err := setup(c)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signalContext(logger)
	defer cancel()

	sample, err := traffic.New(cfg.Traffic, logger).Sample(ctx, c.Duration("duration"))
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	fmt.Print(report.Traffic(sample))
	return nil
}

func discoverAction(c *cli.Context) error {
	_, logger, err := setup(c)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signalContext(logger)
	defer cancel()

	records, err := discover.New(logger).Devices(ctx)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	fmt.Print(report.Devices(records))
	return nil
}
