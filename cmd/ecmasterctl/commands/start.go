package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/go-ecat/ecmaster/clog"
	"github.com/go-ecat/ecmaster/cmd/ecmasterctl/cmdutil"
	"github.com/go-ecat/ecmaster/config"
	"github.com/go-ecat/ecmaster/gateway"
	"github.com/go-ecat/ecmaster/hostapi"
	"github.com/go-ecat/ecmaster/lifecycle"
	"github.com/go-ecat/ecmaster/master"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the master's cyclic engine in the foreground",
	Long: `start activates the configured ring and drives the cyclic tick loop
until interrupted (SIGINT/SIGTERM), optionally exposing the mailbox gateway
alongside it. Unlike the other subcommands, start holds the master index for
its entire run rather than releasing it immediately. The index registry is
per process: while start runs, another claim of the same -m index inside
this process fails with "index already in use", but a separate ecmasterctl
invocation has its own registry and does not see the claim.`,
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cmdutil.Flags.ConfigPath)
	if err != nil {
		return err
	}

	logLevel := slog.LevelWarn
	switch {
	case cmdutil.Flags.Verbose:
		logLevel = slog.LevelDebug
	case cmdutil.Flags.Quiet:
		logLevel = slog.LevelError
	}
	slogger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	provider := clog.NewSlogProvider(slogger)

	dev, err := cmdutil.BuildDevice(cfg.Network)
	if err != nil {
		return err
	}

	m, err := master.RequestMaster(cmdutil.Flags.MasterIndex, dev)
	if err != nil {
		_ = dev.Close()
		return fmt.Errorf("ecmasterctl start: master %d: %w", cmdutil.Flags.MasterIndex, err)
	}
	m.SetDebugLevel(cmdutil.Flags.DebugLevel)
	defer func() {
		_ = m.Deactivate()
		master.Release(cmdutil.Flags.MasterIndex)
		_ = dev.Close()
	}()

	for _, sc := range cfg.Slaves {
		if _, err := m.RegisterDomain(sc.Domain); err != nil {
			return err
		}
		if _, err := m.RegisterSlave(master.SlaveSpec{
			RingPosition: sc.RingPosition, Vendor: sc.Vendor, Product: sc.Product, Domain: sc.Domain,
		}); err != nil {
			return err
		}
	}
	if err := m.Activate(); err != nil {
		return err
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The cyclic tick loop and the optional gateway are two independent
	// goroutines that must shut down together on the same signal, and
	// whichever one errs first should bring the other down with it —
	// exactly what errgroup.WithContext gives for free.
	g, ctx := errgroup.WithContext(sigCtx)

	var gw *gateway.Server
	if cfg.Gateway.Enabled {
		gw = gateway.NewServer(hostapi.New(m), cfg.Gateway.Address)
		gw.SetLogProvider(provider)
		gw.LogMode(true)
		g.Go(func() error { return gw.Serve(ctx) })
		defer gw.Stop()
	}

	rt := m.NewRegisterTransactor()
	g.Go(func() error { return runTickLoop(ctx, m, rt, cfg.TickInterval, slogger) })

	slogger.Info("ecmasterctl start started", "master_index", cmdutil.Flags.MasterIndex, "tick_interval", cfg.TickInterval)
	err = g.Wait()
	slogger.Info("ecmasterctl start stopping")
	if sigCtx.Err() != nil {
		return nil // shut down via signal, not a real failure
	}
	return err
}

func runTickLoop(ctx context.Context, m *master.Master, rt lifecycle.Transport, interval time.Duration, slogger *slog.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			if _, err := m.Tick(now); err != nil {
				slogger.Warn("tick error", "error", err)
			}
			m.StepLifecycles(rt)
		}
	}
}
