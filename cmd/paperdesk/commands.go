package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"PaperDesk/internal/maintenance"
	"PaperDesk/internal/metrics"
)

func newRootCmd() *cobra.Command {
	var cfgPath string

	root := &cobra.Command{
		Use:   "paperdesk",
		Short: "PaperDesk - paper trading desk for comparing decision sources",
		Long: `PaperDesk runs several simulated trading accounts side by side. Each account
asks its decision source (an LLM endpoint, a local rule engine or a fused vote)
what to do, passes the answer through the risk gate and books it.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", defaultConfigPath(), "configuration file path")

	root.AddCommand(newRunCmd(&cfgPath))
	root.AddCommand(newOnceCmd(&cfgPath))
	root.AddCommand(newTradesCmd(&cfgPath))
	return root
}

func defaultConfigPath() string {
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		return v
	}
	return "configs/config.yaml"
}

func newRunCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run every account loop until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(*cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.run(cmd.Context())
		},
	}
}

func newOnceCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "Run one cycle for every account and print the comparison",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(*cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			stats, cycleErr := a.manager.RunCycleAll(ctx)
			if err := a.manager.SnapshotAll(); err != nil {
				a.logger.Warn("snapshot accounts", zap.Error(err))
			}
			fmt.Println(renderCycles(stats))
			fmt.Println(renderPerformance(a.manager.ComparePerformance()))
			fmt.Println(renderReport(a.manager.Metrics()))
			return cycleErr
		},
	}
}

func newTradesCmd(cfgPath *string) *cobra.Command {
	var accountID string
	var limit int
	cmd := &cobra.Command{
		Use:   "trades",
		Short: "List recent trades from the recorder",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(*cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()

			trades, err := a.recorder.RecentTrades(accountID, limit)
			if err != nil {
				return err
			}
			fmt.Println(renderTrades(trades))
			return nil
		},
	}
	cmd.Flags().StringVar(&accountID, "account", "", "only trades of this account")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of trades")
	return cmd
}

func (a *app) run(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	srv := &http.Server{Addr: a.cfg.Metrics.Addr, Handler: metricsMux(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server", zap.Error(err))
		}
	}()
	a.logger.Info("metrics listening", zap.String("addr", a.cfg.Metrics.Addr))

	jobs := maintenance.NewScheduler(ctx, a.manager, a.notifier, a.logger)
	if err := jobs.RegisterAll(maintenance.Specs{
		Snapshot: a.cfg.Schedule.SnapshotCron,
		Sweep:    a.cfg.Schedule.SweepCron,
		Report:   a.cfg.Schedule.ReportCron,
	}); err != nil {
		return fmt.Errorf("register cron tasks: %w", err)
	}
	jobs.Start()

	if a.telegram != nil {
		go a.telegram.StartPolling(ctx, jobs.HandleCommand)
		a.logger.Info("telegram polling started")
	}

	done := make(chan error, 1)
	go func() { done <- a.manager.Run(ctx) }()
	a.logger.Info("paperdesk is running", zap.Int("accounts", len(a.manager.Accounts())))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var runErr error
	select {
	case <-sigCh:
		a.logger.Info("shutdown signal received, stopping")
		a.manager.Stop()
		runErr = <-done
	case runErr = <-done:
	}

	cancel()
	jobs.Stop()
	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("metrics server shutdown", zap.Error(err))
	}
	if err := a.manager.SnapshotAll(); err != nil {
		a.logger.Warn("final snapshot", zap.Error(err))
	}
	a.logger.Info("paperdesk stopped")
	return runErr
}

func metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}
