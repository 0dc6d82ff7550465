package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hedisam/supervise/actor"
	"github.com/hedisam/supervise/internal/config"
	"github.com/hedisam/supervise/supervisor"
)

var shutdownTimeout time.Duration

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Supervise the configured workers until interrupted or melted down",
	RunE:  runSupervise,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 30*time.Second, "how long to wait for a graceful shutdown")
}

func runSupervise(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	logger, err := cfg.Log.Logger()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	actor.SetLogger(logger.Named("actor"))

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	metrics := supervisor.NewMetrics(registry)

	ref, err := supervisor.Start(cfg.Supervisor(logger).AddEventHandler(metrics.Handle))
	if err != nil {
		return err
	}
	logger.Info("supervisor running", zap.String("name", ref.Name()), zap.Int("children", len(cfg.Children)))

	var srv *http.Server
	if cfg.HTTP.Addr != "" {
		srv = &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           newRouter(ref, registry),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("status server failed", zap.Error(err))
			}
		}()
		logger.Info("status server listening", zap.String("addr", cfg.HTTP.Addr))
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stop)

	// last snapshot is printed once the supervisor is gone
	var children []supervisor.ChildInfo
	select {
	case sig := <-stop:
		logger.Info("signal received", zap.Stringer("signal", sig))
		children, _ = ref.WhichChildren()
	case <-ref.Done():
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn("status server shutdown", zap.Error(err))
		}
	}
	if err := ref.Shutdown(ctx); err != nil {
		return fmt.Errorf("supervisor shutdown: %w", err)
	}

	status := ref.Status()
	if err := printSummary(cmd.OutOrStdout(), ref.Name(), status, children); err != nil {
		return err
	}
	if status.Reason.Abnormal() {
		return fmt.Errorf("supervisor stopped: %s", status.Reason)
	}
	return nil
}

func printSummary(out io.Writer, name string, status actor.Status, children []supervisor.ChildInfo) error {
	fmt.Fprintf(out, "supervisor %s stopped: %s\n", name, status.Reason)
	if len(children) == 0 {
		return nil
	}

	table := tablewriter.NewWriter(out)
	table.Header("Child", "Restart", "Running", "PID", "Restarts")
	for _, c := range childViews(children) {
		table.Append(c.ID, c.Restart, fmt.Sprint(c.Running), c.PID, fmt.Sprint(c.Restarts))
	}
	return table.Render()
}
