package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/petal-labs/footplan/bus"
	petalotel "github.com/petal-labs/footplan/otel"
	"github.com/petal-labs/footplan/runtime"
	"github.com/petal-labs/footplan/server"
)

// NewServeCmd creates the "serve" subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the planning HTTP server",
		RunE:  runServe,
	}

	cmd.Flags().IntP("port", "p", 8080, "Listen port")
	cmd.Flags().String("host", "0.0.0.0", "Listen host")
	cmd.Flags().String("cors-origin", "*", "Allowed CORS origin")
	cmd.Flags().String("sqlite-path", "", "Path to SQLite database (default: ~/.footplan/footplan.db)")
	cmd.Flags().String("tls-cert", "", "TLS certificate file")
	cmd.Flags().String("tls-key", "", "TLS key file")
	cmd.Flags().Duration("read-timeout", 30*time.Second, "HTTP read timeout")
	cmd.Flags().Duration("write-timeout", 2*time.Minute, "HTTP write timeout")
	cmd.Flags().Int64("max-body", 1<<20, "Max request body size in bytes")
	cmd.Flags().Duration("max-plan-timeout", server.DefaultMaxPlanTimeout, "Upper bound on the planning time of one request")
	cmd.Flags().Duration("schedule-poll", 5*time.Second, "Schedule poll interval")
	cmd.Flags().Bool("node-events", false, "Record node.added and node.rejected events")
	cmd.Flags().Duration("tick-coalesce", 100*time.Millisecond, "Coalescing interval of search.tick events on the bus")
	cmd.Flags().String("otel-endpoint", "", "Export traces to an OTLP/HTTP collector at host:port")
	cmd.Flags().Bool("otel-insecure", false, "Disable TLS towards the OTLP collector")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	host, _ := cmd.Flags().GetString("host")
	port, _ := cmd.Flags().GetInt("port")
	corsOrigin, _ := cmd.Flags().GetString("cors-origin")
	readTimeout, _ := cmd.Flags().GetDuration("read-timeout")
	writeTimeout, _ := cmd.Flags().GetDuration("write-timeout")
	maxBody, _ := cmd.Flags().GetInt64("max-body")
	maxPlanTimeout, _ := cmd.Flags().GetDuration("max-plan-timeout")
	schedulePoll, _ := cmd.Flags().GetDuration("schedule-poll")
	nodeEvents, _ := cmd.Flags().GetBool("node-events")
	tickCoalesce, _ := cmd.Flags().GetDuration("tick-coalesce")
	tlsCert, _ := cmd.Flags().GetString("tls-cert")
	tlsKey, _ := cmd.Flags().GetString("tls-key")
	log := logger(cmd)

	sqliteDSN, err := resolveServeSQLiteDSN(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eb := bus.NewMemBus(bus.MemBusConfig{})
	defer func() {
		_ = eb.Close()
	}()
	es, err := bus.NewSQLiteEventStore(bus.SQLiteStoreConfig{DSN: sqliteDSN})
	if err != nil {
		return fmt.Errorf("opening sqlite event store: %w", err)
	}
	defer func() {
		_ = es.Close()
	}()

	scheduleStore, err := server.NewSQLiteStore(server.SQLiteStoreConfig{DSN: sqliteDSN})
	if err != nil {
		return fmt.Errorf("opening sqlite schedule store: %w", err)
	}
	defer func() {
		_ = scheduleStore.Close()
	}()

	progress := eb.SubscribeAll()
	go logSearchProgress(progress, log)

	var (
		runtimeEvents runtime.EventHandler
		decorator     runtime.EventEmitterDecorator
	)
	if endpoint, _ := cmd.Flags().GetString("otel-endpoint"); strings.TrimSpace(endpoint) != "" {
		insecure, _ := cmd.Flags().GetBool("otel-insecure")
		providers, err := petalotel.Setup(ctx, petalotel.Config{ServiceName: "footplan-server", Endpoint: endpoint, Insecure: insecure})
		if err != nil {
			return exitError(exitRuntime, "setting up telemetry: %v", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = providers.Shutdown(shutdownCtx)
		}()
		tracing := petalotel.NewTracingHandler(providers.Tracer.Tracer("footplan/server"))
		metrics, err := petalotel.NewMetricsHandler(providers.Meter.Meter("footplan/server"))
		if err != nil {
			return exitError(exitRuntime, "setting up metrics: %v", err)
		}
		runtimeEvents = runtime.MultiEventHandler(tracing.Handle, metrics.Handle)
		decorator = petalotel.Decorator(tracing)
	}

	planServer := server.NewServer(server.ServerConfig{
		ScheduleStore:   scheduleStore,
		Bus:             eb,
		EventStore:      es,
		RuntimeEvents:   runtimeEvents,
		EmitDecorator:   decorator,
		NodeEvents:      nodeEvents,
		MaxPlanTimeout:  maxPlanTimeout,
		CORSOrigin:      corsOrigin,
		MaxBody:         maxBody,
		Logger:          log,
		BusTickCoalesce: tickCoalesce,
	})

	scheduler, err := server.NewScheduler(server.SchedulerConfig{
		Runner:       planServer,
		Store:        scheduleStore,
		PollInterval: schedulePoll,
		Logger:       log,
	})
	if err != nil {
		return fmt.Errorf("creating scheduler: %w", err)
	}
	if err := scheduler.Start(); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := scheduler.Stop(stopCtx); err != nil {
			log.Warn("scheduler stop", "error", err)
		}
	}()

	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      planServer.Handler(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(cmd.OutOrStdout(), "footplan server listening on %s\n", addr)
		if tlsCert != "" && tlsKey != "" {
			errCh <- httpServer.ListenAndServeTLS(tlsCert, tlsKey)
		} else {
			errCh <- httpServer.ListenAndServe()
		}
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(cmd.OutOrStdout(), "Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return exitError(exitRuntime, "shutdown error: %v", err)
		}
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return exitError(exitRuntime, "server error: %v", err)
		}
		return nil
	}
}

// logSearchProgress logs bus events until the subscription closes.
func logSearchProgress(sub bus.Subscription, log *slog.Logger) {
	for e := range sub.Events() {
		switch e.Kind {
		case runtime.EventSearchTick:
			log.Debug("search progress", "run_id", e.RunID, "iterations", e.Payload["iterations"])
		case runtime.EventSearchFinished:
			log.Info("search finished",
				"run_id", e.RunID,
				"scenario", e.Payload["scenario"],
				"result", e.Payload["result"],
				"elapsed", e.Elapsed)
		}
	}
}

// resolveServeSQLiteDSN picks the database from --sqlite-path, then
// FOOTPLAN_SQLITE_PATH, then the per-user default.
func resolveServeSQLiteDSN(cmd *cobra.Command) (string, error) {
	sqlitePath, _ := cmd.Flags().GetString("sqlite-path")
	dsn := strings.TrimSpace(sqlitePath)
	if dsn == "" {
		dsn = strings.TrimSpace(os.Getenv("FOOTPLAN_SQLITE_PATH"))
	}
	if dsn == "" {
		defaultPath, err := defaultSQLitePath()
		if err != nil {
			return "", fmt.Errorf("resolving default sqlite path: %w", err)
		}
		dsn = defaultPath
	}

	if !strings.HasPrefix(strings.ToLower(dsn), "file:") {
		dsn = filepath.Clean(dsn)
	}
	return dsn, nil
}

func defaultSQLitePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".footplan")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", err
	}
	return filepath.Join(dir, "footplan.db"), nil
}
