package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/petal-labs/footplan"
	"github.com/petal-labs/footplan/bus"
	"github.com/petal-labs/footplan/core"
	"github.com/petal-labs/footplan/loader"
	petalotel "github.com/petal-labs/footplan/otel"
	"github.com/petal-labs/footplan/runtime"
)

// NewPlanCmd creates the "plan" subcommand.
func NewPlanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan <file>",
		Short: "Plan footsteps for a scenario file",
		Args:  cobra.ExactArgs(1),
		RunE:  runPlanCmd,
	}

	cmd.Flags().StringP("output", "o", "", "Write the plan to file (default: stdout)")
	cmd.Flags().String("format", "text", "Output format: text | json")
	cmd.Flags().Duration("timeout", 0, "Override the scenario planning timeout (0 stops after one iteration)")
	cmd.Flags().Bool("no-timeout", false, "Search without a time budget")
	cmd.Flags().String("events", "", "Persist search events to this SQLite database")
	cmd.Flags().Bool("node-events", false, "Also record node.added and node.rejected events")
	cmd.Flags().String("otel-endpoint", "", "Export traces to an OTLP/HTTP collector at host:port")
	cmd.Flags().Bool("otel-insecure", false, "Disable TLS towards the OTLP collector")

	return cmd
}

// planOutput is the machine-readable result of a plan invocation.
type planOutput struct {
	Scenario   string             `json:"scenario"`
	RunID      string             `json:"run_id"`
	Result     string             `json:"result"`
	Valid      bool               `json:"valid_for_execution"`
	Horizon    *float64           `json:"horizon_fraction,omitempty"`
	Duration   string             `json:"duration"`
	Statistics core.Statistics    `json:"statistics"`
	Rejections map[string]int     `json:"rejections,omitempty"`
	Plan       *core.FootstepPlan `json:"plan,omitempty"`
}

func runPlanCmd(cmd *cobra.Command, args []string) error {
	filePath := args[0]
	format, _ := cmd.Flags().GetString("format")
	if format != "text" && format != "json" {
		return exitError(exitInputParse, "unknown format %q (use text or json)", format)
	}

	sc, err := loadScenarioForPlan(cmd, filePath)
	if err != nil {
		return err
	}
	noTimeout, _ := cmd.Flags().GetBool("no-timeout")
	switch {
	case noTimeout && cmd.Flags().Changed("timeout"):
		return exitError(exitInputParse, "--timeout and --no-timeout are mutually exclusive")
	case noTimeout:
		sc.Timeout = loader.Unlimited
	case cmd.Flags().Changed("timeout"):
		timeout, _ := cmd.Flags().GetDuration("timeout")
		if timeout < 0 {
			return exitError(exitInputParse, "--timeout must not be negative, got %s", timeout)
		}
		sc.Timeout = loader.Duration(timeout)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	cfg := runtime.EventListenerConfig{}
	cfg.NodeEvents, _ = cmd.Flags().GetBool("node-events")

	var handlers []runtime.EventHandler
	eventsPath, _ := cmd.Flags().GetString("events")
	if strings.TrimSpace(eventsPath) != "" {
		store, err := bus.NewSQLiteEventStore(bus.SQLiteStoreConfig{DSN: eventsPath})
		if err != nil {
			return exitError(exitRuntime, "opening event store: %v", err)
		}
		defer func() {
			_ = store.Close()
		}()
		handlers = append(handlers, bus.NewStoreSubscriber(store, logger(cmd)).Handle)
	}

	shutdown, err := setupPlanTelemetry(ctx, cmd, &cfg, &handlers)
	if err != nil {
		return err
	}
	defer shutdown()

	cfg.Handler = runtime.MultiEventHandler(handlers...)
	builder := footplan.NewPlannerBuilder().
		WithListener(runtime.NewEventListener(cfg)).
		WithLogger(logger(cmd))
	planner, err := sc.NewPlanner(builder)
	if err != nil {
		return exitError(exitValidation, "building planner: %v", err)
	}

	result, err := planner.Plan(ctx)
	if err != nil {
		return exitError(exitRuntime, "planning failed: %v", err)
	}

	out := planOutput{
		Scenario:   sc.Name,
		RunID:      planner.RunID(),
		Result:     result.String(),
		Valid:      result.ValidForExecution(),
		Duration:   planner.PlanningDuration().String(),
		Statistics: planner.Statistics(),
		Rejections: planner.Statistics().RejectionCounts(),
	}
	if hp, ok := planner.(*footplan.HorizonPlanner); ok {
		fraction := hp.HorizonFraction()
		out.Horizon = &fraction
	}
	if out.Valid {
		out.Plan = planner.GetPlan()
	}

	if err := writePlanOutput(cmd, out, format); err != nil {
		return err
	}

	switch code := resultExitCode(result); code {
	case exitTimeout:
		return exitError(code, "planning timed out after %s", sc.Timeout)
	case exitNoPlan:
		return exitError(code, "no plan found: %s", result)
	}
	return nil
}

func loadScenarioForPlan(cmd *cobra.Command, filePath string) (*loader.Scenario, error) {
	sc, err := loader.Load(filePath)
	if err == nil {
		return sc, nil
	}

	var diagErr *loader.DiagnosticError
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, exitError(exitFileNotFound, "file not found: %s", filePath)
	case errors.As(err, &diagErr):
		printDiagnosticsText(cmd.ErrOrStderr(), diagErr.Diagnostics)
		return nil, exitError(exitValidation, "validation failed")
	case errors.Is(err, loader.ErrInvalidFormat):
		return nil, exitError(exitInputParse, "%v", err)
	default:
		return nil, exitError(exitValidation, "%v", err)
	}
}

// setupPlanTelemetry exports a span and metrics per search when an OTLP
// endpoint is configured. The returned func flushes the exporters.
func setupPlanTelemetry(ctx context.Context, cmd *cobra.Command, cfg *runtime.EventListenerConfig, handlers *[]runtime.EventHandler) (func(), error) {
	endpoint, _ := cmd.Flags().GetString("otel-endpoint")
	if strings.TrimSpace(endpoint) == "" {
		return func() {}, nil
	}
	insecure, _ := cmd.Flags().GetBool("otel-insecure")

	providers, err := petalotel.Setup(ctx, petalotel.Config{Endpoint: endpoint, Insecure: insecure})
	if err != nil {
		return nil, exitError(exitRuntime, "setting up telemetry: %v", err)
	}
	tracing := petalotel.NewTracingHandler(providers.Tracer.Tracer("footplan"))
	metrics, err := petalotel.NewMetricsHandler(providers.Meter.Meter("footplan"))
	if err != nil {
		_ = providers.Shutdown(context.Background())
		return nil, exitError(exitRuntime, "setting up metrics: %v", err)
	}

	*handlers = append(*handlers, tracing.Handle, metrics.Handle)
	cfg.Decorator = petalotel.Decorator(tracing)

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			logger(cmd).Warn("telemetry shutdown", "error", err)
		}
	}, nil
}

func writePlanOutput(cmd *cobra.Command, out planOutput, format string) error {
	var output string
	if format == "json" {
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return exitError(exitRuntime, "marshaling output: %v", err)
		}
		output = string(data)
	} else {
		var sb strings.Builder
		formatPlanText(&sb, out)
		output = strings.TrimRight(sb.String(), "\n")
	}

	outputPath, _ := cmd.Flags().GetString("output")
	if outputPath != "" {
		if err := os.WriteFile(outputPath, []byte(output+"\n"), 0600); err != nil {
			return exitError(exitRuntime, "writing output file: %v", err)
		}
		return nil
	}

	fmt.Fprintln(cmd.OutOrStdout(), output)
	return nil
}

// formatPlanText writes a human-readable summary of the search and, when a
// plan was found, one line per step.
func formatPlanText(w io.Writer, out planOutput) {
	stats := out.Statistics
	fmt.Fprintf(w, "Scenario:   %s\n", out.Scenario)
	fmt.Fprintf(w, "Run ID:     %s\n", out.RunID)
	fmt.Fprintf(w, "Result:     %s\n", out.Result)
	fmt.Fprintf(w, "Duration:   %s\n", out.Duration)
	fmt.Fprintf(w, "Iterations: %d (%d expanded, %.1f%% rejected)\n",
		stats.Iterations, stats.ExpandedNodes, stats.RejectedPercent)
	if out.Horizon != nil {
		fmt.Fprintf(w, "Horizon:    %.2f\n", *out.Horizon)
	}
	if out.Plan == nil {
		return
	}

	fmt.Fprintf(w, "\n=== Steps (%d, cost %.3f) ===\n", out.Plan.NumSteps(), out.Plan.PathCost)
	for i, step := range out.Plan.Steps {
		p := step.GoalPosition
		fmt.Fprintf(w, "  %3d  %s  (%.3f, %.3f, %.3f)  t=[%.2f, %.2f]\n",
			i+1, step.Quadrant, p.X, p.Y, p.Z,
			step.TimeInterval.Start, step.TimeInterval.End)
	}
}
