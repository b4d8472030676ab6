package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/petal-labs/footplan/bus"
	"github.com/petal-labs/footplan/runtime"
)

// NewReplayCmd creates the "replay" subcommand.
func NewReplayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay [run-id]",
		Short: "Print the recorded events of a search, or list recorded runs",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runReplay,
	}

	cmd.Flags().String("events", "", "SQLite event database written by plan --events or serve")
	cmd.Flags().Uint64("after", 0, "Skip events up to this sequence number")
	cmd.Flags().String("format", "text", "Output format: text | json")
	cmd.Flags().Bool("summary", false, "Print event counts by kind instead of the events")
	_ = cmd.MarkFlagRequired("events")

	return cmd
}

func runReplay(cmd *cobra.Command, args []string) error {
	eventsPath, _ := cmd.Flags().GetString("events")
	after, _ := cmd.Flags().GetUint64("after")
	format, _ := cmd.Flags().GetString("format")
	summary, _ := cmd.Flags().GetBool("summary")
	if format != "text" && format != "json" {
		return exitError(exitInputParse, "unknown format %q (use text or json)", format)
	}

	store, err := bus.NewSQLiteEventStore(bus.SQLiteStoreConfig{DSN: eventsPath})
	if err != nil {
		return exitError(exitRuntime, "opening event store: %v", err)
	}
	defer func() {
		_ = store.Close()
	}()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if len(args) == 0 {
		runIDs, err := store.RunIDs(ctx)
		if err != nil {
			return exitError(exitRuntime, "listing runs: %v", err)
		}
		for _, id := range runIDs {
			fmt.Fprintln(out, id)
		}
		return nil
	}
	runID := args[0]

	if summary {
		counts, err := store.CountByKind(ctx, runID)
		if err != nil {
			return exitError(exitRuntime, "counting events: %v", err)
		}
		if len(counts) == 0 {
			return exitError(exitFileNotFound, "run %q not found", runID)
		}
		printEventCounts(out, counts)
		return nil
	}

	var handler runtime.EventHandler
	if format == "json" {
		enc := json.NewEncoder(out)
		handler = func(e runtime.Event) { _ = enc.Encode(e) }
	} else {
		handler = func(e runtime.Event) { printEventLine(out, e) }
	}

	n, err := bus.Replay(ctx, store, runID, after, handler)
	if err != nil {
		return exitError(exitRuntime, "replaying run: %v", err)
	}
	if n == 0 {
		latest, err := store.LatestSeq(ctx, runID)
		if err != nil {
			return exitError(exitRuntime, "replaying run: %v", err)
		}
		if latest == 0 {
			return exitError(exitFileNotFound, "run %q not found", runID)
		}
	}
	return nil
}

// printEventLine writes one event as "seq elapsed kind key=value...".
func printEventLine(w io.Writer, e runtime.Event) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%6d  %10s  %-16s", e.Seq, e.Elapsed.Round(time.Microsecond), e.Kind)
	if e.NodeKey != "" {
		fmt.Fprintf(&sb, " node=%s", e.NodeKey)
	}
	keys := make([]string, 0, len(e.Payload))
	for k := range e.Payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&sb, " %s=%v", k, e.Payload[k])
	}
	fmt.Fprintln(w, strings.TrimRight(sb.String(), " "))
}

func printEventCounts(w io.Writer, counts map[runtime.EventKind]int) {
	kinds := make([]string, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		fmt.Fprintf(w, "%-16s %d\n", k, counts[runtime.EventKind(k)])
	}
}
