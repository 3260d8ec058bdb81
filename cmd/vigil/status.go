package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kidwatch/vigil/internal/config"
	"github.com/kidwatch/vigil/internal/storage"
)

var (
	statusEvents int
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show stored settings and recent events",
	Long:  `Inspect the local store: current guardian settings and the most recent journal events.`,
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().IntVar(&statusEvents, "events", 20, "Number of recent events to show")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	store, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer store.Close()

	ctx := context.Background()
	cyan := color.New(color.FgCyan, color.Bold)

	cyan.Fprintln(os.Stdout, "[settings]")
	values, err := store.Settings().All(ctx)
	if err != nil {
		return fmt.Errorf("reading settings: %w", err)
	}
	if len(values) == 0 {
		fmt.Fprintln(os.Stdout, "  (none stored, agent will use defaults)")
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := values[k]
		if k == "password_hash" {
			v = redactSecret(v)
		}
		fmt.Fprintf(os.Stdout, "  %s = %s\n", k, v)
	}

	cyan.Fprintf(os.Stdout, "\n[last %d events]\n", statusEvents)
	events, err := store.Journal().Recent(ctx, statusEvents)
	if err != nil {
		return fmt.Errorf("reading journal: %w", err)
	}
	if len(events) == 0 {
		fmt.Fprintln(os.Stdout, "  (journal is empty)")
	}
	for _, e := range events {
		printEvent(e)
	}

	return nil
}

func printEvent(e storage.Event) {
	stamp := e.Timestamp.Local().Format(time.RFC3339)
	line := fmt.Sprintf("  %s  %-14s %s", stamp, e.Type, e.Description)
	if e.NoiseDB > 0 {
		line += fmt.Sprintf(" (%.1f dB)", e.NoiseDB)
	}
	if !e.Synced {
		line += "  [pending sync]"
	}

	switch e.Type {
	case storage.EventStrike, storage.EventTimePenalty, storage.EventBlock:
		color.New(color.FgRed).Fprintln(os.Stdout, line)
	case storage.EventUnblock:
		color.New(color.FgGreen).Fprintln(os.Stdout, line)
	default:
		fmt.Fprintln(os.Stdout, line)
	}
}
