package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/kidwatch/vigil/internal/config"
	"github.com/kidwatch/vigil/internal/remote"
)

var (
	pairTimeout  time.Duration
	pairInterval time.Duration
)

var pairCmd = &cobra.Command{
	Use:   "pair",
	Short: "Pair this device with a guardian account",
	Long: `Request a pairing code from the control plane and wait for the guardian to
confirm it in their dashboard. On success the device credentials are printed
for the agent configuration.`,
	RunE: runPair,
}

func init() {
	pairCmd.Flags().DurationVar(&pairTimeout, "timeout", 5*time.Minute, "How long to wait for confirmation")
	pairCmd.Flags().DurationVar(&pairInterval, "poll-interval", 3*time.Second, "How often to poll for confirmation")
	rootCmd.AddCommand(pairCmd)
}

func runPair(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.Remote.URL == "" {
		return fmt.Errorf("remote.url is not configured")
	}

	client := remote.NewClient(remote.Config{
		BaseURL: cfg.Remote.URL,
		APIKey:  cfg.Remote.APIKey,
	}, zerolog.Nop())

	ctx, cancel := context.WithTimeout(cmd.Context(), pairTimeout)
	defer cancel()

	code, err := client.RequestPairingCode(ctx, cfg.Agent.Hostname)
	if err != nil {
		return fmt.Errorf("requesting pairing code: %w", err)
	}

	bold := color.New(color.FgCyan, color.Bold)
	fmt.Fprintln(os.Stdout, "Enter this code in the guardian dashboard:")
	fmt.Fprintln(os.Stdout)
	bold.Fprintf(os.Stdout, "    %s\n\n", code)
	fmt.Fprintln(os.Stdout, "Waiting for confirmation...")

	ticker := time.NewTicker(pairInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("pairing timed out, request a new code")
		case <-ticker.C:
		}

		check, err := client.CheckPairing(ctx, code)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Check failed (will retry): %v\n", err)
			continue
		}

		switch check.Status {
		case remote.PairingPending:
			continue
		case remote.PairingExpired, remote.PairingInvalid:
			return fmt.Errorf("pairing code %s: request a new code", check.Status)
		case remote.PairingConfirmed:
			green := color.New(color.FgGreen, color.Bold)
			green.Fprintln(os.Stdout, "✅ Device paired")
			fmt.Fprintln(os.Stdout, "\nAdd these to the agent section of your configuration:")
			fmt.Fprintf(os.Stdout, "\nagent:\n  pc_id: %s\n  user_id: %s\n  device_token: %s\n",
				check.PCID, check.UserID, check.DeviceToken)
			return nil
		default:
			return fmt.Errorf("unexpected pairing status %q", check.Status)
		}
	}
}
