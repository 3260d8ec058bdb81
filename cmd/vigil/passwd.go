package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kidwatch/vigil/internal/auth"
	"github.com/kidwatch/vigil/internal/config"
	"github.com/kidwatch/vigil/internal/storage"
)

var passwdCheck bool

var passwdCmd = &cobra.Command{
	Use:   "passwd",
	Short: "Set or verify the guardian override password",
	Long: `Set the local guardian override password (stored as a hash, synced settings
from the dashboard override it), or verify a password against the stored hash
with --check.`,
	RunE: runPasswd,
}

func init() {
	passwdCmd.Flags().BoolVar(&passwdCheck, "check", false, "Verify a password instead of setting one")
	rootCmd.AddCommand(passwdCmd)
}

func runPasswd(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	store, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer store.Close()

	fmt.Fprint(os.Stdout, "Password: ")
	reader := bufio.NewReader(os.Stdin)
	password, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("reading password: %w", err)
	}
	password = strings.TrimRight(password, "\r\n")
	if password == "" {
		return fmt.Errorf("password must not be empty")
	}

	ctx := context.Background()
	if passwdCheck {
		stored, err := store.Settings().Get(ctx, "password_hash")
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("no guardian password is set")
		}
		if err != nil {
			return fmt.Errorf("reading stored hash: %w", err)
		}
		if !auth.VerifyPassword(password, stored) {
			color.New(color.FgRed, color.Bold).Fprintln(os.Stdout, "❌ Wrong password")
			os.Exit(1)
		}
		color.New(color.FgGreen, color.Bold).Fprintln(os.Stdout, "✅ Password verified")
		return nil
	}

	if err := store.Settings().Set(ctx, "password_hash", auth.HashPassword(password)); err != nil {
		return fmt.Errorf("storing hash: %w", err)
	}
	color.New(color.FgGreen, color.Bold).Fprintln(os.Stdout, "✅ Guardian password set")
	return nil
}
