package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"vortx/cmd/server/config"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "vortx:", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "vortx",
		Short:         "Storefront backend: face recognition, checkout and payment webhooks",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			dir, _ := cmd.Flags().GetString("env-dir")
			_, err := config.LoadDotEnv(dir)
			return err
		},
	}
	root.PersistentFlags().String("env-dir", ".", "directory holding .env files")
	root.AddCommand(newServeCmd(), newValidateEnvCmd(), newProvidersCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP, gRPC health and metrics servers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := newLogger(cmd.ErrOrStderr())
			slog.SetDefault(logger)

			if !config.SkipValidation() {
				v := config.ValidateEnvironment()
				for _, w := range v.Warnings {
					logger.Warn(w)
				}
				if err := v.Err(); err != nil {
					logger.Error("environment validation failed", "error", err)
					return err
				}
			}
			if err := run(cmd.Context(), logger); err != nil {
				logger.Error("server error", "error", err)
				return err
			}
			return nil
		},
	}
}

func newValidateEnvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate-env",
		Short: "Check required and grouped environment variables",
		RunE: func(cmd *cobra.Command, _ []string) error {
			v := config.ValidateEnvironment()
			out := cmd.OutOrStdout()
			for _, w := range v.Warnings {
				fmt.Fprintf(out, "warning: %s\n", w)
			}
			for _, e := range v.Errors {
				fmt.Fprintf(out, "error: %s: %s\n", e.Variable, e.Reason)
			}
			if !v.Valid() {
				return v.Err()
			}
			fmt.Fprintln(out, "environment OK")
			return nil
		},
	}
}

func newProvidersCmd() *cobra.Command {
	var format string
	var all bool
	cmd := &cobra.Command{
		Use:   "providers",
		Short: "Print the provider and module configuration derived from the environment",
		RunE: func(cmd *cobra.Command, _ []string) error {
			providers := config.AssembleProviders()
			if !all {
				providers = config.EnabledConfigs(providers)
			}
			return writeProviders(cmd.OutOrStdout(), format, providers)
		},
	}
	cmd.Flags().StringVar(&format, "format", "json", "output format: json or yaml")
	cmd.Flags().BoolVar(&all, "all", false, "include disabled providers")
	return cmd
}

func writeProviders(w io.Writer, format string, providers []config.ProviderConfig) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(providers)
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(providers); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

// newLogger logs JSON in production and text elsewhere. LOG_LEVEL accepts
// debug, info, warn or error.
func newLogger(w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(os.Getenv("LOG_LEVEL")))); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if config.IsProduction() {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
