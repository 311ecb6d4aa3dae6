package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/helioscan/pacsbridge/api"
	"github.com/helioscan/pacsbridge/client"
	"github.com/helioscan/pacsbridge/config"
	"github.com/helioscan/pacsbridge/metadata"
	"github.com/helioscan/pacsbridge/qr"
)

// buildOrchestrator wires the stack from configuration: dialer,
// orchestrator, reconciler, logger.
func buildOrchestrator() (*qr.Orchestrator, *metadata.Reconciler, config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, config.Config{}, nil, err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	dialer := client.NewDialer(cfg.Remote.Address(), client.Config{
		CallingAETitle: cfg.Local.AETitle,
		CalledAETitle:  cfg.Remote.AETitle,
		ConnectTimeout: cfg.Timeouts.ConnectTimeout(),
		ReadTimeout:    cfg.Timeouts.ReadTimeout(),
		WriteTimeout:   cfg.Timeouts.WriteTimeout(),
		Logger:         logger,
	})

	reconcilerConfig := metadata.ReconcilerConfig{
		IssuerOfPatientIDDefault: cfg.Metadata.IssuerOfPatientIDDefault,
		PatientIDDefault:         cfg.Metadata.PatientIDDefault,
	}

	orchestrator := qr.NewOrchestrator(dialer, qr.Config{
		Reconciler: reconcilerConfig,
	}, logger)

	reconciler := metadata.NewReconciler(reconcilerConfig, logger)

	return orchestrator, reconciler, cfg, logger, nil
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			orchestrator, reconciler, cfg, logger, err := buildOrchestrator()
			if err != nil {
				return err
			}

			handler := api.NewHandler(orchestrator, reconciler, logger)
			router := api.NewRouter(handler, cfg.HTTP.AllowedOrigins)

			logger.Info("Starting HTTP server",
				"addr", cfg.HTTP.ListenAddr,
				"remote", cfg.Remote.Address(),
				"remote_ae", cfg.Remote.AETitle)
			return router.Run(cfg.HTTP.ListenAddr)
		},
	}
}

func newEchoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "echo",
		Short: "Verify connectivity to the remote archive",
		RunE: func(cmd *cobra.Command, args []string) error {
			orchestrator, _, cfg, _, err := buildOrchestrator()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Timeouts.ConnectTimeout()+cfg.Timeouts.ReadTimeout())
			defer cancel()

			start := time.Now()
			if err := orchestrator.Verify(ctx); err != nil {
				return err
			}
			fmt.Printf("verification succeeded in %s\n", time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
}

func newFindCmd() *cobra.Command {
	var rawFilters []string

	cmd := &cobra.Command{
		Use:   "find",
		Short: "Run a discovery query and print matching records as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			orchestrator, _, _, _, err := buildOrchestrator()
			if err != nil {
				return err
			}

			filters := make(map[string]string, len(rawFilters))
			for _, raw := range rawFilters {
				key, value, _ := strings.Cut(raw, "=")
				if key == "" {
					return fmt.Errorf("invalid filter %q: want Keyword=Value", raw)
				}
				filters[key] = value
			}

			outcome, err := orchestrator.Find(cmd.Context(), filters)
			if err != nil {
				return err
			}

			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			return encoder.Encode(outcome.Results)
		},
	}

	cmd.Flags().StringArrayVarP(&rawFilters, "filter", "f", nil, "query filter as Keyword=Value (repeatable; empty value is a wildcard)")
	return cmd
}
