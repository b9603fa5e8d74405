package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"carevoice-backend/internal/call"
	"carevoice-backend/internal/config"
	"carevoice-backend/internal/coordinator"
	"carevoice-backend/internal/store"
)

func newTickCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "tick",
		Short: "Run one coordinator pass",
		Long:  "Processes every new session once: places the call, waits for it to finish, and records the outcome. Useful for debugging without the scheduler.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTick(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "carevoice.yaml", "path to Carevoice config file")
	return cmd
}

func runTick(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	st, err := store.New(cfg.Store.BaseDir)
	if err != nil {
		return err
	}

	provider, err := call.NewRetell(call.RetellOpts{
		APIKey:       os.Getenv("RETELL_API_KEY"),
		AgentID:      cfg.Call.AgentID,
		FromNumber:   cfg.Call.FromNumber,
		ToNumber:     cfg.Call.ToNumber,
		BaseURL:      cfg.Call.BaseURL,
		PollInterval: cfg.CallPollInterval(),
	})
	if err != nil {
		return err
	}

	notifier, err := buildNotifier(cfg)
	if err != nil {
		return err
	}

	coord, err := coordinator.New(coordinator.Opts{
		Store:       st,
		Provider:    provider,
		Notifier:    notifier,
		CallTimeout: cfg.CallTimeout(),
		Out:         cmd.OutOrStdout(),
	})
	if err != nil {
		return err
	}

	return coord.Tick(cmd.Context())
}
