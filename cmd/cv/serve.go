package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"carevoice-backend/internal/call"
	"carevoice-backend/internal/config"
	"carevoice-backend/internal/coordinator"
	"carevoice-backend/internal/extract"
	"carevoice-backend/internal/notify"
	"carevoice-backend/internal/server"
	"carevoice-backend/internal/session"
	"carevoice-backend/internal/store"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Carevoice backend",
		Long:  "Starts the upload API and the call coordinator. The coordinator polls the session store and places one follow-up call per new session.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "carevoice.yaml", "path to Carevoice config file")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	st, err := store.New(cfg.Store.BaseDir)
	if err != nil {
		return err
	}

	parser, err := extract.New(extract.Opts{
		APIKey: os.Getenv("OPENAI_API_KEY"),
		Model:  cfg.Extraction.Model,
	})
	if err != nil {
		return err
	}
	factory := session.NewFactory(parser, st, cfg.Extraction.Instruction)

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

	out := cmd.OutOrStdout()
	coord, err := coordinator.New(coordinator.Opts{
		Store:        st,
		Provider:     provider,
		Notifier:     notifier,
		TickInterval: cfg.TickInterval(),
		CallTimeout:  cfg.CallTimeout(),
		Out:          out,
	})
	if err != nil {
		return err
	}

	srv, err := server.New(server.Opts{
		Factory:   factory,
		Sessions:  st,
		UploadDir: cfg.Server.UploadDir,
	})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.Server.UploadDir, 0o755); err != nil {
		return fmt.Errorf("create upload dir: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := coord.Run(ctx); err != nil {
			log.Printf("coordinator: %v", err)
		}
	}()

	return srv.Start(ctx, cfg.Server.Port, out)
}

// buildNotifier assembles the configured notification channels. A channel is
// active only when both its config entry and its bot token are present.
func buildNotifier(cfg *config.Config) (notify.Notifier, error) {
	var notifiers notify.Multi

	if ch := cfg.Notifications.Slack.Channel; ch != "" {
		token := os.Getenv("SLACK_BOT_TOKEN")
		if token == "" {
			return nil, fmt.Errorf("slack channel configured but SLACK_BOT_TOKEN is not set")
		}
		s, err := notify.NewSlack(notify.SlackOpts{BotToken: token, ChannelID: ch})
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, s)
	}

	if ch := cfg.Notifications.Discord.Channel; ch != "" {
		token := os.Getenv("DISCORD_BOT_TOKEN")
		if token == "" {
			return nil, fmt.Errorf("discord channel configured but DISCORD_BOT_TOKEN is not set")
		}
		d, err := notify.NewDiscord(notify.DiscordOpts{BotToken: token, ChannelID: ch})
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, d)
	}

	if len(notifiers) == 0 {
		return notify.Nop{}, nil
	}
	return notifiers, nil
}
