package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/crombird/internal/api"
	"github.com/crombird/internal/bot"
	"github.com/crombird/internal/config"
	"github.com/crombird/internal/crom"
	"github.com/crombird/internal/metrics"
	"github.com/crombird/internal/reddit"
)

// BotCommand returns the bot command
func BotCommand() *cli.Command {
	return &cli.Command{
		Name:  "bot",
		Usage: "Run the Reddit bot",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Override the port for the metrics server",
			},
		},
		Action: runBot,
	}
}

func runBot(c *cli.Context) error {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	setupLogging(cfg.Logging.Level)

	port := cfg.Server.Port
	if override := c.Int("port"); override != 0 {
		port = override
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	redditClient, err := reddit.NewClient(ctx, reddit.Config{
		ClientID:             cfg.Reddit.ClientID,
		ClientSecret:         cfg.Reddit.ClientSecret,
		Username:             cfg.Reddit.Username,
		Password:             cfg.Reddit.Password,
		UserAgent:            cfg.Reddit.UserAgent,
		RequestsPerMinute:    cfg.Reddit.RequestsPerMinute,
		SubmissionSubreddits: cfg.Reddit.SubmissionSubreddits,
		CommentSubreddits:    cfg.Reddit.CommentSubreddits,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to reddit: %w", err)
	}

	startTime, err := redditClient.StartTime(ctx)
	if err != nil {
		return fmt.Errorf("failed to determine start time: %w", err)
	}
	log.Info().Float64("start_time", startTime).Msg("Resuming after last reply")

	cromClient := crom.NewClient(crom.Config{
		APIEndpoint:  cfg.Crom.APIEndpoint,
		AuthEndpoint: cfg.Crom.AuthEndpoint,
		ClientID:     cfg.Crom.ClientID,
		ClientSecret: cfg.Crom.ClientSecret,
	})

	m := metrics.New()
	server := api.NewServer(port, m.Handler())
	server.Start()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Failed to shut down metrics server")
		}
	}()

	b := bot.New(redditClient, crom.NewSearcher(cromClient), m, bot.Config{
		StartTime:         startTime,
		CommentSubreddits: cfg.Reddit.CommentSubreddits,
		BotAccounts:       cfg.Reddit.BotAccounts,
		WikiDomains:       cfg.Reddit.WikiDomains,
	})

	log.Info().Msg("Bot started")
	if err := b.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	log.Info().Msg("Bot stopped")
	return nil
}

func setupLogging(level string) {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
}
