package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/zulandar/buildyard/internal/config"
	"github.com/zulandar/buildyard/internal/db"
	"github.com/zulandar/buildyard/internal/dispatch"
	"github.com/zulandar/buildyard/internal/logging"
	"github.com/zulandar/buildyard/internal/models"
	"github.com/zulandar/buildyard/internal/notify"
	"github.com/zulandar/buildyard/internal/notify/discord"
	"github.com/zulandar/buildyard/internal/notify/slack"
	"github.com/zulandar/buildyard/internal/queue"
	"github.com/zulandar/buildyard/internal/revision"
	"github.com/zulandar/buildyard/internal/vcs"
	"github.com/zulandar/buildyard/internal/vcs/github"
	"github.com/zulandar/buildyard/internal/vcs/gitrepo"
	"gorm.io/gorm"
)

// connectFromConfig loads the config file and opens the database it names.
func connectFromConfig(configPath string) (*config.Config, *gorm.DB, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to %s database: %w", cfg.Database.Driver, err)
	}
	return cfg, gormDB, nil
}

// newLogger writes structured logs to the command's stderr.
func newLogger(cmd *cobra.Command, cfg *config.Config) *slog.Logger {
	return logging.New(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
}

// newQueue returns the configured task queue and a function releasing it.
func newQueue(ctx context.Context, cfg *config.Config, log *slog.Logger) (queue.Enqueuer, func(), error) {
	if cfg.Queue.Driver == "memory" {
		log.Warn("using in-memory task queue; tasks are not delivered to workers")
		return queue.NewMemory(), func() {}, nil
	}
	q, client, err := queue.Dial(ctx, cfg.Queue, log)
	if err != nil {
		return nil, nil, err
	}
	return q, func() { client.Close() }, nil
}

// newBackends registers the git and GitHub version-control backends.
func newBackends(ctx context.Context, cfg *config.Config) (*vcs.Registry, error) {
	reg := vcs.NewRegistry()
	reg.Register(models.BackendGit, gitrepo.Factory(gitrepo.Options{
		CacheDir: cfg.VCS.CacheDir,
		Fetch:    cfg.VCS.Fetch,
	}))

	client, err := github.NewClient(ctx, github.Options{
		Token:   cfg.VCS.GitHubToken,
		BaseURL: cfg.VCS.GitHubAPIURL,
	})
	if err != nil {
		return nil, err
	}
	reg.Register(models.BackendGitHub, github.Factory(client))
	return reg, nil
}

// newNotifier returns a notifier posting to every configured chat platform.
func newNotifier(cfg *config.Config) (notify.Notifier, error) {
	var multi notify.Multi
	if cfg.Notify.Slack.Enabled() {
		n, err := slack.New(slack.Opts{BotToken: cfg.Notify.Slack.BotToken, ChannelID: cfg.Notify.Slack.ChannelID})
		if err != nil {
			return nil, err
		}
		multi = append(multi, n)
	}
	if cfg.Notify.Discord.Enabled() {
		n, err := discord.New(discord.Opts{BotToken: cfg.Notify.Discord.BotToken, ChannelID: cfg.Notify.Discord.ChannelID})
		if err != nil {
			return nil, err
		}
		multi = append(multi, n)
	}
	if len(multi) == 0 {
		return notify.Nop{}, nil
	}
	return multi, nil
}

// newDispatcher wires a Dispatcher from config.
func newDispatcher(ctx context.Context, cfg *config.Config, gormDB *gorm.DB, q queue.Enqueuer, n notify.Notifier, log *slog.Logger) (*dispatch.Dispatcher, error) {
	backends, err := newBackends(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &dispatch.Dispatcher{
		DB: gormDB,
		Resolver: &revision.Resolver{
			DB:       gormDB,
			Backends: backends,
			Timeout:  cfg.VCS.Timeout,
			Log:      log,
		},
		Queue:         q,
		Notifier:      n,
		Log:           log,
		GreenAncestor: cfg.Dispatch.GreenAncestor,
	}, nil
}
