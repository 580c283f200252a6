package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/makeasinger/musicforge/internal/agent"
	"github.com/makeasinger/musicforge/internal/client"
	"github.com/makeasinger/musicforge/internal/config"
	"github.com/makeasinger/musicforge/internal/logging"
	"github.com/makeasinger/musicforge/internal/repository"
	"github.com/makeasinger/musicforge/internal/service"
)

var rootCmd = &cobra.Command{
	Use:     "musicforge",
	Short:   "MusicForge drives the staged music generation pipeline",
	Long:    `Create projects, run generation in-process with live progress, and iterate on the result with feedback.`,
	Version: "0.1.0",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		env.cfg = cfg

		level := cfg.Server.LogLevel
		if verbose, _ := cmd.Flags().GetBool("verbose"); !verbose {
			level = "warn"
		}
		env.logger, err = logging.New(level, "console")
		return err
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().Bool("memory", false, "Keep projects in memory instead of Redis")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log pipeline activity")
}

// cliEnv holds what PersistentPreRunE resolved for the running command
type cliEnv struct {
	cfg    *config.Config
	logger *zap.Logger
}

var env cliEnv

func openRepository(cmd *cobra.Command) (repository.ProjectRepository, func(), error) {
	if mem, _ := cmd.Flags().GetBool("memory"); mem {
		return repository.NewMemoryRepository(), func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     env.cfg.Redis.Addr,
		Password: env.cfg.Redis.Password,
		DB:       env.cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(cmd.Context(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, nil, fmt.Errorf("failed to reach redis at %s: %w", env.cfg.Redis.Addr, err)
	}

	repo := repository.NewRedisRepository(rdb,
		repository.WithTTL(time.Duration(env.cfg.Redis.ProjectTTLHours)*time.Hour),
		repository.WithPrefix(env.cfg.Redis.KeyPrefix))
	return repo, func() { rdb.Close() }, nil
}

// projectService wraps repo for the record operations the CLI shares with the API
func projectService(repo repository.ProjectRepository) *service.ProjectService {
	return service.NewProjectService(repo, nil, nil, nil, 0, env.logger)
}

func newOrchestrator(repo repository.ProjectRepository, opts ...agent.Option) *agent.Orchestrator {
	var text agent.TextProvider = client.MockChatClient{}
	if chat := client.NewChatClient(&env.cfg.LLM); chat.IsConfigured() {
		text = chat
	} else {
		fmt.Println("LLM provider not configured, using mock completions.")
	}

	opts = append([]agent.Option{agent.WithLogger(env.logger)}, opts...)
	if env.cfg.Worker.Enabled {
		opts = append(opts, agent.WithWorker(client.NewWorkerClient(&env.cfg.Worker)))
	}
	if env.cfg.R2.AccessKeyID != "" && env.cfg.R2.SecretAccessKey != "" {
		r2, err := client.NewR2Client(&env.cfg.R2)
		if err != nil {
			env.logger.Warn("r2 client not initialized", zap.Error(err))
		} else {
			opts = append(opts, agent.WithStorage(r2))
		}
	}
	return agent.NewOrchestrator(text, repo, opts...)
}
