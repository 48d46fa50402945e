package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hrygo/ensemble/ai"
	"github.com/hrygo/ensemble/ai/core/llm"
	"github.com/hrygo/ensemble/ai/experts"
	"github.com/hrygo/ensemble/ai/metrics"
	"github.com/hrygo/ensemble/ai/orchestrator"
	"github.com/hrygo/ensemble/ai/router"
	"github.com/hrygo/ensemble/internal/profile"
	"github.com/hrygo/ensemble/internal/version"
	"github.com/hrygo/ensemble/server"
)

var rootCmd = &cobra.Command{
	Use:   "ensemble",
	Short: `A multi-expert AI query service. Routes questions to domain experts and aggregates their answers.`,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		// Try to load .env from the current directory (ignore error if missing).
		_ = godotenv.Load()
		return nil
	},
	Run: func(_ *cobra.Command, _ []string) {
		instanceProfile := &profile.Profile{
			Mode:    viper.GetString("mode"),
			Addr:    viper.GetString("addr"),
			Port:    viper.GetInt("port"),
			Version: version.GetCurrentVersion(viper.GetString("mode")),
		}
		instanceProfile.FromEnv()
		if err := instanceProfile.Validate(); err != nil {
			panic(err)
		}

		aiConfig := ai.NewConfigFromProfile(instanceProfile)
		if err := aiConfig.Validate(); err != nil {
			slog.Error("invalid AI configuration", "error", err)
			return
		}

		exporter := metrics.NewExporter(metrics.DefaultConfig())
		aiConfig.LLM.Metrics = exporter

		llmService, err := llm.NewService(&aiConfig.LLM)
		if err != nil {
			slog.Error("failed to initialize LLM service",
				"provider", aiConfig.LLM.Provider,
				"error", err,
			)
			return
		}
		slog.Info("LLM service initialized", "provider", aiConfig.LLM.Provider)

		// Warmup the backend asynchronously to reduce first-request latency.
		go func() {
			warmupCtx, warmupCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer warmupCancel()
			llmService.Warmup(warmupCtx, aiConfig.RoleModels.Router)
		}()

		registry := experts.NewRegistry(llmService, aiConfig.ExpertModels)
		queryRouter := router.New(llmService, aiConfig.RoleModels.Router, registry)
		aggregator := orchestrator.NewAggregator(llmService, aiConfig.RoleModels.Aggregator,
			orchestrator.LoadPromptConfig(""))
		pipeline := orchestrator.New(queryRouter, registry, aggregator,
			orchestrator.WithMetrics(exporter),
		)

		ctx, cancel := context.WithCancel(context.Background())
		s, err := server.NewServer(ctx, instanceProfile, pipeline, exporter)
		if err != nil {
			cancel()
			slog.Error("failed to create server", "error", err)
			return
		}

		c := make(chan os.Signal, 1)
		// The default signal sent by the `kill` command is SIGTERM,
		// which is taken as the graceful shutdown signal for many systems,
		// eg., Kubernetes, Gunicorn.
		signal.Notify(c, terminationSignals...)

		if err := s.Start(ctx); err != nil {
			cancel()
			slog.Error("failed to start server", "error", err)
			return
		}

		printGreetings(instanceProfile)

		go func() {
			<-c
			s.Shutdown(ctx)
			cancel()
		}()

		<-ctx.Done()
	},
}

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("port", 28090)

	rootCmd.PersistentFlags().String("mode", "dev", `mode of server, can be "prod" or "dev"`)
	rootCmd.PersistentFlags().String("addr", "", "address of server")
	rootCmd.PersistentFlags().Int("port", 28090, "port of server")

	for _, flag := range []string{"mode", "addr", "port"} {
		if err := viper.BindPFlag(flag, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("ensemble")
	viper.AutomaticEnv()
}

func printGreetings(profile *profile.Profile) {
	fmt.Printf("Ensemble %s started successfully!\n", profile.Version)

	if profile.IsDev() {
		fmt.Fprint(os.Stderr, "Development mode is enabled\n")
	}

	fmt.Printf("Mode: %s\n", profile.Mode)
	if len(profile.Addr) == 0 {
		fmt.Printf("Server running on port %d\n", profile.Port)
	} else {
		fmt.Printf("Server running on %s:%d\n", profile.Addr, profile.Port)
	}
	fmt.Printf("Query endpoint: POST http://localhost:%d/api/v1/query\n", profile.Port)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		panic(err)
	}
}
