package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/PhillHH/chat-agent/internal/application"
	"github.com/PhillHH/chat-agent/internal/infrastructure/config"
	"github.com/PhillHH/chat-agent/internal/infrastructure/detector"
	"github.com/PhillHH/chat-agent/internal/infrastructure/logger"
	"github.com/PhillHH/chat-agent/internal/infrastructure/persistence"
	"github.com/PhillHH/chat-agent/internal/infrastructure/vault"
	"github.com/PhillHH/chat-agent/internal/interfaces/chatcli"
)

const (
	appName    = "gateway"
	appVersion = "1.0.0"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   appName,
		Short: "Secure AI Gateway",
		Long: "Secure AI Gateway masks personal data in customer messages before they\n" +
			"reach the language model and restores the originals in the reply stream.\n" +
			"Running without a subcommand starts the server.",
		RunE: runServe,
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the gateway server (HTTP + WebSocket + operator channels)",
		RunE:  runServe,
	})

	chatCmd := &cobra.Command{
		Use:   "chat",
		Short: "Open a terminal chat session against a running gateway",
		RunE:  runChat,
	}
	chatCmd.Flags().StringP("server", "s", "", "gateway base URL (default from config)")
	chatCmd.Flags().String("session", "", "reuse an existing session id")
	rootCmd.AddCommand(chatCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s v%s\n", appName, appVersion)
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "doctor",
		Short: "Check connectivity to Redis, the PII detector and the database",
		RunE:  runDoctor,
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// ─── Server Mode ───

func runServe(cmd *cobra.Command, args []string) error {
	log, err := logger.NewLogger(logger.Config{
		Level:      "info",
		Format:     "json",
		OutputPath: "stdout",
	})
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer log.Sync()

	log.Info("Starting Secure AI Gateway",
		zap.String("version", appVersion),
	)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Rebuild with the configured level and sink now that the config is in.
	log, err = logger.NewLogger(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		OutputPath: cfg.Log.OutputPath,
	})
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := application.NewApp(cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize application", zap.Error(err))
	}

	if err := app.Start(ctx); err != nil {
		log.Fatal("Failed to start application", zap.Error(err))
	}

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	log.Info("Received shutdown signal", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := app.Stop(shutdownCtx); err != nil {
		log.Error("Error during shutdown", zap.Error(err))
		os.Exit(1)
	}

	log.Info("Application stopped successfully")
	return nil
}

// ─── Terminal Chat Client ───

func runChat(cmd *cobra.Command, args []string) error {
	// Quiet logger, the client draws the terminal itself.
	log, err := logger.NewLogger(logger.Config{
		Level:      "error",
		Format:     "console",
		OutputPath: "stderr",
	})
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer log.Sync()

	serverURL, _ := cmd.Flags().GetString("server")
	if serverURL == "" {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
		host := cfg.Server.Host
		if host == "0.0.0.0" || host == "" {
			host = "localhost"
		}
		serverURL = fmt.Sprintf("ws://%s:%d", host, cfg.Server.Port)
	}
	sessionID, _ := cmd.Flags().GetString("session")

	client := chatcli.New(chatcli.Config{
		ServerURL: serverURL,
		SessionID: sessionID,
	}, log)

	return client.Run(context.Background())
}

// ─── Doctor ───

func runDoctor(cmd *cobra.Command, args []string) error {
	fmt.Printf("◇ Gateway Doctor v%s\n\n", appVersion)

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("  \033[91m✗\033[0m Configuration: %v\n", err)
		return nil
	}
	fmt.Printf("  \033[92m✓\033[0m Configuration: listen %s:%d\n", cfg.Server.Host, cfg.Server.Port)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	checks := []struct {
		name  string
		check func(ctx context.Context) (string, bool)
	}{
		{"Redis vault", func(ctx context.Context) (string, bool) {
			v := vault.NewRedisVault(vault.Options{
				Addr:     cfg.Redis.Addr(),
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			}, zap.NewNop())
			defer v.Close()
			if err := v.Ping(ctx); err != nil {
				return err.Error(), false
			}
			return cfg.Redis.Addr(), true
		}},
		{"PII detector", func(ctx context.Context) (string, bool) {
			d := detector.NewHTTPDetector(cfg.Detector.URL, cfg.Detector.Timeout, zap.NewNop())
			if _, err := d.Predict(ctx, "ping", []string{"person"}); err != nil {
				return err.Error(), false
			}
			return cfg.Detector.URL, true
		}},
		{"Database", func(ctx context.Context) (string, bool) {
			db, err := persistence.NewDBConnection(&cfg.Database)
			if err != nil {
				return err.Error(), false
			}
			if sqlDB, err := db.DB(); err == nil {
				sqlDB.Close()
			}
			return cfg.Database.Type, true
		}},
	}

	allOK := true
	for _, c := range checks {
		val, ok := c.check(ctx)
		icon := "\033[92m✓\033[0m"
		if !ok {
			icon = "\033[91m✗\033[0m"
			allOK = false
		}
		fmt.Printf("  %s %s: %s\n", icon, c.name, val)
	}

	fmt.Println()
	if allOK {
		fmt.Println("All checks passed ✓")
	} else {
		fmt.Println("Some checks failed, see above")
	}
	return nil
}
