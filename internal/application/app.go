package application

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/PhillHH/chat-agent/internal/application/usecase"
	"github.com/PhillHH/chat-agent/internal/domain/pii"
	"github.com/PhillHH/chat-agent/internal/domain/repository"
	"github.com/PhillHH/chat-agent/internal/infrastructure/assistant"
	"github.com/PhillHH/chat-agent/internal/infrastructure/audit"
	"github.com/PhillHH/chat-agent/internal/infrastructure/config"
	"github.com/PhillHH/chat-agent/internal/infrastructure/detector"
	"github.com/PhillHH/chat-agent/internal/infrastructure/notify"
	"github.com/PhillHH/chat-agent/internal/infrastructure/persistence"
	"github.com/PhillHH/chat-agent/internal/infrastructure/rules"
	"github.com/PhillHH/chat-agent/internal/infrastructure/vault"
	httpServer "github.com/PhillHH/chat-agent/internal/interfaces/http"
	"github.com/PhillHH/chat-agent/internal/interfaces/operator"
	"github.com/PhillHH/chat-agent/internal/interfaces/websocket"
	"github.com/PhillHH/chat-agent/pkg/safego"
)

// App is the dependency injection container. Everything is constructed once
// here and handed down; no package reaches for globals.
type App struct {
	config *config.Config
	logger *zap.Logger
	db     *gorm.DB

	// infrastructure
	vault        *vault.RedisVault
	detector     *detector.HTTPDetector
	assistant    *assistant.Client
	auditRepo    repository.AuditRepository
	recorder     *audit.Recorder
	notifier     *notify.TeamsNotifier
	rulesWatcher *rules.Watcher

	// domain
	scanner *pii.Scanner

	// application
	chatUseCase *usecase.HandleChatUseCase

	// interfaces
	hub             *websocket.Hub
	bridge          *operator.Bridge
	botHandler      *operator.BotFrameworkHandler
	telegramAdapter *operator.TelegramAdapter
	httpServer      *httpServer.Server

	runCancel context.CancelFunc
}

// NewApp builds the full gateway. The vault connection is verified here so a
// bad redis address fails startup instead of the first customer turn.
func NewApp(cfg *config.Config, logger *zap.Logger) (*App, error) {
	app := &App{
		config: cfg,
		logger: logger,
	}

	if err := app.initInfrastructure(); err != nil {
		return nil, fmt.Errorf("failed to init infrastructure: %w", err)
	}

	if err := app.initDomain(); err != nil {
		return nil, fmt.Errorf("failed to init domain: %w", err)
	}

	if err := app.initInterfaces(); err != nil {
		return nil, fmt.Errorf("failed to init interfaces: %w", err)
	}

	return app, nil
}

func (app *App) initInfrastructure() error {
	app.logger.Info("Initializing infrastructure")

	app.vault = vault.NewRedisVault(vault.Options{
		Addr:      app.config.Redis.Addr(),
		Password:  app.config.Redis.Password,
		DB:        app.config.Redis.DB,
		TTL:       app.config.Vault.TTL,
		StatusTTL: app.config.Vault.StatusTTL,
	}, app.logger)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.vault.Ping(pingCtx); err != nil {
		return fmt.Errorf("vault store unreachable at %s: %w", app.config.Redis.Addr(), err)
	}

	app.detector = detector.NewHTTPDetector(
		app.config.Detector.URL,
		app.config.Detector.Timeout,
		app.logger,
	)

	app.assistant = assistant.NewClient(assistant.Options{
		BaseURL:     app.config.OpenAI.BaseURL,
		APIKey:      app.config.OpenAI.APIKey,
		AssistantID: app.config.OpenAI.AssistantID,
		Timeout:     app.config.OpenAI.Timeout,
	}, app.logger)

	db, err := persistence.NewDBConnection(&app.config.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	app.db = db
	app.auditRepo = persistence.NewGormAuditRepository(db)
	app.recorder = audit.NewRecorder(app.auditRepo, 0, app.logger)

	app.notifier = notify.NewTeamsNotifier(app.config.Teams.WebhookURL, app.logger)

	return nil
}

func (app *App) initDomain() error {
	app.logger.Info("Initializing domain services")

	app.scanner = pii.NewScanner(app.vault, app.detector, app.logger)

	if path := app.config.Rules.Path; path != "" {
		watcher, err := rules.NewWatcher(path, app.scanner.SetRuleset, app.logger)
		if err != nil {
			return fmt.Errorf("failed to create rules watcher: %w", err)
		}
		app.rulesWatcher = watcher
	}

	return nil
}

func (app *App) initInterfaces() error {
	app.logger.Info("Initializing interfaces")

	app.hub = websocket.NewHub(app.logger)
	app.bridge = operator.NewBridge(app.hub, app.vault, app.logger)

	botHandler, err := operator.NewBotFrameworkHandler(
		app.config.Teams.AppID,
		app.config.Teams.AppPassword,
		app.bridge,
		app.logger,
	)
	if err != nil {
		return fmt.Errorf("failed to create bot framework handler: %w", err)
	}
	app.botHandler = botHandler

	if app.config.Telegram.Enabled() {
		adapter, err := operator.NewTelegramAdapter(
			app.config.Telegram.BotToken,
			app.config.Telegram.AllowedChats,
			app.bridge,
			app.logger,
		)
		if err != nil {
			return fmt.Errorf("failed to create telegram adapter: %w", err)
		}
		app.telegramAdapter = adapter
	} else {
		app.logger.Info("Telegram operator channel not configured, skipping")
	}

	app.chatUseCase = usecase.NewHandleChatUseCase(
		app.scanner,
		app.vault,
		app.vault,
		app.assistant,
		app.recorder,
		app.bridge,
		app.notifier,
		app.config.Chat.TurnTimeout,
		app.logger,
	)

	app.hub.SetMessageHandler(app.handleUserFrame)

	app.httpServer = httpServer.NewServer(
		httpServer.Config{
			Host: app.config.Server.Host,
			Port: app.config.Server.Port,
			Mode: app.config.Server.Mode,
		},
		app.chatUseCase,
		app.auditRepo,
		app.config.Admin.Enabled,
		app.hub,
		app.botHandler.HandleActivity,
		app.logger,
	)

	return nil
}

// handleUserFrame runs one WebSocket turn. The hub already detached us from
// its read loop, so blocking on the stream here is fine.
func (app *App) handleUserFrame(sessionID, text string) {
	sink := &wsSink{hub: app.hub, sessionID: sessionID}

	status, err := app.chatUseCase.Execute(context.Background(), sessionID, text, sink)
	if err != nil {
		app.logger.Error("WebSocket turn failed",
			zap.String("session_id", sessionID),
			zap.Error(err))
		_ = app.hub.SendError(sessionID, "Filter service failed.")
		return
	}

	_ = app.hub.SendDone(sessionID, string(status))
}

// wsSink fans turn output into the session's socket.
type wsSink struct {
	hub       *websocket.Hub
	sessionID string
}

var _ usecase.Sink = (*wsSink)(nil)

func (s *wsSink) Fragment(text string) error {
	return s.hub.SendChunk(s.sessionID, text)
}

func (s *wsSink) System(text string) error {
	return s.hub.SendSystem(s.sessionID, text)
}

// Start brings up the hub, the rules watcher, the HTTP listener and the
// optional telegram poller.
func (app *App) Start(ctx context.Context) error {
	app.logger.Info("Starting application")

	runCtx, cancel := context.WithCancel(context.Background())
	app.runCancel = cancel
	safego.Go(app.logger, "websocket.hub", func() {
		app.hub.Run(runCtx)
	})

	if app.rulesWatcher != nil {
		if err := app.rulesWatcher.Start(runCtx); err != nil {
			return fmt.Errorf("failed to start rules watcher: %w", err)
		}
	}

	if err := app.httpServer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	if app.telegramAdapter != nil {
		if err := app.telegramAdapter.Start(ctx); err != nil {
			return fmt.Errorf("failed to start telegram adapter: %w", err)
		}
	}

	app.logger.Info("Application started successfully")
	return nil
}

// Stop shuts down in reverse order: inbound surfaces first, then the audit
// drain, then the stores.
func (app *App) Stop(ctx context.Context) error {
	app.logger.Info("Stopping application")

	if app.telegramAdapter != nil {
		app.telegramAdapter.Stop()
	}

	if err := app.httpServer.Stop(ctx); err != nil {
		app.logger.Error("Failed to stop HTTP server", zap.Error(err))
	}

	if app.rulesWatcher != nil {
		app.rulesWatcher.Close()
	}

	if app.runCancel != nil {
		app.runCancel()
	}

	// Flush queued transcript rows before the DB goes away.
	app.recorder.Close()

	if app.db != nil {
		sqlDB, err := app.db.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				app.logger.Error("Failed to close database connection", zap.Error(err))
			}
		}
	}

	if err := app.vault.Close(); err != nil {
		app.logger.Error("Failed to close vault connection", zap.Error(err))
	}

	app.logger.Info("Application stopped successfully")
	return nil
}

// ChatUseCase exposes the turn pipeline (used by tests and the chat CLI).
func (app *App) ChatUseCase() *usecase.HandleChatUseCase {
	return app.chatUseCase
}

// Logger returns the application logger.
func (app *App) Logger() *zap.Logger {
	return app.logger
}
