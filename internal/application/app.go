package application

import (
	"context"
	"fmt"
	"time"

	"github.com/ngoclaw/ngoclaw/gateway/internal/domain/entity"
	"github.com/ngoclaw/ngoclaw/gateway/internal/domain/service"
	domaintool "github.com/ngoclaw/ngoclaw/gateway/internal/domain/tool"
	"github.com/ngoclaw/ngoclaw/gateway/internal/infrastructure/config"
	"github.com/ngoclaw/ngoclaw/gateway/internal/infrastructure/llm"
	_ "github.com/ngoclaw/ngoclaw/gateway/internal/infrastructure/llm/anthropic" // register anthropic provider factory
	_ "github.com/ngoclaw/ngoclaw/gateway/internal/infrastructure/llm/openai"    // register openai provider factory
	"github.com/ngoclaw/ngoclaw/gateway/internal/infrastructure/persistence"
	httpServer "github.com/ngoclaw/ngoclaw/gateway/internal/interfaces/http"
	"github.com/ngoclaw/ngoclaw/gateway/internal/interfaces/websocket"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// App 应用程序（依赖注入容器）
type App struct {
	config *config.Config
	logger *zap.Logger
	db     *gorm.DB

	sessionStore *persistence.GormSessionStore

	toolRegistry domaintool.Registry
	llmRouter    *llm.Router
	agentLoop    *service.AgentLoop
	securityHook *service.SecurityHook

	wsHub      *websocket.Hub
	httpServer *httpServer.Server
}

// NewApp 创建应用程序，用于网关服务模式 (HTTP + WebSocket)
func NewApp(cfg *config.Config, logger *zap.Logger) (*App, error) {
	if err := config.Bootstrap(logger); err != nil {
		logger.Warn("Bootstrap failed (non-fatal)", zap.Error(err))
	}

	app := &App{config: cfg, logger: logger}

	if err := app.initRepositories(); err != nil {
		return nil, fmt.Errorf("failed to init repositories: %w", err)
	}
	if err := app.initInfrastructure(); err != nil {
		return nil, fmt.Errorf("failed to init infrastructure: %w", err)
	}
	if err := app.initApplicationServices(); err != nil {
		return nil, fmt.Errorf("failed to init application services: %w", err)
	}
	if err := app.initInterfaces(); err != nil {
		return nil, fmt.Errorf("failed to init interfaces: %w", err)
	}

	return app, nil
}

// NewAppCLI creates a lightweight app for CLI mode.
// Only initializes: DB (silent), tool registry, LLM router, agent loop.
// Skips: HTTP server, WebSocket hub.
func NewAppCLI(cfg *config.Config, logger *zap.Logger) (*App, error) {
	if err := config.Bootstrap(logger); err != nil {
		logger.Warn("Bootstrap failed (non-fatal)", zap.Error(err))
	}

	app := &App{config: cfg, logger: logger}

	if err := app.initRepositoriesSilent(); err != nil {
		return nil, fmt.Errorf("failed to init repositories: %w", err)
	}
	if err := app.initInfrastructure(); err != nil {
		return nil, fmt.Errorf("failed to init infrastructure: %w", err)
	}
	if err := app.initApplicationServices(); err != nil {
		return nil, fmt.Errorf("failed to init application services: %w", err)
	}

	return app, nil
}

// initRepositories 初始化数据库与会话存储
func (app *App) initRepositories() error {
	app.logger.Info("Initializing repositories")

	db, err := persistence.NewDBConnection(&app.config.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	app.db = db
	app.sessionStore = persistence.NewGormSessionStore(db)
	return nil
}

// initRepositoriesSilent initializes the session store with silent DB logging (CLI mode)
func (app *App) initRepositoriesSilent() error {
	db, err := persistence.NewDBConnectionSilent(&app.config.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	app.db = db
	app.sessionStore = persistence.NewGormSessionStore(db)
	return nil
}

// initInfrastructure 初始化基础设施: 工具注册表 + LLM 路由
func (app *App) initInfrastructure() error {
	app.logger.Info("Initializing infrastructure")

	// Tool Registry. No built-in tools ship with the gateway core — callers
	// embedding it register their own read/edit/execute/search tools
	// against this registry; the dispatcher and executor bridge are
	// agnostic to what gets registered (§4.3, §4.4).
	app.toolRegistry = domaintool.NewInMemoryRegistry()

	// LLM Router (modular provider factory with failover, §4.1)
	app.llmRouter = llm.NewRouter(app.logger)
	for _, p := range app.config.Agent.Providers {
		provider, err := llm.CreateProvider(llm.ProviderConfig{
			Name:     p.Name,
			Type:     p.Type,
			BaseURL:  p.BaseURL,
			APIKey:   p.APIKey,
			Models:   p.Models,
			Priority: p.Priority,
		}, app.logger)
		if err != nil {
			app.logger.Error("Failed to create LLM provider",
				zap.String("name", p.Name),
				zap.String("type", p.Type),
				zap.Error(err),
			)
			continue
		}
		app.llmRouter.AddProvider(provider)
	}
	app.logger.Info("LLM Router initialized",
		zap.Int("providers", len(app.config.Agent.Providers)),
	)

	return nil
}

// initApplicationServices 初始化应用服务: 工作流编排器 (AgentLoop)
func (app *App) initApplicationServices() error {
	app.logger.Info("Initializing application services")

	loopTools := &toolBridge{registry: app.toolRegistry}

	loopCfg := service.DefaultAgentLoopConfig()
	loopCfg.Model = app.config.Agent.DefaultModel

	// Bridge per-model policy overrides from config.yaml
	if len(app.config.Agent.ModelPolicies) > 0 {
		loopCfg.ModelPolicies = make(map[string]*service.ModelPolicyOverride)
		for key, cfgPolicy := range app.config.Agent.ModelPolicies {
			loopCfg.ModelPolicies[key] = &service.ModelPolicyOverride{
				RepairToolPairing:   cfgPolicy.RepairToolPairing,
				EnforceTurnOrdering: cfgPolicy.EnforceTurnOrdering,
				ReasoningFormat:     cfgPolicy.ReasoningFormat,
				ProgressInterval:    cfgPolicy.ProgressInterval,
				ProgressEscalation:  cfgPolicy.ProgressEscalation,
				PromptStyle:         cfgPolicy.PromptStyle,
				SystemRoleSupport:   cfgPolicy.SystemRoleSupport,
				ThinkingTagHint:     cfgPolicy.ThinkingTagHint,
			}
		}
	}
	if app.config.Agent.Guardrails.LoopDetectThreshold > 0 {
		loopCfg.DoomLoopThreshold = app.config.Agent.Guardrails.LoopDetectThreshold
	}
	if app.config.Agent.Guardrails.LoopDetectWindow > 0 {
		loopCfg.LoopWindowSize = app.config.Agent.Guardrails.LoopDetectWindow
	}
	if app.config.Agent.Guardrails.ContextMaxTokens > 0 {
		loopCfg.ContextMaxTokens = app.config.Agent.Guardrails.ContextMaxTokens
	}
	if app.config.Agent.Guardrails.ContextWarnRatio > 0 {
		loopCfg.ContextWarnRatio = app.config.Agent.Guardrails.ContextWarnRatio
	}
	if app.config.Agent.Guardrails.ContextHardRatio > 0 {
		loopCfg.ContextHardRatio = app.config.Agent.Guardrails.ContextHardRatio
	}
	if app.config.Agent.Runtime.MaxRetries > 0 {
		loopCfg.MaxRetries = app.config.Agent.Runtime.MaxRetries
	}
	if app.config.Agent.Runtime.RetryBaseWait > 0 {
		loopCfg.RetryBaseWait = app.config.Agent.Runtime.RetryBaseWait
	}
	if app.config.Agent.Runtime.ToolTimeout > 0 {
		loopCfg.ToolTimeout = app.config.Agent.Runtime.ToolTimeout
	}
	if app.config.Agent.Compaction.MessageThreshold > 0 {
		loopCfg.CompactThreshold = app.config.Agent.Compaction.MessageThreshold
	}
	if app.config.Agent.Compaction.KeepRecent > 0 {
		loopCfg.CompactKeepLast = app.config.Agent.Compaction.KeepRecent
	}

	app.agentLoop = service.NewAgentLoop(app.llmRouter, loopTools, loopCfg, app.logger)
	app.logger.Info("Agent Loop initialized", zap.String("model", loopCfg.Model))

	// Session store: a single process-wide session backs the loop's
	// atomic-save invariant and stateful markers (§4.11). Multi-conversation
	// history threading for concurrent HTTP/WebSocket callers is handled by
	// each handler passing its own conversation's history into Run()
	// directly; the attached session only persists the last-active turn.
	if app.sessionStore != nil {
		sess, err := app.sessionStore.GetOrCreate("default", app.config.Agent.DefaultModel)
		if err != nil {
			app.logger.Warn("Failed to load default session, running without persistence", zap.Error(err))
		} else {
			app.agentLoop.SetSession(sess)
		}
	}

	// Security hook: gates tool calls per config.yaml's approval policy.
	// No approval callback is wired — the core has no built-in interactive
	// approval channel, so a nil func auto-approves with a warning log
	// under ask_dangerous/ask_all (the embedding application is expected to
	// replace it with a real channel via SetApprovalFunc, e.g. the
	// user_collaboration tool or a UI prompt).
	app.securityHook = service.NewSecurityHook(app.config.Agent.Security, nil, app.logger)
	app.agentLoop.SetHooks(app.securityHook)

	// Middleware pipeline (data-transformation hooks around LLM calls)
	mwPipeline := service.NewMiddlewarePipeline(app.logger)
	mwPipeline.Use(
		service.NewDanglingToolCallMiddleware(app.logger),
	)
	app.agentLoop.SetMiddleware(mwPipeline)
	app.logger.Info("Middleware pipeline configured", zap.Int("middlewares", mwPipeline.Len()))

	return nil
}

// initInterfaces 初始化接口层: HTTP + WebSocket
func (app *App) initInterfaces() error {
	app.logger.Info("Initializing interfaces")

	loopToolsBridge := &toolBridge{registry: app.toolRegistry}

	// WebSocket hub: a conversation-per-client push channel layered over
	// the same AgentLoop, mirroring the HTTP streaming path's event types.
	app.wsHub = websocket.NewHub(app.logger)
	app.wsHub.SetMessageHandler(app.handleWSMessage)
	wsHandler := websocket.NewHandler(app.wsHub, app.logger)

	app.httpServer = httpServer.NewServer(
		httpServer.Config{
			Host: app.config.Gateway.Host,
			Port: app.config.Gateway.Port,
			Mode: app.config.Gateway.Mode,
		},
		app.agentLoop,
		loopToolsBridge,
		app.logger,
		wsHandler.ServeWS,
	)

	return nil
}

// handleWSMessage runs a WebSocket chat message through the agent loop and
// streams text deltas back to the originating client, followed by a final
// chat message carrying the full response.
func (app *App) handleWSMessage(client *websocket.Client, msg *websocket.WSMessage) {
	if msg.Type != websocket.MessageTypeChat {
		return
	}

	ctx := context.Background()
	systemPrompt := service.BuildSystemPrompt((&toolBridge{registry: app.toolRegistry}).GetDefinitions(), app.config.Agent.Workspace)

	result, eventCh := app.agentLoop.Run(ctx, systemPrompt, msg.Content, nil, msg.SessionID)
	for event := range eventCh {
		if event.Type != entity.EventTextDelta || event.Content == "" {
			continue
		}
		client.SendMessage(&websocket.WSMessage{
			Type:      websocket.MessageTypeStream,
			SessionID: msg.SessionID,
			Content:   event.Content,
			Timestamp: time.Now().Unix(),
		})
	}

	client.SendMessage(&websocket.WSMessage{
		Type:      websocket.MessageTypeChat,
		SessionID: msg.SessionID,
		Content:   result.FinalContent,
		Timestamp: time.Now().Unix(),
	})
}

// Start 启动应用程序
func (app *App) Start(ctx context.Context) error {
	app.logger.Info("Starting application")

	go app.wsHub.Run(ctx)

	if err := app.httpServer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	app.logger.Info("Application started successfully")
	return nil
}

// Stop 停止应用程序
func (app *App) Stop(ctx context.Context) error {
	app.logger.Info("Stopping application")

	if err := app.httpServer.Stop(ctx); err != nil {
		app.logger.Error("Failed to stop HTTP server", zap.Error(err))
	}

	if app.db != nil {
		sqlDB, err := app.db.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				app.logger.Error("Failed to close database connection", zap.Error(err))
			}
		}
	}

	app.logger.Info("Application stopped successfully")
	return nil
}

// Logger returns the application logger
func (app *App) Logger() *zap.Logger {
	return app.logger
}

// AppConfig returns the application config
func (app *App) AppConfig() *config.Config {
	return app.config
}

// AgentLoop returns the agent loop instance (used by CLI/TUI)
func (app *App) AgentLoop() *service.AgentLoop {
	return app.agentLoop
}

// ToolExecutor returns the tool executor bridge (used by CLI/TUI/HTTP)
func (app *App) ToolExecutor() service.ToolExecutor {
	return &toolBridge{registry: app.toolRegistry}
}

// ToolRegistry returns the tool registry (used by CLI/TUI to register tools)
func (app *App) ToolRegistry() domaintool.Registry {
	return app.toolRegistry
}
