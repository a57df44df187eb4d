package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudwego/eino/components/model"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/zhouzirui/synesthesia/backend/internal/config"
	"github.com/zhouzirui/synesthesia/backend/internal/handler"
	"github.com/zhouzirui/synesthesia/backend/internal/handler/proxy"
	"github.com/zhouzirui/synesthesia/backend/internal/logger"
	"github.com/zhouzirui/synesthesia/backend/internal/server"
	"github.com/zhouzirui/synesthesia/backend/internal/service/analysis"
	"github.com/zhouzirui/synesthesia/backend/internal/service/annotator"
	"github.com/zhouzirui/synesthesia/backend/internal/service/chat"
	"github.com/zhouzirui/synesthesia/backend/internal/service/conversation"
	"github.com/zhouzirui/synesthesia/backend/internal/service/transport"
	"github.com/zhouzirui/synesthesia/backend/internal/store/credential"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	lg, err := logger.New(cfg.Server.LogLevel, cfg.Server.LogFormat)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	if envErr != nil {
		lg.Info("no .env loaded, using process environment only", zap.Error(envErr))
	}

	deps := handler.Deps{
		Graph: conversation.Options{
			GraphWidth:  cfg.Analysis.GraphWidth,
			GraphHeight: cfg.Analysis.GraphHeight,
		},
		StaticDir: cfg.Server.StaticDir,
		Logger:    lg,
	}

	var apiKey string
	store, err := credential.Open(cfg.Store.Path)
	if err != nil {
		lg.Warn("credential store unavailable, keys will not persist", zap.Error(err))
	} else {
		defer store.Close()
		deps.Credentials = store
		if apiKey, err = store.Load(); err != nil {
			lg.Warn("failed to read stored credential", zap.Error(err))
		}
	}

	var chatModel model.ChatModel
	if cfg.AI.Enabled() {
		chatModel, err = cfg.AI.NewChatModel(ctx)
		if err != nil {
			lg.Warn("failed to create Ark chat model", zap.Error(err))
			chatModel = nil
		} else {
			lg.Info("Ark chat model ready", zap.String("model", cfg.AI.Model))
		}
	}

	runtime := analysis.NewRuntime(newEngine(cfg.Analysis, chatModel, lg), lg)
	deps.Runtime = runtime

	deps.Sessions = chat.NewService(chat.Dependencies{
		Analyzer: runtime,
		Backend:  newBackend(cfg.Chat, chatModel, lg),
		Annotation: annotator.Config{
			ChunkWords: cfg.Analysis.ChunkWords,
			CarryWords: cfg.Analysis.CarryWords,
		},
		TrajectoryCapacity: cfg.Analysis.TrajectoryCapacity,
		Graph:              deps.Graph,
	}, apiKey, lg)

	runtime.OnFailure(deps.Sessions.ReportRuntimeFailure)
	runtime.Start(ctx)

	deps.Proxy = proxy.New(proxy.Config{
		UpstreamURL: cfg.Proxy.UpstreamURL,
		APIVersion:  cfg.Proxy.APIVersion,
		Timeout:     cfg.Proxy.Timeout,
	}, nil, lg)
	deps.ProxyLimiter = newLimiter(cfg.Proxy)

	startServer(ctx, cfg.Server, handler.NewRouter(deps), lg)
}

func newEngine(cfg config.AnalysisConfig, chatModel model.ChatModel, lg *zap.Logger) analysis.Engine {
	switch cfg.Engine {
	case config.EngineClassifier:
		// Without a chat model the classifier fails to initialize and every
		// session shows the runtime banner.
		return analysis.NewClassifierEngine(chatModel, analysis.NewKeywordEngine(), lg)
	default:
		return analysis.NewKeywordEngine()
	}
}

func newBackend(cfg config.ChatConfig, chatModel model.ChatModel, lg *zap.Logger) transport.Backend {
	if cfg.Backend == config.BackendArk {
		if chatModel != nil {
			lg.Info("chat replies served by Ark")
			return transport.NewChatModelBackend(chatModel)
		}
		lg.Warn("CHAT_BACKEND=ark but no Ark chat model is configured, using the completion proxy")
	}
	lg.Info("chat replies served by completion proxy", zap.String("url", cfg.ProxyURL))
	return transport.NewHTTPBackend(cfg.ProxyURL, cfg.Model, cfg.MaxTokens, &http.Client{Timeout: cfg.Timeout})
}

func newLimiter(cfg config.ProxyConfig) *rate.Limiter {
	if cfg.RateLimit <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, lg *zap.Logger) {
	lg.Info("Synesthesia backend listening", zap.String("addr", serverCfg.Addr))
	if err := server.Run(ctx, server.New(serverCfg.Addr, router)); err != nil {
		lg.Fatal("server error", zap.Error(err))
	}
}
