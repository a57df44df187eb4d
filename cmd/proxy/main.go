// Command proxy runs the standalone completion proxy so a browser UI served
// elsewhere can reach the Anthropic API.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/zhouzirui/synesthesia/backend/internal/config"
	"github.com/zhouzirui/synesthesia/backend/internal/handler"
	"github.com/zhouzirui/synesthesia/backend/internal/handler/proxy"
	"github.com/zhouzirui/synesthesia/backend/internal/logger"
	"github.com/zhouzirui/synesthesia/backend/internal/server"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	lg, err := logger.New(cfg.Server.LogLevel, cfg.Server.LogFormat)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	h := proxy.New(proxy.Config{
		UpstreamURL: cfg.Proxy.UpstreamURL,
		APIVersion:  cfg.Proxy.APIVersion,
		Timeout:     cfg.Proxy.Timeout,
	}, nil, lg)

	var limiter *rate.Limiter
	if cfg.Proxy.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Proxy.RateLimit), cfg.Proxy.Burst)
	}

	lg.Info("completion proxy listening",
		zap.String("addr", cfg.Proxy.Addr),
		zap.String("upstream", cfg.Proxy.UpstreamURL))
	if err := server.Run(ctx, server.New(cfg.Proxy.Addr, handler.NewProxyRouter(h, limiter, lg))); err != nil {
		lg.Fatal("proxy server error", zap.Error(err))
	}
}
