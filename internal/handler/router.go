package handler

import (
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	analysisHandler "github.com/zhouzirui/synesthesia/backend/internal/handler/analysis"
	credentialHandler "github.com/zhouzirui/synesthesia/backend/internal/handler/credential"
	"github.com/zhouzirui/synesthesia/backend/internal/handler/proxy"
	"github.com/zhouzirui/synesthesia/backend/internal/handler/session"
	"github.com/zhouzirui/synesthesia/backend/internal/handler/ws"
	middlewarePkg "github.com/zhouzirui/synesthesia/backend/internal/middleware"
	chatService "github.com/zhouzirui/synesthesia/backend/internal/service/chat"
	"github.com/zhouzirui/synesthesia/backend/internal/service/conversation"
	"github.com/zhouzirui/synesthesia/backend/pkg/utils"
)

// Deps are the services the app router exposes.
type Deps struct {
	Sessions     *chatService.Service
	Runtime      analysisHandler.Runtime
	Credentials  credentialHandler.Store
	Proxy        *proxy.Handler
	ProxyLimiter *rate.Limiter
	Graph        conversation.Options
	StaticDir    string
	Logger       *zap.Logger
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if deps.Proxy != nil {
		r.Group(func(pr chi.Router) {
			pr.Use(middlewarePkg.RateLimit(deps.ProxyLimiter, logger))
			deps.Proxy.RegisterRoutes(pr)
		})
	}

	r.Route("/api", func(api chi.Router) {
		session.New(deps.Sessions, deps.Graph, logger).RegisterRoutes(api)
		ws.New(deps.Sessions, logger).RegisterRoutes(api)
		credentialHandler.New(deps.Credentials, deps.Sessions, logger).RegisterRoutes(api)
		if deps.Runtime != nil {
			analysisHandler.New(deps.Runtime).RegisterRoutes(api)
		}
	})

	if deps.StaticDir != "" {
		if info, err := os.Stat(deps.StaticDir); err == nil && info.IsDir() {
			r.With(middlewarePkg.Isolation).Handle("/*", http.FileServer(http.Dir(deps.StaticDir)))
		} else {
			logger.Warn("static directory unavailable, UI not served", zap.String("dir", deps.StaticDir))
		}
	}

	return r
}

// NewProxyRouter serves only the completion proxy.
func NewProxyRouter(h *proxy.Handler, limiter *rate.Limiter, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)
	r.Use(middlewarePkg.RateLimit(limiter, logger))

	h.RegisterRoutes(r)
	return r
}
