// Package proxy forwards completion requests from the browser UI to the
// Anthropic messages API, adding the version header and CORS.
package proxy

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/synesthesia/backend/internal/service/transport"
	"github.com/zhouzirui/synesthesia/backend/pkg/utils"
)

const (
	DefaultUpstream   = "https://api.anthropic.com"
	DefaultAPIVersion = "2023-06-01"

	messagesPath   = "/v1/messages"
	maxRequestSize = 10 * 1024 * 1024
)

// Config describes the upstream.
type Config struct {
	UpstreamURL string
	APIVersion  string
	Timeout     time.Duration
}

// Handler relays POST /claude to {upstream}/v1/messages.
type Handler struct {
	endpoint string
	version  string
	client   *http.Client
	logger   *zap.Logger
}

// New creates the proxy handler. client may be nil.
func New(cfg Config, client *http.Client, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	upstream := strings.TrimRight(cfg.UpstreamURL, "/")
	if upstream == "" {
		upstream = DefaultUpstream
	}
	version := cfg.APIVersion
	if version == "" {
		version = DefaultAPIVersion
	}
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 2 * time.Minute
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Handler{
		endpoint: upstream + messagesPath,
		version:  version,
		client:   client,
		logger:   logger.With(zap.String("component", "proxy")),
	}
}

// RegisterRoutes mounts the completion route.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post(transport.CompletionPath, h.handleComplete)
}

func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	apiKey := r.Header.Get(transport.CredentialHeader)
	if apiKey == "" {
		utils.RespondError(w, http.StatusUnauthorized, "Missing API key")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestSize))
	if err != nil {
		utils.RespondError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(transport.CredentialHeader, apiKey)
	req.Header.Set("anthropic-version", h.version)

	start := time.Now()
	resp, err := h.client.Do(req)
	if err != nil {
		h.logger.Error("upstream request failed", zap.Error(err))
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer resp.Body.Close()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	written, err := io.Copy(w, resp.Body)
	if err != nil {
		h.logger.Warn("relay response body", zap.Error(err))
	}

	fields := []zap.Field{
		zap.Int("status", resp.StatusCode),
		zap.Int64("bytes", written),
		zap.Duration("elapsed", time.Since(start)),
	}
	if resp.StatusCode >= 300 {
		h.logger.Warn("upstream returned error", fields...)
		return
	}
	h.logger.Debug("completion relayed", fields...)
}
