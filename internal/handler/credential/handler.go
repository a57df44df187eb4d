package credential

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	credentialStore "github.com/zhouzirui/synesthesia/backend/internal/store/credential"
	"github.com/zhouzirui/synesthesia/backend/pkg/utils"
)

// Store persists the credential. It may be nil when persistence is off.
type Store interface {
	Save(key string) error
}

// Registry applies the credential to live sessions.
type Registry interface {
	SetCredential(credential string)
	Credential() string
}

// Status is the masked credential state.
type Status struct {
	Configured bool   `json:"configured"`
	Masked     string `json:"masked,omitempty"`
}

// Handler reads and replaces the completion API key.
type Handler struct {
	store    Store
	registry Registry
	logger   *zap.Logger
}

// New creates the credential handler.
func New(store Store, registry Registry, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		store:    store,
		registry: registry,
		logger:   logger.With(zap.String("component", "credential-handler")),
	}
}

// RegisterRoutes mounts the credential routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/credential", h.handleGet)
	r.Put("/credential", h.handlePut)
}

func (h *Handler) status() Status {
	key := h.registry.Credential()
	if key == "" {
		return Status{}
	}
	return Status{Configured: true, Masked: credentialStore.Mask(key)}
}

func (h *Handler) handleGet(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.status())
}

func (h *Handler) handlePut(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Key string `json:"key"`
	}
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	key := strings.TrimSpace(payload.Key)
	if key == "" {
		utils.RespondError(w, http.StatusBadRequest, credentialStore.ErrEmptyCredential.Error())
		return
	}

	if h.store != nil {
		if err := h.store.Save(key); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, credentialStore.ErrEmptyCredential) {
				status = http.StatusBadRequest
			}
			h.logger.Error("save credential", zap.Error(err))
			utils.RespondError(w, status, err.Error())
			return
		}
	}

	h.registry.SetCredential(key)
	h.logger.Info("credential updated")
	utils.RespondJSON(w, http.StatusOK, h.status())
}
