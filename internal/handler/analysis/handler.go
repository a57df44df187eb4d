package analysis

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	analysisService "github.com/zhouzirui/synesthesia/backend/internal/service/analysis"
	"github.com/zhouzirui/synesthesia/backend/pkg/utils"
)

// Runtime is the analysis runtime as seen by HTTP.
type Runtime interface {
	Status() analysisService.Status
	Analyze(ctx context.Context, text string) (analysisService.Result, error)
}

// Handler exposes runtime status and one-off analysis.
type Handler struct {
	runtime Runtime
}

func New(runtime Runtime) *Handler {
	return &Handler{runtime: runtime}
}

// RegisterRoutes mounts the analysis routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/runtime", h.handleStatus)
	r.Post("/analyze", h.handleAnalyze)
}

func (h *Handler) handleStatus(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.runtime.Status())
}

func (h *Handler) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Text string `json:"text"`
	}
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(payload.Text) == "" {
		utils.RespondError(w, http.StatusBadRequest, "text is required")
		return
	}

	result, err := h.runtime.Analyze(r.Context(), payload.Text)
	switch {
	case errors.Is(err, analysisService.ErrNotReady):
		utils.RespondError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, analysisService.ErrMalformedResult):
		utils.RespondError(w, http.StatusBadGateway, err.Error())
	case err != nil:
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
	default:
		utils.RespondJSON(w, http.StatusOK, result)
	}
}
