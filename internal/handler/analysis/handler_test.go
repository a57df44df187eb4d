package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	analysisService "github.com/zhouzirui/synesthesia/backend/internal/service/analysis"
)

type brokenEngine struct{}

func (brokenEngine) Name() string { return "broken" }
func (brokenEngine) Initialize(context.Context) error { return errors.New("weights missing") }
func (brokenEngine) Run(context.Context, string) ([]byte, error) { return nil, nil }

func setupRouter(t *testing.T, engine analysisService.Engine) *chi.Mux {
	t.Helper()
	rt := analysisService.NewRuntime(engine, nil)
	_ = rt.Initialize(context.Background())

	r := chi.NewRouter()
	New(rt).RegisterRoutes(r)
	return r
}

func TestAnalyzeKeywordText(t *testing.T) {
	r := setupRouter(t, analysisService.NewKeywordEngine())

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/analyze", strings.NewReader(`{"text":"I am furious"}`)))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var result analysisService.Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(result.Highlights) != 1 || result.Highlights[0].Text != "furious" {
		t.Fatalf("unexpected highlights: %+v", result.Highlights)
	}
	if result.Mood == nil || result.Mood.Spectrum != "warm" {
		t.Fatalf("unexpected mood: %+v", result.Mood)
	}
}

func TestAnalyzeRequiresText(t *testing.T) {
	r := setupRouter(t, analysisService.NewKeywordEngine())

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/analyze", strings.NewReader(`{"text":""}`)))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestFailedRuntime(t *testing.T) {
	r := setupRouter(t, brokenEngine{})

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/runtime", nil))
	var status analysisService.Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status.State != analysisService.StateFailed || !strings.Contains(status.Error, "weights missing") {
		t.Fatalf("unexpected status: %+v", status)
	}

	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/analyze", strings.NewReader(`{"text":"hi"}`)))
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.Code)
	}
}
