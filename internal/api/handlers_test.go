package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/szarkamarci/modularai/internal/models"
	"github.com/szarkamarci/modularai/internal/retrieval"
	"github.com/szarkamarci/modularai/internal/utils"
)

type fakeService struct {
	forecast    models.Forecast
	forecastErr error
	alerts      []models.Alert
	result      models.RetrievalResult
	searchErr   error
	summary     models.InventorySummary
}

func (f *fakeService) GetForecast(_ context.Context, _, _ string, _ int) (models.Forecast, error) {
	if f.forecastErr != nil {
		return models.Forecast{}, f.forecastErr
	}
	return f.forecast, nil
}

func (f *fakeService) GetAlerts(_ context.Context, _ string, _ time.Time) ([]models.Alert, error) {
	return f.alerts, nil
}

func (f *fakeService) SearchProducts(_ context.Context, _ string, _ int) (models.RetrievalResult, error) {
	if f.searchErr != nil {
		return models.RetrievalResult{}, f.searchErr
	}
	return f.result, nil
}

func (f *fakeService) InventorySummary(_ context.Context, _ string) (models.InventorySummary, error) {
	return f.summary, nil
}

func (f *fakeService) SyncIndex(_ context.Context, _ string) (retrieval.IndexReport, error) {
	return retrieval.IndexReport{ModelVersion: "embedder-v1", Embedded: 2}, nil
}

func (f *fakeService) StockoutPatterns(_ context.Context, _ string, _ time.Time) ([]models.StockoutPattern, error) {
	return []models.StockoutPattern{{ID: "pattern-p1", ProductID: "p1", AlertCount: 3, Prevalence: 0.75}}, nil
}

type fakeAdmin struct {
	promoted []string
}

func (f *fakeAdmin) Promote(_ context.Context, kind models.ModelKind, version string) (models.ModelRecord, error) {
	f.promoted = append(f.promoted, string(kind)+"/"+version)
	return models.ModelRecord{Kind: kind, Version: version, Status: models.ModelStatusActive}, nil
}

func (f *fakeAdmin) List(_ context.Context, kind models.ModelKind) ([]models.ModelRecord, error) {
	return []models.ModelRecord{{Kind: kind, Version: "v1", Status: models.ModelStatusActive}}, nil
}

func newTestHandler(svc *fakeService, admin *fakeAdmin) http.Handler {
	return NewHandler(Deps{Service: svc, Models: admin})
}

func TestForecastEndpoint(t *testing.T) {
	svc := &fakeService{forecast: models.Forecast{
		ID: "f-1", ProductID: "p1", StoreID: "s1", ModelVersion: "forecaster-v1", Horizon: 2,
		Points: []models.ForecastPoint{{Point: 4, Lower: 2, Upper: 6}, {Point: 5, Lower: 3, Upper: 7}},
	}}
	h := newTestHandler(svc, &fakeAdmin{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/forecast?product_id=p1&store_id=s1&horizon=2", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var dto forecastDTO
	if err := json.Unmarshal(rec.Body.Bytes(), &dto); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if dto.ID != "f-1" || len(dto.Points) != 2 {
		t.Fatalf("unexpected payload: %+v", dto)
	}
}

func TestForecastRequiresIdentifiers(t *testing.T) {
	h := newTestHandler(&fakeService{}, &fakeAdmin{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/forecast?product_id=p1", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestErrorKindMapping(t *testing.T) {
	cases := []struct {
		kind   utils.Kind
		status int
	}{
		{utils.KindInsufficientHistory, http.StatusUnprocessableEntity},
		{utils.KindModelUnavailable, http.StatusServiceUnavailable},
		{utils.KindNotFound, http.StatusNotFound},
		{utils.KindInvalidWindow, http.StatusBadRequest},
		{utils.KindTimeout, http.StatusGatewayTimeout},
		{utils.KindSourceUnavailable, http.StatusBadGateway},
	}
	for _, tc := range cases {
		svc := &fakeService{forecastErr: utils.NewAppError(tc.kind, "test", "boom", nil)}
		h := newTestHandler(svc, &fakeAdmin{})

		req := httptest.NewRequest(http.MethodGet, "/api/v1/forecast?product_id=p1&store_id=s1", nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if rec.Code != tc.status {
			t.Errorf("kind %s: expected %d, got %d", tc.kind, tc.status, rec.Code)
		}
		var body struct {
			Error struct {
				Kind string `json:"kind"`
			} `json:"error"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode error body: %v", err)
		}
		if body.Error.Kind != string(tc.kind) {
			t.Errorf("expected kind %s in body, got %s", tc.kind, body.Error.Kind)
		}
	}
}

func TestSearchEndpoint(t *testing.T) {
	svc := &fakeService{result: models.RetrievalResult{
		Query:        "milk",
		ModelVersion: "embedder-v1",
		Matches:      []models.RetrievalMatch{{ProductID: "p1", Score: 0.91, Snippet: "Whole Milk"}},
	}}
	h := newTestHandler(svc, &fakeAdmin{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/search?q=milk&top_k=3", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Matches []matchDTO `json:"matches"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(body.Matches) != 1 || body.Matches[0].ProductID != "p1" {
		t.Fatalf("unexpected matches: %+v", body.Matches)
	}
}

func TestSearchInvalidTopKStatus(t *testing.T) {
	svc := &fakeService{searchErr: utils.NewAppError(utils.KindInvalidTopK, "test", "out of range", nil)}
	h := newTestHandler(svc, &fakeAdmin{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/search?q=milk&top_k=999", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestPromoteModel(t *testing.T) {
	admin := &fakeAdmin{}
	h := newTestHandler(&fakeService{}, admin)

	body := strings.NewReader(`{"kind":"forecaster","version":"v2"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/models/promote", body)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(admin.promoted) != 1 || admin.promoted[0] != "forecaster/v2" {
		t.Fatalf("promotion not forwarded: %v", admin.promoted)
	}
}

func TestPromoteModelRejectsUnknownKind(t *testing.T) {
	h := newTestHandler(&fakeService{}, &fakeAdmin{})

	body := strings.NewReader(`{"kind":"ranker","version":"v1"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/models/promote", body)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestStockoutPatternsEndpoint(t *testing.T) {
	h := newTestHandler(&fakeService{}, &fakeAdmin{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/insights/patterns?store_id=s1", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Patterns []patternDTO `json:"patterns"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(body.Patterns) != 1 || body.Patterns[0].ProductID != "p1" {
		t.Fatalf("unexpected patterns: %+v", body.Patterns)
	}
}

func TestHealthEndpoint(t *testing.T) {
	h := newTestHandler(&fakeService{}, &fakeAdmin{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
