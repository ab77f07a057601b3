package httpadapter

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kirillkom/safety-report-retrieval/internal/config"
	"github.com/kirillkom/safety-report-retrieval/internal/core/domain"
)

func decodeError(t *testing.T, res *httptest.ResponseRecorder) errorResponseDTO {
	t.Helper()
	var resp errorResponseDTO
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	return resp
}

func TestSearchRejectsMissingStakeholderID(t *testing.T) {
	svc := &fakeService{}
	handler := newTestHandler(config.Config{}, svc)

	res := postJSON(t, handler, "/v1/retrieval/search", map[string]any{
		"stakeholder": map[string]any{"role": "経営層"},
	})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	resp := decodeError(t, res)
	if !strings.Contains(resp.Error, "id") || resp.Code != domain.CodeInvalidInput || resp.RequestID == "" {
		t.Fatalf("unexpected error response %+v", resp)
	}
	if len(svc.requests) != 0 {
		t.Fatalf("invalid request must not reach the service")
	}
}

func TestSearchRejectsWrongTypesBySchema(t *testing.T) {
	handler := newTestHandler(config.Config{}, &fakeService{})
	res := postJSON(t, handler, "/v1/retrieval/search", map[string]any{
		"stakeholder": map[string]any{"id": "cxo"},
		"max_queries": "five",
	})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestBlankStakeholderIDRejectedWithoutValidation(t *testing.T) {
	handler := newTestHandler(config.Config{}, &fakeService{}, WithoutRequestValidation())
	res := postJSON(t, handler, "/v1/retrieval/queries", map[string]any{
		"stakeholder": map[string]any{"id": "   "},
	})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestInvalidJSONMapsTo400(t *testing.T) {
	handler := newTestHandler(config.Config{}, &fakeService{}, WithoutRequestValidation())
	req := httptest.NewRequest(http.MethodPost, "/v1/retrieval/search", bytes.NewBufferString("{"))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestLowCoverageRunsMapsUnavailableTo503(t *testing.T) {
	svc := &fakeService{runsErr: domain.WrapError(domain.ErrUnavailable, "list", errors.New("run recording disabled"))}
	handler := newTestHandler(config.Config{}, svc)

	req := httptest.NewRequest(http.MethodGet, "/v1/retrieval/runs/low-coverage", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", res.Code)
	}
}

func TestLowCoverageRunsRejectsOutOfRangeThreshold(t *testing.T) {
	handler := newTestHandler(config.Config{}, &fakeService{})
	req := httptest.NewRequest(http.MethodGet, "/v1/retrieval/runs/low-coverage?threshold=4", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestUnknownRouteAndMethod(t *testing.T) {
	handler := newTestHandler(config.Config{}, &fakeService{})

	req := httptest.NewRequest(http.MethodGet, "/v1/unknown", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/retrieval/search", nil)
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", res.Code)
	}
}

func TestMapErrorToHTTPStatus(t *testing.T) {
	cases := map[error]int{
		domain.WrapError(domain.ErrInvalidInput, "op", errors.New("x")): http.StatusBadRequest,
		domain.WrapError(domain.ErrNotFound, "op", errors.New("x")):     http.StatusNotFound,
		domain.WrapError(domain.ErrTemporary, "op", errors.New("x")):    http.StatusServiceUnavailable,
		domain.WrapError(domain.ErrUnavailable, "op", errors.New("x")):  http.StatusServiceUnavailable,
		errors.New("boom"): http.StatusInternalServerError,
	}
	for err, want := range cases {
		if got := mapErrorToHTTPStatus(err); got != want {
			t.Fatalf("mapErrorToHTTPStatus(%v) = %d, want %d", err, got, want)
		}
	}
}
