package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"cryptofolio/pkg/cryptofolio"
)

func newFakeMarket(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/coins/list", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"id":"bitcoin","symbol":"btc","name":"Bitcoin"},
			{"id":"ethereum","symbol":"eth","name":"Ethereum"}
		]`))
	})
	mux.HandleFunc("/simple/price", func(w http.ResponseWriter, r *http.Request) {
		quotes := map[string]map[string]float64{}
		for _, id := range strings.Split(r.URL.Query().Get("ids"), ",") {
			switch id {
			case "bitcoin":
				quotes[id] = map[string]float64{"usd": 100}
			case "ethereum":
				quotes[id] = map[string]float64{"usd": 50}
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(quotes)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func setupTestRouter(t *testing.T) (http.Handler, *cryptofolio.Core) {
	t.Helper()
	market := newFakeMarket(t)
	dir := t.TempDir()
	core, err := cryptofolio.OpenWithOptions(cryptofolio.Options{
		LedgerPath:    filepath.Join(dir, "holdings.json"),
		DBPath:        filepath.Join(dir, "cryptofolio.db"),
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		PriceBaseURL:  market.URL,
		SymbolBaseURL: market.URL,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = core.Close() })
	return NewRouter(core), core
}

func doRequest(t *testing.T, router http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst))
}

func TestHealthEndpoint(t *testing.T) {
	router, _ := setupTestRouter(t)

	rec := doRequest(t, router, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	decodeBody(t, rec, &body)
	require.Equal(t, "ok", body["status"])
}

func TestAddAndListHoldings(t *testing.T) {
	router, _ := setupTestRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/api/holdings", map[string]any{
		"ticker": "BTC",
		"amount": 1.5,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var added cryptofolio.HoldingRecord
	decodeBody(t, rec, &added)
	require.Equal(t, "bitcoin", added.ProviderID)
	require.Equal(t, "BTC", added.Ticker)

	rec = doRequest(t, router, http.MethodGet, "/api/holdings", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var holdings []cryptofolio.HoldingRecord
	decodeBody(t, rec, &holdings)
	require.Len(t, holdings, 1)
	require.Equal(t, "bitcoin", holdings[0].ProviderID)
}

func TestAddHoldingValidationError(t *testing.T) {
	router, _ := setupTestRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/api/holdings", map[string]any{
		"ticker": "BTC",
		"amount": -1,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body ErrorResponse
	decodeBody(t, rec, &body)
	require.Equal(t, string(cryptofolio.ErrCodeValidation), body.ErrorCode)
	require.Equal(t, http.StatusBadRequest, body.Code)
	require.NotEmpty(t, body.RequestID)
}

func TestAddHoldingUnknownTicker(t *testing.T) {
	router, _ := setupTestRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/api/holdings", map[string]any{
		"ticker": "NOPE",
		"amount": 1,
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var body ErrorResponse
	decodeBody(t, rec, &body)
	require.Equal(t, string(cryptofolio.ErrCodeResolution), body.ErrorCode)
}

func TestAddHoldingRejectsUnknownFields(t *testing.T) {
	router, _ := setupTestRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/api/holdings", map[string]any{
		"ticker": "BTC",
		"amount": 1,
		"bogus":  true,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSetHoldingAmount(t *testing.T) {
	router, _ := setupTestRouter(t)
	doRequest(t, router, http.MethodPost, "/api/holdings", map[string]any{"ticker": "BTC", "amount": 1})

	rec := doRequest(t, router, http.MethodPut, "/api/holdings/bitcoin", map[string]any{"amount": 2})
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]bool
	decodeBody(t, rec, &body)
	require.True(t, body["changed"])

	rec = doRequest(t, router, http.MethodPut, "/api/holdings/bitcoin", map[string]any{"amount": 2})
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &body)
	require.False(t, body["changed"])

	rec = doRequest(t, router, http.MethodPut, "/api/holdings/dogecoin", map[string]any{"amount": 2})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRemoveHoldings(t *testing.T) {
	router, _ := setupTestRouter(t)
	doRequest(t, router, http.MethodPost, "/api/holdings", map[string]any{"ticker": "BTC", "amount": 1})
	doRequest(t, router, http.MethodPost, "/api/holdings", map[string]any{"ticker": "ETH", "amount": 2})

	rec := doRequest(t, router, http.MethodDelete, "/api/holdings", map[string]any{
		"provider_ids": []string{"bitcoin", "dogecoin"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]int
	decodeBody(t, rec, &body)
	require.Equal(t, 1, body["removed"])

	var holdings []cryptofolio.HoldingRecord
	rec = doRequest(t, router, http.MethodGet, "/api/holdings", nil)
	decodeBody(t, rec, &holdings)
	require.Len(t, holdings, 1)
	require.Equal(t, "ethereum", holdings[0].ProviderID)
}

func TestSummaryEndpoint(t *testing.T) {
	router, _ := setupTestRouter(t)
	doRequest(t, router, http.MethodPost, "/api/holdings", map[string]any{"ticker": "BTC", "amount": 1})
	doRequest(t, router, http.MethodPost, "/api/holdings", map[string]any{"ticker": "ETH", "amount": 2})

	rec := doRequest(t, router, http.MethodGet, "/api/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var summary cryptofolio.PortfolioSummary
	decodeBody(t, rec, &summary)
	require.Len(t, summary.Rows, 2)
	require.Equal(t, "200", summary.Total.String())
	require.Empty(t, summary.PriceNote)
}

func TestResolveEndpoint(t *testing.T) {
	router, _ := setupTestRouter(t)

	rec := doRequest(t, router, http.MethodGet, "/api/resolve?query=Ethereum", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body resolveResponse
	decodeBody(t, rec, &body)
	require.Equal(t, "ethereum", body.ProviderID)

	rec = doRequest(t, router, http.MethodGet, "/api/resolve?query=nope", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/api/resolve", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionSelectionFlow(t *testing.T) {
	router, _ := setupTestRouter(t)
	doRequest(t, router, http.MethodPost, "/api/holdings", map[string]any{"ticker": "BTC", "amount": 1})
	doRequest(t, router, http.MethodPost, "/api/holdings", map[string]any{"ticker": "ETH", "amount": 2})

	rec := doRequest(t, router, http.MethodPut, "/api/session/selection", map[string]any{
		"provider_id": "bitcoin",
		"selected":    true,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var state cryptofolio.SessionState
	decodeBody(t, rec, &state)
	require.Equal(t, []string{"bitcoin"}, state.Selected)

	rec = doRequest(t, router, http.MethodPut, "/api/session/selection", map[string]any{
		"provider_id": "dogecoin",
		"selected":    true,
	})
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, router, http.MethodDelete, "/api/session/selection", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]int
	decodeBody(t, rec, &body)
	require.Equal(t, 1, body["removed"])

	rec = doRequest(t, router, http.MethodGet, "/api/session", nil)
	decodeBody(t, rec, &state)
	require.Empty(t, state.Selected)
}

func TestSessionEditFlow(t *testing.T) {
	router, _ := setupTestRouter(t)
	doRequest(t, router, http.MethodPost, "/api/holdings", map[string]any{"ticker": "BTC", "amount": 1})

	rec := doRequest(t, router, http.MethodPost, "/api/session/edit", map[string]any{"provider_id": "bitcoin"})
	require.Equal(t, http.StatusOK, rec.Code)

	var edit cryptofolio.EditState
	decodeBody(t, rec, &edit)
	require.Equal(t, "bitcoin", edit.ProviderID)

	rec = doRequest(t, router, http.MethodPost, "/api/session/edit/commit", map[string]any{"amount": 3})
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]bool
	decodeBody(t, rec, &body)
	require.True(t, body["changed"])

	var holdings []cryptofolio.HoldingRecord
	rec = doRequest(t, router, http.MethodGet, "/api/holdings", nil)
	decodeBody(t, rec, &holdings)
	require.Equal(t, "3", holdings[0].Amount.String())

	rec = doRequest(t, router, http.MethodPost, "/api/session/edit/commit", map[string]any{"amount": 4})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionEditInvalidCommitKeepsEditOpen(t *testing.T) {
	router, _ := setupTestRouter(t)
	doRequest(t, router, http.MethodPost, "/api/holdings", map[string]any{"ticker": "BTC", "amount": 1})
	doRequest(t, router, http.MethodPost, "/api/session/edit", map[string]any{"provider_id": "bitcoin"})

	rec := doRequest(t, router, http.MethodPost, "/api/session/edit/commit", map[string]any{"amount": -1})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var state cryptofolio.SessionState
	rec = doRequest(t, router, http.MethodGet, "/api/session", nil)
	decodeBody(t, rec, &state)
	require.NotNil(t, state.Edit)
	require.Equal(t, "bitcoin", state.Edit.ProviderID)

	rec = doRequest(t, router, http.MethodPost, "/api/session/edit/discard", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]bool
	decodeBody(t, rec, &body)
	require.True(t, body["discarded"])
}

func TestOperationLogsEndpoint(t *testing.T) {
	router, _ := setupTestRouter(t)
	doRequest(t, router, http.MethodPost, "/api/holdings", map[string]any{"ticker": "BTC", "amount": 1})
	doRequest(t, router, http.MethodPut, "/api/holdings/bitcoin", map[string]any{"amount": 2})

	rec := doRequest(t, router, http.MethodGet, "/api/operation-logs", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var logs []cryptofolio.OperationLog
	decodeBody(t, rec, &logs)
	require.Len(t, logs, 2)
	require.Equal(t, cryptofolio.OpEdit, logs[0].Operation)
	require.Equal(t, cryptofolio.OpAdd, logs[1].Operation)
}

func TestAddOperationLogEndpoint(t *testing.T) {
	router, _ := setupTestRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/api/operation-logs", map[string]any{
		"operation_type": "NOTE",
		"details":        "manual entry",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]int64
	decodeBody(t, rec, &body)
	require.Positive(t, body["id"])

	rec = doRequest(t, router, http.MethodPost, "/api/operation-logs", map[string]any{
		"operation_type": "  ",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalyzeEmptyPortfolioRejected(t *testing.T) {
	router, _ := setupTestRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/api/insights", map[string]any{
		"api_key": "k",
		"model":   "test-model",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body ErrorResponse
	decodeBody(t, rec, &body)
	require.Equal(t, string(cryptofolio.ErrCodeValidation), body.ErrorCode)
}

func TestInsightsHistoryEmpty(t *testing.T) {
	router, _ := setupTestRouter(t)

	rec := doRequest(t, router, http.MethodGet, "/api/insights?limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var history []cryptofolio.InsightsResult
	decodeBody(t, rec, &history)
	require.Empty(t, history)
}

func TestErrorStatusMapping(t *testing.T) {
	cases := []struct {
		code   cryptofolio.ErrorCode
		status int
	}{
		{cryptofolio.ErrCodeValidation, http.StatusBadRequest},
		{cryptofolio.ErrCodeNotFound, http.StatusNotFound},
		{cryptofolio.ErrCodeResolution, http.StatusUnprocessableEntity},
		{cryptofolio.ErrCodeSourceUnavailable, http.StatusBadGateway},
		{cryptofolio.ErrCodePersistence, http.StatusInternalServerError},
		{cryptofolio.ErrCodeDatabase, http.StatusInternalServerError},
		{cryptofolio.ErrCodeInternal, http.StatusInternalServerError},
		{cryptofolio.ErrorCode("UNKNOWN"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(string(tc.code), func(t *testing.T) {
			require.Equal(t, tc.status, mapErrorCodeToHTTPStatus(tc.code))
		})
	}
}

func TestWriteErrorResponseWrappedError(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/holdings", nil)
	err := fmt.Errorf("outer: %w", cryptofolio.NewError(cryptofolio.ErrCodeNotFound, "holding not found"))
	writeErrorResponse(rec, req, err)

	require.Equal(t, http.StatusNotFound, rec.Code)

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, string(cryptofolio.ErrCodeNotFound), body.ErrorCode)
	require.Contains(t, body.Message, "holding not found")
}
