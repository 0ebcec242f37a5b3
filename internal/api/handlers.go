package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"cryptofolio/pkg/cryptofolio"
)

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) getHoldings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.core.Holdings())
}

func (h *handler) addHolding(w http.ResponseWriter, r *http.Request) {
	var payload addHoldingPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	rec, err := h.core.AddHolding(payload.Ticker, payload.Amount)
	if err != nil {
		writeErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *handler) setHoldingAmount(w http.ResponseWriter, r *http.Request) {
	providerID := chi.URLParam(r, "providerID")
	var payload setAmountPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	changed, err := h.core.SetHoldingAmount(providerID, payload.Amount)
	if err != nil {
		writeErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"changed": changed})
}

func (h *handler) removeHoldings(w http.ResponseWriter, r *http.Request) {
	var payload removeHoldingsPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	removed, err := h.core.RemoveHoldings(payload.ProviderIDs)
	if err != nil {
		writeErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

func (h *handler) getSummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.core.Summary(r.Context()))
}

func (h *handler) resolve(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	if query == "" {
		writeError(w, r, http.StatusBadRequest, "query is required")
		return
	}
	providerID, err := h.core.ResolveTicker(query)
	if err != nil {
		writeErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resolveResponse{Query: query, ProviderID: providerID})
}

func (h *handler) getSession(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.core.SessionState())
}

func (h *handler) setSelection(w http.ResponseWriter, r *http.Request) {
	var payload selectionPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	state, err := h.core.SetSelected(payload.ProviderID, payload.Selected)
	if err != nil {
		writeErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *handler) deleteSelected(w http.ResponseWriter, r *http.Request) {
	removed, err := h.core.DeleteSelected()
	if err != nil {
		writeErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

func (h *handler) beginEdit(w http.ResponseWriter, r *http.Request) {
	var payload beginEditPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	edit, err := h.core.BeginEdit(payload.ProviderID)
	if err != nil {
		writeErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, edit)
}

func (h *handler) commitEdit(w http.ResponseWriter, r *http.Request) {
	var payload commitEditPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	changed, err := h.core.CommitEdit(payload.Amount)
	if err != nil {
		writeErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"changed": changed})
}

func (h *handler) discardEdit(w http.ResponseWriter, _ *http.Request) {
	discarded := h.core.DiscardEdit()
	writeJSON(w, http.StatusOK, map[string]bool{"discarded": discarded})
}

func (h *handler) getOperationLogs(w http.ResponseWriter, r *http.Request) {
	limit := parseIntDefault(r.URL.Query().Get("limit"), 50)
	offset := parseIntDefault(r.URL.Query().Get("offset"), 0)
	result, err := h.core.GetOperationLogs(limit, offset)
	if err != nil {
		writeErrorResponse(w, r, err)
		return
	}
	if result == nil {
		result = []cryptofolio.OperationLog{}
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handler) addOperationLog(w http.ResponseWriter, r *http.Request) {
	var payload operationLogPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(payload.Operation) == "" {
		writeError(w, r, http.StatusBadRequest, "operation_type is required")
		return
	}
	id, err := h.core.AddOperationLog(cryptofolio.OperationLog{
		Operation:  payload.Operation,
		Ticker:     payload.Ticker,
		ProviderID: payload.ProviderID,
		Details:    payload.Details,
	})
	if err != nil {
		writeErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"id": id})
}

func (h *handler) analyzePortfolio(w http.ResponseWriter, r *http.Request) {
	var payload cryptofolio.InsightsRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	result, err := h.core.AnalyzePortfolio(r.Context(), payload)
	if err != nil {
		writeErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handler) getInsightsHistory(w http.ResponseWriter, r *http.Request) {
	limit := parseIntDefault(r.URL.Query().Get("limit"), 10)
	result, err := h.core.GetInsightsHistory(limit)
	if err != nil {
		writeErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Helpers.

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func parseIntDefault(value string, fallback int) int {
	if value == "" {
		return fallback
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return i
}
