package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"cryptofolio/pkg/cryptofolio"
)

// ErrorResponse is the error payload returned by every failing endpoint.
type ErrorResponse struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	ErrorCode string `json:"error_code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// writeErrorResponse maps a core error to its HTTP status and writes the
// structured error payload. Unclassified errors become 500s.
func writeErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	response := ErrorResponse{
		Message:   err.Error(),
		RequestID: requestID(r),
	}

	var coreErr *cryptofolio.Error
	if errors.As(err, &coreErr) {
		response.ErrorCode = string(coreErr.Code)
		status = mapErrorCodeToHTTPStatus(coreErr.Code)
	}
	response.Code = status
	writeJSON(w, status, response)
}

// mapErrorCodeToHTTPStatus maps business error codes to HTTP status codes.
func mapErrorCodeToHTTPStatus(code cryptofolio.ErrorCode) int {
	switch code {
	case cryptofolio.ErrCodeValidation:
		return http.StatusBadRequest
	case cryptofolio.ErrCodeNotFound:
		return http.StatusNotFound
	case cryptofolio.ErrCodeResolution:
		return http.StatusUnprocessableEntity
	case cryptofolio.ErrCodeSourceUnavailable:
		return http.StatusBadGateway
	case cryptofolio.ErrCodePersistence, cryptofolio.ErrCodeDatabase, cryptofolio.ErrCodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func requestID(r *http.Request) string {
	if r == nil {
		return ""
	}
	return middleware.GetReqID(r.Context())
}
