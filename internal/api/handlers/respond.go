package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/wonny/aegis-screener/internal/contracts"
	"github.com/wonny/aegis-screener/pkg/logger"
)

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Field string `json:"field,omitempty"`
}

// Error codes
const (
	CodeValidation  = "validation_error"
	CodeNotFound    = "not_found"
	CodeForbidden   = "forbidden"
	CodeUpstream    = "upstream_unavailable"
	CodeRateLimited = "rate_limited"
	CodeInternal    = "internal_error"
)

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// RespondError writes an error body. Used by middleware outside this package.
func RespondError(w http.ResponseWriter, status int, code, message string) {
	respondError(w, status, code, message)
}

// respondServiceError maps the contracts error taxonomy onto HTTP
// ⭐ SSOT: 에러 → HTTP 상태 매핑은 여기서만
func respondServiceError(w http.ResponseWriter, log *logger.Logger, err error) {
	var verr *contracts.ValidationError
	var upstream *contracts.UpstreamError

	switch {
	case errors.As(err, &verr):
		respondJSON(w, http.StatusBadRequest, ErrorResponse{Error: verr.Error(), Code: CodeValidation, Field: verr.Field})
	case errors.Is(err, contracts.ErrNotFound):
		respondError(w, http.StatusNotFound, CodeNotFound, contracts.ErrNotFound.Error())
	case errors.Is(err, contracts.ErrForbidden):
		respondError(w, http.StatusForbidden, CodeForbidden, contracts.ErrForbidden.Error())
	case errors.As(err, &upstream):
		// "데이터 없음"과 "매칭 0건"은 구분되어야 함
		log.WithError(err).WithField("source", upstream.Source).Error("Upstream data source unavailable")
		respondError(w, http.StatusServiceUnavailable, CodeUpstream, upstream.Source+" data source unavailable")
	default:
		log.WithError(err).Error("Request failed")
		respondError(w, http.StatusInternalServerError, CodeInternal, "internal server error")
	}
}
