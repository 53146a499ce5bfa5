package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/codexdlc/gatewaykit/internal/domain"
)

// errorBody is the REST error shape; only the taxonomy code and a short
// message ever reach clients.
type errorBody struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}

// statusByCode maps the stable error codes to HTTP statuses at the gateway
// boundary.
var statusByCode = map[string]int{
	domain.CodeInvalidCredentials: http.StatusUnauthorized,
	domain.CodeTokenExpired:       http.StatusUnauthorized,
	domain.CodeInvalidToken:       http.StatusUnauthorized,
	domain.CodeRefreshInvalid:     http.StatusUnauthorized,
	domain.CodeForbidden:          http.StatusForbidden,
	domain.CodeUserExists:         http.StatusConflict,
	domain.CodeValidationFailed:   http.StatusBadRequest,
	domain.CodeRPCTimeout:         http.StatusGatewayTimeout,
	domain.CodeRPCBadResponse:     http.StatusBadGateway,
	domain.CodeNotImplemented:     http.StatusNotImplemented,
	domain.CodeInternalError:      http.StatusInternalServerError,
}

// HTTPStatus resolves a code to its status, defaulting to 500.
func HTTPStatus(code string) int {
	if s, ok := statusByCode[code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeErrorCode(w http.ResponseWriter, code, message string) {
	if message == "" {
		message = "request failed"
	}
	writeJSON(w, HTTPStatus(code), errorBody{ErrorCode: code, Message: message})
}

func writeDomainError(w http.ResponseWriter, err error) {
	de := domain.AsError(err)
	writeErrorCode(w, de.Code, de.Message)
}
