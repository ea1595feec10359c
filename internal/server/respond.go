package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"leafreader/internal/app"
)

// envelope is the uniform response body. Code 0 means success; any other
// value is a stable business error code.
type envelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func writeEnvelope(w http.ResponseWriter, status, code int, message string, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Code: code, Message: message, Data: data})
}

func writeOK(w http.ResponseWriter, data any) {
	writeEnvelope(w, http.StatusOK, 0, "ok", data)
}

// writeAppError maps a business error to an HTTP status plus its numeric
// code. Unknown errors become 9999 without leaking internals.
func writeAppError(w http.ResponseWriter, err error) {
	var appErr *app.Error
	if !errors.As(err, &appErr) {
		slog.Error("internal error", "error", err)
		writeEnvelope(w, http.StatusInternalServerError, app.CodeInternal, "internal error", nil)
		return
	}
	writeEnvelope(w, httpStatusFor(appErr.Code), appErr.Code, appErr.Message, nil)
}

func httpStatusFor(code int) int {
	switch code {
	case app.CodeAuthFailed, app.CodeInvalidToken:
		return http.StatusUnauthorized
	case app.CodeAdminRequired, app.CodeBookForbidden:
		return http.StatusForbidden
	case app.CodeBookNotFound, app.CodeUserNotFound:
		return http.StatusNotFound
	case app.CodeBookTooLarge:
		return http.StatusRequestEntityTooLarge
	case app.CodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeEnvelope(w, http.StatusBadRequest, app.CodeBookFormatInvalid, message, nil)
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", false
	}
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(header[len(prefix):]), true
}
