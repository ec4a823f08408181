package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"sitecost/internal/auth"
	"sitecost/internal/core"
	"sitecost/internal/drive"
	"sitecost/internal/services"
	"sitecost/internal/settings"
	"sitecost/internal/state"
)

// JSONResponse is a fluent builder for API responses.
type JSONResponse struct {
	statusCode int
	headers    map[string]string
	body       any
}

func NewJSONResponse() *JSONResponse {
	return &JSONResponse{statusCode: http.StatusOK, headers: make(map[string]string)}
}

func (b *JSONResponse) Status(code int) *JSONResponse {
	b.statusCode = code
	return b
}

func (b *JSONResponse) Header(name, value string) *JSONResponse {
	b.headers[name] = value
	return b
}

func (b *JSONResponse) Body(v any) *JSONResponse {
	b.body = v
	return b
}

// Write sends the response. A nil body writes only the status line.
func (b *JSONResponse) Write(w http.ResponseWriter) {
	for k, v := range b.headers {
		w.Header().Set(k, v)
	}
	if b.body == nil {
		w.WriteHeader(b.statusCode)
		return
	}
	payload, err := json.Marshal(b.body)
	if err != nil {
		slog.Error("Failed to encode response", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	_, _ = w.Write(append(payload, '\n'))
}

// errorBody is the shape of every non-auth error.
type errorBody struct {
	Error string `json:"error"`
}

// authErrorBody reports an interactive grant failure with its guidance text.
type authErrorBody struct {
	Kind    auth.Kind `json:"kind"`
	Code    string    `json:"code,omitempty"`
	Message string    `json:"message"`
}

func ErrorResponse(statusCode int, message string) *JSONResponse {
	return NewJSONResponse().Status(statusCode).Body(errorBody{Error: message})
}

func BadRequestError(message string) *JSONResponse {
	return ErrorResponse(http.StatusBadRequest, message)
}

func NotFoundError(message string) *JSONResponse {
	return ErrorResponse(http.StatusNotFound, message)
}

func InternalServerError(message string) *JSONResponse {
	return ErrorResponse(http.StatusInternalServerError, message)
}

// AuthErrorResponse maps a grant failure to a status and guidance body.
func AuthErrorResponse(ae *auth.AuthError) *JSONResponse {
	status := http.StatusBadGateway
	switch ae.Kind {
	case auth.KindAccessDenied:
		status = http.StatusForbidden
	case auth.KindOriginMismatch:
		status = http.StatusBadRequest
	}
	return NewJSONResponse().Status(status).Body(authErrorBody{
		Kind:    ae.Kind,
		Code:    ae.Code,
		Message: ae.Guidance(),
	})
}

// errorFor maps domain errors to responses. Unknown errors become 500 with a
// generic message; the caller logs the detail.
func errorFor(err error) *JSONResponse {
	var ae *auth.AuthError
	var ce *auth.ConfigError
	switch {
	case errors.As(err, &ae):
		return AuthErrorResponse(ae)
	case errors.As(err, &ce):
		return ErrorResponse(http.StatusServiceUnavailable, ce.Error())
	case errors.Is(err, settings.ErrWrongPassphrase):
		return ErrorResponse(http.StatusForbidden, "passphrase required")
	case errors.Is(err, state.ErrBudgetNotFound):
		return NotFoundError(err.Error())
	case errors.Is(err, state.ErrDuplicateCategory):
		return ErrorResponse(http.StatusConflict, err.Error())
	case errors.Is(err, services.ErrNotReady):
		return ErrorResponse(http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, drive.ErrNotAuthenticated):
		return ErrorResponse(http.StatusUnauthorized, err.Error())
	case isValidation(err):
		return ErrorResponse(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, errBadFilter), errors.Is(err, errEmptyBody), errors.Is(err, errReceiptTooLarge):
		return BadRequestError(err.Error())
	}
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return ErrorResponse(http.StatusRequestEntityTooLarge, "request too large")
	}
	return nil
}

func isValidation(err error) bool {
	for _, target := range []error{
		core.ErrEmptyID, core.ErrInvalidDate, core.ErrInvalidType,
		core.ErrInvalidAmount, core.ErrEmptyCategory, core.ErrDescriptionSize,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
