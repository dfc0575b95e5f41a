package server

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// HTTPError is an error with an HTTP status code. Handlers return it to
// pick the response status; anything else becomes a 500.
type HTTPError struct {
	Code    int
	Message string
	Err     error
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *HTTPError) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status code for this error.
func (e *HTTPError) StatusCode() int {
	return e.Code
}

// BadRequestf creates a 400 Bad Request error with a formatted message.
func BadRequestf(format string, args ...any) *HTTPError {
	return &HTTPError{Code: http.StatusBadRequest, Message: fmt.Sprintf(format, args...)}
}

// NotFound creates a 404 Not Found error.
func NotFound(message string) *HTTPError {
	return &HTTPError{Code: http.StatusNotFound, Message: message}
}

// Conflict creates a 409 Conflict error.
func Conflict(err error) *HTTPError {
	msg := "conflict"
	if err != nil {
		msg = err.Error()
	}
	return &HTTPError{Code: http.StatusConflict, Message: msg, Err: err}
}

// RequestTooLarge creates a 413 Request Entity Too Large error.
func RequestTooLarge(err error) *HTTPError {
	return &HTTPError{Code: http.StatusRequestEntityTooLarge, Message: "request body too large", Err: err}
}

// writeJSON encodes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError sends err as a JSON error body, honoring its status code
// when it carries one.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if sc, ok := err.(interface{ StatusCode() int }); ok {
		status = sc.StatusCode()
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
