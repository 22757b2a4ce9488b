package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/vocdoni/rln-sandbox/log"
)

// Error is the error returned by the handlers. Code identifies the error
// across versions of the API and HTTPstatus is the status of the response.
type Error struct {
	Err        error
	Code       int
	HTTPstatus int
}

// ErrorResponse is the body of every non 200 response of the API.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// MarshalJSON encodes the error as an ErrorResponse, HTTPstatus is left out.
func (e Error) MarshalJSON() ([]byte, error) {
	return json.Marshal(&ErrorResponse{Error: e.Error(), Code: e.Code})
}

func (e Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("api error %d", e.Code)
	}
	return e.Err.Error()
}

// Unwrap returns the wrapped error.
func (e Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an Error with the same code, so a detailed
// copy made with Withf or WithErr still matches its definition.
func (e Error) Is(target error) bool {
	var t Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Write sends the error as the JSON body of the response.
func (e Error) Write(w http.ResponseWriter) {
	msg, err := json.Marshal(e)
	if err != nil {
		log.Warnw("could not encode api error", "code", e.Code, "error", err)
		http.Error(w, "marshal failed", http.StatusInternalServerError)
		return
	}
	log.Debugw("api error response", "error", e.Error(), "code", e.Code, "status", e.HTTPstatus)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(e.HTTPstatus)
	if _, err := w.Write(append(msg, '\n')); err != nil {
		log.Warnw("failed to write api error", "error", err)
	}
}

// Withf returns a copy of the error with the formatted detail appended.
func (e Error) Withf(format string, args ...any) Error {
	e.Err = fmt.Errorf("%w: %s", e.Err, fmt.Sprintf(format, args...))
	return e
}

// WithErr returns a copy of the error with the message of err appended.
func (e Error) WithErr(err error) Error {
	e.Err = fmt.Errorf("%w: %v", e.Err, err)
	return e
}
