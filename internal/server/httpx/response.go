// Package httpx holds the JSON envelope and request binding shared by the REST handlers.
package httpx

import (
	"encoding/json"
	"net/http"
)

// Response is the envelope returned by every REST endpoint. Status mirrors the HTTP status code.
type Response struct {
	Status  int          `json:"status"`
	Message string       `json:"message"`
	Errors  []FieldError `json:"errors,omitempty"`
	Data    any          `json:"data,omitempty"`
}

// JSON writes body with the given status code.
func JSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// Message writes the {status, message} envelope.
func Message(w http.ResponseWriter, status int, msg string) {
	JSON(w, status, Response{Status: status, Message: msg})
}

// Data writes the envelope with a data payload.
func Data(w http.ResponseWriter, status int, msg string, data any) {
	JSON(w, status, Response{Status: status, Message: msg, Data: data})
}

// ValidationFailed writes a 400 envelope listing the offending fields.
func ValidationFailed(w http.ResponseWriter, errs []FieldError) {
	JSON(w, http.StatusBadRequest, Response{
		Status:  http.StatusBadRequest,
		Message: "Invalid request",
		Errors:  errs,
	})
}
