package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Report queries are short; anything near this limit is a client bug.
const maxRequestBodyBytes = 64 * 1024

// apiError is the JSON body every non-streaming failure returns. RunID is
// set when the failure is scoped to a live run, so clients can correlate it
// with the SSE stream they were following.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	RunID   string `json:"runId,omitempty"`
}

func decodeJSON(r *http.Request, target any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxRequestBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		return err
	}
	if decoder.More() {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, apiError{Code: code, Message: message})
}

// sseHeaders marks the response as a server-sent event stream. Cache-Control
// keeps proxies from buffering the run's progress events.
func sseHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
}

// writeSSEEvent frames one pipeline event for the stream. Every event uses
// the same "message" name; the payload's type field tells clients apart.
func writeSSEEvent(w http.ResponseWriter, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal sse event: %w", err)
	}
	if _, err := fmt.Fprintf(w, "event: message\ndata: %s\n\n", data); err != nil {
		return fmt.Errorf("write sse event: %w", err)
	}
	return nil
}
