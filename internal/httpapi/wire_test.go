package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestDecodeJSONRejectsTrailingContent(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"query":"a"}{"query":"b"}`))
	var target streamReportRequest
	if err := decodeJSON(req, &target); err == nil {
		t.Fatal("expected error for trailing JSON")
	}
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"query":"a","bogus":1}`))
	var target streamReportRequest
	if err := decodeJSON(req, &target); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestDecodeJSONCapsBodySize(t *testing.T) {
	body := `{"query":"` + strings.Repeat("x", maxRequestBodyBytes) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	var target streamReportRequest
	if err := decodeJSON(req, &target); err == nil {
		t.Fatal("expected error for oversized body")
	}
}

func TestWriteErrorShape(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, http.StatusNotFound, "not_found", "report not found")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	var body apiError
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("parse error body: %v", err)
	}
	if body.Code != "not_found" || body.Message != "report not found" {
		t.Fatalf("unexpected error body: %+v", body)
	}
}

func TestWriteSSEEventFraming(t *testing.T) {
	rec := httptest.NewRecorder()
	sseHeaders(rec)
	if err := writeSSEEvent(rec, map[string]any{"type": "status"}); err != nil {
		t.Fatalf("write sse event: %v", err)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}
	got := rec.Body.String()
	if !strings.HasPrefix(got, "event: message\ndata: ") || !strings.HasSuffix(got, "\n\n") {
		t.Fatalf("unexpected framing: %q", got)
	}
}
