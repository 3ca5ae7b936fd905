package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Lixing-Zhang/restaurant-backend/pkg/logger"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

func TestLogger(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		expectedLevel string
	}{
		{name: "success", status: http.StatusCreated, expectedLevel: "INFO"},
		{name: "client error", status: http.StatusConflict, expectedLevel: "WARN"},
		{name: "server error", status: http.StatusServiceUnavailable, expectedLevel: "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			log := logger.NewWithWriter(&buf, "debug")

			testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("ok"))
			})
			handler := chimiddleware.RequestID(Logger(log)(testHandler))

			req := httptest.NewRequest(http.MethodPost, "/api/order", nil)
			req.Header.Set(chimiddleware.RequestIDHeader, "req-42")
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			var entry map[string]interface{}
			if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
				t.Fatalf("failed to decode log entry %q: %v", buf.String(), err)
			}

			if entry["level"] != tt.expectedLevel {
				t.Errorf("level = %v, want %s", entry["level"], tt.expectedLevel)
			}
			if entry["request_id"] != "req-42" {
				t.Errorf("request_id = %v, want req-42", entry["request_id"])
			}
			if entry["path"] != "/api/order" {
				t.Errorf("path = %v, want /api/order", entry["path"])
			}
			if got, ok := entry["status"].(float64); !ok || int(got) != tt.status {
				t.Errorf("status = %v, want %d", entry["status"], tt.status)
			}
			if got, ok := entry["bytes"].(float64); !ok || got != 2 {
				t.Errorf("bytes = %v, want 2", entry["bytes"])
			}
		})
	}
}

func TestLoggerDefaultsToOK(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithWriter(&buf, "info")

	handler := Logger(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to decode log entry: %v", err)
	}
	if got, ok := entry["status"].(float64); !ok || int(got) != http.StatusOK {
		t.Errorf("status = %v, want 200", entry["status"])
	}
}
