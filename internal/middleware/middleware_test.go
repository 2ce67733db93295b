package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/timtuun/pygeoapi/internal/logger"
)

func TestLogging_RequestIDAndCompletionLine(t *testing.T) {
	var buf bytes.Buffer
	zl := logger.Build(logger.Config{Level: "info"}, &buf)
	sl := logger.NewSlog(&zl)

	var sawID string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawID = w.Header().Get("X-Request-ID")
		w.WriteHeader(http.StatusNotFound)
	})

	rec := httptest.NewRecorder()
	Logging(sl)(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/items/x", nil))

	if sawID == "" || rec.Header().Get("X-Request-ID") != sawID {
		t.Fatalf("request id not assigned and echoed: %q", sawID)
	}

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if line["msg"] != "request served" {
		t.Fatalf("msg: %v", line["msg"])
	}
	if line["status"] != float64(http.StatusNotFound) {
		t.Fatalf("status: %v", line["status"])
	}
	if line["request_id"] != sawID {
		t.Fatalf("request_id: %v, want %q", line["request_id"], sawID)
	}
}

func TestLogging_KeepsCallerRequestID(t *testing.T) {
	var buf bytes.Buffer
	zl := logger.Build(logger.Config{Level: "info"}, &buf)
	sl := logger.NewSlog(&zl)

	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {})
	req := httptest.NewRequest(http.MethodGet, "/items", nil)
	req.Header.Set("X-Request-ID", "caller-id")

	rec := httptest.NewRecorder()
	Logging(sl)(next).ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got != "caller-id" {
		t.Fatalf("caller request id replaced: %q", got)
	}
}

func TestRecover_PanicBecomes500(t *testing.T) {
	var buf bytes.Buffer
	zl := logger.Build(logger.Config{Level: "info"}, &buf)
	sl := logger.NewSlog(&zl)

	next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})

	rec := httptest.NewRecorder()
	Recover(sl)(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/items", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	if !bytes.Contains(buf.Bytes(), []byte("panic recovered")) {
		t.Fatalf("panic not logged: %s", buf.String())
	}
}

func TestCORS_Preflight(t *testing.T) {
	next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("preflight reached the handler")
	})

	rec := httptest.NewRecorder()
	CORS()(next).ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/items", nil))

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Methods") == "" {
		t.Fatalf("preflight missing allow-methods")
	}
}
