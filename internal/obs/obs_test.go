package obs

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestFrom_IncludesCorrelationFields(t *testing.T) {
	var buf bytes.Buffer
	restore := SetOutputForTests(&buf)
	defer restore()

	ctx := WithCorrelation(context.Background(), Correlation{RunID: "run-1", Scenario: "sign-in"})
	ctx = WithCorrelation(ctx, Correlation{Browser: "chromium"})
	From(ctx).Info("hello")

	var event map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &event); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, buf.String())
	}
	for key, want := range map[string]string{"run_id": "run-1", "scenario": "sign-in", "browser": "chromium", "msg": "hello"} {
		if got, _ := event[key].(string); got != want {
			t.Fatalf("event[%q] = %q, want %q", key, got, want)
		}
	}
}

func TestCorrelationFromContext_Nil(t *testing.T) {
	//nolint:staticcheck
	if got := CorrelationFromContext(nil); got != (Correlation{}) {
		t.Fatalf("CorrelationFromContext(nil) = %+v", got)
	}
}

func TestAccessLogMiddleware_RedactsToken(t *testing.T) {
	var buf bytes.Buffer
	restore := SetOutputForTests(&buf)
	defer restore()

	h := AccessLogMiddleware("test", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if CorrelationFromContext(r.Context()).RequestID == "" {
			t.Error("request id missing from handler context")
		}
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/verify_email_address?token=SECRET", nil))

	if rec.Code != http.StatusTeapot {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatal("X-Request-Id header not set")
	}
	if strings.Contains(buf.String(), "SECRET") {
		t.Fatalf("token leaked into access log: %s", buf.String())
	}
}
