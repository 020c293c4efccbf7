package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCORS(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	tests := []struct {
		name      string
		allowed   []string
		origin    string
		method    string
		wantAllow string
		wantCode  int
	}{
		{"allowed origin", []string{"https://app.test"}, "https://app.test", http.MethodGet, "https://app.test", http.StatusOK},
		{"unknown origin", []string{"https://app.test"}, "https://evil.test", http.MethodGet, "", http.StatusOK},
		{"wildcard", []string{"*"}, "https://any.test", http.MethodGet, "https://any.test", http.StatusOK},
		{"preflight", []string{"https://app.test"}, "https://app.test", http.MethodOptions, "https://app.test", http.StatusNoContent},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, "/v1/me", nil)
			req.Header.Set("Origin", tc.origin)
			rec := httptest.NewRecorder()
			CORS(tc.allowed)(next).ServeHTTP(rec, req)
			if rec.Code != tc.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantCode)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tc.wantAllow {
				t.Fatalf("allow origin = %q, want %q", got, tc.wantAllow)
			}
		})
	}
}
