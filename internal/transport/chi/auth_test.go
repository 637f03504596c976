package chi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	for _, keys := range [][]string{nil, {"", ""}} {
		handler := BearerAuthMiddleware(keys)(okHandler())

		req := httptest.NewRequest("PUT", "/v1/content/1", http.NoBody)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("keys %q: got %d, want %d", keys, rr.Code, http.StatusOK)
		}
	}
}

func TestAuthMiddleware(t *testing.T) {
	handler := BearerAuthMiddleware([]string{"ingest-key", "search-key"})(okHandler())

	tests := []struct {
		name    string
		method  string
		path    string
		headers map[string]string
		want    int
		message string
	}{
		{
			name: "bearer token", method: "GET", path: "/v1/content/search?publisher=bbc.co.uk",
			headers: map[string]string{"Authorization": "Bearer search-key"},
			want:    http.StatusOK,
		},
		{
			name: "second key", method: "PUT", path: "/v1/groups/7",
			headers: map[string]string{"Authorization": "Bearer ingest-key"},
			want:    http.StatusOK,
		},
		{
			name: "api key header", method: "PUT", path: "/v1/content/1",
			headers: map[string]string{APIKeyHeader: "ingest-key"},
			want:    http.StatusOK,
		},
		{
			name: "api key header wins over bearer", method: "PUT", path: "/v1/equivalence/1",
			headers: map[string]string{APIKeyHeader: "ingest-key", "Authorization": "Bearer wrong"},
			want:    http.StatusOK,
		},
		{
			name: "missing credentials", method: "GET", path: "/v1/content/1",
			want: http.StatusUnauthorized, message: "missing authorization header",
		},
		{
			name: "basic scheme", method: "GET", path: "/v1/content/1",
			headers: map[string]string{"Authorization": "Basic c2VjcmV0"},
			want:    http.StatusUnauthorized, message: "authorization header must use Bearer scheme",
		},
		{
			name: "unknown key", method: "POST", path: "/v1/content/batch",
			headers: map[string]string{"Authorization": "Bearer ingest"},
			want:    http.StatusUnauthorized, message: "invalid api key",
		},
		{
			name: "unknown api key header", method: "PUT", path: "/v1/content/1",
			headers: map[string]string{APIKeyHeader: "search-key-2"},
			want:    http.StatusUnauthorized, message: "invalid api key",
		},
		{name: "health exempt", method: "GET", path: "/health", want: http.StatusOK},
		{name: "metrics exempt", method: "GET", path: "/metrics", want: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, http.NoBody)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.want {
				t.Fatalf("got %d, want %d", rr.Code, tt.want)
			}
			if tt.want != http.StatusUnauthorized {
				return
			}

			var errResp ErrorResponse
			if err := json.NewDecoder(rr.Body).Decode(&errResp); err != nil {
				t.Fatalf("decode error response: %v", err)
			}
			if errResp.Code != CodeUnauthorized {
				t.Errorf("code = %s, want %s", errResp.Code, CodeUnauthorized)
			}
			if errResp.Message != tt.message {
				t.Errorf("message = %q, want %q", errResp.Message, tt.message)
			}
		})
	}
}
