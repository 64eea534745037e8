package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded for first hop", map[string]string{"X-Forwarded-For": "10.0.0.1, 10.0.0.2"}, "1.1.1.1:99", "10.0.0.1"},
		{"real ip", map[string]string{"X-Real-IP": " 10.0.0.9 "}, "1.1.1.1:99", "10.0.0.9"},
		{"remote addr", nil, "192.168.1.5:4321", "192.168.1.5"},
		{"remote addr without port", nil, "192.168.1.5", "192.168.1.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, extractClientIP(r))
		})
	}
}

func TestAuth(t *testing.T) {
	var client string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client = ClientFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name       string
		keys       []string
		header     string
		value      string
		wantStatus int
		wantClient bool
	}{
		{"disabled", nil, "", "", http.StatusNoContent, false},
		{"missing token", []string{"k1"}, "", "", http.StatusUnauthorized, false},
		{"wrong token", []string{"k1"}, "X-API-Key", "nope", http.StatusUnauthorized, false},
		{"api key header", []string{"k1", "k2"}, "X-API-Key", "k2", http.StatusNoContent, true},
		{"bearer", []string{"k1"}, "Authorization", "Bearer k1", http.StatusNoContent, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client = ""
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				r.Header.Set(tt.header, tt.value)
			}
			rec := httptest.NewRecorder()
			Auth(tt.keys)(next).ServeHTTP(rec, r)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantClient, client != "")
		})
	}
}
