package pprof

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNormalizePrefix(t *testing.T) {
	t.Parallel()
	tests := []struct{ in, want string }{
		{"", "/debug/pprof/"},
		{"debug/pprof", "/debug/pprof/"},
		{"/prof", "/prof/"},
		{"/prof/", "/prof/"},
	}
	for _, tt := range tests {
		if got := normalizePrefix(tt.in); got != tt.want {
			t.Errorf("normalizePrefix(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsLoopbackAddr(t *testing.T) {
	t.Parallel()
	tests := []struct {
		addr string
		want bool
	}{
		{"127.0.0.1:6060", true},
		{"localhost:6060", true},
		{"[::1]:6060", true},
		{"0.0.0.0:6060", false},
		{":6060", false},
		{"192.168.1.5:6060", false},
		{"garbage", false},
	}
	for _, tt := range tests {
		if got := isLoopbackAddr(tt.addr); got != tt.want {
			t.Errorf("isLoopbackAddr(%q) = %v, want %v", tt.addr, got, tt.want)
		}
	}
}

func TestWithAuth(t *testing.T) {
	t.Parallel()
	ok := func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }
	h := withAuth("s3cret", ok)

	cases := []struct {
		name   string
		url    string
		header string
		want   int
	}{
		{"no credentials", "/x", "", http.StatusUnauthorized},
		{"query token", "/x?token=s3cret", "", http.StatusOK},
		{"wrong query token", "/x?token=nope", "", http.StatusUnauthorized},
		{"bearer", "/x", "Bearer s3cret", http.StatusOK},
		{"wrong bearer", "/x", "Bearer nope", http.StatusUnauthorized},
	}
	for _, tt := range cases {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := httptest.NewRequest(http.MethodGet, tt.url, nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			h(w, r)
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}

	// empty token means no auth layer
	w := httptest.NewRecorder()
	withAuth("", ok)(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 without token", w.Code)
	}
}
