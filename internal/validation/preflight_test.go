package validation

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestValidateBackendURL(t *testing.T) {
	cases := []struct {
		name string
		url  string
		ok   bool
	}{
		{"http ok", "http://127.0.0.1:8080", true},
		{"https ok", "https://search.example.com", true},
		{"ws scheme rejected", "ws://127.0.0.1:8080", false},
		{"no host", "http://", false},
		{"garbage", "://nope", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ValidateBackendURL(tc.url)
			if got.OK != tc.ok {
				t.Errorf("OK = %v, want %v (%s)", got.OK, tc.ok, got.Message)
			}
			if !tc.ok && len(got.Fixes) == 0 {
				t.Error("failures must carry a suggested fix")
			}
		})
	}
}

func TestValidateGatewayURL(t *testing.T) {
	if got := ValidateGatewayURL("ws://127.0.0.1:9090/mic"); !got.OK {
		t.Errorf("ws URL rejected: %s", got.Message)
	}
	if got := ValidateGatewayURL("http://127.0.0.1:9090"); got.OK {
		t.Error("http scheme must be rejected for the gateway")
	}
}

func TestProbeBackendHealth(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer ts.Close()

	if got := ProbeBackendHealth(ts.URL); len(got.Warnings) != 0 {
		t.Errorf("healthy backend produced warnings: %v", got.Warnings)
	}
	if got := ProbeBackendHealth("http://127.0.0.1:1"); len(got.Warnings) == 0 {
		t.Error("unreachable backend must warn")
	}
}

func TestCheckEndpoints(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer ts.Close()

	got := CheckEndpoints(ts.URL, "ws://127.0.0.1:9090/mic")
	if !got.OK {
		t.Fatalf("expected pass, got %s", got.Message)
	}
	if !strings.HasPrefix(got.Message, "Preflight passed") {
		t.Errorf("unexpected message: %s", got.Message)
	}

	got = CheckEndpoints("ftp://backend", "ws://ok")
	if got.OK {
		t.Error("bad backend scheme must fail the preflight")
	}
}
