package httpserver

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/medconnect/signaling-relay/internal/config"
)

func newTestServer(t *testing.T, cfg config.Config) (*Server, *httptest.Server) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := New(cfg, logger, BuildInfo{Commit: "abc123", BuildTime: "2026-01-01T00:00:00Z"})
	s.ready.Store(true)

	ts := httptest.NewServer(s.srv.Handler)
	t.Cleanup(ts.Close)
	return s, ts
}

func getJSON(t *testing.T, url string, v any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp
}

func TestHealthAndVersionEndpoints(t *testing.T) {
	_, ts := newTestServer(t, config.Config{})

	var health map[string]any
	if resp := getJSON(t, ts.URL+"/healthz", &health); resp.StatusCode != 200 {
		t.Fatalf("healthz status = %d", resp.StatusCode)
	}
	if health["ok"] != true {
		t.Fatalf("healthz body = %v", health)
	}

	var build BuildInfo
	if resp := getJSON(t, ts.URL+"/version", &build); resp.StatusCode != 200 {
		t.Fatalf("version status = %d", resp.StatusCode)
	}
	if build.Commit != "abc123" {
		t.Fatalf("version commit = %q", build.Commit)
	}
}

func TestReadyzReflectsServingState(t *testing.T) {
	s, ts := newTestServer(t, config.Config{})

	if resp := getJSON(t, ts.URL+"/readyz", nil); resp.StatusCode != 200 {
		t.Fatalf("readyz status = %d, want 200", resp.StatusCode)
	}

	s.ready.Store(false)
	if resp := getJSON(t, ts.URL+"/readyz", nil); resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("readyz status = %d, want 503 after shutdown started", resp.StatusCode)
	}
}

func TestICEEndpoint(t *testing.T) {
	cfg := config.Config{
		ICEServers: []webrtc.ICEServer{{URLs: []string{"stun:stun.medconnect.example:3478"}}},
	}
	_, ts := newTestServer(t, cfg)

	var body struct {
		ICEServers []webrtc.ICEServer `json:"iceServers"`
	}
	if resp := getJSON(t, ts.URL+"/ice", &body); resp.StatusCode != 200 {
		t.Fatalf("ice status = %d", resp.StatusCode)
	}
	if len(body.ICEServers) != 1 || body.ICEServers[0].URLs[0] != "stun:stun.medconnect.example:3478" {
		t.Fatalf("ice body = %+v", body)
	}
}

func TestICEEndpointMintsTURNCredentials(t *testing.T) {
	cfg := config.Config{
		ICEServers: []webrtc.ICEServer{
			{URLs: []string{"stun:stun.medconnect.example:3478"}},
			{URLs: []string{"turn:turn.medconnect.example:3478"}},
		},
		TURNREST: config.TURNRESTConfig{
			SharedSecret:   "turn-secret",
			TTL:            time.Hour,
			UsernamePrefix: "medconnect",
		},
	}
	_, ts := newTestServer(t, cfg)

	var body struct {
		ICEServers []struct {
			URLs       []string `json:"urls"`
			Username   string   `json:"username"`
			Credential string   `json:"credential"`
		} `json:"iceServers"`
		TTL int64 `json:"ttl"`
	}
	if resp := getJSON(t, ts.URL+"/ice", &body); resp.StatusCode != 200 {
		t.Fatalf("ice status = %d", resp.StatusCode)
	}
	if body.TTL != 3600 {
		t.Fatalf("ttl = %d, want 3600", body.TTL)
	}
	if len(body.ICEServers) != 2 {
		t.Fatalf("got %d servers, want 2", len(body.ICEServers))
	}
	if body.ICEServers[0].Username != "" || body.ICEServers[0].Credential != "" {
		t.Fatalf("stun entry gained credentials: %+v", body.ICEServers[0])
	}
	if !strings.Contains(body.ICEServers[1].Username, ":medconnect:") || body.ICEServers[1].Credential == "" {
		t.Fatalf("turn entry = %+v, want minted credentials", body.ICEServers[1])
	}
}

func TestICEEndpointOriginPolicy(t *testing.T) {
	cfg := config.Config{
		AllowedOrigins: []string{"https://app.medconnect.example"},
		ICEServers:     []webrtc.ICEServer{{URLs: []string{"stun:stun.medconnect.example:3478"}}},
	}
	_, ts := newTestServer(t, cfg)

	req, _ := http.NewRequest("GET", ts.URL+"/ice", nil)
	req.Header.Set("Origin", "https://evil.example")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403 for disallowed origin", resp.StatusCode)
	}

	req.Header.Set("Origin", "https://app.medconnect.example")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, want 200 for allowed origin", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "https://app.medconnect.example" {
		t.Fatalf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestRequestIDPropagation(t *testing.T) {
	_, ts := newTestServer(t, config.Config{})

	resp := getJSON(t, ts.URL+"/healthz", nil)
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatal("no generated X-Request-ID header")
	}

	req, _ := http.NewRequest("GET", ts.URL+"/healthz", nil)
	req.Header.Set("X-Request-ID", "caller-supplied")
	resp2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp2.Body.Close()
	if got := resp2.Header.Get("X-Request-ID"); got != "caller-supplied" {
		t.Fatalf("X-Request-ID = %q, want caller-supplied", got)
	}
}
