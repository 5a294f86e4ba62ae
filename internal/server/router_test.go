package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/exhibit/photocache/internal/cache"
	"github.com/exhibit/photocache/internal/metrics"
)

const testToken = "secret"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testApp struct {
	*fiber.App
	clock    *testClock
	registry *prometheus.Registry
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	store, err := cache.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("store init error: %v", err)
	}
	registry := prometheus.NewRegistry()
	m, err := metrics.New(registry)
	if err != nil {
		t.Fatalf("metrics init error: %v", err)
	}
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	clock := &testClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}

	app, err := NewApp(AppOptions{
		Logger:    logger,
		Store:     store,
		Token:     testToken,
		URLTTL:    time.Minute,
		PublicURL: "http://objects.local/",
		Gatherer:  registry,
		Metrics:   m,
		Now:       clock.Now,
	})
	if err != nil {
		t.Fatalf("NewApp error: %v", err)
	}
	return &testApp{App: app, clock: clock, registry: registry}
}

func doRequest(t *testing.T, app *testApp, method, target string, body []byte, auth bool) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if auth {
		req.Header.Set("Authorization", "Bearer "+testToken)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	return resp
}

func signedPath(t *testing.T, resp *http.Response) string {
	t.Helper()
	var payload struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode url response: %v", err)
	}
	u, err := url.Parse(payload.URL)
	if err != nil {
		t.Fatalf("parse signed url: %v", err)
	}
	if u.Host != "objects.local" {
		t.Fatalf("signed url should use PublicURL, got %s", payload.URL)
	}
	return u.RequestURI()
}

func TestHealthzAndRequestID(t *testing.T) {
	app := newTestApp(t)

	resp := doRequest(t, app, http.MethodGet, "/-/healthz", nil, false)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatalf("expected X-Request-ID header to be set")
	}
}

func TestObjectAPIRequiresToken(t *testing.T) {
	app := newTestApp(t)

	resp := doRequest(t, app, http.MethodPost, "/v1/objects/exhibitions/a.jpg", []byte("x"), false)
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	resp = doRequest(t, app, http.MethodGet, "/v1/urls/exhibitions/a.jpg", nil, false)
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestUploadIssueURLAndDownload(t *testing.T) {
	app := newTestApp(t)
	payload := []byte("cover image bytes")

	resp := doRequest(t, app, http.MethodPost, "/v1/objects/exhibitions/42/cover.jpg", payload, true)
	if resp.StatusCode != fiber.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected 201, got %d (%s)", resp.StatusCode, body)
	}

	resp = doRequest(t, app, http.MethodGet, "/v1/urls/exhibitions/42/cover.jpg", nil, true)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	path := signedPath(t, resp)
	if !strings.HasPrefix(path, "/blobs/exhibitions/42/cover.jpg?token=") {
		t.Fatalf("unexpected signed path %s", path)
	}

	resp = doRequest(t, app, http.MethodGet, path, nil, false)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200 download, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !bytes.Equal(body, payload) {
		t.Fatalf("downloaded body mismatch: %q", body)
	}
}

func TestIssueURLMissingObject(t *testing.T) {
	app := newTestApp(t)

	resp := doRequest(t, app, http.MethodGet, "/v1/urls/exhibitions/nope.jpg", nil, true)
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestSignedURLExpires(t *testing.T) {
	app := newTestApp(t)
	doRequest(t, app, http.MethodPost, "/v1/objects/exhibitions/a.jpg", []byte("a"), true)

	resp := doRequest(t, app, http.MethodGet, "/v1/urls/exhibitions/a.jpg", nil, true)
	path := signedPath(t, resp)

	app.clock.Advance(2 * time.Minute)
	resp = doRequest(t, app, http.MethodGet, path, nil, false)
	if resp.StatusCode != fiber.StatusForbidden {
		t.Fatalf("expired token should be rejected, got %d", resp.StatusCode)
	}
}

func TestSignedURLBoundToKey(t *testing.T) {
	app := newTestApp(t)
	doRequest(t, app, http.MethodPost, "/v1/objects/exhibitions/a.jpg", []byte("a"), true)
	doRequest(t, app, http.MethodPost, "/v1/objects/exhibitions/b.jpg", []byte("b"), true)

	resp := doRequest(t, app, http.MethodGet, "/v1/urls/exhibitions/a.jpg", nil, true)
	path := signedPath(t, resp)
	other := strings.Replace(path, "a.jpg", "b.jpg", 1)

	resp = doRequest(t, app, http.MethodGet, other, nil, false)
	if resp.StatusCode != fiber.StatusForbidden {
		t.Fatalf("token for a.jpg must not unlock b.jpg, got %d", resp.StatusCode)
	}
}

func TestDeleteRevokesSignedURL(t *testing.T) {
	app := newTestApp(t)
	doRequest(t, app, http.MethodPost, "/v1/objects/exhibitions/a.jpg", []byte("a"), true)
	resp := doRequest(t, app, http.MethodGet, "/v1/urls/exhibitions/a.jpg", nil, true)
	path := signedPath(t, resp)

	resp = doRequest(t, app, http.MethodDelete, "/v1/objects/exhibitions/a.jpg", nil, true)
	if resp.StatusCode != fiber.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	resp = doRequest(t, app, http.MethodGet, path, nil, false)
	if resp.StatusCode != fiber.StatusForbidden {
		t.Fatalf("deleted object's token should be revoked, got %d", resp.StatusCode)
	}
	resp = doRequest(t, app, http.MethodDelete, "/v1/objects/exhibitions/a.jpg", nil, true)
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("second delete should be 404, got %d", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	app := newTestApp(t)
	doRequest(t, app, http.MethodPost, "/v1/objects/exhibitions/a.jpg", []byte("a"), true)

	resp := doRequest(t, app, http.MethodGet, "/-/metrics", nil, false)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !bytes.Contains(body, []byte(`photocache_cache_operation_objects_total{cache="objectstore",operation="upload",status="ok"} 1`)) {
		t.Fatalf("metrics output missing upload counter:\n%s", body)
	}
}

func TestNewAppValidatesOptions(t *testing.T) {
	if _, err := NewApp(AppOptions{}); err == nil {
		t.Fatalf("missing logger should fail")
	}
	if _, err := NewApp(AppOptions{Logger: logrus.New()}); err == nil {
		t.Fatalf("missing store should fail")
	}
}

func TestKeysDifferingOnlyBySeparatorStayDistinct(t *testing.T) {
	app := newTestApp(t)
	doRequest(t, app, http.MethodPost, "/v1/objects/exhibitions/a/b.jpg", []byte("slash"), true)
	doRequest(t, app, http.MethodPost, "/v1/objects/exhibitions/a_b.jpg", []byte("underscore"), true)

	for key, want := range map[string]string{"a/b.jpg": "slash", "a_b.jpg": "underscore"} {
		resp := doRequest(t, app, http.MethodGet, "/v1/urls/exhibitions/"+key, nil, true)
		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("%s: expected 200, got %d", key, resp.StatusCode)
		}
		resp = doRequest(t, app, http.MethodGet, signedPath(t, resp), nil, false)
		body, _ := io.ReadAll(resp.Body)
		if string(body) != want {
			t.Fatalf("%s: expected %q, got %q", key, want, body)
		}
	}

	resp := doRequest(t, app, http.MethodDelete, "/v1/objects/exhibitions/a_b.jpg", nil, true)
	if resp.StatusCode != fiber.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	resp = doRequest(t, app, http.MethodGet, "/v1/urls/exhibitions/a/b.jpg", nil, true)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("deleting a_b.jpg must not remove a/b.jpg, got %d", resp.StatusCode)
	}
}
