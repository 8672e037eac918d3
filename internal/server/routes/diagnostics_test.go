package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/maven-hub/internal/cache"
	"github.com/any-hub/maven-hub/internal/config"
	"github.com/any-hub/maven-hub/internal/metrics"
	"github.com/any-hub/maven-hub/internal/server"
)

type diagFixture struct {
	app      *fiber.App
	store    cache.Store
	negative *cache.NegativeCache
	recorder *metrics.Recorder
}

func newDiagFixture(t *testing.T, token string) *diagFixture {
	t.Helper()
	cfg := &config.Config{
		Global: config.GlobalConfig{ListenPort: 5000, CacheTTL: config.Duration(time.Hour)},
		Hubs: []config.HubConfig{{
			Name:           "central",
			Type:           "maven",
			Module:         "maven",
			Upstream:       "https://repo1.maven.org/maven2",
			ChecksumPolicy: config.ChecksumPolicyWarn,
		}},
	}
	registry, err := server.NewHubRegistry(cfg)
	if err != nil {
		t.Fatalf("registry error: %v", err)
	}
	disk, err := cache.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("store error: %v", err)
	}
	store, err := cache.NewMemoryStore(disk, 1<<20, 64<<10)
	if err != nil {
		t.Fatalf("memory store error: %v", err)
	}
	negative, err := cache.NewNegativeCache(16, time.Minute)
	if err != nil {
		t.Fatalf("negative cache error: %v", err)
	}
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	recorder := metrics.New()
	app := fiber.New()
	RegisterModuleRoutes(app, registry)
	RegisterDiagnosticsRoutes(app, DiagnosticsOptions{
		Registry:   registry,
		Store:      store,
		Negative:   negative,
		Metrics:    recorder,
		AdminToken: token,
		Logger:     logger,
	})
	return &diagFixture{app: app, store: store, negative: negative, recorder: recorder}
}

func (f *diagFixture) seed(t *testing.T, p string, body string) cache.Locator {
	t.Helper()
	loc := cache.Locator{HubName: "central", Path: p}
	if _, err := f.store.Put(context.Background(), loc, strings.NewReader(body), cache.PutOptions{}); err != nil {
		t.Fatalf("seed error: %v", err)
	}
	return loc
}

func TestHealthz(t *testing.T) {
	f := newDiagFixture(t, "")
	resp, err := f.app.Test(httptest.NewRequest("GET", "/-/healthz", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !bytes.Contains(body, []byte(`"status":"ok"`)) {
		t.Fatalf("unexpected body %s", body)
	}
}

func TestHubsReportsCacheStats(t *testing.T) {
	f := newDiagFixture(t, "")
	loc := f.seed(t, "/org/example/lib/1.0/lib-1.0.pom", "<project/>")
	result, err := f.store.Get(context.Background(), loc)
	if err != nil {
		t.Fatalf("get error: %v", err)
	}
	result.Reader.Close()

	resp, err := f.app.Test(httptest.NewRequest("GET", "/-/hubs", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	var payload struct {
		Hubs []struct {
			HubName   string       `json:"hub_name"`
			Prefix    string       `json:"prefix"`
			Upstreams []string     `json:"upstreams"`
			Cache     *cache.Stats `json:"cache"`
		} `json:"hubs"`
		Memory *cache.Stats `json:"memory"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if len(payload.Hubs) != 1 || payload.Hubs[0].HubName != "central" || payload.Hubs[0].Prefix != "/central/" {
		t.Fatalf("unexpected hubs payload: %+v", payload)
	}
	if payload.Hubs[0].Cache == nil || payload.Hubs[0].Cache.Entries != 1 || payload.Hubs[0].Cache.Bytes != int64(len("<project/>")) {
		t.Fatalf("unexpected cache stats: %+v", payload.Hubs[0].Cache)
	}
	if payload.Memory == nil || payload.Memory.Entries != 1 || payload.Memory.Bytes != int64(len("<project/>")) {
		t.Fatalf("unexpected memory tier usage: %+v", payload.Memory)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	f := newDiagFixture(t, "")
	f.recorder.ObserveRequest("central", "true", 0.001, 10)

	resp, err := f.app.Test(httptest.NewRequest("GET", "/-/metrics", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if !bytes.Contains(body, []byte(`maven_hub_requests_total{hub="central",result="true"} 1`)) {
		t.Fatalf("metrics output missing request counter")
	}
}

func TestCacheEvictRequiresToken(t *testing.T) {
	disabled := newDiagFixture(t, "")
	resp, err := disabled.app.Test(httptest.NewRequest("DELETE", "/-/cache/central/org/example/lib/1.0/lib-1.0.pom", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusForbidden {
		t.Fatalf("eviction should be disabled without AdminToken, got %d", resp.StatusCode)
	}

	f := newDiagFixture(t, "s3cret")
	req := httptest.NewRequest("DELETE", "/-/cache/central/org/example/lib/1.0/lib-1.0.pom", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	resp, err = f.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong token, got %d", resp.StatusCode)
	}
}

func TestCacheEvictRemovesEntry(t *testing.T) {
	f := newDiagFixture(t, "s3cret")
	loc := f.seed(t, "/org/example/lib/1.0/lib-1.0.pom", "<project/>")
	f.negative.Mark(loc)

	req := httptest.NewRequest("DELETE", "/-/cache/central/org/example/lib/1.0/lib-1.0.pom", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	resp, err := f.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("unexpected status %d body=%s", resp.StatusCode, body)
	}
	if _, err := f.store.Get(context.Background(), loc); err != cache.ErrNotFound {
		t.Fatalf("entry should be removed, got %v", err)
	}
	if f.negative.Hit(loc) {
		t.Fatalf("negative mark should be cleared")
	}

	req = httptest.NewRequest("DELETE", "/-/cache/unknown/a", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	resp, _ = f.app.Test(req)
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("unknown hub should 404, got %d", resp.StatusCode)
	}
}

func TestCacheEvictRemovesSubtree(t *testing.T) {
	f := newDiagFixture(t, "s3cret")
	a := f.seed(t, "/org/example/lib/1.0/lib-1.0.pom", "a")
	b := f.seed(t, "/org/example/lib/2.0/lib-2.0.pom", "b")
	keep := f.seed(t, "/org/other/x/1/x-1.pom", "c")

	req := httptest.NewRequest("DELETE", "/-/cache/central/org/example/", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	resp, err := f.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	for _, loc := range []cache.Locator{a, b} {
		if _, err := f.store.Get(context.Background(), loc); err != cache.ErrNotFound {
			t.Fatalf("%s should be removed, got %v", loc.Path, err)
		}
	}
	res, err := f.store.Get(context.Background(), keep)
	if err != nil {
		t.Fatalf("unrelated entry should survive: %v", err)
	}
	res.Reader.Close()
}
