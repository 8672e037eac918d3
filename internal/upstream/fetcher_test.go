package upstream

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"
)

func TestOpenFailsOverToNextTarget(t *testing.T) {
	missing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer missing.Close()
	var gotPath, gotUser string
	hit := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUser, _, _ = r.BasicAuth()
		_, _ = w.Write([]byte("jar-bytes"))
	}))
	defer hit.Close()

	fetcher := NewFetcher(hit.Client(), Options{MaxRetries: 2, InitialBackoff: time.Millisecond})
	result, err := fetcher.Open(context.Background(), []Target{
		mustTarget(t, "central", missing.URL),
		mustTarget(t, "mirror", hit.URL+"/maven2/"),
	}, Request{Path: "/com/example/lib/1.0/lib-1.0.jar", Username: "ci"})
	if err != nil {
		t.Fatalf("open error: %v", err)
	}
	defer result.Close()

	body, _ := io.ReadAll(result.Response.Body)
	if string(body) != "jar-bytes" {
		t.Fatalf("unexpected body: %s", body)
	}
	if result.Index != 1 || result.Target.Name != "mirror" {
		t.Fatalf("expected mirror to serve, got %+v", result.Target)
	}
	if gotPath != "/maven2/com/example/lib/1.0/lib-1.0.jar" {
		t.Fatalf("base path prefix not kept: %s", gotPath)
	}
	if gotUser != "ci" {
		t.Fatalf("expected basic auth user, got %q", gotUser)
	}
}

func TestOpenAllNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
	}))
	defer server.Close()

	fetcher := NewFetcher(server.Client(), Options{InitialBackoff: time.Millisecond})
	_, err := fetcher.Open(context.Background(), []Target{
		mustTarget(t, "a", server.URL),
		mustTarget(t, "b", server.URL),
	}, Request{Path: "/x"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestOpenRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	var observed []string
	fetcher := NewFetcher(server.Client(), Options{
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		Observer: func(hub string, target Target, status string) {
			observed = append(observed, status)
		},
	})
	result, err := fetcher.Open(context.Background(), []Target{mustTarget(t, "a", server.URL)}, Request{Hub: "central", Path: "/x"})
	if err != nil {
		t.Fatalf("open error: %v", err)
	}
	result.Close()
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
	if len(observed) != 3 || observed[0] != "502" || observed[2] != "200" {
		t.Fatalf("unexpected observations: %v", observed)
	}
}

func TestOpenUnavailableAfterRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	fetcher := NewFetcher(server.Client(), Options{MaxRetries: 1, InitialBackoff: time.Millisecond})
	_, err := fetcher.Open(context.Background(), []Target{mustTarget(t, "a", server.URL)}, Request{Path: "/x"})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	statusErr, ok := AsStatusError(err)
	if !ok || statusErr.Status != http.StatusServiceUnavailable {
		t.Fatalf("expected wrapped 503, got %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 1 retry, got %d calls", calls.Load())
	}
}

func TestOpenDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	fetcher := NewFetcher(server.Client(), Options{MaxRetries: 3, InitialBackoff: time.Millisecond})
	_, err := fetcher.Open(context.Background(), []Target{mustTarget(t, "a", server.URL)}, Request{Path: "/x"})
	if !errors.Is(err, ErrUnavailable) || IsNotFound(err) {
		t.Fatalf("403 should be unavailable, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("403 must not be retried, got %d calls", calls.Load())
	}
}

func TestOpenHonoursCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	fetcher := NewFetcher(server.Client(), Options{MaxRetries: 5, InitialBackoff: time.Second})
	started := time.Now()
	_, err := fetcher.Open(ctx, []Target{mustTarget(t, "a", server.URL)}, Request{Path: "/x"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if time.Since(started) > 500*time.Millisecond {
		t.Fatalf("backoff ignored cancellation")
	}
}

func TestOpenNoTargets(t *testing.T) {
	fetcher := NewFetcher(nil, Options{})
	if _, err := fetcher.Open(context.Background(), nil, Request{Path: "/x"}); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestClientForProxyIsCached(t *testing.T) {
	fetcher := NewFetcher(&http.Client{Transport: &http.Transport{}}, Options{})
	proxyURL, _ := url.Parse("http://proxy.internal:3128")
	target := Target{Name: "a", BaseURL: &url.URL{Scheme: "https", Host: "repo1.maven.org"}, ProxyURL: proxyURL}
	first := fetcher.clientFor(target)
	second := fetcher.clientFor(target)
	if first != second {
		t.Fatalf("proxy client should be reused")
	}
	if first == fetcher.client {
		t.Fatalf("proxied target must not share the base client")
	}
}

func mustTarget(t *testing.T, name, raw string) Target {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	return Target{Name: name, BaseURL: u}
}
