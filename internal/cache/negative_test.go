package cache

import (
	"testing"
	"time"
)

func TestNegativeCacheExpiry(t *testing.T) {
	neg, err := NewNegativeCache(16, time.Minute)
	if err != nil {
		t.Fatalf("new negative cache: %v", err)
	}
	now := time.Now()
	neg.now = func() time.Time { return now }

	locator := Locator{HubName: "central", Path: "/com/example/missing/1.0/missing-1.0.pom"}
	if neg.Hit(locator) {
		t.Fatalf("unexpected hit before mark")
	}
	neg.Mark(locator)
	if !neg.Hit(locator) {
		t.Fatalf("expected hit after mark")
	}

	now = now.Add(2 * time.Minute)
	if neg.Hit(locator) {
		t.Fatalf("mark should expire after ttl")
	}
	if neg.Len() != 0 {
		t.Fatalf("expired mark should be dropped, len=%d", neg.Len())
	}
}

func TestNegativeCacheClearAndDisabled(t *testing.T) {
	neg, err := NewNegativeCache(16, time.Minute)
	if err != nil {
		t.Fatalf("new negative cache: %v", err)
	}
	locator := Locator{HubName: "central", Path: "/x"}
	neg.Mark(locator)
	neg.Clear(locator)
	if neg.Hit(locator) {
		t.Fatalf("clear should remove mark")
	}

	disabled, err := NewNegativeCache(16, 0)
	if err != nil || disabled != nil {
		t.Fatalf("zero ttl should disable negative cache")
	}
	disabled.Mark(locator)
	if disabled.Hit(locator) {
		t.Fatalf("disabled cache must never hit")
	}
}
