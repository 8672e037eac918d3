package cache

import (
	"testing"
	"time"

	"github.com/any-hub/maven-hub/internal/hubmodule"
)

func TestStrategyWriterTTLFromLastCheck(t *testing.T) {
	writer := NewStrategyWriter(nil, hubmodule.CacheStrategyProfile{
		TTLHint:        10 * time.Minute,
		ValidationMode: hubmodule.ValidationModeETag,
	})
	now := time.Now()
	writer.now = func() time.Time { return now }

	stale := Entry{FetchedAt: now.Add(-time.Hour), ValidatedAt: now.Add(-time.Hour)}
	if writer.ShouldBypassValidation(stale) {
		t.Fatalf("expired entry must be revalidated")
	}
	touched := Entry{FetchedAt: now.Add(-time.Hour), ValidatedAt: now.Add(-time.Minute)}
	if !writer.ShouldBypassValidation(touched) {
		t.Fatalf("recently validated entry should bypass validation")
	}
	if !writer.SupportsValidation() {
		t.Fatalf("etag strategy supports validation")
	}
	if writer.Enabled() {
		t.Fatalf("writer without store must report disabled")
	}
}

func TestStrategyWriterNeverValidates(t *testing.T) {
	writer := NewStrategyWriter(nil, hubmodule.CacheStrategyProfile{ValidationMode: hubmodule.ValidationModeNever})
	if writer.SupportsValidation() {
		t.Fatalf("never mode must disable validation")
	}
	if writer.ShouldBypassValidation(Entry{FetchedAt: time.Now()}) {
		t.Fatalf("zero ttl never bypasses")
	}
}
