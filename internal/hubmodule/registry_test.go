package hubmodule

import (
	"testing"
	"time"
)

func replaceRegistry(t *testing.T) func() {
	t.Helper()
	modulesMu.Lock()
	prev := modules
	modules = make(map[string]ModuleMetadata)
	modulesMu.Unlock()
	return func() {
		modulesMu.Lock()
		modules = prev
		modulesMu.Unlock()
	}
}

func TestRegisterResolveAndList(t *testing.T) {
	cleanup := replaceRegistry(t)
	defer cleanup()

	if err := Register(ModuleMetadata{Key: "gradle", MigrationState: MigrationStateBeta}); err != nil {
		t.Fatalf("register gradle failed: %v", err)
	}
	if err := Register(ModuleMetadata{Key: "maven", MigrationState: MigrationStateGA}); err != nil {
		t.Fatalf("register maven failed: %v", err)
	}

	if _, ok := Resolve("gradle"); !ok {
		t.Fatalf("expected gradle to resolve")
	}
	if _, ok := Resolve("MAVEN"); !ok {
		t.Fatalf("resolve should be case-insensitive")
	}

	list := List()
	if len(list) != 2 {
		t.Fatalf("list length mismatch: %d", len(list))
	}
	if list[0].Key != "gradle" || list[1].Key != "maven" {
		t.Fatalf("unexpected order: %+v", list)
	}
	if list[1].CacheStrategy.DiskLayout != "maven2" {
		t.Fatalf("registration should normalize strategy, got %+v", list[1].CacheStrategy)
	}
}

func TestRegisterDuplicateFails(t *testing.T) {
	cleanup := replaceRegistry(t)
	defer cleanup()

	if err := Register(ModuleMetadata{Key: "maven"}); err != nil {
		t.Fatalf("first registration should succeed: %v", err)
	}
	if err := Register(ModuleMetadata{Key: " Maven "}); err == nil {
		t.Fatalf("duplicate registration should fail")
	}
}

func TestRegisterRejectsUnknownValidationMode(t *testing.T) {
	cleanup := replaceRegistry(t)
	defer cleanup()

	err := Register(ModuleMetadata{
		Key:           "odd",
		CacheStrategy: CacheStrategyProfile{ValidationMode: "sometimes"},
	})
	if err == nil {
		t.Fatalf("expected unknown validation mode to be rejected")
	}
}

func TestRegisterRejectsForeignDiskLayout(t *testing.T) {
	cleanup := replaceRegistry(t)
	defer cleanup()

	err := Register(ModuleMetadata{
		Key:           "npm",
		CacheStrategy: CacheStrategyProfile{DiskLayout: "tarball"},
	})
	if err == nil {
		t.Fatalf("expected non-maven2 layout to be rejected")
	}
	if _, ok := Resolve(""); ok {
		t.Fatalf("empty key must not resolve")
	}
	if len(Keys()) != 0 {
		t.Fatalf("rejected module must not be listed: %v", Keys())
	}
}

func TestResolveStrategyOverrides(t *testing.T) {
	meta := ModuleMetadata{
		Key: "maven",
		CacheStrategy: CacheStrategyProfile{
			TTLHint:        30 * time.Minute,
			ValidationMode: ValidationModeLastModified,
		},
	}

	strategy := ResolveStrategy(meta, StrategyOptions{
		TTLOverride:        5 * time.Minute,
		ValidationOverride: ValidationModeETag,
	})
	if strategy.TTLHint != 5*time.Minute {
		t.Fatalf("expected ttl override, got %s", strategy.TTLHint)
	}
	if strategy.ValidationMode != ValidationModeETag {
		t.Fatalf("expected etag override, got %s", strategy.ValidationMode)
	}

	strategy = ResolveStrategy(meta, StrategyOptions{ValidationOverride: "bogus"})
	if strategy.ValidationMode != ValidationModeLastModified {
		t.Fatalf("unknown override must keep module default, got %s", strategy.ValidationMode)
	}
	if strategy.DiskLayout != "maven2" {
		t.Fatalf("expected maven2 layout, got %s", strategy.DiskLayout)
	}
}

func TestStrategyFreshness(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	profile := normalizeStrategy(CacheStrategyProfile{TTLHint: time.Hour})
	if !profile.Fresh(now.Add(-30*time.Minute), now) {
		t.Fatalf("entry checked 30m ago should be fresh")
	}
	if profile.Fresh(now.Add(-2*time.Hour), now) {
		t.Fatalf("entry checked 2h ago should be stale")
	}
	if (CacheStrategyProfile{}).Fresh(now, now) {
		t.Fatalf("zero TTL must always revalidate")
	}
	if !profile.Revalidates() {
		t.Fatalf("default last-modified mode should revalidate")
	}
	if (CacheStrategyProfile{ValidationMode: ValidationModeNever}).Revalidates() {
		t.Fatalf("never mode must not revalidate")
	}
}
