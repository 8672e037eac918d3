package hooks

import "github.com/any-hub/maven-hub/internal/maven"

// CachePolicy mirrors the proxy cache policy structure.
type CachePolicy struct {
	AllowCache        bool
	AllowStore        bool
	RequireRevalidate bool
	// VerifyChecksum asks the handler to compare the download with the upstream .sha1.
	VerifyChecksum bool
}

// RequestContext exposes route/request details without importing server internals.
type RequestContext struct {
	HubName   string
	Domain    string
	HubType   string
	ModuleKey string
	Method    string
}

// Hooks describes customization points for module-specific behavior.
type Hooks struct {
	NormalizePath func(ctx *RequestContext, cleanPath string) string
	CachePolicy   func(ctx *RequestContext, req maven.Request, current CachePolicy) CachePolicy
	ContentType   func(ctx *RequestContext, locatorPath string) string
}

// DefaultCachePolicy derives the policy every Maven layout shares: release
// artifacts are immutable, mutable files revalidate, listings bypass the cache.
func DefaultCachePolicy(req maven.Request) CachePolicy {
	switch req.Kind {
	case maven.KindListing:
		return CachePolicy{}
	case maven.KindArtifact:
		return CachePolicy{
			AllowCache:        true,
			AllowStore:        true,
			RequireRevalidate: !req.Immutable(),
			VerifyChecksum:    true,
		}
	case maven.KindChecksum, maven.KindSignature:
		return CachePolicy{AllowCache: true, AllowStore: true, RequireRevalidate: !req.Immutable()}
	default:
		return CachePolicy{AllowCache: true, AllowStore: true, RequireRevalidate: true}
	}
}
