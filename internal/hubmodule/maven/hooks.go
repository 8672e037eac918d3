package maven

import (
	"strings"

	"github.com/any-hub/maven-hub/internal/maven"
	"github.com/any-hub/maven-hub/internal/proxy/hooks"
)

func init() {
	hooks.MustRegister("maven", hooks.Hooks{
		CachePolicy: cachePolicy,
		ContentType: contentType,
	})
}

func cachePolicy(_ *hooks.RequestContext, req maven.Request, current hooks.CachePolicy) hooks.CachePolicy {
	// Nexus 索引体积巨大且每周重建，直接透传。
	if strings.HasPrefix(req.Path, "/.index/") {
		current.AllowCache = false
		current.AllowStore = false
		current.VerifyChecksum = false
		return current
	}
	return current
}

func contentType(_ *hooks.RequestContext, locatorPath string) string {
	return maven.ContentType(locatorPath)
}
