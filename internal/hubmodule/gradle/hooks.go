package gradle

import (
	"strings"

	"github.com/any-hub/maven-hub/internal/maven"
	"github.com/any-hub/maven-hub/internal/proxy/hooks"
)

const portalPrefix = "/m2/"

func init() {
	hooks.MustRegister("gradle", hooks.Hooks{
		NormalizePath: normalizePath,
		ContentType:   contentType,
	})
}

// normalizePath 去掉客户端照抄 plugins.gradle.org/m2 时多出的 /m2 前缀，上游地址本身已包含该段。
func normalizePath(_ *hooks.RequestContext, cleanPath string) string {
	if strings.HasPrefix(cleanPath, portalPrefix) {
		return cleanPath[len(portalPrefix)-1:]
	}
	return cleanPath
}

func contentType(_ *hooks.RequestContext, locatorPath string) string {
	if strings.HasSuffix(locatorPath, ".module") {
		return "application/vnd.org.gradle.module+json"
	}
	return maven.ContentType(locatorPath)
}
