// Package maven 描述 Maven Central 风格仓库的默认缓存策略与注册逻辑，是未声明 Type 的 Hub 默认使用的模块。
package maven

import (
	"time"

	"github.com/any-hub/maven-hub/internal/hubmodule"
)

const mavenDefaultTTL = 30 * time.Minute

// maven 模块：正式版本构件不可变，metadata 与快照在 TTL 过期后通过 Last-Modified 再验证。
func init() {
	hubmodule.MustRegister(hubmodule.ModuleMetadata{
		Key:            "maven",
		Description:    "Maven 2 repository proxy (Maven Central, Nexus, Artifactory)",
		MigrationState: hubmodule.MigrationStateGA,
		SupportedProtocols: []string{
			"maven2",
		},
		CacheStrategy: hubmodule.CacheStrategyProfile{
			TTLHint:           mavenDefaultTTL,
			ValidationMode:    hubmodule.ValidationModeLastModified,
			DiskLayout:        "maven2",
			ImmutableReleases: true,
		},
	})
}
