// Package gradle 描述 Gradle Plugin Portal（m2 布局）仓库的缓存策略。
package gradle

import (
	"time"

	"github.com/any-hub/maven-hub/internal/hubmodule"
)

const gradleDefaultTTL = time.Hour

func init() {
	hubmodule.MustRegister(hubmodule.ModuleMetadata{
		Key:            "gradle",
		Description:    "Gradle plugin portal proxy using the m2 repository layout",
		MigrationState: hubmodule.MigrationStateBeta,
		SupportedProtocols: []string{
			"maven2",
			"gradle-module-metadata",
		},
		CacheStrategy: hubmodule.CacheStrategyProfile{
			TTLHint:           gradleDefaultTTL,
			ValidationMode:    hubmodule.ValidationModeETag,
			DiskLayout:        "maven2",
			ImmutableReleases: true,
		},
	})
}
