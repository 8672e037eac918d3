package version

import "fmt"

// 构建时通过 -ldflags "-X .../internal/version.Version=..." 注入。
var (
	Version = "0.1.0"
	Commit  = "dev"
)

// Full 用于 -version 输出。
func Full() string {
	return fmt.Sprintf("maven-hub %s (%s)", Version, Commit)
}

// UserAgent 是回源请求默认携带的 User-Agent。
func UserAgent() string {
	return "maven-hub/" + Version
}
