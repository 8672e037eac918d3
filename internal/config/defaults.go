package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// DefaultConfigTOML 是 -init 写出的示例配置，可直接代理 Maven Central。
const DefaultConfigTOML = `# maven-hub 配置文件
ListenHost = ""
ListenPort = 5000
LogLevel = "info"
LogFilePath = ""
StoragePath = "./storage"
# 可变文件（metadata/快照）的 TTL；不设置时 maven 为 30m、gradle 为 1h，Hub 级 CacheTTL 优先
# CacheTTL = "24h"
MaxMemoryCacheSize = 268435456
MaxRetries = 3
InitialBackoff = "1s"
UpstreamTimeout = "30s"
# 所有上游都返回 404 的路径在此期间直接返回 404，0 表示关闭
NotFoundTTL = "5m"
ServeStaleOnError = true
# 非空时启用 DELETE /-/cache/<hub>/<path>，需携带 Authorization: Bearer <AdminToken>
AdminToken = ""
ShutdownTimeout = "10s"

[[Hub]]
Name = "central"
# Domain 可选，未配置时通过 http://<host>:5000/central/ 访问
Domain = ""
Type = "maven"
Upstream = "https://repo1.maven.org/maven2"
Mirrors = []
ChecksumPolicy = "warn"
MergeMetadata = false
`

// WriteDefault 在 path 不存在时写入默认配置，返回是否实际写入。
func WriteDefault(path string) (bool, error) {
	if path == "" {
		path = "config.toml"
	}
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("检查配置文件失败: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return false, fmt.Errorf("创建配置目录失败: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(DefaultConfigTOML), 0o644); err != nil {
		return false, fmt.Errorf("写入默认配置失败: %w", err)
	}
	return true, nil
}
