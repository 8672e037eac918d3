package hubmodule

import "time"

// MigrationState 描述模块成熟度，诊断端据此区分 beta/ga。
type MigrationState string

const (
	MigrationStateBeta MigrationState = "beta"
	MigrationStateGA   MigrationState = "ga"
)

// ValidationMode 描述缓存再验证时向上游发送的条件头。
type ValidationMode string

const (
	ValidationModeETag         ValidationMode = "etag"
	ValidationModeLastModified ValidationMode = "last-modified"
	ValidationModeNever        ValidationMode = "never"
)

// Valid 报告取值是否为已知模式。
func (m ValidationMode) Valid() bool {
	switch m {
	case ValidationModeETag, ValidationModeLastModified, ValidationModeNever:
		return true
	default:
		return false
	}
}

// CacheStrategyProfile 描述模块的缓存读写策略及其默认值。
type CacheStrategyProfile struct {
	// TTLHint 为可变文件（metadata/快照）的新鲜期，过期后按 ValidationMode 再验证。
	TTLHint        time.Duration
	ValidationMode ValidationMode
	// DiskLayout 固定为 maven2，缓存路径与仓库路径一一对应。
	DiskLayout string
	// ImmutableReleases 为 true 时正式版本构件命中后永不再验证。
	ImmutableReleases bool
}

// ModuleMetadata 记录一个模块的静态信息，供配置校验和诊断端使用。
type ModuleMetadata struct {
	Key                string
	Description        string
	MigrationState     MigrationState
	SupportedProtocols []string
	CacheStrategy      CacheStrategyProfile
}

// DefaultModuleKey 返回未显式声明 Type 的 Hub 使用的模块键值。
func DefaultModuleKey() string {
	return defaultModuleKey
}
