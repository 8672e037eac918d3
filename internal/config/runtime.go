package config

import (
	"time"

	"github.com/any-hub/maven-hub/internal/hubmodule"
)

// HubRuntime 是 Hub 配置与模块默认值合并后的结果，路由与代理层只读取它。
type HubRuntime struct {
	Config        HubConfig
	Module        hubmodule.ModuleMetadata
	CacheStrategy hubmodule.CacheStrategyProfile
	CacheTTL      time.Duration
}

// Runtime 为单个 Hub 计算生效的 TTL 与缓存策略。
func (c *Config) Runtime(h HubConfig, meta hubmodule.ModuleMetadata) HubRuntime {
	ttl := c.EffectiveCacheTTL(h)
	return HubRuntime{
		Config:        h,
		Module:        meta,
		CacheStrategy: hubmodule.ResolveStrategy(meta, h.StrategyOverrides(ttl)),
		CacheTTL:      ttl,
	}
}

// DefaultCacheTTL 在 Hub、Global 与模块都没有给出 TTL 时生效。
const DefaultCacheTTL = 24 * time.Hour

// EffectiveCacheTTL 的优先级：Hub.CacheTTL > Global.CacheTTL > 模块默认 > DefaultCacheTTL。
// Global.CacheTTL 只有在配置中显式给出时才非零。
func (c *Config) EffectiveCacheTTL(h HubConfig) time.Duration {
	if ttl := h.CacheTTL.DurationValue(); ttl > 0 {
		return ttl
	}
	if ttl := c.Global.CacheTTL.DurationValue(); ttl > 0 {
		return ttl
	}
	if meta, ok := hubmodule.Resolve(h.Module); ok && meta.CacheStrategy.TTLHint > 0 {
		return meta.CacheStrategy.TTLHint
	}
	return DefaultCacheTTL
}
