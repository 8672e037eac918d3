package hubmodule

import "time"

// StrategyOptions 是 Hub 配置对模块默认策略的覆盖，零值表示沿用默认。
type StrategyOptions struct {
	TTLOverride        time.Duration
	ValidationOverride ValidationMode
}

// ResolveStrategy 合并模块默认值与 Hub 覆盖；非法的校验模式直接忽略。
func ResolveStrategy(meta ModuleMetadata, opts StrategyOptions) CacheStrategyProfile {
	profile := meta.CacheStrategy
	if opts.TTLOverride > 0 {
		profile.TTLHint = opts.TTLOverride
	}
	if opts.ValidationOverride.Valid() {
		profile.ValidationMode = opts.ValidationOverride
	}
	return normalizeStrategy(profile)
}

// Fresh 判断自 lastChecked 起是否仍在 TTL 内；TTL 为 0 时每次都需要再验证。
func (p CacheStrategyProfile) Fresh(lastChecked, now time.Time) bool {
	if p.TTLHint <= 0 {
		return false
	}
	return now.Before(lastChecked.Add(p.TTLHint))
}

// Revalidates 为 false 时过期条目直接重新下载，不发条件请求。
func (p CacheStrategyProfile) Revalidates() bool {
	return p.ValidationMode != ValidationModeNever
}

func normalizeStrategy(p CacheStrategyProfile) CacheStrategyProfile {
	p.TTLHint = max(p.TTLHint, 0)
	if p.ValidationMode == "" {
		p.ValidationMode = ValidationModeLastModified
	}
	if p.DiskLayout == "" {
		p.DiskLayout = DiskLayoutMaven2
	}
	return p
}
