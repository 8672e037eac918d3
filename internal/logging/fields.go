package logging

import (
	"github.com/sirupsen/logrus"

	"github.com/any-hub/maven-hub/internal/config"
)

// cache_hit 字段与 X-Maven-Hub-Cache-Hit 响应头共用这组取值。
const (
	CacheHit      = "true"
	CacheMiss     = "false"
	CacheStale    = "stale"
	CacheNegative = "negative"
)

// BaseFields 用于 CLI 生命周期日志（check_config/startup）。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{"action": action, "configPath": configPath}
}

// RequestFields 是每条代理日志都携带的 Hub 维度字段。
func RequestFields(hub config.HubConfig, moduleKey, cacheHit string) logrus.Fields {
	fields := logrus.Fields{
		"hub":        hub.Name,
		"hub_type":   hub.Type,
		"auth_mode":  hub.AuthMode(),
		"module_key": moduleKey,
		"cache_hit":  cacheHit,
	}
	if hub.Domain != "" {
		fields["domain"] = hub.Domain
	}
	return fields
}
