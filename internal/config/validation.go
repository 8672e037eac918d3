package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/maven-hub/internal/hubmodule"
)

// Hub 名称同时用作 URL 前缀与缓存目录名。
var hubNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if g.LogLevel != "" {
		if _, err := logrus.ParseLevel(g.LogLevel); err != nil {
			return newFieldError("Global.LogLevel", "无法识别的日志级别 "+g.LogLevel)
		}
	}
	if g.StoragePath == "" {
		return newFieldError("Global.StoragePath", "不能为空")
	}
	if g.CacheTTL.DurationValue() < 0 {
		return newFieldError("Global.CacheTTL", "不能为负数（0 或不设置表示使用模块默认值）")
	}
	if g.MaxMemoryCache < 0 {
		return newFieldError("Global.MaxMemoryCacheSize", "不能为负数（0 表示关闭内存缓存）")
	}
	if g.MaxRetries < 0 {
		return newFieldError("Global.MaxRetries", "不能为负数")
	}
	if g.InitialBackoff.DurationValue() <= 0 {
		return newFieldError("Global.InitialBackoff", "必须大于 0")
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("Global.UpstreamTimeout", "必须大于 0")
	}
	if g.NotFoundTTL.DurationValue() < 0 {
		return newFieldError("Global.NotFoundTTL", "不能为负数（0 表示关闭负缓存）")
	}
	if g.ShutdownTimeout.DurationValue() <= 0 {
		return newFieldError("Global.ShutdownTimeout", "必须大于 0")
	}
	if (g.TLSCertFile == "") != (g.TLSKeyFile == "") {
		return newFieldError("Global.TLSCertFile/TLSKeyFile", "必须同时提供或同时留空")
	}
	if g.TLSEnabled() {
		for field, file := range map[string]string{"Global.TLSCertFile": g.TLSCertFile, "Global.TLSKeyFile": g.TLSKeyFile} {
			if _, err := os.Stat(file); err != nil {
				return newFieldError(field, fmt.Sprintf("无法读取 %s: %v", file, err))
			}
		}
	}

	if len(c.Hubs) == 0 {
		return errors.New("至少需要配置一个 Hub")
	}

	seenNames := map[string]struct{}{}
	seenDomains := map[string]string{}
	for i := range c.Hubs {
		hub := &c.Hubs[i]
		if hub.Name == "" {
			return newFieldError("Hub[].Name", "不能为空")
		}
		if !hubNamePattern.MatchString(hub.Name) {
			return newFieldError(hubField(hub.Name, "Name"), "仅允许字母、数字、点、下划线和中划线")
		}
		key := strings.ToLower(hub.Name)
		if _, exists := seenNames[key]; exists {
			return newFieldError(hubField(hub.Name, "Name"), "重复")
		}
		seenNames[key] = struct{}{}

		if hub.Domain != "" {
			if err := validateDomain(hub.Domain); err != nil {
				return fmt.Errorf("%s: %w", hubField(hub.Name, "Domain"), err)
			}
			if owner, exists := seenDomains[hub.Domain]; exists {
				return newFieldError(hubField(hub.Name, "Domain"), "与 Hub "+owner+" 重复")
			}
			seenDomains[hub.Domain] = hub.Name
		}

		normalizedType := strings.ToLower(strings.TrimSpace(hub.Type))
		if normalizedType == "" {
			return newFieldError(hubField(hub.Name, "Type"), "不能为空")
		}
		if _, ok := hubmodule.Resolve(normalizedType); !ok {
			return newFieldError(hubField(hub.Name, "Type"), "仅支持 "+strings.Join(hubmodule.Keys(), "|"))
		}
		hub.Type = normalizedType
		hub.Module = normalizedType

		if hub.ValidationMode != "" {
			mode := hubmodule.ValidationMode(strings.ToLower(strings.TrimSpace(hub.ValidationMode)))
			if !mode.Valid() {
				return newFieldError(hubField(hub.Name, "ValidationMode"), "仅支持 etag/last-modified/never")
			}
			hub.ValidationMode = string(mode)
		}

		switch hub.ChecksumPolicy {
		case "", ChecksumPolicyFail, ChecksumPolicyWarn, ChecksumPolicyIgnore:
		default:
			return newFieldError(hubField(hub.Name, "ChecksumPolicy"), "仅支持 fail/warn/ignore")
		}

		if (hub.Username == "") != (hub.Password == "") {
			return newFieldError(hubField(hub.Name, "Username/Password"), "必须同时提供或同时留空")
		}
		if err := validateUpstream(hub.Upstream); err != nil {
			return fmt.Errorf("%s: %w", hubField(hub.Name, "Upstream"), err)
		}
		for idx, mirror := range hub.Mirrors {
			if err := validateUpstream(strings.TrimSpace(mirror)); err != nil {
				return fmt.Errorf("%s: %w", hubField(hub.Name, fmt.Sprintf("Mirrors[%d]", idx)), err)
			}
		}
		if hub.Proxy != "" {
			if err := validateUpstream(hub.Proxy); err != nil {
				return fmt.Errorf("%s: %w", hubField(hub.Name, "Proxy"), err)
			}
		}
	}

	return nil
}

func validateDomain(domain string) error {
	if strings.Contains(domain, "/") {
		return errors.New("Domain 不允许包含路径")
	}
	if strings.Contains(domain, " ") {
		return errors.New("Domain 不允许包含空格")
	}
	if strings.HasPrefix(domain, "http") {
		return errors.New("Domain 不应包含协议头")
	}
	return nil
}

func validateUpstream(raw string) error {
	if raw == "" {
		return errors.New("缺少上游地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https，上游: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("上游缺少 Host: %s", raw)
	}
	return nil
}
