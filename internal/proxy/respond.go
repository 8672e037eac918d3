package proxy

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/maven-hub/internal/cache"
	"github.com/any-hub/maven-hub/internal/logging"
	"github.com/any-hub/maven-hub/internal/maven"
	"github.com/any-hub/maven-hub/internal/server"
	"github.com/any-hub/maven-hub/internal/upstream"
)

const (
	headerCacheHit  = "X-Maven-Hub-Cache-Hit"
	headerUpstream  = "X-Maven-Hub-Upstream"
	headerRequestID = "X-Request-ID"
)

// serveEntry 将缓存条目写回客户端，并处理客户端自身的条件请求。
func (h *Handler) serveEntry(c fiber.Ctx, st *requestState, cached *cache.ReadResult, hit string) error {
	entry := cached.Entry
	h.setEntryHeaders(c, st, entry, hit)

	if clientNotModified(c, entry) {
		cached.Reader.Close()
		c.Status(fiber.StatusNotModified)
		h.logResult(st, entry.UpstreamURL, fiber.StatusNotModified, hit, 0, nil)
		return nil
	}

	c.Status(fiber.StatusOK)
	if st.method == http.MethodHead {
		cached.Reader.Close()
		c.Response().Header.SetContentLength(int(entry.SizeBytes))
		h.logResult(st, entry.UpstreamURL, fiber.StatusOK, hit, 0, nil)
		return nil
	}

	h.logResult(st, entry.UpstreamURL, fiber.StatusOK, hit, entry.SizeBytes, nil)
	return c.SendStream(cached.Reader, int(entry.SizeBytes))
}

// serveFilled 重新从 Store 打开刚写入的条目，保证返回内容与落盘内容一致。
func (h *Handler) serveFilled(ctx context.Context, c fiber.Ctx, st *requestState, result *fillResult) error {
	cached, err := h.store.Get(ctx, st.locator)
	if err != nil {
		return h.writeError(c, st, fiber.StatusInternalServerError, "cache_read_failed", err)
	}
	if cached.Entry.UpstreamURL == "" && result != nil {
		cached.Entry.UpstreamURL = result.upstream
	}
	return h.serveEntry(c, st, cached, logging.CacheMiss)
}

func (h *Handler) setEntryHeaders(c fiber.Ctx, st *requestState, entry cache.Entry, hit string) {
	c.Set(fiber.HeaderContentType, h.contentType(st, st.req.Path))
	if !entry.ModTime.IsZero() {
		c.Set(fiber.HeaderLastModified, entry.ModTime.UTC().Format(http.TimeFormat))
	}
	if etag := entryETag(entry); etag != "" {
		c.Set(fiber.HeaderETag, etag)
	}
	if entry.Digests.SHA1 != "" {
		c.Set("X-Checksum-Sha1", entry.Digests.SHA1)
	}
	if entry.Digests.SHA256 != "" {
		c.Set("X-Checksum-Sha256", entry.Digests.SHA256)
	}
	c.Set(headerCacheHit, hit)
	if entry.UpstreamURL != "" {
		c.Set(headerUpstream, entry.UpstreamURL)
	}
	setRequestIDHeader(c, st.requestID)
}

// entryETag 优先使用正文 SHA-1 作为强校验器，与上游 ETag 格式无关。
func entryETag(entry cache.Entry) string {
	if entry.Digests.SHA1 != "" {
		return `"` + entry.Digests.SHA1 + `"`
	}
	return entry.ETag
}

func clientNotModified(c fiber.Ctx, entry cache.Entry) bool {
	if inm := c.Get(fiber.HeaderIfNoneMatch); inm != "" {
		etag := entryETag(entry)
		if etag == "" {
			return false
		}
		for _, candidate := range strings.Split(inm, ",") {
			candidate = strings.TrimSpace(candidate)
			if candidate == "*" || sameETag(candidate, etag) {
				return true
			}
		}
		return false
	}
	if ims := c.Get(fiber.HeaderIfModifiedSince); ims != "" && !entry.ModTime.IsZero() {
		since, err := http.ParseTime(ims)
		if err != nil {
			return false
		}
		return !entry.ModTime.Truncate(time.Second).After(since)
	}
	return false
}

func (h *Handler) contentType(st *requestState, p string) string {
	if st.hasHooks && st.hookDef.ContentType != nil {
		if ct := st.hookDef.ContentType(st.hookCtx, p); ct != "" {
			return ct
		}
	}
	return maven.ContentType(p)
}

// serveSynthesizedChecksum 基于已缓存的正文计算校验文件。refresh 为 true 时
// 正文（metadata）缺失或已过 TTL 会先回源刷新，刷新失败且允许时沿用旧正文。
func (h *Handler) serveSynthesizedChecksum(ctx context.Context, c fiber.Ctx, st *requestState, refresh bool) error {
	baseState, err := h.deriveState(st, st.req.Base)
	if err != nil {
		return h.writeError(c, st, fiber.StatusBadRequest, "invalid_path", err)
	}

	hit := logging.CacheHit
	base, err := h.store.Get(ctx, baseState.locator)
	if refresh && (err != nil || !baseState.writer.ShouldBypassValidation(base.Entry)) {
		_, fillErr := h.fill(ctx, baseState)
		switch {
		case fillErr == nil:
			if base != nil {
				base.Reader.Close()
			}
			base, err = h.store.Get(ctx, baseState.locator)
		case base != nil && h.serveStale && !errors.Is(fillErr, upstream.ErrNotFound):
			hit = logging.CacheStale
		default:
			if base != nil {
				base.Reader.Close()
			}
			return h.respondFillError(c, st, fillErr)
		}
	}
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			h.negative.Mark(st.locator)
			return h.writeNotFound(c, st, logging.CacheMiss)
		}
		return h.writeError(c, st, fiber.StatusInternalServerError, "cache_read_failed", err)
	}

	value, ok := base.Entry.Digests.Value(st.req.Algorithm)
	if !ok {
		value, err = maven.Digest(st.req.Algorithm, base.Reader)
	}
	base.Reader.Close()
	if err != nil {
		return h.writeError(c, st, fiber.StatusInternalServerError, "checksum_failed", err)
	}

	body := maven.FormatChecksum(value)
	c.Set(fiber.HeaderContentType, h.contentType(st, st.req.Path))
	if !base.Entry.ModTime.IsZero() {
		c.Set(fiber.HeaderLastModified, base.Entry.ModTime.UTC().Format(http.TimeFormat))
	}
	c.Set(headerCacheHit, hit)
	setRequestIDHeader(c, st.requestID)
	c.Status(fiber.StatusOK)
	if st.method == http.MethodHead {
		c.Response().Header.SetContentLength(len(body))
		h.logResult(st, "", fiber.StatusOK, hit, 0, nil)
		return nil
	}
	h.logResult(st, "", fiber.StatusOK, hit, int64(len(body)), nil)
	return c.SendStream(bytes.NewReader(body), len(body))
}

// deriveState 为同一请求的另一个仓库路径（如校验文件对应的正文）构造状态。
func (h *Handler) deriveState(st *requestState, repoPath string) (*requestState, error) {
	req, err := maven.ParsePath(repoPath)
	if err != nil {
		return nil, err
	}
	derived := *st
	derived.req = req
	derived.locator = cache.Locator{HubName: st.locator.HubName, Path: req.Path}
	derived.policy = h.cachePolicy(st.route, st.hookCtx, st.hookDef, st.hasHooks, req)
	return &derived, nil
}

// passthrough 不经过缓存直接转发上游响应，用于 HEAD 未命中与目录列表等。
func (h *Handler) passthrough(ctx context.Context, c fiber.Ctx, st *requestState) error {
	result, err := h.fetcher.Open(ctx, st.route.Targets, h.upstreamRequest(st, st.method, st.req.Path))
	if err != nil {
		if errors.Is(err, upstream.ErrNotFound) {
			if st.policy.AllowCache {
				h.negative.Mark(st.locator)
			}
			return h.writeNotFound(c, st, logging.CacheMiss)
		}
		return h.writeError(c, st, fiber.StatusBadGateway, "upstream_failed", err)
	}

	resp := result.Response
	for key, values := range resp.Header {
		if server.IsHopByHopHeader(key) || strings.EqualFold(key, fiber.HeaderContentLength) {
			continue
		}
		for _, value := range values {
			c.Response().Header.Add(key, value)
		}
	}
	if resp.Header.Get(fiber.HeaderContentType) == "" {
		c.Set(fiber.HeaderContentType, h.contentType(st, st.req.Path))
	}
	c.Set(headerCacheHit, logging.CacheMiss)
	c.Set(headerUpstream, result.URL.String())
	setRequestIDHeader(c, st.requestID)
	c.Status(resp.StatusCode)

	if st.method == http.MethodHead || resp.StatusCode == http.StatusNotModified {
		result.Close()
		if resp.ContentLength >= 0 {
			c.Response().Header.SetContentLength(int(resp.ContentLength))
		}
		h.logResult(st, result.URL.String(), resp.StatusCode, logging.CacheMiss, 0, nil)
		return nil
	}

	size := -1
	if resp.ContentLength >= 0 {
		size = int(resp.ContentLength)
	}
	h.logResult(st, result.URL.String(), resp.StatusCode, logging.CacheMiss, max(resp.ContentLength, 0), nil)
	return c.SendStream(resp.Body, size)
}

func (h *Handler) writeNotFound(c fiber.Ctx, st *requestState, hit string) error {
	c.Set(headerCacheHit, hit)
	setRequestIDHeader(c, st.requestID)
	h.logResult(st, "", fiber.StatusNotFound, hit, 0, nil)
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found"})
}

func (h *Handler) writeError(c fiber.Ctx, st *requestState, status int, code string, err error) error {
	setRequestIDHeader(c, st.requestID)
	h.logResult(st, "", status, logging.CacheMiss, 0, err)
	return c.Status(status).JSON(fiber.Map{"error": code})
}

func (h *Handler) logResult(st *requestState, upstreamURL string, status int, hit string, bytes int64, err error) {
	route := st.route
	var fields logrus.Fields
	if route != nil {
		fields = logging.RequestFields(route.Config, route.ModuleKey, hit)
	} else {
		fields = logrus.Fields{"cache_hit": hit}
	}
	fields["action"] = "proxy"
	fields["method"] = st.method
	fields["path"] = st.req.Path
	fields["status"] = status
	fields["elapsed_ms"] = time.Since(st.started).Milliseconds()
	if upstreamURL != "" {
		fields["upstream"] = upstreamURL
	}
	if st.requestID != "" {
		fields["request_id"] = st.requestID
	}

	result := hit
	if err != nil || status >= 500 {
		result = "error"
	}
	if route != nil {
		h.metrics.ObserveRequest(route.Config.Name, result, time.Since(st.started).Seconds(), bytes)
	}

	if err != nil {
		h.logger.WithFields(fields).WithError(err).Error("proxy_failed")
		return
	}
	h.logger.WithFields(fields).Info("proxy_complete")
}
