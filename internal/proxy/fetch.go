package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/any-hub/maven-hub/internal/cache"
	"github.com/any-hub/maven-hub/internal/config"
	"github.com/any-hub/maven-hub/internal/maven"
	"github.com/any-hub/maven-hub/internal/upstream"
)

const (
	// 校验文件只有一行摘要，超过该长度的响应一定不是合法的 .sha1。
	maxChecksumBytes = 4 << 10
	maxMetadataBytes = 16 << 20
	mergedUpstream   = "merged"
)

// errCacheWrite 表示上游成功但本地写缓存失败，此时不再尝试其他上游。
var errCacheWrite = errors.New("cache write failed")

type fillResult struct {
	entry    *cache.Entry
	upstream string
}

// fill 合并同一 Locator 的并发回源：领头请求使用脱离客户端的 ctx 下载并写缓存，
// 其余请求等待同一结果后各自从缓存读取。
func (h *Handler) fill(ctx context.Context, st *requestState) (*fillResult, error) {
	key := st.locator.HubName + "::" + st.locator.Path
	value, err, shared := h.fills.Do(key, func() (interface{}, error) {
		fillCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.fillTimeout)
		defer cancel()
		if h.isMergedMetadata(st) {
			return h.fillMergedMetadata(fillCtx, st)
		}
		return h.fillFromTargets(fillCtx, st)
	})
	if shared {
		h.logger.WithFields(logrus.Fields{
			"action":     "cache_fill",
			"hub":        st.route.Config.Name,
			"path":       st.req.Path,
			"request_id": st.requestID,
		}).Debug("fill_coalesced")
	}
	if err != nil {
		return nil, err
	}
	result := value.(*fillResult)
	h.negative.Clear(st.locator)
	return result, nil
}

func (h *Handler) fillFromTargets(ctx context.Context, st *requestState) (*fillResult, error) {
	targets := st.route.Targets
	if len(targets) == 0 {
		return nil, fmt.Errorf("%w: no upstream configured", upstream.ErrUnavailable)
	}

	var lastErr, mismatchErr error
	notFound := 0
	for i, target := range targets {
		result, err := h.fillFromTarget(ctx, st, target, i)
		if err == nil {
			return result, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, errCacheWrite) {
			return nil, err
		}
		switch {
		case upstream.IsNotFound(err):
			notFound++
		case errors.Is(err, maven.ErrChecksumMismatch):
			mismatchErr = err
		default:
			h.logger.WithFields(logrus.Fields{
				"action":   "upstream_failover",
				"hub":      st.route.Config.Name,
				"upstream": target.Name,
				"path":     st.req.Path,
			}).WithError(err).Warn("upstream_attempt_failed")
		}
		lastErr = err
	}

	if mismatchErr != nil {
		return nil, mismatchErr
	}
	if notFound == len(targets) {
		return nil, upstream.ErrNotFound
	}
	return nil, fmt.Errorf("%w: %w", upstream.ErrUnavailable, lastErr)
}

// fillFromTarget 从单个上游下载并写缓存；构件会先取同源 .sha1 用于流式校验。
func (h *Handler) fillFromTarget(ctx context.Context, st *requestState, target upstream.Target, index int) (*fillResult, error) {
	verify := st.policy.VerifyChecksum && st.req.Kind == maven.KindArtifact
	var expected string
	var checksumBody []byte
	if verify {
		expected, checksumBody = h.fetchExpectedChecksum(ctx, st, target, index)
	}

	result, err := h.fetcher.OpenTarget(ctx, target, index, h.upstreamRequest(st, http.MethodGet, st.req.Path))
	if err != nil {
		return nil, err
	}
	defer result.Close()

	resp := result.Response
	if resp.StatusCode != http.StatusOK {
		return nil, &upstream.StatusError{Status: resp.StatusCode, URL: result.URL.String()}
	}

	opts := cache.PutOptions{
		ModTime:     lastModified(resp.Header),
		ETag:        resp.Header.Get("ETag"),
		UpstreamURL: result.URL.String(),
	}
	if expected != "" {
		opts.Verify = h.checksumVerifier(st, result.URL.String(), expected)
	}

	entry, err := st.writer.Put(ctx, st.locator, resp.Body, opts)
	if err != nil {
		if errors.Is(err, maven.ErrChecksumMismatch) || ctx.Err() != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", errCacheWrite, err)
	}

	if checksumBody != nil {
		h.storeChecksumFile(ctx, st, checksumBody, opts.ModTime, result.URL.String())
	}
	return &fillResult{entry: entry, upstream: result.URL.String()}, nil
}

// fetchExpectedChecksum 读取同一上游的 .sha1；缺失或格式错误时返回空串，不阻断下载。
func (h *Handler) fetchExpectedChecksum(ctx context.Context, st *requestState, target upstream.Target, index int) (string, []byte) {
	checksumPath := st.req.Path + maven.ChecksumSHA1.Extension()
	fields := logrus.Fields{
		"action":   "checksum_fetch",
		"hub":      st.route.Config.Name,
		"upstream": target.Name,
		"path":     checksumPath,
	}

	result, err := h.fetcher.OpenTarget(ctx, target, index, h.upstreamRequest(st, http.MethodGet, checksumPath))
	if err != nil {
		if upstream.IsNotFound(err) {
			h.logger.WithFields(fields).Debug("checksum_unavailable")
		} else {
			h.logger.WithFields(fields).WithError(err).Warn("checksum_fetch_failed")
		}
		return "", nil
	}
	defer result.Close()

	body, err := io.ReadAll(io.LimitReader(result.Response.Body, maxChecksumBytes))
	if err != nil {
		h.logger.WithFields(fields).WithError(err).Warn("checksum_fetch_failed")
		return "", nil
	}
	digest, err := maven.ParseChecksumFor(maven.ChecksumSHA1, body)
	if err != nil {
		h.logger.WithFields(fields).WithError(err).Warn("checksum_invalid")
		return "", nil
	}
	return digest, body
}

func (h *Handler) checksumVerifier(st *requestState, url, expected string) func(cache.Digests) error {
	return func(digests cache.Digests) error {
		if maven.ChecksumEqual(digests.SHA1, expected) {
			return nil
		}
		fields := logrus.Fields{
			"action":     "checksum_verify",
			"hub":        st.route.Config.Name,
			"path":       st.req.Path,
			"upstream":   url,
			"expected":   expected,
			"actual":     digests.SHA1,
			"policy":     string(st.route.Config.ChecksumPolicy),
			"request_id": st.requestID,
		}
		if st.route.Config.ChecksumPolicy == config.ChecksumPolicyFail {
			h.logger.WithFields(fields).Error("checksum_mismatch")
			return fmt.Errorf("%w: %s expected sha1 %s, got %s", maven.ErrChecksumMismatch, url, expected, digests.SHA1)
		}
		h.logger.WithFields(fields).Warn("checksum_mismatch")
		return nil
	}
}

func (h *Handler) storeChecksumFile(ctx context.Context, st *requestState, body []byte, modTime time.Time, artifactURL string) {
	locator := cache.Locator{HubName: st.locator.HubName, Path: st.locator.Path + maven.ChecksumSHA1.Extension()}
	opts := cache.PutOptions{ModTime: modTime, UpstreamURL: artifactURL + maven.ChecksumSHA1.Extension()}
	if _, err := st.writer.Put(ctx, locator, bytes.NewReader(body), opts); err != nil {
		h.logger.WithFields(logrus.Fields{
			"action": "checksum_store",
			"hub":    st.route.Config.Name,
			"path":   locator.Path,
		}).WithError(err).Warn("cache_put_failed")
		return
	}
	h.negative.Clear(locator)
}

// fillMergedMetadata 并发读取所有上游的 metadata 并合并；全部 404 时才返回未找到。
func (h *Handler) fillMergedMetadata(ctx context.Context, st *requestState) (*fillResult, error) {
	targets := st.route.Targets
	docs := make([]*maven.Metadata, len(targets))
	modTimes := make([]time.Time, len(targets))
	errs := make([]error, len(targets))

	// 单个上游失败不取消其它上游，错误按下标记录在 errs 中。
	var g errgroup.Group
	for i, target := range targets {
		g.Go(func() error {
			result, err := h.fetcher.OpenTarget(ctx, target, i, h.upstreamRequest(st, http.MethodGet, st.req.Path))
			if err != nil {
				errs[i] = err
				return nil
			}
			defer result.Close()
			doc, err := maven.ParseMetadata(io.LimitReader(result.Response.Body, maxMetadataBytes))
			if err != nil {
				errs[i] = fmt.Errorf("parse metadata from %s: %w", result.URL, err)
				return nil
			}
			docs[i] = doc
			modTimes[i] = lastModified(result.Response.Header)
			return nil
		})
	}
	_ = g.Wait()

	present := make([]*maven.Metadata, 0, len(docs))
	var latest time.Time
	notFound := 0
	var lastErr error
	for i, doc := range docs {
		if doc != nil {
			present = append(present, doc)
			if modTimes[i].After(latest) {
				latest = modTimes[i]
			}
			continue
		}
		if upstream.IsNotFound(errs[i]) {
			notFound++
			continue
		}
		lastErr = errs[i]
		h.logger.WithFields(logrus.Fields{
			"action":   "metadata_merge",
			"hub":      st.route.Config.Name,
			"upstream": targets[i].Name,
			"path":     st.req.Path,
		}).WithError(errs[i]).Warn("upstream_attempt_failed")
	}

	if len(present) == 0 {
		if notFound == len(targets) {
			return nil, upstream.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %w", upstream.ErrUnavailable, lastErr)
	}

	body, err := maven.MergeMetadata(present...).Encode()
	if err != nil {
		return nil, fmt.Errorf("encode merged metadata: %w", err)
	}
	entry, err := st.writer.Put(ctx, st.locator, bytes.NewReader(body), cache.PutOptions{
		ModTime:     latest,
		UpstreamURL: mergedUpstream,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errCacheWrite, err)
	}
	return &fillResult{entry: entry, upstream: mergedUpstream}, nil
}

func (h *Handler) upstreamRequest(st *requestState, method, repoPath string) upstream.Request {
	return upstream.Request{
		Hub:      st.route.Config.Name,
		Method:   method,
		Path:     repoPath,
		Header:   st.header,
		Username: st.route.Config.Username,
		Password: st.route.Config.Password,
	}
}

// lastModified 解析上游 Last-Modified，缺失时返回零值由 Store 使用当前时间。
func lastModified(header http.Header) time.Time {
	if last := header.Get("Last-Modified"); last != "" {
		if parsed, err := http.ParseTime(last); err == nil {
			return parsed.UTC()
		}
	}
	return time.Time{}
}
