package proxy

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/any-hub/maven-hub/internal/cache"
	"github.com/any-hub/maven-hub/internal/hubmodule"
	"github.com/any-hub/maven-hub/internal/upstream"
)

type revalidateOutcome int

const (
	revalidateFresh revalidateOutcome = iota
	revalidateChanged
	revalidateGone
)

// revalidate 向条目来源上游发送条件 HEAD，304 或校验器一致视为仍然新鲜。
func (h *Handler) revalidate(ctx context.Context, st *requestState, entry cache.Entry) (revalidateOutcome, error) {
	target, index := targetForEntry(st.route.Targets, entry.UpstreamURL)

	req := h.upstreamRequest(st, http.MethodHead, st.req.Path)
	header := st.header.Clone()
	if header == nil {
		header = http.Header{}
	}
	if st.writer.ValidationMode() == hubmodule.ValidationModeETag && entry.ETag != "" {
		header.Set("If-None-Match", entry.ETag)
	} else if !entry.ModTime.IsZero() {
		header.Set("If-Modified-Since", entry.ModTime.UTC().Format(http.TimeFormat))
	}
	req.Header = header

	result, err := h.fetcher.OpenTarget(ctx, target, index, req)
	if err != nil {
		if upstream.IsNotFound(err) {
			return revalidateGone, nil
		}
		return revalidateChanged, err
	}
	defer result.Close()

	resp := result.Response
	if resp.StatusCode == http.StatusNotModified {
		return revalidateFresh, nil
	}
	if etag := resp.Header.Get("ETag"); etag != "" && entry.ETag != "" {
		if sameETag(etag, entry.ETag) {
			return revalidateFresh, nil
		}
		return revalidateChanged, nil
	}
	if remote := lastModified(resp.Header); !remote.IsZero() && !entry.ModTime.IsZero() {
		// Last-Modified 只有秒级精度。
		if remote.After(entry.ModTime.Add(time.Second)) {
			return revalidateChanged, nil
		}
		if resp.ContentLength >= 0 && resp.ContentLength != entry.SizeBytes {
			return revalidateChanged, nil
		}
		return revalidateFresh, nil
	}
	return revalidateChanged, nil
}

// targetForEntry 选出写入该条目的上游，找不到时回退到首选上游。
func targetForEntry(targets []upstream.Target, upstreamURL string) (upstream.Target, int) {
	if upstreamURL != "" {
		for i, target := range targets {
			if target.BaseURL == nil {
				continue
			}
			prefix := strings.TrimSuffix(target.BaseURL.String(), "/") + "/"
			if strings.HasPrefix(upstreamURL, prefix) {
				return target, i
			}
		}
	}
	if len(targets) == 0 {
		return upstream.Target{}, 0
	}
	return targets[0], 0
}

func sameETag(a, b string) bool {
	return normalizeETag(a) == normalizeETag(b)
}

func normalizeETag(tag string) string {
	tag = strings.TrimSpace(tag)
	tag = strings.TrimPrefix(tag, "W/")
	return strings.Trim(tag, `"`)
}
