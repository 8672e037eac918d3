package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/maven-hub/internal/version"
)

// drainLimit 限制失败响应体的读取长度，便于连接复用又不被大错误页拖住。
const drainLimit = 64 << 10

// Target 描述一个上游仓库，只包含配置，不持有运行时状态。
type Target struct {
	Name     string
	BaseURL  *url.URL
	ProxyURL *url.URL
}

// Resolve 将仓库路径拼接到 BaseURL 的路径之后，保留 BaseURL 自带的前缀（如 /maven2）。
func (t Target) Resolve(repoPath string) *url.URL {
	u := *t.BaseURL
	u.Path = strings.TrimSuffix(t.BaseURL.Path, "/") + "/" + strings.TrimPrefix(repoPath, "/")
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""
	return &u
}

// Request 描述一次回源请求，Header 由调用方预先剔除 hop-by-hop 字段。
type Request struct {
	Hub      string
	Method   string
	Path     string
	Header   http.Header
	Username string
	Password string
}

// Result 是首个成功（2xx/304）的上游响应，调用方负责关闭 Response.Body。
type Result struct {
	Response *http.Response
	Target   Target
	Index    int
	URL      *url.URL
}

// Close 关闭响应体。
func (r *Result) Close() error {
	if r == nil || r.Response == nil || r.Response.Body == nil {
		return nil
	}
	return r.Response.Body.Close()
}

// Observer 在每次上游往返结束时被调用，status 为 HTTP 状态码或 "error"。
type Observer func(hub string, target Target, status string)

// Options 控制重试与观测行为。
type Options struct {
	MaxRetries     int
	InitialBackoff time.Duration
	Logger         *logrus.Logger
	Observer       Observer
}

// Fetcher 按优先级依次尝试上游，复用共享 http.Client，并为配置了代理的上游缓存独立 Transport。
type Fetcher struct {
	client     *http.Client
	maxRetries int
	backoff    time.Duration
	logger     *logrus.Logger
	observer   Observer

	mu      sync.Mutex
	proxied map[string]*http.Client
}

// NewFetcher 构造 Fetcher；client 为空时使用 http.DefaultClient。
func NewFetcher(client *http.Client, opts Options) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Fetcher{
		client:     client,
		maxRetries: opts.MaxRetries,
		backoff:    opts.InitialBackoff,
		logger:     logger,
		observer:   opts.Observer,
		proxied:    make(map[string]*http.Client),
	}
}

// Open 依次尝试 targets，返回第一个成功的响应。
// 全部 404/410 时返回 ErrNotFound，否则返回包裹最后一个错误的 ErrUnavailable。
func (f *Fetcher) Open(ctx context.Context, targets []Target, req Request) (*Result, error) {
	if len(targets) == 0 {
		return nil, fmt.Errorf("%w: no upstream configured", ErrUnavailable)
	}

	var lastErr error
	notFound := 0
	for i, target := range targets {
		result, err := f.OpenTarget(ctx, target, i, req)
		if err == nil {
			return result, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if IsNotFound(err) {
			notFound++
		} else {
			f.logger.WithFields(logrus.Fields{
				"action":   "upstream_failover",
				"hub":      req.Hub,
				"upstream": target.Name,
				"path":     req.Path,
			}).WithError(err).Warn("upstream_attempt_failed")
		}
		lastErr = err
	}

	if notFound == len(targets) {
		return nil, ErrNotFound
	}
	return nil, fmt.Errorf("%w: %w", ErrUnavailable, lastErr)
}

// OpenTarget 只访问单个上游（含重试），用于校验文件、再验证与并发 metadata 合并。
func (f *Fetcher) OpenTarget(ctx context.Context, target Target, index int, req Request) (*Result, error) {
	if target.BaseURL == nil {
		return nil, fmt.Errorf("upstream %s has no base url", target.Name)
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	endpoint := target.Resolve(req.Path)

	var result *Result
	err := Retry(ctx, f.maxRetries+1, f.backoff, func() error {
		resp, err := f.do(ctx, method, endpoint, target, req)
		if err != nil {
			f.observe(req.Hub, target, "error")
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return &RetryableError{Err: err}
		}
		f.observe(req.Hub, target, strconv.Itoa(resp.StatusCode))

		status := resp.StatusCode
		switch {
		case status == http.StatusNotModified || (status >= 200 && status < 300):
			result = &Result{Response: resp, Target: target, Index: index, URL: endpoint}
			return nil
		case status >= 500 || status == http.StatusTooManyRequests:
			discard(resp)
			return &RetryableError{Err: &StatusError{Status: status, URL: endpoint.String()}}
		default:
			discard(resp)
			return &StatusError{Status: status, URL: endpoint.String()}
		}
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (f *Fetcher) do(ctx context.Context, method string, endpoint *url.URL, target Target, req Request) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, method, endpoint.String(), nil)
	if err != nil {
		return nil, err
	}
	if req.Header != nil {
		httpReq.Header = req.Header.Clone()
	}
	// 交给 Transport 处理压缩，保证写入缓存的始终是原始字节。
	httpReq.Header.Del("Accept-Encoding")
	httpReq.Header.Del("Authorization")
	httpReq.Host = endpoint.Host
	if httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", version.UserAgent())
	}
	if req.Username != "" || req.Password != "" {
		httpReq.SetBasicAuth(req.Username, req.Password)
	}
	return f.clientFor(target).Do(httpReq)
}

func (f *Fetcher) clientFor(target Target) *http.Client {
	if target.ProxyURL == nil {
		return f.client
	}
	key := target.ProxyURL.String()

	f.mu.Lock()
	defer f.mu.Unlock()
	if client, ok := f.proxied[key]; ok {
		return client
	}
	transport := &http.Transport{}
	if base, ok := f.client.Transport.(*http.Transport); ok && base != nil {
		transport = base.Clone()
	}
	transport.Proxy = http.ProxyURL(target.ProxyURL)
	client := *f.client
	client.Transport = transport
	f.proxied[key] = &client
	return &client
}

func (f *Fetcher) observe(hub string, target Target, status string) {
	if f.observer != nil {
		f.observer(hub, target, status)
	}
}

func discard(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.CopyN(io.Discard, resp.Body, drainLimit)
	_ = resp.Body.Close()
}

// AsStatusError 返回错误链中的 StatusError（若存在）。
func AsStatusError(err error) (*StatusError, bool) {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr, true
	}
	return nil, false
}
