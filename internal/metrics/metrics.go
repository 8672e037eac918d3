// Package metrics 暴露 Prometheus 计数器，供 /-/metrics 诊断端点抓取。
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "maven_hub"

// Recorder 持有独立的 Registry，测试之间互不影响。
type Recorder struct {
	registry *prometheus.Registry

	requests    *prometheus.CounterVec
	upstream    *prometheus.CounterVec
	servedBytes *prometheus.CounterVec
	duration    *prometheus.HistogramVec
}

// New 创建 Recorder 并注册 Go 运行时与进程指标。
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Proxy requests by hub and cache result.",
		}, []string{"hub", "result"}),
		upstream: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Upstream round trips by hub, upstream and status.",
		}, []string{"hub", "upstream", "status"}),
		servedBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "served_bytes_total",
			Help:      "Response body bytes written to clients.",
		}, []string{"hub"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Proxy request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"hub"}),
	}
	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.requests,
		r.upstream,
		r.servedBytes,
		r.duration,
	)
	return r
}

// ObserveRequest 记录一次代理请求；result 与 cache_hit 日志字段取值一致。
func (r *Recorder) ObserveRequest(hub, result string, seconds float64, bytes int64) {
	if r == nil {
		return
	}
	r.requests.WithLabelValues(hub, result).Inc()
	r.duration.WithLabelValues(hub).Observe(seconds)
	if bytes > 0 {
		r.servedBytes.WithLabelValues(hub).Add(float64(bytes))
	}
}

// ObserveUpstream 记录一次上游往返，status 为状态码或 "error"。
func (r *Recorder) ObserveUpstream(hub, upstream, status string) {
	if r == nil {
		return
	}
	r.upstream.WithLabelValues(hub, upstream, status).Inc()
}

// Handler 返回 Prometheus 文本格式的抓取端点。
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
