package upstream

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound 表示所有上游都返回 404/410。
	ErrNotFound = errors.New("not found in any upstream")
	// ErrUnavailable 表示至少一个上游出现非 404 的失败，且没有上游返回成功。
	ErrUnavailable = errors.New("all upstreams failed")
)

// StatusError 记录上游返回的非成功状态码。
type StatusError struct {
	Status int
	URL    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream %s returned %d %s", e.URL, e.Status, http.StatusText(e.Status))
}

// NotFound 报告状态码是否代表文件不存在。
func (e *StatusError) NotFound() bool {
	return e.Status == http.StatusNotFound || e.Status == http.StatusGone
}

// IsNotFound 判断错误链中是否包含“上游不存在”的语义。
func IsNotFound(err error) bool {
	if errors.Is(err, ErrNotFound) {
		return true
	}
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.NotFound()
}
