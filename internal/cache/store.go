package cache

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/any-hub/maven-hub/internal/maven"
)

// Store 负责管理磁盘缓存的读写。磁盘布局遵循：
//
//	<StoragePath>/<HubName>/<path>                   # 实际正文
//	<StoragePath>/<HubName>/.maven-hub/<path>.json   # sidecar：摘要、ETag、来源上游、校验时间
//
// 正文写入后不会原地修改；再验证成功只刷新 sidecar 中的 ValidatedAt。
type Store interface {
	// Get 返回一个可流式读取的缓存条目。若不存在则返回 ErrNotFound。
	Get(ctx context.Context, locator Locator) (*ReadResult, error)

	// Put 将上游响应写入缓存，并产出新的 Entry 描述。实现需通过临时文件 + rename
	// 保证写入原子性，写入过程中计算 SHA-1/SHA-256，opts.Verify 失败时丢弃临时文件并保留旧条目。
	Put(ctx context.Context, locator Locator, body io.Reader, opts PutOptions) (*Entry, error)

	// Touch 记录一次成功的再验证，正文保持不变。
	Touch(ctx context.Context, locator Locator, validatedAt time.Time) error

	// Remove 删除条目；Locator 指向目录时删除整棵子树，用于显式驱逐。
	Remove(ctx context.Context, locator Locator) error

	// Stats 汇总某个 Hub 的条目数量与占用字节。
	Stats(ctx context.Context, hubName string) (Stats, error)
}

// PutOptions 控制写入过程中的可选属性。
type PutOptions struct {
	ModTime     time.Time
	ETag        string
	UpstreamURL string
	// Verify 在提交前以流式计算出的摘要回调，返回错误即放弃写入。
	Verify func(Digests) error
}

// Locator 唯一定位一个缓存条目（Hub + 相对路径），所有路径均为 URL 路径风格。
type Locator struct {
	HubName string
	Path    string
}

// Digests 保存写入时计算出的摘要（小写十六进制）。
type Digests struct {
	SHA1   string `json:"sha1,omitempty"`
	SHA256 string `json:"sha256,omitempty"`
}

// Value 返回指定算法的摘要；md5/sha512 不在写入时计算。
func (d Digests) Value(algo maven.ChecksumAlgorithm) (string, bool) {
	switch algo {
	case maven.ChecksumSHA1:
		return d.SHA1, d.SHA1 != ""
	case maven.ChecksumSHA256:
		return d.SHA256, d.SHA256 != ""
	default:
		return "", false
	}
}

// Entry 表示一次缓存命中结果，包含绝对文件路径及文件信息。
type Entry struct {
	Locator     Locator   `json:"locator"`
	FilePath    string    `json:"file_path"`
	SizeBytes   int64     `json:"size_bytes"`
	ModTime     time.Time `json:"mod_time"`
	ETag        string    `json:"etag,omitempty"`
	UpstreamURL string    `json:"upstream_url,omitempty"`
	Digests     Digests   `json:"digests"`
	FetchedAt   time.Time `json:"fetched_at"`
	ValidatedAt time.Time `json:"validated_at"`
}

// LastChecked 返回条目最近一次与上游确认的时间。
func (e Entry) LastChecked() time.Time {
	if e.ValidatedAt.After(e.FetchedAt) {
		return e.ValidatedAt
	}
	return e.FetchedAt
}

// ReadResult 组合 Entry 与正文 Reader，便于代理层直接将 Body 流式返回。
type ReadResult struct {
	Entry  Entry
	Reader io.ReadSeekCloser
}

// Stats 是单个 Hub 的缓存占用概览。
type Stats struct {
	Entries int64 `json:"entries"`
	Bytes   int64 `json:"bytes"`
}

var (
	// ErrNotFound 表示缓存不存在。
	ErrNotFound = errors.New("cache entry not found")
	// ErrInvalidLocator 表示 Locator 无法安全映射到 Hub 目录内。
	ErrInvalidLocator = errors.New("invalid cache locator")
)
