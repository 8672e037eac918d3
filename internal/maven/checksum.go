package maven

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"hash"
	"io"
	"path"
	"strings"
)

var (
	// ErrInvalidChecksum 表示校验文件内容不是合法的十六进制摘要。
	ErrInvalidChecksum = errors.New("invalid checksum file")
	// ErrChecksumMismatch 表示下载内容与上游发布的校验值不一致。
	ErrChecksumMismatch = errors.New("checksum mismatch")
)

// ChecksumAlgorithm 是 Maven 仓库支持的校验文件类型。
type ChecksumAlgorithm string

const (
	ChecksumMD5    ChecksumAlgorithm = "md5"
	ChecksumSHA1   ChecksumAlgorithm = "sha1"
	ChecksumSHA256 ChecksumAlgorithm = "sha256"
	ChecksumSHA512 ChecksumAlgorithm = "sha512"
)

// Algorithms 按识别顺序列出所有校验算法。
var Algorithms = []ChecksumAlgorithm{ChecksumSHA1, ChecksumMD5, ChecksumSHA256, ChecksumSHA512}

// Extension 返回校验文件后缀，例如 .sha1。
func (a ChecksumAlgorithm) Extension() string {
	return "." + string(a)
}

func (a ChecksumAlgorithm) hexLength() int {
	switch a {
	case ChecksumMD5:
		return 32
	case ChecksumSHA1:
		return 40
	case ChecksumSHA256:
		return 64
	case ChecksumSHA512:
		return 128
	default:
		return 0
	}
}

// NewHash 返回对应算法的 hash.Hash，未知算法返回 nil。
func (a ChecksumAlgorithm) NewHash() hash.Hash {
	switch a {
	case ChecksumMD5:
		return md5.New()
	case ChecksumSHA1:
		return sha1.New()
	case ChecksumSHA256:
		return sha256.New()
	case ChecksumSHA512:
		return sha512.New()
	default:
		return nil
	}
}

// Digest 以指定算法计算 r 的小写十六进制摘要。
func Digest(algo ChecksumAlgorithm, r io.Reader) (string, error) {
	h := algo.NewHash()
	if h == nil {
		return "", ErrInvalidChecksum
	}
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func checksumForName(name string) (ChecksumAlgorithm, bool) {
	for _, algo := range Algorithms {
		ext := algo.Extension()
		if strings.HasSuffix(name, ext) && len(name) > len(ext) {
			return algo, true
		}
	}
	return "", false
}

// ParseChecksum 提取校验文件中的摘要，支持 "hex"、"hex  filename" 以及 BSD 风格 "SHA1 (file) = hex"。
func ParseChecksum(body []byte) (string, error) {
	text := strings.TrimSpace(string(body))
	if text == "" {
		return "", ErrInvalidChecksum
	}
	var candidate string
	if idx := strings.LastIndex(text, "="); idx >= 0 && strings.Contains(text[:idx], "(") {
		candidate = strings.TrimSpace(text[idx+1:])
	} else {
		candidate = strings.Fields(text)[0]
	}
	candidate = strings.ToLower(candidate)
	if !isHexDigest(candidate) {
		return "", ErrInvalidChecksum
	}
	return candidate, nil
}

// ParseChecksumFor 和 ParseChecksum 一样，但额外校验长度与算法匹配。
func ParseChecksumFor(algo ChecksumAlgorithm, body []byte) (string, error) {
	value, err := ParseChecksum(body)
	if err != nil {
		return "", err
	}
	if want := algo.hexLength(); want != 0 && len(value) != want {
		return "", ErrInvalidChecksum
	}
	return value, nil
}

// FormatChecksum 输出与 Maven Central 相同格式的校验文件内容（仅摘要，无换行）。
func FormatChecksum(hex string) []byte {
	return []byte(strings.ToLower(strings.TrimSpace(hex)))
}

// ChecksumEqual 忽略大小写比较两个摘要。
func ChecksumEqual(a, b string) bool {
	return a != "" && strings.EqualFold(a, b)
}

func isHexDigest(value string) bool {
	switch len(value) {
	case 32, 40, 64, 128:
	default:
		return false
	}
	for _, r := range value {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}

// ContentType 根据仓库文件后缀推断响应类型。
func ContentType(p string) string {
	name := path.Base(p)
	if _, ok := checksumForName(name); ok {
		return "text/plain; charset=utf-8"
	}
	switch strings.ToLower(path.Ext(name)) {
	case ".pom", ".xml":
		return "application/xml"
	case ".jar":
		return "application/java-archive"
	case ".war", ".ear", ".aar", ".zip":
		return "application/zip"
	case ".asc":
		return "application/pgp-signature"
	case ".module", ".json":
		return "application/json"
	case ".txt", ".properties":
		return "text/plain; charset=utf-8"
	case ".gz", ".tgz":
		return "application/gzip"
	default:
		return "application/octet-stream"
	}
}
