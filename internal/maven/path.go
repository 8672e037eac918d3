package maven

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ReservedSegment 是缓存目录中存放 sidecar 元数据的目录名，请求路径不允许出现。
const ReservedSegment = ".maven-hub"

// TempPrefix 是缓存写入中途的临时文件前缀，同样不能被请求到。
const TempPrefix = ".cache-"

// ErrInvalidPath 表示请求路径无法安全映射到仓库布局（如包含 ..）。
var ErrInvalidPath = errors.New("invalid maven path")

// Kind 描述请求文件在 Maven 仓库中的角色，决定缓存与校验策略。
type Kind string

const (
	KindArtifact  Kind = "artifact"
	KindMetadata  Kind = "metadata"
	KindChecksum  Kind = "checksum"
	KindSignature Kind = "signature"
	KindListing   Kind = "listing"
	KindOther     Kind = "other"
)

const snapshotSuffix = "-SNAPSHOT"

// 时间戳快照文件名中的版本片段，例如 1.0-20240101.123456-3。
var timestampPattern = regexp.MustCompile(`^(\d{8}\.\d{6})-(\d+)`)

// Coordinate 唯一标识仓库中的一个文件。
type Coordinate struct {
	GroupID    string
	ArtifactID string
	// Version 是文件名中的版本；时间戳快照时与 BaseVersion 不同。
	Version string
	// BaseVersion 是目录层级中的版本，例如 1.0-SNAPSHOT。
	BaseVersion string
	Classifier  string
	Extension   string
}

// IsSnapshot 报告坐标是否属于 SNAPSHOT 版本。
func (c Coordinate) IsSnapshot() bool {
	return strings.HasSuffix(c.baseVersion(), snapshotSuffix)
}

func (c Coordinate) baseVersion() string {
	if c.BaseVersion != "" {
		return c.BaseVersion
	}
	return c.Version
}

// FileName 返回 <artifactId>-<version>[-<classifier>].<ext>。
func (c Coordinate) FileName() string {
	name := c.ArtifactID + "-" + c.Version
	if c.Classifier != "" {
		name += "-" + c.Classifier
	}
	return name + "." + c.Extension
}

// Path 返回坐标在仓库中的规范路径（以 / 开头）。
func (c Coordinate) Path() string {
	return "/" + strings.ReplaceAll(c.GroupID, ".", "/") + "/" + c.ArtifactID + "/" + c.baseVersion() + "/" + c.FileName()
}

// String 输出 group:artifact:ext[:classifier]:version，和 Maven CLI 的写法一致。
func (c Coordinate) String() string {
	if c.Classifier != "" {
		return fmt.Sprintf("%s:%s:%s:%s:%s", c.GroupID, c.ArtifactID, c.Extension, c.Classifier, c.Version)
	}
	return fmt.Sprintf("%s:%s:%s:%s", c.GroupID, c.ArtifactID, c.Extension, c.Version)
}

// Request 是一次请求路径的解析结果。
type Request struct {
	// Path 是清理后的仓库路径，始终以 / 开头；目录请求以 / 结尾。
	Path string
	Kind Kind
	// Coordinate 仅在路径（或校验/签名文件的 Base）可以识别为构件时非空。
	Coordinate *Coordinate
	// Base 是校验文件或签名文件所描述的原始文件路径。
	Base      string
	Algorithm ChecksumAlgorithm
	Snapshot  bool
}

// Immutable 报告该文件在上游发布后是否永不变化，正式版本构件及其校验/签名满足该条件。
func (r Request) Immutable() bool {
	switch r.Kind {
	case KindArtifact, KindChecksum, KindSignature:
		return r.Coordinate != nil && !r.Snapshot
	default:
		return false
	}
}

// ParsePath 解析仓库相对路径并识别文件类型。
func ParsePath(raw string) (Request, error) {
	if raw == "" || strings.ContainsRune(raw, 0) {
		return Request{}, ErrInvalidPath
	}
	listing := strings.HasSuffix(raw, "/")

	var segments []string
	for _, seg := range strings.Split(raw, "/") {
		switch seg {
		case "", ".":
			continue
		case "..", ReservedSegment:
			return Request{}, ErrInvalidPath
		}
		if strings.HasPrefix(seg, TempPrefix) {
			return Request{}, ErrInvalidPath
		}
		segments = append(segments, seg)
	}

	if len(segments) == 0 {
		return Request{Path: "/", Kind: KindListing}, nil
	}
	clean := "/" + strings.Join(segments, "/")
	if listing {
		return Request{Path: clean + "/", Kind: KindListing}, nil
	}

	req := Request{Path: clean, Kind: KindOther}
	name := segments[len(segments)-1]

	if algo, ok := checksumForName(name); ok {
		req.Kind = KindChecksum
		req.Algorithm = algo
		req.Base = strings.TrimSuffix(clean, algo.Extension())
		baseName := strings.TrimSuffix(name, algo.Extension())
		// 签名文件的校验：坐标取被签名的构件。
		if strings.HasSuffix(baseName, signatureExtension) {
			baseName = strings.TrimSuffix(baseName, signatureExtension)
		}
		base := classifyFile(segments[:len(segments)-1], baseName)
		req.Coordinate = base.Coordinate
		req.Snapshot = base.Snapshot
		return req, nil
	}

	if strings.HasSuffix(name, signatureExtension) && len(name) > len(signatureExtension) {
		req.Kind = KindSignature
		req.Base = strings.TrimSuffix(clean, signatureExtension)
		base := classifyFile(segments[:len(segments)-1], strings.TrimSuffix(name, signatureExtension))
		req.Coordinate = base.Coordinate
		req.Snapshot = base.Snapshot
		return req, nil
	}

	classified := classifyFile(segments[:len(segments)-1], name)
	req.Kind = classified.Kind
	req.Coordinate = classified.Coordinate
	req.Snapshot = classified.Snapshot
	return req, nil
}

const signatureExtension = ".asc"

type classification struct {
	Kind       Kind
	Coordinate *Coordinate
	Snapshot   bool
}

// classifyFile 在不考虑校验后缀的前提下识别 dirs/name 对应的文件。
func classifyFile(dirs []string, name string) classification {
	if isMetadataName(name) {
		snapshot := len(dirs) > 0 && strings.HasSuffix(dirs[len(dirs)-1], snapshotSuffix)
		return classification{Kind: KindMetadata, Snapshot: snapshot}
	}

	// 至少需要 group/artifact/version 三级目录。
	if len(dirs) < 3 {
		return classification{Kind: KindOther}
	}
	baseVersion := dirs[len(dirs)-1]
	artifactID := dirs[len(dirs)-2]
	groupID := strings.Join(dirs[:len(dirs)-2], ".")

	prefix := artifactID + "-"
	if !strings.HasPrefix(name, prefix) {
		return classification{Kind: KindOther}
	}
	rest := name[len(prefix):]

	fileVersion, tail, ok := splitVersion(rest, baseVersion)
	if !ok {
		return classification{Kind: KindOther}
	}

	var classifier, extension string
	switch {
	case strings.HasPrefix(tail, "-"):
		idx := strings.Index(tail, ".")
		if idx < 0 {
			return classification{Kind: KindOther}
		}
		classifier = tail[1:idx]
		extension = tail[idx+1:]
	case strings.HasPrefix(tail, "."):
		extension = tail[1:]
	default:
		return classification{Kind: KindOther}
	}
	if extension == "" {
		return classification{Kind: KindOther}
	}

	coord := &Coordinate{
		GroupID:     groupID,
		ArtifactID:  artifactID,
		Version:     fileVersion,
		BaseVersion: baseVersion,
		Classifier:  classifier,
		Extension:   extension,
	}
	return classification{Kind: KindArtifact, Coordinate: coord, Snapshot: coord.IsSnapshot()}
}

// splitVersion 从 "<version>[-classifier].ext" 中切出版本部分，兼容时间戳快照。
func splitVersion(rest, baseVersion string) (string, string, bool) {
	if strings.HasPrefix(rest, baseVersion) {
		tail := rest[len(baseVersion):]
		if strings.HasPrefix(tail, ".") || strings.HasPrefix(tail, "-") {
			return baseVersion, tail, true
		}
	}
	if !strings.HasSuffix(baseVersion, snapshotSuffix) {
		return "", "", false
	}
	stem := strings.TrimSuffix(baseVersion, "SNAPSHOT")
	if !strings.HasPrefix(rest, stem) {
		return "", "", false
	}
	match := timestampPattern.FindString(rest[len(stem):])
	if match == "" {
		return "", "", false
	}
	version := stem + match
	return version, rest[len(version):], true
}

func isMetadataName(name string) bool {
	if name == "maven-metadata.xml" {
		return true
	}
	return strings.HasPrefix(name, "maven-metadata-") && strings.HasSuffix(name, ".xml")
}
