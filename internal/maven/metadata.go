package maven

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strings"
)

// Metadata 对应 maven-metadata.xml，覆盖 artifact、版本快照以及 group 插件三种层级。
type Metadata struct {
	XMLName      xml.Name    `xml:"metadata"`
	ModelVersion string      `xml:"modelVersion,attr,omitempty"`
	GroupID      string      `xml:"groupId,omitempty"`
	ArtifactID   string      `xml:"artifactId,omitempty"`
	Version      string      `xml:"version,omitempty"`
	Versioning   *Versioning `xml:"versioning,omitempty"`
	Plugins      []Plugin    `xml:"plugins>plugin,omitempty"`
}

type Versioning struct {
	Latest           string            `xml:"latest,omitempty"`
	Release          string            `xml:"release,omitempty"`
	Snapshot         *Snapshot         `xml:"snapshot,omitempty"`
	Versions         []string          `xml:"versions>version,omitempty"`
	LastUpdated      string            `xml:"lastUpdated,omitempty"`
	SnapshotVersions []SnapshotVersion `xml:"snapshotVersions>snapshotVersion,omitempty"`
}

type Snapshot struct {
	Timestamp   string `xml:"timestamp,omitempty"`
	BuildNumber int    `xml:"buildNumber,omitempty"`
	LocalCopy   bool   `xml:"localCopy,omitempty"`
}

type SnapshotVersion struct {
	Classifier string `xml:"classifier,omitempty"`
	Extension  string `xml:"extension,omitempty"`
	Value      string `xml:"value,omitempty"`
	Updated    string `xml:"updated,omitempty"`
}

type Plugin struct {
	Name       string `xml:"name,omitempty"`
	Prefix     string `xml:"prefix"`
	ArtifactID string `xml:"artifactId"`
}

// ParseMetadata 解码 maven-metadata.xml。部分老仓库声明 ISO-8859-1，这里按原样读取。
func ParseMetadata(r io.Reader) (*Metadata, error) {
	decoder := xml.NewDecoder(r)
	decoder.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) {
		return input, nil
	}
	var meta Metadata
	if err := decoder.Decode(&meta); err != nil {
		return nil, fmt.Errorf("decode maven metadata: %w", err)
	}
	return &meta, nil
}

// Encode 输出带 XML 声明的缩进文档。
func (m *Metadata) Encode() ([]byte, error) {
	body, err := xml.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode maven metadata: %w", err)
	}
	var buf bytes.Buffer
	buf.Grow(len(xml.Header) + len(body) + 1)
	buf.WriteString(xml.Header)
	buf.Write(body)
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// MergeMetadata 合并多个上游返回的同一 metadata 文档，nil 会被跳过；全部为 nil 时返回 nil。
func MergeMetadata(docs ...*Metadata) *Metadata {
	var merged *Metadata
	versionSet := make(map[string]struct{})
	var versions []string
	snapshotIndex := make(map[string]int)
	var snapshotVersions []SnapshotVersion
	pluginSet := make(map[string]struct{})
	var latest, release, lastUpdated string
	var snapshot *Snapshot

	for _, doc := range docs {
		if doc == nil {
			continue
		}
		if merged == nil {
			merged = &Metadata{}
		}
		if merged.ModelVersion == "" {
			merged.ModelVersion = doc.ModelVersion
		}
		if merged.GroupID == "" {
			merged.GroupID = doc.GroupID
		}
		if merged.ArtifactID == "" {
			merged.ArtifactID = doc.ArtifactID
		}
		if merged.Version == "" {
			merged.Version = doc.Version
		}
		for _, plugin := range doc.Plugins {
			if _, ok := pluginSet[plugin.Prefix]; ok {
				continue
			}
			pluginSet[plugin.Prefix] = struct{}{}
			merged.Plugins = append(merged.Plugins, plugin)
		}

		v := doc.Versioning
		if v == nil {
			continue
		}
		latest = maxVersion(latest, v.Latest)
		release = maxVersion(release, v.Release)
		if v.LastUpdated > lastUpdated {
			lastUpdated = v.LastUpdated
		}
		for _, version := range v.Versions {
			version = strings.TrimSpace(version)
			if version == "" {
				continue
			}
			latest = maxVersion(latest, version)
			if !strings.HasSuffix(version, snapshotSuffix) {
				release = maxVersion(release, version)
			}
			if _, ok := versionSet[version]; ok {
				continue
			}
			versionSet[version] = struct{}{}
			versions = append(versions, version)
		}
		if v.Snapshot != nil && newerSnapshot(v.Snapshot, snapshot) {
			copied := *v.Snapshot
			snapshot = &copied
		}
		for _, sv := range v.SnapshotVersions {
			key := sv.Classifier + "|" + sv.Extension
			if idx, ok := snapshotIndex[key]; ok {
				if sv.Updated > snapshotVersions[idx].Updated {
					snapshotVersions[idx] = sv
				}
				continue
			}
			snapshotIndex[key] = len(snapshotVersions)
			snapshotVersions = append(snapshotVersions, sv)
		}
	}

	if merged == nil {
		return nil
	}
	sort.SliceStable(versions, func(i, j int) bool {
		return CompareVersions(versions[i], versions[j]) < 0
	})
	if latest != "" || release != "" || lastUpdated != "" || len(versions) > 0 || snapshot != nil || len(snapshotVersions) > 0 {
		merged.Versioning = &Versioning{
			Latest:           latest,
			Release:          release,
			Snapshot:         snapshot,
			Versions:         versions,
			LastUpdated:      lastUpdated,
			SnapshotVersions: snapshotVersions,
		}
	}
	return merged
}

func maxVersion(current, candidate string) string {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return current
	}
	if current == "" || CompareVersions(candidate, current) > 0 {
		return candidate
	}
	return current
}

func newerSnapshot(candidate, current *Snapshot) bool {
	if current == nil {
		return true
	}
	if candidate.Timestamp != current.Timestamp {
		return candidate.Timestamp > current.Timestamp
	}
	return candidate.BuildNumber > current.BuildNumber
}
