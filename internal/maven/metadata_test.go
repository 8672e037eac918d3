package maven

import (
	"bytes"
	"strings"
	"testing"
)

const centralMetadata = `<?xml version="1.0" encoding="UTF-8"?>
<metadata>
  <groupId>com.example</groupId>
  <artifactId>lib</artifactId>
  <versioning>
    <latest>1.2</latest>
    <release>1.2</release>
    <versions>
      <version>1.0</version>
      <version>1.2</version>
    </versions>
    <lastUpdated>20240101000000</lastUpdated>
  </versioning>
</metadata>`

const mirrorMetadata = `<?xml version="1.0" encoding="ISO-8859-1"?>
<metadata>
  <groupId>com.example</groupId>
  <artifactId>lib</artifactId>
  <versioning>
    <latest>2.0-SNAPSHOT</latest>
    <release>1.10</release>
    <versions>
      <version>1.10</version>
      <version>1.2</version>
      <version>2.0-SNAPSHOT</version>
    </versions>
    <lastUpdated>20240301000000</lastUpdated>
  </versioning>
</metadata>`

func TestParseAndMergeMetadata(t *testing.T) {
	a, err := ParseMetadata(strings.NewReader(centralMetadata))
	if err != nil {
		t.Fatalf("parse central: %v", err)
	}
	b, err := ParseMetadata(strings.NewReader(mirrorMetadata))
	if err != nil {
		t.Fatalf("parse mirror: %v", err)
	}

	merged := MergeMetadata(a, nil, b)
	if merged == nil || merged.Versioning == nil {
		t.Fatalf("expected merged metadata")
	}
	if merged.GroupID != "com.example" || merged.ArtifactID != "lib" {
		t.Fatalf("unexpected identity: %+v", merged)
	}
	got := strings.Join(merged.Versioning.Versions, ",")
	if got != "1.0,1.2,1.10,2.0-SNAPSHOT" {
		t.Fatalf("unexpected merged versions: %s", got)
	}
	if merged.Versioning.Latest != "2.0-SNAPSHOT" {
		t.Fatalf("unexpected latest: %s", merged.Versioning.Latest)
	}
	if merged.Versioning.Release != "1.10" {
		t.Fatalf("unexpected release: %s", merged.Versioning.Release)
	}
	if merged.Versioning.LastUpdated != "20240301000000" {
		t.Fatalf("unexpected lastUpdated: %s", merged.Versioning.LastUpdated)
	}
}

func TestMergeSnapshotVersions(t *testing.T) {
	older := &Metadata{
		GroupID: "com.example", ArtifactID: "lib", Version: "1.0-SNAPSHOT",
		Versioning: &Versioning{
			Snapshot: &Snapshot{Timestamp: "20240101.000000", BuildNumber: 1},
			SnapshotVersions: []SnapshotVersion{
				{Extension: "jar", Value: "1.0-20240101.000000-1", Updated: "20240101000000"},
				{Extension: "pom", Value: "1.0-20240101.000000-1", Updated: "20240101000000"},
			},
		},
	}
	newer := &Metadata{
		GroupID: "com.example", ArtifactID: "lib", Version: "1.0-SNAPSHOT",
		Versioning: &Versioning{
			Snapshot: &Snapshot{Timestamp: "20240202.000000", BuildNumber: 4},
			SnapshotVersions: []SnapshotVersion{
				{Extension: "jar", Value: "1.0-20240202.000000-4", Updated: "20240202000000"},
				{Classifier: "sources", Extension: "jar", Value: "1.0-20240202.000000-4", Updated: "20240202000000"},
			},
		},
	}

	merged := MergeMetadata(older, newer)
	if merged.Versioning.Snapshot == nil || merged.Versioning.Snapshot.BuildNumber != 4 {
		t.Fatalf("expected newest snapshot, got %+v", merged.Versioning.Snapshot)
	}
	if len(merged.Versioning.SnapshotVersions) != 3 {
		t.Fatalf("expected 3 snapshot versions, got %d", len(merged.Versioning.SnapshotVersions))
	}
	for _, sv := range merged.Versioning.SnapshotVersions {
		if sv.Extension == "jar" && sv.Classifier == "" && sv.Value != "1.0-20240202.000000-4" {
			t.Fatalf("jar snapshot not replaced by newer: %+v", sv)
		}
	}
}

func TestMergeMetadataPluginsAndNil(t *testing.T) {
	if MergeMetadata(nil, nil) != nil {
		t.Fatalf("merge of nils must be nil")
	}
	a := &Metadata{Plugins: []Plugin{{Prefix: "compiler", ArtifactID: "maven-compiler-plugin"}}}
	b := &Metadata{Plugins: []Plugin{{Prefix: "compiler", ArtifactID: "other"}, {Prefix: "jar", ArtifactID: "maven-jar-plugin"}}}
	merged := MergeMetadata(a, b)
	if len(merged.Plugins) != 2 || merged.Plugins[0].ArtifactID != "maven-compiler-plugin" {
		t.Fatalf("unexpected plugins: %+v", merged.Plugins)
	}
	if merged.Versioning != nil {
		t.Fatalf("group metadata should not gain versioning")
	}
}

func TestMetadataEncodeRoundTrip(t *testing.T) {
	meta, err := ParseMetadata(strings.NewReader(centralMetadata))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	body, err := meta.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !bytes.HasPrefix(body, []byte("<?xml")) {
		t.Fatalf("missing xml header: %s", body)
	}
	again, err := ParseMetadata(bytes.NewReader(body))
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	if len(again.Versioning.Versions) != 2 || again.Versioning.Release != "1.2" {
		t.Fatalf("round trip lost data: %+v", again.Versioning)
	}
}
