package maven

import (
	"errors"
	"strings"
	"testing"
)

func TestParseChecksumForms(t *testing.T) {
	const sha1 = "2fd4e1c67a2d28fced849ee1bb76e7391b93eb12"
	cases := []string{
		sha1,
		sha1 + "\n",
		"2FD4E1C67A2D28FCED849EE1BB76E7391B93EB12",
		sha1 + "  lib-1.0.jar",
		"SHA1 (lib-1.0.jar) = " + sha1,
	}
	for _, body := range cases {
		got, err := ParseChecksumFor(ChecksumSHA1, []byte(body))
		if err != nil {
			t.Fatalf("parse %q: %v", body, err)
		}
		if got != sha1 {
			t.Fatalf("parse %q: got %s", body, got)
		}
	}
}

func TestParseChecksumRejectsGarbage(t *testing.T) {
	for _, body := range []string{"", "   ", "<html>not found</html>", "xyz"} {
		if _, err := ParseChecksum([]byte(body)); !errors.Is(err, ErrInvalidChecksum) {
			t.Fatalf("expected ErrInvalidChecksum for %q, got %v", body, err)
		}
	}
	if _, err := ParseChecksumFor(ChecksumSHA256, []byte("2fd4e1c67a2d28fced849ee1bb76e7391b93eb12")); !errors.Is(err, ErrInvalidChecksum) {
		t.Fatalf("sha1 digest must not satisfy sha256")
	}
}

func TestDigestAllAlgorithms(t *testing.T) {
	want := map[ChecksumAlgorithm]string{
		ChecksumMD5:    "5d41402abc4b2a76b9719d911017c592",
		ChecksumSHA1:   "aaf4c61ddcc5e8a2dabede0f3b482cd9aea9434d",
		ChecksumSHA256: "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824",
	}
	for algo, digest := range want {
		got, err := Digest(algo, strings.NewReader("hello"))
		if err != nil {
			t.Fatalf("%s: %v", algo, err)
		}
		if got != digest {
			t.Fatalf("%s: got %s want %s", algo, got, digest)
		}
	}
	sha512, err := Digest(ChecksumSHA512, strings.NewReader("hello"))
	if err != nil || len(sha512) != 128 {
		t.Fatalf("unexpected sha512 digest %q err=%v", sha512, err)
	}
	if _, err := Digest("crc32", strings.NewReader("hello")); !errors.Is(err, ErrInvalidChecksum) {
		t.Fatalf("unknown algorithm should fail")
	}
}

func TestContentType(t *testing.T) {
	cases := map[string]string{
		"/a/b/1/b-1.pom":          "application/xml",
		"/a/b/1/b-1.jar":          "application/java-archive",
		"/a/b/1/b-1.jar.sha1":     "text/plain; charset=utf-8",
		"/a/b/1/b-1.jar.asc":      "application/pgp-signature",
		"/a/b/1/b-1.module":       "application/json",
		"/a/b/maven-metadata.xml": "application/xml",
		"/a/b/1/b-1.bin":          "application/octet-stream",
	}
	for path, want := range cases {
		if got := ContentType(path); got != want {
			t.Fatalf("ContentType(%s) = %s, want %s", path, got, want)
		}
	}
}
