package main

import (
	"bytes"
	"path/filepath"
	"testing"
)

// go test 以包目录为工作目录，fixture 相对路径即可定位。
const fixtureDir = "internal/config/testdata"

func configFixture(t *testing.T, name string) string {
	t.Helper()
	path, err := filepath.Abs(filepath.Join(fixtureDir, name))
	if err != nil {
		t.Fatalf("resolve fixture %s: %v", name, err)
	}
	return path
}

// useBufferWriters 在测试期间把 CLI 输出重定向到内存。
func useBufferWriters(t *testing.T) {
	t.Helper()
	prevOut, prevErr := stdOut, stdErr
	stdOut, stdErr = &bytes.Buffer{}, &bytes.Buffer{}
	t.Cleanup(func() { stdOut, stdErr = prevOut, prevErr })
}

func stdOutBuffer() *bytes.Buffer { return stdOut.(*bytes.Buffer) }

func stdErrBuffer() *bytes.Buffer { return stdErr.(*bytes.Buffer) }
