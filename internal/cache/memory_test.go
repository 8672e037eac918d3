package cache

import (
	"bytes"
	"context"
	"io"
	"os"
	"strings"
	"sync"
	"testing"
)

func TestMemoryStoreServesSmallEntriesFromMemory(t *testing.T) {
	disk := newTestStore(t)
	store, err := NewMemoryStore(disk, 1024, 64)
	if err != nil {
		t.Fatalf("memory store error: %v", err)
	}
	mem := store.(*MemoryStore)
	ctx := context.Background()
	locator := Locator{HubName: "central", Path: "/com/example/lib/maven-metadata.xml"}

	if _, err := store.Put(ctx, locator, bytes.NewReader([]byte("<metadata/>")), PutOptions{}); err != nil {
		t.Fatalf("put error: %v", err)
	}
	first := mustReadAll(t, store, locator)
	if first != "<metadata/>" {
		t.Fatalf("unexpected body: %s", first)
	}
	if usage := mem.MemoryUsage(); usage.Entries != 1 || usage.Bytes != int64(len(first)) {
		t.Fatalf("unexpected memory usage: %+v", usage)
	}

	// 删除磁盘文件后仍可从内存层读取。
	result, _ := disk.Get(ctx, locator)
	result.Reader.Close()
	if err := os.Remove(result.Entry.FilePath); err != nil {
		t.Fatalf("remove file error: %v", err)
	}
	if body := mustReadAll(t, store, locator); body != "<metadata/>" {
		t.Fatalf("expected memory hit, got %s", body)
	}
}

func TestMemoryStoreSkipsLargeEntries(t *testing.T) {
	disk := newTestStore(t)
	store, err := NewMemoryStore(disk, 1024, 4)
	if err != nil {
		t.Fatalf("memory store error: %v", err)
	}
	mem := store.(*MemoryStore)
	locator := Locator{HubName: "central", Path: "/big.jar"}
	if _, err := store.Put(context.Background(), locator, bytes.NewReader([]byte("0123456789")), PutOptions{}); err != nil {
		t.Fatalf("put error: %v", err)
	}
	if body := mustReadAll(t, store, locator); body != "0123456789" {
		t.Fatalf("unexpected body: %s", body)
	}
	if usage := mem.MemoryUsage(); usage.Entries != 0 {
		t.Fatalf("large entry should stay on disk: %+v", usage)
	}
}

func TestMemoryStoreEvictsByBytes(t *testing.T) {
	disk := newTestStore(t)
	store, err := NewMemoryStore(disk, 10, 10)
	if err != nil {
		t.Fatalf("memory store error: %v", err)
	}
	mem := store.(*MemoryStore)
	ctx := context.Background()
	for _, p := range []string{"/a", "/b", "/c"} {
		locator := Locator{HubName: "central", Path: p}
		if _, err := store.Put(ctx, locator, bytes.NewReader([]byte("12345")), PutOptions{}); err != nil {
			t.Fatalf("put error: %v", err)
		}
		mustReadAll(t, store, locator)
	}
	usage := mem.MemoryUsage()
	if usage.Bytes > 10 || usage.Entries != 2 {
		t.Fatalf("expected byte bound eviction, got %+v", usage)
	}
}

func TestMemoryStorePutInvalidatesAndRemovePrefix(t *testing.T) {
	disk := newTestStore(t)
	store, err := NewMemoryStore(disk, 1024, 64)
	if err != nil {
		t.Fatalf("memory store error: %v", err)
	}
	mem := store.(*MemoryStore)
	ctx := context.Background()
	locator := Locator{HubName: "central", Path: "/com/example/lib/maven-metadata.xml"}

	store.Put(ctx, locator, bytes.NewReader([]byte("v1")), PutOptions{})
	mustReadAll(t, store, locator)
	store.Put(ctx, locator, bytes.NewReader([]byte("v2")), PutOptions{})
	if body := mustReadAll(t, store, locator); body != "v2" {
		t.Fatalf("put must invalidate memory copy, got %s", body)
	}

	if err := store.Remove(ctx, Locator{HubName: "central", Path: "/com/example"}); err != nil {
		t.Fatalf("remove error: %v", err)
	}
	if usage := mem.MemoryUsage(); usage.Entries != 0 || usage.Bytes != 0 {
		t.Fatalf("prefix removal should drop memory entries: %+v", usage)
	}
}

func TestMemoryStoreConcurrentFirstReadsCountBytesOnce(t *testing.T) {
	disk := newTestStore(t)
	store, err := NewMemoryStore(disk, 4096, 2048)
	if err != nil {
		t.Fatalf("memory store error: %v", err)
	}
	mem := store.(*MemoryStore)
	ctx := context.Background()
	locator := Locator{HubName: "central", Path: "/com/example/lib/1.0/lib-1.0.pom"}
	body := strings.Repeat("p", 1000)

	for round := 0; round < 50; round++ {
		if _, err := store.Put(ctx, locator, strings.NewReader(body), PutOptions{}); err != nil {
			t.Fatalf("put error: %v", err)
		}
		var wg sync.WaitGroup
		for i := 0; i < 32; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				result, err := store.Get(ctx, locator)
				if err != nil {
					t.Errorf("get error: %v", err)
					return
				}
				io.Copy(io.Discard, result.Reader)
				result.Reader.Close()
			}()
		}
		wg.Wait()
		usage := mem.MemoryUsage()
		if usage.Entries > 1 || usage.Bytes != usage.Entries*int64(len(body)) {
			t.Fatalf("round %d: byte accounting drifted: %+v", round, usage)
		}
	}
}

func TestNewMemoryStoreDisabled(t *testing.T) {
	disk := newTestStore(t)
	store, err := NewMemoryStore(disk, 0, 0)
	if err != nil {
		t.Fatalf("memory store error: %v", err)
	}
	if store != disk {
		t.Fatalf("zero budget should return the backend unchanged")
	}
}

func mustReadAll(t *testing.T, store Store, locator Locator) string {
	t.Helper()
	result, err := store.Get(context.Background(), locator)
	if err != nil {
		t.Fatalf("get %s error: %v", locator.Path, err)
	}
	defer result.Reader.Close()
	body, err := io.ReadAll(result.Reader)
	if err != nil {
		t.Fatalf("read error: %v", err)
	}
	return string(body)
}
