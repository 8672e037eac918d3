package cache

import (
	"context"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/any-hub/maven-hub/internal/maven"
)

// NewStore 以 basePath 为根目录构建磁盘缓存，整站复用一份实例。
func NewStore(basePath string) (Store, error) {
	if basePath == "" {
		return nil, errors.New("storage path required")
	}

	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve storage path: %w", err)
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage path: %w", err)
	}

	return &fileStore{
		basePath: abs,
		locks:    make(map[string]*entryLock),
		now:      time.Now,
	}, nil
}

// fileStore 通过 entryLock 避免同一 Locator 并发写入，同时复用 basePath。
type fileStore struct {
	basePath string
	now      func() time.Time

	mu    sync.Mutex
	locks map[string]*entryLock
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

// sidecar 为 .maven-hub/<path>.json 的内容。
type sidecar struct {
	Size        int64     `json:"size"`
	ETag        string    `json:"etag,omitempty"`
	UpstreamURL string    `json:"upstream_url,omitempty"`
	Digests     Digests   `json:"digests"`
	FetchedAt   time.Time `json:"fetched_at"`
	ValidatedAt time.Time `json:"validated_at"`
}

func (s *fileStore) Get(ctx context.Context, locator Locator) (*ReadResult, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	filePath, metaPath, err := s.paths(locator)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.IsDir() {
		f.Close()
		return nil, ErrNotFound
	}

	entry := Entry{
		Locator:     locator,
		FilePath:    filePath,
		SizeBytes:   info.Size(),
		ModTime:     info.ModTime(),
		FetchedAt:   info.ModTime(),
		ValidatedAt: info.ModTime(),
	}
	// sidecar 缺失或与正文大小不符时只信任文件系统信息。
	if meta, err := readSidecar(metaPath); err == nil && meta.Size == info.Size() {
		entry.ETag = meta.ETag
		entry.UpstreamURL = meta.UpstreamURL
		entry.Digests = meta.Digests
		if !meta.FetchedAt.IsZero() {
			entry.FetchedAt = meta.FetchedAt
		}
		if !meta.ValidatedAt.IsZero() {
			entry.ValidatedAt = meta.ValidatedAt
		}
	}

	return &ReadResult{
		Entry:  entry,
		Reader: f,
	}, nil
}

func (s *fileStore) Put(ctx context.Context, locator Locator, body io.Reader, opts PutOptions) (*Entry, error) {
	filePath, metaPath, err := s.paths(locator)
	if err != nil {
		return nil, err
	}
	if filePath == s.hubRoot(locator.HubName) {
		return nil, ErrInvalidLocator
	}

	unlock := s.lockEntry(locator)
	defer unlock()

	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return nil, err
	}

	tempFile, err := os.CreateTemp(filepath.Dir(filePath), maven.TempPrefix+"*")
	if err != nil {
		return nil, err
	}
	tempName := tempFile.Name()

	sha1Hash := sha1.New()
	sha256Hash := sha256.New()
	written, err := copyWithContext(ctx, io.MultiWriter(tempFile, sha1Hash, sha256Hash), body)
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempName)
		return nil, err
	}

	digests := Digests{
		SHA1:   hex.EncodeToString(sha1Hash.Sum(nil)),
		SHA256: hex.EncodeToString(sha256Hash.Sum(nil)),
	}
	if opts.Verify != nil {
		if err := opts.Verify(digests); err != nil {
			os.Remove(tempName)
			return nil, err
		}
	}

	if err := os.Rename(tempName, filePath); err != nil {
		os.Remove(tempName)
		return nil, err
	}

	modTime := opts.ModTime
	if modTime.IsZero() {
		modTime = s.now().UTC()
	}
	if err := os.Chtimes(filePath, modTime, modTime); err != nil {
		return nil, err
	}

	fetchedAt := s.now().UTC()
	meta := sidecar{
		Size:        written,
		ETag:        opts.ETag,
		UpstreamURL: opts.UpstreamURL,
		Digests:     digests,
		FetchedAt:   fetchedAt,
		ValidatedAt: fetchedAt,
	}
	if err := writeSidecar(metaPath, meta); err != nil {
		return nil, err
	}

	entry := Entry{
		Locator:     locator,
		FilePath:    filePath,
		SizeBytes:   written,
		ModTime:     modTime,
		ETag:        opts.ETag,
		UpstreamURL: opts.UpstreamURL,
		Digests:     digests,
		FetchedAt:   fetchedAt,
		ValidatedAt: fetchedAt,
	}
	return &entry, nil
}

func (s *fileStore) Touch(ctx context.Context, locator Locator, validatedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	filePath, metaPath, err := s.paths(locator)
	if err != nil {
		return err
	}

	unlock := s.lockEntry(locator)
	defer unlock()

	info, err := os.Stat(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return err
	}
	if info.IsDir() {
		return ErrNotFound
	}

	meta, err := readSidecar(metaPath)
	if err != nil || meta.Size != info.Size() {
		meta = sidecar{Size: info.Size(), FetchedAt: info.ModTime().UTC()}
	}
	meta.ValidatedAt = validatedAt.UTC()
	return writeSidecar(metaPath, meta)
}

func (s *fileStore) Remove(ctx context.Context, locator Locator) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	filePath, metaPath, err := s.paths(locator)
	if err != nil {
		return err
	}

	unlock := s.lockEntry(locator)
	defer unlock()

	info, err := os.Stat(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	if info.IsDir() {
		if err := os.RemoveAll(filePath); err != nil {
			return err
		}
		metaDir := strings.TrimSuffix(metaPath, ".json")
		if filePath == s.hubRoot(locator.HubName) {
			metaDir = filepath.Join(filePath, maven.ReservedSegment)
		}
		return os.RemoveAll(metaDir)
	}

	if err := os.Remove(filePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err := os.Remove(metaPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (s *fileStore) Stats(ctx context.Context, hubName string) (Stats, error) {
	var stats Stats
	if !validHubName(hubName) {
		return stats, ErrInvalidLocator
	}
	root := s.hubRoot(hubName)
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == maven.ReservedSegment {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), maven.TempPrefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		stats.Entries++
		stats.Bytes += info.Size()
		return nil
	})
	return stats, err
}

func (s *fileStore) lockEntry(locator Locator) func() {
	key := locatorKey(locator)
	s.mu.Lock()
	lock := s.locks[key]
	if lock == nil {
		lock = &entryLock{}
		s.locks[key] = lock
	}
	lock.refs++
	s.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		s.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}
}

func (s *fileStore) hubRoot(hubName string) string {
	return filepath.Join(s.basePath, hubName)
}

// paths 返回正文与 sidecar 的绝对路径；路径必须落在 Hub 目录内且不得触及 sidecar 目录。
func (s *fileStore) paths(locator Locator) (string, string, error) {
	if !validHubName(locator.HubName) {
		return "", "", ErrInvalidLocator
	}

	rel := strings.TrimPrefix(path.Clean("/"+locator.Path), "/")
	for _, seg := range strings.Split(rel, "/") {
		if seg == maven.ReservedSegment || seg == ".." || strings.HasPrefix(seg, maven.TempPrefix) {
			return "", "", ErrInvalidLocator
		}
	}

	root := s.hubRoot(locator.HubName)
	if rel == "" {
		return root, filepath.Join(root, maven.ReservedSegment+".json"), nil
	}
	filePath := filepath.Join(root, filepath.FromSlash(rel))
	if !strings.HasPrefix(filePath, root+string(filepath.Separator)) {
		return "", "", ErrInvalidLocator
	}
	metaPath := filepath.Join(root, maven.ReservedSegment, filepath.FromSlash(rel)+".json")
	return filePath, metaPath, nil
}

func validHubName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`)
}

func readSidecar(metaPath string) (sidecar, error) {
	var meta sidecar
	data, err := os.ReadFile(metaPath)
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, err
	}
	return meta, nil
}

func writeSidecar(metaPath string, meta sidecar) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	dir := filepath.Dir(metaPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tempFile, err := os.CreateTemp(dir, maven.TempPrefix+"*")
	if err != nil {
		return err
	}
	tempName := tempFile.Name()
	_, err = tempFile.Write(data)
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempName)
		return err
	}
	if err := os.Rename(tempName, metaPath); err != nil {
		os.Remove(tempName)
		return err
	}
	return nil
}

func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	var copied int64
	buf := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			return copied, err
		}
		n, err := src.Read(buf)
		if n > 0 {
			w, wErr := dst.Write(buf[:n])
			copied += int64(w)
			if wErr != nil {
				return copied, wErr
			}
			if w < n {
				return copied, io.ErrShortWrite
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return copied, nil
			}
			return copied, err
		}
	}
}

func locatorKey(locator Locator) string {
	return locator.HubName + "::" + locator.Path
}
