package datapack

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"treadmill/internal/common/cache"
	"treadmill/internal/common/storage"
	"treadmill/pkg/errors"
)

const (
	metaSuffix    = ".meta.json"
	lockKeyPrefix = "treadmill:datapack:lock:"
)

// objectMeta is the sidecar record written next to each cached file.
// The hash is computed over the materialized bytes, so a later hit can
// detect local corruption before the file reaches a sandbox.
type objectMeta struct {
	Key       string `json:"key"`
	SHA256    string `json:"sha256"`
	SizeBytes int64  `json:"size_bytes"`
}

// CacheConfig holds cache tunables.
type CacheConfig struct {
	RootDir  string
	Bucket   string
	MaxBytes int64
	LockTTL  time.Duration
	LockWait time.Duration
}

// Cache implements Provider by downloading objects into a local
// directory. Concurrent workers on one pack coordinate through a Redis
// lock; the loser polls the disk until the winner's copy appears.
// Objects stored with a .zst suffix are decompressed on the way down.
type Cache struct {
	rootDir  string
	bucket   string
	maxBytes int64
	lockTTL  time.Duration
	lockWait time.Duration
	storage  storage.ObjectStorage
	lock     cache.LockOps

	// trimMu serializes cache trims within one process.
	trimMu sync.Mutex
}

// NewCache creates a cache backed by object storage.
func NewCache(cfg CacheConfig, storageClient storage.ObjectStorage, lock cache.LockOps) *Cache {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 5 * time.Minute
	}
	if cfg.LockWait <= 0 {
		cfg.LockWait = 30 * time.Second
	}
	return &Cache{
		rootDir:  cfg.RootDir,
		bucket:   cfg.Bucket,
		maxBytes: cfg.MaxBytes,
		lockTTL:  cfg.LockTTL,
		lockWait: cfg.LockWait,
		storage:  storageClient,
		lock:     lock,
	}
}

func (c *Cache) EnsureObject(ctx context.Context, objectKey string) (string, error) {
	if c.storage == nil {
		return "", errors.New(errors.CacheError).WithMessage("storage client is not initialized")
	}
	if c.rootDir == "" {
		return "", errors.New(errors.CacheError).WithMessage("cache root is not configured")
	}

	rel, err := sanitizeKey(objectKey)
	if err != nil {
		return "", err
	}
	// Compressed objects materialize under their uncompressed name.
	localPath := filepath.Join(c.rootDir, strings.TrimSuffix(rel, ".zst"))

	if c.verifyLocal(localPath, objectKey) {
		now := time.Now()
		_ = os.Chtimes(localPath, now, now)
		return localPath, nil
	}

	if err := c.fetchLocked(ctx, objectKey, localPath); err != nil {
		return "", err
	}
	c.trim(localPath)
	return localPath, nil
}

// fetchLocked downloads the object under a per-key Redis lock. When the
// lock is already held, another worker is fetching the same object and
// this one waits for its copy to appear on disk.
func (c *Cache) fetchLocked(ctx context.Context, objectKey, localPath string) error {
	if c.lock == nil {
		return errors.New(errors.CacheError).WithMessage("lock client is not initialized")
	}

	lockKey := lockKeyPrefix + objectKey
	locked, err := c.lock.TryLock(ctx, lockKey, c.lockTTL)
	if err != nil {
		return errors.Wrapf(err, errors.LockFailed, "acquire datapack lock for %s", objectKey)
	}
	if !locked {
		return c.waitForPeer(ctx, objectKey, localPath)
	}
	defer func() {
		_ = c.lock.Unlock(context.WithoutCancel(ctx), lockKey)
	}()

	// A peer may have finished between our miss and the lock.
	if c.verifyLocal(localPath, objectKey) {
		return nil
	}
	return c.download(ctx, objectKey, localPath)
}

func (c *Cache) waitForPeer(ctx context.Context, objectKey, localPath string) error {
	deadline := time.Now().Add(c.lockWait)
	for {
		if c.verifyLocal(localPath, objectKey) {
			return nil
		}
		if time.Now().After(deadline) {
			return errors.Newf(errors.CacheError, "wait for datapack %s timed out", objectKey)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
}

// download streams the object into a temp file next to its final
// location, hashing the materialized bytes, then renames into place.
func (c *Cache) download(ctx context.Context, objectKey, localPath string) error {
	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return errors.Wrapf(err, errors.CacheError, "create cache dir for %s", objectKey)
	}

	reader, err := c.storage.GetObject(ctx, c.bucket, objectKey)
	if err != nil {
		return errors.Wrapf(err, errors.StorageError, "download %s", objectKey)
	}
	defer reader.Close()

	var stream io.Reader = reader
	var zr *zstd.Decoder
	if strings.HasSuffix(objectKey, ".zst") {
		zr, err = zstd.NewReader(reader)
		if err != nil {
			return errors.Wrapf(err, errors.StorageError, "open zstd stream for %s", objectKey)
		}
		defer zr.Close()
		stream = zr
	}

	tmp, err := os.CreateTemp(filepath.Dir(localPath), ".fetch-*")
	if err != nil {
		return errors.Wrapf(err, errors.CacheError, "create temp file for %s", objectKey)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	hasher := sha256.New()
	size, err := io.Copy(tmp, io.TeeReader(stream, hasher))
	if err != nil {
		_ = tmp.Close()
		return errors.Wrapf(err, errors.StorageError, "stream %s", objectKey)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, errors.CacheError, "close temp file for %s", objectKey)
	}

	meta := objectMeta{
		Key:       objectKey,
		SHA256:    hex.EncodeToString(hasher.Sum(nil)),
		SizeBytes: size,
	}
	metaBytes, _ := json.Marshal(meta)
	if err := os.WriteFile(localPath+metaSuffix, metaBytes, 0644); err != nil {
		return errors.Wrapf(err, errors.CacheError, "write meta for %s", objectKey)
	}
	if err := os.Rename(tmpPath, localPath); err != nil {
		return errors.Wrapf(err, errors.CacheError, "finalize %s", objectKey)
	}
	return nil
}

// verifyLocal reports whether the cached copy matches its sidecar
// record. Any mismatch reads as a miss and triggers a refetch.
func (c *Cache) verifyLocal(localPath, objectKey string) bool {
	metaBytes, err := os.ReadFile(localPath + metaSuffix)
	if err != nil {
		return false
	}
	var meta objectMeta
	if err := json.Unmarshal(metaBytes, &meta); err != nil || meta.Key != objectKey {
		return false
	}

	info, err := os.Stat(localPath)
	if err != nil || info.Size() != meta.SizeBytes {
		return false
	}

	file, err := os.Open(localPath)
	if err != nil {
		return false
	}
	defer file.Close()
	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return false
	}
	return hex.EncodeToString(hasher.Sum(nil)) == meta.SHA256
}

// trim evicts least-recently-used cached files until the cache fits the
// byte budget. Hits refresh mtimes, so mtime order is LRU order and
// survives worker restarts.
func (c *Cache) trim(keep string) {
	if c.maxBytes <= 0 {
		return
	}
	c.trimMu.Lock()
	defer c.trimMu.Unlock()

	type cached struct {
		path    string
		size    int64
		modTime time.Time
	}
	var files []cached
	var total int64
	_ = filepath.WalkDir(c.rootDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || strings.HasSuffix(p, metaSuffix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		files = append(files, cached{path: p, size: info.Size(), modTime: info.ModTime()})
		total += info.Size()
		return nil
	})
	if total <= c.maxBytes {
		return
	}

	sort.Slice(files, func(i, j int) bool { return files[i].modTime.Before(files[j].modTime) })
	for _, f := range files {
		if total <= c.maxBytes {
			break
		}
		if f.path == keep {
			continue
		}
		if err := os.Remove(f.path); err != nil {
			continue
		}
		_ = os.Remove(f.path + metaSuffix)
		total -= f.size
	}
}

var (
	_ Provider = (*S3FS)(nil)
	_ Provider = (*Cache)(nil)
	_ Provider = (*Fallback)(nil)
)
