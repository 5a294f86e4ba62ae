// Package blobcache turns a stable remote object key into a stable local file
// path. Resolution goes memory index, then disk by naming convention, then
// network: on a miss the cache asks the object store for a short-lived fetch
// URL, downloads the bytes, and renames them into place under the cache
// directory. Files survive restarts; the in-memory index is rebuilt lazily.
//
// Failures are never remembered. A key that failed once is fetched again on
// the next Resolve.
package blobcache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/exhibit/photocache/internal/cache"
	"github.com/exhibit/photocache/internal/logging"
	"github.com/exhibit/photocache/internal/lru"
	"github.com/exhibit/photocache/internal/metrics"
	"github.com/exhibit/photocache/internal/remote"
)

const (
	// DefaultDirName 是缓存根目录下的固定子目录名。
	DefaultDirName = "exhibition-images"
	// DefaultIndexCapacity 是内存索引的默认条目上限，淘汰只影响索引，不删除磁盘文件。
	DefaultIndexCapacity = 512
)

// Resolve 的命中来源，用于日志与指标。
const (
	sourceMemory = "memory"
	sourceDisk   = "disk"
	sourceRemote = "remote"
)

// Options 描述 Cache 的依赖与参数。Root 与 Store 至少提供一个。
type Options struct {
	// Root 是平台提供的 caches 根目录。
	Root string
	// DirName 是 Root 下的缓存子目录，默认 DefaultDirName。
	DirName string
	// Store 覆盖默认的磁盘存储，主要用于与其它组件共享同一个 Store。
	Store cache.Store

	Remote     remote.ObjectStore
	Downloader remote.Downloader

	Logger  logrus.FieldLogger
	Metrics *metrics.Metrics

	// IndexCapacity <= 0 时使用 DefaultIndexCapacity。
	IndexCapacity int
	// DisableDedupe 关闭同 key 并发下载合并，每个调用方独立下载（写入仍是原子的）。
	DisableDedupe bool
}

// Cache 持有 key → 本地路径的内存索引与磁盘目录。内存索引由 mu 串行保护，
// 网络与磁盘 I/O 均在锁外执行。
type Cache struct {
	store      cache.Store
	namespace  string
	remote     remote.ObjectStore
	downloader remote.Downloader
	logger     logrus.FieldLogger
	metrics    *metrics.Metrics
	dedupe     bool

	mu      sync.Mutex
	index   *lru.Index[string]
	flights map[string]*flight

	fetches singleflight.Group
}

// New 构建 blob 缓存并尝试创建缓存目录；目录创建失败只记录日志，后续 Resolve 会再次尝试。
func New(opts Options) (*Cache, error) {
	if opts.Remote == nil {
		return nil, errors.New("remote object store required")
	}

	store := opts.Store
	if store == nil {
		if opts.Root == "" {
			return nil, errors.New("cache root required")
		}
		var err error
		store, err = cache.NewStore(opts.Root)
		if err != nil {
			return nil, err
		}
	}

	namespace := opts.DirName
	if namespace == "" {
		namespace = DefaultDirName
	}
	downloader := opts.Downloader
	if downloader == nil {
		downloader = remote.NewHTTPDownloader(nil)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	capacity := opts.IndexCapacity
	if capacity <= 0 {
		capacity = DefaultIndexCapacity
	}

	c := &Cache{
		store:      store,
		namespace:  namespace,
		remote:     opts.Remote,
		downloader: downloader,
		logger:     logger,
		metrics:    opts.Metrics,
		dedupe:     !opts.DisableDedupe,
		index:      lru.New[string](capacity),
		flights:    make(map[string]*flight),
	}

	if dir, err := store.EnsureNamespace(namespace); err != nil {
		logger.WithError(err).WithFields(logrus.Fields{
			"action": "blobcache_init",
			"dir":    namespace,
		}).Warn("cache_dir_create_failed")
	} else {
		logger.WithFields(logrus.Fields{
			"action": "blobcache_init",
			"dir":    dir,
		}).Debug("cache_dir_ready")
	}
	return c, nil
}

// Resolve 返回 remoteKey 对应的本地文件路径，必要时下载并持久化。
// 所有失败都以 *CacheError 返回，且不会在索引中留下任何条目。
func (c *Cache) Resolve(ctx context.Context, remoteKey string) (string, error) {
	locator := cache.Locator{Namespace: c.namespace, Key: remoteKey}
	if _, err := c.store.Path(locator); err != nil {
		return "", &CacheError{Op: OpPath, Key: remoteKey, Err: err}
	}

	if path, ok := c.lookupMemory(remoteKey); ok {
		c.observe(remoteKey, sourceMemory)
		return path, nil
	}

	if path, ok, err := c.lookupDisk(ctx, locator); err != nil {
		return "", err
	} else if ok {
		c.observe(remoteKey, sourceDisk)
		return path, nil
	}

	var (
		path string
		err  error
	)
	if c.dedupe {
		path, err = c.fetchShared(ctx, locator)
	} else {
		path, err = c.fetch(ctx, locator)
	}
	if err != nil {
		c.metrics.ObserveOperation(metrics.CacheBlob, "resolve", "error")
		c.logger.WithError(err).WithFields(logging.BlobFields("blob_resolve", remoteKey, sourceRemote)).Warn("blob_resolve_failed")
		return "", err
	}
	return path, nil
}

// ClearCache 删除缓存目录下的全部文件并清空内存索引。失败只记录日志，从不返回错误。
func (c *Cache) ClearCache(ctx context.Context) {
	removed, err := c.store.Purge(ctx, c.namespace)

	c.mu.Lock()
	c.index.Clear()
	c.mu.Unlock()

	c.metrics.ObserveObjects(metrics.CacheBlob, 0)
	fields := logrus.Fields{
		"action":  "blobcache_clear",
		"dir":     c.namespace,
		"removed": removed,
	}
	if err != nil {
		c.metrics.ObserveEvent(metrics.CacheBlob, "purge", "error")
		c.logger.WithError(err).WithFields(fields).Warn("cache_clear_incomplete")
		return
	}
	c.metrics.ObserveEvent(metrics.CacheBlob, "purge", "ok")
	c.logger.WithFields(fields).Info("cache_cleared")
}

// Upload 上传本地文件到对象存储，并用同一份内容预热本地缓存，返回可下载的 URL。
// 预热失败只记录日志，不影响上传结果。
func (c *Cache) Upload(ctx context.Context, localFile, remoteKey string) (string, error) {
	uploaded, err := c.remote.Upload(ctx, localFile, remoteKey)
	if err != nil {
		return "", &CacheError{Op: OpUpload, Key: remoteKey, Err: err}
	}

	if err := c.prime(ctx, localFile, remoteKey); err != nil {
		c.logger.WithError(err).WithFields(logging.BlobFields("blob_upload", remoteKey, "local")).Warn("cache_prime_failed")
	}
	return uploaded.String(), nil
}

// Delete 删除远端对象并移除本地副本。远端删除失败时本地副本保持不变。
func (c *Cache) Delete(ctx context.Context, remoteKey string) error {
	if err := c.remote.Delete(ctx, remoteKey); err != nil {
		return &CacheError{Op: OpDelete, Key: remoteKey, Err: err}
	}
	c.forget(remoteKey)
	locator := cache.Locator{Namespace: c.namespace, Key: remoteKey}
	if err := c.store.Remove(ctx, locator); err != nil {
		c.logger.WithError(err).WithFields(logging.BlobFields("blob_delete", remoteKey, "local")).Warn("cache_remove_failed")
	}
	return nil
}

// Len 返回内存索引的条目数。
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index.Len()
}

// Path 返回 remoteKey 的确定性本地路径，不检查文件是否存在。
func (c *Cache) Path(remoteKey string) (string, error) {
	return c.store.Path(cache.Locator{Namespace: c.namespace, Key: remoteKey})
}

func (c *Cache) lookupMemory(key string) (string, bool) {
	c.mu.Lock()
	path, ok := c.index.Get(key)
	c.mu.Unlock()
	if !ok {
		return "", false
	}
	if fileExists(path) {
		return path, true
	}
	// 文件被外部删除：视为未命中。
	c.forget(key)
	c.logger.WithFields(logging.BlobFields("blob_resolve", key, sourceMemory)).Debug("indexed_file_missing")
	return "", false
}

func (c *Cache) lookupDisk(ctx context.Context, locator cache.Locator) (string, bool, error) {
	entry, err := c.store.Stat(ctx, locator)
	switch {
	case err == nil:
		c.register(locator.Key, entry.FilePath)
		return entry.FilePath, true, nil
	case errors.Is(err, cache.ErrNotFound):
		return "", false, nil
	case ctx.Err() != nil:
		return "", false, &CacheError{Op: OpDownload, Key: locator.Key, Err: ctx.Err()}
	default:
		c.logger.WithError(err).WithFields(logging.BlobFields("blob_resolve", locator.Key, sourceDisk)).Warn("cache_stat_failed")
		return "", false, nil
	}
}

// flight 是同 key 共享下载的上下文。下载与任何单个调用方的 ctx 解耦，
// 仅在全部等待者离开后取消。
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// fetchShared 合并同 key 的并发下载。调用方因自身 ctx 取消而提前返回，不影响其它等待者。
func (c *Cache) fetchShared(ctx context.Context, locator cache.Locator) (string, error) {
	key := locator.Key
	for {
		f := c.joinFlight(ctx, key)
		ch := c.fetches.DoChan(key, func() (any, error) {
			return c.fetch(f.ctx, locator)
		})

		select {
		case <-ctx.Done():
			c.leaveFlight(key, f)
			return "", &CacheError{Op: OpDownload, Key: key, Err: ctx.Err()}
		case res := <-ch:
			c.leaveFlight(key, f)
			if res.Err != nil {
				// 加入了一个因全部等待者离开而被取消的下载，自身 ctx 仍有效时重新发起。
				if errors.Is(res.Err, context.Canceled) && ctx.Err() == nil {
					continue
				}
				return "", res.Err
			}
			if res.Shared {
				c.metrics.ObserveOperation(metrics.CacheBlob, "resolve", "shared")
			}
			return res.Val.(string), nil
		}
	}
}

func (c *Cache) joinFlight(ctx context.Context, key string) *flight {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.flights[key]
	if !ok {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{ctx: fctx, cancel: cancel}
		c.flights[key] = f
	}
	f.waiters++
	return f
}

func (c *Cache) leaveFlight(key string, f *flight) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f.waiters--
	if f.waiters > 0 {
		return
	}
	f.cancel()
	if c.flights[key] == f {
		delete(c.flights, key)
	}
}

func (c *Cache) fetch(ctx context.Context, locator cache.Locator) (string, error) {
	key := locator.Key

	// 另一个调用方可能刚刚写完同一文件。
	if entry, err := c.store.Stat(ctx, locator); err == nil {
		c.register(key, entry.FilePath)
		c.observe(key, sourceDisk)
		return entry.FilePath, nil
	}

	target, err := c.remote.FetchURL(ctx, key)
	if err != nil {
		return "", &CacheError{Op: OpFetchURL, Key: key, Err: err}
	}

	body, err := c.downloader.Download(ctx, key, target)
	if err != nil {
		return "", &CacheError{Op: OpDownload, Key: key, Err: err}
	}
	defer body.Close()

	if _, err := c.store.EnsureNamespace(c.namespace); err != nil {
		return "", &CacheError{Op: OpMkdir, Key: key, Err: err}
	}

	entry, err := c.store.Put(ctx, locator, body, cache.PutOptions{})
	if err != nil {
		op := OpWrite
		if remote.IsTransport(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			op = OpDownload
		}
		return "", &CacheError{Op: op, Key: key, Err: err}
	}

	c.register(key, entry.FilePath)
	c.observe(key, sourceRemote)
	c.logger.WithFields(logging.BlobFields("blob_download", key, sourceRemote)).
		WithField("size_bytes", entry.SizeBytes).
		Debug("blob_cached")
	return entry.FilePath, nil
}

func (c *Cache) prime(ctx context.Context, localFile, key string) error {
	f, err := os.Open(localFile)
	if err != nil {
		return fmt.Errorf("open upload source: %w", err)
	}
	defer f.Close()

	entry, err := c.store.Put(ctx, cache.Locator{Namespace: c.namespace, Key: key}, f, cache.PutOptions{})
	if err != nil {
		return err
	}
	c.register(key, entry.FilePath)
	return nil
}

func (c *Cache) register(key, path string) {
	c.mu.Lock()
	evicted := c.index.Put(key, path)
	size := c.index.Len()
	c.mu.Unlock()

	for _, entry := range evicted {
		c.metrics.ObserveEvent(metrics.CacheBlob, "evict", "index_capacity")
		c.logger.WithFields(logging.BlobFields("blob_index_evict", entry.Key, sourceMemory)).Debug("blob_index_evicted")
	}
	c.metrics.ObserveObjects(metrics.CacheBlob, size)
}

func (c *Cache) forget(key string) {
	c.mu.Lock()
	c.index.Remove(key)
	size := c.index.Len()
	c.mu.Unlock()
	c.metrics.ObserveObjects(metrics.CacheBlob, size)
}

func (c *Cache) observe(key, source string) {
	c.metrics.ObserveOperation(metrics.CacheBlob, "resolve", source)
	c.logger.WithFields(logging.BlobFields("blob_resolve", key, source)).Debug("blob_resolved")
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
