// Package metacache keeps a bounded, least-recently-used set of small
// immutable records (user and member profiles) so callers can skip a remote
// lookup. The cache never fetches on its own: a miss returns false and the
// caller is expected to load the record and Set it.
package metacache

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/exhibit/photocache/internal/logging"
	"github.com/exhibit/photocache/internal/lru"
	"github.com/exhibit/photocache/internal/metrics"
)

// DefaultCapacity 是未指定容量时的条目上限。
const DefaultCapacity = 100

// Record 约束可缓存的记录类型：必须提供稳定且唯一的标识。
type Record interface {
	CacheKey() string
}

// Cache 是并发安全的泛型 LRU 元数据缓存。所有操作（包括会刷新访问顺序的 Get）
// 都在同一把互斥锁内串行执行。
type Cache[T Record] struct {
	name    string
	mu      sync.Mutex
	index   *lru.Index[T]
	logger  logrus.FieldLogger
	metrics *metrics.Metrics
}

// Option 配置 Cache 的可选依赖。
type Option func(*options)

type options struct {
	name    string
	logger  logrus.FieldLogger
	metrics *metrics.Metrics
	now     func() time.Time
}

// WithName 设置日志与指标中使用的缓存名称，默认为 "metadata"。
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithLogger 注入日志；未设置时丢弃输出。
func WithLogger(logger logrus.FieldLogger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics 注入指标收集器。
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithClock 注入访问时间的时钟。
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New 创建容量为 capacity 的缓存，capacity <= 0 时使用 DefaultCapacity。
func New[T Record](capacity int, opts ...Option) *Cache[T] {
	o := options{name: metrics.CacheMetadata, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if o.logger == nil {
		o.logger = logging.Discard()
	}
	return &Cache[T]{
		name:    o.name,
		index:   lru.New[T](capacity, lru.WithClock(o.now)),
		logger:  o.logger,
		metrics: o.metrics,
	}
}

// Set 插入或替换记录，并在超出容量时淘汰最久未使用的条目。
func (c *Cache[T]) Set(record T) {
	key := record.CacheKey()

	c.mu.Lock()
	evicted := c.index.Put(key, record)
	size := c.index.Len()
	c.mu.Unlock()

	c.metrics.ObserveOperation(c.name, "set", "ok")
	for _, entry := range evicted {
		c.metrics.ObserveEvent(c.name, "evict", "capacity")
		c.logger.WithFields(logrus.Fields{
			"action":        "metadata_evict",
			"cache":         c.name,
			"key":           entry.Key,
			"last_accessed": entry.LastAccessed,
		}).Debug("metadata_evicted")
	}
	c.metrics.ObserveObjects(c.name, size)
}

// Get 返回缓存的记录，命中时刷新其访问时间；未命中时返回 false，不会回源。
func (c *Cache[T]) Get(id string) (T, bool) {
	c.mu.Lock()
	value, ok := c.index.Get(id)
	c.mu.Unlock()

	if ok {
		c.metrics.ObserveOperation(c.name, "get", "hit")
	} else {
		c.metrics.ObserveOperation(c.name, "get", "miss")
	}
	return value, ok
}

// GetAll 返回所有记录的快照，顺序不作保证，也不影响访问顺序。
func (c *Cache[T]) GetAll() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index.Values()
}

// Remove 删除单条记录。
func (c *Cache[T]) Remove(id string) bool {
	c.mu.Lock()
	removed := c.index.Remove(id)
	size := c.index.Len()
	c.mu.Unlock()

	c.metrics.ObserveObjects(c.name, size)
	return removed
}

// Clear 清空缓存，可重复调用。
func (c *Cache[T]) Clear() {
	c.mu.Lock()
	c.index.Clear()
	c.mu.Unlock()

	c.metrics.ObserveEvent(c.name, "clear", "explicit")
	c.metrics.ObserveObjects(c.name, 0)
}

// Len 返回当前条目数。
func (c *Cache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index.Len()
}

// Capacity 返回固定容量。
func (c *Cache[T]) Capacity() int {
	return c.index.Capacity()
}
