package lru

import (
	"container/list"
	"time"
)

// Entry 描述索引中的一条记录，LastAccessed 在每次读写时刷新。
type Entry[V any] struct {
	Key          string
	Value        V
	LastAccessed time.Time
}

// Index 是按最近访问排序的有界索引，链表头部为最近使用，尾部为最久未使用。
type Index[V any] struct {
	capacity int
	now      func() time.Time
	items    map[string]*list.Element
	order    *list.List
}

// Option 调整 Index 的可选行为。
type Option func(*config)

type config struct {
	now func() time.Time
}

// WithClock 注入时钟，测试中用于构造可预测的 LastAccessed。
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		if now != nil {
			c.now = now
		}
	}
}

// New 创建容量为 capacity 的索引；capacity <= 0 表示不限制条目数。
func New[V any](capacity int, opts ...Option) *Index[V] {
	cfg := config{now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Index[V]{
		capacity: capacity,
		now:      cfg.now,
		items:    make(map[string]*list.Element),
		order:    list.New(),
	}
}

// Capacity 返回构造时确定的容量。
func (x *Index[V]) Capacity() int {
	return x.capacity
}

// Len 返回当前条目数。
func (x *Index[V]) Len() int {
	return x.order.Len()
}

// Get 返回 key 对应的值并把它标记为最近使用。
func (x *Index[V]) Get(key string) (V, bool) {
	elem, ok := x.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	x.touch(elem)
	return elem.Value.(*Entry[V]).Value, true
}

// Peek 读取值但不影响访问顺序。
func (x *Index[V]) Peek(key string) (V, bool) {
	elem, ok := x.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	return elem.Value.(*Entry[V]).Value, true
}

// Put 插入或替换 key 的值并刷新访问时间，超出容量时从尾部淘汰，返回被淘汰的条目。
func (x *Index[V]) Put(key string, value V) []Entry[V] {
	if elem, ok := x.items[key]; ok {
		elem.Value.(*Entry[V]).Value = value
		x.touch(elem)
		return nil
	}

	x.items[key] = x.order.PushFront(&Entry[V]{
		Key:          key,
		Value:        value,
		LastAccessed: x.now(),
	})

	if x.capacity <= 0 {
		return nil
	}

	var evicted []Entry[V]
	for x.order.Len() > x.capacity {
		oldest := x.order.Back()
		entry := oldest.Value.(*Entry[V])
		x.order.Remove(oldest)
		delete(x.items, entry.Key)
		evicted = append(evicted, *entry)
	}
	return evicted
}

// Remove 删除 key，返回是否存在。
func (x *Index[V]) Remove(key string) bool {
	elem, ok := x.items[key]
	if !ok {
		return false
	}
	x.order.Remove(elem)
	delete(x.items, key)
	return true
}

// Values 按从新到旧的顺序返回所有值的快照，不影响访问顺序。
func (x *Index[V]) Values() []V {
	values := make([]V, 0, x.order.Len())
	for elem := x.order.Front(); elem != nil; elem = elem.Next() {
		values = append(values, elem.Value.(*Entry[V]).Value)
	}
	return values
}

// Clear 清空索引。
func (x *Index[V]) Clear() {
	x.items = make(map[string]*list.Element)
	x.order.Init()
}

// touch 刷新访问时间并移动到链表头部。时钟回拨时链表顺序仍然是权威顺序。
func (x *Index[V]) touch(elem *list.Element) {
	elem.Value.(*Entry[V]).LastAccessed = x.now()
	x.order.MoveToFront(elem)
}
