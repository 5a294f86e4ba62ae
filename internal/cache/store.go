package cache

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"
)

// Store 负责管理磁盘缓存的读写。磁盘布局遵循：
//
//	<StoragePath>/<Namespace>/<SanitizeKey(Key)>
//
// 每个条目仅由正文文件组成，文件的 ModTime/Size 由文件系统提供。
type Store interface {
	// Get 返回一个可流式读取的缓存条目。若不存在则返回 ErrNotFound。
	Get(ctx context.Context, locator Locator) (*ReadResult, error)

	// Stat 仅返回条目的文件信息，不打开文件。若不存在则返回 ErrNotFound。
	Stat(ctx context.Context, locator Locator) (*Entry, error)

	// Put 将正文写入缓存，并产出新的 Entry 描述。实现需通过临时文件 + rename
	// 保证写入原子性，并在失败或 ctx 取消时清理临时文件。
	Put(ctx context.Context, locator Locator, body io.Reader, opts PutOptions) (*Entry, error)

	// Remove 删除正文文件，文件不存在时视为成功。
	Remove(ctx context.Context, locator Locator) error

	// Path 返回 Locator 对应的绝对文件路径，不检查文件是否存在。
	Path(locator Locator) (string, error)

	// EnsureNamespace 创建命名空间目录并返回其绝对路径。
	EnsureNamespace(namespace string) (string, error)

	// Purge 删除命名空间目录下的全部内容，返回删除的条目数与合并后的错误。
	Purge(ctx context.Context, namespace string) (int, error)
}

// PutOptions 控制写入过程中的可选属性。
type PutOptions struct {
	ModTime time.Time
}

// Locator 唯一定位一个缓存条目（命名空间 + 远端对象 key）。
type Locator struct {
	Namespace string
	Key       string
}

// Entry 表示一次缓存命中结果，包含绝对文件路径及文件信息。
type Entry struct {
	Locator   Locator `json:"locator"`
	FilePath  string  `json:"file_path"`
	SizeBytes int64   `json:"size_bytes"`
	ModTime   time.Time
}

// ReadResult 组合 Entry 与正文 Reader，便于调用方直接流式返回。
type ReadResult struct {
	Entry  Entry
	Reader io.ReadSeekCloser
}

// ErrNotFound 表示缓存不存在。
var ErrNotFound = errors.New("cache entry not found")

// ErrInvalidKey 表示 key 无法映射为合法文件名。
var ErrInvalidKey = errors.New("invalid cache key")

// keyReplacer 把路径分隔符替换为 '_'，使远端 key 映射为单层文件名。
var keyReplacer = strings.NewReplacer("/", "_", `\`, "_")

// SanitizeKey 把远端 key 确定性地映射为文件名，例如 "exhibitions/42/cover.jpg"
// 映射为 "exhibitions_42_cover.jpg"。仅在分隔符位置不同的两个 key 会映射到同一文件。
func SanitizeKey(key string) (string, error) {
	if key == "" {
		return "", ErrInvalidKey
	}
	name := keyReplacer.Replace(key)
	if name == "." || name == ".." || strings.ContainsRune(name, 0) {
		return "", ErrInvalidKey
	}
	return name, nil
}
