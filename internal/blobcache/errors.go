package blobcache

import "fmt"

// Resolve 失败时 CacheError.Op 的取值。
const (
	OpPath     = "path"
	OpFetchURL = "fetch_url"
	OpDownload = "download"
	OpMkdir    = "mkdir"
	OpWrite    = "write"
	OpUpload   = "upload"
	OpDelete   = "delete"
)

// CacheError 是 blob 缓存对调用方暴露的唯一错误类型，Err 保留底层原因，
// 可继续用 errors.Is(err, remote.ErrNotFound) 或 errors.As(err, **remote.TransportError) 判断。
type CacheError struct {
	Op  string
	Key string
	Err error
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("blobcache %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *CacheError) Unwrap() error {
	return e.Err
}
