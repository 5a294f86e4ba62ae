package remote

import (
	"errors"
	"fmt"
)

// ErrNotFound 表示远端对象不存在，调用方不应重试。
var ErrNotFound = errors.New("remote object not found")

// ErrInvalidKey 表示 key 无法映射为唯一的对象路径，请求不会发出。
var ErrInvalidKey = errors.New("invalid object key")

// ErrLocalSource 表示上传的本地文件不可读，与远端无关。
var ErrLocalSource = errors.New("upload source unavailable")

// TransportError 描述一次与对象存储交互失败（网络错误或非预期状态码）。
type TransportError struct {
	Op         string
	Key        string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.Err != nil && e.StatusCode != 0:
		return fmt.Sprintf("remote %s %s: status %d: %v", e.Op, e.Key, e.StatusCode, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("remote %s %s: %v", e.Op, e.Key, e.Err)
	default:
		return fmt.Sprintf("remote %s %s: status %d", e.Op, e.Key, e.StatusCode)
	}
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransport 判断 err 链中是否包含 TransportError。
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
