package server

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// signedObject 记录签名地址授权访问的对象与过期时间。
type signedObject struct {
	bucket    string
	key       string
	expiresAt time.Time
}

// tokenRegistry 保存签名下载地址的 token，过期 token 在签发新 token 时顺带清理。
type tokenRegistry struct {
	now func() time.Time

	mu     sync.Mutex
	tokens map[string]signedObject
}

func newTokenRegistry(now func() time.Time) *tokenRegistry {
	return &tokenRegistry{
		now:    now,
		tokens: make(map[string]signedObject),
	}
}

func (r *tokenRegistry) issue(bucket, key string, ttl time.Duration) (string, time.Time) {
	now := r.now()
	token := uuid.NewString()
	expiresAt := now.Add(ttl)

	r.mu.Lock()
	defer r.mu.Unlock()
	for tok, obj := range r.tokens {
		if !now.Before(obj.expiresAt) {
			delete(r.tokens, tok)
		}
	}
	r.tokens[token] = signedObject{bucket: bucket, key: key, expiresAt: expiresAt}
	return token, expiresAt
}

// valid 判断 token 是否授权访问 bucket/key 且尚未过期。
func (r *tokenRegistry) valid(token, bucket, key string) bool {
	if token == "" {
		return false
	}
	r.mu.Lock()
	obj, ok := r.tokens[token]
	r.mu.Unlock()
	if !ok || obj.bucket != bucket || obj.key != key {
		return false
	}
	return r.now().Before(obj.expiresAt)
}

// revoke 删除指向 bucket/key 的全部 token，对象删除后旧地址立即失效。
func (r *tokenRegistry) revoke(bucket, key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for tok, obj := range r.tokens {
		if obj.bucket == bucket && obj.key == key {
			delete(r.tokens, tok)
		}
	}
}
