// Package model holds the small identity-keyed records the client caches
// in memory between remote lookups.
package model

import "time"

// UserProfile 是登录用户的公开资料快照。
type UserProfile struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	AvatarKey   string    `json:"avatar_key"`
	Bio         string    `json:"bio"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CacheKey implements metacache.Record.
func (p UserProfile) CacheKey() string {
	return p.ID
}

// Member 是展览成员（参展摄影师或策展人）的资料快照。
type Member struct {
	ID           string `json:"id"`
	ExhibitionID string `json:"exhibition_id"`
	Name         string `json:"name"`
	Role         string `json:"role"`
	PortraitKey  string `json:"portrait_key"`
}

// CacheKey implements metacache.Record.
func (m Member) CacheKey() string {
	return m.ID
}
