package model

import "time"

// Profile mirrors the auth provider's user record and carries the durable
// last-seen timestamp used for offline display. Live presence is tracked in
// Redis, not here.
type Profile struct {
	UID         string     `gorm:"primaryKey;size:128" json:"uid"`
	DisplayName string     `gorm:"size:120" json:"displayName"`
	Email       string     `gorm:"size:255;index" json:"-"`
	AvatarURL   *string    `gorm:"size:512" json:"avatarUrl,omitempty"`
	LastSeenAt  *time.Time `gorm:"column:last_seen_at" json:"lastSeenAt,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (Profile) TableName() string {
	return "profiles"
}
