package model

import "time"

const (
	ErasurePending = "pending"
	ErasureDone    = "done"
)

// ErasureRequest queues a GDPR account erasure. An admin files it; the
// janitor executes it asynchronously and records completion.
type ErasureRequest struct {
	ID          uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserUID     string     `gorm:"column:user_uid;size:128;uniqueIndex;not null" json:"userUid"`
	RequestedBy string     `gorm:"column:requested_by;size:128;not null" json:"requestedBy"`
	Status      string     `gorm:"size:16;not null;default:pending" json:"status"`
	CompletedAt *time.Time `gorm:"column:completed_at" json:"completedAt,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"createdAt"`
}

func (ErasureRequest) TableName() string {
	return "erasure_requests"
}
