package model

import "time"

type Message struct {
	ID             uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ConversationID uint64     `gorm:"column:conversation_id;index;not null" json:"conversationId"`
	SenderUID      string     `gorm:"column:sender_uid;size:128;index" json:"senderUid"`
	Body           string     `gorm:"type:text;not null" json:"body"`
	IsSystem       bool       `gorm:"column:is_system;not null;default:false" json:"isSystem"`
	ReadAt         *time.Time `gorm:"column:read_at" json:"readAt,omitempty"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"createdAt"`
}

func (Message) TableName() string {
	return "messages"
}

// AuthoredBy reports whether the message counts as the viewer's own.
// System notices are never anyone's own message, even if the reserved
// platform uid happens to match the viewer.
func (m *Message) AuthoredBy(uid string) bool {
	if m.IsSystem {
		return false
	}
	return m.SenderUID == uid
}
