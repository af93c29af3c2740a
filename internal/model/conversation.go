package model

import "time"

const (
	ConversationOpen   = "open"
	ConversationClosed = "closed"
)

// Conversation is a thread between a buyer and a seller, optionally anchored
// to a listing. A nil ListingID marks a support thread with the platform.
// The composite unique index makes concurrent first-contact attempts for the
// same listing and pair converge on a single row. NULL listing ids are
// exempt from the index on MySQL, so a racing support-thread create can
// momentarily duplicate; lookups resolve the oldest row, so traffic
// converges there.
type Conversation struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ListingID *uint64   `gorm:"column:listing_id;index:idx_listing_pair,unique" json:"listingId"`
	SellerUID string    `gorm:"column:seller_uid;size:128;index;index:idx_listing_pair,unique" json:"sellerUid"`
	BuyerUID  string    `gorm:"column:buyer_uid;size:128;index:idx_listing_pair,unique" json:"buyerUid"`
	Status    string    `gorm:"size:16;not null;default:open" json:"status"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (Conversation) TableName() string {
	return "conversations"
}

func (c *Conversation) IsSupport() bool {
	return c.ListingID == nil
}

func (c *Conversation) HasParticipant(uid string) bool {
	return c.BuyerUID == uid || c.SellerUID == uid
}

// Counterpart returns the other participant's uid, or "" if uid is not a
// participant at all.
func (c *Conversation) Counterpart(uid string) string {
	switch uid {
	case c.BuyerUID:
		return c.SellerUID
	case c.SellerUID:
		return c.BuyerUID
	}
	return ""
}
