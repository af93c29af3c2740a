package model

import "time"

const (
	ReportOpen     = "open"
	ReportResolved = "resolved"
)

// Report is a user complaint against a listing, reviewed by moderators.
// One report per (listing, reporter).
type Report struct {
	ID          uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ListingID   uint64     `gorm:"column:listing_id;index;uniqueIndex:uniq_listing_reporter;not null" json:"listingId"`
	ReporterUID string     `gorm:"column:reporter_uid;size:128;uniqueIndex:uniq_listing_reporter;not null" json:"reporterUid"`
	Reason      string     `gorm:"type:text;not null" json:"reason"`
	Status      string     `gorm:"size:16;not null;default:open" json:"status"`
	ResolvedBy  *string    `gorm:"column:resolved_by;size:128" json:"resolvedBy,omitempty"`
	ResolvedAt  *time.Time `gorm:"column:resolved_at" json:"resolvedAt,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"createdAt"`
}

func (Report) TableName() string {
	return "reports"
}
