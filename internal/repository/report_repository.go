package repository

import (
	"context"
	"time"

	"github.com/loopmarket/backend/internal/model"
	"gorm.io/gorm"
)

type ReportRepository interface {
	Create(ctx context.Context, report *model.Report) error
	FindByID(ctx context.Context, id uint64) (*model.Report, error)
	FindByListingAndReporter(ctx context.Context, listingID uint64, reporterUID string) (*model.Report, error)
	ListByStatus(ctx context.Context, status string, limit int) ([]model.Report, error)
	Resolve(ctx context.Context, id uint64, resolverUID string) error
	SetDB(db *gorm.DB)
}

type reportRepository struct {
	db *gorm.DB
}

func NewReportRepository(db *gorm.DB) ReportRepository {
	return &reportRepository{db: db}
}

func (r *reportRepository) SetDB(db *gorm.DB) {
	r.db = db
}

func (r *reportRepository) Create(ctx context.Context, report *model.Report) error {
	if r.db == nil {
		return ErrDBNotReady
	}
	return r.db.WithContext(ctx).Create(report).Error
}

func (r *reportRepository) FindByID(ctx context.Context, id uint64) (*model.Report, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	var report model.Report
	if err := r.db.WithContext(ctx).First(&report, id).Error; err != nil {
		return nil, err
	}
	return &report, nil
}

func (r *reportRepository) FindByListingAndReporter(ctx context.Context, listingID uint64, reporterUID string) (*model.Report, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	var report model.Report
	if err := r.db.WithContext(ctx).
		Where("listing_id = ? AND reporter_uid = ?", listingID, reporterUID).
		First(&report).Error; err != nil {
		return nil, err
	}
	return &report, nil
}

func (r *reportRepository) ListByStatus(ctx context.Context, status string, limit int) ([]model.Report, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	q := r.db.WithContext(ctx).Model(&model.Report{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var list []model.Report
	if err := q.Order("created_at ASC").Limit(limit).Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *reportRepository) Resolve(ctx context.Context, id uint64, resolverUID string) error {
	if r.db == nil {
		return ErrDBNotReady
	}
	now := time.Now()
	return r.db.WithContext(ctx).
		Model(&model.Report{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":      model.ReportResolved,
			"resolved_by": resolverUID,
			"resolved_at": now,
		}).Error
}
