package repository

import (
	"context"
	"time"

	"github.com/loopmarket/backend/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ErasureRepository interface {
	Enqueue(ctx context.Context, req *model.ErasureRequest) error
	ListPending(ctx context.Context, limit int) ([]model.ErasureRequest, error)
	MarkDone(ctx context.Context, id uint64) error
	SetDB(db *gorm.DB)
}

type erasureRepository struct {
	db *gorm.DB
}

func NewErasureRepository(db *gorm.DB) ErasureRepository {
	return &erasureRepository{db: db}
}

func (r *erasureRepository) SetDB(db *gorm.DB) {
	r.db = db
}

// Enqueue is idempotent per user: filing an erasure for a user who already
// has one pending keeps the original request.
func (r *erasureRepository) Enqueue(ctx context.Context, req *model.ErasureRequest) error {
	if r.db == nil {
		return ErrDBNotReady
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(req).Error
}

func (r *erasureRepository) ListPending(ctx context.Context, limit int) ([]model.ErasureRequest, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var list []model.ErasureRequest
	if err := r.db.WithContext(ctx).
		Where("status = ?", model.ErasurePending).
		Order("created_at ASC").
		Limit(limit).
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *erasureRepository) MarkDone(ctx context.Context, id uint64) error {
	if r.db == nil {
		return ErrDBNotReady
	}
	now := time.Now()
	return r.db.WithContext(ctx).
		Model(&model.ErasureRequest{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       model.ErasureDone,
			"completed_at": now,
		}).Error
}
