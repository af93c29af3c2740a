package repository

import (
	"context"
	"time"

	"github.com/loopmarket/backend/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ProfileRepository interface {
	Upsert(ctx context.Context, p *model.Profile) error
	FindByUID(ctx context.Context, uid string) (*model.Profile, error)
	FindByUIDs(ctx context.Context, uids []string) ([]model.Profile, error)
	TouchLastSeen(ctx context.Context, uid string, at time.Time) error
	DeleteByUID(ctx context.Context, uid string) error
	SetDB(db *gorm.DB)
}

type profileRepository struct {
	db *gorm.DB
}

func NewProfileRepository(db *gorm.DB) ProfileRepository {
	return &profileRepository{db: db}
}

func (r *profileRepository) SetDB(db *gorm.DB) {
	r.db = db
}

// Upsert inserts the profile or refreshes its mutable fields; last_seen_at
// is owned by TouchLastSeen and deliberately left alone here.
func (r *profileRepository) Upsert(ctx context.Context, p *model.Profile) error {
	if r.db == nil {
		return ErrDBNotReady
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "uid"}},
		DoUpdates: clause.AssignmentColumns([]string{"display_name", "email", "avatar_url", "updated_at"}),
	}).Create(p).Error
}

func (r *profileRepository) FindByUID(ctx context.Context, uid string) (*model.Profile, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	var p model.Profile
	if err := r.db.WithContext(ctx).Where("uid = ?", uid).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *profileRepository) FindByUIDs(ctx context.Context, uids []string) ([]model.Profile, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	if len(uids) == 0 {
		return nil, nil
	}
	var list []model.Profile
	if err := r.db.WithContext(ctx).Where("uid IN ?", uids).Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *profileRepository) TouchLastSeen(ctx context.Context, uid string, at time.Time) error {
	if r.db == nil {
		return ErrDBNotReady
	}
	return r.db.WithContext(ctx).
		Model(&model.Profile{}).
		Where("uid = ?", uid).
		Update("last_seen_at", at).Error
}

func (r *profileRepository) DeleteByUID(ctx context.Context, uid string) error {
	if r.db == nil {
		return ErrDBNotReady
	}
	return r.db.WithContext(ctx).Where("uid = ?", uid).Delete(&model.Profile{}).Error
}
