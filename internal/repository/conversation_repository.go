package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/loopmarket/backend/internal/model"
	"gorm.io/gorm"
)

type ConversationRepository interface {
	FindOrCreate(ctx context.Context, listingID *uint64, buyerUID, sellerUID string) (*model.Conversation, error)
	FindByID(ctx context.Context, id uint64) (*model.Conversation, error)
	FindByUser(ctx context.Context, uid string) ([]model.Conversation, error)
	ListSupport(ctx context.Context, status string) ([]model.Conversation, error)
	UpdateStatus(ctx context.Context, id uint64, status string) error
	Delete(ctx context.Context, id uint64) error
	DeleteByUser(ctx context.Context, uid string) error

	CreateMessage(ctx context.Context, msg *model.Message) error
	ListMessages(ctx context.Context, convID, afterID uint64) ([]model.Message, error)
	MarkRead(ctx context.Context, convID uint64, viewerUID string) (int64, error)
	CountUnread(ctx context.Context, convID uint64, viewerUID string) (int64, error)

	SetDB(db *gorm.DB)
}

type conversationRepository struct {
	db *gorm.DB
}

func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &conversationRepository{db: db}
}

func (r *conversationRepository) SetDB(db *gorm.DB) {
	r.db = db
}

// FindOrCreate resolves the conversation for a listing and an unordered
// participant pair, creating it on first contact. A lost race against a
// concurrent insert hits the unique index; the loser retries the lookup and
// both callers end up with the same row. MySQL does not collide NULLs in a
// unique index, so a racing pair of support-thread creates can briefly
// leave two rows; ordering the lookup by id makes every later call settle
// on the oldest one.
func (r *conversationRepository) FindOrCreate(ctx context.Context, listingID *uint64, buyerUID, sellerUID string) (*model.Conversation, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	find := func() (*model.Conversation, error) {
		var cv model.Conversation
		q := r.db.WithContext(ctx).
			Where("(buyer_uid = ? AND seller_uid = ?) OR (buyer_uid = ? AND seller_uid = ?)",
				buyerUID, sellerUID, sellerUID, buyerUID)
		if listingID != nil {
			q = q.Where("listing_id = ?", *listingID)
		} else {
			q = q.Where("listing_id IS NULL")
		}
		if err := q.Order("id ASC").First(&cv).Error; err != nil {
			return nil, err
		}
		return &cv, nil
	}

	cv, err := find()
	if err == nil {
		return cv, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	created := model.Conversation{
		ListingID: listingID,
		BuyerUID:  buyerUID,
		SellerUID: sellerUID,
		Status:    model.ConversationOpen,
	}
	if err := r.db.WithContext(ctx).Create(&created).Error; err != nil {
		if isDuplicateKey(err) {
			return find()
		}
		return nil, err
	}
	return &created, nil
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// MySQL 1062 / SQLite constraint messages when the driver does not
	// translate the error.
	msg := err.Error()
	return strings.Contains(msg, "Duplicate entry") || strings.Contains(msg, "UNIQUE constraint failed")
}

func (r *conversationRepository) FindByID(ctx context.Context, id uint64) (*model.Conversation, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	var cv model.Conversation
	if err := r.db.WithContext(ctx).First(&cv, id).Error; err != nil {
		return nil, err
	}
	return &cv, nil
}

func (r *conversationRepository) FindByUser(ctx context.Context, uid string) ([]model.Conversation, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	var list []model.Conversation
	if err := r.db.WithContext(ctx).
		Where("seller_uid = ? OR buyer_uid = ?", uid, uid).
		Order("updated_at DESC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *conversationRepository) ListSupport(ctx context.Context, status string) ([]model.Conversation, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	q := r.db.WithContext(ctx).Where("listing_id IS NULL")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var list []model.Conversation
	if err := q.Order("updated_at DESC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *conversationRepository) UpdateStatus(ctx context.Context, id uint64, status string) error {
	if r.db == nil {
		return ErrDBNotReady
	}
	return r.db.WithContext(ctx).
		Model(&model.Conversation{}).
		Where("id = ?", id).
		Update("status", status).Error
}

// Delete removes a conversation and its messages. Messages go first so a
// failure never leaves them orphaned behind a missing parent.
func (r *conversationRepository) Delete(ctx context.Context, id uint64) error {
	if r.db == nil {
		return ErrDBNotReady
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ?", id).Delete(&model.Message{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Conversation{}, id).Error
	})
}

func (r *conversationRepository) DeleteByUser(ctx context.Context, uid string) error {
	if r.db == nil {
		return ErrDBNotReady
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []uint64
		if err := tx.Model(&model.Conversation{}).
			Where("seller_uid = ? OR buyer_uid = ?", uid, uid).
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		if err := tx.Where("conversation_id IN ?", ids).Delete(&model.Message{}).Error; err != nil {
			return err
		}
		return tx.Where("id IN ?", ids).Delete(&model.Conversation{}).Error
	})
}

// CreateMessage inserts the message and touches the parent conversation so
// the inbox ordering by updated_at floats the active thread.
func (r *conversationRepository) CreateMessage(ctx context.Context, msg *model.Message) error {
	if r.db == nil {
		return ErrDBNotReady
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(msg).Error; err != nil {
			return err
		}
		return tx.Model(&model.Conversation{}).
			Where("id = ?", msg.ConversationID).
			Update("updated_at", time.Now()).Error
	})
}

// ListMessages returns messages in insertion order. afterID is a cursor:
// pass the last message id already held to get only what came later, or 0
// for the full history.
func (r *conversationRepository) ListMessages(ctx context.Context, convID, afterID uint64) ([]model.Message, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	q := r.db.WithContext(ctx).Where("conversation_id = ?", convID)
	if afterID > 0 {
		q = q.Where("id > ?", afterID)
	}
	var msgs []model.Message
	if err := q.Order("id ASC").Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

// MarkRead stamps every unread message authored by someone other than the
// viewer. Running it again is a no-op.
func (r *conversationRepository) MarkRead(ctx context.Context, convID uint64, viewerUID string) (int64, error) {
	if r.db == nil {
		return 0, ErrDBNotReady
	}
	res := r.db.WithContext(ctx).
		Model(&model.Message{}).
		Where("conversation_id = ? AND sender_uid <> ? AND read_at IS NULL", convID, viewerUID).
		Update("read_at", time.Now())
	return res.RowsAffected, res.Error
}

func (r *conversationRepository) CountUnread(ctx context.Context, convID uint64, viewerUID string) (int64, error) {
	if r.db == nil {
		return 0, ErrDBNotReady
	}
	var cnt int64
	if err := r.db.WithContext(ctx).
		Model(&model.Message{}).
		Where("conversation_id = ? AND sender_uid <> ? AND read_at IS NULL", convID, viewerUID).
		Count(&cnt).Error; err != nil {
		return 0, err
	}
	return cnt, nil
}
