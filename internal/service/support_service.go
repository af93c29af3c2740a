package service

import (
	"context"
	"errors"

	"github.com/loopmarket/backend/internal/model"
	"github.com/loopmarket/backend/internal/repository"
	"gorm.io/gorm"
)

// SupportService is the administrative side of the support threads: the
// same conversation store, narrower caller. Participant checks do not apply
// here; route-level capability checks gate access instead.
type SupportService interface {
	ListThreads(ctx context.Context, status string) ([]model.Conversation, error)
	Close(ctx context.Context, convID uint64) error
	Reopen(ctx context.Context, convID uint64) error
	Delete(ctx context.Context, convID uint64) error
	Broadcast(ctx context.Context, body string) (int, error)
	RequestErasure(ctx context.Context, targetUID, adminUID string) error
}

type supportService struct {
	convRepo    repository.ConversationRepository
	erasureRepo repository.ErasureRepository
	conv        ConversationService
}

func NewSupportService(convRepo repository.ConversationRepository, erasureRepo repository.ErasureRepository, conv ConversationService) SupportService {
	return &supportService{convRepo: convRepo, erasureRepo: erasureRepo, conv: conv}
}

func (s *supportService) ListThreads(ctx context.Context, status string) ([]model.Conversation, error) {
	return s.convRepo.ListSupport(ctx, status)
}

func (s *supportService) setStatus(ctx context.Context, convID uint64, status string) error {
	cv, err := s.convRepo.FindByID(ctx, convID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}
	if !cv.IsSupport() {
		return ErrForbidden
	}
	if cv.Status == status {
		return nil
	}
	return s.convRepo.UpdateStatus(ctx, convID, status)
}

func (s *supportService) Close(ctx context.Context, convID uint64) error {
	return s.setStatus(ctx, convID, model.ConversationClosed)
}

func (s *supportService) Reopen(ctx context.Context, convID uint64) error {
	return s.setStatus(ctx, convID, model.ConversationOpen)
}

func (s *supportService) Delete(ctx context.Context, convID uint64) error {
	cv, err := s.convRepo.FindByID(ctx, convID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}
	if !cv.IsSupport() {
		return ErrForbidden
	}
	return s.convRepo.Delete(ctx, convID)
}

// Broadcast fans one authored body out as an individual system message into
// every open support thread. Returns how many threads received it; a failed
// thread is skipped, not fatal.
func (s *supportService) Broadcast(ctx context.Context, body string) (int, error) {
	threads, err := s.convRepo.ListSupport(ctx, model.ConversationOpen)
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, cv := range threads {
		if _, err := s.conv.SendSystem(ctx, cv.ID, body); err != nil {
			continue
		}
		sent++
	}
	return sent, nil
}

func (s *supportService) RequestErasure(ctx context.Context, targetUID, adminUID string) error {
	if targetUID == "" {
		return errors.New("target uid is required")
	}
	return s.erasureRepo.Enqueue(ctx, &model.ErasureRequest{
		UserUID:     targetUID,
		RequestedBy: adminUID,
		Status:      model.ErasurePending,
	})
}
