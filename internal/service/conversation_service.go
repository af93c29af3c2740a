package service

import (
	"context"
	"errors"
	"strings"

	"github.com/loopmarket/backend/internal/model"
	"github.com/loopmarket/backend/internal/repository"
	"gorm.io/gorm"
)

// MessagePublisher pushes a freshly stored message to live subscribers.
// Implemented by the realtime hub; delivery is best-effort and must not
// block or fail the write path.
type MessagePublisher interface {
	PublishMessage(msg *model.Message)
}

type ConversationSummary struct {
	Conversation model.Conversation
	UnreadCount  int64
}

type ConversationService interface {
	StartFromListing(ctx context.Context, listingID uint64, buyerUID string) (*model.Conversation, error)
	GetOrCreateSupport(ctx context.Context, uid string) (*model.Conversation, error)
	ListByUser(ctx context.Context, uid string) ([]ConversationSummary, error)
	Get(ctx context.Context, convID uint64, uid string) (*model.Conversation, error)
	ListMessages(ctx context.Context, convID uint64, uid string, afterID uint64) ([]model.Message, error)
	Send(ctx context.Context, convID uint64, senderUID, body string) (*model.Message, error)
	SendSystem(ctx context.Context, convID uint64, body string) (*model.Message, error)
	MarkRead(ctx context.Context, convID uint64, viewerUID string) error
}

type conversationService struct {
	convRepo    repository.ConversationRepository
	listingRepo repository.ListingRepository
	notifier    NotificationService
	publisher   MessagePublisher
	platformUID string
}

func NewConversationService(
	convRepo repository.ConversationRepository,
	listingRepo repository.ListingRepository,
	notifier NotificationService,
	publisher MessagePublisher,
	platformUID string,
) ConversationService {
	return &conversationService{
		convRepo:    convRepo,
		listingRepo: listingRepo,
		notifier:    notifier,
		publisher:   publisher,
		platformUID: platformUID,
	}
}

func (s *conversationService) StartFromListing(ctx context.Context, listingID uint64, buyerUID string) (*model.Conversation, error) {
	listing, err := s.listingRepo.FindByID(ctx, listingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if listing.SellerUID == buyerUID {
		return nil, errors.New("cannot start a conversation with yourself")
	}
	return s.convRepo.FindOrCreate(ctx, &listing.ID, buyerUID, listing.SellerUID)
}

// GetOrCreateSupport resolves the user's persistent support thread with the
// platform, creating it on first contact.
func (s *conversationService) GetOrCreateSupport(ctx context.Context, uid string) (*model.Conversation, error) {
	if uid == s.platformUID {
		return nil, ErrForbidden
	}
	return s.convRepo.FindOrCreate(ctx, nil, uid, s.platformUID)
}

func (s *conversationService) ListByUser(ctx context.Context, uid string) ([]ConversationSummary, error) {
	convs, err := s.convRepo.FindByUser(ctx, uid)
	if err != nil {
		return nil, err
	}
	out := make([]ConversationSummary, 0, len(convs))
	for _, cv := range convs {
		unread, err := s.convRepo.CountUnread(ctx, cv.ID, uid)
		if err != nil {
			return nil, err
		}
		out = append(out, ConversationSummary{Conversation: cv, UnreadCount: unread})
	}
	return out, nil
}

func (s *conversationService) Get(ctx context.Context, convID uint64, uid string) (*model.Conversation, error) {
	cv, err := s.convRepo.FindByID(ctx, convID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !cv.HasParticipant(uid) {
		return nil, ErrForbidden
	}
	return cv, nil
}

func (s *conversationService) ListMessages(ctx context.Context, convID uint64, uid string, afterID uint64) ([]model.Message, error) {
	if _, err := s.Get(ctx, convID, uid); err != nil {
		return nil, err
	}
	return s.convRepo.ListMessages(ctx, convID, afterID)
}

func (s *conversationService) Send(ctx context.Context, convID uint64, senderUID, body string) (*model.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, errors.New("body is required")
	}
	cv, err := s.Get(ctx, convID, senderUID)
	if err != nil {
		return nil, err
	}
	if cv.Status == model.ConversationClosed {
		return nil, ErrConversationClosed
	}
	msg := &model.Message{
		ConversationID: convID,
		SenderUID:      senderUID,
		Body:           body,
	}
	if err := s.convRepo.CreateMessage(ctx, msg); err != nil {
		return nil, err
	}
	s.fanOut(ctx, cv, msg)
	return msg, nil
}

// SendSystem appends a platform notice. It skips the participant and
// closed-status checks: system inserts are an administrative action.
func (s *conversationService) SendSystem(ctx context.Context, convID uint64, body string) (*model.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, errors.New("body is required")
	}
	cv, err := s.convRepo.FindByID(ctx, convID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	msg := &model.Message{
		ConversationID: convID,
		SenderUID:      s.platformUID,
		Body:           body,
		IsSystem:       true,
	}
	if err := s.convRepo.CreateMessage(ctx, msg); err != nil {
		return nil, err
	}
	s.fanOut(ctx, cv, msg)
	return msg, nil
}

// fanOut publishes to live subscribers and drops a notification for the
// counterpart. Both are best-effort.
func (s *conversationService) fanOut(ctx context.Context, cv *model.Conversation, msg *model.Message) {
	if s.publisher != nil {
		s.publisher.PublishMessage(msg)
	}
	if s.notifier == nil {
		return
	}
	recipient := cv.Counterpart(msg.SenderUID)
	if msg.IsSystem {
		// Notices go to the human side of the thread.
		recipient = cv.BuyerUID
		if recipient == s.platformUID {
			recipient = cv.SellerUID
		}
	}
	if recipient == "" || recipient == s.platformUID {
		return
	}
	convID := cv.ID
	s.notifier.Notify(ctx, recipient, "message", "New message", msg.Body, cv.ListingID, &convID)
}

func (s *conversationService) MarkRead(ctx context.Context, convID uint64, viewerUID string) error {
	if _, err := s.Get(ctx, convID, viewerUID); err != nil {
		return err
	}
	if _, err := s.convRepo.MarkRead(ctx, convID, viewerUID); err != nil {
		return err
	}
	if s.notifier != nil {
		s.notifier.MarkByConversation(ctx, viewerUID, convID)
	}
	return nil
}
