package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/loopmarket/backend/internal/model"
	"github.com/loopmarket/backend/internal/repository"
)

const testPlatformUID = "platform"

// capturingPublisher records what would have gone to live subscribers.
type capturingPublisher struct {
	mu        sync.Mutex
	published []*model.Message
}

func (p *capturingPublisher) PublishMessage(msg *model.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, msg)
}

func (p *capturingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}

type testEnv struct {
	conn      *gorm.DB
	conv      ConversationService
	support   SupportService
	notifRepo repository.NotificationRepository
	publisher *capturingPublisher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := conn.AutoMigrate(
		&model.Listing{},
		&model.Conversation{},
		&model.Message{},
		&model.Notification{},
		&model.ErasureRequest{},
	); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}

	convRepo := repository.NewConversationRepository(conn)
	listingRepo := repository.NewListingRepository(conn)
	notifRepo := repository.NewNotificationRepository(conn)
	erasureRepo := repository.NewErasureRepository(conn)
	publisher := &capturingPublisher{}

	conv := NewConversationService(convRepo, listingRepo, NewNotificationService(notifRepo), publisher, testPlatformUID)
	support := NewSupportService(convRepo, erasureRepo, conv)

	return &testEnv{conn: conn, conv: conv, support: support, notifRepo: notifRepo, publisher: publisher}
}

func (e *testEnv) seedListing(t *testing.T, sellerUID string) *model.Listing {
	t.Helper()
	listing := &model.Listing{SellerUID: sellerUID, Title: "Camera", Description: "Works fine", Price: 100}
	if err := e.conn.Create(listing).Error; err != nil {
		t.Fatalf("seed listing: %v", err)
	}
	return listing
}

func TestStartFromListing_FirstContactThenSend(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	listing := env.seedListing(t, "seller-1")

	cv, err := env.conv.StartFromListing(ctx, listing.ID, "buyer-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if cv.BuyerUID != "buyer-1" || cv.SellerUID != "seller-1" {
		t.Errorf("roles wrong: %+v", cv)
	}

	msgs, err := env.conv.ListMessages(ctx, cv.ID, "buyer-1", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("fresh conversation must be empty, got %d", len(msgs))
	}

	sent, err := env.conv.Send(ctx, cv.ID, "buyer-1", "Is this still available?")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	msgs, _ = env.conv.ListMessages(ctx, cv.ID, "seller-1", 0)
	if len(msgs) != 1 || msgs[0].ID != sent.ID {
		t.Fatalf("seller should see the message in position 1, got %+v", msgs)
	}
	if env.publisher.count() != 1 {
		t.Errorf("expected 1 live publish, got %d", env.publisher.count())
	}
}

func TestStartFromListing_SameThreadOnRepeat(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	listing := env.seedListing(t, "seller-1")

	a, err := env.conv.StartFromListing(ctx, listing.ID, "buyer-1")
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	b, err := env.conv.StartFromListing(ctx, listing.ID, "buyer-1")
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if a.ID != b.ID {
		t.Errorf("repeat contact should resolve the same thread, got %d and %d", a.ID, b.ID)
	}
}

func TestStartFromListing_SelfContactRejected(t *testing.T) {
	env := newTestEnv(t)
	listing := env.seedListing(t, "seller-1")

	if _, err := env.conv.StartFromListing(context.Background(), listing.ID, "seller-1"); err == nil {
		t.Errorf("expected self-contact rejection")
	}
}

func TestSend_WhitespaceRejectedBeforeStorage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	listing := env.seedListing(t, "seller-1")
	cv, _ := env.conv.StartFromListing(ctx, listing.ID, "buyer-1")

	for _, body := range []string{"", "   ", "\n\t"} {
		if _, err := env.conv.Send(ctx, cv.ID, "buyer-1", body); err == nil {
			t.Errorf("body %q should be rejected", body)
		}
	}
	var count int64
	env.conn.Model(&model.Message{}).Count(&count)
	if count != 0 {
		t.Errorf("rejected sends must not hit storage, found %d rows", count)
	}
	if env.publisher.count() != 0 {
		t.Errorf("rejected sends must not publish")
	}
}

func TestSend_NonParticipantForbidden(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	listing := env.seedListing(t, "seller-1")
	cv, _ := env.conv.StartFromListing(ctx, listing.ID, "buyer-1")

	if _, err := env.conv.Send(ctx, cv.ID, "stranger", "hi"); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
	if _, err := env.conv.ListMessages(ctx, cv.ID, "stranger", 0); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected ErrForbidden on list, got %v", err)
	}
}

func TestSend_ClosedConversationRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cv, err := env.conv.GetOrCreateSupport(ctx, "user-1")
	if err != nil {
		t.Fatalf("support: %v", err)
	}
	if err := env.support.Close(ctx, cv.ID); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := env.conv.Send(ctx, cv.ID, "user-1", "anyone there?"); !errors.Is(err, ErrConversationClosed) {
		t.Errorf("expected ErrConversationClosed, got %v", err)
	}

	if err := env.support.Reopen(ctx, cv.ID); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if _, err := env.conv.Send(ctx, cv.ID, "user-1", "hello again"); err != nil {
		t.Errorf("send after reopen should work: %v", err)
	}
}

func TestSendSystem_FlagsAndSender(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cv, _ := env.conv.GetOrCreateSupport(ctx, "user-1")
	msg, err := env.conv.SendSystem(ctx, cv.ID, "Scheduled maintenance tonight.")
	if err != nil {
		t.Fatalf("send system: %v", err)
	}
	if !msg.IsSystem || msg.SenderUID != testPlatformUID {
		t.Errorf("system message malformed: %+v", msg)
	}
	// Flag wins over sender identity even for the platform viewer.
	if msg.AuthoredBy(testPlatformUID) {
		t.Errorf("system message must never classify as own message")
	}
}

func TestMarkRead_Service(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	listing := env.seedListing(t, "seller-1")
	cv, _ := env.conv.StartFromListing(ctx, listing.ID, "buyer-1")
	env.conv.Send(ctx, cv.ID, "buyer-1", "ping")

	if err := env.conv.MarkRead(ctx, cv.ID, "seller-1"); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	msgs, _ := env.conv.ListMessages(ctx, cv.ID, "seller-1", 0)
	if msgs[0].ReadAt == nil {
		t.Errorf("message should be read")
	}
	// Repeat is a no-op, not an error.
	if err := env.conv.MarkRead(ctx, cv.ID, "seller-1"); err != nil {
		t.Errorf("idempotent mark read failed: %v", err)
	}
}

func TestSend_NotifiesCounterpartOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	listing := env.seedListing(t, "seller-1")
	cv, _ := env.conv.StartFromListing(ctx, listing.ID, "buyer-1")
	env.conv.Send(ctx, cv.ID, "buyer-1", "ping")

	sellerNotifs, err := env.notifRepo.ListByUser(ctx, "seller-1", false, 10)
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	if len(sellerNotifs) != 1 {
		t.Fatalf("seller should have 1 notification, got %d", len(sellerNotifs))
	}
	buyerNotifs, _ := env.notifRepo.ListByUser(ctx, "buyer-1", false, 10)
	if len(buyerNotifs) != 0 {
		t.Errorf("sender must not be notified of their own message")
	}
}

func TestGetOrCreateSupport_PlatformCannotSelfContact(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.conv.GetOrCreateSupport(context.Background(), testPlatformUID); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
}
