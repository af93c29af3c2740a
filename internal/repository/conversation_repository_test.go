package repository

import (
	"context"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/loopmarket/backend/internal/model"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := conn.AutoMigrate(
		&model.Conversation{},
		&model.Message{},
		&model.Listing{},
	); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return conn
}

func uint64Ptr(v uint64) *uint64 { return &v }

func TestFindOrCreate_StableAcrossCalls(t *testing.T) {
	repo := NewConversationRepository(openTestDB(t))
	ctx := context.Background()

	first, err := repo.FindOrCreate(ctx, uint64Ptr(7), "buyer-1", "seller-1")
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	second, err := repo.FindOrCreate(ctx, uint64Ptr(7), "buyer-1", "seller-1")
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("expected same conversation, got %d and %d", first.ID, second.ID)
	}
}

func TestFindOrCreate_PairIsUnordered(t *testing.T) {
	repo := NewConversationRepository(openTestDB(t))
	ctx := context.Background()

	created, err := repo.FindOrCreate(ctx, uint64Ptr(7), "buyer-1", "seller-1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	// Same pair from the other side resolves to the existing thread.
	flipped, err := repo.FindOrCreate(ctx, uint64Ptr(7), "seller-1", "buyer-1")
	if err != nil {
		t.Fatalf("flipped lookup: %v", err)
	}
	if created.ID != flipped.ID {
		t.Errorf("expected unordered pair to match, got %d and %d", created.ID, flipped.ID)
	}
}

func TestFindOrCreate_DistinctListingsDistinctThreads(t *testing.T) {
	repo := NewConversationRepository(openTestDB(t))
	ctx := context.Background()

	a, err := repo.FindOrCreate(ctx, uint64Ptr(1), "buyer-1", "seller-1")
	if err != nil {
		t.Fatalf("listing 1: %v", err)
	}
	b, err := repo.FindOrCreate(ctx, uint64Ptr(2), "buyer-1", "seller-1")
	if err != nil {
		t.Fatalf("listing 2: %v", err)
	}
	if a.ID == b.ID {
		t.Errorf("different listings must not share a conversation")
	}
}

func TestFindOrCreate_SupportThreadHasNilListing(t *testing.T) {
	repo := NewConversationRepository(openTestDB(t))
	ctx := context.Background()

	cv, err := repo.FindOrCreate(ctx, nil, "user-1", "platform")
	if err != nil {
		t.Fatalf("create support: %v", err)
	}
	if !cv.IsSupport() {
		t.Errorf("expected support thread")
	}
	again, err := repo.FindOrCreate(ctx, nil, "user-1", "platform")
	if err != nil {
		t.Fatalf("resolve support: %v", err)
	}
	if cv.ID != again.ID {
		t.Errorf("support thread should be persistent, got %d and %d", cv.ID, again.ID)
	}
}

func TestFindOrCreate_LostInsertRaceConverges(t *testing.T) {
	// No default transaction: the competing row has to stay committed when
	// our own insert fails, the way another instance's write would.
	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := conn.AutoMigrate(&model.Conversation{}, &model.Message{}, &model.Listing{}); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	repo := NewConversationRepository(conn)

	// Plant the same pair between the lookup miss and our insert, so the
	// insert loses on the unique index and has to re-resolve.
	planted := false
	err = conn.Callback().Create().Before("gorm:create").Register("competing_insert", func(tx *gorm.DB) {
		if planted {
			return
		}
		planted = true
		competing := &model.Conversation{ListingID: uint64Ptr(7), BuyerUID: "buyer-1", SellerUID: "seller-1", Status: model.ConversationOpen}
		if err := tx.Session(&gorm.Session{NewDB: true}).Create(competing).Error; err != nil {
			t.Errorf("plant competing row: %v", err)
		}
	})
	if err != nil {
		t.Fatalf("register callback: %v", err)
	}

	cv, err := repo.FindOrCreate(context.Background(), uint64Ptr(7), "buyer-1", "seller-1")
	if err != nil {
		t.Fatalf("find or create after lost race: %v", err)
	}
	if !planted {
		t.Fatalf("competing insert never ran")
	}

	var count int64
	conn.Model(&model.Conversation{}).Count(&count)
	if count != 1 {
		t.Errorf("expected one conversation after the race, got %d", count)
	}
	var winner model.Conversation
	if err := conn.First(&winner).Error; err != nil {
		t.Fatalf("load winner: %v", err)
	}
	if cv.ID != winner.ID {
		t.Errorf("loser must converge on the winner's row, got %d want %d", cv.ID, winner.ID)
	}
}

func TestFindOrCreate_DuplicateSupportRowsResolveOldest(t *testing.T) {
	conn := openTestDB(t)
	repo := NewConversationRepository(conn)
	ctx := context.Background()

	// NULL listing ids are exempt from the unique index on MySQL, so a
	// racing pair of support creates can leave two rows. Later lookups must
	// settle on the oldest.
	first := model.Conversation{BuyerUID: "user-1", SellerUID: "platform", Status: model.ConversationOpen}
	second := model.Conversation{BuyerUID: "user-1", SellerUID: "platform", Status: model.ConversationOpen}
	if err := conn.Create(&first).Error; err != nil {
		t.Fatalf("seed first: %v", err)
	}
	if err := conn.Create(&second).Error; err != nil {
		t.Fatalf("seed second: %v", err)
	}

	cv, err := repo.FindOrCreate(ctx, nil, "user-1", "platform")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cv.ID != first.ID {
		t.Errorf("expected the oldest row %d, got %d", first.ID, cv.ID)
	}
}

func TestListMessages_OrderAndCursor(t *testing.T) {
	conn := openTestDB(t)
	repo := NewConversationRepository(conn)
	ctx := context.Background()

	cv, err := repo.FindOrCreate(ctx, uint64Ptr(1), "buyer-1", "seller-1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	bodies := []string{"first", "second", "third"}
	for _, b := range bodies {
		if err := repo.CreateMessage(ctx, &model.Message{ConversationID: cv.ID, SenderUID: "buyer-1", Body: b}); err != nil {
			t.Fatalf("create message %q: %v", b, err)
		}
	}

	msgs, err := repo.ListMessages(ctx, cv.ID, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	for i := 1; i < len(msgs); i++ {
		if msgs[i].ID <= msgs[i-1].ID {
			t.Errorf("messages out of order at %d", i)
		}
		if msgs[i].CreatedAt.Before(msgs[i-1].CreatedAt) {
			t.Errorf("creation times out of order at %d", i)
		}
	}

	tail, err := repo.ListMessages(ctx, cv.ID, msgs[0].ID)
	if err != nil {
		t.Fatalf("list after cursor: %v", err)
	}
	if len(tail) != 2 || tail[0].Body != "second" {
		t.Errorf("cursor fetch wrong: %+v", tail)
	}
}

func TestMarkRead_OnlyOthersAndIdempotent(t *testing.T) {
	repo := NewConversationRepository(openTestDB(t))
	ctx := context.Background()

	cv, _ := repo.FindOrCreate(ctx, uint64Ptr(1), "buyer-1", "seller-1")
	repo.CreateMessage(ctx, &model.Message{ConversationID: cv.ID, SenderUID: "seller-1", Body: "from seller"})
	repo.CreateMessage(ctx, &model.Message{ConversationID: cv.ID, SenderUID: "buyer-1", Body: "from buyer"})

	n, err := repo.MarkRead(ctx, cv.ID, "buyer-1")
	if err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 message marked, got %d", n)
	}

	msgs, _ := repo.ListMessages(ctx, cv.ID, 0)
	for _, m := range msgs {
		if m.SenderUID == "seller-1" && m.ReadAt == nil {
			t.Errorf("counterpart message not marked read")
		}
		if m.SenderUID == "buyer-1" && m.ReadAt != nil {
			t.Errorf("viewer's own message must stay untouched")
		}
	}

	n, err = repo.MarkRead(ctx, cv.ID, "buyer-1")
	if err != nil {
		t.Fatalf("second mark read: %v", err)
	}
	if n != 0 {
		t.Errorf("mark read should be a no-op on repeat, marked %d", n)
	}
}

func TestCountUnread(t *testing.T) {
	repo := NewConversationRepository(openTestDB(t))
	ctx := context.Background()

	cv, _ := repo.FindOrCreate(ctx, uint64Ptr(1), "buyer-1", "seller-1")
	repo.CreateMessage(ctx, &model.Message{ConversationID: cv.ID, SenderUID: "seller-1", Body: "a"})
	repo.CreateMessage(ctx, &model.Message{ConversationID: cv.ID, SenderUID: "seller-1", Body: "b"})

	cnt, err := repo.CountUnread(ctx, cv.ID, "buyer-1")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if cnt != 2 {
		t.Errorf("expected 2 unread, got %d", cnt)
	}
	if _, err := repo.MarkRead(ctx, cv.ID, "buyer-1"); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	cnt, _ = repo.CountUnread(ctx, cv.ID, "buyer-1")
	if cnt != 0 {
		t.Errorf("expected 0 unread after mark, got %d", cnt)
	}
}

func TestDelete_RemovesMessages(t *testing.T) {
	conn := openTestDB(t)
	repo := NewConversationRepository(conn)
	ctx := context.Background()

	cv, _ := repo.FindOrCreate(ctx, nil, "user-1", "platform")
	repo.CreateMessage(ctx, &model.Message{ConversationID: cv.ID, SenderUID: "user-1", Body: "help"})

	if err := repo.Delete(ctx, cv.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	var msgCount int64
	conn.Model(&model.Message{}).Where("conversation_id = ?", cv.ID).Count(&msgCount)
	if msgCount != 0 {
		t.Errorf("messages must cascade with the conversation, %d left", msgCount)
	}
}

func TestDeleteByUser_OnlyTouchesTheirThreads(t *testing.T) {
	conn := openTestDB(t)
	repo := NewConversationRepository(conn)
	ctx := context.Background()

	mine, _ := repo.FindOrCreate(ctx, uint64Ptr(1), "victim", "seller-1")
	other, _ := repo.FindOrCreate(ctx, uint64Ptr(2), "buyer-2", "seller-2")
	repo.CreateMessage(ctx, &model.Message{ConversationID: mine.ID, SenderUID: "victim", Body: "x"})
	repo.CreateMessage(ctx, &model.Message{ConversationID: other.ID, SenderUID: "buyer-2", Body: "y"})

	if err := repo.DeleteByUser(ctx, "victim"); err != nil {
		t.Fatalf("delete by user: %v", err)
	}
	if _, err := repo.FindByID(ctx, mine.ID); err == nil {
		t.Errorf("victim's conversation should be gone")
	}
	if _, err := repo.FindByID(ctx, other.ID); err != nil {
		t.Errorf("unrelated conversation must survive: %v", err)
	}
	msgs, _ := repo.ListMessages(ctx, other.ID, 0)
	if len(msgs) != 1 {
		t.Errorf("unrelated messages must survive, got %d", len(msgs))
	}
}

func TestListSupport_FiltersByStatus(t *testing.T) {
	repo := NewConversationRepository(openTestDB(t))
	ctx := context.Background()

	open, _ := repo.FindOrCreate(ctx, nil, "user-1", "platform")
	closed, _ := repo.FindOrCreate(ctx, nil, "user-2", "platform")
	if err := repo.UpdateStatus(ctx, closed.ID, model.ConversationClosed); err != nil {
		t.Fatalf("close: %v", err)
	}
	// Listing-anchored threads never show up as support.
	repo.FindOrCreate(ctx, uint64Ptr(1), "user-3", "seller-1")

	threads, err := repo.ListSupport(ctx, model.ConversationOpen)
	if err != nil {
		t.Fatalf("list support: %v", err)
	}
	if len(threads) != 1 || threads[0].ID != open.ID {
		t.Errorf("expected only the open support thread, got %+v", threads)
	}
	all, _ := repo.ListSupport(ctx, "")
	if len(all) != 2 {
		t.Errorf("expected 2 support threads total, got %d", len(all))
	}
}

func TestFindByUser_ActiveThreadFloatsToTop(t *testing.T) {
	repo := NewConversationRepository(openTestDB(t))
	ctx := context.Background()

	older, _ := repo.FindOrCreate(ctx, uint64Ptr(1), "buyer-1", "seller-1")
	newer, _ := repo.FindOrCreate(ctx, uint64Ptr(2), "buyer-1", "seller-2")

	time.Sleep(10 * time.Millisecond)
	if err := repo.CreateMessage(ctx, &model.Message{ConversationID: older.ID, SenderUID: "seller-1", Body: "ping"}); err != nil {
		t.Fatalf("create message: %v", err)
	}

	list, err := repo.FindByUser(ctx, "buyer-1")
	if err != nil {
		t.Fatalf("find by user: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 conversations, got %d", len(list))
	}
	if list[0].ID != older.ID {
		t.Errorf("thread with the newest message must sort first, got %d want %d", list[0].ID, older.ID)
	}
	if list[1].ID != newer.ID {
		t.Errorf("quiet thread must sort after, got %d want %d", list[1].ID, newer.ID)
	}
}

func TestMarkRead_StampsRecentTime(t *testing.T) {
	repo := NewConversationRepository(openTestDB(t))
	ctx := context.Background()

	cv, _ := repo.FindOrCreate(ctx, uint64Ptr(1), "buyer-1", "seller-1")
	repo.CreateMessage(ctx, &model.Message{ConversationID: cv.ID, SenderUID: "seller-1", Body: "hello"})

	before := time.Now().Add(-time.Second)
	repo.MarkRead(ctx, cv.ID, "buyer-1")
	msgs, _ := repo.ListMessages(ctx, cv.ID, 0)
	if msgs[0].ReadAt == nil || msgs[0].ReadAt.Before(before) {
		t.Errorf("read_at not stamped sensibly: %v", msgs[0].ReadAt)
	}
}
