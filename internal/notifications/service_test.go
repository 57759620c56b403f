package notifications

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/momentum/backend/internal/fault"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type sequenceIDGenerator struct {
	next int
}

func (g *sequenceIDGenerator) NewID() (string, error) {
	g.next++
	return fmt.Sprintf("notification-%d", g.next), nil
}

type recordingPublisher struct {
	events []Event
}

func (p *recordingPublisher) Publish(event Event) {
	p.events = append(p.events, event)
}

func newTestService(t *testing.T, publisher Publisher) (*Service, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:notifications_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Notification{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	service, err := NewService(ServiceConfig{
		Database:   db,
		Clock:      func() time.Time { return time.Unix(1760000000, 0).UTC() },
		IDProvider: &sequenceIDGenerator{},
		Publisher:  publisher,
	})
	if err != nil {
		t.Fatalf("failed to construct service: %v", err)
	}
	return service, db
}

func TestNotifyPersistsAndPublishes(t *testing.T) {
	publisher := &recordingPublisher{}
	service, db := newTestService(t, publisher)

	if err := service.Notify(context.Background(), "user-1", "Submission approved", "You earned 50 points."); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var stored Notification
	if err := db.First(&stored).Error; err != nil {
		t.Fatalf("failed to load notification: %v", err)
	}
	if stored.UserID != "user-1" || stored.IsRead {
		t.Fatalf("unexpected stored row %#v", stored)
	}

	if len(publisher.events) != 1 {
		t.Fatalf("expected one published event, got %d", len(publisher.events))
	}
	if publisher.events[0].NotificationID != stored.NotificationID {
		t.Fatalf("published event must reference the stored row")
	}
}

func TestNotifyWithoutPublisherStillPersists(t *testing.T) {
	service, db := newTestService(t, nil)

	if err := service.Notify(context.Background(), "user-1", "Hello", "world"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var count int64
	if err := db.Model(&Notification{}).Count(&count).Error; err != nil {
		t.Fatalf("failed to count rows: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one row, got %d", count)
	}
}

func TestMarkReadScopedToRecipient(t *testing.T) {
	service, db := newTestService(t, nil)

	if err := service.Notify(context.Background(), "user-1", "Hello", "world"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var stored Notification
	if err := db.First(&stored).Error; err != nil {
		t.Fatalf("failed to load notification: %v", err)
	}

	err := service.MarkRead(context.Background(), "user-2", stored.NotificationID)
	if !errors.Is(err, fault.ErrNotFound) {
		t.Fatalf("expected not found for foreign recipient, got %v", err)
	}

	if err := service.MarkRead(context.Background(), "user-1", stored.NotificationID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := db.First(&stored).Error; err != nil {
		t.Fatalf("failed to reload notification: %v", err)
	}
	if !stored.IsRead {
		t.Fatalf("expected notification flagged read")
	}
}

func TestMarkAllReadAndClearAll(t *testing.T) {
	service, db := newTestService(t, nil)

	for i := 0; i < 3; i++ {
		if err := service.Notify(context.Background(), "user-1", "Hello", "world"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if err := service.Notify(context.Background(), "user-2", "Hello", "world"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := service.MarkAllRead(context.Background(), "user-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var unread int64
	if err := db.Model(&Notification{}).Where("user_id = ? AND is_read = ?", "user-1", false).Count(&unread).Error; err != nil {
		t.Fatalf("failed to count: %v", err)
	}
	if unread != 0 {
		t.Fatalf("expected no unread rows, got %d", unread)
	}

	if err := service.ClearAll(context.Background(), "user-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var remaining int64
	if err := db.Model(&Notification{}).Count(&remaining).Error; err != nil {
		t.Fatalf("failed to count: %v", err)
	}
	if remaining != 1 {
		t.Fatalf("clear must only remove the recipient's rows, got %d remaining", remaining)
	}
}

func TestDeleteScopedToRecipient(t *testing.T) {
	service, db := newTestService(t, nil)

	if err := service.Notify(context.Background(), "user-1", "Hello", "world"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var stored Notification
	if err := db.First(&stored).Error; err != nil {
		t.Fatalf("failed to load notification: %v", err)
	}

	if err := service.Delete(context.Background(), "user-2", stored.NotificationID); !errors.Is(err, fault.ErrNotFound) {
		t.Fatalf("expected not found for foreign recipient, got %v", err)
	}
	if err := service.Delete(context.Background(), "user-1", stored.NotificationID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestListNewestFirst(t *testing.T) {
	publisher := &recordingPublisher{}
	service, db := newTestService(t, publisher)

	if err := service.Notify(context.Background(), "user-1", "first", "m"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := service.Notify(context.Background(), "user-1", "second", "m"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := db.Model(&Notification{}).
		Where("title = ?", "second").
		Update("created_at", time.Unix(1760009999, 0).UTC()).Error; err != nil {
		t.Fatalf("failed to bump timestamp: %v", err)
	}

	rows, err := service.List(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 2 || rows[0].Title != "second" {
		t.Fatalf("expected newest first, got %#v", rows)
	}
}
