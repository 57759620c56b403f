package submissions

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

type stubParticipations struct {
	pairs map[string]bool
}

func (s stubParticipations) HasParticipation(_ context.Context, userID, challengeID string) (bool, error) {
	return s.pairs[userID+"/"+challengeID], nil
}

type sequenceIDGenerator struct {
	next int
}

func (g *sequenceIDGenerator) NewID() (string, error) {
	g.next++
	return fmt.Sprintf("submission-%d", g.next), nil
}

func newTestStore(t *testing.T, pairs map[string]bool) (*Store, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:submissions_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Submission{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	store, err := NewStore(StoreConfig{
		Database:       db,
		Clock:          func() time.Time { return time.Unix(1760000000, 0).UTC() },
		IDProvider:     &sequenceIDGenerator{},
		Participations: stubParticipations{pairs: pairs},
	})
	if err != nil {
		t.Fatalf("failed to construct store: %v", err)
	}
	return store, db
}

func TestSubmitCreatesPendingRow(t *testing.T) {
	store, db := newTestStore(t, map[string]bool{"user-1/challenge-1": true})

	submission, err := store.Submit(context.Background(), "user-1", "challenge-1", "a.jpg")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if submission.Status != StatusPending {
		t.Fatalf("expected pending status, got %s", submission.Status)
	}
	if submission.ArtifactURL != "a.jpg" {
		t.Fatalf("unexpected artifact %q", submission.ArtifactURL)
	}

	var count int64
	if err := db.Model(&Submission{}).Count(&count).Error; err != nil {
		t.Fatalf("failed to count rows: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one row, got %d", count)
	}
}

func TestResubmissionReusesRow(t *testing.T) {
	store, db := newTestStore(t, map[string]bool{"user-1/challenge-1": true})

	first, err := store.Submit(context.Background(), "user-1", "challenge-1", "a.jpg")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Simulate a completed review cycle before the resubmission.
	if err := db.Model(&Submission{}).
		Where("submission_id = ?", first.SubmissionID).
		Updates(map[string]interface{}{"status": string(StatusRejected), "feedback": "blurry"}).Error; err != nil {
		t.Fatalf("failed to mark rejected: %v", err)
	}

	second, err := store.Submit(context.Background(), "user-1", "challenge-1", "b.jpg")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if second.SubmissionID != first.SubmissionID {
		t.Fatalf("expected the same row to be reused, got %s and %s", first.SubmissionID, second.SubmissionID)
	}
	if second.Status != StatusPending {
		t.Fatalf("expected status reset to pending, got %s", second.Status)
	}
	if second.ArtifactURL != "b.jpg" {
		t.Fatalf("expected artifact overwritten, got %q", second.ArtifactURL)
	}
	if second.Feedback != "" {
		t.Fatalf("expected feedback cleared, got %q", second.Feedback)
	}

	var count int64
	if err := db.Model(&Submission{}).Count(&count).Error; err != nil {
		t.Fatalf("failed to count rows: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one row after resubmission, got %d", count)
	}
}

func TestSubmitWithoutParticipationFails(t *testing.T) {
	store, _ := newTestStore(t, map[string]bool{})

	_, err := store.Submit(context.Background(), "user-1", "challenge-1", "a.jpg")
	if !errors.Is(err, fault.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSubmitRejectsBlankArtifact(t *testing.T) {
	store, _ := newTestStore(t, map[string]bool{"user-1/challenge-1": true})

	_, err := store.Submit(context.Background(), "user-1", "challenge-1", "   ")
	if !errors.Is(err, fault.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestByIDMissingFails(t *testing.T) {
	store, _ := newTestStore(t, map[string]bool{})

	_, err := store.ByID(context.Background(), "submission-missing")
	if !errors.Is(err, fault.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestForUserNewestFirst(t *testing.T) {
	store, db := newTestStore(t, map[string]bool{
		"user-1/challenge-1": true,
		"user-1/challenge-2": true,
	})

	if _, err := store.Submit(context.Background(), "user-1", "challenge-1", "a.jpg"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := store.Submit(context.Background(), "user-1", "challenge-2", "b.jpg"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := db.Model(&Submission{}).
		Where("challenge_id = ?", "challenge-2").
		Update("updated_at", time.Unix(1760009999, 0).UTC()).Error; err != nil {
		t.Fatalf("failed to bump timestamp: %v", err)
	}

	rows, err := store.ForUser(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].ChallengeID != "challenge-2" {
		t.Fatalf("expected newest first, got %s", rows[0].ChallengeID)
	}
}
