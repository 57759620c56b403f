package directory

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
	return fmt.Sprintf("id-%d", g.next), nil
}

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:directory_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Tenant{}, &Member{}, &Circle{}, &CircleMember{}, &Challenge{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	service, err := NewService(ServiceConfig{
		Database:   db,
		Clock:      func() time.Time { return time.Unix(1760000000, 0).UTC() },
		IDProvider: &sequenceIDGenerator{},
	})
	if err != nil {
		t.Fatalf("failed to construct service: %v", err)
	}
	return service, db
}

func TestCreateTenantRejectsDuplicateName(t *testing.T) {
	service, _ := newTestService(t)

	if _, err := service.CreateTenant(context.Background(), "Acme"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := service.CreateTenant(context.Background(), "Acme")
	if !errors.Is(err, fault.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestCreateMemberNormalizesEmailAndRole(t *testing.T) {
	service, _ := newTestService(t)

	tenant, err := service.CreateTenant(context.Background(), "Acme")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	member, err := service.CreateMember(context.Background(), tenant.TenantID, "  Jo@Example.COM ", "Jo", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if member.Email != "jo@example.com" {
		t.Fatalf("expected lowercased email, got %q", member.Email)
	}
	if member.Role != RoleMember {
		t.Fatalf("expected default member role, got %q", member.Role)
	}

	_, err = service.CreateMember(context.Background(), tenant.TenantID, "jo@example.com", "Jo", "member")
	if !errors.Is(err, fault.ErrConflict) {
		t.Fatalf("expected conflict for duplicate email, got %v", err)
	}

	_, err = service.CreateMember(context.Background(), tenant.TenantID, "ann@example.com", "Ann", "owner")
	if !errors.Is(err, fault.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument for unknown role, got %v", err)
	}
}

func TestCreateMemberMissingTenantFails(t *testing.T) {
	service, _ := newTestService(t)

	_, err := service.CreateMember(context.Background(), "tenant-missing", "jo@example.com", "Jo", "member")
	if !errors.Is(err, fault.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCreateCircleAddsCreatorMembership(t *testing.T) {
	service, db := newTestService(t)

	tenant, err := service.CreateTenant(context.Background(), "Acme")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	circle, err := service.CreateCircle(context.Background(), tenant.TenantID, "Wellness", "user-creator")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var membership CircleMember
	if err := db.Where("circle_id = ? AND user_id = ?", circle.CircleID, "user-creator").Take(&membership).Error; err != nil {
		t.Fatalf("expected creator membership row: %v", err)
	}

	_, err = service.CreateCircle(context.Background(), tenant.TenantID, "Wellness", "user-creator")
	if !errors.Is(err, fault.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestCreateChallengeValidation(t *testing.T) {
	service, _ := newTestService(t)

	tenant, err := service.CreateTenant(context.Background(), "Acme")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	circle, err := service.CreateCircle(context.Background(), tenant.TenantID, "Wellness", "user-creator")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := service.CreateChallenge(context.Background(), circle.CircleID, "", "", 10, "user-creator"); !errors.Is(err, fault.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument for blank title, got %v", err)
	}
	if _, err := service.CreateChallenge(context.Background(), circle.CircleID, "Bike", "", -1, "user-creator"); !errors.Is(err, fault.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument for negative points, got %v", err)
	}
	if _, err := service.CreateChallenge(context.Background(), "circle-missing", "Bike", "", 10, "user-creator"); !errors.Is(err, fault.ErrNotFound) {
		t.Fatalf("expected not found for missing circle, got %v", err)
	}

	challenge, err := service.CreateChallenge(context.Background(), circle.CircleID, "Bike to work", "ride", 50, "user-creator")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	loaded, err := service.ChallengeByID(context.Background(), challenge.ChallengeID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loaded.Points != 50 || loaded.CreatedBy != "user-creator" {
		t.Fatalf("unexpected challenge %#v", loaded)
	}
}

func TestCircleRosterExcluding(t *testing.T) {
	service, db := newTestService(t)

	tenant, err := service.CreateTenant(context.Background(), "Acme")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	circle, err := service.CreateCircle(context.Background(), tenant.TenantID, "Wellness", "creator-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, userID := range []string{"user-1", "user-2", "user-3"} {
		if err := service.AddCircleMember(context.Background(), circle.CircleID, userID); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	roster, err := service.CircleRosterExcluding(context.Background(), circle.CircleID, "user-1", "creator-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(roster) != 2 {
		t.Fatalf("expected 2 remaining members, got %v", roster)
	}
	for _, userID := range roster {
		if userID == "user-1" || userID == "creator-1" {
			t.Fatalf("excluded user %s present in roster", userID)
		}
	}

	var memberships int64
	if err := db.Model(&CircleMember{}).Count(&memberships).Error; err != nil {
		t.Fatalf("failed to count memberships: %v", err)
	}
	if memberships != 4 {
		t.Fatalf("expected creator plus three members, got %d", memberships)
	}
}

func TestUserIDsForTenant(t *testing.T) {
	service, _ := newTestService(t)

	tenant, err := service.CreateTenant(context.Background(), "Acme")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	other, err := service.CreateTenant(context.Background(), "Globex")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := service.CreateMember(context.Background(), tenant.TenantID, "jo@example.com", "Jo", "member"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := service.CreateMember(context.Background(), other.TenantID, "ann@example.com", "Ann", "member"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	userIDs, err := service.UserIDsForTenant(context.Background(), tenant.TenantID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(userIDs) != 1 {
		t.Fatalf("expected one member, got %v", userIDs)
	}
}

func TestListTenantsAndMembers(t *testing.T) {
	service, _ := newTestService(t)

	tenant, err := service.CreateTenant(context.Background(), "Acme")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := service.CreateTenant(context.Background(), "Globex"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tenants, err := service.ListTenants(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tenants) != 2 {
		t.Fatalf("expected two tenants, got %d", len(tenants))
	}

	if _, err := service.CreateMember(context.Background(), tenant.TenantID, "jo@example.com", "Jo", "member"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	members, err := service.ListMembers(context.Background(), tenant.TenantID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(members) != 1 || members[0].Email != "jo@example.com" {
		t.Fatalf("unexpected members %#v", members)
	}

	if _, err := service.ListMembers(context.Background(), "tenant-missing"); !errors.Is(err, fault.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAddCircleMemberDuplicateConflicts(t *testing.T) {
	service, _ := newTestService(t)

	tenant, err := service.CreateTenant(context.Background(), "Acme")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	circle, err := service.CreateCircle(context.Background(), tenant.TenantID, "Wellness", "creator-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := service.AddCircleMember(context.Background(), circle.CircleID, "user-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := service.AddCircleMember(context.Background(), circle.CircleID, "user-1"); !errors.Is(err, fault.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if err := service.AddCircleMember(context.Background(), "circle-missing", "user-1"); !errors.Is(err, fault.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
