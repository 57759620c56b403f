package directory

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/momentum/backend/internal/fault"
	"github.com/MarcoPoloResearchLab/momentum/backend/internal/ids"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	errBlankName         = errors.New("name is required")
	errBlankEmail        = errors.New("email is required")
	errBlankTitle        = errors.New("title is required")
	errNegativePoints    = errors.New("points must not be negative")
	noOpLogger           = zap.NewNop()
)

const (
	opCreateTenant     = "directory.create_tenant"
	opCreateMember     = "directory.create_member"
	opCreateCircle     = "directory.create_circle"
	opAddCircleMember  = "directory.add_circle_member"
	opCreateChallenge  = "directory.create_challenge"
	opChallengeByID    = "directory.challenge_by_id"
	opMemberByID       = "directory.member_by_id"
	opListTenants      = "directory.list_tenants"
	opListMembers      = "directory.list_members"
	opListCircles      = "directory.list_circles"
	opListChallenges   = "directory.list_challenges"
	opTenantUserIDs    = "directory.tenant_user_ids"
	opCircleRoster     = "directory.circle_roster"
	opDirectoryService = "directory.service.new"
)

// ServiceConfig describes the dependencies for the directory service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider ids.Provider
	Logger     *zap.Logger
}

// Service manages tenants, members, circles, and challenges.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider ids.Provider
	logger     *zap.Logger
}

// NewService constructs the directory service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fault.New(fault.ErrInvalidArgument, opDirectoryService+".missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, fault.New(fault.ErrInvalidArgument, opDirectoryService+".missing_id_provider", errMissingIDProvider)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{db: cfg.Database, clock: clock, idProvider: cfg.IDProvider, logger: logger}, nil
}

// CreateTenant registers a new tenant with a unique name.
func (s *Service) CreateTenant(ctx context.Context, name string) (Tenant, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return Tenant{}, fault.New(fault.ErrInvalidArgument, opCreateTenant+".blank_name", errBlankName)
	}

	var existing Tenant
	err := s.db.WithContext(ctx).Where("name = ?", trimmed).Take(&existing).Error
	if err == nil {
		return Tenant{}, fault.New(fault.ErrConflict, opCreateTenant+".duplicate_name", nil)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return Tenant{}, fault.New(fault.ErrDependencyFailure, opCreateTenant+".lookup_failed", err)
	}

	tenantID, err := s.idProvider.NewID()
	if err != nil {
		return Tenant{}, fault.New(fault.ErrDependencyFailure, opCreateTenant+".id_generation_failed", err)
	}
	tenant := Tenant{TenantID: tenantID, Name: trimmed}
	if err := s.db.WithContext(ctx).Create(&tenant).Error; err != nil {
		return Tenant{}, fault.New(fault.ErrDependencyFailure, opCreateTenant+".insert_failed", err)
	}
	return tenant, nil
}

// CreateMember registers a tenant member. The (tenant, email) pair is unique.
func (s *Service) CreateMember(ctx context.Context, tenantID, email, displayName, role string) (Member, error) {
	trimmedEmail := strings.ToLower(strings.TrimSpace(email))
	if trimmedEmail == "" {
		return Member{}, fault.New(fault.ErrInvalidArgument, opCreateMember+".blank_email", errBlankEmail)
	}
	normalizedRole, err := parseRole(role)
	if err != nil {
		return Member{}, fault.New(fault.ErrInvalidArgument, opCreateMember+".bad_role", err)
	}

	if err := s.requireTenant(ctx, tenantID, opCreateMember); err != nil {
		return Member{}, err
	}

	var existing Member
	err = s.db.WithContext(ctx).Where("tenant_id = ? AND email = ?", tenantID, trimmedEmail).Take(&existing).Error
	if err == nil {
		return Member{}, fault.New(fault.ErrConflict, opCreateMember+".duplicate_email", nil)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return Member{}, fault.New(fault.ErrDependencyFailure, opCreateMember+".lookup_failed", err)
	}

	userID, err := s.idProvider.NewID()
	if err != nil {
		return Member{}, fault.New(fault.ErrDependencyFailure, opCreateMember+".id_generation_failed", err)
	}
	member := Member{
		UserID:      userID,
		TenantID:    tenantID,
		Email:       trimmedEmail,
		DisplayName: strings.TrimSpace(displayName),
		Role:        normalizedRole,
	}
	if err := s.db.WithContext(ctx).Create(&member).Error; err != nil {
		return Member{}, fault.New(fault.ErrDependencyFailure, opCreateMember+".insert_failed", err)
	}
	return member, nil
}

// CreateCircle registers a circle within a tenant. The (tenant, name) pair is unique.
func (s *Service) CreateCircle(ctx context.Context, tenantID, name, createdBy string) (Circle, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return Circle{}, fault.New(fault.ErrInvalidArgument, opCreateCircle+".blank_name", errBlankName)
	}

	if err := s.requireTenant(ctx, tenantID, opCreateCircle); err != nil {
		return Circle{}, err
	}

	var existing Circle
	err := s.db.WithContext(ctx).Where("tenant_id = ? AND name = ?", tenantID, trimmed).Take(&existing).Error
	if err == nil {
		return Circle{}, fault.New(fault.ErrConflict, opCreateCircle+".duplicate_name", nil)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return Circle{}, fault.New(fault.ErrDependencyFailure, opCreateCircle+".lookup_failed", err)
	}

	circleID, err := s.idProvider.NewID()
	if err != nil {
		return Circle{}, fault.New(fault.ErrDependencyFailure, opCreateCircle+".id_generation_failed", err)
	}
	circle := Circle{CircleID: circleID, TenantID: tenantID, Name: trimmed, CreatedBy: createdBy}
	if err := s.db.WithContext(ctx).Create(&circle).Error; err != nil {
		return Circle{}, fault.New(fault.ErrDependencyFailure, opCreateCircle+".insert_failed", err)
	}

	// The creator is a member of their own circle from the start.
	if createdBy != "" {
		membership := CircleMember{CircleID: circleID, UserID: createdBy}
		if err := s.db.WithContext(ctx).Create(&membership).Error; err != nil {
			return Circle{}, fault.New(fault.ErrDependencyFailure, opCreateCircle+".membership_insert_failed", err)
		}
	}
	return circle, nil
}

// AddCircleMember records a member joining a circle.
func (s *Service) AddCircleMember(ctx context.Context, circleID, userID string) error {
	var circle Circle
	err := s.db.WithContext(ctx).Where("circle_id = ?", circleID).Take(&circle).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fault.New(fault.ErrNotFound, opAddCircleMember+".circle_missing", err)
	}
	if err != nil {
		return fault.New(fault.ErrDependencyFailure, opAddCircleMember+".lookup_failed", err)
	}

	var existing CircleMember
	err = s.db.WithContext(ctx).Where("circle_id = ? AND user_id = ?", circleID, userID).Take(&existing).Error
	if err == nil {
		return fault.New(fault.ErrConflict, opAddCircleMember+".already_member", nil)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fault.New(fault.ErrDependencyFailure, opAddCircleMember+".lookup_failed", err)
	}

	membership := CircleMember{CircleID: circleID, UserID: userID}
	if err := s.db.WithContext(ctx).Create(&membership).Error; err != nil {
		return fault.New(fault.ErrDependencyFailure, opAddCircleMember+".insert_failed", err)
	}
	return nil
}

// CreateChallenge registers a point-valued challenge within a circle.
func (s *Service) CreateChallenge(ctx context.Context, circleID, title, description string, points int64, createdBy string) (Challenge, error) {
	trimmed := strings.TrimSpace(title)
	if trimmed == "" {
		return Challenge{}, fault.New(fault.ErrInvalidArgument, opCreateChallenge+".blank_title", errBlankTitle)
	}
	if points < 0 {
		return Challenge{}, fault.New(fault.ErrInvalidArgument, opCreateChallenge+".negative_points", errNegativePoints)
	}

	var circle Circle
	err := s.db.WithContext(ctx).Where("circle_id = ?", circleID).Take(&circle).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Challenge{}, fault.New(fault.ErrNotFound, opCreateChallenge+".circle_missing", err)
	}
	if err != nil {
		return Challenge{}, fault.New(fault.ErrDependencyFailure, opCreateChallenge+".lookup_failed", err)
	}

	challengeID, err := s.idProvider.NewID()
	if err != nil {
		return Challenge{}, fault.New(fault.ErrDependencyFailure, opCreateChallenge+".id_generation_failed", err)
	}
	challenge := Challenge{
		ChallengeID: challengeID,
		CircleID:    circleID,
		Title:       trimmed,
		Description: strings.TrimSpace(description),
		Points:      points,
		CreatedBy:   createdBy,
	}
	if err := s.db.WithContext(ctx).Create(&challenge).Error; err != nil {
		return Challenge{}, fault.New(fault.ErrDependencyFailure, opCreateChallenge+".insert_failed", err)
	}
	return challenge, nil
}

// ChallengeByID resolves a challenge.
func (s *Service) ChallengeByID(ctx context.Context, challengeID string) (Challenge, error) {
	var challenge Challenge
	err := s.db.WithContext(ctx).Where("challenge_id = ?", challengeID).Take(&challenge).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Challenge{}, fault.New(fault.ErrNotFound, opChallengeByID+".missing", err)
	}
	if err != nil {
		return Challenge{}, fault.New(fault.ErrDependencyFailure, opChallengeByID+".lookup_failed", err)
	}
	return challenge, nil
}

// MemberByID resolves a tenant member.
func (s *Service) MemberByID(ctx context.Context, userID string) (Member, error) {
	var member Member
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Take(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Member{}, fault.New(fault.ErrNotFound, opMemberByID+".missing", err)
	}
	if err != nil {
		return Member{}, fault.New(fault.ErrDependencyFailure, opMemberByID+".lookup_failed", err)
	}
	return member, nil
}

// ListTenants returns all registered tenants.
func (s *Service) ListTenants(ctx context.Context) ([]Tenant, error) {
	var tenants []Tenant
	if err := s.db.WithContext(ctx).
		Order("created_at ASC").
		Find(&tenants).Error; err != nil {
		return nil, fault.New(fault.ErrDependencyFailure, opListTenants+".query_failed", err)
	}
	return tenants, nil
}

// ListMembers returns all members of a tenant.
func (s *Service) ListMembers(ctx context.Context, tenantID string) ([]Member, error) {
	if err := s.requireTenant(ctx, tenantID, opListMembers); err != nil {
		return nil, err
	}
	var members []Member
	if err := s.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at ASC").
		Find(&members).Error; err != nil {
		return nil, fault.New(fault.ErrDependencyFailure, opListMembers+".query_failed", err)
	}
	return members, nil
}

// ListCircles returns all circles for a tenant.
func (s *Service) ListCircles(ctx context.Context, tenantID string) ([]Circle, error) {
	var circles []Circle
	if err := s.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at ASC").
		Find(&circles).Error; err != nil {
		return nil, fault.New(fault.ErrDependencyFailure, opListCircles+".query_failed", err)
	}
	return circles, nil
}

// ListChallenges returns all challenges for a circle.
func (s *Service) ListChallenges(ctx context.Context, circleID string) ([]Challenge, error) {
	var challenges []Challenge
	if err := s.db.WithContext(ctx).
		Where("circle_id = ?", circleID).
		Order("created_at ASC").
		Find(&challenges).Error; err != nil {
		return nil, fault.New(fault.ErrDependencyFailure, opListChallenges+".query_failed", err)
	}
	return challenges, nil
}

// UserIDsForTenant lists the user ids of a tenant's members.
func (s *Service) UserIDsForTenant(ctx context.Context, tenantID string) ([]string, error) {
	var userIDs []string
	if err := s.db.WithContext(ctx).
		Model(&Member{}).
		Where("tenant_id = ?", tenantID).
		Pluck("user_id", &userIDs).Error; err != nil {
		return nil, fault.New(fault.ErrDependencyFailure, opTenantUserIDs+".query_failed", err)
	}
	return userIDs, nil
}

// CircleRosterExcluding lists a circle's member ids without the excluded users.
func (s *Service) CircleRosterExcluding(ctx context.Context, circleID string, exclude ...string) ([]string, error) {
	query := s.db.WithContext(ctx).
		Model(&CircleMember{}).
		Where("circle_id = ?", circleID)
	if len(exclude) > 0 {
		query = query.Where("user_id NOT IN ?", exclude)
	}
	var userIDs []string
	if err := query.Pluck("user_id", &userIDs).Error; err != nil {
		return nil, fault.New(fault.ErrDependencyFailure, opCircleRoster+".query_failed", err)
	}
	return userIDs, nil
}

func (s *Service) requireTenant(ctx context.Context, tenantID, operation string) error {
	var tenant Tenant
	err := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID).Take(&tenant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fault.New(fault.ErrNotFound, operation+".tenant_missing", err)
	}
	if err != nil {
		return fault.New(fault.ErrDependencyFailure, operation+".lookup_failed", err)
	}
	return nil
}

func parseRole(value string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case RoleMember, "":
		return RoleMember, nil
	case RoleModerator:
		return RoleModerator, nil
	default:
		return "", errors.New("role must be member or moderator")
	}
}
