package submissions

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/momentum/backend/internal/fault"
	"github.com/MarcoPoloResearchLab/momentum/backend/internal/ids"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase      = errors.New("database handle is required")
	errMissingIDProvider    = errors.New("id provider is required")
	errMissingUserID        = errors.New("user identifier is required")
	errMissingChallengeID   = errors.New("challenge identifier is required")
	errBlankArtifact        = errors.New("artifact reference is required")
	errNoParticipation      = errors.New("no participation exists for the pair")
	errMissingParticipation = errors.New("participation checker is required")
	noOpLogger              = zap.NewNop()
)

const (
	opStoreNew = "submissions.store.new"
	opSubmit   = "submissions.submit"
	opByID     = "submissions.by_id"
	opForUser  = "submissions.for_user"
)

// ParticipationChecker reports whether a (user, challenge) participation exists.
// A submission requires prior participation.
type ParticipationChecker interface {
	HasParticipation(ctx context.Context, userID, challengeID string) (bool, error)
}

// StoreConfig describes the dependencies for the submission store.
type StoreConfig struct {
	Database       *gorm.DB
	Clock          func() time.Time
	IDProvider     ids.Provider
	Participations ParticipationChecker
	Logger         *zap.Logger
}

// Store owns the proof-of-completion rows and their upsert semantics.
type Store struct {
	db             *gorm.DB
	clock          func() time.Time
	idProvider     ids.Provider
	participations ParticipationChecker
	logger         *zap.Logger
}

// NewStore constructs the submission store.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Database == nil {
		return nil, fault.New(fault.ErrInvalidArgument, opStoreNew+".missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, fault.New(fault.ErrInvalidArgument, opStoreNew+".missing_id_provider", errMissingIDProvider)
	}
	if cfg.Participations == nil {
		return nil, fault.New(fault.ErrInvalidArgument, opStoreNew+".missing_participations", errMissingParticipation)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Store{
		db:             cfg.Database,
		clock:          clock,
		idProvider:     cfg.IDProvider,
		participations: cfg.Participations,
		logger:         logger,
	}, nil
}

// Submit records proof of completion for the (user, challenge) pair. The write
// is an upsert keyed on the pair's unique constraint: a resubmission overwrites
// the artifact, resets the status to pending, and clears previous feedback
// without creating a second row.
func (s *Store) Submit(ctx context.Context, userID, challengeID, artifactURL string) (Submission, error) {
	if userID == "" {
		return Submission{}, fault.New(fault.ErrInvalidArgument, opSubmit+".missing_user_id", errMissingUserID)
	}
	if challengeID == "" {
		return Submission{}, fault.New(fault.ErrInvalidArgument, opSubmit+".missing_challenge_id", errMissingChallengeID)
	}
	artifact := strings.TrimSpace(artifactURL)
	if artifact == "" {
		return Submission{}, fault.New(fault.ErrInvalidArgument, opSubmit+".blank_artifact", errBlankArtifact)
	}

	joined, err := s.participations.HasParticipation(ctx, userID, challengeID)
	if err != nil {
		return Submission{}, fault.New(fault.ErrDependencyFailure, opSubmit+".participation_check_failed", err)
	}
	if !joined {
		return Submission{}, fault.New(fault.ErrNotFound, opSubmit+".no_participation", errNoParticipation)
	}

	submissionID, err := s.idProvider.NewID()
	if err != nil {
		return Submission{}, fault.New(fault.ErrDependencyFailure, opSubmit+".id_generation_failed", err)
	}
	now := s.clock().UTC()
	candidate := Submission{
		SubmissionID: submissionID,
		UserID:       userID,
		ChallengeID:  challengeID,
		ArtifactURL:  artifact,
		Status:       StatusPending,
		Feedback:     "",
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "challenge_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"artifact_url": artifact,
			"status":       string(StatusPending),
			"feedback":     "",
			"updated_at":   now,
		}),
	}).Create(&candidate).Error
	if err != nil {
		return Submission{}, fault.New(fault.ErrDependencyFailure, opSubmit+".upsert_failed", err)
	}

	// Re-read: on conflict the existing row keeps its original id.
	var stored Submission
	err = s.db.WithContext(ctx).
		Where("user_id = ? AND challenge_id = ?", userID, challengeID).
		Take(&stored).Error
	if err != nil {
		return Submission{}, fault.New(fault.ErrDependencyFailure, opSubmit+".reload_failed", err)
	}
	return stored, nil
}

// ByID resolves a submission.
func (s *Store) ByID(ctx context.Context, submissionID string) (Submission, error) {
	var submission Submission
	err := s.db.WithContext(ctx).Where("submission_id = ?", submissionID).Take(&submission).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Submission{}, fault.New(fault.ErrNotFound, opByID+".missing", err)
	}
	if err != nil {
		return Submission{}, fault.New(fault.ErrDependencyFailure, opByID+".lookup_failed", err)
	}
	return submission, nil
}

// ForUser returns the user's submissions, newest first.
func (s *Store) ForUser(ctx context.Context, userID string) ([]Submission, error) {
	var rows []Submission
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Find(&rows).Error; err != nil {
		return nil, fault.New(fault.ErrDependencyFailure, opForUser+".query_failed", err)
	}
	return rows, nil
}
