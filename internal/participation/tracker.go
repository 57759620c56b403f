package participation

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/MarcoPoloResearchLab/momentum/backend/internal/fault"
	"github.com/MarcoPoloResearchLab/momentum/backend/internal/ids"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	errMissingChallenges = errors.New("challenge source is required")
	errMissingUserID     = errors.New("user identifier is required")
	errMissingChallenge  = errors.New("challenge identifier is required")
	errNotOwner          = errors.New("participation belongs to another user")
	noOpLogger           = zap.NewNop()
)

const (
	opTrackerNew        = "participation.tracker.new"
	opJoin              = "participation.join"
	opLeave             = "participation.leave"
	opStatusForUser     = "participation.status_for_user"
	opHasParticipation  = "participation.has_participation"
	opCompletedEarnings = "participation.completed_earnings"
)

// Challenge is the slice of challenge data the tracker needs from the directory.
type Challenge struct {
	ChallengeID string
	CircleID    string
	Title       string
	Points      int64
	CreatedBy   string
}

// ChallengeSource resolves challenges for join/leave validation and fan-out.
type ChallengeSource interface {
	ChallengeByID(ctx context.Context, challengeID string) (Challenge, error)
}

// AccountEnsurer guarantees a zero-initialized points account exists for a user.
type AccountEnsurer interface {
	EnsureAccount(ctx context.Context, userID string) error
}

// Notifier delivers a notification to one user. Calls are best-effort from the
// tracker's perspective; failures are logged and never abort the operation.
type Notifier interface {
	Notify(ctx context.Context, userID, title, message string) error
}

// CircleRoster lists circle member ids minus the excluded users.
type CircleRoster interface {
	CircleRosterExcluding(ctx context.Context, circleID string, exclude ...string) ([]string, error)
}

// TrackerConfig describes the dependencies for the participation tracker.
type TrackerConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider ids.Provider
	Challenges ChallengeSource
	Accounts   AccountEnsurer
	Notifier   Notifier
	Roster     CircleRoster
	Logger     *zap.Logger
}

// Tracker owns the (user, challenge) membership records.
type Tracker struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider ids.Provider
	challenges ChallengeSource
	accounts   AccountEnsurer
	notifier   Notifier
	roster     CircleRoster
	logger     *zap.Logger
}

// NewTracker constructs the participation tracker.
func NewTracker(cfg TrackerConfig) (*Tracker, error) {
	if cfg.Database == nil {
		return nil, fault.New(fault.ErrInvalidArgument, opTrackerNew+".missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, fault.New(fault.ErrInvalidArgument, opTrackerNew+".missing_id_provider", errMissingIDProvider)
	}
	if cfg.Challenges == nil {
		return nil, fault.New(fault.ErrInvalidArgument, opTrackerNew+".missing_challenges", errMissingChallenges)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Tracker{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		challenges: cfg.Challenges,
		accounts:   cfg.Accounts,
		notifier:   cfg.Notifier,
		roster:     cfg.Roster,
		logger:     logger,
	}, nil
}

// Join creates a pending participation for the (user, challenge) pair, ensures
// the user's points account exists, and notifies the challenge creator.
func (t *Tracker) Join(ctx context.Context, userID, challengeID string) (Participation, error) {
	if userID == "" {
		return Participation{}, fault.New(fault.ErrInvalidArgument, opJoin+".missing_user_id", errMissingUserID)
	}
	if challengeID == "" {
		return Participation{}, fault.New(fault.ErrInvalidArgument, opJoin+".missing_challenge_id", errMissingChallenge)
	}

	challenge, err := t.challenges.ChallengeByID(ctx, challengeID)
	if err != nil {
		return Participation{}, err
	}

	var existing Participation
	err = t.db.WithContext(ctx).
		Where("user_id = ? AND challenge_id = ?", userID, challengeID).
		Take(&existing).Error
	if err == nil {
		return Participation{}, fault.New(fault.ErrConflict, opJoin+".already_joined", nil)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return Participation{}, fault.New(fault.ErrDependencyFailure, opJoin+".lookup_failed", err)
	}

	participationID, err := t.idProvider.NewID()
	if err != nil {
		return Participation{}, fault.New(fault.ErrDependencyFailure, opJoin+".id_generation_failed", err)
	}
	now := t.clock().UTC()
	record := Participation{
		ParticipationID: participationID,
		UserID:          userID,
		ChallengeID:     challengeID,
		Status:          StatusPending,
		EarnedPoints:    0,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := t.db.WithContext(ctx).Create(&record).Error; err != nil {
		return Participation{}, fault.New(fault.ErrDependencyFailure, opJoin+".insert_failed", err)
	}

	if t.accounts != nil {
		if err := t.accounts.EnsureAccount(ctx, userID); err != nil {
			return Participation{}, err
		}
	}

	if t.notifier != nil && challenge.CreatedBy != "" && challenge.CreatedBy != userID {
		message := fmt.Sprintf("A member joined your challenge %q.", challenge.Title)
		if err := t.notifier.Notify(ctx, challenge.CreatedBy, "New participant", message); err != nil {
			t.logger.Warn("join notification failed",
				zap.String("challenge_id", challengeID),
				zap.String("recipient", challenge.CreatedBy),
				zap.Error(err))
		}
	}

	return record, nil
}

// Leave removes the participation and notifies the challenge creator and the
// remaining circle members.
func (t *Tracker) Leave(ctx context.Context, participationID, actorUserID string) error {
	var record Participation
	err := t.db.WithContext(ctx).
		Where("participation_id = ?", participationID).
		Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fault.New(fault.ErrNotFound, opLeave+".missing", err)
	}
	if err != nil {
		return fault.New(fault.ErrDependencyFailure, opLeave+".lookup_failed", err)
	}
	if actorUserID != "" && record.UserID != actorUserID {
		return fault.New(fault.ErrNotFound, opLeave+".not_owner", errNotOwner)
	}

	if err := t.db.WithContext(ctx).Delete(&Participation{}, "participation_id = ?", participationID).Error; err != nil {
		return fault.New(fault.ErrDependencyFailure, opLeave+".delete_failed", err)
	}

	t.fanOutLeave(ctx, record)
	return nil
}

func (t *Tracker) fanOutLeave(ctx context.Context, record Participation) {
	if t.notifier == nil {
		return
	}

	challenge, err := t.challenges.ChallengeByID(ctx, record.ChallengeID)
	if err != nil {
		t.logger.Warn("leave fan-out skipped; challenge lookup failed",
			zap.String("challenge_id", record.ChallengeID),
			zap.Error(err))
		return
	}

	message := fmt.Sprintf("A member left the challenge %q.", challenge.Title)
	recipients := make([]string, 0, 1)
	if challenge.CreatedBy != "" && challenge.CreatedBy != record.UserID {
		recipients = append(recipients, challenge.CreatedBy)
	}
	if t.roster != nil {
		others, err := t.roster.CircleRosterExcluding(ctx, challenge.CircleID, record.UserID, challenge.CreatedBy)
		if err != nil {
			t.logger.Warn("leave fan-out roster lookup failed",
				zap.String("circle_id", challenge.CircleID),
				zap.Error(err))
		} else {
			recipients = append(recipients, others...)
		}
	}

	for _, recipient := range recipients {
		if err := t.notifier.Notify(ctx, recipient, "Participant left", message); err != nil {
			t.logger.Warn("leave notification failed",
				zap.String("recipient", recipient),
				zap.Error(err))
		}
	}
}

// StatusForUser returns a lazy, restartable sequence of the user's
// participation summaries. Each iteration issues a fresh query.
func (t *Tracker) StatusForUser(ctx context.Context, userID string) iter.Seq2[Summary, error] {
	return func(yield func(Summary, error) bool) {
		rows, err := t.db.WithContext(ctx).
			Model(&Participation{}).
			Select("challenge_id, status, earned_points").
			Where("user_id = ?", userID).
			Order("created_at ASC").
			Rows()
		if err != nil {
			yield(Summary{}, fault.New(fault.ErrDependencyFailure, opStatusForUser+".query_failed", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var challengeID, status string
			var earned int64
			if err := rows.Scan(&challengeID, &status, &earned); err != nil {
				yield(Summary{}, fault.New(fault.ErrDependencyFailure, opStatusForUser+".scan_failed", err))
				return
			}
			summary := Summary{ChallengeID: challengeID, Status: Status(status), EarnedPoints: earned}
			if !yield(summary, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(Summary{}, fault.New(fault.ErrDependencyFailure, opStatusForUser+".rows_failed", err))
		}
	}
}

// HasParticipation reports whether a participation exists for the pair.
func (t *Tracker) HasParticipation(ctx context.Context, userID, challengeID string) (bool, error) {
	var count int64
	err := t.db.WithContext(ctx).
		Model(&Participation{}).
		Where("user_id = ? AND challenge_id = ?", userID, challengeID).
		Count(&count).Error
	if err != nil {
		return false, fault.New(fault.ErrDependencyFailure, opHasParticipation+".query_failed", err)
	}
	return count > 0, nil
}

// CompletedEarnings sums earned points over the user's completed
// participations. It backs the ledger's read-time reconciliation.
func (t *Tracker) CompletedEarnings(ctx context.Context, userID string) (int64, error) {
	var total int64
	err := t.db.WithContext(ctx).
		Model(&Participation{}).
		Where("user_id = ? AND status = ?", userID, StatusCompleted).
		Select("COALESCE(SUM(earned_points), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, fault.New(fault.ErrDependencyFailure, opCompletedEarnings+".query_failed", err)
	}
	return total, nil
}
