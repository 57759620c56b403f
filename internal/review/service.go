package review

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/momentum/backend/internal/fault"
	"github.com/MarcoPoloResearchLab/momentum/backend/internal/participation"
	"github.com/MarcoPoloResearchLab/momentum/backend/internal/submissions"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Decision is a moderator's verdict on a submission.
type Decision string

const (
	// DecisionApproved accepts the submission and completes the participation.
	DecisionApproved Decision = "approved"
	// DecisionRejected declines the submission and returns the participation to pending.
	DecisionRejected Decision = "rejected"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingChallenges = errors.New("challenge source is required")
	errMissingLedger     = errors.New("ledger is required")
	errMissingSubmission = errors.New("submission identifier is required")
	errUnknownDecision   = errors.New("decision must be approved or rejected")
	noOpLogger           = zap.NewNop()
)

const (
	opServiceNew = "review.service.new"
	opReview     = "review.review_submission"
)

// ParseDecision normalizes a raw decision string.
func ParseDecision(value string) (Decision, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case string(DecisionApproved):
		return DecisionApproved, nil
	case string(DecisionRejected):
		return DecisionRejected, nil
	default:
		return "", errUnknownDecision
	}
}

// Challenge is the slice of challenge data the workflow needs.
type Challenge struct {
	ChallengeID string
	Title       string
	Points      int64
}

// ChallengeSource resolves the challenge backing a submission.
type ChallengeSource interface {
	ChallengeByID(ctx context.Context, challengeID string) (Challenge, error)
}

// Ledger applies a points credit inside the workflow's transaction.
type Ledger interface {
	CreditIn(tx *gorm.DB, userID string, amount int64, at time.Time) error
}

// Notifier delivers the post-commit notification to the submitter. Failures
// are logged and never surfaced as operation failure.
type Notifier interface {
	Notify(ctx context.Context, userID, title, message string) error
}

// ServiceConfig describes the dependencies for the review workflow.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	Challenges ChallengeSource
	Ledger     Ledger
	Notifier   Notifier
	Logger     *zap.Logger
}

// Service orchestrates the submission review state machine: the coordinated
// transition across the submission, its participation, and the points ledger,
// followed by a best-effort notification to the submitter.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	challenges ChallengeSource
	ledger     Ledger
	notifier   Notifier
	logger     *zap.Logger
}

// NewService constructs the review workflow.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fault.New(fault.ErrInvalidArgument, opServiceNew+".missing_database", errMissingDatabase)
	}
	if cfg.Challenges == nil {
		return nil, fault.New(fault.ErrInvalidArgument, opServiceNew+".missing_challenges", errMissingChallenges)
	}
	if cfg.Ledger == nil {
		return nil, fault.New(fault.ErrInvalidArgument, opServiceNew+".missing_ledger", errMissingLedger)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		db:         cfg.Database,
		clock:      clock,
		challenges: cfg.Challenges,
		ledger:     cfg.Ledger,
		notifier:   cfg.Notifier,
		logger:     logger,
	}, nil
}

// Outcome carries the rows updated by a review.
type Outcome struct {
	Submission    submissions.Submission
	Participation participation.Participation
}

// Review applies a moderator decision to a submission.
//
// The submission, its participation, and any points credit are mutated in one
// transaction; the participation row is lock-selected so racing reviews of the
// same pair serialize. The credit is idempotent: approving a participation
// that is already completed updates feedback but never credits again.
func (s *Service) Review(ctx context.Context, submissionID string, decision Decision, feedback string) (Outcome, error) {
	if submissionID == "" {
		return Outcome{}, fault.New(fault.ErrInvalidArgument, opReview+".missing_submission_id", errMissingSubmission)
	}
	if decision != DecisionApproved && decision != DecisionRejected {
		return Outcome{}, fault.New(fault.ErrInvalidArgument, opReview+".bad_decision", errUnknownDecision)
	}

	var (
		outcome  Outcome
		credited bool
	)
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var submission submissions.Submission
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("submission_id = ?", submissionID).
			Take(&submission).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fault.New(fault.ErrNotFound, opReview+".submission_missing", err)
		}
		if err != nil {
			return fault.New(fault.ErrDependencyFailure, opReview+".submission_select_failed", err)
		}

		var record participation.Participation
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND challenge_id = ?", submission.UserID, submission.ChallengeID).
			Take(&record).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fault.New(fault.ErrNotFound, opReview+".participation_missing", err)
		}
		if err != nil {
			return fault.New(fault.ErrDependencyFailure, opReview+".participation_select_failed", err)
		}
		previousStatus := record.Status

		now := s.clock().UTC()
		submission.Feedback = feedback
		submission.UpdatedAt = now
		record.UpdatedAt = now

		if decision == DecisionApproved {
			submission.Status = submissions.StatusApproved
			record.Status = participation.StatusCompleted
		} else {
			submission.Status = submissions.StatusRejected
			record.Status = participation.StatusPending
		}

		if decision == DecisionApproved && previousStatus != participation.StatusCompleted {
			challenge, err := s.challenges.ChallengeByID(ctx, submission.ChallengeID)
			if err != nil {
				return err
			}
			record.EarnedPoints = challenge.Points
			credited = true
		}

		if err := tx.Save(&submission).Error; err != nil {
			return fault.New(fault.ErrDependencyFailure, opReview+".submission_save_failed", err)
		}
		if err := tx.Save(&record).Error; err != nil {
			return fault.New(fault.ErrDependencyFailure, opReview+".participation_save_failed", err)
		}
		if credited {
			if err := s.ledger.CreditIn(tx, record.UserID, record.EarnedPoints, now); err != nil {
				return fault.New(fault.ErrDependencyFailure, opReview+".credit_failed", err)
			}
		}

		outcome = Outcome{Submission: submission, Participation: record}
		return nil
	})
	if txErr != nil {
		if errors.Is(txErr, fault.ErrNotFound) ||
			errors.Is(txErr, fault.ErrInvalidArgument) ||
			errors.Is(txErr, fault.ErrDependencyFailure) {
			return Outcome{}, txErr
		}
		return Outcome{}, fault.New(fault.ErrDependencyFailure, opReview+".transaction_failed", txErr)
	}

	s.notifySubmitter(ctx, outcome, decision, feedback)
	return outcome, nil
}

// notifySubmitter emits exactly one post-commit notification to the submitting
// user. Dispatch failure does not roll back the review and is not surfaced.
func (s *Service) notifySubmitter(ctx context.Context, outcome Outcome, decision Decision, feedback string) {
	if s.notifier == nil {
		return
	}

	title := "Submission reviewed"
	challengeName := outcome.Submission.ChallengeID
	if challenge, err := s.challenges.ChallengeByID(ctx, outcome.Submission.ChallengeID); err == nil {
		challengeName = challenge.Title
	}

	var message string
	if decision == DecisionApproved {
		title = "Submission approved"
		message = fmt.Sprintf("Your submission for %q was approved.", challengeName)
		if outcome.Participation.EarnedPoints > 0 {
			message = fmt.Sprintf("%s You earned %d points.", message, outcome.Participation.EarnedPoints)
		}
	} else {
		title = "Submission rejected"
		message = fmt.Sprintf("Your submission for %q was rejected.", challengeName)
		if strings.TrimSpace(feedback) != "" {
			message = fmt.Sprintf("%s Feedback: %s", message, feedback)
		}
	}

	if err := s.notifier.Notify(ctx, outcome.Submission.UserID, title, message); err != nil {
		s.logger.Warn("review notification failed",
			zap.String("submission_id", outcome.Submission.SubmissionID),
			zap.String("recipient", outcome.Submission.UserID),
			zap.Error(err))
	}
}
