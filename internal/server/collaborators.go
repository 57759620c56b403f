package server

import (
	"context"

	"github.com/MarcoPoloResearchLab/momentum/backend/internal/directory"
	"github.com/MarcoPoloResearchLab/momentum/backend/internal/participation"
	"github.com/MarcoPoloResearchLab/momentum/backend/internal/review"
)

// The workflow packages declare the collaborator slices they consume; these
// adapters bind them to the directory service at wiring time.

// ParticipationChallenges adapts the directory to participation.ChallengeSource.
type ParticipationChallenges struct {
	Directory *directory.Service
}

func (a ParticipationChallenges) ChallengeByID(ctx context.Context, challengeID string) (participation.Challenge, error) {
	challenge, err := a.Directory.ChallengeByID(ctx, challengeID)
	if err != nil {
		return participation.Challenge{}, err
	}
	return participation.Challenge{
		ChallengeID: challenge.ChallengeID,
		CircleID:    challenge.CircleID,
		Title:       challenge.Title,
		Points:      challenge.Points,
		CreatedBy:   challenge.CreatedBy,
	}, nil
}

// ReviewChallenges adapts the directory to review.ChallengeSource.
type ReviewChallenges struct {
	Directory *directory.Service
}

func (a ReviewChallenges) ChallengeByID(ctx context.Context, challengeID string) (review.Challenge, error) {
	challenge, err := a.Directory.ChallengeByID(ctx, challengeID)
	if err != nil {
		return review.Challenge{}, err
	}
	return review.Challenge{
		ChallengeID: challenge.ChallengeID,
		Title:       challenge.Title,
		Points:      challenge.Points,
	}, nil
}
