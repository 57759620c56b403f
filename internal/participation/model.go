package participation

import "time"

// Status tracks a participant's progress within a challenge.
type Status string

const (
	// StatusPending marks a participation awaiting an approved submission.
	StatusPending Status = "pending"
	// StatusCompleted marks a participation whose submission was approved.
	StatusCompleted Status = "completed"
)

// Participation is a user's membership record for a challenge. At most one
// row exists per (user, challenge) pair.
type Participation struct {
	ParticipationID string    `gorm:"column:participation_id;primaryKey;size:190;not null"`
	UserID          string    `gorm:"column:user_id;size:190;not null;uniqueIndex:idx_participations_pair,priority:1"`
	ChallengeID     string    `gorm:"column:challenge_id;size:190;not null;uniqueIndex:idx_participations_pair,priority:2"`
	Status          Status    `gorm:"column:status;size:16;not null;default:'pending'"`
	EarnedPoints    int64     `gorm:"column:earned_points;not null;default:0"`
	CreatedAt       time.Time `gorm:"column:created_at;not null"`
	UpdatedAt       time.Time `gorm:"column:updated_at;not null"`
}

// TableName exposes the table backing participations.
func (Participation) TableName() string {
	return "participations"
}

// Summary is the read-model row produced by StatusForUser.
type Summary struct {
	ChallengeID  string
	Status       Status
	EarnedPoints int64
}
