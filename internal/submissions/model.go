package submissions

import "time"

// Status tracks a submission's review state.
type Status string

const (
	// StatusPending marks a submission awaiting moderator review.
	StatusPending Status = "pending"
	// StatusApproved marks a submission accepted by a moderator.
	StatusApproved Status = "approved"
	// StatusRejected marks a submission declined by a moderator.
	StatusRejected Status = "rejected"
)

// Submission is a user's proof-of-completion record for a challenge. At most
// one current row exists per (user, challenge) pair; a resubmission overwrites
// the row rather than creating a new one.
type Submission struct {
	SubmissionID string    `gorm:"column:submission_id;primaryKey;size:190;not null"`
	UserID       string    `gorm:"column:user_id;size:190;not null;uniqueIndex:idx_submissions_pair,priority:1"`
	ChallengeID  string    `gorm:"column:challenge_id;size:190;not null;uniqueIndex:idx_submissions_pair,priority:2"`
	ArtifactURL  string    `gorm:"column:artifact_url;size:512;not null"`
	Status       Status    `gorm:"column:status;size:16;not null;default:'pending'"`
	Feedback     string    `gorm:"column:feedback;type:text"`
	CreatedAt    time.Time `gorm:"column:created_at;not null"`
	UpdatedAt    time.Time `gorm:"column:updated_at;not null"`
}

// TableName exposes the table backing submissions.
func (Submission) TableName() string {
	return "submissions"
}
