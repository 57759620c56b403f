package points

import "time"

// Account is the per-user cumulative points row. Exactly one row exists per
// user; it is lazily created on first participation or first query.
type Account struct {
	AccountID   string    `gorm:"column:account_id;primaryKey;size:190;not null"`
	UserID      string    `gorm:"column:user_id;size:190;uniqueIndex;not null"`
	TotalPoints int64     `gorm:"column:total_points;not null;default:0"`
	UpdatedAt   time.Time `gorm:"column:updated_at;not null"`
}

// TableName exposes the table backing points accounts.
func (Account) TableName() string {
	return "points_accounts"
}
