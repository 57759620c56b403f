package directory

import "time"

const (
	// RoleMember is the default role for tenant members.
	RoleMember = "member"
	// RoleModerator marks members allowed to review submissions.
	RoleModerator = "moderator"
)

// Tenant is an organization owning circles and members.
type Tenant struct {
	TenantID  string    `gorm:"column:tenant_id;primaryKey;size:190;not null" json:"tenant_id"`
	Name      string    `gorm:"column:name;size:190;uniqueIndex;not null" json:"name"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// TableName exposes the table backing tenants.
func (Tenant) TableName() string {
	return "tenants"
}

// Member is a user within a tenant. The (tenant, email) pair is unique.
type Member struct {
	UserID      string    `gorm:"column:user_id;primaryKey;size:190;not null" json:"user_id"`
	TenantID    string    `gorm:"column:tenant_id;size:190;not null;uniqueIndex:idx_members_tenant_email,priority:1" json:"tenant_id"`
	Email       string    `gorm:"column:email;size:320;not null;uniqueIndex:idx_members_tenant_email,priority:2" json:"email"`
	DisplayName string    `gorm:"column:display_name;size:320" json:"display_name"`
	Role        string    `gorm:"column:role;size:32;not null;default:'member'" json:"role"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// TableName exposes the table backing tenant members.
func (Member) TableName() string {
	return "members"
}

// Circle is a team within a tenant that runs challenges.
type Circle struct {
	CircleID  string    `gorm:"column:circle_id;primaryKey;size:190;not null" json:"circle_id"`
	TenantID  string    `gorm:"column:tenant_id;size:190;not null;uniqueIndex:idx_circles_tenant_name,priority:1" json:"tenant_id"`
	Name      string    `gorm:"column:name;size:190;not null;uniqueIndex:idx_circles_tenant_name,priority:2" json:"name"`
	CreatedBy string    `gorm:"column:created_by;size:190;not null" json:"created_by"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// TableName exposes the table backing circles.
func (Circle) TableName() string {
	return "circles"
}

// CircleMember records a member's presence in a circle.
type CircleMember struct {
	CircleID  string    `gorm:"column:circle_id;primaryKey;size:190;not null" json:"circle_id"`
	UserID    string    `gorm:"column:user_id;primaryKey;size:190;not null" json:"user_id"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

// TableName exposes the table backing circle membership.
func (CircleMember) TableName() string {
	return "circle_members"
}

// Challenge is a point-valued task scoped to a circle.
type Challenge struct {
	ChallengeID string    `gorm:"column:challenge_id;primaryKey;size:190;not null" json:"challenge_id"`
	CircleID    string    `gorm:"column:circle_id;size:190;not null;index" json:"circle_id"`
	Title       string    `gorm:"column:title;size:190;not null" json:"title"`
	Description string    `gorm:"column:description;type:text" json:"description"`
	Points      int64     `gorm:"column:points;not null" json:"points"`
	CreatedBy   string    `gorm:"column:created_by;size:190;not null" json:"created_by"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// TableName exposes the table backing challenges.
func (Challenge) TableName() string {
	return "challenges"
}
