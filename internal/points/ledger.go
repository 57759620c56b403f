package points

import (
	"context"
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/momentum/backend/internal/fault"
	"github.com/MarcoPoloResearchLab/momentum/backend/internal/ids"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	errMissingEarnings   = errors.New("earnings source is required")
	errMissingUserID     = errors.New("user identifier is required")
	errNegativeAmount    = errors.New("credit amount must not be negative")
	noOpLogger           = zap.NewNop()
)

const (
	opLedgerNew     = "points.ledger.new"
	opEnsureAccount = "points.ensure_account"
	opCredit        = "points.credit"
	opGetTotal      = "points.get_total"
	opTopN          = "points.top_n"
)

// EarningsSource reports the sum of earned points across a user's completed
// participations. The ledger reconciles its stored totals against it on read.
type EarningsSource interface {
	CompletedEarnings(ctx context.Context, userID string) (int64, error)
}

// EarningsFunc adapts a function to the EarningsSource interface.
type EarningsFunc func(ctx context.Context, userID string) (int64, error)

// CompletedEarnings calls f.
func (f EarningsFunc) CompletedEarnings(ctx context.Context, userID string) (int64, error) {
	return f(ctx, userID)
}

// Roster lists the user ids belonging to a tenant for leaderboard scoping.
type Roster interface {
	UserIDsForTenant(ctx context.Context, tenantID string) ([]string, error)
}

// LedgerConfig describes the dependencies for the points ledger.
type LedgerConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider ids.Provider
	Earnings   EarningsSource
	Roster     Roster
	Logger     *zap.Logger
}

// Ledger owns each user's cumulative points total. The stored total is a
// reconciled cache of the sum of earned points over completed participations,
// not an independent source of truth.
type Ledger struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider ids.Provider
	earnings   EarningsSource
	roster     Roster
	logger     *zap.Logger
}

// NewLedger constructs the points ledger.
func NewLedger(cfg LedgerConfig) (*Ledger, error) {
	if cfg.Database == nil {
		return nil, fault.New(fault.ErrInvalidArgument, opLedgerNew+".missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, fault.New(fault.ErrInvalidArgument, opLedgerNew+".missing_id_provider", errMissingIDProvider)
	}
	if cfg.Earnings == nil {
		return nil, fault.New(fault.ErrInvalidArgument, opLedgerNew+".missing_earnings", errMissingEarnings)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Ledger{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		earnings:   cfg.Earnings,
		roster:     cfg.Roster,
		logger:     logger,
	}, nil
}

// EnsureAccount creates a zero-initialized account for the user when absent.
func (l *Ledger) EnsureAccount(ctx context.Context, userID string) error {
	if userID == "" {
		return fault.New(fault.ErrInvalidArgument, opEnsureAccount+".missing_user_id", errMissingUserID)
	}
	_, err := l.ensureAccountIn(l.db.WithContext(ctx), userID)
	if err != nil {
		return fault.New(fault.ErrDependencyFailure, opEnsureAccount+".store_failed", err)
	}
	return nil
}

// Credit adds amount to the user's total, creating the account when absent.
func (l *Ledger) Credit(ctx context.Context, userID string, amount int64) error {
	if userID == "" {
		return fault.New(fault.ErrInvalidArgument, opCredit+".missing_user_id", errMissingUserID)
	}
	if amount < 0 {
		return fault.New(fault.ErrInvalidArgument, opCredit+".negative_amount", errNegativeAmount)
	}
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return l.CreditIn(tx, userID, amount, l.clock().UTC())
	})
	if err != nil {
		if errors.Is(err, fault.ErrInvalidArgument) {
			return err
		}
		return fault.New(fault.ErrDependencyFailure, opCredit+".store_failed", err)
	}
	return nil
}

// CreditIn applies the credit inside the caller's transaction so the increment
// commits or aborts together with the caller's own writes. The account row is
// lock-selected to serialize concurrent credits for the same user.
func (l *Ledger) CreditIn(tx *gorm.DB, userID string, amount int64, at time.Time) error {
	account, err := l.lockAccountIn(tx, userID)
	if err != nil {
		return err
	}
	return tx.Model(&Account{}).
		Where("account_id = ?", account.AccountID).
		Updates(map[string]interface{}{
			"total_points": gorm.Expr("total_points + ?", amount),
			"updated_at":   at,
		}).Error
}

// GetTotal returns the user's total after reconciling the stored value against
// the sum of earned points over completed participations. A drifted cache is
// corrected before returning.
func (l *Ledger) GetTotal(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, fault.New(fault.ErrInvalidArgument, opGetTotal+".missing_user_id", errMissingUserID)
	}

	earned, err := l.earnings.CompletedEarnings(ctx, userID)
	if err != nil {
		return 0, fault.New(fault.ErrDependencyFailure, opGetTotal+".earnings_failed", err)
	}

	txErr := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		account, err := l.lockAccountIn(tx, userID)
		if err != nil {
			return err
		}
		if account.TotalPoints == earned {
			return nil
		}
		l.logger.Warn("points total drifted from earnings; repairing",
			zap.String("user_id", userID),
			zap.Int64("stored", account.TotalPoints),
			zap.Int64("earned", earned))
		return tx.Model(&Account{}).
			Where("account_id = ?", account.AccountID).
			Updates(map[string]interface{}{
				"total_points": earned,
				"updated_at":   l.clock().UTC(),
			}).Error
	})
	if txErr != nil {
		return 0, fault.New(fault.ErrDependencyFailure, opGetTotal+".store_failed", txErr)
	}
	return earned, nil
}

// Standing is one leaderboard row.
type Standing struct {
	AccountID   string
	UserID      string
	TotalPoints int64
}

// TopN returns the tenant's top accounts by total, descending, ties broken by
// ascending account id for determinism.
func (l *Ledger) TopN(ctx context.Context, tenantID string, n int) ([]Standing, error) {
	if n <= 0 {
		return nil, fault.New(fault.ErrInvalidArgument, opTopN+".bad_limit", errors.New("limit must be positive"))
	}
	if l.roster == nil {
		return nil, fault.New(fault.ErrInvalidArgument, opTopN+".missing_roster", errors.New("roster is required"))
	}

	userIDs, err := l.roster.UserIDsForTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if len(userIDs) == 0 {
		return nil, nil
	}

	var accounts []Account
	if err := l.db.WithContext(ctx).
		Where("user_id IN ?", userIDs).
		Order("total_points DESC, account_id ASC").
		Limit(n).
		Find(&accounts).Error; err != nil {
		return nil, fault.New(fault.ErrDependencyFailure, opTopN+".query_failed", err)
	}

	standings := make([]Standing, 0, len(accounts))
	for _, account := range accounts {
		standings = append(standings, Standing{
			AccountID:   account.AccountID,
			UserID:      account.UserID,
			TotalPoints: account.TotalPoints,
		})
	}
	return standings, nil
}

// lockAccountIn loads the user's account under a row lock, creating a zero row
// first when none exists.
func (l *Ledger) lockAccountIn(tx *gorm.DB, userID string) (Account, error) {
	var account Account
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		Take(&account).Error
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return Account{}, err
	}

	created, err := l.ensureAccountIn(tx, userID)
	if err != nil {
		return Account{}, err
	}
	return created, nil
}

func (l *Ledger) ensureAccountIn(tx *gorm.DB, userID string) (Account, error) {
	accountID, err := l.idProvider.NewID()
	if err != nil {
		return Account{}, err
	}
	account := Account{AccountID: accountID, UserID: userID, TotalPoints: 0, UpdatedAt: l.clock().UTC()}
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(&account).Error; err != nil {
		return Account{}, err
	}

	// Re-read so a concurrent creator's row wins over the candidate above.
	var stored Account
	if err := tx.Where("user_id = ?", userID).Take(&stored).Error; err != nil {
		return Account{}, err
	}
	return stored, nil
}
