package notifications

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
	errMissingUserID     = errors.New("recipient identifier is required")
	errBlankTitle        = errors.New("title is required")
	noOpLogger           = zap.NewNop()
)

const (
	opServiceNew  = "notifications.service.new"
	opNotify      = "notifications.notify"
	opList        = "notifications.list"
	opMarkRead    = "notifications.mark_read"
	opMarkAllRead = "notifications.mark_all_read"
	opDelete      = "notifications.delete"
	opClearAll    = "notifications.clear_all"
)

// Publisher pushes an event to connected recipients. Implementations must not
// block or fail; persistence is the durability guarantee, the push is best-effort.
type Publisher interface {
	Publish(event Event)
}

// ServiceConfig describes the dependencies for the notification service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider ids.Provider
	Publisher  Publisher
	Logger     *zap.Logger
}

// Service persists notifications and pushes them to connected recipients.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider ids.Provider
	publisher  Publisher
	logger     *zap.Logger
}

// NewService constructs the notification service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fault.New(fault.ErrInvalidArgument, opServiceNew+".missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, fault.New(fault.ErrInvalidArgument, opServiceNew+".missing_id_provider", errMissingIDProvider)
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
		idProvider: cfg.IDProvider,
		publisher:  cfg.Publisher,
		logger:     logger,
	}, nil
}

// Notify persists a notification for the recipient, then attempts a realtime
// push. The push never propagates as an error: once the row is stored the
// operation has succeeded.
func (s *Service) Notify(ctx context.Context, userID, title, message string) error {
	if userID == "" {
		return fault.New(fault.ErrInvalidArgument, opNotify+".missing_user_id", errMissingUserID)
	}
	if strings.TrimSpace(title) == "" {
		return fault.New(fault.ErrInvalidArgument, opNotify+".blank_title", errBlankTitle)
	}

	notificationID, err := s.idProvider.NewID()
	if err != nil {
		return fault.New(fault.ErrDependencyFailure, opNotify+".id_generation_failed", err)
	}
	row := Notification{
		NotificationID: notificationID,
		UserID:         userID,
		Title:          title,
		Message:        message,
		IsRead:         false,
		CreatedAt:      s.clock().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fault.New(fault.ErrDependencyFailure, opNotify+".insert_failed", err)
	}

	if s.publisher != nil {
		s.publisher.Publish(Event{
			NotificationID: row.NotificationID,
			UserID:         row.UserID,
			Title:          row.Title,
			Message:        row.Message,
			CreatedAt:      row.CreatedAt,
		})
	}
	return nil
}

// List returns the recipient's notifications, newest first.
func (s *Service) List(ctx context.Context, userID string) ([]Notification, error) {
	if userID == "" {
		return nil, fault.New(fault.ErrInvalidArgument, opList+".missing_user_id", errMissingUserID)
	}
	var rows []Notification
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		return nil, fault.New(fault.ErrDependencyFailure, opList+".query_failed", err)
	}
	return rows, nil
}

// MarkRead flags one of the recipient's notifications as read.
func (s *Service) MarkRead(ctx context.Context, userID, notificationID string) error {
	result := s.db.WithContext(ctx).
		Model(&Notification{}).
		Where("notification_id = ? AND user_id = ?", notificationID, userID).
		Update("is_read", true)
	if result.Error != nil {
		return fault.New(fault.ErrDependencyFailure, opMarkRead+".update_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return fault.New(fault.ErrNotFound, opMarkRead+".missing", nil)
	}
	return nil
}

// MarkAllRead flags every notification of the recipient as read.
func (s *Service) MarkAllRead(ctx context.Context, userID string) error {
	if userID == "" {
		return fault.New(fault.ErrInvalidArgument, opMarkAllRead+".missing_user_id", errMissingUserID)
	}
	err := s.db.WithContext(ctx).
		Model(&Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Update("is_read", true).Error
	if err != nil {
		return fault.New(fault.ErrDependencyFailure, opMarkAllRead+".update_failed", err)
	}
	return nil
}

// Delete removes one of the recipient's notifications.
func (s *Service) Delete(ctx context.Context, userID, notificationID string) error {
	result := s.db.WithContext(ctx).
		Where("notification_id = ? AND user_id = ?", notificationID, userID).
		Delete(&Notification{})
	if result.Error != nil {
		return fault.New(fault.ErrDependencyFailure, opDelete+".delete_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return fault.New(fault.ErrNotFound, opDelete+".missing", nil)
	}
	return nil
}

// ClearAll removes every notification of the recipient.
func (s *Service) ClearAll(ctx context.Context, userID string) error {
	if userID == "" {
		return fault.New(fault.ErrInvalidArgument, opClearAll+".missing_user_id", errMissingUserID)
	}
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&Notification{}).Error
	if err != nil {
		return fault.New(fault.ErrDependencyFailure, opClearAll+".delete_failed", err)
	}
	return nil
}
