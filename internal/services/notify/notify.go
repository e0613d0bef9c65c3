// Package notify delivers workflow events to operators.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xelth-com/eckbackoffice/internal/apperrors"
	"github.com/xelth-com/eckbackoffice/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Event types
const (
	TypeClientSubmitted = "client_submitted"
	TypeClientApproved  = "client_approved"
	TypeClientRejected  = "client_rejected"
)

// Event is one notification. A nil RecipientID addresses everybody.
type Event struct {
	Type        string         `json:"type"`
	Message     string         `json:"message"`
	Payload     map[string]any `json:"payload"`
	RecipientID *uint          `json:"recipientId,omitempty"`
}

// Sink accepts events
type Sink interface {
	Publish(ctx context.Context, ev Event) error
}

// Multi fans an event out to every sink and joins their errors
type Multi []Sink

// Publish implements Sink
func (m Multi) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Store keeps events as in-app notifications
type Store struct {
	db *gorm.DB
}

// NewStore creates a Store
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Publish implements Sink
func (s *Store) Publish(ctx context.Context, ev Event) error {
	n := models.Notification{
		RecipientID: ev.RecipientID,
		Type:        ev.Type,
		Message:     ev.Message,
		Payload:     datatypes.JSONMap(ev.Payload),
	}
	if err := s.db.WithContext(ctx).Create(&n).Error; err != nil {
		return fmt.Errorf("store notification: %w", err)
	}
	return nil
}

// ListFor returns the latest notifications visible to a user
func (s *Store) ListFor(ctx context.Context, userID uint, unreadOnly bool, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	q := s.db.WithContext(ctx).
		Where("recipient_id = ? OR recipient_id IS NULL", userID)
	if unreadOnly {
		q = q.Where("read_at IS NULL")
	}
	var out []models.Notification
	if err := q.Order("created_at DESC, id DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// MarkRead stamps a notification addressed to userID as read
func (s *Store) MarkRead(ctx context.Context, userID, id uint) error {
	now := time.Now().UTC()
	res := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ? AND (recipient_id = ? OR recipient_id IS NULL)", id, userID).
		Update("read_at", now)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperrors.NotFound("notification", id)
	}
	return nil
}
