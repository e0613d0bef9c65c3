// Package clients manages pending clients before and between approval decisions.
package clients

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xelth-com/eckbackoffice/internal/apperrors"
	"github.com/xelth-com/eckbackoffice/internal/models"
	"github.com/xelth-com/eckbackoffice/internal/services/access"
	"github.com/xelth-com/eckbackoffice/internal/services/allocator"
	"github.com/xelth-com/eckbackoffice/internal/validation"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Input is the editable part of a pending client
type Input struct {
	AccountNumber *string `json:"accountNumber" validate:"omitempty,number,max=32"`
	models.ClientDetails
}

// Filter narrows List
type Filter struct {
	Status    models.ClientStatus
	CreatedBy *uint
}

// Service is the pending client store
type Service struct {
	db       *gorm.DB
	validate *validation.Validator
	log      *zap.Logger
}

// NewService creates a pending client Service
func NewService(db *gorm.DB, v *validation.Validator, log *zap.Logger) *Service {
	if v == nil {
		v = validation.New()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{db: db, validate: v, log: log}
}

// Create stores a new draft owned by the actor
func (s *Service) Create(ctx context.Context, actor access.Actor, in Input) (*models.PendingClient, error) {
	if !actor.Can(access.CreatePendingClients) && !actor.Can(access.ManagePendingClients) {
		return nil, apperrors.Forbidden("permission %s required", access.CreatePendingClients)
	}
	in.AccountNumber = normalizeNumber(in.AccountNumber)
	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}

	client := models.PendingClient{
		AccountNumber: in.AccountNumber,
		ClientDetails: in.ClientDetails,
		Status:        models.ClientStatusDraft,
		CreatedBy:     actor.UserRef(),
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := checkNumber(ctx, tx, client.AccountNumber, 0); err != nil {
			return err
		}
		return tx.Create(&client).Error
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("pending client created", zap.Uint("client", client.ID), zap.Uint("by", actor.UserID))
	return &client, nil
}

// Update replaces the editable fields. Approved requests are frozen.
func (s *Service) Update(ctx context.Context, actor access.Actor, id uint, in Input) (*models.PendingClient, error) {
	in.AccountNumber = normalizeNumber(in.AccountNumber)
	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}

	var client models.PendingClient
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		client, err = load(tx, id)
		if err != nil {
			return err
		}
		if err := authorize(actor, client); err != nil {
			return err
		}
		if !client.Editable() {
			return apperrors.InvalidState("pending client %d is %s and can no longer be edited", id, client.Status)
		}
		if err := checkNumber(ctx, tx, in.AccountNumber, client.ID); err != nil {
			return err
		}

		client.AccountNumber = in.AccountNumber
		client.ClientDetails = in.ClientDetails
		res := tx.Model(&models.PendingClient{}).
			Where("id = ? AND status = ?", client.ID, client.Status).
			Select("account_number", "name", "address_line1", "address_line2", "city", "country",
				"phone", "email", "category", "tax_id", "type", "request_date", "invoiced_amount",
				"paid_amount", "credit", "reason", "establishment", "service", "signer_name").
			Updates(&client)
		if res.Error != nil {
			return fmt.Errorf("update pending client %d: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return apperrors.Conflict("pending client %d changed concurrently", id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &client, nil
}

// Delete removes a request that never became a tier. Its approval records stay
// with a cleared pending client reference.
func (s *Service) Delete(ctx context.Context, actor access.Actor, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		client, err := load(tx, id)
		if err != nil {
			return err
		}
		if err := authorize(actor, client); err != nil {
			return err
		}
		if client.Status == models.ClientStatusApproved {
			return apperrors.InvalidState("approved pending client %d cannot be deleted", id)
		}
		res := tx.Where("id = ? AND status = ?", id, client.Status).Delete(&models.PendingClient{})
		if res.Error != nil {
			return fmt.Errorf("delete pending client %d: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return apperrors.Conflict("pending client %d changed concurrently", id)
		}
		s.log.Info("pending client deleted", zap.Uint("client", id), zap.Uint("by", actor.UserID))
		return nil
	})
}

// Get returns one pending client
func (s *Service) Get(ctx context.Context, id uint) (*models.PendingClient, error) {
	client, err := load(s.db.WithContext(ctx), id)
	if err != nil {
		return nil, err
	}
	return &client, nil
}

// List returns pending clients, newest first
func (s *Service) List(ctx context.Context, f Filter) ([]models.PendingClient, error) {
	q := s.db.WithContext(ctx).Order("created_at DESC, id DESC")
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.CreatedBy != nil {
		q = q.Where("created_by = ?", *f.CreatedBy)
	}
	var list []models.PendingClient
	if err := q.Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// ValidStatus reports whether s names a pending client status
func ValidStatus(s string) bool {
	switch models.ClientStatus(s) {
	case models.ClientStatusDraft, models.ClientStatusPending, models.ClientStatusApproved, models.ClientStatusRejected:
		return true
	}
	return false
}

func load(tx *gorm.DB, id uint) (models.PendingClient, error) {
	var client models.PendingClient
	err := tx.First(&client, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return client, apperrors.NotFound("pending client", id)
	}
	return client, err
}

// authorize lets the creator or a workflow manager touch a request
func authorize(actor access.Actor, client models.PendingClient) error {
	if actor.Can(access.ManagePendingClients) {
		return nil
	}
	if client.CreatedBy != nil && actor.UserID != 0 && *client.CreatedBy == actor.UserID {
		return nil
	}
	return apperrors.Forbidden("only the creator or a manager may change pending client %d", client.ID)
}

func normalizeNumber(n *string) *string {
	if n == nil {
		return nil
	}
	v := strings.TrimSpace(*n)
	if v == "" {
		return nil
	}
	return &v
}

func checkNumber(ctx context.Context, tx *gorm.DB, number *string, self uint) error {
	if number == nil {
		return nil
	}
	taken, err := allocator.NumberInUse(ctx, tx, *number, self)
	if err != nil {
		return fmt.Errorf("check account number: %w", err)
	}
	if taken {
		return apperrors.Conflict("account number %s is already used", *number)
	}
	return nil
}
