// Package traites manages bills of exchange drawn on tiers.
package traites

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xelth-com/eckbackoffice/internal/apperrors"
	"github.com/xelth-com/eckbackoffice/internal/models"
	"github.com/xelth-com/eckbackoffice/internal/services/access"
	"github.com/xelth-com/eckbackoffice/internal/services/activity"
	"github.com/xelth-com/eckbackoffice/internal/validation"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Input carries the editable fields of a traite
type Input struct {
	Number    string              `json:"number" validate:"required,max=64"`
	TierID    uint                `json:"tierId" validate:"required"`
	Amount    float64             `json:"amount" validate:"gt=0"`
	Currency  string              `json:"currency" validate:"omitempty,len=3"`
	IssueDate time.Time           `json:"issueDate" validate:"required"`
	DueDate   time.Time           `json:"dueDate" validate:"required"`
	Bank      string              `json:"bank" validate:"max=255"`
	Status    models.TraiteStatus `json:"status" validate:"omitempty,oneof=en_cours payee impayee"`
}

// Filter narrows List
type Filter struct {
	TierID uint
	Status models.TraiteStatus
}

// Service is the traite store
type Service struct {
	db       *gorm.DB
	activity *activity.Logger
	validate *validation.Validator
	log      *zap.Logger
}

// NewService creates a traite Service
func NewService(db *gorm.DB, act *activity.Logger, v *validation.Validator, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if act == nil {
		act = activity.NewLogger(db, log)
	}
	if v == nil {
		v = validation.New()
	}
	return &Service{db: db, activity: act, validate: v, log: log}
}

func (s *Service) check(in *Input) error {
	in.Number = strings.TrimSpace(in.Number)
	in.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	if in.Currency == "" {
		in.Currency = "EUR"
	}
	if in.Status == "" {
		in.Status = models.TraiteOutstanding
	}
	if err := s.validate.Struct(*in); err != nil {
		return err
	}
	if in.DueDate.Before(in.IssueDate) {
		return apperrors.Validation("dueDate", "dueDate must not be before issueDate")
	}
	return nil
}

// Create stores a traite on a live tier
func (s *Service) Create(ctx context.Context, actor access.Actor, in Input) (*models.Traite, error) {
	if err := actor.Require(access.ManageTraites); err != nil {
		return nil, err
	}
	if err := s.check(&in); err != nil {
		return nil, err
	}

	traite := models.Traite{CreatedBy: actor.UserRef()}
	apply(&traite, in)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tierExists(tx, in.TierID); err != nil {
			return err
		}
		if err := tx.Create(&traite).Error; err != nil {
			return translate(err, in.Number)
		}
		return activity.RecordCreate(ctx, tx, traite, actor.UserRef())
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("traite created", zap.Uint("traite", traite.ID), zap.String("number", traite.Number))
	return &traite, nil
}

// Update replaces the fields of a traite and records the delta
func (s *Service) Update(ctx context.Context, actor access.Actor, id uint, in Input) (*models.Traite, error) {
	if err := actor.Require(access.ManageTraites); err != nil {
		return nil, err
	}
	if err := s.check(&in); err != nil {
		return nil, err
	}

	var after models.Traite
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		before, err := load(tx, id)
		if err != nil {
			return err
		}
		if in.TierID != before.TierID {
			if err := tierExists(tx, in.TierID); err != nil {
				return err
			}
		}
		after = before
		apply(&after, in)

		changed, err := activity.RecordUpdate(ctx, tx, before, after, actor.UserRef())
		if err != nil || !changed {
			return err
		}
		if err := tx.Model(&after).
			Select("number", "tier_id", "amount", "currency", "issue_date", "due_date", "bank", "status").
			Updates(&after).Error; err != nil {
			return translate(err, in.Number)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &after, nil
}

// Delete soft-deletes a traite after recording its final state
func (s *Service) Delete(ctx context.Context, actor access.Actor, id uint) error {
	if err := actor.Require(access.ManageTraites); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		traite, err := load(tx, id)
		if err != nil {
			return err
		}
		if err := activity.RecordDelete(ctx, tx, traite, actor.UserRef()); err != nil {
			return err
		}
		if err := tx.Delete(&traite).Error; err != nil {
			return fmt.Errorf("delete traite %d: %w", id, err)
		}
		s.log.Info("traite deleted", zap.Uint("traite", id), zap.String("number", traite.Number))
		return nil
	})
}

// Get returns a live traite
func (s *Service) Get(ctx context.Context, id uint) (*models.Traite, error) {
	traite, err := load(s.db.WithContext(ctx), id)
	if err != nil {
		return nil, err
	}
	return &traite, nil
}

// List returns traites by due date
func (s *Service) List(ctx context.Context, f Filter) ([]models.Traite, error) {
	q := s.db.WithContext(ctx).Order("due_date ASC, id ASC")
	if f.TierID != 0 {
		q = q.Where("tier_id = ?", f.TierID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	var list []models.Traite
	if err := q.Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// Activity returns the trail of a traite, deleted traites included
func (s *Service) Activity(ctx context.Context, id uint) ([]models.ActivityEntry, error) {
	var count int64
	if err := s.db.WithContext(ctx).Unscoped().Model(&models.Traite{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, apperrors.NotFound("traite", id)
	}
	return s.activity.List(ctx, models.EntityTraite, id)
}

func apply(t *models.Traite, in Input) {
	t.Number = in.Number
	t.TierID = in.TierID
	t.Amount = in.Amount
	t.Currency = in.Currency
	t.IssueDate = in.IssueDate.UTC()
	t.DueDate = in.DueDate.UTC()
	t.Bank = in.Bank
	t.Status = in.Status
}

func load(tx *gorm.DB, id uint) (models.Traite, error) {
	var traite models.Traite
	err := tx.First(&traite, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return traite, apperrors.NotFound("traite", id)
	}
	return traite, err
}

func tierExists(tx *gorm.DB, id uint) error {
	var count int64
	if err := tx.Model(&models.Tier{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return apperrors.Validation("tierId", fmt.Sprintf("tier %d does not exist", id))
	}
	return nil
}

func translate(err error, number string) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperrors.Conflict("traite number %s is already used", number)
	}
	return err
}
