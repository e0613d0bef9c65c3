// Package tiers manages approved business accounts.
package tiers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xelth-com/eckbackoffice/internal/apperrors"
	"github.com/xelth-com/eckbackoffice/internal/models"
	"github.com/xelth-com/eckbackoffice/internal/services/access"
	"github.com/xelth-com/eckbackoffice/internal/services/activity"
	"github.com/xelth-com/eckbackoffice/internal/validation"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// Query narrows List
type Query struct {
	Search string
	Limit  int
	Offset int
}

// Page is one slice of the tier list
type Page struct {
	Items []models.Tier `json:"items"`
	Total int64         `json:"total"`
}

// Service is the tier store
type Service struct {
	db       *gorm.DB
	activity *activity.Logger
	validate *validation.Validator
	log      *zap.Logger
}

// NewService creates a tier Service
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

// Get returns a live tier
func (s *Service) Get(ctx context.Context, id uint) (*models.Tier, error) {
	tier, err := load(s.db.WithContext(ctx), id)
	if err != nil {
		return nil, err
	}
	return &tier, nil
}

// List returns tiers ordered by account number, optionally matching a name or
// account number fragment.
func (s *Service) List(ctx context.Context, q Query) (*Page, error) {
	tx := s.db.WithContext(ctx).Model(&models.Tier{})
	if term := strings.TrimSpace(q.Search); term != "" {
		like := "%" + strings.ToLower(term) + "%"
		tx = tx.Where("LOWER(name) LIKE ? OR account_number LIKE ?", like, like)
	}
	tx = tx.Session(&gorm.Session{})

	var page Page
	if err := tx.Count(&page.Total).Error; err != nil {
		return nil, err
	}

	limit := q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	if err := tx.Order("account_number ASC").Limit(limit).Offset(offset).Find(&page.Items).Error; err != nil {
		return nil, err
	}
	return &page, nil
}

// Update replaces the business fields of a tier. The account number never changes.
func (s *Service) Update(ctx context.Context, actor access.Actor, id uint, details models.ClientDetails) (*models.Tier, error) {
	if err := actor.Require(access.ManageTiers); err != nil {
		return nil, err
	}
	if err := s.validate.Struct(details); err != nil {
		return nil, err
	}

	var after models.Tier
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		before, err := load(tx, id)
		if err != nil {
			return err
		}
		after = before
		after.ClientDetails = details

		changed, err := activity.RecordUpdate(ctx, tx, before, after, actor.UserRef())
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}
		if err := tx.Model(&after).
			Select("name", "address_line1", "address_line2", "city", "country", "phone", "email",
				"category", "tax_id", "type", "request_date", "invoiced_amount", "paid_amount",
				"credit", "reason", "establishment", "service", "signer_name").
			Updates(&after).Error; err != nil {
			return fmt.Errorf("update tier %d: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &after, nil
}

// Delete soft-deletes a tier that no longer carries live traites
func (s *Service) Delete(ctx context.Context, actor access.Actor, id uint) error {
	if err := actor.Require(access.ManageTiers); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tier, err := load(tx, id)
		if err != nil {
			return err
		}

		var traites int64
		if err := tx.Model(&models.Traite{}).Where("tier_id = ?", id).Count(&traites).Error; err != nil {
			return err
		}
		if traites > 0 {
			return apperrors.InvalidState("tier %d still has %d traite(s)", id, traites)
		}

		if err := activity.RecordDelete(ctx, tx, tier, actor.UserRef()); err != nil {
			return err
		}
		if err := tx.Delete(&tier).Error; err != nil {
			return fmt.Errorf("delete tier %d: %w", id, err)
		}
		s.log.Info("tier deleted", zap.Uint("tier", id), zap.String("account", tier.AccountNumber))
		return nil
	})
}

// Activity returns the trail of a tier, deleted tiers included
func (s *Service) Activity(ctx context.Context, id uint) ([]models.ActivityEntry, error) {
	var count int64
	if err := s.db.WithContext(ctx).Unscoped().Model(&models.Tier{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, apperrors.NotFound("tier", id)
	}
	return s.activity.List(ctx, models.EntityTier, id)
}

func load(tx *gorm.DB, id uint) (models.Tier, error) {
	var tier models.Tier
	err := tx.First(&tier, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return tier, apperrors.NotFound("tier", id)
	}
	return tier, err
}
