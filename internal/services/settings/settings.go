// Package settings stores the organization profile. Callers load it once per
// request and pass the value along.
package settings

import (
	"context"
	"errors"
	"fmt"

	"github.com/xelth-com/eckbackoffice/internal/models"
	"gorm.io/gorm"
)

// Settings is a detached copy of the organization profile
type Settings = models.OrganizationSettings

// Service reads and writes the settings row
type Service struct {
	db *gorm.DB
}

// NewService creates a settings Service
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Load returns the current settings, or zero values when none were saved
func (s *Service) Load(ctx context.Context) (Settings, error) {
	var row models.OrganizationSettings
	err := s.db.WithContext(ctx).Order("id").First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Settings{}, nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("load settings: %w", err)
	}
	return row, nil
}

// Save replaces the settings row
func (s *Service) Save(ctx context.Context, in Settings) (Settings, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current models.OrganizationSettings
		err := tx.Order("id").First(&current).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			in.ID = 0
			return tx.Create(&in).Error
		case err != nil:
			return err
		}
		in.ID = current.ID
		return tx.Save(&in).Error
	})
	if err != nil {
		return Settings{}, fmt.Errorf("save settings: %w", err)
	}
	return in, nil
}
