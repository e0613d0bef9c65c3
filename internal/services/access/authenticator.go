package access

import (
	"context"
	"errors"
	"fmt"

	"github.com/xelth-com/eckbackoffice/internal/models"
	"github.com/xelth-com/eckbackoffice/internal/utils"
	"gorm.io/gorm"
)

// Authenticator verifies credentials. Directory-backed implementations plug in here.
type Authenticator interface {
	Verify(ctx context.Context, username, password string) bool
}

// LocalAuthenticator checks bcrypt hashes stored on active users
type LocalAuthenticator struct {
	db *gorm.DB
}

// NewLocalAuthenticator creates a LocalAuthenticator
func NewLocalAuthenticator(db *gorm.DB) *LocalAuthenticator {
	return &LocalAuthenticator{db: db}
}

// Verify implements Authenticator
func (a *LocalAuthenticator) Verify(ctx context.Context, username, password string) bool {
	var user models.User
	err := a.db.WithContext(ctx).
		Where("(username = ? OR email = ?) AND is_active = ?", username, username, true).
		First(&user).Error
	if err != nil {
		return false
	}
	return utils.CheckPasswordHash(password, user.Password)
}

// LoadUser fetches a user with its role
func LoadUser(ctx context.Context, db *gorm.DB, id uint) (*models.User, error) {
	var user models.User
	if err := db.WithContext(ctx).Preload("Role").First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// FindUserByLogin fetches a user by username or e-mail
func FindUserByLogin(ctx context.Context, db *gorm.DB, login string) (*models.User, error) {
	var user models.User
	err := db.WithContext(ctx).Preload("Role").
		Where("username = ? OR email = ?", login, login).
		First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("user %q not found: %w", login, err)
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}
