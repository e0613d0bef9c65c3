// Package allocator hands out sequential account numbers shared by tiers and
// pending clients.
package allocator

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/xelth-com/eckbackoffice/internal/apperrors"
	"github.com/xelth-com/eckbackoffice/internal/models"
	"gorm.io/gorm"
)

const (
	DefaultWidth       = 4
	DefaultMaxAttempts = 10
)

// Source exposes the account numbers already in use
type Source interface {
	AccountNumbers(ctx context.Context) ([]string, error)
	Exists(ctx context.Context, number string) (bool, error)
}

// Allocator computes the next unused account number. It only reads; callers
// persist the value in the same transaction as the record that carries it.
type Allocator struct {
	width       int
	maxAttempts int
}

// New creates an Allocator. Non-positive arguments fall back to the defaults.
func New(width, maxAttempts int) *Allocator {
	if width <= 0 {
		width = DefaultWidth
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Allocator{width: width, maxAttempts: maxAttempts}
}

// Allocate returns max(existing)+1, zero padded, skipping numbers that are taken.
func (a *Allocator) Allocate(ctx context.Context, src Source) (string, error) {
	numbers, err := src.AccountNumbers(ctx)
	if err != nil {
		return "", fmt.Errorf("list account numbers: %w", err)
	}

	next := MaxNumeric(numbers) + 1
	for attempt := 0; attempt < a.maxAttempts; attempt++ {
		candidate := a.Format(next)
		taken, err := src.Exists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("probe account number %s: %w", candidate, err)
		}
		if !taken {
			return candidate, nil
		}
		next++
	}
	return "", &apperrors.Error{
		Kind:    apperrors.KindAllocationExhausted,
		Message: fmt.Sprintf("no free account number after %d attempts", a.maxAttempts),
	}
}

// Format zero-pads n to the configured width; longer numbers are kept whole.
func (a *Allocator) Format(n uint64) string {
	return fmt.Sprintf("%0*d", a.width, n)
}

// MaxNumeric returns the largest purely numeric value, ignoring blanks and anything else.
func MaxNumeric(numbers []string) uint64 {
	var max uint64
	for _, raw := range numbers {
		s := strings.TrimSpace(raw)
		if s == "" {
			continue
		}
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			continue
		}
		if n > max {
			max = n
		}
	}
	return max
}

// GormSource reads both tiers and pending clients, soft-deleted tiers included
type GormSource struct {
	db *gorm.DB
}

// NewGormSource binds a Source to a connection or an open transaction
func NewGormSource(db *gorm.DB) *GormSource {
	return &GormSource{db: db}
}

// AccountNumbers implements Source
func (s *GormSource) AccountNumbers(ctx context.Context) ([]string, error) {
	var tiers []string
	if err := s.db.WithContext(ctx).Unscoped().Model(&models.Tier{}).
		Where("account_number IS NOT NULL AND account_number <> ''").
		Pluck("account_number", &tiers).Error; err != nil {
		return nil, err
	}

	var pending []string
	if err := s.db.WithContext(ctx).Model(&models.PendingClient{}).
		Where("account_number IS NOT NULL AND account_number <> ''").
		Pluck("account_number", &pending).Error; err != nil {
		return nil, err
	}
	return append(tiers, pending...), nil
}

// Exists implements Source
func (s *GormSource) Exists(ctx context.Context, number string) (bool, error) {
	return NumberInUse(ctx, s.db, number, 0)
}

// NumberInUse reports whether a tier or another pending client holds number.
// exceptPendingID excludes the pending client being checked against itself.
func NumberInUse(ctx context.Context, db *gorm.DB, number string, exceptPendingID uint) (bool, error) {
	var count int64
	if err := db.WithContext(ctx).Unscoped().Model(&models.Tier{}).
		Where("account_number = ?", number).
		Count(&count).Error; err != nil {
		return false, err
	}
	if count > 0 {
		return true, nil
	}

	q := db.WithContext(ctx).Model(&models.PendingClient{}).Where("account_number = ?", number)
	if exceptPendingID != 0 {
		q = q.Where("id <> ?", exceptPendingID)
	}
	if err := q.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
