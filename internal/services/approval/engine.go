// Package approval runs pending clients through submission and decision.
//
// Every operation is a single transaction. Status transitions are
// compare-and-swap updates, so two decisions racing on one request cannot both
// win: the loser sees zero affected rows and gets a conflict.
package approval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xelth-com/eckbackoffice/internal/apperrors"
	"github.com/xelth-com/eckbackoffice/internal/models"
	"github.com/xelth-com/eckbackoffice/internal/services/access"
	"github.com/xelth-com/eckbackoffice/internal/services/activity"
	"github.com/xelth-com/eckbackoffice/internal/services/allocator"
	"github.com/xelth-com/eckbackoffice/internal/services/notify"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Engine drives the approval workflow
type Engine struct {
	db            *gorm.DB
	alloc         *allocator.Allocator
	sink          notify.Sink
	log           *zap.Logger
	insertRetries int
}

// Options configures an Engine
type Options struct {
	Allocator *allocator.Allocator
	Sink      notify.Sink
	Logger    *zap.Logger
	// InsertRetries bounds re-runs after a duplicate account number on tier insert
	InsertRetries int
}

// NewEngine creates an approval Engine
func NewEngine(db *gorm.DB, opts Options) *Engine {
	e := &Engine{
		db:            db,
		alloc:         opts.Allocator,
		sink:          opts.Sink,
		log:           opts.Logger,
		insertRetries: opts.InsertRetries,
	}
	if e.alloc == nil {
		e.alloc = allocator.New(allocator.DefaultWidth, allocator.DefaultMaxAttempts)
	}
	if e.sink == nil {
		e.sink = notify.Multi{}
	}
	if e.log == nil {
		e.log = zap.NewNop()
	}
	if e.insertRetries < 0 {
		e.insertRetries = 0
	}
	return e
}

// Decision is the outcome of Approve
type Decision struct {
	Client models.PendingClient  `json:"client"`
	Tier   models.Tier           `json:"tier"`
	Record models.ApprovalRecord `json:"record"`
}

// Submit moves a draft to pending and opens its approval record
func (e *Engine) Submit(ctx context.Context, actor access.Actor, id uint) (*models.ApprovalRecord, error) {
	return e.open(ctx, actor, id, models.ClientStatusDraft)
}

// Resubmit moves a rejected request back to pending under a fresh approval record,
// leaving the rejected record as history.
func (e *Engine) Resubmit(ctx context.Context, actor access.Actor, id uint) (*models.ApprovalRecord, error) {
	return e.open(ctx, actor, id, models.ClientStatusRejected)
}

func (e *Engine) open(ctx context.Context, actor access.Actor, id uint, from models.ClientStatus) (*models.ApprovalRecord, error) {
	if err := actor.Require(access.ManagePendingClients); err != nil {
		return nil, err
	}

	var (
		client models.PendingClient
		record models.ApprovalRecord
	)
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		client, err = loadClient(tx, id)
		if err != nil {
			return err
		}
		if client.Status != from {
			return apperrors.InvalidState("pending client %d is %s, expected %s", id, client.Status, from)
		}
		if err := transition(tx, id, from, models.ClientStatusPending, nil); err != nil {
			return err
		}
		client.Status = models.ClientStatusPending

		record = models.ApprovalRecord{
			PendingClientID: &client.ID,
			RequestedBy:     actor.UserRef(),
			Status:          models.ApprovalPending,
		}
		if err := tx.Create(&record).Error; err != nil {
			return fmt.Errorf("open approval record: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.log.Info("pending client submitted",
		zap.Uint("client", client.ID), zap.String("from", string(from)), zap.Uint("record", record.ID))
	e.publish(ctx, notify.Event{
		Type:    notify.TypeClientSubmitted,
		Message: fmt.Sprintf("Nouvelle demande d'ouverture de compte : %s", client.Name),
		Payload: map[string]any{"clientName": client.Name, "clientId": client.ID},
	})
	return &record, nil
}

// Approve turns a pending request into a tier
func (e *Engine) Approve(ctx context.Context, actor access.Actor, id uint) (*Decision, error) {
	if err := actor.Require(access.ManagePendingClients); err != nil {
		return nil, err
	}

	var (
		d   *Decision
		err error
	)
	for attempt := 0; ; attempt++ {
		d, err = e.approveOnce(ctx, actor, id)
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			break
		}
		if attempt >= e.insertRetries {
			return nil, apperrors.Wrap(err, apperrors.KindConflict, "account number taken concurrently")
		}
		e.log.Warn("account number collided on insert, retrying approval",
			zap.Uint("client", id), zap.Int("attempt", attempt+1))
	}
	if err != nil {
		return nil, err
	}

	e.log.Info("pending client approved",
		zap.Uint("client", id), zap.Uint("tier", d.Tier.ID), zap.String("account", d.Tier.AccountNumber))
	e.publish(ctx, notify.Event{
		Type:    notify.TypeClientApproved,
		Message: fmt.Sprintf("Le client %s a été approuvé (compte %s)", d.Tier.Name, d.Tier.AccountNumber),
		Payload: map[string]any{
			"clientName":    d.Tier.Name,
			"accountNumber": d.Tier.AccountNumber,
			"clientId":      d.Client.ID,
			"tierId":        d.Tier.ID,
		},
		RecipientID: d.Client.CreatedBy,
	})
	return d, nil
}

func (e *Engine) approveOnce(ctx context.Context, actor access.Actor, id uint) (*Decision, error) {
	var d Decision
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		client, err := loadClient(tx, id)
		if err != nil {
			return err
		}
		if client.Status != models.ClientStatusPending {
			return apperrors.InvalidState("pending client %d is %s, expected pending", id, client.Status)
		}

		number, err := e.accountNumberFor(ctx, tx, client)
		if err != nil {
			return err
		}
		if err := transition(tx, id, models.ClientStatusPending, models.ClientStatusApproved,
			map[string]any{"account_number": number}); err != nil {
			return err
		}
		client.Status = models.ClientStatusApproved
		client.AccountNumber = &number

		tier := models.Tier{
			AccountNumber:   number,
			ClientDetails:   client.ClientDetails,
			PendingClientID: &client.ID,
			CreatedBy:       actor.UserRef(),
		}
		if err := tx.Create(&tier).Error; err != nil {
			return fmt.Errorf("create tier: %w", err)
		}

		record, err := closeRecord(tx, client, actor, models.ApprovalApproved, map[string]any{
			"approved_tier_id": tier.ID,
		})
		if err != nil {
			return err
		}

		if err := activity.RecordCreate(ctx, tx, tier, actor.UserRef()); err != nil {
			return err
		}

		d = Decision{Client: client, Tier: tier, Record: record}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// accountNumberFor keeps a number chosen at creation when still free, otherwise allocates
func (e *Engine) accountNumberFor(ctx context.Context, tx *gorm.DB, client models.PendingClient) (string, error) {
	if client.AccountNumber != nil && *client.AccountNumber != "" {
		taken, err := allocator.NumberInUse(ctx, tx, *client.AccountNumber, client.ID)
		if err != nil {
			return "", fmt.Errorf("check account number: %w", err)
		}
		if taken {
			return "", apperrors.Conflict("account number %s is already used", *client.AccountNumber)
		}
		return *client.AccountNumber, nil
	}
	return e.alloc.Allocate(ctx, allocator.NewGormSource(tx))
}

// Reject closes a pending request. reason may be empty.
func (e *Engine) Reject(ctx context.Context, actor access.Actor, id uint, reason string) (*models.ApprovalRecord, error) {
	if err := actor.Require(access.ManagePendingClients); err != nil {
		return nil, err
	}

	var (
		client models.PendingClient
		record models.ApprovalRecord
	)
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		client, err = loadClient(tx, id)
		if err != nil {
			return err
		}
		if client.Status != models.ClientStatusPending {
			return apperrors.InvalidState("pending client %d is %s, expected pending", id, client.Status)
		}
		if err := transition(tx, id, models.ClientStatusPending, models.ClientStatusRejected, nil); err != nil {
			return err
		}
		client.Status = models.ClientStatusRejected

		var reasonRef *string
		if reason != "" {
			reasonRef = &reason
		}
		record, err = closeRecord(tx, client, actor, models.ApprovalRejected, map[string]any{
			"rejection_reason": reasonRef,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	e.log.Info("pending client rejected", zap.Uint("client", id), zap.String("reason", reason))
	e.publish(ctx, notify.Event{
		Type:    notify.TypeClientRejected,
		Message: fmt.Sprintf("La demande du client %s a été rejetée", client.Name),
		Payload: map[string]any{
			"clientName": client.Name,
			"reason":     reason,
			"clientId":   client.ID,
		},
		RecipientID: client.CreatedBy,
	})
	return &record, nil
}

// History returns every approval record of a pending client, oldest first
func (e *Engine) History(ctx context.Context, id uint) ([]models.ApprovalRecord, error) {
	if _, err := loadClient(e.db.WithContext(ctx), id); err != nil {
		return nil, err
	}
	var records []models.ApprovalRecord
	if err := e.db.WithContext(ctx).
		Where("pending_client_id = ?", id).
		Order("id ASC").
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (e *Engine) publish(ctx context.Context, ev notify.Event) {
	if err := e.sink.Publish(ctx, ev); err != nil {
		e.log.Warn("notification delivery failed", zap.String("type", ev.Type), zap.Error(err))
	}
}

func loadClient(tx *gorm.DB, id uint) (models.PendingClient, error) {
	var client models.PendingClient
	err := tx.First(&client, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return client, apperrors.NotFound("pending client", id)
	}
	if err != nil {
		return client, fmt.Errorf("load pending client %d: %w", id, err)
	}
	return client, nil
}

// transition swaps the status only if it still equals from
func transition(tx *gorm.DB, id uint, from, to models.ClientStatus, extra map[string]any) error {
	updates := map[string]any{"status": to}
	for k, v := range extra {
		updates[k] = v
	}
	res := tx.Model(&models.PendingClient{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("update pending client %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.Conflict("pending client %d changed concurrently", id)
	}
	return nil
}

// closeRecord settles the open approval record of client. A pending client that
// reached the pending state without a record gets one opened on the spot.
func closeRecord(tx *gorm.DB, client models.PendingClient, actor access.Actor, status models.ApprovalStatus, extra map[string]any) (models.ApprovalRecord, error) {
	var record models.ApprovalRecord
	err := tx.Where("pending_client_id = ? AND status = ?", client.ID, models.ApprovalPending).
		Order("id DESC").
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		record = models.ApprovalRecord{
			PendingClientID: &client.ID,
			RequestedBy:     client.CreatedBy,
			Status:          models.ApprovalPending,
		}
		err = tx.Create(&record).Error
	}
	if err != nil {
		return record, fmt.Errorf("load approval record: %w", err)
	}

	now := time.Now().UTC()
	updates := map[string]any{
		"status":     status,
		"user_id":    actor.UserRef(),
		"decided_at": now,
	}
	for k, v := range extra {
		updates[k] = v
	}
	res := tx.Model(&models.ApprovalRecord{}).
		Where("id = ? AND status = ?", record.ID, models.ApprovalPending).
		Updates(updates)
	if res.Error != nil {
		return record, fmt.Errorf("close approval record %d: %w", record.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return record, apperrors.Conflict("approval record %d changed concurrently", record.ID)
	}

	if err := tx.First(&record, record.ID).Error; err != nil {
		return record, fmt.Errorf("reload approval record %d: %w", record.ID, err)
	}
	return record, nil
}
