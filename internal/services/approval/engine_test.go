package approval

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xelth-com/eckbackoffice/internal/apperrors"
	"github.com/xelth-com/eckbackoffice/internal/database"
	"github.com/xelth-com/eckbackoffice/internal/database/dbtest"
	"github.com/xelth-com/eckbackoffice/internal/models"
	"github.com/xelth-com/eckbackoffice/internal/services/access"
	"github.com/xelth-com/eckbackoffice/internal/services/activity"
	"github.com/xelth-com/eckbackoffice/internal/services/notify"
	"gorm.io/gorm"
)

type recordingSink struct {
	mu     sync.Mutex
	events []notify.Event
	err    error
}

func (s *recordingSink) Publish(ctx context.Context, ev notify.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return s.err
}

func (s *recordingSink) last() notify.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events[len(s.events)-1]
}

type fixture struct {
	db      *database.DB
	engine  *Engine
	sink    *recordingSink
	manager access.Actor
	creator *models.User
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.Open(t)
	sink := &recordingSink{}
	return &fixture{
		db:      db,
		engine:  NewEngine(db.DB, Options{Sink: sink, InsertRetries: 3}),
		sink:    sink,
		manager: access.ActorFor(dbtest.CreateUser(t, db, "manager", access.ManagePendingClients)),
		creator: dbtest.CreateUser(t, db, "clerk", access.CreatePendingClients),
	}
}

func (f *fixture) draft(t *testing.T, name string) models.PendingClient {
	t.Helper()
	client := models.PendingClient{
		ClientDetails: models.ClientDetails{Name: name, City: "Lyon"},
		Status:        models.ClientStatusDraft,
		CreatedBy:     &f.creator.ID,
	}
	if err := f.db.Create(&client).Error; err != nil {
		t.Fatalf("Failed to create pending client: %v", err)
	}
	return client
}

func (f *fixture) records(t *testing.T, clientID uint) []models.ApprovalRecord {
	t.Helper()
	records, err := f.engine.History(context.Background(), clientID)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	return records
}

func TestSubmitApproveFlow(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	client := f.draft(t, "ACME")

	record, err := f.engine.Submit(ctx, f.manager, client.ID)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if record.Status != models.ApprovalPending {
		t.Errorf("Expected pending record, got %s", record.Status)
	}
	if f.sink.last().Type != notify.TypeClientSubmitted {
		t.Errorf("Expected submitted event, got %s", f.sink.last().Type)
	}

	d, err := f.engine.Approve(ctx, f.manager, client.ID)
	if err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	if d.Tier.AccountNumber != "0001" {
		t.Errorf("Expected account number 0001, got %s", d.Tier.AccountNumber)
	}
	if d.Tier.Name != "ACME" || d.Tier.City != "Lyon" {
		t.Errorf("Tier did not copy client details: %+v", d.Tier.ClientDetails)
	}
	if d.Tier.PendingClientID == nil || *d.Tier.PendingClientID != client.ID {
		t.Errorf("Expected tier to point at pending client %d", client.ID)
	}

	var stored models.PendingClient
	if err := f.db.First(&stored, client.ID).Error; err != nil {
		t.Fatalf("Failed to reload client: %v", err)
	}
	if stored.Status != models.ClientStatusApproved {
		t.Errorf("Expected approved client, got %s", stored.Status)
	}
	if stored.AccountNumber == nil || *stored.AccountNumber != "0001" {
		t.Errorf("Expected client to carry the allocated number, got %v", stored.AccountNumber)
	}

	records := f.records(t, client.ID)
	if len(records) != 1 {
		t.Fatalf("Expected 1 approval record, got %d", len(records))
	}
	r := records[0]
	if r.Status != models.ApprovalApproved {
		t.Errorf("Expected approved record, got %s", r.Status)
	}
	if r.ApprovedTierID == nil || *r.ApprovedTierID != d.Tier.ID {
		t.Errorf("Expected record to reference tier %d", d.Tier.ID)
	}
	if r.UserID == nil || *r.UserID != f.manager.UserID {
		t.Errorf("Expected decision maker %d, got %v", f.manager.UserID, r.UserID)
	}
	if r.DecidedAt == nil {
		t.Error("Expected decided_at to be set")
	}

	entries, err := activity.NewLogger(f.db.DB, nil).List(ctx, models.EntityTier, d.Tier.ID)
	if err != nil {
		t.Fatalf("List activity failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Action != models.ActionCreate {
		t.Fatalf("Expected one Création entry, got %+v", entries)
	}
	if entries[0].Changes["accountNumber"] != "0001" {
		t.Errorf("Expected snapshot with account number, got %v", entries[0].Changes)
	}

	ev := f.sink.last()
	if ev.Type != notify.TypeClientApproved {
		t.Fatalf("Expected approved event, got %s", ev.Type)
	}
	if ev.Payload["clientName"] != "ACME" || ev.Payload["accountNumber"] != "0001" || ev.Payload["clientId"] != client.ID {
		t.Errorf("Unexpected approved payload %v", ev.Payload)
	}
	if ev.RecipientID == nil || *ev.RecipientID != f.creator.ID {
		t.Errorf("Expected event addressed to creator %d", f.creator.ID)
	}
}

func TestApproveSequentialNumbers(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	preset := "0041"
	first := f.draft(t, "Preset")
	if err := f.db.Model(&first).Update("account_number", preset).Error; err != nil {
		t.Fatalf("Failed to preset number: %v", err)
	}
	second := f.draft(t, "Allocated")

	for _, id := range []uint{first.ID, second.ID} {
		if _, err := f.engine.Submit(ctx, f.manager, id); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
	}
	d1, err := f.engine.Approve(ctx, f.manager, first.ID)
	if err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	if d1.Tier.AccountNumber != preset {
		t.Errorf("Expected preset number %s, got %s", preset, d1.Tier.AccountNumber)
	}
	d2, err := f.engine.Approve(ctx, f.manager, second.ID)
	if err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	if d2.Tier.AccountNumber != "0042" {
		t.Errorf("Expected 0042, got %s", d2.Tier.AccountNumber)
	}
}

func TestRejectResubmitApprove(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	client := f.draft(t, "ACME")

	if _, err := f.engine.Submit(ctx, f.manager, client.ID); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	rejected, err := f.engine.Reject(ctx, f.manager, client.ID, "Documents incomplets")
	if err != nil {
		t.Fatalf("Reject failed: %v", err)
	}
	if rejected.Status != models.ApprovalRejected || rejected.RejectionReason == nil || *rejected.RejectionReason != "Documents incomplets" {
		t.Errorf("Unexpected rejected record %+v", rejected)
	}
	ev := f.sink.last()
	if ev.Type != notify.TypeClientRejected || ev.Payload["reason"] != "Documents incomplets" {
		t.Errorf("Unexpected rejection event %+v", ev)
	}

	if _, err := f.engine.Approve(ctx, f.manager, client.ID); !errors.Is(err, apperrors.ErrInvalidState) {
		t.Errorf("Expected invalid state approving a rejected client, got %v", err)
	}

	if _, err := f.engine.Resubmit(ctx, f.manager, client.ID); err != nil {
		t.Fatalf("Resubmit failed: %v", err)
	}
	if _, err := f.engine.Approve(ctx, f.manager, client.ID); err != nil {
		t.Fatalf("Approve failed: %v", err)
	}

	records := f.records(t, client.ID)
	if len(records) != 2 {
		t.Fatalf("Expected 2 approval records, got %d", len(records))
	}
	if records[0].Status != models.ApprovalRejected || records[1].Status != models.ApprovalApproved {
		t.Errorf("Unexpected record history %s, %s", records[0].Status, records[1].Status)
	}

	var tiers int64
	f.db.Model(&models.Tier{}).Count(&tiers)
	if tiers != 1 {
		t.Errorf("Expected exactly one tier, got %d", tiers)
	}
}

func TestRejectWithoutReason(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	client := f.draft(t, "ACME")

	if _, err := f.engine.Submit(ctx, f.manager, client.ID); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	record, err := f.engine.Reject(ctx, f.manager, client.ID, "")
	if err != nil {
		t.Fatalf("Reject failed: %v", err)
	}
	if record.RejectionReason != nil {
		t.Errorf("Expected nil reason, got %q", *record.RejectionReason)
	}
}

func TestInvalidTransitions(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	client := f.draft(t, "ACME")

	if _, err := f.engine.Approve(ctx, f.manager, client.ID); !errors.Is(err, apperrors.ErrInvalidState) {
		t.Errorf("Expected invalid state approving a draft, got %v", err)
	}
	if _, err := f.engine.Reject(ctx, f.manager, client.ID, "x"); !errors.Is(err, apperrors.ErrInvalidState) {
		t.Errorf("Expected invalid state rejecting a draft, got %v", err)
	}
	if _, err := f.engine.Resubmit(ctx, f.manager, client.ID); !errors.Is(err, apperrors.ErrInvalidState) {
		t.Errorf("Expected invalid state resubmitting a draft, got %v", err)
	}
	if _, err := f.engine.Submit(ctx, f.manager, client.ID); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if _, err := f.engine.Submit(ctx, f.manager, client.ID); !errors.Is(err, apperrors.ErrInvalidState) {
		t.Errorf("Expected invalid state submitting twice, got %v", err)
	}

	if _, err := f.engine.Submit(ctx, f.manager, 9999); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("Expected not found, got %v", err)
	}
	if _, err := f.engine.Approve(ctx, f.manager, 9999); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("Expected not found, got %v", err)
	}
}

func TestRequiresManagePermission(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	client := f.draft(t, "ACME")
	clerk := access.ActorFor(f.creator)

	if _, err := f.engine.Submit(ctx, clerk, client.ID); !errors.Is(err, apperrors.ErrForbidden) {
		t.Errorf("Expected forbidden submit, got %v", err)
	}
	if _, err := f.engine.Approve(ctx, clerk, client.ID); !errors.Is(err, apperrors.ErrForbidden) {
		t.Errorf("Expected forbidden approve, got %v", err)
	}
	if _, err := f.engine.Reject(ctx, clerk, client.ID, ""); !errors.Is(err, apperrors.ErrForbidden) {
		t.Errorf("Expected forbidden reject, got %v", err)
	}
}

func TestConcurrentApproveSingleWinner(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	client := f.draft(t, "ACME")
	if _, err := f.engine.Submit(ctx, f.manager, client.ID); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	const racers = 4
	errs := make([]error, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.engine.Approve(ctx, f.manager, client.ID)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, apperrors.ErrInvalidState), errors.Is(err, apperrors.ErrConflict):
		default:
			t.Errorf("Unexpected error %v", err)
		}
	}
	if wins != 1 {
		t.Errorf("Expected exactly one successful approval, got %d", wins)
	}

	var tiers int64
	f.db.Model(&models.Tier{}).Count(&tiers)
	if tiers != 1 {
		t.Errorf("Expected one tier, got %d", tiers)
	}
	if records := f.records(t, client.ID); len(records) != 1 || records[0].Status != models.ApprovalApproved {
		t.Errorf("Expected one approved record, got %+v", records)
	}
}

// stealNumbers inserts a competing tier with the same account number right
// before the engine inserts its own, up to n times.
func stealNumbers(t *testing.T, db *database.DB, n int) *int {
	t.Helper()
	stolen := 0
	err := db.Callback().Create().Before("gorm:create").Register("test:steal_number", func(tx *gorm.DB) {
		tier, ok := tx.Statement.Dest.(*models.Tier)
		if !ok || stolen >= n {
			return
		}
		stolen++
		now := time.Now().UTC()
		tx.Session(&gorm.Session{NewDB: true}).Exec(
			"INSERT INTO tiers (account_number, name, created_at, updated_at) VALUES (?, ?, ?, ?)",
			tier.AccountNumber, "Intruder", now, now)
	})
	if err != nil {
		t.Fatalf("Failed to register callback: %v", err)
	}
	return &stolen
}

func TestApproveRetriesDuplicateAccountNumber(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	stolen := stealNumbers(t, f.db, 1)
	client := f.draft(t, "ACME")
	if _, err := f.engine.Submit(ctx, f.manager, client.ID); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	d, err := f.engine.Approve(ctx, f.manager, client.ID)
	if err != nil {
		t.Fatalf("Approve failed after retry: %v", err)
	}
	if *stolen != 1 {
		t.Errorf("Expected one collision, got %d", *stolen)
	}
	if d.Tier.AccountNumber != "0001" {
		t.Errorf("Expected 0001 after rollback, got %s", d.Tier.AccountNumber)
	}
}

func TestApproveGivesUpAfterRetries(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.engine = NewEngine(f.db.DB, Options{Sink: f.sink, InsertRetries: 1})
	stolen := stealNumbers(t, f.db, 100)
	client := f.draft(t, "ACME")
	if _, err := f.engine.Submit(ctx, f.manager, client.ID); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	_, err := f.engine.Approve(ctx, f.manager, client.ID)
	if !errors.Is(err, apperrors.ErrConflict) {
		t.Fatalf("Expected conflict, got %v", err)
	}
	if *stolen != 2 {
		t.Errorf("Expected 2 attempts, got %d", *stolen)
	}

	var stored models.PendingClient
	f.db.First(&stored, client.ID)
	if stored.Status != models.ClientStatusPending {
		t.Errorf("Expected client to stay pending, got %s", stored.Status)
	}
}

func TestSinkFailureDoesNotRollBack(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.sink.err = errors.New("smtp down")
	client := f.draft(t, "ACME")

	if _, err := f.engine.Submit(ctx, f.manager, client.ID); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if _, err := f.engine.Approve(ctx, f.manager, client.ID); err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	var stored models.PendingClient
	f.db.First(&stored, client.ID)
	if stored.Status != models.ClientStatusApproved {
		t.Errorf("Expected approved despite sink failure, got %s", stored.Status)
	}
}

func TestApproveWithoutOpenRecord(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	client := f.draft(t, "Legacy")
	if err := f.db.Model(&client).Update("status", models.ClientStatusPending).Error; err != nil {
		t.Fatalf("Failed to force status: %v", err)
	}

	if _, err := f.engine.Approve(ctx, f.manager, client.ID); err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	records := f.records(t, client.ID)
	if len(records) != 1 || records[0].Status != models.ApprovalApproved {
		t.Errorf("Expected one approved record, got %+v", records)
	}
	if records[0].RequestedBy == nil || *records[0].RequestedBy != f.creator.ID {
		t.Errorf("Expected requester to fall back to creator")
	}
}

func TestTransitionConflictsWhenStatusMoved(t *testing.T) {
	f := setup(t)
	client := f.draft(t, "ACME")
	if err := f.db.Model(&client).Update("status", models.ClientStatusApproved).Error; err != nil {
		t.Fatalf("Failed to move status: %v", err)
	}

	err := transition(f.db.DB, client.ID, models.ClientStatusPending, models.ClientStatusRejected, nil)
	if !errors.Is(err, apperrors.ErrConflict) {
		t.Fatalf("Expected conflict, got %v", err)
	}
	var stored models.PendingClient
	if err := f.db.First(&stored, client.ID).Error; err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if stored.Status != models.ClientStatusApproved {
		t.Errorf("Status must be untouched, got %s", stored.Status)
	}

	if err := transition(f.db.DB, client.ID, models.ClientStatusApproved, models.ClientStatusRejected, nil); err != nil {
		t.Errorf("Expected swap from the current status to succeed, got %v", err)
	}
}

func TestApproveConflictsWhenDecidedInBetween(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	client := f.draft(t, "ACME")
	if _, err := f.engine.Submit(ctx, f.manager, client.ID); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	// another decision lands after the status check but before the swap
	raced := false
	err := f.db.Callback().Update().Before("gorm:update").Register("test:race_decision", func(tx *gorm.DB) {
		if raced || tx.Statement.Table != "pending_clients" {
			return
		}
		raced = true
		tx.Session(&gorm.Session{NewDB: true}).Exec(
			"UPDATE pending_clients SET status = ? WHERE id = ?", models.ClientStatusRejected, client.ID)
	})
	if err != nil {
		t.Fatalf("Failed to register callback: %v", err)
	}

	if _, err := f.engine.Approve(ctx, f.manager, client.ID); !errors.Is(err, apperrors.ErrConflict) {
		t.Fatalf("Expected conflict, got %v", err)
	}
	if !raced {
		t.Fatal("Competing decision never ran")
	}

	var tiers int64
	if err := f.db.Model(&models.Tier{}).Count(&tiers).Error; err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if tiers != 0 {
		t.Errorf("Expected no tier after a lost race, got %d", tiers)
	}
	if len(f.sink.events) != 1 {
		t.Errorf("Expected only the submit notification, got %d events", len(f.sink.events))
	}
}
