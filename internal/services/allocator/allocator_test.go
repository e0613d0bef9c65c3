package allocator

import (
	"context"
	"errors"
	"testing"

	"github.com/xelth-com/eckbackoffice/internal/apperrors"
	"github.com/xelth-com/eckbackoffice/internal/database/dbtest"
	"github.com/xelth-com/eckbackoffice/internal/models"
)

type fakeSource struct {
	numbers []string
	taken   map[string]bool
	probes  int
}

func (f *fakeSource) AccountNumbers(ctx context.Context) ([]string, error) {
	return f.numbers, nil
}

func (f *fakeSource) Exists(ctx context.Context, number string) (bool, error) {
	f.probes++
	return f.taken[number], nil
}

type alwaysTaken struct{ fakeSource }

func (a *alwaysTaken) Exists(ctx context.Context, number string) (bool, error) {
	a.probes++
	return true, nil
}

func TestAllocateEmpty(t *testing.T) {
	got, err := New(4, 10).Allocate(context.Background(), &fakeSource{})
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	if got != "0001" {
		t.Errorf("Expected 0001, got %s", got)
	}
}

func TestAllocateIgnoresNonNumeric(t *testing.T) {
	src := &fakeSource{numbers: []string{"0041", "", "ABC", "12-3", " 0007 ", "0042"}}
	got, err := New(4, 10).Allocate(context.Background(), src)
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	if got != "0043" {
		t.Errorf("Expected 0043, got %s", got)
	}
}

func TestAllocateGrowsPastWidth(t *testing.T) {
	got, err := New(4, 10).Allocate(context.Background(), &fakeSource{numbers: []string{"9999"}})
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	if got != "10000" {
		t.Errorf("Expected 10000, got %s", got)
	}
}

func TestAllocateSkipsCollisions(t *testing.T) {
	src := &fakeSource{
		numbers: []string{"0005"},
		taken:   map[string]bool{"0006": true, "0007": true},
	}
	got, err := New(4, 10).Allocate(context.Background(), src)
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	if got != "0008" {
		t.Errorf("Expected 0008, got %s", got)
	}
	if src.probes != 3 {
		t.Errorf("Expected 3 probes, got %d", src.probes)
	}
}

func TestAllocateExhausted(t *testing.T) {
	src := &alwaysTaken{}
	_, err := New(4, 10).Allocate(context.Background(), src)
	if !errors.Is(err, apperrors.ErrAllocationExhausted) {
		t.Fatalf("Expected AllocationExhausted, got %v", err)
	}
	if src.probes != 10 {
		t.Errorf("Expected 10 probes, got %d", src.probes)
	}
}

func TestNewDefaults(t *testing.T) {
	a := New(0, -1)
	if a.width != DefaultWidth || a.maxAttempts != DefaultMaxAttempts {
		t.Errorf("Unexpected defaults: %+v", a)
	}
	if a.Format(42) != "0042" {
		t.Errorf("Expected 0042, got %s", a.Format(42))
	}
}

func TestGormSourceScansBothTables(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()

	tierNumbers := []string{"0003", "0010"}
	for i, n := range tierNumbers {
		tier := models.Tier{AccountNumber: n, ClientDetails: models.ClientDetails{Name: "Tier"}}
		if err := db.Create(&tier).Error; err != nil {
			t.Fatalf("Failed to create tier %d: %v", i, err)
		}
	}
	// A soft-deleted tier still owns its number
	deleted := models.Tier{AccountNumber: "0011", ClientDetails: models.ClientDetails{Name: "Gone"}}
	if err := db.Create(&deleted).Error; err != nil {
		t.Fatalf("Failed to create tier: %v", err)
	}
	if err := db.Delete(&deleted).Error; err != nil {
		t.Fatalf("Failed to delete tier: %v", err)
	}

	pendingNumber := "0025"
	garbage := "N/A"
	for _, n := range []*string{&pendingNumber, &garbage, nil} {
		p := models.PendingClient{AccountNumber: n, ClientDetails: models.ClientDetails{Name: "Pending"}, Status: models.ClientStatusDraft}
		if err := db.Create(&p).Error; err != nil {
			t.Fatalf("Failed to create pending client: %v", err)
		}
	}

	src := NewGormSource(db.DB)
	got, err := New(4, 10).Allocate(ctx, src)
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	if got != "0026" {
		t.Errorf("Expected 0026, got %s", got)
	}

	for _, n := range []string{"0003", "0011", "0025"} {
		inUse, err := src.Exists(ctx, n)
		if err != nil {
			t.Fatalf("Exists failed: %v", err)
		}
		if !inUse {
			t.Errorf("Expected %s to be in use", n)
		}
	}
	inUse, err := src.Exists(ctx, "0026")
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if inUse {
		t.Error("0026 should be free")
	}
}

func TestNumberInUseExcludesSelf(t *testing.T) {
	db := dbtest.Open(t)
	n := "0100"
	p := models.PendingClient{AccountNumber: &n, ClientDetails: models.ClientDetails{Name: "Self"}}
	if err := db.Create(&p).Error; err != nil {
		t.Fatalf("Failed to create pending client: %v", err)
	}

	inUse, err := NumberInUse(context.Background(), db.DB, n, p.ID)
	if err != nil {
		t.Fatalf("NumberInUse failed: %v", err)
	}
	if inUse {
		t.Error("A pending client should not collide with itself")
	}
	inUse, err = NumberInUse(context.Background(), db.DB, n, 0)
	if err != nil {
		t.Fatalf("NumberInUse failed: %v", err)
	}
	if !inUse {
		t.Error("Number should be in use for other clients")
	}
}
