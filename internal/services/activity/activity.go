// Package activity writes and repairs the append-only activity trail of tiers and traites.
package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"time"

	"github.com/xelth-com/eckbackoffice/internal/apperrors"
	"github.com/xelth-com/eckbackoffice/internal/models"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Fields never reported in snapshots or deltas
var ignoredFields = map[string]bool{
	"id":        true,
	"createdAt": true,
	"updatedAt": true,
}

// Logger appends activity entries. It has no update or delete operation; entries
// only disappear through the owning entity's cascade.
type Logger struct {
	db  *gorm.DB
	log *zap.Logger
}

// NewLogger creates an activity Logger
func NewLogger(db *gorm.DB, log *zap.Logger) *Logger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Logger{db: db, log: log}
}

// Record appends one entry using the logger's connection
func (l *Logger) Record(ctx context.Context, entityType string, entityID uint, userID *uint, action string, changes map[string]any) error {
	return Record(ctx, l.db, entityType, entityID, userID, action, changes)
}

// Record appends one entry through db, which may be an open transaction
func Record(ctx context.Context, db *gorm.DB, entityType string, entityID uint, userID *uint, action string, changes map[string]any) error {
	if entityID == 0 {
		return apperrors.Validation("entityId", "is required")
	}
	var payload datatypes.JSONMap
	if changes != nil {
		payload = datatypes.JSONMap(changes)
	}

	var row interface{}
	switch entityType {
	case models.EntityTier:
		row = &models.TierActivityLog{TierID: entityID, UserID: userID, Action: action, Changes: payload}
	case models.EntityTraite:
		row = &models.TraiteActivityLog{TraiteID: entityID, UserID: userID, Action: action, Changes: payload}
	default:
		return apperrors.Validation("entityType", fmt.Sprintf("unknown entity type %q", entityType))
	}

	if err := db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("record %s activity for %s %d: %w", action, entityType, entityID, err)
	}
	return nil
}

// RecordCreate stores a Création entry holding the full snapshot of entity
func RecordCreate(ctx context.Context, db *gorm.DB, entity models.AuditableEntity, userID *uint) error {
	snap, err := Snapshot(entity)
	if err != nil {
		return err
	}
	return Record(ctx, db, entity.GetEntityType(), entity.GetEntityID(), userID, models.ActionCreate, snap)
}

// RecordUpdate stores a Modification entry with the changed fields only.
// It returns false without writing when nothing changed.
func RecordUpdate(ctx context.Context, db *gorm.DB, before, after models.AuditableEntity, userID *uint) (bool, error) {
	delta, err := Diff(before, after)
	if err != nil {
		return false, err
	}
	if len(delta) == 0 {
		return false, nil
	}
	return true, Record(ctx, db, after.GetEntityType(), after.GetEntityID(), userID, models.ActionUpdate, delta)
}

// RecordDelete stores a Suppression entry holding the final snapshot
func RecordDelete(ctx context.Context, db *gorm.DB, entity models.AuditableEntity, userID *uint) error {
	snap, err := Snapshot(entity)
	if err != nil {
		return err
	}
	return Record(ctx, db, entity.GetEntityType(), entity.GetEntityID(), userID, models.ActionDelete, snap)
}

// List returns the trail of one entity, oldest first
func (l *Logger) List(ctx context.Context, entityType string, entityID uint) ([]models.ActivityEntry, error) {
	db := l.db.WithContext(ctx)
	var out []models.ActivityEntry

	switch entityType {
	case models.EntityTier:
		var rows []models.TierActivityLog
		if err := db.Where("tier_id = ?", entityID).Order("created_at ASC, id ASC").Find(&rows).Error; err != nil {
			return nil, err
		}
		for _, r := range rows {
			out = append(out, r.Entry())
		}
	case models.EntityTraite:
		var rows []models.TraiteActivityLog
		if err := db.Where("traite_id = ?", entityID).Order("created_at ASC, id ASC").Find(&rows).Error; err != nil {
			return nil, err
		}
		for _, r := range rows {
			out = append(out, r.Entry())
		}
	default:
		return nil, apperrors.Validation("entityType", fmt.Sprintf("unknown entity type %q", entityType))
	}
	return out, nil
}

// Snapshot renders the JSON view of an entity as a field map
func Snapshot(entity any) (map[string]any, error) {
	raw, err := json.Marshal(entity)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	fields := map[string]any{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	for k := range ignoredFields {
		delete(fields, k)
	}
	return fields, nil
}

// Diff returns {field: {"old": x, "new": y}} for every field whose value changed
func Diff(before, after any) (map[string]any, error) {
	old, err := Snapshot(before)
	if err != nil {
		return nil, err
	}
	cur, err := Snapshot(after)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(cur))
	for k := range cur {
		keys = append(keys, k)
	}
	for k := range old {
		if _, ok := cur[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	delta := map[string]any{}
	for _, k := range keys {
		if reflect.DeepEqual(old[k], cur[k]) {
			continue
		}
		delta[k] = map[string]any{"old": old[k], "new": cur[k]}
	}
	return delta, nil
}

// RepairResult counts the entries synthesized by Repair
type RepairResult struct {
	Tiers   int `json:"tiers"`
	Traites int `json:"traites"`
}

// epoch stands in for entities without a creation timestamp
var epoch = time.Unix(0, 0).UTC()

// Repair gives every tier and traite lacking any entry a Création entry with no
// user and no payload, dated at the entity's creation. Safe to re-run.
func (l *Logger) Repair(ctx context.Context) (RepairResult, error) {
	var res RepairResult
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var tiers []models.Tier
		if err := tx.Unscoped().
			Where("NOT EXISTS (SELECT 1 FROM tier_activity_logs l WHERE l.tier_id = tiers.id)").
			Order("id").Find(&tiers).Error; err != nil {
			return fmt.Errorf("find tiers without activity: %w", err)
		}
		for _, t := range tiers {
			entry := models.TierActivityLog{TierID: t.ID, Action: models.ActionCreate, CreatedAt: repairTime(t.CreatedAt)}
			if err := tx.Create(&entry).Error; err != nil {
				return fmt.Errorf("repair tier %d: %w", t.ID, err)
			}
		}
		res.Tiers = len(tiers)

		var traites []models.Traite
		if err := tx.Unscoped().
			Where("NOT EXISTS (SELECT 1 FROM traite_activity_logs l WHERE l.traite_id = traites.id)").
			Order("id").Find(&traites).Error; err != nil {
			return fmt.Errorf("find traites without activity: %w", err)
		}
		for _, t := range traites {
			entry := models.TraiteActivityLog{TraiteID: t.ID, Action: models.ActionCreate, CreatedAt: repairTime(t.CreatedAt)}
			if err := tx.Create(&entry).Error; err != nil {
				return fmt.Errorf("repair traite %d: %w", t.ID, err)
			}
		}
		res.Traites = len(traites)
		return nil
	})
	if err != nil {
		return RepairResult{}, err
	}

	l.log.Info("activity repair finished", zap.Int("tiers", res.Tiers), zap.Int("traites", res.Traites))
	return res, nil
}

func repairTime(created time.Time) time.Time {
	if created.IsZero() {
		return epoch
	}
	return created
}
