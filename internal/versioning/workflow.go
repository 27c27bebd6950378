package versioning

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"academy/internal/apierr"
	"academy/internal/logger"
	"academy/internal/models"
)

// Review is the moderation view of one entity: its current published
// snapshot (nil if never approved) and the edits stacked on top of it.
type Review struct {
	Published   *Version  `json:"published,omitempty"`
	NotApproved []Version `json:"not_approved"`
}

// Workflow implements approval, rejection and rollback over the snapshot chain.
// Each mutating call is one transaction: the live row update and the snapshot
// it produces commit together or not at all.
type Workflow struct {
	db    *gorm.DB
	store *Store
	log   *logger.Logger
}

func NewWorkflow(db *gorm.DB, store *Store, log *logger.Logger) *Workflow {
	return &Workflow{db: db, store: store, log: log.With("component", "ApprovalWorkflow")}
}

func (w *Workflow) Store() *Store { return w.store }

// Review walks the chain from newest to oldest, collecting unapproved
// snapshots until it meets the first approved one. NotApproved is newest first.
func (w *Workflow) Review(ctx context.Context, kind models.Kind, entityID uint) (*Review, error) {
	tx := w.db.WithContext(ctx)
	if _, err := loadEntity(tx, kind, entityID); err != nil {
		return nil, err
	}
	chain, err := w.store.History(tx, kind, entityID)
	if err != nil {
		return nil, err
	}

	review := &Review{NotApproved: []Version{}}
	for i := len(chain) - 1; i >= 0; i-- {
		if chain[i].Approved() {
			review.Published = &chain[i]
			break
		}
		review.NotApproved = append(review.NotApproved, chain[i])
	}
	return review, nil
}

// Decide approves or rejects one snapshot. Rejection deletes the snapshot and
// leaves the live row alone; approval copies the snapshot's editable fields
// onto the live row, marks it approved and records the result as a new
// snapshot. The live entity is returned in both cases.
func (w *Workflow) Decide(ctx context.Context, actor *models.User, kind models.Kind, entityID, snapshotID uint, approved bool) (models.Versioned, error) {
	var out models.Versioned
	err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entity, err := loadEntity(tx, kind, entityID)
		if err != nil {
			return err
		}
		v, err := w.store.Get(tx, kind, entityID, snapshotID)
		if err != nil {
			return err
		}

		if !approved {
			if err := w.store.Delete(tx, v.ID); err != nil {
				return err
			}
			w.log.Info("version rejected", "kind", kind, "entity_id", entityID, "version_id", v.ID, "actor_id", actor.ID)
			out = entity
			return nil
		}

		out, err = w.apply(tx, actor, entity, v)
		if err != nil {
			return err
		}
		w.log.Info("version approved", "kind", kind, "entity_id", entityID, "version_id", v.ID, "actor_id", actor.ID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ApprovedHistory lists every approved snapshot, newest first.
func (w *Workflow) ApprovedHistory(ctx context.Context, kind models.Kind, entityID uint) ([]Version, error) {
	tx := w.db.WithContext(ctx)
	if _, err := loadEntity(tx, kind, entityID); err != nil {
		return nil, err
	}
	chain, err := w.store.History(tx, kind, entityID)
	if err != nil {
		return nil, err
	}
	history := make([]Version, 0, len(chain))
	for i := len(chain) - 1; i >= 0; i-- {
		if chain[i].Approved() {
			history = append(history, chain[i])
		}
	}
	return history, nil
}

// Rollback restores the live row from a previously approved snapshot. The
// intervening history stays; the restore itself is appended as a new snapshot.
func (w *Workflow) Rollback(ctx context.Context, actor *models.User, kind models.Kind, entityID, snapshotID uint) (models.Versioned, error) {
	var out models.Versioned
	err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entity, err := loadEntity(tx, kind, entityID)
		if err != nil {
			return err
		}
		v, err := w.store.Get(tx, kind, entityID, snapshotID)
		if err != nil {
			return err
		}
		if !v.Approved() {
			return apierr.Invalid("version %d was never approved", v.ID)
		}
		out, err = w.apply(tx, actor, entity, v)
		if err != nil {
			return err
		}
		w.log.Info("rolled back", "kind", kind, "entity_id", entityID, "version_id", v.ID, "actor_id", actor.ID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Published returns the newest approved snapshot of an entity, or nil.
func (w *Workflow) Published(ctx context.Context, kind models.Kind, entityID uint) (*Version, error) {
	return w.store.Published(w.db.WithContext(ctx), kind, entityID)
}

func (w *Workflow) apply(tx *gorm.DB, actor *models.User, entity models.Versioned, v *Version) (models.Versioned, error) {
	kind := entity.SnapshotKind()
	updates := overwrite(kind, v)
	if err := reconcile(tx, kind, entity.SnapshotEntityID(), updates); err != nil {
		return nil, err
	}
	if err := tx.Model(entity).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("overwrite %s %d: %w", kind, entity.SnapshotEntityID(), err)
	}
	fresh, err := loadEntity(tx, kind, entity.SnapshotEntityID())
	if err != nil {
		return nil, err
	}
	if _, err := w.store.Record(tx, fresh, actor); err != nil {
		return nil, err
	}
	return fresh, nil
}

func loadEntity(tx *gorm.DB, kind models.Kind, id uint) (models.Versioned, error) {
	entity, err := newEntity(kind)
	if err != nil {
		return nil, err
	}
	err = tx.First(entity, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apierr.NotFound("%s %d", kind, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s %d: %w", kind, id, err)
	}
	return entity, nil
}

// reconcile adjusts or refuses a restore that no longer fits the current data.
// A program title taken by another program is a conflict. A lesson whose theme
// has since been deleted, or moved to another program, is restored without one.
func reconcile(tx *gorm.DB, kind models.Kind, entityID uint, updates map[string]any) error {
	switch kind {
	case models.KindProgram:
		title, ok := updates["title"].(string)
		if !ok {
			return nil
		}
		var n int64
		err := tx.Model(&models.Program{}).Where("title = ? AND id <> ?", title, entityID).Count(&n).Error
		if err != nil {
			return fmt.Errorf("check program title: %w", err)
		}
		if n > 0 {
			return apierr.Conflict("program titled %q already exists", title)
		}
	case models.KindLesson:
		themeID, ok := updates["theme_id"].(int64)
		if !ok {
			return nil
		}
		programID, _ := updates["program_id"].(int64)
		var n int64
		err := tx.Model(&models.Theme{}).Where("id = ? AND program_id = ?", themeID, programID).Count(&n).Error
		if err != nil {
			return fmt.Errorf("check lesson theme: %w", err)
		}
		if n == 0 {
			updates["theme_id"] = nil
		}
	}
	return nil
}
