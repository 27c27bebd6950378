package versioning

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"academy/internal/apierr"
	"academy/internal/logger"
	"academy/internal/models"
)

// Version is a decoded snapshot.
type Version struct {
	ID        uint
	Kind      models.Kind
	EntityID  uint
	Values    map[string]any
	EditorID  uint
	Editor    string
	CreatedAt time.Time
}

func (v Version) Approved() bool {
	b, _ := v.Values["is_approved"].(bool)
	return b
}

func (v Version) String(key string) string {
	s, _ := v.Values[key].(string)
	return s
}

// Uint returns a numeric column, or nil when it is null or absent.
func (v Version) Uint(key string) *uint {
	n, ok := v.Values[key].(int64)
	if !ok {
		return nil
	}
	u := uint(n)
	return &u
}

// MarshalJSON renders the captured columns plus version_id and editor.
func (v Version) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(v.Values)+2)
	for k, val := range v.Values {
		out[k] = val
	}
	out["version_id"] = v.ID
	out["editor"] = v.Editor
	return json.Marshal(out)
}

// Store appends, reads and deletes snapshots. Every method runs on the
// transaction it is given.
type Store struct {
	log *logger.Logger
}

func NewStore(log *logger.Logger) *Store {
	return &Store{log: log.With("component", "SnapshotStore")}
}

// Record appends a snapshot of e's current columns attributed to actor.
func (s *Store) Record(tx *gorm.DB, e models.Versioned, actor *models.User) (*Version, error) {
	if actor == nil || actor.ID == 0 {
		return nil, apierr.Invalid("snapshot requires an acting user")
	}
	raw, err := json.Marshal(e.SnapshotValues())
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	row := models.Snapshot{
		EntityKind:  e.SnapshotKind(),
		EntityID:    e.SnapshotEntityID(),
		FieldValues: datatypes.JSON(raw),
		EditorID:    actor.ID,
	}
	if err := tx.Create(&row).Error; err != nil {
		return nil, fmt.Errorf("record snapshot: %w", err)
	}
	row.Editor = *actor

	s.log.Debug("snapshot recorded",
		"kind", row.EntityKind, "entity_id", row.EntityID, "version_id", row.ID, "editor_id", actor.ID)
	return decode(row)
}

// History returns the whole chain of one entity, oldest first.
func (s *Store) History(tx *gorm.DB, kind models.Kind, entityID uint) ([]Version, error) {
	var rows []models.Snapshot
	err := tx.Preload("Editor").
		Where("entity_kind = ? AND entity_id = ?", kind, entityID).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	out := make([]Version, 0, len(rows))
	for _, row := range rows {
		v, err := decode(row)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, nil
}

// Get loads one snapshot and checks that it belongs to the given entity.
func (s *Store) Get(tx *gorm.DB, kind models.Kind, entityID, snapshotID uint) (*Version, error) {
	var row models.Snapshot
	err := tx.Preload("Editor").
		Where("id = ? AND entity_kind = ? AND entity_id = ?", snapshotID, kind, entityID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apierr.NotFound("version %d of %s %d", snapshotID, kind, entityID)
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return decode(row)
}

// Delete permanently removes one snapshot.
func (s *Store) Delete(tx *gorm.DB, snapshotID uint) error {
	res := tx.Delete(&models.Snapshot{}, snapshotID)
	if res.Error != nil {
		return fmt.Errorf("delete snapshot: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apierr.NotFound("version %d", snapshotID)
	}
	s.log.Debug("snapshot deleted", "version_id", snapshotID)
	return nil
}

// Published returns the newest approved snapshot, or nil if the entity was never approved.
func (s *Store) Published(tx *gorm.DB, kind models.Kind, entityID uint) (*Version, error) {
	chain, err := s.History(tx, kind, entityID)
	if err != nil {
		return nil, err
	}
	for i := len(chain) - 1; i >= 0; i-- {
		if chain[i].Approved() {
			return &chain[i], nil
		}
	}
	return nil, nil
}

func decode(row models.Snapshot) (*Version, error) {
	values, err := decodeValues(row.FieldValues)
	if err != nil {
		return nil, fmt.Errorf("decode snapshot %d: %w", row.ID, err)
	}
	return &Version{
		ID:        row.ID,
		Kind:      row.EntityKind,
		EntityID:  row.EntityID,
		Values:    values,
		EditorID:  row.EditorID,
		Editor:    row.Editor.DisplayName(),
		CreatedAt: row.CreatedAt,
	}, nil
}

// decodeValues keeps integer columns integral so they can be written back
// to the live row unchanged.
func decodeValues(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var values map[string]any
	if err := dec.Decode(&values); err != nil {
		return nil, err
	}
	for k, v := range values {
		n, ok := v.(json.Number)
		if !ok {
			continue
		}
		if i, err := n.Int64(); err == nil {
			values[k] = i
		} else if f, err := n.Float64(); err == nil {
			values[k] = f
		}
	}
	return values, nil
}
