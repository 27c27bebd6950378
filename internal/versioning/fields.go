package versioning

import (
	"academy/internal/apierr"
	"academy/internal/models"
)

// editableFields lists, per kind, the columns approve and rollback copy from a
// snapshot onto the live row. Primary keys and ownership columns (editor_id,
// parent_id) are never restored.
var editableFields = map[models.Kind][]string{
	models.KindProgram: {"title", "description"},
	models.KindTheme:   {"program_id", "title", "description"},
	models.KindLesson:  {"program_id", "theme_id", "title", "theory", "practice", "answer"},
}

// EditableFields returns a copy of the restorable column list for kind.
func EditableFields(kind models.Kind) []string {
	return append([]string(nil), editableFields[kind]...)
}

func newEntity(kind models.Kind) (models.Versioned, error) {
	switch kind {
	case models.KindProgram:
		return &models.Program{}, nil
	case models.KindTheme:
		return &models.Theme{}, nil
	case models.KindLesson:
		return &models.Lesson{}, nil
	}
	return nil, apierr.Invalid("unknown entity kind %q", kind)
}

// overwrite builds the column update that restores kind's editable fields from v
// and marks the row approved.
func overwrite(kind models.Kind, v *Version) map[string]any {
	updates := map[string]any{"is_approved": true}
	for _, col := range editableFields[kind] {
		val, ok := v.Values[col]
		if !ok {
			continue
		}
		updates[col] = val
	}
	return updates
}
