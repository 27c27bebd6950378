package curriculum

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"academy/internal/apierr"
	"academy/internal/logger"
	"academy/internal/models"
	"academy/internal/versioning"
)

const (
	maxTitleLen       = 100
	maxDescriptionLen = 255
	maxPracticeLen    = 150
	maxAnswerLen      = 150
	maxTheoryLen      = 2000
)

// Service writes programs, themes and lessons. Every save marks the row
// unapproved and records a snapshot in the same transaction.
type Service struct {
	db    *gorm.DB
	store *versioning.Store
	flow  *versioning.Workflow
	log   *logger.Logger
}

func NewService(db *gorm.DB, flow *versioning.Workflow, log *logger.Logger) *Service {
	return &Service{
		db:    db,
		store: flow.Store(),
		flow:  flow,
		log:   log.With("service", "CurriculumService"),
	}
}

type ProgramInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type ProgramPatch struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
}

type ThemeInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type ThemePatch struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
}

///////////////////////////////////////////////////////
// PROGRAMS
///////////////////////////////////////////////////////

func (s *Service) CreateProgram(ctx context.Context, actor *models.User, in ProgramInput) (*models.Program, error) {
	p := &models.Program{
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
	}
	if err := validateText(p.Title, p.Description); err != nil {
		return nil, err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := uniqueProgramTitle(tx, p.Title, 0); err != nil {
			return err
		}
		if err := tx.Create(p).Error; err != nil {
			return fmt.Errorf("create program: %w", err)
		}
		_, err := s.store.Record(tx, p, actor)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("program created", "program_id", p.ID, "actor_id", actor.ID)
	return p, nil
}

func (s *Service) UpdateProgram(ctx context.Context, actor *models.User, id uint, patch ProgramPatch) (*models.Program, error) {
	var p models.Program
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := first(tx, &p, models.KindProgram, id); err != nil {
			return err
		}
		if patch.Title != nil {
			p.Title = strings.TrimSpace(*patch.Title)
		}
		if patch.Description != nil {
			p.Description = strings.TrimSpace(*patch.Description)
		}
		if err := validateText(p.Title, p.Description); err != nil {
			return err
		}
		if err := uniqueProgramTitle(tx, p.Title, p.ID); err != nil {
			return err
		}
		p.IsApproved = false
		return s.save(tx, &p, actor)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("program updated", "program_id", p.ID, "actor_id", actor.ID)
	return &p, nil
}

func (s *Service) GetProgram(ctx context.Context, id uint) (*models.Program, error) {
	var p models.Program
	if err := first(s.db.WithContext(ctx), &p, models.KindProgram, id); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Service) ListPrograms(ctx context.Context) ([]models.Program, error) {
	var programs []models.Program
	if err := s.db.WithContext(ctx).Order("id").Find(&programs).Error; err != nil {
		return nil, fmt.Errorf("list programs: %w", err)
	}
	return programs, nil
}

///////////////////////////////////////////////////////
// THEMES
///////////////////////////////////////////////////////

func (s *Service) CreateTheme(ctx context.Context, actor *models.User, programID uint, in ThemeInput) (*models.Theme, error) {
	t := &models.Theme{
		ProgramID:   programID,
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
	}
	if err := validateText(t.Title, t.Description); err != nil {
		return nil, err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := first(tx, &models.Program{}, models.KindProgram, programID); err != nil {
			return err
		}
		if err := tx.Create(t).Error; err != nil {
			return fmt.Errorf("create theme: %w", err)
		}
		_, err := s.store.Record(tx, t, actor)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("theme created", "theme_id", t.ID, "program_id", programID, "actor_id", actor.ID)
	return t, nil
}

func (s *Service) UpdateTheme(ctx context.Context, actor *models.User, id uint, patch ThemePatch) (*models.Theme, error) {
	var t models.Theme
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := first(tx, &t, models.KindTheme, id); err != nil {
			return err
		}
		if patch.Title != nil {
			t.Title = strings.TrimSpace(*patch.Title)
		}
		if patch.Description != nil {
			t.Description = strings.TrimSpace(*patch.Description)
		}
		if err := validateText(t.Title, t.Description); err != nil {
			return err
		}
		t.IsApproved = false
		return s.save(tx, &t, actor)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("theme updated", "theme_id", t.ID, "actor_id", actor.ID)
	return &t, nil
}

func (s *Service) GetTheme(ctx context.Context, id uint) (*models.Theme, error) {
	var t models.Theme
	if err := first(s.db.WithContext(ctx), &t, models.KindTheme, id); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Service) ListThemes(ctx context.Context, programID uint) ([]models.Theme, error) {
	tx := s.db.WithContext(ctx)
	if err := first(tx, &models.Program{}, models.KindProgram, programID); err != nil {
		return nil, err
	}
	var themes []models.Theme
	if err := tx.Where("program_id = ?", programID).Order("id").Find(&themes).Error; err != nil {
		return nil, fmt.Errorf("list themes: %w", err)
	}
	return themes, nil
}

// ---------- helpers ----------

// save persists the row without touching relations and snapshots it.
func (s *Service) save(tx *gorm.DB, e models.Versioned, actor *models.User) error {
	if err := tx.Omit(clause.Associations).Save(e).Error; err != nil {
		return fmt.Errorf("save %s %d: %w", e.SnapshotKind(), e.SnapshotEntityID(), err)
	}
	_, err := s.store.Record(tx, e, actor)
	return err
}

func first(tx *gorm.DB, dest any, kind models.Kind, id uint) error {
	err := tx.First(dest, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apierr.NotFound("%s %d", kind, id)
	}
	if err != nil {
		return fmt.Errorf("load %s %d: %w", kind, id, err)
	}
	return nil
}

func uniqueProgramTitle(tx *gorm.DB, title string, exceptID uint) error {
	var cnt int64
	if err := tx.Model(&models.Program{}).Where("title = ? AND id <> ?", title, exceptID).Count(&cnt).Error; err != nil {
		return fmt.Errorf("check program title: %w", err)
	}
	if cnt > 0 {
		return apierr.Conflict("program %q already exists", title)
	}
	return nil
}

func validateText(title, description string) error {
	if title == "" {
		return apierr.Invalid("title is required")
	}
	if utf8.RuneCountInString(title) > maxTitleLen {
		return apierr.Invalid("title is longer than %d characters", maxTitleLen)
	}
	if utf8.RuneCountInString(description) > maxDescriptionLen {
		return apierr.Invalid("description is longer than %d characters", maxDescriptionLen)
	}
	return nil
}
