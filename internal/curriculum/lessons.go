package curriculum

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"

	"academy/internal/apierr"
	"academy/internal/models"
)

type LessonInput struct {
	ThemeID  *uint  `json:"theme_id"`
	Title    string `json:"title"`
	Theory   string `json:"theory"`
	Practice string `json:"practice"`
	Answer   string `json:"answer"`
}

// LessonPatch updates only the fields that are set. ThemeID 0 detaches the
// lesson from its theme.
type LessonPatch struct {
	ThemeID  *uint   `json:"theme_id"`
	Title    *string `json:"title"`
	Theory   *string `json:"theory"`
	Practice *string `json:"practice"`
	Answer   *string `json:"answer"`
}

// AddLesson appends a lesson to the program's chain: its parent is the
// program's newest lesson, or none for the first one.
func (s *Service) AddLesson(ctx context.Context, actor *models.User, programID uint, in LessonInput) (*models.Lesson, error) {
	l := &models.Lesson{
		ProgramID: programID,
		ThemeID:   in.ThemeID,
		EditorID:  actor.ID,
		Title:     strings.TrimSpace(in.Title),
		Theory:    in.Theory,
		Practice:  strings.TrimSpace(in.Practice),
		Answer:    NormalizeAnswer(in.Answer),
	}
	if err := validateLesson(l); err != nil {
		return nil, err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := first(tx, &models.Program{}, models.KindProgram, programID); err != nil {
			return err
		}
		if err := checkTheme(tx, l); err != nil {
			return err
		}
		last, err := LastLesson(tx, programID)
		if err != nil {
			return err
		}
		if last != nil {
			l.ParentID = &last.ID
		}
		if err := tx.Create(l).Error; err != nil {
			return fmt.Errorf("create lesson: %w", err)
		}
		_, err = s.store.Record(tx, l, actor)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("lesson added", "lesson_id", l.ID, "program_id", programID, "parent_id", l.ParentID, "actor_id", actor.ID)
	return l, nil
}

// UpdateLesson edits a lesson; the acting user becomes its editor.
func (s *Service) UpdateLesson(ctx context.Context, actor *models.User, id uint, patch LessonPatch) (*models.Lesson, error) {
	var l models.Lesson
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := first(tx, &l, models.KindLesson, id); err != nil {
			return err
		}
		if patch.ThemeID != nil {
			if *patch.ThemeID == 0 {
				l.ThemeID = nil
			} else {
				themeID := *patch.ThemeID
				l.ThemeID = &themeID
			}
		}
		if patch.Title != nil {
			l.Title = strings.TrimSpace(*patch.Title)
		}
		if patch.Theory != nil {
			l.Theory = *patch.Theory
		}
		if patch.Practice != nil {
			l.Practice = strings.TrimSpace(*patch.Practice)
		}
		if patch.Answer != nil {
			l.Answer = NormalizeAnswer(*patch.Answer)
		}
		if err := validateLesson(&l); err != nil {
			return err
		}
		if err := checkTheme(tx, &l); err != nil {
			return err
		}
		l.EditorID = actor.ID
		l.IsApproved = false
		return s.save(tx, &l, actor)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("lesson updated", "lesson_id", l.ID, "actor_id", actor.ID)
	return &l, nil
}

func (s *Service) GetLesson(ctx context.Context, id uint) (*models.Lesson, error) {
	var l models.Lesson
	if err := first(s.db.WithContext(ctx), &l, models.KindLesson, id); err != nil {
		return nil, err
	}
	return &l, nil
}

// ListLessons returns the program's lessons in chain order.
func (s *Service) ListLessons(ctx context.Context, programID uint) ([]models.Lesson, error) {
	tx := s.db.WithContext(ctx)
	if err := first(tx, &models.Program{}, models.KindProgram, programID); err != nil {
		return nil, err
	}
	var lessons []models.Lesson
	if err := tx.Where("program_id = ?", programID).Order("id").Find(&lessons).Error; err != nil {
		return nil, fmt.Errorf("list lessons: %w", err)
	}
	return lessons, nil
}

func (s *Service) FirstLesson(ctx context.Context, programID uint) (*models.Lesson, error) {
	return FirstLesson(s.db.WithContext(ctx), programID)
}

func (s *Service) NextLesson(ctx context.Context, lessonID uint) (*models.Lesson, error) {
	return NextLesson(s.db.WithContext(ctx), lessonID)
}

// ---------- chain queries, usable inside a caller's transaction ----------

// FirstLesson is the program's earliest lesson, or nil for an empty program.
func FirstLesson(tx *gorm.DB, programID uint) (*models.Lesson, error) {
	return edgeLesson(tx, programID, "id ASC")
}

// LastLesson is the program's newest lesson, or nil for an empty program.
func LastLesson(tx *gorm.DB, programID uint) (*models.Lesson, error) {
	return edgeLesson(tx, programID, "id DESC")
}

// NextLesson is the lesson whose parent is lessonID, or nil.
func NextLesson(tx *gorm.DB, lessonID uint) (*models.Lesson, error) {
	var next []models.Lesson
	if err := tx.Where("parent_id = ?", lessonID).Limit(1).Find(&next).Error; err != nil {
		return nil, fmt.Errorf("load next lesson: %w", err)
	}
	if len(next) == 0 {
		return nil, nil
	}
	return &next[0], nil
}

func edgeLesson(tx *gorm.DB, programID uint, order string) (*models.Lesson, error) {
	var lessons []models.Lesson
	if err := tx.Where("program_id = ?", programID).Order(order).Limit(1).Find(&lessons).Error; err != nil {
		return nil, fmt.Errorf("load lessons of program %d: %w", programID, err)
	}
	if len(lessons) == 0 {
		return nil, nil
	}
	return &lessons[0], nil
}

func checkTheme(tx *gorm.DB, l *models.Lesson) error {
	if l.ThemeID == nil {
		return nil
	}
	var theme models.Theme
	if err := first(tx, &theme, models.KindTheme, *l.ThemeID); err != nil {
		if errors.Is(err, apierr.ErrNotFound) {
			return apierr.Invalid("theme %d does not exist", *l.ThemeID)
		}
		return err
	}
	if theme.ProgramID != l.ProgramID {
		return apierr.Invalid("theme %d belongs to another program", theme.ID)
	}
	return nil
}

func validateLesson(l *models.Lesson) error {
	if err := validateText(l.Title, ""); err != nil {
		return err
	}
	switch {
	case utf8.RuneCountInString(l.Theory) > maxTheoryLen:
		return apierr.Invalid("theory is longer than %d characters", maxTheoryLen)
	case utf8.RuneCountInString(l.Practice) > maxPracticeLen:
		return apierr.Invalid("practice is longer than %d characters", maxPracticeLen)
	case l.Answer == "":
		return apierr.Invalid("answer is required")
	case utf8.RuneCountInString(l.Answer) > maxAnswerLen:
		return apierr.Invalid("answer is longer than %d characters", maxAnswerLen)
	}
	return nil
}
