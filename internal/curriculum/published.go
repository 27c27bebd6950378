package curriculum

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"academy/internal/models"
	"academy/internal/versioning"
)

// What students and the staff overview see: every entity rendered from its
// newest approved snapshot. Never-approved entities are left out.

type ThemeLessons struct {
	ID          uint                 `json:"id"`
	ProgramID   uint                 `json:"program_id"`
	Title       string               `json:"title"`
	Description string               `json:"description"`
	IsApproved  bool                 `json:"is_approved"`
	Lessons     []versioning.Version `json:"lessons"`
}

type LessonsByTheme struct {
	WithTheme    []ThemeLessons       `json:"with_theme"`
	WithoutTheme []versioning.Version `json:"without_theme"`
}

// Catalog lists the published state of every program that was ever approved.
func (s *Service) Catalog(ctx context.Context) ([]versioning.Version, error) {
	tx := s.db.WithContext(ctx)
	var ids []uint
	if err := tx.Model(&models.Program{}).Order("id").Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("list programs: %w", err)
	}
	return s.published(tx, models.KindProgram, ids)
}

// PublishedLessons lists the published state of the program's lessons in chain order.
func (s *Service) PublishedLessons(ctx context.Context, programID uint) ([]versioning.Version, error) {
	tx := s.db.WithContext(ctx)
	if err := first(tx, &models.Program{}, models.KindProgram, programID); err != nil {
		return nil, err
	}
	return s.publishedLessons(tx, tx.Where("program_id = ?", programID))
}

// LessonsByEditor lists the published lessons of a program last edited by editorID.
func (s *Service) LessonsByEditor(ctx context.Context, programID, editorID uint) ([]versioning.Version, error) {
	tx := s.db.WithContext(ctx)
	if err := first(tx, &models.Program{}, models.KindProgram, programID); err != nil {
		return nil, err
	}
	return s.publishedLessons(tx, tx.Where("program_id = ? AND editor_id = ?", programID, editorID))
}

// LessonsByTheme groups the program's published lessons under its themes.
func (s *Service) LessonsByTheme(ctx context.Context, programID uint) (*LessonsByTheme, error) {
	tx := s.db.WithContext(ctx)
	if err := first(tx, &models.Program{}, models.KindProgram, programID); err != nil {
		return nil, err
	}
	var themes []models.Theme
	if err := tx.Where("program_id = ?", programID).Order("id").Find(&themes).Error; err != nil {
		return nil, fmt.Errorf("list themes: %w", err)
	}
	lessons, err := s.publishedLessons(tx, tx.Where("program_id = ?", programID))
	if err != nil {
		return nil, err
	}

	out := &LessonsByTheme{
		WithTheme:    make([]ThemeLessons, 0, len(themes)),
		WithoutTheme: []versioning.Version{},
	}
	index := make(map[uint]int, len(themes))
	for i, t := range themes {
		index[t.ID] = i
		out.WithTheme = append(out.WithTheme, ThemeLessons{
			ID:          t.ID,
			ProgramID:   t.ProgramID,
			Title:       t.Title,
			Description: t.Description,
			IsApproved:  t.IsApproved,
			Lessons:     []versioning.Version{},
		})
	}
	for _, l := range lessons {
		themeID := l.Uint("theme_id")
		if themeID == nil {
			out.WithoutTheme = append(out.WithoutTheme, l)
			continue
		}
		if i, ok := index[*themeID]; ok {
			out.WithTheme[i].Lessons = append(out.WithTheme[i].Lessons, l)
		}
	}
	return out, nil
}

// PendingLessons lists live lessons waiting for a manager.
func (s *Service) PendingLessons(ctx context.Context) ([]models.Lesson, error) {
	var lessons []models.Lesson
	if err := s.db.WithContext(ctx).Where("is_approved = ?", false).Order("id").Find(&lessons).Error; err != nil {
		return nil, fmt.Errorf("list pending lessons: %w", err)
	}
	return lessons, nil
}

func (s *Service) publishedLessons(tx *gorm.DB, scope *gorm.DB) ([]versioning.Version, error) {
	var ids []uint
	if err := scope.Model(&models.Lesson{}).Order("id").Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("list lessons: %w", err)
	}
	return s.published(tx, models.KindLesson, ids)
}

func (s *Service) published(tx *gorm.DB, kind models.Kind, ids []uint) ([]versioning.Version, error) {
	out := make([]versioning.Version, 0, len(ids))
	for _, id := range ids {
		v, err := s.store.Published(tx, kind, id)
		if err != nil {
			return nil, err
		}
		if v != nil {
			out = append(out, *v)
		}
	}
	return out, nil
}
