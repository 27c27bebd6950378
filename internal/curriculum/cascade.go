package curriculum

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"academy/internal/models"
)

// Deletes follow the ownership edges Program -> Theme -> Lesson -> child
// Lesson -> Studying explicitly, so they behave the same on any backend.
// Snapshots are kept as an audit log of deleted content.

// DeleteLesson removes the lesson, every lesson chained after it, and the
// progress rows pointing at them.
func (s *Service) DeleteLesson(ctx context.Context, actor *models.User, id uint) error {
	var removed []uint
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := first(tx, &models.Lesson{}, models.KindLesson, id); err != nil {
			return err
		}
		var err error
		removed, err = deleteLessonChain(tx, id)
		return err
	})
	if err != nil {
		return err
	}
	s.log.Info("lesson deleted", "lesson_id", id, "cascaded", len(removed)-1, "actor_id", actor.ID)
	return nil
}

// DeleteTheme removes the theme and its lessons (with their chains).
func (s *Service) DeleteTheme(ctx context.Context, actor *models.User, id uint) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := first(tx, &models.Theme{}, models.KindTheme, id); err != nil {
			return err
		}
		return deleteTheme(tx, id)
	})
	if err != nil {
		return err
	}
	s.log.Info("theme deleted", "theme_id", id, "actor_id", actor.ID)
	return nil
}

// DeleteProgram removes the program with its lessons, themes, progress rows
// and enrollment links.
func (s *Service) DeleteProgram(ctx context.Context, actor *models.User, id uint) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := first(tx, &models.Program{}, models.KindProgram, id); err != nil {
			return err
		}
		lessonIDs := tx.Model(&models.Lesson{}).Select("id").Where("program_id = ?", id)
		if err := tx.Where("lesson_id IN (?)", lessonIDs).Delete(&models.Studying{}).Error; err != nil {
			return fmt.Errorf("delete studyings of program %d: %w", id, err)
		}
		if err := tx.Where("program_id = ?", id).Delete(&models.Lesson{}).Error; err != nil {
			return fmt.Errorf("delete lessons of program %d: %w", id, err)
		}
		if err := tx.Where("program_id = ?", id).Delete(&models.Theme{}).Error; err != nil {
			return fmt.Errorf("delete themes of program %d: %w", id, err)
		}
		for _, table := range []string{"student_open_programs", "student_wish_programs"} {
			if err := tx.Exec("DELETE FROM "+table+" WHERE program_id = ?", id).Error; err != nil {
				return fmt.Errorf("delete %s of program %d: %w", table, id, err)
			}
		}
		return tx.Delete(&models.Program{}, id).Error
	})
	if err != nil {
		return err
	}
	s.log.Info("program deleted", "program_id", id, "actor_id", actor.ID)
	return nil
}

func deleteTheme(tx *gorm.DB, themeID uint) error {
	var lessonIDs []uint
	if err := tx.Model(&models.Lesson{}).Where("theme_id = ?", themeID).Order("id").Pluck("id", &lessonIDs).Error; err != nil {
		return fmt.Errorf("load lessons of theme %d: %w", themeID, err)
	}
	gone := make(map[uint]bool, len(lessonIDs))
	for _, id := range lessonIDs {
		if gone[id] {
			continue
		}
		removed, err := deleteLessonChain(tx, id)
		if err != nil {
			return err
		}
		for _, r := range removed {
			gone[r] = true
		}
	}
	if err := tx.Delete(&models.Theme{}, themeID).Error; err != nil {
		return fmt.Errorf("delete theme %d: %w", themeID, err)
	}
	return nil
}

// deleteLessonChain deletes lessonID and its descendants, returning their ids.
func deleteLessonChain(tx *gorm.DB, lessonID uint) ([]uint, error) {
	chain := []uint{lessonID}
	for cur := lessonID; ; {
		next, err := NextLesson(tx, cur)
		if err != nil {
			return nil, err
		}
		if next == nil {
			break
		}
		chain = append(chain, next.ID)
		cur = next.ID
	}

	if err := tx.Where("lesson_id IN ?", chain).Delete(&models.Studying{}).Error; err != nil {
		return nil, fmt.Errorf("delete studyings: %w", err)
	}
	if err := tx.Where("id IN ?", chain).Delete(&models.Lesson{}).Error; err != nil {
		return nil, fmt.Errorf("delete lessons: %w", err)
	}
	return chain, nil
}
