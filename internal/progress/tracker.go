package progress

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"academy/internal/apierr"
	"academy/internal/config"
	"academy/internal/curriculum"
	"academy/internal/logger"
	"academy/internal/models"
	"academy/internal/versioning"
)

const (
	openProgramsTable = "student_open_programs"
	wishProgramsTable = "student_wish_programs"
)

// Tracker owns students, their program memberships and Studying rows.
// Enrollment side effects run in the same transaction as the membership change.
type Tracker struct {
	db    *gorm.DB
	store *versioning.Store
	log   *logger.Logger
	scope string
}

func NewTracker(db *gorm.DB, log *logger.Logger, unenrollScope string) *Tracker {
	if unenrollScope == "" {
		unenrollScope = config.UnenrollScopeStudent
	}
	return &Tracker{
		db:    db,
		store: versioning.NewStore(log),
		log:   log.With("service", "ProgressTracker"),
		scope: unenrollScope,
	}
}

// ---------- students ----------

// CreateStudent opens the student profile of user. A user has at most one.
func (t *Tracker) CreateStudent(ctx context.Context, user *models.User) (*models.Student, error) {
	s := &models.Student{UserID: user.ID}
	err := t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cnt int64
		if err := tx.Model(&models.Student{}).Where("user_id = ?", user.ID).Count(&cnt).Error; err != nil {
			return fmt.Errorf("check student: %w", err)
		}
		if cnt > 0 {
			return apierr.Conflict("user %d already has a student profile", user.ID)
		}
		return tx.Create(s).Error
	})
	if err != nil {
		return nil, err
	}
	t.log.Info("student created", "student_id", s.ID, "user_id", user.ID)
	return t.GetStudent(ctx, s.ID)
}

// GetStudent loads a student with the user and both program sets.
func (t *Tracker) GetStudent(ctx context.Context, id uint) (*models.Student, error) {
	var s models.Student
	err := t.db.WithContext(ctx).
		Preload("User").
		Preload("WishPrograms", orderByID).
		Preload("OpenPrograms", orderByID).
		First(&s, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apierr.NotFound("student %d", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load student %d: %w", id, err)
	}
	return &s, nil
}

// StudentByUser resolves the student profile of a logged-in user.
func (t *Tracker) StudentByUser(ctx context.Context, userID uint) (*models.Student, error) {
	var ids []uint
	if err := t.db.WithContext(ctx).Model(&models.Student{}).Where("user_id = ?", userID).Limit(1).Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("load student of user %d: %w", userID, err)
	}
	if len(ids) == 0 {
		return nil, apierr.NotFound("user %d has no student profile", userID)
	}
	return t.GetStudent(ctx, ids[0])
}

func (t *Tracker) ListStudents(ctx context.Context) ([]models.Student, error) {
	var students []models.Student
	if err := t.db.WithContext(ctx).Preload("User").Order("id").Find(&students).Error; err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	return students, nil
}

// ---------- membership ----------

// Enroll opens program for the student and seeds a Studying row for the
// program's first lesson. Enrolling twice is a no-op; an empty program seeds nothing.
func (t *Tracker) Enroll(ctx context.Context, actor *models.User, studentID, programID uint) error {
	var seeded *models.Studying
	err := t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := exists(tx, &models.Student{}, "student", studentID); err != nil {
			return err
		}
		if err := exists(tx, &models.Program{}, "program", programID); err != nil {
			return err
		}
		added, err := link(tx, openProgramsTable, studentID, programID)
		if err != nil || !added {
			return err
		}

		first, err := curriculum.FirstLesson(tx, programID)
		if err != nil || first == nil {
			return err
		}
		seeded, err = getOrCreateStudying(tx, studentID, first.ID)
		return err
	})
	if err != nil {
		return err
	}
	kv := []any{"student_id", studentID, "program_id", programID, "actor_id", actor.ID}
	if seeded != nil {
		kv = append(kv, "first_lesson_id", seeded.LessonID)
	}
	t.log.Info("student enrolled", kv...)
	return nil
}

// Unenroll closes program for the student and deletes the Studying rows of
// the program's lessons. With the "program" scope the rows of every student
// are deleted, reproducing the legacy behaviour.
func (t *Tracker) Unenroll(ctx context.Context, actor *models.User, studentID, programID uint) error {
	var deleted int64
	err := t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := exists(tx, &models.Student{}, "student", studentID); err != nil {
			return err
		}
		if err := exists(tx, &models.Program{}, "program", programID); err != nil {
			return err
		}
		removed, err := unlink(tx, openProgramsTable, studentID, programID)
		if err != nil || !removed {
			return err
		}

		lessonIDs := tx.Model(&models.Lesson{}).Select("id").Where("program_id = ?", programID)
		q := tx.Where("lesson_id IN (?)", lessonIDs)
		if t.scope != config.UnenrollScopeProgram {
			q = q.Where("student_id = ?", studentID)
		}
		res := q.Delete(&models.Studying{})
		if res.Error != nil {
			return fmt.Errorf("delete studyings of program %d: %w", programID, res.Error)
		}
		deleted = res.RowsAffected
		return nil
	})
	if err != nil {
		return err
	}
	t.log.Info("student unenrolled",
		"student_id", studentID, "program_id", programID, "scope", t.scope,
		"studyings_deleted", deleted, "actor_id", actor.ID)
	return nil
}

// AddWish and RemoveWish edit the wish list. They have no side effects.
func (t *Tracker) AddWish(ctx context.Context, studentID, programID uint) error {
	return t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := exists(tx, &models.Program{}, "program", programID); err != nil {
			return err
		}
		_, err := link(tx, wishProgramsTable, studentID, programID)
		return err
	})
}

func (t *Tracker) RemoveWish(ctx context.Context, studentID, programID uint) error {
	return t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := exists(tx, &models.Program{}, "program", programID); err != nil {
			return err
		}
		_, err := unlink(tx, wishProgramsTable, studentID, programID)
		return err
	})
}

// ---------- studying ----------

// SubmitAnswer stores the student's answer on one of their own Studying rows
// and recomputes passed against the published answer (the live one while the
// lesson was never approved). A passed row unlocks the next lesson of the
// chain; submitting again never duplicates the unlock.
func (t *Tracker) SubmitAnswer(ctx context.Context, studentID, studyingID uint, answer string) (*StudyingView, error) {
	var st models.Studying
	var view *StudyingView
	var unlocked *models.Studying
	err := t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := loadOwnStudying(tx, &st, studentID, studyingID); err != nil {
			return err
		}
		expected := st.Lesson.Answer
		published, err := t.store.Published(tx, models.KindLesson, st.LessonID)
		if err != nil {
			return err
		}
		if published != nil {
			expected = published.String("answer")
		}
		st.Answer = answer
		st.Passed = curriculum.AnswerMatches(answer, expected)
		if err := tx.Omit(clause.Associations).Save(&st).Error; err != nil {
			return fmt.Errorf("save studying %d: %w", st.ID, err)
		}
		view = &StudyingView{
			ID:        st.ID,
			StudentID: st.StudentID,
			LessonID:  st.LessonID,
			Answer:    st.Answer,
			Passed:    st.Passed,
			Lesson:    publishedLesson(published),
		}
		if !st.Passed {
			return nil
		}
		next, err := curriculum.NextLesson(tx, st.LessonID)
		if err != nil || next == nil {
			return err
		}
		unlocked, err = getOrCreateStudying(tx, st.StudentID, next.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	kv := []any{"studying_id", st.ID, "lesson_id", st.LessonID, "student_id", st.StudentID, "passed", st.Passed}
	if unlocked != nil {
		kv = append(kv, "unlocked_lesson_id", unlocked.LessonID)
	}
	t.log.Info("answer submitted", kv...)
	return view, nil
}

// GetStudying returns one of the student's own Studying rows.
func (t *Tracker) GetStudying(ctx context.Context, studentID, studyingID uint) (*StudyingView, error) {
	tx := t.db.WithContext(ctx)
	var st models.Studying
	if err := loadOwnStudying(tx, &st, studentID, studyingID); err != nil {
		return nil, err
	}
	return t.studyingView(tx, &st)
}

// OpenStudyings lists the student's Studying rows that are not passed yet.
func (t *Tracker) OpenStudyings(ctx context.Context, studentID uint) ([]StudyingView, error) {
	tx := t.db.WithContext(ctx)
	var rows []models.Studying
	err := tx.
		Where("student_id = ? AND passed = ?", studentID, false).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list studyings of student %d: %w", studentID, err)
	}
	out := make([]StudyingView, 0, len(rows))
	for i := range rows {
		v, err := t.studyingView(tx, &rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, nil
}

// AvailableLessons lists the published lessons of program the student has
// unlocked. Lessons never approved are left out.
func (t *Tracker) AvailableLessons(ctx context.Context, studentID, programID uint) ([]PublishedLesson, error) {
	tx := t.db.WithContext(ctx)
	if err := exists(tx, &models.Program{}, "program", programID); err != nil {
		return nil, err
	}
	var ids []uint
	err := tx.Model(&models.Lesson{}).
		Joins("JOIN studyings ON studyings.lesson_id = lessons.id").
		Where("studyings.student_id = ? AND lessons.program_id = ?", studentID, programID).
		Order("lessons.id").
		Pluck("lessons.id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("list available lessons: %w", err)
	}
	out := make([]PublishedLesson, 0, len(ids))
	for _, id := range ids {
		l, err := t.lessonView(tx, id)
		if err != nil {
			return nil, err
		}
		if l != nil {
			out = append(out, *l)
		}
	}
	return out, nil
}

// PassedCount counts the student's passed Studying rows.
func (t *Tracker) PassedCount(ctx context.Context, studentID uint) (int64, error) {
	var cnt int64
	err := t.db.WithContext(ctx).Model(&models.Studying{}).
		Where("student_id = ? AND passed = ?", studentID, true).
		Count(&cnt).Error
	if err != nil {
		return 0, fmt.Errorf("count passed lessons: %w", err)
	}
	return cnt, nil
}

// ---------- helpers ----------

func orderByID(db *gorm.DB) *gorm.DB { return db.Order("id") }

func exists(tx *gorm.DB, model any, name string, id uint) error {
	var cnt int64
	if err := tx.Model(model).Where("id = ?", id).Count(&cnt).Error; err != nil {
		return fmt.Errorf("load %s %d: %w", name, id, err)
	}
	if cnt == 0 {
		return apierr.NotFound("%s %d", name, id)
	}
	return nil
}

func loadOwnStudying(tx *gorm.DB, st *models.Studying, studentID, studyingID uint) error {
	err := tx.Preload("Lesson").First(st, studyingID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apierr.NotFound("studying %d", studyingID)
	}
	if err != nil {
		return fmt.Errorf("load studying %d: %w", studyingID, err)
	}
	if st.StudentID != studentID {
		return apierr.Forbidden("studying %d belongs to another student", studyingID)
	}
	if st.Lesson == nil {
		return apierr.NotFound("lesson %d", st.LessonID)
	}
	return nil
}

func getOrCreateStudying(tx *gorm.DB, studentID, lessonID uint) (*models.Studying, error) {
	st := &models.Studying{StudentID: studentID, LessonID: lessonID}
	err := tx.Where("student_id = ? AND lesson_id = ?", studentID, lessonID).FirstOrCreate(st).Error
	if err != nil {
		return nil, fmt.Errorf("get or create studying: %w", err)
	}
	return st, nil
}

// link inserts a student/program row into a join table, reporting whether it was new.
func link(tx *gorm.DB, table string, studentID, programID uint) (bool, error) {
	var cnt int64
	if err := tx.Table(table).Where("student_id = ? AND program_id = ?", studentID, programID).Count(&cnt).Error; err != nil {
		return false, fmt.Errorf("check %s: %w", table, err)
	}
	if cnt > 0 {
		return false, nil
	}
	row := map[string]any{"student_id": studentID, "program_id": programID}
	if err := tx.Table(table).Create(row).Error; err != nil {
		return false, fmt.Errorf("insert %s: %w", table, err)
	}
	return true, nil
}

// unlink deletes a student/program row from a join table, reporting whether it existed.
func unlink(tx *gorm.DB, table string, studentID, programID uint) (bool, error) {
	res := tx.Exec("DELETE FROM "+table+" WHERE student_id = ? AND program_id = ?", studentID, programID)
	if res.Error != nil {
		return false, fmt.Errorf("delete %s: %w", table, res.Error)
	}
	return res.RowsAffected > 0, nil
}
