package progress

import (
	"gorm.io/gorm"

	"academy/internal/models"
	"academy/internal/versioning"
)

// PublishedLesson is a lesson as students see it: the newest approved
// snapshot, without the answer.
type PublishedLesson struct {
	ID        uint   `json:"id"`
	VersionID uint   `json:"version_id"`
	ProgramID uint   `json:"program_id"`
	ThemeID   *uint  `json:"theme_id"`
	Title     string `json:"title"`
	Theory    string `json:"theory"`
	Practice  string `json:"practice"`
}

// StudyingView is a Studying row with its lesson in published form. Lesson is
// nil while the lesson has never been approved.
type StudyingView struct {
	ID        uint             `json:"id"`
	StudentID uint             `json:"student_id"`
	LessonID  uint             `json:"lesson_id"`
	Answer    string           `json:"answer"`
	Passed    bool             `json:"passed"`
	Lesson    *PublishedLesson `json:"lesson"`
}

func publishedLesson(v *versioning.Version) *PublishedLesson {
	if v == nil {
		return nil
	}
	l := &PublishedLesson{
		ID:        v.EntityID,
		VersionID: v.ID,
		ThemeID:   v.Uint("theme_id"),
		Title:     v.String("title"),
		Theory:    v.String("theory"),
		Practice:  v.String("practice"),
	}
	if id := v.Uint("program_id"); id != nil {
		l.ProgramID = *id
	}
	return l
}

func (t *Tracker) lessonView(tx *gorm.DB, lessonID uint) (*PublishedLesson, error) {
	v, err := t.store.Published(tx, models.KindLesson, lessonID)
	if err != nil {
		return nil, err
	}
	return publishedLesson(v), nil
}

func (t *Tracker) studyingView(tx *gorm.DB, st *models.Studying) (*StudyingView, error) {
	lesson, err := t.lessonView(tx, st.LessonID)
	if err != nil {
		return nil, err
	}
	return &StudyingView{
		ID:        st.ID,
		StudentID: st.StudentID,
		LessonID:  st.LessonID,
		Answer:    st.Answer,
		Passed:    st.Passed,
		Lesson:    lesson,
	}, nil
}
