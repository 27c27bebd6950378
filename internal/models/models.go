package models

import (
	"time"

	"gorm.io/datatypes"
)

// ---------- Users ----------

const (
	RoleStudent   = "student"
	RoleEditor    = "editor"
	RoleManager   = "manager"
	RoleSuperuser = "superuser"
)

type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Email        string    `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"not null" json:"-"`
	Role         string    `gorm:"type:varchar(20);not null;default:student" json:"role"`
	FullName     string    `gorm:"type:varchar(255)" json:"full_name"`
	CreatedAt    time.Time `json:"created_at"`
}

func (u User) IsSuperuser() bool {
	return u.Role == RoleSuperuser
}

// CanEditContent: editors, managers and superusers write programs, themes and lessons.
func (u User) CanEditContent() bool {
	return u.Role == RoleEditor || u.CanModerate()
}

// CanModerate: approve, reject and roll back content.
func (u User) CanModerate() bool {
	return u.Role == RoleManager || u.IsSuperuser()
}

// DisplayName is what snapshot responses show as "editor".
func (u User) DisplayName() string {
	if u.FullName != "" {
		return u.FullName
	}
	return u.Email
}

func ValidRole(role string) bool {
	switch role {
	case RoleStudent, RoleEditor, RoleManager, RoleSuperuser:
		return true
	}
	return false
}

// ---------- Program / Theme / Lesson ----------

// Kind names an entity type whose saves are captured as snapshots.
type Kind string

const (
	KindProgram Kind = "program"
	KindTheme   Kind = "theme"
	KindLesson  Kind = "lesson"
)

func (k Kind) Valid() bool {
	switch k {
	case KindProgram, KindTheme, KindLesson:
		return true
	}
	return false
}

// Versioned is implemented by every model tracked by the snapshot store.
// SnapshotValues returns the persisted columns only, keyed by column name.
type Versioned interface {
	SnapshotKind() Kind
	SnapshotEntityID() uint
	SnapshotValues() map[string]any
}

type Program struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Title       string    `gorm:"size:100;uniqueIndex;not null" json:"title"`
	Description string    `gorm:"size:255" json:"description"`
	IsApproved  bool      `gorm:"not null;default:false" json:"is_approved"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	Themes  []Theme  `gorm:"foreignKey:ProgramID" json:"themes,omitempty"`
	Lessons []Lesson `gorm:"foreignKey:ProgramID" json:"lessons,omitempty"`
}

func (p *Program) SnapshotKind() Kind     { return KindProgram }
func (p *Program) SnapshotEntityID() uint { return p.ID }
func (p *Program) SnapshotValues() map[string]any {
	return map[string]any{
		"id":          p.ID,
		"title":       p.Title,
		"description": p.Description,
		"is_approved": p.IsApproved,
	}
}

type Theme struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	ProgramID   uint      `gorm:"index;not null" json:"program_id"`
	Title       string    `gorm:"size:100;not null" json:"title"`
	Description string    `gorm:"size:255" json:"description"`
	IsApproved  bool      `gorm:"not null;default:false" json:"is_approved"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	Lessons []Lesson `gorm:"foreignKey:ThemeID" json:"lessons,omitempty"`
}

func (t *Theme) SnapshotKind() Kind     { return KindTheme }
func (t *Theme) SnapshotEntityID() uint { return t.ID }
func (t *Theme) SnapshotValues() map[string]any {
	return map[string]any{
		"id":          t.ID,
		"program_id":  t.ProgramID,
		"title":       t.Title,
		"description": t.Description,
		"is_approved": t.IsApproved,
	}
}

// Lesson rows of one program form a singly linked list through ParentID.
// The unique index keeps at most one child per lesson.
type Lesson struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	ProgramID  uint      `gorm:"index;not null" json:"program_id"`
	ThemeID    *uint     `gorm:"index" json:"theme_id"`
	ParentID   *uint     `gorm:"uniqueIndex" json:"parent_id"`
	EditorID   uint      `gorm:"index;not null" json:"editor_id"`
	Title      string    `gorm:"size:100;not null" json:"title"`
	Theory     string    `gorm:"type:text" json:"theory"`
	Practice   string    `gorm:"size:150" json:"practice"`
	Answer     string    `gorm:"size:150" json:"answer"`
	IsApproved bool      `gorm:"not null;default:false" json:"is_approved"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	Editor *User `gorm:"foreignKey:EditorID" json:"editor,omitempty"`
}

func (l *Lesson) SnapshotKind() Kind     { return KindLesson }
func (l *Lesson) SnapshotEntityID() uint { return l.ID }
func (l *Lesson) SnapshotValues() map[string]any {
	return map[string]any{
		"id":          l.ID,
		"program_id":  l.ProgramID,
		"theme_id":    l.ThemeID,
		"parent_id":   l.ParentID,
		"editor_id":   l.EditorID,
		"title":       l.Title,
		"theory":      l.Theory,
		"practice":    l.Practice,
		"answer":      l.Answer,
		"is_approved": l.IsApproved,
	}
}

// ---------- Students ----------

type Student struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"uniqueIndex;not null" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`

	User         User      `gorm:"foreignKey:UserID" json:"user"`
	WishPrograms []Program `gorm:"many2many:student_wish_programs;" json:"wish_programs"`
	OpenPrograms []Program `gorm:"many2many:student_open_programs;" json:"open_programs"`
}

// Studying is one student's attempt at one lesson.
type Studying struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	LessonID  uint      `gorm:"not null;uniqueIndex:idx_studying_lesson_student" json:"lesson_id"`
	StudentID uint      `gorm:"not null;uniqueIndex:idx_studying_lesson_student;index" json:"student_id"`
	Answer    string    `gorm:"size:150" json:"answer"`
	Passed    bool      `gorm:"not null;default:false" json:"passed"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Lesson  *Lesson  `gorm:"foreignKey:LessonID" json:"lesson,omitempty"`
	Student *Student `gorm:"foreignKey:StudentID" json:"-"`
}

func (Studying) TableName() string { return "studyings" }

// ---------- Snapshots ----------

// Snapshot is an append-only copy of a versioned entity's columns. ID is the
// store-generated version id and orders the chain.
type Snapshot struct {
	ID          uint           `gorm:"primaryKey"`
	EntityKind  Kind           `gorm:"type:varchar(20);not null;index:idx_snapshot_entity,priority:1"`
	EntityID    uint           `gorm:"not null;index:idx_snapshot_entity,priority:2"`
	FieldValues datatypes.JSON `gorm:"not null"`
	EditorID    uint           `gorm:"index;not null"`
	CreatedAt   time.Time      `gorm:"autoCreateTime"`

	Editor User `gorm:"foreignKey:EditorID"`
}
