package reports

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"

	"academy/internal/apierr"
	"academy/internal/logger"
	"academy/internal/models"
)

const passedSheet = "Passed lessons"

// ProgramStudents is one row of the enrollment report.
type ProgramStudents struct {
	ProgramID     uint   `json:"id"`
	Title         string `json:"title"`
	StudentAmount int64  `json:"student_amount"`
}

// StudentPassed is one row of the progress report.
type StudentPassed struct {
	StudentID          uint   `json:"id"`
	UserID             uint   `json:"user_id"`
	Email              string `json:"email"`
	FullName           string `json:"full_name"`
	AmountPassedLesson int64  `json:"amount_passed_lesson"`
}

// Service runs read-only aggregate queries for managers.
type Service struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewService(db *gorm.DB, log *logger.Logger) *Service {
	return &Service{db: db, log: log.With("service", "ReportService")}
}

// StudentsPerProgram counts enrolled students of every program.
func (s *Service) StudentsPerProgram(ctx context.Context) ([]ProgramStudents, error) {
	var rows []ProgramStudents
	err := s.db.WithContext(ctx).
		Table("programs").
		Select("programs.id AS program_id, programs.title AS title, COUNT(student_open_programs.student_id) AS student_amount").
		Joins("LEFT JOIN student_open_programs ON student_open_programs.program_id = programs.id").
		Group("programs.id, programs.title").
		Order("programs.id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("count students per program: %w", err)
	}
	return rows, nil
}

// PassedPerStudent counts passed lessons of every student.
func (s *Service) PassedPerStudent(ctx context.Context) ([]StudentPassed, error) {
	var rows []StudentPassed
	err := s.db.WithContext(ctx).
		Table("students").
		Select("students.id AS student_id, users.id AS user_id, users.email AS email, users.full_name AS full_name, " +
			"COUNT(studyings.id) AS amount_passed_lesson").
		Joins("JOIN users ON users.id = students.user_id").
		Joins("LEFT JOIN studyings ON studyings.student_id = students.id AND studyings.passed = ?", true).
		Group("students.id, users.id, users.email, users.full_name").
		Order("students.id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("count passed lessons: %w", err)
	}
	return rows, nil
}

// StudentsOfProgram lists the students enrolled in one program.
func (s *Service) StudentsOfProgram(ctx context.Context, programID uint) ([]models.Student, error) {
	tx := s.db.WithContext(ctx)
	if err := tx.First(&models.Program{}, programID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apierr.NotFound("program %d", programID)
		}
		return nil, fmt.Errorf("load program %d: %w", programID, err)
	}
	var students []models.Student
	err := tx.Preload("User").
		Joins("JOIN student_open_programs ON student_open_programs.student_id = students.id").
		Where("student_open_programs.program_id = ?", programID).
		Order("students.id").
		Find(&students).Error
	if err != nil {
		return nil, fmt.Errorf("list students of program %d: %w", programID, err)
	}
	return students, nil
}

// PassedPerStudentXLSX renders PassedPerStudent as a single-sheet workbook.
func (s *Service) PassedPerStudentXLSX(ctx context.Context) (*bytes.Buffer, error) {
	rows, err := s.PassedPerStudent(ctx)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", passedSheet); err != nil {
		return nil, fmt.Errorf("name sheet: %w", err)
	}

	header := []any{"Student ID", "Email", "Full name", "Passed lessons"}
	if err := writeRow(f, 1, header); err != nil {
		return nil, err
	}
	for i, r := range rows {
		if err := writeRow(f, i+2, []any{r.StudentID, r.Email, r.FullName, r.AmountPassedLesson}); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	s.log.Debug("passed lessons report rendered", "students", len(rows), "bytes", buf.Len())
	return buf, nil
}

func writeRow(f *excelize.File, row int, values []any) error {
	for col, v := range values {
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(passedSheet, cell, v); err != nil {
			return fmt.Errorf("set %s: %w", cell, err)
		}
	}
	return nil
}
