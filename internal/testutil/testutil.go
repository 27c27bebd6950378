package testutil

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"academy/internal/database"
	"academy/internal/logger"
	"academy/internal/models"
)

// DB opens an isolated, migrated in-memory sqlite database for one test.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := database.Open("sqlite", dsn)
	if err != nil {
		tb.Fatalf("open test db: %v", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		tb.Fatalf("migrate test db: %v", err)
	}
	tb.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func Logger(tb testing.TB) *logger.Logger {
	tb.Helper()
	return logger.Nop()
}

func SeedUser(tb testing.TB, db *gorm.DB, email, role string) *models.User {
	tb.Helper()
	u := &models.User{
		Email:        email,
		PasswordHash: "pw",
		Role:         role,
		FullName:     email,
	}
	if err := db.Create(u).Error; err != nil {
		tb.Fatalf("seed user: %v", err)
	}
	return u
}

// SeedProgram inserts a program row directly, without a snapshot.
func SeedProgram(tb testing.TB, db *gorm.DB, title string) *models.Program {
	tb.Helper()
	p := &models.Program{Title: title, Description: title + " description"}
	if err := db.Create(p).Error; err != nil {
		tb.Fatalf("seed program: %v", err)
	}
	return p
}

func SeedStudent(tb testing.TB, db *gorm.DB, user *models.User) *models.Student {
	tb.Helper()
	s := &models.Student{UserID: user.ID}
	if err := db.Create(s).Error; err != nil {
		tb.Fatalf("seed student: %v", err)
	}
	return s
}

func PtrUint(v uint) *uint { return &v }
