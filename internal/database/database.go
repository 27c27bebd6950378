package database

import (
	"fmt"
	"log"
	"os"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"academy/internal/logger"
	"academy/internal/models"
)

// ---------- connection and migrations ----------

func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	gormLog := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             1 * time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(dialector, &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLog,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	if driver == "sqlite" {
		// one writer at a time, and every request sees the same in-memory db
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Program{},
		&models.Theme{},
		&models.Lesson{},
		&models.Student{},
		&models.Studying{},
		&models.Snapshot{},
	)
}

// SeedAdmin creates the superuser from ADMIN_EMAIL / ADMIN_PASSWORD if it is missing.
func SeedAdmin(db *gorm.DB, email, pass string, logg *logger.Logger) error {
	if email == "" || pass == "" {
		logg.Info("seedAdmin: ADMIN_EMAIL/ADMIN_PASSWORD not set, skipping")
		return nil
	}

	var cnt int64
	if err := db.Model(&models.User{}).Where("email = ?", email).Count(&cnt).Error; err != nil {
		return fmt.Errorf("seedAdmin: check existing admin: %w", err)
	}
	if cnt > 0 {
		logg.Debug("seedAdmin: admin already exists")
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(pass), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("seedAdmin: hash password: %w", err)
	}

	admin := models.User{
		Email:        email,
		PasswordHash: string(hash),
		Role:         models.RoleSuperuser,
		FullName:     "Administrator",
		CreatedAt:    time.Now(),
	}
	if err := db.Create(&admin).Error; err != nil {
		return fmt.Errorf("seedAdmin: create admin: %w", err)
	}

	logg.Info("seedAdmin: superuser created", "user_id", admin.ID)
	return nil
}
