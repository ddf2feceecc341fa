package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"formscan/models"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var db *gorm.DB

var errNoDSN = errors.New("DB_DSN is not set; this command requires a Postgres DSN in DB_DSN")

// initDB opens the database from DB_DSN and, unless DB_AUTO_MIGRATE is false,
// migrates the schema. Roles and the admin user are seeded either way.
func initDB() error {
	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		return errNoDSN
	}
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return fmt.Errorf("failed to connect postgres database: %w", err)
	}
	db = gdb
	if autoMigrate() {
		migrateDB()
	}
	return seedDB()
}

func autoMigrate() bool {
	switch strings.ToLower(os.Getenv("DB_AUTO_MIGRATE")) {
	case "false", "0", "no":
		return false
	}
	return true
}

// migrateDB migrates models one by one so a permission error on one table
// does not block the rest. Roles go first so users can reference them.
func migrateDB() {
	steps := []struct {
		table string
		model any
	}{
		{"roles", &models.Role{}},
		{"users", &models.User{}},
		{"refresh_tokens", &models.RefreshToken{}},
		{"extractions", &models.Extraction{}},
		{"extraction_fields", &models.ExtractionField{}},
		{"uploads", &models.Upload{}},
	}
	for _, s := range steps {
		if err := db.AutoMigrate(s.model); err != nil {
			log.Printf("migration warning (%s): %v", s.table, err)
		}
	}
}

func seedDB() error {
	for _, r := range models.DefaultRoles() {
		if err := db.Where("name = ?", r.Name).FirstOrCreate(&r).Error; err != nil {
			return fmt.Errorf("seed role %s: %w", r.Name, err)
		}
	}

	var count int64
	db.Model(&models.User{}).Where("username = ?", "admin").Count(&count)
	if count == 0 {
		var role models.Role
		if err := db.Where("name = ?", models.RoleAdministrator).First(&role).Error; err != nil {
			return fmt.Errorf("failed to find administrator role: %w", err)
		}
		password := os.Getenv("ADMIN_PASSWORD")
		if password == "" {
			password = "admin123"
		}
		hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		rid := role.ID
		admin := models.User{Username: "admin", HashedPassword: hashedPassword, RoleID: &rid}
		if err := db.Create(&admin).Error; err != nil {
			return fmt.Errorf("seed admin: %w", err)
		}
		log.Println("Seeded admin user: username=admin")
	}
	ensureUploadBase()
	return nil
}

// ensureUploadBase creates the base uploads directory.
func ensureUploadBase() {
	base := uploadBaseDir()
	if err := os.MkdirAll(base, 0755); err != nil {
		log.Printf("failed to create upload base dir %s: %v", base, err)
	}
}

// uploadBaseDir returns the base directory for uploaded forms (configurable via UPLOAD_BASE env)
func uploadBaseDir() string {
	if v := os.Getenv("UPLOAD_BASE"); v != "" {
		return v
	}
	return "uploads"
}
