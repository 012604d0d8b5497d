package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"canopy/internal/database"
	"canopy/internal/models"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var dbSeq atomic.Int64

// NewSQLiteDB opens a private in-memory SQLite database with the full schema.
// The handle is closed when the test ends.
func NewSQLiteDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:canopy_test_%d?mode=memory&cache=shared&_foreign_keys=on", dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	// Every connection to a shared-cache memory DB sees the same data, but a
	// single connection keeps writes serialized.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(database.PersistentModels()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	t.Cleanup(func() { _ = database.Close(db) })
	return db
}

// CreateUser inserts a user with password "password123".
func CreateUser(t testing.TB, db *gorm.DB, name, email string, role models.Role) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	u := &models.User{Name: name, Email: email, Password: string(hash), Role: role}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

// CreateTree inserts a tree planted by planterID.
func CreateTree(t testing.TB, db *gorm.DB, planterID uint, species string, lat, lng float64, planted time.Time) *models.Tree {
	t.Helper()
	tree := &models.Tree{
		Species:     species,
		Latitude:    lat,
		Longitude:   lng,
		PlantedDate: planted,
		PlanterID:   planterID,
	}
	if err := db.Create(tree).Error; err != nil {
		t.Fatalf("create tree: %v", err)
	}
	return tree
}
