package database

import (
	"context"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"canopy/internal/middleware"

	"gorm.io/gorm"
)

// Migration is one versioned pair of SQL scripts.
type Migration struct {
	Version  int
	Name     string
	Up       string
	Down     string
	Checksum string
}

func (m Migration) String() string {
	return fmt.Sprintf("%06d_%s", m.Version, m.Name)
}

// SchemaMigration is the ledger row written when a migration is applied.
// Checksum is the sha256 of the up script at the time it ran.
type SchemaMigration struct {
	Version   int       `gorm:"primaryKey;autoIncrement:false"`
	Name      string    `gorm:"size:255;not null"`
	Checksum  string    `gorm:"size:64;not null"`
	AppliedAt time.Time `gorm:"autoCreateTime"`
}

func (SchemaMigration) TableName() string {
	return "schema_migrations"
}

// MigrationState pairs a known migration with its ledger row, if applied.
type MigrationState struct {
	Migration
	Applied *SchemaMigration
}

//go:embed migrations/*.sql
var embeddedSQL embed.FS

var loadEmbedded = sync.OnceValues(func() ([]Migration, error) {
	return LoadMigrations(embeddedSQL, "migrations")
})

// Migrations returns the migrations compiled into the binary.
func Migrations() ([]Migration, error) {
	return loadEmbedded()
}

// LoadMigrations reads NNNNNN_name.up.sql files and their .down.sql partners
// from dir, ordered by version.
func LoadMigrations(fsys fs.FS, dir string) ([]Migration, error) {
	ups, err := fs.Glob(fsys, path.Join(dir, "*.up.sql"))
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}

	seen := make(map[int]string, len(ups))
	out := make([]Migration, 0, len(ups))
	for _, upPath := range ups {
		base := strings.TrimSuffix(path.Base(upPath), ".up.sql")
		num, name, ok := strings.Cut(base, "_")
		if !ok || name == "" {
			return nil, fmt.Errorf("migration %q: expected NNNNNN_name.up.sql", path.Base(upPath))
		}
		version, err := strconv.Atoi(num)
		if err != nil || version <= 0 {
			return nil, fmt.Errorf("migration %q: version must be a positive number", path.Base(upPath))
		}
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("migration version %d used by both %s and %s", version, prev, base)
		}
		seen[version] = base

		up, err := fs.ReadFile(fsys, upPath)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", upPath, err)
		}
		down, err := fs.ReadFile(fsys, path.Join(dir, base+".down.sql"))
		if err != nil {
			return nil, fmt.Errorf("migration %s has no down script: %w", base, err)
		}

		sum := sha256.Sum256(up)
		out = append(out, Migration{
			Version:  version,
			Name:     name,
			Up:       string(up),
			Down:     string(down),
			Checksum: hex.EncodeToString(sum[:]),
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func ensureLedger(ctx context.Context, db *gorm.DB) error {
	if err := db.WithContext(ctx).AutoMigrate(&SchemaMigration{}); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}
	return nil
}

// AppliedMigrations returns the ledger in version order.
func AppliedMigrations(ctx context.Context, db *gorm.DB) ([]SchemaMigration, error) {
	if err := ensureLedger(ctx, db); err != nil {
		return nil, err
	}
	var rows []SchemaMigration
	if err := db.WithContext(ctx).Order("version ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("read schema_migrations: %w", err)
	}
	return rows, nil
}

// PlanMigrations matches ms against the ledger. It fails when the ledger
// holds versions ms does not know, or when an applied up script has changed.
func PlanMigrations(ctx context.Context, db *gorm.DB, ms []Migration) ([]MigrationState, error) {
	rows, err := AppliedMigrations(ctx, db)
	if err != nil {
		return nil, err
	}

	byVersion := make(map[int]*SchemaMigration, len(rows))
	for i := range rows {
		byVersion[rows[i].Version] = &rows[i]
	}

	states := make([]MigrationState, 0, len(ms))
	for _, m := range ms {
		row := byVersion[m.Version]
		if row != nil && row.Checksum != m.Checksum {
			return nil, fmt.Errorf("migration %s was edited after it was applied", m)
		}
		delete(byVersion, m.Version)
		states = append(states, MigrationState{Migration: m, Applied: row})
	}

	if len(byVersion) > 0 {
		unknown := make([]string, 0, len(byVersion))
		for v := range byVersion {
			unknown = append(unknown, fmt.Sprintf("%06d", v))
		}
		sort.Strings(unknown)
		return nil, fmt.Errorf("schema_migrations has versions this build does not know: %s (reset the development database to rebuild)",
			strings.Join(unknown, ", "))
	}
	return states, nil
}

// Migrate applies every pending migration in ms, each in its own
// transaction together with its ledger row. It returns how many ran.
func Migrate(ctx context.Context, db *gorm.DB, ms []Migration) (int, error) {
	states, err := PlanMigrations(ctx, db, ms)
	if err != nil {
		return 0, err
	}

	ran := 0
	for _, st := range states {
		if st.Applied != nil {
			continue
		}
		m := st.Migration
		err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Exec(m.Up).Error; err != nil {
				return fmt.Errorf("apply %s: %w", m, err)
			}
			return tx.Create(&SchemaMigration{Version: m.Version, Name: m.Name, Checksum: m.Checksum}).Error
		})
		if err != nil {
			return ran, err
		}
		middleware.Logger.InfoContext(ctx, "migration applied", slog.String("migration", m.String()))
		ran++
	}
	return ran, nil
}

// Rollback runs the down script of an applied version and drops its ledger row.
func Rollback(ctx context.Context, db *gorm.DB, ms []Migration, version int) error {
	states, err := PlanMigrations(ctx, db, ms)
	if err != nil {
		return err
	}
	for _, st := range states {
		if st.Version != version {
			continue
		}
		if st.Applied == nil {
			return fmt.Errorf("migration %s has not been applied", st.Migration)
		}
		err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Exec(st.Down).Error; err != nil {
				return fmt.Errorf("roll back %s: %w", st.Migration, err)
			}
			return tx.Delete(&SchemaMigration{}, "version = ?", version).Error
		})
		if err != nil {
			return err
		}
		middleware.Logger.InfoContext(ctx, "migration rolled back", slog.String("migration", st.Migration.String()))
		return nil
	}
	return fmt.Errorf("migration version %d not found", version)
}

// RunMigrations applies the embedded migrations.
func RunMigrations(ctx context.Context, db *gorm.DB) error {
	ms, err := Migrations()
	if err != nil {
		return err
	}
	_, err = Migrate(ctx, db, ms)
	return err
}

// RollbackMigration reverts one embedded migration.
func RollbackMigration(ctx context.Context, db *gorm.DB, version int) error {
	ms, err := Migrations()
	if err != nil {
		return err
	}
	return Rollback(ctx, db, ms, version)
}
