package database

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"canopy/internal/config"
	"canopy/internal/middleware"

	"gorm.io/gorm"
)

// Schema modes. hybrid runs the embedded SQL migrations everywhere and
// AutoMigrate outside production-like environments.
const (
	SchemaModeHybrid = "hybrid"
	SchemaModeSQL    = "sql"
	SchemaModeAuto   = "auto"
)

// SchemaPlan is what ApplySchema will do for a configuration.
type SchemaPlan struct {
	Mode           string
	Environment    string
	RunSQL         bool
	RunAutoMigrate bool
}

// SchemaReport is a SchemaPlan with migration state when SQL migrations run.
type SchemaReport struct {
	SchemaPlan
	Migrations []MigrationState
}

// Pending lists the migrations that have not run yet.
func (r *SchemaReport) Pending() []Migration {
	var out []Migration
	for _, st := range r.Migrations {
		if st.Applied == nil {
			out = append(out, st.Migration)
		}
	}
	return out
}

func isProdLikeEnv(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "production", "prod", "staging", "stage":
		return true
	}
	return false
}

// PlanSchema resolves DB_SCHEMA_MODE against the environment and driver.
// The embedded migrations are PostgreSQL DDL, so sqlite always uses AutoMigrate.
func PlanSchema(cfg *config.Config) (SchemaPlan, error) {
	plan := SchemaPlan{
		Mode:        strings.ToLower(strings.TrimSpace(cfg.DBSchemaMode)),
		Environment: cfg.Env,
	}
	if plan.Mode == "" {
		plan.Mode = SchemaModeHybrid
	}

	switch plan.Mode {
	case SchemaModeHybrid, SchemaModeSQL, SchemaModeAuto:
	default:
		return plan, fmt.Errorf("unsupported DB_SCHEMA_MODE %q", plan.Mode)
	}

	if cfg.DBDriver == "sqlite" {
		plan.RunAutoMigrate = true
		return plan, nil
	}

	prodLike := isProdLikeEnv(cfg.Env)
	switch plan.Mode {
	case SchemaModeSQL:
		plan.RunSQL = true
	case SchemaModeAuto:
		if prodLike && !cfg.DBAutoMigrateAllowDestructive {
			return plan, fmt.Errorf("refusing DB_SCHEMA_MODE=auto in %q without DB_AUTOMIGRATE_ALLOW_DESTRUCTIVE=true", cfg.Env)
		}
		plan.RunAutoMigrate = true
	case SchemaModeHybrid:
		plan.RunSQL = true
		plan.RunAutoMigrate = !prodLike
	}
	return plan, nil
}

// ApplySchema brings the schema up to date according to the configured mode.
func ApplySchema(ctx context.Context, db *gorm.DB, cfg *config.Config) error {
	plan, err := PlanSchema(cfg)
	if err != nil {
		return err
	}

	if plan.RunSQL {
		if err := RunMigrations(ctx, db); err != nil {
			return fmt.Errorf("run sql migrations: %w", err)
		}
	}

	if plan.RunAutoMigrate {
		if plan.Mode == SchemaModeAuto && cfg.DBAutoMigrateAllowDestructive {
			middleware.Logger.Warn("AutoMigrate allowed in a production-like environment; review schema diffs before deploying")
		}
		middleware.Logger.Info("running AutoMigrate", slog.String("mode", plan.Mode), slog.String("env", cfg.Env))
		if err := db.WithContext(ctx).AutoMigrate(PersistentModels()...); err != nil {
			return fmt.Errorf("auto-migrate: %w", err)
		}
	}

	return nil
}

// InspectSchema reports the plan and, when SQL migrations run, where each one stands.
func InspectSchema(ctx context.Context, db *gorm.DB, cfg *config.Config) (*SchemaReport, error) {
	plan, err := PlanSchema(cfg)
	if err != nil {
		return nil, err
	}
	report := &SchemaReport{SchemaPlan: plan}
	if !plan.RunSQL {
		return report, nil
	}

	ms, err := Migrations()
	if err != nil {
		return nil, err
	}
	if report.Migrations, err = PlanMigrations(ctx, db, ms); err != nil {
		return nil, err
	}
	return report, nil
}
