// Package bootstrap wires the process-wide dependencies shared by the
// server and the command line tools.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"canopy/internal/blobstore"
	"canopy/internal/cache"
	"canopy/internal/config"
	"canopy/internal/database"
	"canopy/internal/middleware"
	"canopy/internal/models"
	"canopy/internal/repository"
	"canopy/internal/seed"
	"canopy/internal/service"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Options control runtime initialization behavior.
type Options struct {
	// SeedDemo applies the demo fixture after the schema is in place.
	SeedDemo bool
	// SkipBlobStore leaves Runtime.Store nil; CLI tools never upload.
	SkipBlobStore bool
}

// Runtime holds the connections a process owns. Close releases them.
type Runtime struct {
	DB    *gorm.DB
	Redis *redis.Client
	Store blobstore.Store
}

// InitRuntime connects to the database, Redis and blob storage, makes sure
// the Public map exists and optionally seeds demo data. Redis and blob
// storage are optional: either may come back nil.
func InitRuntime(ctx context.Context, cfg *config.Config, opts Options) (*Runtime, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	rt := &Runtime{DB: db}

	// Init Redis (may result in nil client if unreachable)
	rt.Redis = cache.InitRedis(cfg.RedisURL)

	if !opts.SkipBlobStore {
		store, err := blobstore.New(ctx, cfg)
		if err != nil {
			// Uploads are optional; trees are still created without photos.
			middleware.Logger.WarnContext(ctx, "blob storage disabled", slog.String("error", err.Error()))
		} else {
			rt.Store = store
		}
	}

	users := repository.NewUserRepository(db)
	maps := service.NewMapService(repository.NewMapRepository(db), users)
	if _, err := maps.EnsurePublic(ctx); err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to ensure public map: %w", err)
	}

	if err := ensureDevAdmin(ctx, cfg, service.NewUserService(users)); err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to bootstrap development admin: %w", err)
	}

	if opts.SeedDemo || (cfg.SeedOnStart && isDevelopment(cfg)) {
		if _, err := seed.Seed(ctx, db, seed.Options{}); err != nil {
			rt.Close()
			return nil, fmt.Errorf("failed to seed demo data: %w", err)
		}
	}

	return rt, nil
}

// Close releases the database and Redis connections.
func (rt *Runtime) Close() {
	if rt == nil {
		return
	}
	if err := database.Close(rt.DB); err != nil {
		middleware.Logger.Error("error closing database", slog.String("error", err.Error()))
	}
	if rt.Redis != nil {
		_ = rt.Redis.Close()
		cache.SetClient(nil)
	}
}

func isDevelopment(cfg *config.Config) bool {
	return strings.EqualFold(cfg.Env, "development")
}

// ensureDevAdmin creates the ADMIN account named by DEV_ADMIN_EMAIL. Admins
// cannot self-register, so local setups need this to reach /api/admin.
func ensureDevAdmin(ctx context.Context, cfg *config.Config, users *service.UserService) error {
	if cfg == nil || !isDevelopment(cfg) {
		return nil
	}
	email := strings.TrimSpace(cfg.DevAdminEmail)
	if email == "" {
		return nil
	}
	if cfg.DevAdminPassword == "" {
		return errors.New("DEV_ADMIN_PASSWORD must be set when DEV_ADMIN_EMAIL is")
	}

	existing, err := users.GetUserByEmail(ctx, email)
	if err != nil && !models.IsCode(err, models.CodeNotFound) {
		return err
	}
	if existing != nil {
		if existing.Role != models.RoleAdmin {
			middleware.Logger.WarnContext(ctx, "development admin email belongs to a non-admin account",
				slog.String("email", existing.Email), slog.String("role", string(existing.Role)))
		}
		return nil
	}

	admin, err := users.CreateWithRole(ctx, "Administrator", email, cfg.DevAdminPassword, models.RoleAdmin)
	if err != nil {
		return err
	}
	middleware.Logger.InfoContext(ctx, "development admin created",
		slog.Uint64("user_id", uint64(admin.ID)), slog.String("email", admin.Email))
	return nil
}
