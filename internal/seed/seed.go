package seed

import (
	"context"
	"fmt"
	"log"
	"strings"

	"canopy/internal/cache"
	"canopy/internal/models"

	"gorm.io/gorm"
)

// Options configure the seeder.
type Options struct {
	// NumPlanters generated in addition to the fixture accounts.
	NumPlanters int
	// TreesPerPlanter is the upper bound; each planter gets 1..N trees.
	TreesPerPlanter int
	// SupplierEvery makes every Nth generated planter a supplier. 0 means none.
	SupplierEvery int

	ShouldClean bool
	SkipBcrypt  bool
	DryRun      bool
	BatchSize   int
	MaxDays     int
	RandSeed    int64
	Area        Area
}

// Result counts the rows a run created.
type Result struct {
	Users int
	Trees int
}

// tables in delete order; children first.
var tables = []string{"map_invitations", "maps", "tree_updates", "tree_images", "trees", "users"}

// Seed applies the embedded fixture and then generates fake planters.
func Seed(ctx context.Context, db *gorm.DB, opts Options) (*Result, error) {
	log.Printf("🌱 Seeding: fixture + %d generated planters", opts.NumPlanters)

	if opts.ShouldClean && !opts.DryRun {
		if err := clearData(ctx, db); err != nil {
			return nil, fmt.Errorf("failed to clear data: %w", err)
		}
	}

	total := &Result{}
	if !opts.DryRun {
		fixture, err := DefaultFixture()
		if err != nil {
			return nil, err
		}
		res, err := fixture.Apply(ctx, db)
		if err != nil {
			return nil, fmt.Errorf("failed to apply fixture: %w", err)
		}
		total.Users += res.Users
		total.Trees += res.Trees
		log.Printf("✓ fixture applied (%d users, %d trees new)", res.Users, res.Trees)
	}

	res, err := generate(ctx, db, opts)
	if err != nil {
		return nil, err
	}
	total.Users += res.Users
	total.Trees += res.Trees
	log.Printf("✓ %d planters and %d trees generated", res.Users, res.Trees)

	cache.InvalidatePlanters(ctx)
	return total, nil
}

func generate(ctx context.Context, db *gorm.DB, opts Options) (*Result, error) {
	res := &Result{}
	if opts.NumPlanters <= 0 {
		return res, nil
	}
	perPlanter := opts.TreesPerPlanter
	if perPlanter <= 0 {
		perPlanter = 5
	}

	f := NewFactory(db.WithContext(ctx), opts)
	var trees []*models.Tree
	for i := 0; i < opts.NumPlanters; i++ {
		role := models.RoleCustodian
		if opts.SupplierEvery > 0 && (i+1)%opts.SupplierEvery == 0 {
			role = models.RoleSupplier
		}
		planter, err := f.CreateUser(role)
		if err != nil {
			return nil, fmt.Errorf("failed to create planter: %w", err)
		}
		res.Users++

		for n := f.faker.Number(1, perPlanter); n > 0; n-- {
			trees = append(trees, f.BuildTree(planter))
		}
	}

	if err := f.CreateTreesBatch(trees); err != nil {
		return nil, fmt.Errorf("failed to create trees: %w", err)
	}
	res.Trees = len(trees)
	return res, nil
}

func clearData(ctx context.Context, db *gorm.DB) error {
	log.Println("🧹 Clearing existing data...")
	for _, table := range tables {
		if err := db.WithContext(ctx).Exec("DELETE FROM " + table).Error; err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return nil
}

// fake names can carry apostrophes or spaces; keep the local part plain.
func normalizeFakeEmail(email string) string {
	email = strings.ToLower(email)
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '@':
			return r
		default:
			return -1
		}
	}, email)
}
