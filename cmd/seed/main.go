// Command seed fills the database with the demo fixture and generated planters.
package main

import (
	"context"
	"flag"
	"log"

	"canopy/internal/config"
	"canopy/internal/database"
	"canopy/internal/repository"
	"canopy/internal/seed"
	"canopy/internal/service"
)

func main() {
	numPlanters := flag.Int("planters", 20, "Number of planters to generate")
	treesPer := flag.Int("trees", 5, "Maximum trees per generated planter")
	supplierEvery := flag.Int("supplier-every", 5, "Make every Nth generated planter a supplier (0 for none)")
	shouldClean := flag.Bool("clean", false, "Clean database before seeding")
	fast := flag.Bool("fast", false, "Store generated passwords unhashed (development only)")
	randSeed := flag.Int64("rand-seed", 0, "Deterministic faker seed (0 picks one)")
	dryRun := flag.Bool("dry-run", false, "Build records without writing them")
	flag.Parse()

	log.Println("🌱 Database Seeder")
	log.Println("==================")
	log.Printf("Target: fixture + %d planters (up to %d trees each), clean=%v\n", *numPlanters, *treesPer, *shouldClean)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() { _ = database.Close(db) }()

	ctx := context.Background()
	res, err := seed.Seed(ctx, db, seed.Options{
		NumPlanters:     *numPlanters,
		TreesPerPlanter: *treesPer,
		SupplierEvery:   *supplierEvery,
		ShouldClean:     *shouldClean,
		SkipBcrypt:      *fast,
		DryRun:          *dryRun,
		RandSeed:        *randSeed,
	})
	if err != nil {
		log.Fatalf("❌ Seeding failed: %v", err)
	}

	// A clean run also dropped the Public map.
	if !*dryRun {
		users := repository.NewUserRepository(db)
		if _, err := service.NewMapService(repository.NewMapRepository(db), users).EnsurePublic(ctx); err != nil {
			log.Fatalf("❌ Public map bootstrap failed: %v", err)
		}
	}

	log.Printf("✨ All done! %d users and %d trees created.", res.Users, res.Trees)
	log.Println("📧 Fixture accounts custodian@example.com and supplier@example.com use the password: password123")
}
