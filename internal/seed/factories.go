// Package seed fills the database with demo data: a YAML fixture of known
// accounts plus generated planters and trees. It is meant for development
// and tests only.
package seed

import (
	"fmt"
	"log"
	"time"

	"canopy/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Species the factory picks from when no override is given.
var Species = []string{
	"Acacia tortilis",
	"Croton megalocarpus",
	"Cordia africana",
	"Ficus benjamina",
	"Grevillea robusta",
	"Markhamia lutea",
	"Mangifera indica",
	"Melia volkensii",
	"Podocarpus falcatus",
	"Prunus africana",
}

// Area is the box generated trees are scattered over. The default sits
// around Nairobi, next to the fixture trees.
type Area struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
}

var DefaultArea = Area{MinLat: -1.40, MaxLat: -1.20, MinLng: 36.70, MaxLng: 36.95}

// Contains reports whether the point lies inside the area.
func (a Area) Contains(lat, lng float64) bool {
	return lat >= a.MinLat && lat <= a.MaxLat && lng >= a.MinLng && lng <= a.MaxLng
}

// Factory builds domain entities and persists them to the database.
type Factory struct {
	db     *gorm.DB
	opts   Options
	faker  *gofakeit.Faker
	nextID uint
	seq    int
}

// NewFactory creates a Factory bound to db. A zero Options.RandSeed draws a
// random seed.
func NewFactory(db *gorm.DB, opts Options) *Factory {
	if opts.MaxDays <= 0 {
		opts.MaxDays = 365
	}
	if opts.Area == (Area{}) {
		opts.Area = DefaultArea
	}
	return &Factory{db: db, opts: opts, faker: gofakeit.New(opts.RandSeed), nextID: 1000}
}

// BuildUser constructs a planter without persisting it.
func (f *Factory) BuildUser(role models.Role, overrides ...func(*models.User)) *models.User {
	f.seq++
	first, last := f.faker.FirstName(), f.faker.LastName()
	user := &models.User{
		Name:         first + " " + last,
		Email:        fmt.Sprintf("%s.%s.%d%03d@example.org", first, last, f.seq, f.faker.Number(0, 999)),
		Role:         role,
		ProfileImage: fmt.Sprintf("https://i.pravatar.cc/150?u=%s", f.faker.UUID()),
	}
	user.Email = normalizeFakeEmail(user.Email)

	// Password handling: allow skipping bcrypt in dev fast mode
	if f.opts.SkipBcrypt {
		user.Password = "password123"
	} else {
		hashed, _ := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.DefaultCost)
		user.Password = string(hashed)
	}

	for _, override := range overrides {
		override(user)
	}
	return user
}

// CreateUser builds and persists a planter.
func (f *Factory) CreateUser(role models.Role, overrides ...func(*models.User)) (*models.User, error) {
	user := f.BuildUser(role, overrides...)

	if f.opts.DryRun {
		f.nextID++
		user.ID = f.nextID
		log.Printf("[dry-run] CreateUser: %s <%s> %s", user.Name, user.Email, user.Role)
		return user, nil
	}

	if err := f.db.Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// BuildTree constructs a tree for planter somewhere inside the factory's
// area, planted within the last MaxDays days.
func (f *Factory) BuildTree(planter *models.User, overrides ...func(*models.Tree)) *models.Tree {
	a := f.opts.Area
	planted := f.faker.DateRange(time.Now().AddDate(0, 0, -f.opts.MaxDays), time.Now())

	tree := &models.Tree{
		Species:     f.faker.RandomString(Species),
		Latitude:    f.faker.Float64Range(a.MinLat, a.MaxLat),
		Longitude:   f.faker.Float64Range(a.MinLng, a.MaxLng),
		PlantedDate: planted,
		PlanterID:   planter.ID,
	}

	if n := f.faker.Number(0, 2); n > 0 {
		for i := 0; i < n; i++ {
			tree.Updates = append(tree.Updates, models.TreeUpdate{
				Description: f.faker.Sentence(8),
				CreatedAt:   planted.Add(time.Duration(i+1) * 7 * 24 * time.Hour),
			})
		}
	}

	for _, override := range overrides {
		override(tree)
	}
	return tree
}

// CreateTreesBatch persists trees in one call.
func (f *Factory) CreateTreesBatch(trees []*models.Tree) error {
	if len(trees) == 0 {
		return nil
	}
	if f.opts.DryRun {
		for _, t := range trees {
			f.nextID++
			t.ID = f.nextID
		}
		log.Printf("[dry-run] CreateTreesBatch: %d trees (no DB write)", len(trees))
		return nil
	}

	batch := f.opts.BatchSize
	if batch <= 0 {
		batch = 100
	}
	return f.db.CreateInBatches(trees, batch).Error
}
