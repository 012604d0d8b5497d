package seed

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"canopy/internal/models"
	"canopy/internal/validation"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

//go:embed fixture.yaml
var defaultFixture []byte

// Fixture is the declarative demo data set.
type Fixture struct {
	Users []FixtureUser `yaml:"users"`
	Trees []FixtureTree `yaml:"trees"`
}

type FixtureUser struct {
	Name     string `yaml:"name"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
	Role     string `yaml:"role"`
}

type FixtureTree struct {
	TreeID    string     `yaml:"treeId"`
	Species   string     `yaml:"species"`
	Latitude  float64    `yaml:"latitude"`
	Longitude float64    `yaml:"longitude"`
	Planter   string     `yaml:"planter"`
	PlantedAt *time.Time `yaml:"plantedAt"`
	Updates   []struct {
		Description string `yaml:"description"`
	} `yaml:"updates"`
}

// DefaultFixture parses the embedded fixture.
func DefaultFixture() (*Fixture, error) {
	return ParseFixture(defaultFixture)
}

// ParseFixture decodes raw YAML and checks cross references.
func ParseFixture(raw []byte) (*Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse fixture: %w", err)
	}

	emails := make(map[string]struct{}, len(f.Users))
	for i := range f.Users {
		u := &f.Users[i]
		email, err := validation.NormalizeEmail(u.Email)
		if err != nil {
			return nil, fmt.Errorf("fixture user %d: %w", i, err)
		}
		if _, ok := models.ParseRole(u.Role); !ok {
			return nil, fmt.Errorf("fixture user %s: unknown role %q", email, u.Role)
		}
		u.Email = email
		emails[email] = struct{}{}
	}

	for i := range f.Trees {
		t := &f.Trees[i]
		if t.TreeID == "" || t.Species == "" {
			return nil, fmt.Errorf("fixture tree %d: treeId and species are required", i)
		}
		email, err := validation.NormalizeEmail(t.Planter)
		if err != nil {
			return nil, fmt.Errorf("fixture tree %s: %w", t.TreeID, err)
		}
		if _, ok := emails[email]; !ok {
			return nil, fmt.Errorf("fixture tree %s: planter %s is not a fixture user", t.TreeID, email)
		}
		t.Planter = email
	}
	return &f, nil
}

// Apply upserts the fixture: users by email, trees by tree ID. Existing rows
// are left untouched, so running it twice changes nothing.
func (f *Fixture) Apply(ctx context.Context, db *gorm.DB) (*Result, error) {
	res := &Result{}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		users := make(map[string]*models.User, len(f.Users))
		for _, fu := range f.Users {
			u, created, err := upsertUser(tx, fu)
			if err != nil {
				return err
			}
			if created {
				res.Users++
			}
			users[u.Email] = u
		}

		now := time.Now()
		for _, ft := range f.Trees {
			var existing models.Tree
			err := tx.Where("tree_id = ?", ft.TreeID).First(&existing).Error
			if err == nil {
				continue
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}

			planted := now
			if ft.PlantedAt != nil {
				planted = *ft.PlantedAt
			}
			tree := &models.Tree{
				TreeID:      ft.TreeID,
				Species:     ft.Species,
				Latitude:    ft.Latitude,
				Longitude:   ft.Longitude,
				PlantedDate: planted,
				PlanterID:   users[ft.Planter].ID,
			}
			for _, u := range ft.Updates {
				tree.Updates = append(tree.Updates, models.TreeUpdate{Description: u.Description})
			}
			if err := tx.Create(tree).Error; err != nil {
				return fmt.Errorf("create tree %s: %w", ft.TreeID, err)
			}
			res.Trees++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func upsertUser(tx *gorm.DB, fu FixtureUser) (*models.User, bool, error) {
	var u models.User
	err := tx.Where("email = ?", fu.Email).First(&u).Error
	if err == nil {
		return &u, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(fu.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, false, fmt.Errorf("hash password for %s: %w", fu.Email, err)
	}
	role, _ := models.ParseRole(fu.Role)
	u = models.User{Name: fu.Name, Email: fu.Email, Password: string(hash), Role: role}
	if err := tx.Create(&u).Error; err != nil {
		return nil, false, fmt.Errorf("create user %s: %w", fu.Email, err)
	}
	return &u, true, nil
}
