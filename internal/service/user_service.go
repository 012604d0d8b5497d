package service

import (
	"context"
	"strings"

	"canopy/internal/models"
	"canopy/internal/repository"
	"canopy/internal/validation"

	"golang.org/x/crypto/bcrypt"
)

// RegisterInput is a self-service sign up.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Role     string
}

type UserService struct {
	userRepo  repository.UserRepository
	hashCost  int
	dummyHash []byte
}

func NewUserService(userRepo repository.UserRepository) *UserService {
	return NewUserServiceWithCost(userRepo, bcrypt.DefaultCost)
}

// NewUserServiceWithCost lets tests and seeding trade hash strength for speed.
func NewUserServiceWithCost(userRepo repository.UserRepository, cost int) *UserService {
	dummy, _ := bcrypt.GenerateFromPassword([]byte("canopy-timing-equalizer"), cost)
	return &UserService{userRepo: userRepo, hashCost: cost, dummyHash: dummy}
}

// Register creates an account. ADMIN cannot be chosen at sign up; an empty
// role means CUSTODIAN.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	if err := validation.ValidateName(in.Name); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	email, err := validation.NormalizeEmail(in.Email)
	if err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validation.ValidatePassword(in.Password); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	role, ok := models.ParseRole(in.Role)
	if !ok || role == models.RoleAdmin {
		return nil, models.NewValidationError("Role must be CUSTODIAN or SUPPLIER")
	}

	existing, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, models.NewValidationError("User already exists")
	}

	return s.create(ctx, strings.TrimSpace(in.Name), email, in.Password, role)
}

// CreateWithRole creates an account with any role, ADMIN included. It is for
// operator tooling and seeding, never for HTTP sign up.
func (s *UserService) CreateWithRole(ctx context.Context, name, email, password string, role models.Role) (*models.User, error) {
	if _, ok := models.ParseRole(string(role)); !ok {
		return nil, models.NewValidationError("Unknown role")
	}
	normalized, err := validation.NormalizeEmail(email)
	if err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	return s.create(ctx, strings.TrimSpace(name), normalized, password, role)
}

func (s *UserService) create(ctx context.Context, name, email, password string, role models.Role) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	user := &models.User{
		Name:     name,
		Email:    email,
		Password: string(hash),
		Role:     role,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Authenticate checks credentials. Unknown email and wrong password are
// indistinguishable to the caller.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	invalid := models.NewAuthenticationError("Invalid credentials")

	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return nil, invalid
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, invalid
	}
	return user, nil
}

func (s *UserService) GetUserByID(ctx context.Context, id uint) (*models.User, error) {
	return s.userRepo.GetByID(ctx, id)
}

// GetUserByEmail returns a NotFound error for an unknown address.
func (s *UserService) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, models.NewNotFoundError("User", email)
	}
	return user, nil
}

func (s *UserService) ListUsers(ctx context.Context, limit, offset int) ([]models.User, error) {
	return s.userRepo.List(ctx, limit, offset)
}
