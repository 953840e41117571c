package users

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"procureflow/internal/apperr"
	"procureflow/internal/auth"
	"procureflow/internal/validation"
	"procureflow/pkg/ctxmanage"
	"procureflow/pkg/logkey"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type Store interface {
	InsertUser(ctx context.Context, u User) (User, error)
	FetchUserByEmail(ctx context.Context, email string) (User, error)
}

type TokenIssuer interface {
	GenerateToken(userID, role string) (string, time.Time, error)
}

type Service struct {
	store  Store
	tokens TokenIssuer
}

func NewService(store Store, tokens TokenIssuer) *Service {
	return &Service{store: store, tokens: tokens}
}

// Register creates an account with the user role.
func (s *Service) Register(ctx context.Context, nu NewUser) (User, error) {
	return s.create(ctx, nu, auth.RoleUser)
}

// CreateAdmin creates an account with the admin role. It is only reachable from the CLI.
func (s *Service) CreateAdmin(ctx context.Context, nu NewUser) (User, error) {
	return s.create(ctx, nu, auth.RoleAdmin)
}

func (s *Service) create(ctx context.Context, nu NewUser, role string) (User, error) {
	nu.Name = strings.TrimSpace(nu.Name)
	nu.Email = normalizeEmail(nu.Email)
	if err := validation.Struct("invalid registration", nu); err != nil {
		return User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(nu.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, apperr.Storage("hash password", err)
	}

	u, err := s.store.InsertUser(ctx, User{
		ID:           uuid.NewString(),
		Name:         nu.Name,
		Email:        nu.Email,
		PasswordHash: string(hash),
		Role:         role,
	})
	if err != nil {
		return User{}, apperr.Wrap("insert user", err)
	}

	slog.Info("user registered", slog.String(logkey.TraceID, ctxmanage.TraceIDFrom(ctx)),
		slog.String(logkey.UserID, u.ID), slog.String("Role", role))
	return u, nil
}

// Login checks credentials and issues a token. Unknown emails and wrong passwords
// produce the same error.
func (s *Service) Login(ctx context.Context, cred Credentials) (Session, error) {
	cred.Email = normalizeEmail(cred.Email)
	if err := validation.Struct("invalid credentials", cred); err != nil {
		return Session{}, err
	}

	u, err := s.store.FetchUserByEmail(ctx, cred.Email)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return Session{}, apperr.Unauthorized("invalid email or password")
		}
		return Session{}, apperr.Wrap("fetch user", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(cred.Password)); err != nil {
		return Session{}, apperr.Unauthorized("invalid email or password")
	}

	token, exp, err := s.tokens.GenerateToken(u.ID, u.Role)
	if err != nil {
		return Session{}, apperr.Storage("generate token", fmt.Errorf("user %s: %w", u.ID, err))
	}
	return Session{Token: token, ExpiresAt: exp, User: u}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
