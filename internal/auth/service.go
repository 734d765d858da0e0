package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	apperrors "coedit/internal/errors"
	"coedit/internal/logging"
	"coedit/internal/storage"
	"coedit/internal/user"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Session is a successful login.
type Session struct {
	User      user.Summary `json:"user"`
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
}

type Service struct {
	users  user.Box
	hasher PasswordHasher
	issuer *Issuer
	logger *logging.Logger
}

func NewService(users user.Box, hasher PasswordHasher, issuer *Issuer, logger *logging.Logger) *Service {
	return &Service{users: users, hasher: hasher, issuer: issuer, logger: logger}
}

func (s *Service) Register(ctx context.Context, req RegisterRequest) (*user.User, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = user.NormalizeEmail(req.Email)
	if req.Name == "" || req.Email == "" || req.Password == "" {
		return nil, apperrors.ValidationError("Name, email and password are required", nil)
	}

	hashed, err := s.hasher.Hash(req.Password)
	if err != nil {
		s.logger.WithRequestID(ctx).Error("hashing password", zap.Error(err))
		return nil, apperrors.Internal()
	}

	u := &user.User{
		ID:        uuid.New().String(),
		Name:      req.Name,
		Email:     req.Email,
		Password:  hashed,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, apperrors.Conflict("User already exists")
		}
		s.logger.WithRequestID(ctx).Error("creating user", zap.Error(err))
		return nil, apperrors.Internal()
	}

	s.logger.WithRequestID(ctx).Info("user registered", zap.String("user_id", u.ID))
	return u, nil
}

func (s *Service) Login(ctx context.Context, req LoginRequest) (*Session, error) {
	if req.Email == "" || req.Password == "" {
		return nil, apperrors.ValidationError("Email and password are required", nil)
	}

	u, err := s.users.GetByEmail(ctx, req.Email)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperrors.Unauthorized("Invalid credentials")
	}
	if err != nil {
		s.logger.WithRequestID(ctx).Error("looking up user", zap.Error(err))
		return nil, apperrors.Internal()
	}
	if err := s.hasher.Compare(u.Password, req.Password); err != nil {
		return nil, apperrors.Unauthorized("Invalid credentials")
	}

	token, exp, err := s.issuer.Issue(Principal{ID: u.ID, Name: u.Name, Email: u.Email})
	if err != nil {
		s.logger.WithRequestID(ctx).Error("issuing token", zap.Error(err))
		return nil, apperrors.Internal()
	}

	return &Session{User: u.Summary(), Token: token, ExpiresAt: exp}, nil
}

// Verify exposes the issuer to the HTTP middleware.
func (s *Service) Verify(token string) (Principal, error) {
	return s.issuer.Verify(token)
}

func (s *Service) TokenTTL() time.Duration {
	return s.issuer.TTL()
}
