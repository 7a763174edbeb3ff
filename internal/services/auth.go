package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/parlorchat/parlor-backend/internal/data/repos"
	"github.com/parlorchat/parlor-backend/internal/domain"
	"github.com/parlorchat/parlor-backend/internal/pkg/ctxutil"
	"github.com/parlorchat/parlor-backend/internal/pkg/dbctx"
	"github.com/parlorchat/parlor-backend/internal/pkg/logger"
	"github.com/parlorchat/parlor-backend/internal/platform/apierr"
	"github.com/parlorchat/parlor-backend/internal/platform/envutil"
)

const AuthCookieName = "auth_token"

// TokenSubject is the identity payload embedded under the token's
// "sub" claim.
type TokenSubject struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

type authClaims struct {
	Sub TokenSubject `json:"sub"`
	jwt.RegisteredClaims
}

type AuthService interface {
	Register(dbc dbctx.Context, name, email, password string) (*domain.User, string, error)
	Login(dbc dbctx.Context, email, password string) (*domain.User, string, error)
	CurrentUser(dbc dbctx.Context, userID uuid.UUID) (*domain.User, error)
	// ParseToken verifies the signature and expiry and returns the
	// identity carried in the token.
	ParseToken(token string) (*ctxutil.RequestData, error)
	TokenTTL() time.Duration
}

type authService struct {
	db     *gorm.DB
	log    *logger.Logger
	users  repos.UserRepo
	secret []byte
	ttl    time.Duration
}

func NewAuthService(db *gorm.DB, log *logger.Logger, users repos.UserRepo) (AuthService, error) {
	secret := envutil.Get("JWT_SECRET", "")
	if secret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	ttlHours := envutil.Int("JWT_TTL_HOURS", 168)
	return &authService{
		db:     db,
		log:    log.With("service", "AuthService"),
		users:  users,
		secret: []byte(secret),
		ttl:    time.Duration(ttlHours) * time.Hour,
	}, nil
}

func (s *authService) Register(dbc dbctx.Context, name, email, password string) (*domain.User, string, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))
	if name == "" || email == "" || password == "" {
		return nil, "", apierr.BadRequest("missing_fields", fmt.Errorf("name, email and password are required"))
	}

	existing, err := s.users.GetByEmails(dbc, []string{email})
	if err != nil {
		return nil, "", fmt.Errorf("lookup email: %w", err)
	}
	if len(existing) > 0 {
		return nil, "", apierr.Conflict("email_taken", fmt.Errorf("email %s is already registered", email))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		Name:     name,
		Email:    email,
		Password: string(hash),
	}
	created, err := s.users.Create(dbc, []*domain.User{user})
	if err != nil {
		return nil, "", fmt.Errorf("create user: %w", err)
	}
	user = created[0]

	token, err := s.signToken(user)
	if err != nil {
		return nil, "", err
	}
	s.log.Info("registered user", "user_id", user.ID)
	return user, token, nil
}

func (s *authService) Login(dbc dbctx.Context, email, password string) (*domain.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, "", apierr.BadRequest("missing_fields", fmt.Errorf("email and password are required"))
	}

	users, err := s.users.GetByEmails(dbc, []string{email})
	if err != nil {
		return nil, "", fmt.Errorf("lookup email: %w", err)
	}
	if len(users) == 0 {
		return nil, "", apierr.Unauthorized("invalid_credentials", fmt.Errorf("unknown email"))
	}
	user := users[0]

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, "", apierr.Unauthorized("invalid_credentials", fmt.Errorf("password mismatch"))
	}

	token, err := s.signToken(user)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

func (s *authService) CurrentUser(dbc dbctx.Context, userID uuid.UUID) (*domain.User, error) {
	users, err := s.users.GetByIDs(dbc, []uuid.UUID{userID})
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, apierr.NotFound("user_not_found", fmt.Errorf("user %s not found", userID))
	}
	return users[0], nil
}

func (s *authService) ParseToken(raw string) (*ctxutil.RequestData, error) {
	claims := &authClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, apierr.Unauthorized("invalid_token", fmt.Errorf("parse token: %w", err))
	}
	id, err := uuid.Parse(claims.Sub.ID)
	if err != nil {
		return nil, apierr.Unauthorized("invalid_token", fmt.Errorf("parse subject id: %w", err))
	}
	return &ctxutil.RequestData{
		UserID: id,
		Email:  claims.Sub.Email,
		Name:   claims.Sub.Name,
	}, nil
}

func (s *authService) TokenTTL() time.Duration { return s.ttl }

func (s *authService) signToken(user *domain.User) (string, error) {
	now := time.Now()
	claims := authClaims{
		Sub: TokenSubject{
			ID:    user.ID.String(),
			Email: user.Email,
			Name:  user.Name,
		},
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
