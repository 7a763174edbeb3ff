package services

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/parlorchat/parlor-backend/internal/data/repos"
	"github.com/parlorchat/parlor-backend/internal/domain"
	"github.com/parlorchat/parlor-backend/internal/pkg/dbctx"
	"github.com/parlorchat/parlor-backend/internal/pkg/logger"
	"github.com/parlorchat/parlor-backend/internal/platform/apierr"
)

// ProfileUpdate holds the patchable profile fields. Nil means leave
// the field as is.
type ProfileUpdate struct {
	Name         *string
	ProfileImage *string
}

type UserService interface {
	Get(dbc dbctx.Context, userID uuid.UUID) (*domain.User, error)
	Update(dbc dbctx.Context, userID uuid.UUID, patch ProfileUpdate) (*domain.User, error)
}

type userService struct {
	db    *gorm.DB
	log   *logger.Logger
	users repos.UserRepo
}

func NewUserService(db *gorm.DB, log *logger.Logger, users repos.UserRepo) UserService {
	return &userService{
		db:    db,
		log:   log.With("service", "UserService"),
		users: users,
	}
}

func (s *userService) Get(dbc dbctx.Context, userID uuid.UUID) (*domain.User, error) {
	users, err := s.users.GetByIDs(dbc, []uuid.UUID{userID})
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, apierr.NotFound("user_not_found", fmt.Errorf("user %s not found", userID))
	}
	return users[0], nil
}

func (s *userService) Update(dbc dbctx.Context, userID uuid.UUID, patch ProfileUpdate) (*domain.User, error) {
	fields := map[string]interface{}{}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, apierr.BadRequest("invalid_name", fmt.Errorf("name cannot be empty"))
		}
		fields["name"] = name
	}
	if patch.ProfileImage != nil {
		fields["profile_image"] = strings.TrimSpace(*patch.ProfileImage)
	}
	if len(fields) == 0 {
		return s.Get(dbc, userID)
	}
	if err := s.users.UpdateFields(dbc, userID, fields); err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	return s.Get(dbc, userID)
}
