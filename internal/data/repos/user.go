package repos

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/parlorchat/parlor-backend/internal/domain"
	"github.com/parlorchat/parlor-backend/internal/pkg/dbctx"
	"github.com/parlorchat/parlor-backend/internal/pkg/logger"
)

type UserRepo interface {
	Create(dbc dbctx.Context, rows []*domain.User) ([]*domain.User, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*domain.User, error)
	GetByEmails(dbc dbctx.Context, emails []string) ([]*domain.User, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
}

type userRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUserRepo(db *gorm.DB, log *logger.Logger) UserRepo {
	return &userRepo{db: db, log: log.With("repo", "UserRepo")}
}

func (r *userRepo) Create(dbc dbctx.Context, rows []*domain.User) ([]*domain.User, error) {
	if len(rows) == 0 {
		return []*domain.User{}, nil
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	if err := txx.WithContext(dbc.Ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *userRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*domain.User, error) {
	if len(ids) == 0 {
		return []*domain.User{}, nil
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*domain.User
	if err := txx.WithContext(dbc.Ctx).
		Model(&domain.User{}).
		Where("id IN ?", ids).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *userRepo) GetByEmails(dbc dbctx.Context, emails []string) ([]*domain.User, error) {
	if len(emails) == 0 {
		return []*domain.User{}, nil
	}
	normalized := make([]string, 0, len(emails))
	for _, e := range emails {
		normalized = append(normalized, strings.ToLower(strings.TrimSpace(e)))
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*domain.User
	if err := txx.WithContext(dbc.Ctx).
		Model(&domain.User{}).
		Where("email IN ?", normalized).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *userRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing id")
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["updated_at"] = time.Now().UTC()
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Ctx).
		Model(&domain.User{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// IsNotFound reports whether err is the GORM record-not-found sentinel.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
