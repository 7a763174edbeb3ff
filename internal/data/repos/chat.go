package repos

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/parlorchat/parlor-backend/internal/domain"
	"github.com/parlorchat/parlor-backend/internal/pkg/dbctx"
	"github.com/parlorchat/parlor-backend/internal/pkg/logger"
)

type ChatRepo interface {
	Create(dbc dbctx.Context, rows []*domain.Chat) ([]*domain.Chat, error)
	// GetByID returns (nil, nil) when the chat does not exist.
	GetByID(dbc dbctx.Context, id string) (*domain.Chat, error)
	// GetByIDWithMessages eager-loads the ordered message set.
	GetByIDWithMessages(dbc dbctx.Context, id string) (*domain.Chat, error)
	ListByUser(dbc dbctx.Context, userID uuid.UUID, limit int) ([]*domain.Chat, error)
	UpdateFields(dbc dbctx.Context, id string, updates map[string]interface{}) error
}

type chatRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChatRepo(db *gorm.DB, log *logger.Logger) ChatRepo {
	return &chatRepo{db: db, log: log.With("repo", "ChatRepo")}
}

func (r *chatRepo) Create(dbc dbctx.Context, rows []*domain.Chat) ([]*domain.Chat, error) {
	if len(rows) == 0 {
		return []*domain.Chat{}, nil
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

func (r *chatRepo) GetByID(dbc dbctx.Context, id string) (*domain.Chat, error) {
	if id == "" {
		return nil, fmt.Errorf("missing id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out domain.Chat
	err := txx.WithContext(dbc.Ctx).
		Where("id = ?", id).
		Take(&out).Error
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *chatRepo) GetByIDWithMessages(dbc dbctx.Context, id string) (*domain.Chat, error) {
	if id == "" {
		return nil, fmt.Errorf("missing id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out domain.Chat
	err := txx.WithContext(dbc.Ctx).
		Preload("Messages", func(db *gorm.DB) *gorm.DB {
			return db.Order(`"order" ASC`)
		}).
		Where("id = ?", id).
		Take(&out).Error
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *chatRepo) ListByUser(dbc dbctx.Context, userID uuid.UUID, limit int) ([]*domain.Chat, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("missing user_id")
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*domain.Chat
	if err := txx.WithContext(dbc.Ctx).
		Model(&domain.Chat{}).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *chatRepo) UpdateFields(dbc dbctx.Context, id string, updates map[string]interface{}) error {
	if id == "" {
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
		Model(&domain.Chat{}).
		Where("id = ?", id).
		Updates(updates).Error
}
