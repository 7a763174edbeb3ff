package repos

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/parlorchat/parlor-backend/internal/domain"
	"github.com/parlorchat/parlor-backend/internal/pkg/dbctx"
	"github.com/parlorchat/parlor-backend/internal/pkg/logger"
)

type MessageRepo interface {
	ListByChat(dbc dbctx.Context, chatID string) ([]*domain.Message, error)
	// ReplaceForChat discards all prior messages for the chat and inserts
	// rows with order = slice index and a freshly minted id each. Callers
	// must run it inside a transaction so a failure leaves the prior set
	// intact.
	ReplaceForChat(dbc dbctx.Context, chatID string, rows []*domain.Message) error
	CountByChat(dbc dbctx.Context, chatID string) (int64, error)
}

type messageRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMessageRepo(db *gorm.DB, log *logger.Logger) MessageRepo {
	return &messageRepo{db: db, log: log.With("repo", "MessageRepo")}
}

func (r *messageRepo) ListByChat(dbc dbctx.Context, chatID string) ([]*domain.Message, error) {
	if chatID == "" {
		return nil, fmt.Errorf("missing chat_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*domain.Message
	if err := txx.WithContext(dbc.Ctx).
		Model(&domain.Message{}).
		Where("chat_id = ?", chatID).
		Order(`"order" ASC`).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *messageRepo) ReplaceForChat(dbc dbctx.Context, chatID string, rows []*domain.Message) error {
	if chatID == "" {
		return fmt.Errorf("missing chat_id")
	}
	if dbc.Tx == nil {
		return fmt.Errorf("ReplaceForChat requires dbc.Tx")
	}
	if err := dbc.Tx.WithContext(dbc.Ctx).
		Where("chat_id = ?", chatID).
		Delete(&domain.Message{}).Error; err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	// Ids are minted per save. Client-supplied ids are transcript-local
	// and may recur across chats, which would collide on the primary key.
	for i := range rows {
		rows[i].ChatID = chatID
		rows[i].Order = i
		rows[i].ID = domain.NewMessageID()
	}
	return dbc.Tx.WithContext(dbc.Ctx).Create(&rows).Error
}

func (r *messageRepo) CountByChat(dbc dbctx.Context, chatID string) (int64, error) {
	if chatID == "" {
		return 0, fmt.Errorf("missing chat_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var n int64
	if err := txx.WithContext(dbc.Ctx).
		Model(&domain.Message{}).
		Where("chat_id = ?", chatID).
		Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}
