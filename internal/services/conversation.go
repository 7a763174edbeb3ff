package services

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/parlorchat/parlor-backend/internal/data/repos"
	"github.com/parlorchat/parlor-backend/internal/domain"
	"github.com/parlorchat/parlor-backend/internal/pkg/dbctx"
	"github.com/parlorchat/parlor-backend/internal/pkg/logger"
	"github.com/parlorchat/parlor-backend/internal/platform/apierr"
)

// UpsertInput carries the full desired transcript for a chat, never a
// delta. ChatID may be empty; Title overrides derivation when set.
type UpsertInput struct {
	ChatID   string
	UserID   uuid.UUID
	Messages []domain.UIMessage
	Title    string
}

type ConversationService interface {
	// Upsert reconciles the chat row and replaces its message set in one
	// transaction, returning the resolved chat id. Retrying the same
	// input converges on the same transcript; stored ids are re-minted
	// on every save.
	Upsert(dbc dbctx.Context, in UpsertInput) (string, error)
	Create(dbc dbctx.Context, userID uuid.UUID, title string) (*domain.Chat, error)
	// Get returns the chat with its ordered messages. Not-found is
	// (nil, nil); ownership mismatch is a forbidden error.
	Get(dbc dbctx.Context, userID uuid.UUID, chatID string) (*domain.Chat, error)
	List(dbc dbctx.Context, userID uuid.UUID, limit int) ([]*domain.Chat, error)
	UpdateTitle(dbc dbctx.Context, userID uuid.UUID, chatID, title string) (*domain.Chat, error)
}

type conversationService struct {
	db       *gorm.DB
	log      *logger.Logger
	chats    repos.ChatRepo
	messages repos.MessageRepo
}

func NewConversationService(db *gorm.DB, log *logger.Logger, chats repos.ChatRepo, messages repos.MessageRepo) ConversationService {
	return &conversationService{
		db:       db,
		log:      log.With("service", "ConversationService"),
		chats:    chats,
		messages: messages,
	}
}

func (s *conversationService) Upsert(dbc dbctx.Context, in UpsertInput) (string, error) {
	if in.UserID == uuid.Nil {
		return "", apierr.BadRequest("missing_user_id", fmt.Errorf("missing user id"))
	}

	chatID := strings.TrimSpace(in.ChatID)
	if chatID == "" {
		chatID = domain.NewChatID()
	}

	title := strings.TrimSpace(in.Title)

	err := s.db.WithContext(dbc.Ctx).Transaction(func(tx *gorm.DB) error {
		txc := dbc.WithTx(tx)

		existing, err := s.chats.GetByID(txc, chatID)
		if err != nil {
			return fmt.Errorf("load chat: %w", err)
		}
		switch {
		case existing == nil:
			created := title
			if created == "" {
				created = domain.DeriveTitle(in.Messages)
			}
			if _, err := s.chats.Create(txc, []*domain.Chat{{
				ID:     chatID,
				Title:  created,
				UserID: in.UserID,
			}}); err != nil {
				return fmt.Errorf("create chat: %w", err)
			}
		case existing.UserID != in.UserID:
			// A chat id, once bound to a user, is never reassigned.
			return apierr.Forbidden("chat_ownership_violation",
				fmt.Errorf("chat %s belongs to a different user", chatID))
		default:
			// Titles are set at creation or by an explicit rename; a
			// routine save only bumps updated_at.
			updates := map[string]interface{}{}
			if title != "" {
				updates["title"] = title
			}
			if err := s.chats.UpdateFields(txc, chatID, updates); err != nil {
				return fmt.Errorf("update chat: %w", err)
			}
		}

		rows := make([]*domain.Message, 0, len(in.Messages))
		for _, m := range in.Messages {
			raw, err := partsJSON(m.Parts)
			if err != nil {
				return fmt.Errorf("encode parts: %w", err)
			}
			rows = append(rows, &domain.Message{
				Role:  m.Role,
				Parts: raw,
			})
		}
		if err := s.messages.ReplaceForChat(txc, chatID, rows); err != nil {
			return fmt.Errorf("replace messages: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return chatID, nil
}

func (s *conversationService) Create(dbc dbctx.Context, userID uuid.UUID, title string) (*domain.Chat, error) {
	if userID == uuid.Nil {
		return nil, apierr.BadRequest("missing_user_id", fmt.Errorf("missing user id"))
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = domain.DefaultChatTitle
	}
	chat := &domain.Chat{
		ID:     domain.NewChatID(),
		Title:  title,
		UserID: userID,
	}
	if _, err := s.chats.Create(dbc, []*domain.Chat{chat}); err != nil {
		return nil, fmt.Errorf("create chat: %w", err)
	}
	return chat, nil
}

func (s *conversationService) Get(dbc dbctx.Context, userID uuid.UUID, chatID string) (*domain.Chat, error) {
	chat, err := s.chats.GetByIDWithMessages(dbc, chatID)
	if err != nil {
		return nil, err
	}
	if chat == nil {
		return nil, nil
	}
	if chat.UserID != userID {
		return nil, apierr.Forbidden("chat_ownership_violation",
			fmt.Errorf("chat %s belongs to a different user", chatID))
	}
	return chat, nil
}

func (s *conversationService) List(dbc dbctx.Context, userID uuid.UUID, limit int) ([]*domain.Chat, error) {
	return s.chats.ListByUser(dbc, userID, limit)
}

func (s *conversationService) UpdateTitle(dbc dbctx.Context, userID uuid.UUID, chatID, title string) (*domain.Chat, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, apierr.BadRequest("missing_title", fmt.Errorf("missing title"))
	}
	chat, err := s.chats.GetByID(dbc, chatID)
	if err != nil {
		return nil, err
	}
	if chat == nil {
		return nil, apierr.NotFound("chat_not_found", fmt.Errorf("chat %s not found", chatID))
	}
	if chat.UserID != userID {
		return nil, apierr.Forbidden("chat_ownership_violation",
			fmt.Errorf("chat %s belongs to a different user", chatID))
	}
	if err := s.chats.UpdateFields(dbc, chatID, map[string]interface{}{"title": title}); err != nil {
		return nil, err
	}
	return s.chats.GetByID(dbc, chatID)
}

func partsJSON(parts []domain.Part) (datatypes.JSON, error) {
	if parts == nil {
		parts = []domain.Part{}
	}
	raw, err := json.Marshal(parts)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}
