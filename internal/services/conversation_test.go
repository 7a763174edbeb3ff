package services

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/parlorchat/parlor-backend/internal/data/repos"
	"github.com/parlorchat/parlor-backend/internal/domain"
	"github.com/parlorchat/parlor-backend/internal/pkg/dbctx"
	"github.com/parlorchat/parlor-backend/internal/pkg/logger"
	"github.com/parlorchat/parlor-backend/internal/platform/apierr"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.User{}, &domain.Chat{}, &domain.Message{}))
	return db
}

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	require.NoError(t, err)
	return log
}

func newConversationService(t *testing.T) (ConversationService, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	log := newTestLogger(t)
	chats := repos.NewChatRepo(db, log)
	messages := repos.NewMessageRepo(db, log)
	return NewConversationService(db, log, chats, messages), db
}

func seedUser(t *testing.T, db *gorm.DB) *domain.User {
	t.Helper()
	user := &domain.User{
		Email:    uuid.NewString() + "@example.com",
		Name:     "Test User",
		Password: "hashed",
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func userMessage(id, text string) domain.UIMessage {
	return domain.UIMessage{
		ID:   id,
		Role: domain.RoleUser,
		Parts: []domain.Part{
			{Type: domain.PartTypeText, Text: text},
		},
	}
}

func assistantMessage(id, text string) domain.UIMessage {
	return domain.UIMessage{
		ID:   id,
		Role: domain.RoleAssistant,
		Parts: []domain.Part{
			{Type: domain.PartTypeText, Text: text, State: "done"},
		},
	}
}

func TestUpsertCreatesChatAndMessages(t *testing.T) {
	svc, db := newConversationService(t)
	user := seedUser(t, db)
	dbc := dbctx.New(context.Background())

	chatID, err := svc.Upsert(dbc, UpsertInput{
		UserID: user.ID,
		Messages: []domain.UIMessage{
			userMessage("msg_1", "How do goroutines work?"),
			assistantMessage("msg_2", "They are lightweight threads."),
		},
	})
	require.NoError(t, err)
	require.NotEmpty(t, chatID)

	var chat domain.Chat
	require.NoError(t, db.First(&chat, "id = ?", chatID).Error)
	assert.Equal(t, user.ID, chat.UserID)
	assert.Equal(t, "How do goroutines work?...", chat.Title)

	var rows []domain.Message
	require.NoError(t, db.Where("chat_id = ?", chatID).Order(`"order" ASC`).Find(&rows).Error)
	require.Len(t, rows, 2)
	assert.Equal(t, 0, rows[0].Order)
	assert.Equal(t, domain.RoleUser, rows[0].Role)
	assert.Equal(t, 1, rows[1].Order)
	assert.Equal(t, domain.RoleAssistant, rows[1].Role)
}

func TestUpsertIsIdempotent(t *testing.T) {
	svc, db := newConversationService(t)
	user := seedUser(t, db)
	dbc := dbctx.New(context.Background())

	in := UpsertInput{
		ChatID: domain.NewChatID(),
		UserID: user.ID,
		Messages: []domain.UIMessage{
			userMessage("msg_1", "hello"),
			assistantMessage("msg_2", "hi"),
		},
	}

	first, err := svc.Upsert(dbc, in)
	require.NoError(t, err)
	second, err := svc.Upsert(dbc, in)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	var count int64
	require.NoError(t, db.Model(&domain.Message{}).Where("chat_id = ?", first).Count(&count).Error)
	assert.EqualValues(t, 2, count)
}

func TestUpsertReplacesWholeMessageSet(t *testing.T) {
	svc, db := newConversationService(t)
	user := seedUser(t, db)
	dbc := dbctx.New(context.Background())

	chatID, err := svc.Upsert(dbc, UpsertInput{
		UserID: user.ID,
		Messages: []domain.UIMessage{
			userMessage("msg_1", "one"),
			assistantMessage("msg_2", "two"),
			userMessage("msg_3", "three"),
		},
	})
	require.NoError(t, err)

	// Shrinking the transcript must remove the extra rows, not merge.
	_, err = svc.Upsert(dbc, UpsertInput{
		ChatID: chatID,
		UserID: user.ID,
		Messages: []domain.UIMessage{
			userMessage("msg_1", "one"),
		},
	})
	require.NoError(t, err)

	var rows []domain.Message
	require.NoError(t, db.Where("chat_id = ?", chatID).Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, 0, rows[0].Order)
}

func TestUpsertRejectsForeignChat(t *testing.T) {
	svc, db := newConversationService(t)
	owner := seedUser(t, db)
	intruder := seedUser(t, db)
	dbc := dbctx.New(context.Background())

	chatID, err := svc.Upsert(dbc, UpsertInput{
		UserID:   owner.ID,
		Messages: []domain.UIMessage{userMessage("msg_1", "mine")},
	})
	require.NoError(t, err)

	_, err = svc.Upsert(dbc, UpsertInput{
		ChatID:   chatID,
		UserID:   intruder.ID,
		Messages: []domain.UIMessage{userMessage("msg_x", "takeover")},
	})
	require.Error(t, err)
	assert.Equal(t, 403, apierr.StatusCode(err))

	// The owner's messages survive the rejected write.
	var count int64
	require.NoError(t, db.Model(&domain.Message{}).Where("chat_id = ?", chatID).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestUpsertAssignsMessageIDs(t *testing.T) {
	svc, db := newConversationService(t)
	user := seedUser(t, db)
	dbc := dbctx.New(context.Background())

	chatID, err := svc.Upsert(dbc, UpsertInput{
		UserID: user.ID,
		Messages: []domain.UIMessage{
			{Role: domain.RoleUser, Parts: []domain.Part{{Type: domain.PartTypeText, Text: "no id"}}},
		},
	})
	require.NoError(t, err)

	var rows []domain.Message
	require.NoError(t, db.Where("chat_id = ?", chatID).Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.NotEmpty(t, rows[0].ID)
}

func TestUpsertAcceptsReusedClientIDsAcrossChats(t *testing.T) {
	svc, db := newConversationService(t)
	user := seedUser(t, db)
	dbc := dbctx.New(context.Background())

	transcript := []domain.UIMessage{userMessage("msg_1", "same id everywhere")}

	first, err := svc.Upsert(dbc, UpsertInput{UserID: user.ID, Messages: transcript})
	require.NoError(t, err)

	// Clients number messages per transcript, so a second chat carrying
	// the same client id must not collide with the first chat's rows.
	second, err := svc.Upsert(dbc, UpsertInput{UserID: user.ID, Messages: transcript})
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	var rows []domain.Message
	require.NoError(t, db.Order("chat_id").Find(&rows).Error)
	require.Len(t, rows, 2)
	assert.NotEqual(t, rows[0].ID, rows[1].ID)
}

func TestUpsertKeepsRenamedTitle(t *testing.T) {
	svc, db := newConversationService(t)
	user := seedUser(t, db)
	dbc := dbctx.New(context.Background())

	chatID, err := svc.Upsert(dbc, UpsertInput{
		UserID:   user.ID,
		Messages: []domain.UIMessage{userMessage("msg_1", "Where should I go in Italy?")},
	})
	require.NoError(t, err)

	_, err = svc.UpdateTitle(dbc, user.ID, chatID, "Italy 2026")
	require.NoError(t, err)

	// The next turn's save carries no title and must not undo the rename.
	_, err = svc.Upsert(dbc, UpsertInput{
		ChatID: chatID,
		UserID: user.ID,
		Messages: []domain.UIMessage{
			userMessage("msg_1", "Where should I go in Italy?"),
			assistantMessage("msg_2", "Florence in spring."),
		},
	})
	require.NoError(t, err)

	var chat domain.Chat
	require.NoError(t, db.First(&chat, "id = ?", chatID).Error)
	assert.Equal(t, "Italy 2026", chat.Title)
}

func TestUpsertExplicitTitleWins(t *testing.T) {
	svc, db := newConversationService(t)
	user := seedUser(t, db)
	dbc := dbctx.New(context.Background())

	chatID, err := svc.Upsert(dbc, UpsertInput{
		UserID:   user.ID,
		Title:    "Trip planning",
		Messages: []domain.UIMessage{userMessage("msg_1", "Where should I go?")},
	})
	require.NoError(t, err)

	var chat domain.Chat
	require.NoError(t, db.First(&chat, "id = ?", chatID).Error)
	assert.Equal(t, "Trip planning", chat.Title)
}

func TestUpsertPreservesPartPayloads(t *testing.T) {
	svc, db := newConversationService(t)
	user := seedUser(t, db)
	dbc := dbctx.New(context.Background())

	msg := domain.UIMessage{
		ID:   "msg_tool",
		Role: domain.RoleAssistant,
		Parts: []domain.Part{
			{
				Type:       "tool-serper",
				ToolCallID: "call_1",
				State:      domain.ToolStateOutputAvailable,
				Input:      json.RawMessage(`{"q":"weather"}`),
				Output:     json.RawMessage(`{"organic":[]}`),
			},
			{Type: domain.PartTypeText, Text: "Sunny.", State: "done"},
		},
	}
	chatID, err := svc.Upsert(dbc, UpsertInput{
		UserID:   user.ID,
		Messages: []domain.UIMessage{msg},
	})
	require.NoError(t, err)

	var row domain.Message
	require.NoError(t, db.First(&row, "chat_id = ?", chatID).Error)

	var parts []domain.Part
	require.NoError(t, json.Unmarshal(row.Parts, &parts))
	require.Len(t, parts, 2)
	assert.Equal(t, "call_1", parts[0].ToolCallID)
	assert.JSONEq(t, `{"q":"weather"}`, string(parts[0].Input))
}

func TestCreateAndGet(t *testing.T) {
	svc, db := newConversationService(t)
	user := seedUser(t, db)
	other := seedUser(t, db)
	dbc := dbctx.New(context.Background())

	chat, err := svc.Create(dbc, user.ID, "")
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultChatTitle, chat.Title)

	got, err := svc.Get(dbc, user.ID, chat.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Empty(t, got.Messages)

	missing, err := svc.Get(dbc, user.ID, "chat_does_not_exist")
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = svc.Get(dbc, other.ID, chat.ID)
	require.Error(t, err)
	assert.Equal(t, 403, apierr.StatusCode(err))
}

func TestListOrdersByRecency(t *testing.T) {
	svc, db := newConversationService(t)
	user := seedUser(t, db)
	dbc := dbctx.New(context.Background())

	first, err := svc.Create(dbc, user.ID, "first")
	require.NoError(t, err)
	second, err := svc.Create(dbc, user.ID, "second")
	require.NoError(t, err)

	// Touch the older chat so it becomes the most recent.
	_, err = svc.Upsert(dbc, UpsertInput{
		ChatID:   first.ID,
		UserID:   user.ID,
		Title:    "first",
		Messages: []domain.UIMessage{userMessage("msg_1", "bump")},
	})
	require.NoError(t, err)

	chats, err := svc.List(dbc, user.ID, 0)
	require.NoError(t, err)
	require.Len(t, chats, 2)
	assert.Equal(t, first.ID, chats[0].ID)
	assert.Equal(t, second.ID, chats[1].ID)
}

func TestUpdateTitle(t *testing.T) {
	svc, db := newConversationService(t)
	user := seedUser(t, db)
	other := seedUser(t, db)
	dbc := dbctx.New(context.Background())

	chat, err := svc.Create(dbc, user.ID, "draft")
	require.NoError(t, err)

	updated, err := svc.UpdateTitle(dbc, user.ID, chat.ID, "final")
	require.NoError(t, err)
	assert.Equal(t, "final", updated.Title)

	_, err = svc.UpdateTitle(dbc, other.ID, chat.ID, "stolen")
	require.Error(t, err)
	assert.Equal(t, 403, apierr.StatusCode(err))

	_, err = svc.UpdateTitle(dbc, user.ID, "chat_missing", "x")
	require.Error(t, err)
	assert.Equal(t, 404, apierr.StatusCode(err))
}
