package dbctx

import (
	"context"

	"gorm.io/gorm"

	"github.com/parlorchat/parlor-backend/internal/pkg/ctxutil"
)

// Context bundles a request context with an optional GORM transaction.
// Repos run against Tx when it is set, otherwise against their own handle.
type Context struct {
	Ctx context.Context
	Tx  *gorm.DB
}

func New(ctx context.Context) Context {
	return Context{Ctx: ctxutil.Default(ctx)}
}

func (c Context) WithTx(tx *gorm.DB) Context {
	return Context{Ctx: c.Ctx, Tx: tx}
}
