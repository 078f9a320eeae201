package dbctx

import (
	"context"

	"gorm.io/gorm"
)

// Context bundles a context with an optional GORM transaction. Repos
// fall back to their own connection when Tx is nil; pipeline steps that
// must write atomically (clustering persistence, representative
// replacement) pass the shared Tx instead.
type Context struct {
	Ctx context.Context
	Tx  *gorm.DB
}
