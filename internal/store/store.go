package store

import (
	"context"

	"github.com/mbendtzen/game-show-backend/internal/model"
)

// Store persists one document per game code. Load returns
// errs.ErrGameNotFound when no record exists for the code; expiry of a
// returned record is the caller's concern (backends may additionally let
// records lapse via their own TTL mechanics).
type Store interface {
	Save(ctx context.Context, doc *model.GameDocument) error
	Load(ctx context.Context, code string) (*model.GameDocument, error)
	Close() error
}
