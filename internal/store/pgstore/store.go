package pgstore

import (
	"context"
	"encoding/json"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mbendtzen/game-show-backend/internal/errs"
	"github.com/mbendtzen/game-show-backend/internal/model"
	"github.com/mbendtzen/game-show-backend/internal/store"
)

// Store is the Postgres-backed game document store: one game_records row
// per code, the full document as a jsonb payload. The schema is managed by
// the migrations in database/migrations.
type Store struct {
	db *gorm.DB
}

var _ store.Store = (*Store)(nil)

// New wraps an open GORM handle.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Save upserts the row for the document's game code.
func (s *Store) Save(ctx context.Context, doc *model.GameDocument) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	rec := model.GameRecord{
		GameCode:  doc.GameCode,
		Payload:   payload,
		ExpiresAt: doc.ExpiresAt,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "game_code"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "expires_at", "updated_at"}),
	}).Create(&rec).Error
}

// Load reads the document for a code.
func (s *Store) Load(ctx context.Context, code string) (*model.GameDocument, error) {
	var rec model.GameRecord
	if err := s.db.WithContext(ctx).Where("game_code = ?", code).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrGameNotFound
		}
		return nil, err
	}
	var doc model.GameDocument
	if err := json.Unmarshal(rec.Payload, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}
