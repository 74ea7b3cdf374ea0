package store

import (
	"context"
	"fmt"

	"github.com/wwwskbjxyz/Agent-web-sub001/internal/verifysvc/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

// CardStore resolves card keys against the card directory table kept
// in sync by the upstream platform.
type CardStore struct {
	db *pgxpool.Pool
}

func NewCardStore(db *pgxpool.Pool) *CardStore {
	return &CardStore{db: db}
}

// EnsureSchema creates the directory table when missing.
func (s *CardStore) EnsureSchema(ctx context.Context) error {
	ddl := `
		CREATE TABLE IF NOT EXISTS cards (
			id BIGSERIAL PRIMARY KEY,
			software VARCHAR(64) NOT NULL,
			card_key VARCHAR(128) NOT NULL,
			state VARCHAR(32) NOT NULL DEFAULT '',
			expire_time BIGINT NOT NULL DEFAULT 0,
			expire_time_alt BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (software, card_key)
		);
	`

	if _, err := s.db.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to ensure cards schema: %w", err)
	}

	return nil
}

// GetCardByKey returns the card snapshot for the software/key pair, or
// nil when the directory has no such card.
func (s *CardStore) GetCardByKey(ctx context.Context, software, cardKey string) (*models.Card, error) {
	query := `
		SELECT id, software, card_key, state, expire_time, expire_time_alt, created_at, updated_at
		FROM cards
		WHERE software = $1 AND card_key = $2
		LIMIT 1
	`

	var card models.Card
	err := s.db.QueryRow(ctx, query, software, cardKey).Scan(
		&card.ID,
		&card.Software,
		&card.CardKey,
		&card.State,
		&card.ExpireTime,
		&card.ExpireTimeAlt,
		&card.CreatedAt,
		&card.UpdatedAt,
	)

	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get card by key: %w", err)
	}

	return &card, nil
}
