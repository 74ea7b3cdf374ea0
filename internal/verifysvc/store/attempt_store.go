package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wwwskbjxyz/Agent-web-sub001/internal/verifysvc/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
)

const maxAuditPageSize = 200

// AttemptStore is the persistent attempt ledger. It is the sole writer
// of card_verification_log; rows are append-only.
type AttemptStore struct {
	db *pgxpool.Pool
}

func NewAttemptStore(db *pgxpool.Pool) *AttemptStore {
	return &AttemptStore{db: db}
}

// EnsureSchema creates the ledger table and its indexes when missing.
func (s *AttemptStore) EnsureSchema(ctx context.Context) error {
	ddl := `
		CREATE TABLE IF NOT EXISTS card_verification_log (
			id BIGSERIAL PRIMARY KEY,
			card_key VARCHAR(128) NOT NULL,
			ip_address VARCHAR(64) NOT NULL,
			attempt_number INT NOT NULL,
			was_successful BOOLEAN NOT NULL,
			download_link_id BIGINT NULL,
			download_url TEXT NULL,
			extraction_code VARCHAR(64) NULL,
			created_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_card_verification_log_card_key
			ON card_verification_log (card_key);
		CREATE INDEX IF NOT EXISTS idx_card_verification_log_link_id
			ON card_verification_log (download_link_id);
	`

	if _, err := s.db.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to ensure card_verification_log schema: %w", err)
	}

	return nil
}

// RecordAttempt appends a new attempt row and returns its per-card
// attempt number. The read-max-then-insert sequence runs inside one
// transaction serialized per card key with an advisory lock, so
// concurrent calls for the same key can never compute the same number
// while different keys do not block each other. Postgres rejects
// FOR UPDATE on aggregates, hence the advisory lock instead of a row
// lock on the MAX query.
//
// Any storage failure is logged and answered with attempt number 1;
// verification outcomes are never blocked by ledger unavailability.
func (s *AttemptStore) RecordAttempt(ctx context.Context, cardKey, ipAddress string, wasSuccessful bool, link *models.AssignedLink) (int64, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		log.Errorf("attempt ledger: failed to begin transaction for %s: %v", cardKey, err)
		return 1, nil
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, cardKey); err != nil {
		log.Errorf("attempt ledger: failed to lock card key %s: %v", cardKey, err)
		return 1, nil
	}

	var attemptNumber int64
	err = tx.QueryRow(ctx, `
		SELECT COALESCE(MAX(attempt_number), 0) + 1
		FROM card_verification_log
		WHERE card_key = $1
	`, cardKey).Scan(&attemptNumber)
	if err != nil {
		log.Errorf("attempt ledger: failed to compute attempt number for %s: %v", cardKey, err)
		return 1, nil
	}
	if attemptNumber <= 0 {
		attemptNumber = 1
	}

	var linkID *int64
	var url, code *string
	if link != nil {
		linkID = &link.ID
		url = &link.URL
		code = &link.ExtractionCode
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO card_verification_log
			(card_key, ip_address, attempt_number, was_successful, download_link_id, download_url, extraction_code, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, cardKey, ipAddress, attemptNumber, wasSuccessful, linkID, url, code, time.Now().UTC())
	if err != nil {
		log.Errorf("attempt ledger: failed to insert attempt for %s: %v", cardKey, err)
		return 1, nil
	}

	if err := tx.Commit(ctx); err != nil {
		log.Errorf("attempt ledger: failed to commit attempt for %s: %v", cardKey, err)
		return 1, nil
	}

	return attemptNumber, nil
}

// GetDownloadHistoryForCard returns the card's successful assignments
// with a non-null link, ascending by recording order. Storage errors
// degrade to an empty history.
func (s *AttemptStore) GetDownloadHistoryForCard(ctx context.Context, cardKey string) ([]models.HistoryEntry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT download_link_id, download_url, extraction_code, created_at
		FROM card_verification_log
		WHERE card_key = $1 AND was_successful = TRUE AND download_link_id IS NOT NULL
		ORDER BY id ASC
	`, cardKey)
	if err != nil {
		log.Errorf("attempt ledger: failed to load download history for %s: %v", cardKey, err)
		return nil, nil
	}
	defer rows.Close()

	var entries []models.HistoryEntry
	for rows.Next() {
		var linkID int64
		var url, code *string
		var createdAt time.Time
		if err := rows.Scan(&linkID, &url, &code, &createdAt); err != nil {
			log.Errorf("attempt ledger: failed to scan history row for %s: %v", cardKey, err)
			return nil, nil
		}

		entry := models.HistoryEntry{LinkID: linkID, CreatedAt: createdAt}
		if url != nil {
			entry.URL = *url
		}
		if code != nil {
			entry.ExtractionCode = *code
		}
		entries = append(entries, entry)
	}
	if rows.Err() != nil {
		log.Errorf("attempt ledger: failed to read history rows for %s: %v", cardKey, rows.Err())
		return nil, nil
	}

	return entries, nil
}

// GetUsageCounts returns the global count of successful attempts per
// link id. Storage errors degrade to an empty map.
func (s *AttemptStore) GetUsageCounts(ctx context.Context) (map[int64]int, error) {
	rows, err := s.db.Query(ctx, `
		SELECT download_link_id, COUNT(*)
		FROM card_verification_log
		WHERE was_successful = TRUE AND download_link_id IS NOT NULL
		GROUP BY download_link_id
	`)
	if err != nil {
		log.Errorf("attempt ledger: failed to load usage counts: %v", err)
		return map[int64]int{}, nil
	}
	defer rows.Close()

	counts := make(map[int64]int)
	for rows.Next() {
		var linkID int64
		var count int
		if err := rows.Scan(&linkID, &count); err != nil {
			log.Errorf("attempt ledger: failed to scan usage count row: %v", err)
			return map[int64]int{}, nil
		}
		counts[linkID] = count
	}
	if rows.Err() != nil {
		log.Errorf("attempt ledger: failed to read usage count rows: %v", rows.Err())
		return map[int64]int{}, nil
	}

	return counts, nil
}

// GetLastAssignedLink returns the most recent successful assignment for
// the card, or nil when there is none. Storage errors degrade to nil.
func (s *AttemptStore) GetLastAssignedLink(ctx context.Context, cardKey string) (*int64, error) {
	var linkID int64
	err := s.db.QueryRow(ctx, `
		SELECT download_link_id
		FROM card_verification_log
		WHERE card_key = $1 AND was_successful = TRUE AND download_link_id IS NOT NULL
		ORDER BY id DESC
		LIMIT 1
	`, cardKey).Scan(&linkID)
	if err != nil {
		if !isNoRows(err) {
			log.Errorf("attempt ledger: failed to load last assignment for %s: %v", cardKey, err)
		}
		return nil, nil
	}

	return &linkID, nil
}

// QueryLogs is the audit listing over the ledger. Unlike the core read
// paths it propagates storage errors; the admin surface reports them.
func (s *AttemptStore) QueryLogs(ctx context.Context, query models.AttemptQuery) ([]models.Attempt, int64, error) {
	page := query.Page
	if page <= 0 {
		page = 1
	}
	pageSize := query.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > maxAuditPageSize {
		pageSize = maxAuditPageSize
	}
	offset := (page - 1) * pageSize

	var where strings.Builder
	where.WriteString("WHERE 1=1")
	args := []interface{}{}

	addArg := func(clause string, value interface{}) {
		args = append(args, value)
		where.WriteString(fmt.Sprintf(clause, len(args)))
	}

	if key := strings.TrimSpace(query.CardKey); key != "" {
		addArg(" AND card_key LIKE $%d", "%"+key+"%")
	}
	if ip := strings.TrimSpace(query.IPAddress); ip != "" {
		addArg(" AND ip_address LIKE $%d", "%"+ip+"%")
	}
	if kw := strings.TrimSpace(query.Keyword); kw != "" {
		args = append(args, "%"+kw+"%")
		where.WriteString(fmt.Sprintf(" AND (download_url LIKE $%d OR extraction_code LIKE $%d)", len(args), len(args)))
	}
	if query.WasSuccessful != nil {
		addArg(" AND was_successful = $%d", *query.WasSuccessful)
	}
	if query.StartTime != nil {
		addArg(" AND created_at >= $%d", *query.StartTime)
	}
	if query.EndTime != nil {
		addArg(" AND created_at <= $%d", *query.EndTime)
	}

	var total int64
	countSQL := "SELECT COUNT(*) FROM card_verification_log " + where.String()
	if err := s.db.QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count verification logs: %w", err)
	}

	dataSQL := fmt.Sprintf(`
		SELECT id, card_key, ip_address, attempt_number, was_successful, download_link_id, download_url, extraction_code, created_at
		FROM card_verification_log %s
		ORDER BY id DESC
		LIMIT $%d OFFSET $%d
	`, where.String(), len(args)+1, len(args)+2)
	args = append(args, pageSize, offset)

	rows, err := s.db.Query(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query verification logs: %w", err)
	}
	defer rows.Close()

	var items []models.Attempt
	for rows.Next() {
		var a models.Attempt
		if err := rows.Scan(
			&a.ID,
			&a.CardKey,
			&a.IPAddress,
			&a.AttemptNumber,
			&a.WasSuccessful,
			&a.DownloadLinkID,
			&a.DownloadURL,
			&a.ExtractionCode,
			&a.CreatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan verification log row: %w", err)
		}
		items = append(items, a)
	}
	if rows.Err() != nil {
		return nil, 0, fmt.Errorf("failed to read verification log rows: %w", rows.Err())
	}

	return items, total, nil
}

// DeleteLogs removes ledger rows by id. Administrative operation, not
// part of the append-only verification path.
func (s *AttemptStore) DeleteLogs(ctx context.Context, ids []int64) (int64, error) {
	distinct := distinctPositive(ids)
	if len(distinct) == 0 {
		return 0, nil
	}

	tag, err := s.db.Exec(ctx, `DELETE FROM card_verification_log WHERE id = ANY($1)`, distinct)
	if err != nil {
		return 0, fmt.Errorf("failed to delete verification logs: %w", err)
	}

	return tag.RowsAffected(), nil
}

func distinctPositive(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
