package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/wwwskbjxyz/Agent-web-sub001/internal/verifysvc/models"

	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
)

// LinkStore reads the pool of distributable download links. Rows hold
// raw pasted share text; rows that fail to parse are skipped.
type LinkStore struct {
	db *pgxpool.Pool
}

func NewLinkStore(db *pgxpool.Pool) *LinkStore {
	return &LinkStore{db: db}
}

// EnsureSchema creates the catalog table when missing.
func (s *LinkStore) EnsureSchema(ctx context.Context) error {
	ddl := `
		CREATE TABLE IF NOT EXISTS lanzou_links (
			id BIGSERIAL PRIMARY KEY,
			content TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
	`

	if _, err := s.db.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to ensure lanzou_links schema: %w", err)
	}

	return nil
}

// GetAvailableLinks returns every parseable catalog row, sorted by
// creation time descending, id descending. Failures degrade to an
// empty pool; an empty catalog is a reportable condition, not an
// error.
func (s *LinkStore) GetAvailableLinks(ctx context.Context) ([]models.DownloadLink, error) {
	rows, err := s.db.Query(ctx, `SELECT id, content, created_at FROM lanzou_links`)
	if err != nil {
		log.Errorf("link catalog: failed to load links: %v", err)
		return nil, nil
	}
	defer rows.Close()

	var links []models.DownloadLink
	for rows.Next() {
		var id int64
		var content *string
		var createdAt *time.Time
		if err := rows.Scan(&id, &content, &createdAt); err != nil {
			log.Errorf("link catalog: failed to scan link row: %v", err)
			return nil, nil
		}
		if content == nil {
			continue
		}

		url, code, ok := models.ParseLinkContent(*content)
		if !ok {
			continue
		}

		created := time.Now().UTC()
		if createdAt != nil {
			created = createdAt.UTC()
		}

		links = append(links, models.DownloadLink{
			ID:             id,
			URL:            url,
			ExtractionCode: code,
			CreatedAt:      created,
		})
	}
	if rows.Err() != nil {
		log.Errorf("link catalog: failed to read link rows: %v", rows.Err())
		return nil, nil
	}

	sort.Slice(links, func(i, j int) bool {
		if !links[i].CreatedAt.Equal(links[j].CreatedAt) {
			return links[i].CreatedAt.After(links[j].CreatedAt)
		}
		return links[i].ID > links[j].ID
	})

	return links, nil
}

// QueryLinks is the audit listing of catalog rows, raw content
// included. Storage errors propagate; the admin surface reports them.
func (s *LinkStore) QueryLinks(ctx context.Context, keyword string, page, pageSize int) ([]models.LinkRecord, int64, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > maxAuditPageSize {
		pageSize = maxAuditPageSize
	}
	offset := (page - 1) * pageSize

	where := ""
	args := []interface{}{}
	if kw := strings.TrimSpace(keyword); kw != "" {
		where = "WHERE content LIKE $1"
		args = append(args, "%"+kw+"%")
	}

	var total int64
	countSQL := "SELECT COUNT(*) FROM lanzou_links " + where
	if err := s.db.QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count links: %w", err)
	}

	dataSQL := fmt.Sprintf(`
		SELECT id, content, created_at FROM lanzou_links %s
		ORDER BY id DESC
		LIMIT $%d OFFSET $%d
	`, where, len(args)+1, len(args)+2)
	args = append(args, pageSize, offset)

	rows, err := s.db.Query(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query links: %w", err)
	}
	defer rows.Close()

	var items []models.LinkRecord
	for rows.Next() {
		var id int64
		var content *string
		var createdAt *time.Time
		if err := rows.Scan(&id, &content, &createdAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan link row: %w", err)
		}

		record := models.LinkRecord{ID: id, CreatedAt: time.Now().UTC()}
		if content != nil {
			record.RawContent = *content
			if url, code, ok := models.ParseLinkContent(*content); ok {
				record.URL = url
				record.ExtractionCode = code
			}
		}
		if createdAt != nil {
			record.CreatedAt = createdAt.UTC()
		}
		items = append(items, record)
	}
	if rows.Err() != nil {
		return nil, 0, fmt.Errorf("failed to read link rows: %w", rows.Err())
	}

	return items, total, nil
}

// DeleteLinks removes catalog rows by id.
func (s *LinkStore) DeleteLinks(ctx context.Context, ids []int64) (int64, error) {
	distinct := distinctPositive(ids)
	if len(distinct) == 0 {
		return 0, nil
	}

	tag, err := s.db.Exec(ctx, `DELETE FROM lanzou_links WHERE id = ANY($1)`, distinct)
	if err != nil {
		return 0, fmt.Errorf("failed to delete links: %w", err)
	}

	return tag.RowsAffected(), nil
}
