package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// BindingStore resolves opaque binding codes to the software identity
// a verify call should use.
type BindingStore struct {
	db *pgxpool.Pool
}

func NewBindingStore(db *pgxpool.Pool) *BindingStore {
	return &BindingStore{db: db}
}

// EnsureSchema creates the binding table when missing.
func (s *BindingStore) EnsureSchema(ctx context.Context) error {
	ddl := `
		CREATE TABLE IF NOT EXISTS software_bindings (
			binding_code VARCHAR(64) PRIMARY KEY,
			software VARCHAR(64) NOT NULL
		);
	`

	if _, err := s.db.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to ensure software_bindings schema: %w", err)
	}

	return nil
}

// GetSoftwareByBindingCode returns the bound software identity, or
// empty when the code is unknown.
func (s *BindingStore) GetSoftwareByBindingCode(ctx context.Context, bindingCode string) (string, error) {
	var software string
	err := s.db.QueryRow(ctx, `
		SELECT software FROM software_bindings WHERE binding_code = $1 LIMIT 1
	`, bindingCode).Scan(&software)

	if err != nil {
		if isNoRows(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to resolve binding code: %w", err)
	}

	return software, nil
}
