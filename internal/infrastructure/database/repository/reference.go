package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"cloneguard-lab/internal/domain/models"
	"cloneguard-lab/internal/infrastructure/database"
)

// ErrNotFound is returned when no reference matches the lookup
var ErrNotFound = errors.New("reference not found")

// ReferenceRepository stores known-good apps and their signing certificates
type ReferenceRepository struct {
	db *database.PostgresDB
}

// NewReferenceRepository creates a new reference repository
func NewReferenceRepository(db *database.PostgresDB) *ReferenceRepository {
	return &ReferenceRepository{db: db}
}

// Get retrieves the reference for a package name
func (r *ReferenceRepository) Get(ctx context.Context, packageName string) (*models.Reference, error) {
	query := `
		SELECT package_name, brand, developer, icon_phash, updated_at
		FROM reference_apps
		WHERE package_name = $1`

	return r.load(ctx, r.db.Pool().QueryRow(ctx, query, packageName))
}

// FindByBrand retrieves the most recently updated reference for a brand
func (r *ReferenceRepository) FindByBrand(ctx context.Context, brand string) (*models.Reference, error) {
	query := `
		SELECT package_name, brand, developer, icon_phash, updated_at
		FROM reference_apps
		WHERE lower(brand) = lower($1)
		ORDER BY updated_at DESC, package_name
		LIMIT 1`

	return r.load(ctx, r.db.Pool().QueryRow(ctx, query, brand))
}

// Upsert inserts or replaces a reference together with its certificate set
func (r *ReferenceRepository) Upsert(ctx context.Context, ref *models.Reference) error {
	if ref == nil || ref.PackageName == "" {
		return errors.New("reference package name is required")
	}
	ref.UpdatedAt = time.Now().UTC()

	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO reference_apps (package_name, brand, developer, icon_phash, updated_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (package_name) DO UPDATE SET
				brand = EXCLUDED.brand,
				developer = EXCLUDED.developer,
				icon_phash = EXCLUDED.icon_phash,
				updated_at = EXCLUDED.updated_at`,
			ref.PackageName, ref.Brand, ref.Developer, ref.IconPHash, ref.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert reference: %w", err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM reference_certificates WHERE package_name = $1`, ref.PackageName); err != nil {
			return fmt.Errorf("failed to clear reference certificates: %w", err)
		}

		batch := &pgx.Batch{}
		for _, fp := range normalizeFingerprints(ref.CertSHA256) {
			batch.Queue(`INSERT INTO reference_certificates (package_name, sha256) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
				ref.PackageName, fp)
		}
		if batch.Len() == 0 {
			return nil
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to store reference certificates: %w", err)
		}
		return nil
	})
}

func (r *ReferenceRepository) load(ctx context.Context, row pgx.Row) (*models.Reference, error) {
	var ref models.Reference
	err := row.Scan(&ref.PackageName, &ref.Brand, &ref.Developer, &ref.IconPHash, &ref.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get reference: %w", err)
	}

	rows, err := r.db.Pool().Query(ctx,
		`SELECT sha256 FROM reference_certificates WHERE package_name = $1 ORDER BY sha256`, ref.PackageName)
	if err != nil {
		return nil, fmt.Errorf("failed to get reference certificates: %w", err)
	}
	certs, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan reference certificates: %w", err)
	}
	ref.CertSHA256 = certs
	return &ref, nil
}

// normalizeFingerprints lowercases, strips colons and dedupes
func normalizeFingerprints(fps []string) []string {
	seen := make(map[string]bool, len(fps))
	out := make([]string, 0, len(fps))
	for _, fp := range fps {
		n := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(fp), ":", ""))
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
