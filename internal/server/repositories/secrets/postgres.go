// Package secrets contains the vault record repository.
package secrets

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/safepass/internal/common"
	"github.com/dmitrijs2005/safepass/internal/dbx"
	"github.com/dmitrijs2005/safepass/internal/server/models"
)

const recordColumns = `id, owner_id, site_name, site_url, username, secret_ciphertext, secret_nonce,
		 notes, category, tags, created_at, updated_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*models.SecretRecord, error) {
	var (
		r        models.SecretRecord
		category string
		tags     []byte
	)
	err := s.Scan(&r.ID, &r.OwnerID, &r.SiteName, &r.SiteURL, &r.Username, &r.SecretCiphertext,
		&r.SecretNonce, &r.Notes, &category, &tags, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.Category = models.Category(category)
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &r.Tags); err != nil {
			return nil, fmt.Errorf("decode tags: %w", err)
		}
	}
	if r.Tags == nil {
		r.Tags = []string{}
	}
	return &r, nil
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	return string(b), err
}

func wrapWriteErr(err error) error {
	if dbx.IsUniqueViolation(err) {
		return fmt.Errorf("%w: a record for this site already exists", common.ErrorConflict)
	}
	return fmt.Errorf("db error: %w", err)
}

// Create inserts record. The (owner_id, site_url) unique index is the only
// duplicate check: a violation yields common.ErrorConflict.
func (r *PostgresRepository) Create(ctx context.Context, record *models.SecretRecord) (*models.SecretRecord, error) {
	tags, err := encodeTags(record.Tags)
	if err != nil {
		return nil, err
	}

	query :=
		`INSERT INTO secret_records (owner_id, site_name, site_url, username, secret_ciphertext,
		 secret_nonce, notes, category, tags)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb)
		 RETURNING id, created_at, updated_at
		 `

	err = r.db.QueryRowContext(ctx, query,
		record.OwnerID, record.SiteName, record.SiteURL, record.Username, record.SecretCiphertext,
		record.SecretNonce, record.Notes, string(record.Category), tags,
	).Scan(&record.ID, &record.CreatedAt, &record.UpdatedAt)
	if err != nil {
		return nil, wrapWriteErr(err)
	}
	return record, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, ownerID, id string) (*models.SecretRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM secret_records WHERE id = $1 AND owner_id = $2`

	record, err := scanRecord(r.db.QueryRowContext(ctx, query, id, ownerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return record, nil
}

// ListByOwner returns raw (still encrypted) records ordered by site name.
func (r *PostgresRepository) ListByOwner(ctx context.Context, ownerID string, filter Filter) ([]*models.SecretRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM secret_records
		 WHERE owner_id = $1
		   AND ($2 = '' OR category = $2)
		   AND ($3 = '' OR tags @> jsonb_build_array($3::text))
		 ORDER BY site_name, id`

	rows, err := r.db.QueryContext(ctx, query, ownerID, string(filter.Category), filter.Tag)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := make([]*models.SecretRecord, 0)
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

// Update writes every mutable column of record, scoped by owner.
func (r *PostgresRepository) Update(ctx context.Context, record *models.SecretRecord) error {
	tags, err := encodeTags(record.Tags)
	if err != nil {
		return err
	}

	query :=
		`UPDATE secret_records SET site_name = $3, site_url = $4, username = $5, secret_ciphertext = $6,
		 secret_nonce = $7, notes = $8, category = $9, tags = $10::jsonb, updated_at = now()
		 WHERE id = $1 AND owner_id = $2
		 RETURNING updated_at`

	err = r.db.QueryRowContext(ctx, query,
		record.ID, record.OwnerID, record.SiteName, record.SiteURL, record.Username,
		record.SecretCiphertext, record.SecretNonce, record.Notes, string(record.Category), tags,
	).Scan(&record.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return common.ErrorNotFound
		}
		return wrapWriteErr(err)
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, ownerID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM secret_records WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

// DeleteByOwner removes all records of ownerID and reports how many.
func (r *PostgresRepository) DeleteByOwner(ctx context.Context, ownerID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM secret_records WHERE owner_id = $1`, ownerID)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
