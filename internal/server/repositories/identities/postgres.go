// Package identities contains the identity repository.
package identities

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/safepass/internal/common"
	"github.com/dmitrijs2005/safepass/internal/dbx"
	"github.com/dmitrijs2005/safepass/internal/server/models"
)

const identityColumns = `id, email, name, password_hash, register_method, email_verified,
		 password_method_linked, role, profile, last_login_at,
		 verify_code_hash, verify_code_expires_at, reset_token_hash, reset_token_expires_at,
		 created_at, updated_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanIdentity(s scanner) (*models.Identity, error) {
	var (
		i                               models.Identity
		passwordHash, verifyHash, reset sql.NullString
		lastLogin, verifyExp, resetExp  sql.NullTime
		method, role                    string
	)
	err := s.Scan(&i.ID, &i.Email, &i.Name, &passwordHash, &method, &i.EmailVerified,
		&i.PasswordMethodLinked, &role, &i.Profile, &lastLogin,
		&verifyHash, &verifyExp, &reset, &resetExp,
		&i.CreatedAt, &i.UpdatedAt)
	if err != nil {
		return nil, err
	}
	i.PasswordHash = passwordHash.String
	i.RegisterMethod = models.RegisterMethod(method)
	i.Role = models.Role(role)
	i.LastLoginAt = timePtr(lastLogin)
	i.VerifyCodeHash = verifyHash.String
	i.VerifyCodeExpiresAt = timePtr(verifyExp)
	i.ResetTokenHash = reset.String
	i.ResetTokenExpiresAt = timePtr(resetExp)
	return &i, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// Create inserts identity and fills in its ID and timestamps. A duplicate
// email yields common.ErrorConflict.
func (r *PostgresRepository) Create(ctx context.Context, identity *models.Identity) (*models.Identity, error) {
	query :=
		`INSERT INTO identities (email, name, password_hash, register_method, email_verified,
		 password_method_linked, role, profile, last_login_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id, created_at, updated_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		identity.Email, identity.Name, nullString(identity.PasswordHash), string(identity.RegisterMethod),
		identity.EmailVerified, identity.PasswordMethodLinked, string(identity.Role), identity.Profile,
		nullTime(identity.LastLoginAt),
	).Scan(&identity.ID, &identity.CreatedAt, &identity.UpdatedAt)

	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: email already registered", common.ErrorConflict)
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return identity, nil
}

func (r *PostgresRepository) getOne(ctx context.Context, where string, arg any) (*models.Identity, error) {
	query := `SELECT ` + identityColumns + ` FROM identities WHERE ` + where

	identity, err := scanIdentity(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return identity, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Identity, error) {
	return r.getOne(ctx, `id = $1`, id)
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*models.Identity, error) {
	return r.getOne(ctx, `email = $1`, email)
}

func (r *PostgresRepository) List(ctx context.Context, limit, offset int) ([]*models.Identity, error) {
	query := `SELECT ` + identityColumns + ` FROM identities
		 ORDER BY created_at, id
		 LIMIT $1 OFFSET $2`

	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Identity
	for rows.Next() {
		identity, err := scanIdentity(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, identity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

// execOne runs an UPDATE/DELETE expected to touch exactly one row and
// returns notAffected when it touched none.
func (r *PostgresRepository) execOne(ctx context.Context, notAffected error, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return fmt.Errorf("%w: email already registered", common.ErrorConflict)
		}
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return notAffected
	}
	return nil
}

func (r *PostgresRepository) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	return r.execOne(ctx, common.ErrorNotFound,
		`UPDATE identities SET last_login_at = $2, updated_at = now() WHERE id = $1`, id, at)
}

func (r *PostgresRepository) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	return r.execOne(ctx, common.ErrorNotFound,
		`UPDATE identities SET password_hash = $2, updated_at = now() WHERE id = $1`, id, hash)
}

// LinkPassword attaches a password to a federated identity exactly once.
// It returns common.ErrorInvalidState when the identity is not federated or
// is already linked.
func (r *PostgresRepository) LinkPassword(ctx context.Context, id, hash string) error {
	return r.execOne(ctx, common.ErrorInvalidState,
		`UPDATE identities SET password_hash = $2, password_method_linked = TRUE, updated_at = now()
		 WHERE id = $1 AND register_method = 'federated' AND password_method_linked = FALSE`, id, hash)
}

func (r *PostgresRepository) UpdateProfile(ctx context.Context, identity *models.Identity) error {
	return r.execOne(ctx, common.ErrorNotFound,
		`UPDATE identities SET name = $2, email = $3, profile = $4, email_verified = $5, updated_at = now()
		 WHERE id = $1`,
		identity.ID, identity.Name, identity.Email, identity.Profile, identity.EmailVerified)
}

func (r *PostgresRepository) SetRole(ctx context.Context, id string, role models.Role) error {
	return r.execOne(ctx, common.ErrorNotFound,
		`UPDATE identities SET role = $2, updated_at = now() WHERE id = $1`, id, string(role))
}

// SetVerifyCode replaces any pending code and resets its failure count.
// Hash and expiry change together.
func (r *PostgresRepository) SetVerifyCode(ctx context.Context, id, hash string, expiresAt time.Time) error {
	return r.execOne(ctx, common.ErrorNotFound,
		`UPDATE identities SET verify_code_hash = $2, verify_code_expires_at = $3, verify_code_failures = 0,
		 updated_at = now()
		 WHERE id = $1`, id, hash, expiresAt)
}

// ConsumeVerifyCode marks the email verified and clears the pending code,
// but only while hash is still the pending one.
func (r *PostgresRepository) ConsumeVerifyCode(ctx context.Context, id, hash string) error {
	return r.execOne(ctx, common.ErrorNotFound,
		`UPDATE identities SET email_verified = TRUE, verify_code_hash = NULL, verify_code_expires_at = NULL,
		 verify_code_failures = 0, updated_at = now()
		 WHERE id = $1 AND verify_code_hash = $2`, id, hash)
}

// RecordVerifyCodeFailure counts a wrong guess against the pending code and
// clears the code in the same statement once maxFailures is reached. It
// reports whether the code was cleared.
func (r *PostgresRepository) RecordVerifyCodeFailure(ctx context.Context, id, hash string, maxFailures int) (bool, error) {
	query :=
		`UPDATE identities SET
		 verify_code_failures = verify_code_failures + 1,
		 verify_code_hash = CASE WHEN verify_code_failures + 1 >= $3 THEN NULL ELSE verify_code_hash END,
		 verify_code_expires_at = CASE WHEN verify_code_failures + 1 >= $3 THEN NULL ELSE verify_code_expires_at END,
		 updated_at = now()
		 WHERE id = $1 AND verify_code_hash = $2
		 RETURNING verify_code_hash IS NULL`

	var cleared bool
	err := r.db.QueryRowContext(ctx, query, id, hash, maxFailures).Scan(&cleared)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, common.ErrorNotFound
		}
		return false, fmt.Errorf("db error: %w", err)
	}
	return cleared, nil
}

// SetResetToken replaces any pending reset token. Hash and expiry change together.
func (r *PostgresRepository) SetResetToken(ctx context.Context, id, hash string, expiresAt time.Time) error {
	return r.execOne(ctx, common.ErrorNotFound,
		`UPDATE identities SET reset_token_hash = $2, reset_token_expires_at = $3, updated_at = now()
		 WHERE id = $1`, id, hash, expiresAt)
}

// ConsumeResetToken swaps the password hash and clears the pending token,
// but only while tokenHash is still the pending one.
func (r *PostgresRepository) ConsumeResetToken(ctx context.Context, id, tokenHash, newPasswordHash string) error {
	return r.execOne(ctx, common.ErrorNotFound,
		`UPDATE identities SET password_hash = $3, reset_token_hash = NULL, reset_token_expires_at = NULL,
		 updated_at = now()
		 WHERE id = $1 AND reset_token_hash = $2`, id, tokenHash, newPasswordHash)
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	return r.execOne(ctx, common.ErrorNotFound, `DELETE FROM identities WHERE id = $1`, id)
}
