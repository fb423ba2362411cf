package identities

import (
	"context"
	"time"

	"github.com/dmitrijs2005/safepass/internal/server/models"
)

// Repository persists identities. Proof hash/expiry pairs are always written
// by a single statement, and the Consume* methods are conditional on the
// presented hash still being the stored one; they return common.ErrorNotFound
// when it is not. RecordVerifyCodeFailure follows the same rule.
type Repository interface {
	Create(ctx context.Context, identity *models.Identity) (*models.Identity, error)
	GetByID(ctx context.Context, id string) (*models.Identity, error)
	GetByEmail(ctx context.Context, email string) (*models.Identity, error)
	List(ctx context.Context, limit, offset int) ([]*models.Identity, error)

	TouchLastLogin(ctx context.Context, id string, at time.Time) error
	UpdatePasswordHash(ctx context.Context, id, hash string) error
	LinkPassword(ctx context.Context, id, hash string) error
	UpdateProfile(ctx context.Context, identity *models.Identity) error
	SetRole(ctx context.Context, id string, role models.Role) error

	SetVerifyCode(ctx context.Context, id, hash string, expiresAt time.Time) error
	ConsumeVerifyCode(ctx context.Context, id, hash string) error
	RecordVerifyCodeFailure(ctx context.Context, id, hash string, maxFailures int) (bool, error)
	SetResetToken(ctx context.Context, id, hash string, expiresAt time.Time) error
	ConsumeResetToken(ctx context.Context, id, tokenHash, newPasswordHash string) error

	Delete(ctx context.Context, id string) error
}
