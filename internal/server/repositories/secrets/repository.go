package secrets

import (
	"context"

	"github.com/dmitrijs2005/safepass/internal/server/models"
)

// Filter narrows ListByOwner. Empty fields match everything.
type Filter struct {
	Category models.Category
	Tag      string
}

// Repository persists vault records. Every read and write is scoped by
// owner; a record owned by someone else is reported as common.ErrorNotFound.
type Repository interface {
	Create(ctx context.Context, record *models.SecretRecord) (*models.SecretRecord, error)
	GetByID(ctx context.Context, ownerID, id string) (*models.SecretRecord, error)
	ListByOwner(ctx context.Context, ownerID string, filter Filter) ([]*models.SecretRecord, error)
	Update(ctx context.Context, record *models.SecretRecord) error
	Delete(ctx context.Context, ownerID, id string) error
	DeleteByOwner(ctx context.Context, ownerID string) (int64, error)
}
