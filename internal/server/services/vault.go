package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/safepass/internal/common"
	"github.com/dmitrijs2005/safepass/internal/cryptox"
	"github.com/dmitrijs2005/safepass/internal/logging"
	"github.com/dmitrijs2005/safepass/internal/server/models"
	"github.com/dmitrijs2005/safepass/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/safepass/internal/server/repositories/secrets"
	"github.com/dmitrijs2005/safepass/internal/validate"
	"github.com/google/uuid"
)

// MaxSecretLen caps the plaintext secret, in bytes.
const MaxSecretLen = 4096

const decryptFailed = "unable to decrypt secret"

// NewRecord is the input of VaultService.Create.
type NewRecord struct {
	SiteName string
	SiteURL  string
	Username string
	Secret   string
	Notes    string
	Category string
	Tags     []string
}

// RecordPatch carries the optional fields of VaultService.Edit. Nil fields
// are left unchanged.
type RecordPatch struct {
	SiteName *string
	SiteURL  *string
	Username *string
	Secret   *string
	Notes    *string
	Category *string
	Tags     *[]string
}

// ListFilter narrows VaultService.List. Empty fields match everything.
type ListFilter struct {
	Category string
	Tag      string
}

// VaultService stores per-identity credential records. Secrets are sealed
// with AES-256-GCM bound to the owner's ID before they reach the store and
// opened only for their owner.
type VaultService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	cipher      *cryptox.Cipher
	logger      logging.Logger
}

func NewVaultService(db *sql.DB, m repomanager.RepositoryManager, cipher *cryptox.Cipher, logger logging.Logger) *VaultService {
	return &VaultService{
		db:          db,
		repomanager: m,
		cipher:      cipher,
		logger:      logger.With("module", "vault"),
	}
}

// Create validates and encrypts in, then stores it. A second record for the
// same site URL of the same owner yields common.ErrorConflict.
func (s *VaultService) Create(ctx context.Context, identity *models.Identity, in NewRecord) (*models.RecordView, error) {
	record := &models.SecretRecord{
		OwnerID:  identity.ID,
		SiteName: strings.TrimSpace(in.SiteName),
		SiteURL:  strings.TrimSpace(in.SiteURL),
		Username: strings.TrimSpace(in.Username),
		Notes:    in.Notes,
		Tags:     models.NormalizeTags(in.Tags),
	}
	if record.SiteName == "" {
		return nil, invalidInput("site name is required")
	}
	if err := checkSiteURL(record.SiteURL); err != nil {
		return nil, err
	}
	if err := checkSecret(in.Secret); err != nil {
		return nil, err
	}
	category, ok := models.ParseCategory(in.Category)
	if !ok {
		return nil, invalidInput("unknown category %q", in.Category)
	}
	record.Category = category

	s.seal(record, in.Secret)

	created, err := s.repomanager.Secrets(s.db).Create(ctx, record)
	if err != nil {
		return nil, storeError("creating record", err)
	}

	s.logger.Info(ctx, "record created", "identity_id", identity.ID, "record_id", created.ID)
	return view(created, in.Secret, ""), nil
}

// List returns the owner's records with secrets decrypted. A record that
// cannot be decrypted is returned with Error set and no secret.
func (s *VaultService) List(ctx context.Context, identity *models.Identity, filter ListFilter) ([]*models.RecordView, error) {
	var f secrets.Filter
	if filter.Category != "" {
		category, ok := models.ParseCategory(filter.Category)
		if !ok {
			return nil, invalidInput("unknown category %q", filter.Category)
		}
		f.Category = category
	}
	f.Tag = strings.TrimSpace(filter.Tag)

	records, err := s.repomanager.Secrets(s.db).ListByOwner(ctx, identity.ID, f)
	if err != nil {
		return nil, storeError("listing records", err)
	}

	result := make([]*models.RecordView, 0, len(records))
	for _, r := range records {
		plain, err := s.open(r)
		if err != nil {
			s.logger.Error(ctx, "record decryption failed", "identity_id", identity.ID, "record_id", r.ID)
			result = append(result, view(r, "", decryptFailed))
			continue
		}
		result = append(result, view(r, plain, ""))
	}
	return result, nil
}

// Get returns one record of the owner. Malformed, missing and foreign IDs
// all yield common.ErrorNotFound.
func (s *VaultService) Get(ctx context.Context, identity *models.Identity, id string) (*models.RecordView, error) {
	record, err := s.load(ctx, identity, id)
	if err != nil {
		return nil, err
	}
	plain, err := s.open(record)
	if err != nil {
		s.logger.Error(ctx, "record decryption failed", "identity_id", identity.ID, "record_id", record.ID)
		return view(record, "", decryptFailed), nil
	}
	return view(record, plain, ""), nil
}

// Edit applies patch to one record of the owner. The secret is re-sealed
// only when the patch carries one.
func (s *VaultService) Edit(ctx context.Context, identity *models.Identity, id string, patch RecordPatch) (*models.RecordView, error) {
	record, err := s.load(ctx, identity, id)
	if err != nil {
		return nil, err
	}

	if patch.SiteName != nil {
		name := strings.TrimSpace(*patch.SiteName)
		if name == "" {
			return nil, invalidInput("site name is required")
		}
		record.SiteName = name
	}
	if patch.SiteURL != nil {
		u := strings.TrimSpace(*patch.SiteURL)
		if err := checkSiteURL(u); err != nil {
			return nil, err
		}
		record.SiteURL = u
	}
	if patch.Username != nil {
		record.Username = strings.TrimSpace(*patch.Username)
	}
	if patch.Notes != nil {
		record.Notes = *patch.Notes
	}
	if patch.Category != nil {
		category, ok := models.ParseCategory(*patch.Category)
		if !ok {
			return nil, invalidInput("unknown category %q", *patch.Category)
		}
		record.Category = category
	}
	if patch.Tags != nil {
		record.Tags = models.NormalizeTags(*patch.Tags)
	}

	var plain string
	if patch.Secret != nil {
		if err := checkSecret(*patch.Secret); err != nil {
			return nil, err
		}
		plain = *patch.Secret
		s.seal(record, plain)
	}

	if err := s.repomanager.Secrets(s.db).Update(ctx, record); err != nil {
		return nil, storeError("updating record", err)
	}
	s.logger.Info(ctx, "record updated", "identity_id", identity.ID, "record_id", record.ID)

	if patch.Secret != nil {
		return view(record, plain, ""), nil
	}
	plain, err = s.open(record)
	if err != nil {
		return view(record, "", decryptFailed), nil
	}
	return view(record, plain, ""), nil
}

// Delete removes one record of the owner.
func (s *VaultService) Delete(ctx context.Context, identity *models.Identity, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return common.ErrorNotFound
	}
	if err := s.repomanager.Secrets(s.db).Delete(ctx, identity.ID, id); err != nil {
		return storeError("deleting record", err)
	}
	s.logger.Info(ctx, "record deleted", "identity_id", identity.ID, "record_id", id)
	return nil
}

// --- helpers below ---

func (s *VaultService) load(ctx context.Context, identity *models.Identity, id string) (*models.SecretRecord, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, common.ErrorNotFound
	}
	record, err := s.repomanager.Secrets(s.db).GetByID(ctx, identity.ID, id)
	if err != nil {
		return nil, storeError("loading record", err)
	}
	return record, nil
}

func (s *VaultService) seal(record *models.SecretRecord, plain string) {
	record.SecretCiphertext, record.SecretNonce = s.cipher.Seal([]byte(plain), []byte(record.OwnerID))
}

func (s *VaultService) open(record *models.SecretRecord) (string, error) {
	plain, err := s.cipher.Open(record.SecretCiphertext, record.SecretNonce, []byte(record.OwnerID))
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

func checkSiteURL(u string) error {
	if u == "" {
		return invalidInput("site URL is required")
	}
	if !validate.IsAbsoluteURL(u) {
		return invalidInput("site URL must be absolute")
	}
	return nil
}

func checkSecret(secret string) error {
	if secret == "" {
		return invalidInput("secret is required")
	}
	if len(secret) > MaxSecretLen {
		return fmt.Errorf("%w: secret exceeds %d bytes", common.ErrorInvalidInput, MaxSecretLen)
	}
	return nil
}

func view(r *models.SecretRecord, plain, errMsg string) *models.RecordView {
	tags := r.Tags
	if tags == nil {
		tags = []string{}
	}
	return &models.RecordView{
		ID:        r.ID,
		SiteName:  r.SiteName,
		SiteURL:   r.SiteURL,
		Username:  r.Username,
		Secret:    plain,
		Notes:     r.Notes,
		Category:  r.Category,
		Tags:      tags,
		Error:     errMsg,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}
