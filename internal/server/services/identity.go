// Package services contains server-side business logic: identity
// authentication and mutation, verification and recovery proofs, the
// encrypted vault and profile image uploads.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/safepass/internal/clock"
	"github.com/dmitrijs2005/safepass/internal/common"
	"github.com/dmitrijs2005/safepass/internal/cryptox"
	"github.com/dmitrijs2005/safepass/internal/dbx"
	"github.com/dmitrijs2005/safepass/internal/logging"
	"github.com/dmitrijs2005/safepass/internal/server/auth"
	"github.com/dmitrijs2005/safepass/internal/server/config"
	"github.com/dmitrijs2005/safepass/internal/server/models"
	"github.com/dmitrijs2005/safepass/internal/server/notify"
	"github.com/dmitrijs2005/safepass/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/safepass/internal/validate"
	"github.com/google/uuid"
)

// ProfilePatch carries the optional fields of a profile update. Nil fields
// are left unchanged.
type ProfilePatch struct {
	Name    *string
	Email   *string
	Profile *string
}

// IdentityService owns identity records:
// - Register / Login / FederatedLogin: authenticate and mint session tokens
// - VerifySession: resolve a session token to its identity
// - ChangePassword / LinkPasswordMethod / UpdateProfile / DeleteIdentity: mutation
type IdentityService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	hasher      *cryptox.Hasher
	tokens      *auth.TokenIssuer
	notifier    notify.Notifier
	clock       clock.Clock
	logger      logging.Logger
	policy      validate.PasswordPolicy
	frontendURL string
}

// NewIdentityService constructs an IdentityService using repositories,
// collaborators and server config.
func NewIdentityService(db *sql.DB, m repomanager.RepositoryManager, hasher *cryptox.Hasher, tokens *auth.TokenIssuer,
	notifier notify.Notifier, c clock.Clock, logger logging.Logger, cfg *config.Config) *IdentityService {
	return &IdentityService{
		db:          db,
		repomanager: m,
		hasher:      hasher,
		tokens:      tokens,
		notifier:    notifier,
		clock:       c,
		logger:      logger.With("module", "identity"),
		policy:      validate.DefaultPasswordPolicy,
		frontendURL: strings.TrimRight(cfg.FrontendURL, "/"),
	}
}

// Register creates a password identity and returns its public view and a
// session token. A duplicate email yields common.ErrorConflict.
func (s *IdentityService) Register(ctx context.Context, name, email, password string) (*models.PublicIdentity, string, error) {
	name = strings.TrimSpace(name)
	email = validate.NormalizeEmail(email)

	if name == "" {
		return nil, "", invalidInput("name is required")
	}
	if !validate.IsEmail(email) {
		return nil, "", invalidInput("invalid email")
	}
	if err := s.checkPassword(password); err != nil {
		return nil, "", err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, "", fmt.Errorf("%w: hashing password: %v", common.ErrorInternal, err)
	}

	now := s.clock.Now()
	identity, err := s.repomanager.Identities(s.db).Create(ctx, &models.Identity{
		Email:          email,
		Name:           name,
		PasswordHash:   hash,
		RegisterMethod: models.MethodPassword,
		Role:           models.RoleUser,
		LastLoginAt:    &now,
	})
	if err != nil {
		return nil, "", storeError("creating identity", err)
	}

	token, err := s.issueSession(identity.ID)
	if err != nil {
		return nil, "", err
	}

	s.logger.Info(ctx, "identity registered", "identity_id", identity.ID, "email", logging.MaskEmail(email))
	s.sendBestEffort(ctx, identity, notify.KindWelcome, nil)

	return identity.Public(), token, nil
}

// Login verifies a password and returns a session token.
//
// Unknown email yields common.ErrorNotFound, a federated identity without a
// linked password yields common.ErrorInvalidState and a wrong password
// yields common.ErrorUnauthorized.
func (s *IdentityService) Login(ctx context.Context, email, password string) (*models.PublicIdentity, string, error) {
	email = validate.NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, "", invalidInput("email and password are required")
	}

	repo := s.repomanager.Identities(s.db)
	identity, err := repo.GetByEmail(ctx, email)
	if err != nil {
		return nil, "", storeError("loading identity", err)
	}
	if !identity.CanUsePassword() {
		return nil, "", errNoPasswordMethod
	}
	if !s.hasher.Verify(password, identity.PasswordHash) {
		s.logger.Warn(ctx, "login rejected", "identity_id", identity.ID)
		return nil, "", common.ErrorUnauthorized
	}

	return s.completeLogin(ctx, identity)
}

// FederatedLogin signs in an identity asserted by a trusted provider,
// creating it on first use. An existing password identity with the same
// email yields common.ErrorConflict.
func (s *IdentityService) FederatedLogin(ctx context.Context, email, name, profile string) (*models.PublicIdentity, string, error) {
	email = validate.NormalizeEmail(email)
	name = strings.TrimSpace(name)
	if !validate.IsEmail(email) {
		return nil, "", invalidInput("invalid email")
	}

	repo := s.repomanager.Identities(s.db)
	identity, err := repo.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return s.federatedExisting(ctx, identity)
	case !errors.Is(err, common.ErrorNotFound):
		return nil, "", storeError("loading identity", err)
	}

	if name == "" {
		name = strings.SplitN(email, "@", 2)[0]
	}
	unusable, err := s.hasher.UnusableHash()
	if err != nil {
		return nil, "", fmt.Errorf("%w: hashing password: %v", common.ErrorInternal, err)
	}

	now := s.clock.Now()
	identity, err = repo.Create(ctx, &models.Identity{
		Email:          email,
		Name:           name,
		PasswordHash:   unusable,
		RegisterMethod: models.MethodFederated,
		EmailVerified:  true,
		Role:           models.RoleUser,
		Profile:        strings.TrimSpace(profile),
		LastLoginAt:    &now,
	})
	if errors.Is(err, common.ErrorConflict) {
		// a concurrent first login won the insert
		identity, err = repo.GetByEmail(ctx, email)
		if err != nil {
			return nil, "", storeError("loading identity", err)
		}
		return s.federatedExisting(ctx, identity)
	}
	if err != nil {
		return nil, "", storeError("creating identity", err)
	}

	token, err := s.issueSession(identity.ID)
	if err != nil {
		return nil, "", err
	}

	s.logger.Info(ctx, "federated identity created", "identity_id", identity.ID, "email", logging.MaskEmail(email))
	s.sendBestEffort(ctx, identity, notify.KindWelcome, nil)

	return identity.Public(), token, nil
}

func (s *IdentityService) federatedExisting(ctx context.Context, identity *models.Identity) (*models.PublicIdentity, string, error) {
	if identity.RegisterMethod != models.MethodFederated {
		return nil, "", fmt.Errorf("%w: account is registered with a password", common.ErrorConflict)
	}
	return s.completeLogin(ctx, identity)
}

func (s *IdentityService) completeLogin(ctx context.Context, identity *models.Identity) (*models.PublicIdentity, string, error) {
	now := s.clock.Now()
	if err := s.repomanager.Identities(s.db).TouchLastLogin(ctx, identity.ID, now); err != nil {
		return nil, "", storeError("updating last login", err)
	}
	identity.LastLoginAt = &now

	token, err := s.issueSession(identity.ID)
	if err != nil {
		return nil, "", err
	}
	s.logger.Info(ctx, "identity logged in", "identity_id", identity.ID, "method", string(identity.RegisterMethod))
	return identity.Public(), token, nil
}

// VerifySession resolves a session token to the identity it names.
func (s *IdentityService) VerifySession(ctx context.Context, token string) (*models.Identity, error) {
	if token == "" {
		return nil, common.ErrorUnauthorized
	}
	id, err := s.tokens.ParseSession(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorUnauthorized, err)
	}
	identity, err := s.repomanager.Identities(s.db).GetByID(ctx, id)
	if err != nil {
		return nil, storeError("loading identity", err)
	}
	return identity, nil
}

// Get returns the public view of the identity with the given ID.
func (s *IdentityService) Get(ctx context.Context, id string) (*models.PublicIdentity, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, common.ErrorNotFound
	}
	identity, err := s.repomanager.Identities(s.db).GetByID(ctx, id)
	if err != nil {
		return nil, storeError("loading identity", err)
	}
	return identity.Public(), nil
}

// ChangePassword replaces the password after checking the current one.
func (s *IdentityService) ChangePassword(ctx context.Context, identity *models.Identity, oldPassword, newPassword string) error {
	if oldPassword == newPassword {
		return invalidInput("new password must differ from the current one")
	}
	if err := s.checkPassword(newPassword); err != nil {
		return err
	}
	if !identity.CanUsePassword() {
		return errNoPasswordMethod
	}
	if !s.hasher.Verify(oldPassword, identity.PasswordHash) {
		return common.ErrorUnauthorized
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("%w: hashing password: %v", common.ErrorInternal, err)
	}
	if err := s.repomanager.Identities(s.db).UpdatePasswordHash(ctx, identity.ID, hash); err != nil {
		return storeError("updating password", err)
	}
	identity.PasswordHash = hash

	s.logger.Info(ctx, "password changed", "identity_id", identity.ID)
	return nil
}

// LinkPasswordMethod lets a federated identity also sign in with a
// password. It succeeds once; afterwards common.ErrorInvalidState is
// returned.
func (s *IdentityService) LinkPasswordMethod(ctx context.Context, identity *models.Identity, password string) error {
	if identity.RegisterMethod != models.MethodFederated || identity.PasswordMethodLinked {
		return fmt.Errorf("%w: password method already available", common.ErrorInvalidState)
	}
	if err := s.checkPassword(password); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("%w: hashing password: %v", common.ErrorInternal, err)
	}
	if err := s.repomanager.Identities(s.db).LinkPassword(ctx, identity.ID, hash); err != nil {
		return storeError("linking password", err)
	}
	identity.PasswordHash = hash
	identity.PasswordMethodLinked = true

	s.logger.Info(ctx, "password method linked", "identity_id", identity.ID)
	return nil
}

// UpdateProfile applies patch. Changing the email clears the verified flag.
func (s *IdentityService) UpdateProfile(ctx context.Context, identity *models.Identity, patch ProfilePatch) (*models.PublicIdentity, error) {
	updated := *identity

	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, invalidInput("name is required")
		}
		updated.Name = name
	}
	if patch.Email != nil {
		email := validate.NormalizeEmail(*patch.Email)
		if !validate.IsEmail(email) {
			return nil, invalidInput("invalid email")
		}
		if email != identity.Email {
			updated.Email = email
			updated.EmailVerified = false
		}
	}
	if patch.Profile != nil {
		updated.Profile = strings.TrimSpace(*patch.Profile)
	}

	if err := s.repomanager.Identities(s.db).UpdateProfile(ctx, &updated); err != nil {
		return nil, storeError("updating profile", err)
	}
	*identity = updated

	return identity.Public(), nil
}

// DeleteIdentity removes the identity and every vault record it owns in one
// transaction.
func (s *IdentityService) DeleteIdentity(ctx context.Context, identity *models.Identity) error {
	var removed int64
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		n, err := s.repomanager.Secrets(tx).DeleteByOwner(ctx, identity.ID)
		if err != nil {
			return storeError("deleting records", err)
		}
		removed = n
		if err := s.repomanager.Identities(tx).Delete(ctx, identity.ID); err != nil {
			return storeError("deleting identity", err)
		}
		return nil
	})
	if err != nil {
		return storeError("deleting identity", err)
	}

	s.logger.Info(ctx, "identity deleted", "identity_id", identity.ID, "records", removed)
	return nil
}

// ListIdentities returns a page of public identity views for administrators.
func (s *IdentityService) ListIdentities(ctx context.Context, limit, offset int) ([]*models.PublicIdentity, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	list, err := s.repomanager.Identities(s.db).List(ctx, limit, offset)
	if err != nil {
		return nil, storeError("listing identities", err)
	}
	result := make([]*models.PublicIdentity, 0, len(list))
	for _, identity := range list {
		result = append(result, identity.Public())
	}
	return result, nil
}

// PromoteToAdmin grants the admin role to the identity with the given email.
func (s *IdentityService) PromoteToAdmin(ctx context.Context, email string) (*models.PublicIdentity, error) {
	repo := s.repomanager.Identities(s.db)
	identity, err := repo.GetByEmail(ctx, validate.NormalizeEmail(email))
	if err != nil {
		return nil, storeError("loading identity", err)
	}
	if err := repo.SetRole(ctx, identity.ID, models.RoleAdmin); err != nil {
		return nil, storeError("updating role", err)
	}
	identity.Role = models.RoleAdmin

	s.logger.Info(ctx, "identity promoted", "identity_id", identity.ID)
	return identity.Public(), nil
}

// --- helpers below ---

func (s *IdentityService) checkPassword(password string) error {
	if ok, reasons := s.policy.Validate(password); !ok {
		return invalidInput("weak password: %s", strings.Join(reasons, ", "))
	}
	return nil
}

func (s *IdentityService) issueSession(id string) (string, error) {
	token, _, err := s.tokens.IssueSession(id)
	if err != nil {
		return "", fmt.Errorf("%w: signing session token: %v", common.ErrorInternal, err)
	}
	return token, nil
}

func (s *IdentityService) sendBestEffort(ctx context.Context, identity *models.Identity, kind notify.Kind, subs map[string]string) {
	sendBestEffort(ctx, s.notifier, s.logger, s.frontendURL, identity, kind, subs)
}

// sendBestEffort delivers a notice whose failure must not fail the primary
// operation; the error is logged and dropped.
func sendBestEffort(ctx context.Context, n notify.Notifier, logger logging.Logger, frontendURL string,
	identity *models.Identity, kind notify.Kind, subs map[string]string) {
	all := map[string]string{
		notify.KeyName:      identity.Name,
		notify.KeyLoginLink: frontendURL + "/login",
	}
	for k, v := range subs {
		all[k] = v
	}
	if err := n.Send(ctx, identity.Email, kind, all); err != nil {
		logger.Warn(ctx, "notification failed", "kind", string(kind), "identity_id", identity.ID, "error", err)
	}
}
