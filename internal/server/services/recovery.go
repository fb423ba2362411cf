package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/safepass/internal/clock"
	"github.com/dmitrijs2005/safepass/internal/common"
	"github.com/dmitrijs2005/safepass/internal/cryptox"
	"github.com/dmitrijs2005/safepass/internal/logging"
	"github.com/dmitrijs2005/safepass/internal/server/auth"
	"github.com/dmitrijs2005/safepass/internal/server/config"
	"github.com/dmitrijs2005/safepass/internal/server/models"
	"github.com/dmitrijs2005/safepass/internal/server/notify"
	"github.com/dmitrijs2005/safepass/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/safepass/internal/validate"
)

// RecoveryService issues and consumes single-use proofs: email verification
// codes and password reset tokens. Only hashes of the proofs are stored, each
// paired with an absolute expiry.
type RecoveryService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	hasher      *cryptox.Hasher
	tokens      *auth.TokenIssuer
	notifier    notify.Notifier
	clock       clock.Clock
	logger      logging.Logger
	policy      validate.PasswordPolicy

	frontendURL        string
	verifyCodeTTL      time.Duration
	verifyMaxFailures  int
	resetTTL           time.Duration
	disclosesUnknownID bool
}

// NewRecoveryService constructs a RecoveryService using repositories,
// collaborators and server config.
func NewRecoveryService(db *sql.DB, m repomanager.RepositoryManager, hasher *cryptox.Hasher, tokens *auth.TokenIssuer,
	notifier notify.Notifier, c clock.Clock, logger logging.Logger, cfg *config.Config) *RecoveryService {
	return &RecoveryService{
		db:                 db,
		repomanager:        m,
		hasher:             hasher,
		tokens:             tokens,
		notifier:           notifier,
		clock:              c,
		logger:             logger.With("module", "recovery"),
		policy:             validate.DefaultPasswordPolicy,
		frontendURL:        strings.TrimRight(cfg.FrontendURL, "/"),
		verifyCodeTTL:      cfg.VerifyCodeTTL,
		verifyMaxFailures:  cfg.VerifyCodeMaxFailures,
		resetTTL:           cfg.ResetTokenTTL,
		disclosesUnknownID: cfg.ResetDisclosesUnknownEmail,
	}
}

// IssueVerificationCode sends a fresh six-digit code to the identity's
// email. Issuing again replaces any pending code.
func (s *RecoveryService) IssueVerificationCode(ctx context.Context, identity *models.Identity) error {
	if identity.EmailVerified {
		return fmt.Errorf("%w: email already verified", common.ErrorConflict)
	}

	code, err := common.RandomDigits(common.VerificationCodeDigits)
	if err != nil {
		return fmt.Errorf("%w: generating code: %v", common.ErrorInternal, err)
	}
	hash, err := s.hasher.Hash(code)
	if err != nil {
		return fmt.Errorf("%w: hashing code: %v", common.ErrorInternal, err)
	}

	expiresAt := s.clock.Now().Add(s.verifyCodeTTL)
	if err := s.repomanager.Identities(s.db).SetVerifyCode(ctx, identity.ID, hash, expiresAt); err != nil {
		return storeError("storing verification code", err)
	}
	identity.VerifyCodeHash = hash
	identity.VerifyCodeExpiresAt = &expiresAt

	err = s.notifier.Send(ctx, identity.Email, notify.KindVerifyCode, map[string]string{
		notify.KeyName: identity.Name,
		notify.KeyCode: code,
		notify.KeyTTL:  humanDuration(s.verifyCodeTTL),
	})
	if err != nil {
		return fmt.Errorf("%w: sending verification code: %v", common.ErrorDependency, err)
	}

	s.logger.Info(ctx, "verification code issued", "identity_id", identity.ID)
	return nil
}

// ConsumeVerificationCode marks the email verified when code matches the
// pending one. The code stays valid up to and including its expiry instant.
// Each wrong guess is counted and the code is discarded once the configured
// number of failures is reached.
func (s *RecoveryService) ConsumeVerificationCode(ctx context.Context, identity *models.Identity, code string) (*models.PublicIdentity, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, invalidInput("code is required")
	}
	if identity.VerifyCodeHash == "" || identity.VerifyCodeExpiresAt == nil {
		return nil, common.ErrorUnauthorized
	}
	if s.clock.Now().After(*identity.VerifyCodeExpiresAt) {
		return nil, fmt.Errorf("%w: verification code expired", common.ErrorGone)
	}
	if !s.hasher.Verify(code, identity.VerifyCodeHash) {
		return nil, s.verifyCodeMiss(ctx, identity)
	}

	err := s.repomanager.Identities(s.db).ConsumeVerifyCode(ctx, identity.ID, identity.VerifyCodeHash)
	if errors.Is(err, common.ErrorNotFound) {
		// consumed or replaced since it was read
		return nil, common.ErrorUnauthorized
	}
	if err != nil {
		return nil, storeError("consuming verification code", err)
	}
	identity.EmailVerified = true
	identity.VerifyCodeHash = ""
	identity.VerifyCodeExpiresAt = nil

	s.logger.Info(ctx, "email verified", "identity_id", identity.ID)
	sendBestEffort(ctx, s.notifier, s.logger, s.frontendURL, identity, notify.KindVerifySuccess, nil)

	return identity.Public(), nil
}

func (s *RecoveryService) verifyCodeMiss(ctx context.Context, identity *models.Identity) error {
	cleared, err := s.repomanager.Identities(s.db).RecordVerifyCodeFailure(ctx, identity.ID, identity.VerifyCodeHash, s.verifyMaxFailures)
	if errors.Is(err, common.ErrorNotFound) {
		return common.ErrorUnauthorized
	}
	if err != nil {
		return storeError("recording failed verification", err)
	}
	if !cleared {
		return common.ErrorUnauthorized
	}

	identity.VerifyCodeHash = ""
	identity.VerifyCodeExpiresAt = nil
	s.logger.Warn(ctx, "verification code discarded after repeated failures", "identity_id", identity.ID)
	return fmt.Errorf("%w: too many failed attempts, request a new code", common.ErrorUnauthorized)
}

// IssueResetToken mails a password reset link to email. For an unknown
// email it returns nil without sending, unless the service is configured
// to disclose that with common.ErrorNotFound. Federated identities without
// a linked password are treated the same way but disclosed as
// common.ErrorInvalidState: they add a password through the link flow.
func (s *RecoveryService) IssueResetToken(ctx context.Context, email string) error {
	email = validate.NormalizeEmail(email)
	if !validate.IsEmail(email) {
		return invalidInput("invalid email")
	}

	repo := s.repomanager.Identities(s.db)
	identity, err := repo.GetByEmail(ctx, email)
	if errors.Is(err, common.ErrorNotFound) {
		s.logger.Info(ctx, "reset requested for unknown email", "email", logging.MaskEmail(email))
		if s.disclosesUnknownID {
			return common.ErrorNotFound
		}
		return nil
	}
	if err != nil {
		return storeError("loading identity", err)
	}
	if !identity.CanUsePassword() {
		s.logger.Info(ctx, "reset requested for identity without password", "identity_id", identity.ID)
		if s.disclosesUnknownID {
			return errNoPasswordMethod
		}
		return nil
	}

	token, expiresAt, err := s.tokens.IssueReset(identity.ID)
	if err != nil {
		return fmt.Errorf("%w: signing reset token: %v", common.ErrorInternal, err)
	}
	hash, err := s.hasher.Hash(token)
	if err != nil {
		return fmt.Errorf("%w: hashing reset token: %v", common.ErrorInternal, err)
	}
	if err := repo.SetResetToken(ctx, identity.ID, hash, expiresAt); err != nil {
		return storeError("storing reset token", err)
	}

	link := s.frontendURL + "/reset-password?token=" + url.QueryEscape(token)
	err = s.notifier.Send(ctx, identity.Email, notify.KindResetLink, map[string]string{
		notify.KeyName: identity.Name,
		notify.KeyLink: link,
		notify.KeyTTL:  humanDuration(s.resetTTL),
	})
	if err != nil {
		return fmt.Errorf("%w: sending reset link: %v", common.ErrorDependency, err)
	}

	s.logger.Info(ctx, "reset token issued", "identity_id", identity.ID)
	return nil
}

// ConsumeResetToken sets a new password when token is both a valid signed
// reset token and the one currently stored for its identity.
func (s *RecoveryService) ConsumeResetToken(ctx context.Context, token, newPassword string) error {
	if token == "" {
		return common.ErrorUnauthorized
	}
	id, err := s.tokens.ParseReset(token)
	if errors.Is(err, common.ErrTokenExpired) {
		return fmt.Errorf("%w: reset token expired", common.ErrorGone)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrorUnauthorized, err)
	}

	repo := s.repomanager.Identities(s.db)
	identity, err := repo.GetByID(ctx, id)
	if errors.Is(err, common.ErrorNotFound) {
		return common.ErrorUnauthorized
	}
	if err != nil {
		return storeError("loading identity", err)
	}
	if identity.ResetTokenHash == "" || identity.ResetTokenExpiresAt == nil {
		return common.ErrorUnauthorized
	}
	if !s.hasher.Verify(token, identity.ResetTokenHash) {
		return common.ErrorUnauthorized
	}
	if s.clock.Now().After(*identity.ResetTokenExpiresAt) {
		return fmt.Errorf("%w: reset token expired", common.ErrorGone)
	}
	if !identity.CanUsePassword() {
		return errNoPasswordMethod
	}

	if ok, reasons := s.policy.Validate(newPassword); !ok {
		return invalidInput("weak password: %s", strings.Join(reasons, ", "))
	}
	newHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("%w: hashing password: %v", common.ErrorInternal, err)
	}

	err = repo.ConsumeResetToken(ctx, identity.ID, identity.ResetTokenHash, newHash)
	if errors.Is(err, common.ErrorNotFound) {
		return common.ErrorUnauthorized
	}
	if err != nil {
		return storeError("consuming reset token", err)
	}

	s.logger.Info(ctx, "password reset", "identity_id", identity.ID)
	sendBestEffort(ctx, s.notifier, s.logger, s.frontendURL, identity, notify.KindResetSuccess, nil)
	return nil
}

// humanDuration renders d for mail copy, e.g. "4 hours" or "15 minutes".
func humanDuration(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		return plural(int(d/time.Hour), "hour")
	case d >= time.Minute:
		return plural(int(d/time.Minute), "minute")
	default:
		return plural(int(d/time.Second), "second")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
