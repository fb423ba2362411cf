package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/safepass/internal/clock"
	"github.com/dmitrijs2005/safepass/internal/common"
	"github.com/dmitrijs2005/safepass/internal/cryptox"
	"github.com/dmitrijs2005/safepass/internal/dbx"
	"github.com/dmitrijs2005/safepass/internal/logging"
	"github.com/dmitrijs2005/safepass/internal/server/auth"
	"github.com/dmitrijs2005/safepass/internal/server/config"
	"github.com/dmitrijs2005/safepass/internal/server/models"
	"github.com/dmitrijs2005/safepass/internal/server/notify"
	"github.com/dmitrijs2005/safepass/internal/server/repositories/identities"
	"github.com/dmitrijs2005/safepass/internal/server/repositories/secrets"
	"github.com/google/uuid"
)

// --- identities ---

type fakeIdentities struct {
	mu   sync.Mutex
	byID map[string]*models.Identity
	// verifyFailures counts wrong guesses against the pending code.
	verifyFailures map[string]int

	// err, when set, is returned by every call.
	err error
	// beforeGetByEmail runs at the start of GetByEmail; a non-nil result is
	// returned instead of the lookup.
	beforeGetByEmail func(email string) error
	deleteErr        error
}

func newFakeIdentities() *fakeIdentities {
	return &fakeIdentities{byID: map[string]*models.Identity{}, verifyFailures: map[string]int{}}
}

func cloneIdentity(i *models.Identity) *models.Identity {
	c := *i
	return &c
}

func (f *fakeIdentities) put(i *models.Identity) *models.Identity {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	f.byID[i.ID] = cloneIdentity(i)
	return i
}

func (f *fakeIdentities) get(id string) *models.Identity {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i, ok := f.byID[id]; ok {
		return cloneIdentity(i)
	}
	return nil
}

func (f *fakeIdentities) emailTaken(email, exceptID string) bool {
	for _, i := range f.byID {
		if i.Email == email && i.ID != exceptID {
			return true
		}
	}
	return false
}

func (f *fakeIdentities) Create(_ context.Context, identity *models.Identity) (*models.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.emailTaken(identity.Email, "") {
		return nil, fmt.Errorf("%w: email already registered", common.ErrorConflict)
	}
	identity.ID = uuid.NewString()
	identity.CreatedAt = time.Now().UTC()
	identity.UpdatedAt = identity.CreatedAt
	f.byID[identity.ID] = cloneIdentity(identity)
	return identity, nil
}

func (f *fakeIdentities) GetByID(_ context.Context, id string) (*models.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	i, ok := f.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return cloneIdentity(i), nil
}

func (f *fakeIdentities) GetByEmail(_ context.Context, email string) (*models.Identity, error) {
	if f.beforeGetByEmail != nil {
		if err := f.beforeGetByEmail(email); err != nil {
			return nil, err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	for _, i := range f.byID {
		if i.Email == email {
			return cloneIdentity(i), nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeIdentities) List(_ context.Context, limit, offset int) ([]*models.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	all := make([]*models.Identity, 0, len(f.byID))
	for _, i := range f.byID {
		all = append(all, cloneIdentity(i))
	}
	sort.Slice(all, func(a, b int) bool { return all[a].Email < all[b].Email })
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (f *fakeIdentities) update(id string, fn func(i *models.Identity) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	i, ok := f.byID[id]
	if !ok {
		return common.ErrorNotFound
	}
	return fn(i)
}

func (f *fakeIdentities) TouchLastLogin(_ context.Context, id string, at time.Time) error {
	return f.update(id, func(i *models.Identity) error { i.LastLoginAt = &at; return nil })
}

func (f *fakeIdentities) UpdatePasswordHash(_ context.Context, id, hash string) error {
	return f.update(id, func(i *models.Identity) error { i.PasswordHash = hash; return nil })
}

func (f *fakeIdentities) LinkPassword(_ context.Context, id, hash string) error {
	return f.update(id, func(i *models.Identity) error {
		if i.RegisterMethod != models.MethodFederated || i.PasswordMethodLinked {
			return common.ErrorInvalidState
		}
		i.PasswordHash = hash
		i.PasswordMethodLinked = true
		return nil
	})
}

func (f *fakeIdentities) UpdateProfile(_ context.Context, identity *models.Identity) error {
	f.mu.Lock()
	taken := f.emailTaken(identity.Email, identity.ID)
	f.mu.Unlock()
	if taken {
		return fmt.Errorf("%w: email already registered", common.ErrorConflict)
	}
	return f.update(identity.ID, func(i *models.Identity) error {
		i.Name = identity.Name
		i.Email = identity.Email
		i.Profile = identity.Profile
		i.EmailVerified = identity.EmailVerified
		return nil
	})
}

func (f *fakeIdentities) SetRole(_ context.Context, id string, role models.Role) error {
	return f.update(id, func(i *models.Identity) error { i.Role = role; return nil })
}

func (f *fakeIdentities) SetVerifyCode(_ context.Context, id, hash string, expiresAt time.Time) error {
	return f.update(id, func(i *models.Identity) error {
		i.VerifyCodeHash = hash
		i.VerifyCodeExpiresAt = &expiresAt
		f.verifyFailures[id] = 0
		return nil
	})
}

func (f *fakeIdentities) RecordVerifyCodeFailure(_ context.Context, id, hash string, maxFailures int) (bool, error) {
	cleared := false
	err := f.update(id, func(i *models.Identity) error {
		if i.VerifyCodeHash == "" || i.VerifyCodeHash != hash {
			return common.ErrorNotFound
		}
		f.verifyFailures[id]++
		if f.verifyFailures[id] >= maxFailures {
			i.VerifyCodeHash = ""
			i.VerifyCodeExpiresAt = nil
			cleared = true
		}
		return nil
	})
	return cleared, err
}

func (f *fakeIdentities) ConsumeVerifyCode(_ context.Context, id, hash string) error {
	return f.update(id, func(i *models.Identity) error {
		if i.VerifyCodeHash != hash {
			return common.ErrorNotFound
		}
		i.EmailVerified = true
		i.VerifyCodeHash = ""
		i.VerifyCodeExpiresAt = nil
		f.verifyFailures[id] = 0
		return nil
	})
}

func (f *fakeIdentities) SetResetToken(_ context.Context, id, hash string, expiresAt time.Time) error {
	return f.update(id, func(i *models.Identity) error {
		i.ResetTokenHash = hash
		i.ResetTokenExpiresAt = &expiresAt
		return nil
	})
}

func (f *fakeIdentities) ConsumeResetToken(_ context.Context, id, tokenHash, newPasswordHash string) error {
	return f.update(id, func(i *models.Identity) error {
		if i.ResetTokenHash != tokenHash {
			return common.ErrorNotFound
		}
		i.PasswordHash = newPasswordHash
		i.ResetTokenHash = ""
		i.ResetTokenExpiresAt = nil
		return nil
	})
}

func (f *fakeIdentities) Delete(_ context.Context, id string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[id]; !ok {
		return common.ErrorNotFound
	}
	delete(f.byID, id)
	return nil
}

var _ identities.Repository = (*fakeIdentities)(nil)

// --- secrets ---

type fakeSecrets struct {
	mu   sync.Mutex
	byID map[string]*models.SecretRecord
	err  error
}

func newFakeSecrets() *fakeSecrets {
	return &fakeSecrets{byID: map[string]*models.SecretRecord{}}
}

func cloneRecord(r *models.SecretRecord) *models.SecretRecord {
	c := *r
	c.SecretCiphertext = append([]byte(nil), r.SecretCiphertext...)
	c.SecretNonce = append([]byte(nil), r.SecretNonce...)
	c.Tags = append([]string(nil), r.Tags...)
	return &c
}

func (f *fakeSecrets) siteTaken(ownerID, siteURL, exceptID string) bool {
	for _, r := range f.byID {
		if r.OwnerID == ownerID && r.SiteURL == siteURL && r.ID != exceptID {
			return true
		}
	}
	return false
}

func (f *fakeSecrets) Create(_ context.Context, record *models.SecretRecord) (*models.SecretRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.siteTaken(record.OwnerID, record.SiteURL, "") {
		return nil, fmt.Errorf("%w: a record for this site already exists", common.ErrorConflict)
	}
	record.ID = uuid.NewString()
	record.CreatedAt = time.Now().UTC()
	record.UpdatedAt = record.CreatedAt
	f.byID[record.ID] = cloneRecord(record)
	return record, nil
}

func (f *fakeSecrets) GetByID(_ context.Context, ownerID, id string) (*models.SecretRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	r, ok := f.byID[id]
	if !ok || r.OwnerID != ownerID {
		return nil, common.ErrorNotFound
	}
	return cloneRecord(r), nil
}

func (f *fakeSecrets) ListByOwner(_ context.Context, ownerID string, filter secrets.Filter) ([]*models.SecretRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []*models.SecretRecord
	for _, r := range f.byID {
		if r.OwnerID != ownerID {
			continue
		}
		if filter.Category != "" && r.Category != filter.Category {
			continue
		}
		if filter.Tag != "" && !contains(r.Tags, filter.Tag) {
			continue
		}
		out = append(out, cloneRecord(r))
	}
	sort.Slice(out, func(a, b int) bool { return out[a].SiteName < out[b].SiteName })
	return out, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (f *fakeSecrets) Update(_ context.Context, record *models.SecretRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	r, ok := f.byID[record.ID]
	if !ok || r.OwnerID != record.OwnerID {
		return common.ErrorNotFound
	}
	if f.siteTaken(record.OwnerID, record.SiteURL, record.ID) {
		return fmt.Errorf("%w: a record for this site already exists", common.ErrorConflict)
	}
	record.UpdatedAt = time.Now().UTC()
	f.byID[record.ID] = cloneRecord(record)
	return nil
}

func (f *fakeSecrets) Delete(_ context.Context, ownerID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	r, ok := f.byID[id]
	if !ok || r.OwnerID != ownerID {
		return common.ErrorNotFound
	}
	delete(f.byID, id)
	return nil
}

func (f *fakeSecrets) DeleteByOwner(_ context.Context, ownerID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	var n int64
	for id, r := range f.byID {
		if r.OwnerID == ownerID {
			delete(f.byID, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeSecrets) count(ownerID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.byID {
		if r.OwnerID == ownerID {
			n++
		}
	}
	return n
}

var _ secrets.Repository = (*fakeSecrets)(nil)

// --- manager ---

type fakeRepoManager struct {
	identities *fakeIdentities
	secrets    *fakeSecrets
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Identities(dbx.DBTX) identities.Repository    { return m.identities }
func (m *fakeRepoManager) Secrets(dbx.DBTX) secrets.Repository          { return m.secrets }

// --- notifier ---

type sentMessage struct {
	To   string
	Kind notify.Kind
	Subs map[string]string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
	// fail lists the kinds whose delivery fails.
	fail map[notify.Kind]bool
}

func (n *fakeNotifier) Send(_ context.Context, to string, kind notify.Kind, subs map[string]string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail[kind] {
		return errors.New("smtp down")
	}
	n.sent = append(n.sent, sentMessage{To: to, Kind: kind, Subs: subs})
	return nil
}

func (n *fakeNotifier) last(kind notify.Kind) (sentMessage, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.sent) - 1; i >= 0; i-- {
		if n.sent[i].Kind == kind {
			return n.sent[i], true
		}
	}
	return sentMessage{}, false
}

// --- wiring ---

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

const strongPassword = "Str0ng!pass"

type testEnv struct {
	db       *sql.DB
	mock     sqlmock.Sqlmock
	clock    *clock.Manual
	repos    *fakeRepoManager
	notifier *fakeNotifier
	hasher   *cryptox.Hasher
	tokens   *auth.TokenIssuer
	cfg      *config.Config

	identity *IdentityService
	recovery *RecoveryService
	vault    *VaultService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.SecretKey = "test-secret"
	cfg.FrontendURL = "https://app.example/"

	cipher, err := cryptox.NewCipher([]byte("0123456789abcdef0123456789abcdef"))
	if err != nil {
		t.Fatalf("NewCipher error: %v", err)
	}

	env := &testEnv{
		db:       db,
		mock:     mock,
		clock:    clock.NewManual(testNow),
		repos:    &fakeRepoManager{identities: newFakeIdentities(), secrets: newFakeSecrets()},
		notifier: &fakeNotifier{fail: map[notify.Kind]bool{}},
		hasher:   cryptox.NewHasher(cryptox.Params{Memory: 1024, Time: 1, Parallelism: 1}),
		cfg:      cfg,
	}
	env.tokens = auth.NewTokenIssuer([]byte(cfg.SecretKey), env.clock, cfg.SessionTTL, cfg.ResetTokenTTL)

	logger := logging.NewNop()
	env.identity = NewIdentityService(db, env.repos, env.hasher, env.tokens, env.notifier, env.clock, logger, cfg)
	env.recovery = NewRecoveryService(db, env.repos, env.hasher, env.tokens, env.notifier, env.clock, logger, cfg)
	env.vault = NewVaultService(db, env.repos, cipher, logger)
	return env
}

// register creates a password identity and returns its full record.
func (e *testEnv) register(t *testing.T, email string) *models.Identity {
	t.Helper()
	pub, _, err := e.identity.Register(context.Background(), "Alice", email, strongPassword)
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}
	return e.repos.identities.get(pub.ID)
}
