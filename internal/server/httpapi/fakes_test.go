package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/safepass/internal/common"
	"github.com/dmitrijs2005/safepass/internal/logging"
	"github.com/dmitrijs2005/safepass/internal/server/models"
	"github.com/dmitrijs2005/safepass/internal/server/ratelimit"
	"github.com/dmitrijs2005/safepass/internal/server/services"
	"github.com/stretchr/testify/require"
)

// ---- fakes ----

type fakeIdentities struct {
	sessions map[string]*models.Identity

	registerFn  func(name, email, password string) (*models.PublicIdentity, string, error)
	loginFn     func(email, password string) (*models.PublicIdentity, string, error)
	federatedFn func(email, name, profile string) (*models.PublicIdentity, string, error)
	updateFn    func(patch services.ProfilePatch) (*models.PublicIdentity, error)
	deleteErr   error
	changeErr   error
	linkErr     error

	listLimit, listOffset int
	list                  []*models.PublicIdentity
}

func (f *fakeIdentities) Register(_ context.Context, name, email, password string) (*models.PublicIdentity, string, error) {
	return f.registerFn(name, email, password)
}
func (f *fakeIdentities) Login(_ context.Context, email, password string) (*models.PublicIdentity, string, error) {
	return f.loginFn(email, password)
}
func (f *fakeIdentities) FederatedLogin(_ context.Context, email, name, profile string) (*models.PublicIdentity, string, error) {
	return f.federatedFn(email, name, profile)
}
func (f *fakeIdentities) VerifySession(_ context.Context, token string) (*models.Identity, error) {
	if token == "deleted-token" {
		return nil, common.ErrorNotFound
	}
	identity, ok := f.sessions[token]
	if !ok {
		return nil, common.ErrorUnauthorized
	}
	return identity, nil
}
func (f *fakeIdentities) ChangePassword(context.Context, *models.Identity, string, string) error {
	return f.changeErr
}
func (f *fakeIdentities) LinkPasswordMethod(context.Context, *models.Identity, string) error {
	return f.linkErr
}
func (f *fakeIdentities) UpdateProfile(_ context.Context, _ *models.Identity, patch services.ProfilePatch) (*models.PublicIdentity, error) {
	return f.updateFn(patch)
}
func (f *fakeIdentities) DeleteIdentity(context.Context, *models.Identity) error {
	return f.deleteErr
}
func (f *fakeIdentities) ListIdentities(_ context.Context, limit, offset int) ([]*models.PublicIdentity, error) {
	f.listLimit, f.listOffset = limit, offset
	return f.list, nil
}

type fakeRecovery struct {
	issueCodeErr   error
	consumeCodeErr error
	issueResetErr  error
	consumeErr     error

	gotCode, gotEmail, gotToken, gotPassword string
}

func (f *fakeRecovery) IssueVerificationCode(context.Context, *models.Identity) error {
	return f.issueCodeErr
}
func (f *fakeRecovery) ConsumeVerificationCode(_ context.Context, identity *models.Identity, code string) (*models.PublicIdentity, error) {
	f.gotCode = code
	if f.consumeCodeErr != nil {
		return nil, f.consumeCodeErr
	}
	p := identity.Public()
	p.EmailVerified = true
	return p, nil
}
func (f *fakeRecovery) IssueResetToken(_ context.Context, email string) error {
	f.gotEmail = email
	return f.issueResetErr
}
func (f *fakeRecovery) ConsumeResetToken(_ context.Context, token, password string) error {
	f.gotToken, f.gotPassword = token, password
	return f.consumeErr
}

type fakeVault struct {
	created  services.NewRecord
	filter   services.ListFilter
	gotID    string
	patch    services.RecordPatch
	owner    *models.Identity
	err      error
	records  []*models.RecordView
	returned *models.RecordView
}

func (f *fakeVault) Create(_ context.Context, identity *models.Identity, in services.NewRecord) (*models.RecordView, error) {
	f.owner, f.created = identity, in
	return f.returned, f.err
}
func (f *fakeVault) List(_ context.Context, identity *models.Identity, filter services.ListFilter) ([]*models.RecordView, error) {
	f.owner, f.filter = identity, filter
	return f.records, f.err
}
func (f *fakeVault) Get(_ context.Context, identity *models.Identity, id string) (*models.RecordView, error) {
	f.owner, f.gotID = identity, id
	return f.returned, f.err
}
func (f *fakeVault) Edit(_ context.Context, identity *models.Identity, id string, patch services.RecordPatch) (*models.RecordView, error) {
	f.owner, f.gotID, f.patch = identity, id, patch
	return f.returned, f.err
}
func (f *fakeVault) Delete(_ context.Context, identity *models.Identity, id string) error {
	f.owner, f.gotID = identity, id
	return f.err
}

type fakeAvatars struct {
	contentType string
	upload      *services.AvatarUpload
	url         string
	err         error
}

func (f *fakeAvatars) PresignUpload(_ context.Context, _ *models.Identity, contentType string) (*services.AvatarUpload, error) {
	f.contentType = contentType
	return f.upload, f.err
}
func (f *fakeAvatars) PresignDownload(context.Context, *models.Identity) (string, error) {
	return f.url, f.err
}

type fakeLimiter struct {
	res  ratelimit.Result
	err  error
	keys []string
}

func (f *fakeLimiter) Allow(_ context.Context, key string) (ratelimit.Result, error) {
	f.keys = append(f.keys, key)
	return f.res, f.err
}

type fakePinger struct{ err error }

func (f fakePinger) PingContext(context.Context) error { return f.err }

// ---- harness ----

var (
	alice = &models.Identity{ID: "id-alice", Email: "alice@example.com", Name: "Alice", Role: models.RoleUser, RegisterMethod: models.MethodPassword}
	admin = &models.Identity{ID: "id-admin", Email: "root@example.com", Name: "Root", Role: models.RoleAdmin, RegisterMethod: models.MethodPassword}
)

type testEnv struct {
	srv        *Server
	identities *fakeIdentities
	recovery   *fakeRecovery
	vault      *fakeVault
	avatars    *fakeAvatars
	limiter    *fakeLimiter
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	env := &testEnv{
		identities: &fakeIdentities{sessions: map[string]*models.Identity{
			"alice-token": alice,
			"admin-token": admin,
		}},
		recovery: &fakeRecovery{},
		vault:    &fakeVault{},
		avatars:  &fakeAvatars{},
		limiter:  &fakeLimiter{res: ratelimit.Result{Allowed: true}},
	}
	if opts.SessionTTL == 0 {
		opts.SessionTTL = 24 * time.Hour
	}
	if opts.CookieSameSite == "" {
		opts.CookieSameSite = "strict"
	}
	env.srv = NewServer("127.0.0.1:0", logging.NewNop(), Deps{
		Identities: env.identities,
		Recovery:   env.recovery,
		Vault:      env.vault,
		Avatars:    env.avatars,
		Limiter:    env.limiter,
		DB:         fakePinger{},
	}, opts)
	return env
}

type reqOpt func(*http.Request)

func withCookie(token string) reqOpt {
	return func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: common.SessionCookieName, Value: token})
	}
}

func withHeader(k, v string) reqOpt {
	return func(r *http.Request) { r.Header.Set(k, v) }
}

func (env *testEnv) do(t *testing.T, method, path, body string, opts ...reqOpt) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	for _, o := range opts {
		o(req)
	}
	rec := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rec, req)
	return rec.Result()
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
