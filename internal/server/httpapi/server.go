// Package httpapi exposes the SafePass services over JSON/HTTP. Sessions
// travel in an HttpOnly cookie (or a Bearer header for non-browser clients).
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dmitrijs2005/safepass/internal/logging"
	"github.com/dmitrijs2005/safepass/internal/server/models"
	"github.com/dmitrijs2005/safepass/internal/server/ratelimit"
	"github.com/dmitrijs2005/safepass/internal/server/services"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

// IdentityService is the subset of services.IdentityService used by handlers.
type IdentityService interface {
	Register(ctx context.Context, name, email, password string) (*models.PublicIdentity, string, error)
	Login(ctx context.Context, email, password string) (*models.PublicIdentity, string, error)
	FederatedLogin(ctx context.Context, email, name, profile string) (*models.PublicIdentity, string, error)
	VerifySession(ctx context.Context, token string) (*models.Identity, error)
	ChangePassword(ctx context.Context, identity *models.Identity, oldPassword, newPassword string) error
	LinkPasswordMethod(ctx context.Context, identity *models.Identity, password string) error
	UpdateProfile(ctx context.Context, identity *models.Identity, patch services.ProfilePatch) (*models.PublicIdentity, error)
	DeleteIdentity(ctx context.Context, identity *models.Identity) error
	ListIdentities(ctx context.Context, limit, offset int) ([]*models.PublicIdentity, error)
}

// RecoveryService is the subset of services.RecoveryService used by handlers.
type RecoveryService interface {
	IssueVerificationCode(ctx context.Context, identity *models.Identity) error
	ConsumeVerificationCode(ctx context.Context, identity *models.Identity, code string) (*models.PublicIdentity, error)
	IssueResetToken(ctx context.Context, email string) error
	ConsumeResetToken(ctx context.Context, token, newPassword string) error
}

// VaultService is the subset of services.VaultService used by handlers.
type VaultService interface {
	Create(ctx context.Context, identity *models.Identity, in services.NewRecord) (*models.RecordView, error)
	List(ctx context.Context, identity *models.Identity, filter services.ListFilter) ([]*models.RecordView, error)
	Get(ctx context.Context, identity *models.Identity, id string) (*models.RecordView, error)
	Edit(ctx context.Context, identity *models.Identity, id string, patch services.RecordPatch) (*models.RecordView, error)
	Delete(ctx context.Context, identity *models.Identity, id string) error
}

// AvatarService is the subset of services.AvatarService used by handlers.
type AvatarService interface {
	PresignUpload(ctx context.Context, identity *models.Identity, contentType string) (*services.AvatarUpload, error)
	PresignDownload(ctx context.Context, identity *models.Identity) (string, error)
}

// Pinger reports storage liveness for /healthz.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Deps groups the collaborators of the HTTP server.
type Deps struct {
	Identities IdentityService
	Recovery   RecoveryService
	Vault      VaultService
	Avatars    AvatarService
	Limiter    ratelimit.Limiter
	DB         Pinger
	Registry   *prometheus.Registry
}

// Options carries the HTTP-facing settings.
type Options struct {
	AllowedOrigins  []string
	FederationKey   string
	SessionTTL      time.Duration
	CookieDomain    string
	CookieSameSite  string
	CookieSecure    bool
	ShutdownTimeout time.Duration

	// TrustProxyHeaders takes the client address from X-Forwarded-For or
	// X-Real-IP. Rate limit keys follow it.
	TrustProxyHeaders bool
	// MetricsAddr, when set, also serves /metrics there without auth.
	MetricsAddr string
}

type Server struct {
	address    string
	logger     logging.Logger
	identities IdentityService
	recovery   RecoveryService
	vault      VaultService
	avatars    AvatarService
	limiter    ratelimit.Limiter
	db         Pinger
	metrics    *metrics
	opts       Options
	handler    http.Handler
}

// NewServer builds the server and its router. A nil Limiter disables rate
// limiting and a nil Registry gets a fresh one.
func NewServer(addr string, l logging.Logger, deps Deps, opts Options) *Server {
	if deps.Limiter == nil {
		deps.Limiter = ratelimit.Noop{}
	}
	if deps.Registry == nil {
		deps.Registry = prometheus.NewRegistry()
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}

	s := &Server{
		address:    addr,
		logger:     l.With("module", "http_server"),
		identities: deps.Identities,
		recovery:   deps.Recovery,
		vault:      deps.Vault,
		avatars:    deps.Avatars,
		limiter:    deps.Limiter,
		db:         deps.DB,
		metrics:    newMetrics(deps.Registry),
		opts:       opts,
	}
	s.handler = s.routes()
	return s
}

// Handler returns the root handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves the API, and the metrics listener when configured, until ctx
// is cancelled, then shuts both down gracefully. A listener that fails
// stops the other.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return s.serve(ctx, "HTTP", s.address, s.handler) })
	if s.opts.MetricsAddr != "" {
		g.Go(func() error { return s.serve(ctx, "metrics", s.opts.MetricsAddr, s.metrics.metricsRouter()) })
	}

	return g.Wait()
}

func (s *Server) serve(ctx context.Context, name, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	done := make(chan error, 1)
	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping "+name+" server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		done <- srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info(ctx, "Starting "+name+" server", "address", addr)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s server: %w", name, err)
	}

	return <-done
}
