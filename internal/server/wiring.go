package server

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/safepass/internal/clock"
	"github.com/dmitrijs2005/safepass/internal/cryptox"
	"github.com/dmitrijs2005/safepass/internal/logging"
	"github.com/dmitrijs2005/safepass/internal/server/auth"
	"github.com/dmitrijs2005/safepass/internal/server/config"
	"github.com/dmitrijs2005/safepass/internal/server/notify"
	"github.com/dmitrijs2005/safepass/internal/server/ratelimit"
	"github.com/dmitrijs2005/safepass/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/safepass/internal/server/services"
	rdb "github.com/redis/go-redis/v9"
)

// Services groups the business services built from one configuration.
type Services struct {
	Identities *services.IdentityService
	Recovery   *services.RecoveryService
	Vault      *services.VaultService
	Avatars    *services.AvatarService
}

// NewServices builds every service on top of db. The operator CLI uses it
// too, so it must not start anything.
func NewServices(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, logger logging.Logger) (*Services, error) {
	cipher, err := cryptox.NewCipherFromBase64(cfg.VaultKey)
	if err != nil {
		return nil, fmt.Errorf("vault key: %w", err)
	}

	notifier, err := newNotifier(cfg, logger)
	if err != nil {
		return nil, err
	}

	c := clock.Real{}
	hasher := cryptox.NewHasher(cryptox.Params{
		Memory:      cfg.HashMemoryKiB,
		Time:        cfg.HashIterations,
		Parallelism: cfg.HashThreads,
	})
	tokens := auth.NewTokenIssuer([]byte(cfg.SecretKey), c, cfg.SessionTTL, cfg.ResetTokenTTL)

	return &Services{
		Identities: services.NewIdentityService(db, m, hasher, tokens, notifier, c, logger, cfg),
		Recovery:   services.NewRecoveryService(db, m, hasher, tokens, notifier, c, logger, cfg),
		Vault:      services.NewVaultService(db, m, cipher, logger),
		Avatars:    services.NewAvatarService(cfg, logger),
	}, nil
}

// newNotifier sends through SMTP when a host is configured and logs the
// rendered messages otherwise. Without SMTP, verification codes and reset
// links fail as undelivered.
func newNotifier(cfg *config.Config, logger logging.Logger) (notify.Notifier, error) {
	renderer, err := notify.NewRenderer(cfg.AppName)
	if err != nil {
		return nil, fmt.Errorf("mail templates: %w", err)
	}

	if cfg.SMTPHost == "" {
		return notify.NewLogNotifier(renderer, logger), nil
	}

	return notify.NewSMTPNotifier(notify.SMTPConfig{
		Host:    cfg.SMTPHost,
		Port:    cfg.SMTPPort,
		User:    cfg.SMTPUser,
		Pass:    cfg.SMTPPass,
		From:    cfg.SMTPFrom,
		TLSMode: cfg.SMTPTLSMode,
		Timeout: 10 * time.Second,
	}, renderer, logger), nil
}

// newLimiter returns the limiter and, for Redis, the client to close on
// shutdown.
func newLimiter(cfg *config.Config) (ratelimit.Limiter, *rdb.Client) {
	if cfg.RateLimitMax <= 0 || cfg.RateLimitWindow <= 0 {
		return ratelimit.Noop{}, nil
	}
	if cfg.RedisAddr == "" {
		return ratelimit.NewMemoryLimiter(cfg.RateLimitMax, cfg.RateLimitWindow), nil
	}

	client := rdb.NewClient(&rdb.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	return ratelimit.NewRedisLimiter(client, clock.Real{}, "safepass:rl:", cfg.RateLimitMax, cfg.RateLimitWindow), client
}
