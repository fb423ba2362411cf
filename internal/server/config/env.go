package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const envPrefix = "SAFEPASS_"

// parseEnv loads .env when present (existing variables win) and then reads
// SAFEPASS_* variables. Unparseable values are ignored.
func parseEnv(config *Config) {
	_ = godotenv.Load()

	envString(&config.HTTPAddr, "HTTP_ADDR")
	envString(&config.DatabaseDSN, "DATABASE_DSN")
	envBool(&config.MigrateOnStart, "MIGRATE_ON_START")
	envDuration(&config.ShutdownTimeout, "SHUTDOWN_TIMEOUT")
	envBool(&config.TrustProxyHeaders, "TRUST_PROXY_HEADERS")
	envString(&config.MetricsAddr, "METRICS_ADDR")
	envString(&config.SecretKey, "SECRET_KEY")
	envString(&config.VaultKey, "VAULT_KEY")
	envDuration(&config.SessionTTL, "SESSION_TTL")
	envDuration(&config.ResetTokenTTL, "RESET_TOKEN_TTL")
	envDuration(&config.VerifyCodeTTL, "VERIFY_CODE_TTL")
	envInt(&config.VerifyCodeMaxFailures, "VERIFY_CODE_MAX_FAILURES")
	envBool(&config.ResetDisclosesUnknownEmail, "RESET_DISCLOSES_UNKNOWN_EMAIL")
	envString(&config.FederationKey, "FEDERATION_KEY")
	envString(&config.AppName, "APP_NAME")
	envString(&config.FrontendURL, "FRONTEND_URL")
	if v, ok := lookup("ALLOWED_ORIGINS"); ok {
		config.AllowedOrigins = splitList(v)
	}
	envBool(&config.CookieSecure, "COOKIE_SECURE")
	envString(&config.CookieSameSite, "COOKIE_SAMESITE")
	envString(&config.CookieDomain, "COOKIE_DOMAIN")
	envString(&config.SMTPHost, "SMTP_HOST")
	envInt(&config.SMTPPort, "SMTP_PORT")
	envString(&config.SMTPUser, "SMTP_USER")
	envString(&config.SMTPPass, "SMTP_PASS")
	envString(&config.SMTPFrom, "SMTP_FROM")
	envString(&config.SMTPTLSMode, "SMTP_TLS_MODE")
	envString(&config.RedisAddr, "REDIS_ADDR")
	envString(&config.RedisPassword, "REDIS_PASSWORD")
	envInt(&config.RateLimitMax, "RATE_LIMIT_MAX")
	envDuration(&config.RateLimitWindow, "RATE_LIMIT_WINDOW")
	envString(&config.S3RootUser, "S3_ROOT_USER")
	envString(&config.S3RootPassword, "S3_ROOT_PASSWORD")
	envString(&config.S3Bucket, "S3_BUCKET")
	envString(&config.S3Region, "S3_REGION")
	envString(&config.S3BaseEndpoint, "S3_BASE_ENDPOINT")
	envString(&config.LogLevel, "LOG_LEVEL")
	envString(&config.LogFormat, "LOG_FORMAT")
}

func lookup(name string) (string, bool) {
	v, ok := os.LookupEnv(envPrefix + name)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func envString(dst *string, name string) {
	if v, ok := lookup(name); ok {
		*dst = v
	}
}

func envBool(dst *bool, name string) {
	if v, ok := lookup(name); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func envInt(dst *int, name string) {
	if v, ok := lookup(name); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envDuration(dst *time.Duration, name string) {
	if v, ok := lookup(name); ok {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
