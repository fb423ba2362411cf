package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/safepass/internal/flagx"
	"github.com/dmitrijs2005/safepass/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON unmarshalling.
// It uses timex.Duration for interval fields, which allows parsing both
// string values such as "15m" and integer nanoseconds. Pointer fields tell
// an explicit false/zero apart from an absent key.
type JsonConfig struct {
	HTTPAddr        string         `json:"http_addr"`
	DatabaseDSN     string         `json:"database_dsn"`
	MigrateOnStart  *bool          `json:"migrate_on_start"`
	ShutdownTimeout timex.Duration `json:"shutdown_timeout"`

	TrustProxyHeaders *bool  `json:"trust_proxy_headers"`
	MetricsAddr       string `json:"metrics_addr"`

	SecretKey     string         `json:"secret_key"`
	VaultKey      string         `json:"vault_key"`
	SessionTTL    timex.Duration `json:"session_ttl"`
	ResetTokenTTL timex.Duration `json:"reset_token_ttl"`
	VerifyCodeTTL timex.Duration `json:"verify_code_ttl"`

	VerifyCodeMaxFailures int `json:"verify_code_max_failures"`

	HashMemoryKiB  uint32 `json:"hash_memory_kib"`
	HashIterations uint32 `json:"hash_iterations"`
	HashThreads    uint8  `json:"hash_threads"`

	ResetDisclosesUnknownEmail *bool  `json:"reset_discloses_unknown_email"`
	FederationKey              string `json:"federation_key"`

	AppName        string   `json:"app_name"`
	FrontendURL    string   `json:"frontend_url"`
	AllowedOrigins []string `json:"allowed_origins"`

	CookieSecure   *bool  `json:"cookie_secure"`
	CookieSameSite string `json:"cookie_samesite"`
	CookieDomain   string `json:"cookie_domain"`

	SMTPHost    string `json:"smtp_host"`
	SMTPPort    int    `json:"smtp_port"`
	SMTPUser    string `json:"smtp_user"`
	SMTPPass    string `json:"smtp_pass"`
	SMTPFrom    string `json:"smtp_from"`
	SMTPTLSMode string `json:"smtp_tls_mode"`

	RedisAddr       string         `json:"redis_addr"`
	RedisPassword   string         `json:"redis_password"`
	RateLimitMax    int            `json:"rate_limit_max"`
	RateLimitWindow timex.Duration `json:"rate_limit_window"`

	S3RootUser     string `json:"s3_root_user"`
	S3RootPassword string `json:"s3_root_password"`
	S3Bucket       string `json:"s3_bucket"`
	S3Region       string `json:"s3_region"`
	S3BaseEndpoint string `json:"s3_base_endpoint"`

	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The file path comes from the -c or -config command-line flags. If neither
// is set, no JSON file is loaded. Keys absent from the file leave the current
// values untouched. If the file cannot be read or contains invalid JSON, the
// function panics.
func parseJson(config *Config) {

	jsonConfigFile := flagx.ConfigPath(os.Args[1:])

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setBool(&config.MigrateOnStart, c.MigrateOnStart)
	setDuration(&config.ShutdownTimeout, c.ShutdownTimeout)
	setBool(&config.TrustProxyHeaders, c.TrustProxyHeaders)
	setString(&config.MetricsAddr, c.MetricsAddr)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.VaultKey, c.VaultKey)
	setDuration(&config.SessionTTL, c.SessionTTL)
	setDuration(&config.ResetTokenTTL, c.ResetTokenTTL)
	setDuration(&config.VerifyCodeTTL, c.VerifyCodeTTL)
	if c.VerifyCodeMaxFailures != 0 {
		config.VerifyCodeMaxFailures = c.VerifyCodeMaxFailures
	}
	if c.HashMemoryKiB != 0 {
		config.HashMemoryKiB = c.HashMemoryKiB
	}
	if c.HashIterations != 0 {
		config.HashIterations = c.HashIterations
	}
	if c.HashThreads != 0 {
		config.HashThreads = c.HashThreads
	}
	setBool(&config.ResetDisclosesUnknownEmail, c.ResetDisclosesUnknownEmail)
	setString(&config.FederationKey, c.FederationKey)
	setString(&config.AppName, c.AppName)
	setString(&config.FrontendURL, c.FrontendURL)
	if c.AllowedOrigins != nil {
		config.AllowedOrigins = c.AllowedOrigins
	}
	setBool(&config.CookieSecure, c.CookieSecure)
	setString(&config.CookieSameSite, c.CookieSameSite)
	setString(&config.CookieDomain, c.CookieDomain)
	setString(&config.SMTPHost, c.SMTPHost)
	if c.SMTPPort != 0 {
		config.SMTPPort = c.SMTPPort
	}
	setString(&config.SMTPUser, c.SMTPUser)
	setString(&config.SMTPPass, c.SMTPPass)
	setString(&config.SMTPFrom, c.SMTPFrom)
	setString(&config.SMTPTLSMode, c.SMTPTLSMode)
	setString(&config.RedisAddr, c.RedisAddr)
	setString(&config.RedisPassword, c.RedisPassword)
	if c.RateLimitMax != 0 {
		config.RateLimitMax = c.RateLimitMax
	}
	setDuration(&config.RateLimitWindow, c.RateLimitWindow)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.LogFormat, c.LogFormat)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}
