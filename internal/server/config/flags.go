package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/safepass/internal/flagx"
)

// parseFlags overrides Config fields from single-letter command-line flags.
// Only the letters below are read from os.Args, so flags meant for other
// components (-c for the JSON file, for one) pass through untouched.
//
//	-a HTTP bind address       -d PostgreSQL DSN
//	-s JWT secret              -k vault key (base64, 32 bytes)
//	-t session TTL, minutes    -f frontend URL for mail links
//	-m SMTP host               -r Redis address for rate limiting
//	-u/-p S3 user/password     -b S3 bucket
//	-g S3 region               -e S3 endpoint
//	-l log level
//
// A malformed value panics, matching parseJson.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-s", "-k", "-t", "-f", "-m", "-r", "-u", "-p", "-b", "-g", "-e", "-l"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	fs.StringVar(&config.VaultKey, "k", config.VaultKey, "vault key (base64)")

	sessionTTL := fs.Int("t", int(config.SessionTTL.Minutes()), "session_ttl (in minutes)")

	fs.StringVar(&config.FrontendURL, "f", config.FrontendURL, "frontend base URL")
	fs.StringVar(&config.SMTPHost, "m", config.SMTPHost, "SMTP host")
	fs.StringVar(&config.RedisAddr, "r", config.RedisAddr, "Redis address")
	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 root bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 root region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.SessionTTL = time.Duration(*sessionTTL) * time.Minute
}
