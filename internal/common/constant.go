// Package common contains shared constants and sentinel errors used across
// SafePass components.
package common

const (
	// SessionCookieName is the cookie that carries the session token.
	SessionCookieName = "token"

	// FederationKeyHeader carries the shared key of a trusted identity
	// provider on federated login requests.
	FederationKeyHeader = "X-Federation-Key"

	// VerificationCodeDigits is the length of email verification codes.
	VerificationCodeDigits = 6
)
