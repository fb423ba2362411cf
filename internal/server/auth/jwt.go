// Package auth issues and verifies the signed tokens of the service: session
// tokens carried in the session cookie and password reset tokens delivered by
// mail. Both are HS256 JWTs; distinct audiences keep one kind from being
// accepted as the other.
package auth

import (
	"errors"
	"time"

	"github.com/dmitrijs2005/safepass/internal/clock"
	"github.com/dmitrijs2005/safepass/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	issuer = "safepass"

	AudienceSession = "session"
	AudienceReset   = "password-reset"
)

// Claims are the registered claims plus nothing else; the subject carries the
// identity ID and a random ID (jti) makes every token unique.
type Claims struct {
	jwt.RegisteredClaims
}

// TokenIssuer signs and parses tokens with one secret.
type TokenIssuer struct {
	secret   []byte
	clock    clock.Clock
	sessions time.Duration
	resets   time.Duration
}

// NewTokenIssuer returns an issuer with the given lifetimes for session and
// reset tokens.
func NewTokenIssuer(secret []byte, c clock.Clock, sessionTTL, resetTTL time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: secret, clock: c, sessions: sessionTTL, resets: resetTTL}
}

// SessionTTL is the lifetime of session tokens.
func (i *TokenIssuer) SessionTTL() time.Duration { return i.sessions }

// IssueSession returns a session token for identityID and its expiry.
func (i *TokenIssuer) IssueSession(identityID string) (string, time.Time, error) {
	return i.issue(identityID, AudienceSession, i.sessions)
}

// ParseSession returns the identity ID carried by a valid session token.
func (i *TokenIssuer) ParseSession(token string) (string, error) {
	return i.parse(token, AudienceSession)
}

// IssueReset returns a password reset token for identityID and its expiry.
func (i *TokenIssuer) IssueReset(identityID string) (string, time.Time, error) {
	return i.issue(identityID, AudienceReset, i.resets)
}

// ParseReset returns the identity ID carried by a valid reset token.
func (i *TokenIssuer) ParseReset(token string) (string, error) {
	return i.parse(token, AudienceReset)
}

func (i *TokenIssuer) issue(subject, audience string, ttl time.Duration) (string, time.Time, error) {
	now := i.clock.Now()
	exp := now.Add(ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	})

	tokenString, err := token.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return tokenString, exp, nil
}

// parse maps expiry to common.ErrTokenExpired and every other failure
// (signature, algorithm, audience, malformed input) to common.ErrInvalidToken.
func (i *TokenIssuer) parse(tokenString, audience string) (string, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(audience),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.clock.Now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", common.ErrTokenExpired
		}
		return "", common.ErrInvalidToken
	}

	if !token.Valid || claims.Subject == "" {
		return "", common.ErrInvalidToken
	}

	return claims.Subject, nil
}
