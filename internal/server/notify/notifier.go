// Package notify delivers the out-of-band messages of the identity flows:
// welcome, verification code, verification success, reset link and reset
// success. Messages are rendered from embedded templates and sent over SMTP.
package notify

import (
	"context"
	"errors"
)

// Kind selects the message template.
type Kind string

const (
	KindWelcome       Kind = "welcome"
	KindVerifyCode    Kind = "verify-code"
	KindVerifySuccess Kind = "verify-success"
	KindResetLink     Kind = "reset-link"
	KindResetSuccess  Kind = "reset-success"
)

// Substitution keys understood by the templates.
const (
	KeyName      = "name"
	KeyCode      = "code"
	KeyLink      = "link"
	KeyLoginLink = "loginLink"
	KeyTTL       = "ttl"
)

var (
	ErrUnknownKind  = errors.New("unknown notification kind")
	ErrNotDelivered = errors.New("notification not delivered")
)

// RequiresDelivery reports whether the message carries a proof the
// recipient needs, so that an undelivered message fails the flow.
func (k Kind) RequiresDelivery() bool {
	return k == KindVerifyCode || k == KindResetLink
}

// Notifier sends one message. Send makes a single synchronous attempt and
// reports its failure; retrying is up to the caller.
type Notifier interface {
	Send(ctx context.Context, to string, kind Kind, subs map[string]string) error
}
