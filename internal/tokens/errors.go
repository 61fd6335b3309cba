package tokens

import (
	"errors"
	"fmt"
)

// Reason tells the caller why no usable token exists, since the remediation
// differs: NeverAuthorized and RefreshRejected need a human to walk through
// the authorization handshake again, Expired means the tenant was set up
// with a static token that has run out.
type Reason string

const (
	ReasonNeverAuthorized Reason = "never_authorized"
	ReasonRefreshRejected Reason = "refresh_rejected"
	ReasonExpired         Reason = "expired"
)

type UnauthorizedError struct {
	TenantKey string
	Reason    Reason
	Cause     error
}

func (e *UnauthorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("tenant %s unauthorized (%s): %v", e.TenantKey, e.Reason, e.Cause)
	}
	return fmt.Sprintf("tenant %s unauthorized (%s)", e.TenantKey, e.Reason)
}

func (e *UnauthorizedError) Unwrap() error {
	return e.Cause
}

var (
	ErrAuthorizationNotPending = errors.New("no pending authorization for tenant")
	ErrCodeExchangeFailed      = errors.New("authorization code exchange failed")
)
