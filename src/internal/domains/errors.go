package domains

import "errors"

var (
	ErrDomainAlreadyClaimed = errors.New("domain is already claimed")
	ErrInvalidDomainSyntax  = errors.New("invalid domain syntax")
	ErrDomainNotFound       = errors.New("domain not found")
	ErrDNSNotPropagated     = errors.New("dns records not yet propagated")
	ErrTokenMismatch        = errors.New("verification token mismatch")
	ErrVerificationTimedOut = errors.New("verification window exceeded")
	ErrPrimaryConflict      = errors.New("primary domain conflict")
	ErrIllegalTransition    = errors.New("illegal status transition")
	ErrUnknownDomain        = errors.New("unknown domain")
	ErrNotOwner             = errors.New("domain belongs to another tenant")
)

// IsRetryable reports whether a verification error is transient: it may
// clear up on a later attempt and must never advance the lifecycle to a
// terminal state by itself.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrDNSNotPropagated) || errors.Is(err, ErrTokenMismatch)
}
