package service

import "errors"

// ErrorKind discriminates the failures produced by the auth core. Boundary
// handlers switch on the kind instead of on individual error values.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindHashing
	KindInvalidToken
	KindTokenExpired
	KindInvalidOrExpiredResetToken
	KindConflict
	KindUnauthorized
	KindValidation
)

func (k ErrorKind) String() string {
	switch k {
	case KindHashing:
		return "hashing"
	case KindInvalidToken:
		return "invalid_token"
	case KindTokenExpired:
		return "token_expired"
	case KindInvalidOrExpiredResetToken:
		return "invalid_or_expired_reset_token"
	case KindConflict:
		return "conflict"
	case KindUnauthorized:
		return "unauthorized"
	case KindValidation:
		return "validation"
	default:
		return "unknown"
	}
}

// Error is the tagged error returned by the auth core.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so the sentinels below work as kind
// matchers with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrHashing                    = &Error{Kind: KindHashing, Message: "password hashing failed"}
	ErrInvalidToken               = &Error{Kind: KindInvalidToken, Message: "invalid token"}
	ErrTokenExpired               = &Error{Kind: KindTokenExpired, Message: "token has expired"}
	ErrInvalidOrExpiredResetToken = &Error{Kind: KindInvalidOrExpiredResetToken, Message: "invalid or expired token"}
	ErrUserExists                 = &Error{Kind: KindConflict, Message: "user already exists"}
	ErrInvalidCredentials         = &Error{Kind: KindUnauthorized, Message: "invalid credentials"}
	ErrPasswordMismatch           = &Error{Kind: KindUnauthorized, Message: "old password is incorrect"}
	ErrWeakPassword               = &Error{Kind: KindValidation, Message: "password does not meet policy requirements"}
)

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func hashingError(err error) error {
	return &Error{Kind: KindHashing, Message: ErrHashing.Message, Err: err}
}

func weakPasswordError(err error) error {
	return &Error{Kind: KindValidation, Message: ErrWeakPassword.Message, Err: err}
}
