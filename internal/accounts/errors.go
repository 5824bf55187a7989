package accounts

import "errors"

var (
	ErrInvalidConfig      = errors.New("invalid accounts configuration")
	ErrInvalidConfigType  = errors.New("invalid config type for accounts module")
	ErrPlaceholderSecret  = errors.New("jwt_secret is a placeholder, set JWT_SECRET or enable demo_mode")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInactiveUser       = errors.New("user account is inactive")
	ErrUsernameTaken      = errors.New("username already exists")
	ErrTokenInvalid       = errors.New("token is invalid")
	ErrTokenExpired       = errors.New("token is expired")
	ErrTokenRevoked       = errors.New("token has been revoked")
	ErrUnexpectedSigning  = errors.New("unexpected signing method")
	ErrServiceUnavailable = errors.New("required service unavailable")
)
