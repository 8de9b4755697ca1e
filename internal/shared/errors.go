package shared

import "fmt"

var (
	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Token lifecycle errors
	ErrGrantRevoked   = fmt.Errorf("refresh grant revoked")
	ErrNoRefreshToken = fmt.Errorf("no refresh token available")
	ErrRefreshFailed  = fmt.Errorf("token refresh failed")

	// Persistence errors
	ErrUserNotFound     = fmt.Errorf("user not found")
	ErrRunNotFound      = fmt.Errorf("run not found")
	ErrAlreadyCommitted = fmt.Errorf("user already committed for run")

	// API and service errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)
