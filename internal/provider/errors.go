package provider

import "errors"

var (
	// ErrUnknownKind is returned for a provider kind with no implementation
	ErrUnknownKind = errors.New("provider: unknown provider kind")
	// ErrIncompleteSettings is returned when connector settings lack credentials
	ErrIncompleteSettings = errors.New("provider: incomplete connector settings")
	// ErrConnectorUnavailable is returned when no builder is registered for a kind
	ErrConnectorUnavailable = errors.New("provider: no connector registered")
	// ErrRefreshUnsupported is returned by providers whose tokens never expire
	ErrRefreshUnsupported = errors.New("provider: token refresh not supported")
	// ErrUnauthorized is returned when the provider rejects the stored token;
	// the user must reconnect
	ErrUnauthorized = errors.New("provider: token rejected, reconnect required")
	// ErrNotFound is returned when the provider reports the activity does not exist
	ErrNotFound = errors.New("provider: activity not found")
)
