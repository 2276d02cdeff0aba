// Package provider defines the fitness-provider connector interface and the
// registry for instantiating provider implementations. Supported providers are
// Strava (OAuth2) and Garmin (OAuth 1.0a). New providers are added by
// implementing the Connector interface and registering a builder; the ingest
// and API layers never reference a concrete provider.
package provider

import (
	"context"
	"time"
)

// Kind identifies a fitness provider
type Kind string

const (
	KindStrava Kind = "strava"
	KindGarmin Kind = "garmin"
)

// IsValid reports whether the kind is a known provider
func (k Kind) IsValid() bool {
	return k == KindStrava || k == KindGarmin
}

// Token holds credentials returned from an authorization or refresh exchange.
// ExpiresAt is zero for providers whose tokens do not expire (OAuth 1.0a).
type Token struct {
	AccessToken    string
	RefreshToken   string
	ExpiresAt      int64 // unix seconds
	ProviderUserID string
}

// Activity is a provider activity normalized to challenge semantics: whole
// minutes on a local calendar date.
type Activity struct {
	ExternalID      string
	Date            string // YYYY-MM-DD in the athlete's local time
	DurationMinutes int
	Type            string
	Name            string
}

// AuthRequest is the start of an authorization flow. OAuth2 providers fill
// only URL; OAuth 1.0a providers also return the request token secret, which
// the caller must hold until the callback.
type AuthRequest struct {
	URL                string
	RequestTokenSecret string
}

// Callback carries the parameters a provider sends to the redirect URL.
// OAuth2 uses Code; OAuth 1.0a uses OAuthToken and OAuthVerifier together
// with the RequestTokenSecret saved from the AuthRequest.
type Callback struct {
	Code               string
	OAuthToken         string
	OAuthVerifier      string
	RequestTokenSecret string
}

// Connector defines the operations available on a fitness provider
type Connector interface {
	// Kind returns the provider kind
	Kind() Kind

	// BeginAuthorization starts the OAuth flow and returns the URL to
	// redirect the user to
	BeginAuthorization(ctx context.Context, state, redirectURL string) (*AuthRequest, error)

	// CompleteAuthorization exchanges callback parameters for a token
	CompleteAuthorization(ctx context.Context, cb Callback, redirectURL string) (*Token, error)

	// RefreshToken obtains a fresh access token. Providers without
	// expiring tokens return ErrRefreshUnsupported.
	RefreshToken(ctx context.Context, refreshToken string) (*Token, error)

	// ListActivities fetches activities in a time window, newest last
	ListActivities(ctx context.Context, token *Token, after, before time.Time) ([]*Activity, error)

	// GetActivity fetches one activity by its provider id
	GetActivity(ctx context.Context, token *Token, externalID string) (*Activity, error)
}

// Settings holds the credentials needed to build a connector
type Settings struct {
	Kind Kind

	// OAuth2 application credentials (Strava)
	ClientID     string
	ClientSecret string

	// OAuth 1.0a consumer credentials (Garmin)
	ConsumerKey    string
	ConsumerSecret string
}

// Validate checks the settings are complete for the provider kind
func (s *Settings) Validate() error {
	if !s.Kind.IsValid() {
		return ErrUnknownKind
	}
	switch s.Kind {
	case KindStrava:
		if s.ClientID == "" || s.ClientSecret == "" {
			return ErrIncompleteSettings
		}
	case KindGarmin:
		if s.ConsumerKey == "" || s.ConsumerSecret == "" {
			return ErrIncompleteSettings
		}
	}
	return nil
}
