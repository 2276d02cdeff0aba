// Package strava implements the provider Connector interface for Strava.
// Authorization uses the standard OAuth2 code flow; activity data comes from
// the Strava REST API v3. Durations are mapped from moving_time (seconds,
// rounded to the nearest minute) and dates from the date part of
// start_date_local, so an evening ride counts on the athlete's local day.
package strava

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/thirtyx30/thirtyx30/internal/provider"
)

const (
	defaultAuthURL  = "https://www.strava.com/oauth/authorize"
	defaultTokenURL = "https://www.strava.com/oauth/token"
	defaultAPIURL   = "https://www.strava.com/api/v3"

	// scope granting read access to all activities, including private ones
	requestedScope = "read,activity:read_all"
)

// Connector implements provider.Connector for Strava
type Connector struct {
	clientID     string
	clientSecret string
	authURL      string
	tokenURL     string
	apiURL       string
	httpClient   *http.Client
}

// New creates a Strava connector
func New(settings *provider.Settings) (*Connector, error) {
	return &Connector{
		clientID:     settings.ClientID,
		clientSecret: settings.ClientSecret,
		authURL:      defaultAuthURL,
		tokenURL:     defaultTokenURL,
		apiURL:       defaultAPIURL,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func init() {
	provider.RegisterConnector(provider.KindStrava, func(settings *provider.Settings) (provider.Connector, error) {
		return New(settings)
	})
}

// Kind returns the provider kind
func (c *Connector) Kind() provider.Kind {
	return provider.KindStrava
}

// BeginAuthorization returns the Strava OAuth2 authorization URL
func (c *Connector) BeginAuthorization(_ context.Context, state, redirectURL string) (*provider.AuthRequest, error) {
	params := url.Values{}
	params.Set("client_id", c.clientID)
	params.Set("redirect_uri", redirectURL)
	params.Set("response_type", "code")
	params.Set("approval_prompt", "auto")
	params.Set("scope", requestedScope)
	params.Set("state", state)

	return &provider.AuthRequest{URL: c.authURL + "?" + params.Encode()}, nil
}

// tokenResponse is the shape of Strava's token endpoint replies
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"`
	Athlete      struct {
		ID int64 `json:"id"`
	} `json:"athlete"`
}

// CompleteAuthorization exchanges an authorization code for tokens
func (c *Connector) CompleteAuthorization(ctx context.Context, cb provider.Callback, _ string) (*provider.Token, error) {
	data := url.Values{}
	data.Set("client_id", c.clientID)
	data.Set("client_secret", c.clientSecret)
	data.Set("code", cb.Code)
	data.Set("grant_type", "authorization_code")

	result, err := c.postToken(ctx, data)
	if err != nil {
		return nil, err
	}

	return &provider.Token{
		AccessToken:    result.AccessToken,
		RefreshToken:   result.RefreshToken,
		ExpiresAt:      result.ExpiresAt,
		ProviderUserID: strconv.FormatInt(result.Athlete.ID, 10),
	}, nil
}

// RefreshToken obtains a fresh access token. Strava rotates the refresh token
// on every refresh; callers must store the returned one.
func (c *Connector) RefreshToken(ctx context.Context, refreshToken string) (*provider.Token, error) {
	data := url.Values{}
	data.Set("client_id", c.clientID)
	data.Set("client_secret", c.clientSecret)
	data.Set("refresh_token", refreshToken)
	data.Set("grant_type", "refresh_token")

	result, err := c.postToken(ctx, data)
	if err != nil {
		return nil, err
	}

	return &provider.Token{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		ExpiresAt:    result.ExpiresAt,
	}, nil
}

func (c *Connector) postToken(ctx context.Context, data url.Values) (*tokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("strava: create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("strava: token exchange: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusBadRequest {
		return nil, provider.ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("strava: token endpoint returned %d: %s", resp.StatusCode, body)
	}

	var result tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("strava: decode token response: %w", err)
	}
	return &result, nil
}

// apiActivity is the subset of Strava's activity shape the app consumes
type apiActivity struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	Type           string `json:"type"`
	MovingTime     int    `json:"moving_time"` // seconds
	StartDateLocal string `json:"start_date_local"`
}

// ListActivities fetches the athlete's activities in a time window
func (c *Connector) ListActivities(ctx context.Context, token *provider.Token, after, before time.Time) ([]*provider.Activity, error) {
	activities := make([]*provider.Activity, 0)
	for page := 1; ; page++ {
		params := url.Values{}
		params.Set("page", strconv.Itoa(page))
		params.Set("per_page", "100")
		if !after.IsZero() {
			params.Set("after", strconv.FormatInt(after.Unix(), 10))
		}
		if !before.IsZero() {
			params.Set("before", strconv.FormatInt(before.Unix(), 10))
		}

		endpoint := c.apiURL + "/athlete/activities?" + params.Encode()
		var batch []apiActivity
		if err := c.getJSON(ctx, token, endpoint, &batch); err != nil {
			return nil, fmt.Errorf("strava: list activities: %w", err)
		}

		for i := range batch {
			activities = append(activities, mapActivity(&batch[i]))
		}

		if len(batch) < 100 {
			return activities, nil
		}
	}
}

// GetActivity fetches a single activity by id
func (c *Connector) GetActivity(ctx context.Context, token *provider.Token, externalID string) (*provider.Activity, error) {
	endpoint := c.apiURL + "/activities/" + url.PathEscape(externalID)

	var result apiActivity
	if err := c.getJSON(ctx, token, endpoint, &result); err != nil {
		return nil, fmt.Errorf("strava: get activity %s: %w", externalID, err)
	}
	return mapActivity(&result), nil
}

func (c *Connector) getJSON(ctx context.Context, token *provider.Token, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return provider.ErrUnauthorized
	case http.StatusNotFound:
		return provider.ErrNotFound
	default:
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d: %s", resp.StatusCode, body)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// mapActivity converts a Strava activity to challenge semantics
func mapActivity(a *apiActivity) *provider.Activity {
	date := a.StartDateLocal
	if len(date) >= 10 {
		date = date[:10]
	}

	return &provider.Activity{
		ExternalID:      strconv.FormatInt(a.ID, 10),
		Date:            date,
		DurationMinutes: int(math.Round(float64(a.MovingTime) / 60.0)),
		Type:            strings.ToLower(a.Type),
		Name:            a.Name,
	}
}
