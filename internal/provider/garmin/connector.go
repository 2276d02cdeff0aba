package garmin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/thirtyx30/thirtyx30/internal/provider"
)

const (
	defaultRequestTokenURL = "https://connectapi.garmin.com/oauth-service/oauth/request_token"
	defaultAccessTokenURL  = "https://connectapi.garmin.com/oauth-service/oauth/access_token"
	defaultConfirmURL      = "https://connect.garmin.com/oauthConfirm"
	defaultAPIURL          = "https://apis.garmin.com/wellness-api/rest"
)

// Connector implements provider.Connector for Garmin
type Connector struct {
	signer          *signer
	requestTokenURL string
	accessTokenURL  string
	confirmURL      string
	apiURL          string
	httpClient      *http.Client
}

// New creates a Garmin connector
func New(settings *provider.Settings) (*Connector, error) {
	return &Connector{
		signer:          newSigner(settings.ConsumerKey, settings.ConsumerSecret),
		requestTokenURL: defaultRequestTokenURL,
		accessTokenURL:  defaultAccessTokenURL,
		confirmURL:      defaultConfirmURL,
		apiURL:          defaultAPIURL,
		httpClient:      &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func init() {
	provider.RegisterConnector(provider.KindGarmin, func(settings *provider.Settings) (provider.Connector, error) {
		return New(settings)
	})
}

// Kind returns the provider kind
func (c *Connector) Kind() provider.Kind {
	return provider.KindGarmin
}

// BeginAuthorization obtains an OAuth 1.0a request token and returns the user
// confirmation URL. The request token secret must be held by the caller until
// the callback; Garmin's state lives in the token itself, so the OAuth2-style
// state parameter is unused.
func (c *Connector) BeginAuthorization(ctx context.Context, _ string, redirectURL string) (*provider.AuthRequest, error) {
	extra := map[string]string{"oauth_callback": redirectURL}
	values, err := c.postOAuth(ctx, c.requestTokenURL, "", "", extra)
	if err != nil {
		return nil, fmt.Errorf("garmin: request token: %w", err)
	}

	token := values.Get("oauth_token")
	secret := values.Get("oauth_token_secret")
	if token == "" || secret == "" {
		return nil, fmt.Errorf("garmin: request token response missing credentials")
	}

	confirm := c.confirmURL + "?oauth_token=" + url.QueryEscape(token) +
		"&oauth_callback=" + url.QueryEscape(redirectURL)

	return &provider.AuthRequest{URL: confirm, RequestTokenSecret: secret}, nil
}

// CompleteAuthorization exchanges the verified request token for an access
// token and resolves the Garmin user id
func (c *Connector) CompleteAuthorization(ctx context.Context, cb provider.Callback, _ string) (*provider.Token, error) {
	extra := map[string]string{"oauth_verifier": cb.OAuthVerifier}
	values, err := c.postOAuth(ctx, c.accessTokenURL, cb.OAuthToken, cb.RequestTokenSecret, extra)
	if err != nil {
		return nil, fmt.Errorf("garmin: access token: %w", err)
	}

	accessToken := values.Get("oauth_token")
	accessSecret := values.Get("oauth_token_secret")
	if accessToken == "" || accessSecret == "" {
		return nil, fmt.Errorf("garmin: access token response missing credentials")
	}

	userID, err := c.fetchUserID(ctx, accessToken, accessSecret)
	if err != nil {
		return nil, err
	}

	// The token secret rides in the RefreshToken slot; OAuth 1.0a has no
	// refresh concept but every API call needs both halves.
	return &provider.Token{
		AccessToken:    accessToken,
		RefreshToken:   accessSecret,
		ExpiresAt:      0,
		ProviderUserID: userID,
	}, nil
}

// RefreshToken is unsupported: Garmin OAuth 1.0a tokens do not expire
func (c *Connector) RefreshToken(context.Context, string) (*provider.Token, error) {
	return nil, provider.ErrRefreshUnsupported
}

// apiActivity is the subset of Garmin's activity summary the app consumes
type apiActivity struct {
	SummaryID         string `json:"summaryId"`
	ActivityName      string `json:"activityName"`
	ActivityType      string `json:"activityType"`
	DurationInSeconds int    `json:"durationInSeconds"`
	StartTimeInSeconds int64 `json:"startTimeInSeconds"`
	StartTimeOffsetInSeconds int64 `json:"startTimeOffsetInSeconds"`
}

// ListActivities fetches activity summaries uploaded in a time window
func (c *Connector) ListActivities(ctx context.Context, token *provider.Token, after, before time.Time) ([]*provider.Activity, error) {
	if before.IsZero() {
		before = time.Now()
	}
	if after.IsZero() {
		after = before.Add(-24 * time.Hour)
	}

	endpoint := fmt.Sprintf("%s/activities?uploadStartTimeInSeconds=%d&uploadEndTimeInSeconds=%d",
		c.apiURL, after.Unix(), before.Unix())

	var batch []apiActivity
	if err := c.getJSON(ctx, token, endpoint, &batch); err != nil {
		return nil, fmt.Errorf("garmin: list activities: %w", err)
	}

	activities := make([]*provider.Activity, 0, len(batch))
	for i := range batch {
		activities = append(activities, mapActivity(&batch[i]))
	}
	return activities, nil
}

// GetActivity is not directly addressable in Garmin's wellness API; summaries
// arrive in bulk. It scans the last 30 days for the id.
func (c *Connector) GetActivity(ctx context.Context, token *provider.Token, externalID string) (*provider.Activity, error) {
	now := time.Now()
	activities, err := c.ListActivities(ctx, token, now.AddDate(0, 0, -30), now)
	if err != nil {
		return nil, err
	}
	for _, a := range activities {
		if a.ExternalID == externalID {
			return a, nil
		}
	}
	return nil, provider.ErrNotFound
}

func (c *Connector) postOAuth(ctx context.Context, endpoint, token, tokenSecret string, extra map[string]string) (url.Values, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return nil, err
	}

	header, err := c.signer.authHeader(http.MethodPost, endpoint, token, tokenSecret, extra)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", header)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, provider.ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, body)
	}

	return url.ParseQuery(string(body))
}

func (c *Connector) fetchUserID(ctx context.Context, accessToken, accessSecret string) (string, error) {
	endpoint := c.apiURL + "/user/id"
	token := &provider.Token{AccessToken: accessToken, RefreshToken: accessSecret}

	var result struct {
		UserID string `json:"userId"`
	}
	if err := c.getJSON(ctx, token, endpoint, &result); err != nil {
		return "", fmt.Errorf("garmin: fetch user id: %w", err)
	}
	if result.UserID == "" {
		return "", fmt.Errorf("garmin: empty user id")
	}
	return result.UserID, nil
}

func (c *Connector) getJSON(ctx context.Context, token *provider.Token, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}

	header, err := c.signer.authHeader(http.MethodGet, endpoint, token.AccessToken, token.RefreshToken, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", header)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return provider.ErrUnauthorized
	case http.StatusNotFound:
		return provider.ErrNotFound
	default:
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d: %s", resp.StatusCode, body)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// mapActivity converts a Garmin summary to challenge semantics. The calendar
// date is derived from the start time shifted by the device's local offset.
func mapActivity(a *apiActivity) *provider.Activity {
	localStart := time.Unix(a.StartTimeInSeconds+a.StartTimeOffsetInSeconds, 0).UTC()

	return &provider.Activity{
		ExternalID:      a.SummaryID,
		Date:            localStart.Format("2006-01-02"),
		DurationMinutes: int(math.Round(float64(a.DurationInSeconds) / 60.0)),
		Type:            a.ActivityType,
		Name:            a.ActivityName,
	}
}
