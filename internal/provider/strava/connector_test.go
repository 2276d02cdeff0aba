package strava

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/thirtyx30/thirtyx30/internal/provider"
)

func testConnector(t *testing.T, handler http.Handler) *Connector {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(&provider.Settings{Kind: provider.KindStrava, ClientID: "cid", ClientSecret: "csecret"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.authURL = srv.URL + "/oauth/authorize"
	c.tokenURL = srv.URL + "/oauth/token"
	c.apiURL = srv.URL + "/api/v3"
	return c
}

func TestBeginAuthorization_URL(t *testing.T) {
	c, _ := New(&provider.Settings{Kind: provider.KindStrava, ClientID: "cid", ClientSecret: "csecret"})

	req, err := c.BeginAuthorization(context.Background(), "state-123", "https://30x30.app/callback")
	if err != nil {
		t.Fatalf("BeginAuthorization: %v", err)
	}

	u, err := url.Parse(req.URL)
	if err != nil {
		t.Fatalf("parse URL: %v", err)
	}
	q := u.Query()
	if q.Get("client_id") != "cid" {
		t.Errorf("client_id = %s", q.Get("client_id"))
	}
	if q.Get("state") != "state-123" {
		t.Errorf("state = %s", q.Get("state"))
	}
	if q.Get("scope") != "read,activity:read_all" {
		t.Errorf("scope = %s", q.Get("scope"))
	}
	if req.RequestTokenSecret != "" {
		t.Error("OAuth2 flow must not return a request token secret")
	}
}

func TestCompleteAuthorization(t *testing.T) {
	c := testConnector(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/oauth/token" {
			t.Errorf("path = %s", r.URL.Path)
		}
		r.ParseForm()
		if r.Form.Get("code") != "auth-code" || r.Form.Get("grant_type") != "authorization_code" {
			t.Errorf("unexpected form: %v", r.Form)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "at",
			"refresh_token": "rt",
			"expires_at":    1790000000,
			"athlete":       map[string]any{"id": 987654},
		})
	}))

	token, err := c.CompleteAuthorization(context.Background(), provider.Callback{Code: "auth-code"}, "")
	if err != nil {
		t.Fatalf("CompleteAuthorization: %v", err)
	}
	if token.AccessToken != "at" || token.RefreshToken != "rt" {
		t.Errorf("tokens = %s/%s", token.AccessToken, token.RefreshToken)
	}
	if token.ProviderUserID != "987654" {
		t.Errorf("ProviderUserID = %s, want 987654", token.ProviderUserID)
	}
}

func TestRefreshToken_Unauthorized(t *testing.T) {
	c := testConnector(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	_, err := c.RefreshToken(context.Background(), "revoked")
	if !errors.Is(err, provider.ErrUnauthorized) {
		t.Errorf("err = %v, want ErrUnauthorized", err)
	}
}

func TestListActivities_Mapping(t *testing.T) {
	c := testConnector(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			t.Error("missing bearer token")
		}
		json.NewEncoder(w).Encode([]map[string]any{
			{
				"id":               111,
				"name":             "Evening Ride",
				"type":             "Ride",
				"moving_time":      2700, // 45 min
				"start_date_local": "2026-08-30T19:15:00Z",
			},
			{
				"id":               112,
				"name":             "Short walk",
				"type":             "Walk",
				"moving_time":      1190, // rounds to 20 min
				"start_date_local": "2026-08-31T08:00:00Z",
			},
		})
	}))

	acts, err := c.ListActivities(context.Background(), &provider.Token{AccessToken: "at"}, time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("ListActivities: %v", err)
	}
	if len(acts) != 2 {
		t.Fatalf("len = %d, want 2", len(acts))
	}
	if acts[0].Date != "2026-08-30" {
		t.Errorf("Date = %s, want 2026-08-30 (local date part)", acts[0].Date)
	}
	if acts[0].DurationMinutes != 45 {
		t.Errorf("DurationMinutes = %d, want 45", acts[0].DurationMinutes)
	}
	if acts[1].DurationMinutes != 20 {
		t.Errorf("DurationMinutes = %d, want 20 (rounded)", acts[1].DurationMinutes)
	}
	if acts[0].Type != "ride" {
		t.Errorf("Type = %s, want ride", acts[0].Type)
	}
}

func TestGetActivity_NotFound(t *testing.T) {
	c := testConnector(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := c.GetActivity(context.Background(), &provider.Token{AccessToken: "at"}, "999")
	if !errors.Is(err, provider.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
