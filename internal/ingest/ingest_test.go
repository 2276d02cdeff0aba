package ingest

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/thirtyx30/thirtyx30/internal/activity"
	"github.com/thirtyx30/thirtyx30/internal/apperr"
	"github.com/thirtyx30/thirtyx30/internal/crypto"
	"github.com/thirtyx30/thirtyx30/internal/db/repositories"
	"github.com/thirtyx30/thirtyx30/internal/provider"
)

type fakeConnector struct {
	kind       provider.Kind
	activities []*provider.Activity
	refreshed  *provider.Token
}

func (f *fakeConnector) Kind() provider.Kind { return f.kind }
func (f *fakeConnector) BeginAuthorization(context.Context, string, string) (*provider.AuthRequest, error) {
	return &provider.AuthRequest{URL: "https://example.com"}, nil
}
func (f *fakeConnector) CompleteAuthorization(context.Context, provider.Callback, string) (*provider.Token, error) {
	return &provider.Token{}, nil
}
func (f *fakeConnector) RefreshToken(context.Context, string) (*provider.Token, error) {
	if f.refreshed == nil {
		return nil, provider.ErrRefreshUnsupported
	}
	return f.refreshed, nil
}
func (f *fakeConnector) ListActivities(context.Context, *provider.Token, time.Time, time.Time) ([]*provider.Activity, error) {
	return f.activities, nil
}
func (f *fakeConnector) GetActivity(_ context.Context, _ *provider.Token, id string) (*provider.Activity, error) {
	for _, a := range f.activities {
		if a.ExternalID == id {
			return a, nil
		}
	}
	return nil, provider.ErrNotFound
}

func newService(t *testing.T, connector *fakeConnector) (*Service, sqlmock.Sqlmock, *crypto.TokenCipher) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	key, _ := crypto.GenerateKey()
	cipher, _ := crypto.NewTokenCipher(key)

	sdb := sqlx.NewDb(db, "sqlmock")
	activities := repositories.NewActivityRepository(sdb)
	connections := repositories.NewConnectionRepository(sdb)
	recomputer := activity.NewRecomputer(activities, repositories.NewStreakRepository(sdb))

	connectors := map[provider.Kind]provider.Connector{}
	if connector != nil {
		connectors[connector.kind] = connector
	}

	s := NewService(activities, connections, recomputer, cipher, connectors)
	s.now = func() time.Time {
		d, _ := time.Parse(activity.DateLayout, "2026-08-31")
		return d.Add(12 * time.Hour)
	}
	return s, mock, cipher
}

func expectRecompute(mock sqlmock.Sqlmock, total int) {
	mock.ExpectQuery("SELECT COALESCE").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(total))
	if total > 0 {
		mock.ExpectExec("INSERT INTO daily_activities").
			WillReturnResult(sqlmock.NewResult(0, 1))
	} else {
		mock.ExpectExec("DELETE FROM daily_activities").
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectQuery("SELECT to_char.*FROM daily_activities").
		WillReturnRows(sqlmock.NewRows([]string{"to_char"}).AddRow("2026-08-31"))
	mock.ExpectExec("INSERT INTO streaks").
		WillReturnResult(sqlmock.NewResult(0, 1))
}

func TestLogManual_Valid(t *testing.T) {
	s, mock, _ := newService(t, nil)

	mock.ExpectExec("INSERT INTO activities").
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectRecompute(mock, 45)

	record, err := s.LogManual(context.Background(), "user-1", ManualEntry{
		Date:            "2026-08-31",
		DurationMinutes: 45,
		Type:            "running",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if record.ActivityName != "running - 2026-08-31" {
		t.Errorf("ActivityName = %s, want default name", record.ActivityName)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestLogManual_OldestAllowedDay(t *testing.T) {
	s, mock, _ := newService(t, nil)

	mock.ExpectExec("INSERT INTO activities").
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectRecompute(mock, 30)

	// Exactly 30 days before the injected clock.
	_, err := s.LogManual(context.Background(), "user-1", ManualEntry{
		Date:            "2026-08-01",
		DurationMinutes: 30,
		Type:            "running",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestLogManual_Validation(t *testing.T) {
	s, _, _ := newService(t, nil)

	tests := []struct {
		name  string
		entry ManualEntry
	}{
		{"zero duration", ManualEntry{Date: "2026-08-31", DurationMinutes: 0, Type: "running"}},
		{"over a day", ManualEntry{Date: "2026-08-31", DurationMinutes: 1441, Type: "running"}},
		{"bad date", ManualEntry{Date: "31/08/2026", DurationMinutes: 30, Type: "running"}},
		{"future date", ManualEntry{Date: "2026-09-01", DurationMinutes: 30, Type: "running"}},
		{"day past the backdate window", ManualEntry{Date: "2026-07-31", DurationMinutes: 30, Type: "running"}},
		{"months old", ManualEntry{Date: "2026-07-01", DurationMinutes: 30, Type: "running"}},
		{"missing type", ManualEntry{Date: "2026-08-31", DurationMinutes: 30}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.LogManual(context.Background(), "user-1", tt.entry)
			if apperr.KindOf(err) != apperr.KindValidation {
				t.Errorf("err = %v, want validation error", err)
			}
		})
	}
}

func TestDeleteActivity_NotOwner(t *testing.T) {
	s, mock, _ := newService(t, nil)

	mock.ExpectQuery("SELECT.*FROM activities.*WHERE id").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "source", "external_activity_id", "activity_date",
			"duration_minutes", "activity_type", "activity_name", "notes",
			"organization_id", "created_at",
		}).AddRow("act-1", "someone-else", "manual", nil, "2026-08-31", 45, "running", "x", nil, nil, time.Now()))

	err := s.DeleteActivity(context.Background(), "user-1", "act-1")
	if apperr.KindOf(err) != apperr.KindNotFound {
		t.Errorf("err = %v, want not-found (ownership hidden)", err)
	}
}

func seedConnection(t *testing.T, mock sqlmock.Sqlmock, cipher *crypto.TokenCipher, expiresAt int64) {
	t.Helper()
	access, _ := cipher.Seal("plain-access")
	refresh, _ := cipher.Seal("plain-refresh")
	mock.ExpectQuery("SELECT.*FROM provider_connections").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "provider", "provider_user_id", "access_token",
			"refresh_token", "expires_at", "created_at", "updated_at",
		}).AddRow("conn-1", "user-1", "strava", "987", access, refresh, expiresAt, time.Now(), time.Now()))
}

func TestSyncProvider_IngestsAndDedups(t *testing.T) {
	connector := &fakeConnector{
		kind: provider.KindStrava,
		activities: []*provider.Activity{
			{ExternalID: "a1", Date: "2026-08-31", DurationMinutes: 45, Type: "ride", Name: "Ride"},
			{ExternalID: "a2", Date: "2026-08-31", DurationMinutes: 20, Type: "walk", Name: "Walk"},
		},
	}
	s, mock, cipher := newService(t, connector)

	seedConnection(t, mock, cipher, time.Now().Add(time.Hour).Unix())

	// a1 is new, a2 is a duplicate.
	mock.ExpectQuery("SELECT EXISTS").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec("INSERT INTO activities").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT EXISTS").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	expectRecompute(mock, 45)

	result, err := s.SyncProvider(context.Background(), "user-1", provider.KindStrava, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Ingested != 1 || result.Skipped != 1 {
		t.Errorf("result = %+v, want 1 ingested, 1 skipped", result)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestSyncProvider_NoConnection(t *testing.T) {
	s, mock, _ := newService(t, &fakeConnector{kind: provider.KindStrava})
	mock.ExpectQuery("SELECT.*FROM provider_connections").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "provider", "provider_user_id", "access_token",
			"refresh_token", "expires_at", "created_at", "updated_at",
		}))

	_, err := s.SyncProvider(context.Background(), "user-1", provider.KindStrava, 0)
	if apperr.KindOf(err) != apperr.KindNotFound {
		t.Errorf("err = %v, want not-found", err)
	}
}

func TestSyncProvider_RefreshesExpiredToken(t *testing.T) {
	connector := &fakeConnector{
		kind:      provider.KindStrava,
		refreshed: &provider.Token{AccessToken: "new-access", RefreshToken: "new-refresh", ExpiresAt: time.Now().Add(6 * time.Hour).Unix()},
	}
	s, mock, cipher := newService(t, connector)

	seedConnection(t, mock, cipher, time.Now().Add(-time.Hour).Unix())
	mock.ExpectExec("UPDATE provider_connections").
		WillReturnResult(sqlmock.NewResult(0, 1))

	result, err := s.SyncProvider(context.Background(), "user-1", provider.KindStrava, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Fetched != 0 {
		t.Errorf("Fetched = %d, want 0", result.Fetched)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestHandleProviderEvent_UnlinkedUserIgnored(t *testing.T) {
	s, mock, _ := newService(t, &fakeConnector{kind: provider.KindStrava})
	mock.ExpectQuery("SELECT.*FROM provider_connections").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "provider", "provider_user_id", "access_token",
			"refresh_token", "expires_at", "created_at", "updated_at",
		}))

	if err := s.HandleProviderEvent(context.Background(), provider.KindStrava, "unknown", "a1"); err != nil {
		t.Errorf("unlinked user event must be ignored, got %v", err)
	}
}

func TestHandleProviderEvent_Ingests(t *testing.T) {
	connector := &fakeConnector{
		kind: provider.KindStrava,
		activities: []*provider.Activity{
			{ExternalID: "a1", Date: "2026-08-31", DurationMinutes: 35, Type: "run", Name: "Run"},
		},
	}
	s, mock, cipher := newService(t, connector)

	seedConnection(t, mock, cipher, time.Now().Add(time.Hour).Unix())
	mock.ExpectQuery("SELECT EXISTS").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec("INSERT INTO activities").
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectRecompute(mock, 35)

	if err := s.HandleProviderEvent(context.Background(), provider.KindStrava, "987", "a1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}
