package repositories

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/thirtyx30/thirtyx30/internal/db/models"
)

var activityCols = []string{
	"id", "user_id", "source", "external_activity_id", "activity_date",
	"duration_minutes", "activity_type", "activity_name", "notes",
	"organization_id", "created_at",
}

func sampleActivityRow() *sqlmock.Rows {
	return sqlmock.NewRows(activityCols).
		AddRow("act-1", "user-1", "manual", nil, "2026-08-30", 45, "running", "Morning run", nil, nil, time.Now())
}

func newActivityRepo(t *testing.T) (*ActivityRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewActivityRepository(sqlx.NewDb(db, "sqlmock")), mock
}

func TestActivityGetByID_Found(t *testing.T) {
	repo, mock := newActivityRepo(t)
	mock.ExpectQuery("SELECT.*FROM activities.*WHERE id").
		WithArgs("act-1").
		WillReturnRows(sampleActivityRow())

	activity, err := repo.GetByID(context.Background(), "act-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if activity == nil {
		t.Fatal("expected activity, got nil")
	}
	if activity.DurationMinutes != 45 {
		t.Errorf("DurationMinutes = %d, want 45", activity.DurationMinutes)
	}
}

func TestActivityGetByID_NotFound(t *testing.T) {
	repo, mock := newActivityRepo(t)
	mock.ExpectQuery("SELECT.*FROM activities.*WHERE id").
		WillReturnRows(sqlmock.NewRows(activityCols))

	activity, err := repo.GetByID(context.Background(), "missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if activity != nil {
		t.Error("expected nil, got non-nil")
	}
}

func TestActivityCreate_AssignsID(t *testing.T) {
	repo, mock := newActivityRepo(t)
	mock.ExpectExec("INSERT INTO activities").
		WillReturnResult(sqlmock.NewResult(0, 1))

	activity := &models.Activity{
		UserID:          "user-1",
		Source:          models.SourceManual,
		ActivityDate:    "2026-08-30",
		DurationMinutes: 45,
		ActivityType:    "running",
		ActivityName:    "Morning run",
	}
	if err := repo.Create(context.Background(), activity); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if activity.ID == "" {
		t.Error("expected ID to be assigned")
	}
}

func TestExternalIDExists(t *testing.T) {
	repo, mock := newActivityRepo(t)
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("user-1", "strava", "12345").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.ExternalIDExists(context.Background(), "user-1", "strava", "12345")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !exists {
		t.Error("expected exists = true")
	}
}

func TestDelete_ReportsRemoval(t *testing.T) {
	repo, mock := newActivityRepo(t)
	mock.ExpectExec("DELETE FROM activities").
		WithArgs("act-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	removed, err := repo.Delete(context.Background(), "act-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !removed {
		t.Error("expected removed = true")
	}
}

func TestDelete_NoRow(t *testing.T) {
	repo, mock := newActivityRepo(t)
	mock.ExpectExec("DELETE FROM activities").
		WillReturnResult(sqlmock.NewResult(0, 0))

	removed, err := repo.Delete(context.Background(), "missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if removed {
		t.Error("expected removed = false")
	}
}

func TestSumDurationForDate_Empty(t *testing.T) {
	repo, mock := newActivityRepo(t)
	mock.ExpectQuery("SELECT COALESCE").
		WithArgs("user-1", "2026-08-30").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(0))

	total, err := repo.SumDurationForDate(context.Background(), "user-1", "2026-08-30")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 0 {
		t.Errorf("total = %d, want 0", total)
	}
}

func TestListValidDates_Ascending(t *testing.T) {
	repo, mock := newActivityRepo(t)
	mock.ExpectQuery("SELECT to_char.*FROM daily_activities").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"to_char"}).
			AddRow("2026-08-28").
			AddRow("2026-08-29").
			AddRow("2026-08-30"))

	dates, err := repo.ListValidDates(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(dates) != 3 {
		t.Fatalf("len = %d, want 3", len(dates))
	}
	if dates[0] != "2026-08-28" {
		t.Errorf("first date = %s, want 2026-08-28", dates[0])
	}
}

func TestUpsertDaily(t *testing.T) {
	repo, mock := newActivityRepo(t)
	mock.ExpectExec("INSERT INTO daily_activities").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.UpsertDaily(context.Background(), "user-1", "2026-08-30", 45, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
