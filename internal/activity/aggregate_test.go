package activity

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/thirtyx30/thirtyx30/internal/db/repositories"
)

func newRecomputer(t *testing.T) (*Recomputer, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	sdb := sqlx.NewDb(db, "sqlmock")
	r := NewRecomputer(
		repositories.NewActivityRepository(sdb),
		repositories.NewStreakRepository(sdb),
	)
	r.now = func() time.Time {
		d, _ := time.Parse(DateLayout, "2026-08-31")
		return d
	}
	return r, mock
}

func TestRecomputeDate_ValidDay(t *testing.T) {
	r, mock := newRecomputer(t)

	mock.ExpectQuery("SELECT COALESCE").
		WithArgs("user-1", "2026-08-31").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(45))
	mock.ExpectExec("INSERT INTO daily_activities").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT to_char.*FROM daily_activities").
		WillReturnRows(sqlmock.NewRows([]string{"to_char"}).AddRow("2026-08-31"))
	mock.ExpectExec("INSERT INTO streaks").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := r.RecomputeDate(context.Background(), "user-1", "2026-08-31"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestRecomputeDate_ZeroTotalDeletesAggregate(t *testing.T) {
	r, mock := newRecomputer(t)

	mock.ExpectQuery("SELECT COALESCE").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(0))
	mock.ExpectExec("DELETE FROM daily_activities").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT to_char.*FROM daily_activities").
		WillReturnRows(sqlmock.NewRows([]string{"to_char"}))
	mock.ExpectExec("INSERT INTO streaks").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := r.RecomputeDate(context.Background(), "user-1", "2026-08-31"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestRecomputeDates_DeduplicatesAndRecomputesOnce(t *testing.T) {
	r, mock := newRecomputer(t)

	// Two distinct dates out of three inputs, then one streak recompute.
	for i := 0; i < 2; i++ {
		mock.ExpectQuery("SELECT COALESCE").
			WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(40))
		mock.ExpectExec("INSERT INTO daily_activities").
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectQuery("SELECT to_char.*FROM daily_activities").
		WillReturnRows(sqlmock.NewRows([]string{"to_char"}).
			AddRow("2026-08-30").
			AddRow("2026-08-31"))
	mock.ExpectExec("INSERT INTO streaks").
		WillReturnResult(sqlmock.NewResult(0, 1))

	dates := []string{"2026-08-30", "2026-08-31", "2026-08-30"}
	if err := r.RecomputeDates(context.Background(), "user-1", dates); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestRecomputeDates_EmptyIsNoOp(t *testing.T) {
	r, mock := newRecomputer(t)
	if err := r.RecomputeDates(context.Background(), "user-1", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestThresholdBoundary(t *testing.T) {
	// 29 minutes is below the threshold, 30 meets it.
	if MinValidMinutes != 30 {
		t.Fatalf("MinValidMinutes = %d, want 30", MinValidMinutes)
	}
	if 29 >= MinValidMinutes {
		t.Error("29 minutes must not be valid")
	}
	if !(30 >= MinValidMinutes) {
		t.Error("30 minutes must be valid")
	}
}
