// Package ingest is the single write path for activity records. All three
// ingestion paths (manual entry, pull sync, provider webhooks) converge here,
// so dedup, validation, and the recompute of derived state happen in exactly
// one place.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/thirtyx30/thirtyx30/internal/activity"
	"github.com/thirtyx30/thirtyx30/internal/apperr"
	"github.com/thirtyx30/thirtyx30/internal/crypto"
	"github.com/thirtyx30/thirtyx30/internal/db/models"
	"github.com/thirtyx30/thirtyx30/internal/db/repositories"
	"github.com/thirtyx30/thirtyx30/internal/provider"
	"github.com/thirtyx30/thirtyx30/internal/telemetry"
)

// MaxDurationMinutes caps a single entry at one day
const MaxDurationMinutes = 1440

// Service coordinates activity ingestion
type Service struct {
	activities  *repositories.ActivityRepository
	connections *repositories.ConnectionRepository
	recomputer  *activity.Recomputer
	cipher      *crypto.TokenCipher
	connectors  map[provider.Kind]provider.Connector
	now         func() time.Time
}

// NewService creates an ingest service. connectors holds one connector per
// enabled provider.
func NewService(
	activities *repositories.ActivityRepository,
	connections *repositories.ConnectionRepository,
	recomputer *activity.Recomputer,
	cipher *crypto.TokenCipher,
	connectors map[provider.Kind]provider.Connector,
) *Service {
	return &Service{
		activities:  activities,
		connections: connections,
		recomputer:  recomputer,
		cipher:      cipher,
		connectors:  connectors,
		now:         time.Now,
	}
}

// ManualEntry is a user-submitted activity
type ManualEntry struct {
	Date            string
	DurationMinutes int
	Type            string
	Name            string
	Notes           *string
	OrganizationID  *string
}

// LogManual validates and stores a manual activity, then recomputes the day
func (s *Service) LogManual(ctx context.Context, userID string, entry ManualEntry) (*models.Activity, error) {
	if entry.DurationMinutes <= 0 || entry.DurationMinutes > MaxDurationMinutes {
		return nil, apperr.Newf(apperr.KindValidation, "duration must be between 1 and %d minutes", MaxDurationMinutes)
	}

	if _, err := time.Parse(activity.DateLayout, entry.Date); err != nil {
		return nil, apperr.New(apperr.KindValidation, "date must be in YYYY-MM-DD format")
	}
	if today := s.now().Format(activity.DateLayout); entry.Date > today {
		return nil, apperr.New(apperr.KindValidation, "date must not be in the future")
	}
	if oldest := s.now().AddDate(0, 0, -30).Format(activity.DateLayout); entry.Date < oldest {
		return nil, apperr.New(apperr.KindValidation, "date must not be more than 30 days in the past")
	}

	if entry.Type == "" {
		return nil, apperr.New(apperr.KindValidation, "activity type is required")
	}

	name := entry.Name
	if name == "" {
		name = fmt.Sprintf("%s - %s", entry.Type, entry.Date)
	}

	record := &models.Activity{
		UserID:          userID,
		Source:          models.SourceManual,
		ActivityDate:    entry.Date,
		DurationMinutes: entry.DurationMinutes,
		ActivityType:    entry.Type,
		ActivityName:    name,
		Notes:           entry.Notes,
		OrganizationID:  entry.OrganizationID,
	}

	if err := s.activities.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("storing manual activity: %w", err)
	}
	telemetry.ActivitiesIngestedTotal.WithLabelValues(models.SourceManual, "manual").Inc()

	if err := s.recomputer.RecomputeDate(ctx, userID, entry.Date); err != nil {
		return nil, err
	}
	return record, nil
}

// DeleteActivity removes an activity owned by the user and recomputes its day
func (s *Service) DeleteActivity(ctx context.Context, userID, activityID string) error {
	record, err := s.activities.GetByID(ctx, activityID)
	if err != nil {
		return err
	}
	if record == nil {
		return apperr.New(apperr.KindNotFound, "activity not found")
	}
	if record.UserID != userID {
		// Hide other users' activity ids.
		return apperr.New(apperr.KindNotFound, "activity not found")
	}

	if _, err := s.activities.Delete(ctx, activityID); err != nil {
		return err
	}
	return s.recomputer.RecomputeDate(ctx, userID, record.ActivityDate)
}

// SyncResult summarizes a pull sync
type SyncResult struct {
	Fetched  int
	Ingested int
	Skipped  int
}

// SyncProvider pulls recent activities from a connected provider, ingests the
// new ones, and recomputes every touched date
func (s *Service) SyncProvider(ctx context.Context, userID string, kind provider.Kind, window time.Duration) (*SyncResult, error) {
	conn, connector, token, err := s.authorizedConnection(ctx, userID, kind)
	if err != nil {
		return nil, err
	}

	if window <= 0 {
		window = 30 * 24 * time.Hour
	}
	now := s.now()

	fetched, err := connector.ListActivities(ctx, token, now.Add(-window), now)
	if err != nil {
		telemetry.ProviderSyncErrorsTotal.WithLabelValues(string(kind), "list").Inc()
		return nil, apperr.Wrap(apperr.KindProvider, "provider sync failed", err)
	}

	result := &SyncResult{Fetched: len(fetched)}
	touched := make([]string, 0, len(fetched))
	for _, a := range fetched {
		ingested, err := s.ingestProviderActivity(ctx, conn.UserID, kind, a, "sync")
		if err != nil {
			return nil, err
		}
		if ingested {
			result.Ingested++
			touched = append(touched, a.Date)
		} else {
			result.Skipped++
		}
	}

	if err := s.recomputer.RecomputeDates(ctx, userID, touched); err != nil {
		return nil, err
	}

	slog.Info("provider sync complete",
		"user_id", userID,
		"provider", kind,
		"fetched", result.Fetched,
		"ingested", result.Ingested,
	)
	return result, nil
}

// HandleProviderEvent processes a webhook notification about one new activity.
// Events for unlinked provider users are silently ignored; providers retry on
// error statuses, so ignorable conditions must not surface as failures.
func (s *Service) HandleProviderEvent(ctx context.Context, kind provider.Kind, providerUserID, externalID string) error {
	conn, err := s.connections.GetByProviderUserID(ctx, string(kind), providerUserID)
	if err != nil {
		return err
	}
	if conn == nil {
		telemetry.WebhookEventsTotal.WithLabelValues(string(kind), "ignored").Inc()
		slog.Debug("webhook for unlinked provider user", "provider", kind, "provider_user_id", providerUserID)
		return nil
	}

	_, connector, token, err := s.authorizedConnectionFor(ctx, conn, kind)
	if err != nil {
		return err
	}

	fetched, err := connector.GetActivity(ctx, token, externalID)
	if err != nil {
		if errors.Is(err, provider.ErrNotFound) {
			telemetry.WebhookEventsTotal.WithLabelValues(string(kind), "ignored").Inc()
			return nil
		}
		telemetry.ProviderSyncErrorsTotal.WithLabelValues(string(kind), "fetch").Inc()
		return apperr.Wrap(apperr.KindProvider, "fetching webhook activity failed", err)
	}

	ingested, err := s.ingestProviderActivity(ctx, conn.UserID, kind, fetched, "webhook")
	if err != nil {
		return err
	}
	if !ingested {
		telemetry.WebhookEventsTotal.WithLabelValues(string(kind), "ignored").Inc()
		return nil
	}

	telemetry.WebhookEventsTotal.WithLabelValues(string(kind), "processed").Inc()
	return s.recomputer.RecomputeDate(ctx, conn.UserID, fetched.Date)
}

// ingestProviderActivity stores one provider activity unless it is a duplicate
// or unusable. Returns whether a row was inserted.
func (s *Service) ingestProviderActivity(ctx context.Context, userID string, kind provider.Kind, a *provider.Activity, path string) (bool, error) {
	if a.DurationMinutes <= 0 || a.DurationMinutes > MaxDurationMinutes {
		return false, nil
	}
	if _, err := time.Parse(activity.DateLayout, a.Date); err != nil {
		return false, nil
	}

	exists, err := s.activities.ExternalIDExists(ctx, userID, string(kind), a.ExternalID)
	if err != nil {
		return false, err
	}
	if exists {
		telemetry.ActivitiesDedupedTotal.WithLabelValues(string(kind)).Inc()
		return false, nil
	}

	externalID := a.ExternalID
	name := a.Name
	if name == "" {
		name = fmt.Sprintf("%s - %s", a.Type, a.Date)
	}

	record := &models.Activity{
		UserID:             userID,
		Source:             string(kind),
		ExternalActivityID: &externalID,
		ActivityDate:       a.Date,
		DurationMinutes:    a.DurationMinutes,
		ActivityType:       a.Type,
		ActivityName:       name,
	}
	if err := s.activities.Create(ctx, record); err != nil {
		return false, fmt.Errorf("storing provider activity: %w", err)
	}

	telemetry.ActivitiesIngestedTotal.WithLabelValues(string(kind), path).Inc()
	return true, nil
}

// authorizedConnection loads the user's connection and returns a usable token,
// refreshing and re-storing it when expired
func (s *Service) authorizedConnection(ctx context.Context, userID string, kind provider.Kind) (*models.ProviderConnection, provider.Connector, *provider.Token, error) {
	conn, err := s.connections.GetByUserProvider(ctx, userID, string(kind))
	if err != nil {
		return nil, nil, nil, err
	}
	if conn == nil {
		return nil, nil, nil, apperr.Newf(apperr.KindNotFound, "no %s connection", kind)
	}
	c, connector, token, err := s.authorizedConnectionFor(ctx, conn, kind)
	return c, connector, token, err
}

func (s *Service) authorizedConnectionFor(ctx context.Context, conn *models.ProviderConnection, kind provider.Kind) (*models.ProviderConnection, provider.Connector, *provider.Token, error) {
	connector, ok := s.connectors[kind]
	if !ok {
		return nil, nil, nil, apperr.Newf(apperr.KindValidation, "provider %s is not enabled", kind)
	}

	accessToken, err := s.cipher.Open(conn.AccessToken)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("decrypting access token: %w", err)
	}
	refreshToken, err := s.cipher.Open(conn.RefreshToken)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("decrypting refresh token: %w", err)
	}

	token := &provider.Token{
		AccessToken:    accessToken,
		RefreshToken:   refreshToken,
		ExpiresAt:      conn.ExpiresAt,
		ProviderUserID: conn.ProviderUserID,
	}

	if conn.TokenExpired(s.now()) {
		refreshed, err := connector.RefreshToken(ctx, refreshToken)
		if err != nil {
			telemetry.ProviderSyncErrorsTotal.WithLabelValues(string(kind), "refresh").Inc()
			return nil, nil, nil, apperr.Wrap(apperr.KindProvider, "token refresh failed, reconnect the provider", err)
		}

		sealedAccess, err := s.cipher.Seal(refreshed.AccessToken)
		if err != nil {
			return nil, nil, nil, err
		}
		newRefresh := refreshed.RefreshToken
		if newRefresh == "" {
			newRefresh = refreshToken
		}
		sealedRefresh, err := s.cipher.Seal(newRefresh)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := s.connections.UpdateTokens(ctx, conn.ID, sealedAccess, sealedRefresh, refreshed.ExpiresAt); err != nil {
			return nil, nil, nil, fmt.Errorf("storing refreshed tokens: %w", err)
		}

		token.AccessToken = refreshed.AccessToken
		token.RefreshToken = newRefresh
		token.ExpiresAt = refreshed.ExpiresAt
	}

	return conn, connector, token, nil
}
