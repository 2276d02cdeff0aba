// Package jobs contains background workers that run on a schedule. The
// provider sync job keeps linked fitness accounts current for users who never
// trigger a manual sync; the invitation cleanup job prunes expired tokens.
// Jobs are idempotent, so re-running after a crash produces the same result as
// a clean run.
package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/thirtyx30/thirtyx30/internal/db/repositories"
	"github.com/thirtyx30/thirtyx30/internal/ingest"
	"github.com/thirtyx30/thirtyx30/internal/provider"
	"github.com/thirtyx30/thirtyx30/internal/safego"
)

// syncWindow is how far back each scheduled pull looks. Wider than the run
// interval so a missed run or late provider upload still gets picked up;
// dedup makes the overlap harmless.
const syncWindow = 48 * time.Hour

// ProviderSyncJob periodically pulls recent activities for every linked
// provider account. Webhook-driven providers mostly arrive fresh anyway; this
// job is the safety net for missed deliveries and for pull-only providers.
type ProviderSyncJob struct {
	connections *repositories.ConnectionRepository
	ingest      *ingest.Service
	stopCh      chan struct{}
	wg          sync.WaitGroup
}

// NewProviderSyncJob creates the provider sync job
func NewProviderSyncJob(connections *repositories.ConnectionRepository, svc *ingest.Service) *ProviderSyncJob {
	return &ProviderSyncJob{
		connections: connections,
		ingest:      svc,
		stopCh:      make(chan struct{}),
	}
}

// Start begins the periodic sync loop. The first run happens one interval
// after startup, not immediately, so a crash-looping deploy does not hammer
// provider APIs.
func (j *ProviderSyncJob) Start(ctx context.Context, interval time.Duration) {
	slog.Info("provider sync job started", "interval", interval)

	j.wg.Add(1)
	safego.Go("provider-sync-loop", func() {
		defer j.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				j.runOnce(ctx)
			case <-j.stopCh:
				slog.Info("provider sync job stopped")
				return
			case <-ctx.Done():
				slog.Info("provider sync job context cancelled")
				return
			}
		}
	})
}

// Stop stops the job and waits for an in-flight run to finish
func (j *ProviderSyncJob) Stop() {
	close(j.stopCh)
	j.wg.Wait()
}

func (j *ProviderSyncJob) runOnce(ctx context.Context) {
	conns, err := j.connections.ListAll(ctx)
	if err != nil {
		slog.Error("provider sync: listing connections failed", "error", err)
		return
	}
	if len(conns) == 0 {
		return
	}

	var synced, failed int
	for _, conn := range conns {
		select {
		case <-j.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		result, err := j.ingest.SyncProvider(ctx, conn.UserID, provider.Kind(conn.Provider), syncWindow)
		if err != nil {
			failed++
			slog.Warn("provider sync failed",
				"provider", conn.Provider, "user_id", conn.UserID, "error", err)
			continue
		}
		synced++
		if result.Ingested > 0 {
			slog.Info("provider sync ingested activities",
				"provider", conn.Provider, "user_id", conn.UserID, "ingested", result.Ingested)
		}
	}

	slog.Info("provider sync run complete", "connections", len(conns), "synced", synced, "failed", failed)
}
