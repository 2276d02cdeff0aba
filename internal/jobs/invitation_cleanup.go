package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/thirtyx30/thirtyx30/internal/db/repositories"
	"github.com/thirtyx30/thirtyx30/internal/safego"
)

// InvitationCleanupJob periodically deletes expired, unaccepted organization
// invitations so dead tokens do not accumulate.
type InvitationCleanupJob struct {
	invitations *repositories.InvitationRepository
	stopCh      chan struct{}
	wg          sync.WaitGroup
}

// NewInvitationCleanupJob creates the cleanup job
func NewInvitationCleanupJob(invitations *repositories.InvitationRepository) *InvitationCleanupJob {
	return &InvitationCleanupJob{
		invitations: invitations,
		stopCh:      make(chan struct{}),
	}
}

// Start begins the periodic cleanup loop, running once immediately
func (j *InvitationCleanupJob) Start(ctx context.Context, interval time.Duration) {
	slog.Info("invitation cleanup job started", "interval", interval)

	j.wg.Add(1)
	safego.Go("invitation-cleanup-loop", func() {
		defer j.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		j.runOnce(ctx)

		for {
			select {
			case <-ticker.C:
				j.runOnce(ctx)
			case <-j.stopCh:
				slog.Info("invitation cleanup job stopped")
				return
			case <-ctx.Done():
				slog.Info("invitation cleanup job context cancelled")
				return
			}
		}
	})
}

// Stop stops the job and waits for an in-flight run to finish
func (j *InvitationCleanupJob) Stop() {
	close(j.stopCh)
	j.wg.Wait()
}

func (j *InvitationCleanupJob) runOnce(ctx context.Context) {
	deleted, err := j.invitations.DeleteExpired(ctx)
	if err != nil {
		slog.Error("invitation cleanup failed", "error", err)
		return
	}
	if deleted > 0 {
		slog.Info("expired invitations removed", "count", deleted)
	}
}
