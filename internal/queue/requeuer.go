package queue

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/windingtree/orgid-migrator/internal/jobstore"
)

// Requeuer periodically moves due delayed jobs back onto the broker and
// rescues jobs abandoned by a crashed worker. One instance per worker
// process is fine: the flips are guarded by row locks and claiming makes
// a duplicated delivery harmless.
type Requeuer struct {
	store      jobstore.Store
	pub        Publisher
	interval   time.Duration
	batch      int
	staleAfter time.Duration
	logger     *slog.Logger
}

func NewRequeuer(store jobstore.Store, pub Publisher, interval time.Duration, batch int, staleAfter time.Duration, logger *slog.Logger) *Requeuer {
	return &Requeuer{
		store:      store,
		pub:        pub,
		interval:   interval,
		batch:      batch,
		staleAfter: staleAfter,
		logger:     logger,
	}
}

// Run loops until the context is canceled.
func (r *Requeuer) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("Requeuer started",
		slog.Duration("interval", r.interval),
		slog.Duration("stale_after", r.staleAfter),
	)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Requeuer stopped")
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *Requeuer) sweep(ctx context.Context) {
	now := time.Now().UTC()

	due, err := r.store.DueDelayed(ctx, now, r.batch)
	if err != nil {
		r.logger.Error("Failed to collect due jobs", slog.Any("error", err))
	} else {
		r.republish(ctx, due, "retry")
	}

	stale, err := r.store.StaleActive(ctx, now.Add(-r.staleAfter), r.batch)
	if err != nil {
		r.logger.Error("Failed to collect stale jobs", slog.Any("error", err))
	} else {
		r.republish(ctx, stale, "stale")
	}
}

func (r *Requeuer) republish(ctx context.Context, ids []string, cause string) {
	for _, id := range ids {
		body, err := json.Marshal(Message{JobID: id})
		if err != nil {
			continue
		}
		if err := r.pub.Publish(ctx, body, "application/json"); err != nil {
			// Park the row as delayed again so the next sweep retries
			// the publish. Keep the worker's recorded failure reason;
			// status queries surface it and a broker hiccup must not
			// overwrite it.
			reason := "republish failed"
			if job, getErr := r.store.Get(ctx, id); getErr == nil && job.Error != "" {
				reason = job.Error
			}
			if delayErr := r.store.Delay(ctx, id, time.Now().UTC().Add(r.interval), reason); delayErr != nil {
				r.logger.Error("Failed to park unpublished job",
					slog.String("job_id", id),
					slog.Any("error", delayErr),
				)
			}
			r.logger.Error("Failed to republish job",
				slog.String("job_id", id),
				slog.String("cause", cause),
				slog.Any("error", err),
			)
			continue
		}
		r.logger.Info("Job republished",
			slog.String("job_id", id),
			slog.String("cause", cause),
		)
	}
}
