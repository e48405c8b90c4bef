package audiobook

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/yuanying/audiobook/internal/drm"
	"github.com/yuanying/audiobook/internal/logging"
)

// CheckDRM runs the variant's verification and returns a channel that receives exactly one
// result. Open-access books report Succeeded immediately without a check. Each call starts a
// new attempt; a result from an attempt superseded by a later call is not applied.
func (b *Audiobook) CheckDRM(ctx context.Context) <-chan drm.Result {
	out := make(chan drm.Result, 1)
	attemptID := uuid.NewString()

	snap := b.state.Load()
	vf, ok := snap.variant.(verifier)
	if !ok {
		b.deliver(out, drm.Result{BookID: b.id, AttemptID: attemptID, Status: b.status.Load()})
		return out
	}

	attempt := b.status.Begin()
	sp := snap.spine
	logger := b.logger.With(slog.String(logging.FieldAttemptID, attemptID))
	logger.Debug("drm verification started")

	go func() {
		err := vf.Verify(ctx, sp)
		status := drm.Succeeded
		if err != nil {
			status = drm.Failed
		}
		if !b.status.Complete(attempt, err) {
			logger.Debug("drm verification superseded", slog.String(logging.FieldStatus, status.String()))
		} else if err != nil {
			logger.Warn("drm verification failed", logging.Error(err))
		} else {
			logger.Info("drm verification succeeded")
		}
		b.deliver(out, drm.Result{BookID: b.id, AttemptID: attemptID, Status: status, Err: err})
	}()
	return out
}

func (b *Audiobook) deliver(out chan<- drm.Result, r drm.Result) {
	out <- r
	close(out)
	if b.notify != nil {
		b.notify(r)
	}
}
