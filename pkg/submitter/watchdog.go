package submitter

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/initia-labs/batch-submitter/pkg/batch"
)

// HeightSource reports the latest L2 height.
type HeightSource interface {
	LatestHeight(ctx context.Context) (uint64, error)
}

// StartLagWatchdog warns when more than maxLag fully produced batches are
// waiting behind the loop. It checks every interval and returns when ctx is done.
func StartLagWatchdog(
	ctx context.Context,
	log *zap.SugaredLogger,
	l *Loop,
	heights HeightSource,
	w batch.Window,
	interval time.Duration,
	maxLag uint64,
) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			st := l.State()
			if st.Phase == PhaseIdle || st.Phase == PhaseInitializing || st.Phase == PhaseStopped {
				continue
			}
			height, err := heights.LatestHeight(ctx)
			if err != nil {
				log.Warnw("lag watchdog failed to read chain height", "error", err)
				continue
			}
			var lag uint64
			if completed := w.Completed(height); completed > st.Index {
				lag = completed - st.Index
			}
			if lag > maxLag {
				log.Warnw("submission lag too large",
					"lag", lag,
					"batchIndex", st.Index,
					"chainHeight", height,
					"phase", st.Phase,
				)
			}
		}
	}
}
