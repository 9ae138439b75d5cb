package store

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/matheuscscp/echo-callback/internal/logging"
)

// RunSweeper calls st.SweepExpired every interval until ctx is done.
func RunSweeper(ctx context.Context, st Store, interval time.Duration) {
	l := logging.FromContext(ctx).WithField("component", "sweeper")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.Debug("sweeper stopped")
			return
		case <-ticker.C:
			removed := st.SweepExpired()
			entry := l.WithFields(logrus.Fields{
				"removed": removed,
				"live":    st.Len(),
			})
			if removed > 0 {
				entry.Info("expired endpoints removed")
			} else {
				entry.Debug("no expired endpoints")
			}
		}
	}
}
