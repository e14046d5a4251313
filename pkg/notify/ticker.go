package notify

import (
	"context"
	"time"
)

// Ticker publishes a default event carrying data every interval until ctx
// is cancelled.
func Ticker(ctx context.Context, b *Broker, interval time.Duration, data string) {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			b.Publish(Event{Data: data})
		}
	}
}
