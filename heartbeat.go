package frontdesk

import (
	"context"
	"time"
)

// DefaultHeartbeatInterval is how often an open channel is pinged.
const DefaultHeartbeatInterval = 30 * time.Second

// heartbeat pings on a fixed interval until stopped. A missing
// acknowledgement is not treated as a failure; dead connections are found
// through the transport close.
type heartbeat struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func startHeartbeat(interval time.Duration, ping func(context.Context) error) *heartbeat {
	ctx, cancel := context.WithCancel(context.Background())
	hb := &heartbeat{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(hb.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := ping(ctx); err != nil {
					return
				}
			}
		}
	}()
	return hb
}

// stop cancels the ticker. It does not wait for an in-progress ping.
func (hb *heartbeat) stop() {
	if hb != nil {
		hb.cancel()
	}
}
