package frontdesk

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"
)

// RefreshFunc performs one call to the refresh endpoint.
type RefreshFunc func(ctx context.Context) (*AuthResult, error)

// RefreshCoordinator runs at most one credential refresh at a time. Callers
// that arrive while a refresh is in flight join it and receive its result.
// Once it settles the next caller starts a new one.
type RefreshCoordinator struct {
	refresh    RefreshFunc
	group      singleflight.Group
	refreshing *Value[bool]
	log        zerolog.Logger
	metrics    *instruments
}

const refreshKey = "refresh"

// NewRefreshCoordinator returns a coordinator around fn.
func NewRefreshCoordinator(fn RefreshFunc, log zerolog.Logger) *RefreshCoordinator {
	return &RefreshCoordinator{
		refresh:    fn,
		refreshing: NewValue(false),
		log:        log,
		metrics:    newInstruments(),
	}
}

// Acquire joins the in-flight refresh or starts one, and waits for it.
// Cancelling ctx stops the wait but not the shared refresh.
func (c *RefreshCoordinator) Acquire(ctx context.Context) (*AuthResult, error) {
	ch := c.group.DoChan(refreshKey, func() (interface{}, error) {
		return c.run(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*AuthResult), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Refreshing reports whether a refresh is in flight.
func (c *RefreshCoordinator) Refreshing() *Value[bool] {
	return c.refreshing
}

func (c *RefreshCoordinator) run(ctx context.Context) (*AuthResult, error) {
	c.refreshing.Set(true)
	defer c.refreshing.Set(false)

	start := time.Now()
	c.log.Debug().Msg("refreshing credentials")
	res, err := c.refresh(ctx)
	if err != nil {
		c.log.Debug().Err(err).Dur("took", time.Since(start)).Msg("refresh failed")
		c.metrics.add(c.metrics.refreshes, attribute.String("outcome", "failure"))
		return nil, err
	}
	if res == nil {
		res = &AuthResult{}
	}
	c.log.Debug().Dur("took", time.Since(start)).Msg("refresh settled")
	c.metrics.add(c.metrics.refreshes, attribute.String("outcome", "success"))
	return res, nil
}
