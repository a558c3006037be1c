package settlement

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// flightGroup runs one call per key for every concurrent caller. The call runs
// on a context detached from its callers and is cancelled once the last of
// them has stopped waiting.
type flightGroup struct {
	group singleflight.Group

	mu      sync.Mutex
	flights map[string]*flight
}

type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

func (g *flightGroup) do(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error) {
	f := g.join(ctx, key)
	defer g.leave(key, f)

	ch := g.group.DoChan(key, func() (any, error) {
		return fn(f.ctx)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		return res.Val, res.Err
	}
}

func (g *flightGroup) join(ctx context.Context, key string) *flight {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.flights == nil {
		g.flights = make(map[string]*flight)
	}

	f, ok := g.flights[key]
	if !ok {
		flightCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{ctx: flightCtx, cancel: cancel}
		g.flights[key] = f
	}

	f.waiters++
	return f
}

func (g *flightGroup) leave(key string, f *flight) {
	g.mu.Lock()
	defer g.mu.Unlock()

	f.waiters--
	if f.waiters > 0 {
		return
	}

	f.cancel()
	delete(g.flights, key)
	// A later caller must not join a call whose context is already cancelled.
	g.group.Forget(key)
}

func (g *flightGroup) waiting(key string) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	if f, ok := g.flights[key]; ok {
		return f.waiters
	}
	return 0
}
