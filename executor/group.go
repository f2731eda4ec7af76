// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package executor

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// Group owns a fixed set of loops and a chooser that hands out the next
// loop for a new registration. Registration is permanent: once a channel
// (or any other registrant) is assigned a loop, it never moves.
type Group struct {
	loops []*EventLoop
	next  atomic.Uint64
}

// NewGroup creates n loops, each with its own Poller from newPoller (call
// once per loop so pollers are never shared), and starts their Run
// goroutines.
func NewGroup(n int, newPoller func() Poller, cfg Config) *Group {
	if n < 1 {
		panic("executor: group size must be >= 1")
	}
	g := &Group{loops: make([]*EventLoop, n)}
	for i := range g.loops {
		loop := NewEventLoop(newPoller(), cfg)
		g.loops[i] = loop
		go loop.Run()
	}
	return g
}

// Next returns the next loop per the chooser: a power-of-two mask for a
// power-of-two loop count, otherwise modulo on a 64-bit counter (avoids
// overflow skew spec.md §4.I calls out for the naive approach).
func (g *Group) Next() *EventLoop {
	n := uint64(len(g.loops))
	cur := g.next.Add(1) - 1
	if n&(n-1) == 0 {
		return g.loops[cur&(n-1)]
	}
	return g.loops[cur%n]
}

// Loops returns the group's loops in fixed registration order.
func (g *Group) Loops() []*EventLoop { return g.loops }

// Len returns the number of loops in the group.
func (g *Group) Len() int { return len(g.loops) }

// ShutdownGracefully shuts down every loop concurrently via
// golang.org/x/sync/errgroup and returns once all of their termination
// futures have completed or ctx is cancelled.
func (g *Group) ShutdownGracefully(ctx context.Context, quietPeriod, timeout time.Duration) error {
	var eg errgroup.Group
	for _, loop := range g.loops {
		loop := loop
		fut := loop.ShutdownGracefully(quietPeriod, timeout)
		eg.Go(func() error {
			return fut.Await(ctx)
		})
	}
	return eg.Wait()
}
