// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pipeline

import "sync"

// Initializer is a one-shot handler: on HandlerAdded (or, if the pipeline
// never fires that event because it was already past registration,
// ChannelRegistered as a fallback) it runs Init to populate the pipeline
// with the handlers it actually needs, then removes itself.
//
// Init is guarded against re-entrance: if adding a later handler somehow
// triggers another HandlerAdded/ChannelRegistered on this same Initializer
// context before the first Init call returns (a pipeline reporting the
// same context as registering twice), the second call is dropped.
type Initializer struct {
	Init func(p *Pipeline)

	mu          sync.Mutex
	initializing map[*HandlerContext]bool
}

func (in *Initializer) markInitializing(ctx *HandlerContext) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.initializing == nil {
		in.initializing = make(map[*HandlerContext]bool)
	}
	if in.initializing[ctx] {
		return false
	}
	in.initializing[ctx] = true
	return true
}

func (in *Initializer) clearInitializing(ctx *HandlerContext) {
	in.mu.Lock()
	defer in.mu.Unlock()
	delete(in.initializing, ctx)
}

func (in *Initializer) run(ctx *HandlerContext) {
	if !in.markInitializing(ctx) {
		return
	}
	defer in.clearInitializing(ctx)

	if in.Init != nil {
		in.Init(ctx.Pipeline())
	}
	_ = ctx.Pipeline().Remove(ctx.Name())
}

// HandlerAdded implements HandlerAdder.
func (in *Initializer) HandlerAdded(ctx *HandlerContext) { in.run(ctx) }

// ChannelRegistered implements ChannelRegisteredHandler, the fallback path
// for a pipeline that only fires registration after the initializer has
// already been added.
func (in *Initializer) ChannelRegistered(ctx *HandlerContext) { in.run(ctx) }
