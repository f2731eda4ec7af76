// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package constpool implements the process-wide interned constant pool
// pattern used by AttributeKey/ChannelOption style APIs: a name maps to
// exactly one constant for the lifetime of the process, created lazily on
// first ValueOf(name).
package constpool

import "sync"

// Pool interns values of type T by name. The zero value is ready to use.
// A Pool is safe for concurrent use; it never removes entries, matching
// the described lifecycle: a fresh process starts with an empty pool, and
// nothing is ever evicted.
type Pool[T any] struct {
	mu     sync.Mutex
	byName map[string]T
}

// ValueOf returns the constant registered under name, creating it via
// newFunc on first use. Subsequent calls with the same name return the
// identical value without invoking newFunc again.
//
// Tests must not assume IDs or values are stable across process runs;
// only within a single run is the mapping guaranteed.
func (p *Pool[T]) ValueOf(name string, newFunc func(name string) T) T {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.byName == nil {
		p.byName = make(map[string]T)
	}
	if v, ok := p.byName[name]; ok {
		return v
	}
	v := newFunc(name)
	p.byName[name] = v
	return v
}

// Exists reports whether name has already been interned.
func (p *Pool[T]) Exists(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.byName[name]
	return ok
}

// Len returns the number of distinct names currently interned.
func (p *Pool[T]) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.byName)
}
