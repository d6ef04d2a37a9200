/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 */

// Package context attaches a typed, concurrency-safe user-data bag to
// a standard context.Context. The engine hands one to every incoming
// request, so a handler can stash per-request values and still pass
// the same object anywhere a context.Context is expected.
package context

import (
	"context"
	"time"

	libatm "github.com/sabouaram/rio/atomic"
)

// Config is the user-data slot: a context.Context plus a bag of values
// under keys of type T.
type Config[T comparable] interface {
	context.Context

	// Load returns the value stored under key, if any.
	Load(key T) (val any, ok bool)
	// Store records val under key. Nil values are ignored, and nothing
	// is recorded once the embedded context has been cancelled: a dead
	// request keeps no state.
	Store(key T, val any)
	// Delete removes key from the bag.
	Delete(key T)
	// Walk visits every entry until fn returns false.
	Walk(fn func(key T, val any) bool)
}

// New builds a Config riding on ctx; nil falls back to
// context.Background.
func New[T comparable](ctx context.Context) Config[T] {
	if ctx == nil {
		ctx = context.Background()
	}
	return &ccx[T]{
		x: ctx,
		m: libatm.NewMap[T](),
	}
}

type ccx[T comparable] struct {
	x context.Context
	m *libatm.Map[T]
}

func (c *ccx[T]) Deadline() (time.Time, bool) { return c.x.Deadline() }
func (c *ccx[T]) Done() <-chan struct{}       { return c.x.Done() }
func (c *ccx[T]) Err() error                  { return c.x.Err() }

// Value resolves keys of type T against the bag first, then falls back
// to the embedded context chain.
func (c *ccx[T]) Value(key any) any {
	if k, ok := key.(T); ok {
		if v, found := c.m.Load(k); found {
			return v
		}
	}
	return c.x.Value(key)
}

func (c *ccx[T]) Load(key T) (any, bool) {
	return c.m.Load(key)
}

func (c *ccx[T]) Store(key T, val any) {
	if val == nil || c.x.Err() != nil {
		return
	}
	c.m.Store(key, val)
}

func (c *ccx[T]) Delete(key T) {
	c.m.Delete(key)
}

func (c *ccx[T]) Walk(fn func(key T, val any) bool) {
	c.m.Range(fn)
}
