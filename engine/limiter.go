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

package engine

import (
	"runtime"
	"sync"
)

// AcceptNotifier is the small duplex interface the admission Limiter
// calls back into: two methods so the acceptor/limiter pair can hold
// each other without either side owning the other. The Limiter holds
// this as a plain interface value, never a concrete *Acceptor, keeping
// the reference weak in spirit.
type AcceptNotifier interface {
	// CallAcceptNow is invoked synchronously from within AcceptNext
	// when admission allows slot i to post its accept immediately.
	CallAcceptNow(slot int)
	// ScheduleNextAcceptAttempt is invoked later, when a connection
	// releases a slot, for a slot i that had been deferred.
	ScheduleNextAcceptAttempt(slot int)
}

// Limiter is the connection-count admission limiter: the only
// cross-connection mutable state on the accept hot path. The
// invariant active_accepts + live_connections <= max_parallel holds at
// every observable point.
type Limiter struct {
	mu              sync.Mutex
	maxParallel     int
	activeAccepts   int
	liveConnections int
	pending         []int // LIFO stack of deferred slot indices
	notifier        AcceptNotifier
}

// NewLimiter builds a Limiter capped at maxParallel total connections
// (in-flight accepts plus live connections).
func NewLimiter(maxParallel int) *Limiter {
	if maxParallel < 1 {
		maxParallel = 1
	}
	return &Limiter{maxParallel: maxParallel}
}

// Bind attaches the acceptor-side callback surface once the Acceptor
// owning this Limiter has been constructed.
func (l *Limiter) Bind(n AcceptNotifier) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.notifier = n
}

// AcceptNext either admits slot immediately or parks it until a
// connection closes and frees capacity.
func (l *Limiter) AcceptNext(slot int) {
	l.mu.Lock()
	if l.activeAccepts+l.liveConnections < l.maxParallel {
		l.activeAccepts++
		n := l.notifier
		l.mu.Unlock()
		if n != nil {
			n.CallAcceptNow(slot)
		}
		return
	}
	l.pending = append(l.pending, slot)
	l.mu.Unlock()
}

// AcceptReturned marks that the accept syscall for a slot admitted via
// CallAcceptNow has returned (success or failure); the slot is no
// longer an "active accept" either way.
func (l *Limiter) AcceptReturned() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.activeAccepts > 0 {
		l.activeAccepts--
	}
}

// ConnectionOpened increments the live-connection count once a socket
// has cleared the IP blocker and a Connection has been constructed.
func (l *Limiter) ConnectionOpened() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.liveConnections++
}

// ConnectionClosed is the decrement half of the lifetime-monitor RAII
// token: it fires from a Connection's terminal cleanup path, and pops
// one pending slot (if any) to resume accepting.
func (l *Limiter) ConnectionClosed() {
	l.mu.Lock()
	if l.liveConnections > 0 {
		l.liveConnections--
	}

	var (
		slot       int
		hasPending bool
	)
	if n := len(l.pending); n > 0 {
		slot = l.pending[n-1]
		l.pending = l.pending[:n-1]
		hasPending = true
	}
	n := l.notifier
	l.mu.Unlock()

	if hasPending && n != nil {
		n.ScheduleNextAcceptAttempt(slot)
	}
}

// Snapshot reports the current admission counters, mainly for tests
// asserting the active_accepts + live_connections <= max_parallel
// invariant and for the monitor surface in httpserver.
func (l *Limiter) Snapshot() (activeAccepts, liveConnections, maxParallel int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.activeAccepts, l.liveConnections, l.maxParallel
}

// LifetimeMonitor is a token attached to a Connection at construction:
// it increments the limiter's live count once, and decrements exactly
// once on Release, however Release is reached (graceful close, panic
// recovery, or the finalizer safety net if the owning Connection is
// collected without ever releasing).
type LifetimeMonitor struct {
	limiter *Limiter
	once    sync.Once
}

func NewLifetimeMonitor(l *Limiter) *LifetimeMonitor {
	l.ConnectionOpened()
	m := &LifetimeMonitor{limiter: l}
	runtime.SetFinalizer(m, (*LifetimeMonitor).Release)
	return m
}

func (m *LifetimeMonitor) Release() {
	m.once.Do(func() {
		runtime.SetFinalizer(m, nil)
		m.limiter.ConnectionClosed()
	})
}
