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
	"fmt"
	"net"
	"sync"
	"sync/atomic"
)

// Acceptor runs ConcurrentAccepts independent accept loops ("slots")
// gated by a shared Limiter: each slot asks the limiter whether
// it may accept now, blocks in accept() once admitted, and asks again
// once it returns. It implements AcceptNotifier so the Limiter can
// call back into it without holding a concrete reference to anything
// beyond that small interface.
type Acceptor struct {
	ln      net.Listener
	cfg     ListenerConfig
	handler Handler
	limiter *Limiter
	timers  TimerManager[timerKey]

	nextConnID uint64
	closed     int32

	wg sync.WaitGroup
}

// Addr reports the bound address of the underlying net.Listener, the
// actual ephemeral port once BindAddress:0 was requested.
func (a *Acceptor) Addr() net.Addr {
	return a.ln.Addr()
}

func newAcceptor(ln net.Listener, cfg ListenerConfig, handler Handler, timers TimerManager[timerKey]) *Acceptor {
	a := &Acceptor{
		ln:      ln,
		cfg:     cfg,
		handler: handler,
		limiter: NewLimiter(cfg.MaxParallelConnections),
		timers:  timers,
	}
	a.limiter.Bind(a)
	return a
}

// Start launches the ConcurrentAccepts accept slots.
func (a *Acceptor) Start() {
	n := a.cfg.ConcurrentAccepts
	if n < 1 {
		n = 1
	}
	for slot := 0; slot < n; slot++ {
		a.limiter.AcceptNext(slot)
	}
}

// CallAcceptNow is the Limiter's go-ahead for slot: run the blocking
// accept() on its own goroutine so the limiter's mutex is never held
// across a syscall.
func (a *Acceptor) CallAcceptNow(slot int) {
	go a.acceptOne(slot)
}

// ScheduleNextAcceptAttempt re-enters admission for a slot that had
// been parked waiting for a live connection to close.
func (a *Acceptor) ScheduleNextAcceptAttempt(slot int) {
	a.limiter.AcceptNext(slot)
}

func (a *Acceptor) acceptOne(slot int) {
	nc, err := a.ln.Accept()
	a.limiter.AcceptReturned()

	if err != nil {
		if atomic.LoadInt32(&a.closed) != 0 {
			return
		}
		a.logf("accept error on slot %d: %v", slot, err)
		a.limiter.AcceptNext(slot)
		return
	}

	if a.cfg.IPBlocker != nil && !a.cfg.IPBlocker(nc.RemoteAddr()) {
		_ = nc.Close()
		a.limiter.AcceptNext(slot)
		return
	}

	connID := atomic.AddUint64(&a.nextConnID, 1)
	lifetime := NewLifetimeMonitor(a.limiter)

	a.wg.Add(1)
	if a.cfg.SeparateAcceptAndConstruct {
		// Construction happens on the serve goroutine, freeing this
		// slot to re-enter admission without waiting on it.
		go func() {
			defer a.wg.Done()
			newConnection(connID, nc, a.cfg, a.handler, a.timers, lifetime).Serve()
		}()
	} else {
		conn := newConnection(connID, nc, a.cfg, a.handler, a.timers, lifetime)
		go func() {
			defer a.wg.Done()
			conn.Serve()
		}()
	}

	a.limiter.AcceptNext(slot)
}

// Shutdown stops accepting new connections and waits for in-flight
// connections to finish their current Serve loop.
func (a *Acceptor) Shutdown() {
	atomic.StoreInt32(&a.closed, 1)
	_ = a.ln.Close()
	a.wg.Wait()
}

func (a *Acceptor) logf(format string, args ...any) {
	if a.cfg.Logger == nil {
		return
	}
	a.cfg.Logger.Warn(nil, func() string { return fmt.Sprintf(format, args...) })
}
