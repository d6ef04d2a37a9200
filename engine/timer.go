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
	"sync"
	"sync/atomic"
	"time"
)

// TimerCallback fires at most once per scheduled instance.
type TimerCallback func()

// TimerManager is the contract both the coalesced tick implementation
// and the per-op implementation satisfy. Timers are addressed by an
// opaque, comparable key — in this module a timerKey pairing the
// connection id with the logical phase (read/handle/write), since Go
// has no stable connection pointer identity to key off directly.
type TimerManager[K comparable] interface {
	Start()
	Stop()
	ScheduleTimer(id K, timeout time.Duration, cb TimerCallback)
	CancelTimer(id K)
}

// timerEntry is one armed deadline: the stable tag lets a fired
// callback recognize it has gone stale against a re-arm or cancel that
// raced it.
type timerEntry struct {
	deadline time.Time
	cb       TimerCallback
	tag      uint32
}

// TickTimerManager is the default TimerManager: a single periodic tick
// sweeps a map of deadlines instead of allocating one OS timer per
// entry.
type TickTimerManager[K comparable] struct {
	mu       sync.Mutex
	entries  map[K]*timerEntry
	tick     time.Duration
	ticker   *time.Ticker
	stopCh   chan struct{}
	cancelCh chan K
	tagSeq   uint32
	started  bool
}

// NewTickTimerManager builds a manager with the given sweep interval;
// the default is 1s.
func NewTickTimerManager[K comparable](tick time.Duration) *TickTimerManager[K] {
	if tick <= 0 {
		tick = time.Second
	}
	return &TickTimerManager[K]{
		entries:  make(map[K]*timerEntry),
		tick:     tick,
		cancelCh: make(chan K, 256),
	}
}

func (m *TickTimerManager[K]) Start() {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.ticker = time.NewTicker(m.tick)
	m.stopCh = make(chan struct{})
	ticker := m.ticker
	stop := m.stopCh
	m.mu.Unlock()

	go m.loop(ticker, stop)
}

func (m *TickTimerManager[K]) loop(ticker *time.Ticker, stop chan struct{}) {
	for {
		select {
		case <-stop:
			ticker.Stop()
			return
		case id := <-m.cancelCh:
			// Cancellation is applied here, on the sweep goroutine, never
			// from the caller's goroutine: deleting from the map while a
			// sweep ranges over it would be a data race / invalidate the
			// iterator.
			m.mu.Lock()
			delete(m.entries, id)
			m.mu.Unlock()
		case now := <-ticker.C:
			m.sweep(now)
		}
	}
}

func (m *TickTimerManager[K]) sweep(now time.Time) {
	type dueEntry struct {
		id K
		e  *timerEntry
	}

	m.mu.Lock()
	var due []dueEntry
	for id, e := range m.entries {
		if !now.Before(e.deadline) {
			due = append(due, dueEntry{id: id, e: e})
			delete(m.entries, id)
		}
	}
	m.mu.Unlock()

	for _, d := range due {
		if d.e.cb == nil {
			continue
		}
		go func(id K, e *timerEntry) {
			// A re-arm that raced this dispatch leaves a live entry with
			// a newer tag under the same id; this firing is then stale
			// and must be a no-op.
			m.mu.Lock()
			if cur, ok := m.entries[id]; ok && cur.tag != e.tag {
				m.mu.Unlock()
				return
			}
			m.mu.Unlock()
			e.cb()
		}(d.id, d.e)
	}
}

// ScheduleTimer (re)arms id; the latest call always wins, and entries
// are applied immediately under the mutex (this is the "dispatch"
// side of the contract — only cancellation needs to be posted).
func (m *TickTimerManager[K]) ScheduleTimer(id K, timeout time.Duration, cb TimerCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.tagSeq++
	m.entries[id] = &timerEntry{
		deadline: time.Now().Add(timeout),
		cb:       cb,
		tag:      m.tagSeq,
	}
}

// CancelTimer queues id for removal on the sweep goroutine.
func (m *TickTimerManager[K]) CancelTimer(id K) {
	select {
	case m.cancelCh <- id:
	default:
		// Cancel channel saturated: fall back to a direct, locked delete
		// rather than drop the cancellation outright.
		m.mu.Lock()
		delete(m.entries, id)
		m.mu.Unlock()
	}
}

func (m *TickTimerManager[K]) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.started = false
	stop := m.stopCh
	m.entries = make(map[K]*timerEntry)
	m.mu.Unlock()

	close(stop)
}

// PerOpTimerManager is the one-OS-timer-per-deadline alternative
// implementation of the same contract, backed by time.AfterFunc. Each
// entry still carries a tag: time.Timer.Stop can race a timer that has
// already fired (and queued its function), so a stale fire must
// recognize it no longer matches the live entry before invoking the
// user callback.
type PerOpTimerManager[K comparable] struct {
	mu      sync.Mutex
	entries map[K]*perOpEntry
	tagSeq  uint32
}

type perOpEntry struct {
	timer *time.Timer
	tag   uint32
}

func NewPerOpTimerManager[K comparable]() *PerOpTimerManager[K] {
	return &PerOpTimerManager[K]{entries: make(map[K]*perOpEntry)}
}

func (m *PerOpTimerManager[K]) Start() {}

func (m *PerOpTimerManager[K]) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, e := range m.entries {
		e.timer.Stop()
		delete(m.entries, id)
	}
}

func (m *PerOpTimerManager[K]) ScheduleTimer(id K, timeout time.Duration, cb TimerCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.entries[id]; ok {
		old.timer.Stop()
	}

	tag := atomic.AddUint32(&m.tagSeq, 1)
	entry := &perOpEntry{tag: tag}
	entry.timer = time.AfterFunc(timeout, func() {
		m.mu.Lock()
		cur, ok := m.entries[id]
		if !ok || cur.tag != tag {
			m.mu.Unlock()
			return // stale firing raced a re-arm or cancel
		}
		delete(m.entries, id)
		m.mu.Unlock()
		cb()
	})
	m.entries[id] = entry
}

func (m *PerOpTimerManager[K]) CancelTimer(id K) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[id]; ok {
		e.timer.Stop()
		delete(m.entries, id)
	}
}
