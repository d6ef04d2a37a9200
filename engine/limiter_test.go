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

package engine_test

import (
	"sync"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"

	. "github.com/sabouaram/rio/engine"
)

type recordingNotifier struct {
	mu          sync.Mutex
	acceptedNow []int
	scheduled   []int
}

func (r *recordingNotifier) CallAcceptNow(slot int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.acceptedNow = append(r.acceptedNow, slot)
}

func (r *recordingNotifier) ScheduleNextAcceptAttempt(slot int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scheduled = append(r.scheduled, slot)
}

// channelNotifier feeds admitted slots to a worker pool and re-enters
// deferred slots into admission, the way the real Acceptor does.
type channelNotifier struct {
	l         *Limiter
	ch        chan int
	completed int32
}

func (c *channelNotifier) CallAcceptNow(slot int)             { c.ch <- slot }
func (c *channelNotifier) ScheduleNextAcceptAttempt(slot int) { c.l.AcceptNext(slot) }

// done records one completed connection and reports the running total.
func (c *channelNotifier) done() int32 { return atomic.AddInt32(&c.completed, 1) }

var _ = Describe("Limiter", func() {
	It("admits immediately while under maxParallel", func() {
		l := NewLimiter(2)
		n := &recordingNotifier{}
		l.Bind(n)

		l.AcceptNext(0)
		gomega.Expect(n.acceptedNow).To(gomega.Equal([]int{0}))

		active, live, max := l.Snapshot()
		gomega.Expect(active).To(gomega.Equal(1))
		gomega.Expect(live).To(gomega.Equal(0))
		gomega.Expect(max).To(gomega.Equal(2))
	})

	It("defers admission once active_accepts + live_connections reaches maxParallel", func() {
		l := NewLimiter(1)
		n := &recordingNotifier{}
		l.Bind(n)

		l.AcceptNext(0)
		l.AcceptNext(1)

		gomega.Expect(n.acceptedNow).To(gomega.Equal([]int{0}))
		gomega.Expect(n.scheduled).To(gomega.BeEmpty())
	})

	It("resumes a deferred slot once a connection closes", func() {
		l := NewLimiter(1)
		n := &recordingNotifier{}
		l.Bind(n)

		l.AcceptNext(0)
		l.AcceptReturned()
		l.ConnectionOpened()

		l.AcceptNext(1) // deferred: 1 live connection already at capacity

		l.ConnectionClosed()
		gomega.Expect(n.scheduled).To(gomega.Equal([]int{1}))
	})

	It("never lets active_accepts + live_connections exceed maxParallel under concurrent churn", func() {
		const (
			maxParallel = 4
			total       = 50
		)
		l := NewLimiter(maxParallel)

		// An admission-respecting notifier: admitted slots flow to the
		// worker pool; deferred slots re-enter admission when popped.
		admitted := make(chan int, total)
		n := &channelNotifier{l: l, ch: admitted}
		l.Bind(n)

		for slot := 0; slot < total; slot++ {
			l.AcceptNext(slot)
		}

		var wg sync.WaitGroup
		for w := 0; w < maxParallel; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for range admitted {
					l.AcceptReturned()
					l.ConnectionOpened()

					active, live, max := l.Snapshot()
					gomega.Expect(active + live).To(gomega.BeNumerically("<=", max))

					l.ConnectionClosed()

					if n.done() == total {
						close(admitted)
						return
					}
				}
			}()
		}
		wg.Wait()

		active, live, _ := l.Snapshot()
		gomega.Expect(active).To(gomega.Equal(0))
		gomega.Expect(live).To(gomega.Equal(0))
	})
})

var _ = Describe("LifetimeMonitor", func() {
	It("increments on construction and decrements exactly once even if Release is called twice", func() {
		l := NewLimiter(4)
		m := NewLifetimeMonitor(l)

		_, live, _ := l.Snapshot()
		gomega.Expect(live).To(gomega.Equal(1))

		m.Release()
		m.Release()

		_, live, _ = l.Snapshot()
		gomega.Expect(live).To(gomega.Equal(0))
	})
})
