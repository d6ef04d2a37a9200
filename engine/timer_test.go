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
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"

	. "github.com/sabouaram/rio/engine"
)

var _ = Describe("TickTimerManager", func() {
	It("fires the callback once the deadline elapses", func() {
		m := NewTickTimerManager[string](5 * time.Millisecond)
		m.Start()
		defer m.Stop()

		fired := make(chan struct{})
		m.ScheduleTimer("a", 10*time.Millisecond, func() { close(fired) })

		gomega.Eventually(fired, time.Second).Should(gomega.BeClosed())
	})

	It("never fires a cancelled timer", func() {
		m := NewTickTimerManager[string](5 * time.Millisecond)
		m.Start()
		defer m.Stop()

		var fired int32
		m.ScheduleTimer("a", 20*time.Millisecond, func() { atomic.AddInt32(&fired, 1) })
		m.CancelTimer("a")

		gomega.Consistently(func() int32 { return atomic.LoadInt32(&fired) }, 100*time.Millisecond, 10*time.Millisecond).Should(gomega.Equal(int32(0)))
	})

	It("re-arming the same key replaces the prior deadline", func() {
		m := NewTickTimerManager[string](5 * time.Millisecond)
		m.Start()
		defer m.Stop()

		var calls int32
		m.ScheduleTimer("a", 200*time.Millisecond, func() { atomic.AddInt32(&calls, 1) })
		m.ScheduleTimer("a", 10*time.Millisecond, func() { atomic.AddInt32(&calls, 1) })

		gomega.Eventually(func() int32 { return atomic.LoadInt32(&calls) }, time.Second).Should(gomega.Equal(int32(1)))
		gomega.Consistently(func() int32 { return atomic.LoadInt32(&calls) }, 250*time.Millisecond, 20*time.Millisecond).Should(gomega.Equal(int32(1)))
	})

	It("Stop prevents any further callback from firing", func() {
		m := NewTickTimerManager[string](5 * time.Millisecond)
		m.Start()

		var fired int32
		m.ScheduleTimer("a", 15*time.Millisecond, func() { atomic.AddInt32(&fired, 1) })
		m.Stop()

		gomega.Consistently(func() int32 { return atomic.LoadInt32(&fired) }, 100*time.Millisecond, 10*time.Millisecond).Should(gomega.Equal(int32(0)))
	})
})

var _ = Describe("PerOpTimerManager", func() {
	It("fires the callback once the deadline elapses", func() {
		m := NewPerOpTimerManager[string]()
		defer m.Stop()

		fired := make(chan struct{})
		m.ScheduleTimer("a", 10*time.Millisecond, func() { close(fired) })

		gomega.Eventually(fired, time.Second).Should(gomega.BeClosed())
	})

	It("never fires a cancelled timer", func() {
		m := NewPerOpTimerManager[string]()
		defer m.Stop()

		var fired int32
		m.ScheduleTimer("a", 20*time.Millisecond, func() { atomic.AddInt32(&fired, 1) })
		m.CancelTimer("a")

		gomega.Consistently(func() int32 { return atomic.LoadInt32(&fired) }, 100*time.Millisecond, 10*time.Millisecond).Should(gomega.Equal(int32(0)))
	})

	It("re-arming the same key before it fires only invokes the latest callback", func() {
		m := NewPerOpTimerManager[string]()
		defer m.Stop()

		var calls int32
		m.ScheduleTimer("a", 5*time.Millisecond, func() { atomic.AddInt32(&calls, 1) })
		m.ScheduleTimer("a", 30*time.Millisecond, func() { atomic.AddInt32(&calls, 1) })

		gomega.Eventually(func() int32 { return atomic.LoadInt32(&calls) }, time.Second).Should(gomega.Equal(int32(1)))
		gomega.Consistently(func() int32 { return atomic.LoadInt32(&calls) }, 100*time.Millisecond, 10*time.Millisecond).Should(gomega.Equal(int32(1)))
	})
})
