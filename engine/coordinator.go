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

	"github.com/sabouaram/rio/errs"
)

// responseSlot is the per-request response context: a queue of pending
// write groups plus the flags the coordinator tracks to know when the
// request is done contributing to the wire.
type responseSlot struct {
	populated       bool
	id              uint64
	queue           []*WriteGroup
	finalParts      bool
	connectionClose bool
}

// Coordinator is the fixed-capacity ring that preserves request-order
// on the wire across pipelined responses on one
// connection. It is owned by a single Connection; no external
// synchronization is required by the design, but it guards its own
// state with a mutex since ResponseBuilder.Done can be called from a
// goroutine other than the one driving reads.
type Coordinator struct {
	mu     sync.Mutex
	cond   *sync.Cond
	ring   []responseSlot
	cap    uint64
	head   uint64 // request id of the oldest un-finalized entry
	next   uint64 // next request id to hand out
	closed bool
}

// NewCoordinator builds a ring sized to hold at most capacity
// concurrently pipelined requests.
func NewCoordinator(capacity int) *Coordinator {
	if capacity < 1 {
		capacity = 1
	}
	c := &Coordinator{
		ring: make([]responseSlot, capacity),
		cap:  uint64(capacity),
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// idx maps a request id to its ring slot. Ids are handed out
// consecutively and at most cap are live at once, so id mod cap is the
// head's slot plus the id's offset from the head, and stays put while
// the head advances.
func (c *Coordinator) idx(id uint64) uint64 {
	return id % c.cap
}

// RegisterNewRequest allocates the next request id in strictly
// ascending order, failing if the ring is already full (backpressure:
// the caller should pause reading until the head drains).
func (c *Coordinator) RegisterNewRequest() (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.next-c.head >= c.cap {
		return 0, errs.New(ErrorRingFull, "")
	}

	id := c.next
	c.next++
	c.ring[c.idx(id)] = responseSlot{populated: true, id: id}
	return id, nil
}

// AppendResponse pushes wg onto id's pending queue, merging it with the
// queue's tail when mergeEligible allows, and records finalParts /
// connectionClose for this request.
func (c *Coordinator) AppendResponse(id uint64, finalParts, connectionClose bool, wg *WriteGroup) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if id < c.head || id >= c.next {
		return errs.New(ErrorUnknownRequestID, "")
	}

	slot := &c.ring[c.idx(id)]
	if !slot.populated || slot.id != id {
		return errs.New(ErrorUnknownRequestID, "")
	}
	if slot.finalParts {
		return errs.New(ErrorAppendAfterFinal, "")
	}

	if n := len(slot.queue); n > 0 && mergeEligible(slot.queue[n-1], wg) {
		slot.queue[n-1] = mergeInto(slot.queue[n-1], wg)
	} else {
		slot.queue = append(slot.queue, wg)
	}

	if finalParts {
		if slot.finalParts {
			return errs.New(ErrorDuplicateFinal, "")
		}
		slot.finalParts = true
		slot.connectionClose = connectionClose
	}

	return nil
}

// PopReadyBuffers returns the head request's front pending group, if
// any, advancing the head past a request whose queue has drained and
// whose finalParts flag is set. Only the head is ever eligible for
// output: this is what keeps bytes on the wire in request-id order
// regardless of how out-of-order the handlers finished.
func (c *Coordinator) PopReadyBuffers() (*WriteGroup, uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, 0, false
	}

	slot := &c.ring[c.idx(c.head)]
	if !slot.populated || slot.id != c.head || len(slot.queue) == 0 {
		return nil, 0, false
	}

	wg := slot.queue[0]
	slot.queue = slot.queue[1:]
	id := slot.id

	if wg.ConnectionClose {
		c.closed = true
	}

	if len(slot.queue) == 0 && slot.finalParts {
		*slot = responseSlot{}
		c.head++
	}
	c.cond.Broadcast()

	return wg, id, true
}

// WaitCapacity blocks until the ring has room for another request
// (reading backpressure: the read loop suspends, it does not fail,
// while MaxPipelinedRequests responses are still in flight). Returns
// false once the coordinator has been closed.
func (c *Coordinator) WaitCapacity() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.next-c.head >= c.cap && !c.closed {
		c.cond.Wait()
	}
	return !c.closed
}

// WaitDrained blocks until every registered request has been finalized
// and written (head caught up with next), or the coordinator was
// closed/reset. Lets the connection hold the socket open for handlers
// that completed their response from another goroutine.
func (c *Coordinator) WaitDrained() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.head != c.next && !c.closed {
		c.cond.Wait()
	}
}

// Reset drains every pending group across every slot, invoking each
// notificator with ErrorWriteNotExecuted, and marks the coordinator
// closed. Never panics: notificator panics are swallowed by
// WriteGroup.notify.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := errs.New(ErrorWriteNotExecuted, "")
	for i := range c.ring {
		for _, wg := range c.ring[i].queue {
			wg.notify(err)
		}
		c.ring[i] = responseSlot{}
	}
	c.closed = true
	c.cond.Broadcast()
}

// HeadID reports the request id of the oldest un-finalized request,
// mainly useful from tests asserting ordering invariants.
func (c *Coordinator) HeadID() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.head
}
