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

// Notificator is the one-shot callback fired with the outcome once a
// WriteGroup has left the kernel (or, on a forced close, fired
// synchronously with ErrorWriteNotExecuted).
type Notificator func(err error)

// WriteGroup is the ordered, atomic unit of output for one request: a
// run of Writable items plus an optional Notificator and a flag marking
// whether the first item is a status line (so the coordinator knows
// whether this group may be merged onto the one queued before it).
type WriteGroup struct {
	Items         []Writable
	Notificator   Notificator
	HasStatusLine bool

	// ConnectionClose marks that, once this group's bytes have left
	// the buffer, the connection must be torn down (a "Connection:
	// close" response or a rejected/errored message).
	ConnectionClose bool
}

// Size sums the stable Size() of every item.
func (g *WriteGroup) Size() int64 {
	var n int64
	for _, it := range g.Items {
		n += it.Size()
	}
	return n
}

// notify fires the notificator, if any, swallowing any panic it
// raises so one broken callback can't take the write pump down with
// it.
func (g *WriteGroup) notify(err error) {
	if g.Notificator == nil {
		return
	}
	defer func() { _ = recover() }()
	g.Notificator(err)
}

// mergeEligible reports whether tail may be folded into head: neither
// carries a notificator, and the trailing group has no status line of
// its own.
func mergeEligible(head, tail *WriteGroup) bool {
	return head.Notificator == nil && tail.Notificator == nil && !tail.HasStatusLine
}

// mergeInto appends tail's items onto head in place and returns head;
// the caller is responsible for having checked mergeEligible first.
func mergeInto(head, tail *WriteGroup) *WriteGroup {
	head.Items = append(head.Items, tail.Items...)
	if tail.ConnectionClose {
		head.ConnectionClose = true
	}
	return head
}
