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
	"net/http"
	"strconv"
	"strings"
	"sync"
)

// OutputMode picks how a ResponseBuilder delimits the response body on
// the wire.
type OutputMode int

const (
	// Buffered assembles the whole body in memory; Done computes and
	// sends Content-Length.
	Buffered OutputMode = iota
	// UserControlledLength lets the caller stream the body across
	// several AppendBody/Flush calls under a Content-Length the caller
	// sets itself. No Content-Length or Connection: close is added on
	// the caller's behalf.
	UserControlledLength
	// ChunkedEncoding streams the body as RFC 7230 chunks.
	ChunkedEncoding
)

// ResponseBuilder is the per-request response API a Handler uses to
// produce a WriteGroup and hand it to the coordinator. A builder
// is single-owner in normal use but Done/DoneNotify may legitimately
// be called from a different goroutine than the one that built it, so
// its small bit of state is mutex-guarded.
type ResponseBuilder struct {
	mu sync.Mutex

	conn   *Connection
	reqID  uint64
	status int
	mode   OutputMode

	headerNames  []string
	headerValues []string
	headerSent   bool

	pending   []byte
	closed    bool
	keepAlive bool

	upgrade func(firstWriteErr error)
}

func newResponseBuilder(conn *Connection, reqID uint64, status int, mode OutputMode, keepAlive bool) *ResponseBuilder {
	return &ResponseBuilder{conn: conn, reqID: reqID, status: status, mode: mode, keepAlive: keepAlive}
}

// AppendHeader queues one response header field; must be called
// before the first Flush/AppendChunk/Done, since the status line and
// headers are serialized together as the first write-group item.
func (b *ResponseBuilder) AppendHeader(name, value string) *ResponseBuilder {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.headerNames = append(b.headerNames, name)
	b.headerValues = append(b.headerValues, value)
	return b
}

// SetBody replaces the pending body buffer outright (Buffered mode).
func (b *ResponseBuilder) SetBody(body []byte) *ResponseBuilder {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = append(b.pending[:0], body...)
	return b
}

// AppendBody appends to the pending body buffer.
func (b *ResponseBuilder) AppendBody(p []byte) *ResponseBuilder {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = append(b.pending, p...)
	return b
}

// UpgradeOnFlush marks this response as the final HTTP write group of
// a WebSocket upgrade: once it completes on the wire, cb runs
// with the flush error, and the connection hands its socket to the
// WebSocket layer if cb leaves nothing to clean up.
func (b *ResponseBuilder) UpgradeOnFlush(cb func(flushErr error)) *ResponseBuilder {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.upgrade = cb
	return b
}

func (b *ResponseBuilder) statusAndHeaderBytes(extraHeaders ...[2]string) []byte {
	var sb strings.Builder
	text := http.StatusText(b.status)
	fmt.Fprintf(&sb, "HTTP/1.1 %d %s\r\n", b.status, text)
	for i := range b.headerNames {
		fmt.Fprintf(&sb, "%s: %s\r\n", b.headerNames[i], b.headerValues[i])
	}
	for _, h := range extraHeaders {
		fmt.Fprintf(&sb, "%s: %s\r\n", h[0], h[1])
	}
	if !b.keepAlive {
		sb.WriteString("Connection: close\r\n")
	}
	sb.WriteString("\r\n")
	return []byte(sb.String())
}

// Flush sends whatever has been appended since the last Flush as one
// non-final write group (UserControlledLength / ChunkedEncoding).
func (b *ResponseBuilder) Flush() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flushLocked(false, nil)
}

// flushLocked builds and ships a WriteGroup for the pending bytes. The
// status line and headers are prefixed on the first group only
// (tracked by headerSent); final marks the request's last group.
func (b *ResponseBuilder) flushLocked(final bool, n Notificator) error {
	if b.closed {
		return nil
	}

	var items []Writable
	hasStatus := false

	if !b.headerSent {
		hasStatus = true
		b.headerSent = true
		items = append(items, NewBytes(b.statusAndHeaderBytes()))
	}
	if len(b.pending) > 0 {
		items = append(items, NewBytes(b.pending))
		b.pending = nil
	}

	if len(items) == 0 && !final {
		return nil
	}

	wg := &WriteGroup{Items: items, HasStatusLine: hasStatus, Notificator: n}
	if final {
		b.closed = true
		wg.ConnectionClose = !b.keepAlive
		if b.upgrade != nil {
			wg.ConnectionClose = false
			up := b.upgrade
			orig := n
			wg.Notificator = func(err error) {
				up(err)
				if orig != nil {
					orig(err)
				}
			}
		}
	}

	return b.conn.deliverWrite(b.reqID, final, wg.ConnectionClose, wg)
}

// AppendChunk writes one chunk of a ChunkedEncoding response
// immediately: "<hex-size>\r\n<bytes>\r\n".
func (b *ResponseBuilder) AppendChunk(p []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.headerSent {
		b.headerNames = append(b.headerNames, "Transfer-Encoding")
		b.headerValues = append(b.headerValues, "chunked")
	}

	chunk := make([]byte, 0, len(p)+16)
	chunk = append(chunk, []byte(strconv.FormatInt(int64(len(p)), 16))...)
	chunk = append(chunk, '\r', '\n')
	chunk = append(chunk, p...)
	chunk = append(chunk, '\r', '\n')
	b.pending = append(b.pending, chunk...)

	return b.flushLocked(false, nil)
}

// Done finalizes the response: Buffered mode computes Content-Length
// from the full body and ships it in one group; the other two modes
// flush any remaining bytes (ChunkedEncoding appending the terminating
// zero-length chunk) and mark the request's final write group.
func (b *ResponseBuilder) Done() error {
	return b.done(nil)
}

// DoneNotify is Done, but n fires once the final write group has left
// the kernel (or with a synthetic error if it never does).
func (b *ResponseBuilder) DoneNotify(n Notificator) error {
	return b.done(n)
}

func (b *ResponseBuilder) done(n Notificator) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.mode == Buffered {
		if !b.headerSent {
			b.headerNames = append(b.headerNames, "Content-Length")
			b.headerValues = append(b.headerValues, strconv.Itoa(len(b.pending)))
		}
	} else if b.mode == ChunkedEncoding {
		if !b.headerSent {
			b.headerNames = append(b.headerNames, "Transfer-Encoding")
			b.headerValues = append(b.headerValues, "chunked")
		}
		b.pending = append(b.pending, []byte("0\r\n\r\n")...)
	}

	return b.flushLocked(true, n)
}
