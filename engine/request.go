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
	"net"

	rioctx "github.com/sabouaram/rio/context"
	"github.com/sabouaram/rio/httpparse"
	"github.com/sabouaram/rio/websocket"
)

// Request is the immutable incoming request handed to the Handler.
// Everything about the parsed message is delegated to the embedded
// *httpparse.Request; Request itself adds the connection plumbing:
// ids, remote endpoint, the back-reference the response builder
// needs, and the embedded per-request user-data slot.
type Request struct {
	parsed *httpparse.Request
	connID uint64
	reqID  uint64
	remote net.Addr
	conn   *Connection
	data   rioctx.Config[string]
}

func newRequest(conn *Connection, reqID uint64, parsed *httpparse.Request) *Request {
	return &Request{
		parsed: parsed,
		connID: conn.id,
		reqID:  reqID,
		remote: conn.remote,
		conn:   conn,
		data:   rioctx.New[string](conn.ctx),
	}
}

func (r *Request) Method() string             { return r.parsed.Method }
func (r *Request) Target() string             { return r.parsed.Target }
func (r *Request) Version() httpparse.Version { return r.parsed.Version }
func (r *Request) Header() *httpparse.Fields  { return &r.parsed.Header }
func (r *Request) Body() []byte               { return r.parsed.Body }

// ChunkedInputInfo returns the chunk offsets/lengths/extensions plus
// trailing fields for a chunked-encoded incoming body, or nil if the
// request used Content-Length (or carried no body at all).
func (r *Request) ChunkedInputInfo() *httpparse.ChunkedInput { return r.parsed.Chunked }

func (r *Request) ConnectionID() uint64 { return r.connID }
func (r *Request) RequestID() uint64    { return r.reqID }
func (r *Request) RemoteAddr() net.Addr { return r.remote }

// ShouldKeepAlive reports whether the connection should remain open
// after this request's response is fully written.
func (r *Request) ShouldKeepAlive() bool { return r.parsed.KeepAlive }

// IsUpgrade reports whether the client requested a protocol upgrade
// (e.g. Upgrade: websocket alongside Connection: upgrade).
func (r *Request) IsUpgrade() bool { return r.parsed.Upgrade }

// UserData exposes the embedded, per-request typed value slot: a
// comparable-keyed config map that also satisfies context.Context.
func (r *Request) UserData() rioctx.Config[string] { return r.data }

// CreateResponse seeds a ResponseBuilder for this request: status
// code, desired output mode, and whether the connection will stay
// alive after this response if the handler doesn't override it.
func (r *Request) CreateResponse(status int, mode OutputMode) *ResponseBuilder {
	return newResponseBuilder(r.conn, r.reqID, status, mode, r.parsed.KeepAlive)
}

// UpgradeToWebSocket builds the 101 Switching Protocols response for
// this request. Once that response has left the wire, onReady
// runs with the raw connection wrapped as a *websocket.Conn (or the
// write error, if the handshake response itself failed to send); the
// HTTP read loop for this connection stops permanently at that point,
// handing the socket to the caller.
func (r *Request) UpgradeToWebSocket(acceptKey string, onReady func(*websocket.Conn, error)) *ResponseBuilder {
	rb := r.CreateResponse(101, UserControlledLength)
	rb.AppendHeader("Upgrade", "websocket")
	rb.AppendHeader("Connection", "Upgrade")
	rb.AppendHeader("Sec-WebSocket-Accept", acceptKey)
	rb.UpgradeOnFlush(func(err error) {
		r.conn.completeUpgrade(r.reqID, err, onReady)
	})
	return rb
}
