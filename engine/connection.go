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
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	libatm "github.com/sabouaram/rio/atomic"
	"github.com/sabouaram/rio/errs"
	"github.com/sabouaram/rio/httpparse"
	"github.com/sabouaram/rio/websocket"
)

// timerPhase names which of a request/connection's timers a given
// timerKey arms: the read-next-header wait belongs to the connection
// itself, while handle/write belong to one in-flight request and so
// carry its id.
type timerPhase uint8

const (
	phaseReadHeader timerPhase = iota
	phaseHandle
	phaseWrite
)

type timerKey struct {
	connID uint64
	phase  timerPhase
	reqID  uint64
}

// Connection is the per-socket state machine: one read loop parsing
// the wire into requests, one Coordinator enforcing response order
// under pipelining, and a write strand that drains ready write-groups
// through the writeEngine. Everything that mutates shared connection
// state funnels through the strand channel so concurrent Done() calls
// from independent handler goroutines never race each other on the
// socket.
type Connection struct {
	id     uint64
	remote net.Addr
	local  net.Addr
	nc     net.Conn
	ctx    context.Context
	cancel context.CancelFunc

	cfg     ListenerConfig
	handler Handler
	coord   *Coordinator
	timers  TimerManager[timerKey]
	we      *writeEngine

	strand chan struct{}

	// br is the read-side buffer, set once by readLoop; completeUpgrade
	// hands it over so bytes the parser buffered past the upgrade
	// request are not lost.
	br *bufio.Reader

	closed   libatm.Value[bool]
	upgraded libatm.Value[bool]

	lifetime *LifetimeMonitor

	wg sync.WaitGroup
}

func newConnection(id uint64, nc net.Conn, cfg ListenerConfig, handler Handler, timers TimerManager[timerKey], lifetime *LifetimeMonitor) *Connection {
	ctx, cancel := context.WithCancel(context.Background())

	c := &Connection{
		id:       id,
		remote:   nc.RemoteAddr(),
		local:    nc.LocalAddr(),
		nc:       nc,
		ctx:      ctx,
		cancel:   cancel,
		cfg:      cfg,
		handler:  handler,
		coord:    NewCoordinator(cfg.MaxPipelinedRequests),
		timers:   timers,
		we:       newWriteEngine(nc),
		strand:   make(chan struct{}, 1),
		lifetime: lifetime,
	}
	return c
}

// Serve drives the connection to completion: it blocks until the
// socket is closed, either by the peer, a timeout, a protocol error,
// or a successful WebSocket upgrade handing the raw socket elsewhere.
func (c *Connection) Serve() {
	defer c.lifetime.Release()
	defer c.cancel()

	if c.cfg.StateListener != nil {
		c.cfg.StateListener(EventAccepted, c.id, c.remote, c.tlsState)
	}

	c.readLoop()

	c.wg.Wait()

	// Handlers may have returned Accepted and finished their response
	// from another goroutine; hold the socket until every registered
	// request has been finalized and its bytes left the buffer (or the
	// coordinator was torn down by a timeout or write error).
	c.coord.WaitDrained()
	c.strand <- struct{}{}
	<-c.strand
	c.coord.Reset()
	c.closeSocket()

	if c.cfg.StateListener != nil && !c.upgraded.Load() {
		c.cfg.StateListener(EventClosed, c.id, c.remote, c.tlsState)
	}
}

func (c *Connection) tlsState() (string, bool) {
	tc, ok := c.nc.(*tls.Conn)
	if !ok {
		return "", false
	}
	st := tc.ConnectionState()
	if len(st.PeerCertificates) == 0 {
		return "", false
	}
	return st.PeerCertificates[0].Subject.CommonName, true
}

// readLoop parses one request at a time off the wire and dispatches
// each to its own goroutine, so a slow handler can't stall the next
// pipelined request's parsing; ordering on the wire is restored
// downstream by the Coordinator.
func (c *Connection) readLoop() {
	c.br = bufio.NewReaderSize(c.nc, c.cfg.ReadBufferSize)
	br := c.br
	parser := httpparse.NewParser(c.cfg.Limits)

	for {
		if c.closed.Load() || c.upgraded.Load() {
			return
		}

		// Backpressure: suspend reading, without failing the connection,
		// while the pipelining ring is at capacity.
		if !c.coord.WaitCapacity() {
			return
		}

		_ = c.nc.SetReadDeadline(time.Now().Add(c.cfg.Timeouts.ReadNextHeader))
		key := timerKey{connID: c.id, phase: phaseReadHeader}
		c.timers.ScheduleTimer(key, c.cfg.Timeouts.ReadNextHeader, func() { c.onTimeout(ErrorTimeoutReadHeader) })

		req, err := parser.Parse(br)

		c.timers.CancelTimer(key)

		if err != nil {
			if !errors.Is(err, io.EOF) {
				c.logf("request parse failed: %v", err)
			}
			return
		}

		reqID, rerr := c.coord.RegisterNewRequest()
		if rerr != nil {
			c.logf("cannot register request, closing connection: %v", rerr)
			return
		}

		r := newRequest(c, reqID, req)

		hkey := timerKey{connID: c.id, phase: phaseHandle, reqID: reqID}
		c.timers.ScheduleTimer(hkey, c.cfg.Timeouts.HandleRequest, func() { c.onTimeout(ErrorTimeoutHandle) })

		c.wg.Add(1)
		go c.dispatch(r)

		if !req.KeepAlive {
			return
		}
		if req.Upgrade {
			// The handler decides whether to actually upgrade; either
			// way no further pipelined requests can follow on this
			// connection once an Upgrade request has been read.
			return
		}
	}
}

func (c *Connection) dispatch(r *Request) {
	defer c.wg.Done()
	defer func() {
		if rec := recover(); rec != nil {
			c.logf("handler panic: %v", rec)
			_ = c.deliverWrite(r.reqID, true, true, &WriteGroup{ConnectionClose: true})
		}
	}()

	result := c.handler.Handle(r)
	if result != Accepted {
		// A rejected request terminates the connection once its error
		// response has left the buffer, keep-alive or not.
		resp := r.CreateResponse(http404or501(result), Buffered)
		resp.keepAlive = false
		_ = resp.Done()
	}
}

func http404or501(result HandlerResult) int {
	if result == NotHandled {
		return 404
	}
	return 501
}

// deliverWrite is the single entry point ResponseBuilder uses to hand
// a finished (or partial, for streaming modes) WriteGroup to the
// connection: it registers the group with the Coordinator, which
// enforces request-id wire ordering, then pumps whatever is now ready.
func (c *Connection) deliverWrite(reqID uint64, final, connClose bool, wg *WriteGroup) error {
	// The handle-request deadline is wall time until the handler's next
	// output, so it is managed here, not when Handle returns (an
	// accepted handler may finish later from another goroutine). A
	// partial write re-arms it (latest wins); the final write disarms.
	hkey := timerKey{connID: c.id, phase: phaseHandle, reqID: reqID}
	if final {
		c.timers.CancelTimer(hkey)
	} else {
		c.timers.ScheduleTimer(hkey, c.cfg.Timeouts.HandleRequest, func() { c.onTimeout(ErrorTimeoutHandle) })
	}

	if err := c.coord.AppendResponse(reqID, final, connClose, wg); err != nil {
		wg.notify(err)
		return err
	}
	c.pumpWrites()
	return nil
}

// pumpWrites drains every write group the Coordinator currently has
// ready, serialized through the connection's strand so two requests'
// completions never interleave their bytes on the wire.
func (c *Connection) pumpWrites() {
	c.strand <- struct{}{}
	defer func() { <-c.strand }()

	if c.closed.Load() {
		return
	}

	for {
		group, _, ok := c.coord.PopReadyBuffers()
		if !ok {
			return
		}

		wkey := timerKey{connID: c.id, phase: phaseWrite}
		c.timers.ScheduleTimer(wkey, c.cfg.Timeouts.WriteResponse, func() { c.onTimeout(ErrorTimeoutWrite) })
		err := c.we.Send(group, c.nc.SetWriteDeadline, c.cfg.Timeouts.WriteResponse)
		c.timers.CancelTimer(wkey)

		group.notify(err)

		if err != nil {
			c.logf("write failed: %v", err)
			c.closed.Store(true)
			c.coord.Reset()
			_ = c.nc.SetReadDeadline(time.Now())
			return
		}

		if group.ConnectionClose {
			c.closed.Store(true)
			// Unblock a read loop still parked in Parse so the socket
			// teardown doesn't wait out the read-header deadline.
			_ = c.nc.SetReadDeadline(time.Now())
			return
		}
	}
}

// completeUpgrade runs once the 101 Switching Protocols response for
// reqID has left the wire (or failed to). On success it wraps the raw
// socket as a *websocket.Conn and hands it to onReady; the read loop
// has already stopped reading HTTP off this connection.
func (c *Connection) completeUpgrade(reqID uint64, flushErr error, onReady func(*websocket.Conn, error)) {
	if flushErr != nil {
		onReady(nil, flushErr)
		c.closed.Store(true)
		return
	}

	c.upgraded.Store(true)

	// The HTTP phase deadlines no longer apply; the WebSocket owner
	// sets its own through websocket.Conn.SetDeadline.
	_ = c.nc.SetDeadline(time.Time{})

	// A peer may pipeline its first frame in the same TCP segment as
	// the upgrade request; those bytes are already sitting in the HTTP
	// read buffer and must reach the frame parser.
	var ws *websocket.Conn
	if c.br != nil && c.br.Buffered() > 0 {
		ws = websocket.NewConnBuffered(c.nc, c.br)
	} else {
		ws = websocket.NewConn(c.nc)
	}

	if c.cfg.StateListener != nil {
		c.cfg.StateListener(EventUpgradedToWebSocket, c.id, c.remote, c.tlsState)
	}

	onReady(ws, nil)
}

func (c *Connection) onTimeout(code errs.CodeError) {
	c.logf("%v", errs.New(code, fmt.Sprintf("connection %d", c.id)))
	c.closed.Store(true)
	c.coord.Reset()
	_ = c.nc.SetDeadline(time.Now())
}

func (c *Connection) closeSocket() {
	if c.upgraded.Load() {
		return
	}
	_ = c.nc.Close()
}

func (c *Connection) logf(format string, args ...any) {
	if c.cfg.Logger == nil {
		return
	}
	c.cfg.Logger.Warn(map[string]interface{}{"conn": c.id}, func() string { return fmt.Sprintf(format, args...) })
}
