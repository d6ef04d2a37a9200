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
	"syscall"
	"time"

	libval "github.com/go-playground/validator/v10"

	"github.com/sabouaram/rio/errs"
	"github.com/sabouaram/rio/httpparse"
	"github.com/sabouaram/rio/logger"
	"github.com/sabouaram/rio/tlsconfig"
)

// Timeouts groups the three per-phase handler timeouts: how long the
// connection waits for the next request's header, for the handler to
// respond, and for a response to finish writing.
type Timeouts struct {
	ReadNextHeader time.Duration `validate:"omitempty,gt=0"`
	HandleRequest  time.Duration `validate:"omitempty,gt=0"`
	WriteResponse  time.Duration `validate:"omitempty,gt=0"`
}

// ConnectionEvent is one of the three moments the optional
// ConnectionStateListener is called at.
type ConnectionEvent int

const (
	EventAccepted ConnectionEvent = iota
	EventClosed
	EventUpgradedToWebSocket
)

// ConnectionStateListener is notified at accept/close/upgrade. tlsState
// is nil for plain connections.
type ConnectionStateListener func(event ConnectionEvent, connID uint64, remote net.Addr, tlsState func() (peerCommonName string, ok bool))

// IPBlocker inspects an accepted remote address before a Connection is
// constructed; returning false denies the socket.
type IPBlocker func(remote net.Addr) (allow bool)

// ListenerConfig is the full external configuration surface of a
// Listener, struct-tag validated with
// github.com/go-playground/validator/v10 over its exported fields and
// translated to a registered errs.Error.
type ListenerConfig struct {
	// BindAddress empty binds every interface.
	BindAddress string `validate:"omitempty"`
	// Port 0 binds an ephemeral port, the usual choice in tests.
	Port    int    `validate:"gte=0,lt=65536"`
	Network string `validate:"omitempty,oneof=tcp tcp4 tcp6"`

	// SetAcceptorOptions mirrors net.ListenConfig.Control: a hook to
	// tune socket options (reuse-address, keep-alive) before bind.
	SetAcceptorOptions func(network, address string, c syscall.RawConn) error

	ConcurrentAccepts          int `validate:"required,gt=0"`
	SeparateAcceptAndConstruct bool
	MaxPipelinedRequests       int `validate:"required,gt=0"`
	ReadBufferSize             int `validate:"required,gt=0"`

	Limits httpparse.Limits

	Timeouts Timeouts

	MaxParallelConnections int `validate:"required,gt=0"`

	TLS tlsconfig.TLSConfig

	StateListener ConnectionStateListener
	IPBlocker     IPBlocker
	Logger        logger.Logger

	// TickInterval configures the coalesced tick timer; Default uses
	// 1s. Zero means "use the default".
	TickInterval time.Duration
}

// Default holds conservative baseline values withDefaults merges
// zero-valued fields onto.
var Default = ListenerConfig{
	Network:                "tcp",
	ConcurrentAccepts:      16,
	MaxPipelinedRequests:   16,
	ReadBufferSize:         16 * 1024,
	Limits:                 httpparse.DefaultLimits,
	MaxParallelConnections: 4096,
	TickInterval:           time.Second,
	Timeouts: Timeouts{
		ReadNextHeader: 60 * time.Second,
		HandleRequest:  30 * time.Second,
		WriteResponse:  30 * time.Second,
	},
}

// Clone copies the config by value; interface- and function-valued
// fields are shared with the original, not duplicated.
func (c ListenerConfig) Clone() ListenerConfig {
	n := c
	n.Limits = c.Limits
	n.Timeouts = c.Timeouts
	return n
}

// withDefaults fills zero-valued fields from Default, the same
// "merge onto baseline" pattern tlsconfig.Config.NewFrom uses.
func (c ListenerConfig) withDefaults() ListenerConfig {
	n := c
	if n.Network == "" {
		n.Network = Default.Network
	}
	if n.ConcurrentAccepts == 0 {
		n.ConcurrentAccepts = Default.ConcurrentAccepts
	}
	if n.MaxPipelinedRequests == 0 {
		n.MaxPipelinedRequests = Default.MaxPipelinedRequests
	}
	if n.ReadBufferSize == 0 {
		n.ReadBufferSize = Default.ReadBufferSize
	}
	if n.Limits == (httpparse.Limits{}) {
		n.Limits = Default.Limits
	}
	if n.MaxParallelConnections == 0 {
		n.MaxParallelConnections = Default.MaxParallelConnections
	}
	if n.TickInterval == 0 {
		n.TickInterval = Default.TickInterval
	}
	if n.Timeouts.ReadNextHeader == 0 {
		n.Timeouts.ReadNextHeader = Default.Timeouts.ReadNextHeader
	}
	if n.Timeouts.HandleRequest == 0 {
		n.Timeouts.HandleRequest = Default.Timeouts.HandleRequest
	}
	if n.Timeouts.WriteResponse == 0 {
		n.Timeouts.WriteResponse = Default.Timeouts.WriteResponse
	}
	if n.Logger == nil {
		n.Logger = logger.Noop()
	}
	return n
}

// Validate runs struct-tag validation, translating validator field
// errors into a registered errs.Error the same way tlsconfig.Config
// does.
func (c ListenerConfig) Validate() errs.Error {
	merged := c.withDefaults()

	if er := libval.New().Struct(merged); er != nil {
		out := errs.New(ErrorListenerConfigInvalid, "")
		if e, ok := er.(*libval.InvalidValidationError); ok {
			out.AddParent(e)
		} else if ve, ok := er.(libval.ValidationErrors); ok {
			for _, fe := range ve {
				out.AddParent(fmt.Errorf("config field %q fails constraint %q", fe.StructNamespace(), fe.ActualTag()))
			}
		}
		if out.HasParent() {
			return out
		}
	}
	return nil
}
