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
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"syscall"

	"github.com/sabouaram/rio/errs"
)

// Listener is the top-level handle an embedding application holds: it
// ties a validated ListenerConfig, a Handler, the coalesced timer
// subsystem and the admission-controlled Acceptor together into a
// single Listen/Shutdown lifecycle.
type Listener struct {
	cfg     ListenerConfig
	handler Handler
	timers  TimerManager[timerKey]

	mu       sync.Mutex
	acceptor *Acceptor
	running  bool
}

// NewListener validates cfg and builds a Listener bound to handler. The
// socket itself isn't opened until Listen is called.
func NewListener(cfg ListenerConfig, handler Handler) (*Listener, errs.Error) {
	if handler == nil {
		return nil, errs.New(ErrorListenerConfigInvalid, "handler must not be nil")
	}
	merged := cfg.withDefaults()
	if err := merged.Validate(); err != nil {
		return nil, err
	}

	return &Listener{
		cfg:     merged,
		handler: handler,
		timers:  NewTickTimerManager[timerKey](merged.TickInterval),
	}, nil
}

// Listen opens the socket (wrapping it in TLS if cfg.TLS is set),
// starts the timer subsystem, and launches the admission-controlled
// accept loops. It returns once the listener is up; call Shutdown to
// stop it.
func (l *Listener) Listen(ctx context.Context) errs.Error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running {
		return nil
	}

	lc := net.ListenConfig{}
	if l.cfg.SetAcceptorOptions != nil {
		lc.Control = func(network, address string, c syscall.RawConn) error {
			return l.cfg.SetAcceptorOptions(network, address, c)
		}
	}

	network := l.cfg.Network
	if network == "" {
		network = "tcp"
	}
	addr := fmt.Sprintf("%s:%d", l.cfg.BindAddress, l.cfg.Port)

	raw, err := lc.Listen(ctx, network, addr)
	if err != nil {
		return errs.New(ErrorListenerConfigInvalid, err.Error())
	}

	ln := raw
	if l.cfg.TLS != nil && l.cfg.TLS.LenCertificatePair() > 0 {
		ln = tls.NewListener(raw, l.cfg.TLS.TlsConfig(""))
	}

	l.timers.Start()
	l.acceptor = newAcceptor(ln, l.cfg, l.handler, l.timers)
	l.acceptor.Start()
	l.running = true

	return nil
}

// Shutdown stops accepting, waits for in-flight connections to reach a
// natural stopping point, and stops the timer subsystem.
func (l *Listener) Shutdown() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.running {
		return
	}

	l.acceptor.Shutdown()
	l.timers.Stop()
	l.running = false
}

// Config returns the merged, validated configuration this listener was
// built from.
func (l *Listener) Config() ListenerConfig {
	return l.cfg
}

// IsRunning reports whether Listen has been called without a matching
// Shutdown yet.
func (l *Listener) IsRunning() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// Snapshot exposes the admission limiter's counters for monitoring
// surfaces; ok is false until Listen has started the acceptor.
func (l *Listener) Snapshot() (activeAccepts, liveConnections, maxParallel int, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.acceptor == nil {
		return 0, 0, 0, false
	}
	a, c, m := l.acceptor.limiter.Snapshot()
	return a, c, m, true
}

// Addr reports the listener's bound address; nil until Listen has
// started the acceptor. Mainly useful for tests that bind an ephemeral
// port (Port: 0) and need to dial it back.
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.acceptor == nil {
		return nil
	}
	return l.acceptor.Addr()
}
