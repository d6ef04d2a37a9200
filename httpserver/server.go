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

package httpserver

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/sabouaram/rio/engine"
	"github.com/sabouaram/rio/errs"
)

// Info is the read-only identification surface of a server.
type Info interface {
	GetName() string
	GetBindable() string
	GetExpose() string
	IsDisable() bool
	IsTLS() bool
}

// Server is the lifecycle + info surface a host application drives: a
// single named listener built on engine.Handler.
type Server interface {
	Info

	GetConfig() ServerConfig
	SetConfig(cfg ServerConfig)

	IsRunning() bool

	Listen() errs.Error
	Restart() errs.Error
	Shutdown()
	WaitNotify()

	// Monitor reports the admission-limiter counters for this server;
	// ok is false while the server isn't running.
	Monitor() (activeAccepts, liveConnections, maxParallel int, ok bool)
}

type server struct {
	mu sync.Mutex

	cfg     ServerConfig
	handler engine.Handler
	ln      *engine.Listener
	cancel  context.CancelFunc
	running bool
}

func newServer(cfg ServerConfig, handler engine.Handler) Server {
	return &server{cfg: cfg, handler: handler}
}

// NewServer is the package-level constructor for a Server.
func NewServer(cfg ServerConfig, handler engine.Handler) Server {
	return newServer(cfg, handler)
}

func (s *server) GetConfig() ServerConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

func (s *server) SetConfig(cfg ServerConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
}

func (s *server) GetName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg.Name != "" {
		return s.cfg.Name
	}
	return s.cfg.Listen
}

func (s *server) GetBindable() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u := s.cfg.GetListen(); u != nil {
		return u.Host
	}
	return ""
}

func (s *server) GetExpose() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u := s.cfg.GetExpose(); u != nil {
		return u.String()
	}
	return ""
}

func (s *server) IsDisable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Disabled
}

func (s *server) IsTLS() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.IsTLS()
}

func (s *server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Listen validates the configuration, builds the underlying
// engine.Listener, and starts accepting connections.
func (s *server) Listen() errs.Error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errs.New(ErrorServerAlreadyRunning, s.cfg.Name)
	}

	if err := s.cfg.Validate(); err != nil {
		return err
	}

	lc, err := s.cfg.toListenerConfig()
	if err != nil {
		return err
	}

	ln, nerr := engine.NewListener(lc, s.handler)
	if nerr != nil {
		return nerr
	}

	ctx, cancel := context.WithCancel(s.cfg.getContext())
	s.cancel = cancel

	if lerr := ln.Listen(ctx); lerr != nil {
		cancel()
		return errs.New(ErrorServerListen, lerr.Error())
	}

	s.ln = ln
	s.running = true
	return nil
}

func (s *server) Restart() errs.Error {
	s.Shutdown()
	return s.Listen()
}

func (s *server) Shutdown() {
	s.mu.Lock()
	ln := s.ln
	cancel := s.cancel
	s.ln = nil
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if ln != nil {
		ln.Shutdown()
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// WaitNotify blocks until SIGINT/SIGTERM/SIGQUIT or the parent
// context is done, then shuts the server down.
func (s *server) WaitNotify() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer signal.Stop(quit)

	s.mu.Lock()
	ctx := s.cfg.getContext()
	s.mu.Unlock()

	select {
	case <-quit:
	case <-ctx.Done():
	}
	s.Shutdown()
}

func (s *server) Monitor() (activeAccepts, liveConnections, maxParallel int, ok bool) {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln == nil {
		return 0, 0, 0, false
	}
	return ln.Snapshot()
}
