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
	"sync"

	"github.com/sabouaram/rio/engine"
	"github.com/sabouaram/rio/errs"
)

// MapUpdPoolServerConfig and MapRunPoolServerConfig are the mapping
// helpers PoolServerConfig.MapUpdate/MapRun apply across a pool.
type MapUpdPoolServerConfig func(cfg ServerConfig) ServerConfig
type MapRunPoolServerConfig func(cfg ServerConfig)

// PoolServerConfig is a named list of server configurations driven
// together: one host process embedding several listeners, e.g. a
// plaintext admin port alongside a TLS public port.
type PoolServerConfig []ServerConfig

// Validate runs Validate on every entry, accumulating failures onto a
// single registered errs.Error.
func (p PoolServerConfig) Validate() errs.Error {
	out := errs.New(ErrorPoolValidate, "")
	for _, c := range p {
		if err := c.Validate(); err != nil {
			out.AddParent(err)
		}
	}
	if out.HasParent() {
		return out
	}
	return nil
}

// MapUpdate applies f to every entry, returning the transformed pool.
func (p PoolServerConfig) MapUpdate(f MapUpdPoolServerConfig) PoolServerConfig {
	out := make(PoolServerConfig, len(p))
	for i, c := range p {
		out[i] = f(c)
	}
	return out
}

// MapRun calls f for every entry, for side effects only.
func (p PoolServerConfig) MapRun(f MapRunPoolServerConfig) {
	for _, c := range p {
		f(c)
	}
}

// PoolServer builds one Server per entry, all bound to the same
// handler, and wraps them as a Pool.
func (p PoolServerConfig) PoolServer(handler engine.Handler) (*Pool, errs.Error) {
	pool := NewPool()
	out := errs.New(ErrorPoolAdd, "")

	p.MapRun(func(cfg ServerConfig) {
		if err := pool.Add(cfg.Server(handler)); err != nil {
			out.AddParent(err)
		}
	})

	if out.HasParent() {
		return pool, out
	}
	return pool, nil
}

// Pool manages a named set of independent Server instances, fanning
// lifecycle operations out across every listener started from one
// configuration tree.
type Pool struct {
	mu   sync.RWMutex
	byID map[string]Server
	ids  []string
}

func NewPool() *Pool {
	return &Pool{byID: make(map[string]Server)}
}

// Add registers srv under its GetName(); a duplicate name replaces the
// prior entry after stopping it.
func (p *Pool) Add(srv Server) errs.Error {
	p.mu.Lock()
	defer p.mu.Unlock()

	name := srv.GetName()
	if old, ok := p.byID[name]; ok {
		old.Shutdown()
	} else {
		p.ids = append(p.ids, name)
	}
	p.byID[name] = srv
	return nil
}

func (p *Pool) Get(name string) (Server, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.byID[name]
	return s, ok
}

// Listen starts every non-disabled server in the pool, accumulating
// every start error on a single registered errs.Error. Any member that
// fails to start makes the whole call report failure, whether or not
// its config sets Mandatory.
func (p *Pool) Listen() errs.Error {
	p.mu.RLock()
	servers := make([]Server, 0, len(p.ids))
	for _, id := range p.ids {
		servers = append(servers, p.byID[id])
	}
	p.mu.RUnlock()

	out := errs.New(ErrorPoolListen, "")
	for _, s := range servers {
		cfg := s.GetConfig()
		if cfg.Disabled {
			continue
		}
		if err := s.Listen(); err != nil {
			out.AddParent(err)
		}
	}

	if out.HasParent() {
		return out
	}
	return nil
}

func (p *Pool) Shutdown() {
	p.mu.RLock()
	servers := make([]Server, 0, len(p.ids))
	for _, id := range p.ids {
		servers = append(servers, p.byID[id])
	}
	p.mu.RUnlock()

	var wg sync.WaitGroup
	wg.Add(len(servers))
	for _, s := range servers {
		go func(srv Server) {
			defer wg.Done()
			srv.Shutdown()
		}(s)
	}
	wg.Wait()
}

func (p *Pool) WaitNotify() {
	p.mu.RLock()
	servers := make([]Server, 0, len(p.ids))
	for _, id := range p.ids {
		servers = append(servers, p.byID[id])
	}
	p.mu.RUnlock()

	var wg sync.WaitGroup
	wg.Add(len(servers))
	for _, s := range servers {
		go func(srv Server) {
			defer wg.Done()
			srv.WaitNotify()
		}(s)
	}
	wg.Wait()
}

func (p *Pool) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, id := range p.ids {
		if p.byID[id].IsRunning() {
			return true
		}
	}
	return false
}
