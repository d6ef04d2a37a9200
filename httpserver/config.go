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
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	libval "github.com/go-playground/validator/v10"

	"github.com/sabouaram/rio/engine"
	"github.com/sabouaram/rio/errs"
	"github.com/sabouaram/rio/httpparse"
	"github.com/sabouaram/rio/logger"
	"github.com/sabouaram/rio/tlsconfig"
)

// ServerConfig is the declarative, mapstructure/json/yaml-friendly
// configuration one named server in a pool is built from: Name/Listen/
// Expose/Disabled/Mandatory plus a TLS sub-config, resolved onto the
// engine.ListenerConfig knobs this library exposes. There is no HTTP/2
// sub-config here; this library only speaks HTTP/1.1 and WebSocket.
type ServerConfig struct {
	getParentContext func() context.Context

	// Disabled lets a pool entry be kept in configuration without
	// being started.
	Disabled bool `mapstructure:"disabled" json:"disabled" yaml:"disabled" toml:"disabled"`

	// Mandatory is carried with the configuration; Pool.Listen does not
	// consult it and reports a start failure of any member.
	Mandatory bool `mapstructure:"mandatory" json:"mandatory" yaml:"mandatory" toml:"mandatory"`

	// Name identifies this server among others in a pool. Defaults to
	// Listen if empty.
	Name string `mapstructure:"name" json:"name" yaml:"name" toml:"name" validate:"required"`

	// Listen is the local bind address, "host:port".
	Listen string `mapstructure:"listen" json:"listen" yaml:"listen" toml:"listen" validate:"required,hostname_port"`

	// Expose is the externally reachable URL for this server, used for
	// display/monitoring only.
	Expose string `mapstructure:"expose" json:"expose" yaml:"expose" toml:"expose" validate:"omitempty,url"`

	// HandlerKey tags which handler in a multi-handler host application
	// this server routes to.
	HandlerKey string `mapstructure:"handler_key" json:"handler_key" yaml:"handler_key" toml:"handler_key"`

	ConcurrentAccepts          int              `mapstructure:"concurrent_accepts" json:"concurrent_accepts" yaml:"concurrent_accepts" toml:"concurrent_accepts"`
	SeparateAcceptAndConstruct bool             `mapstructure:"separate_accept_and_construct" json:"separate_accept_and_construct" yaml:"separate_accept_and_construct" toml:"separate_accept_and_construct"`
	MaxPipelinedRequests       int              `mapstructure:"max_pipelined_requests" json:"max_pipelined_requests" yaml:"max_pipelined_requests" toml:"max_pipelined_requests"`
	ReadBufferSize             int              `mapstructure:"read_buffer_size" json:"read_buffer_size" yaml:"read_buffer_size" toml:"read_buffer_size"`
	MaxParallelConnections     int              `mapstructure:"max_parallel_connections" json:"max_parallel_connections" yaml:"max_parallel_connections" toml:"max_parallel_connections"`
	TickInterval               time.Duration    `mapstructure:"tick_interval" json:"tick_interval" yaml:"tick_interval" toml:"tick_interval"`
	Limits                     httpparse.Limits `mapstructure:"limits" json:"limits" yaml:"limits" toml:"limits"`
	Timeouts                   engine.Timeouts  `mapstructure:"timeouts" json:"timeouts" yaml:"timeouts" toml:"timeouts"`

	// TLS is the tls configuration for this server. Leave the zero
	// value to serve plain HTTP.
	TLS *tlsconfig.Config `mapstructure:"tls" json:"tls" yaml:"tls" toml:"tls"`

	StateListener engine.ConnectionStateListener `mapstructure:"-" json:"-" yaml:"-" toml:"-"`
	IPBlocker     engine.IPBlocker               `mapstructure:"-" json:"-" yaml:"-" toml:"-"`
	Logger        logger.Logger                  `mapstructure:"-" json:"-" yaml:"-" toml:"-"`
}

// SetParentContext supplies the context a running server's connections
// are rooted under.
func (c *ServerConfig) SetParentContext(f func() context.Context) {
	c.getParentContext = f
}

func (c ServerConfig) getContext() context.Context {
	if c.getParentContext != nil {
		if ctx := c.getParentContext(); ctx != nil {
			return ctx
		}
	}
	return context.Background()
}

// Clone copies the config by value: the TLS pointer and the
// function-valued fields are shared with the original, not duplicated.
func (c ServerConfig) Clone() ServerConfig {
	n := c
	return n
}

// IsTLS reports whether this server would serve HTTPS.
func (c ServerConfig) IsTLS() bool {
	return c.TLS != nil && len(c.TLS.Certs) > 0
}

// GetListen parses Listen into a URL-shaped value, tolerating a bare
// "host:port" pair.
func (c ServerConfig) GetListen() *url.URL {
	if c.Listen == "" {
		return nil
	}
	if host, port, err := net.SplitHostPort(c.Listen); err == nil {
		return &url.URL{Host: net.JoinHostPort(host, port)}
	}
	if u, err := url.Parse(c.Listen); err == nil {
		return u
	}
	return nil
}

// GetExpose returns Expose parsed as a URL, falling back to the listen
// address with a scheme inferred from IsTLS.
func (c ServerConfig) GetExpose() *url.URL {
	if c.Expose != "" {
		if u, err := url.Parse(c.Expose); err == nil {
			return u
		}
	}
	u := c.GetListen()
	if u != nil {
		if c.IsTLS() {
			u.Scheme = "https"
		} else {
			u.Scheme = "http"
		}
	}
	return u
}

// Validate runs struct-tag validation, translating validator field
// errors into a registered errs.Error the way engine.ListenerConfig and
// tlsconfig.Config do.
func (c ServerConfig) Validate() errs.Error {
	if er := libval.New().Struct(c); er != nil {
		out := errs.New(ErrorServerValidate, "")
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

// toListenerConfig builds the engine.ListenerConfig this server's
// Listener runs on, resolving the TLS sub-config into the adapter
// interface the engine depends on.
func (c ServerConfig) toListenerConfig() (engine.ListenerConfig, errs.Error) {
	host, portStr, err := net.SplitHostPort(c.Listen)
	if err != nil {
		return engine.ListenerConfig{}, errs.New(ErrorInvalidAddress, err.Error())
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return engine.ListenerConfig{}, errs.New(ErrorInvalidAddress, err.Error())
	}

	lc := engine.ListenerConfig{
		BindAddress:                host,
		Port:                       port,
		ConcurrentAccepts:          c.ConcurrentAccepts,
		SeparateAcceptAndConstruct: c.SeparateAcceptAndConstruct,
		MaxPipelinedRequests:       c.MaxPipelinedRequests,
		ReadBufferSize:             c.ReadBufferSize,
		Limits:                     c.Limits,
		Timeouts:                   c.Timeouts,
		MaxParallelConnections:     c.MaxParallelConnections,
		TickInterval:               c.TickInterval,
		StateListener:              c.StateListener,
		IPBlocker:                  c.IPBlocker,
		Logger:                     c.Logger,
	}

	if c.TLS != nil && len(c.TLS.Certs) > 0 {
		tc, terr := c.TLS.New()
		if terr != nil {
			return engine.ListenerConfig{}, errs.New(ErrorServerValidate, terr.Error())
		}
		lc.TLS = tc
	}

	return lc, nil
}

// Server builds a Server from this config, bound to handler.
func (c ServerConfig) Server(handler engine.Handler) Server {
	return newServer(c, handler)
}
