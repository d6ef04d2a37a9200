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

// Package errs implements a small registered-code error hierarchy used
// across the engine, websocket, httpparse and httpserver packages.
package errs

import (
	"strings"
)

// CodeError is a package-scoped numeric error code. Packages reserve an
// offset range via the Min* constants below and register their own
// human-readable messages through RegisterIdFctMessage.
type CodeError uint16

const (
	UNK_ERROR CodeError = 0

	MinPkgEngine CodeError = 1000 + iota*100
	MinPkgHttpParse
	MinPkgWebsocket
	MinPkgHttpServer
	MinPkgTLS
)

var registry = map[CodeError]func(CodeError) string{}

// RegisterIdFctMessage registers the message lookup function for every
// code starting at base. A package calls this once from init().
func RegisterIdFctMessage(base CodeError, fn func(CodeError) string) {
	registry[base] = fn
}

// ExistInMapMessage reports whether a message function was already
// registered for the range starting at base (guards double-init in
// tests that import a package more than once).
func ExistInMapMessage(base CodeError) bool {
	_, ok := registry[base]
	return ok
}

func message(code CodeError) string {
	for base, fn := range registry {
		if code >= base {
			if m := fn(code); m != "" {
				return m
			}
		}
	}
	return ""
}

// Error is the interface implemented by every error value produced by
// this module's packages.
type Error interface {
	error
	Code() CodeError
	Add(parent ...error) Error
	AddParent(parent ...error) Error
	HasParent() bool
	HasCode(code CodeError) bool
	Is(err error) bool
}

type ers struct {
	code    CodeError
	msg     string
	parents []error
}

// New creates a registered error from a code, appending the code's
// registered message (if any) and the given contextual detail.
func New(code CodeError, detail string) Error {
	return &ers{code: code, msg: detail}
}

func (e *ers) Error() string {
	m := message(e.code)
	switch {
	case m != "" && e.msg != "":
		return m + ": " + e.msg
	case m != "":
		return m
	default:
		return e.msg
	}
}

func (e *ers) Code() CodeError { return e.code }

func (e *ers) Add(parent ...error) Error {
	return e.AddParent(parent...)
}

func (e *ers) AddParent(parent ...error) Error {
	for _, p := range parent {
		if p != nil {
			e.parents = append(e.parents, p)
		}
	}
	return e
}

func (e *ers) HasParent() bool { return len(e.parents) > 0 }

func (e *ers) HasCode(code CodeError) bool {
	if e.code == code {
		return true
	}
	for _, p := range e.parents {
		if pe, ok := p.(Error); ok && pe.HasCode(code) {
			return true
		}
	}
	return false
}

func (e *ers) Is(err error) bool {
	if err == nil {
		return false
	}
	if oe, ok := err.(Error); ok {
		return oe.Code() == e.code && e.code != UNK_ERROR
	}
	return strings.EqualFold(e.Error(), err.Error())
}
