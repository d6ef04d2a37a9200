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

// Package httpparse is the byte-fed HTTP/1.1 request tokenizer the
// connection state machine drives during its read phase. It is kept as
// a standalone collaborator: it knows nothing about sockets, timers, or
// response building, only how to turn bytes into a parsed request.
package httpparse

import "strings"

// Limits bounds a single incoming message the way the connection state
// machine enforces them online, aborting as soon as one is crossed.
type Limits struct {
	MaxURLSize        int
	MaxFieldCount     int
	MaxFieldNameSize  int
	MaxFieldValueSize int
	MaxBodySize       int64
}

// DefaultLimits mirrors restrained, conservative defaults suitable for a
// public-facing listener.
var DefaultLimits = Limits{
	MaxURLSize:        8 * 1024,
	MaxFieldCount:     100,
	MaxFieldNameSize:  256,
	MaxFieldValueSize: 8 * 1024,
	MaxBodySize:       8 * 1024 * 1024,
}

// Field is one header field, preserving the original casing of both the
// name and the value.
type Field struct {
	Name  string
	Value string
}

// Fields is an insertion-ordered, case-insensitive multimap of header
// fields, duplicates allowed.
type Fields struct {
	items []Field
}

func (f *Fields) Add(name, value string) {
	f.items = append(f.items, Field{Name: name, Value: value})
}

func (f *Fields) Get(name string) (string, bool) {
	for _, it := range f.items {
		if strings.EqualFold(it.Name, name) {
			return it.Value, true
		}
	}
	return "", false
}

func (f *Fields) GetAll(name string) []string {
	var out []string
	for _, it := range f.items {
		if strings.EqualFold(it.Name, name) {
			out = append(out, it.Value)
		}
	}
	return out
}

func (f *Fields) Len() int { return len(f.items) }

func (f *Fields) Each(fn func(name, value string)) {
	for _, it := range f.items {
		fn(it.Name, it.Value)
	}
}

// ChunkInfo records one chunk of a chunked-encoded incoming body: its
// byte offset and length within the reassembled Body slice, plus any
// chunk-extension parameters carried on the chunk size line.
type ChunkInfo struct {
	Offset     int
	Length     int
	Parameters []Field
}

// ChunkedInput is present on a Request only when Transfer-Encoding:
// chunked was used for the incoming body.
type ChunkedInput struct {
	Chunks   []ChunkInfo
	Trailing Fields
}

// Version is the declared HTTP protocol version of a request.
type Version int

const (
	HTTP10 Version = iota
	HTTP11
)

// Request is the fully parsed, immutable message the tokenizer hands to
// the connection once parsing of one message completes.
type Request struct {
	Method    string
	Target    string
	Version   Version
	Header    Fields
	Body      []byte
	Chunked   *ChunkedInput
	KeepAlive bool
	Upgrade   bool
}
