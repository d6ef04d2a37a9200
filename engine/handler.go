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

// HandlerResult is the handler's three-valued return: an explicit
// named type instead of a raw bool so "rejected" and "not handled"
// stay distinguishable at the call site. Both end the connection after
// an error response: 501 for Rejected, 404 for NotHandled.
type HandlerResult int

const (
	Accepted HandlerResult = iota
	Rejected
	NotHandled
)

// Handler is the host application's request callback. It runs
// synchronously from the connection's dispatch goroutine; a handler
// that needs to do asynchronous work should capture the *Request's
// response builder, return Accepted, and call Done/DoneNotify later
// from any goroutine — the connection serializes that re-entry.
type Handler interface {
	Handle(req *Request) HandlerResult
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(req *Request) HandlerResult

func (f HandlerFunc) Handle(req *Request) HandlerResult { return f(req) }
