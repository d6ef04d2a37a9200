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

// Package engine implements the asynchronous HTTP/1.1 connection
// engine: an admission-controlled Acceptor hands each socket to a
// Connection, which runs a byte-fed parse/dispatch/write loop against
// a caller-supplied Handler.
//
// Pipelined requests are dispatched to the handler as soon as they
// parse, but the Coordinator guarantees their responses reach the wire
// in request order. Output goes through ResponseBuilder, which batches
// into WriteGroups the writeEngine gathers onto the socket with
// net.Buffers, falling back to bounded ReadAt/Write loops for file
// segments. A single coalesced TimerManager backs every per-phase
// deadline (header read, handler execution, response write) so a busy
// listener doesn't pay for one timer per in-flight operation.
//
// A successful WebSocket upgrade hands the raw net.Conn off to the
// websocket package once the 101 response has flushed; the Connection
// then steps out of the way entirely.
package engine
