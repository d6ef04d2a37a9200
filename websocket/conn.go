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

package websocket

import (
	"bufio"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sabouaram/rio/errs"
)

// MessageType distinguishes the two data opcodes delivered to a reader;
// control frames never reach this level.
type MessageType int

const (
	Text MessageType = iota
	Binary
)

// Conn is a server-side WebSocket connection: a raw net.Conn plus the
// frame engine's read/write/close-handshake state. It is handed the
// socket once an HTTP connection completes its 101 upgrade response.
type Conn struct {
	id string
	nc net.Conn
	br *bufio.Reader
	bw *bufio.Writer

	writeMu sync.Mutex // channel-free mutex is fine here: writes never nest under a read

	closeOnce sync.Once
	closeSent bool
	closeRecv bool
}

func NewConn(nc net.Conn) *Conn {
	return &Conn{
		id: uuid.NewString(),
		nc: nc,
		br: bufio.NewReader(nc),
		bw: bufio.NewWriter(nc),
	}
}

// NewConnBuffered is NewConn for a socket whose read side already
// buffered bytes past the HTTP upgrade request: br keeps draining that
// buffer before touching the socket again, so a frame pipelined in the
// same segment as the upgrade request is not lost.
func NewConnBuffered(nc net.Conn, br *bufio.Reader) *Conn {
	c := NewConn(nc)
	c.br = br
	return c
}

// ID returns the connection's opaque correlation id, generated once at
// upgrade time; useful for tying log lines or metrics to one socket
// across its ReadMessage/WriteMessage lifetime.
func (c *Conn) ID() string { return c.id }

// ReadMessage reads one logical message, reassembling fragmented
// frames and transparently answering ping/close control frames as it
// goes. It returns io.EOF once the peer has completed the close
// handshake.
func (c *Conn) ReadMessage() (MessageType, []byte, error) {
	var (
		payload    []byte
		msgType    MessageType
		fragmented bool
		checker    UTF8Checker
	)

	for {
		h, err := ReadHeader(c.br)
		if err != nil {
			return 0, nil, err
		}
		if !h.Masked {
			return 0, nil, errs.New(ErrorUnmaskedClientFrame, "")
		}

		body := make([]byte, h.PayloadLen)
		if h.PayloadLen > 0 {
			if _, err := io.ReadFull(c.br, body); err != nil {
				return 0, nil, err
			}
			MaskXOR(body, h.MaskKey)
		}

		if h.Opcode.IsControl() {
			if err := c.handleControl(h.Opcode, body); err != nil {
				return 0, nil, err
			}
			if h.Opcode == OpClose {
				return 0, nil, io.EOF
			}
			continue
		}

		switch h.Opcode {
		case OpText, OpBinary:
			if fragmented {
				return 0, nil, errs.New(ErrorFragmentationInterrupted, "")
			}
			if h.Opcode == OpText {
				msgType = Text
				checker = UTF8Checker{}
			} else {
				msgType = Binary
			}
		case OpContinuation:
			if !fragmented {
				return 0, nil, errs.New(ErrorUnexpectedContinuation, "")
			}
		default:
			return 0, nil, errs.New(ErrorProtocolReservedBits, "unknown opcode")
		}

		if msgType == Text {
			for _, b := range body {
				if !checker.ProcessByte(b) {
					return 0, nil, errs.New(ErrorInvalidUTF8, "")
				}
			}
		}

		payload = append(payload, body...)

		if h.Final {
			if msgType == Text && !checker.Finalized() {
				return 0, nil, errs.New(ErrorInvalidUTF8, "")
			}
			return msgType, payload, nil
		}
		fragmented = true
	}
}

func (c *Conn) handleControl(op Opcode, body []byte) error {
	switch op {
	case OpPing:
		return c.writeFrame(OpPong, body)
	case OpPong:
		return nil
	case OpClose:
		if !c.closeRecv {
			c.closeRecv = true
			return c.sendClose(body)
		}
		return nil
	}
	return nil
}

// sendClose writes a close frame at most once per connection, echoing
// body (status code + reason) back to the peer.
func (c *Conn) sendClose(body []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closeSent {
		return nil
	}
	c.closeSent = true

	h := Header{Final: true, Opcode: OpClose, PayloadLen: uint64(len(body))}
	if err := WriteHeader(c.bw, h); err != nil {
		return err
	}
	if len(body) > 0 {
		if _, err := c.bw.Write(body); err != nil {
			return err
		}
	}
	return c.bw.Flush()
}

// WriteMessage sends one unfragmented, unmasked data frame (server to
// client frames must not be masked).
func (c *Conn) WriteMessage(t MessageType, payload []byte) error {
	op := OpBinary
	if t == Text {
		op = OpText
	}
	return c.writeFrame(op, payload)
}

func (c *Conn) writeFrame(op Opcode, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	h := Header{Final: true, Opcode: op, Masked: false, PayloadLen: uint64(len(payload))}
	if err := WriteHeader(c.bw, h); err != nil {
		return err
	}
	if len(payload) > 0 {
		if _, err := c.bw.Write(payload); err != nil {
			return err
		}
	}
	return c.bw.Flush()
}

// Close performs the close handshake if not already done, then closes
// the underlying socket. Safe to call more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		_ = c.sendClose(nil)
		err = c.nc.Close()
	})
	return err
}

func (c *Conn) SetDeadline(t time.Time) error { return c.nc.SetDeadline(t) }
