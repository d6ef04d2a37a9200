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

// Package websocket implements the RFC 6455 frame engine used once an
// HTTP connection has upgraded: header parse/serialize, masking,
// fragmentation and control-frame rules, and the close handshake.
package websocket

import (
	"encoding/binary"
	"io"

	"github.com/sabouaram/rio/errs"
)

type Opcode byte

const (
	OpContinuation Opcode = 0x0
	OpText         Opcode = 0x1
	OpBinary       Opcode = 0x2
	OpClose        Opcode = 0x8
	OpPing         Opcode = 0x9
	OpPong         Opcode = 0xA
)

func (o Opcode) IsControl() bool { return o >= 0x8 }

// Header is one parsed WebSocket frame header.
type Header struct {
	Final      bool
	Rsv1       bool
	Rsv2       bool
	Rsv3       bool
	Opcode     Opcode
	Masked     bool
	PayloadLen uint64
	MaskKey    [4]byte
}

const maxControlPayload = 125

// ReadHeader parses one frame header from r, validating the control
// frame and reserved-bit rules as it goes.
func ReadHeader(r io.Reader) (Header, error) {
	var first [2]byte
	if _, err := io.ReadFull(r, first[:]); err != nil {
		return Header{}, err
	}

	h := Header{
		Final:  first[0]&0x80 != 0,
		Rsv1:   first[0]&0x40 != 0,
		Rsv2:   first[0]&0x20 != 0,
		Rsv3:   first[0]&0x10 != 0,
		Opcode: Opcode(first[0] & 0x0F),
		Masked: first[1]&0x80 != 0,
	}

	if h.Rsv1 || h.Rsv2 || h.Rsv3 {
		return Header{}, errs.New(ErrorProtocolReservedBits, "")
	}

	lenCode := first[1] & 0x7F
	switch {
	case lenCode <= 125:
		h.PayloadLen = uint64(lenCode)
	case lenCode == 126:
		var ext [2]byte
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return Header{}, err
		}
		h.PayloadLen = uint64(binary.BigEndian.Uint16(ext[:]))
	default: // 127
		var ext [8]byte
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return Header{}, err
		}
		h.PayloadLen = binary.BigEndian.Uint64(ext[:])
	}

	if h.Opcode.IsControl() {
		if !h.Final {
			return Header{}, errs.New(ErrorControlFrameFragmented, "")
		}
		if h.PayloadLen > maxControlPayload {
			return Header{}, errs.New(ErrorControlFramePayloadTooLarge, "")
		}
	}

	if h.Masked {
		if _, err := io.ReadFull(r, h.MaskKey[:]); err != nil {
			return Header{}, err
		}
	}

	return h, nil
}

// WriteHeader serializes h, mirroring ReadHeader exactly so that
// serialize-then-parse round-trips to an identical {final, opcode, len,
// maskKey} tuple.
func WriteHeader(w io.Writer, h Header) error {
	var first [2]byte
	if h.Final {
		first[0] |= 0x80
	}
	first[0] |= byte(h.Opcode) & 0x0F

	switch {
	case h.PayloadLen <= 125:
		first[1] = byte(h.PayloadLen)
	case h.PayloadLen <= 0xFFFF:
		first[1] = 126
	default:
		first[1] = 127
	}
	if h.Masked {
		first[1] |= 0x80
	}

	if _, err := w.Write(first[:]); err != nil {
		return err
	}

	switch {
	case h.PayloadLen <= 125:
	case h.PayloadLen <= 0xFFFF:
		var ext [2]byte
		binary.BigEndian.PutUint16(ext[:], uint16(h.PayloadLen))
		if _, err := w.Write(ext[:]); err != nil {
			return err
		}
	default:
		var ext [8]byte
		binary.BigEndian.PutUint64(ext[:], h.PayloadLen)
		if _, err := w.Write(ext[:]); err != nil {
			return err
		}
	}

	if h.Masked {
		if _, err := w.Write(h.MaskKey[:]); err != nil {
			return err
		}
	}

	return nil
}

// MaskXOR applies (or reverses — XOR is its own inverse) RFC 6455
// masking in place, indexing the key modulo 4.
func MaskXOR(data []byte, key [4]byte) {
	for i := range data {
		data[i] ^= key[i%4]
	}
}
