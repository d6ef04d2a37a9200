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

// utf8State is the eight-state automaton validating incrementally fed
// UTF-8 bytes, rejecting overlong encodings, surrogate halves, and
// codepoints above U+10FFFF. It is kept standalone (no dependency on
// frame.go) so it can validate payload across frame fragment
// boundaries without re-buffering the whole message.
type utf8State int

const (
	stateWaitFirstByte utf8State = iota
	stateWaitSecondOfTwo
	stateWaitSecondOfThree
	stateWaitSecondOfFour
	stateWaitThirdOfThree
	stateWaitThirdOfFour
	stateWaitFourthOfFour
	stateInvalid
)

// UTF8Checker validates a byte stream incrementally, one byte at a
// time, so a fragmented WebSocket text message can be checked without
// reassembling it first.
type UTF8Checker struct {
	symbol uint32
	state  utf8State
}

// ProcessByte feeds one byte into the automaton. It returns false once
// the sequence becomes invalid; there's no point feeding further bytes
// after that.
func (c *UTF8Checker) ProcessByte(b byte) bool {
	switch c.state {
	case stateWaitFirstByte:
		c.onFirstByte(b)
	case stateWaitSecondOfTwo:
		c.onSecondOfTwo(b)
	case stateWaitSecondOfThree:
		c.onSecondOfThree(b)
	case stateWaitSecondOfFour:
		c.onSecondOfFour(b)
	case stateWaitThirdOfThree:
		c.onThirdOfThree(b)
	case stateWaitThirdOfFour:
		c.onThirdOfFour(b)
	case stateWaitFourthOfFour:
		c.onFourthOfFour(b)
	case stateInvalid:
	}
	return c.state != stateInvalid
}

// Finalized reports whether the checker currently sits on a codepoint
// boundary (no partial multi-byte sequence pending).
func (c *UTF8Checker) Finalized() bool {
	return c.state == stateWaitFirstByte
}

func (c *UTF8Checker) Reset() {
	c.symbol = 0
	c.state = stateWaitFirstByte
}

func (c *UTF8Checker) onFirstByte(b byte) {
	switch {
	case b <= 0x7F:
		c.state = stateWaitFirstByte
		c.symbol = uint32(b)
	case b&0xE0 == 0xC0:
		c.state = stateWaitSecondOfTwo
		c.symbol = uint32(b & 0x1F)
	case b&0xF0 == 0xE0:
		c.state = stateWaitSecondOfThree
		c.symbol = uint32(b & 0x0F)
	case b&0xF8 == 0xF0:
		c.state = stateWaitSecondOfFour
		c.symbol = uint32(b & 0x07)
	default:
		c.state = stateInvalid
	}
}

func (c *UTF8Checker) onSecondOfTwo(b byte) {
	if b&0xC0 != 0x80 {
		c.state = stateInvalid
		return
	}
	c.symbol = c.symbol<<6 | uint32(b&0x3F)
	if c.symbol < 0x0080 {
		c.state = stateInvalid
		return
	}
	c.state = stateWaitFirstByte
}

func (c *UTF8Checker) onSecondOfThree(b byte) {
	if b&0xC0 != 0x80 {
		c.state = stateInvalid
		return
	}
	c.symbol = c.symbol<<6 | uint32(b&0x3F)
	c.state = stateWaitThirdOfThree
}

func (c *UTF8Checker) onSecondOfFour(b byte) {
	if b&0xC0 != 0x80 {
		c.state = stateInvalid
		return
	}
	c.symbol = c.symbol<<6 | uint32(b&0x3F)
	c.state = stateWaitThirdOfFour
}

func (c *UTF8Checker) onThirdOfThree(b byte) {
	if b&0xC0 != 0x80 {
		c.state = stateInvalid
		return
	}
	c.symbol = c.symbol<<6 | uint32(b&0x3F)
	if c.symbol < 0x0800 {
		c.state = stateInvalid
		return
	}
	if c.symbol >= 0xD800 && c.symbol <= 0xDFFF {
		c.state = stateInvalid
		return
	}
	c.state = stateWaitFirstByte
}

func (c *UTF8Checker) onThirdOfFour(b byte) {
	if b&0xC0 != 0x80 {
		c.state = stateInvalid
		return
	}
	c.symbol = c.symbol<<6 | uint32(b&0x3F)
	c.state = stateWaitFourthOfFour
}

func (c *UTF8Checker) onFourthOfFour(b byte) {
	if b&0xC0 != 0x80 {
		c.state = stateInvalid
		return
	}
	c.symbol = c.symbol<<6 | uint32(b&0x3F)
	if c.symbol < 0x10000 {
		c.state = stateInvalid
		return
	}
	if c.symbol >= 0x110000 {
		c.state = stateInvalid
		return
	}
	c.state = stateWaitFirstByte
}

// ValidUTF8 is a convenience one-shot check over a complete byte slice.
// An empty slice is trivially valid: the checker starts and ends in its
// accepting state without consuming a byte.
func ValidUTF8(b []byte) bool {
	var c UTF8Checker
	for _, x := range b {
		if !c.ProcessByte(x) {
			return false
		}
	}
	return c.Finalized()
}
