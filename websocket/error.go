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

import "github.com/sabouaram/rio/errs"

const (
	ErrorProtocolReservedBits errs.CodeError = iota + errs.MinPkgWebsocket
	ErrorControlFrameFragmented
	ErrorControlFramePayloadTooLarge
	ErrorUnmaskedClientFrame
	ErrorMaskedServerFrame
	ErrorInvalidUTF8
	ErrorUnexpectedContinuation
	ErrorFragmentationInterrupted
)

func init() {
	errs.RegisterIdFctMessage(ErrorProtocolReservedBits, getMessage)
}

func getMessage(code errs.CodeError) string {
	switch code {
	case ErrorProtocolReservedBits:
		return "reserved bits set without a negotiated extension"
	case ErrorControlFrameFragmented:
		return "control frame must not be fragmented"
	case ErrorControlFramePayloadTooLarge:
		return "control frame payload exceeds 125 bytes"
	case ErrorUnmaskedClientFrame:
		return "client-to-server frame must be masked"
	case ErrorMaskedServerFrame:
		return "server-to-client frame must not be masked"
	case ErrorInvalidUTF8:
		return "text frame payload is not valid UTF-8"
	case ErrorUnexpectedContinuation:
		return "continuation frame without a preceding fragmented message"
	case ErrorFragmentationInterrupted:
		return "new data frame while a fragmented message is in progress"
	}
	return ""
}
