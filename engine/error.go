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

import "github.com/sabouaram/rio/errs"

const (
	ErrorRingFull errs.CodeError = iota + errs.MinPkgEngine
	ErrorUnknownRequestID
	ErrorDuplicateFinal
	ErrorAppendAfterFinal
	ErrorWriteNotExecuted
	ErrorAdmissionDenied
	ErrorHandlerPanic
	ErrorTimeoutReadHeader
	ErrorTimeoutHandle
	ErrorTimeoutWrite
	ErrorConnectionClosed
	ErrorListenerClosed
	ErrorListenerConfigInvalid
)

func init() {
	errs.RegisterIdFctMessage(ErrorRingFull, getMessage)
}

func getMessage(code errs.CodeError) string {
	switch code {
	case ErrorRingFull:
		return "pipelining ring is at capacity"
	case ErrorUnknownRequestID:
		return "unknown request id"
	case ErrorDuplicateFinal:
		return "final write group already set for this request"
	case ErrorAppendAfterFinal:
		return "append after final write group"
	case ErrorWriteNotExecuted:
		return "write group was never sent to the wire"
	case ErrorAdmissionDenied:
		return "connection rejected by admission control or IP blocker"
	case ErrorHandlerPanic:
		return "handler panicked during dispatch"
	case ErrorTimeoutReadHeader:
		return "timed out waiting for the next request"
	case ErrorTimeoutHandle:
		return "handler exceeded its allotted time before first write"
	case ErrorTimeoutWrite:
		return "timed out writing the response"
	case ErrorConnectionClosed:
		return "connection closed"
	case ErrorListenerClosed:
		return "listener closed"
	case ErrorListenerConfigInvalid:
		return "listener configuration is not valid"
	}
	return ""
}
