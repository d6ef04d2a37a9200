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

import "github.com/sabouaram/rio/errs"

const (
	ErrorServerValidate errs.CodeError = iota + errs.MinPkgHttpServer
	ErrorServerListen
	ErrorServerAlreadyRunning
	ErrorPoolAdd
	ErrorPoolValidate
	ErrorPoolListen
	ErrorPortUse
	ErrorInvalidAddress
)

func init() {
	errs.RegisterIdFctMessage(ErrorServerValidate, getMessage)
}

func getMessage(code errs.CodeError) string {
	switch code {
	case ErrorServerValidate:
		return "server configuration is not valid"
	case ErrorServerListen:
		return "server failed to start listening"
	case ErrorServerAlreadyRunning:
		return "server is already running"
	case ErrorPoolAdd:
		return "cannot add server to pool"
	case ErrorPoolValidate:
		return "at least one config in the pool is not valid"
	case ErrorPoolListen:
		return "at least one server in the pool failed to listen"
	case ErrorPortUse:
		return "server port is still in use"
	case ErrorInvalidAddress:
		return "listen address is not a valid host:port"
	}
	return ""
}
