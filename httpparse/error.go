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

package httpparse

import "github.com/sabouaram/rio/errs"

const (
	ErrorMalformedRequestLine errs.CodeError = iota + errs.MinPkgHttpParse
	ErrorMalformedHeaderField
	ErrorURLTooLarge
	ErrorTooManyFields
	ErrorFieldNameTooLarge
	ErrorFieldValueTooLarge
	ErrorBodyTooLarge
	ErrorMalformedChunkSize
	ErrorUnsupportedVersion
)

func init() {
	errs.RegisterIdFctMessage(ErrorMalformedRequestLine, getMessage)
}

func getMessage(code errs.CodeError) string {
	switch code {
	case ErrorMalformedRequestLine:
		return "malformed HTTP request line"
	case ErrorMalformedHeaderField:
		return "malformed HTTP header field"
	case ErrorURLTooLarge:
		return "request target exceeds configured limit"
	case ErrorTooManyFields:
		return "too many header fields"
	case ErrorFieldNameTooLarge:
		return "header field name exceeds configured limit"
	case ErrorFieldValueTooLarge:
		return "header field value exceeds configured limit"
	case ErrorBodyTooLarge:
		return "request body exceeds configured limit"
	case ErrorMalformedChunkSize:
		return "malformed chunk size line"
	case ErrorUnsupportedVersion:
		return "unsupported HTTP version"
	}
	return ""
}
