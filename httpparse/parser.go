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

import (
	"bufio"
	"strconv"
	"strings"

	"github.com/sabouaram/rio/errs"
)

// Parser reads one HTTP/1.1 message at a time off a shared bufio.Reader.
// It is deliberately stateless between messages: Parse resets its
// working buffers and is safe to call repeatedly for pipelined
// requests on the same connection.
type Parser struct {
	limits Limits
}

func NewParser(limits Limits) *Parser {
	return &Parser{limits: limits}
}

// Parse reads the request line, header fields, and (if present) body of
// one message from r. It enforces the configured Limits online and
// returns a registered errs.Error on any violation or malformed input.
func (p *Parser) Parse(r *bufio.Reader) (*Request, error) {
	reqLine, err := readLine(r, p.limits.MaxURLSize+64)
	if err != nil {
		return nil, err
	}

	method, target, version, err := parseRequestLine(reqLine)
	if err != nil {
		return nil, err
	}
	if len(target) > p.limits.MaxURLSize {
		return nil, errs.New(ErrorURLTooLarge, target)
	}

	req := &Request{Method: method, Target: target, Version: version}

	if err := p.readHeaders(r, req); err != nil {
		return nil, err
	}

	connVal, _ := req.Header.Get("Connection")
	switch {
	case strings.EqualFold(connVal, "close"):
		req.KeepAlive = false
	case strings.EqualFold(connVal, "keep-alive"):
		req.KeepAlive = true
	default:
		req.KeepAlive = version == HTTP11
	}
	if upg, ok := req.Header.Get("Upgrade"); ok && upg != "" && strings.Contains(strings.ToLower(connVal), "upgrade") {
		req.Upgrade = true
	}

	te, _ := req.Header.Get("Transfer-Encoding")
	cl, hasCL := req.Header.Get("Content-Length")

	switch {
	case strings.Contains(strings.ToLower(te), "chunked"):
		body, chunked, err := p.readChunkedBody(r)
		if err != nil {
			return nil, err
		}
		req.Body = body
		req.Chunked = chunked
	case hasCL:
		n, err := strconv.ParseInt(strings.TrimSpace(cl), 10, 64)
		if err != nil || n < 0 {
			return nil, errs.New(ErrorMalformedHeaderField, "Content-Length")
		}
		if n > p.limits.MaxBodySize {
			return nil, errs.New(ErrorBodyTooLarge, "")
		}
		buf := make([]byte, n)
		if n > 0 {
			if _, err := readFull(r, buf); err != nil {
				return nil, err
			}
		}
		req.Body = buf
	default:
		// No body declared: GET/HEAD/DELETE-style messages.
	}

	return req, nil
}

func (p *Parser) readHeaders(r *bufio.Reader, req *Request) error {
	count := 0
	for {
		line, err := readLine(r, p.limits.MaxFieldNameSize+p.limits.MaxFieldValueSize+64)
		if err != nil {
			return err
		}
		if len(line) == 0 {
			return nil
		}
		count++
		if count > p.limits.MaxFieldCount {
			return errs.New(ErrorTooManyFields, "")
		}

		idx := strings.IndexByte(line, ':')
		if idx <= 0 {
			return errs.New(ErrorMalformedHeaderField, line)
		}
		name := line[:idx]
		value := strings.TrimSpace(line[idx+1:])

		if len(name) > p.limits.MaxFieldNameSize {
			return errs.New(ErrorFieldNameTooLarge, name)
		}
		if len(value) > p.limits.MaxFieldValueSize {
			return errs.New(ErrorFieldValueTooLarge, name)
		}
		req.Header.Add(name, value)
	}
}

// readChunkedBody reassembles a chunked body into one contiguous slice
// while recording each chunk's offset/length/extensions.
func (p *Parser) readChunkedBody(r *bufio.Reader) ([]byte, *ChunkedInput, error) {
	var (
		body []byte
		info = &ChunkedInput{}
	)

	for {
		sizeLine, err := readLine(r, 256)
		if err != nil {
			return nil, nil, err
		}

		sizeStr := sizeLine
		var params []Field
		if semi := strings.IndexByte(sizeLine, ';'); semi >= 0 {
			sizeStr = sizeLine[:semi]
			for _, ext := range strings.Split(sizeLine[semi+1:], ";") {
				ext = strings.TrimSpace(ext)
				if ext == "" {
					continue
				}
				if eq := strings.IndexByte(ext, '='); eq >= 0 {
					params = append(params, Field{Name: ext[:eq], Value: ext[eq+1:]})
				} else {
					params = append(params, Field{Name: ext})
				}
			}
		}

		size, err := strconv.ParseInt(strings.TrimSpace(sizeStr), 16, 64)
		if err != nil || size < 0 {
			return nil, nil, errs.New(ErrorMalformedChunkSize, sizeLine)
		}

		if size == 0 {
			if err := p.readTrailers(r, &info.Trailing); err != nil {
				return nil, nil, err
			}
			return body, info, nil
		}

		if int64(len(body))+size > p.limits.MaxBodySize {
			return nil, nil, errs.New(ErrorBodyTooLarge, "")
		}

		chunk := make([]byte, size)
		if _, err := readFull(r, chunk); err != nil {
			return nil, nil, err
		}
		offset := len(body)
		body = append(body, chunk...)

		// consume the trailing CRLF after chunk data
		if _, err := readLine(r, 2); err != nil {
			return nil, nil, err
		}

		info.Chunks = append(info.Chunks, ChunkInfo{
			Offset:     offset,
			Length:     int(size),
			Parameters: params,
		})
	}
}

func (p *Parser) readTrailers(r *bufio.Reader, trailing *Fields) error {
	for {
		line, err := readLine(r, p.limits.MaxFieldNameSize+p.limits.MaxFieldValueSize+64)
		if err != nil {
			return err
		}
		if len(line) == 0 {
			return nil
		}
		idx := strings.IndexByte(line, ':')
		if idx <= 0 {
			return errs.New(ErrorMalformedHeaderField, line)
		}
		trailing.Add(line[:idx], strings.TrimSpace(line[idx+1:]))
	}
}

func parseRequestLine(line string) (method, target string, version Version, err error) {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) != 3 {
		return "", "", 0, errs.New(ErrorMalformedRequestLine, line)
	}
	switch parts[2] {
	case "HTTP/1.1":
		version = HTTP11
	case "HTTP/1.0":
		version = HTTP10
	default:
		return "", "", 0, errs.New(ErrorUnsupportedVersion, parts[2])
	}
	return parts[0], parts[1], version, nil
}

func readLine(r *bufio.Reader, maxLen int) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if len(line) > maxLen {
		return "", errs.New(ErrorURLTooLarge, "line exceeds limit")
	}
	return line, nil
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}
