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

package engine_test

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"

	. "github.com/sabouaram/rio/engine"
	"github.com/sabouaram/rio/httpparse"
	"github.com/sabouaram/rio/websocket"
)

func baseConfig() ListenerConfig {
	return ListenerConfig{
		BindAddress:            "127.0.0.1",
		Port:                   0,
		Network:                "tcp",
		ConcurrentAccepts:      4,
		MaxPipelinedRequests:   16,
		ReadBufferSize:         16 * 1024,
		Limits:                 httpparse.DefaultLimits,
		MaxParallelConnections: 64,
		Timeouts: Timeouts{
			ReadNextHeader: 2 * time.Second,
			HandleRequest:  2 * time.Second,
			WriteResponse:  2 * time.Second,
		},
	}
}

func startListener(cfg ListenerConfig, h Handler) *Listener {
	l, err := NewListener(cfg, h)
	gomega.Expect(err).To(gomega.BeNil())
	gomega.Expect(l.Listen(context.Background())).To(gomega.BeNil())
	return l
}

var _ = Describe("end-to-end HTTP", func() {
	It("reassembles a chunked POST body and echoes its length", func() {
		h := HandlerFunc(func(r *Request) HandlerResult {
			resp := r.CreateResponse(200, Buffered)
			resp.SetBody([]byte(strconv.Itoa(len(r.Body()))))
			_ = resp.Done()
			return Accepted
		})

		l := startListener(baseConfig(), h)
		defer l.Shutdown()

		conn, err := net.Dial("tcp", l.Addr().String())
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		defer conn.Close()

		req := "POST /upload HTTP/1.1\r\nHost: x\r\nTransfer-Encoding: chunked\r\n\r\n" +
			"4\r\nWiki\r\n5\r\npedia\r\n0\r\n\r\n"
		_, err = conn.Write([]byte(req))
		gomega.Expect(err).ToNot(gomega.HaveOccurred())

		br := bufio.NewReader(conn)
		status, body := readHTTPResponse(br)
		gomega.Expect(status).To(gomega.Equal(200))
		gomega.Expect(body).To(gomega.Equal("9")) // len("Wikipedia")
	})

	It("preserves wire response order across out-of-order handler completion (pipelining)", func() {
		const n = 10
		h := HandlerFunc(func(r *Request) HandlerResult {
			var i int
			_, _ = fmt.Sscanf(r.Target(), "/r/%d", &i)

			resp := r.CreateResponse(200, Buffered)
			resp.SetBody([]byte(strconv.Itoa(i)))
			// Invert completion order: the highest-numbered request
			// finishes first, the lowest last.
			delay := time.Duration((n-i)*5) * time.Millisecond
			go func() {
				time.Sleep(delay)
				_ = resp.Done()
			}()
			return Accepted
		})

		l := startListener(baseConfig(), h)
		defer l.Shutdown()

		conn, err := net.Dial("tcp", l.Addr().String())
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		defer conn.Close()

		var sb strings.Builder
		for i := 0; i < n; i++ {
			fmt.Fprintf(&sb, "GET /r/%d HTTP/1.1\r\nHost: x\r\n\r\n", i)
		}
		_, err = conn.Write([]byte(sb.String()))
		gomega.Expect(err).ToNot(gomega.HaveOccurred())

		br := bufio.NewReader(conn)
		for i := 0; i < n; i++ {
			status, body := readHTTPResponse(br)
			gomega.Expect(status).To(gomega.Equal(200))
			gomega.Expect(body).To(gomega.Equal(strconv.Itoa(i)))
		}
	})

	It("closes the connection on Connection: close and a fresh connection still works", func() {
		h := HandlerFunc(func(r *Request) HandlerResult {
			resp := r.CreateResponse(200, Buffered)
			resp.SetBody([]byte("ok"))
			_ = resp.Done()
			return Accepted
		})

		l := startListener(baseConfig(), h)
		defer l.Shutdown()

		conn, err := net.Dial("tcp", l.Addr().String())
		gomega.Expect(err).ToNot(gomega.HaveOccurred())

		_, err = conn.Write([]byte("GET / HTTP/1.1\r\nHost: x\r\nConnection: close\r\n\r\n"))
		gomega.Expect(err).ToNot(gomega.HaveOccurred())

		br := bufio.NewReader(conn)
		status, body := readHTTPResponse(br)
		gomega.Expect(status).To(gomega.Equal(200))
		gomega.Expect(body).To(gomega.Equal("ok"))

		_, err = br.ReadByte()
		gomega.Expect(err).To(gomega.HaveOccurred()) // server closed the socket
		_ = conn.Close()
	})

	It("aborts a connection whose request line exceeds the configured URL limit, without taking down the listener", func() {
		cfg := baseConfig()
		cfg.Limits.MaxURLSize = 8

		h := HandlerFunc(func(r *Request) HandlerResult {
			resp := r.CreateResponse(200, Buffered)
			resp.SetBody([]byte("ok"))
			_ = resp.Done()
			return Accepted
		})

		l := startListener(cfg, h)
		defer l.Shutdown()

		bad, err := net.Dial("tcp", l.Addr().String())
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		_, err = bad.Write([]byte("GET /this-path-is-way-too-long-for-the-limit HTTP/1.1\r\nHost: x\r\n\r\n"))
		gomega.Expect(err).ToNot(gomega.HaveOccurred())

		br := bufio.NewReader(bad)
		_, err = br.ReadByte()
		gomega.Expect(err).To(gomega.HaveOccurred()) // aborted without a response
		_ = bad.Close()

		good, err := net.Dial("tcp", l.Addr().String())
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		defer good.Close()
		_, err = good.Write([]byte("GET /ok HTTP/1.1\r\nHost: x\r\nConnection: close\r\n\r\n"))
		gomega.Expect(err).ToNot(gomega.HaveOccurred())

		status, body := readHTTPResponse(bufio.NewReader(good))
		gomega.Expect(status).To(gomega.Equal(200))
		gomega.Expect(body).To(gomega.Equal("ok"))
	})
})

var _ = Describe("end-to-end WebSocket", func() {
	const clientKey = "dGhlIHNhbXBsZSBub25jZQ=="

	wsHandler := func() Handler {
		return HandlerFunc(func(r *Request) HandlerResult {
			if !r.IsUpgrade() {
				return NotHandled
			}
			key, _ := r.Header().Get("Sec-WebSocket-Key")
			accept := websocket.AcceptKey(key)
			r.UpgradeToWebSocket(accept, func(ws *websocket.Conn, err error) {
				if err != nil {
					return
				}
				go func() {
					for {
						typ, data, rerr := ws.ReadMessage()
						if rerr != nil {
							_ = ws.Close()
							return
						}
						_ = ws.WriteMessage(typ, data)
					}
				}()
			}).Done()
			return Accepted
		})
	}

	It("upgrades and echoes a masked text frame back unmasked", func() {
		l := startListener(baseConfig(), wsHandler())
		defer l.Shutdown()

		conn, err := net.Dial("tcp", l.Addr().String())
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		defer conn.Close()

		req := "GET /ws HTTP/1.1\r\nHost: x\r\nConnection: Upgrade\r\nUpgrade: websocket\r\n" +
			"Sec-WebSocket-Key: " + clientKey + "\r\nSec-WebSocket-Version: 13\r\n\r\n"
		_, err = conn.Write([]byte(req))
		gomega.Expect(err).ToNot(gomega.HaveOccurred())

		br := bufio.NewReader(conn)
		statusLine, err := br.ReadString('\n')
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(statusLine).To(gomega.ContainSubstring("101"))

		for {
			line, err := br.ReadString('\n')
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			if strings.TrimRight(line, "\r\n") == "" {
				break
			}
		}

		payload := []byte("hello")
		key := [4]byte{1, 2, 3, 4}
		masked := append([]byte(nil), payload...)
		websocket.MaskXOR(masked, key)
		gomega.Expect(websocket.WriteHeader(conn, websocket.Header{Final: true, Opcode: websocket.OpText, Masked: true, PayloadLen: uint64(len(payload)), MaskKey: key})).To(gomega.Succeed())
		_, err = conn.Write(masked)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())

		h, err := websocket.ReadHeader(br)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(h.Opcode).To(gomega.Equal(websocket.OpText))
		gomega.Expect(h.Masked).To(gomega.BeFalse())

		body := make([]byte, h.PayloadLen)
		_, err = io.ReadFull(br, body)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(string(body)).To(gomega.Equal("hello"))
	})

	It("does not lose a frame pipelined in the same segment as the upgrade request", func() {
		l := startListener(baseConfig(), wsHandler())
		defer l.Shutdown()

		conn, err := net.Dial("tcp", l.Addr().String())
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		defer conn.Close()

		payload := []byte("eager")
		key := [4]byte{3, 1, 4, 1}
		masked := append([]byte(nil), payload...)
		websocket.MaskXOR(masked, key)

		// Upgrade request and first frame in a single write.
		var buf bytes.Buffer
		buf.WriteString("GET /ws HTTP/1.1\r\nHost: x\r\nConnection: Upgrade\r\nUpgrade: websocket\r\n" +
			"Sec-WebSocket-Key: " + clientKey + "\r\nSec-WebSocket-Version: 13\r\n\r\n")
		gomega.Expect(websocket.WriteHeader(&buf, websocket.Header{Final: true, Opcode: websocket.OpText, Masked: true, PayloadLen: uint64(len(payload)), MaskKey: key})).To(gomega.Succeed())
		buf.Write(masked)

		_, err = conn.Write(buf.Bytes())
		gomega.Expect(err).ToNot(gomega.HaveOccurred())

		br := bufio.NewReader(conn)
		statusLine, err := br.ReadString('\n')
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(statusLine).To(gomega.ContainSubstring("101"))
		for {
			line, err := br.ReadString('\n')
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			if strings.TrimRight(line, "\r\n") == "" {
				break
			}
		}

		h, err := websocket.ReadHeader(br)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(h.Opcode).To(gomega.Equal(websocket.OpText))

		body := make([]byte, h.PayloadLen)
		_, err = io.ReadFull(br, body)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(string(body)).To(gomega.Equal("eager"))
	})

	It("completes the close handshake initiated by the client", func() {
		l := startListener(baseConfig(), wsHandler())
		defer l.Shutdown()

		conn, err := net.Dial("tcp", l.Addr().String())
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		defer conn.Close()

		req := "GET /ws HTTP/1.1\r\nHost: x\r\nConnection: Upgrade\r\nUpgrade: websocket\r\n" +
			"Sec-WebSocket-Key: " + clientKey + "\r\nSec-WebSocket-Version: 13\r\n\r\n"
		_, err = conn.Write([]byte(req))
		gomega.Expect(err).ToNot(gomega.HaveOccurred())

		br := bufio.NewReader(conn)
		statusLine, err := br.ReadString('\n')
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(statusLine).To(gomega.ContainSubstring("101"))
		for {
			line, err := br.ReadString('\n')
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			if strings.TrimRight(line, "\r\n") == "" {
				break
			}
		}

		key := [4]byte{9, 9, 9, 9}
		gomega.Expect(websocket.WriteHeader(conn, websocket.Header{Final: true, Opcode: websocket.OpClose, Masked: true, MaskKey: key})).To(gomega.Succeed())

		h, err := websocket.ReadHeader(br)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(h.Opcode).To(gomega.Equal(websocket.OpClose))
	})
})

// readHTTPResponse reads one HTTP/1.1 response off br, returning its
// status code and body (Content-Length only — sufficient for these
// Buffered-mode test responses).
func readHTTPResponse(br *bufio.Reader) (int, string) {
	statusLine, err := br.ReadString('\n')
	gomega.Expect(err).ToNot(gomega.HaveOccurred())

	var status int
	fmt.Sscanf(statusLine, "HTTP/1.1 %d", &status)

	contentLength := 0
	for {
		line, err := br.ReadString('\n')
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		trimmed := strings.TrimRight(line, "\r\n")
		if trimmed == "" {
			break
		}
		if strings.HasPrefix(strings.ToLower(trimmed), "content-length:") {
			fmt.Sscanf(trimmed, "Content-Length: %d", &contentLength)
		}
	}

	body := make([]byte, contentLength)
	if contentLength > 0 {
		_, err = io.ReadFull(br, body)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
	}
	return status, string(body)
}
