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

import (
	"io"
	"net"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
)

var _ = Describe("writeEngine", func() {
	var (
		server net.Conn
		client net.Conn
		we     *writeEngine
	)

	BeforeEach(func() {
		server, client = net.Pipe()
		we = newWriteEngine(server)
	})

	AfterEach(func() {
		_ = server.Close()
		_ = client.Close()
	})

	// drain reads everything written to client until the writer side
	// signals completion by closing done.
	drain := func(done <-chan error) []byte {
		var got []byte
		buf := make([]byte, 4096)
		for {
			select {
			case err := <-done:
				gomega.Expect(err).NotTo(gomega.HaveOccurred())
				return got
			default:
			}
			_ = client.SetReadDeadline(time.Now().Add(time.Second))
			n, err := client.Read(buf)
			if n > 0 {
				got = append(got, buf[:n]...)
			}
			if err != nil {
				select {
				case e := <-done:
					gomega.Expect(e).NotTo(gomega.HaveOccurred())
				case <-time.After(time.Second):
				}
				return got
			}
		}
	}

	It("gathers consecutive in-memory items into the wire in order", func() {
		g := &WriteGroup{Items: []Writable{
			NewBytes([]byte("abc")),
			NewString("def"),
			NewShared([]byte("ghi")),
		}}

		done := make(chan error, 1)
		go func() {
			done <- we.Send(g, server.SetWriteDeadline, time.Second)
			_ = server.Close()
		}()

		gomega.Expect(drain(done)).To(gomega.Equal([]byte("abcdefghi")))
	})

	It("skips zero-length items without corrupting the wire order", func() {
		g := &WriteGroup{Items: []Writable{
			NewBytes([]byte("a")),
			Empty,
			NewBytes([]byte("b")),
		}}

		done := make(chan error, 1)
		go func() {
			done <- we.Send(g, server.SetWriteDeadline, time.Second)
			_ = server.Close()
		}()

		gomega.Expect(drain(done)).To(gomega.Equal([]byte("ab")))
	})

	It("streams a file segment at the requested offset and length", func() {
		f, err := os.CreateTemp("", "writeengine-*.bin")
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		defer os.Remove(f.Name())
		defer f.Close()

		_, err = f.WriteString("0123456789ABCDEF")
		gomega.Expect(err).NotTo(gomega.HaveOccurred())

		g := &WriteGroup{Items: []Writable{
			NewFile(f, 4, 6, 3, 0), // "456789", read 3 bytes at a time
		}}

		done := make(chan error, 1)
		go func() {
			done <- we.Send(g, server.SetWriteDeadline, time.Second)
			_ = server.Close()
		}()

		gomega.Expect(drain(done)).To(gomega.Equal([]byte("456789")))
	})

	It("flushes gathered buffers around a file item, preserving order", func() {
		f, err := os.CreateTemp("", "writeengine-*.bin")
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		defer os.Remove(f.Name())
		defer f.Close()

		_, err = f.WriteString("FILE")
		gomega.Expect(err).NotTo(gomega.HaveOccurred())

		g := &WriteGroup{Items: []Writable{
			NewBytes([]byte("before-")),
			NewFile(f, 0, 4, 0, 0),
			NewBytes([]byte("-after")),
		}}

		done := make(chan error, 1)
		go func() {
			done <- we.Send(g, server.SetWriteDeadline, time.Second)
			_ = server.Close()
		}()

		gomega.Expect(drain(done)).To(gomega.Equal([]byte("before-FILE-after")))
	})

	It("flushes the gather batch once it reaches maxGatheredBuffers", func() {
		items := make([]Writable, 0, maxGatheredBuffers+1)
		var want []byte
		for i := 0; i < maxGatheredBuffers+1; i++ {
			items = append(items, NewBytes([]byte{'x'}))
			want = append(want, 'x')
		}
		g := &WriteGroup{Items: items}

		done := make(chan error, 1)
		go func() {
			done <- we.Send(g, server.SetWriteDeadline, time.Second)
			_ = server.Close()
		}()

		gomega.Expect(drain(done)).To(gomega.Equal(want))
	})

	It("propagates a write error instead of hanging", func() {
		_ = client.Close()
		_ = server.Close()

		g := &WriteGroup{Items: []Writable{NewBytes([]byte("x"))}}
		err := we.Send(g, server.SetWriteDeadline, time.Second)
		gomega.Expect(err).To(gomega.HaveOccurred())
	})

	It("stops a file stream cleanly at EOF even if Length overstates the file", func() {
		f, err := os.CreateTemp("", "writeengine-*.bin")
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		defer os.Remove(f.Name())
		defer f.Close()

		_, err = f.WriteString("short")
		gomega.Expect(err).NotTo(gomega.HaveOccurred())

		g := &WriteGroup{Items: []Writable{
			NewFile(f, 0, 1000, 4, 0),
		}}

		done := make(chan error, 1)
		go func() {
			done <- we.Send(g, server.SetWriteDeadline, time.Second)
			_ = server.Close()
		}()

		got := drain(done)
		gomega.Expect(got).To(gomega.Equal([]byte("short")))
	})
})

var _ = Describe("writeEngine io.EOF handling", func() {
	It("os.File.ReadAt reports a short final read as (n>0, io.EOF)", func() {
		// covered implicitly by the short-file test above; this test
		// documents the expectation directly against io.ReaderAt semantics.
		var r io.ReaderAt = mustTempFile("tail")
		buf := make([]byte, 8)
		n, err := r.(*os.File).ReadAt(buf, 0)
		gomega.Expect(n).To(gomega.Equal(4))
		gomega.Expect(err).To(gomega.Equal(io.EOF))
	})
})

func mustTempFile(content string) *os.File {
	f, err := os.CreateTemp("", "writeengine-helper-*.bin")
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	_, err = f.WriteString(content)
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	_, err = f.Seek(0, io.SeekStart)
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	return f
}
