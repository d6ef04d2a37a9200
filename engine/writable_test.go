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
	"os"

	. "github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"

	. "github.com/sabouaram/rio/engine"
)

var _ = Describe("Writable", func() {
	It("Empty carries zero size and the empty kind", func() {
		gomega.Expect(Empty.Kind()).To(gomega.Equal(KindEmpty))
		gomega.Expect(Empty.Size()).To(gomega.Equal(int64(0)))
		gomega.Expect(Empty.IsFile()).To(gomega.BeFalse())
	})

	It("NewBytes reports the backing slice's length as its size", func() {
		w := NewBytes([]byte("abcde"))
		gomega.Expect(w.Kind()).To(gomega.Equal(KindBytes))
		gomega.Expect(w.Size()).To(gomega.Equal(int64(5)))
		gomega.Expect(w.Bytes()).To(gomega.Equal([]byte("abcde")))
	})

	It("NewString copies its argument", func() {
		s := "hello"
		w := NewString(s)
		gomega.Expect(w.Kind()).To(gomega.Equal(KindString))
		gomega.Expect(string(w.Bytes())).To(gomega.Equal("hello"))
	})

	It("NewShared behaves like NewBytes for sizing purposes", func() {
		w := NewShared([]byte("xyz"))
		gomega.Expect(w.Kind()).To(gomega.Equal(KindShared))
		gomega.Expect(w.Size()).To(gomega.Equal(int64(3)))
	})

	It("NewFile reports Length as its Size, independent of ChunkSize", func() {
		f, err := os.CreateTemp("", "writable-test-*")
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		defer func() {
			_ = f.Close()
			_ = os.Remove(f.Name())
		}()

		w := NewFile(f, 0, 1024, 256, 0)
		gomega.Expect(w.IsFile()).To(gomega.BeTrue())
		gomega.Expect(w.Size()).To(gomega.Equal(int64(1024)))
		gomega.Expect(w.File().ChunkSize).To(gomega.Equal(int64(256)))
	})

	It("NewFile substitutes a default ChunkSize when given a non-positive one", func() {
		f, err := os.CreateTemp("", "writable-test-*")
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		defer func() {
			_ = f.Close()
			_ = os.Remove(f.Name())
		}()

		w := NewFile(f, 0, 10, 0, 0)
		gomega.Expect(w.File().ChunkSize).To(gomega.Equal(int64(64 * 1024)))
	})
})

var _ = Describe("WriteGroup", func() {
	It("Size sums every item's contribution", func() {
		wg := &WriteGroup{Items: []Writable{NewString("abc"), NewBytes([]byte("de"))}}
		gomega.Expect(wg.Size()).To(gomega.Equal(int64(5)))
	})
})
