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
	"os"
	"time"
)

// Kind tags the variant currently held by a Writable.
type Kind uint8

const (
	KindEmpty Kind = iota
	KindBytes
	KindString
	KindShared
	KindFile
)

// FileSegment is a file-transfer descriptor: the sendfile-style item a
// WriteGroup can carry alongside ordinary byte buffers.
type FileSegment struct {
	File      *os.File
	Offset    int64
	Length    int64
	ChunkSize int64
	TimeLimit time.Duration
}

// Writable is a type-erased writable item: one element of a
// WriteGroup, either bytes (owned, non-owning, or a shared reference;
// all three collapse to a byte slice under Go's garbage collector but
// carry different caller-side aliasing contracts) or a file segment.
// Every variant exposes a stable Size().
type Writable struct {
	kind  Kind
	bytes []byte
	file  *FileSegment
}

// Empty is the zero Writable: no bytes, no effect on the wire.
var Empty = Writable{kind: KindEmpty}

// NewBytes wraps a non-owning reference to b. The caller must not
// mutate b until the write group has been flushed.
func NewBytes(b []byte) Writable {
	return Writable{kind: KindBytes, bytes: b}
}

// NewString copies s into an owned byte string.
func NewString(s string) Writable {
	return Writable{kind: KindString, bytes: []byte(s)}
}

// NewShared wraps a shared data+size reference — semantically
// identical to NewBytes under the Go runtime, kept distinct because the
// source's shared_writable_data_t has independent lifetime semantics a
// caller might still rely on (e.g. handing the same backing array to
// several write groups).
func NewShared(b []byte) Writable {
	return Writable{kind: KindShared, bytes: b}
}

// NewFile builds a file-transfer Writable. chunkSize bounds how much is
// moved per loop iteration of the write engine; timelimit bounds the
// whole transfer, not a single chunk.
func NewFile(f *os.File, offset, length, chunkSize int64, timelimit time.Duration) Writable {
	if chunkSize <= 0 {
		chunkSize = 64 * 1024
	}
	return Writable{kind: KindFile, file: &FileSegment{
		File:      f,
		Offset:    offset,
		Length:    length,
		ChunkSize: chunkSize,
		TimeLimit: timelimit,
	}}
}

func (w Writable) Kind() Kind { return w.kind }

func (w Writable) IsFile() bool { return w.kind == KindFile }

// Bytes returns the backing slice for any non-file variant; nil for
// KindEmpty and KindFile.
func (w Writable) Bytes() []byte { return w.bytes }

// File returns the file segment for KindFile; nil otherwise.
func (w Writable) File() *FileSegment { return w.file }

// Size reports the item's contribution to the group's total byte
// count, stable regardless of variant.
func (w Writable) Size() int64 {
	switch w.kind {
	case KindFile:
		return w.file.Length
	case KindEmpty:
		return 0
	default:
		return int64(len(w.bytes))
	}
}
