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
	"time"
)

// maxGatheredBuffers caps how many Writable items get merged into a
// single net.Buffers gather-write before the engine flushes to the
// socket and starts a fresh batch.
const maxGatheredBuffers = 64

// writeEngine drains WriteGroup items onto a net.Conn: in-memory
// items (Bytes/String/Shared) are gathered into net.Buffers for a
// single writev-style syscall, and file items fall back to bounded
// ReadAt/Write chunks so one huge FileSegment can't stall the
// connection's write deadline past its own TimeLimit.
type writeEngine struct {
	conn net.Conn
}

func newWriteEngine(conn net.Conn) *writeEngine {
	return &writeEngine{conn: conn}
}

// Send writes every item of g to the wire in order. setDeadline is
// called before each syscall that can block; defaultTimeout is used
// for in-memory writes and as the file-segment fallback when a
// FileSegment doesn't set its own TimeLimit.
func (w *writeEngine) Send(g *WriteGroup, setDeadline func(time.Time) error, defaultTimeout time.Duration) error {
	var gathered net.Buffers

	flush := func() error {
		if len(gathered) == 0 {
			return nil
		}
		if setDeadline != nil && defaultTimeout > 0 {
			if err := setDeadline(time.Now().Add(defaultTimeout)); err != nil {
				return err
			}
		}
		_, err := gathered.WriteTo(w.conn)
		gathered = gathered[:0]
		return err
	}

	for _, item := range g.Items {
		if item.IsFile() {
			if err := flush(); err != nil {
				return err
			}
			if err := w.sendFile(item.File(), setDeadline, defaultTimeout); err != nil {
				return err
			}
			continue
		}

		b := item.Bytes()
		if len(b) == 0 {
			continue
		}
		gathered = append(gathered, b)
		if len(gathered) >= maxGatheredBuffers {
			if err := flush(); err != nil {
				return err
			}
		}
	}

	return flush()
}

// sendFile streams a FileSegment in ChunkSize pieces under one write
// deadline set before the first chunk, so a slow client can't hold a
// huge file transfer open past its segment's own TimeLimit.
func (w *writeEngine) sendFile(seg *FileSegment, setDeadline func(time.Time) error, defaultTimeout time.Duration) error {
	remaining := seg.Length
	offset := seg.Offset
	chunkSize := seg.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 64 * 1024
	}

	timeout := defaultTimeout
	if seg.TimeLimit > 0 {
		timeout = seg.TimeLimit
	}

	if setDeadline != nil && timeout > 0 {
		if err := setDeadline(time.Now().Add(timeout)); err != nil {
			return err
		}
	}

	buf := make([]byte, chunkSize)
	for remaining > 0 {
		n := chunkSize
		if remaining < n {
			n = remaining
		}

		rd, err := seg.File.ReadAt(buf[:n], offset)
		if rd > 0 {
			if _, werr := w.conn.Write(buf[:rd]); werr != nil {
				return werr
			}
			offset += int64(rd)
			remaining -= int64(rd)
		}
		if err != nil {
			if err == io.EOF {
				break
			}
			return err
		}
	}
	return nil
}
