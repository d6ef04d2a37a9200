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

// Package atomic wraps sync/atomic and sync.Map behind two small
// generic types, so the rest of the module gets typed Load/Store
// without repeating type assertions at every call site.
package atomic

import "sync/atomic"

// Value is a typed atomic cell. The zero Value is ready to use: a Load
// before the first Store returns the zero value of T.
type Value[T any] struct {
	v atomic.Value
}

// NewValue builds an empty cell; mainly useful where a pointer is
// wanted, a zero Value works just as well as a struct field.
func NewValue[T any]() *Value[T] {
	return &Value[T]{}
}

// Load returns the last stored value, or the zero value of T when
// nothing has been stored yet.
func (o *Value[T]) Load() T {
	if v, ok := o.v.Load().(T); ok {
		return v
	}
	var zero T
	return zero
}

func (o *Value[T]) Store(val T) {
	o.v.Store(val)
}

// Swap stores new and returns what was stored before it (zero value of
// T when nothing was).
func (o *Value[T]) Swap(new T) T {
	if v, ok := o.v.Swap(new).(T); ok {
		return v
	}
	var zero T
	return zero
}
