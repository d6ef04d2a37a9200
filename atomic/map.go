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

package atomic

import "sync"

// Map is a typed-key view over sync.Map: keys are K, values stay any,
// matching the heterogeneous user-data bags it backs.
type Map[K comparable] struct {
	m sync.Map
}

// NewMap builds an empty map.
func NewMap[K comparable]() *Map[K] {
	return &Map[K]{}
}

func (o *Map[K]) Load(key K) (value any, ok bool) {
	return o.m.Load(key)
}

func (o *Map[K]) Store(key K, value any) {
	o.m.Store(key, value)
}

func (o *Map[K]) Delete(key K) {
	o.m.Delete(key)
}

func (o *Map[K]) LoadOrStore(key K, value any) (actual any, loaded bool) {
	return o.m.LoadOrStore(key, value)
}

// Range visits every entry until fn returns false. Entries whose key
// is not a K (impossible through this type's own methods) are skipped.
func (o *Map[K]) Range(fn func(key K, value any) bool) {
	o.m.Range(func(k, v any) bool {
		key, ok := k.(K)
		if !ok {
			return true
		}
		return fn(key, v)
	})
}
