// Copyright 2025 Alan Matykiewicz
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to use,
// copy, modify, merge, publish, distribute, sublicense, and/or sell copies of the
// Software, and to permit persons to whom the Software is furnished to do so,
// subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND,
// EXPRESS OR IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES
// OF MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND
// NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR COPYRIGHT
// HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY,
// WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING
// FROM, OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR
// OTHER DEALINGS IN THE SOFTWARE.

// Package registry provides a concurrency safe keyed registry.
package registry

import (
	"sync"
)

type Entry[K comparable, V any] struct {
	Key   K
	Value V
}

type Registry[K comparable, V any] struct {
	mu      sync.RWMutex
	entries map[K]V
}

func New[K comparable, V any]() *Registry[K, V] {
	return &Registry[K, V]{
		entries: make(map[K]V),
	}
}

// Register adds val under key, overwriting any previous value.
func (r *Registry[K, V]) Register(key K, val V) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[key] = val
}

func (r *Registry[K, V]) RegisterMany(entries ...Entry[K, V]) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range entries {
		r.entries[e.Key] = e.Value
	}
}

func (r *Registry[K, V]) Get(key K) (V, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	val, ok := r.entries[key]
	return val, ok
}

// GetOrRegister returns the value under key, registering the result of
// create first when there is none.
func (r *Registry[K, V]) GetOrRegister(key K, create func() V) V {
	if val, ok := r.Get(key); ok {
		return val
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if val, ok := r.entries[key]; ok {
		return val
	}
	val := create()
	r.entries[key] = val
	return val
}

func (r *Registry[K, V]) Exists(key K) bool {
	_, ok := r.Get(key)
	return ok
}

func (r *Registry[K, V]) Delete(keys ...K) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, k := range keys {
		delete(r.entries, k)
	}
}

func (r *Registry[K, V]) List() []K {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]K, 0, len(r.entries))
	for k := range r.entries {
		keys = append(keys, k)
	}
	return keys
}

func (r *Registry[K, V]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.entries)
}
