// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package registry provides a generic registry, which preserves the order in
// which items were registered and can be frozen once populated.
package registry

import (
	"errors"
	"fmt"
	"sync"
)

// ErrKeyAlreadyRegistered is returned when attempting to register a key, which
// is already present in the registry.
var ErrKeyAlreadyRegistered = errors.New("key is already registered")

// ErrFrozen is returned when attempting to modify a frozen registry.
var ErrFrozen = errors.New("registry is frozen")

// ErrStopIteration is an error, which is used to stop iterating over the
// registry.
var ErrStopIteration = errors.New("stop iteration")

// ErrContinue is a no-op error, which is used to signal [Registry.Range] to
// continue the iteration.
var ErrContinue = errors.New("continue iteration")

// Registry is a concurrent-safe registry.
type Registry[K comparable, V any] struct {
	mu     sync.RWMutex
	items  map[K]V
	order  []K
	frozen bool
}

// New creates a new empty registry.
func New[K comparable, V any]() *Registry[K, V] {
	r := &Registry[K, V]{
		items: make(map[K]V),
	}

	return r
}

// Register registers the key and value with the registry
func (r *Registry[K, V]) Register(key K, val V) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return fmt.Errorf("%w: cannot register %v", ErrFrozen, key)
	}

	if _, exists := r.items[key]; exists {
		return fmt.Errorf("%w: %v", ErrKeyAlreadyRegistered, key)
	}

	r.items[key] = val
	r.order = append(r.order, key)

	return nil
}

// Freeze makes the registry read-only.
func (r *Registry[K, V]) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.frozen = true
}

// Get returns the value associated with the given key and a boolean indicating
// whether the key is present in the registry.
func (r *Registry[K, V]) Get(key K) (V, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	val, ok := r.items[key]

	return val, ok
}

// Length returns the number of items in the registry.
func (r *Registry[K, V]) Length() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.items)
}

// RangeFunc is a function which is called when iterating over the registry
// items. In order to stop iteration callers should return [ErrStopIteration].
type RangeFunc[K comparable, V any] func(key K, val V) error

// Range calls f for each item in registration order. If f returns an error,
// Range will stop the iteration.
func (r *Registry[K, V]) Range(f RangeFunc[K, V]) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, k := range r.order {
		err := f(k, r.items[k])
		switch {
		case err == nil, errors.Is(err, ErrContinue):
			continue
		case errors.Is(err, ErrStopIteration):
			return nil
		default:
			return err
		}
	}

	return nil
}
