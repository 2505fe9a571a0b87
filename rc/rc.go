// Copyright 2025 The interior Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rc provides Rc, a reference-counted handle with deterministic
// destruction.
//
// Every Rc created by New or Clone is a handle to one shared block holding
// the value and a count of live handles. Releasing the last handle destroys
// the value right away: its Drop method (or the function given to
// NewWithDrop) runs exactly once, and the block forgets the value so nothing
// can reach it afterwards. The garbage collector still reclaims the memory;
// what Rc adds is the exactly-once, exactly-at-zero destruction point.
//
// The count is not atomic. A block and all its handles are confined to the
// goroutine that called New; use from any other goroutine panics.
//
// Typical use:
//
//	shared := rc.New(conn)
//	defer shared.Release()
//
//	cache.conn = shared.Clone() // released by the cache when it evicts
package rc

import (
	"github.com/kolkov/interior/cell"
	"github.com/kolkov/interior/internal/config"
	"github.com/kolkov/interior/internal/nocopy"
	"github.com/kolkov/interior/internal/owner"
	"github.com/kolkov/interior/internal/stackdepot"
	"github.com/kolkov/interior/internal/violation"
)

// Dropper is implemented by values that need cleanup when the last handle
// to them is released.
type Dropper interface {
	Drop()
}

// block is the unit of ownership shared by all handles.
type block[T any] struct {
	owner owner.Owner
	value T
	drop  func(*T)

	// count is never touched without b.owner having been checked first, so
	// it keeps the unchecked zero owner.
	count cell.Cell[uint]
}

// Rc is one handle to a reference-counted value.
//
// Handles must not be copied; use Clone to obtain another handle.
type Rc[T any] struct {
	_ nocopy.NoCopy
	b *block[T]

	// released is the stackdepot hash of the Release call, when tracked.
	released uint64
}

// New allocates a block holding v with a count of 1 and returns its first
// handle. If T implements Dropper, Drop runs when the last handle is released.
func New[T any](v T) *Rc[T] {
	b := &block[T]{owner: owner.New(), value: v}
	b.count.Set(1)
	return &Rc[T]{b: b}
}

// NewWithDrop is like New but runs drop instead of any Drop method when the
// last handle is released. drop receives a pointer to the value.
func NewWithDrop[T any](v T, drop func(*T)) *Rc[T] {
	r := New(v)
	r.b.drop = drop
	return r
}

// live returns the block, raising a violation if the handle was released.
func (r *Rc[T]) live(op string) *block[T] {
	if r.b == nil {
		violation.Released(op, r.released)
	}
	r.b.owner.Check(op)
	return r.b
}

// Clone returns a new handle to the same block and increments the count.
// The value itself is not copied.
func (r *Rc[T]) Clone() *Rc[T] {
	b := r.live("rc.Rc.Clone")
	b.count.Set(b.count.Get() + 1)
	return &Rc[T]{b: b}
}

// Get returns a pointer to the shared value. The pointer is valid until
// this handle is released; do not retain it beyond that.
func (r *Rc[T]) Get() *T {
	return &r.live("rc.Rc.Get").value
}

// Value returns a copy of the shared value. Convenient when T is itself a
// pointer, e.g. Rc[*refcell.RefCell[S]].
func (r *Rc[T]) Value() T {
	return r.live("rc.Rc.Value").value
}

// Count returns the number of live handles to the block.
func (r *Rc[T]) Count() uint {
	return r.live("rc.Rc.Count").count.Get()
}

// PtrEq reports whether r and other are handles to the same block. A nil or
// released other aliases nothing, so PtrEq reports false for it.
func (r *Rc[T]) PtrEq(other *Rc[T]) bool {
	b := r.live("rc.Rc.PtrEq")
	return other.IsValid() && other.b == b
}

// IsValid reports whether the handle has not been released. It may be
// called on a nil *Rc.
func (r *Rc[T]) IsValid() bool {
	return r != nil && r.b != nil
}

// Release gives up this handle. If it was the last one, the value is
// destroyed before Release returns; otherwise the count is decremented.
//
// Release is idempotent per handle, so an early Release may be combined with
// a deferred one. Every other method panics after Release.
func (r *Rc[T]) Release() {
	if r == nil || r.b == nil {
		return
	}
	b := r.live("rc.Rc.Release")

	// Decide before anything is torn down, and detach the handle first so
	// it can never observe the destroyed block.
	n := b.count.Get()
	r.b = nil
	if config.Load().TrackBorrows {
		r.released = stackdepot.Capture(1)
	}

	switch {
	case n == 0:
		violation.Inconsistent("rc.Rc.Release", "live handle on a block with count 0")
	case n == 1:
		b.count.Set(0)
		b.destroy()
	default:
		b.count.Set(n - 1)
	}
}

// destroy runs the value's destructor and forgets the value.
func (b *block[T]) destroy() {
	if b.drop != nil {
		b.drop(&b.value)
	} else if d, ok := any(b.value).(Dropper); ok {
		d.Drop()
	} else if d, ok := any(&b.value).(Dropper); ok {
		d.Drop()
	}
	var zero T
	b.value = zero
	b.drop = nil
}
