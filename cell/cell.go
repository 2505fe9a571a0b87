// Copyright 2025 The interior Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package cell provides Cell, a mutable slot usable through a shared pointer.
//
// A Cell never hands out a pointer into its storage: values go in by copy
// (Set) and come out by copy (Get). With no live alias into the slot, any
// holder of a *Cell may replace the value at any time without invalidating
// anyone else's view.
//
// A Cell is confined to the goroutine that created it. It performs no
// locking; use from any other goroutine panics with a violation report.
package cell

import (
	"github.com/kolkov/interior/internal/nocopy"
	"github.com/kolkov/interior/internal/owner"
)

// Cell holds exactly one value of type T.
//
// The zero value holds the zero T and is not bound to any goroutine. Cells
// must not be copied after first use.
type Cell[T any] struct {
	_     nocopy.NoCopy
	owner owner.Owner
	value T
}

// New returns a Cell holding v, owned by the calling goroutine.
func New[T any](v T) *Cell[T] {
	return &Cell[T]{owner: owner.New(), value: v}
}

// Set replaces the stored value with v. The old value is dropped.
func (c *Cell[T]) Set(v T) {
	c.owner.Check("cell.Cell.Set")
	c.value = v
}

// Get returns a copy of the stored value.
//
// The copy is shallow: if T holds pointers, the pointees are shared.
func (c *Cell[T]) Get() T {
	c.owner.Check("cell.Cell.Get")
	return c.value
}

// Replace stores v and returns the previous value.
func (c *Cell[T]) Replace(v T) T {
	c.owner.Check("cell.Cell.Replace")
	old := c.value
	c.value = v
	return old
}

// Take returns the stored value and leaves the zero value in its place.
func (c *Cell[T]) Take() T {
	c.owner.Check("cell.Cell.Take")
	var zero T
	old := c.value
	c.value = zero
	return old
}

// Update stores fn(current) and returns the new value.
//
// fn receives a copy; it may read or Set this Cell, but whatever it returns
// overwrites any such Set.
func (c *Cell[T]) Update(fn func(T) T) T {
	c.owner.Check("cell.Cell.Update")
	v := fn(c.value)
	c.value = v
	return v
}

// Swap exchanges the values of c and other. Swapping a Cell with itself is a no-op.
func (c *Cell[T]) Swap(other *Cell[T]) {
	c.owner.Check("cell.Cell.Swap")
	if c == other {
		return
	}
	other.owner.Check("cell.Cell.Swap")
	c.value, other.value = other.value, c.value
}
