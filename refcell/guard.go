// Copyright 2025 The interior Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package refcell

import (
	"github.com/kolkov/interior/internal/config"
	"github.com/kolkov/interior/internal/nocopy"
	"github.com/kolkov/interior/internal/stackdepot"
	"github.com/kolkov/interior/internal/violation"
)

// Ref is a live shared borrow of a RefCell.
//
// The guard does not own the cell; it only holds one of its Shared(n) slots
// until Release. Refs must not be copied.
type Ref[T any] struct {
	_  nocopy.NoCopy
	c  *RefCell[T]
	id uint64

	// released is the stackdepot hash of the Release call, when tracked.
	released uint64
}

// live returns the cell, raising a violation if the guard was released.
func (r *Ref[T]) live(op string) *RefCell[T] {
	if r.c == nil {
		violation.Released(op, r.released)
	}
	r.c.owner.Check(op)
	return r.c
}

// Get returns a copy of the borrowed value.
func (r *Ref[T]) Get() T {
	return r.live("refcell.Ref.Get").value
}

// Release ends the borrow. Shared(1) becomes Unshared, Shared(n) becomes
// Shared(n-1).
//
// Release is idempotent per guard; Get panics after Release.
func (r *Ref[T]) Release() {
	if r == nil || r.c == nil {
		return
	}
	const op = "refcell.Ref.Release"
	c := r.live(op)
	r.c = nil
	if config.Load().TrackBorrows {
		r.released = stackdepot.Capture(1)
	}
	c.untrack(r.id)

	s := c.state.Get()
	if s.Kind != Shared || !s.valid() {
		violation.Inconsistent(op, "shared guard released while state is %s", s)
	}
	if s.Readers == 1 {
		c.state.Set(unshared)
	} else {
		c.state.Set(shared(s.Readers - 1))
	}
}

// RefMut is a live exclusive borrow of a RefCell.
//
// While a RefMut is live no other guard of the same cell exists, so the
// pointer returned by Get is the only view of the value. RefMuts must not be
// copied.
type RefMut[T any] struct {
	_  nocopy.NoCopy
	c  *RefCell[T]
	id uint64

	released uint64
}

func (m *RefMut[T]) live(op string) *RefCell[T] {
	if m.c == nil {
		violation.Released(op, m.released)
	}
	m.c.owner.Check(op)
	return m.c
}

// Get returns a pointer to the borrowed value for reading and writing. The
// pointer must not be used after Release.
func (m *RefMut[T]) Get() *T {
	return &m.live("refcell.RefMut.Get").value
}

// Set overwrites the borrowed value.
func (m *RefMut[T]) Set(v T) {
	m.live("refcell.RefMut.Set").value = v
}

// Release ends the borrow, moving Exclusive to Unshared.
//
// Release is idempotent per guard; Get and Set panic after Release.
func (m *RefMut[T]) Release() {
	if m == nil || m.c == nil {
		return
	}
	const op = "refcell.RefMut.Release"
	c := m.live(op)
	m.c = nil
	if config.Load().TrackBorrows {
		m.released = stackdepot.Capture(1)
	}
	c.untrack(m.id)

	if s := c.state.Get(); s.Kind != Exclusive || !s.valid() {
		violation.Inconsistent(op, "exclusive guard released while state is %s", s)
	}
	c.state.Set(unshared)
}
