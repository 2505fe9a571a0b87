// Copyright 2025 The interior Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package refcell provides RefCell, a mutable container whose borrows are
// checked at run time.
//
// A RefCell hands out guards instead of raw access. Any number of shared
// guards (Ref) may be live at once, or exactly one exclusive guard (RefMut),
// never both. A request that would break that rule is refused: Borrow and
// BorrowMut return false, TryBorrow and TryBorrowMut return an error. Being
// refused is an ordinary outcome the caller handles.
//
// The state machine:
//
//	state      Borrow            BorrowMut
//	---------  ----------------  ----------------
//	Unshared   -> Shared(1)      -> Exclusive
//	Shared(n)  -> Shared(n+1)    refused
//	Exclusive  refused           refused
//
// Releasing a Ref moves Shared(n) to Shared(n-1), or to Unshared when n is 1.
// Releasing a RefMut moves Exclusive to Unshared. A guard is released by
// calling Release, normally deferred right after a successful borrow:
//
//	m, ok := c.BorrowMut()
//	if !ok {
//		return errBusy
//	}
//	defer m.Release()
//	m.Get().count++
//
// A release that finds the tag in any other state means the checker itself is
// broken; it panics with a violation report rather than continuing with a
// broken aliasing guarantee.
//
// A RefCell and its guards are confined to the goroutine that created the
// RefCell. Use from any other goroutine panics.
package refcell

import (
	"context"
	"log/slog"

	"github.com/kolkov/interior/cell"
	"github.com/kolkov/interior/internal/config"
	"github.com/kolkov/interior/internal/nocopy"
	"github.com/kolkov/interior/internal/owner"
	"github.com/kolkov/interior/internal/stackdepot"
	"github.com/kolkov/interior/internal/violation"
)

// RefCell holds a value of type T behind run-time borrow checking.
//
// The zero value is an Unshared RefCell holding the zero T. It is not bound
// to a goroutine, so it may sit by value inside a larger struct; use New when
// the owner check is wanted. RefCells must not be copied after first use.
type RefCell[T any] struct {
	_     nocopy.NoCopy
	owner owner.Owner
	value T

	// The zero BorrowState is Unshared. The zero Cell skips the owner
	// check, which c.owner has already done.
	state cell.Cell[BorrowState]

	// Acquisition sites of live guards, keyed by guard id.
	// Populated only when borrow tracking is enabled.
	nextID uint64
	sites  map[uint64]uint64
}

// New returns an Unshared RefCell holding v, owned by the calling goroutine.
func New[T any](v T) *RefCell[T] {
	return &RefCell[T]{owner: owner.New(), value: v}
}

// State returns the current state tag.
func (c *RefCell[T]) State() BorrowState {
	c.owner.Check("refcell.RefCell.State")
	return c.state.Get()
}

// Borrow acquires a shared guard. It returns false, and changes nothing,
// while a RefMut is live.
func (c *RefCell[T]) Borrow() (*Ref[T], bool) {
	r, _, ok := c.acquireShared("refcell.RefCell.Borrow")
	return r, ok
}

// BorrowMut acquires an exclusive guard. It returns false, and changes
// nothing, while any guard is live.
func (c *RefCell[T]) BorrowMut() (*RefMut[T], bool) {
	m, _, ok := c.acquireExclusive("refcell.RefCell.BorrowMut")
	return m, ok
}

// TryBorrow is Borrow with the refusal reported as a *BorrowError wrapping
// ErrBorrowedMut.
func (c *RefCell[T]) TryBorrow() (*Ref[T], error) {
	r, s, ok := c.acquireShared("refcell.RefCell.TryBorrow")
	if !ok {
		return nil, &BorrowError{Op: "TryBorrow", State: s, Holder: c.holder(), err: ErrBorrowedMut}
	}
	return r, nil
}

// TryBorrowMut is BorrowMut with the refusal reported as a *BorrowError
// wrapping ErrBorrowed.
func (c *RefCell[T]) TryBorrowMut() (*RefMut[T], error) {
	m, s, ok := c.acquireExclusive("refcell.RefCell.TryBorrowMut")
	if !ok {
		return nil, &BorrowError{Op: "TryBorrowMut", State: s, Holder: c.holder(), err: ErrBorrowed}
	}
	return m, nil
}

// With runs fn with a copy of the value under a shared guard. It returns
// false without calling fn if the cell is exclusively borrowed. The guard is
// released when fn returns or panics.
func (c *RefCell[T]) With(fn func(T)) bool {
	r, ok := c.Borrow()
	if !ok {
		return false
	}
	defer r.Release()
	fn(r.Get())
	return true
}

// WithMut runs fn with a pointer to the value under an exclusive guard. It
// returns false without calling fn if any guard is live. The pointer must
// not outlive fn.
func (c *RefCell[T]) WithMut(fn func(*T)) bool {
	m, ok := c.BorrowMut()
	if !ok {
		return false
	}
	defer m.Release()
	fn(m.Get())
	return true
}

// Replace stores v and returns the previous value. It returns the zero
// value and false, storing nothing, if any guard is live.
func (c *RefCell[T]) Replace(v T) (T, bool) {
	m, ok := c.BorrowMut()
	if !ok {
		var zero T
		return zero, false
	}
	defer m.Release()
	old := *m.Get()
	m.Set(v)
	return old, true
}

func (c *RefCell[T]) acquireShared(op string) (*Ref[T], BorrowState, bool) {
	c.owner.Check(op)
	s := c.state.Get()
	switch {
	case !s.valid():
		violation.Inconsistent(op, "state tag holds %s", s)
	case s.Kind == Exclusive:
		c.refused(op, s)
		return nil, s, false
	}
	// Unshared or Shared(n).
	c.state.Set(shared(s.Readers + 1))
	return &Ref[T]{c: c, id: c.track()}, s, true
}

func (c *RefCell[T]) acquireExclusive(op string) (*RefMut[T], BorrowState, bool) {
	c.owner.Check(op)
	s := c.state.Get()
	switch {
	case !s.valid():
		violation.Inconsistent(op, "state tag holds %s", s)
	case s.Kind != Unshared:
		c.refused(op, s)
		return nil, s, false
	}
	c.state.Set(exclusive)
	return &RefMut[T]{c: c, id: c.track()}, s, true
}

func (c *RefCell[T]) refused(op string, s BorrowState) {
	logger := config.Logger()
	if !logger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	attrs := []any{"op", op, "state", s.String()}
	if st := stackdepot.Get(c.holder()); st != nil {
		attrs = append(attrs, "holder", st.Format())
	}
	logger.Debug("borrow refused", attrs...)
}

// track records the acquisition site of a new guard and returns the guard
// id, or 0 when tracking is off.
func (c *RefCell[T]) track() uint64 {
	if !config.Load().TrackBorrows {
		return 0
	}
	if c.sites == nil {
		c.sites = make(map[uint64]uint64)
	}
	c.nextID++
	// Skip track, acquire* and the public borrow method.
	c.sites[c.nextID] = stackdepot.Capture(3)
	return c.nextID
}

func (c *RefCell[T]) untrack(id uint64) {
	if id != 0 {
		delete(c.sites, id)
	}
}

// holder returns the acquisition site of the oldest live guard, 0 if none
// is tracked.
func (c *RefCell[T]) holder() uint64 {
	var oldest, site uint64
	for id, h := range c.sites {
		if oldest == 0 || id < oldest {
			oldest, site = id, h
		}
	}
	return site
}
