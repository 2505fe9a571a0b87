// Copyright 2025 The interior Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package interior provides interior-mutability primitives for code confined
// to a single goroutine.
//
// The primitives live in three subpackages:
//   - [github.com/kolkov/interior/cell]: Cell, a slot read and written only
//     by copy, so it never exposes a pointer into its storage
//   - [github.com/kolkov/interior/rc]: Rc, a reference-counted handle whose
//     value is destroyed exactly when the last handle is released
//   - [github.com/kolkov/interior/refcell]: RefCell, a container whose shared
//     and exclusive borrows are checked at run time and handed out as guards
//
// # Quick Start
//
//	counter := rc.New(refcell.New(0))
//	defer counter.Release()
//
//	other := counter.Clone()
//	other.Value().WithMut(func(n *int) { *n++ })
//	other.Release()
//
// # Single-Goroutine Confinement
//
// None of the primitives lock. Each records the goroutine that created it and
// panics when used from any other, with a report naming both goroutines and
// the offending call site. The check costs about a microsecond per call; it
// can be switched off with INTERIOR_CHECK_OWNER=false once confinement is
// established by other means.
//
// # Failure Modes
//
// A refused borrow is an ordinary result: Borrow and BorrowMut return false,
// TryBorrow and TryBorrowMut return an error wrapping refcell.ErrBorrowedMut
// or refcell.ErrBorrowed. Broken invariants (a guard releasing into a state it
// could not have come from, use of a released handle, cross-goroutine use)
// panic with an error matching ErrViolation.
//
// # Environment
//
//	INTERIOR_CHECK_OWNER    enforce goroutine confinement (default true)
//	INTERIOR_TRACK_BORROWS  remember where live guards were acquired (default false)
//	INTERIOR_LOG_LEVEL      debug, info, warn or error (default warn)
package interior
