// Copyright 2025 The interior Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package refcell

import (
	"errors"
	"fmt"

	"github.com/kolkov/interior/internal/stackdepot"
)

var (
	// ErrBorrowed is returned by TryBorrowMut when any guard is live.
	ErrBorrowed = errors.New("refcell: already borrowed")

	// ErrBorrowedMut is returned by TryBorrow when a RefMut is live.
	ErrBorrowedMut = errors.New("refcell: already mutably borrowed")
)

// BorrowError describes a rejected borrow. It wraps ErrBorrowed or
// ErrBorrowedMut.
type BorrowError struct {
	// Op is the rejected operation, "TryBorrow" or "TryBorrowMut".
	Op string

	// State is the state tag at the time of the request.
	State BorrowState

	// Holder is the stackdepot hash of where a conflicting guard was
	// acquired. It is 0 unless borrow tracking is enabled.
	Holder uint64

	err error
}

func (e *BorrowError) Error() string {
	return fmt.Sprintf("%s: %v (state %s)", e.Op, e.err, e.State)
}

func (e *BorrowError) Unwrap() error {
	return e.err
}

// HolderStack returns the formatted acquisition stack of the conflicting
// guard, or "" when borrow tracking was off.
func (e *BorrowError) HolderStack() string {
	st := stackdepot.Get(e.Holder)
	if st == nil {
		return ""
	}
	return st.Format()
}
