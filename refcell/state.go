// Copyright 2025 The interior Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package refcell

import "fmt"

// StateKind is the borrow mode of a RefCell.
type StateKind uint8

const (
	// Unshared means no guard is live.
	Unshared StateKind = iota
	// Exclusive means exactly one RefMut is live.
	Exclusive
	// Shared means one or more Refs are live.
	Shared
)

// String returns the string representation of a StateKind.
func (k StateKind) String() string {
	switch k {
	case Unshared:
		return "Unshared"
	case Exclusive:
		return "Exclusive"
	case Shared:
		return "Shared"
	default:
		return "Unknown"
	}
}

// BorrowState is the state tag of a RefCell: the single record of which
// guards are live.
//
// Readers is the number of live Refs and is at least 1 exactly when Kind is
// Shared; it is 0 otherwise.
type BorrowState struct {
	Kind    StateKind
	Readers int
}

var (
	unshared  = BorrowState{Kind: Unshared}
	exclusive = BorrowState{Kind: Exclusive}
)

func shared(n int) BorrowState {
	return BorrowState{Kind: Shared, Readers: n}
}

// String renders the state as Unshared, Exclusive or Shared(n).
func (s BorrowState) String() string {
	if s.Kind == Shared {
		return fmt.Sprintf("Shared(%d)", s.Readers)
	}
	return s.Kind.String()
}

// valid reports whether s is a state the machine can be in.
func (s BorrowState) valid() bool {
	switch s.Kind {
	case Unshared, Exclusive:
		return s.Readers == 0
	case Shared:
		return s.Readers >= 1
	default:
		return false
	}
}
