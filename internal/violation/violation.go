// Copyright 2025 The interior Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package violation reports broken invariants of the primitives.
//
// A violation is never a caller-recoverable condition. It means either the
// state machine of a container observed a state it guarantees cannot occur,
// or the container was used outside its contract (from a foreign goroutine,
// or through a released handle). Either way the aliasing guarantees no longer
// hold, so Raise logs a report and panics with an *Error.
package violation

import (
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/kolkov/interior/internal/config"
	"github.com/kolkov/interior/internal/goid"
	"github.com/kolkov/interior/internal/stackdepot"
)

// ErrViolation is matched by every *Error through errors.Is.
var ErrViolation = errors.New("interior: invariant violation")

// Kind classifies a violation.
type Kind int

const (
	// InconsistentState means a state tag held a value its state machine
	// forbids at that point (e.g. a shared guard releasing while Exclusive).
	InconsistentState Kind = iota
	// CrossGoroutine means a container was touched by a goroutine other
	// than its owner.
	CrossGoroutine
	// UseAfterRelease means a released handle or guard was used.
	UseAfterRelease
)

// String returns the string representation of a Kind.
func (k Kind) String() string {
	switch k {
	case InconsistentState:
		return "inconsistent state"
	case CrossGoroutine:
		return "cross-goroutine access"
	case UseAfterRelease:
		return "use after release"
	default:
		return "unknown"
	}
}

// maxStackDepth bounds the stack captured at the violation site.
const maxStackDepth = 32

// Error describes one violation.
type Error struct {
	Kind Kind

	// Op is the operation that detected the violation, e.g. "refcell.Ref.Release".
	Op string

	// Detail is a one-line description of what was observed.
	Detail string

	// Goroutine is the goroutine that detected the violation.
	Goroutine int64

	// Owner is the goroutine owning the container, for CrossGoroutine.
	Owner int64

	// Stack holds the program counters at the violation site.
	Stack []uintptr

	// Acquired is the stackdepot hash of a related acquisition (the
	// conflicting guard, or the handle's release site), 0 if unknown.
	Acquired uint64
}

// Error returns a one-line description.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Detail)
}

// Unwrap lets errors.Is(err, ErrViolation) match.
func (e *Error) Unwrap() error {
	return ErrViolation
}

// WriteReport writes a multi-line report:
//
//	==================
//	FATAL: cross-goroutine access
//	refcell.RefCell.Borrow by goroutine 7 (owner goroutine 1): container is confined to the goroutine that created it
//	  main.worker()
//	      /path/to/file.go:25
//
//	Related site:
//	  main.main()
//	      /path/to/file.go:12
//	==================
//
//nolint:errcheck // report formatting
func (e *Error) WriteReport(w io.Writer) {
	fmt.Fprintf(w, "==================\n")
	fmt.Fprintf(w, "FATAL: %s\n", e.Kind)
	fmt.Fprintf(w, "%s by goroutine %d", e.Op, e.Goroutine)
	if e.Kind == CrossGoroutine {
		fmt.Fprintf(w, " (owner goroutine %d)", e.Owner)
	}
	fmt.Fprintf(w, ": %s\n", e.Detail)

	if len(e.Stack) > 0 {
		fmt.Fprint(w, stackdepot.FormatPCs(e.Stack))
	} else {
		fmt.Fprintf(w, "  (no stack trace captured)\n")
	}

	if st := stackdepot.Get(e.Acquired); st != nil {
		fmt.Fprintf(w, "\nRelated site:\n")
		fmt.Fprint(w, st.Format())
	}
	fmt.Fprintf(w, "==================\n")
}

// Report returns the multi-line report as a string.
func (e *Error) Report() string {
	var buf strings.Builder
	e.WriteReport(&buf)
	return buf.String()
}

// Raise completes e with the current goroutine and stack, logs the report
// and panics with e. It never returns.
func Raise(e *Error) {
	e.Goroutine = goid.Current()
	pcs := make([]uintptr, maxStackDepth)
	// Skip runtime.Callers and Raise.
	n := runtime.Callers(2, pcs)
	e.Stack = pcs[:n]

	config.Logger().Error("invariant violation",
		"kind", e.Kind.String(),
		"op", e.Op,
		"detail", e.Detail,
		"goroutine", e.Goroutine,
	)
	panic(e)
}

// Inconsistent raises an InconsistentState violation.
func Inconsistent(op, format string, args ...any) {
	Raise(&Error{Kind: InconsistentState, Op: op, Detail: fmt.Sprintf(format, args...)})
}

// Released raises a UseAfterRelease violation. released is the stackdepot
// hash of the release site, 0 if not tracked.
func Released(op string, released uint64) {
	Raise(&Error{
		Kind:     UseAfterRelease,
		Op:       op,
		Detail:   "handle already released",
		Acquired: released,
	})
}
