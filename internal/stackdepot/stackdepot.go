// Copyright 2025 The interior Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package stackdepot stores deduplicated stack traces for borrow diagnostics.
//
// When borrow tracking is enabled, every guard remembers where it was
// acquired. Guards are short-lived and acquired from a handful of call sites,
// so the depot keeps each unique stack once and hands out a 64-bit hash that
// a guard can carry instead of a slice.
//
// Design:
//   - Fixed-size stack traces (MaxFrames program counters)
//   - Hash-based deduplication (FNV-1a over the program counters)
//   - Global sync.Map storage, shared by every goroutine in the process
//
// Usage:
//
//	hash := stackdepot.Capture(1)
//	...
//	fmt.Print(stackdepot.Get(hash).Format())
package stackdepot

import (
	"fmt"
	"hash/fnv"
	"runtime"
	"strings"
	"sync"
	"unsafe"
)

// MaxFrames is the maximum number of stack frames to capture.
const MaxFrames = 16

// internalPrefix marks frames of this module's own machinery, which are
// dropped from formatted stacks so reports start at user code.
const internalPrefix = "github.com/kolkov/interior/internal/"

// StackTrace is a captured stack trace with fixed size.
type StackTrace struct {
	PC [MaxFrames]uintptr
}

// depot maps uint64 hash → *StackTrace.
var depot sync.Map

// Capture records the caller's stack and returns its hash.
//
// skip is the number of frames to omit above the caller of Capture, so
// Capture(0) starts at the function calling Capture. Identical stacks share a
// hash and a single stored StackTrace.
//
// Returns 0 if no stack was available.
func Capture(skip int) uint64 {
	var pcs [MaxFrames]uintptr
	// +2 skips runtime.Callers and Capture itself.
	n := runtime.Callers(skip+2, pcs[:])
	if n == 0 {
		return 0
	}

	hash := hashStack(pcs[:n])
	if _, exists := depot.Load(hash); exists {
		return hash
	}
	depot.Store(hash, &StackTrace{PC: pcs})
	return hash
}

// Get retrieves a stack trace by hash, or nil if hash is 0 or unknown.
func Get(hash uint64) *StackTrace {
	if hash == 0 {
		return nil
	}
	val, ok := depot.Load(hash)
	if !ok {
		return nil
	}
	return val.(*StackTrace)
}

// hashStack computes the FNV-1a hash of program counters.
func hashStack(pcs []uintptr) uint64 {
	h := fnv.New64a()
	for _, pc := range pcs {
		//nolint:gosec // G103: reading the PC value as bytes for hashing
		pcBytes := (*[unsafe.Sizeof(pc)]byte)(unsafe.Pointer(&pc))[:]
		_, _ = h.Write(pcBytes) // hash.Hash never returns an error.
	}
	return h.Sum64()
}

// Format renders the stack in the layout of Go's own tracebacks:
//
//	main.worker()
//	    /path/to/file.go:45
//
// Runtime frames and this module's internal frames are filtered out.
func (st *StackTrace) Format() string {
	if st == nil {
		return "  <unknown>\n"
	}
	return FormatPCs(st.PC[:])
}

// FormatPCs renders raw program counters the same way as StackTrace.Format.
func FormatPCs(pcs []uintptr) string {
	// Trailing zero slots from a short capture.
	for len(pcs) > 0 && pcs[len(pcs)-1] == 0 {
		pcs = pcs[:len(pcs)-1]
	}
	if len(pcs) == 0 {
		return "  <unknown>\n"
	}

	frames := runtime.CallersFrames(pcs)
	var buf strings.Builder
	for {
		frame, more := frames.Next()
		if frame.PC == 0 {
			break
		}
		if !hidden(frame) {
			fmt.Fprintf(&buf, "  %s()\n", frame.Function)
			fmt.Fprintf(&buf, "      %s:%d\n", frame.File, frame.Line)
		}
		if !more {
			break
		}
	}

	if buf.Len() == 0 {
		return "  <runtime internal>\n"
	}
	return buf.String()
}

// hidden reports whether a frame is runtime or module machinery.
// Test files of internal packages stay visible.
func hidden(frame runtime.Frame) bool {
	if strings.HasPrefix(frame.Function, "runtime.") {
		return true
	}
	return strings.HasPrefix(frame.Function, internalPrefix) &&
		!strings.HasSuffix(frame.File, "_test.go")
}

// Reset clears the depot. Test-only: not safe against concurrent Capture.
func Reset() {
	depot.Range(func(key, _ any) bool {
		depot.Delete(key)
		return true
	})
}

// Stats returns the number of unique stacks and their approximate footprint.
//
// O(N) over the depot; not for hot paths.
func Stats() (uniqueStacks int, totalMemory int64) {
	depot.Range(func(_, _ any) bool {
		uniqueStacks++
		return true
	})

	// Fixed-size trace plus ~32 bytes of sync.Map entry overhead.
	const bytesPerStack = int64(unsafe.Sizeof(StackTrace{})) + 32
	return uniqueStacks, int64(uniqueStacks) * bytesPerStack
}
