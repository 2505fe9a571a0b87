// Copyright 2025 The interior Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package violation

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kolkov/interior/internal/config"
	"github.com/kolkov/interior/internal/goid"
	"github.com/kolkov/interior/internal/stackdepot"
)

// capture runs fn and returns the *Error it panicked with.
func capture(t *testing.T, fn func()) (e *Error) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected panic")
		var ok bool
		e, ok = r.(*Error)
		require.True(t, ok, "panic value %T is not *Error", r)
	}()
	fn()
	return nil
}

func quiet(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	config.SetOutput(&buf)
	t.Cleanup(func() { config.SetOutput(nil) })
	return &buf
}

func TestKindString(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{InconsistentState, "inconsistent state"},
		{CrossGoroutine, "cross-goroutine access"},
		{UseAfterRelease, "use after release"},
		{Kind(99), "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.kind.String())
	}
}

func TestInconsistent_Panics(t *testing.T) {
	logs := quiet(t)

	e := capture(t, func() {
		Inconsistent("refcell.Ref.Release", "state is %s", "Exclusive")
	})

	assert.Equal(t, InconsistentState, e.Kind)
	assert.Equal(t, "refcell.Ref.Release", e.Op)
	assert.Equal(t, "state is Exclusive", e.Detail)
	assert.Equal(t, goid.Current(), e.Goroutine)
	assert.NotEmpty(t, e.Stack)
	assert.True(t, errors.Is(e, ErrViolation))
	assert.Equal(t, "refcell.Ref.Release: inconsistent state: state is Exclusive", e.Error())

	assert.Contains(t, logs.String(), "invariant violation")
	assert.Contains(t, logs.String(), "op=refcell.Ref.Release")
}

func TestReport_Layout(t *testing.T) {
	quiet(t)
	stackdepot.Reset()

	acquired := stackdepot.Capture(0)
	e := capture(t, func() {
		Raise(&Error{
			Kind:     CrossGoroutine,
			Op:       "cell.Cell.Get",
			Detail:   "container owned by another goroutine",
			Owner:    1,
			Acquired: acquired,
		})
	})

	report := e.Report()
	lines := strings.Split(strings.TrimSpace(report), "\n")
	require.GreaterOrEqual(t, len(lines), 4)
	assert.Equal(t, "==================", lines[0])
	assert.Equal(t, "FATAL: cross-goroutine access", lines[1])
	assert.Contains(t, lines[2], "(owner goroutine 1)")
	assert.Contains(t, report, "TestReport_Layout")
	assert.Contains(t, report, "Related site:")
	assert.Equal(t, "==================", lines[len(lines)-1])
}

func TestReleased_NoTrackedSite(t *testing.T) {
	quiet(t)

	e := capture(t, func() { Released("rc.Rc.Get", 0) })

	assert.Equal(t, UseAfterRelease, e.Kind)
	assert.NotContains(t, e.Report(), "Related site:")
}
