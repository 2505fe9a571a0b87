// Copyright 2025 The interior Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package refcell

import (
	"bytes"
	"errors"
	"io"
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/kolkov/interior/internal/config"
	"github.com/kolkov/interior/internal/violation"
)

func TestMain(m *testing.M) {
	config.SetOutput(io.Discard)
	m.Run()
}

// withConfig swaps the active Config for the duration of a test.
func withConfig(t *testing.T, cfg config.Config) {
	t.Helper()
	prev := config.Set(cfg)
	t.Cleanup(func() { config.Set(prev) })
}

// violationOf runs fn and returns the *violation.Error it panicked with.
func violationOf(t *testing.T, fn func()) (v *violation.Error) {
	t.Helper()
	defer func() {
		err, ok := recover().(error)
		require.True(t, ok, "expected violation panic")
		require.True(t, errors.As(err, &v))
	}()
	fn()
	return nil
}

func TestNew_Unshared(t *testing.T) {
	c := New(1)
	assert.Equal(t, BorrowState{Kind: Unshared}, c.State())
	assert.Equal(t, "Unshared", c.State().String())
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state BorrowState
		want  string
	}{
		{unshared, "Unshared"},
		{exclusive, "Exclusive"},
		{shared(1), "Shared(1)"},
		{shared(12), "Shared(12)"},
		{BorrowState{Kind: StateKind(7)}, "Unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.state.String())
	}
}

func TestBorrowMut_Exclusive(t *testing.T) {
	c := New(1)

	m1, ok := c.BorrowMut()
	require.True(t, ok)
	assert.Equal(t, exclusive, c.State())

	m2, ok := c.BorrowMut()
	assert.False(t, ok)
	assert.Nil(t, m2)

	_, ok = c.Borrow()
	assert.False(t, ok, "Borrow must be refused while exclusive")
	assert.Equal(t, exclusive, c.State(), "refused borrows must not change state")

	m1.Release()
	assert.Equal(t, unshared, c.State())

	m3, ok := c.BorrowMut()
	require.True(t, ok)
	m3.Release()
}

func TestBorrow_SharedCoexist(t *testing.T) {
	c := New("v")

	var refs []*Ref[string]
	for i := 1; i <= 5; i++ {
		r, ok := c.Borrow()
		require.True(t, ok)
		refs = append(refs, r)
		assert.Equal(t, shared(i), c.State())
	}
	for _, r := range refs {
		assert.Equal(t, "v", r.Get())
	}

	_, ok := c.BorrowMut()
	assert.False(t, ok, "BorrowMut must be refused while shared")

	for _, r := range refs {
		r.Release()
	}
	assert.Equal(t, unshared, c.State())
}

// TestScenario_SharedThenExclusive mirrors:
// rc = RefCell::new(1); r1 = rc.borrow(); r2 = rc.borrow();
// assert rc.borrow_mut().is_none(); drop(r1); drop(r2);
// assert rc.borrow_mut().is_some()
func TestScenario_SharedThenExclusive(t *testing.T) {
	c := New(1)
	r1, ok1 := c.Borrow()
	r2, ok2 := c.Borrow()
	require.True(t, ok1)
	require.True(t, ok2)

	_, ok := c.BorrowMut()
	assert.False(t, ok)

	r1.Release()
	assert.Equal(t, shared(1), c.State())
	r2.Release()

	m, ok := c.BorrowMut()
	assert.True(t, ok)
	m.Release()
}

func TestRefMut_Writes(t *testing.T) {
	type account struct{ Balance int }
	c := New(account{Balance: 10})

	m, ok := c.BorrowMut()
	require.True(t, ok)
	m.Get().Balance += 5
	m.Release()

	r, ok := c.Borrow()
	require.True(t, ok)
	assert.Equal(t, account{Balance: 15}, r.Get())
	r.Release()

	m, _ = c.BorrowMut()
	m.Set(account{Balance: 1})
	m.Release()
	assert.True(t, c.With(func(a account) { assert.Equal(t, 1, a.Balance) }))
}

func TestTryBorrow_Errors(t *testing.T) {
	c := New(0)

	m, err := c.TryBorrowMut()
	require.NoError(t, err)

	_, err = c.TryBorrow()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBorrowedMut))
	var be *BorrowError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, "TryBorrow", be.Op)
	assert.Equal(t, exclusive, be.State)
	assert.Empty(t, be.HolderStack(), "no holder without tracking")
	assert.Equal(t, "TryBorrow: refcell: already mutably borrowed (state Exclusive)", err.Error())

	_, err = c.TryBorrowMut()
	assert.True(t, errors.Is(err, ErrBorrowed))
	m.Release()

	r, err := c.TryBorrow()
	require.NoError(t, err)
	_, err = c.TryBorrowMut()
	require.True(t, errors.As(err, &be))
	assert.Equal(t, shared(1), be.State)
	assert.True(t, errors.Is(err, ErrBorrowed))
	r.Release()
}

func TestTryBorrow_TrackedHolder(t *testing.T) {
	withConfig(t, config.Config{CheckOwner: true, TrackBorrows: true, LogLevel: "warn"})

	c := New(0)
	m := acquireForTracking(t, c)
	defer m.Release()

	_, err := c.TryBorrow()
	var be *BorrowError
	require.True(t, errors.As(err, &be))
	assert.NotZero(t, be.Holder)
	assert.Contains(t, be.HolderStack(), "acquireForTracking")
}

func acquireForTracking(t *testing.T, c *RefCell[int]) *RefMut[int] {
	t.Helper()
	m, err := c.TryBorrowMut()
	require.NoError(t, err)
	return m
}

func TestRefused_LogsAtDebug(t *testing.T) {
	var buf bytes.Buffer
	config.SetOutput(&buf)
	t.Cleanup(func() { config.SetOutput(io.Discard) })
	withConfig(t, config.Config{CheckOwner: true, TrackBorrows: true, LogLevel: "debug"})

	c := New(0)
	m, _ := c.BorrowMut()
	defer m.Release()
	_, ok := c.Borrow()
	require.False(t, ok)

	assert.Contains(t, buf.String(), "borrow refused")
	assert.Contains(t, buf.String(), "state=Exclusive")
}

func TestWith(t *testing.T) {
	c := New(3)

	var seen int
	assert.True(t, c.With(func(v int) { seen = v }))
	assert.Equal(t, 3, seen)
	assert.Equal(t, unshared, c.State())

	m, _ := c.BorrowMut()
	assert.False(t, c.With(func(int) { t.Fatal("fn must not run") }))
	m.Release()
}

func TestWithMut(t *testing.T) {
	c := New([]string{"a"})

	assert.True(t, c.WithMut(func(v *[]string) { *v = append(*v, "b") }))
	assert.True(t, c.With(func(v []string) { assert.Equal(t, []string{"a", "b"}, v) }))

	r, _ := c.Borrow()
	assert.False(t, c.WithMut(func(*[]string) { t.Fatal("fn must not run") }))
	r.Release()
}

func TestWithMut_ReleasesOnPanic(t *testing.T) {
	c := New(0)
	assert.Panics(t, func() {
		c.WithMut(func(*int) { panic("boom") })
	})
	assert.Equal(t, unshared, c.State())
}

func TestReplace(t *testing.T) {
	c := New("old")

	prev, ok := c.Replace("new")
	require.True(t, ok)
	assert.Equal(t, "old", prev)

	r, _ := c.Borrow()
	prev, ok = c.Replace("never")
	assert.False(t, ok)
	assert.Empty(t, prev)
	assert.Equal(t, "new", r.Get())
	r.Release()
}

func TestGuardRelease_Idempotent(t *testing.T) {
	c := New(0)

	r1, _ := c.Borrow()
	r2, _ := c.Borrow()
	r1.Release()
	r1.Release()
	assert.Equal(t, shared(1), c.State(), "double Release must decrement once")
	r2.Release()

	m, _ := c.BorrowMut()
	m.Release()
	m.Release()
	assert.Equal(t, unshared, c.State())

	var nilRef *Ref[int]
	var nilMut *RefMut[int]
	assert.NotPanics(t, nilRef.Release)
	assert.NotPanics(t, nilMut.Release)
}

func TestGuard_UseAfterRelease(t *testing.T) {
	c := New(0)

	r, _ := c.Borrow()
	r.Release()
	v := violationOf(t, func() { r.Get() })
	assert.Equal(t, violation.UseAfterRelease, v.Kind)
	assert.Equal(t, "refcell.Ref.Get", v.Op)

	m, _ := c.BorrowMut()
	m.Release()
	v = violationOf(t, func() { m.Set(1) })
	assert.Equal(t, "refcell.RefMut.Set", v.Op)
	v = violationOf(t, func() { m.Get() })
	assert.Equal(t, "refcell.RefMut.Get", v.Op)
}

func TestRelease_InconsistentState(t *testing.T) {
	t.Run("shared guard sees Exclusive", func(t *testing.T) {
		c := New(0)
		r, _ := c.Borrow()
		c.state.Set(exclusive)

		v := violationOf(t, r.Release)
		assert.Equal(t, violation.InconsistentState, v.Kind)
		assert.Equal(t, "refcell.Ref.Release", v.Op)
		assert.Contains(t, v.Detail, "Exclusive")
	})

	t.Run("shared guard sees Unshared", func(t *testing.T) {
		c := New(0)
		r, _ := c.Borrow()
		c.state.Set(unshared)

		v := violationOf(t, r.Release)
		assert.Equal(t, violation.InconsistentState, v.Kind)
	})

	t.Run("exclusive guard sees Shared", func(t *testing.T) {
		c := New(0)
		m, _ := c.BorrowMut()
		c.state.Set(shared(2))

		v := violationOf(t, m.Release)
		assert.Equal(t, violation.InconsistentState, v.Kind)
		assert.Equal(t, "refcell.RefMut.Release", v.Op)
	})

	t.Run("borrow sees invalid tag", func(t *testing.T) {
		c := New(0)
		c.state.Set(BorrowState{Kind: Shared, Readers: 0})

		v := violationOf(t, func() { c.Borrow() })
		assert.Equal(t, violation.InconsistentState, v.Kind)
	})
}

func TestForeignGoroutinePanics(t *testing.T) {
	c := New(0)
	r, _ := c.Borrow()
	defer r.Release()

	ops := map[string]func(){
		"refcell.RefCell.Borrow":    func() { c.Borrow() },
		"refcell.RefCell.BorrowMut": func() { c.BorrowMut() },
		"refcell.RefCell.State":     func() { c.State() },
		"refcell.Ref.Get":           func() { r.Get() },
	}

	for op, fn := range ops {
		t.Run(op, func(t *testing.T) {
			var g errgroup.Group
			var got any
			g.Go(func() error {
				defer func() { got = recover() }()
				fn()
				return nil
			})
			require.NoError(t, g.Wait())

			err, ok := got.(error)
			require.True(t, ok, "expected violation, got %v", got)
			var v *violation.Error
			require.True(t, errors.As(err, &v))
			assert.Equal(t, violation.CrossGoroutine, v.Kind)
			assert.Equal(t, op, v.Op)
		})
	}
	assert.Equal(t, shared(1), c.State())
}

// guard is either a live Ref or RefMut in the random model.
type guard struct {
	ref *Ref[int]
	mut *RefMut[int]
}

func (g guard) release() {
	if g.ref != nil {
		g.ref.Release()
		return
	}
	g.mut.Release()
}

// TestRandomBorrowRelease runs random borrow/release sequences against a
// model and checks the state tag after every step. Guards are released in
// random order, not LIFO.
func TestRandomBorrowRelease(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))

	for round := 0; round < 200; round++ {
		c := New(0)
		var live []guard
		var trace []string

		for step := 0; step < 60; step++ {
			var want BorrowState
			switch op := rng.IntN(3); {
			case op == 0:
				r, ok := c.Borrow()
				wantOK := len(live) == 0 || live[0].ref != nil
				require.Equal(t, wantOK, ok, "round %d step %d: Borrow with %d live", round, step, len(live))
				if ok {
					live = append(live, guard{ref: r})
				}
				trace = append(trace, "borrow")
			case op == 1:
				m, ok := c.BorrowMut()
				require.Equal(t, len(live) == 0, ok, "round %d step %d: BorrowMut with %d live", round, step, len(live))
				if ok {
					live = append(live, guard{mut: m})
				}
				trace = append(trace, "borrow_mut")
			case len(live) > 0:
				i := rng.IntN(len(live))
				live[i].release()
				live = append(live[:i], live[i+1:]...)
				trace = append(trace, "release")
			}

			switch {
			case len(live) == 0:
				want = unshared
			case live[0].mut != nil:
				want = exclusive
			default:
				want = shared(len(live))
			}
			if diff := cmp.Diff(want, c.State()); diff != "" {
				t.Fatalf("round %d after %v: state mismatch (-want +got):\n%s", round, trace, diff)
			}
		}

		for _, g := range live {
			g.release()
		}
		require.Equal(t, unshared, c.State())
	}
}

// TestZeroValue_EmbeddedByValue borrows a RefCell that was never passed
// through New, as in a linked node holding its link by value.
func TestZeroValue_EmbeddedByValue(t *testing.T) {
	type node struct {
		label string
		next  RefCell[int]
	}
	var n node

	assert.Equal(t, unshared, n.next.State())

	r, ok := n.next.Borrow()
	require.True(t, ok)
	assert.Equal(t, shared(1), n.next.State())
	_, ok = n.next.BorrowMut()
	assert.False(t, ok, "exclusive borrow while shared")
	r.Release()

	m, ok := n.next.BorrowMut()
	require.True(t, ok)
	m.Set(7)
	m.Release()

	assert.Equal(t, unshared, n.next.State())
	assert.True(t, n.next.With(func(v int) { assert.Equal(t, 7, v) }))
}
