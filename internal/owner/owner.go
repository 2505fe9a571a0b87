// Copyright 2025 The interior Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package owner pins a container to the goroutine that created it.
//
// None of the primitives synchronize their state, so a second goroutine
// touching one invalidates every invariant it keeps. Go has no way to mark a
// type as non-transferable, so the owner is checked at run time instead.
package owner

import (
	"github.com/kolkov/interior/internal/config"
	"github.com/kolkov/interior/internal/goid"
	"github.com/kolkov/interior/internal/violation"
)

// Owner records the creating goroutine. The zero value performs no checks.
type Owner struct {
	gid int64
}

// New returns an Owner bound to the calling goroutine, or an unchecked
// Owner when ownership checking is disabled.
func New() Owner {
	if !config.Load().CheckOwner {
		return Owner{}
	}
	return Owner{gid: goid.Current()}
}

// ID returns the owning goroutine ID, 0 if unchecked.
func (o Owner) ID() int64 {
	return o.gid
}

// Check raises a CrossGoroutine violation if the calling goroutine is not
// the owner. op names the operation for the report.
func (o Owner) Check(op string) {
	if o.gid == 0 {
		return
	}
	if gid := goid.Current(); gid != o.gid {
		violation.Raise(&violation.Error{
			Kind:   violation.CrossGoroutine,
			Op:     op,
			Detail: "container is confined to the goroutine that created it",
			Owner:  o.gid,
		})
	}
}
