// Copyright 2025 The interior Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package nocopy provides a marker that makes go vet's copylocks check
// reject copying the struct that embeds it.
package nocopy

// NoCopy may be added to structs which must not be copied after first use.
// It has no state and costs nothing at run time.
type NoCopy struct{}

// Lock is a no-op used by -copylocks checker from `go vet`.
func (*NoCopy) Lock() {}

// Unlock is a no-op used by -copylocks checker from `go vet`.
func (*NoCopy) Unlock() {}
