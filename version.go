// Copyright 2025 The interior Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package interior

import (
	"golang.org/x/mod/semver"

	"github.com/kolkov/interior/internal/config"
	"github.com/kolkov/interior/internal/stackdepot"
	"github.com/kolkov/interior/internal/violation"
)

// Version information for the interior module.
const (
	// Version is the current version, in semver form.
	Version = "v0.1.0"

	// VersionMajor is the major version number.
	VersionMajor = 0

	// VersionMinor is the minor version number.
	VersionMinor = 1

	// VersionPatch is the patch version number.
	VersionPatch = 0
)

// ErrViolation is matched (via errors.Is) by the value of every panic raised
// for a broken invariant.
var ErrViolation = violation.ErrViolation

// Info describes the runtime checking in effect.
type Info struct {
	// Version is the module version string.
	Version string

	// CheckOwner reports whether goroutine confinement is enforced.
	CheckOwner bool

	// TrackBorrows reports whether guard acquisition sites are recorded.
	TrackBorrows bool

	// TrackedStacks and TrackedStackBytes describe the depot of recorded
	// acquisition and release sites. Both are 0 unless TrackBorrows is set.
	TrackedStacks     int
	TrackedStackBytes int64
}

// GetInfo returns the version and active checking configuration.
//
// Example:
//
//	info := interior.GetInfo()
//	fmt.Printf("interior %s (owner checks: %v)\n", info.Version, info.CheckOwner)
func GetInfo() Info {
	cfg := config.Load()
	info := Info{
		Version:      Version,
		CheckOwner:   cfg.CheckOwner,
		TrackBorrows: cfg.TrackBorrows,
	}
	if cfg.TrackBorrows {
		info.TrackedStacks, info.TrackedStackBytes = stackdepot.Stats()
	}
	return info
}

// Compatible reports whether this module satisfies a dependency on version
// required: same major version, and not older. Invalid versions are never
// satisfied. Before v1, the minor version must match as well.
func Compatible(required string) bool {
	if !semver.IsValid(required) {
		return false
	}
	if semver.Major(required) != semver.Major(Version) {
		return false
	}
	if semver.Major(Version) == "v0" && semver.MajorMinor(required) != semver.MajorMinor(Version) {
		return false
	}
	return semver.Compare(Version, required) >= 0
}
