// Copyright 2025 The interior Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config holds the process-wide diagnostics settings.
//
// The primitives themselves take no options. What can be tuned is how much
// checking surrounds them: whether the owning goroutine is verified on every
// call, whether live guards remember where they were acquired, and how loud
// the diagnostics logger is. Settings come from the environment once, on
// first use.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/caarlos0/env/v11"
)

// Config controls runtime checking and diagnostics.
type Config struct {
	// CheckOwner panics when a container is used from a goroutine other than
	// the one that created it.
	CheckOwner bool `env:"INTERIOR_CHECK_OWNER" envDefault:"true"`

	// TrackBorrows records the acquisition stack of every live guard so
	// rejected borrows and violation reports can point at the holder.
	TrackBorrows bool `env:"INTERIOR_TRACK_BORROWS" envDefault:"false"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `env:"INTERIOR_LOG_LEVEL" envDefault:"warn"`
}

var (
	loadOnce sync.Once
	current  atomic.Pointer[state]
)

// state pairs a Config with the logger built from it.
type state struct {
	cfg    Config
	out    io.Writer
	logger *slog.Logger
}

// Parse reads a Config from the environment.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if _, err := parseLevel(cfg.LogLevel); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load returns the active Config, parsing the environment on first call.
//
// A malformed environment is reported once on stderr and the defaults are used.
func Load() Config {
	return load().cfg
}

// Logger returns the diagnostics logger for the active Config.
func Logger() *slog.Logger {
	return load().logger
}

// Set replaces the active Config and returns the previous one.
// Intended for tests and for programs that configure checking in code.
func Set(cfg Config) Config {
	prev := load()
	current.Store(newState(cfg, prev.out))
	return prev.cfg
}

// SetOutput redirects the diagnostics logger. A nil w restores stderr.
func SetOutput(w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	current.Store(newState(load().cfg, w))
}

// Default returns the Config used when the environment sets nothing.
func Default() Config {
	return Config{CheckOwner: true, LogLevel: "warn"}
}

func load() *state {
	loadOnce.Do(func() {
		cfg, err := Parse()
		if err != nil {
			fmt.Fprintf(os.Stderr, "interior: %v; using defaults\n", err)
			cfg = Default()
		}
		current.Store(newState(cfg, os.Stderr))
	})
	return current.Load()
}

func newState(cfg Config, out io.Writer) *state {
	level, err := parseLevel(cfg.LogLevel)
	if err != nil {
		level = slog.LevelWarn
	}
	handler := slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})
	return &state{
		cfg:    cfg,
		out:    out,
		logger: slog.New(handler).With("component", "interior"),
	}
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "", "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid INTERIOR_LOG_LEVEL %q", s)
	}
}
