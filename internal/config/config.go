// Completion: 100% - Environment configuration complete
package config

import (
	"github.com/xyproto/env/v2"
)

// Environment variable names
const (
	EnvVerbose     = "X64C_VERBOSE"
	EnvColor       = "X64C_COLOR"
	EnvRedZone     = "X64C_RED_ZONE"
	EnvInlineDepth = "X64C_INLINE_DEPTH"
	EnvEntry       = "X64C_ENTRY"
)

// Defaults
const (
	DefaultRedZone     = 128
	DefaultInlineDepth = 16
	DefaultEntry       = "Main"
)

// Options controls code generation
type Options struct {
	Verbose     bool   // trace allocation, prologue, inlining and fusion decisions
	Color       bool   // coloured diagnostics
	RedZone     int    // leaf functions with a frame up to this size skip "sub rsp"
	InlineDepth int    // maximum nesting of inline expansions
	Entry       string // function called from _start
}

// Default returns the built-in options
func Default() Options {
	return Options{
		RedZone:     DefaultRedZone,
		InlineDepth: DefaultInlineDepth,
		Entry:       DefaultEntry,
	}
}

// FromEnv returns the options, overridden by X64C_* environment variables.
// The environment cache is reloaded on every call.
func FromEnv() Options {
	env.Load()
	o := Options{
		Verbose:     env.Bool(EnvVerbose),
		Color:       env.Bool(EnvColor),
		RedZone:     env.Int(EnvRedZone, DefaultRedZone),
		InlineDepth: env.Int(EnvInlineDepth, DefaultInlineDepth),
		Entry:       env.Str(EnvEntry, DefaultEntry),
	}
	return o.Normalize()
}

// Normalize clamps out-of-range values back to their defaults
func (o Options) Normalize() Options {
	if o.RedZone < 0 || o.RedZone > DefaultRedZone {
		o.RedZone = DefaultRedZone
	}
	if o.InlineDepth < 0 {
		o.InlineDepth = DefaultInlineDepth
	}
	if o.Entry == "" {
		o.Entry = DefaultEntry
	}
	return o
}
