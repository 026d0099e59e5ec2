package config

import (
	"testing"
)

// TestFromEnv tests that environment variables override the defaults
func TestFromEnv(t *testing.T) {
	t.Setenv(EnvVerbose, "1")
	t.Setenv(EnvRedZone, "64")
	t.Setenv(EnvInlineDepth, "3")
	t.Setenv(EnvEntry, "Start")

	o := FromEnv()
	if !o.Verbose {
		t.Error("expected verbose mode")
	}
	if o.RedZone != 64 || o.InlineDepth != 3 || o.Entry != "Start" {
		t.Errorf("unexpected options %+v", o)
	}
}

// TestFromEnvDefaults tests the defaults when nothing is set
func TestFromEnvDefaults(t *testing.T) {
	t.Setenv(EnvRedZone, "")
	t.Setenv(EnvEntry, "")
	o := FromEnv()
	if o.RedZone != DefaultRedZone || o.Entry != DefaultEntry {
		t.Errorf("unexpected defaults %+v", o)
	}
}

// TestFromEnvReload tests that a changed environment is seen by the next call
func TestFromEnvReload(t *testing.T) {
	t.Setenv(EnvEntry, "First")
	if o := FromEnv(); o.Entry != "First" {
		t.Fatalf("Entry = %q, want First", o.Entry)
	}
	t.Setenv(EnvEntry, "Second")
	t.Setenv(EnvInlineDepth, "5")
	o := FromEnv()
	if o.Entry != "Second" || o.InlineDepth != 5 {
		t.Errorf("unexpected options after change %+v", o)
	}
}

// TestNormalize tests clamping of out-of-range values
func TestNormalize(t *testing.T) {
	o := Options{RedZone: 4096, InlineDepth: -1}.Normalize()
	if o.RedZone != DefaultRedZone || o.InlineDepth != DefaultInlineDepth || o.Entry != DefaultEntry {
		t.Errorf("Normalize() = %+v", o)
	}
	if Default() != (Options{RedZone: 128, InlineDepth: 16, Entry: "Main"}) {
		t.Errorf("Default() = %+v", Default())
	}
}
