package engine

import (
	"testing"
)

// TestLevenshteinDistance tests edit distances
func TestLevenshteinDistance(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "abc", 3},
		{"mov", "mov", 0},
		{"movv", "mov", 1},
		{"kitten", "sitting", 3},
		{"rbx", "rcx", 1},
	}
	for _, tt := range tests {
		if got := LevenshteinDistance(tt.a, tt.b); got != tt.want {
			t.Errorf("LevenshteinDistance(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

// TestFindSimilar tests suggestion ordering
func TestFindSimilar(t *testing.T) {
	got := FindSimilar("movv", []string{"mov", "movzx", "add", "mov", "movsx"}, 2)
	if len(got) != 2 || got[0] != "mov" {
		t.Errorf("FindSimilar = %v", got)
	}
	if hint := DidYouMean("tmp", []string{"t", "tmp1"}); hint != "did you mean 'tmp1'?" {
		t.Errorf("DidYouMean = %q", hint)
	}
	if hint := DidYouMean("zzzz", []string{"rax"}); hint != "" {
		t.Errorf("expected no hint, got %q", hint)
	}
}

// TestHashSuffix tests that overload suffixes are stable and distinct
func TestHashSuffix(t *testing.T) {
	a := HashSuffix(1, 2)
	if a != HashSuffix(1, 2) {
		t.Error("hash suffix is not stable")
	}
	if a == HashSuffix(2, 1) {
		t.Error("parameter order must change the suffix")
	}
	if len(a) != 9 || a[0] != '$' {
		t.Errorf("unexpected suffix format %q", a)
	}
}

// TestParseTarget tests target name aliases
func TestParseTarget(t *testing.T) {
	tests := []struct {
		in string
		ok bool
	}{
		{"x86_64-linux", true},
		{"amd64-linux", true},
		{"x86_64/linux", true},
		{"x86-64-linux", true},
		{"X64-Linux", true},
		{"arm64-linux", false},
		{"amd64", false},
		{"amd64-darwin", false},
		{"amd64-linuxx", false},
	}
	for _, tt := range tests {
		got, err := ParseTarget(tt.in)
		if (err == nil) != tt.ok {
			t.Errorf("ParseTarget(%q) error = %v, want ok=%v", tt.in, err, tt.ok)
			continue
		}
		if tt.ok && got != Target {
			t.Errorf("ParseTarget(%q) = %q, want %q", tt.in, got, Target)
		}
	}
}
