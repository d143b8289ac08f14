// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"testing"
)

// =============================================================================
// ELLIPSIZE TESTS
// =============================================================================

func TestEllipsize(t *testing.T) {
	testCases := []struct {
		input    string
		maxRunes int
		expected string
	}{
		{"Hello", 30, "Hello"},
		{"exactly thirty characters long", 30, "exactly thirty characters long"},
		{"this message is definitely longer than thirty", 30, "this message is definitely lon..."},
		{"", 30, ""},
		{"anything", 0, ""},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			result := Ellipsize(tc.input, tc.maxRunes)
			if result != tc.expected {
				t.Errorf("Ellipsize(%q, %d) = %q, want %q", tc.input, tc.maxRunes, result, tc.expected)
			}
		})
	}
}

func TestEllipsize_CountsRunesNotBytes(t *testing.T) {
	input := "日本語のテキスト" // 8 runes, 24 bytes
	if got := Ellipsize(input, 8); got != input {
		t.Errorf("Ellipsize kept %q, want unchanged %q", got, input)
	}
	want := "日本語" + Ellipsis
	if got := Ellipsize(input, 3); got != want {
		t.Errorf("Ellipsize(%q, 3) = %q, want %q", input, got, want)
	}
}

func TestRuneLen(t *testing.T) {
	testCases := []struct {
		input    string
		expected int
	}{
		{"hello", 5},
		{"", 0},
		{"日本語", 3},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			if got := RuneLen(tc.input); got != tc.expected {
				t.Errorf("RuneLen(%q) = %d, want %d", tc.input, got, tc.expected)
			}
		})
	}
}

func TestSingleLine(t *testing.T) {
	if got := SingleLine("one\r\ntwo\nthree"); got != "one two three" {
		t.Errorf("SingleLine = %q, want %q", got, "one two three")
	}
}

// =============================================================================
// DISPLAY WIDTH TESTS
// =============================================================================

func TestStringWidth(t *testing.T) {
	testCases := []struct {
		input    string
		expected int
	}{
		{"hello", 5},
		{"", 0},
		{"日本語", 6},
		{"hello世界", 9},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			if got := StringWidth(tc.input); got != tc.expected {
				t.Errorf("StringWidth(%q) = %d, want %d", tc.input, got, tc.expected)
			}
		})
	}
}

func TestTruncateWidth(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		maxWidth int
		expected string
	}{
		{"fits", "hello", 10, "hello"},
		{"exact", "hello", 5, "hello"},
		{"cut", "hello world", 8, "hello..."},
		{"tiny", "hello world", 3, "hel"},
		{"zero", "hello", 0, ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := TruncateWidth(tc.input, tc.maxWidth)
			if got != tc.expected {
				t.Errorf("TruncateWidth(%q, %d) = %q, want %q", tc.input, tc.maxWidth, got, tc.expected)
			}
			if StringWidth(got) > tc.maxWidth {
				t.Errorf("TruncateWidth(%q, %d) is %d columns wide", tc.input, tc.maxWidth, StringWidth(got))
			}
		})
	}
}

func TestPadRight(t *testing.T) {
	if got := PadRight("ab", 5); got != "ab   " {
		t.Errorf("PadRight(ab, 5) = %q, want %q", got, "ab   ")
	}
	if got := PadRight("日本", 6); StringWidth(got) != 6 {
		t.Errorf("PadRight CJK width = %d, want 6", StringWidth(got))
	}
	if got := PadRight("a long value", 6); StringWidth(got) != 6 {
		t.Errorf("PadRight should truncate to 6 columns, got %q", got)
	}
}
