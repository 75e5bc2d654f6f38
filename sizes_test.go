package main

import "testing"

func TestCleanSizeField(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		// Comma decimal separator from non-english locales.
		{"29,5 GB", "29.5 GB"},
		// Unit touching the number.
		{"100GB", "100 GB"},
		// Already clean.
		{"1.2 TB", "1.2 TB"},
		{"0 B", "0 B"},
		// Lowercase unit gets uppercased.
		{"512 mb", "512 MB"},
		// Leading whitespace and trailing junk after the unit.
		{"  372,5 MB (incremental)", "372.5 MB"},
		// No recognizable unit, first token is assumed to be plain bytes.
		{"12345 things", "12345 B"},
		{"n/a", "n/a B"},
		// Blank stays blank.
		{"", ""},
		{"   ", ""},
	}
	for _, test := range tests {
		if got := CleanSizeField(test.in); got != test.want {
			t.Errorf("CleanSizeField(%q) = %q, want %q", test.in, got, test.want)
		}
	}
}
