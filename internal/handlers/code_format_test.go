package handlers

import (
	"testing"
)

func TestIsValidCodeFormat_TOTPCodes(t *testing.T) {
	tests := []struct {
		name  string
		code  string
		valid bool
	}{
		{"valid TOTP", "123456", true},
		{"valid TOTP all zeros", "000000", true},
		{"valid TOTP all nines", "999999", true},
		{"invalid - too short", "12345", false},
		{"invalid - too long", "1234567", false},
		{"invalid - contains letter", "12345a", false},
		{"invalid - contains special char", "12345!", false},
		{"invalid - space", "123 456", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := isValidCodeFormat(tt.code)
			if result != tt.valid {
				t.Errorf("isValidCodeFormat(%q) = %v, want %v", tt.code, result, tt.valid)
			}
		})
	}
}

func TestIsValidCodeFormat_RecoveryCodes(t *testing.T) {
	tests := []struct {
		name  string
		code  string
		valid bool
	}{
		{"valid recovery", "ABCD2345", true},
		{"valid recovery all digits", "23456789", true},
		{"valid recovery all letters", "ABCDEFGH", true},
		{"valid recovery mixed", "A2B3C4D5", true},
		{"valid recovery upper range", "PQRSTUVW", true},
		{"invalid - too short", "ABCD234", false},
		{"invalid - too long", "ABCD23456", false},
		{"invalid - contains 0", "ABCD0234", false},
		{"invalid - contains 1", "ABCD1234", false},
		{"invalid - contains I", "ABCDI234", false},
		{"invalid - contains L", "ABCDL234", false},
		{"invalid - contains O", "ABCDO234", false},
		{"invalid - lowercase before normalization", "abcd2345", false},
		{"invalid - special char", "ABCD234!", false},
		{"invalid - space", "ABCD 234", false},
		{"invalid - hyphen", "ABCD-234", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := isValidCodeFormat(tt.code)
			if result != tt.valid {
				t.Errorf("isValidCodeFormat(%q) = %v, want %v", tt.code, result, tt.valid)
			}
		})
	}
}

func TestIsValidCodeFormat_EdgeCases(t *testing.T) {
	tests := []struct {
		name  string
		code  string
		valid bool
	}{
		{"empty", "", false},
		{"7 chars", "1234567", false},
		{"9 chars", "123456789", false},
		{"whitespace only", "        ", false},
		{"null bytes", "\x00\x00\x00\x00\x00\x00", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := isValidCodeFormat(tt.code)
			if result != tt.valid {
				t.Errorf("isValidCodeFormat(%q) = %v, want %v", tt.code, result, tt.valid)
			}
		})
	}
}

// TestIsValidCodeFormat_CharsetExclusions verifies that the ambiguous
// characters (0, 1, I, L, O) are rejected at every position of an
// 8-character recovery code
func TestIsValidCodeFormat_CharsetExclusions(t *testing.T) {
	excluded := []struct {
		name string
		char rune
	}{
		{"digit 0", '0'},
		{"digit 1", '1'},
		{"letter I", 'I'},
		{"letter L", 'L'},
		{"letter O", 'O'},
	}

	for _, exc := range excluded {
		t.Run("recovery code with "+exc.name, func(t *testing.T) {
			for pos := 0; pos < 8; pos++ {
				code := []rune("22222222")
				code[pos] = exc.char

				if isValidCodeFormat(string(code)) {
					t.Errorf("isValidCodeFormat(%q) should reject %c at position %d",
						string(code), exc.char, pos)
				}
			}
		})
	}
}

func TestNormalizeCode(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercase recovery code", "abcd2345", "ABCD2345"},
		{"surrounding whitespace", "  123456  ", "123456"},
		{"already normalized", "ABCD2345", "ABCD2345"},
		{"mixed", " aB2c3D45 ", "AB2C3D45"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := normalizeCode(tt.in); got != tt.want {
				t.Errorf("normalizeCode(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
