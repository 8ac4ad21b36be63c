package validation

import "testing"

func TestIsValidCBU(t *testing.T) {
	tests := []struct {
		name  string
		cbu   string
		valid bool
	}{
		{
			name:  "all zeros, both check digits zero",
			cbu:   "0000000000000000000000",
			valid: true,
		},
		{
			name:  "real account number",
			cbu:   "2850590940090418135201",
			valid: true,
		},
		{
			name:  "second block check digit mismatch",
			cbu:   "0000000000000000000001",
			valid: false,
		},
		{
			name:  "first block check digit mismatch",
			cbu:   "2850590140090418135201",
			valid: false,
		},
		{
			name:  "too short",
			cbu:   "285059094009041813520",
			valid: false,
		},
		{
			name:  "too long",
			cbu:   "28505909400904181352011",
			valid: false,
		},
		{
			name:  "non-digit characters",
			cbu:   "28505909400904181352O1",
			valid: false,
		},
		{
			name:  "empty string",
			cbu:   "",
			valid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsValidCBU(tt.cbu)
			if got != tt.valid {
				t.Fatalf("IsValidCBU(%q) = %v, want %v", tt.cbu, got, tt.valid)
			}
		})
	}
}
