package validation

import "testing"

func TestIsValidCardNumber(t *testing.T) {
	tests := []struct {
		name   string
		number string
		valid  bool
	}{
		{
			name:   "valid visa test number",
			number: "4111111111111111",
			valid:  true,
		},
		{
			name:   "valid mastercard test number",
			number: "5555555555554444",
			valid:  true,
		},
		{
			name:   "valid amex test number",
			number: "378282246310005",
			valid:  true,
		},
		{
			name:   "checksum off by one",
			number: "4111111111111112",
			valid:  false,
		},
		{
			name:   "too short",
			number: "411111111111",
			valid:  false,
		},
		{
			name:   "too long",
			number: "41111111111111111111",
			valid:  false,
		},
		{
			name:   "contains letters",
			number: "41111111111111a1",
			valid:  false,
		},
		{
			name:   "empty string",
			number: "",
			valid:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsValidCardNumber(tt.number)
			if got != tt.valid {
				t.Fatalf("IsValidCardNumber(%q) = %v, want %v", tt.number, got, tt.valid)
			}
		})
	}
}
