// Package validation содержит проверки платёжных реквизитов: номеров карт и CBU.
package validation

import "unicode"

const (
	minCardDigits = 13
	maxCardDigits = 19
)

// IsValidCardNumber проверяет корректность номера банковской карты по алгоритму Луна.
func IsValidCardNumber(number string) bool {
	if len(number) < minCardDigits || len(number) > maxCardDigits {
		return false
	}

	sum := 0
	double := false

	for i := len(number) - 1; i >= 0; i-- {
		ch := rune(number[i])
		if !unicode.IsDigit(ch) {
			return false
		}
		digit := int(ch - '0')
		if double {
			digit *= 2
			if digit > 9 {
				digit -= 9
			}
		}
		sum += digit
		double = !double
	}

	return sum%10 == 0
}
