package validation

const cbuLength = 22

// Веса контрольных блоков CBU.
var (
	cbuBlock1Weights = []int{7, 1, 3, 9, 7, 1, 3}
	cbuBlock2Weights = []int{3, 9, 7, 1, 3, 9, 7, 1, 3, 9, 7, 1, 3}
)

// IsValidCBU проверяет 22-значный аргентинский банковский идентификатор CBU.
// Первый блок (цифры 0–6) закрывается контрольной цифрой в позиции 7,
// второй блок (цифры 8–20) — контрольной цифрой в позиции 21.
func IsValidCBU(cbu string) bool {
	if len(cbu) != cbuLength {
		return false
	}

	digits := make([]int, cbuLength)
	for i := 0; i < cbuLength; i++ {
		ch := cbu[i]
		if ch < '0' || ch > '9' {
			return false
		}
		digits[i] = int(ch - '0')
	}

	if cbuCheckDigit(digits[0:7], cbuBlock1Weights) != digits[7] {
		return false
	}
	if cbuCheckDigit(digits[8:21], cbuBlock2Weights) != digits[21] {
		return false
	}

	return true
}

func cbuCheckDigit(digits, weights []int) int {
	sum := 0
	for i, d := range digits {
		sum += d * weights[i]
	}
	return (10 - sum%10) % 10
}
