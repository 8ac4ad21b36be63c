package validation

import "strconv"

// CardBrand определяет платёжную систему по префиксу номера карты.
// Используется только для отображения, а не для валидации номера.
type CardBrand string

const (
	BrandVisa       CardBrand = "visa"
	BrandMastercard CardBrand = "mastercard"
	BrandAmex       CardBrand = "amex"
	BrandUnknown    CardBrand = ""
)

// DetectCardBrand возвращает платёжную систему по первым цифрам номера карты.
func DetectCardBrand(number string) CardBrand {
	if number == "" {
		return BrandUnknown
	}

	if number[0] == '4' {
		return BrandVisa
	}

	if len(number) >= 2 {
		prefix2, err := strconv.Atoi(number[:2])
		if err != nil {
			return BrandUnknown
		}
		if prefix2 >= 51 && prefix2 <= 55 {
			return BrandMastercard
		}
		if prefix2 == 34 || prefix2 == 37 {
			return BrandAmex
		}
	}

	if len(number) >= 4 {
		prefix4, err := strconv.Atoi(number[:4])
		if err != nil {
			return BrandUnknown
		}
		if prefix4 >= 2221 && prefix4 <= 2720 {
			return BrandMastercard
		}
	}

	return BrandUnknown
}
