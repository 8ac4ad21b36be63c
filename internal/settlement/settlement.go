// Package settlement реализует расчёт итоговых сумм сделки: НДС, комиссий и выплаты продавцу.
package settlement

import "github.com/shopspring/decimal"

// Фиксированные ставки домена: НДС 10,5%, комиссия площадки 1%, комиссия банка 2%.
// Все ставки применяются к сумме без налога.
var (
	ivaRate        = decimal.RequireFromString("0.105")
	platformRate   = decimal.RequireFromString("0.01")
	bankRate       = decimal.RequireFromString("0.02")
	centavosPerUni = decimal.NewFromInt(100)
)

// Settlement содержит суммы расчёта в песо с точностью до сентаво.
type Settlement struct {
	Subtotal           decimal.Decimal
	IVA                decimal.Decimal
	FinalAmount        decimal.Decimal
	PlatformCommission decimal.Decimal
	BankCommission     decimal.Decimal
	SellerNet          decimal.Decimal
}

// Amounts содержит те же суммы в сентаво для хранения в БД.
type Amounts struct {
	SubtotalCentavos           int64
	IVACentavos                int64
	FinalAmountCentavos        int64
	PlatformCommissionCentavos int64
	BankCommissionCentavos     int64
	SellerNetCentavos          int64
}

// Calculate вычисляет расчёт по фактическому весу и согласованной цене за килограмм.
// Промежуточные значения не округляются; каждая итоговая сумма округляется
// банковским округлением до двух знаков.
func Calculate(actualWeightKg int64, pricePerKgCentavos int64) Settlement {
	weight := decimal.NewFromInt(actualWeightKg)
	price := FromCentavos(pricePerKgCentavos)

	subtotal := weight.Mul(price)
	iva := subtotal.Mul(ivaRate)
	finalAmount := subtotal.Add(iva)
	platform := subtotal.Mul(platformRate)
	bank := subtotal.Mul(bankRate)
	sellerNet := subtotal.Sub(platform).Sub(bank)

	return Settlement{
		Subtotal:           subtotal.RoundBank(2),
		IVA:                iva.RoundBank(2),
		FinalAmount:        finalAmount.RoundBank(2),
		PlatformCommission: platform.RoundBank(2),
		BankCommission:     bank.RoundBank(2),
		SellerNet:          sellerNet.RoundBank(2),
	}
}

// Centavos переводит расчёт в целые сентаво.
func (s Settlement) Centavos() Amounts {
	return Amounts{
		SubtotalCentavos:           ToCentavos(s.Subtotal),
		IVACentavos:                ToCentavos(s.IVA),
		FinalAmountCentavos:        ToCentavos(s.FinalAmount),
		PlatformCommissionCentavos: ToCentavos(s.PlatformCommission),
		BankCommissionCentavos:     ToCentavos(s.BankCommission),
		SellerNetCentavos:          ToCentavos(s.SellerNet),
	}
}

// EstimatedTotalCentavos вычисляет расчётную сумму сделки по снимку лота:
// количество голов × средний вес × цена за килограмм.
func EstimatedTotalCentavos(totalCount, averageWeightKg, pricePerKgCentavos int64) int64 {
	return totalCount * averageWeightKg * pricePerKgCentavos
}

// FromCentavos переводит сентаво в песо.
func FromCentavos(centavos int64) decimal.Decimal {
	return decimal.NewFromInt(centavos).Div(centavosPerUni)
}

// ToCentavos переводит песо в целые сентаво с банковским округлением.
func ToCentavos(amount decimal.Decimal) int64 {
	return amount.Mul(centavosPerUni).RoundBank(0).IntPart()
}
