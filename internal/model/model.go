// Package model содержит доменные сущности площадки торговли скотом.
package model

import "time"

// Role определяет роль участника площадки.
type Role string

const (
	RoleComprador Role = "comprador"
	RoleVendedor  Role = "vendedor"
	RoleBanco     Role = "banco"
	RoleAdmin     Role = "admin"
)

// LoteStatus описывает состояние лота скота.
type LoteStatus string

const (
	LoteStatusDisponible   LoteStatus = "disponible"
	LoteStatusComprometido LoteStatus = "comprometido"
)

// Lote представляет снимок лота скота, выставленного на продажу.
// Данные лота принадлежат внешней подсистеме и читаются только на момент сделки.
type Lote struct {
	ID                int64
	SellerID          int64
	TotalCount        int64
	AverageWeightKg   int64
	BasePriceCentavos int64
	Status            LoteStatus
	CreatedAt         time.Time
}

// OfferStatus описывает статус оферты покупателя.
//
// Переходы:
//
//	pendiente → counter_offered | aceptada | rechazada | cancelada
//	counter_offered → aceptada | rechazada
type OfferStatus string

const (
	OfferStatusPendiente      OfferStatus = "pendiente"
	OfferStatusCounterOffered OfferStatus = "counter_offered"
	OfferStatusAceptada       OfferStatus = "aceptada"
	OfferStatusRechazada      OfferStatus = "rechazada"
	OfferStatusCancelada      OfferStatus = "cancelada"
)

// IsTerminal сообщает, является ли статус оферты конечным.
func (s OfferStatus) IsTerminal() bool {
	return s == OfferStatusAceptada || s == OfferStatusRechazada || s == OfferStatusCancelada
}

// PaymentMethod определяет способ оплаты, выбранный покупателем.
type PaymentMethod string

const (
	PaymentMethodTransferencia PaymentMethod = "transferencia"
	PaymentMethodTarjeta       PaymentMethod = "tarjeta"
	PaymentMethodCredito       PaymentMethod = "credito"
)

// Offer представляет оферту покупателя по лоту, возможно с контрпредложением продавца.
// Контрпредложение изменяет ту же запись: прежняя цена сохраняется в CounterOfferPriceCentavos.
type Offer struct {
	ID                        int64
	LoteID                    int64
	BuyerID                   int64
	SellerID                  int64
	OfferedPriceCentavos      int64
	OriginalPriceCentavos     int64
	CounterOfferPriceCentavos *int64
	Status                    OfferStatus
	IsCounterOffer            bool
	PaymentTermDays           int
	PaymentMethod             PaymentMethod
	HasBuyerCertification     bool
	CreatedAt                 time.Time
}

// NegotiationEntry описывает один шаг истории торга по оферте.
type NegotiationEntry struct {
	ID            int64
	OfferID       int64
	PriceCentavos int64
	Proposer      Role
	CreatedAt     time.Time
}

// TransactionStatus описывает статус сделки.
//
// Переходы:
//
//	pending_weight → weight_confirmed → payment_pending → completed
type TransactionStatus string

const (
	TransactionStatusPendingWeight   TransactionStatus = "pending_weight"
	TransactionStatusWeightConfirmed TransactionStatus = "weight_confirmed"
	TransactionStatusPaymentPending  TransactionStatus = "payment_pending"
	TransactionStatusCompleted       TransactionStatus = "completed"
)

// Transaction представляет сделку, созданную из принятой оферты или прямой покупки.
// Цена и расчётный вес фиксируются на момент принятия и не меняются при правках лота.
type Transaction struct {
	ID                         int64
	LoteID                     int64
	OfferID                    *int64
	BuyerID                    int64
	SellerID                   int64
	AgreedPricePerKgCentavos   int64
	EstimatedWeightKg          int64
	EstimatedTotalCentavos     int64
	ActualWeightKg             *int64
	BalanceTicketURL           *string
	FinalAmountCentavos        *int64
	IVACentavos                *int64
	PlatformCommissionCentavos *int64
	BankCommissionCentavos     *int64
	SellerNetCentavos          *int64
	Status                     TransactionStatus
	BuyerConfirmedWeight       bool
	WeightUpdatedAt            *time.Time
	BuyerConfirmedAt           *time.Time
	CreatedAt                  time.Time
}

// PaymentOrderType определяет тип платёжного поручения. Предварительное поручение
// на расчётную сумму создаётся вместе со сделкой как аванс на время взвешивания;
// итоговое выпускается при подтверждении веса покупателем и только после того,
// как банк завершит предварительное.
type PaymentOrderType string

const (
	OrderTypeProvisional PaymentOrderType = "provisional"
	OrderTypeFinal       PaymentOrderType = "final"
)

// PaymentOrderStatus описывает статус платёжного поручения.
//
// Переходы (только роль banco):
//
//	pending → processing → completed
//	pending | processing → failed
type PaymentOrderStatus string

const (
	OrderStatusPending    PaymentOrderStatus = "pending"
	OrderStatusProcessing PaymentOrderStatus = "processing"
	OrderStatusCompleted  PaymentOrderStatus = "completed"
	OrderStatusFailed     PaymentOrderStatus = "failed"
)

// IsTerminal сообщает, является ли статус поручения конечным.
func (s PaymentOrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusFailed
}

// PaymentOrder представляет банковское поручение на перечисление средств по сделке.
type PaymentOrder struct {
	ID              int64
	TransactionID   int64
	OrderType       PaymentOrderType
	Status          PaymentOrderStatus
	AmountCentavos  int64
	BankReference   *string
	BankAPIResponse *string
	FailureReason   *string
	CreatedAt       time.Time
	CompletedAt     *time.Time
}

// CertificationStatus описывает состояние сертификации покупателя в банке.
type CertificationStatus string

const (
	CertificationPendienteAprobacion CertificationStatus = "pendiente_aprobacion"
	CertificationAprobado            CertificationStatus = "aprobado"
	CertificationRechazado           CertificationStatus = "rechazado"
	CertificationMasDatos            CertificationStatus = "mas_datos"
)

// BuyerCertification представляет кэшированное состояние сертификации покупателя.
type BuyerCertification struct {
	BuyerID   int64
	Status    CertificationStatus
	UpdatedAt time.Time
}
