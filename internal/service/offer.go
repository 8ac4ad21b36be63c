package service

import (
	"context"
	"fmt"

	"github.com/mmeshcher/ganadera-system/internal/model"
	"github.com/mmeshcher/ganadera-system/internal/repository"
	"github.com/mmeshcher/ganadera-system/internal/validation"
)

// PaymentDetails содержит способ оплаты и платёжный реквизит, проверяемый перед сделкой.
// Реквизиты проверяются контрольными суммами и не сохраняются.
type PaymentDetails struct {
	Method     model.PaymentMethod
	CBU        string
	CardNumber string
}

// CreateOfferParams описывает параметры новой оферты покупателя.
type CreateOfferParams struct {
	LoteID          int64
	BuyerID         int64
	PriceCentavos   int64
	PaymentTermDays int
	Payment         PaymentDetails
}

// CreateOffer создаёт оферту покупателя по лоту.
func (s *Service) CreateOffer(ctx context.Context, p CreateOfferParams) (*model.Offer, error) {
	if p.PriceCentavos <= 0 {
		return nil, ErrInvalidPrice
	}

	lote, err := s.repo.GetLote(ctx, p.LoteID)
	if err != nil {
		return nil, err
	}
	if lote.Status != model.LoteStatusDisponible {
		return nil, repository.ErrLoteUnavailable
	}
	if lote.SellerID == p.BuyerID {
		return nil, ErrForbidden
	}

	if err := s.admitPaymentMethod(ctx, p.BuyerID, p.Payment); err != nil {
		return nil, err
	}

	offer := &model.Offer{
		LoteID:                p.LoteID,
		BuyerID:               p.BuyerID,
		SellerID:              lote.SellerID,
		OfferedPriceCentavos:  p.PriceCentavos,
		OriginalPriceCentavos: lote.BasePriceCentavos,
		PaymentTermDays:       p.PaymentTermDays,
		PaymentMethod:         p.Payment.Method,
		HasBuyerCertification: p.Payment.Method == model.PaymentMethodCredito,
	}

	return s.repo.CreateOffer(ctx, offer)
}

// admitPaymentMethod проверяет допустимость способа оплаты до каких-либо записей.
func (s *Service) admitPaymentMethod(ctx context.Context, buyerID int64, payment PaymentDetails) error {
	switch payment.Method {
	case model.PaymentMethodTransferencia:
		if !validation.IsValidCBU(payment.CBU) {
			return fmt.Errorf("%w: cbu checksum failed", ErrInvalidInstrument)
		}
	case model.PaymentMethodTarjeta:
		if !validation.IsValidCardNumber(payment.CardNumber) {
			return fmt.Errorf("%w: card checksum failed", ErrInvalidInstrument)
		}
	case model.PaymentMethodCredito:
		if err := s.checkBuyerCertification(ctx, buyerID); err != nil {
			return err
		}
	default:
		return ErrInvalidPaymentMethod
	}
	return nil
}

// CounterOffer отвечает контрпредложением продавца на ожидающую оферту.
func (s *Service) CounterOffer(ctx context.Context, sellerID, offerID, priceCentavos int64) (*model.Offer, error) {
	if priceCentavos <= 0 {
		return nil, ErrInvalidPrice
	}

	offer, err := s.repo.GetOffer(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if offer.SellerID != sellerID {
		return nil, ErrForbidden
	}

	return s.repo.CounterOffer(ctx, offerID, priceCentavos)
}

// RespondToCounter фиксирует ответ покупателя на контрпредложение.
// Принятие сразу материализует сделку: продавец уже согласился на цену.
func (s *Service) RespondToCounter(ctx context.Context, buyerID, offerID int64, accept bool) (*model.Transaction, error) {
	offer, err := s.repo.GetOffer(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if offer.BuyerID != buyerID {
		return nil, ErrForbidden
	}

	if !accept {
		if err := s.repo.RejectOffer(ctx, offerID, model.OfferStatusCounterOffered); err != nil {
			return nil, err
		}
		return nil, nil
	}

	return s.repo.AcceptOffer(ctx, offerID, model.OfferStatusCounterOffered)
}

// UpdateOfferStatus фиксирует прямое решение продавца по ожидающей оферте.
// Принятие материализует сделку.
func (s *Service) UpdateOfferStatus(ctx context.Context, sellerID, offerID int64, status model.OfferStatus) (*model.Transaction, error) {
	if status != model.OfferStatusAceptada && status != model.OfferStatusRechazada {
		return nil, ErrInvalidStatusValue
	}

	offer, err := s.repo.GetOffer(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if offer.SellerID != sellerID {
		return nil, ErrForbidden
	}

	if status == model.OfferStatusRechazada {
		if err := s.repo.RejectOffer(ctx, offerID, model.OfferStatusPendiente); err != nil {
			return nil, err
		}
		return nil, nil
	}

	return s.repo.AcceptOffer(ctx, offerID, model.OfferStatusPendiente)
}

// CancelOffer отзывает ещё не рассмотренную оферту покупателя.
func (s *Service) CancelOffer(ctx context.Context, buyerID, offerID int64) error {
	offer, err := s.repo.GetOffer(ctx, offerID)
	if err != nil {
		return err
	}
	if offer.BuyerID != buyerID {
		return ErrForbidden
	}

	return s.repo.CancelOffer(ctx, offerID)
}

// ListOffers возвращает оферты участника в зависимости от его роли.
func (s *Service) ListOffers(ctx context.Context, userID int64, role model.Role) ([]model.Offer, error) {
	if role == model.RoleVendedor {
		return s.repo.ListOffersBySeller(ctx, userID)
	}
	return s.repo.ListOffersByBuyer(ctx, userID)
}

// GetNegotiationHistory возвращает историю торга по оферте её участнику.
func (s *Service) GetNegotiationHistory(ctx context.Context, userID, offerID int64) ([]model.NegotiationEntry, error) {
	offer, err := s.repo.GetOffer(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if offer.BuyerID != userID && offer.SellerID != userID {
		return nil, ErrForbidden
	}

	return s.repo.GetNegotiationHistory(ctx, offerID)
}
