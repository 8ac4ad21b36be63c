// Package service реализует бизнес-логику переговорно-расчётного конвейера площадки.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/mmeshcher/ganadera-system/internal/certification"
	"github.com/mmeshcher/ganadera-system/internal/model"
	"github.com/mmeshcher/ganadera-system/internal/repository"
	"github.com/mmeshcher/ganadera-system/internal/settlement"
)

// ErrInvalidPrice возвращается для неположительной цены.
var (
	ErrInvalidPrice = errors.New("price must be positive")
	// ErrInvalidWeight возвращается для неположительного фактического веса.
	ErrInvalidWeight = errors.New("actual weight must be positive")
	// ErrMissingTicket возвращается, если не передан документ весовой.
	ErrMissingTicket = errors.New("balance ticket document is required")
	// ErrInvalidInstrument возвращается, если платёжный реквизит не прошёл контрольную сумму.
	ErrInvalidInstrument = errors.New("invalid payment instrument")
	// ErrInvalidPaymentMethod возвращается для неизвестного способа оплаты.
	ErrInvalidPaymentMethod = errors.New("unsupported payment method")
	// ErrInvalidStatusValue возвращается для недопустимого целевого статуса оферты.
	ErrInvalidStatusValue = errors.New("status must be aceptada or rechazada")
	// ErrCertificationRequired возвращается, если сертификация покупателя не одобрена банком.
	ErrCertificationRequired = errors.New("buyer certification not approved")
	// ErrForbidden возвращается при обращении к чужой оферте, сделке или поручению.
	ErrForbidden = errors.New("operation not allowed for this user")
	// ErrEmptyBankPayload возвращается, если банковский переход вызван без обязательных данных.
	ErrEmptyBankPayload = errors.New("bank payload is required")
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	GetLote(ctx context.Context, loteID int64) (*model.Lote, error)
	CreateOffer(ctx context.Context, o *model.Offer) (*model.Offer, error)
	GetOffer(ctx context.Context, offerID int64) (*model.Offer, error)
	ListOffersByBuyer(ctx context.Context, buyerID int64) ([]model.Offer, error)
	ListOffersBySeller(ctx context.Context, sellerID int64) ([]model.Offer, error)
	GetNegotiationHistory(ctx context.Context, offerID int64) ([]model.NegotiationEntry, error)
	CounterOffer(ctx context.Context, offerID, sellerPriceCentavos int64) (*model.Offer, error)
	RejectOffer(ctx context.Context, offerID int64, from ...model.OfferStatus) error
	CancelOffer(ctx context.Context, offerID int64) error
	AcceptOffer(ctx context.Context, offerID int64, from model.OfferStatus) (*model.Transaction, error)
	CreateDirectTransaction(ctx context.Context, loteID, buyerID int64) (*model.Transaction, error)
	GetTransaction(ctx context.Context, transactionID int64) (*model.Transaction, error)
	ListTransactionsByParticipant(ctx context.Context, userID int64) ([]model.Transaction, error)
	SubmitActualWeight(ctx context.Context, transactionID, actualWeightKg int64, balanceTicketURL string, now time.Time) error
	ConfirmWeight(ctx context.Context, transactionID int64, amounts settlement.Amounts, now time.Time) (*model.PaymentOrder, error)
	ListPaymentOrdersByTransaction(ctx context.Context, transactionID int64) ([]model.PaymentOrder, error)
	ProcessOrder(ctx context.Context, orderID int64, bankReference string) (*model.PaymentOrder, error)
	CompleteOrder(ctx context.Context, orderID int64, bankAPIResponse string, now time.Time) (*model.PaymentOrder, error)
	FailOrder(ctx context.Context, orderID int64, reason string) (*model.PaymentOrder, error)
	GetBuyerCertification(ctx context.Context, buyerID int64) (*model.BuyerCertification, error)
	UpsertBuyerCertification(ctx context.Context, buyerID int64, status model.CertificationStatus) error
	GetBuyersForCertificationSync(ctx context.Context, limit int) ([]int64, error)
}

// Service содержит бизнес-логику площадки торговли скотом.
type Service struct {
	repo       Repository
	certClient *certification.Client
}

// NewService создаёт новый сервис с указанным репозиторием и клиентом сертифицирующего банка.
func NewService(repo Repository, certClient *certification.Client) *Service {
	return &Service{
		repo:       repo,
		certClient: certClient,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// StartCertificationSync запускает фоновый процесс обновления сертификаций покупателей из банка.
func (s *Service) StartCertificationSync(ctx context.Context) {
	if s.certClient == nil {
		return
	}

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.processCertificationBatch(ctx)
			}
		}
	}()
}

func (s *Service) processCertificationBatch(ctx context.Context) {
	buyers, err := s.repo.GetBuyersForCertificationSync(ctx, 100)
	if err != nil {
		return
	}

	for _, buyerID := range buyers {
		resp, statusCode, retryAfter, err := s.certClient.GetBuyerCertification(ctx, buyerID)
		if err != nil {
			continue
		}

		if statusCode == 429 {
			if retryAfter > 0 {
				timer := time.NewTimer(retryAfter)
				select {
				case <-ctx.Done():
					timer.Stop()
					return
				case <-timer.C:
				}
			}
			continue
		}

		if resp == nil {
			continue
		}

		status, ok := parseCertificationStatus(resp.Status)
		if !ok {
			continue
		}

		_ = s.repo.UpsertBuyerCertification(ctx, buyerID, status)
	}
}

func parseCertificationStatus(raw string) (model.CertificationStatus, bool) {
	switch status := model.CertificationStatus(raw); status {
	case model.CertificationPendienteAprobacion,
		model.CertificationAprobado,
		model.CertificationRechazado,
		model.CertificationMasDatos:
		return status, true
	default:
		return "", false
	}
}

// checkBuyerCertification проверяет, одобрена ли сертификация покупателя для кредитной оплаты.
// При отсутствии кэшированной записи состояние запрашивается у банка синхронно.
func (s *Service) checkBuyerCertification(ctx context.Context, buyerID int64) error {
	cert, err := s.repo.GetBuyerCertification(ctx, buyerID)
	if err != nil {
		if !errors.Is(err, repository.ErrCertificationNotFound) {
			return err
		}

		if s.certClient == nil {
			return ErrCertificationRequired
		}

		resp, _, _, clientErr := s.certClient.GetBuyerCertification(ctx, buyerID)
		if clientErr != nil || resp == nil {
			return ErrCertificationRequired
		}

		status, ok := parseCertificationStatus(resp.Status)
		if !ok {
			return ErrCertificationRequired
		}

		if upsertErr := s.repo.UpsertBuyerCertification(ctx, buyerID, status); upsertErr != nil {
			return upsertErr
		}

		cert = &model.BuyerCertification{BuyerID: buyerID, Status: status}
	}

	if cert.Status != model.CertificationAprobado {
		return ErrCertificationRequired
	}

	return nil
}
