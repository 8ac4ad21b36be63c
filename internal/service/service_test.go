package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mmeshcher/ganadera-system/internal/model"
	"github.com/mmeshcher/ganadera-system/internal/repository"
	"github.com/mmeshcher/ganadera-system/internal/settlement"
)

type stubRepo struct {
	lote    *model.Lote
	loteErr error

	offer    *model.Offer
	offerErr error

	createdOffer *model.Offer
	createErr    error

	acceptTxn   *model.Transaction
	acceptErr   error
	acceptCalls int

	rejectErr   error
	rejectCalls int

	cancelErr error

	txn    *model.Transaction
	txnErr error

	submitErr    error
	submitWeight int64
	submitTicket string

	confirmOrder   *model.PaymentOrder
	confirmErr     error
	confirmAmounts *settlement.Amounts

	order    *model.PaymentOrder
	orderErr error

	cert    *model.BuyerCertification
	certErr error
}

func (s *stubRepo) Close() error { return nil }

func (s *stubRepo) GetLote(ctx context.Context, loteID int64) (*model.Lote, error) {
	return s.lote, s.loteErr
}

func (s *stubRepo) CreateOffer(ctx context.Context, o *model.Offer) (*model.Offer, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	s.createdOffer = o
	return o, nil
}

func (s *stubRepo) GetOffer(ctx context.Context, offerID int64) (*model.Offer, error) {
	return s.offer, s.offerErr
}

func (s *stubRepo) ListOffersByBuyer(ctx context.Context, buyerID int64) ([]model.Offer, error) {
	return nil, nil
}

func (s *stubRepo) ListOffersBySeller(ctx context.Context, sellerID int64) ([]model.Offer, error) {
	return nil, nil
}

func (s *stubRepo) GetNegotiationHistory(ctx context.Context, offerID int64) ([]model.NegotiationEntry, error) {
	return nil, nil
}

func (s *stubRepo) CounterOffer(ctx context.Context, offerID, sellerPriceCentavos int64) (*model.Offer, error) {
	return s.offer, s.offerErr
}

func (s *stubRepo) RejectOffer(ctx context.Context, offerID int64, from ...model.OfferStatus) error {
	s.rejectCalls++
	return s.rejectErr
}

func (s *stubRepo) CancelOffer(ctx context.Context, offerID int64) error {
	return s.cancelErr
}

func (s *stubRepo) AcceptOffer(ctx context.Context, offerID int64, from model.OfferStatus) (*model.Transaction, error) {
	s.acceptCalls++
	if s.acceptCalls > 1 {
		return nil, repository.ErrInvalidTransition
	}
	return s.acceptTxn, s.acceptErr
}

func (s *stubRepo) CreateDirectTransaction(ctx context.Context, loteID, buyerID int64) (*model.Transaction, error) {
	return s.txn, s.txnErr
}

func (s *stubRepo) GetTransaction(ctx context.Context, transactionID int64) (*model.Transaction, error) {
	return s.txn, s.txnErr
}

func (s *stubRepo) ListTransactionsByParticipant(ctx context.Context, userID int64) ([]model.Transaction, error) {
	return nil, nil
}

func (s *stubRepo) SubmitActualWeight(ctx context.Context, transactionID, actualWeightKg int64, balanceTicketURL string, now time.Time) error {
	s.submitWeight = actualWeightKg
	s.submitTicket = balanceTicketURL
	return s.submitErr
}

func (s *stubRepo) ConfirmWeight(ctx context.Context, transactionID int64, amounts settlement.Amounts, now time.Time) (*model.PaymentOrder, error) {
	if s.confirmErr != nil {
		return nil, s.confirmErr
	}
	s.confirmAmounts = &amounts
	return s.confirmOrder, nil
}

func (s *stubRepo) ListPaymentOrdersByTransaction(ctx context.Context, transactionID int64) ([]model.PaymentOrder, error) {
	return nil, nil
}

func (s *stubRepo) ProcessOrder(ctx context.Context, orderID int64, bankReference string) (*model.PaymentOrder, error) {
	return s.order, s.orderErr
}

func (s *stubRepo) CompleteOrder(ctx context.Context, orderID int64, bankAPIResponse string, now time.Time) (*model.PaymentOrder, error) {
	return s.order, s.orderErr
}

func (s *stubRepo) FailOrder(ctx context.Context, orderID int64, reason string) (*model.PaymentOrder, error) {
	return s.order, s.orderErr
}

func (s *stubRepo) GetBuyerCertification(ctx context.Context, buyerID int64) (*model.BuyerCertification, error) {
	return s.cert, s.certErr
}

func (s *stubRepo) UpsertBuyerCertification(ctx context.Context, buyerID int64, status model.CertificationStatus) error {
	return nil
}

func (s *stubRepo) GetBuyersForCertificationSync(ctx context.Context, limit int) ([]int64, error) {
	return nil, nil
}

func availableLote() *model.Lote {
	return &model.Lote{
		ID:                7,
		SellerID:          2,
		TotalCount:        50,
		AverageWeightKg:   350,
		BasePriceCentavos: 50000,
		Status:            model.LoteStatusDisponible,
	}
}

func transferPayment() PaymentDetails {
	return PaymentDetails{
		Method: model.PaymentMethodTransferencia,
		CBU:    "2850590940090418135201",
	}
}

func TestCreateOffer_InvalidPrice(t *testing.T) {
	svc := NewService(&stubRepo{lote: availableLote()}, nil)

	_, err := svc.CreateOffer(context.Background(), CreateOfferParams{
		LoteID:        7,
		BuyerID:       1,
		PriceCentavos: 0,
		Payment:       transferPayment(),
	})
	if !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("expected ErrInvalidPrice, got %v", err)
	}
}

func TestCreateOffer_OwnLoteForbidden(t *testing.T) {
	svc := NewService(&stubRepo{lote: availableLote()}, nil)

	_, err := svc.CreateOffer(context.Background(), CreateOfferParams{
		LoteID:        7,
		BuyerID:       2,
		PriceCentavos: 48000,
		Payment:       transferPayment(),
	})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestCreateOffer_CommittedLoteUnavailable(t *testing.T) {
	lote := availableLote()
	lote.Status = model.LoteStatusComprometido
	svc := NewService(&stubRepo{lote: lote}, nil)

	_, err := svc.CreateOffer(context.Background(), CreateOfferParams{
		LoteID:        7,
		BuyerID:       1,
		PriceCentavos: 48000,
		Payment:       transferPayment(),
	})
	if !errors.Is(err, repository.ErrLoteUnavailable) {
		t.Fatalf("expected ErrLoteUnavailable, got %v", err)
	}
}

func TestCreateOffer_PaymentInstrumentChecks(t *testing.T) {
	tests := []struct {
		name    string
		payment PaymentDetails
		wantErr error
	}{
		{
			name:    "invalid cbu checksum",
			payment: PaymentDetails{Method: model.PaymentMethodTransferencia, CBU: "0000000000000000000001"},
			wantErr: ErrInvalidInstrument,
		},
		{
			name:    "invalid card checksum",
			payment: PaymentDetails{Method: model.PaymentMethodTarjeta, CardNumber: "4111111111111112"},
			wantErr: ErrInvalidInstrument,
		},
		{
			name:    "unknown method",
			payment: PaymentDetails{Method: "cheque"},
			wantErr: ErrInvalidPaymentMethod,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &stubRepo{lote: availableLote()}
			svc := NewService(repo, nil)

			_, err := svc.CreateOffer(context.Background(), CreateOfferParams{
				LoteID:        7,
				BuyerID:       1,
				PriceCentavos: 48000,
				Payment:       tt.payment,
			})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if repo.createdOffer != nil {
				t.Fatalf("offer must not be created on validation failure")
			}
		})
	}
}

func TestCreateOffer_CreditoRequiresApprovedCertification(t *testing.T) {
	repo := &stubRepo{
		lote: availableLote(),
		cert: &model.BuyerCertification{BuyerID: 1, Status: model.CertificationPendienteAprobacion},
	}
	svc := NewService(repo, nil)

	params := CreateOfferParams{
		LoteID:        7,
		BuyerID:       1,
		PriceCentavos: 48000,
		Payment:       PaymentDetails{Method: model.PaymentMethodCredito},
	}

	_, err := svc.CreateOffer(context.Background(), params)
	if !errors.Is(err, ErrCertificationRequired) {
		t.Fatalf("expected ErrCertificationRequired, got %v", err)
	}

	repo.cert.Status = model.CertificationAprobado
	offer, err := svc.CreateOffer(context.Background(), params)
	if err != nil {
		t.Fatalf("CreateOffer error: %v", err)
	}
	if !offer.HasBuyerCertification {
		t.Fatalf("expected HasBuyerCertification to be set")
	}
}

func TestCreateOffer_SnapshotsLotePrice(t *testing.T) {
	repo := &stubRepo{lote: availableLote()}
	svc := NewService(repo, nil)

	offer, err := svc.CreateOffer(context.Background(), CreateOfferParams{
		LoteID:        7,
		BuyerID:       1,
		PriceCentavos: 48000,
		Payment:       transferPayment(),
	})
	if err != nil {
		t.Fatalf("CreateOffer error: %v", err)
	}
	if offer.OriginalPriceCentavos != 50000 {
		t.Fatalf("OriginalPriceCentavos = %d, want 50000", offer.OriginalPriceCentavos)
	}
	if offer.SellerID != 2 {
		t.Fatalf("SellerID = %d, want 2", offer.SellerID)
	}
}

func TestCounterOffer_ForeignSellerForbidden(t *testing.T) {
	repo := &stubRepo{
		offer: &model.Offer{ID: 3, SellerID: 2, BuyerID: 1, Status: model.OfferStatusPendiente},
	}
	svc := NewService(repo, nil)

	_, err := svc.CounterOffer(context.Background(), 99, 3, 49500)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestRespondToCounter_AcceptMaterializesTransaction(t *testing.T) {
	repo := &stubRepo{
		offer:     &model.Offer{ID: 3, SellerID: 2, BuyerID: 1, Status: model.OfferStatusCounterOffered},
		acceptTxn: &model.Transaction{ID: 11, Status: model.TransactionStatusPendingWeight},
	}
	svc := NewService(repo, nil)

	txn, err := svc.RespondToCounter(context.Background(), 1, 3, true)
	if err != nil {
		t.Fatalf("RespondToCounter error: %v", err)
	}
	if txn == nil || txn.ID != 11 {
		t.Fatalf("unexpected transaction: %+v", txn)
	}
	if repo.acceptCalls != 1 {
		t.Fatalf("acceptCalls = %d, want 1", repo.acceptCalls)
	}
}

func TestRespondToCounter_SecondAcceptConflicts(t *testing.T) {
	repo := &stubRepo{
		offer:     &model.Offer{ID: 3, SellerID: 2, BuyerID: 1, Status: model.OfferStatusCounterOffered},
		acceptTxn: &model.Transaction{ID: 11},
	}
	svc := NewService(repo, nil)

	if _, err := svc.RespondToCounter(context.Background(), 1, 3, true); err != nil {
		t.Fatalf("first accept error: %v", err)
	}

	_, err := svc.RespondToCounter(context.Background(), 1, 3, true)
	if !errors.Is(err, repository.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on replay, got %v", err)
	}
	if repo.acceptCalls != 2 {
		t.Fatalf("acceptCalls = %d, want 2", repo.acceptCalls)
	}
}

func TestRespondToCounter_RejectDoesNotMaterialize(t *testing.T) {
	repo := &stubRepo{
		offer: &model.Offer{ID: 3, SellerID: 2, BuyerID: 1, Status: model.OfferStatusCounterOffered},
	}
	svc := NewService(repo, nil)

	txn, err := svc.RespondToCounter(context.Background(), 1, 3, false)
	if err != nil {
		t.Fatalf("RespondToCounter error: %v", err)
	}
	if txn != nil {
		t.Fatalf("expected no transaction on reject, got %+v", txn)
	}
	if repo.rejectCalls != 1 || repo.acceptCalls != 0 {
		t.Fatalf("rejectCalls = %d, acceptCalls = %d", repo.rejectCalls, repo.acceptCalls)
	}
}

func TestUpdateOfferStatus_InvalidValue(t *testing.T) {
	svc := NewService(&stubRepo{}, nil)

	_, err := svc.UpdateOfferStatus(context.Background(), 2, 3, model.OfferStatusCancelada)
	if !errors.Is(err, ErrInvalidStatusValue) {
		t.Fatalf("expected ErrInvalidStatusValue, got %v", err)
	}
}

func TestSubmitActualWeight_Validation(t *testing.T) {
	svc := NewService(&stubRepo{}, nil)

	err := svc.SubmitActualWeight(context.Background(), 2, 11, 0, "https://storage/ticket.pdf")
	if !errors.Is(err, ErrInvalidWeight) {
		t.Fatalf("expected ErrInvalidWeight, got %v", err)
	}

	err = svc.SubmitActualWeight(context.Background(), 2, 11, 17600, "")
	if !errors.Is(err, ErrMissingTicket) {
		t.Fatalf("expected ErrMissingTicket, got %v", err)
	}
}

func TestSubmitActualWeight_ForeignSellerForbidden(t *testing.T) {
	repo := &stubRepo{
		txn: &model.Transaction{ID: 11, SellerID: 2, Status: model.TransactionStatusPendingWeight},
	}
	svc := NewService(repo, nil)

	err := svc.SubmitActualWeight(context.Background(), 99, 11, 17600, "https://storage/ticket.pdf")
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestConfirmWeight_ComputesSettlement(t *testing.T) {
	weight := int64(17600)
	repo := &stubRepo{
		txn: &model.Transaction{
			ID:                       11,
			BuyerID:                  1,
			SellerID:                 2,
			AgreedPricePerKgCentavos: 49500,
			ActualWeightKg:           &weight,
			Status:                   model.TransactionStatusWeightConfirmed,
		},
		confirmOrder: &model.PaymentOrder{ID: 21, OrderType: model.OrderTypeFinal, AmountCentavos: 962676000},
	}
	svc := NewService(repo, nil)

	_, order, err := svc.ConfirmWeight(context.Background(), 1, 11)
	if err != nil {
		t.Fatalf("ConfirmWeight error: %v", err)
	}
	if order == nil || order.ID != 21 {
		t.Fatalf("unexpected order: %+v", order)
	}

	if repo.confirmAmounts == nil {
		t.Fatalf("settlement amounts were not persisted")
	}
	if repo.confirmAmounts.FinalAmountCentavos != 962676000 {
		t.Fatalf("FinalAmountCentavos = %d, want 962676000", repo.confirmAmounts.FinalAmountCentavos)
	}
	if repo.confirmAmounts.SellerNetCentavos != 845064000 {
		t.Fatalf("SellerNetCentavos = %d, want 845064000", repo.confirmAmounts.SellerNetCentavos)
	}
}

func TestConfirmWeight_ReissuesAfterBankFailure(t *testing.T) {
	weight := int64(17600)
	repo := &stubRepo{
		txn: &model.Transaction{
			ID:                       11,
			BuyerID:                  1,
			SellerID:                 2,
			AgreedPricePerKgCentavos: 49500,
			ActualWeightKg:           &weight,
			Status:                   model.TransactionStatusPaymentPending,
		},
		confirmOrder: &model.PaymentOrder{ID: 22, OrderType: model.OrderTypeFinal, AmountCentavos: 962676000},
	}
	svc := NewService(repo, nil)

	_, order, err := svc.ConfirmWeight(context.Background(), 1, 11)
	if err != nil {
		t.Fatalf("ConfirmWeight error: %v", err)
	}
	if order == nil || order.ID != 22 {
		t.Fatalf("unexpected order: %+v", order)
	}
	if repo.confirmAmounts == nil || repo.confirmAmounts.FinalAmountCentavos != 962676000 {
		t.Fatalf("unexpected amounts: %+v", repo.confirmAmounts)
	}
}

func TestConfirmWeight_DuplicateOrderGuard(t *testing.T) {
	weight := int64(17600)
	repo := &stubRepo{
		txn: &model.Transaction{
			ID:                       11,
			BuyerID:                  1,
			AgreedPricePerKgCentavos: 49500,
			ActualWeightKg:           &weight,
			Status:                   model.TransactionStatusWeightConfirmed,
		},
		confirmErr: repository.ErrDuplicateOrder,
	}
	svc := NewService(repo, nil)

	_, _, err := svc.ConfirmWeight(context.Background(), 1, 11)
	if !errors.Is(err, repository.ErrDuplicateOrder) {
		t.Fatalf("expected ErrDuplicateOrder, got %v", err)
	}
	if repo.confirmAmounts != nil {
		t.Fatalf("settlement amounts must not be persisted when the guard fires")
	}
}

func TestBankTransitions_ReplayAfterFinalStatus(t *testing.T) {
	repo := &stubRepo{orderErr: repository.ErrOrderAlreadyFinal}
	svc := NewService(repo, nil)

	if _, err := svc.ProcessOrder(context.Background(), 21, "REF-1"); !errors.Is(err, repository.ErrOrderAlreadyFinal) {
		t.Fatalf("ProcessOrder: expected ErrOrderAlreadyFinal, got %v", err)
	}
	if _, err := svc.CompleteOrder(context.Background(), 21, `{"ok":true}`); !errors.Is(err, repository.ErrOrderAlreadyFinal) {
		t.Fatalf("CompleteOrder: expected ErrOrderAlreadyFinal, got %v", err)
	}
	if _, err := svc.FailOrder(context.Background(), 21, "insufficient funds"); !errors.Is(err, repository.ErrOrderAlreadyFinal) {
		t.Fatalf("FailOrder: expected ErrOrderAlreadyFinal, got %v", err)
	}
}

func TestConfirmWeight_WrongState(t *testing.T) {
	repo := &stubRepo{
		txn: &model.Transaction{ID: 11, BuyerID: 1, Status: model.TransactionStatusPendingWeight},
	}
	svc := NewService(repo, nil)

	_, _, err := svc.ConfirmWeight(context.Background(), 1, 11)
	if !errors.Is(err, repository.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestBankTransitions_RequirePayload(t *testing.T) {
	svc := NewService(&stubRepo{}, nil)

	if _, err := svc.ProcessOrder(context.Background(), 21, ""); !errors.Is(err, ErrEmptyBankPayload) {
		t.Fatalf("ProcessOrder: expected ErrEmptyBankPayload, got %v", err)
	}
	if _, err := svc.CompleteOrder(context.Background(), 21, ""); !errors.Is(err, ErrEmptyBankPayload) {
		t.Fatalf("CompleteOrder: expected ErrEmptyBankPayload, got %v", err)
	}
	if _, err := svc.FailOrder(context.Background(), 21, ""); !errors.Is(err, ErrEmptyBankPayload) {
		t.Fatalf("FailOrder: expected ErrEmptyBankPayload, got %v", err)
	}
}

func TestStartCertificationSync_NoClient(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Без клиента банка синхронизация не запускается и не трогает репозиторий.
	svc.StartCertificationSync(ctx)
	if repo.acceptCalls != 0 {
		t.Fatalf("unexpected repository activity")
	}
}
