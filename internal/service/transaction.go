package service

import (
	"context"
	"fmt"
	"time"

	"github.com/mmeshcher/ganadera-system/internal/model"
	"github.com/mmeshcher/ganadera-system/internal/repository"
	"github.com/mmeshcher/ganadera-system/internal/settlement"
)

// DirectPurchase материализует сделку прямой покупки лота по базовой цене.
func (s *Service) DirectPurchase(ctx context.Context, buyerID, loteID int64, payment PaymentDetails) (*model.Transaction, error) {
	lote, err := s.repo.GetLote(ctx, loteID)
	if err != nil {
		return nil, err
	}
	if lote.Status != model.LoteStatusDisponible {
		return nil, repository.ErrLoteUnavailable
	}
	if lote.SellerID == buyerID {
		return nil, ErrForbidden
	}

	if err := s.admitPaymentMethod(ctx, buyerID, payment); err != nil {
		return nil, err
	}

	return s.repo.CreateDirectTransaction(ctx, loteID, buyerID)
}

// SubmitActualWeight сохраняет фактический вес лота и документ весовой от продавца.
func (s *Service) SubmitActualWeight(ctx context.Context, sellerID, transactionID, actualWeightKg int64, balanceTicketURL string) error {
	if actualWeightKg <= 0 {
		return ErrInvalidWeight
	}
	if balanceTicketURL == "" {
		return ErrMissingTicket
	}

	txn, err := s.repo.GetTransaction(ctx, transactionID)
	if err != nil {
		return err
	}
	if txn.SellerID != sellerID {
		return ErrForbidden
	}

	return s.repo.SubmitActualWeight(ctx, transactionID, actualWeightKg, balanceTicketURL, time.Now())
}

// ConfirmWeight фиксирует подтверждение фактического веса покупателем: рассчитываются
// итоговые суммы, сделка переходит в payment_pending и создаётся итоговое поручение.
// Повторный вызов из payment_pending перевыпускает итоговое поручение после неуспеха
// банка; репозиторий отклоняет выпуск, пока по сделке есть незавершённое или уже
// завершённое итоговое поручение.
func (s *Service) ConfirmWeight(ctx context.Context, buyerID, transactionID int64) (*model.Transaction, *model.PaymentOrder, error) {
	txn, err := s.repo.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, nil, err
	}
	if txn.BuyerID != buyerID {
		return nil, nil, ErrForbidden
	}
	confirmable := txn.Status == model.TransactionStatusWeightConfirmed ||
		txn.Status == model.TransactionStatusPaymentPending
	if !confirmable || txn.ActualWeightKg == nil {
		return nil, nil, fmt.Errorf("%w: transaction status is %s", repository.ErrInvalidTransition, txn.Status)
	}

	// Фактический вес неизменяем после weight_confirmed, расчёт стабилен;
	// условное обновление в репозитории закрывает гонку повторных подтверждений.
	calc := settlement.Calculate(*txn.ActualWeightKg, txn.AgreedPricePerKgCentavos)

	order, err := s.repo.ConfirmWeight(ctx, transactionID, calc.Centavos(), time.Now())
	if err != nil {
		return nil, nil, err
	}

	txn, err = s.repo.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, nil, err
	}

	return txn, order, nil
}

// GetTransaction возвращает сделку её участнику или банку.
func (s *Service) GetTransaction(ctx context.Context, userID int64, role model.Role, transactionID int64) (*model.Transaction, error) {
	txn, err := s.repo.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if !canAccessTransaction(txn, userID, role) {
		return nil, ErrForbidden
	}
	return txn, nil
}

// ListTransactions возвращает сделки, в которых участвует пользователь.
func (s *Service) ListTransactions(ctx context.Context, userID int64) ([]model.Transaction, error) {
	return s.repo.ListTransactionsByParticipant(ctx, userID)
}

// ListPaymentOrders возвращает платёжные поручения сделки её участнику или банку.
func (s *Service) ListPaymentOrders(ctx context.Context, userID int64, role model.Role, transactionID int64) ([]model.PaymentOrder, error) {
	txn, err := s.repo.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if !canAccessTransaction(txn, userID, role) {
		return nil, ErrForbidden
	}

	return s.repo.ListPaymentOrdersByTransaction(ctx, transactionID)
}

func canAccessTransaction(txn *model.Transaction, userID int64, role model.Role) bool {
	if role == model.RoleBanco || role == model.RoleAdmin {
		return true
	}
	return txn.BuyerID == userID || txn.SellerID == userID
}
