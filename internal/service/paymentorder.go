package service

import (
	"context"
	"fmt"
	"time"

	"github.com/mmeshcher/ganadera-system/internal/model"
)

// ProcessOrder переводит поручение в обработку банком по банковской ссылке.
func (s *Service) ProcessOrder(ctx context.Context, orderID int64, bankReference string) (*model.PaymentOrder, error) {
	if bankReference == "" {
		return nil, fmt.Errorf("%w: bank reference", ErrEmptyBankPayload)
	}

	return s.repo.ProcessOrder(ctx, orderID, bankReference)
}

// CompleteOrder завершает поручение ответом банковского API.
// Завершение итогового поручения завершает и сделку.
func (s *Service) CompleteOrder(ctx context.Context, orderID int64, bankAPIResponse string) (*model.PaymentOrder, error) {
	if bankAPIResponse == "" {
		return nil, fmt.Errorf("%w: bank api response", ErrEmptyBankPayload)
	}

	return s.repo.CompleteOrder(ctx, orderID, bankAPIResponse, time.Now())
}

// FailOrder помечает поручение неуспешным с указанием причины. Автоматических повторов нет:
// для новой попытки оплаты требуется явное новое действие.
func (s *Service) FailOrder(ctx context.Context, orderID int64, reason string) (*model.PaymentOrder, error) {
	if reason == "" {
		return nil, fmt.Errorf("%w: failure reason", ErrEmptyBankPayload)
	}

	return s.repo.FailOrder(ctx, orderID, reason)
}
