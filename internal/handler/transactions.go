package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/ganadera-system/internal/middleware"
	"github.com/mmeshcher/ganadera-system/internal/model"
	"github.com/mmeshcher/ganadera-system/internal/service"
	"github.com/mmeshcher/ganadera-system/internal/settlement"
)

type transactionResponse struct {
	ID                   int64            `json:"id"`
	LoteID               int64            `json:"lote_id"`
	OfferID              *int64           `json:"offer_id,omitempty"`
	BuyerID              int64            `json:"buyer_id"`
	SellerID             int64            `json:"seller_id"`
	AgreedPricePerKg     decimal.Decimal  `json:"agreed_price_per_kg"`
	EstimatedWeightKg    int64            `json:"estimated_weight_kg"`
	EstimatedTotal       decimal.Decimal  `json:"estimated_total"`
	ActualWeightKg       *int64           `json:"actual_weight_kg,omitempty"`
	BalanceTicketURL     *string          `json:"balance_ticket_url,omitempty"`
	FinalAmount          *decimal.Decimal `json:"final_amount,omitempty"`
	IVA                  *decimal.Decimal `json:"iva,omitempty"`
	PlatformCommission   *decimal.Decimal `json:"platform_commission,omitempty"`
	BankCommission       *decimal.Decimal `json:"bank_commission,omitempty"`
	SellerNetAmount      *decimal.Decimal `json:"seller_net_amount,omitempty"`
	Status               string           `json:"status"`
	BuyerConfirmedWeight bool             `json:"buyer_confirmed_weight"`
	WeightUpdatedAt      *string          `json:"weight_updated_at,omitempty"`
	BuyerConfirmedAt     *string          `json:"buyer_confirmed_at,omitempty"`
	CreatedAt            string           `json:"created_at"`
}

func optMoney(centavos *int64) *decimal.Decimal {
	if centavos == nil {
		return nil
	}
	v := settlement.FromCentavos(*centavos)
	return &v
}

func optTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}

func toTransactionResponse(t *model.Transaction) transactionResponse {
	return transactionResponse{
		ID:                   t.ID,
		LoteID:               t.LoteID,
		OfferID:              t.OfferID,
		BuyerID:              t.BuyerID,
		SellerID:             t.SellerID,
		AgreedPricePerKg:     settlement.FromCentavos(t.AgreedPricePerKgCentavos),
		EstimatedWeightKg:    t.EstimatedWeightKg,
		EstimatedTotal:       settlement.FromCentavos(t.EstimatedTotalCentavos),
		ActualWeightKg:       t.ActualWeightKg,
		BalanceTicketURL:     t.BalanceTicketURL,
		FinalAmount:          optMoney(t.FinalAmountCentavos),
		IVA:                  optMoney(t.IVACentavos),
		PlatformCommission:   optMoney(t.PlatformCommissionCentavos),
		BankCommission:       optMoney(t.BankCommissionCentavos),
		SellerNetAmount:      optMoney(t.SellerNetCentavos),
		Status:               string(t.Status),
		BuyerConfirmedWeight: t.BuyerConfirmedWeight,
		WeightUpdatedAt:      optTime(t.WeightUpdatedAt),
		BuyerConfirmedAt:     optTime(t.BuyerConfirmedAt),
		CreatedAt:            t.CreatedAt.Format(time.RFC3339),
	}
}

type directPurchaseRequest struct {
	PaymentMethod string `json:"payment_method"`
	CBU           string `json:"cbu,omitempty"`
	CardNumber    string `json:"card_number,omitempty"`
}

// DirectPurchase материализует сделку прямой покупки лота по базовой цене.
func (h *Handler) DirectPurchase(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	loteID, err := urlParamInt64(r, "loteID")
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req directPurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	txn, err := h.service.DirectPurchase(r.Context(), userID, loteID, service.PaymentDetails{
		Method:     model.PaymentMethod(req.PaymentMethod),
		CBU:        req.CBU,
		CardNumber: req.CardNumber,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, toTransactionResponse(txn))
}

type submitWeightRequest struct {
	ActualWeightKg   int64  `json:"actual_weight_kg"`
	BalanceTicketURL string `json:"balance_ticket_url"`
}

// SubmitWeight принимает фактический вес и документ весовой от продавца.
func (h *Handler) SubmitWeight(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	transactionID, err := urlParamInt64(r, "id")
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req submitWeightRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	err = h.service.SubmitActualWeight(r.Context(), userID, transactionID, req.ActualWeightKg, req.BalanceTicketURL)
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

type confirmWeightResponse struct {
	Transaction  transactionResponse  `json:"transaction"`
	PaymentOrder paymentOrderResponse `json:"payment_order"`
}

// ConfirmWeight фиксирует подтверждение веса покупателем и создание итогового поручения.
func (h *Handler) ConfirmWeight(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	transactionID, err := urlParamInt64(r, "id")
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	txn, order, err := h.service.ConfirmWeight(r.Context(), userID, transactionID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, confirmWeightResponse{
		Transaction:  toTransactionResponse(txn),
		PaymentOrder: toPaymentOrderResponse(order),
	})
}

// GetTransactions возвращает сделки текущего участника.
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	transactions, err := h.service.ListTransactions(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if len(transactions) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]transactionResponse, 0, len(transactions))
	for i := range transactions {
		resp = append(resp, toTransactionResponse(&transactions[i]))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// GetTransaction возвращает одну сделку её участнику или банку.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}
	role, _ := middleware.GetRoleFromContext(r.Context())

	transactionID, err := urlParamInt64(r, "id")
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	txn, err := h.service.GetTransaction(r.Context(), userID, role, transactionID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, toTransactionResponse(txn))
}
