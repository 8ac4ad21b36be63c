package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/ganadera-system/internal/middleware"
	"github.com/mmeshcher/ganadera-system/internal/model"
	"github.com/mmeshcher/ganadera-system/internal/settlement"
)

type paymentOrderResponse struct {
	ID              int64           `json:"id"`
	TransactionID   int64           `json:"transaction_id"`
	OrderType       string          `json:"order_type"`
	Status          string          `json:"status"`
	Amount          decimal.Decimal `json:"amount"`
	BankReference   *string         `json:"bank_reference,omitempty"`
	BankAPIResponse *string         `json:"bank_api_response,omitempty"`
	FailureReason   *string         `json:"failure_reason,omitempty"`
	CreatedAt       string          `json:"created_at"`
	CompletedAt     *string         `json:"completed_at,omitempty"`
}

func toPaymentOrderResponse(o *model.PaymentOrder) paymentOrderResponse {
	return paymentOrderResponse{
		ID:              o.ID,
		TransactionID:   o.TransactionID,
		OrderType:       string(o.OrderType),
		Status:          string(o.Status),
		Amount:          settlement.FromCentavos(o.AmountCentavos),
		BankReference:   o.BankReference,
		BankAPIResponse: o.BankAPIResponse,
		FailureReason:   o.FailureReason,
		CreatedAt:       o.CreatedAt.Format(time.RFC3339),
		CompletedAt:     optTime(o.CompletedAt),
	}
}

// GetPaymentOrders возвращает поручения сделки её участнику или банку.
func (h *Handler) GetPaymentOrders(w http.ResponseWriter, r *http.Request) {
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

	orders, err := h.service.ListPaymentOrders(r.Context(), userID, role, transactionID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if len(orders) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]paymentOrderResponse, 0, len(orders))
	for i := range orders {
		resp = append(resp, toPaymentOrderResponse(&orders[i]))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

type processOrderRequest struct {
	BankReference string `json:"bank_reference"`
}

// ProcessOrder переводит поручение в обработку банком.
func (h *Handler) ProcessOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := urlParamInt64(r, "id")
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req processOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	order, err := h.service.ProcessOrder(r.Context(), orderID, req.BankReference)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, toPaymentOrderResponse(order))
}

type completeOrderRequest struct {
	BankAPIResponse string `json:"bank_api_response"`
}

// CompleteOrder завершает поручение ответом банковского API.
func (h *Handler) CompleteOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := urlParamInt64(r, "id")
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req completeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	order, err := h.service.CompleteOrder(r.Context(), orderID, req.BankAPIResponse)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, toPaymentOrderResponse(order))
}

type failOrderRequest struct {
	Reason string `json:"reason"`
}

// FailOrder помечает поручение неуспешным с указанием причины.
func (h *Handler) FailOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := urlParamInt64(r, "id")
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req failOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	order, err := h.service.FailOrder(r.Context(), orderID, req.Reason)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, toPaymentOrderResponse(order))
}
