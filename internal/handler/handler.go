// Package handler содержит HTTP-обработчики API площадки торговли скотом.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/ganadera-system/internal/middleware"
	"github.com/mmeshcher/ganadera-system/internal/model"
	"github.com/mmeshcher/ganadera-system/internal/repository"
	"github.com/mmeshcher/ganadera-system/internal/service"
	"github.com/mmeshcher/ganadera-system/internal/settlement"
	"github.com/mmeshcher/ganadera-system/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	CreateOffer(ctx context.Context, p service.CreateOfferParams) (*model.Offer, error)
	CounterOffer(ctx context.Context, sellerID, offerID, priceCentavos int64) (*model.Offer, error)
	RespondToCounter(ctx context.Context, buyerID, offerID int64, accept bool) (*model.Transaction, error)
	UpdateOfferStatus(ctx context.Context, sellerID, offerID int64, status model.OfferStatus) (*model.Transaction, error)
	CancelOffer(ctx context.Context, buyerID, offerID int64) error
	ListOffers(ctx context.Context, userID int64, role model.Role) ([]model.Offer, error)
	GetNegotiationHistory(ctx context.Context, userID, offerID int64) ([]model.NegotiationEntry, error)
	DirectPurchase(ctx context.Context, buyerID, loteID int64, payment service.PaymentDetails) (*model.Transaction, error)
	SubmitActualWeight(ctx context.Context, sellerID, transactionID, actualWeightKg int64, balanceTicketURL string) error
	ConfirmWeight(ctx context.Context, buyerID, transactionID int64) (*model.Transaction, *model.PaymentOrder, error)
	GetTransaction(ctx context.Context, userID int64, role model.Role, transactionID int64) (*model.Transaction, error)
	ListTransactions(ctx context.Context, userID int64) ([]model.Transaction, error)
	ListPaymentOrders(ctx context.Context, userID int64, role model.Role, transactionID int64) ([]model.PaymentOrder, error)
	ProcessOrder(ctx context.Context, orderID int64, bankReference string) (*model.PaymentOrder, error)
	CompleteOrder(ctx context.Context, orderID int64, bankAPIResponse string) (*model.PaymentOrder, error)
	FailOrder(ctx context.Context, orderID int64, reason string) (*model.PaymentOrder, error)
}

// Handler реализует HTTP-обработчики API площадки.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

// moneyToCentavos переводит денежную сумму из JSON в сентаво.
// Суммы с дробной частью мельче сентаво отклоняются до каких-либо вычислений;
// хвостовые нули ("495.000") на значение не влияют и проходят.
func moneyToCentavos(amount decimal.Decimal) (int64, error) {
	if !amount.Equal(amount.Truncate(2)) {
		return 0, fmt.Errorf("amount has more than two decimal places")
	}
	return settlement.ToCentavos(amount), nil
}

func urlParamInt64(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}

// writeError переводит ошибку бизнес-логики в HTTP-статус.
// Конфликты состояния и повторы завершённых переходов отделены от ошибок валидации,
// чтобы клиент мог отличить исправимый ввод от неповторяемой операции.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidPrice),
		errors.Is(err, service.ErrInvalidWeight),
		errors.Is(err, service.ErrMissingTicket),
		errors.Is(err, service.ErrInvalidStatusValue),
		errors.Is(err, service.ErrInvalidPaymentMethod),
		errors.Is(err, service.ErrEmptyBankPayload):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, service.ErrInvalidInstrument):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, service.ErrForbidden),
		errors.Is(err, service.ErrCertificationRequired):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, repository.ErrLoteNotFound),
		errors.Is(err, repository.ErrOfferNotFound),
		errors.Is(err, repository.ErrTransactionNotFound),
		errors.Is(err, repository.ErrOrderNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, repository.ErrOfferAlreadyPending),
		errors.Is(err, repository.ErrInvalidTransition),
		errors.Is(err, repository.ErrLoteUnavailable),
		errors.Is(err, repository.ErrOrderAlreadyFinal),
		errors.Is(err, repository.ErrDuplicateOrder):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		h.logger.Error("internal error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response", zap.Error(err))
	}
}

type createOfferRequest struct {
	OfferedPrice    decimal.Decimal `json:"offered_price"`
	PaymentTermDays int             `json:"payment_term_days"`
	PaymentMethod   string          `json:"payment_method"`
	CBU             string          `json:"cbu,omitempty"`
	CardNumber      string          `json:"card_number,omitempty"`
}

type offerResponse struct {
	ID                    int64            `json:"id"`
	LoteID                int64            `json:"lote_id"`
	BuyerID               int64            `json:"buyer_id"`
	SellerID              int64            `json:"seller_id"`
	OfferedPrice          decimal.Decimal  `json:"offered_price"`
	OriginalPrice         decimal.Decimal  `json:"original_price"`
	CounterOfferPrice     *decimal.Decimal `json:"counter_offer_price,omitempty"`
	Status                string           `json:"status"`
	IsCounterOffer        bool             `json:"is_counter_offer"`
	PaymentTermDays       int              `json:"payment_term_days"`
	PaymentMethod         string           `json:"payment_method"`
	HasBuyerCertification bool             `json:"has_buyer_certification"`
	CardBrand             string           `json:"card_brand,omitempty"`
	CreatedAt             string           `json:"created_at"`
}

func toOfferResponse(o *model.Offer) offerResponse {
	resp := offerResponse{
		ID:                    o.ID,
		LoteID:                o.LoteID,
		BuyerID:               o.BuyerID,
		SellerID:              o.SellerID,
		OfferedPrice:          settlement.FromCentavos(o.OfferedPriceCentavos),
		OriginalPrice:         settlement.FromCentavos(o.OriginalPriceCentavos),
		Status:                string(o.Status),
		IsCounterOffer:        o.IsCounterOffer,
		PaymentTermDays:       o.PaymentTermDays,
		PaymentMethod:         string(o.PaymentMethod),
		HasBuyerCertification: o.HasBuyerCertification,
		CreatedAt:             o.CreatedAt.Format(time.RFC3339),
	}
	if o.CounterOfferPriceCentavos != nil {
		p := settlement.FromCentavos(*o.CounterOfferPriceCentavos)
		resp.CounterOfferPrice = &p
	}
	return resp
}

// CreateOffer создаёт оферту покупателя по лоту.
func (h *Handler) CreateOffer(w http.ResponseWriter, r *http.Request) {
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

	var req createOfferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	priceCentavos, err := moneyToCentavos(req.OfferedPrice)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	offer, err := h.service.CreateOffer(r.Context(), service.CreateOfferParams{
		LoteID:          loteID,
		BuyerID:         userID,
		PriceCentavos:   priceCentavos,
		PaymentTermDays: req.PaymentTermDays,
		Payment: service.PaymentDetails{
			Method:     model.PaymentMethod(req.PaymentMethod),
			CBU:        req.CBU,
			CardNumber: req.CardNumber,
		},
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := toOfferResponse(offer)
	if offer.PaymentMethod == model.PaymentMethodTarjeta {
		resp.CardBrand = string(validation.DetectCardBrand(req.CardNumber))
	}

	h.writeJSON(w, http.StatusCreated, resp)
}

type counterOfferRequest struct {
	Price decimal.Decimal `json:"price"`
}

// CounterOffer сохраняет контрпредложение продавца по ожидающей оферте.
func (h *Handler) CounterOffer(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	offerID, err := urlParamInt64(r, "id")
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req counterOfferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	priceCentavos, err := moneyToCentavos(req.Price)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	offer, err := h.service.CounterOffer(r.Context(), userID, offerID, priceCentavos)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, toOfferResponse(offer))
}

type respondRequest struct {
	Accept bool `json:"accept"`
}

// RespondToCounter фиксирует ответ покупателя на контрпредложение продавца.
func (h *Handler) RespondToCounter(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	offerID, err := urlParamInt64(r, "id")
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req respondRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	txn, err := h.service.RespondToCounter(r.Context(), userID, offerID, req.Accept)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if txn == nil {
		w.WriteHeader(http.StatusOK)
		return
	}

	h.writeJSON(w, http.StatusCreated, toTransactionResponse(txn))
}

type offerStatusRequest struct {
	Status string `json:"status"`
}

// UpdateOfferStatus фиксирует решение продавца по ожидающей оферте.
func (h *Handler) UpdateOfferStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	offerID, err := urlParamInt64(r, "id")
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req offerStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	txn, err := h.service.UpdateOfferStatus(r.Context(), userID, offerID, model.OfferStatus(req.Status))
	if err != nil {
		h.writeError(w, err)
		return
	}

	if txn == nil {
		w.WriteHeader(http.StatusOK)
		return
	}

	h.writeJSON(w, http.StatusCreated, toTransactionResponse(txn))
}

// CancelOffer отзывает ещё не рассмотренную оферту покупателя.
func (h *Handler) CancelOffer(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	offerID, err := urlParamInt64(r, "id")
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.CancelOffer(r.Context(), userID, offerID); err != nil {
		h.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// GetOffers возвращает оферты текущего участника.
func (h *Handler) GetOffers(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}
	role, _ := middleware.GetRoleFromContext(r.Context())

	offers, err := h.service.ListOffers(r.Context(), userID, role)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if len(offers) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]offerResponse, 0, len(offers))
	for i := range offers {
		resp = append(resp, toOfferResponse(&offers[i]))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

type negotiationEntryResponse struct {
	Price     decimal.Decimal `json:"price"`
	Proposer  string          `json:"proposer"`
	CreatedAt string          `json:"created_at"`
}

// GetNegotiationHistory возвращает историю торга по оферте.
func (h *Handler) GetNegotiationHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	offerID, err := urlParamInt64(r, "id")
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	history, err := h.service.GetNegotiationHistory(r.Context(), userID, offerID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := make([]negotiationEntryResponse, 0, len(history))
	for _, e := range history {
		resp = append(resp, negotiationEntryResponse{
			Price:     settlement.FromCentavos(e.PriceCentavos),
			Proposer:  string(e.Proposer),
			CreatedAt: e.CreatedAt.Format(time.RFC3339),
		})
	}

	h.writeJSON(w, http.StatusOK, resp)
}
