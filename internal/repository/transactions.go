package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/ganadera-system/internal/model"
	"github.com/mmeshcher/ganadera-system/internal/settlement"
)

const transactionColumns = `id, lote_id, offer_id, buyer_id, seller_id, agreed_price_per_kg_centavos,
	estimated_weight_kg, estimated_total_centavos, actual_weight_kg, balance_ticket_url,
	final_amount_centavos, iva_centavos, platform_commission_centavos, bank_commission_centavos,
	seller_net_centavos, status, buyer_confirmed_weight, weight_updated_at, buyer_confirmed_at, created_at`

func scanTransaction(row pgx.Row) (*model.Transaction, error) {
	var t model.Transaction
	err := row.Scan(
		&t.ID, &t.LoteID, &t.OfferID, &t.BuyerID, &t.SellerID, &t.AgreedPricePerKgCentavos,
		&t.EstimatedWeightKg, &t.EstimatedTotalCentavos, &t.ActualWeightKg, &t.BalanceTicketURL,
		&t.FinalAmountCentavos, &t.IVACentavos, &t.PlatformCommissionCentavos, &t.BankCommissionCentavos,
		&t.SellerNetCentavos, &t.Status, &t.BuyerConfirmedWeight, &t.WeightUpdatedAt, &t.BuyerConfirmedAt, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// AcceptOffer принимает оферту и материализует сделку в одной транзакции БД:
// оферта переводится в aceptada, лот закрепляется за сделкой (первое принятие выигрывает),
// остальные живые оферты по лоту отклоняются, создаётся сделка и предварительное
// платёжное поручение на расчётную сумму.
func (r *PostgresRepository) AcceptOffer(ctx context.Context, offerID int64, from model.OfferStatus) (*model.Transaction, error) {
	var txn *model.Transaction
	err := r.withRetry(ctx, func() error {
		t, err := r.acceptOffer(ctx, offerID, from)
		if err != nil {
			return err
		}
		txn = t
		return nil
	})
	return txn, err
}

func (r *PostgresRepository) acceptOffer(ctx context.Context, offerID int64, from model.OfferStatus) (*model.Transaction, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	cmdTag, err := tx.Exec(ctx,
		`UPDATE offers SET status = $2 WHERE id = $1 AND status = $3`,
		offerID, string(model.OfferStatusAceptada), string(from),
	)
	if err != nil {
		return nil, fmt.Errorf("accept offer: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return nil, r.offerConflict(ctx, offerID)
	}

	o, err := scanOffer(tx.QueryRow(ctx, `SELECT `+offerColumns+` FROM offers WHERE id = $1`, offerID))
	if err != nil {
		return nil, fmt.Errorf("reload offer: %w", err)
	}

	lote, err := r.commitLote(ctx, tx, o.LoteID)
	if err != nil {
		return nil, err
	}

	// Остальные живые оферты по лоту отклоняются: лот закреплён.
	_, err = tx.Exec(ctx,
		`UPDATE offers SET status = $3
		 WHERE lote_id = $1 AND id <> $2 AND status IN ($4, $5)`,
		o.LoteID, offerID, string(model.OfferStatusRechazada),
		string(model.OfferStatusPendiente), string(model.OfferStatusCounterOffered),
	)
	if err != nil {
		return nil, fmt.Errorf("reject sibling offers: %w", err)
	}

	txn, err := insertTransaction(ctx, tx, lote, &o.ID, o.BuyerID, o.OfferedPriceCentavos)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return txn, nil
}

// CreateDirectTransaction материализует сделку прямой покупки по базовой цене лота.
func (r *PostgresRepository) CreateDirectTransaction(ctx context.Context, loteID, buyerID int64) (*model.Transaction, error) {
	var txn *model.Transaction
	err := r.withRetry(ctx, func() error {
		t, err := r.createDirectTransaction(ctx, loteID, buyerID)
		if err != nil {
			return err
		}
		txn = t
		return nil
	})
	return txn, err
}

func (r *PostgresRepository) createDirectTransaction(ctx context.Context, loteID, buyerID int64) (*model.Transaction, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	lote, err := r.commitLote(ctx, tx, loteID)
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx,
		`UPDATE offers SET status = $2
		 WHERE lote_id = $1 AND status IN ($3, $4)`,
		loteID, string(model.OfferStatusRechazada),
		string(model.OfferStatusPendiente), string(model.OfferStatusCounterOffered),
	)
	if err != nil {
		return nil, fmt.Errorf("reject pending offers: %w", err)
	}

	txn, err := insertTransaction(ctx, tx, lote, nil, buyerID, lote.BasePriceCentavos)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return txn, nil
}

// commitLote закрепляет лот за сделкой. Условное обновление disponible → comprometido
// допускает ровно одно закрепление при конкурентных принятиях.
func (r *PostgresRepository) commitLote(ctx context.Context, tx pgx.Tx, loteID int64) (*model.Lote, error) {
	cmdTag, err := tx.Exec(ctx,
		`UPDATE lotes SET status = $2 WHERE id = $1 AND status = $3`,
		loteID, string(model.LoteStatusComprometido), string(model.LoteStatusDisponible),
	)
	if err != nil {
		return nil, fmt.Errorf("commit lote: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		var status string
		err := r.pool.QueryRow(ctx, `SELECT status FROM lotes WHERE id = $1`, loteID).Scan(&status)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrLoteNotFound
			}
			return nil, fmt.Errorf("check lote status: %w", err)
		}
		return nil, ErrLoteUnavailable
	}

	var l model.Lote
	err = tx.QueryRow(ctx,
		`SELECT id, seller_id, total_count, average_weight_kg, base_price_centavos, status, created_at
		 FROM lotes WHERE id = $1`,
		loteID,
	).Scan(&l.ID, &l.SellerID, &l.TotalCount, &l.AverageWeightKg, &l.BasePriceCentavos, &l.Status, &l.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("reload lote: %w", err)
	}

	return &l, nil
}

// insertTransaction создаёт сделку с зафиксированным снимком лота и предварительное поручение.
func insertTransaction(ctx context.Context, tx pgx.Tx, lote *model.Lote, offerID *int64, buyerID, priceCentavos int64) (*model.Transaction, error) {
	estimatedWeight := lote.TotalCount * lote.AverageWeightKg
	estimatedTotal := settlement.EstimatedTotalCentavos(lote.TotalCount, lote.AverageWeightKg, priceCentavos)

	t := &model.Transaction{
		LoteID:                   lote.ID,
		OfferID:                  offerID,
		BuyerID:                  buyerID,
		SellerID:                 lote.SellerID,
		AgreedPricePerKgCentavos: priceCentavos,
		EstimatedWeightKg:        estimatedWeight,
		EstimatedTotalCentavos:   estimatedTotal,
	}

	err := tx.QueryRow(ctx,
		`INSERT INTO transactions (lote_id, offer_id, buyer_id, seller_id, agreed_price_per_kg_centavos,
		                           estimated_weight_kg, estimated_total_centavos)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, status, created_at`,
		t.LoteID, t.OfferID, t.BuyerID, t.SellerID, t.AgreedPricePerKgCentavos,
		t.EstimatedWeightKg, t.EstimatedTotalCentavos,
	).Scan(&t.ID, &t.Status, &t.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert transaction: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO payment_orders (transaction_id, order_type, amount_centavos) VALUES ($1, $2, $3)`,
		t.ID, string(model.OrderTypeProvisional), t.EstimatedTotalCentavos,
	)
	if err != nil {
		return nil, fmt.Errorf("insert provisional order: %w", err)
	}

	return t, nil
}

// GetTransaction возвращает сделку по идентификатору.
func (r *PostgresRepository) GetTransaction(ctx context.Context, transactionID int64) (*model.Transaction, error) {
	t, err := scanTransaction(r.pool.QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1`,
		transactionID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return t, nil
}

// ListTransactionsByParticipant возвращает сделки, где участник выступает покупателем или продавцом.
func (r *PostgresRepository) ListTransactionsByParticipant(ctx context.Context, userID int64) ([]model.Transaction, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE buyer_id = $1 OR seller_id = $1
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select transactions: %w", err)
	}
	defer rows.Close()

	var res []model.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		res = append(res, *t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// SubmitActualWeight сохраняет фактический вес и документ весовой, переводя сделку в weight_confirmed.
func (r *PostgresRepository) SubmitActualWeight(ctx context.Context, transactionID, actualWeightKg int64, balanceTicketURL string, now time.Time) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE transactions
		 SET actual_weight_kg = $2, balance_ticket_url = $3, weight_updated_at = $4, status = $5
		 WHERE id = $1 AND status = $6`,
		transactionID, actualWeightKg, balanceTicketURL, now,
		string(model.TransactionStatusWeightConfirmed), string(model.TransactionStatusPendingWeight),
	)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return r.transactionConflict(ctx, transactionID)
	}

	return nil
}

// ConfirmWeight фиксирует подтверждение веса покупателем: сохраняет суммы расчёта,
// переводит сделку в payment_pending и создаёт итоговое платёжное поручение.
// Пока по сделке есть незавершённое поручение, создание нового отклоняется.
// Из payment_pending допускается перевыпуск итогового поручения после того,
// как банк пометил предыдущее неуспешным.
func (r *PostgresRepository) ConfirmWeight(ctx context.Context, transactionID int64, amounts settlement.Amounts, now time.Time) (*model.PaymentOrder, error) {
	var order *model.PaymentOrder
	err := r.withRetry(ctx, func() error {
		po, err := r.confirmWeight(ctx, transactionID, amounts, now)
		if err != nil {
			return err
		}
		order = po
		return nil
	})
	return order, err
}

func (r *PostgresRepository) confirmWeight(ctx context.Context, transactionID int64, amounts settlement.Amounts, now time.Time) (*model.PaymentOrder, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	cmdTag, err := tx.Exec(ctx,
		`UPDATE transactions
		 SET final_amount_centavos = $2, iva_centavos = $3, platform_commission_centavos = $4,
		     bank_commission_centavos = $5, seller_net_centavos = $6,
		     buyer_confirmed_weight = TRUE, buyer_confirmed_at = $7, status = $8
		 WHERE id = $1 AND status = ANY($9)`,
		transactionID,
		amounts.FinalAmountCentavos, amounts.IVACentavos, amounts.PlatformCommissionCentavos,
		amounts.BankCommissionCentavos, amounts.SellerNetCentavos, now,
		string(model.TransactionStatusPaymentPending),
		[]string{string(model.TransactionStatusWeightConfirmed), string(model.TransactionStatusPaymentPending)},
	)
	if err != nil {
		return nil, fmt.Errorf("update transaction: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return nil, r.transactionConflict(ctx, transactionID)
	}

	states, err := transactionOrderStates(ctx, tx, transactionID)
	if err != nil {
		return nil, err
	}
	if err := admitFinalOrder(states); err != nil {
		return nil, err
	}

	o := &model.PaymentOrder{
		TransactionID:  transactionID,
		OrderType:      model.OrderTypeFinal,
		AmountCentavos: amounts.FinalAmountCentavos,
	}
	err = tx.QueryRow(ctx,
		`INSERT INTO payment_orders (transaction_id, order_type, amount_centavos)
		 VALUES ($1, $2, $3)
		 RETURNING id, status, created_at`,
		o.TransactionID, string(o.OrderType), o.AmountCentavos,
	).Scan(&o.ID, &o.Status, &o.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert final order: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return o, nil
}

// transactionConflict уточняет причину несработавшего условного обновления сделки.
func (r *PostgresRepository) transactionConflict(ctx context.Context, transactionID int64) error {
	var status string
	err := r.pool.QueryRow(ctx, `SELECT status FROM transactions WHERE id = $1`, transactionID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrTransactionNotFound
		}
		return fmt.Errorf("check transaction status: %w", err)
	}
	return fmt.Errorf("%w: transaction status is %s", ErrInvalidTransition, status)
}
