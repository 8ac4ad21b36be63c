package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/ganadera-system/internal/model"
)

const orderColumns = `id, transaction_id, order_type, status, amount_centavos,
	bank_reference, bank_api_response, failure_reason, created_at, completed_at`

func scanOrder(row pgx.Row) (*model.PaymentOrder, error) {
	var o model.PaymentOrder
	err := row.Scan(
		&o.ID, &o.TransactionID, &o.OrderType, &o.Status, &o.AmountCentavos,
		&o.BankReference, &o.BankAPIResponse, &o.FailureReason, &o.CreatedAt, &o.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// orderState содержит тип и статус одного поручения сделки.
type orderState struct {
	orderType model.PaymentOrderType
	status    model.PaymentOrderStatus
}

// admitFinalOrder решает, допустим ли выпуск итогового поручения при данном наборе
// поручений сделки: незавершённое поручение блокирует выпуск, завершённое итоговое
// делает его неповторяемым. Набор только из неуспешных и завершённых предварительных
// поручений допускает выпуск, в том числе повторный после неуспеха банка.
func admitFinalOrder(orders []orderState) error {
	for _, o := range orders {
		if !o.status.IsTerminal() {
			return ErrDuplicateOrder
		}
		if o.orderType == model.OrderTypeFinal && o.status == model.OrderStatusCompleted {
			return ErrOrderAlreadyFinal
		}
	}
	return nil
}

func transactionOrderStates(ctx context.Context, tx pgx.Tx, transactionID int64) ([]orderState, error) {
	rows, err := tx.Query(ctx,
		`SELECT order_type, status FROM payment_orders WHERE transaction_id = $1`,
		transactionID,
	)
	if err != nil {
		return nil, fmt.Errorf("select order states: %w", err)
	}
	defer rows.Close()

	var res []orderState
	for rows.Next() {
		var s orderState
		if err := rows.Scan(&s.orderType, &s.status); err != nil {
			return nil, fmt.Errorf("scan order state: %w", err)
		}
		res = append(res, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// ListPaymentOrdersByTransaction возвращает поручения сделки в порядке создания.
func (r *PostgresRepository) ListPaymentOrdersByTransaction(ctx context.Context, transactionID int64) ([]model.PaymentOrder, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+orderColumns+` FROM payment_orders
		 WHERE transaction_id = $1
		 ORDER BY created_at, id`,
		transactionID,
	)
	if err != nil {
		return nil, fmt.Errorf("select payment orders: %w", err)
	}
	defer rows.Close()

	var res []model.PaymentOrder
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment order: %w", err)
		}
		res = append(res, *o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// ProcessOrder переводит поручение pending → processing с банковской ссылкой.
// Повтор вызова после успеха попадает в конечный или уже обработанный статус и отклоняется.
func (r *PostgresRepository) ProcessOrder(ctx context.Context, orderID int64, bankReference string) (*model.PaymentOrder, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx,
		`UPDATE payment_orders
		 SET status = $2, bank_reference = $3
		 WHERE id = $1 AND status = $4
		 RETURNING `+orderColumns,
		orderID, string(model.OrderStatusProcessing), bankReference, string(model.OrderStatusPending),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.orderConflict(ctx, orderID)
		}
		return nil, fmt.Errorf("process order: %w", err)
	}
	return o, nil
}

// CompleteOrder переводит поручение processing → completed. Для итогового поручения
// в той же транзакции БД сделка переводится в completed.
func (r *PostgresRepository) CompleteOrder(ctx context.Context, orderID int64, bankAPIResponse string, now time.Time) (*model.PaymentOrder, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	o, err := scanOrder(tx.QueryRow(ctx,
		`UPDATE payment_orders
		 SET status = $2, bank_api_response = $3, completed_at = $4
		 WHERE id = $1 AND status = $5
		 RETURNING `+orderColumns,
		orderID, string(model.OrderStatusCompleted), bankAPIResponse, now, string(model.OrderStatusProcessing),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.orderConflict(ctx, orderID)
		}
		return nil, fmt.Errorf("complete order: %w", err)
	}

	if o.OrderType == model.OrderTypeFinal {
		cmdTag, err := tx.Exec(ctx,
			`UPDATE transactions SET status = $2 WHERE id = $1 AND status = $3`,
			o.TransactionID, string(model.TransactionStatusCompleted), string(model.TransactionStatusPaymentPending),
		)
		if err != nil {
			return nil, fmt.Errorf("complete transaction: %w", err)
		}
		if cmdTag.RowsAffected() == 0 {
			return nil, r.transactionConflict(ctx, o.TransactionID)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return o, nil
}

// FailOrder переводит поручение в failed из pending или processing с указанием причины.
func (r *PostgresRepository) FailOrder(ctx context.Context, orderID int64, reason string) (*model.PaymentOrder, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx,
		`UPDATE payment_orders
		 SET status = $2, failure_reason = $3
		 WHERE id = $1 AND status IN ($4, $5)
		 RETURNING `+orderColumns,
		orderID, string(model.OrderStatusFailed), reason,
		string(model.OrderStatusPending), string(model.OrderStatusProcessing),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.orderConflict(ctx, orderID)
		}
		return nil, fmt.Errorf("fail order: %w", err)
	}
	return o, nil
}

// orderConflict уточняет причину несработавшего условного обновления поручения.
func (r *PostgresRepository) orderConflict(ctx context.Context, orderID int64) error {
	var status model.PaymentOrderStatus
	err := r.pool.QueryRow(ctx, `SELECT status FROM payment_orders WHERE id = $1`, orderID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrOrderNotFound
		}
		return fmt.Errorf("check order status: %w", err)
	}
	if status.IsTerminal() {
		return fmt.Errorf("%w: order status is %s", ErrOrderAlreadyFinal, status)
	}
	return fmt.Errorf("%w: order status is %s", ErrInvalidTransition, status)
}
