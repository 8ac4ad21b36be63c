package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mmeshcher/ganadera-system/internal/model"
)

const offerColumns = `id, lote_id, buyer_id, seller_id, offered_price_centavos, original_price_centavos,
	counter_offer_price_centavos, status, is_counter_offer, payment_term_days, payment_method,
	has_buyer_certification, created_at`

func scanOffer(row pgx.Row) (*model.Offer, error) {
	var o model.Offer
	err := row.Scan(
		&o.ID, &o.LoteID, &o.BuyerID, &o.SellerID,
		&o.OfferedPriceCentavos, &o.OriginalPriceCentavos, &o.CounterOfferPriceCentavos,
		&o.Status, &o.IsCounterOffer, &o.PaymentTermDays, &o.PaymentMethod,
		&o.HasBuyerCertification, &o.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// CreateOffer сохраняет новую оферту и первую запись истории торга.
// Частичный уникальный индекс гарантирует не более одной живой оферты на пару (лот, покупатель).
func (r *PostgresRepository) CreateOffer(ctx context.Context, o *model.Offer) (*model.Offer, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`INSERT INTO offers (lote_id, buyer_id, seller_id, offered_price_centavos, original_price_centavos,
		                     payment_term_days, payment_method, has_buyer_certification)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, status, created_at`,
		o.LoteID, o.BuyerID, o.SellerID, o.OfferedPriceCentavos, o.OriginalPriceCentavos,
		o.PaymentTermDays, string(o.PaymentMethod), o.HasBuyerCertification,
	).Scan(&o.ID, &o.Status, &o.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return nil, ErrOfferAlreadyPending
		}
		return nil, fmt.Errorf("insert offer: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO negotiation_history (offer_id, price_centavos, proposer) VALUES ($1, $2, $3)`,
		o.ID, o.OfferedPriceCentavos, string(model.RoleComprador),
	)
	if err != nil {
		return nil, fmt.Errorf("insert negotiation entry: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return o, nil
}

// GetOffer возвращает оферту по идентификатору.
func (r *PostgresRepository) GetOffer(ctx context.Context, offerID int64) (*model.Offer, error) {
	o, err := scanOffer(r.pool.QueryRow(ctx,
		`SELECT `+offerColumns+` FROM offers WHERE id = $1`,
		offerID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOfferNotFound
		}
		return nil, fmt.Errorf("get offer: %w", err)
	}
	return o, nil
}

// ListOffersByBuyer возвращает оферты, созданные покупателем.
func (r *PostgresRepository) ListOffersByBuyer(ctx context.Context, buyerID int64) ([]model.Offer, error) {
	return r.listOffers(ctx, `buyer_id = $1`, buyerID)
}

// ListOffersBySeller возвращает оферты по лотам продавца.
func (r *PostgresRepository) ListOffersBySeller(ctx context.Context, sellerID int64) ([]model.Offer, error) {
	return r.listOffers(ctx, `seller_id = $1`, sellerID)
}

func (r *PostgresRepository) listOffers(ctx context.Context, where string, arg any) ([]model.Offer, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+offerColumns+` FROM offers WHERE `+where+` ORDER BY created_at DESC`,
		arg,
	)
	if err != nil {
		return nil, fmt.Errorf("select offers: %w", err)
	}
	defer rows.Close()

	var res []model.Offer
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan offer: %w", err)
		}
		res = append(res, *o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// GetNegotiationHistory возвращает историю торга по оферте в порядке её ведения.
func (r *PostgresRepository) GetNegotiationHistory(ctx context.Context, offerID int64) ([]model.NegotiationEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, offer_id, price_centavos, proposer, created_at
		 FROM negotiation_history
		 WHERE offer_id = $1
		 ORDER BY created_at, id`,
		offerID,
	)
	if err != nil {
		return nil, fmt.Errorf("select negotiation history: %w", err)
	}
	defer rows.Close()

	var res []model.NegotiationEntry
	for rows.Next() {
		var e model.NegotiationEntry
		if err := rows.Scan(&e.ID, &e.OfferID, &e.PriceCentavos, &e.Proposer, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan negotiation entry: %w", err)
		}
		res = append(res, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// CounterOffer переводит оферту в counter_offered, сохраняя прежнюю цену покупателя.
// Условное обновление по статусу гарантирует ровно один успешный переход при гонке.
func (r *PostgresRepository) CounterOffer(ctx context.Context, offerID int64, sellerPriceCentavos int64) (*model.Offer, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	cmdTag, err := tx.Exec(ctx,
		`UPDATE offers
		 SET counter_offer_price_centavos = offered_price_centavos,
		     offered_price_centavos = $2,
		     is_counter_offer = TRUE,
		     status = $3
		 WHERE id = $1 AND status = $4`,
		offerID, sellerPriceCentavos,
		string(model.OfferStatusCounterOffered), string(model.OfferStatusPendiente),
	)
	if err != nil {
		return nil, fmt.Errorf("update offer: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return nil, r.offerConflict(ctx, offerID)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO negotiation_history (offer_id, price_centavos, proposer) VALUES ($1, $2, $3)`,
		offerID, sellerPriceCentavos, string(model.RoleVendedor),
	)
	if err != nil {
		return nil, fmt.Errorf("insert negotiation entry: %w", err)
	}

	o, err := scanOffer(tx.QueryRow(ctx, `SELECT `+offerColumns+` FROM offers WHERE id = $1`, offerID))
	if err != nil {
		return nil, fmt.Errorf("reload offer: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return o, nil
}

// RejectOffer переводит оферту в rechazada из одного из допустимых статусов.
func (r *PostgresRepository) RejectOffer(ctx context.Context, offerID int64, from ...model.OfferStatus) error {
	return r.transitionOffer(ctx, offerID, model.OfferStatusRechazada, from)
}

// CancelOffer отзывает ещё не рассмотренную оферту покупателя.
func (r *PostgresRepository) CancelOffer(ctx context.Context, offerID int64) error {
	return r.transitionOffer(ctx, offerID, model.OfferStatusCancelada, []model.OfferStatus{model.OfferStatusPendiente})
}

func (r *PostgresRepository) transitionOffer(ctx context.Context, offerID int64, to model.OfferStatus, from []model.OfferStatus) error {
	fromStatuses := make([]string, 0, len(from))
	for _, s := range from {
		fromStatuses = append(fromStatuses, string(s))
	}

	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE offers SET status = $2 WHERE id = $1 AND status = ANY($3)`,
		offerID, string(to), fromStatuses,
	)
	if err != nil {
		return fmt.Errorf("update offer: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return r.offerConflict(ctx, offerID)
	}

	return nil
}

// offerConflict уточняет причину несработавшего условного обновления оферты.
func (r *PostgresRepository) offerConflict(ctx context.Context, offerID int64) error {
	var status string
	err := r.pool.QueryRow(ctx, `SELECT status FROM offers WHERE id = $1`, offerID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrOfferNotFound
		}
		return fmt.Errorf("check offer status: %w", err)
	}
	return fmt.Errorf("%w: offer status is %s", ErrInvalidTransition, status)
}
