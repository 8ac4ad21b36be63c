// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mmeshcher/ganadera-system/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrLoteNotFound возвращается, если лот не найден.
var (
	ErrLoteNotFound = errors.New("lote not found")
	// ErrOfferNotFound возвращается, если оферта не найдена.
	ErrOfferNotFound = errors.New("offer not found")
	// ErrTransactionNotFound возвращается, если сделка не найдена.
	ErrTransactionNotFound = errors.New("transaction not found")
	// ErrOrderNotFound возвращается, если платёжное поручение не найдено.
	ErrOrderNotFound = errors.New("payment order not found")
	// ErrCertificationNotFound возвращается при отсутствии записи о сертификации покупателя.
	ErrCertificationNotFound = errors.New("buyer certification not found")
	// ErrOfferAlreadyPending возвращается, если у покупателя уже есть живая оферта по лоту.
	ErrOfferAlreadyPending = errors.New("offer already pending for this lote")
	// ErrInvalidTransition возвращается, если текущий статус не допускает запрошенный переход.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrLoteUnavailable возвращается, если лот уже закреплён за другой принятой офертой.
	ErrLoteUnavailable = errors.New("lote is not available")
	// ErrOrderAlreadyFinal возвращается при попытке перевести поручение из конечного статуса.
	ErrOrderAlreadyFinal = errors.New("payment order already in final status")
	// ErrDuplicateOrder возвращается при попытке создать поручение, пока предыдущее не завершено.
	ErrDuplicateOrder = errors.New("transaction already has an active payment order")
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// withRetry повторяет операцию при сбоях сериализации, дедлоках и сетевых ошибках.
func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				if i < len(delays) {
					time.Sleep(delays[i])
					continue
				}
			}
		}

		if isConnectionError(err) {
			if i < len(delays) {
				time.Sleep(delays[i])
				continue
			}
		}

		break
	}
	return err
}

func isConnectionError(err error) bool {
	// Упрощенная проверка на ошибки соединения
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// GetLote возвращает снимок лота по идентификатору.
func (r *PostgresRepository) GetLote(ctx context.Context, loteID int64) (*model.Lote, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, seller_id, total_count, average_weight_kg, base_price_centavos, status, created_at
		 FROM lotes
		 WHERE id = $1`,
		loteID,
	)

	var l model.Lote
	err := row.Scan(&l.ID, &l.SellerID, &l.TotalCount, &l.AverageWeightKg, &l.BasePriceCentavos, &l.Status, &l.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLoteNotFound
		}
		return nil, fmt.Errorf("get lote: %w", err)
	}

	return &l, nil
}

// GetBuyerCertification возвращает кэшированное состояние сертификации покупателя.
func (r *PostgresRepository) GetBuyerCertification(ctx context.Context, buyerID int64) (*model.BuyerCertification, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT buyer_id, status, updated_at
		 FROM buyer_certifications
		 WHERE buyer_id = $1`,
		buyerID,
	)

	var c model.BuyerCertification
	err := row.Scan(&c.BuyerID, &c.Status, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCertificationNotFound
		}
		return nil, fmt.Errorf("get certification: %w", err)
	}

	return &c, nil
}

// UpsertBuyerCertification сохраняет состояние сертификации, полученное от банка.
func (r *PostgresRepository) UpsertBuyerCertification(ctx context.Context, buyerID int64, status model.CertificationStatus) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO buyer_certifications (buyer_id, status, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (buyer_id) DO UPDATE SET status = EXCLUDED.status, updated_at = now()`,
		buyerID, string(status),
	)
	if err != nil {
		return fmt.Errorf("upsert certification: %w", err)
	}
	return nil
}

// GetBuyersForCertificationSync возвращает покупателей, чью сертификацию нужно обновить из банка.
func (r *PostgresRepository) GetBuyersForCertificationSync(ctx context.Context, limit int) ([]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT buyer_id
		 FROM buyer_certifications
		 WHERE status IN ($1, $2)
		 ORDER BY updated_at
		 LIMIT $3`,
		string(model.CertificationPendienteAprobacion),
		string(model.CertificationMasDatos),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select buyers for sync: %w", err)
	}
	defer rows.Close()

	var res []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan buyer id: %w", err)
		}
		res = append(res, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
