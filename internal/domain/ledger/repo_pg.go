package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/clinichq/clinic/internal/platform/apperror"
	"github.com/clinichq/clinic/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

// AddToOutstanding applies the delta in a single UPDATE so the row lock
// serializes concurrent postings for the same patient.
func (r *repoPG) AddToOutstanding(ctx context.Context, patientID uuid.UUID, delta decimal.Decimal) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE patients SET outstanding = outstanding + $2, updated_at = NOW()
		WHERE id = $1
		RETURNING outstanding`, patientID, delta).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, apperror.NotFound("patient not found")
	}
	if err != nil {
		return decimal.Zero, err
	}
	return balance, nil
}

func (r *repoPG) InsertReceipt(ctx context.Context, rc *Receipt) error {
	rc.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO receipts (id, patient_id, total_due, amount_paid, balance_after, payment_method)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at`,
		rc.ID, rc.PatientID, rc.TotalDue, rc.AmountPaid, rc.BalanceAfter, rc.PaymentMethod).Scan(&rc.CreatedAt)
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Receipt, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM receipts WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, patient_id, total_due, amount_paid, balance_after, payment_method, created_at
		FROM receipts WHERE patient_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Receipt
	for rows.Next() {
		var rc Receipt
		if err := rows.Scan(&rc.ID, &rc.PatientID, &rc.TotalDue, &rc.AmountPaid,
			&rc.BalanceAfter, &rc.PaymentMethod, &rc.CreatedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, &rc)
	}
	return items, total, nil
}
