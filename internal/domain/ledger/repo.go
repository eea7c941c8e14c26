package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Repository persists receipts and applies balance deltas. AddToOutstanding
// must be atomic per patient: concurrent postings serialize on the row and
// each returns the balance it produced.
type Repository interface {
	AddToOutstanding(ctx context.Context, patientID uuid.UUID, delta decimal.Decimal) (decimal.Decimal, error)
	InsertReceipt(ctx context.Context, r *Receipt) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Receipt, int, error)
}
