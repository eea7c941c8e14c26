package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Receipt is an immutable record of one payment event. BalanceAfter is the
// patient's outstanding balance as persisted by the posting that created
// the receipt, so the ledger can be replayed without recomputing.
type Receipt struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	PatientID     uuid.UUID       `db:"patient_id" json:"patient_id"`
	TotalDue      decimal.Decimal `db:"total_due" json:"total_due"`
	AmountPaid    decimal.Decimal `db:"amount_paid" json:"amount_paid"`
	BalanceAfter  decimal.Decimal `db:"balance_after" json:"balance_after"`
	PaymentMethod string          `db:"payment_method" json:"payment_method"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

// PostReceiptInput is a single billing event: what this visit cost and what
// was paid toward it.
type PostReceiptInput struct {
	PatientID     uuid.UUID       `json:"patient_id"`
	TotalDue      decimal.Decimal `json:"total_due"`
	AmountPaid    decimal.Decimal `json:"amount_paid"`
	PaymentMethod string          `json:"payment_method"`
}

// PostResult is what a successful posting returns: the stored receipt plus
// whether the follow-up notification went out.
type PostResult struct {
	Receipt  *Receipt `json:"receipt"`
	Notified bool     `json:"notified"`
}
