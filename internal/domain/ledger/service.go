package ledger

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinichq/clinic/internal/domain/patient"
	"github.com/clinichq/clinic/internal/platform/apperror"
	"github.com/clinichq/clinic/internal/platform/notification"
)

// Service owns the outstanding-balance ledger. Balances live on the patient
// row; every posting appends an immutable receipt and moves the balance by
// total_due minus amount_paid.
type Service struct {
	repo       Repository
	patients   patient.Repository
	tx         patient.TxRunner
	dispatcher notification.Dispatcher
	logger     zerolog.Logger
	clinicName string
}

func NewService(repo Repository, patients patient.Repository, tx patient.TxRunner, dispatcher notification.Dispatcher, logger zerolog.Logger, clinicName string) *Service {
	return &Service{repo: repo, patients: patients, tx: tx, dispatcher: dispatcher, logger: logger, clinicName: clinicName}
}

// PostReceipt applies one billing event. The balance update and the receipt
// insert commit together; the notification is sent only after commit and
// carries the balance actually persisted, so a delivery failure can never
// desync the ledger.
func (s *Service) PostReceipt(ctx context.Context, in *PostReceiptInput) (*PostResult, error) {
	if strings.TrimSpace(in.PaymentMethod) == "" {
		return nil, apperror.Validation("payment_method is required")
	}
	if in.TotalDue.IsNegative() {
		return nil, apperror.Validation("total_due cannot be negative")
	}
	if in.AmountPaid.IsNegative() {
		return nil, apperror.Validation("amount_paid cannot be negative")
	}

	p, err := s.patients.GetByID(ctx, in.PatientID)
	if err != nil {
		return nil, err
	}
	email, err := s.resolveEmail(ctx, p)
	if err != nil {
		return nil, err
	}

	delta := in.TotalDue.Sub(in.AmountPaid).Round(2)

	rc := &Receipt{
		PatientID:     p.ID,
		TotalDue:      in.TotalDue.Round(2),
		AmountPaid:    in.AmountPaid.Round(2),
		PaymentMethod: strings.TrimSpace(in.PaymentMethod),
	}
	err = s.tx(ctx, func(ctx context.Context) error {
		balance, err := s.repo.AddToOutstanding(ctx, p.ID, delta)
		if err != nil {
			return err
		}
		rc.BalanceAfter = balance
		return s.repo.InsertReceipt(ctx, rc)
	})
	if err != nil {
		return nil, err
	}

	res := s.dispatcher.Notify(ctx, email, notification.KindReceiptPosted, map[string]string{
		"clinic_name":    s.clinicName,
		"patient_name":   p.FullName(),
		"total_due":      rc.TotalDue.StringFixed(2),
		"amount_paid":    rc.AmountPaid.StringFixed(2),
		"outstanding":    rc.BalanceAfter.StringFixed(2),
		"payment_method": rc.PaymentMethod,
	})
	if !res.Success {
		depErr := apperror.Dependency("receipt notification", errors.New(res.Error))
		s.logger.Warn().Err(depErr).Str("patient_id", p.ID.String()).
			Str("receipt_id", rc.ID.String()).Msg("receipt notification failed")
	}
	return &PostResult{Receipt: rc, Notified: res.Success}, nil
}

// ListReceipts returns a patient's receipt history, newest first.
func (s *Service) ListReceipts(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Receipt, int, error) {
	if _, err := s.patients.GetByID(ctx, patientID); err != nil {
		return nil, 0, err
	}
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

// resolveEmail finds the address receipts go to. Members carry no contact
// details, so their mail routes through the family head.
func (s *Service) resolveEmail(ctx context.Context, p *patient.Patient) (string, error) {
	if p.Email != nil && *p.Email != "" {
		return *p.Email, nil
	}
	if p.IsFamilyMember() {
		head, err := s.patients.GetByID(ctx, *p.FamilyID)
		if err != nil {
			return "", err
		}
		if head.Email != nil && *head.Email != "" {
			return *head.Email, nil
		}
	}
	return "", apperror.Validation("patient has no email on record and no family head with one")
}
