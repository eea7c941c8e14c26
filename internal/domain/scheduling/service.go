package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinichq/clinic/internal/domain/patient"
	"github.com/clinichq/clinic/internal/platform/apperror"
	"github.com/clinichq/clinic/internal/platform/notification"
)

// Service books recall appointments by resolving a named interval against
// today's date and stamping the result on the patient record.
type Service struct {
	patients   patient.Repository
	dispatcher notification.Dispatcher
	logger     zerolog.Logger
	clinicName string
	now        func() time.Time
}

func NewService(patients patient.Repository, dispatcher notification.Dispatcher, logger zerolog.Logger, clinicName string) *Service {
	return &Service{
		patients:   patients,
		dispatcher: dispatcher,
		logger:     logger,
		clinicName: clinicName,
		now:        time.Now,
	}
}

// ScheduleInput names the recall interval for the next visit.
type ScheduleInput struct {
	Interval Interval `json:"interval"`
}

// Appointment is the booked visit returned to the caller. Patient is the
// record as it stands after the booking, with the new date stamped on it.
type Appointment struct {
	Patient  *patient.Patient `json:"patient"`
	Interval Interval         `json:"interval"`
	Date     time.Time        `json:"date"`
}

// ScheduleAppointment resolves the interval from today, persists the date,
// and tells the patient. The booking stands even if the message fails.
func (s *Service) ScheduleAppointment(ctx context.Context, patientID uuid.UUID, in *ScheduleInput) (*Appointment, error) {
	p, err := s.patients.GetByID(ctx, patientID)
	if err != nil {
		return nil, err
	}
	date, err := Resolve(s.now(), in.Interval)
	if err != nil {
		return nil, err
	}
	if err := s.patients.SetNextAppointment(ctx, p.ID, date); err != nil {
		return nil, err
	}

	if email := s.resolveEmail(ctx, p); email != "" {
		res := s.dispatcher.Notify(ctx, email, notification.KindAppointmentScheduled, map[string]string{
			"clinic_name":      s.clinicName,
			"patient_name":     p.FullName(),
			"appointment_date": date.Format("Monday, 2 January 2006"),
			"interval":         string(in.Interval),
		})
		if !res.Success {
			depErr := apperror.Dependency("appointment notification", errors.New(res.Error))
			s.logger.Warn().Err(depErr).Str("patient_id", p.ID.String()).
				Msg("appointment notification failed")
		}
	}
	p.NextAppointment = &date
	return &Appointment{Patient: p, Interval: in.Interval, Date: date}, nil
}

// resolveEmail returns the booking's contact address, or empty if the
// family has none. Unlike receipts, a missing address does not block a
// booking made at the front desk.
func (s *Service) resolveEmail(ctx context.Context, p *patient.Patient) string {
	if p.Email != nil && *p.Email != "" {
		return *p.Email
	}
	if p.IsFamilyMember() {
		head, err := s.patients.GetByID(ctx, *p.FamilyID)
		if err == nil && head.Email != nil && *head.Email != "" {
			return *head.Email
		}
	}
	return ""
}
