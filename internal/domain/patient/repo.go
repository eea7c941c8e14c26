package patient

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*Patient, int, error)
	ListMembers(ctx context.Context, headID uuid.UUID) ([]*Patient, error)
	// UpdateMemberSnapshots overwrites the given snapshot fields on all
	// current members of headID. Nil fields are untouched.
	UpdateMemberSnapshots(ctx context.Context, headID uuid.UUID, snap MemberSnapshot) error
	// PhoneInUse and EmailInUse report whether another patient (excluding
	// excludeID) already holds the value.
	PhoneInUse(ctx context.Context, phone string, excludeID uuid.UUID) (bool, error)
	EmailInUse(ctx context.Context, email string, excludeID uuid.UUID) (bool, error)
	SetNextAppointment(ctx context.Context, id uuid.UUID, date time.Time) error
	AddRecord(ctx context.Context, r *DentalRecord) error
	ListRecords(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*DentalRecord, int, error)
}
