package patient

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Patient maps to the patients table. A patient is either a standalone
// guest, a family head, or a family member. Heads carry the shared
// contact/billing attributes; members reference their head through FamilyID
// and hold a snapshot of the head's hmo and address taken at creation time.
//
// Outstanding is the cumulative balance owed by the patient. A negative
// value means the clinic owes the patient a credit. The field is mutated
// only by receipt posting and explicit administrative correction.
type Patient struct {
	ID              uuid.UUID       `db:"id" json:"id"`
	FirstName       string          `db:"first_name" json:"first_name"`
	LastName        string          `db:"last_name" json:"last_name"`
	Sex             string          `db:"sex" json:"sex"`
	DateOfBirth     *time.Time      `db:"date_of_birth" json:"date_of_birth,omitempty"`
	Phone           *string         `db:"phone" json:"phone,omitempty"`
	Email           *string         `db:"email" json:"email,omitempty"`
	Address         *string         `db:"address" json:"address,omitempty"`
	HMOName         *string         `db:"hmo_name" json:"hmo_name,omitempty"`
	HMONumber       *string         `db:"hmo_number" json:"hmo_number,omitempty"`
	FamilyID        *uuid.UUID      `db:"family_id" json:"family_id,omitempty"`
	IsFamilyHead    bool            `db:"is_family_head" json:"is_family_head"`
	Outstanding     decimal.Decimal `db:"outstanding" json:"outstanding"`
	NextAppointment *time.Time      `db:"next_appointment" json:"next_appointment_date,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// FullName returns the patient's display name.
func (p *Patient) FullName() string {
	return p.FirstName + " " + p.LastName
}

// IsFamilyMember reports whether the patient is a dependent member record.
func (p *Patient) IsFamilyMember() bool {
	return !p.IsFamilyHead && p.FamilyID != nil
}

// FamilyUnit is the explicit two-variant view of a family: the head record
// plus its current members.
type FamilyUnit struct {
	Head    *Patient   `json:"head"`
	Members []*Patient `json:"members"`
}

// CreateInput carries the fields accepted when creating a patient record.
// Phone and email are ignored for family members; those live on the head.
type CreateInput struct {
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	Sex         string     `json:"sex"`
	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`
	Phone       *string    `json:"phone,omitempty"`
	Email       *string    `json:"email,omitempty"`
	Address     *string    `json:"address,omitempty"`
	HMOName     *string    `json:"hmo_name,omitempty"`
	HMONumber   *string    `json:"hmo_number,omitempty"`
}

// UpdateInput carries a partial update. Nil means the field is absent from
// the payload and stays untouched; this presence semantics drives which
// attributes propagate from a head to its members. FamilyID and
// IsFamilyHead are bound only so that attempts to change them can be
// rejected — structure changes go through the dedicated operations.
type UpdateInput struct {
	FirstName    *string    `json:"first_name,omitempty"`
	LastName     *string    `json:"last_name,omitempty"`
	Sex          *string    `json:"sex,omitempty"`
	DateOfBirth  *time.Time `json:"date_of_birth,omitempty"`
	Phone        *string    `json:"phone,omitempty"`
	Email        *string    `json:"email,omitempty"`
	Address      *string    `json:"address,omitempty"`
	HMOName      *string    `json:"hmo_name,omitempty"`
	HMONumber    *string    `json:"hmo_number,omitempty"`
	FamilyID     *uuid.UUID `json:"family_id,omitempty"`
	IsFamilyHead *bool      `json:"is_family_head,omitempty"`
}

// DentalRecord is one visit's treatment note.
type DentalRecord struct {
	ID        uuid.UUID `db:"id" json:"id"`
	PatientID uuid.UUID `db:"patient_id" json:"patient_id"`
	VisitDate time.Time `db:"visit_date" json:"visit_date"`
	Procedure string    `db:"procedure" json:"procedure"`
	Tooth     *string   `db:"tooth" json:"tooth,omitempty"`
	Notes     *string   `db:"notes" json:"notes,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// DentalRecordInput captures a new treatment note. VisitDate defaults to
// today when absent.
type DentalRecordInput struct {
	VisitDate *time.Time `json:"visit_date"`
	Procedure string     `json:"procedure"`
	Tooth     *string    `json:"tooth"`
	Notes     *string    `json:"notes"`
}

// MemberSnapshot names the head attributes propagated onto members. Nil
// fields are left untouched on the member rows.
type MemberSnapshot struct {
	Address   *string
	HMOName   *string
	HMONumber *string
}
