package patient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/clinichq/clinic/internal/platform/apperror"
	"github.com/clinichq/clinic/internal/platform/notification"
)

// TxRunner runs fn inside a single unit of work. The production runner wraps
// db.WithTx; tests substitute a pass-through.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

// PassthroughTx runs fn directly, without a transaction.
func PassthroughTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// Service maintains the two-level family graph: heads own the shared
// contact/billing attributes, members hold snapshots of them.
type Service struct {
	repo       Repository
	tx         TxRunner
	dispatcher notification.Dispatcher
	logger     zerolog.Logger
	clinicName string
}

func NewService(repo Repository, tx TxRunner, dispatcher notification.Dispatcher, logger zerolog.Logger, clinicName string) *Service {
	return &Service{repo: repo, tx: tx, dispatcher: dispatcher, logger: logger, clinicName: clinicName}
}

var validSexes = map[string]bool{"male": true, "female": true, "other": true}

func validateCreate(in *CreateInput, requirePhone bool) error {
	if strings.TrimSpace(in.FirstName) == "" || strings.TrimSpace(in.LastName) == "" {
		return apperror.Validation("first_name and last_name are required")
	}
	if !validSexes[in.Sex] {
		return apperror.Validation("sex must be one of male, female, other")
	}
	if requirePhone && (in.Phone == nil || strings.TrimSpace(*in.Phone) == "") {
		return apperror.Validation("phone is required")
	}
	return nil
}

// CreateFamilyHead creates a standalone guest or family-head record. The
// head owns the family's phone, email, address, and hmo.
func (s *Service) CreateFamilyHead(ctx context.Context, in *CreateInput) (*Patient, error) {
	if err := validateCreate(in, true); err != nil {
		return nil, err
	}
	if err := s.checkUnique(ctx, in.Phone, in.Email, uuid.Nil); err != nil {
		return nil, err
	}

	p := &Patient{
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Sex:          in.Sex,
		DateOfBirth:  in.DateOfBirth,
		Phone:        in.Phone,
		Email:        in.Email,
		Address:      in.Address,
		HMOName:      in.HMOName,
		HMONumber:    in.HMONumber,
		IsFamilyHead: true,
		Outstanding:  decimal.Zero,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// AddFamilyMember creates a dependent record under an existing head. The
// member snapshots the head's hmo and address at creation time and carries
// no phone or email of its own.
func (s *Service) AddFamilyMember(ctx context.Context, headID uuid.UUID, in *CreateInput) (*Patient, error) {
	head, err := s.repo.GetByID(ctx, headID)
	if err != nil {
		return nil, err
	}
	if !head.IsFamilyHead {
		return nil, apperror.NotFound("patient %s is not a family head", headID)
	}
	if err := validateCreate(in, false); err != nil {
		return nil, err
	}

	m := &Patient{
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Sex:          in.Sex,
		DateOfBirth:  in.DateOfBirth,
		Address:      copyString(head.Address),
		HMOName:      copyString(head.HMOName),
		HMONumber:    copyString(head.HMONumber),
		FamilyID:     &head.ID,
		IsFamilyHead: false,
		Outstanding:  decimal.Zero,
	}
	if err := s.repo.Create(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// CreateFamilyUnit creates a head and its members as one unit of work. All
// inputs are validated before any write, and the whole submission rolls
// back if any insert fails, so a failed member never leaves an orphaned
// head behind.
func (s *Service) CreateFamilyUnit(ctx context.Context, headIn *CreateInput, memberIns []*CreateInput) (*FamilyUnit, error) {
	if err := validateCreate(headIn, true); err != nil {
		return nil, err
	}
	for i, in := range memberIns {
		if err := validateCreate(in, false); err != nil {
			return nil, apperror.Validation("member %d: %v", i+1, err)
		}
	}

	var unit *FamilyUnit
	err := s.tx(ctx, func(ctx context.Context) error {
		head, err := s.CreateFamilyHead(ctx, headIn)
		if err != nil {
			return err
		}
		members := make([]*Patient, 0, len(memberIns))
		for _, in := range memberIns {
			m, err := s.AddFamilyMember(ctx, head.ID, in)
			if err != nil {
				return err
			}
			members = append(members, m)
		}
		unit = &FamilyUnit{Head: head, Members: members}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if unit.Head.Email != nil {
		res := s.dispatcher.Notify(ctx, *unit.Head.Email, notification.KindFamilyWelcome, map[string]string{
			"clinic_name":  s.clinicName,
			"head_name":    unit.Head.FullName(),
			"member_count": fmt.Sprintf("%d", len(unit.Members)+1),
		})
		if !res.Success {
			depErr := apperror.Dependency("family welcome notification", errors.New(res.Error))
			s.logger.Warn().Err(depErr).Str("patient_id", unit.Head.ID.String()).
				Msg("family welcome notification failed")
		}
	}
	return unit, nil
}

// UpdatePatient applies a partial demographic update. Structural fields are
// rejected; when the target is a head, hmo and address values present in
// the payload are propagated onto all current members inside the same unit
// of work.
func (s *Service) UpdatePatient(ctx context.Context, id uuid.UUID, in *UpdateInput) (*Patient, error) {
	if in.FamilyID != nil || in.IsFamilyHead != nil {
		return nil, apperror.Validation("family_id and is_family_head cannot be changed through this operation")
	}

	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.IsFamilyMember() && (in.Phone != nil || in.Email != nil) {
		return nil, apperror.Validation("family members do not carry their own phone or email")
	}
	if in.Sex != nil && !validSexes[*in.Sex] {
		return nil, apperror.Validation("sex must be one of male, female, other")
	}

	// Uniqueness checks exclude the record being updated.
	if err := s.checkUnique(ctx, in.Phone, in.Email, p.ID); err != nil {
		return nil, err
	}

	applyUpdate(p, in)

	err = s.tx(ctx, func(ctx context.Context) error {
		if err := s.repo.Update(ctx, p); err != nil {
			return err
		}
		if p.IsFamilyHead && (in.HMOName != nil || in.HMONumber != nil || in.Address != nil) {
			return s.repo.UpdateMemberSnapshots(ctx, p.ID, MemberSnapshot{
				Address:   in.Address,
				HMOName:   in.HMOName,
				HMONumber: in.HMONumber,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// GetPatient looks up a single record.
func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.repo.GetByID(ctx, id)
}

// GetFamily resolves the family unit the given patient belongs to. Looking
// up a member resolves through its head; a standalone guest is a unit of
// one.
func (s *Service) GetFamily(ctx context.Context, id uuid.UUID) (*FamilyUnit, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	head := p
	if p.IsFamilyMember() {
		head, err = s.repo.GetByID(ctx, *p.FamilyID)
		if err != nil {
			return nil, err
		}
	}
	members, err := s.repo.ListMembers(ctx, head.ID)
	if err != nil {
		return nil, err
	}
	return &FamilyUnit{Head: head, Members: members}, nil
}

// ListPatients returns a page of patients plus the total count.
func (s *Service) ListPatients(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	return s.repo.List(ctx, limit, offset)
}

// DeletePatient removes a record. Dependent dental records cascade; members
// of a deleted head are orphaned, not deleted.
func (s *Service) DeletePatient(ctx context.Context, id uuid.UUID) error {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id)
}

// AddDentalRecord files a treatment note against an existing patient.
func (s *Service) AddDentalRecord(ctx context.Context, patientID uuid.UUID, in *DentalRecordInput) (*DentalRecord, error) {
	if strings.TrimSpace(in.Procedure) == "" {
		return nil, apperror.Validation("procedure is required")
	}
	if _, err := s.repo.GetByID(ctx, patientID); err != nil {
		return nil, err
	}
	visit := time.Now()
	if in.VisitDate != nil {
		visit = *in.VisitDate
	}
	rec := &DentalRecord{
		PatientID: patientID,
		VisitDate: visit,
		Procedure: strings.TrimSpace(in.Procedure),
		Tooth:     in.Tooth,
		Notes:     in.Notes,
	}
	if err := s.repo.AddRecord(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// ListDentalRecords returns a patient's treatment history, newest first.
func (s *Service) ListDentalRecords(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*DentalRecord, int, error) {
	if _, err := s.repo.GetByID(ctx, patientID); err != nil {
		return nil, 0, err
	}
	return s.repo.ListRecords(ctx, patientID, limit, offset)
}

func (s *Service) checkUnique(ctx context.Context, phone, email *string, excludeID uuid.UUID) error {
	if phone != nil && strings.TrimSpace(*phone) != "" {
		inUse, err := s.repo.PhoneInUse(ctx, *phone, excludeID)
		if err != nil {
			return err
		}
		if inUse {
			return apperror.Conflict("phone number %s is already registered", *phone)
		}
	}
	if email != nil && strings.TrimSpace(*email) != "" {
		inUse, err := s.repo.EmailInUse(ctx, *email, excludeID)
		if err != nil {
			return err
		}
		if inUse {
			return apperror.Conflict("email %s is already registered", *email)
		}
	}
	return nil
}

func applyUpdate(p *Patient, in *UpdateInput) {
	if in.FirstName != nil {
		p.FirstName = strings.TrimSpace(*in.FirstName)
	}
	if in.LastName != nil {
		p.LastName = strings.TrimSpace(*in.LastName)
	}
	if in.Sex != nil {
		p.Sex = *in.Sex
	}
	if in.DateOfBirth != nil {
		p.DateOfBirth = in.DateOfBirth
	}
	if in.Phone != nil {
		p.Phone = in.Phone
	}
	if in.Email != nil {
		p.Email = in.Email
	}
	if in.Address != nil {
		p.Address = in.Address
	}
	if in.HMOName != nil {
		p.HMOName = in.HMOName
	}
	if in.HMONumber != nil {
		p.HMONumber = in.HMONumber
	}
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
