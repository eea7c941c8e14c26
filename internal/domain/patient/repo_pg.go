package patient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

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

const patientCols = `id, first_name, last_name, sex, date_of_birth,
	phone, email, address, hmo_name, hmo_number,
	family_id, is_family_head, outstanding, next_appointment,
	created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.FirstName, &p.LastName, &p.Sex, &p.DateOfBirth,
		&p.Phone, &p.Email, &p.Address, &p.HMOName, &p.HMONumber,
		&p.FamilyID, &p.IsFamilyHead, &p.Outstanding, &p.NextAppointment,
		&p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.NotFound("patient not found")
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// translateWrite maps unique-index violations to conflicts; any other
// failure is an internal storage error.
func translateWrite(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return apperror.Conflict("a patient with that contact detail already exists")
	}
	return apperror.Internal("write patient", err)
}

func (r *repoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patients (id, first_name, last_name, sex, date_of_birth,
			phone, email, address, hmo_name, hmo_number,
			family_id, is_family_head, outstanding)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING created_at, updated_at`,
		p.ID, p.FirstName, p.LastName, p.Sex, p.DateOfBirth,
		p.Phone, p.Email, p.Address, p.HMOName, p.HMONumber,
		p.FamilyID, p.IsFamilyHead, p.Outstanding).Scan(&p.CreatedAt, &p.UpdatedAt)
	return translateWrite(err)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, p *Patient) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patients SET first_name=$2, last_name=$3, sex=$4, date_of_birth=$5,
			phone=$6, email=$7, address=$8, hmo_name=$9, hmo_number=$10, updated_at=NOW()
		WHERE id = $1`,
		p.ID, p.FirstName, p.LastName, p.Sex, p.DateOfBirth,
		p.Phone, p.Email, p.Address, p.HMOName, p.HMONumber)
	if err != nil {
		return translateWrite(err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("patient not found")
	}
	return nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM patients WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("patient not found")
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patients`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+patientCols+` FROM patients ORDER BY last_name, first_name LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, nil
}

func (r *repoPG) ListMembers(ctx context.Context, headID uuid.UUID) ([]*Patient, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+patientCols+` FROM patients WHERE family_id = $1 ORDER BY created_at`, headID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, nil
}

// UpdateMemberSnapshots overwrites only the snapshot columns present in s on
// every member of the family.
func (r *repoPG) UpdateMemberSnapshots(ctx context.Context, headID uuid.UUID, s MemberSnapshot) error {
	set := ""
	args := []interface{}{headID}
	add := func(col string, v *string) {
		if v == nil {
			return
		}
		args = append(args, *v)
		if set != "" {
			set += ", "
		}
		set += fmt.Sprintf("%s=$%d", col, len(args))
	}
	add("address", s.Address)
	add("hmo_name", s.HMOName)
	add("hmo_number", s.HMONumber)
	if set == "" {
		return nil
	}
	_, err := r.conn(ctx).Exec(ctx, `UPDATE patients SET `+set+`, updated_at=NOW() WHERE family_id = $1`, args...)
	return err
}

func (r *repoPG) PhoneInUse(ctx context.Context, phone string, excludeID uuid.UUID) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM patients WHERE phone = $1 AND id <> $2)`, phone, excludeID).Scan(&exists)
	return exists, err
}

func (r *repoPG) EmailInUse(ctx context.Context, email string, excludeID uuid.UUID) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM patients WHERE email = $1 AND id <> $2)`, email, excludeID).Scan(&exists)
	return exists, err
}

func (r *repoPG) AddRecord(ctx context.Context, rec *DentalRecord) error {
	rec.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO dental_records (id, patient_id, visit_date, procedure, tooth, notes)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at`,
		rec.ID, rec.PatientID, rec.VisitDate, rec.Procedure, rec.Tooth, rec.Notes).Scan(&rec.CreatedAt)
}

func (r *repoPG) ListRecords(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*DentalRecord, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM dental_records WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, patient_id, visit_date, procedure, tooth, notes, created_at
		FROM dental_records WHERE patient_id = $1 ORDER BY visit_date DESC, created_at DESC LIMIT $2 OFFSET $3`,
		patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*DentalRecord
	for rows.Next() {
		var rec DentalRecord
		if err := rows.Scan(&rec.ID, &rec.PatientID, &rec.VisitDate, &rec.Procedure,
			&rec.Tooth, &rec.Notes, &rec.CreatedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, &rec)
	}
	return items, total, nil
}

func (r *repoPG) SetNextAppointment(ctx context.Context, id uuid.UUID, date time.Time) error {
	tag, err := r.conn(ctx).Exec(ctx, `UPDATE patients SET next_appointment=$2, updated_at=NOW() WHERE id = $1`, id, date)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("patient not found")
	}
	return nil
}
