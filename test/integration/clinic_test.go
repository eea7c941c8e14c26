package integration

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/clinichq/clinic/internal/domain/ledger"
	"github.com/clinichq/clinic/internal/domain/patient"
	"github.com/clinichq/clinic/internal/domain/scheduling"
	"github.com/clinichq/clinic/internal/platform/apperror"
	"github.com/clinichq/clinic/internal/platform/notification"
)

// uniqueHeadInput returns a valid head payload with contact fields that do
// not collide with other tests sharing the database.
func uniqueHeadInput() *patient.CreateInput {
	tag := uuid.New().String()[:8]
	return &patient.CreateInput{
		FirstName: "Ada",
		LastName:  "Obi",
		Sex:       "female",
		Phone:     strptr("+234801" + tag),
		Email:     strptr("ada-" + tag + "@example.com"),
		Address:   strptr("12 Marina Rd"),
		HMOName:   strptr("Hygeia"),
		HMONumber: strptr("HYG-" + tag),
	}
}

func memberInput(first string) *patient.CreateInput {
	return &patient.CreateInput{FirstName: first, LastName: "Obi", Sex: "male"}
}

func TestFamilyUnitLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	headIn := uniqueHeadInput()
	unit, err := env.Patients.CreateFamilyUnit(ctx, headIn, []*patient.CreateInput{
		memberInput("Emeka"), memberInput("Chidi"),
	})
	if err != nil {
		t.Fatalf("create family unit: %v", err)
	}
	if !unit.Head.IsFamilyHead {
		t.Fatal("head not marked as family head")
	}
	if len(unit.Members) != 2 {
		t.Fatalf("members = %d, want 2", len(unit.Members))
	}
	for _, m := range unit.Members {
		if m.FamilyID == nil || *m.FamilyID != unit.Head.ID {
			t.Errorf("member %s not linked to head", m.FirstName)
		}
		if m.HMOName == nil || *m.HMOName != "Hygeia" {
			t.Errorf("member %s did not inherit hmo snapshot", m.FirstName)
		}
		if m.Address == nil || *m.Address != "12 Marina Rd" {
			t.Errorf("member %s did not inherit address snapshot", m.FirstName)
		}
		if m.Phone != nil || m.Email != nil {
			t.Errorf("member %s carries own contact fields", m.FirstName)
		}
	}

	// Looking up the family through a member resolves to the same unit.
	fam, err := env.Patients.GetFamily(ctx, unit.Members[0].ID)
	if err != nil {
		t.Fatalf("get family through member: %v", err)
	}
	if fam.Head.ID != unit.Head.ID {
		t.Errorf("family head = %s, want %s", fam.Head.ID, unit.Head.ID)
	}
	if len(fam.Members) != 2 {
		t.Errorf("family members = %d, want 2", len(fam.Members))
	}

	deliveries := env.Manager.ListByRecipient(*headIn.Email, 10)
	if len(deliveries) != 1 || deliveries[0].Kind != notification.KindFamilyWelcome {
		t.Errorf("expected one family-welcome delivery to head, got %+v", deliveries)
	}
}

func TestHeadUpdatePropagatesToMembers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	unit, err := env.Patients.CreateFamilyUnit(ctx, uniqueHeadInput(), []*patient.CreateInput{memberInput("Ngozi")})
	if err != nil {
		t.Fatalf("create family unit: %v", err)
	}

	if _, err := env.Patients.UpdatePatient(ctx, unit.Head.ID, &patient.UpdateInput{
		HMOName:   strptr("Reliance"),
		HMONumber: strptr("REL-42"),
	}); err != nil {
		t.Fatalf("update head: %v", err)
	}

	m, err := env.Patients.GetPatient(ctx, unit.Members[0].ID)
	if err != nil {
		t.Fatalf("reload member: %v", err)
	}
	if m.HMOName == nil || *m.HMOName != "Reliance" {
		t.Errorf("member hmo_name = %v, want Reliance", m.HMOName)
	}
	if m.HMONumber == nil || *m.HMONumber != "REL-42" {
		t.Errorf("member hmo_number = %v, want REL-42", m.HMONumber)
	}
	// Address was absent from the payload and must survive untouched.
	if m.Address == nil || *m.Address != "12 Marina Rd" {
		t.Errorf("member address = %v, want 12 Marina Rd", m.Address)
	}
}

func TestReceiptPostingMovesBalance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	headIn := uniqueHeadInput()
	head, err := env.Patients.CreateFamilyHead(ctx, headIn)
	if err != nil {
		t.Fatalf("create head: %v", err)
	}

	res, err := env.Ledger.PostReceipt(ctx, &ledger.PostReceiptInput{
		PatientID:     head.ID,
		TotalDue:      decimal.RequireFromString("5000"),
		AmountPaid:    decimal.RequireFromString("3000"),
		PaymentMethod: "cash",
	})
	if err != nil {
		t.Fatalf("post receipt: %v", err)
	}
	if !res.Receipt.BalanceAfter.Equal(decimal.RequireFromString("2000")) {
		t.Errorf("balance_after = %s, want 2000", res.Receipt.BalanceAfter)
	}
	if !res.Notified {
		t.Error("expected receipt notification to be delivered")
	}

	// A second posting accumulates on the stored balance.
	res, err = env.Ledger.PostReceipt(ctx, &ledger.PostReceiptInput{
		PatientID:     head.ID,
		TotalDue:      decimal.RequireFromString("0"),
		AmountPaid:    decimal.RequireFromString("2500"),
		PaymentMethod: "transfer",
	})
	if err != nil {
		t.Fatalf("post second receipt: %v", err)
	}
	if !res.Receipt.BalanceAfter.Equal(decimal.RequireFromString("-500")) {
		t.Errorf("balance_after = %s, want -500", res.Receipt.BalanceAfter)
	}

	reloaded, err := env.Patients.GetPatient(ctx, head.ID)
	if err != nil {
		t.Fatalf("reload head: %v", err)
	}
	if !reloaded.Outstanding.Equal(decimal.RequireFromString("-500")) {
		t.Errorf("outstanding = %s, want -500", reloaded.Outstanding)
	}

	receipts, total, err := env.Ledger.ListReceipts(ctx, head.ID, 10, 0)
	if err != nil {
		t.Fatalf("list receipts: %v", err)
	}
	if total != 2 || len(receipts) != 2 {
		t.Fatalf("receipts = %d (total %d), want 2", len(receipts), total)
	}
	// Newest first.
	if receipts[0].PaymentMethod != "transfer" {
		t.Errorf("first receipt method = %s, want transfer", receipts[0].PaymentMethod)
	}
}

func TestMemberReceiptRoutesThroughHead(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	headIn := uniqueHeadInput()
	unit, err := env.Patients.CreateFamilyUnit(ctx, headIn, []*patient.CreateInput{memberInput("Uche")})
	if err != nil {
		t.Fatalf("create family unit: %v", err)
	}
	member := unit.Members[0]

	if _, err := env.Ledger.PostReceipt(ctx, &ledger.PostReceiptInput{
		PatientID:     member.ID,
		TotalDue:      decimal.RequireFromString("1200"),
		AmountPaid:    decimal.RequireFromString("200"),
		PaymentMethod: "card",
	}); err != nil {
		t.Fatalf("post member receipt: %v", err)
	}

	m, err := env.Patients.GetPatient(ctx, member.ID)
	if err != nil {
		t.Fatalf("reload member: %v", err)
	}
	if !m.Outstanding.Equal(decimal.RequireFromString("1000")) {
		t.Errorf("member outstanding = %s, want 1000", m.Outstanding)
	}
	h, err := env.Patients.GetPatient(ctx, unit.Head.ID)
	if err != nil {
		t.Fatalf("reload head: %v", err)
	}
	if !h.Outstanding.IsZero() {
		t.Errorf("head outstanding = %s, want 0", h.Outstanding)
	}

	// The receipt email goes to the head's address.
	deliveries := env.Manager.ListByRecipient(*headIn.Email, 10)
	var found bool
	for _, d := range deliveries {
		if d.Kind == notification.KindReceiptPosted {
			found = true
		}
	}
	if !found {
		t.Error("expected receipt-posted delivery addressed to head")
	}
}

func TestConcurrentReceiptPostings(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	head, err := env.Patients.CreateFamilyHead(ctx, uniqueHeadInput())
	if err != nil {
		t.Fatalf("create head: %v", err)
	}

	const n = 10
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.Ledger.PostReceipt(ctx, &ledger.PostReceiptInput{
				PatientID:     head.ID,
				TotalDue:      decimal.RequireFromString("100"),
				AmountPaid:    decimal.RequireFromString("40"),
				PaymentMethod: "cash",
			})
			if err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent post: %v", err)
	}

	reloaded, err := env.Patients.GetPatient(ctx, head.ID)
	if err != nil {
		t.Fatalf("reload head: %v", err)
	}
	want := decimal.RequireFromString("600")
	if !reloaded.Outstanding.Equal(want) {
		t.Errorf("outstanding = %s, want %s", reloaded.Outstanding, want)
	}
	_, total, err := env.Ledger.ListReceipts(ctx, head.ID, 50, 0)
	if err != nil {
		t.Fatalf("list receipts: %v", err)
	}
	if total != n {
		t.Errorf("receipts = %d, want %d", total, n)
	}
}

func TestScheduleAppointmentStampsPatient(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	head, err := env.Patients.CreateFamilyHead(ctx, uniqueHeadInput())
	if err != nil {
		t.Fatalf("create head: %v", err)
	}

	appt, err := env.Scheduling.ScheduleAppointment(ctx, head.ID, &scheduling.ScheduleInput{Interval: scheduling.TwoWeeks})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if appt.Date.Weekday() == time.Sunday {
		t.Error("resolved date fell on a Sunday")
	}
	if appt.Patient == nil || appt.Patient.NextAppointment == nil {
		t.Fatal("booking response missing the updated patient")
	}

	reloaded, err := env.Patients.GetPatient(ctx, head.ID)
	if err != nil {
		t.Fatalf("reload head: %v", err)
	}
	if reloaded.NextAppointment == nil {
		t.Fatal("next appointment not persisted")
	}
	// Postgres stores microseconds, so compare at second precision.
	if !reloaded.NextAppointment.Truncate(time.Second).Equal(appt.Date.Truncate(time.Second)) {
		t.Errorf("persisted date = %s, want %s", reloaded.NextAppointment, appt.Date)
	}
}

func TestDentalRecordsFollowPatient(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	head, err := env.Patients.CreateFamilyHead(ctx, uniqueHeadInput())
	if err != nil {
		t.Fatalf("create head: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := env.Patients.AddDentalRecord(ctx, head.ID, &patient.DentalRecordInput{
			Procedure: fmt.Sprintf("scaling-%d", i),
			Tooth:     strptr("UL6"),
		}); err != nil {
			t.Fatalf("add record %d: %v", i, err)
		}
	}

	records, total, err := env.Patients.ListDentalRecords(ctx, head.ID, 10, 0)
	if err != nil {
		t.Fatalf("list records: %v", err)
	}
	if total != 3 || len(records) != 3 {
		t.Fatalf("records = %d (total %d), want 3", len(records), total)
	}

	// Deleting the patient removes the trail with it.
	if err := env.Patients.DeletePatient(ctx, head.ID); err != nil {
		t.Fatalf("delete patient: %v", err)
	}
	if _, err := env.Patients.GetPatient(ctx, head.ID); !apperror.IsNotFound(err) {
		t.Errorf("expected not found after delete, got %v", err)
	}
}

func TestDuplicatePhoneRejectedByDatabase(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first := uniqueHeadInput()
	if _, err := env.Patients.CreateFamilyHead(ctx, first); err != nil {
		t.Fatalf("create first head: %v", err)
	}

	second := uniqueHeadInput()
	second.Phone = first.Phone
	if _, err := env.Patients.CreateFamilyHead(ctx, second); !apperror.IsConflict(err) {
		t.Errorf("expected conflict for duplicate phone, got %v", err)
	}
}
