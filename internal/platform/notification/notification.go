// Package notification is the dispatch adapter used by the ledger and
// scheduling services. It renders a template, sends the result through a
// pluggable email sender, mirrors the event onto a spreadsheet-style append
// log, and records every delivery in memory. Callers treat dispatch as
// fire-and-forget: a failed delivery is reported back but must never fail
// the mutation that triggered it.
package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Kind identifies a notification template.
type Kind string

const (
	KindReceiptPosted        Kind = "receipt-posted"
	KindAppointmentScheduled Kind = "appointment-scheduled"
	KindFamilyWelcome        Kind = "family-welcome"
)

// Result reports the outcome of a single dispatch.
type Result struct {
	Success bool   `json:"success"`
	ID      string `json:"id,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Dispatcher is the contract domain services depend on. Data passed in must
// already reflect persisted state; the adapter never reads the database.
type Dispatcher interface {
	Notify(ctx context.Context, recipient string, kind Kind, data map[string]string) Result
}

// Delivery is one recorded dispatch attempt.
type Delivery struct {
	ID        string            `json:"id"`
	Kind      Kind              `json:"kind"`
	Recipient string            `json:"recipient"`
	Subject   string            `json:"subject"`
	Body      string            `json:"body"`
	Data      map[string]string `json:"data,omitempty"`
	Status    string            `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
	SentAt    *time.Time        `json:"sent_at,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// EmailSender sends a rendered notification to a recipient address.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// SheetAppender mirrors an event onto an external spreadsheet log. The row
// layout is one cell per data key, ordered by the template's row layout.
type SheetAppender interface {
	AppendRow(ctx context.Context, sheet string, row []string) error
}

// ---------------------------------------------------------------------------
// Templates
// ---------------------------------------------------------------------------

// Template is a reusable notification template. SheetColumns names the data
// keys mirrored to the spreadsheet log, in column order; an empty slice
// disables mirroring for the kind.
type Template struct {
	Kind         Kind
	Subject      string
	Body         string
	SheetColumns []string
}

// Engine holds templates and renders them with {{key}} replacement.
type Engine struct {
	mu        sync.RWMutex
	templates map[Kind]*Template
}

// NewEngine creates an Engine with the built-in clinic templates registered.
func NewEngine() *Engine {
	e := &Engine{templates: make(map[Kind]*Template)}
	e.registerBuiltIn()
	return e
}

func (e *Engine) registerBuiltIn() {
	builtIn := []Template{
		{
			Kind:    KindReceiptPosted,
			Subject: "Payment received — {{clinic_name}}",
			Body: "Dear {{patient_name}}, we received your payment of {{amount_paid}} " +
				"toward a total of {{total_due}}. Your outstanding balance is now {{outstanding}}.",
			SheetColumns: []string{"patient_name", "total_due", "amount_paid", "outstanding", "payment_method"},
		},
		{
			Kind:    KindAppointmentScheduled,
			Subject: "Your next appointment at {{clinic_name}}",
			Body: "Dear {{patient_name}}, your next appointment has been scheduled " +
				"for {{appointment_date}}. Please arrive a few minutes early.",
			SheetColumns: nil,
		},
		{
			Kind:    KindFamilyWelcome,
			Subject: "Welcome to {{clinic_name}}",
			Body: "Dear {{head_name}}, your family of {{member_count}} has been " +
				"registered. We look forward to seeing you.",
			SheetColumns: nil,
		},
	}
	for i := range builtIn {
		t := builtIn[i]
		e.templates[t.Kind] = &t
	}
}

// Register adds or replaces a template.
func (e *Engine) Register(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.Kind] = &t
}

// Render looks up a template by kind and performs {{key}} replacement. Keys
// present in the template but absent from data are left as-is.
func (e *Engine) Render(kind Kind, data map[string]string) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[kind]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", kind)
	}

	subject = t.Subject
	body = t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		subject = strings.ReplaceAll(subject, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return subject, body, nil
}

func (e *Engine) sheetColumns(kind Kind) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if t, ok := e.templates[kind]; ok {
		return t.SheetColumns
	}
	return nil
}

// ---------------------------------------------------------------------------
// Manager
// ---------------------------------------------------------------------------

// Manager renders, sends, mirrors, and records notifications. It implements
// Dispatcher.
type Manager struct {
	email      EmailSender
	sheets     SheetAppender
	sheetID    string
	engine     *Engine
	logger     zerolog.Logger
	mu         sync.RWMutex
	deliveries map[string]*Delivery
}

// NewManager constructs a Manager. sheets may be nil when spreadsheet
// mirroring is not configured.
func NewManager(email EmailSender, sheets SheetAppender, sheetID string, engine *Engine, logger zerolog.Logger) *Manager {
	return &Manager{
		email:      email,
		sheets:     sheets,
		sheetID:    sheetID,
		engine:     engine,
		logger:     logger,
		deliveries: make(map[string]*Delivery),
	}
}

// Notify renders the template for kind and dispatches it. The returned
// Result carries the delivery id on success and the error text on failure;
// it never panics and never blocks beyond the underlying sender.
func (m *Manager) Notify(ctx context.Context, recipient string, kind Kind, data map[string]string) Result {
	d := &Delivery{
		ID:        uuid.New().String(),
		Kind:      kind,
		Recipient: recipient,
		Data:      data,
		Status:    "pending",
		CreatedAt: time.Now().UTC(),
	}

	subject, body, err := m.engine.Render(kind, data)
	if err != nil {
		d.Status = "failed"
		d.Error = err.Error()
		m.store(d)
		return Result{Success: false, ID: d.ID, Error: d.Error}
	}
	d.Subject = subject
	d.Body = body

	sendErr := m.email.SendEmail(ctx, recipient, subject, body)

	// Spreadsheet mirroring is best-effort on top of best-effort: a sheet
	// failure downgrades the delivery but does not mask an email success.
	if cols := m.engine.sheetColumns(kind); sendErr == nil && m.sheets != nil && len(cols) > 0 {
		row := make([]string, 0, len(cols)+1)
		row = append(row, d.CreatedAt.Format(time.RFC3339))
		for _, c := range cols {
			row = append(row, data[c])
		}
		if err := m.sheets.AppendRow(ctx, m.sheetID, row); err != nil {
			m.logger.Warn().Err(err).Str("kind", string(kind)).Msg("sheet append failed")
		}
	}

	if sendErr != nil {
		d.Status = "failed"
		d.Error = sendErr.Error()
		m.store(d)
		return Result{Success: false, ID: d.ID, Error: d.Error}
	}

	sentAt := time.Now().UTC()
	d.Status = "sent"
	d.SentAt = &sentAt
	m.store(d)
	return Result{Success: true, ID: d.ID}
}

func (m *Manager) store(d *Delivery) {
	m.mu.Lock()
	m.deliveries[d.ID] = d
	m.mu.Unlock()
}

// Get retrieves a recorded delivery by id.
func (m *Manager) Get(id string) (*Delivery, error) {
	m.mu.RLock()
	d, ok := m.deliveries[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("delivery %q not found", id)
	}
	return d, nil
}

// ListByRecipient returns recorded deliveries for a recipient, up to limit.
func (m *Manager) ListByRecipient(recipient string, limit int) []*Delivery {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Delivery
	for _, d := range m.deliveries {
		if d.Recipient == recipient {
			result = append(result, d)
			if len(result) >= limit {
				break
			}
		}
	}
	return result
}

// Retry re-sends a failed delivery. It is an error to retry a delivery that
// is not in failed status.
func (m *Manager) Retry(ctx context.Context, id string) error {
	m.mu.RLock()
	d, ok := m.deliveries[id]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("delivery %q not found", id)
	}
	if d.Status != "failed" {
		return fmt.Errorf("delivery %q is not in failed status (current: %s)", id, d.Status)
	}

	sendErr := m.email.SendEmail(ctx, d.Recipient, d.Subject, d.Body)

	m.mu.Lock()
	if sendErr != nil {
		d.Status = "failed"
		d.Error = sendErr.Error()
	} else {
		sentAt := time.Now().UTC()
		d.Status = "sent"
		d.SentAt = &sentAt
		d.Error = ""
	}
	m.mu.Unlock()

	return sendErr
}

// Stats returns delivery counts grouped by status.
func (m *Manager) Stats() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := make(map[string]int)
	for _, d := range m.deliveries {
		stats[d.Status]++
	}
	return stats
}

// ---------------------------------------------------------------------------
// Senders
// ---------------------------------------------------------------------------

// LogEmailSender writes outbound mail to the log instead of SMTP. It is the
// sender wired in development.
type LogEmailSender struct {
	Logger zerolog.Logger
	From   string
}

// SendEmail logs the message and reports success.
func (s *LogEmailSender) SendEmail(_ context.Context, to, subject, body string) error {
	s.Logger.Info().
		Str("from", s.From).
		Str("to", to).
		Str("subject", subject).
		Int("body_bytes", len(body)).
		Msg("email dispatched")
	return nil
}

// EmailCall records a single call to SendEmail.
type EmailCall struct {
	To      string
	Subject string
	Body    string
}

// MockEmailSender is a test double for EmailSender.
type MockEmailSender struct {
	mu         sync.Mutex
	calls      []EmailCall
	ShouldFail bool
	FailError  string
}

// SendEmail records the call and optionally returns an error.
func (m *MockEmailSender) SendEmail(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, EmailCall{To: to, Subject: subject, Body: body})
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	return nil
}

// Calls returns a copy of recorded email calls.
func (m *MockEmailSender) Calls() []EmailCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EmailCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// SheetRow records one appended spreadsheet row.
type SheetRow struct {
	Sheet string
	Row   []string
}

// MockSheetAppender is a test double for SheetAppender.
type MockSheetAppender struct {
	mu         sync.Mutex
	rows       []SheetRow
	ShouldFail bool
}

// AppendRow records the row and optionally returns an error.
func (m *MockSheetAppender) AppendRow(_ context.Context, sheet string, row []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return errors.New("sheet append failed")
	}
	m.rows = append(m.rows, SheetRow{Sheet: sheet, Row: row})
	return nil
}

// Rows returns a copy of recorded rows.
func (m *MockSheetAppender) Rows() []SheetRow {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SheetRow, len(m.rows))
	copy(out, m.rows)
	return out
}
