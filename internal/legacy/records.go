// Package legacy moves data between the JSON document collections of the
// first version of the application and the relational store.
package legacy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"leasebook/internal/docstore"
	"leasebook/internal/enums"
	"leasebook/internal/lease"
	"leasebook/internal/payment"
	"leasebook/internal/tenantaccess"
	"leasebook/internal/thread"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// Timestamps in the documents carry no zone and are read as UTC.
const (
	timestampLayout = "2006-01-02T15:04:05.000000"
	dateLayout      = "2006-01-02"
)

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	dateLayout,
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised time %q", s)
}

func parseOptionalTime(s *string) (*time.Time, error) {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil, nil
	}
	t, err := parseTime(*s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func formatTimestamp(t time.Time) string { return t.UTC().Format(timestampLayout) }

func formatOptionalTimestamp(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTimestamp(*t)
}

func formatOptionalDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(dateLayout)
}

// amount accepts numbers, numeric strings, null and the empty string.
type amount struct {
	decimal.NullDecimal
}

func (a *amount) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte(`""`)) {
		a.NullDecimal = decimal.NullDecimal{}
		return nil
	}
	return a.NullDecimal.UnmarshalJSON(b)
}

func (a amount) intPtr() *int {
	if !a.Valid {
		return nil
	}
	n := int(a.Decimal.IntPart())
	return &n
}

func number(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return json.Number(d.Decimal.String())
}

func optionalString(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// decode re-reads a loosely typed record into a document struct.
func decode(rec docstore.Record, dst any) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dst)
}

// encode turns a document struct into a record.
func encode(src any) (docstore.Record, error) {
	b, err := json.Marshal(src)
	if err != nil {
		return nil, err
	}
	var rec docstore.Record
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&rec); err != nil {
		return nil, err
	}
	return rec, nil
}

type expectedDoc struct {
	Type          string `json:"type"`
	Expected      bool   `json:"expected"`
	TypicalAmount amount `json:"typical_amount"`
}

type leaseDoc struct {
	ID            string `json:"id"`
	LeaseGroupID  string `json:"lease_group_id"`
	Version       int    `json:"version"`
	IsCurrent     bool   `json:"is_current"`
	CurrentValues struct {
		Nickname        *string `json:"lease_nickname"`
		LessorName      *string `json:"lessor_name"`
		LesseeName      *string `json:"lessee_name"`
		StartDate       *string `json:"lease_start_date"`
		EndDate         *string `json:"lease_end_date"`
		MonthlyRent     amount  `json:"monthly_rent"`
		SecurityDeposit amount  `json:"security_deposit"`
		RentDueDay      amount  `json:"rent_due_day"`
		LockInPeriod    struct {
			DurationMonths amount `json:"duration_months"`
		} `json:"lock_in_period"`
		RenewalTerms struct {
			RentEscalationPercent amount `json:"rent_escalation_percent"`
		} `json:"renewal_terms"`
		ExpectedPayments []expectedDoc `json:"expected_payments"`
	} `json:"current_values"`
	NeedsExpectedPaymentConfirmation bool `json:"needs_expected_payment_confirmation"`
	SourceDocument                   *struct {
		Filename *string `json:"filename"`
	} `json:"source_document"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func (d leaseDoc) toModel() (*lease.Lease, error) {
	if d.ID == "" || d.LeaseGroupID == "" {
		return nil, fmt.Errorf("missing id or lease_group_id")
	}
	cv := d.CurrentValues
	start, err := parseOptionalTime(cv.StartDate)
	if err != nil {
		return nil, fmt.Errorf("lease_start_date: %w", err)
	}
	end, err := parseOptionalTime(cv.EndDate)
	if err != nil {
		return nil, fmt.Errorf("lease_end_date: %w", err)
	}
	created, err := parseTime(d.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("created_at: %w", err)
	}
	updated := created
	if d.UpdatedAt != "" {
		if updated, err = parseTime(d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("updated_at: %w", err)
		}
	}

	eps := make([]lease.ExpectedPayment, 0, len(cv.ExpectedPayments))
	for _, ep := range cv.ExpectedPayments {
		c, err := enums.ParseCategory(ep.Type)
		if err != nil {
			return nil, err
		}
		eps = append(eps, lease.ExpectedPayment{Type: c, Expected: ep.Expected, TypicalAmount: ep.TypicalAmount.NullDecimal})
	}
	if len(eps) == 0 {
		eps = lease.DefaultExpectedPayments(cv.MonthlyRent.NullDecimal)
	}

	version := d.Version
	if version == 0 {
		version = 1
	}
	l := &lease.Lease{
		ID:           d.ID,
		LeaseGroupID: d.LeaseGroupID,
		Version:      version,
		IsCurrent:    d.IsCurrent,
		Values: lease.Values{
			Nickname:              deref(cv.Nickname),
			LessorName:            deref(cv.LessorName),
			LesseeName:            deref(cv.LesseeName),
			StartDate:             start,
			EndDate:               end,
			MonthlyRent:           cv.MonthlyRent.NullDecimal,
			SecurityDeposit:       cv.SecurityDeposit.NullDecimal,
			RentDueDay:            cv.RentDueDay.intPtr(),
			LockInMonths:          cv.LockInPeriod.DurationMonths.intPtr(),
			RentEscalationPercent: cv.RenewalTerms.RentEscalationPercent.NullDecimal,
		},
		ExpectedPayments:                 eps,
		NeedsExpectedPaymentConfirmation: d.NeedsExpectedPaymentConfirmation,
		CreatedAt:                        created,
		UpdatedAt:                        updated,
	}
	if d.SourceDocument != nil {
		l.SourceFilename = optionalString(d.SourceDocument.Filename)
	}
	return l, nil
}

func leaseRecord(l lease.Lease) (docstore.Record, error) {
	eps := make([]map[string]any, 0, len(l.ExpectedPayments))
	for _, ep := range l.ExpectedPayments {
		eps = append(eps, map[string]any{
			"type":           string(ep.Type),
			"expected":       ep.Expected,
			"typical_amount": number(ep.TypicalAmount),
		})
	}
	var lockIn, dueDay any
	if l.Values.LockInMonths != nil {
		lockIn = *l.Values.LockInMonths
	}
	if l.Values.RentDueDay != nil {
		dueDay = *l.Values.RentDueDay
	}
	return encode(map[string]any{
		"id":             l.ID,
		"lease_group_id": l.LeaseGroupID,
		"version":        l.Version,
		"is_current":     l.IsCurrent,
		"schema_version": docstore.LeaseSchemaVersion,
		"current_values": map[string]any{
			"lease_nickname":    l.Values.Nickname,
			"lessor_name":       l.Values.LessorName,
			"lessee_name":       l.Values.LesseeName,
			"lease_start_date":  formatOptionalDate(l.Values.StartDate),
			"lease_end_date":    formatOptionalDate(l.Values.EndDate),
			"monthly_rent":      number(l.Values.MonthlyRent),
			"security_deposit":  number(l.Values.SecurityDeposit),
			"rent_due_day":      dueDay,
			"lock_in_period":    map[string]any{"duration_months": lockIn},
			"renewal_terms":     map[string]any{"rent_escalation_percent": number(l.Values.RentEscalationPercent)},
			"expected_payments": eps,
		},
		"needs_expected_payment_confirmation": l.NeedsExpectedPaymentConfirmation,
		"source_document": map[string]any{
			"filename":       l.SourceFilename,
			"mimetype":       nil,
			"extracted_text": nil,
			"extracted_at":   nil,
		},
		"ai_extraction": nil,
		"created_at":    formatTimestamp(l.CreatedAt),
		"updated_at":    formatTimestamp(l.UpdatedAt),
	})
}

type terminationDoc struct {
	ID              string  `json:"id"`
	LeaseID         string  `json:"lease_id"`
	TerminationDate string  `json:"termination_date"`
	TerminatedAt    string  `json:"terminated_at"`
	TerminatedBy    string  `json:"terminated_by"`
	Note            *string `json:"note"`
}

func (d terminationDoc) toModel() (*lease.Termination, error) {
	if d.ID == "" || d.LeaseID == "" {
		return nil, fmt.Errorf("missing id or lease_id")
	}
	date, err := parseTime(d.TerminationDate)
	if err != nil {
		return nil, fmt.Errorf("termination_date: %w", err)
	}
	at, err := parseTime(d.TerminatedAt)
	if err != nil {
		return nil, fmt.Errorf("terminated_at: %w", err)
	}
	by := d.TerminatedBy
	if by == "" {
		by = "landlord"
	}
	return &lease.Termination{
		ID:              d.ID,
		LeaseID:         d.LeaseID,
		TerminationDate: date,
		TerminatedAt:    at,
		TerminatedBy:    by,
		Note:            optionalString(d.Note),
	}, nil
}

func terminationRecord(t lease.Termination) (docstore.Record, error) {
	return encode(terminationDoc{
		ID:              t.ID,
		LeaseID:         t.LeaseID,
		TerminationDate: t.TerminationDate.UTC().Format(dateLayout),
		TerminatedAt:    formatTimestamp(t.TerminatedAt),
		TerminatedBy:    t.TerminatedBy,
		Note:            t.Note,
	})
}

type confirmationDoc struct {
	ID                     string   `json:"id"`
	LeaseGroupID           string   `json:"lease_group_id"`
	ConfirmationType       string   `json:"confirmation_type"`
	PeriodMonth            int      `json:"period_month"`
	PeriodYear             int      `json:"period_year"`
	AmountAgreed           amount   `json:"amount_agreed"`
	AmountDeclared         amount   `json:"amount_declared"`
	TDSDeducted            amount   `json:"tds_deducted"`
	DatePaid               *string  `json:"date_paid"`
	ProofFiles             []string `json:"proof_files"`
	VerificationStatus     string   `json:"verification_status"`
	DisclaimerAcknowledged *string  `json:"disclaimer_acknowledged"`
	SubmittedAt            string   `json:"submitted_at"`
	SubmittedVia           string   `json:"submitted_via"`
	Notes                  *string  `json:"notes"`
}

func (d confirmationDoc) toModel() (*payment.Confirmation, error) {
	if d.ID == "" || d.LeaseGroupID == "" {
		return nil, fmt.Errorf("missing id or lease_group_id")
	}
	c, err := enums.ParseCategory(d.ConfirmationType)
	if err != nil {
		return nil, err
	}
	if d.PeriodMonth < 1 || d.PeriodMonth > 12 {
		return nil, fmt.Errorf("period_month %d out of range", d.PeriodMonth)
	}
	if !d.AmountDeclared.Valid {
		return nil, fmt.Errorf("amount_declared is required")
	}
	datePaid, err := parseOptionalTime(d.DatePaid)
	if err != nil {
		return nil, fmt.Errorf("date_paid: %w", err)
	}
	disclaimer, err := parseOptionalTime(d.DisclaimerAcknowledged)
	if err != nil {
		return nil, fmt.Errorf("disclaimer_acknowledged: %w", err)
	}
	submitted, err := parseTime(d.SubmittedAt)
	if err != nil {
		return nil, fmt.Errorf("submitted_at: %w", err)
	}
	via := enums.SubmissionChannel(d.SubmittedVia)
	if via == "" {
		via = enums.ViaTenantLink
	}
	proofs := d.ProofFiles
	if proofs == nil {
		proofs = []string{}
	}
	return &payment.Confirmation{
		ID:                     d.ID,
		LeaseGroupID:           d.LeaseGroupID,
		ConfirmationType:       c,
		PeriodYear:             d.PeriodYear,
		PeriodMonth:            d.PeriodMonth,
		AmountAgreed:           d.AmountAgreed.NullDecimal,
		AmountDeclared:         d.AmountDeclared.Decimal,
		TDSDeducted:            d.TDSDeducted.NullDecimal,
		DatePaid:               datePaid,
		ProofFiles:             pq.StringArray(proofs),
		VerificationStatus:     payment.VerificationUnverified,
		DisclaimerAcknowledged: disclaimer,
		SubmittedAt:            submitted,
		SubmittedVia:           via,
		Notes:                  optionalString(d.Notes),
	}, nil
}

func confirmationRecord(c payment.Confirmation) (docstore.Record, error) {
	proofs := []string(c.ProofFiles)
	if proofs == nil {
		proofs = []string{}
	}
	return encode(map[string]any{
		"id":                      c.ID,
		"lease_group_id":          c.LeaseGroupID,
		"confirmation_type":       string(c.ConfirmationType),
		"period_month":            c.PeriodMonth,
		"period_year":             c.PeriodYear,
		"amount_agreed":           number(c.AmountAgreed),
		"amount_declared":         json.Number(c.AmountDeclared.String()),
		"tds_deducted":            number(c.TDSDeducted),
		"date_paid":               formatOptionalDate(c.DatePaid),
		"proof_files":             proofs,
		"verification_status":     c.VerificationStatus,
		"disclaimer_acknowledged": formatOptionalTimestamp(c.DisclaimerAcknowledged),
		"submitted_at":            formatTimestamp(c.SubmittedAt),
		"submitted_via":           string(c.SubmittedVia),
		"notes":                   c.Notes,
	})
}

type tokenDoc struct {
	Token         string  `json:"token"`
	LeaseGroupID  string  `json:"lease_group_id"`
	IsActive      bool    `json:"is_active"`
	IssuedAt      string  `json:"issued_at"`
	RevokedAt     *string `json:"revoked_at"`
	RevokedReason *string `json:"revoked_reason"`
	LastUsedAt    *string `json:"last_used_at"`
}

func (d tokenDoc) toModel() (*tenantaccess.Token, error) {
	if d.Token == "" || d.LeaseGroupID == "" {
		return nil, fmt.Errorf("missing token or lease_group_id")
	}
	issued, err := parseTime(d.IssuedAt)
	if err != nil {
		return nil, fmt.Errorf("issued_at: %w", err)
	}
	revoked, err := parseOptionalTime(d.RevokedAt)
	if err != nil {
		return nil, fmt.Errorf("revoked_at: %w", err)
	}
	used, err := parseOptionalTime(d.LastUsedAt)
	if err != nil {
		return nil, fmt.Errorf("last_used_at: %w", err)
	}
	return &tenantaccess.Token{
		Token:         d.Token,
		LeaseGroupID:  d.LeaseGroupID,
		IsActive:      d.IsActive,
		IssuedAt:      issued,
		RevokedAt:     revoked,
		RevokedReason: d.RevokedReason,
		LastUsedAt:    used,
	}, nil
}

func tokenRecord(t tenantaccess.Token) (docstore.Record, error) {
	return encode(map[string]any{
		"token":          t.Token,
		"lease_group_id": t.LeaseGroupID,
		"is_active":      t.IsActive,
		"issued_at":      formatTimestamp(t.IssuedAt),
		"revoked_at":     formatOptionalTimestamp(t.RevokedAt),
		"revoked_reason": t.RevokedReason,
		"last_used_at":   formatOptionalTimestamp(t.LastUsedAt),
	})
}

type threadDoc struct {
	ID           string  `json:"id"`
	LeaseGroupID string  `json:"lease_group_id"`
	TopicType    string  `json:"topic_type"`
	TopicRef     *string `json:"topic_ref"`
	Status       string  `json:"status"`
	WaitingOn    *string `json:"waiting_on"`
	CreatedAt    string  `json:"created_at"`
	ResolvedAt   *string `json:"resolved_at"`
}

// toModel converts a thread. The documents do not track last activity, so it
// is the latest message time, or the creation time for an empty thread.
func (d threadDoc) toModel(lastMessage time.Time) (*thread.Thread, error) {
	if d.ID == "" || d.LeaseGroupID == "" {
		return nil, fmt.Errorf("missing id or lease_group_id")
	}
	status := enums.ThreadStatus(d.Status)
	if status != enums.ThreadOpen && status != enums.ThreadResolved {
		return nil, fmt.Errorf("invalid status %q", d.Status)
	}
	created, err := parseTime(d.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("created_at: %w", err)
	}
	resolved, err := parseOptionalTime(d.ResolvedAt)
	if err != nil {
		return nil, fmt.Errorf("resolved_at: %w", err)
	}
	last := created
	if lastMessage.After(last) {
		last = lastMessage
	}
	t := &thread.Thread{
		ID:             d.ID,
		LeaseGroupID:   d.LeaseGroupID,
		TopicType:      enums.TopicType(d.TopicType),
		Status:         status,
		WaitingOn:      enums.Party(deref(d.WaitingOn)),
		CreatedAt:      created,
		LastActivityAt: last,
		ResolvedAt:     resolved,
	}
	if d.TopicRef != nil {
		t.TopicRef = thread.ParseTopicRef(*d.TopicRef)
	}
	return t, nil
}

func threadRecord(t thread.Thread) (docstore.Record, error) {
	var ref, waiting any
	if !t.TopicRef.IsZero() {
		ref = t.TopicRef.String()
	}
	if t.WaitingOn != enums.PartyNone {
		waiting = string(t.WaitingOn)
	}
	return encode(map[string]any{
		"id":             t.ID,
		"lease_group_id": t.LeaseGroupID,
		"topic_type":     string(t.TopicType),
		"topic_ref":      ref,
		"status":         string(t.Status),
		"waiting_on":     waiting,
		"created_at":     formatTimestamp(t.CreatedAt),
		"resolved_at":    formatOptionalTimestamp(t.ResolvedAt),
	})
}

type messageDoc struct {
	ID          string   `json:"id"`
	ThreadID    string   `json:"thread_id"`
	CreatedAt   string   `json:"created_at"`
	Actor       string   `json:"actor"`
	MessageType string   `json:"message_type"`
	Body        *string  `json:"body"`
	PaymentID   *string  `json:"payment_id"`
	Attachments []string `json:"attachments"`
	Channel     string   `json:"channel"`
}

func (d messageDoc) createdAt() (time.Time, error) { return parseTime(d.CreatedAt) }

func (d messageDoc) toModel() (*thread.Message, error) {
	if d.ID == "" || d.ThreadID == "" {
		return nil, fmt.Errorf("missing id or thread_id")
	}
	created, err := d.createdAt()
	if err != nil {
		return nil, fmt.Errorf("created_at: %w", err)
	}
	actor := enums.Party(d.Actor)
	if !actor.IsValid() {
		return nil, fmt.Errorf("invalid actor %q", d.Actor)
	}
	channel := d.Channel
	if channel == "" {
		channel = "internal"
	}
	attachments := d.Attachments
	if attachments == nil {
		attachments = []string{}
	}
	return &thread.Message{
		ID:          d.ID,
		ThreadID:    d.ThreadID,
		CreatedAt:   created,
		Actor:       actor,
		MessageType: enums.MessageType(d.MessageType),
		Body:        d.Body,
		PaymentID:   optionalString(d.PaymentID),
		Attachments: pq.StringArray(attachments),
		Channel:     channel,
	}, nil
}

func messageRecord(m thread.Message) (docstore.Record, error) {
	attachments := []string(m.Attachments)
	if attachments == nil {
		attachments = []string{}
	}
	return encode(map[string]any{
		"id":            m.ID,
		"thread_id":     m.ThreadID,
		"created_at":    formatTimestamp(m.CreatedAt),
		"actor":         string(m.Actor),
		"message_type":  string(m.MessageType),
		"body":          m.Body,
		"payment_id":    m.PaymentID,
		"attachments":   attachments,
		"channel":       m.Channel,
		"delivered_via": []string{m.Channel},
		"external_ref":  nil,
	})
}
