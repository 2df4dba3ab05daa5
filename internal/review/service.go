// Package review carries out the conversation actions landlords and tenants
// take on payment submissions. It turns a request about a payment into the
// matching thread message, storing any attachment first.
package review

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"leasebook/internal/blob"
	"leasebook/internal/enums"
	"leasebook/internal/logger"
	"leasebook/internal/payment"
	"leasebook/internal/thread"

	"github.com/google/uuid"
)

var (
	ErrInvalidKind         = errors.New("invalid review type")
	ErrMessageRequired     = errors.New("a message is required")
	ErrNoOpenConversation  = errors.New("no open conversation")
	ErrThreadNotInGroup    = errors.New("thread does not belong to this lease group")
	ErrInvalidReminderType = errors.New("reminder type must be reminder or nudge")
)

// Kind is the landlord's review action on a payment.
type Kind string

const (
	KindFlagged      Kind = "flagged"
	KindResponse     Kind = "response"
	KindAcknowledged Kind = "acknowledged"
)

func (k Kind) messageType() (enums.MessageType, bool) {
	switch k {
	case KindFlagged:
		return enums.MessageFlag, true
	case KindResponse:
		return enums.MessageReply, true
	case KindAcknowledged:
		return enums.MessageAcknowledge, true
	}
	return "", false
}

// Upload is a file sent along with a message or submission.
type Upload struct {
	Filename string
	Body     io.Reader
}

type Service struct {
	Payments *payment.Log
	Threads  *thread.Engine
	Blobs    *blob.Store
	Log      *logger.Logger
	Now      func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Result reports the message written and whether the conversation about the
// payment's category and month is still open afterwards.
type Result struct {
	Message   *thread.Message `json:"message"`
	ThreadID  string          `json:"thread_id"`
	StillOpen bool            `json:"still_open"`
	OpenMonth string          `json:"open_month"`
}

type ReviewInput struct {
	LeaseGroupID string
	PaymentID    string
	Kind         Kind
	Message      string
	Attachment   *Upload
}

// Review records a landlord flag, reply or acknowledgement on a payment.
// Flags and replies need a message; a reply also needs an open conversation.
func (s *Service) Review(ctx context.Context, in ReviewInput) (*Result, error) {
	msgType, ok := in.Kind.messageType()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, in.Kind)
	}
	body := strings.TrimSpace(in.Message)
	if body == "" && (in.Kind == KindFlagged || in.Kind == KindResponse) {
		return nil, ErrMessageRequired
	}

	p, err := s.Payments.GetForLeaseGroup(ctx, in.LeaseGroupID, in.PaymentID)
	if err != nil {
		return nil, err
	}
	ref := thread.PeriodRef(p.ConfirmationType, p.Period())

	var th *thread.Thread
	if in.Kind == KindResponse {
		th, err = s.openThread(ctx, in.LeaseGroupID, ref)
		if err != nil {
			return nil, err
		}
	}

	attachments, err := s.store(ctx, in.LeaseGroupID, in.Attachment)
	if err != nil {
		return nil, err
	}
	if th == nil {
		th, err = s.Threads.EnsureThreadExists(ctx, in.LeaseGroupID, enums.TopicPaymentReview, ref, enums.PartyLandlord)
		if err != nil {
			s.discard(ctx, attachments)
			return nil, err
		}
	}
	return s.post(ctx, th, ref, thread.NewMessage{
		ThreadID:    th.ID,
		Actor:       enums.PartyLandlord,
		Type:        msgType,
		Body:        body,
		PaymentID:   p.ID,
		Attachments: attachments,
	})
}

// TenantReply answers an open conversation about one of the group's payments.
func (s *Service) TenantReply(ctx context.Context, leaseGroupID, paymentID, message string, attachment *Upload) (*Result, error) {
	body := strings.TrimSpace(message)
	if body == "" {
		return nil, ErrMessageRequired
	}
	p, err := s.Payments.GetForLeaseGroup(ctx, leaseGroupID, paymentID)
	if err != nil {
		return nil, err
	}
	ref := thread.PeriodRef(p.ConfirmationType, p.Period())
	th, err := s.openThread(ctx, leaseGroupID, ref)
	if err != nil {
		return nil, err
	}
	attachments, err := s.store(ctx, leaseGroupID, attachment)
	if err != nil {
		return nil, err
	}
	return s.post(ctx, th, ref, thread.NewMessage{
		ThreadID:    th.ID,
		Actor:       enums.PartyTenant,
		Type:        enums.MessageReply,
		Body:        body,
		PaymentID:   p.ID,
		Attachments: attachments,
	})
}

// Remind posts a landlord reminder or nudge on an open thread. Neither
// changes who the thread is waiting on.
func (s *Service) Remind(ctx context.Context, leaseGroupID, threadID string, msgType enums.MessageType, message string) (*thread.Message, error) {
	if msgType != enums.MessageReminder && msgType != enums.MessageNudge {
		return nil, ErrInvalidReminderType
	}
	th, err := s.Threads.GetThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if th.LeaseGroupID != leaseGroupID {
		return nil, ErrThreadNotInGroup
	}
	if !th.IsOpen() {
		return nil, ErrNoOpenConversation
	}
	return s.Threads.AddMessageToThread(ctx, thread.NewMessage{
		ThreadID: th.ID,
		Actor:    enums.PartyLandlord,
		Type:     msgType,
		Body:     message,
	})
}

// Submit appends a payment submission with its proof files, then brings the
// group's review threads up to date. A tenant resubmission for a month whose
// conversation was already open is also posted to that conversation, which
// hands it back to the landlord. A first submission only opens the review.
func (s *Service) Submit(ctx context.Context, in payment.SubmitInput, proofs map[enums.Category]Upload) ([]payment.Confirmation, error) {
	if err := payment.Validate(in, s.now()); err != nil {
		return nil, err
	}

	var stored []string
	for i := range in.Sections {
		sec := &in.Sections[i]
		if sec.ID == "" {
			sec.ID = uuid.NewString()
		}
		up, ok := proofs[sec.Category]
		if !ok || up.Body == nil || strings.TrimSpace(up.Filename) == "" {
			continue
		}
		rel, err := s.Blobs.Put(ctx, in.LeaseGroupID, sec.ID, up.Filename, up.Body)
		if err != nil {
			s.discard(ctx, stored)
			return nil, fmt.Errorf("%s proof: %w", sec.Category.Label(), err)
		}
		stored = append(stored, rel)
		sec.ProofFiles = append(sec.ProofFiles, rel)
	}

	records, err := s.Payments.Submit(ctx, in)
	if err != nil {
		s.discard(ctx, stored)
		return nil, err
	}

	// Conversations open before this submission; only those get the
	// submission posted into them.
	var resubmitted map[string]string
	if in.Via == enums.ViaTenantLink {
		resubmitted = s.openReviews(ctx, in.LeaseGroupID, records)
	}

	// The payments are committed; thread upkeep failures are logged and
	// repaired by the next materialisation.
	if _, err := s.Threads.MaterialiseSystemThreads(ctx, in.LeaseGroupID); err != nil {
		s.Log.Error(ctx, "review.materialise_failed", err)
		return records, nil
	}
	for _, rec := range records {
		threadID, ok := resubmitted[rec.ID]
		if !ok {
			continue
		}
		_, err := s.Threads.AddMessageToThread(ctx, thread.NewMessage{
			ThreadID:    threadID,
			Actor:       enums.PartyTenant,
			Type:        enums.MessageSubmission,
			PaymentID:   rec.ID,
			Attachments: []string(rec.ProofFiles),
		})
		if err != nil {
			s.Log.Error(ctx, "review.submission_message_failed", err)
		}
	}
	return records, nil
}

// openReviews maps each record to the payment_review thread already open for
// its category and month.
func (s *Service) openReviews(ctx context.Context, leaseGroupID string, records []payment.Confirmation) map[string]string {
	out := make(map[string]string, len(records))
	for _, rec := range records {
		ref := thread.PeriodRef(rec.ConfirmationType, rec.Period())
		th, err := s.Threads.FindOpenThread(ctx, leaseGroupID, enums.TopicPaymentReview, ref)
		if err != nil {
			if !errors.Is(err, thread.ErrNotFound) {
				s.Log.Error(ctx, "review.find_thread_failed", err)
			}
			continue
		}
		out[rec.ID] = th.ID
	}
	return out
}

func (s *Service) openThread(ctx context.Context, leaseGroupID string, ref thread.TopicRef) (*thread.Thread, error) {
	th, err := s.Threads.FindOpenThread(ctx, leaseGroupID, enums.TopicPaymentReview, ref)
	if errors.Is(err, thread.ErrNotFound) {
		return nil, ErrNoOpenConversation
	}
	return th, err
}

func (s *Service) post(ctx context.Context, th *thread.Thread, ref thread.TopicRef, msg thread.NewMessage) (*Result, error) {
	m, err := s.Threads.AddMessageToThread(ctx, msg)
	if err != nil {
		s.discard(ctx, msg.Attachments)
		return nil, err
	}
	res := &Result{Message: m, ThreadID: th.ID, OpenMonth: ref.OpenMonth()}
	_, err = s.Threads.FindOpenThread(ctx, th.LeaseGroupID, th.TopicType, ref)
	switch {
	case err == nil:
		res.StillOpen = true
	case !errors.Is(err, thread.ErrNotFound):
		return nil, err
	}
	return res, nil
}

func (s *Service) store(ctx context.Context, leaseGroupID string, up *Upload) ([]string, error) {
	if up == nil || up.Body == nil || strings.TrimSpace(up.Filename) == "" {
		return nil, nil
	}
	rel, err := s.Blobs.Put(ctx, leaseGroupID, uuid.NewString(), up.Filename, up.Body)
	if err != nil {
		return nil, fmt.Errorf("attachment: %w", err)
	}
	return []string{rel}, nil
}

func (s *Service) discard(ctx context.Context, paths []string) {
	for _, p := range paths {
		if err := s.Blobs.Remove(p); err != nil {
			s.Log.Warn(ctx, "review.discard_failed")
		}
	}
}
