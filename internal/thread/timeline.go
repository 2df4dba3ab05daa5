package thread

import (
	"time"

	"leasebook/internal/enums"
	"leasebook/internal/payment"
)

const (
	EntrySubmission = "submission"
	EntryEvent      = "event"
)

// TimelineEntry is one row of a thread's history. Submissions carry the
// payment they declared; every other message is an event.
type TimelineEntry struct {
	EntryType   string                `json:"entry_type"`
	Timestamp   time.Time             `json:"timestamp"`
	PaymentID   *string               `json:"payment_id"`
	MessageType enums.MessageType     `json:"message_type,omitempty"`
	Actor       enums.Party           `json:"actor,omitempty"`
	Body        *string               `json:"body,omitempty"`
	Attachments []string              `json:"attachments,omitempty"`
	Payment     *payment.Confirmation `json:"payment,omitempty"`
}

// BuildThreadTimeline joins messages with the payments they reference,
// preserving message order. A submission whose payment is missing from the
// lookup still appears, without payment details.
func BuildThreadTimeline(messages []Message, payments map[string]payment.Confirmation) []TimelineEntry {
	out := make([]TimelineEntry, 0, len(messages))
	for _, m := range messages {
		if m.MessageType == enums.MessageSubmission {
			e := TimelineEntry{
				EntryType: EntrySubmission,
				Timestamp: m.CreatedAt,
				PaymentID: m.PaymentID,
			}
			if m.PaymentID != nil {
				if pc, ok := payments[*m.PaymentID]; ok {
					e.Payment = &pc
				}
			}
			out = append(out, e)
			continue
		}
		out = append(out, TimelineEntry{
			EntryType:   EntryEvent,
			Timestamp:   m.CreatedAt,
			PaymentID:   m.PaymentID,
			MessageType: m.MessageType,
			Actor:       m.Actor,
			Body:        m.Body,
			Attachments: []string(m.Attachments),
		})
	}
	return out
}

// PaymentLookup indexes confirmations by ID.
func PaymentLookup(all []payment.Confirmation) map[string]payment.Confirmation {
	out := make(map[string]payment.Confirmation, len(all))
	for _, c := range all {
		out[c.ID] = c
	}
	return out
}
