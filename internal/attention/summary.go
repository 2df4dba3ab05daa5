package attention

import (
	"sort"

	"leasebook/internal/enums"
	"leasebook/internal/thread"
)

const (
	ReasonTenantReplied  = "Tenant replied"
	ReasonAwaitingReview = "Awaiting your review"
	ReasonMissingPayment = "Expected payment not yet submitted"
	ReasonRenewal        = "Lease approaching expiry"
	ReasonDefault        = "Needs your attention"
)

// Item is one landlord-actionable thread, ready for display.
type Item struct {
	ThreadID     string          `json:"thread_id"`
	TopicType    enums.TopicType `json:"topic_type"`
	DisplayLabel string          `json:"display_label"`
	Reason       string          `json:"reason"`
	OpenMonth    *string         `json:"open_month"`
}

// CountLandlordAttention counts open threads waiting on the landlord. Threads
// waiting on the tenant are not landlord work and never count.
func CountLandlordAttention(threads []thread.Thread) int {
	n := 0
	for i := range threads {
		if threads[i].NeedsLandlord() {
			n++
		}
	}
	return n
}

// Summary lists the threads behind the attention count, ordered by open month
// descending as text. Threads without an open month sort last, in creation
// order.
func Summary(snap *thread.Snapshot) []Item {
	if snap == nil {
		return []Item{}
	}
	type keyed struct {
		item  Item
		month string
	}
	var rows []keyed
	for i := range snap.Threads {
		t := &snap.Threads[i]
		if !t.NeedsLandlord() {
			continue
		}
		item := Item{
			ThreadID:     t.ID,
			TopicType:    t.TopicType,
			DisplayLabel: t.TopicRef.Label(t.TopicType),
			Reason:       reason(t, snap.MessagesFor(t.ID)),
		}
		var month string
		if m := t.TopicRef.OpenMonth(); m != "" && t.TopicRef.Category().IsValid() {
			item.OpenMonth = &m
			month = m
			if p, ok := t.TopicRef.Period(); ok {
				month = p.String()
			}
		}
		rows = append(rows, keyed{item: item, month: month})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].month > rows[j].month
	})

	items := make([]Item, len(rows))
	for i, r := range rows {
		items[i] = r.item
	}
	return items
}

func reason(t *thread.Thread, msgs []thread.Message) string {
	switch t.TopicType {
	case enums.TopicPaymentReview:
		if m := lastReply(msgs); m != nil && m.Actor == enums.PartyTenant {
			return ReasonTenantReplied
		}
		return ReasonAwaitingReview
	case enums.TopicMissingPayment:
		return ReasonMissingPayment
	case enums.TopicRenewal:
		return ReasonRenewal
	}
	return ReasonDefault
}

// lastReply returns the newest message that is part of the conversation
// proper. Submission entries only record a payment and are skipped.
func lastReply(msgs []thread.Message) *thread.Message {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].MessageType != enums.MessageSubmission {
			return &msgs[i]
		}
	}
	return nil
}
