package thread

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"leasebook/internal/enums"
	"leasebook/internal/logger"
	"leasebook/internal/metrics"
	"leasebook/internal/payment"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrNotFound       = errors.New("thread not found")
	ErrInvalidThread  = errors.New("invalid thread")
	ErrInvalidMessage = errors.New("invalid message")
)

// PaymentLister is the read side of the payment confirmation log.
type PaymentLister interface {
	ListForLeaseGroup(ctx context.Context, leaseGroupID string) ([]payment.Confirmation, error)
}

// Engine owns thread and message writes. Each write is one transaction, and
// writers inside the process are serialized.
type Engine struct {
	DB       *gorm.DB
	Payments PaymentLister
	Now      func() time.Time
	Log      *logger.Logger
	Metrics  *metrics.ThreadMetrics

	// OnChange runs after a write commits, outside the lock.
	OnChange func(ctx context.Context, leaseGroupID string)

	mu sync.Mutex
}

// NewMessage describes a message to append.
type NewMessage struct {
	ThreadID    string
	Actor       enums.Party
	Type        enums.MessageType
	Body        string
	PaymentID   string
	Attachments []string
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

// write runs fn in one transaction while holding the engine lock.
func (e *Engine) write(ctx context.Context, fn func(tx *gorm.DB) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.DB.WithContext(ctx).Transaction(fn)
}

func (e *Engine) changed(ctx context.Context, leaseGroupID string, msg string, fields map[string]any) {
	if e.Log != nil {
		ctx = e.Log.WithLeaseGroup(ctx, leaseGroupID)
		ctx = e.Log.WithFields(ctx, fields)
		e.Log.Info(ctx, msg)
	}
	if e.OnChange != nil {
		e.OnChange(ctx, leaseGroupID)
	}
}

func (e *Engine) failed(ctx context.Context, leaseGroupID, msg string, err error) {
	if e.Log == nil {
		return
	}
	e.Log.Error(e.Log.WithLeaseGroup(ctx, leaseGroupID), msg, err)
}

func (e *Engine) newThread(leaseGroupID string, topic enums.TopicType, ref TopicRef, waitingOn enums.Party, at time.Time) Thread {
	return Thread{
		ID:             uuid.NewString(),
		LeaseGroupID:   leaseGroupID,
		TopicType:      topic,
		TopicRef:       ref,
		Status:         enums.ThreadOpen,
		WaitingOn:      waitingOn,
		CreatedAt:      at,
		LastActivityAt: at,
	}
}

func validateTopic(leaseGroupID string, topic enums.TopicType, waitingOn enums.Party) (enums.Party, error) {
	if strings.TrimSpace(leaseGroupID) == "" {
		return "", fmt.Errorf("%w: lease group is required", ErrInvalidThread)
	}
	if !topic.IsValid() {
		return "", fmt.Errorf("%w: unknown topic type %q", ErrInvalidThread, topic)
	}
	switch waitingOn {
	case enums.PartyNone:
		return enums.PartyLandlord, nil
	case enums.PartyLandlord, enums.PartyTenant:
		return waitingOn, nil
	}
	return "", fmt.Errorf("%w: cannot wait on %q", ErrInvalidThread, waitingOn)
}

// EnsureThreadExists returns the open thread for the topic, creating one when
// none is open. Resolved threads for the same topic do not count, so a new
// review cycle can start after an earlier one closed. An empty waitingOn means
// landlord.
func (e *Engine) EnsureThreadExists(ctx context.Context, leaseGroupID string, topic enums.TopicType, ref TopicRef, waitingOn enums.Party) (*Thread, error) {
	waitingOn, err := validateTopic(leaseGroupID, topic, waitingOn)
	if err != nil {
		return nil, err
	}

	var (
		out     Thread
		created bool
	)
	err = e.write(ctx, func(tx *gorm.DB) error {
		existing, err := findOpen(tx.Clauses(clause.Locking{Strength: "UPDATE"}), leaseGroupID, topic, ref)
		if err == nil {
			out = *existing
			return nil
		}
		if !errors.Is(err, ErrNotFound) {
			return err
		}
		out = e.newThread(leaseGroupID, topic, ref, waitingOn, e.now())
		created = true
		return tx.Create(&out).Error
	})

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// Another process opened it between our read and insert.
		return e.FindOpenThread(ctx, leaseGroupID, topic, ref)
	}
	if err != nil {
		e.failed(ctx, leaseGroupID, "thread.ensure_failed", err)
		return nil, fmt.Errorf("ensure thread: %w", err)
	}
	if created {
		e.Metrics.ThreadCreated(string(topic))
		e.changed(ctx, leaseGroupID, "thread.opened", map[string]any{
			"thread_id":  out.ID,
			"topic_type": string(topic),
			"topic_ref":  ref.String(),
		})
	}
	return &out, nil
}

// EnsureThreadOnce is EnsureThreadExists for system topics that must never be
// reopened: any thread for the topic, open or resolved, satisfies it. The
// returned bool reports whether a thread was created.
func (e *Engine) EnsureThreadOnce(ctx context.Context, leaseGroupID string, topic enums.TopicType, ref TopicRef, waitingOn enums.Party) (*Thread, bool, error) {
	waitingOn, err := validateTopic(leaseGroupID, topic, waitingOn)
	if err != nil {
		return nil, false, err
	}

	var (
		out     Thread
		created bool
	)
	err = e.write(ctx, func(tx *gorm.DB) error {
		var rows []Thread
		if err := whereTopic(tx.Where("lease_group_id = ? AND topic_type = ?", leaseGroupID, topic), ref).
			Order("created_at desc").
			Find(&rows).Error; err != nil {
			return err
		}
		if t := preferOpen(rows); t != nil {
			out = *t
			return nil
		}
		out = e.newThread(leaseGroupID, topic, ref, waitingOn, e.now())
		created = true
		return tx.Create(&out).Error
	})

	if err != nil {
		e.failed(ctx, leaseGroupID, "thread.ensure_once_failed", err)
		return nil, false, fmt.Errorf("ensure thread once: %w", err)
	}
	if created {
		e.Metrics.ThreadCreated(string(topic))
		e.changed(ctx, leaseGroupID, "thread.opened", map[string]any{
			"thread_id":  out.ID,
			"topic_type": string(topic),
			"topic_ref":  ref.String(),
		})
	}
	return &out, created, nil
}

// AddMessageToThread appends a message and applies its transition to the
// thread. Messages may still be appended to a resolved thread, but its state
// stays frozen.
func (e *Engine) AddMessageToThread(ctx context.Context, in NewMessage) (*Message, error) {
	if !in.Type.IsValid() {
		return nil, fmt.Errorf("%w: unknown message type %q", ErrInvalidMessage, in.Type)
	}
	if !in.Actor.IsValid() {
		return nil, fmt.Errorf("%w: unknown actor %q", ErrInvalidMessage, in.Actor)
	}

	var (
		msg Message
		t   Thread
	)
	err := e.write(ctx, func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", in.ThreadID).First(&t).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		now := e.now()
		attachments := pq.StringArray{}
		attachments = append(attachments, in.Attachments...)
		msg = Message{
			ID:          uuid.NewString(),
			ThreadID:    t.ID,
			CreatedAt:   now,
			Actor:       in.Actor,
			MessageType: in.Type,
			Body:        optional(in.Body),
			PaymentID:   optional(in.PaymentID),
			Attachments: attachments,
			Channel:     "internal",
		}
		if err := tx.Create(&msg).Error; err != nil {
			return err
		}

		apply(&t, in.Type, in.Actor, now)
		return tx.Save(&t).Error
	})

	if errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if err != nil {
		e.failed(ctx, t.LeaseGroupID, "thread.message_failed", err)
		return nil, fmt.Errorf("add message: %w", err)
	}

	e.Metrics.MessageAdded(string(in.Type), string(in.Actor))
	if t.Status == enums.ThreadResolved && in.Type == enums.MessageAcknowledge {
		e.Metrics.ThreadResolved(string(t.TopicType))
	}
	e.changed(ctx, t.LeaseGroupID, "thread.message_added", map[string]any{
		"thread_id":    t.ID,
		"message_type": string(in.Type),
		"actor":        string(in.Actor),
		"waiting_on":   string(t.WaitingOn),
		"status":       string(t.Status),
	})
	return &msg, nil
}

// ResolveThread closes a thread without a message. Resolving a resolved
// thread is a no-op; nothing reopens a thread.
func (e *Engine) ResolveThread(ctx context.Context, threadID string) (*Thread, error) {
	var (
		t       Thread
		changed bool
	)
	err := e.write(ctx, func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", threadID).First(&t).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if !t.IsOpen() {
			return nil
		}
		now := e.now()
		t.Status = enums.ThreadResolved
		t.WaitingOn = enums.PartyNone
		t.ResolvedAt = &now
		t.LastActivityAt = now
		changed = true
		return tx.Save(&t).Error
	})

	if errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if err != nil {
		e.failed(ctx, t.LeaseGroupID, "thread.resolve_failed", err)
		return nil, fmt.Errorf("resolve thread: %w", err)
	}
	if changed {
		e.Metrics.ThreadResolved(string(t.TopicType))
		e.changed(ctx, t.LeaseGroupID, "thread.resolved", map[string]any{"thread_id": t.ID})
	}
	return &t, nil
}

// MaterialiseSystemThreads opens a payment_review thread for every
// (category, month) in the group's payments that has never had one. Unlike
// EnsureThreadExists it counts resolved threads too, so a reviewed month is
// never reopened. Reports whether anything was created.
func (e *Engine) MaterialiseSystemThreads(ctx context.Context, leaseGroupID string) (bool, error) {
	if e.Payments == nil {
		return false, errors.New("materialise threads: no payment log configured")
	}
	confirmations, err := e.Payments.ListForLeaseGroup(ctx, leaseGroupID)
	if err != nil {
		return false, fmt.Errorf("materialise threads: list payments: %w", err)
	}
	if len(confirmations) == 0 {
		return false, nil
	}

	wanted := map[string]TopicRef{}
	for _, c := range confirmations {
		if !c.ConfirmationType.IsValid() || !c.Period().Valid() {
			continue
		}
		ref := PeriodRef(c.ConfirmationType, c.Period())
		wanted[ref.String()] = ref
	}
	keys := make([]string, 0, len(wanted))
	for k := range wanted {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var created []Thread
	err = e.write(ctx, func(tx *gorm.DB) error {
		var existing []Thread
		if err := tx.Where("lease_group_id = ? AND topic_type = ?", leaseGroupID, enums.TopicPaymentReview).
			Find(&existing).Error; err != nil {
			return err
		}
		seen := map[string]bool{}
		for _, t := range existing {
			seen[t.TopicRef.String()] = true
		}

		now := e.now()
		for _, k := range keys {
			if seen[k] {
				continue
			}
			created = append(created, e.newThread(leaseGroupID, enums.TopicPaymentReview, wanted[k], enums.PartyLandlord, now))
		}
		if len(created) == 0 {
			return nil
		}
		return tx.Create(&created).Error
	})

	if err != nil {
		e.failed(ctx, leaseGroupID, "thread.materialise_failed", err)
		return false, fmt.Errorf("materialise threads: %w", err)
	}
	if len(created) == 0 {
		return false, nil
	}
	for range created {
		e.Metrics.ThreadCreated(string(enums.TopicPaymentReview))
	}
	e.changed(ctx, leaseGroupID, "thread.materialised", map[string]any{"created": len(created)})
	return true, nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
