package thread

import (
	"context"
	"errors"
	"fmt"

	"leasebook/internal/enums"

	"gorm.io/gorm"
)

func whereTopic(q *gorm.DB, ref TopicRef) *gorm.DB {
	if ref.IsZero() {
		return q.Where("topic_ref IS NULL")
	}
	return q.Where("topic_ref = ?", ref.String())
}

func findOpen(q *gorm.DB, leaseGroupID string, topic enums.TopicType, ref TopicRef) (*Thread, error) {
	var t Thread
	err := whereTopic(q.Where("lease_group_id = ? AND topic_type = ? AND status = ?", leaseGroupID, topic, enums.ThreadOpen), ref).
		First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// preferOpen picks the open thread if there is one, otherwise the most
// recently resolved.
func preferOpen(threads []Thread) *Thread {
	var latest *Thread
	for i := range threads {
		t := &threads[i]
		if t.IsOpen() {
			return t
		}
		if latest == nil || resolvedAfter(t, latest) {
			latest = t
		}
	}
	return latest
}

func resolvedAfter(a, b *Thread) bool {
	switch {
	case a.ResolvedAt == nil:
		return false
	case b.ResolvedAt == nil:
		return true
	}
	return a.ResolvedAt.After(*b.ResolvedAt)
}

func (e *Engine) GetThread(ctx context.Context, id string) (*Thread, error) {
	var t Thread
	if err := e.DB.WithContext(ctx).Where("id = ?", id).First(&t).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get thread: %w", err)
	}
	return &t, nil
}

// FindOpenThread returns the open thread for a topic or ErrNotFound.
func (e *Engine) FindOpenThread(ctx context.Context, leaseGroupID string, topic enums.TopicType, ref TopicRef) (*Thread, error) {
	t, err := findOpen(e.DB.WithContext(ctx), leaseGroupID, topic, ref)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("find open thread: %w", err)
	}
	return t, err
}

// GetThreadsForLeaseGroup lists every thread of the group, oldest first.
func (e *Engine) GetThreadsForLeaseGroup(ctx context.Context, leaseGroupID string) ([]Thread, error) {
	var out []Thread
	if err := e.DB.WithContext(ctx).
		Where("lease_group_id = ?", leaseGroupID).
		Order("created_at asc, id asc").
		Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	return out, nil
}

func (e *Engine) GetMessagesForThread(ctx context.Context, threadID string) ([]Message, error) {
	var out []Message
	if err := e.DB.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Order("created_at asc, id asc").
		Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return out, nil
}

// Snapshot is every thread of a lease group with its messages, read together
// so aggregations see one consistent picture.
type Snapshot struct {
	LeaseGroupID string
	Threads      []Thread
	Messages     map[string][]Message
}

// LoadSnapshot reads threads and messages of a group in one transaction.
func (e *Engine) LoadSnapshot(ctx context.Context, leaseGroupID string) (*Snapshot, error) {
	s := &Snapshot{LeaseGroupID: leaseGroupID, Messages: map[string][]Message{}}
	err := e.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("lease_group_id = ?", leaseGroupID).
			Order("created_at asc, id asc").
			Find(&s.Threads).Error; err != nil {
			return err
		}
		if len(s.Threads) == 0 {
			return nil
		}
		ids := make([]string, len(s.Threads))
		for i, t := range s.Threads {
			ids[i] = t.ID
		}
		var msgs []Message
		if err := tx.Where("thread_id IN ?", ids).
			Order("created_at asc, id asc").
			Find(&msgs).Error; err != nil {
			return err
		}
		for _, m := range msgs {
			s.Messages[m.ThreadID] = append(s.Messages[m.ThreadID], m)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return s, nil
}

func (s *Snapshot) MessagesFor(threadID string) []Message {
	if s == nil {
		return nil
	}
	return s.Messages[threadID]
}

// FindOpen returns the open thread for a topic, or nil.
func (s *Snapshot) FindOpen(topic enums.TopicType, ref TopicRef) *Thread {
	if s == nil {
		return nil
	}
	for i := range s.Threads {
		t := &s.Threads[i]
		if t.IsOpen() && t.TopicType == topic && t.TopicRef == ref {
			return t
		}
	}
	return nil
}

// Relevant returns the thread that describes a topic's current state: the
// open one, else the most recently resolved one, else nil.
func (s *Snapshot) Relevant(topic enums.TopicType, ref TopicRef) *Thread {
	if s == nil {
		return nil
	}
	var matches []Thread
	for _, t := range s.Threads {
		if t.TopicType == topic && t.TopicRef == ref {
			matches = append(matches, t)
		}
	}
	return preferOpen(matches)
}
