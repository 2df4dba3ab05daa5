package thread

import (
	"time"

	"leasebook/internal/enums"

	"github.com/lib/pq"
)

// Thread is a conversation about one topic of a lease group. It is created
// open and resolves exactly once; resolved threads are history and never reopen.
type Thread struct {
	ID             string             `gorm:"primaryKey;type:varchar(36)" json:"id"`
	LeaseGroupID   string             `gorm:"type:varchar(36);not null" json:"lease_group_id"`
	TopicType      enums.TopicType    `gorm:"type:text;not null" json:"topic_type"`
	TopicRef       TopicRef           `gorm:"type:text" json:"topic_ref"`
	Status         enums.ThreadStatus `gorm:"type:text;not null" json:"status"`
	WaitingOn      enums.Party        `gorm:"type:text" json:"waiting_on"`
	CreatedAt      time.Time          `gorm:"not null" json:"created_at"`
	LastActivityAt time.Time          `gorm:"not null" json:"last_activity_at"`
	ResolvedAt     *time.Time         `json:"resolved_at"`
}

func (t *Thread) IsOpen() bool { return t.Status == enums.ThreadOpen }

// NeedsLandlord reports an open thread waiting on the landlord.
func (t *Thread) NeedsLandlord() bool {
	return t.IsOpen() && t.WaitingOn == enums.PartyLandlord
}

// Message is an append-only entry in a thread, ordered by CreatedAt.
type Message struct {
	ID          string            `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ThreadID    string            `gorm:"type:varchar(36);not null" json:"thread_id"`
	CreatedAt   time.Time         `gorm:"not null" json:"created_at"`
	Actor       enums.Party       `gorm:"type:text;not null" json:"actor"`
	MessageType enums.MessageType `gorm:"type:text;not null" json:"message_type"`
	Body        *string           `gorm:"type:text" json:"body"`
	PaymentID   *string           `gorm:"type:varchar(36)" json:"payment_id"`
	Attachments pq.StringArray    `gorm:"type:text;not null" json:"attachments"`
	Channel     string            `gorm:"type:text;not null;default:'internal'" json:"channel"`
}
