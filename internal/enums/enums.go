package enums

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// Category is a payment category a tenant can declare.
type Category string

const (
	CategoryRent        Category = "rent"
	CategoryMaintenance Category = "maintenance"
	CategoryUtilities   Category = "utilities"
)

// Categories lists every category in display order.
var Categories = []Category{CategoryRent, CategoryMaintenance, CategoryUtilities}

func (c Category) IsValid() bool {
	for _, candidate := range Categories {
		if candidate == c {
			return true
		}
	}
	return false
}

func (c Category) Label() string {
	switch c {
	case CategoryRent:
		return "Rent"
	case CategoryMaintenance:
		return "Maintenance"
	case CategoryUtilities:
		return "Utilities"
	}
	if c == "" {
		return ""
	}
	return strings.ToUpper(string(c[:1])) + string(c[1:])
}

func ParseCategory(value string) (Category, error) {
	c := Category(value)
	if !c.IsValid() {
		return "", fmt.Errorf("invalid payment category %q", value)
	}
	return c, nil
}

// Party is a conversation participant. The empty Party persists as NULL and
// marshals as JSON null, which is how an unset waiting_on is represented.
type Party string

const (
	PartyNone     Party = ""
	PartyLandlord Party = "landlord"
	PartyTenant   Party = "tenant"
	PartySystem   Party = "system"
)

func (p Party) IsValid() bool {
	switch p {
	case PartyLandlord, PartyTenant, PartySystem:
		return true
	}
	return false
}

func (p Party) Value() (driver.Value, error) {
	if p == PartyNone {
		return nil, nil
	}
	return string(p), nil
}

func (p *Party) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*p = PartyNone
	case string:
		*p = Party(v)
	case []byte:
		*p = Party(v)
	default:
		return fmt.Errorf("party: unsupported type %T", src)
	}
	return nil
}

func (p Party) MarshalJSON() ([]byte, error) {
	if p == PartyNone {
		return []byte("null"), nil
	}
	return json.Marshal(string(p))
}

func (p *Party) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*p = PartyNone
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*p = Party(s)
	return nil
}

type MessageType string

const (
	MessageSubmission  MessageType = "submission"
	MessageFlag        MessageType = "flag"
	MessageReply       MessageType = "reply"
	MessageReminder    MessageType = "reminder"
	MessageAcknowledge MessageType = "acknowledge"
	MessageNudge       MessageType = "nudge"
)

var validMessageTypes = []MessageType{
	MessageSubmission,
	MessageFlag,
	MessageReply,
	MessageReminder,
	MessageAcknowledge,
	MessageNudge,
}

func (m MessageType) IsValid() bool {
	for _, candidate := range validMessageTypes {
		if candidate == m {
			return true
		}
	}
	return false
}

type TopicType string

const (
	TopicPaymentReview  TopicType = "payment_review"
	TopicMissingPayment TopicType = "missing_payment"
	TopicRenewal        TopicType = "renewal"
	TopicGeneral        TopicType = "general"
)

func (t TopicType) IsValid() bool {
	switch t {
	case TopicPaymentReview, TopicMissingPayment, TopicRenewal, TopicGeneral:
		return true
	}
	return false
}

func (t TopicType) Label() string {
	switch t {
	case TopicPaymentReview:
		return "Payment review"
	case TopicMissingPayment:
		return "Missing payment"
	case TopicRenewal:
		return "Renewal"
	case TopicGeneral:
		return "General"
	}
	return string(t)
}

type ThreadStatus string

const (
	ThreadOpen     ThreadStatus = "open"
	ThreadResolved ThreadStatus = "resolved"
)

// SubmissionChannel records how a payment declaration entered the log.
type SubmissionChannel string

const (
	ViaTenantLink     SubmissionChannel = "tenant_link"
	ViaLandlordManual SubmissionChannel = "landlord_manual"
)

func (s SubmissionChannel) IsValid() bool {
	return s == ViaTenantLink || s == ViaLandlordManual
}
