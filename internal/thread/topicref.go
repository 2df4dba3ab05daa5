package thread

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"

	"leasebook/internal/enums"
	"leasebook/internal/period"
)

// TopicRef identifies what a thread is about. Payment topics are a category
// and a month ("rent:2026-01"); other topics carry an opaque reference such as
// "lease:<id>". The zero value is "no reference" and persists as NULL.
//
// A TopicRef is parsed once, when it enters from storage or a request.
type TopicRef struct {
	raw       string
	category  string
	periodRaw string
	period    period.Period
	hasPeriod bool
}

// PeriodRef builds the reference for a payment category in a month.
func PeriodRef(c enums.Category, p period.Period) TopicRef {
	return ParseTopicRef(string(c) + ":" + p.String())
}

// RawRef wraps an opaque reference.
func RawRef(s string) TopicRef {
	return ParseTopicRef(s)
}

func ParseTopicRef(s string) TopicRef {
	s = strings.TrimSpace(s)
	ref := TopicRef{raw: s}
	category, rest, ok := strings.Cut(s, ":")
	if !ok {
		return ref
	}
	ref.category = category
	ref.periodRaw = rest
	if p, err := period.Parse(rest); err == nil {
		ref.period = p
		ref.hasPeriod = true
	}
	return ref
}

func (r TopicRef) String() string { return r.raw }

func (r TopicRef) IsZero() bool { return r.raw == "" }

// Category is the part before the colon, if any.
func (r TopicRef) Category() enums.Category { return enums.Category(r.category) }

// Period reports the month the reference points at, if it parses.
func (r TopicRef) Period() (period.Period, bool) { return r.period, r.hasPeriod }

// OpenMonth is the raw period segment ("2026-01"), empty when the reference
// has no colon.
func (r TopicRef) OpenMonth() string { return r.periodRaw }

// Label renders the reference for people: "Rent — January 2026". A payment
// reference whose period does not parse shows the raw segment instead; other
// references ("lease:<id>") show the topic label.
func (r TopicRef) Label(topic enums.TopicType) string {
	if !strings.Contains(r.raw, ":") || (!r.hasPeriod && !r.Category().IsValid()) {
		return topic.Label()
	}
	cat := r.Category().Label()
	if r.hasPeriod {
		return fmt.Sprintf("%s — %s", cat, r.period.Label())
	}
	return fmt.Sprintf("%s — %s", cat, r.periodRaw)
}

func (TopicRef) GormDataType() string { return "text" }

func (r TopicRef) Value() (driver.Value, error) {
	if r.IsZero() {
		return nil, nil
	}
	return r.raw, nil
}

func (r *TopicRef) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*r = TopicRef{}
	case string:
		*r = ParseTopicRef(v)
	case []byte:
		*r = ParseTopicRef(string(v))
	default:
		return fmt.Errorf("topic ref: unsupported type %T", src)
	}
	return nil
}

func (r TopicRef) MarshalJSON() ([]byte, error) {
	if r.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(r.raw)
}

func (r *TopicRef) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*r = TopicRef{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*r = ParseTopicRef(s)
	return nil
}
