package lease

import (
	"fmt"
	"time"
)

type Urgency string

const (
	UrgencyNone     Urgency = "none"
	UrgencyInfo     Urgency = "info"
	UrgencyWarning  Urgency = "warning"
	UrgencyUrgent   Urgency = "urgent"
	UrgencyCritical Urgency = "critical"
)

type Expiry struct {
	DaysRemaining int       `json:"days_remaining"`
	Urgency       Urgency   `json:"urgency"`
	Message       string    `json:"message"`
	EndDate       time.Time `json:"end_date"`
}

// ExpiryStatus grades how close a lease is to its end date. Bands are 60, 30
// and 10 days; zero or less is critical. Nil when the lease has no end date.
func ExpiryStatus(l *Lease, today time.Time) *Expiry {
	if l == nil || l.Values.EndDate == nil {
		return nil
	}
	end := dateOnly(*l.Values.EndDate)
	days := int(end.Sub(dateOnly(today)).Hours() / 24)

	e := &Expiry{DaysRemaining: days, EndDate: end}
	switch {
	case days < 0:
		e.Urgency = UrgencyCritical
		e.Message = fmt.Sprintf("Lease expired %d days ago", -days)
	case days == 0:
		e.Urgency = UrgencyCritical
		e.Message = "Lease has expired!"
	case days <= 10:
		e.Urgency = UrgencyUrgent
		e.Message = fmt.Sprintf("Lease expires in %d %s!", days, plural(days, "day", "days"))
	case days <= 30:
		e.Urgency = UrgencyWarning
		e.Message = fmt.Sprintf("Lease expires in %d days", days)
	case days <= 60:
		e.Urgency = UrgencyInfo
		e.Message = fmt.Sprintf("Lease expires in %d days", days)
	default:
		e.Urgency = UrgencyNone
		e.Message = fmt.Sprintf("Lease expires in %d days", days)
	}
	return e
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
