package thread

import (
	"time"

	"leasebook/internal/enums"
)

// Transition is the waiting_on/status outcome of one message landing on an
// open thread. Pairs not listed leave the thread unchanged.
//
//	flag        by landlord -> waiting on tenant
//	reply       by tenant   -> waiting on landlord
//	reply       by landlord -> waiting on tenant
//	submission  by anyone   -> waiting on landlord
//	acknowledge by anyone   -> resolved, waiting on nobody
//	reminder, nudge         -> no change
func Transition(mt enums.MessageType, actor enums.Party, waiting enums.Party, status enums.ThreadStatus) (enums.Party, enums.ThreadStatus) {
	switch {
	case mt == enums.MessageFlag && actor == enums.PartyLandlord:
		return enums.PartyTenant, status
	case mt == enums.MessageReply && actor == enums.PartyTenant:
		return enums.PartyLandlord, status
	case mt == enums.MessageReply && actor == enums.PartyLandlord:
		return enums.PartyTenant, status
	case mt == enums.MessageSubmission:
		return enums.PartyLandlord, status
	case mt == enums.MessageAcknowledge:
		return enums.PartyNone, enums.ThreadResolved
	}
	return waiting, status
}

// apply moves t according to a new message. Resolved threads keep their state.
func apply(t *Thread, mt enums.MessageType, actor enums.Party, at time.Time) {
	t.LastActivityAt = at
	if !t.IsOpen() {
		return
	}
	t.WaitingOn, t.Status = Transition(mt, actor, t.WaitingOn, t.Status)
	if t.Status == enums.ThreadResolved {
		t.ResolvedAt = &at
	}
}
