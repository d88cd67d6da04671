package phone

import "strings"

// DisconnectCause explains why a connection ended.
type DisconnectCause string

const (
	CauseNotDisconnected    DisconnectCause = "NOT_DISCONNECTED"
	CauseNormal             DisconnectCause = "NORMAL"
	CauseLocal              DisconnectCause = "LOCAL"
	CauseBusy               DisconnectCause = "BUSY"
	CauseCongestion         DisconnectCause = "CONGESTION"
	CauseCdmaReorder        DisconnectCause = "CDMA_REORDER"
	CauseCdmaIntercept      DisconnectCause = "CDMA_INTERCEPT"
	CauseCdmaDrop           DisconnectCause = "CDMA_DROP"
	CauseOutOfService       DisconnectCause = "OUT_OF_SERVICE"
	CauseUnobtainableNumber DisconnectCause = "UNOBTAINABLE_NUMBER"
	CauseErrorUnspecified   DisconnectCause = "ERROR_UNSPECIFIED"
	CauseIncomingMissed     DisconnectCause = "INCOMING_MISSED"
	CauseIncomingRejected   DisconnectCause = "INCOMING_REJECTED"
	CauseCallBarred         DisconnectCause = "CALL_BARRED"
	CauseFdnBlocked         DisconnectCause = "FDN_BLOCKED"
	CauseCSRestricted       DisconnectCause = "CS_RESTRICTED"
	CauseCSRestrictedEmerg  DisconnectCause = "CS_RESTRICTED_EMERGENCY"
	CauseCSRestrictedNormal DisconnectCause = "CS_RESTRICTED_NORMAL"
	CauseLostSignal         DisconnectCause = "LOST_SIGNAL"
	CauseTimedOut           DisconnectCause = "TIMED_OUT"
	CauseInvalidNumber      DisconnectCause = "INVALID_NUMBER"
	CauseUnknown            DisconnectCause = "UNKNOWN"
)

var knownCauses = map[DisconnectCause]struct{}{
	CauseNotDisconnected: {}, CauseNormal: {}, CauseLocal: {}, CauseBusy: {},
	CauseCongestion: {}, CauseCdmaReorder: {}, CauseCdmaIntercept: {},
	CauseCdmaDrop: {}, CauseOutOfService: {}, CauseUnobtainableNumber: {},
	CauseErrorUnspecified: {}, CauseIncomingMissed: {}, CauseIncomingRejected: {},
	CauseCallBarred: {}, CauseFdnBlocked: {}, CauseCSRestricted: {},
	CauseCSRestrictedEmerg: {}, CauseCSRestrictedNormal: {}, CauseLostSignal: {},
	CauseTimedOut: {}, CauseInvalidNumber: {}, CauseUnknown: {},
}

// ParseDisconnectCause maps a wire value to a cause. Unrecognised values
// become CauseUnknown so an unexpected platform cause never blocks teardown.
func ParseDisconnectCause(s string) DisconnectCause {
	c := DisconnectCause(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := knownCauses[c]; ok {
		return c
	}
	return CauseUnknown
}

// Regular reports whether the call ended because one party hung up.
func (c DisconnectCause) Regular() bool {
	return c == CauseNormal || c == CauseLocal
}

// NetworkFailure reports whether the cause is an abnormal network-side
// failure, i.e. one that makes an unanswered CDMA call eligible for redial.
func (c DisconnectCause) NetworkFailure() bool {
	switch c {
	case CauseIncomingMissed, CauseNormal, CauseLocal, CauseIncomingRejected:
		return false
	}
	return true
}
