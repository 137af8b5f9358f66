package access

// DenyReason explains a denial. It is kept server-side and never sent to clients.
type DenyReason string

const (
	ReasonNone           DenyReason = ""
	ReasonNoGrant        DenyReason = "no_grant"
	ReasonVerbNotGranted DenyReason = "verb_not_granted"
	ReasonRoleCeiling    DenyReason = "role_ceiling"
)

// Decision is the outcome of a single authorization check.
type Decision struct {
	Allowed bool       `json:"allowed"`
	Reason  DenyReason `json:"reason,omitempty"`
}

func Allow() Decision {
	return Decision{Allowed: true}
}

func Deny(reason DenyReason) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// Outcome is a stable label for metrics and logs.
func (d Decision) Outcome() string {
	if d.Allowed {
		return "allow"
	}
	return "deny"
}

// RecordVerb marks v as granted in the set when the decision allows it.
func (d Decision) RecordVerb(set *VerbSet, v Verb) {
	if d.Allowed {
		set.set(v)
	}
}
