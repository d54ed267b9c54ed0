package domain

import "strings"

// Verdict is the traffic-light classification computed by the nutrition collaborator.
type Verdict string

const (
	VerdictGreen  Verdict = "green"
	VerdictYellow Verdict = "yellow"
	VerdictRed    Verdict = "red"
)

// ParseVerdict normalizes user input. Unknown values are reported with ok=false.
func ParseVerdict(raw string) (Verdict, bool) {
	v := Verdict(strings.ToLower(strings.TrimSpace(raw)))
	return v, v.Valid()
}

func (v Verdict) Valid() bool {
	switch v {
	case VerdictGreen, VerdictYellow, VerdictRed:
		return true
	default:
		return false
	}
}
