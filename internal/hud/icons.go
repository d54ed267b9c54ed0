package hud

import "github.com/foodlens/framelink/internal/domain"

// DefaultVerdict is shown for verdict values outside the traffic-light set.
const DefaultVerdict = domain.VerdictYellow

// Icon is the HUD presentation of a verdict.
type Icon struct {
	Name        string
	DisplayText string
	Color       string
}

var verdictIcons = map[domain.Verdict]Icon{
	domain.VerdictGreen:  {Name: "check_circle", DisplayText: "GO AHEAD!", Color: "green"},
	domain.VerdictYellow: {Name: "warning", DisplayText: "MODERATE", Color: "yellow"},
	domain.VerdictRed:    {Name: "x_circle", DisplayText: "AVOID", Color: "red"},
}

// IconFor maps a verdict to its icon. Unknown verdicts get the DefaultVerdict icon.
func IconFor(v domain.Verdict) Icon {
	if icon, ok := verdictIcons[v]; ok {
		return icon
	}
	return verdictIcons[DefaultVerdict]
}

// NormalizeVerdict returns v when it is a known verdict and DefaultVerdict otherwise.
func NormalizeVerdict(v domain.Verdict) domain.Verdict {
	if v.Valid() {
		return v
	}
	return DefaultVerdict
}
