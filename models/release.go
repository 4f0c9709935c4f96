package models

// TMDB release types as returned by /movie/{id}/release_dates.
const (
	ReleaseTypePremiere          = 1
	ReleaseTypeTheatricalLimited = 2
	ReleaseTypeTheatrical        = 3
	ReleaseTypeDigital           = 4
	ReleaseTypePhysical          = 5
	ReleaseTypeTV                = 6
)

// ReleaseTypeName maps a TMDB release type to its display name, or "" when unknown.
func ReleaseTypeName(releaseType int) string {
	switch releaseType {
	case ReleaseTypePremiere:
		return "premiere"
	case ReleaseTypeTheatricalLimited:
		return "theatricalLimited"
	case ReleaseTypeTheatrical:
		return "theatrical"
	case ReleaseTypeDigital:
		return "digital"
	case ReleaseTypePhysical:
		return "physical"
	case ReleaseTypeTV:
		return "tv"
	default:
		return ""
	}
}

// ReleaseDateRecord is one region/type/date triple from the provider.
type ReleaseDateRecord struct {
	Region string `json:"region"` // ISO 3166-1 alpha-2
	Type   int    `json:"type"`
	Date   string `json:"date"` // raw provider string, usually RFC 3339
	Note   string `json:"note,omitempty"`
}

// DecisionKind names the bucket a film lands in.
type DecisionKind string

const (
	DecisionUpcoming DecisionKind = "upcoming"
	DecisionTBD      DecisionKind = "tbd"
	DecisionReleased DecisionKind = "released"
)

func (k DecisionKind) Valid() bool {
	switch k {
	case DecisionUpcoming, DecisionTBD, DecisionReleased:
		return true
	}
	return false
}

// Decision is the canonical release outcome for one film in one run.
// Date is zero exactly when Kind is DecisionTBD.
type Decision struct {
	Kind DecisionKind
	Date Date
}

func Upcoming(d Date) Decision { return Decision{Kind: DecisionUpcoming, Date: d} }
func Released(d Date) Decision { return Decision{Kind: DecisionReleased, Date: d} }
func Unknown() Decision        { return Decision{Kind: DecisionTBD} }

// HasDate reports whether the decision carries a release date.
func (d Decision) HasDate() bool {
	return d.Kind == DecisionUpcoming || d.Kind == DecisionReleased
}

func (d Decision) String() string {
	if !d.HasDate() {
		return string(DecisionTBD)
	}
	return string(d.Kind) + "(" + d.Date.String() + ")"
}
