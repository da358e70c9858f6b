package types

import "strings"

// Gender is both a driver's tag and a passenger's preference. GenderAny is only
// meaningful as a preference.
type Gender string

const (
	GenderAny    Gender = "any"
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
)

// ParseGender accepts the client vocabulary ("hombre", "mujer", "cualquiera") as well as
// the canonical English values. Unknown or empty input maps to GenderAny.
func ParseGender(s string) Gender {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "male", "hombre", "h", "m":
		return GenderMale
	case "female", "mujer", "f":
		return GenderFemale
	default:
		return GenderAny
	}
}
