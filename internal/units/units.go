// Package units provides shared constants and validation for distance units
package units

// Unit constants
const (
	Metres = "m"
	Feet   = "ft"
	Yards  = "yd"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{Metres, Feet, Yards}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return "m, ft, yd"
}

// ConvertDistance converts a distance from metres to the target units.
// The core pipeline and the database work exclusively in metres.
func ConvertDistance(metres float64, targetUnits string) float64 {
	switch targetUnits {
	case Metres:
		return metres
	case Feet:
		return metres * 3.28083989501312
	case Yards:
		return metres * 1.09361329833771
	default:
		return metres
	}
}
