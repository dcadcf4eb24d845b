// Package carbon converts energy figures into CO2 mass and presentational
// equivalents. All functions are pure and safe for concurrent use.
package carbon

// JoulesPerKWh is the number of joules in one kilowatt-hour.
const JoulesPerKWh = 3_600_000.0

// Published per-unit emission figures used for the everyday equivalents.
// Sources: EPA greenhouse gas equivalencies (phone charge, passenger-vehicle
// mile) and the commonly cited figure for an hour of HD video streaming.
const (
	gramsPerPhoneCharge  = 8.22
	gramsPerMileDriven   = 404.0
	gramsPerStreamingHour = 55.0
)

// ToGrams converts an energy amount in joules to grams of CO2 given a
// carbon intensity in gCO2/kWh.
func ToGrams(energyJoules, intensityGPerKWh float64) float64 {
	return energyJoules / JoulesPerKWh * intensityGPerKWh
}

// Equivalents expresses a CO2 mass in everyday terms. The values are
// presentational only and never feed back into scheduling decisions.
type Equivalents struct {
	PhoneCharges   float64 `json:"phone_charges"`
	MilesDriven    float64 `json:"miles_driven"`
	StreamingHours float64 `json:"streaming_hours"`
}

// ToEquivalents converts grams of CO2 into everyday equivalents.
func ToEquivalents(grams float64) Equivalents {
	return Equivalents{
		PhoneCharges:   grams / gramsPerPhoneCharge,
		MilesDriven:    grams / gramsPerMileDriven,
		StreamingHours: grams / gramsPerStreamingHour,
	}
}
