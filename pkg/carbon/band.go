package carbon

// Band classifies a carbon intensity value into a coarse level.
type Band string

const (
	BandLow      Band = "low"
	BandModerate Band = "moderate"
	BandHigh     Band = "high"
)

// Band thresholds in gCO2/kWh.
const (
	LowBandMax      = 200.0
	ModerateBandMax = 400.0
)

// IntensityBand returns the band for an intensity in gCO2/kWh.
// Intensities below 200 are low, below 400 moderate, anything else high.
func IntensityBand(intensityGPerKWh float64) Band {
	switch {
	case intensityGPerKWh < LowBandMax:
		return BandLow
	case intensityGPerKWh < ModerateBandMax:
		return BandModerate
	default:
		return BandHigh
	}
}
