// Package ranker orders candidate regions by a weighted carbon-cost
// proxy in the MAIZX style: current footprint, forecasted footprint,
// efficiency metadata, and a caller-supplied urgency factor.
package ranker

import (
	"math"
	"sort"

	"github.com/VerdantProject/verdant/pkg/config"
	"github.com/VerdantProject/verdant/pkg/intensity"
)

// UnitWorkloadKWh is the fixed reference energy the footprint proxies
// are computed against. One kWh keeps the proxies in grams-per-unit
// terms without binding the ranking to any particular workload size.
const UnitWorkloadKWh = 1.0

// gramsPerKg scales footprint proxies into kilograms so all four rank
// components live on a comparable magnitude.
const gramsPerKg = 1000.0

// Weights are the rank component weights. Lower rank values are better;
// the efficiency component is subtracted since higher efficiency should
// improve (lower) the rank.
type Weights struct {
	CFP         float64 `json:"cfp"`
	ForecastCFP float64 `json:"forecast_cfp"`
	Efficiency  float64 `json:"efficiency"`
	Schedule    float64 `json:"schedule"`
}

// DefaultWeights returns the reference weight vector. The components sum
// to 1.2, the documented reference total.
func DefaultWeights() Weights {
	return Weights{CFP: 0.4, ForecastCFP: 0.4, Efficiency: 0.3, Schedule: 0.1}
}

// FromConfig converts configured rank weights, falling back to defaults
// when the vector is entirely unset.
func FromConfig(w config.RankWeights) Weights {
	if w.CFP == 0 && w.ForecastCFP == 0 && w.Efficiency == 0 && w.Schedule == 0 {
		return DefaultWeights()
	}
	return Weights{CFP: w.CFP, ForecastCFP: w.ForecastCFP, Efficiency: w.Efficiency, Schedule: w.Schedule}
}

// Components records the individual rank terms for explainability.
type Components struct {
	CFP             float64 `json:"cfp"`
	ForecastCFP     float64 `json:"forecast_cfp"`
	EfficiencyRatio float64 `json:"efficiency_ratio"`
	ScheduleWeight  float64 `json:"schedule_weight"`
}

// Score is one region's rank. Scores are derived values, recomputed per
// request and never stored.
type Score struct {
	Region     string     `json:"region"`
	RankValue  float64    `json:"rank_value"`
	Components Components `json:"components"`
}

// Input bundles the resolved data for one candidate region.
type Input struct {
	Profile  config.RegionProfile
	Current  intensity.Reading
	Forecast []intensity.ForecastPoint
}

// Rank scores the candidates and returns them ordered best-first
// (ascending rank value, since the value is a scaled carbon-cost proxy).
// Ties are broken by region code so the ordering is total and input
// order never influences the output. Candidates with non-finite inputs
// are dropped rather than propagated.
func Rank(inputs []Input, w Weights, scheduleWeight float64) []Score {
	if scheduleWeight <= 0 {
		scheduleWeight = 1.0
	}

	scores := make([]Score, 0, len(inputs))
	for _, in := range inputs {
		score, ok := scoreRegion(in, w, scheduleWeight)
		if !ok {
			continue
		}
		scores = append(scores, score)
	}

	sort.Slice(scores, func(i, j int) bool {
		if scores[i].RankValue != scores[j].RankValue {
			return scores[i].RankValue < scores[j].RankValue
		}
		return scores[i].Region < scores[j].Region
	})

	return scores
}

// scoreRegion computes one region's rank components. The footprint
// proxies are expressed in kgCO2 per unit workload so they share a
// magnitude with the dimensionless efficiency ratio.
func scoreRegion(in Input, w Weights, scheduleWeight float64) (Score, bool) {
	if in.Current.Validate() != nil {
		return Score{}, false
	}

	cfp := in.Current.Value * UnitWorkloadKWh / gramsPerKg

	forecastMean, ok := intensity.MeanValue(in.Forecast)
	if !ok {
		// No forecast coverage: assume the current level holds, rather
		// than rewarding or punishing the region for source gaps.
		forecastMean = in.Current.Value
	}
	forecastCFP := forecastMean * UnitWorkloadKWh / gramsPerKg

	pue := in.Profile.PUE
	if pue < 1 {
		pue = 1
	}
	efficiency := in.Profile.RenewablePct / 100 / pue

	value := w.CFP*cfp + w.ForecastCFP*forecastCFP - w.Efficiency*efficiency + w.Schedule*scheduleWeight
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return Score{}, false
	}

	return Score{
		Region:    in.Profile.Code,
		RankValue: value,
		Components: Components{
			CFP:             cfp,
			ForecastCFP:     forecastCFP,
			EfficiencyRatio: efficiency,
			ScheduleWeight:  scheduleWeight,
		},
	}, true
}
