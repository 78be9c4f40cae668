// Package policy maps a model probability to a discrete risk level and a set
// of human-readable risk factors.
//
// Scoring philosophy (inherited from the model's original operators):
//   Novelty boosts are added straight onto the probability and the sum is
//   clamped to [0,1]. This is a deliberately crude approximation — not a
//   proper probabilistic combination — kept because the review thresholds
//   were tuned against it. Changing it is a product decision, not a cleanup.
//
// Factor rules are evaluated independently; several can fire for one
// transaction. When none fire, a single generic label is emitted so the
// explanation gateway always has something to work with.
package policy

import "aegis/risk-api/internal/domain"

// Risk factor labels surfaced to reviewers and fed to the explanation gateway.
const (
	FactorLargeAmount = "unusually large transaction relative to history"
	FactorRapidTxn    = "rapid transaction frequency"
	FactorOddHour     = "unusual transaction hour"
	FactorNewDevice   = "first transaction from this device"
	FactorNewLocation = "transaction from an unusual location"
	FactorGeneric     = "general anomalous behavior"
)

// Policy holds the decision thresholds and boost weights. The zero value is
// not usable; construct with Default and override from configuration.
type Policy struct {
	HighThreshold   float64 // adjusted score above this → HIGH
	MediumThreshold float64 // adjusted score above this → MEDIUM

	NewDeviceBoost   float64
	NewLocationBoost float64

	ZScoreLimit      float64 // |amount_zscore| above this flags the amount rule
	RapidWindowSecs  float64 // gap below this flags rapid frequency
	OddHourBefore    int     // hours strictly below this flag the timing rule
}

// Default returns the canonical policy. The 0.4/0.7 bands and the 300-second
// rapid window are the single set used across feature generation, training,
// and serving.
func Default() Policy {
	return Policy{
		HighThreshold:    0.7,
		MediumThreshold:  0.4,
		NewDeviceBoost:   0.10,
		NewLocationBoost: 0.15,
		ZScoreLimit:      3.0,
		RapidWindowSecs:  300,
		OddHourBefore:    5,
	}
}

// Adjust applies the novelty boosts to the model probability and clamps the
// result to [0,1].
func (p Policy) Adjust(probability float64, v domain.FeatureVector) float64 {
	score := probability
	if v.NewDevice {
		score += p.NewDeviceBoost
	}
	if v.NewLocation {
		score += p.NewLocationBoost
	}
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score
}

// Level buckets an adjusted score. Evaluated high first; a pure, monotonic
// function of the score.
func (p Policy) Level(score float64) string {
	switch {
	case score > p.HighThreshold:
		return domain.RiskHigh
	case score > p.MediumThreshold:
		return domain.RiskMedium
	default:
		return domain.RiskLow
	}
}

// Factors returns the ordered list of triggered risk-factor labels.
// Rules are independent and the fixed evaluation order keeps the output
// deterministic and free of duplicates.
func (p Policy) Factors(v domain.FeatureVector) []string {
	var factors []string

	if v.AmountZScore > p.ZScoreLimit || v.AmountZScore < -p.ZScoreLimit {
		factors = append(factors, FactorLargeAmount)
	}
	// A cold-start zero means "no previous transaction", not an
	// instantaneous repeat, so the rule requires a real gap.
	if v.TimeSinceLastTxn > 0 && v.TimeSinceLastTxn < p.RapidWindowSecs {
		factors = append(factors, FactorRapidTxn)
	}
	if v.Hour < p.OddHourBefore {
		factors = append(factors, FactorOddHour)
	}
	if v.NewDevice {
		factors = append(factors, FactorNewDevice)
	}
	if v.NewLocation {
		factors = append(factors, FactorNewLocation)
	}

	if len(factors) == 0 {
		factors = append(factors, FactorGeneric)
	}
	return factors
}

// Decide runs the full policy: adjust, bucket, extract factors.
func (p Policy) Decide(probability float64, v domain.FeatureVector) (score float64, level string, factors []string) {
	score = p.Adjust(probability, v)
	return score, p.Level(score), p.Factors(v)
}
