// Package domain contains all core types used across the application.
// Keeping domain types in one place makes the scoring pipeline easy to reason about.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ─── Constants ───────────────────────────────────────────────────────────────

// Risk level labels that correspond to adjusted-score bands.
const (
	RiskLow    = "LOW"    // adjusted score <= 0.4
	RiskMedium = "MEDIUM" // 0.4 < adjusted score <= 0.7
	RiskHigh   = "HIGH"   // adjusted score > 0.7
)

// ModelFeatureNames is the exact input schema of the trained classifier, in
// order. The novelty flags are deliberately absent: they feed the decision
// policy, not the model. Any artifact whose schema differs from this list is
// rejected at startup.
var ModelFeatureNames = []string{
	"hour",
	"day_of_week",
	"time_since_last_txn",
	"amount_zscore",
	"user_avg_amount",
	"user_std_amount",
}

// ─── Core domain types ────────────────────────────────────────────────────────

// Transaction is one immutable financial transaction, either a row of the
// historical snapshot or an inbound scoring request after validation.
type Transaction struct {
	UserID    string          `json:"user_id"`
	Type      string          `json:"transaction_type"`
	Amount    decimal.Decimal `json:"amount"`
	Timestamp time.Time       `json:"timestamp"`
	DeviceID  string          `json:"device_id"`
	Location  string          `json:"location"`

	// IsFraud is the ground-truth label carried by labelled snapshot rows.
	// It is nil for unlabelled rows and for live requests; it exists so the
	// offline featurize tool can pass it through to the trainer.
	IsFraud *bool `json:"is_fraud,omitempty"`
}

// FeatureVector is the fixed-shape feature record derived for one transaction.
// Every field is defined even when the user has no history (cold-start
// defaults), so downstream consumers never see a partial vector.
type FeatureVector struct {
	Hour             int     `json:"hour"`
	DayOfWeek        int     `json:"day_of_week"`         // Monday=0 .. Sunday=6, UTC
	TimeSinceLastTxn float64 `json:"time_since_last_txn"` // seconds; 0 on cold start
	AmountZScore     float64 `json:"amount_zscore"`
	UserAvgAmount    float64 `json:"user_avg_amount"`
	UserStdAmount    float64 `json:"user_std_amount"` // floored at 1.0, never 0
	NewDevice        bool    `json:"new_device"`
	NewLocation      bool    `json:"new_location"`
}

// ModelInputs flattens the vector into the classifier's input row, in
// ModelFeatureNames order.
func (v FeatureVector) ModelInputs() []float64 {
	return []float64{
		float64(v.Hour),
		float64(v.DayOfWeek),
		v.TimeSinceLastTxn,
		v.AmountZScore,
		v.UserAvgAmount,
		v.UserStdAmount,
	}
}

// RiskAssessment is the result of scoring one transaction.
// Constructed once per request and never persisted.
type RiskAssessment struct {
	ID          string        `json:"assessment_id"`
	RiskScore   float64       `json:"risk_score"` // adjusted probability in [0,1]
	RiskLevel   string        `json:"risk_level"` // LOW / MEDIUM / HIGH
	RiskFactors []string      `json:"risk_factors"`
	Explanation string        `json:"explanation"`
	Features    FeatureVector `json:"features"`
	ProcessedAt time.Time     `json:"processed_at"`
}

// ─── Reporting ────────────────────────────────────────────────────────────────

// UserProfile is the behavioral baseline summary for one user, computed from
// the historical ledger. It backs the profile endpoint so reviewers can see
// what "normal" looks like for a flagged account.
type UserProfile struct {
	UserID            string    `json:"user_id"`
	TransactionCount  int       `json:"transaction_count"`
	AvgAmount         float64   `json:"avg_amount"`
	StdAmount         float64   `json:"std_amount"`
	DistinctDevices   int       `json:"distinct_devices"`
	DistinctLocations int       `json:"distinct_locations"`
	FirstSeen         time.Time `json:"first_seen"`
	LastSeen          time.Time `json:"last_seen"`
}
