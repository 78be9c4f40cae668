// Package features derives the per-transaction behavioral feature vector.
//
// The single most important invariant of the whole pipeline lives here:
// features computed at serving time must match, field for field, the features
// the classifier was trained on. Hour and day-of-week are therefore always
// taken in UTC with Monday numbered 0, matching the training snapshot's
// convention, and the cmd/featurize tool generates training features through
// this same code path.
package features

import (
	"math"
	"sort"
	"strings"
	"time"

	"aegis/risk-api/internal/domain"
)

// Deriver computes feature vectors. The thresholds it carries are data
// normalization knobs, not policy: they must stay consistent between offline
// feature generation and serving.
type Deriver struct {
	// RareLocationFreq is the empirical-frequency cutoff below which a
	// location counts as novel. A location never seen before has frequency
	// 0 and is always flagged.
	RareLocationFreq float64
}

// NewDeriver returns a Deriver with the canonical cutoffs.
func NewDeriver() *Deriver {
	return &Deriver{RareLocationFreq: 0.10}
}

// Derive computes the feature vector for txn given the user's history.
// The history must be the ledger's slice for txn's user: ascending by
// timestamp, stably ordered. An empty history triggers cold-start defaults.
func (d *Deriver) Derive(txn domain.Transaction, history []domain.Transaction) domain.FeatureVector {
	ts := txn.Timestamp.UTC()
	v := domain.FeatureVector{
		Hour:      ts.Hour(),
		DayOfWeek: mondayIndexed(ts),
	}

	amount := txn.Amount.InexactFloat64()

	if len(history) == 0 {
		// Cold start: the transaction is its own baseline. The unit std
		// keeps the z-score at exactly 0 instead of dividing by zero.
		v.UserAvgAmount = amount
		v.UserStdAmount = 1.0
		v.NewDevice = true
		v.NewLocation = true
		return v
	}

	v.UserAvgAmount, v.UserStdAmount = amountStats(history)
	v.AmountZScore = (amount - v.UserAvgAmount) / v.UserStdAmount
	v.TimeSinceLastTxn = secondsSinceLast(txn, history)
	v.NewDevice = isNewDevice(txn, history)
	v.NewLocation = d.isRareLocation(txn, history)
	return v
}

// mondayIndexed converts Go's Sunday=0 weekday to the Monday=0 numbering the
// classifier was trained with.
func mondayIndexed(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// amountStats returns the mean and sample standard deviation of historical
// amounts. A zero or undefined (single-sample) deviation is floored at 1.0
// so z-scores never amplify through a near-zero divisor.
func amountStats(history []domain.Transaction) (avg, std float64) {
	var sum float64
	for _, tx := range history {
		sum += tx.Amount.InexactFloat64()
	}
	avg = sum / float64(len(history))

	std = 1.0
	if len(history) > 1 {
		var ss float64
		for _, tx := range history {
			d := tx.Amount.InexactFloat64() - avg
			ss += d * d
		}
		s := math.Sqrt(ss / float64(len(history)-1))
		if s > 0 {
			std = s
		}
	}
	return avg, std
}

// secondsSinceLast returns the gap between txn and the most recent history
// entry at or before txn's timestamp. History entries timestamped after the
// transaction (clock skew, replayed snapshots) are ignored; if every entry is
// later, the cold-start 0 is returned.
func secondsSinceLast(txn domain.Transaction, history []domain.Transaction) float64 {
	// First index with a timestamp strictly after txn's.
	idx := sort.Search(len(history), func(i int) bool {
		return history[i].Timestamp.After(txn.Timestamp)
	})
	if idx == 0 {
		return 0
	}
	return txn.Timestamp.Sub(history[idx-1].Timestamp).Seconds()
}

func isNewDevice(txn domain.Transaction, history []domain.Transaction) bool {
	device := normalize(txn.DeviceID)
	for _, tx := range history {
		if normalize(tx.DeviceID) == device {
			return false
		}
	}
	return true
}

// isRareLocation flags locations whose share of the user's history falls
// below the rarity cutoff.
func (d *Deriver) isRareLocation(txn domain.Transaction, history []domain.Transaction) bool {
	location := normalize(txn.Location)
	var seen int
	for _, tx := range history {
		if normalize(tx.Location) == location {
			seen++
		}
	}
	freq := float64(seen) / float64(len(history))
	return freq < d.RareLocationFreq
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
