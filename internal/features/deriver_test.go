package features_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aegis/risk-api/internal/domain"
	"aegis/risk-api/internal/features"
)

// ─── Helpers ──────────────────────────────────────────────────────────────────

func txn(user string, amount float64, ts time.Time, device, location string) domain.Transaction {
	return domain.Transaction{
		UserID:    user,
		Type:      "purchase",
		Amount:    decimal.NewFromFloat(amount),
		Timestamp: ts,
		DeviceID:  device,
		Location:  location,
	}
}

// baseHistory returns three transactions averaging 100 with sample std 10,
// one week apart on the same device and location.
func baseHistory(t0 time.Time) []domain.Transaction {
	return []domain.Transaction{
		txn("u-1", 90, t0, "dev-a", "BR-SP"),
		txn("u-1", 100, t0.Add(7*24*time.Hour), "dev-a", "BR-SP"),
		txn("u-1", 110, t0.Add(14*24*time.Hour), "dev-a", "BR-SP"),
	}
}

// ─── Cold start ───────────────────────────────────────────────────────────────

func TestDerive_ColdStartDefaults(t *testing.T) {
	d := features.NewDeriver()
	at := time.Date(2026, 6, 3, 14, 0, 0, 0, time.UTC) // a Wednesday

	v := d.Derive(txn("u-new", 75, at, "dev-x", "MX-CMX"), nil)

	assert.Equal(t, 75.0, v.UserAvgAmount)
	assert.Equal(t, 1.0, v.UserStdAmount)
	assert.Equal(t, 0.0, v.AmountZScore)
	assert.Equal(t, 0.0, v.TimeSinceLastTxn)
	assert.True(t, v.NewDevice)
	assert.True(t, v.NewLocation)
	assert.Equal(t, 14, v.Hour)
	assert.Equal(t, 2, v.DayOfWeek) // Monday=0
}

// ─── Warm-start statistics ────────────────────────────────────────────────────

func TestDerive_WarmStats(t *testing.T) {
	d := features.NewDeriver()
	t0 := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	history := baseHistory(t0)

	v := d.Derive(txn("u-1", 100, t0.Add(21*24*time.Hour), "dev-a", "BR-SP"), history)

	assert.InDelta(t, 100.0, v.UserAvgAmount, 1e-9)
	assert.InDelta(t, 10.0, v.UserStdAmount, 1e-9)
	assert.InDelta(t, 0.0, v.AmountZScore, 1e-9)
}

func TestDerive_ZScoreScenario(t *testing.T) {
	// User averaging 100 with std 10; new 500 transaction at 3am from a new
	// device must score z ≈ 40.
	d := features.NewDeriver()
	t0 := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	history := baseHistory(t0)

	at := time.Date(2026, 6, 1, 3, 0, 0, 0, time.UTC)
	v := d.Derive(txn("u-1", 500, at, "dev-unknown", "BR-SP"), history)

	assert.InDelta(t, 40.0, v.AmountZScore, 1e-9)
	assert.True(t, v.NewDevice)
	assert.Equal(t, 3, v.Hour)
}

func TestDerive_StdNeverZero(t *testing.T) {
	d := features.NewDeriver()
	t0 := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

	cases := map[string][]domain.Transaction{
		"empty history":     nil,
		"single sample":     {txn("u-1", 100, t0, "dev-a", "BR-SP")},
		"identical amounts": {txn("u-1", 50, t0, "dev-a", "BR-SP"), txn("u-1", 50, t0.Add(time.Hour), "dev-a", "BR-SP")},
	}
	for name, history := range cases {
		t.Run(name, func(t *testing.T) {
			v := d.Derive(txn("u-1", 1e6, t0.Add(48*time.Hour), "dev-a", "BR-SP"), history)
			require.Equal(t, 1.0, v.UserStdAmount)
		})
	}
}

// ─── Recency ──────────────────────────────────────────────────────────────────

func TestDerive_TimeSinceLastTxn(t *testing.T) {
	d := features.NewDeriver()
	t0 := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	history := baseHistory(t0)
	last := history[len(history)-1].Timestamp

	v := d.Derive(txn("u-1", 100, last.Add(90*time.Second), "dev-a", "BR-SP"), history)
	assert.Equal(t, 90.0, v.TimeSinceLastTxn)
}

func TestDerive_TimeSinceLastTxn_IgnoresFutureEntries(t *testing.T) {
	// Only history at or before the transaction counts as "last".
	d := features.NewDeriver()
	t0 := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	history := baseHistory(t0)

	between := history[0].Timestamp.Add(2 * time.Hour)
	v := d.Derive(txn("u-1", 100, between, "dev-a", "BR-SP"), history)
	assert.Equal(t, (2 * time.Hour).Seconds(), v.TimeSinceLastTxn)

	// Every history entry in the future: fall back to the cold-start zero.
	before := history[0].Timestamp.Add(-time.Hour)
	v = d.Derive(txn("u-1", 100, before, "dev-a", "BR-SP"), history)
	assert.Equal(t, 0.0, v.TimeSinceLastTxn)
}

func TestDerive_DuplicateTimestampsPermitted(t *testing.T) {
	d := features.NewDeriver()
	t0 := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	history := []domain.Transaction{
		txn("u-1", 100, t0, "dev-a", "BR-SP"),
		txn("u-1", 105, t0, "dev-a", "BR-SP"), // same instant
	}

	v := d.Derive(txn("u-1", 100, t0.Add(time.Minute), "dev-a", "BR-SP"), history)
	assert.Equal(t, 60.0, v.TimeSinceLastTxn)
}

// ─── Novelty flags ────────────────────────────────────────────────────────────

func TestDerive_NewDevice_NormalizedComparison(t *testing.T) {
	d := features.NewDeriver()
	t0 := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	history := baseHistory(t0)

	v := d.Derive(txn("u-1", 100, t0.Add(30*24*time.Hour), "  DEV-A  ", "BR-SP"), history)
	assert.False(t, v.NewDevice, "case and whitespace must not make a known device novel")

	v = d.Derive(txn("u-1", 100, t0.Add(30*24*time.Hour), "dev-b", "BR-SP"), history)
	assert.True(t, v.NewDevice)
}

func TestDerive_NewLocation_FrequencyThreshold(t *testing.T) {
	d := features.NewDeriver()
	t0 := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

	// 20 transactions: 19 from BR-SP, 1 from CO-BOG → CO-BOG frequency 5% < 10%.
	var history []domain.Transaction
	for i := 0; i < 19; i++ {
		history = append(history, txn("u-1", 100, t0.Add(time.Duration(i)*time.Hour), "dev-a", "BR-SP"))
	}
	history = append(history, txn("u-1", 100, t0.Add(19*time.Hour), "dev-a", "CO-BOG"))

	at := t0.Add(48 * time.Hour)
	v := d.Derive(txn("u-1", 100, at, "dev-a", "CO-BOG"), history)
	assert.True(t, v.NewLocation, "a location at 5 percent of history is below the cutoff")

	v = d.Derive(txn("u-1", 100, at, "dev-a", "br-sp"), history)
	assert.False(t, v.NewLocation)

	v = d.Derive(txn("u-1", 100, at, "dev-a", "AR-BUE"), history)
	assert.True(t, v.NewLocation, "a never-seen location has frequency 0")
}

// ─── Determinism ──────────────────────────────────────────────────────────────

func TestDerive_Idempotent(t *testing.T) {
	d := features.NewDeriver()
	t0 := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	history := baseHistory(t0)
	in := txn("u-1", 250, t0.Add(20*24*time.Hour), "dev-a", "BR-SP")

	first := d.Derive(in, history)
	for i := 0; i < 5; i++ {
		require.Equal(t, first, d.Derive(in, history), fmt.Sprintf("run %d diverged", i+2))
	}
}
