package ledger_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aegis/risk-api/internal/ledger"
)

const sampleSnapshot = `user_id,transaction_type,amount,timestamp,device_id,location,is_fraud
u-1,purchase,100.00,2026-05-10T10:00:00Z,dev-a,BR-SP,false
u-1,purchase,50.00,2026-05-01T09:00:00Z,dev-a,BR-SP,false
u-2,transfer,900.00,2026-05-03T02:00:00Z,dev-b,MX-CMX,true
u-1,withdrawal,75.00,2026-05-05T12:00:00Z,dev-c,CO-BOG,
`

func load(t *testing.T, csv string) *ledger.Ledger {
	t.Helper()
	l, err := ledger.Read(strings.NewReader(csv))
	require.NoError(t, err)
	return l
}

// ─── Loading ──────────────────────────────────────────────────────────────────

func TestRead_BasicSnapshot(t *testing.T) {
	l := load(t, sampleSnapshot)

	assert.Equal(t, 4, l.Len())
	assert.Equal(t, []string{"u-1", "u-2"}, l.Users())
	assert.Len(t, l.UserHistory("u-1"), 3)
	assert.Len(t, l.UserHistory("u-2"), 1)
	assert.Empty(t, l.UserHistory("u-unknown"))
}

func TestRead_UserHistorySortedAscending(t *testing.T) {
	l := load(t, sampleSnapshot)

	history := l.UserHistory("u-1")
	for i := 1; i < len(history); i++ {
		assert.False(t, history[i].Timestamp.Before(history[i-1].Timestamp),
			"history must be ascending by timestamp")
	}
	// The out-of-order input rows must land in sorted positions.
	assert.Equal(t, "2026-05-01T09:00:00Z", history[0].Timestamp.Format(time.RFC3339))
	assert.Equal(t, "2026-05-10T10:00:00Z", history[2].Timestamp.Format(time.RFC3339))
}

func TestRead_StableOrderForDuplicateTimestamps(t *testing.T) {
	csv := `u-1,purchase,10.00,2026-05-01T09:00:00Z,dev-first,BR-SP
u-1,purchase,20.00,2026-05-01T09:00:00Z,dev-second,BR-SP
`
	l := load(t, csv)
	history := l.UserHistory("u-1")
	require.Len(t, history, 2)
	assert.Equal(t, "dev-first", history[0].DeviceID, "ingestion order must break timestamp ties")
	assert.Equal(t, "dev-second", history[1].DeviceID)
}

func TestRead_LabelParsing(t *testing.T) {
	l := load(t, sampleSnapshot)

	fraud := l.UserHistory("u-2")[0]
	require.NotNil(t, fraud.IsFraud)
	assert.True(t, *fraud.IsFraud)

	// An empty is_fraud column means unlabelled, not false.
	unlabelled := l.UserHistory("u-1")[1] // the 2026-05-05 withdrawal
	assert.Nil(t, unlabelled.IsFraud)
}

func TestRead_SixColumnSnapshotWithoutLabels(t *testing.T) {
	csv := `u-9,purchase,42.00,2026-05-01T09:00:00Z,dev-z,AR-BUE
`
	l := load(t, csv)
	require.Equal(t, 1, l.Len())
	assert.Nil(t, l.UserHistory("u-9")[0].IsFraud)
}

// ─── Malformed input is fatal ─────────────────────────────────────────────────

func TestRead_RejectsMalformedRows(t *testing.T) {
	cases := map[string]string{
		"bad timestamp":     "u-1,purchase,10.00,yesterday,dev-a,BR-SP\n",
		"bad amount":        "u-1,purchase,ten,2026-05-01T09:00:00Z,dev-a,BR-SP\n",
		"negative amount":   "u-1,purchase,-5.00,2026-05-01T09:00:00Z,dev-a,BR-SP\n",
		"zero amount":       "u-1,purchase,0,2026-05-01T09:00:00Z,dev-a,BR-SP\n",
		"missing columns":   "u-1,purchase,10.00\n",
		"empty user id":     ",purchase,10.00,2026-05-01T09:00:00Z,dev-a,BR-SP\n",
		"bad is_fraud flag": "u-1,purchase,10.00,2026-05-01T09:00:00Z,dev-a,BR-SP,maybe\n",
	}
	for name, csv := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ledger.Read(strings.NewReader(csv))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := ledger.Load("does/not/exist.csv")
	assert.Error(t, err)
}

// ─── Profiles ─────────────────────────────────────────────────────────────────

func TestUserProfile(t *testing.T) {
	l := load(t, sampleSnapshot)

	profile, found := l.UserProfile("u-1")
	require.True(t, found)
	assert.Equal(t, 3, profile.TransactionCount)
	assert.InDelta(t, 75.0, profile.AvgAmount, 1e-9)
	assert.InDelta(t, 25.0, profile.StdAmount, 1e-9) // amounts 50,75,100
	assert.Equal(t, 2, profile.DistinctDevices)      // dev-a, dev-c
	assert.Equal(t, 2, profile.DistinctLocations)
	assert.True(t, profile.FirstSeen.Before(profile.LastSeen))
}

func TestUserProfile_UnknownUser(t *testing.T) {
	l := load(t, sampleSnapshot)
	_, found := l.UserProfile("nobody")
	assert.False(t, found)
}
