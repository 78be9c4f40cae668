// Package ledger holds the historical transaction snapshot used to derive
// per-user behavioral baselines.
//
// Design rationale: the ledger is loaded once at process start and never
// mutated during request handling, so concurrent readers need no locking.
// The per-user index gives O(1) history lookups while each user's slice
// stays small. A production deployment would page this out of a warehouse
// table; durability of the transaction log is explicitly out of scope.
package ledger

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"aegis/risk-api/internal/domain"
)

// Snapshot column layout. The is_fraud column is optional and only present
// in labelled training snapshots.
const (
	colUserID = iota
	colType
	colAmount
	colTimestamp
	colDeviceID
	colLocation
	colIsFraud

	minColumns = 6
	maxColumns = 7
)

// Ledger is the immutable, process-wide collection of historical transactions.
type Ledger struct {
	byUser map[string][]domain.Transaction
	users  []string
	total  int
}

// Load reads a CSV snapshot and builds the ledger. Any malformed row —
// wrong column count, bad amount, unparseable timestamp — fails the whole
// load: a partially loaded ledger would silently skew every baseline.
func Load(path string) (*Ledger, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()
	return Read(f)
}

// Read parses snapshot rows from r. The first row is treated as a header
// when its amount column does not parse as a number.
func Read(r io.Reader) (*Ledger, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1 // column count validated per row, 6 or 7

	l := &Ledger{byUser: make(map[string][]domain.Transaction)}

	line := 0
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("snapshot line %d: %w", line+1, err)
		}
		line++

		if line == 1 && isHeader(record) {
			continue
		}

		tx, err := parseRow(record)
		if err != nil {
			return nil, fmt.Errorf("snapshot line %d: %w", line, err)
		}
		l.byUser[tx.UserID] = append(l.byUser[tx.UserID], tx)
		l.total++
	}

	// Per-user ascending timestamp order with ingestion order breaking ties.
	// Recency features depend on this invariant.
	for user, txns := range l.byUser {
		sort.SliceStable(txns, func(i, j int) bool {
			return txns[i].Timestamp.Before(txns[j].Timestamp)
		})
		l.users = append(l.users, user)
	}
	sort.Strings(l.users)

	return l, nil
}

func isHeader(record []string) bool {
	if len(record) < minColumns {
		return false
	}
	_, err := decimal.NewFromString(strings.TrimSpace(record[colAmount]))
	return err != nil
}

func parseRow(record []string) (domain.Transaction, error) {
	if len(record) < minColumns || len(record) > maxColumns {
		return domain.Transaction{}, fmt.Errorf("expected %d or %d columns, got %d", minColumns, maxColumns, len(record))
	}

	userID := strings.TrimSpace(record[colUserID])
	if userID == "" {
		return domain.Transaction{}, fmt.Errorf("empty user_id")
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(record[colAmount]))
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("invalid amount %q: %w", record[colAmount], err)
	}
	if !amount.IsPositive() {
		return domain.Transaction{}, fmt.Errorf("amount must be positive, got %s", amount)
	}

	ts, err := time.Parse(time.RFC3339, strings.TrimSpace(record[colTimestamp]))
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("invalid timestamp %q: %w", record[colTimestamp], err)
	}

	tx := domain.Transaction{
		UserID:    userID,
		Type:      strings.TrimSpace(record[colType]),
		Amount:    amount,
		Timestamp: ts,
		DeviceID:  strings.TrimSpace(record[colDeviceID]),
		Location:  strings.TrimSpace(record[colLocation]),
	}

	if len(record) == maxColumns {
		raw := strings.TrimSpace(record[colIsFraud])
		if raw != "" {
			label, err := strconv.ParseBool(raw)
			if err != nil {
				return domain.Transaction{}, fmt.Errorf("invalid is_fraud %q: %w", record[colIsFraud], err)
			}
			tx.IsFraud = &label
		}
	}

	return tx, nil
}

// ─── Read API ─────────────────────────────────────────────────────────────────

// UserHistory returns the user's transactions in ascending timestamp order.
// The returned slice is shared and must not be mutated by callers.
func (l *Ledger) UserHistory(userID string) []domain.Transaction {
	return l.byUser[userID]
}

// Users returns all user IDs present in the snapshot, sorted.
func (l *Ledger) Users() []string {
	return l.users
}

// Len returns the total number of transactions in the snapshot.
func (l *Ledger) Len() int {
	return l.total
}

// UserProfile computes the behavioral baseline summary for a user.
// The second return value is false when the user has no history.
func (l *Ledger) UserProfile(userID string) (domain.UserProfile, bool) {
	history := l.byUser[userID]
	if len(history) == 0 {
		return domain.UserProfile{}, false
	}

	devices := make(map[string]bool)
	locations := make(map[string]bool)
	var sum float64
	for _, tx := range history {
		devices[strings.ToLower(strings.TrimSpace(tx.DeviceID))] = true
		locations[strings.ToLower(strings.TrimSpace(tx.Location))] = true
		sum += tx.Amount.InexactFloat64()
	}
	avg := sum / float64(len(history))

	var std float64
	if len(history) > 1 {
		var ss float64
		for _, tx := range history {
			d := tx.Amount.InexactFloat64() - avg
			ss += d * d
		}
		std = math.Sqrt(ss / float64(len(history)-1))
	}

	return domain.UserProfile{
		UserID:            userID,
		TransactionCount:  len(history),
		AvgAmount:         avg,
		StdAmount:         std,
		DistinctDevices:   len(devices),
		DistinctLocations: len(locations),
		FirstSeen:         history[0].Timestamp,
		LastSeen:          history[len(history)-1].Timestamp,
	}, true
}
