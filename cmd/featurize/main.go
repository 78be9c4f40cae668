// Command featurize generates the training feature set from a labelled
// transaction snapshot.
//
// Each row's features are derived against that user's strictly earlier
// transactions (the chronological prefix), through the same deriver the
// server uses at inference time. That shared code path is what keeps the
// training and serving feature distributions identical — the pipeline's most
// important invariant.
//
// Usage:
//
//	go run ./cmd/featurize -in data/transactions.csv -out data/features.csv
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"aegis/risk-api/internal/domain"
	"aegis/risk-api/internal/features"
	"aegis/risk-api/internal/ledger"
)

func main() {
	in := flag.String("in", "data/transactions.csv", "path to the labelled transaction snapshot")
	out := flag.String("out", "data/features.csv", "path to write the feature CSV")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	if err := run(*in, *out); err != nil {
		slog.Error("featurize failed", "error", err)
		os.Exit(1)
	}
}

func run(in, out string) error {
	l, err := ledger.Load(in)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}

	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := append([]string{"user_id"}, domain.ModelFeatureNames...)
	header = append(header, "new_device", "new_location", "is_fraud")
	if err := w.Write(header); err != nil {
		return err
	}

	deriver := features.NewDeriver()

	var rows, labelled int
	for _, user := range l.Users() {
		history := l.UserHistory(user)
		for i, txn := range history {
			// Only the prefix counts: the row must not see itself or its
			// future, exactly as a live request cannot.
			vector := deriver.Derive(txn, history[:i])

			record := []string{user}
			for _, x := range vector.ModelInputs() {
				record = append(record, strconv.FormatFloat(x, 'g', -1, 64))
			}
			record = append(record,
				strconv.FormatBool(vector.NewDevice),
				strconv.FormatBool(vector.NewLocation),
				formatLabel(txn),
			)
			if err := w.Write(record); err != nil {
				return err
			}
			rows++
			if txn.IsFraud != nil {
				labelled++
			}
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}

	slog.Info("feature set written", "file", out, "rows", rows, "labelled", labelled)
	return nil
}

func formatLabel(txn domain.Transaction) string {
	if txn.IsFraud == nil {
		return ""
	}
	return strconv.FormatBool(*txn.IsFraud)
}
