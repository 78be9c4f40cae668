// Package model wraps the pre-trained fraud classifier.
//
// The artifact is a JSON export of a random forest: each tree carries the
// sklearn-style parallel node arrays (children, split feature, threshold,
// per-class leaf counts). The forest is loaded once at startup, validated
// against the serving feature schema, and then shared read-only across all
// requests — there is no retraining path in this process.
package model

import (
	"encoding/json"
	"fmt"
	"os"

	"aegis/risk-api/internal/domain"
)

const leaf = -1

// Tree is one decision tree in sklearn's flattened node-array layout.
// Node i is a leaf when ChildrenLeft[i] == -1; otherwise samples with
// feature value <= Threshold[i] descend left.
type Tree struct {
	ChildrenLeft  []int       `json:"children_left"`
	ChildrenRight []int       `json:"children_right"`
	Feature       []int       `json:"feature"`
	Threshold     []float64   `json:"threshold"`
	// Value[i] holds the training-sample counts per class at node i,
	// ordered [legitimate, fraud].
	Value [][]float64 `json:"value"`
}

// Forest is the loaded classifier artifact.
type Forest struct {
	ModelType string   `json:"model_type"`
	Schema    []string `json:"schema"`
	Trees     []Tree   `json:"trees"`
}

// Load reads and validates a classifier artifact. Any schema or structural
// problem is returned as an error so the caller can refuse to start; a
// mismatched artifact must never survive into request handling.
func Load(path string) (*Forest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model artifact: %w", err)
	}

	var f Forest
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse model artifact: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("invalid model artifact: %w", err)
	}
	return &f, nil
}

// Validate checks the artifact's feature schema against the serving schema
// and the structural consistency of every tree.
func (f *Forest) Validate() error {
	if len(f.Trees) == 0 {
		return fmt.Errorf("artifact contains no trees")
	}

	if len(f.Schema) != len(domain.ModelFeatureNames) {
		return fmt.Errorf("feature schema has %d features, serving schema has %d",
			len(f.Schema), len(domain.ModelFeatureNames))
	}
	for i, name := range domain.ModelFeatureNames {
		if f.Schema[i] != name {
			return fmt.Errorf("feature schema mismatch at position %d: artifact %q, serving %q",
				i, f.Schema[i], name)
		}
	}

	for ti, t := range f.Trees {
		n := len(t.ChildrenLeft)
		if len(t.ChildrenRight) != n || len(t.Feature) != n || len(t.Threshold) != n || len(t.Value) != n {
			return fmt.Errorf("tree %d: node arrays have inconsistent lengths", ti)
		}
		if n == 0 {
			return fmt.Errorf("tree %d: empty", ti)
		}
		for i := 0; i < n; i++ {
			if t.ChildrenLeft[i] == leaf {
				if len(t.Value[i]) != 2 {
					return fmt.Errorf("tree %d node %d: leaf must carry 2 class counts, has %d", ti, i, len(t.Value[i]))
				}
				continue
			}
			if t.ChildrenLeft[i] < 0 || t.ChildrenLeft[i] >= n ||
				t.ChildrenRight[i] < 0 || t.ChildrenRight[i] >= n {
				return fmt.Errorf("tree %d node %d: child index out of range", ti, i)
			}
			if t.Feature[i] < 0 || t.Feature[i] >= len(f.Schema) {
				return fmt.Errorf("tree %d node %d: split feature %d out of schema range", ti, i, t.Feature[i])
			}
		}
	}
	return nil
}

// PredictProba returns the fraud probability for one input row in
// ModelFeatureNames order: the mean over trees of each leaf's fraud-class
// fraction, always in [0,1].
func (f *Forest) PredictProba(inputs []float64) float64 {
	var sum float64
	for i := range f.Trees {
		sum += f.Trees[i].proba(inputs)
	}
	return sum / float64(len(f.Trees))
}

func (t *Tree) proba(inputs []float64) float64 {
	node := 0
	for t.ChildrenLeft[node] != leaf {
		if inputs[t.Feature[node]] <= t.Threshold[node] {
			node = t.ChildrenLeft[node]
		} else {
			node = t.ChildrenRight[node]
		}
	}
	counts := t.Value[node]
	total := counts[0] + counts[1]
	if total == 0 {
		return 0
	}
	return counts[1] / total
}
