package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"aegis/risk-api/internal/domain"
	"aegis/risk-api/internal/explain"
	"aegis/risk-api/internal/features"
	"aegis/risk-api/internal/ledger"
	"aegis/risk-api/internal/model"
	"aegis/risk-api/internal/policy"
)

// Handler holds the dependencies shared across all HTTP handlers.
// The ledger and forest are read-only shared state; the explainer is the
// only collaborator that can be slow, and it is bounded by its own timeout.
type Handler struct {
	ledger    *ledger.Ledger
	deriver   *features.Deriver
	forest    *model.Forest
	policy    policy.Policy
	explainer explain.Explainer
}

// NewHandler creates a Handler wired to the given dependencies.
func NewHandler(l *ledger.Ledger, d *features.Deriver, f *model.Forest, p policy.Policy, e explain.Explainer) *Handler {
	return &Handler{ledger: l, deriver: d, forest: f, policy: p, explainer: e}
}

// ─── POST /api/v1/transactions/score ─────────────────────────────────────────

// scoreRequest is the inbound scoring payload. Timestamp arrives as a string
// so an unparseable value can be rejected with a precise client error
// instead of a generic JSON decode failure.
type scoreRequest struct {
	UserID    string          `json:"user_id"`
	Type      string          `json:"transaction_type"`
	Amount    decimal.Decimal `json:"amount"`
	Timestamp string          `json:"timestamp"`
	DeviceID  string          `json:"device_id"`
	Location  string          `json:"location"`
}

// ScoreTransaction runs the full pipeline for one transaction: derive
// features from the user's history, score with the classifier, apply the
// decision policy, and attach an explanation. The transaction is not written
// back to the ledger; history updates are an offline concern.
func (h *Handler) ScoreTransaction(w http.ResponseWriter, r *http.Request) {
	var req scoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "INVALID_JSON", "request body must be valid JSON")
		return
	}

	txn, err := validateScoreRequest(&req)
	if err != nil {
		badRequest(w, "VALIDATION_ERROR", err.Error())
		return
	}

	history := h.ledger.UserHistory(txn.UserID)
	vector := h.deriver.Derive(txn, history)

	probability := h.forest.PredictProba(vector.ModelInputs())
	score, level, factors := h.policy.Decide(probability, vector)

	// Best-effort explanation: any gateway failure is logged and replaced
	// with the fixed fallback sentence, never surfaced to the client.
	explanation, err := h.explainer.Explain(r.Context(), factors)
	if err != nil {
		slog.Warn("explanation gateway failed, using fallback",
			"user_id", txn.UserID, "error", err)
		explanationFallbacks.Inc()
		explanation = explain.FallbackText
	}

	assessment := domain.RiskAssessment{
		ID:          uuid.NewString(),
		RiskScore:   score,
		RiskLevel:   level,
		RiskFactors: factors,
		Explanation: explanation,
		Features:    vector,
		ProcessedAt: time.Now().UTC(),
	}
	assessmentsTotal.WithLabelValues(level).Inc()

	slog.Info("transaction scored",
		"assessment_id", assessment.ID,
		"user_id", txn.UserID,
		"risk_score", score,
		"risk_level", level,
		"factors", len(factors),
	)

	ok(w, assessment)
}

// ─── GET /api/v1/users/{id}/profile ──────────────────────────────────────────

// GetUserProfile returns the behavioral baseline for a user from the
// historical ledger.
func (h *Handler) GetUserProfile(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	profile, found := h.ledger.UserProfile(userID)
	if !found {
		notFound(w, fmt.Sprintf("no history for user '%s'", userID))
		return
	}
	ok(w, profile)
}

// ─── GET /health ──────────────────────────────────────────────────────────────

// Health reports liveness plus the size of the loaded snapshot and model.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ok(w, map[string]any{
		"status":       "ok",
		"service":      "risk-api",
		"transactions": h.ledger.Len(),
		"users":        len(h.ledger.Users()),
		"trees":        len(h.forest.Trees),
	})
}

// ─── Validation ───────────────────────────────────────────────────────────────

// validateScoreRequest checks required fields and parses the timestamp.
// A malformed timestamp is a hard input error — it is never defaulted.
func validateScoreRequest(req *scoreRequest) (domain.Transaction, error) {
	if req.UserID == "" {
		return domain.Transaction{}, fmt.Errorf("user_id is required")
	}
	if req.Type == "" {
		return domain.Transaction{}, fmt.Errorf("transaction_type is required")
	}
	if !req.Amount.IsPositive() {
		return domain.Transaction{}, fmt.Errorf("amount must be greater than 0")
	}
	if req.DeviceID == "" {
		return domain.Transaction{}, fmt.Errorf("device_id is required")
	}
	if req.Location == "" {
		return domain.Transaction{}, fmt.Errorf("location is required")
	}
	if req.Timestamp == "" {
		return domain.Transaction{}, fmt.Errorf("timestamp is required")
	}
	ts, err := time.Parse(time.RFC3339, req.Timestamp)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("timestamp must be a valid RFC 3339 instant")
	}

	return domain.Transaction{
		UserID:    req.UserID,
		Type:      req.Type,
		Amount:    req.Amount,
		Timestamp: ts,
		DeviceID:  req.DeviceID,
		Location:  req.Location,
	}, nil
}
