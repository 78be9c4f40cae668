// Package explain generates natural-language explanations for risk
// assessments by calling a hosted language model, grounded with snippets
// retrieved from a local knowledge base.
//
// The call is best-effort by contract: it may be slow or fail outright, and
// the Explainer interface makes that fallibility visible in the signature.
// Callers substitute FallbackText on any error — an explanation failure must
// never fail the overall risk assessment.
package explain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// FallbackText is returned to clients whenever the gateway cannot produce an
// explanation.
const FallbackText = "This transaction was flagged based on deviations from the user's historical behavior."

// retrieveTopK is how many knowledge chunks are inlined as prompt context.
const retrieveTopK = 3

// Explainer produces an explanation for an ordered list of risk-factor
// labels. Implementations may fail; the error is part of the contract.
type Explainer interface {
	Explain(ctx context.Context, riskFactors []string) (string, error)
}

// Config holds the gateway connection settings.
type Config struct {
	BaseURL string        // chat-completions endpoint base, e.g. https://api.groq.com/openai/v1
	APIKey  string
	Model   string        // e.g. llama-3.1-8b-instant
	Timeout time.Duration // per-call budget, applied on top of the caller's context
}

// Gateway is the HTTP client for the hosted language model.
type Gateway struct {
	cfg    Config
	client *http.Client

	// The knowledge base is loaded lazily on the first explanation so cold
	// process starts don't pay for it.
	knowledgePath string
	loadOnce      sync.Once
	kb            *KnowledgeBase
	loadErr       error
}

// New creates a Gateway. The knowledge file is not read until the first
// Explain call.
func New(cfg Config, knowledgePath string) *Gateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Gateway{
		cfg:           cfg,
		client:        &http.Client{Timeout: cfg.Timeout},
		knowledgePath: knowledgePath,
	}
}

// ─── Wire types ───────────────────────────────────────────────────────────────

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// ─── Explain ──────────────────────────────────────────────────────────────────

// Explain retrieves supporting context for the risk factors and asks the
// model for a short analyst-voice explanation. Any failure — knowledge load,
// network, non-2xx status, empty completion — is returned as an error.
func (g *Gateway) Explain(ctx context.Context, riskFactors []string) (string, error) {
	kb, err := g.knowledge()
	if err != nil {
		return "", err
	}

	factorList := strings.Join(riskFactors, ", ")
	contextText := strings.Join(kb.Retrieve("Explain the following risk factors: "+factorList, retrieveTopK), "\n")

	prompt := fmt.Sprintf(`You are a fraud risk analyst.

Using the context below, explain the transaction risk clearly and concisely.

Risk factors:
%s

Context:
%s

Write 2-3 short sentences explaining why this transaction is risky.
Avoid theory. Be concrete and user-focused.`, factorList, contextText)

	return g.complete(ctx, prompt)
}

func (g *Gateway) knowledge() (*KnowledgeBase, error) {
	g.loadOnce.Do(func() {
		g.kb, g.loadErr = LoadKnowledge(g.knowledgePath)
	})
	return g.kb, g.loadErr
}

func (g *Gateway) complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       g.cfg.Model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: 0.2,
	})
	if err != nil {
		return "", fmt.Errorf("marshal completion request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(g.cfg.BaseURL, "/")+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("completion call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Read a little of the body for the log line; the caller only sees
		// the error.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return "", fmt.Errorf("completion call: status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode completion response: %w", err)
	}
	if len(parsed.Choices) == 0 || strings.TrimSpace(parsed.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("completion response contained no text")
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}
