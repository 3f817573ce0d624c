// Package reconcile wraps the optional AI text-reconciliation service. The
// service is advisory only: callers always fall back to the deterministic
// merge policy when a call fails or its output cannot be traced back to the
// variant-provided values.
package reconcile

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/scoring"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Reconciler picks or synthesizes a best value from conflicting field values.
type Reconciler interface {
	ReconcileField(ctx context.Context, field string, values []string) (string, error)
}

// Config holds HTTP reconciler settings.
type Config struct {
	URL     string
	Timeout time.Duration
}

// HTTPReconciler calls an external reconciliation endpoint.
type HTTPReconciler struct {
	client *http.Client
	url    string
	logger ectologger.Logger
}

// NewHTTPReconciler creates a reconciler against the configured endpoint.
func NewHTTPReconciler(cfg Config, logger ectologger.Logger) *HTTPReconciler {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPReconciler{
		client: &http.Client{Timeout: timeout},
		url:    cfg.URL,
		logger: logger,
	}
}

type reconcileRequest struct {
	Field  string   `json:"field"`
	Values []string `json:"values"`
}

type reconcileResponse struct {
	Value string `json:"value"`
}

// ReconcileField asks the external service for a best value. The raw
// suggestion is returned; callers must run ValidateSuggestion before using it.
func (r *HTTPReconciler) ReconcileField(ctx context.Context, field string, values []string) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "reconcile.HTTPReconciler.ReconcileField")
	defer span.End()

	if r.url == "" {
		return "", fmt.Errorf("reconciler is not configured")
	}

	body, err := json.Marshal(reconcileRequest{Field: field, Values: values})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if tp := tracing.GetTraceParent(ctx); tp != "" {
		req.Header.Set("traceparent", tp)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		metrics.ReconcilerCalls.WithLabelValues("error").Inc()
		r.logger.WithContext(ctx).WithError(err).Warn("reconciler call failed")
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.ReconcilerCalls.WithLabelValues("error").Inc()
		return "", fmt.Errorf("reconciler returned status %d", resp.StatusCode)
	}

	var out reconcileResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		metrics.ReconcilerCalls.WithLabelValues("error").Inc()
		return "", err
	}

	metrics.ReconcilerCalls.WithLabelValues("ok").Inc()
	return strings.TrimSpace(out.Value), nil
}

// ValidateSuggestion is the hallucination guard: a suggestion is acceptable
// only when every token of it appears in at least one of the candidate
// values. Output introducing facts not present in any variant is rejected.
func ValidateSuggestion(values []string, suggestion string) bool {
	suggestion = strings.TrimSpace(suggestion)
	if suggestion == "" {
		return false
	}

	for _, v := range values {
		if strings.EqualFold(strings.TrimSpace(v), suggestion) {
			return true
		}
	}

	allowed := make(map[string]struct{})
	for _, v := range values {
		for _, token := range scoring.NameTokens(v) {
			allowed[token] = struct{}{}
		}
	}

	tokens := scoring.NameTokens(suggestion)
	if len(tokens) == 0 {
		return false
	}
	for _, token := range tokens {
		if _, ok := allowed[token]; !ok {
			return false
		}
	}
	return true
}
