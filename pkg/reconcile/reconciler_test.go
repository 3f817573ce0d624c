package reconcile

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func TestValidateSuggestion(t *testing.T) {
	values := []string{"Redakteur", "Chefredakteur Politik"}

	assert.True(t, ValidateSuggestion(values, "Redakteur"))
	assert.True(t, ValidateSuggestion(values, "redakteur"), "exact match is case insensitive")
	assert.True(t, ValidateSuggestion(values, "Chefredakteur"), "tokens drawn from the inputs are acceptable")
	assert.True(t, ValidateSuggestion(values, "Redakteur Politik"), "recombination of input tokens is acceptable")

	assert.False(t, ValidateSuggestion(values, "Senior Editor"), "tokens absent from every input are rejected")
	assert.False(t, ValidateSuggestion(values, "Chefredakteur Wirtschaft"), "partially hallucinated output is rejected")
	assert.False(t, ValidateSuggestion(values, ""))
	assert.False(t, ValidateSuggestion(nil, "anything"))
}

func TestHTTPReconciler_ReconcileField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)

		var req reconcileRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "position", req.Field)
		assert.Len(t, req.Values, 2)

		_ = json.NewEncoder(w).Encode(reconcileResponse{Value: " Redakteur "})
	}))
	defer srv.Close()

	rec := NewHTTPReconciler(Config{URL: srv.URL, Timeout: time.Second}, testLogger())

	value, err := rec.ReconcileField(context.Background(), "position", []string{"Redakteur", "Editor"})
	require.NoError(t, err)
	assert.Equal(t, "Redakteur", value, "whitespace is trimmed")
}

func TestHTTPReconciler_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	rec := NewHTTPReconciler(Config{URL: srv.URL, Timeout: time.Second}, testLogger())

	_, err := rec.ReconcileField(context.Background(), "position", []string{"a", "b"})
	assert.Error(t, err)
}

func TestHTTPReconciler_Unconfigured(t *testing.T) {
	rec := NewHTTPReconciler(Config{}, testLogger())

	_, err := rec.ReconcileField(context.Background(), "position", []string{"a", "b"})
	assert.Error(t, err)
}
