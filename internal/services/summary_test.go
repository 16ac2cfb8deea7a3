package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FluxMessenger/server/internal/models"
)

func TestSummaryProviderDisabled(t *testing.T) {
	provider := NewSummaryProvider("", zerolog.Nop())
	assert.False(t, provider.Enabled())

	_, err := provider.Summarize(context.Background(), nil)
	assert.ErrorIs(t, err, models.ErrUpstreamUnavailable)
}

func TestSummaryProviderSummarize(t *testing.T) {
	content := "hello"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Write([]byte(`{"summary":"two people said hello"}`))
	}))
	defer srv.Close()

	provider := NewSummaryProvider(srv.URL, zerolog.Nop())
	require.True(t, provider.Enabled())

	summary, err := provider.Summarize(context.Background(), []models.Message{{ID: 1, Content: &content}})
	require.NoError(t, err)
	assert.Equal(t, "two people said hello", summary)
}

func TestSummaryProviderUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	provider := NewSummaryProvider(srv.URL, zerolog.Nop())
	_, err := provider.Summarize(context.Background(), nil)
	assert.ErrorIs(t, err, models.ErrUpstreamUnavailable)
}

func TestSummaryProviderUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	provider := NewSummaryProvider(srv.URL, zerolog.Nop())
	_, err := provider.Summarize(context.Background(), nil)
	assert.ErrorIs(t, err, models.ErrUpstreamUnavailable)
}
