package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"FluxMessenger/server/internal/models"
)

// SummaryProvider is the optional AI summary collaborator. Absence is a
// modeled state (Enabled reports false), not an error path.
type SummaryProvider interface {
	Enabled() bool
	Summarize(ctx context.Context, messages []models.Message) (string, error)
}

// DisabledSummaryProvider is the None variant used when no summary
// endpoint is configured.
type DisabledSummaryProvider struct{}

func (DisabledSummaryProvider) Enabled() bool { return false }

func (DisabledSummaryProvider) Summarize(ctx context.Context, messages []models.Message) (string, error) {
	return "", models.ErrUpstreamUnavailable
}

type httpSummaryProvider struct {
	url    string
	client *http.Client
	log    zerolog.Logger
}

// NewSummaryProvider wires the configured summary endpoint, or the
// disabled variant when url is empty.
func NewSummaryProvider(url string, log zerolog.Logger) SummaryProvider {
	if url == "" {
		log.Info().Msg("summary provider disabled")
		return DisabledSummaryProvider{}
	}
	return &httpSummaryProvider{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log,
	}
}

func (sp *httpSummaryProvider) Enabled() bool { return true }

func (sp *httpSummaryProvider) Summarize(ctx context.Context, messages []models.Message) (string, error) {
	payload := struct {
		Messages []models.Message `json:"messages"`
	}{Messages: messages}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sp.url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := sp.client.Do(req)
	if err != nil {
		sp.log.Warn().Err(err).Msg("summary service unreachable")
		return "", models.ErrUpstreamUnavailable
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		sp.log.Warn().Int("status", resp.StatusCode).Msg("summary service returned non-200")
		return "", fmt.Errorf("summary service: %w", models.ErrUpstreamUnavailable)
	}

	var out struct {
		Summary string `json:"summary"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", models.ErrUpstreamUnavailable
	}
	return out.Summary, nil
}
