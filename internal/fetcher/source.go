package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"cryptalert/internal/market"
)

const maxPayloadBytes = 4 << 20

// SourceOptions parameterise the market-data fetcher.
type SourceOptions struct {
	APIAddress string
	Currencies []string
	Timeout    time.Duration
	UserAgent  string
	// Now stamps each snapshot. Defaults to time.Now.
	Now func() time.Time
}

// Source polls the market-data endpoint and parses its payload.
type Source struct {
	opts   SourceOptions
	logger zerolog.Logger
	client *http.Client
}

// NewSource constructs a data-source fetcher.
func NewSource(opts SourceOptions, logger zerolog.Logger) *Source {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Source{
		opts:   opts,
		logger: logger.With().Str("component", "source_fetcher").Logger(),
		client: &http.Client{Timeout: timeout},
	}
}

// FetchRates retrieves the current rates. On failure the snapshot is empty and the
// error describes the transport, status, or payload problem.
func (s *Source) FetchRates(ctx context.Context) (*market.Snapshot, error) {
	if strings.TrimSpace(s.opts.APIAddress) == "" {
		return market.Empty(), fmt.Errorf("api address not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.opts.APIAddress, nil)
	if err != nil {
		return market.Empty(), err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(s.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "cryptalert/1.0")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return market.Empty(), err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadBytes))
	if err != nil {
		return market.Empty(), err
	}

	if resp.StatusCode != http.StatusOK {
		return market.Empty(), parseHTTPError(resp.StatusCode, payload)
	}

	snap, err := market.Parse(payload, s.opts.Currencies, s.opts.Now())
	if err != nil {
		return snap, fmt.Errorf("parse rates: %w", err)
	}

	s.logger.Debug().
		Int("assets", len(snap.Assets())).
		Str("market_change", snap.Market().ChangePercent.String()).
		Msg("rates fetched")
	return snap, nil
}

type errorResponse struct {
	Success *bool  `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.Error != "" {
			return fmt.Errorf("source error (%d): %s", status, apiErr.Error)
		}
		if apiErr.Message != "" {
			return fmt.Errorf("source error (%d): %s", status, apiErr.Message)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("source error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("source error (%d)", status)
}

var _ RatesFetcher = (*Source)(nil)
