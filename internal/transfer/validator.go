package transfer

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Validator checks that remote sources pass the policy and still exist.
type Validator struct {
	policy     *Policy
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewValidator creates a validator. A nil client gets a 30s timeout client.
func NewValidator(policy *Policy, client *http.Client, logger zerolog.Logger) *Validator {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Validator{
		policy:     policy,
		httpClient: client,
		logger:     logger.With().Str("component", "url-validator").Logger(),
	}
}

// ValidateURL applies the policy, then checks the resource with a HEAD
// request. Servers that reject HEAD with 405 are asked for the first byte
// instead. 404 and 410 report false. Policy violations, transport errors
// and any other status are returned as errors.
func (v *Validator) ValidateURL(ctx context.Context, raw string) (bool, error) {
	u, err := v.policy.Check(raw)
	if err != nil {
		return false, err
	}

	status, err := v.status(ctx, http.MethodHead, u.String(), false)
	if err != nil {
		return false, err
	}

	if status == http.StatusMethodNotAllowed {
		v.logger.Debug().Str("url", raw).Msg("HEAD not allowed, retrying with range request")
		if status, err = v.status(ctx, http.MethodGet, u.String(), true); err != nil {
			return false, err
		}
	}

	switch {
	case status >= 200 && status <= 299:
		return true, nil
	case status == http.StatusNotFound || status == http.StatusGone:
		v.logger.Info().Str("url", raw).Int("status", status).Msg("remote source no longer exists")
		return false, nil
	default:
		return false, &ValidationError{URL: raw, Reason: "unexpected response", StatusCode: status}
	}
}

func (v *Validator) status(ctx context.Context, method, target string, firstByte bool) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return 0, err
	}
	if firstByte {
		req.Header.Set("Range", "bytes=0-0")
	}
	resp, err := v.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}
