package mediathek

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"
)

const (
	searchPath     = "/query"
	streamSizePath = "/content-length"

	defaultPageSize = 25
	maxBodyBytes    = 32 << 20
)

// Config configures a Client.
type Config struct {
	BaseURL          string
	Timeout          time.Duration
	AllowHTTP        bool
	FetchStreamSizes bool
	UserAgent        string

	MaxRetries       uint64
	RetryBase        time.Duration
	FailureThreshold int
	OpenDuration     time.Duration
}

// DefaultConfig returns the production resilience settings: three retries
// backing off 2s, 4s, 8s and a breaker opening for 30s after five failures.
func DefaultConfig() Config {
	return Config{
		BaseURL:          "https://mediathekviewweb.de/api",
		Timeout:          30 * time.Second,
		MaxRetries:       3,
		RetryBase:        2 * time.Second,
		FailureThreshold: 5,
		OpenDuration:     30 * time.Second,
	}
}

// Client queries the MediathekViewWeb search API.
type Client struct {
	httpClient *http.Client
	config     Config
	breaker    *Breaker
	logger     zerolog.Logger
}

// NewClient creates a new search client with its own breaker.
func NewClient(cfg Config, logger zerolog.Logger) *Client {
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 2 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		config:     cfg,
		breaker:    NewBreaker(cfg.FailureThreshold, cfg.OpenDuration),
		logger:     logger.With().Str("component", "mediathek").Logger(),
	}
}

// Breaker exposes the client's circuit breaker for status reporting.
func (c *Client) Breaker() *Breaker {
	return c.breaker
}

// Search runs one query and returns a page of normalized results.
func (c *Client) Search(ctx context.Context, q Query) (*QueryResult, error) {
	payload, err := json.Marshal(toWireQuery(q))
	if err != nil {
		return nil, fmt.Errorf("failed to encode query: %w", err)
	}

	c.logger.Debug().RawJSON("payload", payload).Msg("performing search")

	body, err := c.execute(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+searchPath, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	var env apiEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &ParsingError{Msg: "failed to decode search response", Err: err}
	}
	if env.Result == nil {
		return nil, &ParsingError{Msg: "search response has no result"}
	}

	result := &QueryResult{
		Items: make([]ResultItem, 0, len(env.Result.Results)),
		Info:  env.Result.QueryInfo.toModel(),
	}
	for _, it := range env.Result.Results {
		result.Items = append(result.Items, it.toModel(c.config.AllowHTTP))
	}

	if c.config.FetchStreamSizes {
		c.fillStreamSizes(ctx, result.Items)
	}

	c.logger.Info().
		Int("results", len(result.Items)).
		Int("total", result.Info.TotalResults).
		Msg("search completed")

	return result, nil
}

// StreamSize asks the service for the content length of a media URL.
func (c *Client) StreamSize(ctx context.Context, streamURL string) (int64, error) {
	endpoint := c.config.BaseURL + streamSizePath + "?url=" + url.QueryEscape(streamURL)

	body, err := c.execute(ctx, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	})
	if err != nil {
		return 0, err
	}

	size, err := strconv.ParseInt(strings.TrimSpace(string(body)), 10, 64)
	if err != nil {
		return 0, &ParsingError{Msg: "invalid stream size response", Err: err}
	}
	return size, nil
}

// fillStreamSizes replaces unknown variant sizes in place. Failures are logged.
func (c *Client) fillStreamSizes(ctx context.Context, items []ResultItem) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for i := range items {
		for j := range items[i].Videos {
			v := &items[i].Videos[j]
			g.Go(func() error {
				size, err := c.StreamSize(gctx, v.URL)
				if err != nil {
					c.logger.Warn().Err(err).Str("url", v.URL).Msg("failed to retrieve stream size")
					return nil
				}
				v.Size = size
				return nil
			})
		}
	}
	_ = g.Wait()
}

// execute runs one logical call through the retry loop. Every HTTP attempt
// passes the breaker individually, so the breaker counts attempts.
func (c *Client) execute(ctx context.Context, newRequest func(context.Context) (*http.Request, error)) ([]byte, error) {
	backoff := retry.WithMaxRetries(c.config.MaxRetries, retry.NewExponential(c.config.RetryBase))

	var (
		body    []byte
		attempt int
	)
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++

		if err := c.breaker.Allow(); err != nil {
			c.logger.Warn().Msg("search circuit open, failing fast")
			return &ConnectionError{Err: err}
		}

		b, err := c.roundTrip(ctx, newRequest)
		switch {
		case err == nil:
			c.breaker.Success()
			body = b
			return nil
		case ctx.Err() != nil:
			c.breaker.Abandon()
			return ctx.Err()
		case isTransient(err):
			c.breaker.Failure()
			c.logger.Warn().Err(err).Int("attempt", attempt).Msg("transient search failure")
			return retry.RetryableError(err)
		default:
			c.breaker.Success()
			return err
		}
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		c.logger.Error().Err(err).Int("attempts", attempt).Msg("search request failed")
		return nil, err
	}
	return body, nil
}

func (c *Client) roundTrip(ctx context.Context, newRequest func(context.Context) (*http.Request, error)) ([]byte, error) {
	req, err := newRequest(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &ConnectionError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &APIStatusError{StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &ConnectionError{Err: err}
	}
	return body, nil
}

type wireQuery struct {
	Queries     []QueryField `json:"queries"`
	SortBy      SortField    `json:"sortBy"`
	SortOrder   SortOrder    `json:"sortOrder"`
	Future      bool         `json:"future"`
	Offset      int          `json:"offset"`
	Size        int          `json:"size"`
	MinDuration *int         `json:"minDuration,omitempty"`
	MaxDuration *int         `json:"maxDuration,omitempty"`
}

// toWireQuery applies request defaults without touching the caller's query.
func toWireQuery(q Query) wireQuery {
	w := wireQuery{
		Queries:     make([]QueryField, len(q.Queries)),
		SortBy:      q.SortBy,
		SortOrder:   q.SortOrder,
		Future:      q.Future,
		Offset:      q.Offset,
		Size:        q.Size,
		MinDuration: q.MinDuration,
		MaxDuration: q.MaxDuration,
	}
	copy(w.Queries, q.Queries)
	if w.SortBy == "" {
		w.SortBy = SortByTimestamp
	}
	if w.SortOrder == "" {
		w.SortOrder = SortDesc
	}
	if w.Size <= 0 {
		w.Size = defaultPageSize
	}
	return w
}
