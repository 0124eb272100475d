// Package nodeclient is a typed wrapper over the indexed node's HTTP API:
// /info, /blocks/at/{height}, /blocks/{id}, /blocks/{id}/header. It retries
// transient failures with backoff and jitter, and optionally caches block
// and header lookups by id. The cache makes no confirmation-depth check:
// any id fetched once is served from cache until its TTL expires.
package nodeclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/Klingon-tech/ergo-indexer/internal/ierr"
)

// Config controls retry budget, deadlines, and caching.
type Config struct {
	BaseURL        string
	APIKey         string
	RequestTimeout time.Duration // per-call deadline, default 30s
	MaxAttempts    int           // default 6
	BaseBackoff    time.Duration // default 200ms
	MaxBackoff     time.Duration // default 5s
	CacheEnabled   bool
	CacheTTL       time.Duration // default 1h
}

// DefaultConfig returns the spec's default NodeClient settings.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:        baseURL,
		RequestTimeout: 30 * time.Second,
		MaxAttempts:    6,
		BaseBackoff:    200 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		CacheEnabled:   true,
		CacheTTL:       time.Hour,
	}
}

// Client is the NodeClient. All methods are idempotent GETs.
type Client struct {
	cfg    Config
	http   *http.Client
	log    zerolog.Logger
	cache  *cache
}

// New creates a Client against the given configuration.
func New(cfg Config, log zerolog.Logger) *Client {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 6
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 200 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 5 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}

	var c *cache
	if cfg.CacheEnabled {
		c = newCache(cfg.CacheTTL)
	}

	return &Client{
		cfg:   cfg,
		http:  &http.Client{Timeout: cfg.RequestTimeout},
		log:   log.With().Str("component", "nodeclient").Logger(),
		cache: c,
	}
}

// Info returns the node's current tip information.
func (c *Client) Info(ctx context.Context) (NodeInfo, error) {
	var info NodeInfo
	err := c.getJSON(ctx, "/info", &info)
	return info, err
}

// HeaderAt returns the main-chain header at height. The node may list more
// than one block at a height during a race at the tip; the header whose
// MainChain flag is set is selected.
func (c *Client) HeaderAt(ctx context.Context, height uint64) (Header, error) {
	var ids []string
	path := "/blocks/at/" + strconv.FormatUint(height, 10)
	if err := c.getJSON(ctx, path, &ids); err != nil {
		return Header{}, err
	}
	if len(ids) == 0 {
		return Header{}, fmt.Errorf("height %d: %w", height, ierr.ErrNotFound)
	}

	var fallback Header
	for i, id := range ids {
		h, err := c.Header(ctx, id)
		if err != nil {
			return Header{}, err
		}
		if i == 0 {
			fallback = h
		}
		if h.MainChain {
			return h, nil
		}
	}
	return fallback, nil
}

// Block returns the full block (header + transactions) for id. When caching
// is enabled, every id is cached after its first fetch and served from the
// cache until the TTL expires; whether the id is confirmed is not checked.
func (c *Client) Block(ctx context.Context, id string) (FullBlock, error) {
	if c.cache != nil {
		if v, ok := c.cache.getBlock(id); ok {
			return v, nil
		}
	}

	var blk FullBlock
	if err := c.getJSON(ctx, "/blocks/"+id, &blk); err != nil {
		return FullBlock{}, err
	}

	if c.cache != nil {
		c.cache.putBlock(id, blk)
	}
	return blk, nil
}

// Header returns the header for id, used for reorg walkback.
func (c *Client) Header(ctx context.Context, id string) (Header, error) {
	if c.cache != nil {
		if v, ok := c.cache.getHeader(id); ok {
			return v, nil
		}
	}

	var h Header
	if err := c.getJSON(ctx, "/blocks/"+id+"/header", &h); err != nil {
		return Header{}, err
	}

	if c.cache != nil {
		c.cache.putHeader(id, h)
	}
	return h, nil
}

// getJSON issues a GET with exponential backoff and jitter on transient
// failures, and unmarshals the response body into out.
func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.BaseBackoff
	bo.MaxInterval = c.cfg.MaxBackoff
	bo.Multiplier = 2
	bo.RandomizationFactor = 0.5
	bo.MaxElapsedTime = 0 // bounded by MaxAttempts below, not wall-clock

	bounded := backoff.WithMaxRetries(bo, uint64(c.cfg.MaxAttempts-1))
	withCtx := backoff.WithContext(bounded, ctx)

	var body []byte
	var permErr error
	err := backoff.Retry(func() error {
		b, err := c.do(ctx, path)
		if err != nil {
			var pe *backoff.PermanentError
			if errors.As(err, &pe) {
				permErr = pe.Err
			}
			return err
		}
		body = b
		return nil
	}, withCtx)
	if err != nil {
		if permErr != nil {
			return permErr
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", path, ierr.ErrCancelled)
		}
		return fmt.Errorf("%s: %w", path, ierr.ErrUnavailable)
	}

	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// do performs a single GET attempt, classifying the response.
func (c *Client) do(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("api_key", c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(fmt.Errorf("%s: %w", path, ierr.ErrCancelled))
		}
		c.log.Debug().Str("path", path).Err(err).Msg("node request failed, retrying")
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, backoff.Permanent(fmt.Errorf("%s: %w", path, ierr.ErrNotFound))
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, backoff.Permanent(fmt.Errorf("%s: status %d: %w", path, resp.StatusCode, ierr.ErrBadRequest))
	case resp.StatusCode >= 500:
		c.log.Debug().Str("path", path).Int("status", resp.StatusCode).Msg("node 5xx, retrying")
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	return body, nil
}
