package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cespare/xxhash/v2"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"dealdesk/repository"
)

var (
	ErrInsightsDisabled    = eris.New("insights: not configured")
	ErrInsightsTimeout     = eris.New("insights: request timed out")
	ErrInsightsUnavailable = eris.New("insights: service temporarily unavailable")
	ErrInsightsLocation    = eris.New("insights: location must look like \"City, ST\"")
)

type InsightsConfig struct {
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	CacheTTL   time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// InsightsService fetches property market data for a location. Responses
// are opaque JSON. A fresh copy is served for CacheTTL; after that a stale
// copy is kept and returned when the upstream fails.
type InsightsService struct {
	cfg        InsightsConfig
	cache      repository.CacheRepository
	httpClient *http.Client
	group      singleflight.Group
	logger     *zap.Logger
}

func NewInsightsService(cfg InsightsConfig, cache repository.CacheRepository, logger *zap.Logger) *InsightsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 25 * time.Second
	}
	if cache == nil {
		cache = repository.NewMemoryCache()
	}
	return &InsightsService{
		cfg:        cfg,
		cache:      cache,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

func (s *InsightsService) Enabled() bool { return s.cfg.APIKey != "" }

// Fetch returns insights for a "City, ST" location.
func (s *InsightsService) Fetch(ctx context.Context, location string) (json.RawMessage, error) {
	if !s.Enabled() {
		return nil, ErrInsightsDisabled
	}
	city, state, err := splitLocation(location)
	if err != nil {
		return nil, err
	}

	key := insightsCacheKey(city, state)
	if cached, ok := s.cache.Get(ctx, key); ok {
		return json.RawMessage(cached), nil
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		return s.fetch(ctx, city, state)
	})
	if err != nil {
		if stale, ok := s.cache.Get(ctx, key+":stale"); ok {
			s.logger.Warn("using stale property insights",
				zap.String("location", location), zap.Error(err))
			recordCollaborator("insights", "stale")
			return json.RawMessage(stale), nil
		}
		recordCollaborator("insights", collaboratorResult(err))
		return nil, err
	}
	recordCollaborator("insights", "ok")

	data := v.([]byte)
	if err := s.cache.Set(ctx, key, string(data), s.cfg.CacheTTL); err != nil {
		s.logger.Warn("failed to cache property insights", zap.Error(err))
	}
	if err := s.cache.Set(ctx, key+":stale", string(data), 0); err != nil {
		s.logger.Warn("failed to cache property insights", zap.Error(err))
	}
	return json.RawMessage(data), nil
}

func (s *InsightsService) fetch(ctx context.Context, city, state string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	q := url.Values{}
	q.Set("city", city)
	q.Set("state", state)
	endpoint := strings.TrimRight(s.cfg.BaseURL, "/") + "/locations/search?" + q.Encode()

	var body []byte
	err := retry(ctx, s.cfg.MaxRetries, s.cfg.RetryDelay, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return backoff.Permanent(eris.Wrap(err, "insights: build request"))
		}
		req.Header.Set("X-API-Key", s.cfg.APIKey)
		req.Header.Set("Accept", "application/json")

		resp, err := s.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ErrInsightsTimeout)
			}
			return eris.Wrap(err, "insights: request failed")
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return eris.Wrap(err, "insights: read response")
		}
		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return backoff.Permanent(eris.Wrapf(ErrInsightsUnavailable, "insights: status %d", resp.StatusCode))
		case resp.StatusCode != http.StatusOK:
			return eris.Wrapf(ErrInsightsUnavailable, "insights: status %d", resp.StatusCode)
		case !json.Valid(data):
			return backoff.Permanent(eris.New("insights: response is not JSON"))
		}
		body = data
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ErrInsightsTimeout
		}
		return nil, err
	}
	return body, nil
}

func splitLocation(location string) (string, string, error) {
	i := strings.LastIndex(location, ",")
	if i < 0 {
		return "", "", ErrInsightsLocation
	}
	city := strings.TrimSpace(location[:i])
	state := strings.ToUpper(strings.TrimSpace(location[i+1:]))
	if city == "" || state == "" {
		return "", "", ErrInsightsLocation
	}
	return city, state, nil
}

func insightsCacheKey(city, state string) string {
	return fmt.Sprintf("dealdesk:insights:%016x", xxhash.Sum64String(strings.ToLower(city)+"|"+state))
}
