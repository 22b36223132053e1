// Package geocode resolves street names for newly drawn routes via the
// Nominatim reverse endpoint, with an optional Redis cache in front so
// repeated drawing in the same spot does not hammer the public service.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// addressKeys in preference order. Nominatim tags the nearest way with
// whichever OSM key fits; cycle infrastructure often comes back as
// cycleway or path rather than road.
var addressKeys = []string{"road", "pedestrian", "cycleway", "footway", "path", "neighbourhood", "suburb"}

// Options configures a Client. Zero values get defaults suitable for the
// public Nominatim instance.
type Options struct {
	BaseURL   string        // default https://nominatim.openstreetmap.org
	UserAgent string        // default tracks-core/1.0; the public instance requires one
	Timeout   time.Duration // per-lookup, default 2s
	Redis     *redis.Client // optional cache
	CacheTTL  time.Duration // default 24h
}

type Client struct {
	http      *http.Client
	baseURL   string
	userAgent string
	cache     *redis.Client
	ttl       time.Duration
	log       zerolog.Logger
}

func New(opts Options, log zerolog.Logger) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://nominatim.openstreetmap.org"
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "tracks-core/1.0"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Second
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 24 * time.Hour
	}
	return &Client{
		http:      &http.Client{Timeout: opts.Timeout},
		baseURL:   opts.BaseURL,
		userAgent: opts.UserAgent,
		cache:     opts.Redis,
		ttl:       opts.CacheTTL,
		log:       log,
	}
}

type reverseResponse struct {
	Address map[string]string `json:"address"`
	Error   string            `json:"error"`
}

// StreetName returns the best street-ish name for a coordinate. An empty
// name with nil error means the location resolved to nothing usable.
func (c *Client) StreetName(ctx context.Context, lat, lon float64) (string, error) {
	key := cacheKey(lat, lon)
	if c.cache != nil {
		cached, err := c.cache.Get(ctx, key).Result()
		switch {
		case err == nil:
			return cached, nil
		case !errors.Is(err, redis.Nil):
			c.log.Debug().Err(err).Msg("geocode cache read failed")
		}
	}

	name, err := c.reverse(ctx, lat, lon)
	if err != nil {
		return "", err
	}
	if name != "" && c.cache != nil {
		if err := c.cache.Set(ctx, key, name, c.ttl).Err(); err != nil {
			c.log.Debug().Err(err).Msg("geocode cache write failed")
		}
	}
	return name, nil
}

func (c *Client) reverse(ctx context.Context, lat, lon float64) (string, error) {
	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("zoom", "17")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/reverse?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("reverse geocode: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("reverse geocode: status %d", resp.StatusCode)
	}

	var body reverseResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("reverse geocode: %w", err)
	}
	if body.Error != "" {
		c.log.Debug().Str("error", body.Error).Float64("lat", lat).Float64("lon", lon).Msg("nominatim reported no result")
		return "", nil
	}
	for _, k := range addressKeys {
		if v := body.Address[k]; v != "" {
			return v, nil
		}
	}
	return "", nil
}

// cacheKey rounds to ~1m so nearby draw starts share a cache entry.
func cacheKey(lat, lon float64) string {
	return fmt.Sprintf("geocode:%.5f:%.5f", lat, lon)
}
