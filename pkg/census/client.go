// Package census queries the Census Bureau ACS 5-year API for place-level
// housing counts.
package census

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "https://api.census.gov/data"
	defaultYear    = "2022"
	dataset        = "acs/acs5"

	// ApartmentUnitsVariable is the ACS count of units in 5+ unit structures.
	ApartmentUnitsVariable = "B25024_005E"

	// CaliforniaFIPS is the state code used when none is given.
	CaliforniaFIPS = "06"
)

// ErrNoData is returned when the API has no usable value for a place.
var ErrNoData = eris.New("census: no data")

// StatusError is a non-200 response from the API.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return "census: unexpected status " + strconv.Itoa(e.StatusCode)
}

// Client fetches ACS estimates.
type Client interface {
	ApartmentCount(ctx context.Context, placeFIPS string) (int, error)
}

// Option configures the client.
type Option func(*client)

// WithBaseURL overrides the API root (for tests).
func WithBaseURL(u string) Option {
	return func(c *client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithYear selects the ACS vintage.
func WithYear(y string) Option {
	return func(c *client) { c.year = y }
}

// WithState selects the state FIPS code.
func WithState(fips string) Option {
	return func(c *client) { c.state = fips }
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) { c.http = hc }
}

// WithRateLimit caps requests per second.
func WithRateLimit(rps float64) Option {
	return func(c *client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		}
	}
}

type client struct {
	key     string
	baseURL string
	year    string
	state   string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates an ACS client. The key may be empty; the API serves
// low-volume keyless requests.
func NewClient(key string, opts ...Option) Client {
	c := &client{
		key:     key,
		baseURL: defaultBaseURL,
		year:    defaultYear,
		state:   CaliforniaFIPS,
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(5, 5),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// ApartmentCount returns the number of units in 5+ unit structures for a
// census place.
func (c *client) ApartmentCount(ctx context.Context, placeFIPS string) (int, error) {
	if placeFIPS == "" {
		return 0, eris.New("census: place code is required")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, eris.Wrap(err, "census: rate limit")
	}

	params := url.Values{
		"get": {"NAME," + ApartmentUnitsVariable},
		"for": {"place:" + placeFIPS},
		"in":  {"state:" + c.state},
	}
	if c.key != "" {
		params.Set("key", c.key)
	}
	reqURL := c.baseURL + "/" + c.year + "/" + dataset + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return 0, eris.Wrap(err, "census: build request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, eris.Wrap(err, "census: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusNoContent {
		return 0, eris.Wrapf(ErrNoData, "census: place %s", placeFIPS)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, &StatusError{StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, eris.Wrap(err, "census: read body")
	}
	return parseCount(body, placeFIPS)
}

// parseCount reads the value column of the first data row. The API answers
// with a header row followed by data rows, all strings.
func parseCount(body []byte, placeFIPS string) (int, error) {
	var rows [][]*string
	if err := json.Unmarshal(body, &rows); err != nil {
		return 0, eris.Wrap(err, "census: parse response")
	}
	if len(rows) < 2 || len(rows[1]) < 2 || rows[1][1] == nil {
		return 0, eris.Wrapf(ErrNoData, "census: place %s", placeFIPS)
	}

	raw := strings.TrimSpace(*rows[1][1])
	if raw == "" || raw == "-" || raw == "null" {
		return 0, eris.Wrapf(ErrNoData, "census: place %s", placeFIPS)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 {
		return 0, eris.Wrapf(ErrNoData, "census: place %s: value %q", placeFIPS, raw)
	}
	return int(v), nil
}
