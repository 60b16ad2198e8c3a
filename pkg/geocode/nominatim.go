package geocode

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
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/heritage-maps/gedmap-cli/internal/resilience"
)

const (
	// DefaultBaseURL is the public Nominatim instance.
	DefaultBaseURL = "https://nominatim.openstreetmap.org"

	// DefaultInterval is the minimum gap between requests. The public
	// instance enforces one request per second per client.
	DefaultInterval = time.Second

	defaultUserAgent = "gedmap-cli"
	defaultTimeout   = 10 * time.Second
)

// Nominatim geocodes against a Nominatim-compatible search endpoint. All
// requests pass through a shared rate limiter, so callers never need their
// own pacing.
type Nominatim struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
	email      string
}

// NominatimOption configures the client.
type NominatimOption func(*Nominatim)

// WithBaseURL points the client at a different instance (tests use an
// httptest server).
func WithBaseURL(u string) NominatimOption {
	return func(n *Nominatim) { n.baseURL = strings.TrimRight(u, "/") }
}

// WithUserAgent sets the User-Agent header; the public instance requires an
// identifying one.
func WithUserAgent(ua string) NominatimOption {
	return func(n *Nominatim) {
		if ua != "" {
			n.userAgent = ua
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) NominatimOption {
	return func(n *Nominatim) {
		if hc != nil {
			n.httpClient = hc
		}
	}
}

// WithInterval sets the minimum gap between live requests.
func WithInterval(d time.Duration) NominatimOption {
	return func(n *Nominatim) {
		if d > 0 {
			n.limiter = rate.NewLimiter(rate.Every(d), 1)
		}
	}
}

// WithEmail adds the email parameter the public instance asks heavy users
// to supply.
func WithEmail(email string) NominatimOption {
	return func(n *Nominatim) { n.email = email }
}

// NewNominatim creates a client for a Nominatim-compatible endpoint.
func NewNominatim(opts ...NominatimOption) *Nominatim {
	n := &Nominatim{
		baseURL:    DefaultBaseURL,
		userAgent:  defaultUserAgent,
		httpClient: &http.Client{Timeout: defaultTimeout},
		limiter:    rate.NewLimiter(rate.Every(DefaultInterval), 1),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Name implements Provider.
func (n *Nominatim) Name() string { return "nominatim" }

// nominatimPlace is one element of the search response array.
type nominatimPlace struct {
	PlaceID     json.Number `json:"place_id"`
	Lat         string      `json:"lat"`
	Lon         string      `json:"lon"`
	DisplayName string      `json:"display_name"`
	Class       string      `json:"class"`
	Type        string      `json:"type"`
	Icon        string      `json:"icon"`
	Importance  json.Number `json:"importance"`
	BoundingBox []string    `json:"boundingbox"`
	Address     struct {
		Country     string `json:"country"`
		CountryCode string `json:"country_code"`
	} `json:"address"`
}

// Geocode implements Provider. It waits out the inter-request gap, issues a
// single search request, and classifies failures: retryable statuses come
// back wrapped as resilience.TransientError, an empty result array comes
// back as (nil, nil).
func (n *Nominatim) Geocode(ctx context.Context, query, countryCode string) (*Result, error) {
	if err := n.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: rate limit wait")
	}

	params := url.Values{
		"q":              {query},
		"format":         {"jsonv2"},
		"addressdetails": {"1"},
		"limit":          {"1"},
	}
	if countryCode != "" && !strings.EqualFold(countryCode, "none") {
		params.Set("countrycodes", strings.ToLower(countryCode))
	}
	if n.email != "" {
		params.Set("email", n.email)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: build request")
	}
	req.Header.Set("User-Agent", n.userAgent)

	resp, err := n.httpClient.Do(req)
	if err != nil {
		// Transport-level failures are classified by resilience.IsTransient.
		return nil, eris.Wrap(err, "geocode: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: read body")
	}

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("geocode: status %d from %s", resp.StatusCode, n.baseURL)
		if resilience.IsTransientStatus(resp.StatusCode) {
			return nil, resilience.Transient(err, resp.StatusCode)
		}
		return nil, err
	}

	var places []nominatimPlace
	if err := json.Unmarshal(body, &places); err != nil {
		return nil, eris.Wrap(err, "geocode: parse response")
	}
	if len(places) == 0 {
		zap.L().Debug("geocode: no match", zap.String("query", query))
		return nil, nil
	}

	return placeToResult(places[0])
}

func placeToResult(p nominatimPlace) (*Result, error) {
	lat, err := strconv.ParseFloat(p.Lat, 64)
	if err != nil {
		return nil, eris.Wrapf(err, "geocode: parse lat %q", p.Lat)
	}
	lon, err := strconv.ParseFloat(p.Lon, 64)
	if err != nil {
		return nil, eris.Wrapf(err, "geocode: parse lon %q", p.Lon)
	}

	r := &Result{
		Latitude:    lat,
		Longitude:   lon,
		DisplayName: p.DisplayName,
		Class:       p.Class,
		Type:        p.Type,
		Icon:        p.Icon,
		PlaceID:     p.PlaceID.String(),
		Importance:  p.Importance.String(),
	}
	if len(p.BoundingBox) == 4 {
		r.BoundingBox = strings.Join(p.BoundingBox, ",")
	}
	r.Address.Country = p.Address.Country
	r.Address.CountryCode = strings.ToUpper(p.Address.CountryCode)
	return r, nil
}
