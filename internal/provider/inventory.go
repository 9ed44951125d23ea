package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"tripplanner/internal/config"
	"tripplanner/internal/domain"
	"tripplanner/internal/metrics"
	"tripplanner/internal/models"
	"tripplanner/internal/retry"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	flightOffersPath = "/v2/shopping/flight-offers"
	hotelsByCityPath = "/v1/reference-data/locations/hotels/by-city"
	hotelOffersPath  = "/v3/shopping/hotel-offers"

	maxFlightOffers = 10
	maxHotelIDs     = 10
)

// InventoryClient searches flight and hotel offers on the inventory provider.
type InventoryClient struct {
	name       string
	baseURL    string
	httpClient *http.Client
	tokens     *TokenSource
	limiter    *rate.Limiter
	policy     retry.Policy
	timeout    time.Duration
	logger     *zerolog.Logger
}

func NewInventoryClient(cfg config.ProviderConfig, tokens *TokenSource, httpClient *http.Client, logger *zerolog.Logger) *InventoryClient {
	limit := rate.Limit(cfg.RPS)
	if cfg.RPS <= 0 {
		limit = rate.Inf
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}

	return &InventoryClient{
		name:       cfg.Name,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: httpClient,
		tokens:     tokens,
		limiter:    rate.NewLimiter(limit, burst),
		policy:     retry.FromConfig(cfg.Retry),
		timeout:    cfg.Timeout,
		logger:     logger,
	}
}

func (c *InventoryClient) Name() string { return c.name }

type offerEnvelope struct {
	Data []domain.Offer `json:"data"`
}

func (c *InventoryClient) SearchFlights(ctx context.Context, q domain.FlightSearch) ([]domain.Offer, error) {
	params := url.Values{}
	params.Set("originLocationCode", q.Origin)
	params.Set("destinationLocationCode", q.Destination)
	params.Set("departureDate", q.DepartureDate)
	if q.ReturnDate != "" {
		params.Set("returnDate", q.ReturnDate)
	}
	params.Set("adults", strconv.Itoa(atLeastOne(q.Passengers)))
	params.Set("currencyCode", models.DefaultCurrency)
	params.Set("max", strconv.Itoa(maxFlightOffers))

	started := time.Now()
	offers, err := c.getOffers(ctx, flightOffersPath, params)
	metrics.ObserveUpstream(c.name, "search_flights", started, err)
	return offers, err
}

// SearchHotels resolves the city to at most ten hotel ids, then fetches offers
// for them. A city with no hotels yields an empty list.
func (c *InventoryClient) SearchHotels(ctx context.Context, q domain.HotelSearch) ([]domain.Offer, error) {
	started := time.Now()
	offers, err := c.searchHotels(ctx, q)
	metrics.ObserveUpstream(c.name, "search_hotels", started, err)
	return offers, err
}

func (c *InventoryClient) searchHotels(ctx context.Context, q domain.HotelSearch) ([]domain.Offer, error) {
	var hotels struct {
		Data []struct {
			HotelID string `json:"hotelId"`
		} `json:"data"`
	}
	if err := c.getJSON(ctx, hotelsByCityPath, url.Values{"cityCode": {q.CityCode}}, &hotels); err != nil {
		return nil, err
	}

	ids := make([]string, 0, maxHotelIDs)
	for _, h := range hotels.Data {
		if h.HotelID == "" {
			continue
		}
		ids = append(ids, h.HotelID)
		if len(ids) == maxHotelIDs {
			break
		}
	}
	if len(ids) == 0 {
		return []domain.Offer{}, nil
	}

	params := url.Values{}
	params.Set("hotelIds", strings.Join(ids, ","))
	params.Set("checkInDate", q.CheckInDate)
	params.Set("checkOutDate", q.CheckOutDate)
	params.Set("adults", strconv.Itoa(atLeastOne(q.Guests)))
	params.Set("currency", models.DefaultCurrency)
	return c.getOffers(ctx, hotelOffersPath, params)
}

func (c *InventoryClient) getOffers(ctx context.Context, path string, params url.Values) ([]domain.Offer, error) {
	var env offerEnvelope
	if err := c.getJSON(ctx, path, params, &env); err != nil {
		return nil, err
	}
	if env.Data == nil {
		return []domain.Offer{}, nil
	}
	return env.Data, nil
}

// getJSON issues an authorized GET with retries and decodes the body into out.
func (c *InventoryClient) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	err := retry.Do(ctx, c.policy, func(ctx context.Context) error {
		return classify(c.get(ctx, endpoint, out))
	})
	if err != nil {
		c.logger.Warn().Err(err).Str("provider", c.name).Str("path", path).Msg("inventory request failed")
	}
	return err
}

// get performs one attempt. A 401 drops the cached token and repeats the
// request once with a fresh one.
func (c *InventoryClient) get(ctx context.Context, endpoint string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return retry.Permanent(domain.Upstream(c.name, 0, err))
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	for refreshed := false; ; refreshed = true {
		tok, err := c.tokens.Token(ctx)
		if err != nil {
			return err
		}

		header := http.Header{}
		header.Set("Authorization", "Bearer "+tok.AccessToken)
		resp, err := do(ctx, c.httpClient, http.MethodGet, endpoint, header, nil)
		if err != nil {
			return domain.Upstream(c.name, 0, err)
		}
		if resp.status == http.StatusUnauthorized && !refreshed {
			c.tokens.Invalidate(ctx, tok.AccessToken)
			continue
		}
		if !resp.ok() {
			return statusError(c.name, resp)
		}
		if err := json.Unmarshal(resp.body, out); err != nil {
			return decodeError(c.name, err)
		}
		return nil
	}
}

func atLeastOne(n int) int {
	if n < 1 {
		return 1
	}
	return n
}
