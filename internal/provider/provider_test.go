package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"tripplanner/internal/config"
	"tripplanner/internal/domain"
	"tripplanner/internal/models"
	"tripplanner/internal/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tokenPath = "/v1/security/oauth2/token"

type upstream struct {
	mux        *http.ServeMux
	srv        *httptest.Server
	tokenCalls atomic.Int32
	expiresIn  int
	tokenDelay time.Duration
}

func newUpstream(t *testing.T) *upstream {
	u := &upstream{mux: http.NewServeMux(), expiresIn: 1799}
	u.mux.HandleFunc(tokenPath, func(w http.ResponseWriter, r *http.Request) {
		n := u.tokenCalls.Add(1)
		if u.tokenDelay > 0 {
			time.Sleep(u.tokenDelay)
		}
		if r.Method != http.MethodPost || r.FormValue("grant_type") != "client_credentials" ||
			r.FormValue("client_id") != "id" || r.FormValue("client_secret") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"tok-%d","token_type":"Bearer","expires_in":%d}`, n, u.expiresIn)
	})
	u.srv = httptest.NewServer(u.mux)
	t.Cleanup(u.srv.Close)
	return u
}

func testProviderConfig(baseURL string) config.ProviderConfig {
	return config.ProviderConfig{
		Name:         "amadeus",
		BaseURL:      baseURL,
		TokenURL:     baseURL + tokenPath,
		ClientID:     "id",
		ClientSecret: "secret",
		Timeout:      2 * time.Second,
		TokenSkew:    30 * time.Second,
		RPS:          1000,
		Burst:        100,
		Retry: config.RetryConfig{
			MaxAttempts:   3,
			InitialDelay:  time.Millisecond,
			MaxDelay:      5 * time.Millisecond,
			BackoffFactor: 2,
		},
	}
}

func newTestInventory(t *testing.T, u *upstream, mutate func(*config.ProviderConfig)) (*InventoryClient, *TokenSource) {
	cfg := testProviderConfig(u.srv.URL)
	if mutate != nil {
		mutate(&cfg)
	}
	logger := zerolog.Nop()
	client := NewHTTPClient(cfg.Timeout)
	tokens := NewTokenSource(cfg, repository.NewMemoryTokenCache(), client, &logger)
	return NewInventoryClient(cfg, tokens, client, &logger), tokens
}

func writeData(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
}

func TestCacheKey(t *testing.T) {
	a := CacheKey("u", "id", "secret")
	assert.Len(t, a, 64)
	assert.Equal(t, a, CacheKey("u", "id", "secret"))
	assert.NotEqual(t, a, CacheKey("u", "id", "other"))
	assert.NotContains(t, a, "secret")
}

func TestTokenSource_Caches(t *testing.T) {
	u := newUpstream(t)
	_, tokens := newTestInventory(t, u, nil)
	ctx := context.Background()

	first, err := tokens.Token(ctx)
	require.NoError(t, err)
	second, err := tokens.Token(ctx)
	require.NoError(t, err)

	assert.Equal(t, "tok-1", first.AccessToken)
	assert.Equal(t, first.AccessToken, second.AccessToken)
	assert.Equal(t, int32(1), u.tokenCalls.Load())
}

func TestTokenSource_RedisKeepsTokenWithoutExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	u := newUpstream(t)
	u.expiresIn = 0
	cfg := testProviderConfig(u.srv.URL)
	logger := zerolog.Nop()
	cache := repository.NewFailoverTokenCache(repository.NewRedisTokenCache(client), repository.NewMemoryTokenCache(), &logger)
	tokens := NewTokenSource(cfg, cache, NewHTTPClient(cfg.Timeout), &logger)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		tok, err := tokens.Token(ctx)
		require.NoError(t, err)
		assert.Equal(t, "tok-1", tok.AccessToken)
	}
	assert.Equal(t, int32(1), u.tokenCalls.Load())
	assert.True(t, mr.Exists("provider_token:"+CacheKey(cfg.TokenURL, cfg.ClientID, cfg.ClientSecret)))
}

func TestTokenSource_SingleFlight(t *testing.T) {
	u := newUpstream(t)
	u.tokenDelay = 50 * time.Millisecond
	_, tokens := newTestInventory(t, u, nil)

	var wg sync.WaitGroup
	got := make([]string, 20)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok, err := tokens.Token(context.Background())
			if err == nil {
				got[i] = tok.AccessToken
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), u.tokenCalls.Load())
	for _, tok := range got {
		assert.Equal(t, "tok-1", tok)
	}
}

func TestTokenSource_RefreshesWithinSkew(t *testing.T) {
	u := newUpstream(t)
	u.expiresIn = 10
	_, tokens := newTestInventory(t, u, nil)

	_, err := tokens.Token(context.Background())
	require.NoError(t, err)
	tok, err := tokens.Token(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "tok-2", tok.AccessToken)
	assert.Equal(t, int32(2), u.tokenCalls.Load())
}

func TestTokenSource_ExchangeRejected(t *testing.T) {
	u := newUpstream(t)
	_, tokens := newTestInventory(t, u, func(c *config.ProviderConfig) { c.ClientSecret = "wrong" })

	_, err := tokens.Token(context.Background())
	require.Error(t, err)

	var de *domain.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, domain.KindUpstream, de.Kind)
	assert.Equal(t, "amadeus", de.Provider)
	assert.Equal(t, http.StatusUnauthorized, de.StatusCode)
}

func TestTokenSource_InvalidateKeepsNewerToken(t *testing.T) {
	u := newUpstream(t)
	_, tokens := newTestInventory(t, u, nil)
	ctx := context.Background()

	tok, err := tokens.Token(ctx)
	require.NoError(t, err)

	tokens.Invalidate(ctx, "some-older-token")
	again, err := tokens.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, tok.AccessToken, again.AccessToken)

	tokens.Invalidate(ctx, tok.AccessToken)
	again, err = tokens.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok-2", again.AccessToken)
}

func TestSearchFlights(t *testing.T) {
	u := newUpstream(t)
	u.mux.HandleFunc(flightOffersPath, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		assert.Equal(t, "JFK", q.Get("originLocationCode"))
		assert.Equal(t, "CDG", q.Get("destinationLocationCode"))
		assert.Equal(t, "2025-06-01", q.Get("departureDate"))
		assert.Equal(t, "2025-06-07", q.Get("returnDate"))
		assert.Equal(t, "1", q.Get("adults"))
		assert.Equal(t, "USD", q.Get("currencyCode"))
		assert.Equal(t, "10", q.Get("max"))
		writeData(w, []map[string]any{{"id": "1"}, {"id": "2"}})
	})
	inv, _ := newTestInventory(t, u, nil)

	offers, err := inv.SearchFlights(context.Background(), domain.FlightSearch{
		Origin: "JFK", Destination: "CDG", DepartureDate: "2025-06-01", ReturnDate: "2025-06-07",
	})
	require.NoError(t, err)
	require.Len(t, offers, 2)
	assert.Equal(t, "1", offers[0]["id"])
	assert.Equal(t, "amadeus", inv.Name())
}

func TestSearchFlights_NoReturnDateAndEmptyData(t *testing.T) {
	u := newUpstream(t)
	u.mux.HandleFunc(flightOffersPath, func(w http.ResponseWriter, r *http.Request) {
		assert.False(t, r.URL.Query().Has("returnDate"))
		assert.Equal(t, "3", r.URL.Query().Get("adults"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"meta":{"count":0}}`))
	})
	inv, _ := newTestInventory(t, u, nil)

	offers, err := inv.SearchFlights(context.Background(), domain.FlightSearch{
		Origin: "JFK", Destination: "CDG", DepartureDate: "2025-06-01", Passengers: 3,
	})
	require.NoError(t, err)
	assert.NotNil(t, offers)
	assert.Empty(t, offers)
}

func TestSearchHotels(t *testing.T) {
	u := newUpstream(t)
	u.mux.HandleFunc(hotelsByCityPath, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "PAR", r.URL.Query().Get("cityCode"))
		hotels := make([]map[string]any, 0, 12)
		for i := 0; i < 12; i++ {
			hotels = append(hotels, map[string]any{"hotelId": fmt.Sprintf("H%02d", i)})
		}
		writeData(w, hotels)
	})
	u.mux.HandleFunc(hotelOffersPath, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "H00,H01,H02,H03,H04,H05,H06,H07,H08,H09", q.Get("hotelIds"))
		assert.Equal(t, "2025-06-01", q.Get("checkInDate"))
		assert.Equal(t, "2025-06-07", q.Get("checkOutDate"))
		assert.Equal(t, "2", q.Get("adults"))
		writeData(w, []map[string]any{{"hotel": map[string]any{"hotelId": "H00"}}})
	})
	inv, _ := newTestInventory(t, u, nil)

	offers, err := inv.SearchHotels(context.Background(), domain.HotelSearch{
		CityCode: "PAR", CheckInDate: "2025-06-01", CheckOutDate: "2025-06-07", Guests: 2,
	})
	require.NoError(t, err)
	assert.Len(t, offers, 1)
}

func TestSearchHotels_NoHotelsSkipsOffers(t *testing.T) {
	u := newUpstream(t)
	var offerCalls atomic.Int32
	u.mux.HandleFunc(hotelsByCityPath, func(w http.ResponseWriter, r *http.Request) {
		writeData(w, []map[string]any{})
	})
	u.mux.HandleFunc(hotelOffersPath, func(w http.ResponseWriter, r *http.Request) {
		offerCalls.Add(1)
		writeData(w, []map[string]any{})
	})
	inv, _ := newTestInventory(t, u, nil)

	offers, err := inv.SearchHotels(context.Background(), domain.HotelSearch{CityCode: "XXX"})
	require.NoError(t, err)
	assert.NotNil(t, offers)
	assert.Empty(t, offers)
	assert.Equal(t, int32(0), offerCalls.Load())
}

func TestSearch_UnauthorizedRefreshesOnce(t *testing.T) {
	u := newUpstream(t)
	var calls atomic.Int32
	u.mux.HandleFunc(flightOffersPath, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Header.Get("Authorization") == "Bearer tok-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeData(w, []map[string]any{{"id": "1"}})
	})
	inv, _ := newTestInventory(t, u, nil)

	offers, err := inv.SearchFlights(context.Background(), domain.FlightSearch{Origin: "A", Destination: "B"})
	require.NoError(t, err)
	assert.Len(t, offers, 1)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, int32(2), u.tokenCalls.Load())
}

func TestSearch_UnauthorizedTwiceFails(t *testing.T) {
	u := newUpstream(t)
	var calls atomic.Int32
	u.mux.HandleFunc(flightOffersPath, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	})
	inv, _ := newTestInventory(t, u, nil)

	_, err := inv.SearchFlights(context.Background(), domain.FlightSearch{Origin: "A", Destination: "B"})
	var de *domain.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, http.StatusUnauthorized, de.StatusCode)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSearch_RetriesServerErrors(t *testing.T) {
	u := newUpstream(t)
	var calls atomic.Int32
	u.mux.HandleFunc(flightOffersPath, func(w http.ResponseWriter, r *http.Request) {
		switch calls.Add(1) {
		case 1:
			w.WriteHeader(http.StatusServiceUnavailable)
		case 2:
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			writeData(w, []map[string]any{{"id": "ok"}})
		}
	})
	inv, _ := newTestInventory(t, u, nil)

	offers, err := inv.SearchFlights(context.Background(), domain.FlightSearch{Origin: "A", Destination: "B"})
	require.NoError(t, err)
	assert.Len(t, offers, 1)
	assert.Equal(t, int32(3), calls.Load())
}

func TestSearch_RetriesExhausted(t *testing.T) {
	u := newUpstream(t)
	var calls atomic.Int32
	u.mux.HandleFunc(flightOffersPath, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})
	inv, _ := newTestInventory(t, u, nil)

	_, err := inv.SearchFlights(context.Background(), domain.FlightSearch{Origin: "A", Destination: "B"})
	var de *domain.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, domain.KindUpstream, de.Kind)
	assert.Equal(t, http.StatusBadGateway, de.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
}

func TestSearch_ClientErrorNotRetried(t *testing.T) {
	u := newUpstream(t)
	var calls atomic.Int32
	u.mux.HandleFunc(flightOffersPath, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errors":[{"title":"INVALID DATE"}]}`))
	})
	inv, _ := newTestInventory(t, u, nil)

	_, err := inv.SearchFlights(context.Background(), domain.FlightSearch{Origin: "A", Destination: "B"})
	var de *domain.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, http.StatusBadRequest, de.StatusCode)
	assert.Contains(t, de.Err.Error(), "INVALID DATE")
	assert.Equal(t, int32(1), calls.Load())
}

func TestSearch_MalformedNotRetried(t *testing.T) {
	u := newUpstream(t)
	var calls atomic.Int32
	u.mux.HandleFunc(flightOffersPath, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"data": [`))
	})
	inv, _ := newTestInventory(t, u, nil)

	_, err := inv.SearchFlights(context.Background(), domain.FlightSearch{Origin: "A", Destination: "B"})
	assert.True(t, domain.IsKind(err, domain.KindUpstream))
	assert.Equal(t, int32(1), calls.Load())
}

func TestSearch_Timeout(t *testing.T) {
	u := newUpstream(t)
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	u.mux.HandleFunc(flightOffersPath, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	inv, _ := newTestInventory(t, u, func(c *config.ProviderConfig) {
		c.Timeout = 50 * time.Millisecond
		c.Retry.MaxAttempts = 1
	})

	start := time.Now()
	_, err := inv.SearchFlights(context.Background(), domain.FlightSearch{Origin: "A", Destination: "B"})
	assert.True(t, domain.IsKind(err, domain.KindUpstream))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestSearch_CallerCancelled(t *testing.T) {
	u := newUpstream(t)
	inv, _ := newTestInventory(t, u, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := inv.SearchFlights(ctx, domain.FlightSearch{Origin: "A", Destination: "B"})
	assert.True(t, domain.IsKind(err, domain.KindUpstream))
}

func newTestGenerator(t *testing.T, h http.HandlerFunc) *GeneratorClient {
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	logger := zerolog.Nop()
	cfg := config.GeneratorConfig{URL: srv.URL + "/", Timeout: time.Second}
	return NewGeneratorClient(cfg, NewHTTPClient(cfg.Timeout), &logger)
}

func TestGenerate(t *testing.T) {
	gen := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, generatePath, r.URL.Path)

		var req domain.GenerateRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Paris", req.Destination)
		assert.Equal(t, "2025-06-01", req.StartDate)
		assert.Equal(t, 2, req.Travelers)
		assert.Equal(t, "luxury", req.UserPreferences.TravelStyle)
		assert.Equal(t, "art", req.Preferences["interest"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"activities":[{"date":"2025-06-01","activity":"Louvre","cost":20},{"date":"2025-06-02","activity":"Seine cruise"}]}`))
	})

	plan, err := gen.Generate(context.Background(), domain.GenerateRequest{
		Destination: "Paris", StartDate: "2025-06-01", EndDate: "2025-06-07", Budget: 2000, Travelers: 2,
		Preferences:     map[string]string{"interest": "art"},
		UserPreferences: modelsPrefs("luxury"),
	})
	require.NoError(t, err)
	require.Len(t, plan.Activities, 2)
	assert.Equal(t, "Louvre", plan.Activities[0].Activity)
	assert.NotNil(t, plan.Accommodations)
	assert.Empty(t, plan.Accommodations)
}

func TestGenerate_FallbackPlanShape(t *testing.T) {
	gen := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
  "activities": [
    {"date": "2025-06-01T00:00:00", "time": "09:00", "activity": "Breakfast at local cafe",
     "description": "Start your day with local cuisine",
     "location": {"name": "Paris", "coordinates": {"lat": 0.0, "lng": 0.0}}, "cost": 15, "duration": 120},
    {"date": "2025-06-01T00:00:00", "time": "10:30", "activity": "City walking tour",
     "description": "Explore the main attractions",
     "location": {"name": "Paris", "coordinates": {"lat": 0.0, "lng": 0.0}}, "cost": 25, "duration": 120}
  ],
  "accommodations": [
    {"name": "Hotel in Paris", "checkIn": "2025-06-01T00:00:00", "checkOut": "2025-06-07T00:00:00",
     "location": {"name": "Paris", "coordinates": {"lat": 0.0, "lng": 0.0}},
     "cost": 800.0, "bookingReference": ""}
  ]
}`))
	})

	plan, err := gen.Generate(context.Background(), domain.GenerateRequest{
		Destination: "Paris", StartDate: "2025-06-01", EndDate: "2025-06-07", Budget: 2000, Travelers: 2,
	})
	require.NoError(t, err)
	require.Len(t, plan.Activities, 2)
	assert.Equal(t, "Paris", plan.Activities[1].Location.Name)
	require.Len(t, plan.Accommodations, 1)
	stay := plan.Accommodations[0]
	assert.Equal(t, "Hotel in Paris", stay.Name)
	assert.Equal(t, "Paris", stay.Location.Name)
	require.NotNil(t, stay.Location.Coordinates)
	assert.Equal(t, 0.0, stay.Location.Coordinates.Lat)
	assert.Equal(t, 800.0, stay.Cost)
	assert.Empty(t, stay.BookingReference)
}

func TestGenerate_Failures(t *testing.T) {
	t.Run("ServerError", func(t *testing.T) {
		var calls atomic.Int32
		gen := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusInternalServerError)
		})
		_, err := gen.Generate(context.Background(), domain.GenerateRequest{Destination: "Paris"})
		var de *domain.Error
		require.ErrorAs(t, err, &de)
		assert.Equal(t, GeneratorName, de.Provider)
		assert.Equal(t, http.StatusInternalServerError, de.StatusCode)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("Malformed", func(t *testing.T) {
		gen := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`not json`))
		})
		_, err := gen.Generate(context.Background(), domain.GenerateRequest{})
		assert.True(t, domain.IsKind(err, domain.KindUpstream))
	})

	t.Run("Unreachable", func(t *testing.T) {
		logger := zerolog.Nop()
		gen := NewGeneratorClient(config.GeneratorConfig{URL: "http://127.0.0.1:1", Timeout: time.Second}, NewHTTPClient(time.Second), &logger)
		_, err := gen.Generate(context.Background(), domain.GenerateRequest{})
		var de *domain.Error
		require.ErrorAs(t, err, &de)
		assert.Equal(t, 0, de.StatusCode)
	})
}

func modelsPrefs(style string) models.TravelPreferences {
	p := models.DefaultTravelPreferences()
	p.TravelStyle = style
	return p
}
