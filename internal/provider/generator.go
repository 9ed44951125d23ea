package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"tripplanner/internal/config"
	"tripplanner/internal/domain"
	"tripplanner/internal/metrics"
	"tripplanner/internal/models"

	"github.com/rs/zerolog"
)

const (
	GeneratorName = "itinerary-generator"

	generatePath = "/generate-itinerary"
)

// GeneratorClient calls the itinerary generation service. Generation is not
// idempotent on the service side, so it is never retried.
type GeneratorClient struct {
	endpoint   string
	httpClient *http.Client
	timeout    time.Duration
	logger     *zerolog.Logger
}

func NewGeneratorClient(cfg config.GeneratorConfig, httpClient *http.Client, logger *zerolog.Logger) *GeneratorClient {
	return &GeneratorClient{
		endpoint:   strings.TrimRight(cfg.URL, "/") + generatePath,
		httpClient: httpClient,
		timeout:    cfg.Timeout,
		logger:     logger,
	}
}

func (g *GeneratorClient) Generate(ctx context.Context, req domain.GenerateRequest) (*domain.GeneratedPlan, error) {
	started := time.Now()
	plan, err := g.generate(ctx, req)
	metrics.ObserveUpstream(GeneratorName, "generate", started, err)
	if err != nil {
		g.logger.Warn().Err(err).Str("destination", req.Destination).Msg("itinerary generation failed")
	}
	return plan, err
}

func (g *GeneratorClient) generate(ctx context.Context, req domain.GenerateRequest) (*domain.GeneratedPlan, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	resp, err := do(ctx, g.httpClient, http.MethodPost, g.endpoint, nil, req)
	if err != nil {
		return nil, domain.Upstream(GeneratorName, 0, err)
	}
	if !resp.ok() {
		return nil, statusError(GeneratorName, resp)
	}

	var plan domain.GeneratedPlan
	if err := json.Unmarshal(resp.body, &plan); err != nil {
		return nil, domain.Upstream(GeneratorName, 0, err)
	}
	if plan.Activities == nil {
		plan.Activities = []models.Activity{}
	}
	if plan.Accommodations == nil {
		plan.Accommodations = []models.Accommodation{}
	}
	return &plan, nil
}
