package services

import (
	"context"

	"golang.org/x/sync/errgroup"

	"resale-pipeline/models"
	"resale-pipeline/storage"
	"resale-pipeline/utils"
)

// PricingService prices many items. Cleaning and guidance are pure, so items
// are evaluated concurrently up to the configured limit.
type PricingService struct {
	cleaner     *CompCleaner
	cfg         GuidanceConfig
	concurrency int
	logger      *utils.Logger
}

// NewPricingService creates a PricingService.
func NewPricingService(cfg GuidanceConfig, concurrency int, logger *utils.Logger) *PricingService {
	if concurrency < 1 {
		concurrency = 1
	}
	return &PricingService{
		cleaner:     NewCompCleaner(logger),
		cfg:         cfg,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Evaluate prices a single item.
func (s *PricingService) Evaluate(item string, comps []models.RawComp) models.ItemGuidance {
	cleaned := s.cleaner.Clean(item, comps)
	return models.ItemGuidance{
		Item:     item,
		Cleaned:  cleaned,
		Guidance: CalculateMaxBuyFromComps(cleaned, s.cfg),
	}
}

// EvaluateAll prices every group and returns results in input order.
func (s *PricingService) EvaluateAll(ctx context.Context, groups []storage.CompGroup) ([]models.ItemGuidance, error) {
	out := make([]models.ItemGuidance, len(groups))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i := range groups {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out[i] = s.Evaluate(groups[i].Item, groups[i].Comps)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	priced := 0
	for _, r := range out {
		if r.Guidance.HasPrice() {
			priced++
		}
	}
	s.logger.Info("[pricing] Evaluated %d items, %d with a max-buy price", len(out), priced)
	return out, nil
}
