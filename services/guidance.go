package services

import (
	"fmt"
	"math"

	"resale-pipeline/config"
	"resale-pipeline/models"
)

// SafetyMultiplier under-bids relative to the computed breakeven.
const SafetyMultiplier = 0.8

// floorEpsilon absorbs float noise so that e.g. 55*0.8 floors to 44, not 43.
const floorEpsilon = 1e-9

// maxBuyCeiling keeps the floored max-buy inside the int32 range.
const maxBuyCeiling = math.MaxInt32

// GuidanceConfig holds the cost and margin inputs of the max-buy formula.
// Rates are fractions of the median; the rest are currency amounts.
type GuidanceConfig struct {
	FeeRate          float64
	OutboundShipping float64
	FixedCosts       float64
	ShippingIn       float64
	TargetMargin     float64
}

// DefaultGuidanceConfig returns the documented defaults.
func DefaultGuidanceConfig() GuidanceConfig {
	return GuidanceConfig{
		FeeRate:          0.13,
		OutboundShipping: 12.00,
		FixedCosts:       0.30,
		ShippingIn:       0,
		TargetMargin:     0.25,
	}
}

// GuidanceConfigFrom converts application config.
func GuidanceConfigFrom(d config.GuidanceDefaults) GuidanceConfig {
	return GuidanceConfig(d)
}

// CalculateMaxBuyFromComps turns a cleaned result into a maximum buy price.
// An unsuccessful cleaning result yields no price and keeps its reason. A
// computed price at or below zero is returned as exactly 0 with
// ReasonCostsExceedMedian, which is not the same as having no data.
func CalculateMaxBuyFromComps(result models.CleanedCompResult, cfg GuidanceConfig) models.PriceGuidance {
	if !result.Success || result.Median == nil {
		code, reason := result.ReasonCode, result.Reason
		if code == models.ReasonNone {
			code, reason = models.ReasonNoComps, "no cleaned comps available"
		}
		return models.PriceGuidance{
			Confidence: models.ConfidenceLow,
			ReasonCode: code,
			Reason:     reason,
		}
	}

	median := *result.Median
	raw := median -
		median*cfg.FeeRate -
		cfg.OutboundShipping -
		cfg.FixedCosts -
		cfg.ShippingIn -
		median*cfg.TargetMargin

	g := models.PriceGuidance{
		RawMaxBuy:  round2(raw),
		Median:     median,
		Confidence: result.Confidence,
		ReasonCode: result.ReasonCode,
		Reason:     result.Reason,
	}

	final := 0
	if scaled := math.Floor(raw*SafetyMultiplier + floorEpsilon); scaled > 0 {
		final = int(math.Min(scaled, maxBuyCeiling))
	}
	if final <= 0 {
		final = 0
		g.ReasonCode = models.ReasonCostsExceedMedian
		g.Reason = fmt.Sprintf("costs and target margin exceed the median sold price of %.2f", median)
	}
	g.MaxBuy = &final
	return g
}
