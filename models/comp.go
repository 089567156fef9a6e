package models

import "time"

// Confidence is the coarse evidence label attached to a cleaned comp result.
type Confidence string

const (
	ConfidenceHigh Confidence = "high"
	ConfidenceLow  Confidence = "low"
)

// ReasonCode is the machine-readable explanation for a low-confidence or failed result.
type ReasonCode string

const (
	ReasonNone              ReasonCode = ""
	ReasonNoComps           ReasonCode = "no_comps"
	ReasonAllExcluded       ReasonCode = "all_excluded"
	ReasonAllOutliers       ReasonCode = "all_outliers"
	ReasonFewComps          ReasonCode = "few_comps"
	ReasonCostsExceedMedian ReasonCode = "costs_exceed_median"
)

// RawComp is one external sold-listing record.
type RawComp struct {
	SoldPrice    float64
	ShippingCost float64
	SaleDate     time.Time
	Condition    string
	Title        string
	Thumbnail    string
}

// CleanedComp is a comp that survived the exclusion filter.
type CleanedComp struct {
	RawComp
	Outlier bool
}

// CleanedCompResult is the output of comp cleaning. When Success is false the
// price fields are nil: there is no synthetic price.
type CleanedCompResult struct {
	Success       bool
	Comps         []CleanedComp
	Median        *float64
	Low           *float64
	High          *float64
	Count         int
	ExcludedCount int
	Exclusions    map[string]int
	Confidence    Confidence
	ReasonCode    ReasonCode
	Reason        string
}

// PriceGuidance is the maximum buy price recommendation. MaxBuy is nil when no
// guidance could be derived; a zero value with ReasonCostsExceedMedian is distinct from that.
type PriceGuidance struct {
	MaxBuy     *int
	RawMaxBuy  float64
	Median     float64
	Confidence Confidence
	ReasonCode ReasonCode
	Reason     string
}

// HasPrice reports whether a numeric recommendation exists (including exactly 0).
func (g PriceGuidance) HasPrice() bool {
	return g.MaxBuy != nil
}

// ItemGuidance pairs one priced item with its cleaned comps and guidance.
type ItemGuidance struct {
	Item     string
	Cleaned  CleanedCompResult
	Guidance PriceGuidance
}
