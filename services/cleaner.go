package services

import (
	"fmt"
	"math"
	"regexp"
	"sort"

	"resale-pipeline/models"
	"resale-pipeline/utils"
)

// HighConfidenceMin is the retained-comp count at which confidence becomes high.
const HighConfidenceMin = 8

const labelInvalidPrice = "invalid_price"

// MaxSoldPrice bounds a plausible sold price. Anything above it is treated as
// a data-entry error and excluded as invalid_price.
const MaxSoldPrice = 10_000_000

type exclusionRule struct {
	label   string
	pattern *regexp.Regexp
}

// exclusionRules disqualify a comp by title. The first matching rule names the exclusion.
var exclusionRules = []exclusionRule{
	{"parts_repair", regexp.MustCompile(`(?i)\b(for\s+parts|parts\s+only|parts|repair|not\s+working|non[-\s]?working|broken|as[-\s]?is|spares)\b`)},
	{"bundle_lot", regexp.MustCompile(`(?i)\b(job\s+lot|lot\s+of|lot|bundle|bulk|\d+\s?x\s+watches|set\s+of\s+\d+)\b`)},
	{"component_only", regexp.MustCompile(`(?i)\b(band|strap|bracelet|case|movement|dial|bezel|crystal|crown|clasp|buckle|box)\s+only\b|\bonly\s+(the\s+)?(band|strap|bracelet|case|movement|dial|bezel)\b|\bempty\s+box\b`)},
	{"replacement_accessory", regexp.MustCompile(`(?i)\b(replacement|spare|accessory|accessories|aftermarket|compatible\s+with)\b`)},
	{"display_replica", regexp.MustCompile(`(?i)\b(display\s+(only|model|piece|watch|unit)|dummy|replica|homage|fake|counterfeit|tribute)\b`)},
}

// exclusionLabel returns the reason a comp is dropped, or "" if it survives.
func exclusionLabel(c models.RawComp) string {
	for _, r := range exclusionRules {
		if r.pattern.MatchString(c.Title) {
			return r.label
		}
	}
	if c.SoldPrice <= 0 || c.SoldPrice > MaxSoldPrice || math.IsNaN(c.SoldPrice) || math.IsInf(c.SoldPrice, 0) {
		return labelInvalidPrice
	}
	return ""
}

// CleanSoldComps filters, trims and summarises sold comps for one item. It
// never invents a price: failures come back with Success false and nil
// statistics.
func CleanSoldComps(raw []models.RawComp) models.CleanedCompResult {
	res := models.CleanedCompResult{
		Exclusions: make(map[string]int),
		Confidence: models.ConfidenceLow,
	}
	if len(raw) == 0 {
		res.ReasonCode = models.ReasonNoComps
		res.Reason = "no sold comps supplied"
		return res
	}

	survivors := make([]models.CleanedComp, 0, len(raw))
	for _, c := range raw {
		if label := exclusionLabel(c); label != "" {
			res.Exclusions[label]++
			res.ExcludedCount++
			continue
		}
		survivors = append(survivors, models.CleanedComp{RawComp: c})
	}
	if len(survivors) == 0 {
		res.ReasonCode = models.ReasonAllExcluded
		res.Reason = fmt.Sprintf("all %d comps excluded by title filter", len(raw))
		return res
	}

	sort.SliceStable(survivors, func(i, j int) bool {
		return survivors[i].SoldPrice < survivors[j].SoldPrice
	})

	// Q1 = floor(n*0.25), Q3 = ceil(n*0.75); indexes outside [Q1, Q3) are outliers.
	n := len(survivors)
	q1 := n / 4
	q3 := (3*n + 3) / 4

	retained := make([]float64, 0, q3-q1)
	for i := range survivors {
		if i < q1 || i >= q3 {
			survivors[i].Outlier = true
			continue
		}
		retained = append(retained, survivors[i].SoldPrice)
	}
	res.Comps = survivors

	if len(retained) == 0 {
		res.ReasonCode = models.ReasonAllOutliers
		res.Reason = fmt.Sprintf("all %d comps removed as outliers", n)
		return res
	}

	median := round2(medianOf(retained))
	low := round2(retained[0])
	high := round2(retained[len(retained)-1])

	res.Success = true
	res.Median, res.Low, res.High = &median, &low, &high
	res.Count = len(retained)
	if res.Count >= HighConfidenceMin {
		res.Confidence = models.ConfidenceHigh
	} else {
		res.ReasonCode = models.ReasonFewComps
		res.Reason = fmt.Sprintf("only %d comps retained after trimming; %d needed for high confidence",
			res.Count, HighConfidenceMin)
	}
	return res
}

// medianOf expects sorted input.
func medianOf(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

// CompCleaner wraps CleanSoldComps with logging.
type CompCleaner struct {
	logger *utils.Logger
}

// NewCompCleaner creates a CompCleaner with the given logger.
func NewCompCleaner(logger *utils.Logger) *CompCleaner {
	return &CompCleaner{logger: logger}
}

// Clean cleans the comps for item and logs the outcome.
func (c *CompCleaner) Clean(item string, raw []models.RawComp) models.CleanedCompResult {
	res := CleanSoldComps(raw)
	if !res.Success {
		c.logger.Warn("[cleaner] %s: %s (%s)", item, res.Reason, res.ReasonCode)
		return res
	}
	c.logger.Debug("[cleaner] %s: %d raw → %d retained, %d excluded, median %.2f",
		item, len(raw), res.Count, res.ExcludedCount, *res.Median)
	return res
}
