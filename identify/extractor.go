// Package identify turns free-text listing titles into structured identifiers
// and compact marketplace search queries. Everything here is pure.
package identify

import (
	"regexp"
	"strconv"
	"strings"

	"resale-pipeline/models"
)

// Demographic tags.
const (
	DemographicMens   = "mens"
	DemographicWomens = "womens"
	DemographicUnisex = "unisex"
)

// Case-size thresholds for inferring a demographic when the title has no explicit word.
const (
	womensMaxSizeMM = 34.0
	mensMinSizeMM   = 40.0
)

type patternRule struct {
	pattern string
	label   string
}

type compiledRule struct {
	re    *regexp.Regexp
	label string
}

func compile(rules []patternRule) []compiledRule {
	out := make([]compiledRule, len(rules))
	for i, r := range rules {
		out[i] = compiledRule{re: regexp.MustCompile(`(?i)` + r.pattern), label: r.label}
	}
	return out
}

var (
	movementMatchers    = compile(movementRules)
	materialMatchers    = compile(materialRules)
	demographicMatchers = compile(demographicRules)

	sizeRegexp = regexp.MustCompile(`(?i)\b(\d{2}(?:\.\d)?)\s?mm\b`)
	// Letter-prefixed references (SRPD51, SKX007, DW-5600, F-91W) and numeric ones (116610LN).
	modelRegexps = []*regexp.Regexp{
		regexp.MustCompile(`\b([A-Za-z]{1,4}-?\d{2,6}[A-Za-z0-9]{0,4})\b`),
		regexp.MustCompile(`\b(\d{5,6}[A-Za-z]{0,4})\b`),
	}
)

// Extract parses a listing title into Identifiers.
func Extract(title string) models.Identifiers {
	norm := normalise(title)
	lower := strings.ToLower(norm)

	ids := models.Identifiers{}
	ids.Brand = matchFirst(brandRules, lower)
	if ids.Brand != "" {
		ids.Family = matchFirst(familyRules[ids.Brand], lower)
	}
	ids.ModelNumber = extractModelNumber(norm)
	ids.Movement = matchPattern(movementMatchers, lower)
	ids.Size = extractSize(lower)
	ids.Material = matchPattern(materialMatchers, lower)
	ids.Demographic = matchPattern(demographicMatchers, lower)
	if ids.Demographic == "" {
		ids.Demographic = demographicFromSize(ids.Size)
	}
	return ids
}

// CanonicalFamily collapses sub-variants of accessory-prone brands into their parent line.
func CanonicalFamily(brand, family string) string {
	if ab, ok := accessoryBrands[brand]; ok {
		if parent, ok := ab.parents[family]; ok {
			return parent
		}
	}
	return family
}

// Matches reports whether ids identify the given brand and family.
func Matches(ids models.Identifiers, brand, family string) bool {
	if ids.Brand != brand || ids.Family == "" {
		return false
	}
	return CanonicalFamily(ids.Brand, ids.Family) == CanonicalFamily(brand, family)
}

func normalise(s string) string {
	s = strings.NewReplacer("’", "'", "‘", "'", "\u00a0", " ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

func matchFirst(rules []rule, lower string) string {
	for _, r := range rules {
		if strings.Contains(lower, r.pattern) {
			return r.label
		}
	}
	return ""
}

func matchPattern(rules []compiledRule, s string) string {
	for _, r := range rules {
		if r.re.MatchString(s) {
			return r.label
		}
	}
	return ""
}

func extractSize(lower string) string {
	m := sizeRegexp.FindStringSubmatch(lower)
	if len(m) < 2 {
		return ""
	}
	return m[1] + "mm"
}

func demographicFromSize(size string) string {
	if size == "" {
		return ""
	}
	mm, err := strconv.ParseFloat(strings.TrimSuffix(size, "mm"), 64)
	if err != nil {
		return ""
	}
	switch {
	case mm <= womensMaxSizeMM:
		return DemographicWomens
	case mm >= mensMinSizeMM:
		return DemographicMens
	default:
		return DemographicUnisex
	}
}

func extractModelNumber(title string) string {
	for _, re := range modelRegexps {
		for _, m := range re.FindAllStringSubmatch(title, -1) {
			candidate := m[1]
			if isSizeToken(candidate) {
				continue
			}
			return strings.ToUpper(candidate)
		}
	}
	return ""
}

// isSizeToken rejects things like "mm42" or "MM40" that the reference pattern can pick up.
func isSizeToken(s string) bool {
	return strings.HasPrefix(strings.ToLower(s), "mm")
}
