package identify

import (
	"strings"
	"unicode"

	"resale-pipeline/models"
)

const maxFallbackTokens = 5

// BuildQuery concatenates brand, family and the strongest remaining identifier
// (model number over movement). With fewer than two structured tokens the title
// is tokenized instead. Accessory-prone brands get a parent family label and
// negative keywords.
func BuildQuery(ids models.Identifiers, title string) models.Query {
	family := ids.Family
	_, accessoryProne := accessoryBrands[ids.Brand]
	if accessoryProne {
		family = CanonicalFamily(ids.Brand, family)
	}

	strongest := ids.ModelNumber
	if strongest == "" {
		strongest = ids.Movement
	}

	structured := 0
	for _, tok := range []string{ids.Brand, family, strongest} {
		if tok != "" {
			structured++
		}
	}

	q := models.Query{}
	if structured >= 2 {
		q.Tokens = dedupeWords([]string{ids.Brand, family, strings.ToLower(strongest)})
	} else {
		q.Tokens = tokenize(title, maxFallbackTokens)
		q.Fallback = true
	}
	if accessoryProne {
		q.NegativeKeywords = append([]string(nil), accessoryNegatives...)
	}

	q.Text = render(q)
	return q
}

// ExpandQuery widens q with the stop-word-filtered words of title, keeping its
// negative keywords. It separates catalog variants that BuildQuery reduces to
// the same brand and family.
func ExpandQuery(q models.Query, title string) models.Query {
	out := models.Query{
		Tokens:           dedupeWords(append(append([]string(nil), q.Tokens...), tokenize(title, maxFallbackTokens)...)),
		NegativeKeywords: q.NegativeKeywords,
		Fallback:         q.Fallback,
	}
	out.Text = render(out)
	return out
}

func render(q models.Query) string {
	parts := append([]string(nil), q.Tokens...)
	for _, neg := range q.NegativeKeywords {
		parts = append(parts, "-"+neg)
	}
	return strings.Join(parts, " ")
}

// QueryForTitle is Extract followed by BuildQuery.
func QueryForTitle(title string) (models.Identifiers, models.Query) {
	ids := Extract(title)
	return ids, BuildQuery(ids, title)
}

// dedupeWords splits multi-word tokens and drops repeated words, so
// brand "apple" + family "apple watch" yields "apple watch".
func dedupeWords(tokens []string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, len(tokens)+2)
	for _, tok := range tokens {
		for _, w := range strings.Fields(tok) {
			if _, dup := seen[w]; dup {
				continue
			}
			seen[w] = struct{}{}
			out = append(out, w)
		}
	}
	return out
}

func tokenize(title string, limit int) []string {
	lower := strings.ToLower(normalise(title))
	fields := strings.FieldsFunc(lower, func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '\'')
	})

	seen := make(map[string]struct{})
	out := make([]string, 0, limit)
	for _, f := range fields {
		f = strings.Trim(f, "-'")
		if len(f) < 2 {
			continue
		}
		if _, stop := stopWords[f]; stop {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
		if len(out) == limit {
			break
		}
	}
	return out
}
