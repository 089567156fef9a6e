package models

// SearchItem is one listing returned by the marketplace search API.
type SearchItem struct {
	ItemID              string   `json:"item_id"`
	Title               string   `json:"title"`
	Condition           string   `json:"condition"`
	ImageURL            string   `json:"image_url"`
	AdditionalImageURLs []string `json:"additional_image_urls"`
	Price               float64  `json:"price"`
	Currency            string   `json:"currency,omitempty"`
	WebURL              string   `json:"web_url,omitempty"`
}

// ImageURLs returns the primary image followed by up to two additional images,
// skipping blanks and repeats.
func (it *SearchItem) ImageURLs() []string {
	const maxImages = 3

	out := make([]string, 0, maxImages)
	seen := make(map[string]struct{}, maxImages)
	candidates := append([]string{it.ImageURL}, it.AdditionalImageURLs...)
	for _, u := range candidates {
		if u == "" {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
		if len(out) == maxImages {
			break
		}
	}
	return out
}
