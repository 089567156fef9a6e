package models

// Identifiers is the structured view of a free-text listing title.
// Every field except Brand and Family is optional and empty when not found.
type Identifiers struct {
	Brand       string
	Family      string
	ModelNumber string
	Movement    string
	Size        string
	Material    string
	Demographic string
}

// Query is a marketplace search string built from Identifiers.
type Query struct {
	Text             string
	Tokens           []string
	NegativeKeywords []string
	// Fallback is true when the title had too few identifiers and was tokenized instead.
	Fallback bool
}
