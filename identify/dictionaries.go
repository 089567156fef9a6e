package identify

// rule maps a lowercase substring to a normalized label. Tables are ordered:
// the first matching rule wins, so more specific patterns come first.
type rule struct {
	pattern string
	label   string
}

var brandRules = []rule{
	{"grand seiko", "grand seiko"},
	{"seiko", "seiko"},
	{"g-shock", "casio"},
	{"g shock", "casio"},
	{"gshock", "casio"},
	{"casio", "casio"},
	{"rolex", "rolex"},
	{"tudor", "tudor"},
	{"omega", "omega"},
	{"tag heuer", "tag heuer"},
	{"tag-heuer", "tag heuer"},
	{"tissot", "tissot"},
	{"hamilton", "hamilton"},
	{"citizen", "citizen"},
	{"orient", "orient"},
	{"longines", "longines"},
	{"breitling", "breitling"},
	{"bulova", "bulova"},
	{"timex", "timex"},
	{"invicta", "invicta"},
	{"fossil", "fossil"},
	{"apple watch", "apple"},
	{"apple", "apple"},
	{"garmin", "garmin"},
	{"fitbit", "fitbit"},
	{"galaxy watch", "samsung"},
	{"samsung", "samsung"},
}

// familyRules are only consulted once the brand is known, so common words
// ("ranger", "sport") cannot leak across brands.
var familyRules = map[string][]rule{
	"seiko": {
		{"prospex", "prospex"},
		{"presage", "presage"},
		{"5 sports", "5 sports"},
		{"seiko 5", "5 sports"},
		{"astron", "astron"},
		{"turtle", "prospex"},
		{"samurai", "prospex"},
		{"alpinist", "prospex"},
		{"cocktail time", "presage"},
		{"skx", "skx"},
	},
	"grand seiko": {
		{"heritage", "heritage"},
		{"evolution 9", "evolution 9"},
		{"elegance", "elegance"},
		{"sport", "sport"},
	},
	"rolex": {
		{"submariner", "submariner"},
		{"sea-dweller", "sea-dweller"},
		{"sea dweller", "sea-dweller"},
		{"daytona", "daytona"},
		{"gmt-master", "gmt-master"},
		{"gmt master", "gmt-master"},
		{"datejust", "datejust"},
		{"day-date", "day-date"},
		{"day date", "day-date"},
		{"explorer", "explorer"},
		{"yacht-master", "yacht-master"},
		{"oyster perpetual", "oyster perpetual"},
	},
	"tudor": {
		{"black bay", "black bay"},
		{"pelagos", "pelagos"},
		{"ranger", "ranger"},
	},
	"omega": {
		{"speedmaster", "speedmaster"},
		{"seamaster", "seamaster"},
		{"constellation", "constellation"},
		{"de ville", "de ville"},
	},
	"tag heuer": {
		{"carrera", "carrera"},
		{"aquaracer", "aquaracer"},
		{"monaco", "monaco"},
		{"formula 1", "formula 1"},
	},
	"casio": {
		{"g-shock", "g-shock"},
		{"g shock", "g-shock"},
		{"gshock", "g-shock"},
		{"pro trek", "pro trek"},
		{"edifice", "edifice"},
		{"oceanus", "oceanus"},
	},
	"citizen": {
		{"eco-drive", "eco-drive"},
		{"eco drive", "eco-drive"},
		{"promaster", "promaster"},
		{"tsuyosa", "tsuyosa"},
	},
	"tissot": {
		{"prx", "prx"},
		{"seastar", "seastar"},
		{"le locle", "le locle"},
	},
	"hamilton": {
		{"khaki", "khaki"},
		{"jazzmaster", "jazzmaster"},
		{"ventura", "ventura"},
	},
	"orient": {
		{"bambino", "bambino"},
		{"kamasu", "kamasu"},
		{"mako", "mako"},
	},
	"apple": {
		{"ultra", "watch ultra"},
		{"series", "watch series"},
		{"watch se", "watch se"},
		{"apple watch", "apple watch"},
	},
	"garmin": {
		{"fenix", "fenix"},
		{"forerunner", "forerunner"},
		{"instinct", "instinct"},
		{"epix", "epix"},
		{"venu", "venu"},
	},
	"fitbit": {
		{"versa", "versa"},
		{"sense", "sense"},
		{"charge", "charge"},
	},
	"samsung": {
		{"galaxy watch", "galaxy watch"},
		{"gear", "galaxy watch"},
	},
}

// accessoryBrands sell bands, chargers and cases under the same search terms as
// the device. Queries for them carry negative keywords and a parent family label.
var accessoryBrands = map[string]struct {
	parents map[string]string
}{
	"apple": {parents: map[string]string{
		"watch ultra":  "apple watch",
		"watch series": "apple watch",
		"watch se":     "apple watch",
	}},
	"garmin":  {parents: map[string]string{}},
	"fitbit":  {parents: map[string]string{}},
	"samsung": {parents: map[string]string{}},
}

var accessoryNegatives = []string{"band", "strap", "charger", "case", "cable", "protector", "dock", "stand"}

var movementRules = []patternRule{
	{`\bspring[\s-]?drive\b`, "spring drive"},
	{`\b(automatic|self[\s-]?winding|auto)\b`, "automatic"},
	{`\b(hand[\s-]?wound|manual[\s-]?wind(ing)?|mechanical)\b`, "manual"},
	{`\b(solar|eco[\s-]?drive)\b`, "solar"},
	{`\bkinetic\b`, "kinetic"},
	{`\bquartz\b`, "quartz"},
}

var materialRules = []patternRule{
	{`\brose[\s-]?gold\b`, "rose gold"},
	{`\byellow[\s-]?gold\b`, "yellow gold"},
	{`\bwhite[\s-]?gold\b`, "white gold"},
	{`\btwo[\s-]?tone\b`, "two-tone"},
	{`\b(stainless[\s-]?steel|steel)\b`, "stainless steel"},
	{`\btitanium\b`, "titanium"},
	{`\bceramic\b`, "ceramic"},
	{`\bplatinum\b`, "platinum"},
	{`\bbronze\b`, "bronze"},
	{`\bgold\b`, "gold"},
	{`\balumin(i)?um\b`, "aluminum"},
	{`\bresin\b`, "resin"},
}

var demographicRules = []patternRule{
	{`\b(women'?s|womens|ladies|lady'?s|female)\b`, DemographicWomens},
	{`\b(men'?s|mens|male|gents?|gentlemen'?s)\b`, DemographicMens},
	{`\bunisex\b`, DemographicUnisex},
}

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "the": {}, "for": {}, "with": {}, "of": {}, "in": {},
	"on": {}, "to": {}, "by": {}, "new": {}, "used": {}, "pre-owned": {}, "preowned": {},
	"mens": {}, "men's": {}, "womens": {}, "women's": {}, "watch": {}, "watches": {},
	"genuine": {}, "authentic": {}, "original": {}, "nice": {}, "great": {}, "rare": {},
	"vintage": {}, "excellent": {}, "condition": {}, "box": {}, "papers": {}, "w": {},
	"&": {}, "-": {}, "|": {}, "/": {}, "free": {}, "shipping": {}, "look": {}, "l@@k": {},
}
