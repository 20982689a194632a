package recommend

// Rule is the advice attached to one activity category.
type Rule struct {
	Title      string
	Suggestion string
	// Actions feed the narrative summary.
	Actions []string
}

// Rules is keyed by activity type.
var Rules = map[string]Rule{
	"Energy": {
		Title:      "Run an energy efficiency audit",
		Suggestion: "Audit lighting, HVAC and idle equipment at your main sites, then shift remaining load to renewable supply through a green tariff or energy certificates.",
		Actions: []string{
			"**Strategic Action:** Procure renewable energy certificates for your main facilities.",
			"**Immediate Win:** Audit HVAC idle-time schedules; 10% reductions are typical.",
		},
	},
	"Transport": {
		Title:      "Optimize routes and fleet",
		Suggestion: "Consolidate deliveries, plan routes to cut empty miles, and move high-mileage vehicles to electric or hybrid models.",
		Actions: []string{
			"**Strategic Action:** Move last-mile logistics to electric vehicles.",
			"**Immediate Win:** Optimize route planning to cut fuel use by around 5%.",
		},
	},
	"Supply Chain": {
		Title:      "Engage suppliers on emissions",
		Suggestion: "Request product-level emission data from your largest suppliers and prefer low-carbon or recycled materials in purchasing.",
		Actions: []string{
			"**Strategic Action:** Ask your top suppliers for tier 1 emission data.",
			"**Immediate Win:** Source high-volume materials locally.",
		},
	},
	"Waste": {
		Title:      "Divert waste from landfill",
		Suggestion: "Separate recyclables at source and renegotiate waste contracts toward recycling and composting streams.",
		Actions: []string{
			"**Strategic Action:** Set a landfill diversion target with your waste contractor.",
			"**Immediate Win:** Introduce source separation for paper and plastics.",
		},
	},
	"Water": {
		Title:      "Reduce water consumption",
		Suggestion: "Fit low-flow fixtures, fix leaks, and meter high-use processes to find where water is being lost.",
		Actions: []string{
			"**Strategic Action:** Sub-meter high-use processes.",
			"**Immediate Win:** Fix leaks and fit low-flow fixtures.",
		},
	},
	"Other": {
		Title:      "Classify unrecognized activities",
		Suggestion: "These records matched no known activity. Add clearer descriptions or units so they can be measured against a specific emission factor.",
		Actions: []string{
			"**Recommendation:** Review unclassified records and add descriptive keywords.",
		},
	},
}

// genericRule covers categories without a dedicated rule.
var genericRule = Rule{
	Title:      "Audit %s activities",
	Suggestion: "Review %s activities individually to find the outliers driving emissions in this category.",
	Actions: []string{
		"**Recommendation:** Run a granular audit of this category to find outlier activities.",
	},
}
