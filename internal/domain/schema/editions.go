package schema

import (
	"fmt"
	"sort"
)

// DefaultEdition is the edition used when configuration names none.
const DefaultEdition = "prelim-7"

// Built-in editions reproduce the layouts the event has run with.
var editions = map[string]func() Definition{
	"classic-5": classicFive,
	"attire-6":  attireSix,
	"prelim-7":  prelimSeven,
	"full-8":    fullEight,
}

// Edition returns a copy of a built-in definition by name.
func Edition(name string) (Definition, error) {
	build, ok := editions[name]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %q", ErrUnknownEdition, name)
	}
	return build(), nil
}

// Editions lists the built-in edition names.
func Editions() []string {
	names := make([]string, 0, len(editions))
	for name := range editions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func crit(key, label string, maxScore float64) CriterionDef {
	return CriterionDef{Key: key, Label: label, Max: maxScore}
}

func classicFive() Definition {
	return Definition{
		Edition: "classic-5",
		Categories: []CategoryDef{
			{Key: "sports_attire", Label: "Sports Attire", Weight: 20},
			{Key: "swimsuit", Label: "Swimsuit", Weight: 20},
			{Key: "talent", Label: "Talent", Weight: 10},
			{Key: "gown", Label: "Gown", Weight: 20},
			{Key: "qa", Label: "Q&A", Weight: 30},
		},
		Totals: []TotalDef{
			{
				Key: "overall_total", Filter: "overall", Title: "Overall Results", Label: "Total",
				Policy: string(PolicyMean), FullBreakdown: true,
				Categories: []string{"sports_attire", "swimsuit", "talent", "gown", "qa"},
			},
			{
				Key: "combined_total", Filter: "combined_categories", Title: "Combined Attire Results", Label: "Combined",
				Policy:     string(PolicySum),
				Categories: []string{"sports_attire", "swimsuit", "gown"},
			},
		},
	}
}

func attireSix() Definition {
	return Definition{
		Edition: "attire-6",
		Categories: []CategoryDef{
			{Key: "production", Label: "Production"},
			{Key: "formal_attire", Label: "Formal Attire"},
			{Key: "uniform_attire", Label: "Uniform Attire"},
			{Key: "ethnic_attire", Label: "Ethnic Attire"},
			{Key: "gown", Label: "Gown"},
			{Key: "qa", Label: "Q&A"},
		},
		Totals: []TotalDef{
			{
				Key: "overall_total", Filter: "overall", Title: "Overall Results", Label: "Total",
				Policy: string(PolicyMean), FullBreakdown: true,
				Categories: []string{"production", "formal_attire", "uniform_attire", "ethnic_attire", "gown"},
			},
			{
				Key: "combined_total", Filter: "combined_categories", Title: "Combined Attire Results", Label: "Combined",
				Policy:     string(PolicySum),
				Categories: []string{"formal_attire", "uniform_attire", "ethnic_attire"},
			},
		},
		Finals: &FinalsDef{Category: "qa", QualifierTotal: "overall_total", Size: 5},
	}
}

func prelimSeven() Definition {
	return Definition{
		Edition:    "prelim-7",
		Categories: judgedCategories(false),
		Totals: []TotalDef{
			{
				Key: "overall_total", Filter: "overall", Title: "Overall Results", Label: "Total",
				Policy: string(PolicyMean), FullBreakdown: true,
				Categories: []string{"production", "formal_attire", "uniform_attire", "qa_preliminary", "swimwear", "gown"},
			},
			{
				Key: "combined_total", Filter: "combined_categories", Title: "Combined Q&A Results", Label: "Combined",
				Policy:     string(PolicySum),
				Categories: []string{"qa_preliminary", "qa"},
			},
		},
		Finals: &FinalsDef{Category: "qa", QualifierTotal: "overall_total", Size: 5},
	}
}

func fullEight() Definition {
	return Definition{
		Edition:    "full-8",
		Categories: judgedCategories(true),
		Totals: []TotalDef{
			{
				Key: "overall_total", Filter: "overall", Title: "Overall Results", Label: "Total",
				Policy: string(PolicyMean), FullBreakdown: true,
				Categories: []string{
					"production", "formal_attire", "uniform_attire", "ethnic_attire",
					"qa_preliminary", "swimwear", "gown",
				},
			},
			{
				Key: "combined_total", Filter: "combined_categories", Title: "Combined Q&A Results", Label: "Combined",
				Policy:     string(PolicySum),
				Categories: []string{"qa_preliminary", "qa"},
			},
		},
		Finals: &FinalsDef{Category: "qa", QualifierTotal: "overall_total", Size: 5},
	}
}

// judgedCategories returns the sub-criteria based categories of the later
// editions; withEthnic adds the ethnic attire round.
func judgedCategories(withEthnic bool) []CategoryDef {
	cats := []CategoryDef{
		{
			Key: "production", Label: "Production",
			JudgingOrder: string(OrderGrouped), GenderSequence: []string{"female", "male"},
			Criteria: []CriterionDef{
				crit("stage_presence_energy", "Stage Presence & Energy", 40),
				crit("projection", "Projection", 25),
				crit("creativity_concept", "Creativity & Concept", 20),
				crit("confidence", "Confidence", 15),
			},
		},
		{
			Key: "formal_attire", Label: "Casual Attire",
			JudgingOrder: string(OrderInterleaved), GenderSequence: []string{"female", "male"},
			Criteria: []CriterionDef{
				crit("fit", "Fit & Sustainability", 50),
				crit("poise", "Poise & Bearing", 20),
				crit("elegance", "Elegance & Sophistication", 20),
				crit("confidence", "Confidence", 10),
			},
		},
		{
			Key: "uniform_attire", Label: "Uniform Attire",
			JudgingOrder: string(OrderInterleaved), GenderSequence: []string{"male", "female"},
			Criteria: []CriterionDef{
				crit("school_uniform", "Appropriateness in Wearing School Uniform", 50),
				crit("poise_projection", "Poise & Projection", 40),
				crit("confidence", "Confidence", 10),
			},
		},
	}
	if withEthnic {
		cats = append(cats, CategoryDef{
			Key: "ethnic_attire", Label: "Ethnic Attire",
			JudgingOrder: string(OrderInterleaved), GenderSequence: []string{"female", "male"},
		})
	}
	return append(cats,
		CategoryDef{
			Key: "qa_preliminary", Label: "Preliminary Q&A",
			JudgingOrder: string(OrderInterleaved), GenderSequence: []string{"female", "male"},
			Criteria: []CriterionDef{
				crit("wit_content", "Wit and Content", 40),
				crit("confidence_delivery", "Confidence and Delivery", 30),
				crit("stage_presence", "Stage Presence", 20),
				crit("overall_impact", "Overall Impact", 10),
			},
		},
		CategoryDef{
			Key: "swimwear", Label: "Swimwear",
			JudgingOrder: string(OrderInterleaved), GenderSequence: []string{"female", "male"},
			Criteria: []CriterionDef{
				crit("physical_fitness", "Physical Fitness", 30),
				crit("confidence_presence", "Confidence & Presence", 30),
				crit("swimwear_fit", "Swimwear Fit", 25),
				crit("stage_presence", "Stage Presence", 15),
			},
		},
		CategoryDef{
			Key: "gown", Label: "Gown/Formal Attire Exposure",
			JudgingOrder: string(OrderInterleaved), GenderSequence: []string{"female", "male"},
			Criteria: []CriterionDef{
				crit("elegance_style", "Elegance & Style", 40),
				crit("poise_bearing", "Poise & Bearing", 20),
				crit("style_design", "Style & Design", 20),
				crit("confidence", "Confidence", 20),
			},
		},
		CategoryDef{
			Key: "qa", Label: "Q&A",
			JudgingOrder: string(OrderGrouped), GenderSequence: []string{"male", "female"},
			Criteria: []CriterionDef{
				crit("intelligence_articulateness", "Intelligence & Articulateness", 60),
				crit("physical_attributes", "Physical Attributes", 20),
				crit("personality_poise_carriage", "Personality, Poise & Carriage", 20),
			},
		},
	)
}
