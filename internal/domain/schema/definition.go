package schema

// Definition is the configuration form of a category schema. It is decoded by
// koanf from YAML/env and compiled into a Schema with Compile.
type Definition struct {
	Edition       string        `koanf:"edition" json:"edition" validate:"required"`
	Categories    []CategoryDef `koanf:"categories" json:"categories" validate:"required,min=1,dive"`
	Totals        []TotalDef    `koanf:"totals" json:"totals" validate:"dive"`
	Finals        *FinalsDef    `koanf:"finals" json:"finals,omitempty" validate:"omitempty"`
	DefaultFilter string        `koanf:"default_filter" json:"default_filter,omitempty" validate:"omitempty,slug"`
}

// CategoryDef declares one judged category.
type CategoryDef struct {
	Key   string `koanf:"key" json:"key" validate:"required,slug"`
	Label string `koanf:"label" json:"label" validate:"required"`
	// Weight is a presentation-only percentage shown in export headings.
	Weight float64 `koanf:"weight" json:"weight,omitempty" validate:"gte=0,lte=100"`
	// Max is the maximum mark; zero means 100.
	Max            float64        `koanf:"max" json:"max,omitempty" validate:"gte=0"`
	Criteria       []CriterionDef `koanf:"criteria" json:"criteria,omitempty" validate:"dive"`
	JudgingOrder   string         `koanf:"judging_order" json:"judging_order,omitempty" validate:"omitempty,oneof=number grouped interleaved"`
	GenderSequence []string       `koanf:"gender_sequence" json:"gender_sequence,omitempty"`
}

// CriterionDef declares a weighted sub-criterion of a category.
type CriterionDef struct {
	Key   string  `koanf:"key" json:"key" validate:"required,slug"`
	Label string  `koanf:"label" json:"label" validate:"required"`
	Max   float64 `koanf:"max" json:"max" validate:"gt=0"`
}

// TotalDef declares a named composite total and the filter that ranks by it.
type TotalDef struct {
	Key           string   `koanf:"key" json:"key" validate:"required,slug"`
	Filter        string   `koanf:"filter" json:"filter" validate:"required,slug"`
	Title         string   `koanf:"title" json:"title,omitempty"`
	Label         string   `koanf:"label" json:"label" validate:"required"`
	Policy        string   `koanf:"policy" json:"policy" validate:"required,oneof=mean sum"`
	Categories    []string `koanf:"categories" json:"categories" validate:"required,min=1,dive,slug"`
	FullBreakdown bool     `koanf:"full_breakdown" json:"full_breakdown,omitempty"`
}

// FinalsDef declares a finals round: only the top Size candidates per gender
// by QualifierTotal may be judged in Category.
type FinalsDef struct {
	Category       string `koanf:"category" json:"category" validate:"required,slug"`
	QualifierTotal string `koanf:"qualifier_total" json:"qualifier_total" validate:"required,slug"`
	Size           int    `koanf:"size" json:"size" validate:"gt=0"`
}
