// Package schema holds the category schema of an event edition: the active
// categories, their sub-criteria, the composite totals and the filter catalog
// derived from them. It is the single source of truth for aggregation, export
// headings and API labels.
package schema

import (
	"fmt"
	"math"
	"regexp"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/okian/tabulator/internal/domain/model"
)

// Default values applied while compiling a definition.
const (
	DefaultMaxScore      = 100.0
	DefaultFilterName    = "overall"
	CategoryFilterPrefix = "top_"
	criteriaTolerance    = 1e-9
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(_[a-z0-9]+)*$`)

// Policy selects how a composite total combines category averages.
type Policy string

// Combination policies.
const (
	// PolicyMean averages only categories with a positive average.
	PolicyMean Policy = "mean"
	// PolicySum adds the averages of the declared subset, zeros included.
	PolicySum Policy = "sum"
)

// Order is the sequence in which a judge is presented candidates.
type Order string

// Judging orders.
const (
	OrderNumber      Order = "number"
	OrderGrouped     Order = "grouped"
	OrderInterleaved Order = "interleaved"
)

// Criterion is a weighted sub-criterion of a category.
type Criterion struct {
	Key   string  `json:"key"`
	Label string  `json:"label"`
	Max   float64 `json:"max"`
}

// Category is one judged dimension of the competition.
type Category struct {
	Key            string          `json:"key"`
	Label          string          `json:"label"`
	Weight         float64         `json:"weight,omitempty"`
	Max            float64         `json:"max"`
	Criteria       []Criterion     `json:"criteria,omitempty"`
	JudgingOrder   Order           `json:"judging_order"`
	GenderSequence []model.Gender  `json:"gender_sequence,omitempty"`
	criteriaByKey  map[string]Criterion
}

// Heading returns the export heading for the category in a breakdown view.
func (c Category) Heading() string {
	if c.Weight > 0 {
		return fmt.Sprintf("%s (%s%%)", c.Label, trimFloat(c.Weight))
	}
	return c.Label
}

// Criterion looks up a sub-criterion by key.
func (c Category) Criterion(key string) (Criterion, bool) {
	cr, ok := c.criteriaByKey[key]
	return cr, ok
}

// Total is a named composite of a category subset.
type Total struct {
	Key           string   `json:"key"`
	Filter        string   `json:"filter"`
	Title         string   `json:"title"`
	Label         string   `json:"label"`
	Policy        Policy   `json:"policy"`
	Categories    []string `json:"categories"`
	FullBreakdown bool     `json:"full_breakdown"`
}

// Finals restricts a category to the top candidates of a qualifying total.
type Finals struct {
	Category       string `json:"category"`
	QualifierTotal string `json:"qualifier_total"`
	Size           int    `json:"size"`
}

// Schema is a compiled, immutable category schema. Safe for concurrent use.
type Schema struct {
	edition       string
	categories    []Category
	categoryIndex map[string]int
	totals        []Total
	totalIndex    map[string]int
	catalog       *Catalog
	finals        *Finals
}

// Edition returns the edition name.
func (s *Schema) Edition() string { return s.edition }

// Categories returns the ordered categories.
func (s *Schema) Categories() []Category {
	out := make([]Category, len(s.categories))
	copy(out, s.categories)
	return out
}

// CategoryKeys returns the ordered category keys.
func (s *Schema) CategoryKeys() []string {
	keys := make([]string, len(s.categories))
	for i, c := range s.categories {
		keys[i] = c.Key
	}
	return keys
}

// Category looks up a category by key.
func (s *Schema) Category(key string) (Category, bool) {
	i, ok := s.categoryIndex[key]
	if !ok {
		return Category{}, false
	}
	return s.categories[i], true
}

// Totals returns the declared totals in order.
func (s *Schema) Totals() []Total {
	out := make([]Total, len(s.totals))
	copy(out, s.totals)
	return out
}

// Total looks up a total by key.
func (s *Schema) Total(key string) (Total, bool) {
	i, ok := s.totalIndex[key]
	if !ok {
		return Total{}, false
	}
	return s.totals[i], true
}

// Catalog returns the filter catalog derived from the schema.
func (s *Schema) Catalog() *Catalog { return s.catalog }

// Finals returns the finals round, if any.
func (s *Schema) Finals() (Finals, bool) {
	if s.finals == nil {
		return Finals{}, false
	}
	return *s.finals, true
}

// Compile validates a definition and builds a Schema. genders is the
// configured gender enumeration used to check judging sequences.
func Compile(def Definition, genders []model.Gender) (*Schema, error) {
	if err := newValidator().Struct(def); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}

	known := make(map[model.Gender]bool, len(genders))
	for _, g := range genders {
		known[g.Normalize()] = true
	}

	s := &Schema{
		edition:       def.Edition,
		categoryIndex: make(map[string]int, len(def.Categories)),
		totalIndex:    make(map[string]int, len(def.Totals)),
	}

	for _, cd := range def.Categories {
		c, err := compileCategory(cd, known)
		if err != nil {
			return nil, err
		}
		if _, dup := s.categoryIndex[c.Key]; dup {
			return nil, fmt.Errorf("%w: duplicate category %q", ErrInvalidSchema, c.Key)
		}
		s.categoryIndex[c.Key] = len(s.categories)
		s.categories = append(s.categories, c)
	}

	for _, td := range def.Totals {
		t, err := s.compileTotal(td)
		if err != nil {
			return nil, err
		}
		s.totalIndex[t.Key] = len(s.totals)
		s.totals = append(s.totals, t)
	}

	if def.Finals != nil {
		if _, ok := s.categoryIndex[def.Finals.Category]; !ok {
			return nil, fmt.Errorf("%w: finals category %q is not declared", ErrInvalidSchema, def.Finals.Category)
		}
		idx, ok := s.totalIndex[def.Finals.QualifierTotal]
		if !ok {
			return nil, fmt.Errorf("%w: finals qualifier %q is not a declared total", ErrInvalidSchema, def.Finals.QualifierTotal)
		}
		// Finals marks must not move the qualifier, or finalists change mid-round.
		if slices.Contains(s.totals[idx].Categories, def.Finals.Category) {
			return nil, fmt.Errorf("%w: finals qualifier %q includes finals category %q",
				ErrInvalidSchema, def.Finals.QualifierTotal, def.Finals.Category)
		}
		s.finals = &Finals{
			Category:       def.Finals.Category,
			QualifierTotal: def.Finals.QualifierTotal,
			Size:           def.Finals.Size,
		}
	}

	defaultFilter := def.DefaultFilter
	if defaultFilter == "" {
		defaultFilter = DefaultFilterName
	}
	catalog, err := buildCatalog(s, defaultFilter)
	if err != nil {
		return nil, err
	}
	s.catalog = catalog
	return s, nil
}

func compileCategory(cd CategoryDef, genders map[model.Gender]bool) (Category, error) {
	c := Category{
		Key:           cd.Key,
		Label:         cd.Label,
		Weight:        cd.Weight,
		Max:           cd.Max,
		JudgingOrder:  Order(cd.JudgingOrder),
		criteriaByKey: make(map[string]Criterion, len(cd.Criteria)),
	}
	if c.Max == 0 {
		c.Max = DefaultMaxScore
	}
	if c.JudgingOrder == "" {
		c.JudgingOrder = OrderNumber
	}

	sum := 0.0
	for _, crd := range cd.Criteria {
		if _, dup := c.criteriaByKey[crd.Key]; dup {
			return Category{}, fmt.Errorf("%w: category %q: duplicate criterion %q", ErrInvalidSchema, cd.Key, crd.Key)
		}
		cr := Criterion{Key: crd.Key, Label: crd.Label, Max: crd.Max}
		c.criteriaByKey[cr.Key] = cr
		c.Criteria = append(c.Criteria, cr)
		sum += cr.Max
	}
	if len(c.Criteria) > 0 && math.Abs(sum-c.Max) > criteriaTolerance {
		return Category{}, fmt.Errorf("%w: category %q: criteria weights sum to %s, want %s",
			ErrInvalidSchema, cd.Key, trimFloat(sum), trimFloat(c.Max))
	}

	seen := make(map[model.Gender]bool, len(cd.GenderSequence))
	for _, raw := range cd.GenderSequence {
		g := model.Gender(raw).Normalize()
		if len(genders) > 0 && !genders[g] {
			return Category{}, fmt.Errorf("%w: category %q: unknown gender %q in judging sequence", ErrInvalidSchema, cd.Key, raw)
		}
		if seen[g] {
			return Category{}, fmt.Errorf("%w: category %q: gender %q repeated in judging sequence", ErrInvalidSchema, cd.Key, raw)
		}
		seen[g] = true
		c.GenderSequence = append(c.GenderSequence, g)
	}
	return c, nil
}

func (s *Schema) compileTotal(td TotalDef) (Total, error) {
	if _, dup := s.totalIndex[td.Key]; dup {
		return Total{}, fmt.Errorf("%w: duplicate total %q", ErrInvalidSchema, td.Key)
	}
	seen := make(map[string]bool, len(td.Categories))
	for _, key := range td.Categories {
		if _, ok := s.categoryIndex[key]; !ok {
			return Total{}, fmt.Errorf("%w: total %q references unknown category %q", ErrInvalidSchema, td.Key, key)
		}
		if seen[key] {
			return Total{}, fmt.Errorf("%w: total %q lists category %q twice", ErrInvalidSchema, td.Key, key)
		}
		seen[key] = true
	}
	t := Total{
		Key:           td.Key,
		Filter:        td.Filter,
		Title:         td.Title,
		Label:         td.Label,
		Policy:        Policy(td.Policy),
		Categories:    append([]string(nil), td.Categories...),
		FullBreakdown: td.FullBreakdown,
	}
	if t.Title == "" {
		t.Title = t.Label + " Results"
	}
	return t, nil
}

// newValidator returns a validator with the schema's custom tags registered.
func newValidator() *validator.Validate {
	v := validator.New()
	// RegisterValidation only fails on an empty tag or nil func.
	_ = v.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
		return slugPattern.MatchString(fl.Field().String())
	})
	return v
}

func trimFloat(f float64) string {
	s := fmt.Sprintf("%.2f", f)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
