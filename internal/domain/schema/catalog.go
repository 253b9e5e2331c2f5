package schema

import "fmt"

// Shape is the presentation shape of a filter's result rows.
type Shape string

// Presentation shapes.
const (
	// ShapeSingle carries one score column.
	ShapeSingle Shape = "single"
	// ShapeBreakdown carries one column per category plus the total.
	ShapeBreakdown Shape = "breakdown"
)

// MetricKind tells the ranking engine which recipe computes a filter's metric.
type MetricKind int

// Metric recipes.
const (
	MetricCategory MetricKind = iota + 1
	MetricTotal
)

func (k MetricKind) String() string {
	switch k {
	case MetricCategory:
		return "category"
	case MetricTotal:
		return "total"
	default:
		return "unknown"
	}
}

// Column is one score column of a result row.
type Column struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	// Total marks the column holding the ranking metric of a breakdown view.
	Total bool `json:"total,omitempty"`
}

// Filter is a catalog entry: a named view mapped to a metric recipe and a
// presentation shape.
type Filter struct {
	Name    string     `json:"name"`
	Title   string     `json:"title"`
	Shape   Shape      `json:"shape"`
	Kind    MetricKind `json:"-"`
	Metric  string     `json:"metric"` // category key or total key
	Columns []Column   `json:"columns"`
}

// Catalog maps filter names to filters.
type Catalog struct {
	filters       map[string]Filter
	order         []string
	defaultFilter string
}

// Resolve looks up a filter by name.
func (c *Catalog) Resolve(name string) (Filter, bool) {
	f, ok := c.filters[name]
	return f, ok
}

// ResolveOrDefault looks up a filter and falls back to the default filter for
// unknown names. The boolean reports whether the name was recognised.
func (c *Catalog) ResolveOrDefault(name string) (Filter, bool) {
	if f, ok := c.filters[name]; ok {
		return f, true
	}
	return c.filters[c.defaultFilter], false
}

// Default returns the fallback filter.
func (c *Catalog) Default() Filter { return c.filters[c.defaultFilter] }

// Filters returns every filter in catalog order: totals first, then one
// top_<category> entry per category.
func (c *Catalog) Filters() []Filter {
	out := make([]Filter, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.filters[name])
	}
	return out
}

// Names returns the filter names in catalog order.
func (c *Catalog) Names() []string {
	return append([]string(nil), c.order...)
}

// CategoryFilterName returns the top_<category> filter name for a category key.
func CategoryFilterName(category string) string {
	return CategoryFilterPrefix + category
}

func buildCatalog(s *Schema, defaultFilter string) (*Catalog, error) {
	c := &Catalog{
		filters:       make(map[string]Filter, len(s.totals)+len(s.categories)),
		defaultFilter: defaultFilter,
	}
	add := func(f Filter) error {
		if _, dup := c.filters[f.Name]; dup {
			return fmt.Errorf("%w: filter %q declared twice", ErrInvalidSchema, f.Name)
		}
		c.filters[f.Name] = f
		c.order = append(c.order, f.Name)
		return nil
	}

	for _, t := range s.totals {
		keys := t.Categories
		if t.FullBreakdown {
			keys = s.CategoryKeys()
		}
		cols := make([]Column, 0, len(keys)+1)
		for _, key := range keys {
			cat := s.categories[s.categoryIndex[key]]
			cols = append(cols, Column{Key: cat.Key, Label: cat.Heading()})
		}
		cols = append(cols, Column{Key: t.Key, Label: t.Label, Total: true})
		if err := add(Filter{
			Name:    t.Filter,
			Title:   t.Title,
			Shape:   ShapeBreakdown,
			Kind:    MetricTotal,
			Metric:  t.Key,
			Columns: cols,
		}); err != nil {
			return nil, err
		}
	}

	for _, cat := range s.categories {
		if err := add(Filter{
			Name:    CategoryFilterName(cat.Key),
			Title:   "Top " + cat.Label + " Results",
			Shape:   ShapeSingle,
			Kind:    MetricCategory,
			Metric:  cat.Key,
			Columns: []Column{{Key: cat.Key, Label: cat.Label + " Score", Total: true}},
		}); err != nil {
			return nil, err
		}
	}

	if _, ok := c.filters[defaultFilter]; !ok {
		return nil, fmt.Errorf("%w: default filter %q is not in the catalog", ErrInvalidSchema, defaultFilter)
	}
	return c, nil
}
