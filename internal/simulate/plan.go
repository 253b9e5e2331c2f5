package simulate

import (
	"math"
	"math/rand/v2"
	"strconv"
	"sync"

	"github.com/okian/tabulator/internal/domain/model"
	"github.com/okian/tabulator/internal/domain/schema"
)

// Mark is one judge's submission as sent to POST /scores.
type Mark struct {
	CandidateID string             `json:"candidate_id"`
	JudgeID     string             `json:"judge_id"`
	Category    string             `json:"category"`
	Value       *float64           `json:"value,omitempty"`
	Criteria    map[string]float64 `json:"criteria,omitempty"`
}

func (m Mark) key() model.SubmissionKey {
	return model.SubmissionKey{CandidateID: m.CandidateID, JudgeID: m.JudgeID, Category: m.Category}
}

// expected is the value the service should record for m.
func (m Mark) expected(maxValue float64) float64 {
	if m.Value != nil {
		return *m.Value
	}
	sum := 0.0
	for _, v := range m.Criteria {
		sum += v
	}
	return math.Min(sum, maxValue)
}

// judgeIDs returns stable judge identifiers.
func judgeIDs(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = "judge-" + strconv.Itoa(i+1)
	}
	return out
}

// planner generates marks with a seeded source so runs are reproducible.
type planner struct {
	rng           *rand.Rand
	duplicateRate float64
}

func newPlanner(seed uint64, duplicateRate float64) *planner {
	return &planner{
		rng:           rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		duplicateRate: duplicateRate,
	}
}

// plan returns one mark per (candidate, judge, category) plus resubmissions
// of a random share of them, shuffled.
func (p *planner) plan(categories []schema.Category, candidates []model.Candidate, judges []string) []Mark {
	var marks []Mark
	for _, cat := range categories {
		for _, c := range candidates {
			for _, j := range judges {
				m := p.mark(cat, c.ID, j)
				marks = append(marks, m)
				if p.rng.Float64() < p.duplicateRate {
					marks = append(marks, p.mark(cat, c.ID, j))
				}
			}
		}
	}
	p.rng.Shuffle(len(marks), func(i, j int) { marks[i], marks[j] = marks[j], marks[i] })
	return marks
}

// mark draws a value, or sub-criteria for every other mark of a category
// that has them.
func (p *planner) mark(cat schema.Category, candidateID, judgeID string) Mark {
	m := Mark{CandidateID: candidateID, JudgeID: judgeID, Category: cat.Key}
	if len(cat.Criteria) > 0 && p.rng.IntN(2) == 0 {
		m.Criteria = make(map[string]float64, len(cat.Criteria))
		for _, cr := range cat.Criteria {
			m.Criteria[cr.Key] = round2(p.rng.Float64() * cr.Max)
		}
		return m
	}
	v := round2(p.rng.Float64() * cat.Max)
	m.Value = &v
	return m
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

// ledger keeps the values the service accepted, keyed by candidate and
// category.
type ledger struct {
	mu     sync.Mutex
	values map[string]map[string][]float64
}

func newLedger() *ledger {
	return &ledger{values: make(map[string]map[string][]float64)}
}

func (l *ledger) add(candidateID, category string, v float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	byCat, ok := l.values[candidateID]
	if !ok {
		byCat = make(map[string][]float64)
		l.values[candidateID] = byCat
	}
	byCat[category] = append(byCat[category], v)
}

func (l *ledger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, byCat := range l.values {
		for _, vs := range byCat {
			n += len(vs)
		}
	}
	return n
}

// average is the mean of a candidate's accepted values in a category.
func (l *ledger) average(candidateID, category string) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	vs := l.values[candidateID][category]
	if len(vs) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}

// metric recomputes a filter's ranking metric for a candidate.
func (l *ledger) metric(info *SchemaInfo, f schema.Filter, candidateID string) float64 {
	for _, t := range info.Totals {
		if t.Filter != f.Name {
			continue
		}
		sum, n := 0.0, 0
		for _, key := range t.Categories {
			avg := l.average(candidateID, key)
			switch {
			case t.Policy == schema.PolicySum:
				sum += avg
			case avg > 0:
				sum += avg
				n++
			}
		}
		if t.Policy == schema.PolicySum {
			return sum
		}
		if n == 0 {
			return 0
		}
		return sum / float64(n)
	}
	return l.average(candidateID, f.Metric)
}
