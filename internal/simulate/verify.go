package simulate

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/okian/tabulator/internal/domain/model"
	"github.com/okian/tabulator/internal/domain/schema"
	"github.com/okian/tabulator/internal/domain/types"
	"github.com/okian/tabulator/pkg/logger"
)

// unknownFilter is requested to exercise the default-filter fallback.
const unknownFilter = "no_such_filter"

// verify fetches every filter for every partition and checks the reports.
// It returns the number of reports checked; inconsistencies are collected as
// problems, and only transport failures are returned.
func (r *runner) verify(ctx context.Context) (int, error) {
	partitions := append([]string{model.PartitionAll}, r.cfg.Genders...)
	checked := 0

	for _, f := range r.info.Filters {
		byPartition := make(map[string]types.Report, len(partitions))
		for _, g := range partitions {
			first, err := r.client.Results(ctx, f.Name, g)
			if err != nil {
				return checked, fmt.Errorf("results %s/%s: %w", f.Name, g, err)
			}
			second, err := r.client.Results(ctx, f.Name, g)
			if err != nil {
				return checked, fmt.Errorf("results %s/%s: %w", f.Name, g, err)
			}
			checked += 2

			for _, p := range checkReport(first, f.Name, g) {
				r.problem(p)
			}
			if err := sameRanking(first, second); err != nil {
				r.problem(fmt.Errorf("%s/%s not idempotent: %w", f.Name, g, err))
			}
			r.checkMetrics(first, f)
			byPartition[g] = first
		}
		for _, p := range checkPartitions(byPartition, r.cfg.Genders, len(r.candidates)) {
			r.problem(fmt.Errorf("%s: %w", f.Name, p))
		}
	}

	fallback, err := r.client.Results(ctx, unknownFilter, model.PartitionAll)
	if err != nil {
		return checked, fmt.Errorf("results %s: %w", unknownFilter, err)
	}
	checked++
	if fallback.Filter != r.info.DefaultFilter {
		r.problem(fmt.Errorf("unknown filter resolved to %q, want %q", fallback.Filter, r.info.DefaultFilter))
	}

	ct, body, err := r.client.Export(ctx, r.info.DefaultFilter, model.PartitionAll, "csv")
	if err != nil {
		return checked, fmt.Errorf("export: %w", err)
	}
	checked++
	if !strings.HasPrefix(ct, "text/csv") {
		r.problem(fmt.Errorf("export content type %q", ct))
	}
	if n := strings.Count(string(body), "\n"); n < len(r.candidates)+1 {
		r.problem(fmt.Errorf("export has %d lines for %d candidates", n, len(r.candidates)))
	}

	r.log.Info(ctx, "verification finished", logger.Int("reports", checked))
	return checked, nil
}

// checkReport verifies ordering invariants of a single report.
func checkReport(rep types.Report, filter, gender string) []error {
	var out []error
	where := filter + "/" + gender
	if rep.Filter != filter {
		out = append(out, fmt.Errorf("%s: report echoes filter %q", where, rep.Filter))
	}
	if string(rep.Gender) != gender {
		out = append(out, fmt.Errorf("%s: report echoes gender %q", where, rep.Gender))
	}
	if rep.Count != len(rep.Results) {
		out = append(out, fmt.Errorf("%s: count %d for %d rows", where, rep.Count, len(rep.Results)))
	}
	for i, res := range rep.Results {
		if res.Rank != i+1 {
			out = append(out, fmt.Errorf("%s: row %d has rank %d", where, i, res.Rank))
		}
		if i > 0 && res.Metric > rep.Results[i-1].Metric {
			out = append(out, fmt.Errorf("%s: rank %d (%.4f) above rank %d (%.4f)",
				where, res.Rank, res.Metric, rep.Results[i-1].Rank, rep.Results[i-1].Metric))
		}
		if gender != model.PartitionAll && string(res.Candidate.Gender) != gender {
			out = append(out, fmt.Errorf("%s: %s has gender %q", where, res.Candidate.ID, res.Candidate.Gender))
		}
	}
	return out
}

// sameRanking reports whether two reports rank the same candidates with the
// same metrics in the same order.
func sameRanking(a, b types.Report) error {
	if len(a.Results) != len(b.Results) {
		return fmt.Errorf("%d rows then %d rows", len(a.Results), len(b.Results))
	}
	for i := range a.Results {
		x, y := a.Results[i], b.Results[i]
		if x.Candidate.ID != y.Candidate.ID || x.Metric != y.Metric {
			return fmt.Errorf("rank %d: %s (%.4f) then %s (%.4f)", i+1, x.Candidate.ID, x.Metric, y.Candidate.ID, y.Metric)
		}
	}
	return nil
}

// checkPartitions verifies that the gender partitions split the "all" view
// exactly and that every active candidate is ranked.
func checkPartitions(byPartition map[string]types.Report, genders []string, active int) []error {
	var out []error
	all := byPartition[model.PartitionAll]
	if len(all.Results) != active {
		out = append(out, fmt.Errorf("all ranks %d of %d active candidates", len(all.Results), active))
	}
	seen := make(map[string]bool, len(all.Results))
	for _, res := range all.Results {
		seen[res.Candidate.ID] = true
	}
	total := 0
	for _, g := range genders {
		for _, res := range byPartition[g].Results {
			total++
			if !seen[res.Candidate.ID] {
				out = append(out, fmt.Errorf("%s ranks %s which all does not", g, res.Candidate.ID))
			}
		}
	}
	if total != len(all.Results) {
		out = append(out, fmt.Errorf("partitions rank %d candidates, all ranks %d", total, len(all.Results)))
	}
	return out
}

// checkMetrics compares each row's metric with the locally recomputed value.
func (r *runner) checkMetrics(rep types.Report, f schema.Filter) {
	for _, res := range rep.Results {
		want := r.ledger.metric(r.info, f, res.Candidate.ID)
		if math.Abs(res.Metric-want) > metricTolerance {
			r.problem(fmt.Errorf("%s/%s: %s metric %.6f, want %.6f",
				rep.Filter, rep.Gender, res.Candidate.ID, res.Metric, want))
		}
	}
}
