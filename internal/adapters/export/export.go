// Package export renders ranking reports as downloadable CSV or JSON.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/okian/tabulator/internal/domain/types"
)

// Format is an export encoding.
type Format string

// Supported formats.
const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

const timestampLayout = "20060102-150405"

// ParseFormat maps a query value to a Format. Empty selects CSV.
func ParseFormat(raw string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(raw))) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, raw)
	}
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	if f == FormatJSON {
		return "application/json"
	}
	return "text/csv; charset=utf-8"
}

// Filename builds an attachment name such as overall_female_20240501-103000.csv.
func Filename(r *types.Report, f Format) string {
	return fmt.Sprintf("%s_%s_%s.%s", r.Filter, r.Gender, r.GeneratedAt.UTC().Format(timestampLayout), f)
}

// Render writes r to w in format f.
func Render(w io.Writer, r *types.Report, f Format) error {
	var err error
	switch f {
	case FormatCSV:
		err = renderCSV(w, r)
	case FormatJSON:
		err = renderJSON(w, r)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, f)
	}
	if err != nil {
		return fmt.Errorf("%w as %s: %w", ErrRender, f, err)
	}
	return nil
}

func renderCSV(w io.Writer, r *types.Report) error {
	cw := csv.NewWriter(w)

	meta := [][]string{
		{"title", r.Title},
		{"filter", r.Filter},
		{"gender", string(r.Gender)},
		{"generated_at", r.GeneratedAt.UTC().Format(time.RFC3339)},
		{"count", strconv.Itoa(r.Count)},
		{},
	}
	if err := cw.WriteAll(meta); err != nil {
		return err
	}

	header := []string{"Rank", "Number", "Name", "Gender"}
	for _, c := range r.Columns {
		header = append(header, c.Label)
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	title := cases.Title(language.English)
	for i := range r.Results {
		res := &r.Results[i]
		row := []string{
			strconv.Itoa(res.Rank),
			strconv.Itoa(res.Candidate.Number),
			res.Candidate.Name,
			title.String(string(res.Candidate.Gender)),
		}
		for _, s := range res.Scores {
			row = append(row, strconv.FormatFloat(s.Value, 'f', 2, 64))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func renderJSON(w io.Writer, r *types.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rounded(r))
}

// rounded returns a copy of r with every value rounded to two decimals.
func rounded(r *types.Report) types.Report {
	out := *r
	out.Results = make([]types.RankedResult, len(r.Results))
	for i, res := range r.Results {
		res.Metric = round2(res.Metric)
		scores := make([]types.Score, len(res.Scores))
		for j, s := range res.Scores {
			s.Value = round2(s.Value)
			scores[j] = s
		}
		res.Scores = scores
		out.Results[i] = res
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
