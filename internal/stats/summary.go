package stats

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"haplotrack/internal/chromosome"
	"haplotrack/internal/genome"
	"haplotrack/internal/model"
	"haplotrack/internal/population"
)

// Summarize measures the ancestry of one generation. lengths[k] is the
// physical length of chromosome pair k and weights each interval by the span
// it covers; subpopulations sizes the ancestry proportion vector.
func Summarize(p population.Population, generation int, lengths []uint32, subpopulations int) (model.GenerationSummary, error) {
	if len(lengths) < p.ChromosomePairCount() {
		return model.GenerationSummary{}, fmt.Errorf("summarize: %d chromosome lengths for %d pairs: %w", len(lengths), p.ChromosomePairCount(), chromosome.ErrSizeMismatch)
	}

	summary := model.GenerationSummary{Generation: generation, Size: p.Size()}
	sources := make(map[uint32]struct{})
	ancestry := make([]float64, subpopulations)
	var covered float64
	chromosomes := 0

	err := population.Walk(p, func(_ int, r genome.Range) error {
		for k, pair := range r.Pairs() {
			for _, c := range []chromosome.Chromosome{pair.First, pair.Second} {
				chromosomes++
				summary.TotalIntervals += c.Len()
				summary.MaxIntervals = max(summary.MaxIntervals, c.Len())
				for i, iv := range c.Intervals() {
					sources[iv.SourceID] = struct{}{}
					span := intervalSpan(c, i, lengths[k])
					covered += span
					if pop := int(chromosome.DecodeSourceID(iv.SourceID).Population); pop < subpopulations {
						ancestry[pop] += span
					}
				}
			}
		}
		return nil
	})
	if err != nil {
		return model.GenerationSummary{}, err
	}

	if chromosomes > 0 {
		summary.MeanIntervals = float64(summary.TotalIntervals) / float64(chromosomes)
	}
	summary.DistinctSources = len(sources)
	if covered > 0 {
		for s := range ancestry {
			ancestry[s] /= covered
		}
	}
	summary.AncestryProportions = ancestry
	return summary, nil
}

// intervalSpan is the number of positions below length covered by interval i.
func intervalSpan(c chromosome.Chromosome, i int, length uint32) float64 {
	start := c.At(i).Position
	end := length
	if i+1 < c.Len() {
		end = min(c.At(i+1).Position, length)
	}
	if end <= start {
		return 0
	}
	return float64(end - start)
}

// WriteSummaryTable renders summaries as an aligned text table.
func WriteSummaryTable(w io.Writer, summaries []model.GenerationSummary) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "generation\tsize\tintervals\tmean\tmax\tsources\tancestry")
	for _, s := range summaries {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%.3f\t%d\t%s\t%s\n",
			s.Generation,
			humanize.Comma(int64(s.Size)),
			humanize.Comma(int64(s.TotalIntervals)),
			s.MeanIntervals,
			s.MaxIntervals,
			humanize.Comma(int64(s.DistinctSources)),
			formatProportions(s.AncestryProportions),
		)
	}
	return tw.Flush()
}

func formatProportions(p []float64) string {
	out := ""
	for i, v := range p {
		if i > 0 {
			out += " "
		}
		out += humanize.FtoaWithDigits(v, 3)
	}
	return out
}
