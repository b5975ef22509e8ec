package evaluator

import (
	"fmt"
	"math"
)

// computeStats derives the paired statistics from the collected score pairs.
// Stds are sample standard deviations (n-1). Cohen's d uses the pooled std of
// the two score populations; a zero pooled std degrades to 1 so d stays
// finite. PValue is always the placeholder, never a computed significance.
func (r *Result) computeStats() {
	n := len(r.BaselineScores)
	r.NRuns = n
	if n == 0 {
		return
	}

	r.BaselineMean = mean(r.BaselineScores)
	r.OrgMean = mean(r.OrgScores)
	r.DeltaMean = r.OrgMean - r.BaselineMean

	r.BaselineStd = sampleStd(r.BaselineScores, r.BaselineMean)
	r.OrgStd = sampleStd(r.OrgScores, r.OrgMean)

	deltas := make([]int, n)
	for i := range deltas {
		deltas[i] = r.OrgScores[i] - r.BaselineScores[i]
	}
	r.DeltaStd = sampleStd(deltas, mean(deltas))

	pooled := 1.0
	if r.BaselineStd != 0 || r.OrgStd != 0 {
		pooled = math.Sqrt((r.BaselineStd*r.BaselineStd + r.OrgStd*r.OrgStd) / 2)
	}
	if pooled != 0 {
		r.CohensD = r.DeltaMean / pooled
	}

	r.PValue = PlaceholderPValue

	switch {
	case r.DeltaMean > winnerDeadZone:
		r.Winner = WinnerOrganization
	case r.DeltaMean < -winnerDeadZone:
		r.Winner = WinnerBaseline
	default:
		r.Winner = WinnerTie
	}
}

func mean(vals []int) float64 {
	sum := 0
	for _, v := range vals {
		sum += v
	}
	return float64(sum) / float64(len(vals))
}

func sampleStd(vals []int, m float64) float64 {
	if len(vals) < 2 {
		return 0
	}
	var ss float64
	for _, v := range vals {
		d := float64(v) - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(vals)-1))
}

// FormatSummary renders the one-line console verdict. Significance stars are
// driven by PValue, which is a placeholder here, so they never appear in
// practice; the format matches what reporting tooling expects.
func FormatSummary(r *Result) string {
	sig := ""
	if r.PValue < 0.01 {
		sig = "**"
	} else if r.PValue < 0.05 {
		sig = "*"
	}

	var verdict string
	switch r.Winner {
	case WinnerOrganization:
		verdict = "MA WINS" + sig
	case WinnerBaseline:
		verdict = "SA WINS" + sig
	default:
		verdict = "TIE"
	}

	return fmt.Sprintf("%s  SA=%.1f±%.1f  MA=%.1f±%.1f  delta=%+.1f  p=%.3f  d=%.2f",
		verdict, r.BaselineMean, r.BaselineStd, r.OrgMean, r.OrgStd, r.DeltaMean, r.PValue, r.CohensD)
}
