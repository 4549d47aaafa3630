package main

import (
	"cmp"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/MortenLohne/simulate-limpwurt/internal/batch"
	"github.com/MortenLohne/simulate-limpwurt/internal/sim/catalogs"
	"github.com/MortenLohne/simulate-limpwurt/internal/sim/costs"
	"github.com/MortenLohne/simulate-limpwurt/internal/sim/montecarlo"
	"github.com/MortenLohne/simulate-limpwurt/internal/sim/slayer"
)

func formatProgress(p batch.Progress, elapsed time.Duration) string {
	return fmt.Sprintf("%s/%s replications (%d ok, %d failed, %d step-limited, %d violations) in %s",
		humanize.Comma(int64(p.Done)), humanize.Comma(int64(p.Total)),
		p.Successes, p.Failures, p.StepLimited, p.Violations, elapsed.Round(time.Millisecond))
}

func pct(f float64) string { return humanize.FtoaWithDigits(100*f, 2) + "%" }

func hours(d time.Duration) string { return humanize.FtoaWithDigits(d.Hours(), 1) + "h" }

// printReport writes the human summary of rep.
func printReport(w io.Writer, rep montecarlo.Report, batchID string, wall time.Duration) {
	p := func(format string, args ...any) { fmt.Fprintf(w, format+"\n", args...) }

	p("batch %s: %s replications of %s (%s) in %s", batchID, humanize.Comma(int64(rep.Replications)), rep.Policy, rep.Era, wall.Round(time.Millisecond))
	p("success rate:          %s (%s ok, %s failed, %d step-limited, %d violations)",
		pct(rep.SuccessRate), humanize.Comma(int64(rep.Successes)), humanize.Comma(int64(rep.Failures)), rep.StepLimited, rep.Violations)
	p("tasks received (mean): %s", humanize.FtoaWithDigits(rep.MeanTasksReceived, 2))
	if rep.Failures > 0 {
		p("max points when locked: %s", humanize.Comma(int64(rep.MaxPointsLocked)))
		p("tasks before lock:      median %s, max %s", humanize.Comma(int64(rep.Failure.Tasks.Median)), humanize.Comma(int64(rep.Failure.Tasks.Max)))
	}
	if rep.Successes > 0 {
		s := rep.Success
		p("successful runs:")
		p("  tasks:        median %s (min %s, max %s)", humanize.Comma(int64(s.Tasks.Median)), humanize.Comma(int64(s.Tasks.Min)), humanize.Comma(int64(s.Tasks.Max)))
		p("  min points:   median %s", humanize.Comma(int64(s.MinPoints.Median)))
		p("  total points: median %s", humanize.Comma(int64(s.TotalPoints.Median)))
		p("  end points:   median %s", humanize.Comma(int64(s.EndPoints.Median)))
		p("  time:         mean %sh, median %s (min %s, max %s)",
			humanize.FtoaWithDigits(rep.MeanHoursSuccess, 1), hours(s.Elapsed.Median), hours(s.Elapsed.Min), hours(s.Elapsed.Max))
	}
	for _, v := range rep.ViolationSamples {
		p("violation: %s", v)
	}

	p("")
	p("drops: %s", formatDrops(rep.Drops))
	p("supplies: %s", formatSupplies(rep.Supplies))
	if len(rep.Kills) > 0 {
		p("kills:")
		for _, line := range topKills(rep.Kills, 10) {
			p("  %s", line)
		}
	}
	if len(rep.MeanTasksDone) > 0 {
		p("tasks per successful run:")
		for _, line := range topTasks(rep.MeanTasksDone, 15) {
			p("  %s", line)
		}
	}
	if rep.Median != nil {
		acc := rep.Median.State.Acc
		p("median run: #%d seed=%d steps=%s time=%s points=%d skips=%d rerolls=%d stored=%d",
			rep.Median.Index, rep.Median.Seed, humanize.Comma(int64(rep.Median.Steps)), hours(rep.Median.Elapsed),
			rep.Median.State.Points, acc.PointSkips, acc.Rerolls, acc.Stored)
	}
}

func formatDrops(d slayer.Drops) string {
	return fmt.Sprintf("dust battlestaff %d, mist battlestaff %d, imbued heart %d, eternal gem %d",
		d.DustBattlestaff, d.MistBattlestaff, d.ImbuedHeart, d.EternalGem)
}

func formatSupplies(s costs.Supplies) string {
	if s.IsZero() {
		return "none"
	}
	counts := s.Counts()
	var parts []string
	for i, n := range counts {
		if n > 0 {
			parts = append(parts, fmt.Sprintf("%s %s", costs.SupplyNames[i], humanize.Comma(int64(n))))
		}
	}
	return strings.Join(parts, ", ")
}

func topKills(kills map[catalogs.Creature]uint64, n int) []string {
	type kv struct {
		c catalogs.Creature
		n uint64
	}
	var all []kv
	for c, k := range kills {
		all = append(all, kv{c, k})
	}
	slices.SortFunc(all, func(a, b kv) int {
		if c := cmp.Compare(b.n, a.n); c != 0 {
			return c
		}
		return cmp.Compare(a.c, b.c)
	})
	var out []string
	for i, e := range all {
		if i == n {
			break
		}
		out = append(out, fmt.Sprintf("%-24s %s", e.c, humanize.Comma(int64(e.n))))
	}
	return out
}

func topTasks(done map[slayer.GiverCreature]float64, n int) []string {
	type kv struct {
		k slayer.GiverCreature
		v float64
	}
	var all []kv
	for k, v := range done {
		all = append(all, kv{k, v})
	}
	slices.SortFunc(all, func(a, b kv) int {
		if c := cmp.Compare(b.v, a.v); c != 0 {
			return c
		}
		return strings.Compare(a.k.String(), b.k.String())
	})
	var out []string
	for i, e := range all {
		if i == n {
			break
		}
		out = append(out, fmt.Sprintf("%-32s %s", e.k, humanize.FtoaWithDigits(e.v, 2)))
	}
	return out
}
