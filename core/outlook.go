package core

import (
	"math"

	"github.com/attendrisk/attendrisk/schema"
)

// ComputeOutlook tells how many of the remaining planned sessions must be attended to
// end the term at the required percentage, and how many may still be missed.
func ComputeOutlook(summary schema.TermSummary, cfg schema.EngineConfig) schema.Outlook {
	remaining := max(0, cfg.EffectivePlannedSessions()-len(cfg.Sessions))
	total := float64(summary.TotalSessions + remaining)
	needed := int(math.Max(0, math.Ceil(cfg.RequiredPercentage*total-float64(summary.AttendedSessions)-1e-9)))
	out := schema.Outlook{
		SessionsRemaining: remaining,
		SessionsNeeded:    needed,
		Recoverable:       needed <= remaining,
	}
	if out.Recoverable {
		out.AbsenceBudget = remaining - needed
	}
	return out
}
