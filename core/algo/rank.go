package algo

import (
	"cmp"
	"slices"

	"github.com/attendrisk/attendrisk/schema"
)

// RankReports sorts reports by risk score in descending order, breaking ties by
// student ID, and returns the top 'limit' reports. A limit of zero or less keeps all.
func RankReports(reports []schema.RiskReport, limit int) []schema.RiskReport {
	slices.SortStableFunc(reports, func(a, b schema.RiskReport) int {
		if c := cmp.Compare(b.RiskScore, a.RiskScore); c != 0 {
			return c
		}
		return cmp.Compare(a.StudentID, b.StudentID)
	})
	if limit > 0 && len(reports) > limit {
		return reports[:limit]
	}
	return reports
}

// FilterByLabel keeps the reports whose label is at least as severe as minLabel.
func FilterByLabel(reports []schema.RiskReport, minLabel schema.RiskLabel) []schema.RiskReport {
	floor := slices.Index(schema.AllRiskLabels, minLabel)
	if floor <= 0 {
		return reports
	}
	out := make([]schema.RiskReport, 0, len(reports))
	for _, r := range reports {
		if slices.Index(schema.AllRiskLabels, r.RiskLabel) >= floor {
			out = append(out, r)
		}
	}
	return out
}
