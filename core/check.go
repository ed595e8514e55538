package core

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/attendrisk/attendrisk/internal/contract"
	"github.com/attendrisk/attendrisk/schema"
)

// maxListedViolations caps how many at-risk students the check output names.
const maxListedViolations = 5

// CheckResult is the outcome of a policy check over one evaluation.
type CheckResult struct {
	Passed    bool
	MaxAtRisk int
	Counts    map[schema.RiskLabel]int
	AtRisk    []schema.RiskReport
	Total     int
}

// ExecuteCheck evaluates the term and fails when more students are at risk than
// allowed. It is meant for scheduled jobs that alert on a non-zero exit code.
func ExecuteCheck(ctx context.Context, cfg *contract.Config, mgr contract.HistoryManager) error {
	start := time.Now()
	// A partial result cannot prove the term is within the limit
	result, err := GetEvaluationResults(ctx, cfg, mgr)
	if err != nil {
		return err
	}
	check := BuildCheckResult(result, cfg.MaxAtRisk)
	if err := printCheckResult(os.Stdout, check, time.Since(start)); err != nil {
		return err
	}
	if !check.Passed {
		return fmt.Errorf("%d student(s) at risk, limit is %d", len(check.AtRisk), check.MaxAtRisk)
	}
	return nil
}

// BuildCheckResult compares the at-risk count against the limit. A negative limit
// never fails.
func BuildCheckResult(result *schema.BatchResult, maxAtRisk int) *CheckResult {
	check := &CheckResult{
		MaxAtRisk: maxAtRisk,
		Counts:    result.CountByLabel(),
		Total:     len(result.Reports),
	}
	for _, r := range result.Reports {
		if r.RiskLabel == schema.AtRiskLabel {
			check.AtRisk = append(check.AtRisk, r)
		}
	}
	check.Passed = maxAtRisk < 0 || len(check.AtRisk) <= maxAtRisk
	return check
}

// printCheckResult prints the check result in a concise format suitable for alerting.
func printCheckResult(w io.Writer, result *CheckResult, duration time.Duration) error {
	if _, err := fmt.Fprintf(w, "Attendance Check Results:\n"); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "  Students:  %d\n", result.Total); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "  Labels:    safe=%d, watch=%d, at_risk=%d\n",
		result.Counts[schema.SafeLabel], result.Counts[schema.WatchLabel], result.Counts[schema.AtRiskLabel]); err != nil {
		return err
	}
	limit := "none"
	if result.MaxAtRisk >= 0 {
		limit = fmt.Sprintf("%d", result.MaxAtRisk)
	}
	if _, err := fmt.Fprintf(w, "  Limit:     %s\n\nChecked in %v\n\n", limit, duration); err != nil {
		return err
	}

	if result.Passed {
		_, err := fmt.Fprintf(w, "✅ At-risk count within limit\n")
		return err
	}

	if _, err := fmt.Fprintf(w, "❌ Check failed: %d student(s) at risk\n", len(result.AtRisk)); err != nil {
		return err
	}
	for i, r := range result.AtRisk {
		if i == maxListedViolations {
			_, err := fmt.Fprintf(w, "  ... and %d more\n", len(result.AtRisk)-i)
			return err
		}
		reason := "no explanation"
		if len(r.Explanation) > 0 {
			reason = r.Explanation[0].Text
		}
		if _, err := fmt.Fprintf(w, "  - %s (score: %.2f, %s)\n", r.StudentID, r.RiskScore, reason); err != nil {
			return err
		}
	}
	return nil
}
