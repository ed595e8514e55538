package schema

// EnrichedRiskReport adds presentation data to a RiskReport.
type EnrichedRiskReport struct {
	Rank int `json:"rank"`
	RiskReport
}

// EnrichReports adds rank to a list of ranked reports.
func EnrichReports(reports []RiskReport) []EnrichedRiskReport {
	output := make([]EnrichedRiskReport, len(reports))
	for i, r := range reports {
		output[i] = EnrichedRiskReport{
			Rank:       i + 1,
			RiskReport: r,
		}
	}
	return output
}

// ModelFactor describes one coefficient of the rule model.
type ModelFactor struct {
	Feature     FeatureKey `json:"feature"`
	Weight      float64    `json:"weight"`
	Description string     `json:"description"`
}

// ModelRenderModel is the presentation of the active risk model.
type ModelRenderModel struct {
	Description string        `json:"description"`
	Version     string        `json:"version"`
	Formula     string        `json:"formula"`
	Bias        float64       `json:"bias"`
	Factors     []ModelFactor `json:"factors"`
	Cutoffs     RiskCutoffs   `json:"cutoffs"`
	Required    float64       `json:"required_percentage"`
}

// TopFactor returns the name of the strongest explanation factor, if any.
func TopFactor(r RiskReport) *string {
	if len(r.Explanation) == 0 {
		return nil
	}
	name := string(r.Explanation[0].Factor)
	return &name
}
