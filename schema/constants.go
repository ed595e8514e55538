package schema

// Custom string types for type safety.
type (
	// Source represents where a presence event came from.
	Source string

	// Status represents the resolved attendance status of a student in one session.
	Status string

	// StatusHint represents the optional status carried by a log record.
	StatusHint string

	// RiskLabel represents the bucket a risk score falls into.
	RiskLabel string

	// FeatureKey names one slot of the risk feature vector.
	FeatureKey string

	// OutputMode represents the format of the output.
	OutputMode string

	// DatabaseBackend represents the database backend for evaluation history.
	DatabaseBackend string
)

// All event sources supported.
const (
	LogSource    Source = "log"
	VisionSource Source = "vision"
)

// All attendance statuses supported.
const (
	PresentStatus Status = "present"
	LateStatus    Status = "late"
	AbsentStatus  Status = "absent"
	ExcusedStatus Status = "excused"
)

// All log status hints supported. An empty hint carries no information.
const (
	NoHint      StatusHint = ""
	PresentHint StatusHint = "present"
	LateHint    StatusHint = "late"
	AbsentHint  StatusHint = "absent"
	ExcusedHint StatusHint = "excused"
)

// All risk labels supported.
const (
	SafeLabel   RiskLabel = "safe"
	WatchLabel  RiskLabel = "watch"
	AtRiskLabel RiskLabel = "at_risk"
)

// Feature keys, declared in vector order.
const (
	FeaturePercentage        FeatureKey = "percentage"
	FeatureTrendSlope        FeatureKey = "trend_slope"
	FeatureLateRatio         FeatureKey = "late_ratio"
	FeatureSessionsRemaining FeatureKey = "sessions_remaining"
	FeatureMarginToThreshold FeatureKey = "margin_to_threshold"
	FeatureVolatility        FeatureKey = "volatility"
)

// FeatureVersion identifies the shape of the feature vector shared with predictors.
// Bump it whenever FeatureOrder changes.
const FeatureVersion = "v1"

// FeatureCount is the fixed length of the feature vector.
const FeatureCount = 6

// FeatureOrder is the declaration order of the feature vector. Explanation ties are
// broken by this order.
var FeatureOrder = [FeatureCount]FeatureKey{
	FeaturePercentage,
	FeatureTrendSlope,
	FeatureLateRatio,
	FeatureSessionsRemaining,
	FeatureMarginToThreshold,
	FeatureVolatility,
}

// All output modes supported.
const (
	CSVOut     OutputMode = "csv"
	TextOut    OutputMode = "text" // default
	JSONOut    OutputMode = "json"
	ParquetOut OutputMode = "parquet"
)

// All history backends supported.
const (
	SQLiteBackend     DatabaseBackend = "sqlite" // default
	MySQLBackend      DatabaseBackend = "mysql"
	PostgreSQLBackend DatabaseBackend = "postgresql"
	NoneBackend       DatabaseBackend = "none"
)

// AllRiskLabels returns the labels from least to most severe.
var AllRiskLabels = []RiskLabel{SafeLabel, WatchLabel, AtRiskLabel}

// ValidOutputModes lists all valid output modes.
var ValidOutputModes = map[OutputMode]struct{}{
	CSVOut:     {},
	TextOut:    {},
	JSONOut:    {},
	ParquetOut: {},
}

// ValidDatabaseBackends lists all valid history backends.
var ValidDatabaseBackends = map[DatabaseBackend]struct{}{
	SQLiteBackend:     {},
	MySQLBackend:      {},
	PostgreSQLBackend: {},
	NoneBackend:       {},
}

// ValidStatusHints lists all status hints a log record may carry.
var ValidStatusHints = map[StatusHint]struct{}{
	NoHint:      {},
	PresentHint: {},
	LateHint:    {},
	AbsentHint:  {},
	ExcusedHint: {},
}

// DefaultModelBias is the intercept of the rule model.
const DefaultModelBias = 1.0

// GetDefaultWeights returns the default coefficient for every feature of the rule model.
// Percentage, trend and margin coefficients are non-positive so that worse attendance
// never lowers the score.
func GetDefaultWeights() map[FeatureKey]float64 {
	return map[FeatureKey]float64{
		FeaturePercentage:        -2.0,
		FeatureTrendSlope:        -4.0,
		FeatureLateRatio:         1.0,
		FeatureSessionsRemaining: 0.5,
		FeatureMarginToThreshold: -12.0,
		FeatureVolatility:        1.5,
	}
}
