// Package constants provides shared constants for the premium-forecast application.
package constants

// DateTimeLayout is the month format used in configuration files and in
// rendered output.
const DateTimeLayout = "2006-01"

// DayLayout is the full date format used for cutoff dates and phase calendar
// boundaries.
const DayLayout = "2006-01-02"

// Calendar constants
const (
	// MonthsPerYear is the number of months in a year
	MonthsPerYear = 12

	// SeasonalPeriod is the seasonal cycle length of the monthly premium series
	SeasonalPeriod = 12
)

// Forecast model defaults
const (
	// DefaultEvalMonths is the number of trailing origins evaluated by the
	// rolling-origin backtest
	DefaultEvalMonths = 6

	// MinBacktestHistory is the number of months required before the first
	// evaluable backtest origin
	MinBacktestHistory = 12

	// DefaultConservativeFactor leaves forecasts untouched
	DefaultConservativeFactor = 1.0

	// ConfidenceLevel is the two-sided coverage of forecast intervals
	ConfidenceLevel = 0.95

	// SMAPEEpsilon keeps SMAPE finite when both values are zero
	SMAPEEpsilon = 1e-9

	// DefaultWorkers bounds the number of concurrent per-line model fits
	DefaultWorkers = 4

	// DefaultFitCacheEntries bounds the in-memory fit cache
	DefaultFitCacheEntries = 256
)

// Budget defaults
const (
	// MinBudgetObservations is the minimum number of monthly observations
	// needed before a regression model is trained
	MinBudgetObservations = 3

	// BudgetAverageWindow is the number of trailing months averaged by the
	// fallback budget path
	BudgetAverageWindow = 6

	// DefaultIPCAdjustment is the default inflation adjustment in percent
	DefaultIPCAdjustment = 4.5
)

// Line names
const (
	// ConsolidatedLine is the name of the synthetic line summing every
	// business line
	ConsolidatedLine = "TOTAL"

	// DefaultPhaseLine is the business line the default phase calendar adjusts
	DefaultPhaseLine = "FIANZAS"
)

// Output format constants
const (
	// OutputFormatPretty is the human-readable output format
	OutputFormatPretty = "pretty"

	// OutputFormatCSV is the CSV output format
	OutputFormatCSV = "csv"
)

// Data source constants
const (
	// DataSourceCSV reads records from a CSV export
	DataSourceCSV = "csv"

	// DataSourcePostgres reads records from a PostgreSQL table
	DataSourcePostgres = "postgres"
)

// Configuration file constants
const (
	// DefaultConfigFile is the default configuration file name
	DefaultConfigFile = "config.yaml"

	// ExampleConfigFile is the example configuration file name
	ExampleConfigFile = "config.yaml.example"

	// DefaultServerConfigFile is the default server configuration file name
	DefaultServerConfigFile = "server-config.yaml"

	// EnvPrefix prefixes environment overrides of configuration keys
	EnvPrefix = "PREMIUM_FORECAST"
)

// Server configuration defaults
const (
	// DefaultServerAddress is the default HTTP listen address
	DefaultServerAddress = ":8080"

	// DefaultMaxUploadSizeBytes is the default maximum upload size for record files (8 MB)
	DefaultMaxUploadSizeBytes int64 = 8 * 1024 * 1024
)

// Validation constants
const (
	// CurrencyTolerance is the tolerance for currency comparisons
	CurrencyTolerance = 0.01

	// PercentageMultiplier is used for percentage conversions
	PercentageMultiplier = 100.0

	// MinTypicalConservativeFactor and MaxTypicalConservativeFactor bound the
	// conservative factors that do not raise a configuration warning
	MinTypicalConservativeFactor = 0.8
	MaxTypicalConservativeFactor = 1.1
)
