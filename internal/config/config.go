// Package config defines the data structures related to configuration and
// includes functions for loading, normalizing and validating it.
package config

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/iwvelando/premium-forecast/pkg/constants"
	"github.com/iwvelando/premium-forecast/pkg/datetime"
	"github.com/iwvelando/premium-forecast/pkg/mathutil"
	"github.com/iwvelando/premium-forecast/pkg/phase"
	"github.com/iwvelando/premium-forecast/pkg/validation"
	"github.com/spf13/viper"
)

// DayLayout is the format of every date in config files.
const DayLayout = constants.DayLayout

// Summary views.
const (
	ViewMonth      = "month"
	ViewYear       = "year"
	ViewCumulative = "cumulative"
)

// Configuration holds all configuration for premium-forecast.
type Configuration struct {
	Logging  LoggingConfig  `yaml:"logging,omitempty" mapstructure:"logging"`
	Output   OutputConfig   `yaml:"output,omitempty" mapstructure:"output"`
	Data     DataConfig     `yaml:"data" mapstructure:"data"`
	Forecast ForecastConfig `yaml:"forecast" mapstructure:"forecast"`
	Budget   BudgetConfig   `yaml:"budget,omitempty" mapstructure:"budget"`
	Phase    PhaseConfig    `yaml:"phase,omitempty" mapstructure:"phase"`
}

// LoggingConfig holds logging configuration options
type LoggingConfig struct {
	Level      string `yaml:"level,omitempty" mapstructure:"level"`           // debug, info, warn, error
	Format     string `yaml:"format,omitempty" mapstructure:"format"`         // json, console
	OutputFile string `yaml:"outputFile,omitempty" mapstructure:"outputfile"` // optional file output
}

// OutputConfig holds output format configuration options
type OutputConfig struct {
	Format string `yaml:"format,omitempty" mapstructure:"format"` // pretty, csv
}

// DataConfig selects where premium records are read from.
type DataConfig struct {
	Source string `yaml:"source" mapstructure:"source"` // csv, postgres
	Path   string `yaml:"path,omitempty" mapstructure:"path"`
	DSN    string `yaml:"dsn,omitempty" mapstructure:"dsn"`
	Query  string `yaml:"query,omitempty" mapstructure:"query"`
}

// ForecastConfig holds the parameters of a forecast run.
type ForecastConfig struct {
	ReferenceYear int    `yaml:"referenceYear" mapstructure:"referenceyear"`
	Cutoff        string `yaml:"cutoff" mapstructure:"cutoff"` // YYYY-MM-DD
	// ConservativeAdjustment is a percentage applied to every forecast
	// (-5 means forecasts are multiplied by 0.95).
	ConservativeAdjustment float64 `yaml:"conservativeAdjustment" mapstructure:"conservativeadjustment"`
	EvalMonths             int     `yaml:"evalMonths,omitempty" mapstructure:"evalmonths"`
	// Steps is the horizon in months; zero derives it from the last closed
	// month so the forecast reaches December.
	Steps        int    `yaml:"steps,omitempty" mapstructure:"steps"`
	View         string `yaml:"view,omitempty" mapstructure:"view"`
	Workers      int    `yaml:"workers,omitempty" mapstructure:"workers"`
	CacheEntries int    `yaml:"cacheEntries,omitempty" mapstructure:"cacheentries"`

	CutoffDate time.Time `yaml:"-" mapstructure:"-"`
}

// BudgetConfig holds the parameters of the annual budget.
type BudgetConfig struct {
	TargetYear    int     `yaml:"targetYear,omitempty" mapstructure:"targetyear"`
	IPCAdjustment float64 `yaml:"ipcAdjustment" mapstructure:"ipcadjustment"`
}

// LoadConfiguration takes a file path as input and loads the YAML-formatted
// configuration there.
func LoadConfiguration(configPath string) (*Configuration, error) {
	v := newViper()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file, %w", err)
	}
	return decode(v)
}

// LoadConfigurationFromReader loads a YAML-formatted configuration from r.
func LoadConfigurationFromReader(r io.Reader) (*Configuration, error) {
	v := newViper()
	if err := v.ReadConfig(r); err != nil {
		return nil, fmt.Errorf("error reading config, %w", err)
	}
	return decode(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yml")
	v.SetEnvPrefix(constants.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// setDefaults registers every overridable key so environment variables such
// as PREMIUM_FORECAST_FORECAST_CUTOFF are seen by Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "")
	v.SetDefault("logging.format", "")
	v.SetDefault("logging.outputfile", "")
	v.SetDefault("output.format", constants.OutputFormatPretty)
	v.SetDefault("data.source", constants.DataSourceCSV)
	v.SetDefault("data.path", "")
	v.SetDefault("data.dsn", "")
	v.SetDefault("data.query", "")
	v.SetDefault("forecast.referenceyear", 0)
	v.SetDefault("forecast.cutoff", "")
	v.SetDefault("forecast.conservativeadjustment", 0.0)
	v.SetDefault("forecast.evalmonths", constants.DefaultEvalMonths)
	v.SetDefault("forecast.steps", 0)
	v.SetDefault("forecast.view", ViewYear)
	v.SetDefault("forecast.workers", constants.DefaultWorkers)
	v.SetDefault("forecast.cacheentries", constants.DefaultFitCacheEntries)
	v.SetDefault("budget.targetyear", 0)
	v.SetDefault("budget.ipcadjustment", constants.DefaultIPCAdjustment)
	v.SetDefault("phase.line", constants.DefaultPhaseLine)
}

func decode(v *viper.Viper) (*Configuration, error) {
	var configuration Configuration
	if err := v.Unmarshal(&configuration); err != nil {
		return nil, fmt.Errorf("unable to decode into struct, %w", err)
	}
	return &configuration, nil
}

// Clone returns a copy of c that shares no mutable state with it.
func (c *Configuration) Clone() *Configuration {
	out := *c
	out.Phase.LineFactors = append([]LineFactor(nil), c.Phase.LineFactors...)
	if c.Phase.Factors != nil {
		out.Phase.Factors = make(map[string]phase.Factor, len(c.Phase.Factors))
		for tag, f := range c.Phase.Factors {
			out.Phase.Factors[tag] = f
		}
	}
	return &out
}

// Normalize fills in defaults and parses dates, using the current time for
// an unset cutoff.
func (c *Configuration) Normalize() error {
	return c.NormalizeWithFixedTime(time.Now())
}

// NormalizeWithFixedTime is Normalize with an injectable current time.
func (c *Configuration) NormalizeWithFixedTime(now time.Time) error {
	if c.Output.Format == "" {
		c.Output.Format = constants.OutputFormatPretty
	}
	if c.Data.Source == "" {
		c.Data.Source = constants.DataSourceCSV
	}

	f := &c.Forecast
	if f.Cutoff == "" {
		f.CutoffDate = datetime.Date(now.Year(), now.Month(), now.Day())
		f.Cutoff = f.CutoffDate.Format(DayLayout)
	} else {
		t, err := time.Parse(DayLayout, strings.TrimSpace(f.Cutoff))
		if err != nil {
			return fmt.Errorf("invalid forecast cutoff %q: %w", f.Cutoff, err)
		}
		f.CutoffDate = t
	}
	if f.ReferenceYear == 0 {
		f.ReferenceYear = f.CutoffDate.Year()
	}
	if f.EvalMonths == 0 {
		f.EvalMonths = constants.DefaultEvalMonths
	}
	if f.View == "" {
		f.View = ViewYear
	}
	f.View = strings.ToLower(f.View)
	if f.Workers == 0 {
		f.Workers = constants.DefaultWorkers
	}

	if c.Budget.TargetYear == 0 {
		c.Budget.TargetYear = f.ReferenceYear + 1
	}

	return c.Phase.normalize()
}

// Validate returns the first hard configuration error.
func (c *Configuration) Validate() error {
	if err := validation.ValidateOutputFormat(c.Output.Format); err != nil {
		return err
	}
	if err := validation.ValidateDataSource(c.Data.Source); err != nil {
		return err
	}
	switch c.Data.Source {
	case constants.DataSourceCSV:
		if c.Data.Path == "" {
			return fmt.Errorf("data.path is required for the %s source", constants.DataSourceCSV)
		}
	case constants.DataSourcePostgres:
		if c.Data.DSN == "" || c.Data.Query == "" {
			return fmt.Errorf("data.dsn and data.query are required for the %s source", constants.DataSourcePostgres)
		}
	}

	f := c.Forecast
	if f.CutoffDate.IsZero() {
		return fmt.Errorf("forecast cutoff is not set; call Normalize first")
	}
	if f.EvalMonths < 1 {
		return fmt.Errorf("forecast.evalMonths must be positive, got %d", f.EvalMonths)
	}
	if f.Steps < 0 {
		return fmt.Errorf("forecast.steps cannot be negative, got %d", f.Steps)
	}
	if f.Workers < 1 {
		return fmt.Errorf("forecast.workers must be positive, got %d", f.Workers)
	}
	if f.CacheEntries < 0 {
		return fmt.Errorf("forecast.cacheEntries cannot be negative, got %d", f.CacheEntries)
	}
	if c.ConservativeFactor() <= 0 {
		return fmt.Errorf("forecast.conservativeAdjustment must stay above -100%%, got %.1f", f.ConservativeAdjustment)
	}
	switch f.View {
	case ViewMonth, ViewYear, ViewCumulative:
	default:
		return fmt.Errorf("expected forecast view of %s, %s or %s, got %s", ViewMonth, ViewYear, ViewCumulative, f.View)
	}

	if _, err := c.Phase.ToPhaseConfig(); err != nil {
		return err
	}
	return nil
}

// ConservativeFactor converts the conservative adjustment into a multiplier.
func (c *Configuration) ConservativeFactor() float64 {
	return mathutil.PercentToFactor(c.Forecast.ConservativeAdjustment)
}

// ValidateConfiguration performs general validation of the configuration and returns warnings
func (c *Configuration) ValidateConfiguration() []string {
	cv := validation.ConfigValidator{
		ReferenceYear:      c.Forecast.ReferenceYear,
		Cutoff:             c.Forecast.CutoffDate,
		ConservativeFactor: c.ConservativeFactor(),
		IPCAdjustment:      c.Budget.IPCAdjustment,
	}
	if pc, err := c.Phase.ToPhaseConfig(); err == nil {
		cv.PhaseLine = pc.Line
		cv.PhaseOnset = pc.Onset
		cv.PhaseEnd = pc.End()
		cv.LineFactors = pc.LineFactors
	}
	return cv.ValidateAll()
}
