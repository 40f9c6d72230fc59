// Package phase classifies dates into the phases of a known business
// disruption and applies the matching multiplicative factors to forecasts.
package phase

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/iwvelando/premium-forecast/pkg/constants"
	"github.com/iwvelando/premium-forecast/pkg/datetime"
)

// Tag names a phase.
type Tag string

// Phases in classification priority order.
const (
	PreDisruption    Tag = "pre_disruption"
	ActiveDisruption Tag = "active_disruption"
	PostDisruption   Tag = "post_disruption"
	Recovery         Tag = "recovery"
	Normal           Tag = "normal"
)

// Tags lists every phase in priority order.
var Tags = []Tag{PreDisruption, ActiveDisruption, PostDisruption, Recovery, Normal}

// Title renders the tag for people ("Pre Disruption").
func (t Tag) Title() string {
	words := strings.Split(string(t), "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

// ErrLengthMismatch is returned when values and dates differ in length.
var ErrLengthMismatch = errors.New("phase: values and dates differ in length")

// Factor is the multiplier and description of one phase.
type Factor struct {
	Value       float64 `mapstructure:"factor" json:"factor" yaml:"factor"`
	Description string  `mapstructure:"description" json:"description" yaml:"description"`
}

// Config describes a disruption window. It is copied by NewCalendar and never
// modified afterwards.
type Config struct {
	// Line is the business line the phase factors apply to.
	Line string

	Onset          time.Time
	FirstRoundEnd  time.Time
	SecondRoundEnd time.Time
	UseSecondRound bool

	LookbackMonths int
	PostMonths     int
	RecoveryMonths int

	Factors map[Tag]Factor

	// LineFactors are flat multipliers applied to whole lines after any
	// phase factor.
	LineFactors map[string]float64
}

// DefaultConfig returns the 2026 guarantees-law window, which restricts
// direct public contracting ahead of the presidential election.
func DefaultConfig() Config {
	return Config{
		Line:           constants.DefaultPhaseLine,
		Onset:          datetime.Date(2026, time.January, 31),
		FirstRoundEnd:  datetime.Date(2026, time.May, 24),
		SecondRoundEnd: datetime.Date(2026, time.June, 21),
		UseSecondRound: true,
		LookbackMonths: 1,
		PostMonths:     2,
		RecoveryMonths: 3,
		Factors:        DefaultFactors(),
	}
}

// DefaultFactors returns the factor and description of every phase.
func DefaultFactors() map[Tag]Factor {
	return map[Tag]Factor{
		PreDisruption:    {Value: 1.10, Description: "Contracting accelerates ahead of the restriction"},
		ActiveDisruption: {Value: 0.60, Description: "Direct public contracting restricted"},
		PostDisruption:   {Value: 1.15, Description: "Deferred contracts are released"},
		Recovery:         {Value: 1.05, Description: "Gradual return to the usual pace"},
		Normal:           {Value: 1.0, Description: "Normal operation without restrictions"},
	}
}

// End returns the active end date.
func (c Config) End() time.Time {
	if c.UseSecondRound {
		return c.SecondRoundEnd
	}
	return c.FirstRoundEnd
}

// Validate checks the window and factors.
func (c Config) Validate() error {
	if c.Onset.IsZero() {
		return fmt.Errorf("phase: onset date is required")
	}
	end := c.End()
	if end.IsZero() {
		return fmt.Errorf("phase: active end date is required")
	}
	if end.Before(c.Onset) {
		return fmt.Errorf("phase: end %s is before onset %s", end.Format(datetime.DayLayout), c.Onset.Format(datetime.DayLayout))
	}
	if c.LookbackMonths < 0 || c.PostMonths < 0 || c.RecoveryMonths < 0 {
		return fmt.Errorf("phase: window lengths cannot be negative")
	}
	for tag, f := range c.Factors {
		if !validFactor(f.Value) {
			return fmt.Errorf("phase: factor for %s must be a non-negative number, got %v", tag, f.Value)
		}
	}
	for line, f := range c.LineFactors {
		if !validFactor(f) {
			return fmt.Errorf("phase: factor for line %q must be a non-negative number, got %v", line, f)
		}
	}
	return nil
}

func validFactor(f float64) bool {
	return f >= 0 && !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Phase is the classification of a date.
type Phase struct {
	Tag         Tag     `json:"tag"`
	Factor      float64 `json:"factor"`
	Description string  `json:"description"`
}

// Calendar classifies dates against an immutable Config.
type Calendar struct {
	cfg         Config
	end         time.Time
	preStart    time.Time
	postEnd     time.Time
	recoveryEnd time.Time
}

// NewCalendar validates cfg and builds a calendar from a copy of it. Phases
// missing from cfg.Factors take their defaults.
func NewCalendar(cfg Config) (*Calendar, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	factors := DefaultFactors()
	for tag, f := range cfg.Factors {
		factors[tag] = f
	}
	// The normal phase never adjusts.
	factors[Normal] = Factor{Value: 1.0, Description: factors[Normal].Description}
	cfg.Factors = factors

	lineFactors := make(map[string]float64, len(cfg.LineFactors))
	for line, f := range cfg.LineFactors {
		lineFactors[line] = f
	}
	cfg.LineFactors = lineFactors

	end := cfg.End()
	postEnd := datetime.AddMonths(end, cfg.PostMonths)
	return &Calendar{
		cfg:         cfg,
		end:         end,
		preStart:    datetime.AddMonths(cfg.Onset, -cfg.LookbackMonths),
		postEnd:     postEnd,
		recoveryEnd: datetime.AddMonths(postEnd, cfg.RecoveryMonths),
	}, nil
}

// Line returns the business line the phase factors apply to.
func (c *Calendar) Line() string {
	return c.cfg.Line
}

// End returns the active end date.
func (c *Calendar) End() time.Time {
	return c.end
}

// Config returns a copy of the calendar configuration.
func (c *Calendar) Config() Config {
	cfg := c.cfg
	cfg.Factors = make(map[Tag]Factor, len(c.cfg.Factors))
	for tag, f := range c.cfg.Factors {
		cfg.Factors[tag] = f
	}
	cfg.LineFactors = make(map[string]float64, len(c.cfg.LineFactors))
	for line, f := range c.cfg.LineFactors {
		cfg.LineFactors[line] = f
	}
	return cfg
}

// LineFactor returns the flat factor configured for line.
func (c *Calendar) LineFactor(line string) (float64, bool) {
	f, ok := c.cfg.LineFactors[line]
	return f, ok
}

// Classify returns the phase of date. Phases are checked in priority order:
// pre-disruption [onset-lookback, onset), active [onset, end],
// post-disruption (end, end+post] and recovery (end+post, end+post+recovery].
func (c *Calendar) Classify(date time.Time) Phase {
	onset := c.cfg.Onset
	switch {
	case !date.Before(c.preStart) && date.Before(onset):
		return c.phase(PreDisruption)
	case !date.Before(onset) && !date.After(c.end):
		return c.phase(ActiveDisruption)
	case date.After(c.end) && !date.After(c.postEnd):
		return c.phase(PostDisruption)
	case date.After(c.postEnd) && !date.After(c.recoveryEnd):
		return c.phase(Recovery)
	default:
		return c.phase(Normal)
	}
}

func (c *Calendar) phase(tag Tag) Phase {
	f := c.cfg.Factors[tag]
	return Phase{Tag: tag, Factor: f.Value, Description: f.Description}
}

// Adjust multiplies each value by the factor of the date at the same
// position.
func (c *Calendar) Adjust(values []float64, dates []time.Time) ([]float64, error) {
	if len(values) != len(dates) {
		return nil, fmt.Errorf("%w: %d values, %d dates", ErrLengthMismatch, len(values), len(dates))
	}
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = v * c.Classify(dates[i]).Factor
	}
	return out, nil
}

// AdjustLine applies every line-specific adjustment to a forecast of line:
// the phase factors when line is the calendar's line, then the flat factor
// configured for line, if any. Other lines are returned unchanged.
func (c *Calendar) AdjustLine(line string, values []float64, dates []time.Time) ([]float64, error) {
	if len(values) != len(dates) {
		return nil, fmt.Errorf("%w: %d values, %d dates", ErrLengthMismatch, len(values), len(dates))
	}

	out := append([]float64(nil), values...)
	if line == c.cfg.Line {
		adjusted, err := c.Adjust(values, dates)
		if err != nil {
			return nil, err
		}
		out = adjusted
	}
	if f, ok := c.cfg.LineFactors[line]; ok {
		for i := range out {
			out[i] *= f
		}
	}
	return out, nil
}

// ImpactRow is one month of the impact summary.
type ImpactRow struct {
	Month       time.Time `json:"month"`
	Tag         Tag       `json:"tag"`
	Factor      float64   `json:"factor"`
	Impact      string    `json:"impact"`
	Description string    `json:"description"`
}

// ImpactSummary classifies every month start of year.
func (c *Calendar) ImpactSummary(year int) []ImpactRow {
	months := datetime.MonthsOfYear(year)
	rows := make([]ImpactRow, len(months))
	for i, m := range months {
		p := c.Classify(m)
		rows[i] = ImpactRow{
			Month:       m,
			Tag:         p.Tag,
			Factor:      p.Factor,
			Impact:      ImpactText(p.Factor),
			Description: p.Description,
		}
	}
	return rows
}

// ImpactText describes a factor as a percentage change.
func ImpactText(factor float64) string {
	switch {
	case factor < 1:
		return fmt.Sprintf("%.0f%% reduction", (1-factor)*constants.PercentageMultiplier)
	case factor > 1:
		return fmt.Sprintf("+%.0f%% increase", (factor-1)*constants.PercentageMultiplier)
	default:
		return "No change"
	}
}
