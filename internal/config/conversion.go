package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/iwvelando/premium-forecast/pkg/phase"
)

// PhaseConfig describes the disruption window in config files. Unset fields
// keep the values of phase.DefaultConfig.
type PhaseConfig struct {
	Line           string `yaml:"line,omitempty" mapstructure:"line"`
	Onset          string `yaml:"onset,omitempty" mapstructure:"onset"`
	FirstRoundEnd  string `yaml:"firstRoundEnd,omitempty" mapstructure:"firstroundend"`
	SecondRoundEnd string `yaml:"secondRoundEnd,omitempty" mapstructure:"secondroundend"`
	UseSecondRound *bool  `yaml:"useSecondRound,omitempty" mapstructure:"usesecondround"`
	LookbackMonths *int   `yaml:"lookbackMonths,omitempty" mapstructure:"lookbackmonths"`
	PostMonths     *int   `yaml:"postMonths,omitempty" mapstructure:"postmonths"`
	RecoveryMonths *int   `yaml:"recoveryMonths,omitempty" mapstructure:"recoverymonths"`

	// Factors override the default factor of a phase, keyed by phase tag.
	Factors map[string]phase.Factor `yaml:"factors,omitempty" mapstructure:"factors"`

	// LineFactors are flat multipliers for whole lines. They are a list
	// because line names are case sensitive and config keys are not.
	LineFactors []LineFactor `yaml:"lineFactors,omitempty" mapstructure:"linefactors"`
}

// LineFactor is a flat multiplier for one business line.
type LineFactor struct {
	Line   string  `yaml:"line" mapstructure:"line"`
	Factor float64 `yaml:"factor" mapstructure:"factor"`
}

func (p *PhaseConfig) normalize() error {
	p.Line = strings.TrimSpace(p.Line)
	for i := range p.LineFactors {
		p.LineFactors[i].Line = strings.TrimSpace(p.LineFactors[i].Line)
	}
	for tag := range p.Factors {
		if !knownTag(phase.Tag(tag)) {
			return fmt.Errorf("unknown phase %q in phase.factors", tag)
		}
	}
	return nil
}

func knownTag(tag phase.Tag) bool {
	for _, t := range phase.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// ToPhaseConfig converts the configured window into a validated
// phase.Config.
func (p PhaseConfig) ToPhaseConfig() (phase.Config, error) {
	cfg := phase.DefaultConfig()
	if p.Line != "" {
		cfg.Line = p.Line
	}

	dates := []struct {
		name  string
		value string
		dst   *time.Time
	}{
		{"phase.onset", p.Onset, &cfg.Onset},
		{"phase.firstRoundEnd", p.FirstRoundEnd, &cfg.FirstRoundEnd},
		{"phase.secondRoundEnd", p.SecondRoundEnd, &cfg.SecondRoundEnd},
	}
	for _, d := range dates {
		if d.value == "" {
			continue
		}
		t, err := time.Parse(DayLayout, strings.TrimSpace(d.value))
		if err != nil {
			return phase.Config{}, fmt.Errorf("invalid %s %q: %w", d.name, d.value, err)
		}
		*d.dst = t
	}

	if p.UseSecondRound != nil {
		cfg.UseSecondRound = *p.UseSecondRound
	}
	if p.LookbackMonths != nil {
		cfg.LookbackMonths = *p.LookbackMonths
	}
	if p.PostMonths != nil {
		cfg.PostMonths = *p.PostMonths
	}
	if p.RecoveryMonths != nil {
		cfg.RecoveryMonths = *p.RecoveryMonths
	}

	for tag, f := range p.Factors {
		if !knownTag(phase.Tag(tag)) {
			return phase.Config{}, fmt.Errorf("unknown phase %q in phase.factors", tag)
		}
		if f.Description == "" {
			f.Description = cfg.Factors[phase.Tag(tag)].Description
		}
		cfg.Factors[phase.Tag(tag)] = f
	}

	if len(p.LineFactors) > 0 {
		cfg.LineFactors = make(map[string]float64, len(p.LineFactors))
		for _, lf := range p.LineFactors {
			if lf.Line == "" {
				return phase.Config{}, fmt.Errorf("phase.lineFactors entry without a line")
			}
			cfg.LineFactors[lf.Line] = lf.Factor
		}
	}

	if err := cfg.Validate(); err != nil {
		return phase.Config{}, err
	}
	return cfg, nil
}

// Calendar builds the phase calendar described by the configuration.
func (c *Configuration) Calendar() (*phase.Calendar, error) {
	cfg, err := c.Phase.ToPhaseConfig()
	if err != nil {
		return nil, err
	}
	return phase.NewCalendar(cfg)
}
