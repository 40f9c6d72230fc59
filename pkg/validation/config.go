// Package validation provides configuration validation utilities.
package validation

import (
	"fmt"
	"sort"
	"time"

	"github.com/iwvelando/premium-forecast/pkg/constants"
	"github.com/iwvelando/premium-forecast/pkg/datetime"
)

// Bounds of inputs that are accepted but unusual enough to warn about.
const (
	MinTypicalIPC = -50.0
	MaxTypicalIPC = 200.0
)

// ValidateConservativeFactor warns when factor is outside the usual range.
func ValidateConservativeFactor(factor float64) string {
	if factor < constants.MinTypicalConservativeFactor || factor > constants.MaxTypicalConservativeFactor {
		return fmt.Sprintf("Conservative factor %.3f is outside the typical range [%.2f, %.2f]",
			factor, constants.MinTypicalConservativeFactor, constants.MaxTypicalConservativeFactor)
	}
	return ""
}

// ValidateIPCAdjustment warns when the inflation adjustment looks implausible.
func ValidateIPCAdjustment(percent float64) string {
	if percent < MinTypicalIPC || percent > MaxTypicalIPC {
		return fmt.Sprintf("IPC adjustment %.1f%% is outside the typical range [%.0f%%, %.0f%%]",
			percent, MinTypicalIPC, MaxTypicalIPC)
	}
	return ""
}

// ValidateCutoff warns when the cutoff does not fall in the reference year.
func ValidateCutoff(referenceYear int, cutoff time.Time) string {
	if cutoff.IsZero() || cutoff.Year() == referenceYear {
		return ""
	}
	return fmt.Sprintf("Cutoff date %s is outside reference year %d",
		cutoff.Format(datetime.DayLayout), referenceYear)
}

// ConfigValidator collects the settings cross-checked for warnings.
type ConfigValidator struct {
	ReferenceYear      int
	Cutoff             time.Time
	ConservativeFactor float64
	IPCAdjustment      float64
	PhaseLine          string
	PhaseOnset         time.Time
	PhaseEnd           time.Time
	LineFactors        map[string]float64
}

// ValidateAll validates the entire configuration and returns warnings
func (cv *ConfigValidator) ValidateAll() []string {
	var warnings []string

	for _, w := range []string{
		ValidateConservativeFactor(cv.ConservativeFactor),
		ValidateIPCAdjustment(cv.IPCAdjustment),
		ValidateCutoff(cv.ReferenceYear, cv.Cutoff),
	} {
		if w != "" {
			warnings = append(warnings, w)
		}
	}

	if f, ok := cv.LineFactors[cv.PhaseLine]; ok && cv.PhaseLine != "" && f != 1 {
		warnings = append(warnings, fmt.Sprintf(
			"Line '%s' has a flat factor of %.2f on top of its phase factors; confirm the extra dampening is intended",
			cv.PhaseLine, f))
	}

	lines := make([]string, 0, len(cv.LineFactors))
	for line := range cv.LineFactors {
		lines = append(lines, line)
	}
	sort.Strings(lines)
	for _, line := range lines {
		f := cv.LineFactors[line]
		if f < constants.MinTypicalConservativeFactor || f > constants.MaxTypicalConservativeFactor {
			warnings = append(warnings, fmt.Sprintf("Line '%s' factor %.3f is outside the typical range", line, f))
		}
	}

	if !cv.PhaseOnset.IsZero() && cv.ReferenceYear != 0 {
		if cv.PhaseEnd.Year() < cv.ReferenceYear-1 || cv.PhaseOnset.Year() > cv.ReferenceYear+1 {
			warnings = append(warnings, fmt.Sprintf(
				"Phase window %s to %s is far from reference year %d and will not adjust its forecast",
				cv.PhaseOnset.Format(datetime.DayLayout), cv.PhaseEnd.Format(datetime.DayLayout), cv.ReferenceYear))
		}
	}

	return warnings
}
