package calculation

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// RoundingRule selects how derived hours are turned into whole display values.
type RoundingRule string

const (
	RoundCommercial RoundingRule = "commercial"
	RoundUp         RoundingRule = "up"
	RoundDown       RoundingRule = "down"
)

// IsValid reports whether the rule is one of the known values.
func (r RoundingRule) IsValid() bool {
	switch r {
	case RoundCommercial, RoundUp, RoundDown:
		return true
	}
	return false
}

// Apply rounds hours to a whole number. Stored totals are never rounded; this is
// only used where a figure is displayed.
func (r RoundingRule) Apply(hours decimal.Decimal) decimal.Decimal {
	switch r {
	case RoundUp:
		return hours.Ceil()
	case RoundDown:
		return hours.Floor()
	default:
		// half away from zero
		return hours.Round(0)
	}
}

// Distribution splits planned hours between setup and teardown, in whole percent.
type Distribution struct {
	Setup    int `yaml:"setup" json:"setup"`
	Teardown int `yaml:"teardown" json:"teardown"`
}

// IsValid reports whether both shares are non-negative and add up to 100.
func (d Distribution) IsValid() bool {
	return d.Setup >= 0 && d.Teardown >= 0 && d.Setup+d.Teardown == 100
}

// Share returns the percent for the given activity.
func (d Distribution) Share(activity ActivityType) int {
	if activity.Normalize() == ActivityTeardown {
		return d.Teardown
	}
	return d.Setup
}

// ParseDistribution reads "SETUP/TEARDOWN" in whole percent, e.g. "70/30".
// The sum is checked by Parameters.Validate.
func ParseDistribution(s string) (Distribution, error) {
	setup, teardown, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok {
		return Distribution{}, invalid("distribution", "expected SETUP/TEARDOWN, got %q", s)
	}
	su, err := strconv.Atoi(strings.TrimSpace(setup))
	if err != nil {
		return Distribution{}, invalid("distribution", "bad setup share %q", setup)
	}
	td, err := strconv.Atoi(strings.TrimSpace(teardown))
	if err != nil {
		return Distribution{}, invalid("distribution", "bad teardown share %q", teardown)
	}
	return Distribution{Setup: su, Teardown: td}, nil
}

// Range is an inclusive percent range over actual/planned×100.
type Range struct {
	Min decimal.Decimal `yaml:"min" json:"min"`
	Max decimal.Decimal `yaml:"max" json:"max"`
}

// NewRange builds a range from integer percent bounds.
func NewRange(lo, hi int64) Range {
	return Range{Min: decimal.NewFromInt(lo), Max: decimal.NewFromInt(hi)}
}

// Contains reports whether percent lies within [Min, Max].
func (r Range) Contains(percent decimal.Decimal) bool {
	return percent.GreaterThanOrEqual(r.Min) && percent.LessThanOrEqual(r.Max)
}

// ParseRange reads "MIN-MAX" in percent, e.g. "95-105".
func ParseRange(s string) (Range, error) {
	lo, hi, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok {
		return Range{}, invalid("range", "expected MIN-MAX, got %q", s)
	}
	min, err := decimal.NewFromString(strings.TrimSpace(lo))
	if err != nil {
		return Range{}, invalid("range", "bad minimum %q", lo)
	}
	max, err := decimal.NewFromString(strings.TrimSpace(hi))
	if err != nil {
		return Range{}, invalid("range", "bad maximum %q", hi)
	}
	return Range{Min: min, Max: max}, nil
}

func (r Range) validate(field string) error {
	if r.Min.IsNegative() {
		return invalid(field, "min must be >= 0, got %s", r.Min)
	}
	if r.Min.GreaterThan(r.Max) {
		return invalid(field, "min %s exceeds max %s", r.Min, r.Max)
	}
	return nil
}

// Thresholds classify deviation percentages. Anything outside Yellow is red.
type Thresholds struct {
	Green  Range `yaml:"green" json:"green"`
	Yellow Range `yaml:"yellow" json:"yellow"`
}

// Parameters are the calculation defaults. They are loaded once per operation and
// passed explicitly into every derivation and classification.
type Parameters struct {
	HourlyRate   decimal.Decimal `yaml:"hourly_rate" json:"hourly_rate"`
	Distribution Distribution    `yaml:"distribution" json:"distribution"`
	RoundingRule RoundingRule    `yaml:"rounding_rule" json:"rounding_rule"`
	Thresholds   Thresholds      `yaml:"thresholds" json:"thresholds"`
	LastModified time.Time       `yaml:"last_modified" json:"last_modified"`
}

// DefaultParameters returns the factory settings used before anything is saved.
func DefaultParameters() Parameters {
	return Parameters{
		HourlyRate:   decimal.NewFromInt(72),
		Distribution: Distribution{Setup: 70, Teardown: 30},
		RoundingRule: RoundCommercial,
		Thresholds: Thresholds{
			Green:  NewRange(95, 105),
			Yellow: NewRange(90, 110),
		},
	}
}

// Validate checks every invariant of the parameter set.
func (p Parameters) Validate() error {
	if err := validateRate(p.HourlyRate); err != nil {
		return err
	}
	if p.Distribution.Setup < 0 || p.Distribution.Teardown < 0 {
		return invalid("distribution", "percentages must not be negative")
	}
	if p.Distribution.Setup+p.Distribution.Teardown != 100 {
		return invalid("distribution", "setup %d + teardown %d must equal 100", p.Distribution.Setup, p.Distribution.Teardown)
	}
	if !p.RoundingRule.IsValid() {
		return invalid("rounding_rule", "unknown rule %q", p.RoundingRule)
	}
	if err := p.Thresholds.Green.validate("thresholds.green"); err != nil {
		return err
	}
	return p.Thresholds.Yellow.validate("thresholds.yellow")
}

func validateRate(rate decimal.Decimal) error {
	if !rate.IsPositive() {
		return invalid("hourly_rate", "must be > 0, got %s", rate)
	}
	return nil
}

// ParametersPatch carries the fields of an update. Nil fields are left unchanged.
type ParametersPatch struct {
	HourlyRate   *decimal.Decimal `json:"hourly_rate,omitempty"`
	Distribution *Distribution    `json:"distribution,omitempty"`
	RoundingRule *RoundingRule    `json:"rounding_rule,omitempty"`
	Green        *Range           `json:"green,omitempty"`
	Yellow       *Range           `json:"yellow,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p ParametersPatch) IsEmpty() bool {
	return p.HourlyRate == nil && p.Distribution == nil && p.RoundingRule == nil && p.Green == nil && p.Yellow == nil
}

// Apply returns a patched copy stamped with now. The receiver is not modified, so a
// rejected patch leaves the current parameters intact.
func (p Parameters) Apply(patch ParametersPatch, now time.Time) (Parameters, error) {
	next := p
	if patch.HourlyRate != nil {
		next.HourlyRate = *patch.HourlyRate
	}
	if patch.Distribution != nil {
		next.Distribution = *patch.Distribution
	}
	if patch.RoundingRule != nil {
		next.RoundingRule = *patch.RoundingRule
	}
	if patch.Green != nil {
		next.Thresholds.Green = *patch.Green
	}
	if patch.Yellow != nil {
		next.Thresholds.Yellow = *patch.Yellow
	}
	if err := next.Validate(); err != nil {
		return p, err
	}
	next.LastModified = now
	return next, nil
}
