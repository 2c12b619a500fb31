package calculation

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Status is the traffic-light classification of a deviation.
type Status string

const (
	StatusGreen  Status = "green"
	StatusYellow Status = "yellow"
	StatusRed    Status = "red"
)

var hundred = decimal.NewFromInt(100)

// Classification is the result of Classify.
type Classification struct {
	Status           Status          `json:"status"`
	DeviationPercent decimal.Decimal `json:"deviation_percent"`
}

// DeviationPercent returns actual/planned×100. An unplanned total counts as
// fully met (100) so unplanned projects do not raise alarms.
func DeviationPercent(planned, actual decimal.Decimal) decimal.Decimal {
	if !planned.IsPositive() {
		return hundred
	}
	return actual.Div(planned).Mul(hundred)
}

// Classify maps planned and actual totals to a status using th. Green wins over
// yellow when the ranges overlap; anything outside yellow is red.
func Classify(planned, actual decimal.Decimal, th Thresholds) Classification {
	pct := DeviationPercent(planned, actual)
	status := StatusRed
	switch {
	case th.Green.Contains(pct):
		status = StatusGreen
	case th.Yellow.Contains(pct):
		status = StatusYellow
	}
	return Classification{Status: status, DeviationPercent: pct}
}

// Tendency tells whether a deviation is good news.
type Tendency string

const (
	TendencyFavorable   Tendency = "favorable"
	TendencyNeutral     Tendency = "neutral"
	TendencyUnfavorable Tendency = "unfavorable"
)

// Deviation compares a planned and an actual figure. Delta is planned − actual:
// a positive delta means less was spent than planned and is favorable.
type Deviation struct {
	Planned  decimal.Decimal `json:"planned"`
	Actual   decimal.Decimal `json:"actual"`
	Delta    decimal.Decimal `json:"delta"`
	Tendency Tendency        `json:"tendency"`
}

func NewDeviation(planned, actual decimal.Decimal) Deviation {
	delta := planned.Sub(actual)
	tendency := TendencyNeutral
	switch delta.Sign() {
	case 1:
		tendency = TendencyFavorable
	case -1:
		tendency = TendencyUnfavorable
	}
	return Deviation{Planned: planned, Actual: actual, Delta: delta, Tendency: tendency}
}

// Summary renders the deviation in words, e.g. "20.00 h under plan".
func (d Deviation) Summary(unit string) string {
	switch d.Tendency {
	case TendencyFavorable:
		return fmt.Sprintf("%s %s under plan", d.Delta.StringFixed(2), unit)
	case TendencyUnfavorable:
		return fmt.Sprintf("%s %s over plan", d.Delta.Abs().StringFixed(2), unit)
	default:
		return "on plan"
	}
}
