package calculation

import "github.com/shopspring/decimal"

// LineKind classifies offer lines. Unit-price and rental lines are billed
// separately and never feed the hourly-rate based plan.
type LineKind string

const (
	LineLabor     LineKind = "labor"
	LineMaterial  LineKind = "material"
	LineUnitPrice LineKind = "unit_price"
	LineRental    LineKind = "rental"
)

// BilledSeparately reports whether the line is excluded from planned hours.
func (k LineKind) BilledSeparately() bool {
	return k == LineUnitPrice || k == LineRental
}

type OfferLine struct {
	Description string          `yaml:"description,omitempty" json:"description,omitempty"`
	Kind        LineKind        `yaml:"kind" json:"kind"`
	NetAmount   decimal.Decimal `yaml:"net_amount" json:"net_amount"`
}

// Offer is the accepted offer of a project as read from the offer store.
type Offer struct {
	ID        string          `yaml:"id" json:"id"`
	ProjectID string          `yaml:"project_id,omitempty" json:"project_id,omitempty"`
	Currency  string          `yaml:"currency" json:"currency"`
	NetAmount decimal.Decimal `yaml:"net_amount" json:"net_amount"`
	Lines     []OfferLine     `yaml:"lines,omitempty" json:"lines,omitempty"`
}

// PlanningAmount is the net amount that planned hours are derived from. With
// lines present it is recomputed from them; otherwise NetAmount is taken as the
// store's already-filtered figure.
func (o Offer) PlanningAmount() decimal.Decimal {
	if len(o.Lines) == 0 {
		return o.NetAmount
	}
	sum := decimal.Zero
	for _, l := range o.Lines {
		if l.Kind.BilledSeparately() {
			continue
		}
		sum = sum.Add(l.NetAmount)
	}
	return sum
}
