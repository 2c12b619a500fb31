package calculation

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strconv"

	"github.com/shopspring/decimal"
)

// Fingerprint returns a deterministic hash of the derived values. Timestamps are
// left out so two recomputes over the same inputs hash equal.
func (pc *PreCalculation) Fingerprint() string {
	h := sha256.New()
	writeField(h, pc.ProjectID)
	writeDecimal(h, pc.PlannedHoursSetup)
	writeDecimal(h, pc.PlannedHoursTeardown)
	writeDecimal(h, pc.HourlyRate)
	writeField(h, strconv.Itoa(pc.Distribution.Setup))
	writeField(h, strconv.Itoa(pc.Distribution.Teardown))
	writeField(h, string(pc.Source))
	writeField(h, pc.SourceOfferID)
	for _, a := range pc.Allocations {
		writeField(h, a.EmployeeID)
		writeField(h, string(a.Activity.Normalize()))
		writeDecimal(h, a.Hours)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Fingerprint returns a deterministic hash of the derived values, excluding
// LastComputedAt.
func (pc *PostCalculation) Fingerprint() string {
	h := sha256.New()
	writeField(h, pc.ProjectID)
	writeDecimal(h, pc.ActualHoursSetup)
	writeDecimal(h, pc.ActualHoursTeardown)
	writeDecimal(h, pc.HourlyRate)
	for _, er := range pc.PerEmployee {
		writeField(h, er.EmployeeID)
		writeField(h, er.EmployeeName)
		writeDecimal(h, er.PlannedHoursSetup)
		writeDecimal(h, er.PlannedHoursTeardown)
		writeDecimal(h, er.ActualHoursSetup)
		writeDecimal(h, er.ActualHoursTeardown)
		writeField(h, string(er.SetupSource))
		writeField(h, string(er.TeardownSource))
		writeField(h, string(er.Status))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// writeField appends a NUL separator so adjacent fields cannot run together.
func writeField(w io.Writer, s string) {
	_, _ = w.Write([]byte(s))
	_, _ = w.Write([]byte{0})
}

// writeDecimal normalizes so 5, 5.0 and 5.00 hash the same.
func writeDecimal(w io.Writer, d decimal.Decimal) {
	writeField(w, d.StringFixed(8))
}
