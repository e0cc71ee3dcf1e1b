package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/opensource-finance/leasecheck/internal/normalize"
)

// Recognized keys of the extracted lease record.
const (
	KeyMonthlyLeaseAmount  = "monthly_lease_amount"
	KeyLeaseDuration       = "lease_duration"
	KeyVehicleDetails      = "vehicle_details"
	KeyMake                = "make"
	KeyMileageLimits       = "mileage_limits"
	KeyAnnualMileageLimit  = "annual_mileage_limit"
	KeyTermination         = "termination_conditions"
	KeyEarlyTerminationFee = "voluntary_early_termination_fee"
	KeyPurchaseOption      = "purchase_option"
	KeyPrice               = "price"
	KeyResidualValue       = "residual_value"
	KeyError               = "error"
)

// Field is one optional attribute of a lease record.
// The zero value is an absent field.
//
// Numeric accessors treat a zero magnitude the same as a missing value:
// the extraction stage emits 0 for "not stated" often enough that a
// zero payment, term or fee never carries information.
type Field struct {
	raw     any
	present bool
}

// NewField wraps a raw value. A nil value is absent.
func NewField(v any) Field {
	return Field{raw: v, present: v != nil}
}

// Present reports whether the field was supplied with a non-null value.
func (f Field) Present() bool { return f.present }

// Raw returns the value as decoded.
func (f Field) Raw() any { return f.raw }

// Number returns the field's numeric magnitude.
func (f Field) Number() (float64, bool) {
	if !f.present {
		return 0, false
	}
	n, ok := normalize.ExtractNumber(f.raw)
	if !ok || n == 0 {
		return 0, false
	}
	return n, true
}

// NumberOr returns the numeric magnitude or def when unavailable.
func (f Field) NumberOr(def float64) float64 {
	if n, ok := f.Number(); ok {
		return n
	}
	return def
}

// Percentage returns the whole percentage carried by the field.
func (f Field) Percentage() (float64, bool) {
	if !f.present {
		return 0, false
	}
	p, ok := normalize.ExtractPercentage(f.raw)
	if !ok || p == 0 {
		return 0, false
	}
	return p, true
}

// Text returns the field as a string, "" when absent.
func (f Field) Text() string {
	if !f.present {
		return ""
	}
	if s, ok := f.raw.(string); ok {
		return s
	}
	return fmt.Sprint(f.raw)
}

// LeaseRecord is a read-only, typed view of an extracted lease.
// No field is guaranteed; absent and malformed values read as absent.
type LeaseRecord struct {
	MonthlyLeaseAmount  Field
	LeaseDuration       Field
	VehicleMake         Field
	AnnualMileageLimit  Field
	EarlyTerminationFee Field
	PurchaseOptionPrice Field
	ResidualValue       Field

	// ExtractionError is set when the upstream stage reported a failure.
	ExtractionError Field

	raw  map[string]any
	text string
}

// NewLeaseRecord builds a record view over a decoded mapping.
// A nil map yields an empty record.
func NewLeaseRecord(m map[string]any) *LeaseRecord {
	if m == nil {
		m = map[string]any{}
	}

	return &LeaseRecord{
		MonthlyLeaseAmount:  NewField(m[KeyMonthlyLeaseAmount]),
		LeaseDuration:       NewField(m[KeyLeaseDuration]),
		VehicleMake:         nested(m, KeyVehicleDetails, KeyMake),
		AnnualMileageLimit:  nested(m, KeyMileageLimits, KeyAnnualMileageLimit),
		EarlyTerminationFee: nested(m, KeyTermination, KeyEarlyTerminationFee),
		PurchaseOptionPrice: nested(m, KeyPurchaseOption, KeyPrice),
		ResidualValue:       NewField(m[KeyResidualValue]),
		ExtractionError:     NewField(m[KeyError]),
		raw:                 m,
		text:                strings.ToLower(render(m)),
	}
}

// DecodeLeaseRecord decodes JSON produced by the extraction stage.
// Only syntactically invalid JSON is an error. Any JSON value that is not
// an object decodes to an empty record.
func DecodeLeaseRecord(data []byte) (*LeaseRecord, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode lease record: %w", err)
	}

	m, _ := v.(map[string]any)
	return NewLeaseRecord(m), nil
}

// Raw returns the underlying mapping.
func (r *LeaseRecord) Raw() map[string]any {
	return r.raw
}

// Text returns the lowercased rendering of the whole record, keys included.
// Clause detectors search this text.
func (r *LeaseRecord) Text() string {
	return r.text
}

// ExtractionFailed reports whether the upstream stage flagged an error.
func (r *LeaseRecord) ExtractionFailed() bool {
	return r.ExtractionError.Present()
}

func nested(m map[string]any, parent, key string) Field {
	child, ok := m[parent].(map[string]any)
	if !ok {
		return Field{}
	}
	return NewField(child[key])
}

// render produces a stable JSON rendering; map keys are sorted.
func render(m map[string]any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(m); err != nil {
		return fmt.Sprint(m)
	}
	return strings.TrimSuffix(buf.String(), "\n")
}
