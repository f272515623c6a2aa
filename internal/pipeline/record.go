package pipeline

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Kind identifies which declared schema a raw record is validated against.
type Kind string

const (
	KindEvent Kind = "event"
	KindSale  Kind = "sale"
	KindUser  Kind = "user"
)

// Rejection reasons. The taxonomy is fixed; every quarantined record
// carries exactly one of these.
const (
	ReasonMissingRequiredField = "missing_required_field"
	ReasonTypeMismatch         = "type_mismatch"
	ReasonInvalidTimestamp     = "invalid_timestamp"
	ReasonNegativeAmount       = "negative_amount"
	ReasonUnknownEventType     = "unknown_event_type"
	ReasonDuplicatePrimaryKey  = "duplicate_primary_key_in_batch"
	ReasonDerivationFailed     = "derivation_failed"
)

// RawRecord is one untyped input row. Seq is the position within its feed
// and drives the last-write-wins tiebreak during dedup.
type RawRecord struct {
	Kind      Kind
	Seq       int
	Fields    map[string]any
	Malformed bool
}

// Quarantined pairs a rejected record with its reason for the audit sink.
type Quarantined struct {
	Raw    RawRecord
	Reason string
}

// AcceptedRecord is a RawRecord that passed validation, with the parsed
// timestamp attached so enrichment does not re-parse.
type AcceptedRecord struct {
	Raw RawRecord
	TS  time.Time
}

// EnrichedRecord carries the derived fields for one accepted record.
// Event and sale fields are populated according to Raw.Kind.
type EnrichedRecord struct {
	Raw     RawRecord
	Key     string
	TS      time.Time
	TSRaw   string
	DateKey string
	Hour    int

	// events
	UserID string
	Event  string
	Amount *decimal.Decimal

	// international sales
	Customer      string
	SKU           string
	Pcs           int64
	Rate          decimal.Decimal
	GrossAmt      decimal.Decimal
	Currency      string
	SourceDataset string
}

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseTimestamp parses in the timestamp's own zone; no conversion is applied.
func parseTimestamp(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// StringField returns a trimmed scalar field as a string. Numbers are
// stringified because source feeds carry ids both quoted and bare.
func StringField(fields map[string]any, key string) (string, bool) {
	v, ok := fields[key]
	if !ok || v == nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		return s, s != ""
	case json.Number:
		return t.String(), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	default:
		return "", false
	}
}

// NumberField coerces a scalar field to decimal. The second return is false
// when the field is absent or empty, the error is non-nil when it is present
// but not numeric.
func NumberField(fields map[string]any, key string) (decimal.Decimal, bool, error) {
	v, ok := fields[key]
	if !ok || v == nil {
		return decimal.Zero, false, nil
	}
	switch t := v.(type) {
	case json.Number:
		d, err := decimal.NewFromString(t.String())
		return d, err == nil, err
	case float64:
		return decimal.NewFromFloat(t), true, nil
	case int:
		return decimal.NewFromInt(int64(t)), true, nil
	case int64:
		return decimal.NewFromInt(t), true, nil
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return decimal.Zero, false, nil
		}
		d, err := decimal.NewFromString(s)
		return d, err == nil, err
	default:
		return decimal.Zero, false, errNotNumeric
	}
}

var errNotNumeric = errors.New("value is not numeric")
