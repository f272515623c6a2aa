package pipeline

import (
	"strings"

	"github.com/smallbiznis/starmart/internal/config"
)

// requiredFields lists the natural-key and structural fields per schema.
// A record missing any of these is quarantined, never defaulted.
var requiredFields = map[Kind][]string{
	KindEvent: {"event_id", "ts", "event"},
	KindSale:  {"sale_id", "ts", "customer", "sku"},
	KindUser:  {"user_id"},
}

// Validator classifies raw records against their declared schema. It is a
// pure function over the record; it never consults the warehouse.
type Validator struct {
	cfg config.PipelineConfig
}

func NewValidator(cfg config.PipelineConfig) *Validator {
	return &Validator{cfg: cfg}
}

// Validate returns the accepted record and an empty reason, or a zero
// record and one reason from the rejection taxonomy.
func (v *Validator) Validate(raw RawRecord) (AcceptedRecord, string) {
	if raw.Malformed {
		return AcceptedRecord{}, ReasonTypeMismatch
	}

	for _, field := range requiredFields[raw.Kind] {
		value, ok := raw.Fields[field]
		if !ok || value == nil {
			return AcceptedRecord{}, ReasonMissingRequiredField
		}
		if s, isString := value.(string); isString && strings.TrimSpace(s) == "" {
			return AcceptedRecord{}, ReasonMissingRequiredField
		}
	}

	switch raw.Kind {
	case KindEvent:
		return v.validateEvent(raw)
	case KindSale:
		return v.validateSale(raw)
	case KindUser:
		return v.validateUser(raw)
	default:
		return AcceptedRecord{}, ReasonTypeMismatch
	}
}

func (v *Validator) validateEvent(raw RawRecord) (AcceptedRecord, string) {
	if _, ok := StringField(raw.Fields, "event_id"); !ok {
		return AcceptedRecord{}, ReasonTypeMismatch
	}

	tsRaw, ok := StringField(raw.Fields, "ts")
	if !ok {
		return AcceptedRecord{}, ReasonTypeMismatch
	}
	ts, ok := parseTimestamp(tsRaw)
	if !ok {
		return AcceptedRecord{}, ReasonInvalidTimestamp
	}

	label, ok := StringField(raw.Fields, "event")
	if !ok {
		return AcceptedRecord{}, ReasonTypeMismatch
	}
	if !v.cfg.AllowsEvent(CanonicalEventLabel(label)) {
		return AcceptedRecord{}, ReasonUnknownEventType
	}

	if value, present := raw.Fields["user_id"]; present && value != nil {
		if _, ok := StringField(raw.Fields, "user_id"); !ok {
			return AcceptedRecord{}, ReasonTypeMismatch
		}
	}

	amount, present, err := NumberField(raw.Fields, "amount")
	if err != nil {
		return AcceptedRecord{}, ReasonTypeMismatch
	}
	if present && amount.IsNegative() {
		return AcceptedRecord{}, ReasonNegativeAmount
	}

	return AcceptedRecord{Raw: raw, TS: ts}, ""
}

func (v *Validator) validateSale(raw RawRecord) (AcceptedRecord, string) {
	if _, ok := StringField(raw.Fields, "sale_id"); !ok {
		return AcceptedRecord{}, ReasonTypeMismatch
	}

	tsRaw, ok := StringField(raw.Fields, "ts")
	if !ok {
		return AcceptedRecord{}, ReasonTypeMismatch
	}
	ts, ok := parseTimestamp(tsRaw)
	if !ok {
		return AcceptedRecord{}, ReasonInvalidTimestamp
	}

	if _, ok := StringField(raw.Fields, "customer"); !ok {
		return AcceptedRecord{}, ReasonTypeMismatch
	}
	if _, ok := StringField(raw.Fields, "sku"); !ok {
		return AcceptedRecord{}, ReasonTypeMismatch
	}

	for _, field := range []string{"pcs", "rate", "gross_amt"} {
		value, present, err := NumberField(raw.Fields, field)
		if err != nil {
			return AcceptedRecord{}, ReasonTypeMismatch
		}
		if present && value.IsNegative() {
			return AcceptedRecord{}, ReasonNegativeAmount
		}
	}

	return AcceptedRecord{Raw: raw, TS: ts}, ""
}

func (v *Validator) validateUser(raw RawRecord) (AcceptedRecord, string) {
	if _, ok := StringField(raw.Fields, "user_id"); !ok {
		return AcceptedRecord{}, ReasonTypeMismatch
	}
	return AcceptedRecord{Raw: raw}, ""
}

// CanonicalEventLabel normalizes an event label before the allowed-set
// check: trim, lowercase, separators to underscores, and known variants
// collapsed ("page_view" and "page view" both mean pageview).
func CanonicalEventLabel(label string) string {
	label = strings.ToLower(strings.TrimSpace(label))
	label = strings.ReplaceAll(label, "-", "_")
	label = strings.ReplaceAll(label, " ", "_")
	if label == "page_view" {
		return "pageview"
	}
	return label
}
