package pipeline

import (
	"github.com/shopspring/decimal"
)

// Enricher computes derived fields on accepted records: the calendar date
// key and hour bucket in the timestamp's own zone, fixed-precision numeric
// coercion, and gross_amt derivation for sales.
type Enricher struct{}

func NewEnricher() *Enricher {
	return &Enricher{}
}

// Enrich returns the enriched record and an empty reason, or a zero record
// and ReasonDerivationFailed when a required derivation cannot be computed.
func (e *Enricher) Enrich(acc AcceptedRecord) (EnrichedRecord, string) {
	if acc.TS.IsZero() {
		return EnrichedRecord{}, ReasonDerivationFailed
	}

	tsRaw, _ := StringField(acc.Raw.Fields, "ts")
	rec := EnrichedRecord{
		Raw:     acc.Raw,
		TS:      acc.TS,
		TSRaw:   tsRaw,
		DateKey: acc.TS.Format("2006-01-02"),
		Hour:    acc.TS.Hour(),
	}

	switch acc.Raw.Kind {
	case KindEvent:
		return e.enrichEvent(acc, rec)
	case KindSale:
		return e.enrichSale(acc, rec)
	default:
		return EnrichedRecord{}, ReasonDerivationFailed
	}
}

func (e *Enricher) enrichEvent(acc AcceptedRecord, rec EnrichedRecord) (EnrichedRecord, string) {
	key, ok := StringField(acc.Raw.Fields, "event_id")
	if !ok {
		return EnrichedRecord{}, ReasonDerivationFailed
	}
	rec.Key = key

	label, _ := StringField(acc.Raw.Fields, "event")
	rec.Event = CanonicalEventLabel(label)

	if userID, ok := StringField(acc.Raw.Fields, "user_id"); ok {
		rec.UserID = userID
	}

	amount, present, err := NumberField(acc.Raw.Fields, "amount")
	if err != nil {
		return EnrichedRecord{}, ReasonDerivationFailed
	}
	if present {
		rounded := amount.Round(2)
		rec.Amount = &rounded
	}

	return rec, ""
}

func (e *Enricher) enrichSale(acc AcceptedRecord, rec EnrichedRecord) (EnrichedRecord, string) {
	key, ok := StringField(acc.Raw.Fields, "sale_id")
	if !ok {
		return EnrichedRecord{}, ReasonDerivationFailed
	}
	rec.Key = key

	rec.Customer, _ = StringField(acc.Raw.Fields, "customer")
	rec.SKU, _ = StringField(acc.Raw.Fields, "sku")

	pcs, pcsPresent, err := NumberField(acc.Raw.Fields, "pcs")
	if err != nil {
		return EnrichedRecord{}, ReasonDerivationFailed
	}
	if pcsPresent {
		if !pcs.IsInteger() {
			return EnrichedRecord{}, ReasonDerivationFailed
		}
		rec.Pcs = pcs.IntPart()
	}

	rate, ratePresent, err := NumberField(acc.Raw.Fields, "rate")
	if err != nil {
		return EnrichedRecord{}, ReasonDerivationFailed
	}
	if ratePresent {
		rec.Rate = rate.Round(2)
	}

	gross, grossPresent, err := NumberField(acc.Raw.Fields, "gross_amt")
	if err != nil {
		return EnrichedRecord{}, ReasonDerivationFailed
	}
	switch {
	case grossPresent:
		rec.GrossAmt = gross.Round(2)
	case pcsPresent && ratePresent:
		rec.GrossAmt = decimal.NewFromInt(rec.Pcs).Mul(rate).Round(2)
	default:
		// gross_amt must be supplied when it cannot be derived
		return EnrichedRecord{}, ReasonDerivationFailed
	}

	if currency, ok := StringField(acc.Raw.Fields, "currency"); ok {
		rec.Currency = currency
	} else {
		rec.Currency = "USD"
	}
	rec.SourceDataset, _ = StringField(acc.Raw.Fields, "source_dataset")

	return rec, ""
}
