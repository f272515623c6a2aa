package pipeline

import (
	"testing"

	"github.com/smallbiznis/starmart/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newValidator(t *testing.T) *Validator {
	t.Helper()
	return NewValidator(config.DefaultPipelineConfig())
}

func TestValidateEvent(t *testing.T) {
	v := newValidator(t)

	tests := []struct {
		name   string
		fields map[string]any
		reason string
	}{
		{
			name:   "valid purchase",
			fields: map[string]any{"event_id": "e1", "ts": "2024-01-01T10:00:00", "event": "purchase", "user_id": "u1", "amount": 9.99},
		},
		{
			name:   "missing ts",
			fields: map[string]any{"event_id": "e1", "event": "purchase"},
			reason: ReasonMissingRequiredField,
		},
		{
			name:   "missing natural key",
			fields: map[string]any{"ts": "2024-01-01T10:00:00", "event": "purchase"},
			reason: ReasonMissingRequiredField,
		},
		{
			name:   "blank event label",
			fields: map[string]any{"event_id": "e1", "ts": "2024-01-01T10:00:00", "event": "  "},
			reason: ReasonMissingRequiredField,
		},
		{
			name:   "unparseable timestamp",
			fields: map[string]any{"event_id": "e1", "ts": "not-a-time", "event": "purchase"},
			reason: ReasonInvalidTimestamp,
		},
		{
			name:   "unknown event type",
			fields: map[string]any{"event_id": "e1", "ts": "2024-01-01T10:00:00", "event": "logout"},
			reason: ReasonUnknownEventType,
		},
		{
			name:   "negative amount",
			fields: map[string]any{"event_id": "e1", "ts": "2024-01-01T10:00:00", "event": "purchase", "amount": -5.0},
			reason: ReasonNegativeAmount,
		},
		{
			name:   "non-numeric amount",
			fields: map[string]any{"event_id": "e1", "ts": "2024-01-01T10:00:00", "event": "purchase", "amount": "lots"},
			reason: ReasonTypeMismatch,
		},
		{
			name:   "structured user id",
			fields: map[string]any{"event_id": "e1", "ts": "2024-01-01T10:00:00", "event": "signup", "user_id": map[string]any{"id": 1}},
			reason: ReasonTypeMismatch,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			accepted, reason := v.Validate(RawRecord{Kind: KindEvent, Fields: tc.fields})
			assert.Equal(t, tc.reason, reason)
			if tc.reason == "" {
				assert.False(t, accepted.TS.IsZero())
			}
		})
	}
}

func TestValidateEventLabelCanonicalization(t *testing.T) {
	v := newValidator(t)

	for _, label := range []string{"Page View", "page-view", "PAGE_VIEW", "pageview"} {
		_, reason := v.Validate(RawRecord{Kind: KindEvent, Fields: map[string]any{
			"event_id": "e1", "ts": "2024-01-01T10:00:00", "event": label,
		}})
		assert.Empty(t, reason, "label %q should canonicalize to pageview", label)
	}
}

func TestValidateSale(t *testing.T) {
	v := newValidator(t)

	valid := map[string]any{
		"sale_id": "s1", "ts": "2022-04-30T12:00:00", "customer": "ACME",
		"sku": "SKU-1", "pcs": 3, "rate": 110.0, "gross_amt": 330.0,
	}
	accepted, reason := v.Validate(RawRecord{Kind: KindSale, Fields: valid})
	require.Empty(t, reason)
	assert.Equal(t, 2022, accepted.TS.Year())

	missing := map[string]any{"sale_id": "s1", "ts": "2022-04-30T12:00:00", "customer": "ACME"}
	_, reason = v.Validate(RawRecord{Kind: KindSale, Fields: missing})
	assert.Equal(t, ReasonMissingRequiredField, reason)

	negative := map[string]any{
		"sale_id": "s1", "ts": "2022-04-30T12:00:00", "customer": "ACME",
		"sku": "SKU-1", "gross_amt": -10.0,
	}
	_, reason = v.Validate(RawRecord{Kind: KindSale, Fields: negative})
	assert.Equal(t, ReasonNegativeAmount, reason)
}

func TestValidateMalformedRecord(t *testing.T) {
	v := newValidator(t)

	_, reason := v.Validate(RawRecord{Kind: KindEvent, Fields: map[string]any{"_raw": "{broken"}, Malformed: true})
	assert.Equal(t, ReasonTypeMismatch, reason)
}

func TestValidateUser(t *testing.T) {
	v := newValidator(t)

	_, reason := v.Validate(RawRecord{Kind: KindUser, Fields: map[string]any{"user_id": "u1", "country": "US"}})
	assert.Empty(t, reason)

	_, reason = v.Validate(RawRecord{Kind: KindUser, Fields: map[string]any{"country": "US"}})
	assert.Equal(t, ReasonMissingRequiredField, reason)
}
