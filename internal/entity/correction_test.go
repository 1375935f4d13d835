package entity

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/invoice-intake/constants"
)

func TestDiffFields_OnlyChangedFields(t *testing.T) {
	original := FieldSet{
		VendorName: "ACME Steel",
		Total:      "1000.00",
		Currency:   "USD",
		LineItems: []LineItemFields{
			{Description: "Steel beams", Amount: "800.00", Category: "MATERIAL"},
			{Description: "Crane hire", Amount: "200.00", Category: "EQUIPMENT"},
		},
	}
	corrected := original
	corrected.VendorName = "Acme Steel Ltd"
	corrected.Currency = "usd"
	corrected.LineItems = []LineItemFields{
		{Description: "Steel beams", Amount: "800.00", Category: "LABOR"},
		{Description: "Crane hire", Amount: "200.00", Category: "EQUIPMENT"},
	}

	changes := DiffFields(original, corrected)
	require.Len(t, changes, 2)

	assert.Equal(t, FieldVendorName, changes[0].Field)
	assert.Equal(t, "ACME Steel", changes[0].Original)
	assert.Equal(t, "Acme Steel Ltd", changes[0].Corrected)
	assert.True(t, decimal.RequireFromString("1000").Equal(changes[0].Amount))

	assert.Equal(t, FieldCategory, changes[1].Field)
	assert.Equal(t, "MATERIAL", changes[1].Original)
	assert.Equal(t, "LABOR", changes[1].Corrected)
	assert.Equal(t, "Steel beams", changes[1].Description)
	assert.True(t, decimal.RequireFromString("800").Equal(changes[1].Amount))
}

func TestDiffFields_BlankCorrectionCarriesNoSignal(t *testing.T) {
	original := FieldSet{VendorName: "ACME"}
	assert.Empty(t, DiffFields(original, FieldSet{}))
}

func TestDiffFields_NewLineItem(t *testing.T) {
	corrected := FieldSet{LineItems: []LineItemFields{{Description: "Rebar", Amount: "50", Category: "MATERIAL"}}}
	changes := DiffFields(FieldSet{}, corrected)
	require.Len(t, changes, 1)
	assert.Equal(t, "", changes[0].Original)
	assert.Equal(t, "MATERIAL", changes[0].Corrected)
}

func TestCorrectionRecord_Observations(t *testing.T) {
	mapping := CorrectionRecord{
		Kind:    constants.RecordKindMapping,
		Changes: []FieldChange{{Field: FieldCategory, Original: "LABOR", Corrected: "LABOR"}},
	}
	assert.Len(t, mapping.Observations(), 1, "explicit mappings always replay")

	confirmation := CorrectionRecord{Kind: constants.RecordKindConfirmation, PatternKey: "category:LABOR"}
	assert.Empty(t, confirmation.Observations())

	correction := CorrectionRecord{
		Kind:      constants.RecordKindCorrection,
		Original:  FieldSet{Tax: "10.00"},
		Corrected: FieldSet{Tax: "10.00"},
	}
	assert.Empty(t, correction.Observations())
}

func TestNewLineItem_ComputesTotal(t *testing.T) {
	li := NewLineItem("Steel beams", decimal.RequireFromString("3"), decimal.RequireFromString("333.335"), "MATERIAL")
	assert.Equal(t, "1000.01", li.LineTotal.StringFixed(2))

	inv := Invoice{LineItems: []LineItem{li, NewLineItem("Bolts", decimal.NewFromInt(10), decimal.RequireFromString("0.10"), "")}}
	assert.Equal(t, "1001.01", inv.LineItemsTotal().StringFixed(2))
}

func TestPatternKey_RoundTrip(t *testing.T) {
	k := PatternKey{Field: FieldCategory, Value: "LABOR"}
	parsed, ok := ParsePatternKey(k.String())
	require.True(t, ok)
	assert.Equal(t, k, parsed)

	_, ok = ParsePatternKey("nocolon")
	assert.False(t, ok)
}
