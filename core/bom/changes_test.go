package bom

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/labportal/core"
)

func strp(s string) *string     { return &s }
func intp(i int) *int           { return &i }
func floatp(f float64) *float64 { return &f }

func newTestRequest() Request {
	return Request{
		ID:             "r1",
		SlNo:           "001",
		SprintNo:       "S1",
		Date:           time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		PartName:       "Bracket",
		ConsumableName: "Aluminium sheet",
		Specification:  "2mm",
		Qty:            2,
		Length:         10,
		Stage:          StagePending,
	}
}

func TestEdits_clean(t *testing.T) {
	t.Run("trims and normalizes", func(t *testing.T) {
		e := Edits{PartName: strp("  Hinge "), Date: strp("2024-03-05T10:00:00Z")}
		require.NoError(t, e.clean())
		assert.Equal(t, "Hinge", *e.PartName)
		assert.Equal(t, "2024-03-05", *e.Date)
	})

	t.Run("rejects invalid values", func(t *testing.T) {
		e := Edits{
			PartName: strp("   "),
			Date:     strp("05/03/2024"),
			Qty:      intp(0),
			Weight:   floatp(-1),
		}
		err := e.clean()
		require.Error(t, err)
		require.True(t, core.IsValidationError(err))

		fields := make(map[string]string)
		for _, fe := range err.(*core.ValidationError).Fields {
			fields[fe.Field] = fe.Error
		}
		assert.Equal(t, map[string]string{
			"partName": "this field cannot be blank",
			"date":     "must be a date formatted as YYYY-MM-DD",
			"qty":      "qty must be 1 or greater",
			"weight":   "weight must be 0 or greater",
		}, fields)
	})

	t.Run("empty edits are valid", func(t *testing.T) {
		e := Edits{}
		assert.NoError(t, e.clean())
	})
}

func TestRequest_applyEdits(t *testing.T) {
	r := newTestRequest()
	e := Edits{
		PartName: strp("Hinge"),      // changed
		Qty:      intp(2),            // same value
		Date:     strp("2024-03-02"), // changed
		Length:   floatp(12.5),       // not editable by guides
	}

	changes := r.applyEdits(e, guideEditable)
	assert.Equal(t, []FieldChange{
		{Field: FieldDate, OldValue: "2024-03-01", NewValue: "2024-03-02"},
		{Field: FieldPartName, OldValue: "Bracket", NewValue: "Hinge"},
	}, changes)
	assert.Equal(t, "Hinge", r.PartName)
	assert.Equal(t, time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), r.Date)
	assert.Equal(t, 10.0, r.Length)

	assert.Empty(t, r.applyEdits(e, guideEditable), "re-applying the same edits must be a no-op")
}

func TestRequest_recordEdits(t *testing.T) {
	r := newTestRequest()
	at := time.Date(2024, 3, 3, 9, 0, 0, 0, time.UTC)

	assert.False(t, r.recordEdits(Edits{Qty: intp(2)}, labEditable, "lab1", EditorLabIncharge, at))
	assert.Empty(t, r.EditHistory)

	assert.True(t, r.recordEdits(Edits{Qty: intp(5), Weight: floatp(1.5)}, labEditable, "lab1", EditorLabIncharge, at))
	require.Len(t, r.EditHistory, 1)
	assert.Equal(t, EditEntry{
		EditedBy:     "lab1",
		EditedByRole: EditorLabIncharge,
		EditedAt:     at,
		Changes: []FieldChange{
			{Field: FieldQty, OldValue: 2, NewValue: 5},
			{Field: FieldWeight, OldValue: 0.0, NewValue: 1.5},
		},
	}, r.EditHistory[0])
}

func TestEditHistory_ValueScan(t *testing.T) {
	h := EditHistory{{
		EditedBy:     "g1",
		EditedByRole: EditorGuide,
		EditedAt:     time.Date(2024, 3, 3, 9, 0, 0, 0, time.UTC),
		Changes:      []FieldChange{{Field: FieldQty, OldValue: 2, NewValue: 3}},
	}}
	v, err := h.Value()
	require.NoError(t, err)

	var got EditHistory
	require.NoError(t, got.Scan(v))
	require.Len(t, got, 1)
	assert.Equal(t, FieldQty, got[0].Changes[0].Field)
	assert.Equal(t, 3.0, got[0].Changes[0].NewValue) // JSON numbers decode as float64

	var empty EditHistory
	require.NoError(t, empty.Scan(nil))
	assert.NotNil(t, empty)
	assert.Error(t, empty.Scan(42))
}

func TestRequest_MarshalJSON(t *testing.T) {
	r := newTestRequest()
	r.Stage = StageLabRejected
	r.RejectionReason = "Out of stock"

	data, err := json.Marshal(r)
	require.NoError(t, err)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "lab_rejected", got["stage"])
	assert.Equal(t, "rejected", got["status"])
	assert.Equal(t, true, got["guideApproved"])
	assert.Equal(t, false, got["labApproved"])
	assert.Equal(t, "2024-03-01", got["date"])
	assert.Equal(t, "Out of stock", got["rejectionReason"])
	assert.Nil(t, got["teamId"])
	assert.Nil(t, got["labApprovedAt"])
	assert.Equal(t, []interface{}{}, got["editHistory"])
}
