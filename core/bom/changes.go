package bom

import (
	"fmt"

	"github.com/trezcool/labportal/core"
)

// Field names an editable Request field, as spelled in JSON.
type Field string

const (
	FieldSlNo           Field = "slNo"
	FieldSprintNo       Field = "sprintNo"
	FieldDate           Field = "date"
	FieldPartName       Field = "partName"
	FieldConsumableName Field = "consumableName"
	FieldSpecification  Field = "specification"
	FieldQty            Field = "qty"
	FieldLength         Field = "length"
	FieldWidth          Field = "width"
	FieldThickness      Field = "thickness"
	FieldWeight         Field = "weight"
)

var (
	guideEditable = []Field{
		FieldSlNo, FieldSprintNo, FieldDate, FieldPartName, FieldConsumableName, FieldSpecification, FieldQty,
	}
	labEditable = []Field{
		FieldConsumableName, FieldSpecification, FieldQty, FieldPartName, FieldSprintNo,
		FieldLength, FieldWidth, FieldThickness, FieldWeight,
	}
	studentEditable = []Field{
		FieldSlNo, FieldSprintNo, FieldDate, FieldPartName, FieldConsumableName, FieldSpecification, FieldQty,
		FieldLength, FieldWidth, FieldThickness, FieldWeight,
	}
)

// Edits holds the optional field updates of one edit call; nil fields are left untouched.
type Edits struct {
	SlNo           *string
	SprintNo       *string
	Date           *string
	PartName       *string
	ConsumableName *string
	Specification  *string
	Qty            *int
	Length         *float64
	Width          *float64
	Thickness      *float64
	Weight         *float64
}

// clean trims the provided values and checks them; dates are normalized to YYYY-MM-DD.
func (e *Edits) clean() error {
	var fldErrs []core.FieldError
	blank := func(f Field) { fldErrs = append(fldErrs, core.FieldError{Field: string(f), Error: "this field cannot be blank"}) }

	for f, s := range map[Field]*string{
		FieldSlNo:           e.SlNo,
		FieldSprintNo:       e.SprintNo,
		FieldPartName:       e.PartName,
		FieldConsumableName: e.ConsumableName,
		FieldSpecification:  e.Specification,
	} {
		if s == nil {
			continue
		}
		if *s = core.CleanString(*s); *s == "" {
			blank(f)
		}
	}

	if e.Date != nil {
		d, err := core.ParseDate(*e.Date)
		if err != nil {
			fldErrs = append(fldErrs, core.FieldError{Field: string(FieldDate), Error: "must be a date formatted as YYYY-MM-DD"})
		} else {
			normalized := d.Format(core.DateLayout)
			e.Date = &normalized
		}
	}

	if e.Qty != nil && *e.Qty < 1 {
		fldErrs = append(fldErrs, core.FieldError{Field: string(FieldQty), Error: "qty must be 1 or greater"})
	}

	for f, n := range map[Field]*float64{
		FieldLength:    e.Length,
		FieldWidth:     e.Width,
		FieldThickness: e.Thickness,
		FieldWeight:    e.Weight,
	} {
		if n != nil && *n < 0 {
			fldErrs = append(fldErrs, core.FieldError{Field: string(f), Error: fmt.Sprintf("%s must be 0 or greater", f)})
		}
	}

	if len(fldErrs) > 0 {
		return core.NewValidationError(errValidation, fldErrs...)
	}
	return nil
}

// value returns the new value provided for f, if any.
func (e Edits) value(f Field) (interface{}, bool) {
	var s *string
	var n *float64
	switch f {
	case FieldSlNo:
		s = e.SlNo
	case FieldSprintNo:
		s = e.SprintNo
	case FieldDate:
		s = e.Date
	case FieldPartName:
		s = e.PartName
	case FieldConsumableName:
		s = e.ConsumableName
	case FieldSpecification:
		s = e.Specification
	case FieldQty:
		if e.Qty == nil {
			return nil, false
		}
		return *e.Qty, true
	case FieldLength:
		n = e.Length
	case FieldWidth:
		n = e.Width
	case FieldThickness:
		n = e.Thickness
	case FieldWeight:
		n = e.Weight
	}
	if s != nil {
		return *s, true
	}
	if n != nil {
		return *n, true
	}
	return nil, false
}

// fieldValue returns the stored value of f in the representation used by FieldChange.
func (r *Request) fieldValue(f Field) interface{} {
	switch f {
	case FieldSlNo:
		return r.SlNo
	case FieldSprintNo:
		return r.SprintNo
	case FieldDate:
		return r.Date.Format(core.DateLayout)
	case FieldPartName:
		return r.PartName
	case FieldConsumableName:
		return r.ConsumableName
	case FieldSpecification:
		return r.Specification
	case FieldQty:
		return r.Qty
	case FieldLength:
		return r.Length
	case FieldWidth:
		return r.Width
	case FieldThickness:
		return r.Thickness
	case FieldWeight:
		return r.Weight
	}
	return nil
}

// setField stores v (as returned by Edits.value) into f.
func (r *Request) setField(f Field, v interface{}) {
	switch f {
	case FieldSlNo:
		r.SlNo = v.(string)
	case FieldSprintNo:
		r.SprintNo = v.(string)
	case FieldDate:
		r.Date, _ = core.ParseDate(v.(string)) // already validated by Edits.clean
	case FieldPartName:
		r.PartName = v.(string)
	case FieldConsumableName:
		r.ConsumableName = v.(string)
	case FieldSpecification:
		r.Specification = v.(string)
	case FieldQty:
		r.Qty = v.(int)
	case FieldLength:
		r.Length = v.(float64)
	case FieldWidth:
		r.Width = v.(float64)
	case FieldThickness:
		r.Thickness = v.(float64)
	case FieldWeight:
		r.Weight = v.(float64)
	}
}

// applyEdits writes every provided value that differs from the stored one, restricted to
// the allowed fields, and returns the changes in the order of allowed.
func (r *Request) applyEdits(e Edits, allowed []Field) []FieldChange {
	var changes []FieldChange
	for _, f := range allowed {
		newVal, ok := e.value(f)
		if !ok {
			continue
		}
		oldVal := r.fieldValue(f)
		if oldVal == newVal {
			continue
		}
		r.setField(f, newVal)
		changes = append(changes, FieldChange{Field: f, OldValue: oldVal, NewValue: newVal})
	}
	return changes
}
