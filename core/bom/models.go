package bom

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/labportal/core"
	"github.com/trezcool/labportal/core/user"
)

// EditorRole identifies the approver who edited a Request.
type EditorRole string

const (
	EditorGuide       EditorRole = "guide"
	EditorLabIncharge EditorRole = "labIncharge"
)

// FieldChange is one field's before/after value within an edit.
type FieldChange struct {
	Field    Field       `json:"field"`
	OldValue interface{} `json:"oldValue"`
	NewValue interface{} `json:"newValue"`
}

// EditEntry summarises every field changed by a single guide or lab edit call.
type EditEntry struct {
	EditedBy     string        `json:"editedBy"`
	EditedByRole EditorRole    `json:"editedByRole"`
	EditedAt     time.Time     `json:"editedAt"`
	Changes      []FieldChange `json:"changes"`
}

// EditHistory is append-only; it is stored as a JSON document.
type EditHistory []EditEntry

func (h EditHistory) Value() (driver.Value, error) {
	if h == nil {
		h = EditHistory{}
	}
	return json.Marshal(h)
}

func (h *EditHistory) Scan(src interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*h = EditHistory{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return errors.Errorf("unsupported edit history type %T", src)
	}
	return json.Unmarshal(data, h)
}

// Request is one bill-of-materials line item and its approval state.
type Request struct {
	ID        string
	StudentID string
	GuideID   string
	TeamID    string // empty when the student has no team

	SlNo           string
	SprintNo       string
	Date           time.Time // calendar date, UTC
	PartName       string
	ConsumableName string
	Specification  string
	Qty            int
	Length         float64
	Width          float64
	Thickness      float64
	Weight         float64

	Stage           Stage
	GuideApprovedAt time.Time
	LabApprovedBy   string
	LabApprovedAt   time.Time
	RejectionReason string

	EditHistory EditHistory
	CreatedAt   time.Time // UTC
	UpdatedAt   time.Time // UTC
}

func (r Request) Status() Status      { return r.Stage.Status() }
func (r Request) GuideApproved() bool { return r.Stage.GuideApproved() }
func (r Request) LabApproved() bool   { return r.Stage.LabApproved() }

type requestView struct {
	ID              string      `json:"id"`
	StudentID       string      `json:"studentId"`
	GuideID         string      `json:"guideId"`
	TeamID          *string     `json:"teamId"`
	SlNo            string      `json:"slNo"`
	SprintNo        string      `json:"sprintNo"`
	Date            string      `json:"date"`
	PartName        string      `json:"partName"`
	ConsumableName  string      `json:"consumableName"`
	Specification   string      `json:"specification"`
	Qty             int         `json:"qty"`
	Length          float64     `json:"length"`
	Width           float64     `json:"width"`
	Thickness       float64     `json:"thickness"`
	Weight          float64     `json:"weight"`
	Stage           Stage       `json:"stage"`
	Status          Status      `json:"status"`
	GuideApproved   bool        `json:"guideApproved"`
	GuideApprovedAt *time.Time  `json:"guideApprovedAt"`
	LabApproved     bool        `json:"labApproved"`
	LabApprovedBy   *string     `json:"labApprovedBy"`
	LabApprovedAt   *time.Time  `json:"labApprovedAt"`
	RejectionReason string      `json:"rejectionReason,omitempty"`
	EditHistory     EditHistory `json:"editHistory"`
	CreatedAt       time.Time   `json:"createdAt"`
	UpdatedAt       time.Time   `json:"updatedAt"`
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// view derives the client representation, including the legacy status flags.
func (r Request) view() requestView {
	history := r.EditHistory
	if history == nil {
		history = EditHistory{}
	}
	return requestView{
		ID:              r.ID,
		StudentID:       r.StudentID,
		GuideID:         r.GuideID,
		TeamID:          strPtr(r.TeamID),
		SlNo:            r.SlNo,
		SprintNo:        r.SprintNo,
		Date:            r.Date.Format(core.DateLayout),
		PartName:        r.PartName,
		ConsumableName:  r.ConsumableName,
		Specification:   r.Specification,
		Qty:             r.Qty,
		Length:          r.Length,
		Width:           r.Width,
		Thickness:       r.Thickness,
		Weight:          r.Weight,
		Stage:           r.Stage,
		Status:          r.Status(),
		GuideApproved:   r.GuideApproved(),
		GuideApprovedAt: timePtr(r.GuideApprovedAt),
		LabApproved:     r.LabApproved(),
		LabApprovedBy:   strPtr(r.LabApprovedBy),
		LabApprovedAt:   timePtr(r.LabApprovedAt),
		RejectionReason: r.RejectionReason,
		EditHistory:     history,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

func (r Request) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.view())
}

// PopulatedRequest is a Request with its student and team resolved.
type PopulatedRequest struct {
	Request
	Student *user.Summary
	Team    *user.Team
}

func (p PopulatedRequest) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		requestView
		Student *user.Summary `json:"student"`
		Team    *user.Team    `json:"team"`
	}{p.Request.view(), p.Student, p.Team})
}

// NewRequest contains information needed to submit a new Request.
type NewRequest struct {
	SlNo           string  `json:"slNo" validate:"required,notblank"`
	SprintNo       string  `json:"sprintNo" validate:"required,notblank"`
	Date           string  `json:"date" validate:"required,isodate"`
	PartName       string  `json:"partName" validate:"required,notblank"`
	ConsumableName string  `json:"consumableName" validate:"required,notblank"`
	Specification  string  `json:"specification" validate:"required,notblank"`
	Qty            int     `json:"qty" validate:"required,gte=1"`
	Length         float64 `json:"length" validate:"gte=0"`
	Width          float64 `json:"width" validate:"gte=0"`
	Thickness      float64 `json:"thickness" validate:"gte=0"`
	Weight         float64 `json:"weight" validate:"gte=0"`
	NotifyGuide    *bool   `json:"notifyGuide"`
}

func (nr *NewRequest) Validate(validate *validator.Validate) error {
	nr.SlNo = core.CleanString(nr.SlNo)
	nr.SprintNo = core.CleanString(nr.SprintNo)
	nr.Date = core.CleanString(nr.Date)
	nr.PartName = core.CleanString(nr.PartName)
	nr.ConsumableName = core.CleanString(nr.ConsumableName)
	nr.Specification = core.CleanString(nr.Specification)
	return validate.Struct(nr)
}

func (nr NewRequest) shouldNotifyGuide() bool {
	return nr.NotifyGuide == nil || *nr.NotifyGuide
}

// GuideUpdate is a guide's decision and/or edit of a Request.
type GuideUpdate struct {
	ID             string  `json:"id"`
	Status         *string `json:"status"`
	Reason         *string `json:"reason"`
	SlNo           *string `json:"slNo"`
	SprintNo       *string `json:"sprintNo"`
	Date           *string `json:"date"`
	PartName       *string `json:"partName"`
	ConsumableName *string `json:"consumableName"`
	Specification  *string `json:"specification"`
	Qty            *int    `json:"qty"`
}

func (gu GuideUpdate) edits() Edits {
	return Edits{
		SlNo:           gu.SlNo,
		SprintNo:       gu.SprintNo,
		Date:           gu.Date,
		PartName:       gu.PartName,
		ConsumableName: gu.ConsumableName,
		Specification:  gu.Specification,
		Qty:            gu.Qty,
	}
}

// LabEdits are the fields a lab incharge may edit.
type LabEdits struct {
	ConsumableName *string  `json:"consumableName"`
	Specification  *string  `json:"specification"`
	Qty            *int     `json:"qty"`
	PartName       *string  `json:"partName"`
	SprintNo       *string  `json:"sprintNo"`
	Length         *float64 `json:"length"`
	Width          *float64 `json:"width"`
	Thickness      *float64 `json:"thickness"`
	Weight         *float64 `json:"weight"`
}

func (le LabEdits) edits() Edits {
	return Edits{
		ConsumableName: le.ConsumableName,
		Specification:  le.Specification,
		Qty:            le.Qty,
		PartName:       le.PartName,
		SprintNo:       le.SprintNo,
		Length:         le.Length,
		Width:          le.Width,
		Thickness:      le.Thickness,
		Weight:         le.Weight,
	}
}

// LabUpdate is a lab incharge's edit of a Request.
type LabUpdate struct {
	ID      string   `json:"id"`
	Updates LabEdits `json:"updates"`
}

// LabDecision is a lab incharge's approval or rejection of a Request.
type LabDecision struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// StudentUpdate is the owner's edit of a Request not yet approved by the guide.
type StudentUpdate struct {
	SlNo           *string  `json:"slNo"`
	SprintNo       *string  `json:"sprintNo"`
	Date           *string  `json:"date"`
	PartName       *string  `json:"partName"`
	ConsumableName *string  `json:"consumableName"`
	Specification  *string  `json:"specification"`
	Qty            *int     `json:"qty"`
	Length         *float64 `json:"length"`
	Width          *float64 `json:"width"`
	Thickness      *float64 `json:"thickness"`
	Weight         *float64 `json:"weight"`
}

func (su StudentUpdate) edits() Edits {
	return Edits(su)
}

// QueryFilter applies AND between set fields; StudentID and TeamID are OR-ed together.
type QueryFilter struct {
	StudentID string
	TeamID    string
	GuideID   string
	Stages    []Stage
}
