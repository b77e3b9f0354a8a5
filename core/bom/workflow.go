package bom

// Stage is the single stored workflow state of a Request.
// The legacy (status, guideApproved, labApproved) triple is derived from it.
type Stage string

const (
	StagePending       Stage = "pending"
	StageGuideApproved Stage = "guide_approved"
	StageGuideRejected Stage = "guide_rejected"
	StageLabApproved   Stage = "lab_approved"
	StageLabRejected   Stage = "lab_rejected"
)

// Status is the tri-state decision exposed to clients.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// ParseStatus validates a client supplied status value.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusApproved, StatusRejected:
		return st, nil
	}
	return "", ErrInvalidStatus
}

// Action is a decision applied to a Request by an approver.
type Action string

const (
	ActionGuideApprove Action = "guide:approve"
	ActionGuideReject  Action = "guide:reject"
	ActionLabApprove   Action = "lab:approve"
	ActionLabReject    Action = "lab:reject"
)

// transitions maps every action to the stages it may be applied from, and where it leads.
var transitions = map[Action]map[Stage]Stage{
	ActionGuideApprove: {
		StagePending:       StageGuideApproved,
		StageGuideApproved: StageGuideApproved,
		StageGuideRejected: StageGuideApproved,
		StageLabApproved:   StageLabApproved,
		StageLabRejected:   StageGuideApproved,
	},
	ActionGuideReject: {
		StagePending:       StageGuideRejected,
		StageGuideApproved: StageGuideRejected,
		StageGuideRejected: StageGuideRejected,
		StageLabApproved:   StageGuideRejected,
		StageLabRejected:   StageGuideRejected,
	},
	ActionLabApprove: {
		StageGuideApproved: StageLabApproved,
		StageLabApproved:   StageLabApproved,
		StageLabRejected:   StageLabApproved,
	},
	ActionLabReject: {
		StageGuideApproved: StageLabRejected,
		StageLabApproved:   StageLabRejected,
		StageLabRejected:   StageLabRejected,
	},
}

// Next returns the stage reached by applying a to s.
// Lab actions on a stage the guide has not approved fail with ErrGuideApprovalPending.
func (s Stage) Next(a Action) (Stage, error) {
	from, ok := transitions[a]
	if !ok {
		return s, ErrInvalidStatus
	}
	to, ok := from[s]
	if !ok {
		return s, ErrGuideApprovalPending
	}
	return to, nil
}

func (s Stage) Valid() bool {
	switch s {
	case StagePending, StageGuideApproved, StageGuideRejected, StageLabApproved, StageLabRejected:
		return true
	}
	return false
}

func (s Stage) Status() Status {
	switch s {
	case StageGuideApproved, StageLabApproved:
		return StatusApproved
	case StageGuideRejected, StageLabRejected:
		return StatusRejected
	default:
		return StatusPending
	}
}

// GuideApproved reports whether the guide's approval stands.
// A lab rejection does not revoke it.
func (s Stage) GuideApproved() bool {
	return s == StageGuideApproved || s == StageLabApproved || s == StageLabRejected
}

func (s Stage) LabApproved() bool {
	return s == StageLabApproved
}

// GuideApprovedStages lists the stages visible to lab incharges.
var GuideApprovedStages = []Stage{StageGuideApproved, StageLabApproved, StageLabRejected}
