package bom

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStage_Next(t *testing.T) {
	tests := []struct {
		name    string
		from    Stage
		action  Action
		want    Stage
		wantErr error
	}{
		{"guide approves pending", StagePending, ActionGuideApprove, StageGuideApproved, nil},
		{"guide re-approves", StageGuideApproved, ActionGuideApprove, StageGuideApproved, nil},
		{"guide approves after rejecting", StageGuideRejected, ActionGuideApprove, StageGuideApproved, nil},
		{"guide approval keeps lab approval", StageLabApproved, ActionGuideApprove, StageLabApproved, nil},
		{"guide approves after lab rejection", StageLabRejected, ActionGuideApprove, StageGuideApproved, nil},
		{"guide rejects pending", StagePending, ActionGuideReject, StageGuideRejected, nil},
		{"guide rejects lab approved", StageLabApproved, ActionGuideReject, StageGuideRejected, nil},
		{"lab approves", StageGuideApproved, ActionLabApprove, StageLabApproved, nil},
		{"lab approves after rejecting", StageLabRejected, ActionLabApprove, StageLabApproved, nil},
		{"lab rejects", StageGuideApproved, ActionLabReject, StageLabRejected, nil},
		{"lab rejects lab approved", StageLabApproved, ActionLabReject, StageLabRejected, nil},
		{"lab approves pending", StagePending, ActionLabApprove, StagePending, ErrGuideApprovalPending},
		{"lab approves guide rejected", StageGuideRejected, ActionLabApprove, StageGuideRejected, ErrGuideApprovalPending},
		{"lab rejects pending", StagePending, ActionLabReject, StagePending, ErrGuideApprovalPending},
		{"unknown action", StagePending, Action("nope"), StagePending, ErrInvalidStatus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.from.Next(tt.action)
			assert.Equal(t, tt.wantErr, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStage_derivedFlags(t *testing.T) {
	tests := []struct {
		stage         Stage
		status        Status
		guideApproved bool
		labApproved   bool
	}{
		{StagePending, StatusPending, false, false},
		{StageGuideApproved, StatusApproved, true, false},
		{StageGuideRejected, StatusRejected, false, false},
		{StageLabApproved, StatusApproved, true, true},
		{StageLabRejected, StatusRejected, true, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.stage), func(t *testing.T) {
			assert.True(t, tt.stage.Valid())
			assert.Equal(t, tt.status, tt.stage.Status())
			assert.Equal(t, tt.guideApproved, tt.stage.GuideApproved())
			assert.Equal(t, tt.labApproved, tt.stage.LabApproved())
		})
	}
	assert.False(t, Stage("approved").Valid())
}

// Every stage reachable by a lab action must be guide-approved beforehand.
func TestTransitions_labGating(t *testing.T) {
	for _, a := range []Action{ActionLabApprove, ActionLabReject} {
		for from := range transitions[a] {
			assert.True(t, from.GuideApproved(), "%s allowed from %s", a, from)
		}
	}
	for from, to := range transitions[ActionGuideReject] {
		assert.False(t, to.LabApproved(), "lab approval survives guide rejection from %s", from)
	}
}

func TestParseStatus(t *testing.T) {
	for _, s := range []string{"pending", "approved", "rejected"} {
		st, err := ParseStatus(s)
		assert.NoError(t, err)
		assert.Equal(t, Status(s), st)
	}
	_, err := ParseStatus("done")
	assert.Equal(t, ErrInvalidStatus, err)
}
