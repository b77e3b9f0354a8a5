package echoapi

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/labportal/core"
	"github.com/trezcool/labportal/core/bom"
	"github.com/trezcool/labportal/core/user"
)

func newRequestData() map[string]interface{} {
	return map[string]interface{}{
		"slNo":           "001",
		"sprintNo":       "S1",
		"date":           "2024-03-01",
		"partName":       "Bracket",
		"consumableName": "Aluminium sheet",
		"specification":  "2mm, anodised",
		"qty":            2,
		"length":         10,
	}
}

type requestJSON struct {
	ID              string          `json:"id"`
	StudentID       string          `json:"studentId"`
	GuideID         string          `json:"guideId"`
	Qty             int             `json:"qty"`
	PartName        string          `json:"partName"`
	Stage           bom.Stage       `json:"stage"`
	Status          bom.Status      `json:"status"`
	GuideApproved   bool            `json:"guideApproved"`
	LabApproved     bool            `json:"labApproved"`
	LabApprovedBy   *string         `json:"labApprovedBy"`
	RejectionReason string          `json:"rejectionReason"`
	EditHistory     bom.EditHistory `json:"editHistory"`
	Student         *user.Summary   `json:"student"`
	Team            *user.Team      `json:"team"`
}

func (app *testApp) submit(t *testing.T, student user.User) requestJSON {
	rec, res := app.do(t, http.MethodPost, "/v1/bom", student, newRequestData())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var r requestJSON
	res.decode(t, &r)
	return r
}

func (app *testApp) guideApprove(t *testing.T, id string) {
	rec, _ := app.do(t, http.MethodPatch, "/v1/bom", app.guide, map[string]string{"id": id, "status": "approved"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestBOMApi_Submit(t *testing.T) {
	app := setup(t)

	t.Run("pending and routed to the guide", func(t *testing.T) {
		r := app.submit(t, app.student)
		assert.NotEmpty(t, r.ID)
		assert.Equal(t, app.student.ID, r.StudentID)
		assert.Equal(t, app.guide.ID, r.GuideID)
		assert.Equal(t, bom.StagePending, r.Stage)
		assert.Equal(t, bom.StatusPending, r.Status)
		assert.False(t, r.GuideApproved)
		assert.Empty(t, r.EditHistory)

		msgs := app.mailSvc.SentMessages()
		require.Len(t, msgs, 1)
		assert.Equal(t, app.guide.Email, msgs[0].To[0].Address)
	})

	t.Run("students only", func(t *testing.T) {
		for _, usr := range []user.User{app.guide, app.lab, app.admin} {
			rec, res := app.do(t, http.MethodPost, "/v1/bom", usr, newRequestData())
			assert.Equal(t, http.StatusForbidden, rec.Code)
			assert.False(t, res.Success)
			assert.Equal(t, "permission denied", res.Message)
		}
	})

	t.Run("unauthenticated", func(t *testing.T) {
		rec, _ := app.do(t, http.MethodPost, "/v1/bom", user.User{}, newRequestData())
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("invalid payload", func(t *testing.T) {
		data := newRequestData()
		data["qty"] = 0
		data["date"] = "01/03/2024"
		data["partName"] = "   "
		delete(data, "slNo")

		rec, res := app.do(t, http.MethodPost, "/v1/bom", app.student, data)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, errValidation, res.Message)
		assert.Equal(t, "this field is required", res.Errors["slNo"])
		assert.Equal(t, "must be a date formatted as YYYY-MM-DD", res.Errors["date"])
		assert.Contains(t, res.Errors, "qty")
		assert.Contains(t, res.Errors, "partName")
	})

	t.Run("no guide assigned", func(t *testing.T) {
		usr := app.stranger
		usr.GuideID = ""
		_, err := app.usrRepo.UpdateUser(context.Background(), usr)
		require.NoError(t, err)

		rec, res := app.do(t, http.MethodPost, "/v1/bom", app.stranger, newRequestData())
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, bom.ErrNoGuideAssigned.Error(), res.Message)
	})
}

func TestBOMApi_Workflow(t *testing.T) {
	app := setup(t)
	r := app.submit(t, app.student)

	// lab cannot act before the guide
	rec, res := app.do(t, http.MethodPatch, "/v1/bom/approve", app.lab, map[string]string{"id": r.ID})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, bom.ErrGuideApprovalPending.Error(), res.Message)

	// guide edits and approves in one call
	rec, res = app.do(t, http.MethodPatch, "/v1/bom", app.guide, map[string]interface{}{"id": r.ID, "status": "APPROVED", "qty": 5})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res.decode(t, &r)
	assert.Equal(t, bom.StageGuideApproved, r.Stage)
	assert.True(t, r.GuideApproved)
	assert.Equal(t, 5, r.Qty)
	require.Len(t, r.EditHistory, 1)
	assert.Equal(t, bom.EditorGuide, r.EditHistory[0].EditedByRole)

	// locked for the student from now on
	rec, res = app.do(t, http.MethodPut, "/v1/bom/"+r.ID, app.student, map[string]interface{}{"qty": 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, bom.ErrRequestLocked.Error(), res.Message)
	rec, _ = app.do(t, http.MethodDelete, "/v1/bom/"+r.ID, app.student, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// lab edits then approves
	rec, res = app.do(t, http.MethodPatch, "/v1/bom/edit", app.lab, map[string]interface{}{
		"id":      r.ID,
		"updates": map[string]interface{}{"weight": 1.5, "partName": "Bracket v2"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res.decode(t, &r)
	assert.Equal(t, "Bracket v2", r.PartName)
	require.Len(t, r.EditHistory, 2)
	assert.Equal(t, bom.EditorLabIncharge, r.EditHistory[1].EditedByRole)
	assert.Len(t, r.EditHistory[1].Changes, 2)

	rec, res = app.do(t, http.MethodPatch, "/v1/bom/approve", app.lab, map[string]string{"id": r.ID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res.decode(t, &r)
	assert.Equal(t, bom.StageLabApproved, r.Stage)
	assert.True(t, r.LabApproved)
	require.NotNil(t, r.LabApprovedBy)
	assert.Equal(t, app.lab.ID, *r.LabApprovedBy)

	// only the guide decision is mailed to the student
	var toStudent int
	for _, msg := range app.mailSvc.SentMessages() {
		if msg.To[0].Address == app.student.Email {
			toStudent++
		}
	}
	assert.Equal(t, 1, toStudent)

	// lab list shows the populated request
	rec, res = app.do(t, http.MethodGet, "/v1/bom", app.lab, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []requestJSON
	res.decode(t, &list)
	require.Len(t, list, 1)
	require.NotNil(t, list[0].Student)
	assert.Equal(t, app.student.Username, list[0].Student.Username)
	require.NotNil(t, list[0].Team)
	assert.Equal(t, "Rover", list[0].Team.Name)

	// lab reject keeps the guide approval
	rec, res = app.do(t, http.MethodPatch, "/v1/bom/reject", app.lab, map[string]string{"id": r.ID, "reason": "out of stock"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res.decode(t, &r)
	assert.Equal(t, bom.StageLabRejected, r.Stage)
	assert.Equal(t, bom.StatusRejected, r.Status)
	assert.True(t, r.GuideApproved)
	assert.False(t, r.LabApproved)
	assert.Equal(t, "out of stock", r.RejectionReason)
}

func TestBOMApi_GuideUpdate(t *testing.T) {
	app := setup(t)
	r := app.submit(t, app.student)

	tests := []struct {
		name     string
		usr      user.User
		data     map[string]interface{}
		wantCode int
		wantMsg  string
	}{
		{"faculty only", app.student, map[string]interface{}{"id": r.ID, "status": "approved"}, http.StatusForbidden, "permission denied"},
		{"missing id", app.guide, map[string]interface{}{"status": "approved"}, http.StatusBadRequest, "validation failed"},
		{"unknown request", app.guide, map[string]interface{}{"id": "nope", "status": "approved"}, http.StatusNotFound, bom.ErrNotFound.Error()},
		{"invalid status", app.guide, map[string]interface{}{"id": r.ID, "status": "maybe"}, http.StatusBadRequest, bom.ErrInvalidStatus.Error()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, res := app.do(t, http.MethodPatch, "/v1/bom", tt.usr, tt.data)
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.False(t, res.Success)
			assert.Equal(t, tt.wantMsg, res.Message)
		})
	}

	t.Run("not the assigned guide", func(t *testing.T) {
		other, err := user.NewService(app.usrRepo).Create(context.Background(), user.NewUser{
			Name: "Other", Username: "guide2", Password: testPassword, Roles: []string{user.RoleFaculty},
		})
		require.NoError(t, err)

		rec, res := app.do(t, http.MethodPatch, "/v1/bom", other, map[string]interface{}{"id": r.ID, "status": "approved"})
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, bom.ErrNotAuthorized.Error(), res.Message)
	})

	t.Run("reject with reason", func(t *testing.T) {
		rec, res := app.do(t, http.MethodPatch, "/v1/bom", app.guide, map[string]interface{}{"id": r.ID, "status": "rejected", "reason": "too expensive"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var got requestJSON
		res.decode(t, &got)
		assert.Equal(t, bom.StageGuideRejected, got.Stage)
		assert.Equal(t, "too expensive", got.RejectionReason)
	})
}

func TestBOMApi_List(t *testing.T) {
	app := setup(t)
	mine := app.submit(t, app.student)
	teams := app.submit(t, app.teammate)
	other := app.submit(t, app.stranger)
	app.guideApprove(t, teams.ID)

	ids := func(list []requestJSON) []string {
		out := make([]string, 0, len(list))
		for _, r := range list {
			out = append(out, r.ID)
		}
		return out
	}

	tests := []struct {
		name string
		usr  user.User
		want []string
	}{
		{"student sees own and team requests", app.student, []string{teams.ID, mine.ID}},
		{"student without team sees own", app.stranger, []string{other.ID}},
		{"guide sees assigned requests", app.guide, []string{other.ID, teams.ID, mine.ID}},
		{"lab sees guide approved requests", app.lab, []string{teams.ID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, res := app.do(t, http.MethodGet, "/v1/bom", tt.usr, nil)
			require.Equal(t, http.StatusOK, rec.Code)
			var list []requestJSON
			res.decode(t, &list)
			assert.ElementsMatch(t, tt.want, ids(list))
		})
	}

	t.Run("admins have no list", func(t *testing.T) {
		rec, _ := app.do(t, http.MethodGet, "/v1/bom", app.admin, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestBOMApi_StudentUpdateAndDelete(t *testing.T) {
	app := setup(t)
	r := app.submit(t, app.student)

	t.Run("teammates cannot modify", func(t *testing.T) {
		rec, res := app.do(t, http.MethodPut, "/v1/bom/"+r.ID, app.teammate, map[string]interface{}{"qty": 9})
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, bom.ErrNotAuthorized.Error(), res.Message)

		rec, _ = app.do(t, http.MethodDelete, "/v1/bom/"+r.ID, app.teammate, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("owner updates", func(t *testing.T) {
		rec, res := app.do(t, http.MethodPut, "/v1/bom/"+r.ID, app.student, map[string]interface{}{"qty": 9, "specification": "3mm"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var got requestJSON
		res.decode(t, &got)
		assert.Equal(t, 9, got.Qty)
		assert.Empty(t, got.EditHistory)
	})

	t.Run("owner deletes", func(t *testing.T) {
		rec, res := app.do(t, http.MethodDelete, "/v1/bom/"+r.ID, app.student, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, res.Success)
		assert.Equal(t, "BOM request deleted", res.Message)

		rec, res = app.do(t, http.MethodDelete, "/v1/bom/"+r.ID, app.student, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, bom.ErrNotFound.Error(), res.Message)
	})
}

// failingService breaks every lab listing with err.
type failingService struct {
	bom.Service
	err error
}

func (svc failingService) ListForLab(context.Context) ([]bom.PopulatedRequest, error) {
	return nil, svc.err
}

func TestBOMApi_ServerErrors(t *testing.T) {
	t.Run("hides internal errors", func(t *testing.T) {
		app := setup(t, failingService{err: errors.New("connection reset")})

		rec, res := app.do(t, http.MethodGet, "/v1/bom", app.lab, nil)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.False(t, res.Success)
		assert.Equal(t, "Server Error", res.Message)
		assert.Contains(t, app.logger.Entries(), "ERROR: Server Error")
	})

	t.Run("shutdown errors stop the server", func(t *testing.T) {
		app := setup(t, failingService{err: core.NewShutdownError("integrity issue")})

		rec, _ := app.do(t, http.MethodGet, "/v1/bom", app.lab, nil)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		select {
		case <-app.server.ShutdownSignal():
		default:
			t.Fatal("shutdown was not signaled")
		}
	})
}
