package bom

import (
	"context"
	"errors"
	"fmt"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/trezcool/labportal/core"
	"github.com/trezcool/labportal/core/user"
)

var (
	// errors
	ErrNotFound             = errors.New("BOM request not found")
	ErrStudentNotFound      = errors.New("student not found")
	ErrNotAuthorized        = errors.New("not authorized to access this BOM request")
	ErrNoGuideAssigned      = errors.New("no guide assigned to this student")
	ErrGuideApprovalPending = errors.New("BOM request has not been approved by the guide yet")
	ErrInvalidStatus        = errors.New("invalid status")
	ErrRequestLocked        = errors.New("BOM request can no longer be modified once approved by the guide")

	errValidation = errors.New("validation failed")
	errMissingID  = core.NewValidationError(errValidation, core.FieldError{Field: "id", Error: "this field is required"})
)

// Actors, as recorded by the transition metrics.
const (
	ActorStudent     = "student"
	ActorGuide       = "guide"
	ActorLabIncharge = "labIncharge"
)

type (
	// Mutation edits r in place and reports whether anything changed.
	// Returning an error aborts the update without writing.
	Mutation func(r *Request) (changed bool, err error)

	Repository interface {
		CreateRequest(ctx context.Context, r Request) (Request, error)
		GetRequest(ctx context.Context, id string) (Request, error)
		// QueryRequests returns the matching requests, newest first.
		QueryRequests(ctx context.Context, filter QueryFilter) ([]Request, error)
		// UpdateRequest applies fn to the stored request under a per-record lock and
		// persists the result when fn reports a change.
		UpdateRequest(ctx context.Context, id string, fn Mutation) (Request, error)
		// DeleteRequest deletes the request if check, run under the same lock, passes.
		DeleteRequest(ctx context.Context, id string, check func(r Request) error) error
	}

	// UserFinder resolves the accounts referenced by requests.
	UserFinder interface {
		GetByID(ctx context.Context, id string) (user.User, error)
		GetTeam(ctx context.Context, id string) (user.Team, error)
	}

	// Metrics records workflow transitions.
	Metrics interface {
		Transition(actor, action string)
	}

	Service interface {
		Submit(ctx context.Context, studentID string, nr NewRequest) (Request, error)
		ListForStudent(ctx context.Context, studentID string) ([]Request, error)
		ListForGuide(ctx context.Context, guideID string) ([]PopulatedRequest, error)
		ListForLab(ctx context.Context) ([]PopulatedRequest, error)
		GuideUpdate(ctx context.Context, guideID string, gu GuideUpdate) (Request, error)
		StudentUpdate(ctx context.Context, studentID, id string, su StudentUpdate) (Request, error)
		StudentDelete(ctx context.Context, studentID, id string) error
		LabApprove(ctx context.Context, actorID string, ld LabDecision) (Request, error)
		LabReject(ctx context.Context, actorID string, ld LabDecision) (Request, error)
		LabEdit(ctx context.Context, actorID string, lu LabUpdate) (Request, error)
	}

	service struct {
		repo    Repository
		users   UserFinder
		mailSvc core.EmailService
		logger  core.Logger
		metrics Metrics
		nowFunc func() time.Time
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, users UserFinder, mailSvc core.EmailService, logger core.Logger, metrics Metrics) Service {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &service{
		repo:    repo,
		users:   users,
		mailSvc: mailSvc,
		logger:  logger,
		metrics: metrics,
		nowFunc: func() time.Time { return time.Now().UTC() },
	}
}

type nopMetrics struct{}

func (nopMetrics) Transition(string, string) {}

// Submit creates a pending request for the student, routed to their assigned guide.
func (svc *service) Submit(ctx context.Context, studentID string, nr NewRequest) (Request, error) {
	student, err := svc.users.GetByID(ctx, studentID)
	if err != nil {
		if err == user.ErrNotFound {
			return Request{}, ErrStudentNotFound
		}
		return Request{}, pkgerrors.Wrap(err, "finding student")
	}
	if student.GuideID == "" {
		return Request{}, ErrNoGuideAssigned
	}

	date, err := core.ParseDate(nr.Date)
	if err != nil {
		return Request{}, core.NewValidationError(errValidation, core.FieldError{Field: "date", Error: "must be a date formatted as YYYY-MM-DD"})
	}

	now := svc.nowFunc()
	r, err := svc.repo.CreateRequest(ctx, Request{
		StudentID:      student.ID,
		GuideID:        student.GuideID,
		TeamID:         student.TeamID,
		SlNo:           nr.SlNo,
		SprintNo:       nr.SprintNo,
		Date:           date,
		PartName:       nr.PartName,
		ConsumableName: nr.ConsumableName,
		Specification:  nr.Specification,
		Qty:            nr.Qty,
		Length:         nr.Length,
		Width:          nr.Width,
		Thickness:      nr.Thickness,
		Weight:         nr.Weight,
		Stage:          StagePending,
		EditHistory:    EditHistory{},
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		return Request{}, pkgerrors.Wrap(err, "creating BOM request")
	}
	svc.metrics.Transition(ActorStudent, "submit")

	if nr.shouldNotifyGuide() {
		svc.notifyGuide(ctx, student, r)
	}
	return r, nil
}

func (svc *service) ListForStudent(ctx context.Context, studentID string) ([]Request, error) {
	student, err := svc.users.GetByID(ctx, studentID)
	if err != nil {
		if err == user.ErrNotFound {
			return nil, ErrStudentNotFound
		}
		return nil, pkgerrors.Wrap(err, "finding student")
	}
	return svc.repo.QueryRequests(ctx, QueryFilter{StudentID: student.ID, TeamID: student.TeamID})
}

func (svc *service) ListForGuide(ctx context.Context, guideID string) ([]PopulatedRequest, error) {
	requests, err := svc.repo.QueryRequests(ctx, QueryFilter{GuideID: guideID})
	if err != nil {
		return nil, err
	}
	return svc.populate(ctx, requests)
}

// ListForLab only ever returns requests approved by the guide.
func (svc *service) ListForLab(ctx context.Context) ([]PopulatedRequest, error) {
	requests, err := svc.repo.QueryRequests(ctx, QueryFilter{Stages: GuideApprovedStages})
	if err != nil {
		return nil, err
	}
	return svc.populate(ctx, requests)
}

func (svc *service) populate(ctx context.Context, requests []Request) ([]PopulatedRequest, error) {
	students := make(map[string]*user.Summary)
	teams := make(map[string]*user.Team)

	populated := make([]PopulatedRequest, 0, len(requests))
	for _, r := range requests {
		p := PopulatedRequest{Request: r}

		if s, ok := students[r.StudentID]; ok {
			p.Student = s
		} else {
			usr, err := svc.users.GetByID(ctx, r.StudentID)
			if err != nil && err != user.ErrNotFound {
				return nil, pkgerrors.Wrap(err, "finding student")
			}
			if err == nil {
				summary := usr.Summary()
				p.Student = &summary
			}
			students[r.StudentID] = p.Student
		}

		if r.TeamID != "" {
			if t, ok := teams[r.TeamID]; ok {
				p.Team = t
			} else {
				team, err := svc.users.GetTeam(ctx, r.TeamID)
				if err != nil && err != user.ErrTeamNotFound {
					return nil, pkgerrors.Wrap(err, "finding team")
				}
				if err == nil {
					p.Team = &team
				}
				teams[r.TeamID] = p.Team
			}
		}

		populated = append(populated, p)
	}
	return populated, nil
}

// GuideUpdate applies the assigned guide's edits and decision in one atomic update.
// A "pending" status only edits: the stage is left as it is.
func (svc *service) GuideUpdate(ctx context.Context, guideID string, gu GuideUpdate) (Request, error) {
	gu.ID = core.CleanString(gu.ID)
	if gu.ID == "" {
		return Request{}, errMissingID
	}

	var status Status
	if gu.Status != nil {
		st, err := ParseStatus(core.CleanString(*gu.Status, true /* lower */))
		if err != nil {
			return Request{}, err
		}
		status = st
	}
	var reason string
	if gu.Reason != nil {
		reason = core.CleanString(*gu.Reason)
	}

	edits := gu.edits()
	if err := edits.clean(); err != nil {
		return Request{}, err
	}

	r, err := svc.repo.UpdateRequest(ctx, gu.ID, func(r *Request) (bool, error) {
		if r.GuideID != guideID {
			return false, ErrNotAuthorized
		}
		now := svc.nowFunc()

		changed := r.recordEdits(edits, guideEditable, guideID, EditorGuide, now)

		switch status {
		case StatusApproved:
			next, err := r.Stage.Next(ActionGuideApprove)
			if err != nil {
				return false, err
			}
			r.Stage = next
			r.GuideApprovedAt = now
			changed = true
		case StatusRejected:
			next, err := r.Stage.Next(ActionGuideReject)
			if err != nil {
				return false, err
			}
			r.Stage = next
			r.GuideApprovedAt = time.Time{}
			if reason != "" {
				r.RejectionReason = reason
			}
			changed = true
		}

		if changed {
			r.UpdatedAt = now
		}
		return changed, nil
	})
	if err != nil {
		return Request{}, err
	}

	switch status {
	case StatusApproved:
		svc.metrics.Transition(ActorGuide, "approve")
	case StatusRejected:
		svc.metrics.Transition(ActorGuide, "reject")
	}
	if status == StatusApproved || status == StatusRejected {
		svc.notifyStudent(ctx, r, status, reason)
	}
	return r, nil
}

// recordEdits applies the edits and appends one history entry covering every changed field.
func (r *Request) recordEdits(e Edits, allowed []Field, editor string, role EditorRole, at time.Time) bool {
	changes := r.applyEdits(e, allowed)
	if len(changes) == 0 {
		return false
	}
	r.EditHistory = append(r.EditHistory, EditEntry{
		EditedBy:     editor,
		EditedByRole: role,
		EditedAt:     at,
		Changes:      changes,
	})
	return true
}

// StudentUpdate lets the owner edit their request until the guide approves it.
func (svc *service) StudentUpdate(ctx context.Context, studentID, id string, su StudentUpdate) (Request, error) {
	edits := su.edits()
	if err := edits.clean(); err != nil {
		return Request{}, err
	}

	return svc.repo.UpdateRequest(ctx, id, func(r *Request) (bool, error) {
		if err := checkOwnerCanModify(*r, studentID); err != nil {
			return false, err
		}
		if changes := r.applyEdits(edits, studentEditable); len(changes) == 0 {
			return false, nil
		}
		r.UpdatedAt = svc.nowFunc()
		return true, nil
	})
}

// StudentDelete lets the owner delete their request until the guide approves it.
func (svc *service) StudentDelete(ctx context.Context, studentID, id string) error {
	err := svc.repo.DeleteRequest(ctx, id, func(r Request) error {
		return checkOwnerCanModify(r, studentID)
	})
	if err != nil {
		return err
	}
	svc.metrics.Transition(ActorStudent, "delete")
	return nil
}

// checkOwnerCanModify locks requests once approved by the guide, whatever the lab decided since.
func checkOwnerCanModify(r Request, studentID string) error {
	if r.StudentID != studentID {
		return ErrNotAuthorized
	}
	if r.GuideApproved() {
		return ErrRequestLocked
	}
	return nil
}

// LabApprove records the lab's approval; the status set by the guide is kept.
func (svc *service) LabApprove(ctx context.Context, actorID string, ld LabDecision) (Request, error) {
	r, err := svc.labDecide(ctx, actorID, ld, ActionLabApprove)
	if err != nil {
		return Request{}, err
	}
	svc.metrics.Transition(ActorLabIncharge, "approve")
	return r, nil
}

// LabReject records the lab's rejection and its reason, if any.
func (svc *service) LabReject(ctx context.Context, actorID string, ld LabDecision) (Request, error) {
	r, err := svc.labDecide(ctx, actorID, ld, ActionLabReject)
	if err != nil {
		return Request{}, err
	}
	svc.metrics.Transition(ActorLabIncharge, "reject")
	return r, nil
}

func (svc *service) labDecide(ctx context.Context, actorID string, ld LabDecision, action Action) (Request, error) {
	id := core.CleanString(ld.ID)
	if id == "" {
		return Request{}, errMissingID
	}
	reason := core.CleanString(ld.Reason)

	return svc.repo.UpdateRequest(ctx, id, func(r *Request) (bool, error) {
		next, err := r.Stage.Next(action)
		if err != nil {
			return false, err
		}
		now := svc.nowFunc()
		r.Stage = next
		r.LabApprovedBy = actorID
		r.LabApprovedAt = now
		if action == ActionLabReject && reason != "" {
			r.RejectionReason = reason
		}
		r.UpdatedAt = now
		return true, nil
	})
}

// LabEdit applies a lab incharge's edits to a request approved by the guide.
func (svc *service) LabEdit(ctx context.Context, actorID string, lu LabUpdate) (Request, error) {
	id := core.CleanString(lu.ID)
	if id == "" {
		return Request{}, errMissingID
	}
	edits := lu.Updates.edits()
	if err := edits.clean(); err != nil {
		return Request{}, err
	}

	r, err := svc.repo.UpdateRequest(ctx, id, func(r *Request) (bool, error) {
		if !r.GuideApproved() {
			return false, ErrGuideApprovalPending
		}
		now := svc.nowFunc()
		if !r.recordEdits(edits, labEditable, actorID, EditorLabIncharge, now) {
			return false, nil
		}
		r.UpdatedAt = now
		return true, nil
	})
	if err != nil {
		return Request{}, err
	}
	svc.metrics.Transition(ActorLabIncharge, "edit")
	return r, nil
}

// notifyGuide tells the guide about a new request. Failures are logged only.
func (svc *service) notifyGuide(ctx context.Context, student user.User, r Request) {
	guide, err := svc.users.GetByID(ctx, r.GuideID)
	if err != nil {
		svc.logger.Error(fmt.Sprintf("notifying guide of BOM request %s: %v", r.ID, err), err)
		return
	}
	if guide.Email == "" {
		svc.logger.Warn(fmt.Sprintf("guide %s has no email: BOM request %s not notified", guide.ID, r.ID))
		return
	}

	var teamName string
	if r.TeamID != "" {
		if team, err := svc.users.GetTeam(ctx, r.TeamID); err == nil {
			teamName = team.Name
		}
	}
	svc.mailSvc.SendMessages(newGuideNotification(guide, student, teamName, r))
}

// notifyStudent tells the student about the guide's decision. Failures are logged only.
func (svc *service) notifyStudent(ctx context.Context, r Request, status Status, reason string) {
	student, err := svc.users.GetByID(ctx, r.StudentID)
	if err != nil {
		svc.logger.Error(fmt.Sprintf("notifying student of BOM request %s: %v", r.ID, err), err)
		return
	}
	if student.Email == "" {
		svc.logger.Warn(fmt.Sprintf("student %s has no email: BOM request %s decision not notified", student.ID, r.ID))
		return
	}
	svc.mailSvc.SendMessages(newStudentNotification(student, r, status, reason))
}
