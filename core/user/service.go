package user

import (
	"context"
	"errors"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/trezcool/labportal/core"
)

var (
	// errors
	ErrNotFound      = errors.New("user not found")
	ErrTeamNotFound  = errors.New("team not found")
	ErrUserExists    = errors.New("a user with this username or email already exists")
	ErrNotAStudent   = errors.New("user is not a student")
	ErrNotAFaculty   = errors.New("guide must be a faculty member")
	errEmptyPassword = errors.New("password cannot be empty")
)

type (
	Repository interface {
		CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers ...User) error
		CreateUser(ctx context.Context, usr User) (User, error)
		QueryUsers(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error)
		GetUser(ctx context.Context, filter GetFilter) (User, error)
		UpdateUser(ctx context.Context, usr User) (User, error)
		GetTeam(ctx context.Context, id string) (Team, error)
		GetOrCreateTeam(ctx context.Context, name string) (Team, error)
	}

	Service interface {
		CheckUniqueness(uname, email string, excludedUsers ...User) error
		Create(ctx context.Context, nu NewUser) (User, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error)
		GetByID(ctx context.Context, id string) (User, error)
		GetByUsernameOrEmail(ctx context.Context, uname string) (User, error)
		GetTeam(ctx context.Context, id string) (Team, error)
		SetLastLogin(ctx context.Context, usr User) (User, error)
		SetPassword(ctx context.Context, uname, pwd string) error
		AssignGuide(ctx context.Context, studentID string, ag AssignGuide) (User, error)
	}

	service struct {
		repo Repository
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (svc *service) CheckUniqueness(uname, email string, exclUsers ...User) error {
	if err := svc.repo.CheckUsernameUniqueness(context.Background(), uname, email, exclUsers...); err != nil {
		if err == ErrUserExists {
			return core.NewValidationError(err, core.FieldError{Field: "username", Error: err.Error()})
		}
		return err
	}
	return nil
}

func (svc *service) Create(ctx context.Context, nu NewUser) (User, error) {
	now := time.Now().UTC()
	usr := User{
		Name:      nu.Name,
		Username:  nu.Username,
		Email:     nu.Email,
		Roles:     nu.Roles,
		CreatedAt: now,
		UpdatedAt: now,
	}
	usr.SetActive(true)
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, pkgerrors.Wrap(err, "setting password")
	}
	return svc.repo.CreateUser(ctx, usr)
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error) {
	return svc.repo.QueryUsers(ctx, filter, ordering)
}

func (svc *service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: core.CleanString(id)})
}

func (svc *service) GetByUsernameOrEmail(ctx context.Context, uname string) (User, error) {
	uname = core.CleanString(uname, true /* lower */)
	if uname == "" {
		return User{}, ErrNotFound
	}
	return svc.repo.GetUser(ctx, GetFilter{UsernameOrEmail: []string{uname}})
}

func (svc *service) GetTeam(ctx context.Context, id string) (Team, error) {
	return svc.repo.GetTeam(ctx, id)
}

func (svc *service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	usr.LastLogin = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *service) SetPassword(ctx context.Context, uname, pwd string) error {
	if pwd == "" {
		return errEmptyPassword
	}
	usr, err := svc.GetByUsernameOrEmail(ctx, uname)
	if err != nil {
		return err
	}
	if err = usr.SetPassword(pwd); err != nil {
		return pkgerrors.Wrap(err, "setting password")
	}
	usr.UpdatedAt = time.Now().UTC()
	_, err = svc.repo.UpdateUser(ctx, usr)
	return err
}

// AssignGuide sets the guide (and team, when named) of a student.
// Requests submitted afterwards are routed to the new guide; existing ones keep theirs.
func (svc *service) AssignGuide(ctx context.Context, studentID string, ag AssignGuide) (User, error) {
	student, err := svc.GetByID(ctx, studentID)
	if err != nil {
		return User{}, err
	}
	if !student.IsStudent() {
		return User{}, core.NewValidationError(ErrNotAStudent)
	}

	guide, err := svc.GetByID(ctx, ag.GuideID)
	if err != nil {
		if err == ErrNotFound {
			return User{}, core.NewValidationError(err, core.FieldError{Field: "guideId", Error: err.Error()})
		}
		return User{}, err
	}
	if !guide.IsFaculty() {
		return User{}, core.NewValidationError(ErrNotAFaculty, core.FieldError{Field: "guideId", Error: ErrNotAFaculty.Error()})
	}
	student.GuideID = guide.ID

	if ag.TeamName != "" {
		team, err := svc.repo.GetOrCreateTeam(ctx, ag.TeamName)
		if err != nil {
			return User{}, pkgerrors.Wrap(err, "getting team")
		}
		student.TeamID = team.ID
	}

	student.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, student)
}
