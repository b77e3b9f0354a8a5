package user_test

import (
	"context"
	"testing"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/labportal/core"
	"github.com/trezcool/labportal/core/user"
	"github.com/trezcool/labportal/storage/database/inmem"
	"github.com/trezcool/labportal/tests"
)

func setup() (user.Service, user.Repository) {
	repo := inmemdb.NewUserRepository(inmemdb.Open())
	return user.NewService(repo), repo
}

func TestService_Create(t *testing.T) {
	svc, _ := setup()
	ctx := context.Background()

	usr, err := svc.Create(ctx, user.NewUser{
		Name:     "Ada",
		Username: "ada_lovelace",
		Email:    "ada@example.com",
		Password: "Analytical#1843",
		Roles:    []string{user.RoleFaculty},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, usr.ID)
	assert.True(t, usr.Active())
	assert.True(t, usr.IsFaculty())
	assert.NoError(t, usr.CheckPassword("Analytical#1843"))

	got, err := svc.GetByUsernameOrEmail(ctx, "  ADA@example.com ")
	require.NoError(t, err)
	assert.Equal(t, usr.ID, got.ID)

	err = svc.CheckUniqueness("ada_lovelace", "")
	require.Error(t, err)
	assert.True(t, core.IsValidationError(err))
	assert.NoError(t, svc.CheckUniqueness("ada_lovelace", "", usr))
}

func TestService_SetPassword(t *testing.T) {
	svc, repo := setup()
	ctx := context.Background()
	usr := testutil.CreateUser(t, repo, "User", "user01", "user@example.com", "old", nil, true)

	tests := []struct {
		name    string
		uname   string
		pwd     string
		wantErr error
	}{
		{"empty password", usr.Username, "", nil},
		{"unknown user", "nobody", "new", user.ErrNotFound},
		{"by username", usr.Username, "new", nil},
		{"by email", usr.Email, "newer", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.SetPassword(ctx, tt.uname, tt.pwd)
			if tt.pwd == "" {
				assert.Error(t, err)
				return
			}
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, err)
				return
			}
			require.NoError(t, err)
			got, err := svc.GetByID(ctx, usr.ID)
			require.NoError(t, err)
			assert.NoError(t, got.CheckPassword(tt.pwd))
		})
	}
}

func TestService_AssignGuide(t *testing.T) {
	svc, repo := setup()
	ctx := context.Background()
	guide := testutil.CreateUser(t, repo, "Guide", "guide1", "guide@example.com", "", []string{user.RoleFaculty}, true)
	lab := testutil.CreateUser(t, repo, "Lab", "lab001", "lab@example.com", "", []string{user.RoleLabIncharge}, true)
	student := testutil.CreateUser(t, repo, "Student", "student1", "student@example.com", "", []string{user.RoleStudent}, true)
	teammate := testutil.CreateUser(t, repo, "Teammate", "student2", "teammate@example.com", "", []string{user.RoleStudent}, true)

	t.Run("unknown student", func(t *testing.T) {
		_, err := svc.AssignGuide(ctx, "nope", user.AssignGuide{GuideID: guide.ID})
		assert.Equal(t, user.ErrNotFound, err)
	})

	t.Run("not a student", func(t *testing.T) {
		_, err := svc.AssignGuide(ctx, lab.ID, user.AssignGuide{GuideID: guide.ID})
		require.Error(t, err)
		assert.True(t, core.IsValidationError(err))
		assert.Equal(t, user.ErrNotAStudent.Error(), err.Error())
	})

	t.Run("guide must be faculty", func(t *testing.T) {
		_, err := svc.AssignGuide(ctx, student.ID, user.AssignGuide{GuideID: lab.ID})
		require.Error(t, err)
		vErr, ok := err.(*core.ValidationError)
		require.True(t, ok)
		assert.Equal(t, []core.FieldError{{Field: "guideId", Error: user.ErrNotAFaculty.Error()}}, vErr.Fields)
	})

	t.Run("unknown guide", func(t *testing.T) {
		_, err := svc.AssignGuide(ctx, student.ID, user.AssignGuide{GuideID: "nope"})
		require.Error(t, err)
		assert.True(t, core.IsValidationError(err))
	})

	t.Run("shared team", func(t *testing.T) {
		s1, err := svc.AssignGuide(ctx, student.ID, user.AssignGuide{GuideID: guide.ID, TeamName: "Rover"})
		require.NoError(t, err)
		s2, err := svc.AssignGuide(ctx, teammate.ID, user.AssignGuide{GuideID: guide.ID, TeamName: "Rover"})
		require.NoError(t, err)

		assert.Equal(t, guide.ID, s1.GuideID)
		assert.NotEmpty(t, s1.TeamID)
		assert.Equal(t, s1.TeamID, s2.TeamID)

		team, err := svc.GetTeam(ctx, s1.TeamID)
		require.NoError(t, err)
		assert.Equal(t, "Rover", team.Name)
	})

	t.Run("team kept when none given", func(t *testing.T) {
		before, err := svc.GetByID(ctx, student.ID)
		require.NoError(t, err)
		after, err := svc.AssignGuide(ctx, student.ID, user.AssignGuide{GuideID: guide.ID})
		require.NoError(t, err)
		assert.Equal(t, before.TeamID, after.TeamID)
	})
}

func TestNewUser_Validate(t *testing.T) {
	svc, repo := setup()
	testutil.CreateUser(t, repo, "Taken", "taken01", "taken@example.com", "", nil, true)

	translator, _ := ut.New(en.New(), en.New()).GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	valid := func() user.NewUser {
		return user.NewUser{
			Name:            " Grace Hopper ",
			Username:        " GHopper ",
			Password:        "Cobol-Compiler#59",
			PasswordConfirm: "Cobol-Compiler#59",
			Roles:           []string{user.RoleStudent},
		}
	}

	tests := []struct {
		name      string
		mutate    func(nu *user.NewUser)
		wantField string
		wantMsg   string
	}{
		{"valid", func(nu *user.NewUser) {}, "", ""},
		{"username or email", func(nu *user.NewUser) { nu.Username = "" }, "username", "one of username or email is required"},
		{"short password", func(nu *user.NewUser) { nu.Password, nu.PasswordConfirm = "Ab#1", "Ab#1" }, "password", ""},
		{"all numeric password", func(nu *user.NewUser) { nu.Password, nu.PasswordConfirm = "1234567890", "1234567890" }, "password", ""},
		{"password like username", func(nu *user.NewUser) { nu.Password, nu.PasswordConfirm = "gHopper#1", "gHopper#1" }, "password", ""},
		{"mismatched confirmation", func(nu *user.NewUser) { nu.PasswordConfirm = "other" }, "passwordConfirm", ""},
		{"unknown role", func(nu *user.NewUser) { nu.Roles = []string{"wizard"} }, "roles", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nu := valid()
			tt.mutate(&nu)
			err := nu.Validate(validate, svc)
			if tt.wantField == "" {
				require.NoError(t, err)
				assert.Equal(t, "Grace Hopper", nu.Name)
				assert.Equal(t, "ghopper", nu.Username)
				return
			}

			vErrs, ok := err.(validator.ValidationErrors)
			require.True(t, ok, "got %v", err)
			msgs := make(map[string]string)
			for _, fe := range vErrs {
				msgs[fe.Field()] = fe.Translate(translator)
			}
			require.Contains(t, msgs, tt.wantField)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, msgs[tt.wantField])
			}
		})
	}

	t.Run("username taken", func(t *testing.T) {
		nu := valid()
		nu.Username = "Taken01"
		err := nu.Validate(validate, svc)
		require.Error(t, err)
		assert.True(t, core.IsValidationError(err))
	})
}
