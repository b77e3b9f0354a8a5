package main

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"testing"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	"github.com/trezcool/labportal/core"
	"github.com/trezcool/labportal/core/user"
	"github.com/trezcool/labportal/storage/database/inmem"
	"github.com/trezcool/labportal/tests"
)

const testPassword = "Lab-Portal#2024"

var usrRepo user.Repository

func setup(t *testing.T) *commandLine {
	usrRepo = inmemdb.NewUserRepository(inmemdb.Open())

	translator, _ := ut.New(en.New(), en.New()).GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	return &commandLine{
		db:       sqlx.NewDb(nil, "postgres"), // only handed to the mocked goose runner
		usrSvc:   user.NewService(usrRepo),
		validate: validate,
	}
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

func (tt cliTest) check(t *testing.T, err error) {
	t.Helper()
	switch {
	case err == nil:
		if tt.wantErr != nil || tt.wantErrStr != "" {
			t.Errorf("cli.run() error = nil, wantErr %v%s", tt.wantErr, tt.wantErrStr)
		}
	case tt.wantErr != nil:
		if err != tt.wantErr {
			t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
		}
	case tt.wantErrStr != "":
		if err.Error() != tt.wantErrStr {
			t.Errorf("cli.run() error.Error() = %s, wantErrStr %s", err.Error(), tt.wantErrStr)
		}
	default:
		t.Errorf("cli.run() unexpected error = %v", err)
	}
}

func mockPassword(pwd string) {
	readPasswordFunc = func(fd int) ([]byte, error) {
		return []byte(pwd), nil
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli := setup(t)

	gooseRunFunc = func(db *sqlx.DB, command string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(args))
		})
	}

	t.Run("no database", func(t *testing.T) {
		cli := setup(t)
		cli.db = nil
		cliTest{wantErr: errNoDatabase}.check(t, cli.run([]string{"admin", "migrate", "up"}))
	})
}

func Test_commandLine_addUser(t *testing.T) {
	cli := setup(t)

	tests := []cliTest{
		{name: "no args", args: []string{"adduser"}, wantErr: errHelp},
		{name: "no username nor email", args: []string{"adduser", "-name", "Ada"}, wantErr: errHelp},
		{name: "unknown role", args: []string{"adduser", "-name", "Ada", "-username", "ada_lab", "-role", "wizard"}, wantErr: errHelp},
		{name: "no password", args: []string{"adduser", "-name", "Ada", "-username", "ada_lab"}, wantErr: errHelp},
		{name: "weak password", args: []string{"adduser", "-name", "Ada", "-username", "ada_lab"}, extra: "12345678"},
		{name: "lab incharge", args: []string{"adduser", "-name", "Ada", "-username", "ada_lab", "-role", "lab"}, extra: testPassword},
		{name: "username taken", args: []string{"adduser", "-name", "Ada", "-username", "ada_lab"}, extra: testPassword, wantErrStr: user.ErrUserExists.Error()},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)
		pwd, _ := tt.extra.(string)
		mockPassword(pwd)

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			if tt.name == "weak password" {
				// the password policy reports through the validator
				if _, ok := err.(validator.ValidationErrors); !ok {
					t.Errorf("cli.run() error = %v, want validator.ValidationErrors", err)
				}
				return
			}
			tt.check(t, err)
		})
	}

	usr, err := usrRepo.GetUser(context.Background(), user.GetFilter{Username: "ada_lab"})
	if err != nil {
		t.Fatalf("GetUser() failed: %v", err)
	}
	if !usr.IsLabIncharge() || !usr.Active() {
		t.Errorf("adduser created %+v, want an active lab incharge", usr)
	}
}

func Test_commandLine_assignGuide(t *testing.T) {
	cli := setup(t)

	guide := testutil.CreateUser(t, usrRepo, "Guide", "guide1", "guide@example.com", "", []string{user.RoleFaculty}, true)
	lab := testutil.CreateUser(t, usrRepo, "Lab", "lab001", "lab@example.com", "", []string{user.RoleLabIncharge}, true)
	student := testutil.CreateUser(t, usrRepo, "Student", "student1", "student@example.com", "", []string{user.RoleStudent}, true)

	tests := []cliTest{
		{name: "no args", args: []string{"assignguide"}, wantErr: errHelp},
		{name: "no guide", args: []string{"assignguide", "-student", "student1"}, wantErr: errHelp},
		{name: "unknown student", args: []string{"assignguide", "-student", "lol", "-guide", "guide1"}, wantErr: user.ErrNotFound},
		{name: "not a student", args: []string{"assignguide", "-student", "lab001", "-guide", "guide1"}, wantErrStr: user.ErrNotAStudent.Error()},
		{name: "not a faculty", args: []string{"assignguide", "-student", "student1", "-guide", lab.Email}, wantErrStr: user.ErrNotAFaculty.Error()},
		{name: "assigns", args: []string{"assignguide", "-student", student.Email, "-guide", "guide1", "-team", "Rover"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(args))
		})
	}

	refreshed, err := usrRepo.GetUser(context.Background(), user.GetFilter{ID: student.ID})
	if err != nil {
		t.Fatalf("GetUser() failed: %v", err)
	}
	if refreshed.GuideID != guide.ID || refreshed.TeamID == "" {
		t.Errorf("assignguide left guideId=%q teamId=%q", refreshed.GuideID, refreshed.TeamID)
	}
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli := setup(t)

	usr := testutil.CreateUser(t, usrRepo, "User", "awe123", "awe@test.cd", "mdr", nil, true)

	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "username but no password", args: []string{"resetpassword", "-username", "lol"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "-username", "lol"}, extra: "lol", wantErr: user.ErrNotFound},
		{name: "reset with username", args: []string{"resetpassword", "-username", usr.Username}, extra: "lol"},
		{name: "reset with email", args: []string{"resetpassword", "-username", usr.Email}, extra: "lmao"},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)
		pwd, _ := tt.extra.(string)
		mockPassword(pwd)

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			tt.check(t, err)
			if err != nil {
				return
			}
			refreshedUsr, err := usrRepo.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
			if err != nil {
				t.Fatalf("GetUser() failed, %v", err)
			}
			if bytes.Equal(refreshedUsr.PasswordHash, usr.PasswordHash) {
				t.Error("failed to update new password")
			}
			if refreshedUsr.CheckPassword(pwd) != nil {
				t.Errorf("password %q was not set", pwd)
			}
		})
	}
}
