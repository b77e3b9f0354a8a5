package main

import (
	"errors"
	"flag"
	"fmt"
	"strings"
	"syscall"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"golang.org/x/term"

	"github.com/trezcool/labportal/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")

	// -role values accepted by adduser
	roleFlags = map[string][]string{
		"student": user.StudentRoles,
		"faculty": user.FacultyRoles,
		"lab":     user.LabInchargeRoles,
		"admin":   user.AllRoles,
	}
)

type commandLine struct {
	db       *sqlx.DB
	usrSvc   user.Service
	validate *validator.Validate
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate COMMAND [ARGS] - run a goose command (up, up-by-one, up-to, down, down-to, redo, reset, status, version)")
	fmt.Println("  adduser -name NAME -username USERNAME -email EMAIL -role student|faculty|lab|admin - create a user")
	fmt.Println("  assignguide -student USERNAME|EMAIL -guide USERNAME|EMAIL [-team NAME] - assign a student's guide")
	fmt.Println("  resetpassword -username USERNAME|EMAIL - reset user's password")
}

// promptPassword reads a password without echoing it.
func promptPassword(label string) (string, error) {
	fmt.Print(label)
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	addUserName := addUserCmd.String("name", "", "The user's full name.")
	addUserUname := addUserCmd.String("username", "", "The user's username.")
	addUserEmail := addUserCmd.String("email", "", "The user's email.")
	addUserRole := addUserCmd.String("role", "student", "One of student, faculty, lab or admin. The password will be prompted next.")

	assignGuideCmd := flag.NewFlagSet("assignguide", flag.ContinueOnError)
	assignGuideStudent := assignGuideCmd.String("student", "", "The student's username or email.")
	assignGuideGuide := assignGuideCmd.String("guide", "", "The guide's username or email.")
	assignGuideTeam := assignGuideCmd.String("team", "", "The student's team name (optional).")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordUname := resetPasswordCmd.String("username", "", "The user's username or email. The password will be prompted next.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		roles, ok := roleFlags[strings.ToLower(*addUserRole)]
		if *addUserName == "" || (*addUserUname == "" && *addUserEmail == "") || !ok {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := promptPassword("Enter password:")
		if err != nil {
			return err
		}
		if pwd == "" {
			addUserCmd.Usage()
			return errHelp
		}
		return cli.addUser(user.NewUser{
			Name:            *addUserName,
			Username:        *addUserUname,
			Email:           *addUserEmail,
			Password:        pwd,
			PasswordConfirm: pwd,
			Roles:           roles,
		})

	case "assignguide":
		if err := assignGuideCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *assignGuideStudent == "" || *assignGuideGuide == "" {
			assignGuideCmd.Usage()
			return errHelp
		}
		return cli.assignGuide(*assignGuideStudent, *assignGuideGuide, *assignGuideTeam)

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordUname == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := promptPassword("Enter password:")
		if err != nil {
			return err
		}
		if pwd == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(*resetPasswordUname, pwd)

	default:
		cli.printUsage()
		return errHelp
	}
}
