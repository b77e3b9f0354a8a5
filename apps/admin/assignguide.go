package main

import (
	"context"
	"fmt"

	"github.com/trezcool/labportal/core/user"
)

// assignGuide routes a student's future BOM requests to guide.
func (cli *commandLine) assignGuide(studentUname, guideUname, teamName string) error {
	ctx := context.Background()
	student, err := cli.usrSvc.GetByUsernameOrEmail(ctx, studentUname)
	if err != nil {
		return err
	}
	guide, err := cli.usrSvc.GetByUsernameOrEmail(ctx, guideUname)
	if err != nil {
		return err
	}

	ag := user.AssignGuide{GuideID: guide.ID, TeamName: teamName}
	if err = ag.Validate(cli.validate); err != nil {
		return err
	}
	if _, err = cli.usrSvc.AssignGuide(ctx, student.ID, ag); err != nil {
		return err
	}
	fmt.Printf("%s is now guided by %s\n", student.Username, guide.Username)
	return nil
}
