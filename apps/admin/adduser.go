package main

import (
	"context"
	"fmt"

	"github.com/trezcool/labportal/core/user"
)

// addUser creates an active user.User after the same checks as the register endpoint.
func (cli *commandLine) addUser(nu user.NewUser) error {
	if err := nu.Validate(cli.validate, cli.usrSvc); err != nil {
		return err
	}
	usr, err := cli.usrSvc.Create(context.Background(), nu)
	if err != nil {
		return err
	}
	fmt.Printf("user %s created (id: %s)\n", nu.Name, usr.ID)
	return nil
}
