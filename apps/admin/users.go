package main

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/findclassnz/findclass/core"
	"github.com/findclassnz/findclass/core/teacher"
	"github.com/findclassnz/findclass/core/user"
)

// addUser updates or creates an active, verified user.User
func (cli *commandLine) addUser(ctx context.Context, name, email, pwd string, isAdmin bool) (user.User, error) {
	email = core.CleanString(email, true /* lower */)
	name = core.CleanString(name)
	if name == "" {
		name = strings.SplitN(email, "@", 2)[0]
	}

	usr, err := cli.usrSvc.GetByEmail(ctx, email)
	switch {
	case err == user.ErrNotFound:
		nu := user.NewUser{Name: name, Email: email, Password: pwd, PasswordConfirm: pwd}
		if err = nu.Validate(ctx, cli.validate, cli.usrSvc); err != nil {
			return user.User{}, err
		}
		if usr, err = cli.usrSvc.Create(ctx, nu); err != nil {
			return user.User{}, err
		}
	case err != nil:
		return user.User{}, err
	default:
		if usr, err = cli.usrSvc.SetPassword(ctx, usr, pwd); err != nil {
			return user.User{}, err
		}
	}

	active := true
	uu := user.UpdateUser{IsActive: &active}
	if isAdmin {
		uu.Role = user.RoleAdmin
	}
	if usr, err = cli.usrSvc.Update(ctx, usr, uu); err != nil {
		return user.User{}, err
	}
	return cli.usrSvc.MarkEmailVerified(ctx, usr)
}

func (cli *commandLine) resetPassword(ctx context.Context, email, pwd string) error {
	usr, err := cli.usrSvc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if _, err = cli.usrSvc.SetPassword(ctx, usr, pwd); err != nil {
		return err
	}
	return errors.Wrap(cli.authSvc.LogoutAll(ctx, usr.ID), "revoking sessions")
}

func (cli *commandLine) setTrust(ctx context.Context, teacherID string, st teacher.SetTrust) (teacher.Teacher, error) {
	tchr, err := cli.teacherSvc.GetByID(ctx, teacherID)
	if err != nil {
		return teacher.Teacher{}, err
	}
	if err = st.Validate(cli.validate); err != nil {
		return teacher.Teacher{}, err
	}
	return cli.teacherSvc.SetTrustLevel(ctx, tchr, st)
}
