package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/findclassnz/findclass/core/auth"
	"github.com/findclassnz/findclass/core/teacher"
	"github.com/findclassnz/findclass/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errEmptyPassword = errors.New("password may not be empty")
)

type commandLine struct {
	validate   *validator.Validate
	usrSvc     *user.Service
	authSvc    *auth.Service
	teacherSvc *teacher.Service
	// migrate runs a goose command on the app database.
	migrate func(ctx context.Context, command string, args ...string) error
}

func (cli *commandLine) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "admin",
		Short:         "FindClass administration commands",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		cli.addUserCmd(),
		cli.resetPasswordCmd(),
		cli.migrateCmd(),
		cli.purgeSessionsCmd(),
		cli.setTrustCmd(),
	)
	return root
}

func (cli *commandLine) run(ctx context.Context, args []string) error {
	root := cli.rootCmd()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func promptPassword(cmd *cobra.Command) (string, error) {
	fmt.Fprint(cmd.OutOrStdout(), "Enter password:")
	pwd, err := readPasswordFunc(int(os.Stdin.Fd()))
	fmt.Fprintln(cmd.OutOrStdout())
	if err != nil {
		return "", errors.Wrap(err, "reading password")
	}
	if strings.TrimSpace(string(pwd)) == "" {
		return "", errEmptyPassword
	}
	return string(pwd), nil
}

func (cli *commandLine) addUserCmd() *cobra.Command {
	var name, email string
	var admin bool

	cmd := &cobra.Command{
		Use:   "adduser",
		Short: "Create or update an active user, the password is prompted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pwd, err := promptPassword(cmd)
			if err != nil {
				return err
			}
			usr, err := cli.addUser(cmd.Context(), name, email, pwd, admin)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "user %s (%s) saved, role: %s\n", usr.Email, usr.ID, usr.Role)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "the user's email")
	cmd.Flags().StringVar(&name, "name", "", "the user's name, defaults to the email's local part")
	cmd.Flags().BoolVar(&admin, "admin", false, "grant the admin role")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func (cli *commandLine) resetPasswordCmd() *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "resetpassword",
		Short: "Reset a user's password and sign them out everywhere, the password is prompted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pwd, err := promptPassword(cmd)
			if err != nil {
				return err
			}
			return cli.resetPassword(cmd.Context(), email, pwd)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "the user's email")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func (cli *commandLine) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate COMMAND [ARGS...]",
		Short: "Run a goose command: up, up-by-one, up-to, down, down-to, redo, reset, status, version",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.migrate(cmd.Context(), args[0], args[1:]...)
		},
	}
}

func (cli *commandLine) purgeSessionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purgesessions",
		Short: "Delete the expired sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, err := cli.authSvc.PurgeExpiredSessions(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d expired sessions deleted\n", n)
			return nil
		},
	}
}

func (cli *commandLine) setTrustCmd() *cobra.Command {
	var verified, unverified bool

	cmd := &cobra.Command{
		Use:   "settrust TEACHER_ID LEVEL",
		Short: "Set the trust level (B, A or S) of a teacher",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			st := teacher.SetTrust{TrustLevel: args[1]}
			switch {
			case verified && unverified:
				return errors.New("--verified and --unverified are exclusive")
			case verified:
				st.Verified = &verified
			case unverified:
				v := false
				st.Verified = &v
			}
			tchr, err := cli.setTrust(cmd.Context(), args[0], st)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "teacher %s: trust level %s, verified: %v\n", tchr.ID, tchr.TrustLevel, tchr.Verified)
			return nil
		},
	}
	cmd.Flags().BoolVar(&verified, "verified", false, "mark the teacher as verified")
	cmd.Flags().BoolVar(&unverified, "unverified", false, "clear the verified badge")
	return cmd
}
