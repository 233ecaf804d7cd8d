package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/noah-isme/sma-enrollment-api/internal/models"
)

var readPasswordFunc = term.ReadPassword // mockable

type accountAdmin interface {
	CreateAdmin(ctx context.Context, handle, secret, displayName string) (*models.Account, error)
	ProvisionAccountFor(ctx context.Context, enrollmentID int64) (*models.Account, error)
	ProvisionTeacherAccount(ctx context.Context, teacherID int64) (*models.Account, error)
}

// deps is what the commands need once configuration and connections are up.
type deps struct {
	accounts accountAdmin
	migrate  func(ctx context.Context) error
	close    func()
}

type depsLoader func(ctx context.Context) (*deps, error)

func newRootCmd(load depsLoader) *cobra.Command {
	root := &cobra.Command{
		Use:           "admin",
		Short:         "Administrative tasks for the enrollment API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newMigrateCmd(load),
		newCreateAdminCmd(load),
		newProvisionCmd(load),
		newProvisionTeacherCmd(load),
	)
	return root
}

func withDeps(load depsLoader, run func(cmd *cobra.Command, d *deps) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		d, err := load(cmd.Context())
		if err != nil {
			return err
		}
		if d.close != nil {
			defer d.close()
		}
		return run(cmd, d)
	}
}

func newMigrateCmd(load depsLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create missing tables and indexes",
		Args:  cobra.NoArgs,
		RunE: withDeps(load, func(cmd *cobra.Command, d *deps) error {
			if err := d.migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		}),
	}
}

func newCreateAdminCmd(load depsLoader) *cobra.Command {
	var handle, name string
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an admin account; the secret is prompted",
		Args:  cobra.NoArgs,
		RunE: withDeps(load, func(cmd *cobra.Command, d *deps) error {
			secret, err := promptSecret(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			account, err := d.accounts.CreateAdmin(cmd.Context(), handle, secret, name)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "admin %s created (id %d)\n", account.Handle, account.ID)
			return nil
		}),
	}
	cmd.Flags().StringVar(&handle, "handle", "", "login handle of the new admin")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	_ = cmd.MarkFlagRequired("handle")
	return cmd
}

func promptSecret(out io.Writer) (string, error) {
	fmt.Fprint(out, "Enter secret: ")
	first, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("read secret: %w", err)
	}
	fmt.Fprint(out, "Repeat secret: ")
	second, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("read secret: %w", err)
	}
	if string(first) != string(second) {
		return "", errors.New("secrets do not match")
	}
	if strings.TrimSpace(string(first)) == "" {
		return "", errors.New("secret must not be empty")
	}
	return string(first), nil
}

func newProvisionCmd(load depsLoader) *cobra.Command {
	var enrollmentID int64
	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Issue the code and account of a student enrollment",
		Args:  cobra.NoArgs,
		RunE: withDeps(load, func(cmd *cobra.Command, d *deps) error {
			account, err := d.accounts.ProvisionAccountFor(cmd.Context(), enrollmentID)
			if err != nil {
				return err
			}
			printAccount(cmd.OutOrStdout(), account)
			return nil
		}),
	}
	cmd.Flags().Int64Var(&enrollmentID, "enrollment", 0, "student enrollment id")
	_ = cmd.MarkFlagRequired("enrollment")
	return cmd
}

func newProvisionTeacherCmd(load depsLoader) *cobra.Command {
	var teacherID int64
	cmd := &cobra.Command{
		Use:   "provision-teacher",
		Short: "Create the login account of a teacher",
		Args:  cobra.NoArgs,
		RunE: withDeps(load, func(cmd *cobra.Command, d *deps) error {
			account, err := d.accounts.ProvisionTeacherAccount(cmd.Context(), teacherID)
			if err != nil {
				return err
			}
			printAccount(cmd.OutOrStdout(), account)
			return nil
		}),
	}
	cmd.Flags().Int64Var(&teacherID, "teacher", 0, "teacher id")
	_ = cmd.MarkFlagRequired("teacher")
	return cmd
}

func printAccount(out io.Writer, account *models.Account) {
	fmt.Fprintf(out, "account %d: handle=%s role=%s\n", account.ID, account.Handle, account.Role)
}
