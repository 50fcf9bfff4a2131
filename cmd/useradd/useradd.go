package useradd

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tphakala/pneumodetect/internal/conf"
	"github.com/tphakala/pneumodetect/internal/datastore"
	"github.com/tphakala/pneumodetect/internal/security"
)

// Command creates the command that adds an account from the command line.
func Command(settings *conf.Settings) *cobra.Command {
	var (
		admin bool
		email string
	)

	cmd := &cobra.Command{
		Use:   "useradd <username>",
		Short: "Create a user account, reading the password from stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
			password, err := readPassword(cmd.InOrStdin())
			fmt.Fprintln(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			return Run(cmd.OutOrStdout(), settings, args[0], password, email, admin)
		},
	}

	cmd.Flags().BoolVar(&admin, "admin", false, "Grant administrator rights")
	cmd.Flags().StringVar(&email, "email", "", "Email address")

	return cmd
}

// readPassword returns the first line of r without its line ending.
func readPassword(r io.Reader) (string, error) {
	scanner := bufio.NewScanner(r)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}
		return "", fmt.Errorf("no password on stdin")
	}
	return strings.TrimRight(scanner.Text(), "\r"), nil
}

// Run creates the account with the same validation as web registration.
func Run(out io.Writer, settings *conf.Settings, username, password, email string, admin bool) error {
	ds, err := datastore.New(settings)
	if err != nil {
		return err
	}
	if err := ds.Open(); err != nil {
		return err
	}
	defer ds.Close()

	accounts := security.NewAccounts(ds, settings.Security)
	register := accounts.Register
	role := "user"
	if admin {
		register = accounts.RegisterAdmin
		role = "administrator"
	}

	id, err := register(username, password, email)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Created %s %q (id %d)\n", role, username, id)
	return nil
}
