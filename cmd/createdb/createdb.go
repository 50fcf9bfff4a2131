package createdb

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/tphakala/pneumodetect/internal/conf"
	"github.com/tphakala/pneumodetect/internal/datastore"
	"github.com/tphakala/pneumodetect/internal/errors"
	"github.com/tphakala/pneumodetect/internal/security"
)

// AdminPasswordEnv supplies the administrator password when --admin-password is not given.
const AdminPasswordEnv = "PNEUMODETECT_ADMIN_PASSWORD"

// Options controls administrator seeding.
type Options struct {
	Username string
	Email    string
	Password string
}

// Command creates the command that prepares the database.
func Command(settings *conf.Settings) *cobra.Command {
	var opts Options

	cmd := &cobra.Command{
		Use:   "createdb",
		Short: "Create the database schema and seed an administrator",
		Long: "Create or migrate the users and predictions tables. When an admin password is given " +
			"(flag or " + AdminPasswordEnv + ") an administrator account is created unless it already exists.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Password == "" {
				opts.Password = os.Getenv(AdminPasswordEnv)
			}
			return Run(cmd.OutOrStdout(), settings, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Username, "admin-user", "admin", "Administrator username")
	cmd.Flags().StringVar(&opts.Email, "admin-email", "", "Administrator email address")
	cmd.Flags().StringVar(&opts.Password, "admin-password", "", "Administrator password (prefer "+AdminPasswordEnv+")")

	return cmd
}

// Run migrates the schema and seeds the administrator. Running it again is
// harmless: migration is idempotent and an existing account is left alone.
func Run(out io.Writer, settings *conf.Settings, opts Options) error {
	ds, err := datastore.New(settings)
	if err != nil {
		return err
	}
	if err := ds.Open(); err != nil {
		return err
	}
	defer ds.Close()

	fmt.Fprintf(out, "Database schema is up to date (%s)\n", settings.Database.Type)

	if opts.Password == "" {
		fmt.Fprintln(out, "No admin password given, skipping administrator account")
		return nil
	}

	_, err = ds.GetUserByUsername(opts.Username)
	switch {
	case err == nil:
		fmt.Fprintf(out, "User %q already exists, skipping\n", opts.Username)
		return nil
	case !errors.Is(err, datastore.ErrNotFound):
		return err
	}

	accounts := security.NewAccounts(ds, settings.Security)
	id, err := accounts.RegisterAdmin(opts.Username, opts.Password, opts.Email)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Created administrator %q (id %d)\n", opts.Username, id)
	return nil
}
