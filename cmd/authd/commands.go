package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/permission"
	"github.com/MrEthical07/authcore/sqlstore"
)

func migrate(ctx context.Context, opts appOptions, out io.Writer) error {
	a, err := openDatabase(ctx, opts)
	if err != nil {
		return err
	}
	defer a.close()

	v, err := sqlstore.SchemaVersion(ctx, a.db, opts.config.Dialect())
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "schema at version %d\n", v)
	return nil
}

func prune(ctx context.Context, opts appOptions, out io.Writer) error {
	if opts.config.Auth.RefreshStore != "sql" {
		fmt.Fprintln(out, errNoSQLRefresh.Error())
		return nil
	}

	a, err := openDatabase(ctx, opts)
	if err != nil {
		return err
	}
	defer a.close()

	store, err := sqlstore.NewRefreshStore(a.db, a.engineConfig.RefreshStoreOptions())
	if err != nil {
		return err
	}
	n, err := store.PruneExpired(ctx, time.Now())
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "deleted %d refresh records\n", n)
	return nil
}

// bootstrapAdmin registers email as an admin, or promotes and reactivates
// the account when it already exists. The password is only read for new
// accounts.
func bootstrapAdmin(ctx context.Context, opts appOptions, args []string, e env) error {
	fs := flag.NewFlagSet("bootstrap-admin", flag.ContinueOnError)
	fs.SetOutput(e.stdout)
	email := fs.String("email", "", "administrator email (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" {
		fs.Usage()
		return errors.New("bootstrap-admin: -email is required")
	}
	canonical := flows.CanonicalEmail(*email)
	if canonical == "" {
		return authcore.ErrInvalidEmail
	}

	a, err := openApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.close()

	existing, err := sqlstore.NewUserStore(a.db).GetUserByEmail(ctx, canonical)
	switch {
	case err == nil:
		if err := a.engine.SetRole(ctx, existing.UserID, permission.RoleAdmin); err != nil {
			return err
		}
		if !existing.Active {
			if err := a.engine.ActivateUser(ctx, existing.UserID); err != nil {
				return err
			}
		}
		fmt.Fprintf(e.stdout, "promoted %s (%s) to admin\n", canonical, existing.UserID)
		return nil
	case !errors.Is(err, authcore.ErrUserNotFound):
		return fmt.Errorf("looking up %s: %w", canonical, err)
	}

	password, err := e.readPassword("Password for " + canonical + ": ")
	if err != nil {
		return fmt.Errorf("reading password: %w", err)
	}
	u, err := a.engine.Register(ctx, authcore.RegisterInput{Email: canonical, Password: password})
	if err != nil {
		return err
	}
	if err := a.engine.SetRole(ctx, u.UserID, permission.RoleAdmin); err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "created admin %s (%s)\n", canonical, u.UserID)
	return nil
}
