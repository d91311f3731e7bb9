package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"golang.org/x/term"

	"github.com/uimp/portalguard/password"
	"github.com/uimp/portalguard/role"
	"github.com/uimp/portalguard/userstore"
)

var errPasswordMismatch = errors.New("passwords do not match")

func (c *cli) hashPassword(args []string) error {
	fs := c.flags("hash-password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	hash, err := c.readAndHash()
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, hash)
	return nil
}

func (c *cli) addUser(args []string) error {
	fs := c.flags("add-user")
	db := fs.String("db", "uimp-users.db", "SQLite database path")
	email := fs.String("email", "", "user email")
	roleName := fs.String("role", "", "STUDENT, MENTOR or ADMIN")
	if err := fs.Parse(args); err != nil {
		return err
	}
	r, ok := role.Parse(*roleName)
	if !ok {
		return fmt.Errorf("unknown role %q", *roleName)
	}
	if strings.TrimSpace(*email) == "" {
		return errors.New("-email is required")
	}

	hash, err := c.readAndHash()
	if err != nil {
		return err
	}
	store, err := userstore.OpenSQLite(*db)
	if err != nil {
		return err
	}
	defer store.Close()

	u, err := store.CreateUser(context.Background(), *email, hash, r)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "created %s %s %s\n", u.UserID, u.Email, u.Role)
	return nil
}

func (c *cli) listUsers(args []string) error {
	fs := c.flags("list-users")
	db := fs.String("db", "uimp-users.db", "SQLite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	store, err := userstore.OpenSQLite(*db)
	if err != nil {
		return err
	}
	defer store.Close()

	users, err := store.ListUsers(context.Background())
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tEMAIL\tROLE\tDASHBOARD\tDISABLED")
	for _, u := range users {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\n", u.UserID, u.Email, u.Role, role.Dashboard(u.Role), u.Disabled)
	}
	return tw.Flush()
}

func (c *cli) setRole(args []string) error {
	fs := c.flags("set-role")
	db := fs.String("db", "uimp-users.db", "SQLite database path")
	email := fs.String("email", "", "user email")
	roleName := fs.String("role", "", "STUDENT, MENTOR or ADMIN")
	if err := fs.Parse(args); err != nil {
		return err
	}
	r, ok := role.Parse(*roleName)
	if !ok {
		return fmt.Errorf("unknown role %q", *roleName)
	}
	return c.updateUser(*db, *email, func(ctx context.Context, store *userstore.SQLite, id string) error {
		return store.SetRole(ctx, id, r)
	})
}

func (c *cli) disableUser(args []string) error {
	fs := c.flags("disable-user")
	db := fs.String("db", "uimp-users.db", "SQLite database path")
	email := fs.String("email", "", "user email")
	enable := fs.Bool("enable", false, "re-enable instead of disabling")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return c.updateUser(*db, *email, func(ctx context.Context, store *userstore.SQLite, id string) error {
		return store.SetDisabled(ctx, id, !*enable)
	})
}

func (c *cli) updateUser(db, email string, fn func(context.Context, *userstore.SQLite, string) error) error {
	store, err := userstore.OpenSQLite(db)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	u, err := store.GetUserByEmail(ctx, email)
	if err != nil {
		return err
	}
	if err := fn(ctx, store, u.UserID); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "updated %s\n", u.Email)
	return nil
}

// readAndHash hashes with the same parameters the engine defaults to, so
// logins do not trigger an immediate rehash.
func (c *cli) readAndHash() (string, error) {
	plaintext, err := c.readPassword()
	if err != nil {
		return "", err
	}
	h, err := password.New(password.DefaultConfig())
	if err != nil {
		return "", err
	}
	return h.Hash(plaintext)
}

// readPassword prompts twice on a terminal. Otherwise it reads the first
// line of input.
func (c *cli) readPassword() (string, error) {
	if f, ok := c.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(c.errOut, "Password: ")
		first, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(c.errOut)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		fmt.Fprint(c.errOut, "Confirm: ")
		second, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(c.errOut)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		if string(first) != string(second) {
			return "", errPasswordMismatch
		}
		return string(first), nil
	}

	line, err := bufio.NewReader(c.in).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
