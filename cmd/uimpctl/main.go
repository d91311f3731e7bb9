// Command uimpctl is the operator tool for the UIMP portal: it hashes
// passwords, manages users in the SQLite store, and inspects route tables.
//
// Usage:
//
//	uimpctl hash-password
//	uimpctl add-user -db users.db -email a@b.c -role ADMIN
//	uimpctl list-users -db users.db
//	uimpctl set-role -db users.db -email a@b.c -role MENTOR
//	uimpctl disable-user -db users.db -email a@b.c [-enable]
//	uimpctl check-routes [-routes routes.yaml]
//	uimpctl classify [-routes routes.yaml] /path ...
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
)

type command struct {
	summary string
	run     func(c *cli, args []string) error
}

var commands = map[string]command{
	"hash-password": {"hash a password read from the terminal or stdin", (*cli).hashPassword},
	"add-user":      {"create a user in the SQLite store", (*cli).addUser},
	"list-users":    {"list users in the SQLite store", (*cli).listUsers},
	"set-role":      {"change a user's role", (*cli).setRole},
	"disable-user":  {"disable or re-enable a user", (*cli).disableUser},
	"check-routes":  {"validate a route table and print its entries", (*cli).checkRoutes},
	"classify":      {"show the edge decision for paths, per role", (*cli).classify},
}

// cli carries the process streams so commands can be tested.
type cli struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer
}

func main() {
	c := &cli{in: os.Stdin, out: os.Stdout, errOut: os.Stderr}
	os.Exit(c.main(os.Args[1:]))
}

func (c *cli) main(args []string) int {
	if len(args) == 0 {
		c.usage()
		return 2
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(c.errOut, "uimpctl: unknown command %q\n", args[0])
		c.usage()
		return 2
	}
	if err := cmd.run(c, args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(c.errOut, "uimpctl %s: %v\n", args[0], err)
		return 1
	}
	return 0
}

func (c *cli) usage() {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintln(c.errOut, "usage: uimpctl <command> [flags]")
	for _, name := range names {
		fmt.Fprintf(c.errOut, "  %-14s %s\n", name, commands[name].summary)
	}
}

func (c *cli) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet("uimpctl "+name, flag.ContinueOnError)
	fs.SetOutput(c.errOut)
	return fs
}
