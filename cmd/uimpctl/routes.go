package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"text/tabwriter"

	"github.com/uimp/portalguard"
	"github.com/uimp/portalguard/role"
	"github.com/uimp/portalguard/route"
)

func loadTable(path string) (*route.Table, error) {
	if path == "" {
		return route.Default(), nil
	}
	return route.LoadFile(path)
}

func (c *cli) checkRoutes(args []string) error {
	fs := c.flags("check-routes")
	routes := fs.String("routes", "", "YAML route table (default: built-in)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	table, err := loadTable(*routes)
	if err != nil {
		return err
	}
	if err := table.CheckDashboards(); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PREFIX\tACCESS")
	for _, e := range table.Entries() {
		fmt.Fprintf(tw, "%s\t%s\n", e.Prefix, e)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "ok")
	return nil
}

// classify runs each path through a throwaway JWT-only engine, once
// anonymously and once per role.
func (c *cli) classify(args []string) error {
	fs := c.flags("classify")
	routes := fs.String("routes", "", "YAML route table (default: built-in)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("no paths given")
	}
	table, err := loadTable(*routes)
	if err != nil {
		return err
	}
	engine, err := newInspectionEngine(table)
	if err != nil {
		return err
	}
	defer engine.Close()

	ctx := context.Background()
	callers := []string{"anonymous"}
	tokens := map[string]string{"anonymous": ""}
	for _, r := range role.All() {
		res, err := engine.Issue(ctx, portalguard.Identity{ID: "uimpctl-" + r.String(), Role: r})
		if err != nil {
			return err
		}
		callers = append(callers, r.String())
		tokens[r.String()] = res.Token
	}

	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprint(tw, "PATH\tCLASS")
	for _, name := range callers {
		fmt.Fprintf(tw, "\t%s", name)
	}
	fmt.Fprintln(tw)
	for _, p := range fs.Args() {
		fmt.Fprintf(tw, "%s\t%s", p, table.Classify(p))
		for _, name := range callers {
			fmt.Fprintf(tw, "\t%s", describe(engine.Decide(ctx, p, tokens[name])))
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}

func describe(d portalguard.Decision) string {
	if d.Allowed() {
		return "allow"
	}
	return "-> " + d.Location
}

func newInspectionEngine(table *route.Table) (*portalguard.Engine, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	cfg := portalguard.DefaultConfig()
	cfg.ValidationMode = portalguard.ModeJWTOnly
	cfg.JWT.PublicKey = pub
	cfg.JWT.PrivateKey = priv
	return portalguard.New().WithConfig(cfg).WithRoutes(table).Build()
}
