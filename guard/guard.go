package guard

import (
	"context"
	"sync"

	"github.com/uimp/portalguard/authstate"
)

// Navigator performs a client-side navigation.
type Navigator interface {
	Navigate(target string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(target string)

// Navigate calls f.
func (f NavigatorFunc) Navigate(target string) { f(target) }

// Guard tracks one mounted page. It is safe for concurrent use.
type Guard struct {
	opts Options
	nav  Navigator
	hook func(target string)

	mu   sync.Mutex
	last string
}

// New returns a Guard for a page described by opts.
func New(opts Options, nav Navigator) *Guard {
	return &Guard{opts: opts, nav: nav}
}

// WithHook registers fn to be called after every navigation the guard
// issues, for example Engine.RecordGuardNavigation.
func (g *Guard) WithHook(fn func(target string)) *Guard {
	g.hook = fn
	return g
}

// Observe evaluates snap and navigates when the outcome calls for it.
//
// A target already navigated to is not repeated until the page becomes
// authorized again. Once ctx is done the page is gone and no navigation is
// issued.
func (g *Guard) Observe(ctx context.Context, snap authstate.Snapshot) Outcome {
	out := Evaluate(g.opts, snap)

	g.mu.Lock()
	defer g.mu.Unlock()

	switch out.State {
	case StateAuthorized:
		g.last = ""
		return out
	case StateChecking:
		return out
	}

	if ctx.Err() != nil || out.Target == g.last {
		return out
	}
	g.last = out.Target
	if g.nav != nil {
		g.nav.Navigate(out.Target)
	}
	if g.hook != nil {
		g.hook(out.Target)
	}
	return out
}

// Run observes store until ctx is done, calling render with every outcome.
// It returns ctx.Err().
func (g *Guard) Run(ctx context.Context, store *authstate.Store, render func(Outcome)) error {
	for {
		snap, changed := store.Watch()
		out := g.Observe(ctx, snap)
		if render != nil && ctx.Err() == nil {
			render(out)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		}
	}
}
