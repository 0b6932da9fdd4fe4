package plugin

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/soyeahso/scaffold/logging"
)

// Results maps plugin identifiers to their hook return values for one
// invocation. Iterate the registry's order for deterministic traversal;
// the map itself carries no ordering.
type Results map[string]any

// CallFunc applies one hook to one plugin and returns its result. The
// invoker only hands it plugins that implement the hook, so the type
// assertion inside never fails.
type CallFunc func(ctx context.Context, p Plugin) (any, error)

// RemovableCall applies a removable hook to one plugin. detach=true
// asks for the plugin to be dropped from the registry.
type RemovableCall func(ctx context.Context, p Plugin) (detach bool, err error)

// Invoker executes lifecycle hooks across all qualifying plugins.
type Invoker struct {
	reg *Registry
	log *logging.Logger
}

// NewInvoker creates a hook invoker over reg.
func NewInvoker(reg *Registry, log *logging.Logger) *Invoker {
	return &Invoker{reg: reg, log: log.Sub("hooks")}
}

// Invoke calls hook h on every plugin implementing it, concurrently,
// and waits for all of them. An empty qualifying set returns an empty
// result map immediately with no logging or timing overhead. The first
// hook error propagates after every sibling has finished; per-plugin
// errors are never swallowed into the result map.
func (inv *Invoker) Invoke(ctx context.Context, h Hook, call CallFunc) (Results, error) {
	entries := inv.reg.WithHook(h)
	if len(entries) == 0 {
		return Results{}, nil
	}

	start := time.Now()
	values := make([]any, len(entries))

	var g errgroup.Group
	for i, e := range entries {
		g.Go(func() error {
			v, err := call(ctx, e.Plugin)
			if err != nil {
				return fmt.Errorf("plugin %s: %s: %w", e.ID, h, err)
			}
			values[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ids := make([]string, len(entries))
	res := make(Results, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
		res[e.ID] = values[i]
	}

	inv.log.Info().
		Str("hook", string(h)).
		Dur("elapsed", time.Since(start)).
		Strs("plugins", ids).
		Msg("hook complete")

	return res, nil
}

// InvokeRemovable runs a removable hook and then drops every plugin
// whose call returned detach=true. Removal happens strictly after the
// whole invocation has resolved, never during dispatch. Results other
// than the detach signal are discarded.
func (inv *Invoker) InvokeRemovable(ctx context.Context, h Hook, call RemovableCall) error {
	res, err := inv.Invoke(ctx, h, func(ctx context.Context, p Plugin) (any, error) {
		return call(ctx, p)
	})
	if err != nil {
		return err
	}

	var removed []string
	for id, v := range res {
		if detach, ok := v.(bool); ok && detach {
			if inv.reg.Remove(id) {
				removed = append(removed, id)
			}
		}
	}
	if len(removed) > 0 {
		sort.Strings(removed)
		inv.log.Info().
			Str("hook", string(h)).
			Int("count", len(removed)).
			Strs("plugins", removed).
			Msg("plugins detached")
	}
	return nil
}
