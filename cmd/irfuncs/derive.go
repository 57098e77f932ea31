package main

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"irfuncs/internal/functions"
	"irfuncs/internal/ir"
	"irfuncs/internal/irfile"
)

// errFunctionNotFound is returned when a query matches no function.
var errFunctionNotFound = errors.New("function not found")

// moduleResult holds the functions derived from one module.
type moduleResult struct {
	View  ir.ModuleView
	Funcs []functions.ReadOnly
}

// loadAndDerive loads path and derives the functions of every module whose
// name matches filter ("" = all).
func loadAndDerive(ctx context.Context, path, filter string, jobs int) ([]moduleResult, error) {
	x, err := irfile.Load(path)
	if err != nil {
		return nil, err
	}
	logger.Info("loaded IR", "path", path, "modules", len(x.Modules()), "nodes", x.NodeCount(), "edges", x.CFG().Len())
	return deriveModules(ctx, x, filter, jobs)
}

// deriveModules derives every selected module concurrently under one read
// snapshot. Results keep module order.
func deriveModules(ctx context.Context, x *ir.IR, filter string, jobs int) ([]moduleResult, error) {
	var results []moduleResult
	err := x.Snapshot(func(x *ir.IR) error {
		var mods []*ir.Module
		for _, m := range x.Modules() {
			if filter == "" || m.Name() == filter {
				mods = append(mods, m)
			}
		}
		if len(mods) == 0 {
			if filter != "" {
				return fmt.Errorf("no module named %q", filter)
			}
			return nil
		}

		results = make([]moduleResult, len(mods))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(max(1, jobs))
		for i, m := range mods {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				v := m.View()
				fns := functions.BuildReadOnly(v, functions.Options{
					Logger: logger.With("module", m.Name()),
				})
				results[i] = moduleResult{View: v, Funcs: fns}
				logger.Info("derived functions", "module", m.Name(), "count", len(fns))
				return nil
			})
		}
		return g.Wait()
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// findFunction resolves a query against the derived functions. A query is a
// function id, a display name, or any one of a function's names. More than
// one match is an error.
func findFunction(results []moduleResult, query string) (moduleResult, functions.ReadOnly, error) {
	type match struct {
		mod moduleResult
		fn  functions.ReadOnly
	}
	var matches []match
	id, idErr := uuid.Parse(query)
	for _, r := range results {
		for _, f := range r.Funcs {
			switch {
			case idErr == nil && f.ID() == id:
				return r, f, nil
			case f.DisplayName() == query || slices.Contains(f.Names(), query):
				matches = append(matches, match{r, f})
			}
		}
	}

	switch len(matches) {
	case 0:
		return moduleResult{}, functions.ReadOnly{}, fmt.Errorf("%w: %s", errFunctionNotFound, query)
	case 1:
		return matches[0].mod, matches[0].fn, nil
	}
	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.fn.ID().String()
	}
	return moduleResult{}, functions.ReadOnly{}, fmt.Errorf("%q is ambiguous: %s", query, strings.Join(ids, ", "))
}
