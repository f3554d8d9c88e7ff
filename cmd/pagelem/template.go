package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/pagelem/catalog"
	"github.com/hazyhaar/pagelem/inspect"
)

func newCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check <template>...",
		Short: "Compile templates and report the first error of each",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				results []*inspect.CheckResult
				failed  int
			)
			for _, arg := range args {
				ref, err := templateRef(cmd, arg)
				if err != nil {
					return err
				}
				res, err := a.svc.Check(cmd.Context(), &inspect.CheckRequest{TemplateRef: ref})
				if err != nil {
					return err
				}
				if !res.OK {
					failed++
				}
				results = append(results, res)
			}
			err := a.print(cmd.OutOrStdout(), results, func(w io.Writer) error {
				for i, res := range results {
					if res.Problem != nil {
						fmt.Fprintf(w, "%s: %s\n", args[i], res.Problem.Message)
						continue
					}
					fmt.Fprintf(w, "%s: ok, %d components", args[i], res.Components)
					if len(res.Templates) > 0 {
						fmt.Fprintf(w, ", templates %s", strings.Join(res.Templates, " "))
					}
					fmt.Fprintln(w)
				}
				return nil
			})
			if err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d templates failed", failed, len(args))
			}
			return nil
		},
	}
}

func newTreeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tree <template>",
		Short: "Print the named components of a template with their locators",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := templateRef(cmd, args[0])
			if err != nil {
				return err
			}
			res, err := a.svc.Tree(cmd.Context(), &inspect.TreeRequest{TemplateRef: ref})
			if err != nil {
				return err
			}
			return a.print(cmd.OutOrStdout(), res, func(w io.Writer) error {
				for _, l := range res.Lines {
					fmt.Fprintf(w, "%s%s  %s  %s\n", strings.Repeat("  ", l.Depth), l.Name, l.Kind, l.Locator)
				}
				return nil
			})
		},
	}
}

// newLocatorsCmd prints the locators stored for a catalog entry, compiling
// the template when the catalog does not hold it.
func newLocatorsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "locators <template>",
		Short: "Print the locators of a template with their scores",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var locs []catalog.Locator
			if a.store != nil {
				var err error
				locs, err = a.store.Locators(cmd.Context(), args[0])
				if err != nil && !errors.Is(err, catalog.ErrUnknown) {
					return err
				}
			}
			if locs == nil {
				ref, err := templateRef(cmd, args[0])
				if err != nil {
					return err
				}
				res, err := a.svc.Tree(cmd.Context(), &inspect.TreeRequest{TemplateRef: ref})
				if err != nil {
					return err
				}
				for _, l := range res.Lines {
					locs = append(locs, catalog.Locator{Depth: l.Depth, Name: l.Name, Kind: l.Kind, Locator: l.Locator, Score: l.Score})
				}
			}
			return a.print(cmd.OutOrStdout(), locs, func(w io.Writer) error {
				for _, l := range locs {
					if l.Locator == "" {
						continue
					}
					fmt.Fprintf(w, "%4d  %-24s %s\n", l.Score, l.Name, l.Locator)
				}
				return nil
			})
		},
	}
}
