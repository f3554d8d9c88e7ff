package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func newCatalogCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage templates stored in the SQLite catalog",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "put <name> <file>",
			Short: "Compile a template file and store it under name",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				store, err := a.requireCatalog()
				if err != nil {
					return err
				}
				var src []byte
				if args[1] == "-" {
					src, err = io.ReadAll(cmd.InOrStdin())
				} else {
					src, err = os.ReadFile(args[1])
				}
				if err != nil {
					return err
				}
				e, err := store.Put(cmd.Context(), args[0], src)
				if err != nil {
					return err
				}
				return a.print(cmd.OutOrStdout(), e, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "%s %s %s\n", e.ID, e.Name, e.Hash[:12])
					return err
				})
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List stored templates",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				store, err := a.requireCatalog()
				if err != nil {
					return err
				}
				entries, err := store.List(cmd.Context())
				if err != nil {
					return err
				}
				return a.print(cmd.OutOrStdout(), entries, func(w io.Writer) error {
					for _, e := range entries {
						fmt.Fprintf(w, "%-24s %s  %s\n", e.Name, e.Hash[:12], time.UnixMilli(e.UpdatedAt).UTC().Format(time.RFC3339))
					}
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "get <name>",
			Short: "Print the source of a stored template",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				store, err := a.requireCatalog()
				if err != nil {
					return err
				}
				e, err := store.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return a.print(cmd.OutOrStdout(), e, func(w io.Writer) error {
					_, err := io.WriteString(w, e.Source)
					return err
				})
			},
		},
		&cobra.Command{
			Use:   "rm <name>",
			Short: "Delete a stored template",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				store, err := a.requireCatalog()
				if err != nil {
					return err
				}
				return store.Delete(cmd.Context(), args[0])
			},
		},
	)
	return cmd
}
