package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/pagelem/inspect"
)

func newResolveCmd(a *app) *cobra.Command {
	var htmlFile, url, path, wait string
	cmd := &cobra.Command{
		Use:   "resolve <template>",
		Short: "Resolve a template against a document and print component values",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := templateRef(cmd, args[0])
			if err != nil {
				return err
			}
			doc, err := documentRef(htmlFile, url)
			if err != nil {
				return err
			}
			res, err := a.svc.Resolve(cmd.Context(), &inspect.ResolveRequest{TemplateRef: ref, DocumentRef: doc, Path: path, Wait: wait})
			if err != nil {
				return err
			}
			return a.print(cmd.OutOrStdout(), res, func(w io.Writer) error {
				return printValues(w, "", res.Values)
			})
		},
	}
	cmd.Flags().StringVar(&htmlFile, "html", "", "HTML file to resolve against")
	cmd.Flags().StringVar(&url, "url", "", "URL to open in the browser")
	cmd.Flags().StringVar(&path, "path", "", "dot separated component path")
	cmd.Flags().StringVar(&wait, "wait", "", "wait for page readiness: short, medium or long")
	cmd.MarkFlagsMutuallyExclusive("html", "url")
	cmd.MarkFlagsOneRequired("html", "url")
	return cmd
}

// printValues prints a snapshot as sorted dotted keys.
func printValues(w io.Writer, prefix string, values map[string]any) error {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		switch v := values[k].(type) {
		case map[string]any:
			if err := printValues(w, prefix+k+".", v); err != nil {
				return err
			}
		case []any:
			for i, it := range v {
				if m, ok := it.(map[string]any); ok {
					if err := printValues(w, fmt.Sprintf("%s%s[%d].", prefix, k, i), m); err != nil {
						return err
					}
					continue
				}
				fmt.Fprintf(w, "%s%s[%d] = %v\n", prefix, k, i, it)
			}
		default:
			data, err := json.Marshal(v)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%s%s = %s\n", prefix, k, data)
		}
	}
	return nil
}

func newTranslateCmd(a *app) *cobra.Command {
	var htmlFile, url, path, pred string
	cmd := &cobra.Command{
		Use:   "translate <template>",
		Short: "Translate a predicate into a locator clause for a component's items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if pred == "" {
				return errors.New("--predicate is required")
			}
			ref, err := templateRef(cmd, args[0])
			if err != nil {
				return err
			}
			doc, err := documentRef(htmlFile, url)
			if err != nil {
				return err
			}
			res, err := a.svc.Translate(cmd.Context(), &inspect.TranslateRequest{
				TemplateRef: ref,
				DocumentRef: doc,
				Path:        path,
				Predicate:   json.RawMessage(pred),
			})
			if err != nil {
				return err
			}
			return a.print(cmd.OutOrStdout(), res, func(w io.Writer) error {
				fmt.Fprintf(w, "predicate: %s\n", res.Predicate)
				if res.Supported {
					fmt.Fprintf(w, "clause:    %s\n", res.Clause)
				} else {
					fmt.Fprintf(w, "clause:    unsupported (%s)\n", res.Reason)
				}
				if res.Matches != nil {
					fmt.Fprintf(w, "matches:   %s\n", strings.Join(res.Matches, " "))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&pred, "predicate", "", "predicate as JSON")
	cmd.Flags().StringVar(&htmlFile, "html", "", "HTML file whose items are filtered")
	cmd.Flags().StringVar(&url, "url", "", "URL whose items are filtered")
	cmd.Flags().StringVar(&path, "path", "", "component whose items are filtered")
	cmd.MarkFlagsMutuallyExclusive("html", "url")
	return cmd
}
