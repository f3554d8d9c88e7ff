// Command pagelem compiles page-element templates, resolves them against
// HTML documents or live pages, and serves the same operations as MCP tools.
//
// Usage:
//
//	pagelem check login.html                  # compile, report the first error
//	pagelem tree login.html                   # named components and locators
//	pagelem resolve login.html --html page.html --path form
//	pagelem resolve login.html --url https://example.com
//	pagelem translate list.html --predicate '{"attr":"state","op":"eq","value":"on"}'
//	pagelem catalog put login login.html      # store in the SQLite catalog
//	pagelem serve                             # HTTP + MCP on serve.addr
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "pagelem:", err)
		os.Exit(1)
	}
}

// run executes one command line. Resources opened by the command are
// released before it returns.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	a := &app{}
	defer a.close()

	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.ExecuteContext(ctx)
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
