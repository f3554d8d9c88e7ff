package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/pagelem"
	"github.com/hazyhaar/pagelem/catalog"
	"github.com/hazyhaar/pagelem/config"
	"github.com/hazyhaar/pagelem/inspect"
	"github.com/hazyhaar/pagelem/loader"
	"github.com/hazyhaar/pagelem/remote"
	"github.com/hazyhaar/pagelem/remote/rodremote"
	"github.com/hazyhaar/pagelem/scope"
)

// app holds what the commands share: configuration, logger, the optional
// catalog and the browser, which is started on first use.
type app struct {
	flags struct {
		config    string
		logLevel  string
		logFormat string
		templates string
		catalog   string
		json      bool
	}

	cfg     *config.Config
	logger  *slog.Logger
	classes *scope.Registry
	store   *catalog.Store
	svc     *inspect.Service

	// ctx outlives single calls; the browser monitor runs under it.
	ctx     context.Context
	mu      sync.Mutex
	browser *rodremote.Manager
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "pagelem",
		Short:         "pagelem compiles page-element templates and resolves them against pages",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd.Context(), cmd.ErrOrStderr())
		},
	}
	f := root.PersistentFlags()
	f.StringVar(&a.flags.config, "config", env("PAGELEM_CONFIG", ""), "YAML configuration file")
	f.StringVar(&a.flags.logLevel, "log-level", "", "log level: debug, info, warn, error")
	f.StringVar(&a.flags.logFormat, "log-format", "", "log format: json or text")
	f.StringVar(&a.flags.templates, "templates", env("PAGELEM_TEMPLATES", ""), "template directory")
	f.StringVar(&a.flags.catalog, "catalog", env("PAGELEM_CATALOG", ""), "SQLite template catalog")
	f.BoolVar(&a.flags.json, "json", false, "print results as JSON")

	root.AddCommand(
		newCheckCmd(a),
		newTreeCmd(a),
		newLocatorsCmd(a),
		newResolveCmd(a),
		newTranslateCmd(a),
		newCatalogCmd(a),
		newServeCmd(a),
	)
	return root
}

func (a *app) setup(ctx context.Context, stderr io.Writer) error {
	cfg := config.Default()
	if a.flags.config != "" {
		var err error
		if cfg, err = config.LoadFile(a.flags.config); err != nil {
			return err
		}
	}
	if a.flags.logLevel != "" {
		cfg.LogLevel = a.flags.logLevel
	}
	if a.flags.logFormat != "" {
		cfg.LogFormat = a.flags.logFormat
	}
	if a.flags.templates != "" {
		cfg.Templates.Dir = a.flags.templates
	}
	if a.flags.catalog != "" {
		cfg.Templates.Catalog = a.flags.catalog
	}
	a.cfg = cfg
	a.ctx = ctx

	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	opts := &slog.HandlerOptions{Level: level}
	switch cfg.LogFormat {
	case "json":
		a.logger = slog.New(slog.NewJSONHandler(stderr, opts))
	case "text":
		a.logger = slog.New(slog.NewTextHandler(stderr, opts))
	default:
		return fmt.Errorf("log format %q: want json or text", cfg.LogFormat)
	}

	a.classes = scope.NewRegistry()
	dir, err := loader.NewDir(cfg.Templates.Dir)
	if err != nil {
		return err
	}
	chain := loader.Chain{dir}
	if cfg.Templates.Catalog != "" {
		a.store, err = catalog.Open(ctx, cfg.Templates.Catalog,
			catalog.WithLogger(a.logger),
			catalog.WithParseOptions(pagelem.WithControllers(a.classes.Has)))
		if err != nil {
			return err
		}
		chain = append(chain, loader.FromCatalog(a.store))
	}

	a.svc, err = inspect.New(inspect.Config{
		Loader:       chain,
		Classes:      a.classes,
		ScopeClass:   cfg.Scope.Class,
		RecoverStale: cfg.Scope.RecoverStale,
		Timeouts:     cfg.Scope.Timeouts,
		Open:         a.open,
		CallTimeout:  cfg.Serve.Timeout,
		Logger:       a.logger,
	})
	return err
}

// open implements inspect.OpenFunc on the shared browser.
func (a *app) open(ctx context.Context, url string) (remote.Backend, io.Closer, error) {
	a.mu.Lock()
	if a.browser == nil {
		b := a.cfg.Browser
		m := rodremote.NewManager(rodremote.Config{
			RemoteURL:       b.Remote,
			Headful:         b.Headful,
			Stealth:         b.StealthOn(),
			Block:           b.Block,
			RecycleInterval: b.RecycleInterval,
			MemoryLimit:     b.MemoryLimit,
			NavigateTimeout: b.NavigateTimeout,
			Logger:          a.logger,
		})
		if err := m.Start(a.ctx); err != nil {
			a.mu.Unlock()
			return nil, nil, err
		}
		a.browser = m
	}
	m := a.browser
	a.mu.Unlock()

	b, err := m.Open(ctx, url)
	if err != nil {
		return nil, nil, err
	}
	return b, b, nil
}

func (a *app) close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.browser != nil {
		a.browser.Close()
		a.browser = nil
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil && a.logger != nil {
			a.logger.Warn("pagelem: close catalog", "error", err)
		}
		a.store = nil
	}
}

func (a *app) requireCatalog() (*catalog.Store, error) {
	if a.store == nil {
		return nil, errors.New("no catalog configured: set --catalog or templates.catalog")
	}
	return a.store, nil
}

// print writes v as JSON with --json, or through text otherwise.
func (a *app) print(w io.Writer, v any, text func(io.Writer) error) error {
	if a.flags.json || text == nil {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	return text(w)
}

// templateRef maps a command argument to a template reference: "-" reads
// the source from stdin, anything else is a loader name.
func templateRef(cmd *cobra.Command, arg string) (inspect.TemplateRef, error) {
	if arg != "-" {
		return inspect.TemplateRef{Template: arg}, nil
	}
	src, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return inspect.TemplateRef{}, fmt.Errorf("read stdin: %w", err)
	}
	return inspect.TemplateRef{Source: string(src)}, nil
}

// documentRef reads --html from a file, or passes --url through.
func documentRef(htmlFile, url string) (inspect.DocumentRef, error) {
	if htmlFile == "" {
		return inspect.DocumentRef{URL: url}, nil
	}
	data, err := os.ReadFile(htmlFile)
	if err != nil {
		return inspect.DocumentRef{}, err
	}
	return inspect.DocumentRef{HTML: string(data), URL: url}, nil
}
