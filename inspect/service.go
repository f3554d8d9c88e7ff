// Package inspect answers questions about page-element templates: whether
// a source compiles, which locators it produces, what it resolves to on a
// document, and how a predicate translates. The same operations back the
// CLI and the MCP tools registered by RegisterMCP.
package inspect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/hazyhaar/pagelem"
	"github.com/hazyhaar/pagelem/engine"
	"github.com/hazyhaar/pagelem/loader"
	"github.com/hazyhaar/pagelem/predicate"
	"github.com/hazyhaar/pagelem/remote"
	"github.com/hazyhaar/pagelem/remote/htmldoc"
	"github.com/hazyhaar/pagelem/scope"
)

// ErrNoBrowser is returned for a URL document when no browser is set up.
var ErrNoBrowser = errors.New("inspect: no browser configured")

// OpenFunc opens a live document. The closer releases it.
type OpenFunc func(ctx context.Context, url string) (remote.Backend, io.Closer, error)

// Config configures a Service.
type Config struct {
	// Loader resolves template names; nil accepts inline sources only.
	Loader loader.Loader

	// Classes defaults to scope.NewRegistry().
	Classes *scope.Registry

	// ScopeClass is the class of the page scope. Default: page.
	ScopeClass   string
	RecoverStale bool
	// Timeouts override named timeouts of ScopeClass.
	Timeouts map[string]time.Duration

	Open OpenFunc

	// CallTimeout bounds each MCP tool call; zero leaves calls unbounded.
	CallTimeout time.Duration

	Logger *slog.Logger
}

// Service implements the inspect operations.
type Service struct {
	loader  loader.Loader
	classes *scope.Registry
	class   *scope.Class
	recover bool
	open    OpenFunc
	timeout time.Duration
	logger  *slog.Logger
}

// New builds a Service.
func New(cfg Config) (*Service, error) {
	s := &Service{loader: cfg.Loader, classes: cfg.Classes, recover: cfg.RecoverStale, open: cfg.Open, timeout: cfg.CallTimeout, logger: cfg.Logger}
	if s.classes == nil {
		s.classes = scope.NewRegistry()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	name := cfg.ScopeClass
	if name == "" {
		name = scope.ClassPage
	}
	class, ok := s.classes.Get(name)
	if !ok {
		return nil, fmt.Errorf("inspect: unknown scope class %q", name)
	}
	if len(cfg.Timeouts) > 0 {
		var err error
		class, err = s.classes.Define(scope.ClassDef{Name: name + "+timeouts", Parent: name, Timeouts: cfg.Timeouts})
		if err != nil {
			return nil, fmt.Errorf("inspect: %w", err)
		}
	}
	s.class = class
	return s, nil
}

// TemplateRef names a template by inline source or by loader name.
type TemplateRef struct {
	Source   string `json:"source,omitempty"`
	Template string `json:"template,omitempty"`
}

// DocumentRef names the document to resolve against.
type DocumentRef struct {
	HTML string `json:"html,omitempty"`
	URL  string `json:"url,omitempty"`
}

func (s *Service) template(ctx context.Context, ref TemplateRef) (*pagelem.Template, error) {
	opts := []pagelem.Option{pagelem.WithLogger(s.logger), pagelem.WithControllers(s.classes.Has)}
	switch {
	case ref.Source != "" && ref.Template != "":
		return nil, errors.New("inspect: give either source or template")
	case ref.Source != "":
		return pagelem.Parse([]byte(ref.Source), append(opts, pagelem.WithFile("inline"))...)
	case ref.Template == "":
		return nil, errors.New("inspect: source or template required")
	case s.loader == nil:
		return nil, fmt.Errorf("inspect: template %q: no loader configured", ref.Template)
	}
	return loader.Load(ctx, s.loader, ref.Template, opts...)
}

func (s *Service) backend(ctx context.Context, ref DocumentRef) (remote.Backend, io.Closer, error) {
	switch {
	case ref.HTML != "" && ref.URL != "":
		return nil, nil, errors.New("inspect: give either html or url")
	case ref.HTML != "":
		d, err := htmldoc.ParseString(ref.HTML, htmldoc.WithLogger(s.logger))
		if err != nil {
			return nil, nil, err
		}
		return d, nopCloser{}, nil
	case ref.URL != "":
		if s.open == nil {
			return nil, nil, ErrNoBrowser
		}
		return s.open(ctx, ref.URL)
	}
	return nil, nil, errors.New("inspect: html or url required")
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func (s *Service) scope() *scope.Instance {
	sc := scope.New(s.class, nil, scope.WithInstanceLogger(s.logger))
	sc.SetRecoverStale(s.recover)
	return sc
}

// descend walks a dot separated component path from c.
func descend(ctx context.Context, c *engine.Component, path string) (*engine.Component, error) {
	if path == "" {
		return c, nil
	}
	for name := range strings.SplitSeq(path, ".") {
		next, err := c.Child(ctx, name)
		if err != nil {
			return nil, err
		}
		c = next
	}
	return c, nil
}

// --- check ---

type CheckRequest struct {
	TemplateRef
}

// Problem describes a failure in a result rather than as a call error.
type Problem struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
	Col     int    `json:"col,omitempty"`
}

func problem(err error) *Problem {
	p := &Problem{Message: err.Error()}
	var pe *pagelem.Error
	if errors.As(err, &pe) {
		p.Kind = pe.Kind.String()
		p.Line, p.Col = pe.Pos.Line, pe.Pos.Col
	}
	return p
}

type Link struct {
	Rel   string `json:"rel,omitempty"`
	Href  string `json:"href"`
	Title string `json:"title,omitempty"`
}

type CheckResult struct {
	OK         bool     `json:"ok"`
	Name       string   `json:"name,omitempty"`
	Components int      `json:"components"`
	Templates  []string `json:"templates,omitempty"`
	Links      []Link   `json:"links,omitempty"`
	Problem    *Problem `json:"problem,omitempty"`
}

// Check compiles a template. Compile failures are reported in the result.
func (s *Service) Check(ctx context.Context, req *CheckRequest) (*CheckResult, error) {
	t, err := s.template(ctx, req.TemplateRef)
	if err != nil {
		if pagelem.KindOf(err) == pagelem.KindParse {
			return &CheckResult{Problem: problem(err)}, nil
		}
		return nil, err
	}
	res := &CheckResult{
		OK:         true,
		Name:       t.Name,
		Components: len(t.Tree()),
		Templates:  slices.Sorted(maps.Keys(t.Templates)),
	}
	for _, l := range t.Links {
		res.Links = append(res.Links, Link{Rel: l.Rel, Href: l.Href, Title: l.Title})
	}
	return res, nil
}

// --- tree ---

type TreeRequest struct {
	TemplateRef
}

type TreeLine struct {
	Depth   int    `json:"depth"`
	Name    string `json:"name"`
	Kind    string `json:"kind"`
	Locator string `json:"locator,omitempty"`
	Score   int    `json:"score"`
}

type TreeResult struct {
	Name  string     `json:"name"`
	Lines []TreeLine `json:"lines"`
}

// Tree lists the named nodes of a template with their locators.
func (s *Service) Tree(ctx context.Context, req *TreeRequest) (*TreeResult, error) {
	t, err := s.template(ctx, req.TemplateRef)
	if err != nil {
		return nil, err
	}
	res := &TreeResult{Name: t.Name, Lines: []TreeLine{}}
	for _, e := range t.Tree() {
		res.Lines = append(res.Lines, TreeLine{Depth: e.Depth, Name: e.Name, Kind: e.Kind.String(), Locator: e.Locator, Score: e.Score})
	}
	return res, nil
}

// --- resolve ---

type ResolveRequest struct {
	TemplateRef
	DocumentRef
	// Path selects a component below the page, dot separated.
	Path string `json:"path,omitempty"`
	// Wait names a timeout to wait for page readiness with.
	Wait string `json:"wait,omitempty"`
}

type ResolveResult struct {
	Path   string         `json:"path"`
	Values map[string]any `json:"values"`
}

// Resolve binds a template to a document and snapshots a component.
func (s *Service) Resolve(ctx context.Context, req *ResolveRequest) (*ResolveResult, error) {
	t, err := s.template(ctx, req.TemplateRef)
	if err != nil {
		return nil, err
	}
	b, closer, err := s.backend(ctx, req.DocumentRef)
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	page, err := engine.New(b, engine.WithLogger(s.logger), engine.WithClasses(s.classes)).Page(ctx, t, s.scope())
	if err != nil {
		return nil, err
	}
	if req.Wait != "" {
		if err := page.WaitReady(ctx, req.Wait); err != nil {
			return nil, err
		}
	}
	c, err := descend(ctx, page, req.Path)
	if err != nil {
		return nil, err
	}
	values, err := engine.Snapshot(ctx, c)
	if err != nil {
		return nil, err
	}
	return &ResolveResult{Path: c.Path(), Values: values}, nil
}

// --- translate ---

type TranslateRequest struct {
	TemplateRef
	// The document is optional; without one only the clause is computed.
	DocumentRef
	Path      string          `json:"path,omitempty"`
	Predicate json.RawMessage `json:"predicate"`
}

type TranslateResult struct {
	Predicate string   `json:"predicate"`
	Clause    string   `json:"clause,omitempty"`
	Supported bool     `json:"supported"`
	Reason    string   `json:"reason,omitempty"`
	Matches   []string `json:"matches,omitempty"`
}

// Translate renders a predicate as a locator clause for the items of a
// component and, given a document, lists the items it selects.
func (s *Service) Translate(ctx context.Context, req *TranslateRequest) (*TranslateResult, error) {
	expr, err := predicate.Parse(req.Predicate)
	if err != nil {
		return nil, err
	}
	t, err := s.template(ctx, req.TemplateRef)
	if err != nil {
		return nil, err
	}

	var b remote.Backend = predicate.Hypothetical{}
	withDoc := req.HTML != "" || req.URL != ""
	if withDoc {
		var closer io.Closer
		b, closer, err = s.backend(ctx, req.DocumentRef)
		if err != nil {
			return nil, err
		}
		defer closer.Close()
	}
	page, err := engine.New(b, engine.WithLogger(s.logger), engine.WithClasses(s.classes)).Page(ctx, t, s.scope())
	if err != nil {
		return nil, err
	}
	c, err := descend(ctx, page, req.Path)
	if err != nil {
		return nil, err
	}

	res := &TranslateResult{Predicate: expr.String(), Supported: true}
	res.Clause, err = expr.Translate(ctx, c)
	switch {
	case errors.Is(err, engine.ErrUnsupportedPredicate):
		res.Supported, res.Reason = false, err.Error()
	case err != nil:
		return nil, err
	}
	if !withDoc {
		return res, nil
	}
	res.Matches = []string{}
	for it, err := range c.Filter(ctx, expr) {
		if err != nil {
			return nil, err
		}
		res.Matches = append(res.Matches, it.Name)
	}
	return res, nil
}
