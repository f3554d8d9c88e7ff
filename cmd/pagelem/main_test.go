package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const listTemplate = `<div class="list"><repeat this="[id]"><div id="[id]" data-state="[state]"><span this="label">[text]</span></div></repeat></div>`

const listPage = `<html><body><div class="list">
<div id="a" data-state="on"><span>Alpha</span></div>
<div id="b" data-state="off"><span>Beta</span></div>
</div></body></html>`

// workdir writes the fixtures into a temp dir and returns it.
func workdir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range map[string]string{
		"list.html": listTemplate,
		"bad.html":  "<div>\n  <pe-bogus></pe-bogus>\n</div>",
		"page.html": listPage,
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func runCmd(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	err := run(context.Background(), append([]string{"--log-level", "warn"}, args...), strings.NewReader(stdin), &out, &errOut)
	return out.String(), err
}

func TestCheck(t *testing.T) {
	dir := workdir(t)

	out, err := runCmd(t, "", "--templates", dir, "check", "list.html")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !strings.Contains(out, "list.html: ok") {
		t.Errorf("got %q", out)
	}

	out, err = runCmd(t, "", "--templates", dir, "check", "list.html", "bad.html")
	if err == nil {
		t.Fatal("bad template: expected error")
	}
	if !strings.Contains(out, "bad.html: ") || !strings.Contains(out, "parse error") {
		t.Errorf("got %q", out)
	}

	out, err = runCmd(t, listTemplate, "--json", "check", "-")
	if err != nil {
		t.Fatalf("stdin: %v", err)
	}
	var res []struct {
		OK bool `json:"ok"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil || len(res) != 1 || !res[0].OK {
		t.Errorf("json: got %s, %v", out, err)
	}
}

func TestTree(t *testing.T) {
	dir := workdir(t)
	out, err := runCmd(t, "", "--templates", dir, "tree", "list.html")
	if err != nil {
		t.Fatalf("tree: %v", err)
	}
	if !strings.Contains(out, "label") {
		t.Errorf("got %q", out)
	}
}

func TestResolve(t *testing.T) {
	dir := workdir(t)
	out, err := runCmd(t, "", "--templates", dir, "resolve", "list.html", "--html", filepath.Join(dir, "page.html"), "--path", "b")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	for _, want := range []string{`state = "off"`, `label.text = "Beta"`} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in %q", want, out)
		}
	}

	if _, err := runCmd(t, "", "--templates", dir, "resolve", "list.html"); err == nil {
		t.Error("no document: expected error")
	}
}

func TestTranslate(t *testing.T) {
	dir := workdir(t)
	out, err := runCmd(t, "", "--templates", dir, "translate", "list.html",
		"--predicate", `{"attr":"state","op":"eq","value":"on"}`,
		"--html", filepath.Join(dir, "page.html"))
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	for _, want := range []string{"[@data-state='on']", "matches:   a"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in %q", want, out)
		}
	}
}

func TestCatalog(t *testing.T) {
	dir := workdir(t)
	db := filepath.Join(dir, "data", "catalog.db")
	flags := []string{"--templates", dir, "--catalog", db}

	if _, err := runCmd(t, "", append(flags, "catalog", "put", "list", filepath.Join(dir, "list.html"))...); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := runCmd(t, "", append(flags, "catalog", "put", "broken", filepath.Join(dir, "bad.html"))...); err == nil {
		t.Error("put bad: expected error")
	}

	out, err := runCmd(t, "", append(flags, "catalog", "list")...)
	if err != nil || !strings.HasPrefix(out, "list ") {
		t.Fatalf("list: got %q, %v", out, err)
	}
	out, err = runCmd(t, "", append(flags, "catalog", "get", "list")...)
	if err != nil || out != listTemplate {
		t.Fatalf("get: got %q, %v", out, err)
	}

	// Stored names resolve through the catalog when no file matches.
	out, err = runCmd(t, "", append(flags, "locators", "list")...)
	if err != nil || !strings.Contains(out, "label") {
		t.Fatalf("locators: got %q, %v", out, err)
	}
	if _, err := runCmd(t, "", append(flags, "check", "list")...); err != nil {
		t.Fatalf("check stored: %v", err)
	}

	if _, err := runCmd(t, "", append(flags, "catalog", "rm", "list")...); err != nil {
		t.Fatalf("rm: %v", err)
	}
	if _, err := runCmd(t, "", append(flags, "catalog", "get", "list")...); err == nil {
		t.Error("get after rm: expected error")
	}
	if _, err := runCmd(t, "", "catalog", "list"); err == nil {
		t.Error("no catalog: expected error")
	}
}

func TestServe_MCP(t *testing.T) {
	dir := workdir(t)
	a := &app{}
	t.Cleanup(a.close)
	a.flags.templates = dir
	a.flags.logLevel = "warn"
	ctx := context.Background()
	if err := a.setup(ctx, &bytes.Buffer{}); err != nil {
		t.Fatalf("setup: %v", err)
	}
	ts := httptest.NewServer(a.router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz: got %d, want 200", resp.StatusCode)
	}

	client := mcp.NewClient(&mcp.Implementation{Name: "test", Version: "0"}, nil)
	cs, err := client.Connect(ctx, &mcp.StreamableClientTransport{Endpoint: ts.URL + "/mcp"}, nil)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer cs.Close()

	tools, err := cs.ListTools(ctx, nil)
	if err != nil {
		t.Fatalf("list tools: %v", err)
	}
	if len(tools.Tools) != 4 {
		t.Errorf("got %d tools, want 4", len(tools.Tools))
	}

	res, err := cs.CallTool(ctx, &mcp.CallToolParams{Name: "pagelem_check", Arguments: map[string]any{"template": "list.html"}})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if res.IsError {
		t.Fatalf("tool error: %+v", res.Content)
	}
	text := res.Content[0].(*mcp.TextContent).Text
	if !strings.Contains(text, `"ok":true`) {
		t.Errorf("got %s", text)
	}
}
