// File: cmd/root_test.go
package cmd

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-a11y/internal/config"
	"github.com/xkilldash9x/scalpel-a11y/internal/orchestrator"
)

const violationJSON = `{
  "url": "%s",
  "timestamp": "2024-01-01T00:00:00.000Z",
  "testEngine": {"name": "axe-core", "version": "4.10.2"},
  "violations": [{
    "id": "image-alt",
    "impact": "serious",
    "tags": ["wcag2a"],
    "description": "Ensures <img> elements have alternate text",
    "help": "Images must have alternate text",
    "helpUrl": "https://dequeuniversity.com/rules/axe/4.10/image-alt",
    "nodes": [{"html": "<img src=\"logo.png\">", "impact": "serious", "target": ["img#logo"], "failureSummary": "Fix this"}]
  }]
}`

const cleanJSON = `{"url": "%s", "violations": []}`

// fakeBrowser serves canned axe results per URL and counts what it was asked to do.
type fakeBrowser struct {
	mu        sync.Mutex
	results   map[string]string
	docs      map[string]string
	opened    int
	shutdowns int
	navErr    error
}

func (b *fakeBrowser) NewPage(ctx context.Context) (orchestrator.Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.opened++
	return &fakePage{browser: b}, nil
}

func (b *fakeBrowser) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.shutdowns++
	return nil
}

type fakePage struct {
	browser *fakeBrowser
	url     string
}

func (p *fakePage) Navigate(ctx context.Context, url string) error {
	if p.browser.navErr != nil {
		return p.browser.navErr
	}
	p.url = url
	return nil
}

func (p *fakePage) InjectScript(ctx context.Context, source string) error { return nil }

func (p *fakePage) Evaluate(ctx context.Context, expr string, res interface{}) error {
	tmpl, ok := p.browser.results[p.url]
	if !ok {
		tmpl = cleanJSON
	}
	*res.(*[]byte) = []byte(fmt.Sprintf(tmpl, p.url))
	return nil
}

func (p *fakePage) HTML(ctx context.Context) (string, error) { return p.browser.docs[p.url], nil }
func (p *fakePage) URL(ctx context.Context) (string, error)  { return p.url, nil }
func (p *fakePage) Close() error                             { return nil }

// withFakes swaps the browser and engine factories for the duration of a test.
func withFakes(t *testing.T, b *fakeBrowser) *int {
	t.Helper()
	origBrowser, origEngine := newBrowserSession, loadEngine
	t.Cleanup(func() {
		newBrowserSession, loadEngine = origBrowser, origEngine
	})

	browserStarts := 0
	newBrowserSession = func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (browserSession, error) {
		browserStarts++
		return b, nil
	}
	loadEngine = func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (string, error) {
		return "window.axe = {run: function () {}};", nil
	}
	return &browserStarts
}

func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	// Keep the working directory free of a stray scalpel-a11y.yaml.
	t.Chdir(t.TempDir())

	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func readCSVFile(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestRootCmd_VersionFlag(t *testing.T) {
	out, err := executeCommand(t, "--version")
	require.NoError(t, err)
	assert.Equal(t, Version+"\n", out)
}

func TestRootCmd_NoArgs(t *testing.T) {
	starts := withFakes(t, &fakeBrowser{})

	_, err := executeCommand(t)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoTargets)
	assert.ErrorIs(t, err, orchestrator.ErrNoTargets, "one sentinel for the usage error")
	assert.Equal(t, "please provide one or more URLs as arguments", err.Error())
	assert.Zero(t, *starts, "no browser session may start without URLs")
}

func TestRootCmd_AuditWritesCSV(t *testing.T) {
	b := &fakeBrowser{results: map[string]string{"https://a.example/": violationJSON}}
	starts := withFakes(t, b)
	output := filepath.Join(t.TempDir(), "report.csv")

	_, err := executeCommand(t, "-o", output, "https://a.example/", "https://b.example/")
	require.NoError(t, err)

	rows := readCSVFile(t, output)
	require.Len(t, rows, 2, "header plus exactly one violation row")
	assert.Equal(t, []string{"id", "impact", "description", "help", "helpUrl", "html", "target", "url"}, rows[0])
	assert.Equal(t, "image-alt", rows[1][0])
	assert.Equal(t, "serious", rows[1][1])
	assert.Equal(t, "img#logo", rows[1][6])
	assert.Equal(t, "https://a.example/", rows[1][7])

	assert.Equal(t, 1, *starts)
	assert.Equal(t, 2, b.opened)
	assert.Equal(t, 1, b.shutdowns)
}

func TestRootCmd_FollowLinks(t *testing.T) {
	b := &fakeBrowser{
		results: map[string]string{
			"https://a.example/":      violationJSON,
			"https://a.example/about": violationJSON,
		},
		docs: map[string]string{
			"https://a.example/": `<a href="/about">About</a><a href="https://other.example/">Other</a>`,
		},
	}
	withFakes(t, b)
	output := filepath.Join(t.TempDir(), "axe-report.csv")

	_, err := executeCommand(t, "--follow-links", "--max-links", "1", "-o", output, "https://a.example/")
	require.NoError(t, err)

	rows := readCSVFile(t, output)
	require.Len(t, rows, 3)
	assert.Equal(t, "pageName", rows[0][7])
	assert.Equal(t, []string{"Main page", "https://a.example/"}, rows[1][7:])
	assert.Equal(t, []string{"Page 1", "https://a.example/about"}, rows[2][7:])
	assert.Equal(t, 2, b.opened)
}

func TestRootCmd_ConfigFileAndEnv(t *testing.T) {
	b := &fakeBrowser{results: map[string]string{"https://a.example/": violationJSON}}
	withFakes(t, b)

	dir := t.TempDir()
	output := filepath.Join(dir, "report.json")
	cfgPath := filepath.Join(dir, "custom.yaml")
	cfgContent := fmt.Sprintf("report:\n  output: %q\n  format: csv\n", output)
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfgContent), 0o644))

	// Env beats the config file.
	t.Setenv("SCALPEL_A11Y_REPORT_FORMAT", "json")

	_, err := executeCommand(t, "--config", cfgPath, "https://a.example/")
	require.NoError(t, err)

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(strings.TrimSpace(string(data)), "["), "expected a JSON array, got %s", data)
	assert.Contains(t, string(data), `"id": "image-alt"`)
}

func TestRootCmd_FlagBeatsEnv(t *testing.T) {
	withFakes(t, &fakeBrowser{})
	output := filepath.Join(t.TempDir(), "report.sarif")
	t.Setenv("SCALPEL_A11Y_REPORT_FORMAT", "json")

	_, err := executeCommand(t, "-f", "sarif", "-o", output, "https://a.example/")
	require.NoError(t, err)

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"version": "2.1.0"`)
}

func TestRootCmd_Failures(t *testing.T) {
	t.Run("missing config file", func(t *testing.T) {
		starts := withFakes(t, &fakeBrowser{})
		_, err := executeCommand(t, "--config", filepath.Join(t.TempDir(), "nope.yaml"), "https://a.example/")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "error reading config file")
		assert.Zero(t, *starts)
	})

	t.Run("invalid format", func(t *testing.T) {
		starts := withFakes(t, &fakeBrowser{})
		_, err := executeCommand(t, "-f", "xml", "https://a.example/")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "report.format")
		assert.Zero(t, *starts)
	})

	t.Run("engine unavailable", func(t *testing.T) {
		starts := withFakes(t, &fakeBrowser{})
		loadEngine = func(context.Context, *config.Config, *zap.Logger) (string, error) {
			return "", errors.New("cdn down")
		}
		_, err := executeCommand(t, "https://a.example/")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to load axe-core")
		assert.Zero(t, *starts)
	})

	t.Run("browser launch", func(t *testing.T) {
		withFakes(t, &fakeBrowser{})
		newBrowserSession = func(context.Context, *config.Config, *zap.Logger) (browserSession, error) {
			return nil, errors.New("chrome not found")
		}
		_, err := executeCommand(t, "https://a.example/")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to start browser")
	})

	t.Run("navigation aborts and shuts down", func(t *testing.T) {
		b := &fakeBrowser{navErr: errors.New("net::ERR_NAME_NOT_RESOLVED")}
		withFakes(t, b)
		output := filepath.Join(t.TempDir(), "report.csv")

		_, err := executeCommand(t, "-o", output, "https://a.example/")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ERR_NAME_NOT_RESOLVED")
		assert.Equal(t, 1, b.shutdowns)
		assert.NoFileExists(t, output)
	})
}
