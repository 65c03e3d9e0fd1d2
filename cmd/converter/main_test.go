package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dalfonso89/currency-converter/internal/app"
	"github.com/dalfonso89/currency-converter/internal/config"
	"github.com/dalfonso89/currency-converter/internal/models"
	"github.com/dalfonso89/currency-converter/internal/testutils"
)

func init() {
	color.NoColor = true
}

type cliFixture struct {
	config     *config.Config
	rateServer *testutils.MockRateServer
	output     *bytes.Buffer
}

func newCLIFixture(t *testing.T) *cliFixture {
	t.Helper()
	rateServer := testutils.NewMockRateServer()
	t.Cleanup(rateServer.Close)
	releaseServer := testutils.NewMockReleaseServer(testutils.ReleaseJSON("v1.4.0", 14, "kharrency-1.4.0.apk", "https://downloads.test/kharrency-1.4.0.apk", 5<<20))
	t.Cleanup(releaseServer.Close)

	cfg := testutils.MockConfig()
	cfg.ExchangeRateProvider.BaseURL = rateServer.URL()
	cfg.Update.URL = releaseServer.URL()
	// a file database so state survives between commands
	cfg.DatabaseDSN = filepath.Join(t.TempDir(), "converter.db")
	cfg.Installer.DownloadDir = filepath.Join(t.TempDir(), "updates")
	cfg.Installer.InstallDir = filepath.Join(t.TempDir(), "installed")

	return &cliFixture{config: cfg, rateServer: rateServer, output: &bytes.Buffer{}}
}

// run executes one command line and returns what it printed
func (fixture *cliFixture) run(args ...string) (string, error) {
	fixture.output.Reset()
	open := func(ctx context.Context) (*app.App, error) {
		return app.Build(ctx, fixture.config, testutils.MockLogger())
	}
	err := newCLI(context.Background(), fixture.output, open).root().Execute(args)
	return fixture.output.String(), err
}

func (fixture *cliFixture) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	output, err := fixture.run(args...)
	require.NoError(t, err, strings.Join(args, " "))
	return output
}

func TestCLI_ConvertAndHistory(t *testing.T) {
	fixture := newCLIFixture(t)

	first := fixture.mustRun(t, "convert", "100", "usd", "eur")
	assert.Contains(t, first, "100.00 USD = 85.00 EUR")
	assert.Contains(t, first, "(live)")

	second := fixture.mustRun(t, "convert", "10", "USD", "JPY")
	assert.Contains(t, second, "10.00 USD = 1100.00 JPY")
	assert.Contains(t, second, "(cached)")
	assert.Equal(t, int64(1), fixture.rateServer.Requests())

	history := fixture.mustRun(t, "history")
	lines := strings.Split(strings.TrimSpace(history), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "1100.00 JPY")
	assert.Contains(t, lines[1], "85.00 EUR")

	limited := fixture.mustRun(t, "history", "--limit", "1")
	assert.Len(t, strings.Split(strings.TrimSpace(limited), "\n"), 1)

	assert.Equal(t, "Deleted 2 conversions\n", fixture.mustRun(t, "history", "--clear"))
	assert.Equal(t, "No conversions yet\n", fixture.mustRun(t, "history"))
}

func TestCLI_Rates(t *testing.T) {
	fixture := newCLIFixture(t)

	output := fixture.mustRun(t, "rates", "USD")

	lines := strings.Split(strings.TrimSpace(output), "\n")
	require.Len(t, lines, 1+len(testutils.MockRates()))
	assert.True(t, strings.HasPrefix(lines[0], "Base USD"))
	assert.True(t, strings.HasPrefix(lines[1], "AUD"))
	assert.Contains(t, output, "EUR  0.850000")
}

func TestCLI_Errors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		message string
	}{
		{name: "missing subcommand", args: nil, message: "subcommand required"},
		{name: "unknown command", args: []string{"exchange"}, message: `unknown command "exchange"`},
		{name: "wrong arity", args: []string{"convert", "100", "USD"}, message: "usage: converter convert"},
		{name: "bad amount", args: []string{"convert", "lots", "USD", "EUR"}, message: `invalid amount "lots"`},
		{name: "negative amount", args: []string{"convert", "-5", "USD", "EUR"}, message: "invalid amount"},
		{name: "unsupported currency", args: []string{"convert", "5", "USD", "XYZ"}, message: "unsupported currency"},
		{name: "unknown flag", args: []string{"history", "--everything"}, message: "unknown flag"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fixture := newCLIFixture(t)

			_, err := fixture.run(tt.args...)

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestCLI_Help(t *testing.T) {
	fixture := newCLIFixture(t)

	output := fixture.mustRun(t, "--help")
	assert.Contains(t, output, "Commands:")
	assert.Contains(t, output, "convert")
	assert.Contains(t, output, "theme")

	historyHelp := fixture.mustRun(t, "history", "--help")
	assert.Contains(t, historyHelp, "--follow")
}

func TestCLI_Theme(t *testing.T) {
	fixture := newCLIFixture(t)

	assert.Equal(t, "Theme: light\n", fixture.mustRun(t, "theme", "show"))
	assert.Equal(t, "Theme: dark\n", fixture.mustRun(t, "theme", "toggle"))
	assert.Equal(t, "Theme: dark\n", fixture.mustRun(t, "theme", "show"))
	assert.Equal(t, "Theme: light\n", fixture.mustRun(t, "theme", "light"))
	assert.Equal(t, "Theme: dark\n", fixture.mustRun(t, "theme", "dark"))
}

func TestCLI_UpdateCheck(t *testing.T) {
	fixture := newCLIFixture(t)

	found := fixture.mustRun(t, "update", "check", "--force")
	assert.Contains(t, found, "Update available: 1.4.0")
	assert.Contains(t, found, "Faster conversions")

	throttled := fixture.mustRun(t, "update", "check")
	assert.Contains(t, throttled, "Rate limit protection")
}

func TestCLI_DownloadInstallUninstall(t *testing.T) {
	fixture := newCLIFixture(t)
	source := testutils.BuildPackage(t, t.TempDir(), "served.apk", models.PackageManifest{
		Package:     fixture.config.Installer.PackageName,
		VersionCode: 14,
		VersionName: "1.4.0",
		Signer:      "release-key",
	}, 2048)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, source)
	}))
	defer server.Close()

	downloaded := fixture.mustRun(t, "update", "download", server.URL, "kharrency-1.4.0.apk")
	assert.Contains(t, downloaded, "100%")
	assert.Contains(t, downloaded, "Saved "+filepath.Join(fixture.config.Installer.DownloadDir, "kharrency-1.4.0.apk"))

	installed := fixture.mustRun(t, "update", "install", "kharrency-1.4.0.apk")
	assert.Equal(t, "Installed com.harry.kharrency 1.4.0\n", installed)

	uninstalled := fixture.mustRun(t, "update", "uninstall")
	assert.Equal(t, "Uninstalled com.harry.kharrency 1.4.0\n", uninstalled)

	_, err := fixture.run("update", "uninstall")
	require.Error(t, err)
}

func TestCLI_DownloadFailure(t *testing.T) {
	fixture := newCLIFixture(t)
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	_, err := fixture.run("update", "download", server.URL, "kharrency-1.4.0.apk")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 404")
}

func TestRenderBar(t *testing.T) {
	tests := []struct {
		name     string
		progress models.DownloadProgress
		width    int
		expected string
	}{
		{
			name:     "half way",
			progress: models.DownloadProgress{BytesDownloaded: 50, TotalBytes: 100, Percentage: 50},
			width:    10,
			expected: "[#####-----]  50%  50 bytes / 100 bytes",
		},
		{
			name:     "complete",
			progress: models.DownloadProgress{BytesDownloaded: 2 << 20, TotalBytes: 2 << 20, Percentage: 100, IsComplete: true},
			width:    4,
			expected: "[####] 100%  2 MB / 2 MB",
		},
		{
			name:     "unknown total",
			progress: models.DownloadProgress{BytesDownloaded: 2048},
			width:    4,
			expected: "[----]    ?%  2 KB",
		},
		{
			name:     "percentage clamped",
			progress: models.DownloadProgress{BytesDownloaded: 10, TotalBytes: 5, Percentage: 200},
			width:    2,
			expected: "[##] 100%  10 bytes / 5 bytes",
		},
		{
			name:     "default width",
			progress: models.DownloadProgress{TotalBytes: 100},
			width:    0,
			expected: "[" + strings.Repeat("-", defaultBarWidth) + "]   0%  0 bytes / 100 bytes",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, renderBar(tt.progress, tt.width))
		})
	}
}

func TestBarWidth_NonTerminal(t *testing.T) {
	assert.Equal(t, defaultBarWidth, barWidth(&bytes.Buffer{}))
	assert.False(t, isTerminal(&bytes.Buffer{}))
}
