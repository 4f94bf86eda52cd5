package cmd

// The CLI keeps cobra flags in package-level variables, so tests that touch
// them hold testMu and restore a snapshot on cleanup. Only pure function
// tests run in parallel.

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

var testMu sync.Mutex

type globalStateSnapshot struct {
	serverURL       string
	outputFormat    string
	openHTMLFile    string
	historyYes      bool
	scopeDomainWide string
	usageDate       string
	usageYes        bool
	settingsAPIKey  string
	settingsModel   string
	sitesYes        bool
	clearCSSYes     bool
	resetYes        bool
}

func saveGlobalState() globalStateSnapshot {
	return globalStateSnapshot{
		serverURL:       serverURL,
		outputFormat:    outputFormat,
		openHTMLFile:    openHTMLFile,
		historyYes:      historyYes,
		scopeDomainWide: scopeDomainWide,
		usageDate:       usageDate,
		usageYes:        usageYes,
		settingsAPIKey:  settingsAPIKey,
		settingsModel:   settingsModel,
		sitesYes:        sitesYes,
		clearCSSYes:     clearCSSYes,
		resetYes:        resetYes,
	}
}

func restoreGlobalState(saved globalStateSnapshot) {
	serverURL = saved.serverURL
	outputFormat = saved.outputFormat
	openHTMLFile = saved.openHTMLFile
	historyYes = saved.historyYes
	scopeDomainWide = saved.scopeDomainWide
	usageDate = saved.usageDate
	usageYes = saved.usageYes
	settingsAPIKey = saved.settingsAPIKey
	settingsModel = saved.settingsModel
	sitesYes = saved.sitesYes
	clearCSSYes = saved.clearCSSYes
	resetYes = saved.resetYes
}

func resetGlobalStateToDefaults() {
	serverURL = "http://localhost:8080"
	outputFormat = "table"
	openHTMLFile = ""
	historyYes = false
	scopeDomainWide = ""
	usageDate = ""
	usageYes = false
	settingsAPIKey = ""
	settingsModel = ""
	sitesYes = false
	clearCSSYes = false
	resetYes = false
}

// setupTestWithCleanup acquires testMu, resets globals and restores them on cleanup
func setupTestWithCleanup(t *testing.T) {
	t.Helper()

	testMu.Lock()
	saved := saveGlobalState()
	resetGlobalStateToDefaults()

	t.Cleanup(func() {
		restoreGlobalState(saved)
		testMu.Unlock()
	})
}

// setupMockServer starts a mock server and points serverURL at it
func setupMockServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	serverURL = server.URL
	return server
}

// captureOutput captures stdout during function execution
func captureOutput(f func()) string {
	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	f()

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	io.Copy(&buf, r)
	return buf.String()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

var mockPage = map[string]any{
	"id":          "page-123",
	"url":         "https://a.example/foo",
	"title":       "Example Page",
	"scope":       "https://a.example/foo",
	"domain_wide": false,
	"style_bytes": 42,
	"has_changes": true,
	"opened_at":   "2024-06-01T10:00:00Z",
}

func TestOpenCommand_Fetch(t *testing.T) {
	setupTestWithCleanup(t)
	var captured map[string]string
	setupMockServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/pages" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&captured)
		writeJSON(w, http.StatusCreated, mockPage)
	})

	output := captureOutput(func() {
		if err := runOpen(nil, []string{"https://a.example/foo"}); err != nil {
			t.Errorf("runOpen returned error: %v", err)
		}
	})

	if captured["url"] != "https://a.example/foo" {
		t.Errorf("expected url in request, got: %v", captured)
	}
	if _, ok := captured["html"]; ok {
		t.Error("expected no html in request without --file")
	}
	if !strings.Contains(output, "page-123") {
		t.Errorf("expected page ID in output, got: %s", output)
	}
	if !strings.Contains(output, "Example Page") {
		t.Errorf("expected title in output, got: %s", output)
	}
}

func TestOpenCommand_WithFile(t *testing.T) {
	setupTestWithCleanup(t)
	var captured map[string]string
	setupMockServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&captured)
		writeJSON(w, http.StatusCreated, mockPage)
	})

	openHTMLFile = filepath.Join(t.TempDir(), "page.html")
	if err := os.WriteFile(openHTMLFile, []byte("<html><body>hi</body></html>"), 0644); err != nil {
		t.Fatal(err)
	}

	captureOutput(func() {
		if err := runOpen(nil, []string{"https://a.example/foo"}); err != nil {
			t.Errorf("runOpen returned error: %v", err)
		}
	})

	if captured["html"] != "<html><body>hi</body></html>" {
		t.Errorf("expected file content in request, got: %v", captured)
	}
}

func TestPagesCommand(t *testing.T) {
	setupTestWithCleanup(t)
	setupMockServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"pages": []any{mockPage}, "count": 1})
	})

	output := captureOutput(func() {
		if err := runPages(nil, nil); err != nil {
			t.Errorf("runPages returned error: %v", err)
		}
	})

	for _, want := range []string{"page-123", "Example Page", "https://a.example/foo", "42B", "Total: 1 pages"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got: %s", want, output)
		}
	}
}

func TestPagesCommand_JSON(t *testing.T) {
	setupTestWithCleanup(t)
	outputFormat = "json"
	setupMockServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"pages": []any{}, "count": 0})
	})

	output := captureOutput(func() {
		if err := runPages(nil, nil); err != nil {
			t.Errorf("runPages returned error: %v", err)
		}
	})

	var decoded map[string]any
	if err := json.Unmarshal([]byte(output), &decoded); err != nil {
		t.Errorf("expected JSON output, got: %s", output)
	}
}

func TestHTMLCommand(t *testing.T) {
	setupTestWithCleanup(t)
	setupMockServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/pages/page-123/html" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html><head><style data-pagemagic=\"true\">p{}</style></head></html>"))
	})

	output := captureOutput(func() {
		if err := runHTML(nil, []string{"page-123"}); err != nil {
			t.Errorf("runHTML returned error: %v", err)
		}
	})

	if !strings.Contains(output, "data-pagemagic") {
		t.Errorf("expected raw HTML in output, got: %s", output)
	}
}

func TestApplyCommand(t *testing.T) {
	setupTestWithCleanup(t)
	var captured map[string]string
	setupMockServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/pages/page-123/generate" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&captured)
		writeJSON(w, http.StatusOK, map[string]any{
			"entry":    map[string]any{"id": "entry-1", "prompt": captured["prompt"], "css": "body { background: #111 !important; }"},
			"scope":    "https://a.example/foo",
			"model":    "claude-3-5-haiku-20241022",
			"usage":    map[string]any{"input_tokens": 1200, "output_tokens": 80},
			"cost":     0.00128,
			"applied":  true,
			"warnings": []string{"the model response was truncated at the token limit"},
		})
	})

	output := captureOutput(func() {
		if err := runApply(nil, []string{"page-123", "make", "it", "dark"}); err != nil {
			t.Errorf("runApply returned error: %v", err)
		}
	})

	if captured["prompt"] != "make it dark" {
		t.Errorf("expected joined prompt, got: %q", captured["prompt"])
	}
	for _, want := range []string{"entry-1", "1200 in / 80 out", "$0.0013", "Warning: the model response was truncated", "background: #111"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got: %s", want, output)
		}
	}
}

func TestApplyCommand_NotConfigured(t *testing.T) {
	setupTestWithCleanup(t)
	setupMockServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusPreconditionFailed, map[string]string{
			"error": "API key not configured. Set it with 'pagemagic-cli settings set --api-key'.",
		})
	})

	err := runApply(nil, []string{"page-123", "dark"})
	if err == nil {
		t.Fatal("expected error for unconfigured server")
	}
	if !strings.Contains(err.Error(), "HTTP 412") || !strings.Contains(err.Error(), "API key not configured") {
		t.Errorf("expected server message in error, got: %v", err)
	}
}

func TestHistoryListCommand(t *testing.T) {
	setupTestWithCleanup(t)
	setupMockServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/pages/page-123/history" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"scope": "https://a.example/foo",
			"entries": []any{
				map[string]any{"id": "e1", "prompt": "dark mode", "css": "body{}", "created_at": "2024-06-01T10:00:00Z"},
				map[string]any{"id": "e2", "prompt": "bigger text", "css": "p{}", "disabled": true, "created_at": "2024-06-01T10:05:00Z"},
			},
			"count": 2,
		})
	})

	output := captureOutput(func() {
		if err := runHistoryList(nil, []string{"page-123"}); err != nil {
			t.Errorf("runHistoryList returned error: %v", err)
		}
	})

	for _, want := range []string{"Scope: https://a.example/foo", "e1", "dark mode", "e2", "off", "Total: 2 layers"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got: %s", want, output)
		}
	}
}

func TestHistoryToggleAndEdit(t *testing.T) {
	setupTestWithCleanup(t)
	var paths []string
	setupMockServer(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		switch {
		case strings.HasSuffix(r.URL.Path, "/edit"):
			writeJSON(w, http.StatusOK, map[string]string{"scope": "https://a.example/foo", "prompt": "dark mode"})
		case strings.HasSuffix(r.URL.Path, "/toggle-all"):
			writeJSON(w, http.StatusOK, map[string]any{"scope": "https://a.example/foo", "enabled": false})
		default:
			writeJSON(w, http.StatusOK, map[string]string{"message": "entry toggled"})
		}
	})

	output := captureOutput(func() {
		if err := runHistoryToggle(nil, []string{"page-123", "e1"}); err != nil {
			t.Errorf("runHistoryToggle returned error: %v", err)
		}
		if err := runHistoryToggleAll(nil, []string{"page-123"}); err != nil {
			t.Errorf("runHistoryToggleAll returned error: %v", err)
		}
		if err := runHistoryEdit(nil, []string{"page-123", "e1"}); err != nil {
			t.Errorf("runHistoryEdit returned error: %v", err)
		}
	})

	want := []string{
		"POST /api/v1/pages/page-123/history/e1/toggle",
		"POST /api/v1/pages/page-123/history/toggle-all",
		"POST /api/v1/pages/page-123/history/e1/edit",
	}
	if strings.Join(paths, ",") != strings.Join(want, ",") {
		t.Errorf("unexpected requests: %v", paths)
	}
	if !strings.Contains(output, "All layers disabled") {
		t.Errorf("expected toggle-all result in output, got: %s", output)
	}
	if !strings.Contains(output, "dark mode") {
		t.Errorf("expected edited prompt in output, got: %s", output)
	}
}

func TestDestructiveCommandsRequireYes(t *testing.T) {
	setupTestWithCleanup(t)
	called := false
	setupMockServer(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
		writeJSON(w, http.StatusOK, map[string]string{})
	})

	checks := map[string]error{
		"history remove": runHistoryRemove(nil, []string{"page-123", "e1"}),
		"history clear":  runHistoryClear(nil, []string{"page-123"}),
		"usage clear":    runUsageClear(nil, nil),
		"sites remove":   runSitesRemove(nil, []string{"https://a.example"}),
		"clear-css":      runClearCSS(nil, nil),
		"reset":          runReset(nil, nil),
	}
	for name, err := range checks {
		if !errors.Is(err, errNotConfirmed) {
			t.Errorf("%s: expected confirmation error, got: %v", name, err)
		}
	}
	if called {
		t.Error("expected no request without --yes")
	}
}

func TestSitesRemoveCommand(t *testing.T) {
	setupTestWithCleanup(t)
	sitesYes = true
	var captured string
	setupMockServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/api/v1/sites" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		captured = r.URL.Query().Get("scope")
		writeJSON(w, http.StatusOK, map[string]string{"message": "ok"})
	})

	output := captureOutput(func() {
		if err := runSitesRemove(nil, []string{"https://a.example/foo bar"}); err != nil {
			t.Errorf("runSitesRemove returned error: %v", err)
		}
	})

	if captured != "https://a.example/foo bar" {
		t.Errorf("expected escaped scope to round-trip, got: %q", captured)
	}
	if !strings.Contains(output, "Styles removed") {
		t.Errorf("unexpected output: %s", output)
	}
}

func TestSitesListCommand(t *testing.T) {
	setupTestWithCleanup(t)
	setupMockServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"sites": []any{
				map[string]any{"scope": "https://a.example", "entries": 3, "enabled": 2, "has_styles": true, "style_bytes": 120, "latest_prompt": "dark mode"},
			},
			"count": 1,
			"stats": map[string]any{"sites": 1, "history_entries": 3, "style_bytes": 120, "total_bytes": 400},
		})
	})

	output := captureOutput(func() {
		if err := runSitesList(nil, nil); err != nil {
			t.Errorf("runSitesList returned error: %v", err)
		}
	})

	for _, want := range []string{"https://a.example", "120B", "dark mode", "Total: 1 sites, 3 layers, 400 bytes"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got: %s", want, output)
		}
	}
}

func TestScopeCommand(t *testing.T) {
	setupTestWithCleanup(t)
	var body map[string]any
	setupMockServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut {
			json.NewDecoder(r.Body).Decode(&body)
			writeJSON(w, http.StatusOK, map[string]any{"domain_wide": true, "scope": "https://a.example"})
			return
		}
		if r.URL.Query().Get("page_id") != "page-123" {
			t.Errorf("expected page_id query, got: %s", r.URL.RawQuery)
		}
		writeJSON(w, http.StatusOK, map[string]any{"domain_wide": false, "page_id": "page-123", "scope": "https://a.example/foo"})
	})

	output := captureOutput(func() {
		if err := runScope(nil, []string{"page-123"}); err != nil {
			t.Errorf("runScope returned error: %v", err)
		}
	})
	if !strings.Contains(output, "Domain-wide: off") || !strings.Contains(output, "https://a.example/foo") {
		t.Errorf("unexpected output: %s", output)
	}

	scopeDomainWide = "on"
	output = captureOutput(func() {
		if err := runScope(nil, []string{"page-123"}); err != nil {
			t.Errorf("runScope returned error: %v", err)
		}
	})
	if body["page_id"] != "page-123" || body["domain_wide"] != true {
		t.Errorf("unexpected PUT body: %v", body)
	}
	if !strings.Contains(output, "Domain-wide styling on") {
		t.Errorf("unexpected output: %s", output)
	}
}

func TestScopeCommand_Validation(t *testing.T) {
	setupTestWithCleanup(t)

	scopeDomainWide = "maybe"
	if err := runScope(nil, []string{"page-123"}); err == nil {
		t.Error("expected error for invalid --domain-wide value")
	}

	scopeDomainWide = "on"
	if err := runScope(nil, nil); err == nil {
		t.Error("expected error when switching modes without a page id")
	}
}

func TestUsageCommands(t *testing.T) {
	setupTestWithCleanup(t)
	usageDate = "2024-06-01"
	var query string
	setupMockServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/usage/daily":
			query = r.URL.Query().Get("date")
			writeJSON(w, http.StatusOK, map[string]any{
				"date": "2024-06-01",
				"entry": map[string]any{
					"requests":  2,
					"totalCost": 0.0042,
					"models": map[string]any{
						"claude-3-5-haiku-20241022": map[string]any{"requests": 2, "cost": 0.0042, "tokens": map[string]any{"input": 2000, "output": 300}},
					},
				},
				"model_names": map[string]string{"claude-3-5-haiku-20241022": "Claude Haiku 3.5"},
			})
		case "/api/v1/usage/days":
			writeJSON(w, http.StatusOK, map[string]any{
				"days": []any{
					map[string]any{"date": "2024-06-02", "entry": map[string]any{"requests": 1, "totalCost": 0.001}},
					map[string]any{"date": "2024-06-01", "entry": map[string]any{"requests": 2, "totalCost": 0.0042}},
				},
				"count": 2,
			})
		default:
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
	})

	output := captureOutput(func() {
		if err := runUsageToday(nil, nil); err != nil {
			t.Errorf("runUsageToday returned error: %v", err)
		}
		if err := runUsageDays(nil, nil); err != nil {
			t.Errorf("runUsageDays returned error: %v", err)
		}
	})

	if query != "2024-06-01" {
		t.Errorf("expected date query, got: %q", query)
	}
	for _, want := range []string{"Usage for 2024-06-01", "Claude Haiku 3.5", "$0.0042", "2024-06-02", "Total: 2 days, $0.0052"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got: %s", want, output)
		}
	}
}

func TestSettingsShowCommand(t *testing.T) {
	setupTestWithCleanup(t)
	setupMockServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"api_key":         "sk-ant-********mnop",
			"api_key_set":     true,
			"model":           "claude-3-5-haiku-20241022",
			"model_name":      "Claude Haiku 3.5",
			"priced_by_table": true,
		})
	})

	output := captureOutput(func() {
		if err := runSettingsShow(nil, nil); err != nil {
			t.Errorf("runSettingsShow returned error: %v", err)
		}
	})

	if !strings.Contains(output, "sk-ant-********mnop") {
		t.Errorf("expected masked key in output, got: %s", output)
	}
	if !strings.Contains(output, "Claude Haiku 3.5 (claude-3-5-haiku-20241022)") {
		t.Errorf("expected model name in output, got: %s", output)
	}
}

func TestSettingsSetCommand(t *testing.T) {
	setupTestWithCleanup(t)
	var body map[string]string
	setupMockServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("unexpected method: %s", r.Method)
		}
		json.NewDecoder(r.Body).Decode(&body)
		writeJSON(w, http.StatusOK, map[string]any{"api_key_set": false, "model": "claude-sonnet-4-20250514", "priced_by_table": true})
	})

	flags := settingsSetCmd.Flags()
	t.Cleanup(func() {
		flags.Lookup("model").Changed = false
		flags.Lookup("api-key").Changed = false
	})

	if err := runSettingsSet(settingsSetCmd, nil); err == nil {
		t.Error("expected error when no flags are given")
	}

	if err := flags.Set("model", "claude-sonnet-4-20250514"); err != nil {
		t.Fatal(err)
	}
	if err := flags.Set("api-key", ""); err != nil {
		t.Fatal(err)
	}

	output := captureOutput(func() {
		if err := runSettingsSet(settingsSetCmd, nil); err != nil {
			t.Errorf("runSettingsSet returned error: %v", err)
		}
	})

	if body["model"] != "claude-sonnet-4-20250514" {
		t.Errorf("expected model in request, got: %v", body)
	}
	if key, ok := body["api_key"]; !ok || key != "" {
		t.Errorf("expected empty api_key to be sent, got: %v", body)
	}
	if !strings.Contains(output, "(not set)") {
		t.Errorf("expected removed key in output, got: %s", output)
	}
}

func TestModelsCommand(t *testing.T) {
	setupTestWithCleanup(t)
	setupMockServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"models": []any{
				map[string]any{"id": "claude-sonnet-4-20250514", "display_name": "Claude Sonnet 4", "created_at": "2025-05-14T00:00:00Z"},
				map[string]any{"id": "claude-3-5-haiku-20241022", "display_name": "Claude Haiku 3.5", "created_at": "2024-10-22T00:00:00Z"},
			},
			"count":    2,
			"selected": "claude-3-5-haiku-20241022",
		})
	})

	output := captureOutput(func() {
		if err := runModels(nil, nil); err != nil {
			t.Errorf("runModels returned error: %v", err)
		}
	})

	if !strings.Contains(output, "*  claude-3-5-haiku-20241022") {
		t.Errorf("expected selected marker in output, got: %s", output)
	}
	if !strings.Contains(output, "2025-05-14") {
		t.Errorf("expected release date in output, got: %s", output)
	}
}

func TestServerConnectionError(t *testing.T) {
	setupTestWithCleanup(t)
	serverURL = "http://localhost:1"

	err := runPages(nil, nil)
	if err == nil {
		t.Error("expected error for unreachable server")
	}
	if !strings.Contains(err.Error(), "failed to connect to server") {
		t.Errorf("expected 'failed to connect to server' error, got: %v", err)
	}
}

func TestServerErrorResponse(t *testing.T) {
	setupTestWithCleanup(t)
	setupMockServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	})

	err := runPages(nil, nil)
	if err == nil {
		t.Error("expected error for server error response")
	}
	if !strings.Contains(err.Error(), "server error (HTTP 500): boom") {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestConfigShowCommand(t *testing.T) {
	setupTestWithCleanup(t)
	setupMockServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":   "ok",
			"services": map[string]string{"storage": "ok", "model_api": "not_configured"},
		})
	})

	var err error
	output := captureOutput(func() {
		err = runConfigShow(nil, nil)
	})
	if err != nil {
		t.Fatalf("runConfigShow returned error: %v", err)
	}
	for _, want := range []string{"Server:         ok", "model_api", "not_configured", "settings set --api-key"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got: %s", want, output)
		}
	}
}

func TestConfigShowCommand_Unreachable(t *testing.T) {
	setupTestWithCleanup(t)
	serverURL = "http://localhost:1"

	var err error
	output := captureOutput(func() {
		err = runConfigShow(nil, nil)
	})
	if err != nil {
		t.Fatalf("unreachable server should not fail config show: %v", err)
	}
	if !strings.Contains(output, "unreachable") {
		t.Errorf("expected unreachable status, got: %s", output)
	}
}

func TestConfigSetCommand(t *testing.T) {
	setupTestWithCleanup(t)

	output := captureOutput(func() {
		if err := runConfigSet(nil, []string{"server", "http://example:9000"}); err != nil {
			t.Errorf("runConfigSet returned error: %v", err)
		}
	})
	if !strings.Contains(output, "export PAGEMAGIC_URL=http://example:9000") {
		t.Errorf("unexpected output: %s", output)
	}

	if err := runConfigSet(nil, []string{"output", "yaml"}); err == nil {
		t.Error("expected error for invalid output format")
	}
	if err := runConfigSet(nil, []string{"color", "on"}); err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestTruncateString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		input  string
		maxLen int
		want   string
	}{
		{"short", "abc", 10, "abc"},
		{"exact", "abcde", 5, "abcde"},
		{"truncated", "make the page dark", 10, "make th..."},
		{"tiny max", "abcdef", 3, "abc"},
		{"multibyte", "ÄÖÜäöüß", 5, "ÄÖ..."},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := truncateString(tt.input, tt.maxLen); got != tt.want {
				t.Errorf("truncateString(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.want)
			}
		})
	}
}

func TestParseOnOff(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]bool{"on": true, "true": true, "yes": true, "off": false, "false": false, "no": false} {
		got, err := parseOnOff(in)
		if err != nil || got != want {
			t.Errorf("parseOnOff(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := parseOnOff("sometimes"); err == nil {
		t.Error("expected error for invalid value")
	}
}
