package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stellarlinkco/chatscribe/internal/config"
	"github.com/stellarlinkco/chatscribe/internal/convo"
	"github.com/stellarlinkco/chatscribe/internal/llm"
	"github.com/stellarlinkco/chatscribe/internal/store"
	"github.com/stellarlinkco/chatscribe/internal/summary"
)

func setupHome(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("USERPROFILE", tmpDir)

	for _, key := range []string{
		"CHATSCRIBE_PROVIDER",
		"CHATSCRIBE_API_KEY",
		"CHATSCRIBE_BASE_URL",
		"CHATSCRIBE_MODEL",
		"CHATSCRIBE_MAX_CHUNK_SIZE",
		"CHATSCRIBE_TELEGRAM_TOKEN",
		"CHATSCRIBE_DB_PATH",
		"OPENAI_API_KEY",
		"ANTHROPIC_API_KEY",
	} {
		t.Setenv(key, "")
	}
	return tmpDir
}

func seedStore(t *testing.T) {
	t.Helper()
	l, err := store.Open(config.DefaultDBPath())
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	defer l.Close()

	ctx := context.Background()
	for _, rec := range []store.Record{
		{AuthorID: 1, ServerID: 10, Text: "hi"},
		{AuthorID: 2, ServerID: 10, Text: "yo"},
		{AuthorID: 2, ServerID: 20, Text: "elsewhere"},
	} {
		if _, err := l.Add(ctx, rec); err != nil {
			t.Fatalf("Add error: %v", err)
		}
	}
	l.RememberName(ctx, store.KindUser, 1, "Alice")
	l.RememberName(ctx, store.KindUser, 2, "Bob")
	l.RememberName(ctx, store.KindServer, 10, "Guild")
}

func captureCommand() (*cobra.Command, *bytes.Buffer) {
	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&buf)
	return cmd, &buf
}

func recordingFactory(prompts *[]string, reply string) ClientFactory {
	return func(cfg *config.Config) (llm.Client, error) {
		return llm.ClientFunc(func(ctx context.Context, prompt string, opts llm.GenerationOptions) (string, error) {
			*prompts = append(*prompts, prompt)
			return reply, nil
		}), nil
	}
}

func TestRunOnboard(t *testing.T) {
	tmpDir := setupHome(t)
	cmd, buf := captureCommand()

	if err := runOnboard(cmd, nil); err != nil {
		t.Fatalf("runOnboard error: %v", err)
	}

	cfgPath := filepath.Join(tmpDir, ".chatscribe", "config.json")
	if _, err := os.Stat(cfgPath); err != nil {
		t.Errorf("config file was not created: %v", err)
	}
	if _, err := os.Stat(filepath.Join(tmpDir, ".chatscribe", "data")); err != nil {
		t.Errorf("data dir was not created: %v", err)
	}
	if !strings.Contains(buf.String(), "Created config") {
		t.Errorf("unexpected output: %s", buf.String())
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Summary.Model != config.DefaultModel {
		t.Errorf("model = %q, want %q", cfg.Summary.Model, config.DefaultModel)
	}
}

func TestRunOnboard_AlreadyExists(t *testing.T) {
	tmpDir := setupHome(t)
	cfgDir := filepath.Join(tmpDir, ".chatscribe")
	os.MkdirAll(cfgDir, 0755)
	os.WriteFile(filepath.Join(cfgDir, "config.json"), []byte(`{"summary":{"model":"custom"}}`), 0644)

	cmd, buf := captureCommand()
	if err := runOnboard(cmd, nil); err != nil {
		t.Fatalf("runOnboard error: %v", err)
	}
	if !strings.Contains(buf.String(), "Config already exists") {
		t.Errorf("expected 'Config already exists', got: %s", buf.String())
	}

	data, _ := os.ReadFile(filepath.Join(cfgDir, "config.json"))
	if !strings.Contains(string(data), "custom") {
		t.Error("existing config should not be overwritten")
	}
}

func TestRunStatus_NoStore(t *testing.T) {
	setupHome(t)
	cmd, buf := captureCommand()

	if err := runStatus(cmd, nil); err != nil {
		t.Fatalf("runStatus error: %v", err)
	}
	output := buf.String()
	for _, want := range []string{"Provider: ollama", "Model: " + config.DefaultModel, "API Key: not set", "Telegram: enabled=false", "not created yet"} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q:\n%s", want, output)
		}
	}
}

func TestRunStatus_WithStore(t *testing.T) {
	setupHome(t)
	t.Setenv("CHATSCRIBE_PROVIDER", "anthropic")
	t.Setenv("CHATSCRIBE_API_KEY", "sk-ant-1234567890")
	seedStore(t)

	cmd, buf := captureCommand()
	if err := runStatus(cmd, nil); err != nil {
		t.Fatalf("runStatus error: %v", err)
	}
	output := buf.String()
	for _, want := range []string{"Provider: anthropic", "API Key: sk-a...7890", "Messages: 3 in 2 chats from 2 authors (3 names known)", "Chats:\n  10 Guild\n  20 (unknown name)\n"} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q:\n%s", want, output)
		}
	}
}

func TestRunStatus_BadConfig(t *testing.T) {
	tmpDir := setupHome(t)
	cfgDir := filepath.Join(tmpDir, ".chatscribe")
	os.MkdirAll(cfgDir, 0755)
	os.WriteFile(filepath.Join(cfgDir, "config.json"), []byte("{broken"), 0644)

	cmd, buf := captureCommand()
	if err := runStatus(cmd, nil); err != nil {
		t.Fatalf("runStatus should report, not fail: %v", err)
	}
	if !strings.Contains(buf.String(), "Config: error") {
		t.Errorf("unexpected output: %s", buf.String())
	}
}

func TestMaskKey(t *testing.T) {
	tests := map[string]string{
		"":                  "not set",
		"short":             "set",
		"sk-1234567890abcd": "sk-1...abcd",
	}
	for key, want := range tests {
		if got := maskKey(key); got != want {
			t.Errorf("maskKey(%q) = %q, want %q", key, got, want)
		}
	}
}

func TestProviderDisplay(t *testing.T) {
	if got := providerDisplay(""); got != "ollama (default)" {
		t.Errorf("providerDisplay(\"\") = %q", got)
	}
	if got := providerDisplay("openai"); got != "openai" {
		t.Errorf("providerDisplay(openai) = %q", got)
	}
}

func TestRunSummarize(t *testing.T) {
	setupHome(t)
	seedStore(t)

	var prompts []string
	var buf bytes.Buffer
	err := runSummarizeWithOptions(context.Background(), 10, "", CLIOptions{
		ClientFactory: recordingFactory(&prompts, "  they greeted each other  "),
		Stdout:        &buf,
	})
	if err != nil {
		t.Fatalf("runSummarizeWithOptions error: %v", err)
	}

	if buf.String() != "they greeted each other\n" {
		t.Errorf("output = %q", buf.String())
	}
	if len(prompts) != 1 {
		t.Fatalf("prompts = %d, want 1", len(prompts))
	}
	want := config.DefaultInstruction + "Alice (Guild): hi\nBob (Guild): yo\n"
	if prompts[0] != want {
		t.Errorf("prompt = %q, want %q", prompts[0], want)
	}
}

func TestRunSummarize_Query(t *testing.T) {
	setupHome(t)
	seedStore(t)

	var prompts []string
	var buf bytes.Buffer
	err := runSummarizeWithOptions(context.Background(), 10, "who said hi?", CLIOptions{
		ClientFactory: recordingFactory(&prompts, "Alice"),
		Stdout:        &buf,
	})
	if err != nil {
		t.Fatalf("runSummarizeWithOptions error: %v", err)
	}
	if len(prompts) != 1 || !strings.HasPrefix(prompts[0], "who said hi?\n") {
		t.Errorf("prompts = %q", prompts)
	}
	if buf.String() != "Alice\n" {
		t.Errorf("output = %q", buf.String())
	}
}

func TestRunSummarize_NoMessages(t *testing.T) {
	setupHome(t)

	var prompts []string
	err := runSummarizeWithOptions(context.Background(), 99, "", CLIOptions{
		ClientFactory: recordingFactory(&prompts, "unused"),
		Stdout:        &bytes.Buffer{},
	})
	if !errors.Is(err, summary.ErrNoMessages) {
		t.Errorf("expected ErrNoMessages, got %v", err)
	}
	if len(prompts) != 0 {
		t.Errorf("no model call expected, got %d", len(prompts))
	}
}

func TestRunSummarize_ClientError(t *testing.T) {
	setupHome(t)

	err := runSummarizeWithOptions(context.Background(), 10, "", CLIOptions{
		ClientFactory: func(cfg *config.Config) (llm.Client, error) {
			return nil, errors.New("no backend")
		},
	})
	if err == nil || !strings.Contains(err.Error(), "create client: no backend") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRunSummarize_DefaultFactoryNeedsKey(t *testing.T) {
	setupHome(t)
	t.Setenv("CHATSCRIBE_PROVIDER", "openai")

	err := runSummarizeWithOptions(context.Background(), 10, "", CLIOptions{})
	if err == nil || !strings.Contains(err.Error(), "API key") {
		t.Errorf("expected API key error, got %v", err)
	}
}

func TestRunDump(t *testing.T) {
	setupHome(t)
	seedStore(t)

	var buf bytes.Buffer
	if err := runDumpWithOptions(context.Background(), 10, CLIOptions{Stdout: &buf}); err != nil {
		t.Fatalf("runDumpWithOptions error: %v", err)
	}
	if buf.String() != "Alice (Guild): hi\nBob (Guild): yo\n" {
		t.Errorf("output = %q", buf.String())
	}
}

func TestRunDump_UnknownServerName(t *testing.T) {
	setupHome(t)
	seedStore(t)

	var buf bytes.Buffer
	err := runDumpWithOptions(context.Background(), 20, CLIOptions{Stdout: &buf})
	var resErr *convo.ResolutionError
	if !errors.As(err, &resErr) {
		t.Fatalf("expected ResolutionError, got %v", err)
	}
	if resErr.Kind != store.KindServer || resErr.ID != 20 {
		t.Errorf("resErr = %+v", resErr)
	}
	if buf.Len() != 0 {
		t.Errorf("nothing should be printed, got %q", buf.String())
	}
}

func TestRunGateway_ClientError(t *testing.T) {
	setupHome(t)
	t.Setenv("CHATSCRIBE_PROVIDER", "anthropic")

	err := runGateway(&cobra.Command{}, nil)
	if err == nil {
		t.Fatal("expected error when API key is not set")
	}
	if !strings.Contains(err.Error(), "create gateway") || !strings.Contains(err.Error(), "API key") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestInit(t *testing.T) {
	want := map[string]bool{"gateway": false, "summarize": false, "dump": false, "onboard": false, "status": false}
	for _, cmd := range rootCmd.Commands() {
		if _, ok := want[cmd.Name()]; ok {
			want[cmd.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("command %q not registered", name)
		}
	}

	if summarizeCmd.Flags().Lookup("server") == nil || summarizeCmd.Flags().Lookup("query") == nil {
		t.Error("summarize flags missing")
	}
	if dumpCmd.Flags().Lookup("server") == nil {
		t.Error("dump --server flag missing")
	}
}
