package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/stellarlinkco/chatscribe/internal/config"
	"github.com/stellarlinkco/chatscribe/internal/gateway"
	"github.com/stellarlinkco/chatscribe/internal/llm"
	"github.com/stellarlinkco/chatscribe/internal/store"
	"github.com/stellarlinkco/chatscribe/internal/summary"
)

// ClientFactory creates the completion client (allows mocking in tests)
type ClientFactory func(cfg *config.Config) (llm.Client, error)

// CLIOptions carries injectable dependencies for the offline commands.
type CLIOptions struct {
	ClientFactory ClientFactory
	Stdout        io.Writer
}

var rootCmd = &cobra.Command{
	Use:   "chatscribe",
	Short: "chatscribe - chat logger and hierarchical summarizer",
}

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Start the bot (channels + message log + scheduled digests)",
	RunE:  runGateway,
}

var summarizeCmd = &cobra.Command{
	Use:   "summarize",
	Short: "Summarize a chat's stored log",
	RunE:  runSummarize,
}

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Print a chat's formatted log",
	RunE:  runDump,
}

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Initialize config and data directory",
	RunE:  runOnboard,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show chatscribe status",
	RunE:  runStatus,
}

var (
	serverFlag int64
	queryFlag  string
)

func init() {
	summarizeCmd.Flags().Int64VarP(&serverFlag, "server", "s", 0, "Chat or server id to summarize")
	summarizeCmd.Flags().StringVarP(&queryFlag, "query", "q", "", "Ask a question instead of summarizing")
	_ = summarizeCmd.MarkFlagRequired("server")
	dumpCmd.Flags().Int64VarP(&serverFlag, "server", "s", 0, "Chat or server id to dump")
	_ = dumpCmd.MarkFlagRequired("server")
	rootCmd.AddCommand(gatewayCmd, summarizeCmd, dumpCmd, onboardCmd, statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	gw, err := gateway.New(cfg)
	if err != nil {
		return fmt.Errorf("create gateway: %w", err)
	}

	return gw.Run(context.Background())
}

func runSummarize(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return runSummarizeWithOptions(ctx, serverFlag, queryFlag, CLIOptions{Stdout: cmd.OutOrStdout()})
}

// runSummarizeWithOptions reduces the stored log of serverID, or answers query
// against it, using names recorded in the store.
func runSummarizeWithOptions(ctx context.Context, serverID int64, query string, opts CLIOptions) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	factory := opts.ClientFactory
	if factory == nil {
		factory = llm.New
	}
	client, err := factory(cfg)
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}

	l, err := store.Open(cfg.Store.DBPath)
	if err != nil {
		return fmt.Errorf("open message log: %w", err)
	}
	defer l.Close()

	svc := summary.NewService(cfg.Summary, l, client, storeResolvers(l))

	var result string
	if query != "" {
		result, err = svc.Query(ctx, serverID, query)
	} else {
		result, err = svc.Summarize(ctx, serverID)
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout(opts), result)
	return nil
}

func runDump(cmd *cobra.Command, args []string) error {
	return runDumpWithOptions(context.Background(), serverFlag, CLIOptions{Stdout: cmd.OutOrStdout()})
}

func runDumpWithOptions(ctx context.Context, serverID int64, opts CLIOptions) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	l, err := store.Open(cfg.Store.DBPath)
	if err != nil {
		return fmt.Errorf("open message log: %w", err)
	}
	defer l.Close()

	lines, err := summary.NewService(cfg.Summary, l, nil, storeResolvers(l)).Lines(ctx, serverID)
	if err != nil {
		return err
	}
	out := stdout(opts)
	for _, line := range lines {
		fmt.Fprint(out, line)
	}
	return nil
}

func storeResolvers(l *store.Log) summary.Resolvers {
	return summary.Resolvers{Users: l.ResolveUser, Servers: l.ResolveServer}
}

func stdout(opts CLIOptions) io.Writer {
	if opts.Stdout != nil {
		return opts.Stdout
	}
	return os.Stdout
}

func runOnboard(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	cfgPath := config.ConfigPath()

	if _, err := os.Stat(cfgPath); errors.Is(err, os.ErrNotExist) {
		if err := config.SaveConfig(config.DefaultConfig()); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Fprintf(out, "Created config: %s\n", cfgPath)
	} else {
		fmt.Fprintf(out, "Config already exists: %s\n", cfgPath)
	}

	dataDir := filepath.Dir(config.DefaultDBPath())
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	fmt.Fprintf(out, "Data directory ready: %s\n", dataDir)
	fmt.Fprintln(out, "\nNext steps:")
	fmt.Fprintf(out, "  1. Edit %s to enable telegram and pick a model\n", cfgPath)
	fmt.Fprintln(out, "  2. Or set CHATSCRIBE_TELEGRAM_TOKEN / CHATSCRIBE_MODEL")
	fmt.Fprintln(out, "  3. Run 'chatscribe gateway'")

	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(out, "Config: error (%v)\n", err)
		return nil
	}

	fmt.Fprintf(out, "Config: %s\n", config.ConfigPath())
	fmt.Fprintf(out, "Provider: %s\n", providerDisplay(cfg.Provider.Type))
	fmt.Fprintf(out, "Model: %s\n", cfg.Summary.Model)
	fmt.Fprintf(out, "Max chunk size: %d\n", cfg.Summary.MaxChunkSize)
	fmt.Fprintf(out, "API Key: %s\n", maskKey(cfg.Provider.APIKey))
	fmt.Fprintf(out, "Telegram: enabled=%v\n", cfg.Channels.Telegram.Enabled)
	fmt.Fprintf(out, "Digest: enabled=%v schedule=%q\n", cfg.Digest.Enabled, cfg.Digest.Schedule)

	if _, err := os.Stat(cfg.Store.DBPath); err != nil {
		fmt.Fprintf(out, "Store: %s (not created yet)\n", cfg.Store.DBPath)
		return nil
	}
	l, err := store.Open(cfg.Store.DBPath)
	if err != nil {
		fmt.Fprintf(out, "Store: error (%v)\n", err)
		return nil
	}
	defer l.Close()

	ctx := context.Background()
	stats, err := l.Stats(ctx)
	if err != nil {
		fmt.Fprintf(out, "Store: error (%v)\n", err)
		return nil
	}
	fmt.Fprintf(out, "Store: %s\n", cfg.Store.DBPath)
	fmt.Fprintf(out, "Messages: %d in %d chats from %d authors (%d names known)\n",
		stats.Messages, stats.Servers, stats.Authors, stats.Names)

	servers, err := l.Servers(ctx)
	if err != nil {
		fmt.Fprintf(out, "Chats: error (%v)\n", err)
		return nil
	}
	if len(servers) > 0 {
		fmt.Fprintln(out, "Chats:")
	}
	for _, id := range servers {
		name, err := l.ResolveServer(ctx, id)
		if err != nil {
			name = "(unknown name)"
		}
		fmt.Fprintf(out, "  %d %s\n", id, name)
	}
	return nil
}

func providerDisplay(t string) string {
	if t == "" {
		return config.ProviderOllama + " (default)"
	}
	return t
}

func maskKey(key string) string {
	switch {
	case key == "":
		return "not set"
	case len(key) > 8:
		return key[:4] + "..." + key[len(key)-4:]
	default:
		return "set"
	}
}
