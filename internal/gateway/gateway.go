package gateway

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/stellarlinkco/chatscribe/internal/bus"
	"github.com/stellarlinkco/chatscribe/internal/channel"
	"github.com/stellarlinkco/chatscribe/internal/config"
	"github.com/stellarlinkco/chatscribe/internal/convo"
	"github.com/stellarlinkco/chatscribe/internal/cron"
	"github.com/stellarlinkco/chatscribe/internal/llm"
	"github.com/stellarlinkco/chatscribe/internal/store"
	"github.com/stellarlinkco/chatscribe/internal/summary"
)

// ClientFactory creates the completion client
type ClientFactory func(cfg *config.Config) (llm.Client, error)

// Options for creating a Gateway
type Options struct {
	ClientFactory ClientFactory
	// Directory overrides the platform name directory.
	Directory  channel.Directory
	SignalChan chan os.Signal // for testing signal handling
}

type Gateway struct {
	cfg        *config.Config
	bus        *bus.MessageBus
	store      *store.Log
	client     llm.Client
	summaries  *summary.Service
	channels   *channel.ChannelManager
	cron       *cron.Service
	signalChan chan os.Signal
}

// New creates a Gateway with default options
func New(cfg *config.Config) (*Gateway, error) {
	return NewWithOptions(cfg, Options{})
}

// NewWithOptions creates a Gateway with custom options for testing
func NewWithOptions(cfg *config.Config, opts Options) (*Gateway, error) {
	g := &Gateway{cfg: cfg, signalChan: opts.SignalChan}

	g.bus = bus.NewMessageBus(config.DefaultBufSize)

	dbPath := strings.TrimSpace(cfg.Store.DBPath)
	if dbPath == "" {
		dbPath = config.DefaultDBPath()
	}
	l, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open message log: %w", err)
	}
	g.store = l

	factory := opts.ClientFactory
	if factory == nil {
		factory = llm.New
	}
	client, err := factory(cfg)
	if err != nil {
		_ = g.store.Close()
		return nil, err
	}
	g.client = client

	chMgr, err := channel.NewChannelManager(cfg.Channels, g.bus)
	if err != nil {
		_ = g.store.Close()
		return nil, fmt.Errorf("create channel manager: %w", err)
	}
	g.channels = chMgr

	dir := opts.Directory
	if dir == nil {
		dir = chMgr.Directory()
	}
	g.summaries = summary.NewService(cfg.Summary, g.store, g.client, resolvers(g.store, dir))

	cronStorePath := filepath.Join(config.ConfigDir(), "data", "cron", "jobs.json")
	g.cron = cron.NewService(cronStorePath)
	g.cron.OnJob = g.runJob

	return g, nil
}

// resolvers prefer names recorded from inbound traffic and fall back to the platform.
func resolvers(l *store.Log, dir channel.Directory) summary.Resolvers {
	r := summary.Resolvers{Users: l.ResolveUser, Servers: l.ResolveServer}
	if dir != nil {
		r.Users = convo.FirstOf(l.ResolveUser, dir.UserName)
		r.Servers = convo.FirstOf(l.ResolveServer, dir.ChatName)
	}
	return r
}

func (g *Gateway) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go g.bus.DispatchOutbound(ctx)

	if err := g.channels.StartAll(ctx); err != nil {
		return fmt.Errorf("start channels: %w", err)
	}
	log.Printf("[gateway] channels started: %v", g.channels.EnabledChannels())

	if err := g.cron.Start(ctx); err != nil {
		log.Printf("[gateway] cron start warning: %v", err)
	}

	go g.processLoop(ctx)

	log.Printf("[gateway] running with %s model %s", providerName(g.cfg), g.cfg.Summary.Model)

	sigCh := g.signalChan
	if sigCh == nil {
		sigCh = make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	}
	select {
	case <-sigCh:
	case <-ctx.Done():
	}

	log.Printf("[gateway] shutting down...")
	cancel()
	return g.Shutdown()
}

func providerName(cfg *config.Config) string {
	if cfg.Provider.Type == "" {
		return config.ProviderOllama
	}
	return cfg.Provider.Type
}

func (g *Gateway) processLoop(ctx context.Context) {
	for {
		select {
		case msg := <-g.bus.Inbound:
			log.Printf("[gateway] inbound from %s/%s: %s", msg.Channel, msg.SenderID, truncate(msg.Content, 80))
			if msg.IsCommand() {
				go g.handleCommand(ctx, msg)
				continue
			}
			if err := g.record(ctx, msg); err != nil {
				log.Printf("[gateway] record message: %v", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// record appends msg to the log and remembers its author and chat names.
func (g *Gateway) record(ctx context.Context, msg bus.InboundMessage) error {
	authorID, serverID, err := parseIDs(msg)
	if err != nil {
		return err
	}
	if _, err := g.store.Add(ctx, store.Record{
		AuthorID:  authorID,
		ServerID:  serverID,
		Text:      msg.Content,
		CreatedAt: msg.Timestamp,
	}); err != nil {
		return err
	}
	if err := g.store.RememberName(ctx, store.KindUser, authorID, msg.SenderName); err != nil {
		log.Printf("[gateway] remember user name: %v", err)
	}
	if err := g.store.RememberName(ctx, store.KindServer, serverID, msg.ChatName); err != nil {
		log.Printf("[gateway] remember chat name: %v", err)
	}
	return nil
}

func parseIDs(msg bus.InboundMessage) (authorID, serverID int64, err error) {
	authorID, err = strconv.ParseInt(msg.SenderID, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid sender id %q: %w", msg.SenderID, err)
	}
	serverID, err = strconv.ParseInt(msg.ChatID, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid chat id %q: %w", msg.ChatID, err)
	}
	return authorID, serverID, nil
}

func (g *Gateway) reply(ctx context.Context, channelName, chatID, content string) {
	if strings.TrimSpace(content) == "" {
		return
	}
	select {
	case g.bus.Outbound <- bus.OutboundMessage{Channel: channelName, ChatID: chatID, Content: content}:
	case <-ctx.Done():
	}
}

// runJob handles scheduled digests and queries.
func (g *Gateway) runJob(ctx context.Context, job cron.CronJob) (string, error) {
	p := job.Payload
	var (
		result string
		err    error
	)
	switch p.Action {
	case cron.ActionDigest:
		result, err = g.summaries.Summarize(ctx, p.ServerID)
	case cron.ActionQuery:
		result, err = g.summaries.Query(ctx, p.ServerID, p.Query)
	default:
		return "", fmt.Errorf("unknown job action %q", p.Action)
	}
	if err != nil {
		return "", err
	}
	if p.Channel != "" && p.ChatID != "" {
		g.reply(ctx, p.Channel, p.ChatID, result)
	}
	return result, nil
}

func (g *Gateway) Shutdown() error {
	g.cron.Stop()
	_ = g.channels.StopAll()
	if g.store != nil {
		if err := g.store.Close(); err != nil {
			log.Printf("[gateway] close message log warning: %v", err)
		}
	}
	log.Printf("[gateway] shutdown complete")
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
