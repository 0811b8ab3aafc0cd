package channel

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stellarlinkco/chatscribe/internal/bus"
	"github.com/stellarlinkco/chatscribe/internal/config"
)

const (
	telegramChannelName = "telegram"

	// Telegram rejects messages over 4096 characters; leave room for HTML tags.
	telegramMaxLen = 4000
)

// TelegramBot interface for mocking telegram bot API
type TelegramBot interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetSelf() tgbotapi.User
	GetChat(config tgbotapi.ChatInfoConfig) (tgbotapi.Chat, error)
}

type tgBotWrapper struct {
	bot *tgbotapi.BotAPI
}

func (w *tgBotWrapper) GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return w.bot.GetUpdatesChan(config)
}

func (w *tgBotWrapper) StopReceivingUpdates() {
	w.bot.StopReceivingUpdates()
}

func (w *tgBotWrapper) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	return w.bot.Send(c)
}

func (w *tgBotWrapper) GetSelf() tgbotapi.User {
	return w.bot.Self
}

func (w *tgBotWrapper) GetChat(config tgbotapi.ChatInfoConfig) (tgbotapi.Chat, error) {
	return w.bot.GetChat(config)
}

// BotFactory creates TelegramBot instances (allows mocking)
type BotFactory func(token, apiEndpoint string, client *http.Client) (TelegramBot, error)

var defaultBotFactory BotFactory = func(token, apiEndpoint string, client *http.Client) (TelegramBot, error) {
	bot, err := tgbotapi.NewBotAPIWithClient(token, apiEndpoint, client)
	if err != nil {
		return nil, err
	}
	return &tgBotWrapper{bot: bot}, nil
}

// TelegramChannel publishes text messages from Telegram chats and delivers replies.
// It also serves as a Directory backed by getChat.
type TelegramChannel struct {
	BaseChannel
	token      string
	bot        TelegramBot
	proxy      string
	cancel     context.CancelFunc
	botFactory BotFactory
}

func NewTelegramChannel(cfg config.TelegramConfig, b *bus.MessageBus) (*TelegramChannel, error) {
	return NewTelegramChannelWithFactory(cfg, b, defaultBotFactory)
}

// NewTelegramChannelWithFactory creates a TelegramChannel with custom bot factory (for testing)
func NewTelegramChannelWithFactory(cfg config.TelegramConfig, b *bus.MessageBus, factory BotFactory) (*TelegramChannel, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram token is required")
	}

	return &TelegramChannel{
		BaseChannel: NewBaseChannel(telegramChannelName, b, cfg.AllowFrom),
		token:       cfg.Token,
		proxy:       cfg.Proxy,
		botFactory:  factory,
	}, nil
}

func (t *TelegramChannel) initBot() error {
	client := http.DefaultClient
	if t.proxy != "" {
		proxyURL, err := url.Parse(t.proxy)
		if err != nil {
			return fmt.Errorf("parse proxy url: %w", err)
		}
		client = &http.Client{
			Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
		}
	}

	bot, err := t.botFactory(t.token, tgbotapi.APIEndpoint, client)
	if err != nil {
		return fmt.Errorf("create telegram bot: %w", err)
	}
	t.bot = bot
	log.Printf("[telegram] authorized as @%s", bot.GetSelf().UserName)
	return nil
}

func (t *TelegramChannel) Start(ctx context.Context) error {
	if err := t.initBot(); err != nil {
		return err
	}

	ctx, t.cancel = context.WithCancel(ctx)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := t.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case update := <-updates:
				if update.Message == nil {
					continue
				}
				t.handleMessage(update.Message)
			case <-ctx.Done():
				return
			}
		}
	}()

	log.Printf("[telegram] polling started")
	return nil
}

func (t *TelegramChannel) handleMessage(msg *tgbotapi.Message) {
	if msg.From == nil || msg.Chat == nil {
		return
	}
	senderID := strconv.FormatInt(msg.From.ID, 10)

	if !t.IsAllowed(senderID) {
		log.Printf("[telegram] rejected message from %s (%s)", senderID, msg.From.UserName)
		return
	}

	content := msg.Text
	if content == "" {
		content = msg.Caption
	}
	if strings.TrimSpace(content) == "" {
		return
	}

	t.bus.Inbound <- bus.InboundMessage{
		Channel:    telegramChannelName,
		SenderID:   senderID,
		SenderName: userDisplayName(msg.From),
		ChatID:     strconv.FormatInt(msg.Chat.ID, 10),
		ChatName:   chatDisplayName(msg.Chat),
		Content:    stripBotMention(content, t.selfName()),
		Timestamp:  time.Unix(int64(msg.Date), 0),
		Metadata: map[string]any{
			"username":   msg.From.UserName,
			"message_id": msg.MessageID,
		},
	}
}

func (t *TelegramChannel) selfName() string {
	if t.bot == nil {
		return ""
	}
	return t.bot.GetSelf().UserName
}

// stripBotMention turns "/summary@mybot args" into "/summary args" so that group
// commands parse the same as private ones.
func stripBotMention(content, botName string) string {
	if botName == "" || !strings.HasPrefix(content, "/") {
		return content
	}
	cmd, rest, _ := strings.Cut(content, " ")
	if name, ok := strings.CutSuffix(cmd, "@"+botName); ok {
		cmd = name
	}
	if rest == "" {
		return cmd
	}
	return cmd + " " + rest
}

func userDisplayName(u *tgbotapi.User) string {
	if u.UserName != "" {
		return u.UserName
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

func chatDisplayName(c *tgbotapi.Chat) string {
	if c.Title != "" {
		return c.Title
	}
	if c.UserName != "" {
		return c.UserName
	}
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

func (t *TelegramChannel) lookupChat(ctx context.Context, id int64) (tgbotapi.Chat, error) {
	if t.bot == nil {
		return tgbotapi.Chat{}, fmt.Errorf("telegram bot not initialized")
	}
	if err := ctx.Err(); err != nil {
		return tgbotapi.Chat{}, err
	}
	chat, err := t.bot.GetChat(tgbotapi.ChatInfoConfig{ChatConfig: tgbotapi.ChatConfig{ChatID: id}})
	if err != nil {
		return tgbotapi.Chat{}, fmt.Errorf("get telegram chat %d: %w", id, err)
	}
	return chat, nil
}

// UserName resolves a user through their private chat with the bot.
func (t *TelegramChannel) UserName(ctx context.Context, id int64) (string, error) {
	chat, err := t.lookupChat(ctx, id)
	if err != nil {
		return "", err
	}
	name := chat.UserName
	if name == "" {
		name = strings.TrimSpace(chat.FirstName + " " + chat.LastName)
	}
	if name == "" {
		return "", fmt.Errorf("telegram user %d has no name", id)
	}
	return name, nil
}

func (t *TelegramChannel) ChatName(ctx context.Context, id int64) (string, error) {
	chat, err := t.lookupChat(ctx, id)
	if err != nil {
		return "", err
	}
	name := chatDisplayName(&chat)
	if name == "" {
		return "", fmt.Errorf("telegram chat %d has no name", id)
	}
	return name, nil
}

func (t *TelegramChannel) Stop() error {
	if t.cancel != nil {
		t.cancel()
	}
	if t.bot != nil {
		t.bot.StopReceivingUpdates()
	}
	log.Printf("[telegram] stopped")
	return nil
}

// SetBot sets the bot (for testing)
func (t *TelegramChannel) SetBot(bot TelegramBot) {
	t.bot = bot
}

// Send delivers msg split at line boundaries into Telegram-sized parts. Each part is
// sent as HTML and falls back to plain text when Telegram rejects the markup.
func (t *TelegramChannel) Send(msg bus.OutboundMessage) error {
	if t.bot == nil {
		return fmt.Errorf("telegram bot not initialized")
	}

	chatID, err := strconv.ParseInt(msg.ChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat id %q: %w", msg.ChatID, err)
	}

	for _, part := range splitMessage(msg.Content, telegramMaxLen) {
		tgMsg := tgbotapi.NewMessage(chatID, toTelegramHTML(part))
		tgMsg.ParseMode = tgbotapi.ModeHTML
		if _, err := t.bot.Send(tgMsg); err == nil {
			continue
		}
		tgMsg.ParseMode = ""
		tgMsg.Text = part
		if _, err := t.bot.Send(tgMsg); err != nil {
			return fmt.Errorf("send telegram message: %w", err)
		}
	}
	return nil
}

// splitMessage cuts s into parts of at most maxLen bytes, preferring the last newline
// and never splitting a UTF-8 sequence.
func splitMessage(s string, maxLen int) []string {
	var parts []string
	for len(s) > maxLen {
		cut := strings.LastIndex(s[:maxLen], "\n")
		if cut <= 0 {
			cut = maxLen
			for cut > 0 && !utf8.RuneStart(s[cut]) {
				cut--
			}
		}
		parts = append(parts, s[:cut])
		s = s[cut:]
	}
	if s != "" {
		parts = append(parts, s)
	}
	return parts
}

// toTelegramHTML converts basic markdown to Telegram HTML.
func toTelegramHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")

	s = replacePairs(s, "```", "<pre>", "</pre>", stripLanguageTag)
	s = replacePairs(s, "`", "<code>", "</code>", nil)
	s = replacePairs(s, "**", "<b>", "</b>", nil)
	s = replacePairs(s, "*", "<i>", "</i>", nil)
	return s
}

// replacePairs wraps the text between each pair of delim in open/close tags.
func replacePairs(s, delim, openTag, closeTag string, inner func(string) string) string {
	for {
		start := strings.Index(s, delim)
		if start == -1 {
			return s
		}
		end := strings.Index(s[start+len(delim):], delim)
		if end == -1 {
			return s
		}
		end += start + len(delim)
		body := s[start+len(delim) : end]
		if inner != nil {
			body = inner(body)
		}
		s = s[:start] + openTag + body + closeTag + s[end+len(delim):]
	}
}

func stripLanguageTag(code string) string {
	nl := strings.Index(code, "\n")
	if nl < 0 {
		return code
	}
	first := strings.TrimSpace(code[:nl])
	if first != "" && !strings.Contains(first, " ") {
		return code[nl+1:]
	}
	return code
}
