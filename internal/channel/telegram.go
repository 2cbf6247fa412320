package channel

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"ragdesk/internal/bus"
	"ragdesk/internal/domain"
	"ragdesk/internal/session"
	"ragdesk/internal/timeline"
)

const (
	telegramMaxMsgLen      = 4000
	telegramMaxSendRetries = 3
	telegramMaxFileBytes   = 20 << 20 // Bot API download limit
	telegramOutboxSize     = 100
)

const telegramHelp = `Send a question as a plain message.

Upload a document or video to ingest it.
/text <content> ingest text
/scrape <url> scrape and ingest a page
/config show the agent configuration
/config <field> <value> change it`

// Telegram implements domain.Channel for a Telegram bot serving the single
// session. Answers go to the chat that spoke last.
type Telegram struct {
	token     string
	allowFrom []int64
	parseMode string

	bot      *tgbotapi.BotAPI
	intents  domain.IntentBus
	session  *session.Session
	events   *bus.EventBus
	http     *http.Client
	limiter  *RateLimiter
	outbox   chan outbound
	logger   *slog.Logger
	lastChat atomic.Int64

	handlerID string
}

type outbound struct {
	chatID int64
	text   string
}

type TelegramConfig struct {
	Token     string
	AllowFrom []string // user IDs as strings
	ParseMode string
	Session   *session.Session
	Events    *bus.EventBus
	SendRate  float64 // outgoing messages per minute, default 60
	Logger    *slog.Logger
}

func NewTelegram(cfg TelegramConfig) *Telegram {
	var allowed []int64
	for _, s := range cfg.AllowFrom {
		if id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			allowed = append(allowed, id)
		}
	}
	if cfg.ParseMode == "" {
		cfg.ParseMode = "Markdown"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Telegram{
		token:     cfg.Token,
		allowFrom: allowed,
		parseMode: cfg.ParseMode,
		session:   cfg.Session,
		events:    cfg.Events,
		http:      &http.Client{Timeout: 60 * time.Second},
		limiter:   NewRateLimiter(20, cfg.SendRate),
		outbox:    make(chan outbound, telegramOutboxSize),
		logger:    cfg.Logger,
	}
}

func (t *Telegram) Name() string { return "telegram" }

// LastChat returns the chat that sent the most recent update, or 0.
func (t *Telegram) LastChat() int64 { return t.lastChat.Load() }

// Start connects to Telegram and polls for updates until ctx is cancelled.
func (t *Telegram) Start(ctx context.Context, intents domain.IntentBus) error {
	t.intents = intents

	bot, err := tgbotapi.NewBotAPI(t.token)
	if err != nil {
		return fmt.Errorf("telegram bot init: %w", err)
	}
	t.bot = bot
	t.logger.Info("telegram bot connected",
		"username", bot.Self.UserName,
		"id", bot.Self.ID,
	)
	go t.drain(ctx)

	if t.events != nil {
		t.handlerID = t.events.On(bus.EventTimelineAppended, func(e bus.Event) {
			m, ok := timeline.MessageFromEvent(e)
			if !ok || m.IsUser() {
				return
			}
			if chatID := t.lastChat.Load(); chatID != 0 {
				t.Send(chatID, FormatPlain(m))
			}
		})
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := bot.GetUpdatesChan(u)
	t.logger.Info("telegram polling started")

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("telegram channel stopping")
			bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			t.handleUpdate(ctx, update)
		}
	}
}

// Stop detaches from the event bus. Polling stops with Start's context;
// StopReceivingUpdates must not be called twice.
func (t *Telegram) Stop() error {
	if t.events != nil && t.handlerID != "" {
		t.events.Off(bus.EventTimelineAppended, t.handlerID)
		t.handlerID = ""
	}
	return nil
}

func (t *Telegram) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return
	}
	chatID := msg.Chat.ID

	if !t.isAllowed(msg.From.ID) {
		t.logger.Warn("unauthorized telegram user",
			"user_id", msg.From.ID,
			"username", msg.From.UserName,
		)
		t.Send(chatID, "⛔ Unauthorized. Your user ID is not in the allow list.")
		return
	}
	t.lastChat.Store(chatID)

	if ref, ok := attachment(msg); ok {
		t.handleAttachment(ctx, chatID, ref)
		return
	}

	if msg.IsCommand() {
		t.handleCommand(chatID, msg.Command(), strings.TrimSpace(msg.CommandArguments()))
		return
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}
	t.logger.Info("telegram message received", "chat_id", chatID, "text_len", len(text))
	_, _ = t.bot.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping))
	t.publish(chatID, domain.ActionSend, text, domain.FileRef{})
}

// remoteFile is a document or video announced in an update.
type remoteFile struct {
	fileID string
	name   string
	size   int
}

func attachment(msg *tgbotapi.Message) (remoteFile, bool) {
	switch {
	case msg.Document != nil:
		return remoteFile{msg.Document.FileID, msg.Document.FileName, msg.Document.FileSize}, true
	case msg.Video != nil:
		name := msg.Video.FileName
		if name == "" {
			name = "video_" + msg.Video.FileUniqueID + ".mp4"
		}
		return remoteFile{msg.Video.FileID, name, msg.Video.FileSize}, true
	default:
		return remoteFile{}, false
	}
}

func (t *Telegram) handleAttachment(ctx context.Context, chatID int64, f remoteFile) {
	if f.size > telegramMaxFileBytes {
		t.Send(chatID, "File is too large to download (limit 20 MB).")
		return
	}
	_, _ = t.bot.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatUploadDocument))

	data, err := t.download(ctx, f.fileID)
	if err != nil {
		t.logger.Warn("telegram file download failed", "file", f.name, "error", err)
		t.Send(chatID, session.ErrUploadFileText)
		return
	}
	t.publish(chatID, domain.ActionUploadFile, "", domain.FileRef{Name: f.name, Data: data})
}

func (t *Telegram) download(ctx context.Context, fileID string) ([]byte, error) {
	url, err := t.bot.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("resolve file: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := t.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download file: HTTP %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, telegramMaxFileBytes+1))
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	if len(data) > telegramMaxFileBytes {
		return nil, fmt.Errorf("download file: larger than %d bytes", telegramMaxFileBytes)
	}
	return data, nil
}

func (t *Telegram) handleCommand(chatID int64, cmd, args string) {
	switch cmd {
	case "start", "help":
		t.Send(chatID, telegramHelp)
	case "text":
		t.publish(chatID, domain.ActionUploadText, args, domain.FileRef{})
	case "scrape":
		t.publish(chatID, domain.ActionScrape, args, domain.FileRef{})
	case "config":
		t.Send(chatID, t.configReply(args))
	default:
		t.Send(chatID, "Unknown command. Type /help for available commands.")
	}
}

func (t *Telegram) configReply(args string) string {
	if args == "" {
		return t.session.AgentConfig().String()
	}
	field, value, ok := strings.Cut(args, " ")
	if !ok {
		return "Usage: /config <field> <value>"
	}
	cfg, err := t.session.SetConfigField(field, strings.TrimSpace(value))
	if err != nil {
		return err.Error()
	}
	return "Config updated: " + cfg.String()
}

func (t *Telegram) publish(chatID int64, action domain.Action, text string, file domain.FileRef) {
	t.intents.Publish(domain.Intent{
		Channel: "telegram",
		ChatID:  strconv.FormatInt(chatID, 10),
		Action:  action,
		Text:    text,
		File:    file,
	})
}

func (t *Telegram) isAllowed(userID int64) bool {
	if len(t.allowFrom) == 0 {
		return true
	}
	for _, id := range t.allowFrom {
		if id == userID {
			return true
		}
	}
	return false
}

// Send queues text for a chat and returns immediately. Messages are
// delivered in order by the drain loop once Start has connected; when the
// outbox is full the message is dropped.
func (t *Telegram) Send(chatID int64, text string) {
	select {
	case t.outbox <- outbound{chatID: chatID, text: text}:
	default:
		t.logger.Warn("telegram outbox full, dropping message", "chat_id", chatID, "text_len", len(text))
	}
}

func (t *Telegram) drain(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-t.outbox:
			t.deliver(ctx, m.chatID, m.text)
		}
	}
}

// deliver sends text split into chunks under the message limit.
func (t *Telegram) deliver(ctx context.Context, chatID int64, text string) {
	for _, chunk := range splitMessage(text, telegramMaxMsgLen) {
		if err := t.limiter.Wait(ctx); err != nil {
			return
		}
		t.sendChunk(ctx, chatID, chunk)
	}
}

// splitMessage cuts text into chunks of at most maxLen bytes, preferring
// line breaks in the second half of a chunk.
func splitMessage(text string, maxLen int) []string {
	var chunks []string
	for len(text) > 0 {
		if len(text) <= maxLen {
			chunks = append(chunks, text)
			break
		}
		cutAt := strings.LastIndex(text[:maxLen], "\n")
		if cutAt < maxLen/2 {
			cutAt = maxLen
		}
		chunks = append(chunks, text[:cutAt])
		text = text[cutAt:]
	}
	return chunks
}

// sendChunk sends one chunk: markdown first, plain text on a parse error,
// backoff on rate limits.
func (t *Telegram) sendChunk(ctx context.Context, chatID int64, text string) {
	for attempt := 0; attempt <= telegramMaxSendRetries; attempt++ {
		msg := tgbotapi.NewMessage(chatID, text)
		if attempt == 0 && t.parseMode != "" {
			msg.ParseMode = t.parseMode
		}

		_, err := t.bot.Send(msg)
		if err == nil {
			return
		}
		errStr := err.Error()

		if strings.Contains(errStr, "Too Many Requests") || strings.Contains(errStr, "429") {
			retryAfter := time.Duration(attempt+1) * 3 * time.Second
			t.logger.Warn("telegram rate limited, backing off", "retry_after", retryAfter, "attempt", attempt+1)
			if !sleepCtx(ctx, retryAfter) {
				return
			}
			continue
		}
		if attempt == 0 && msg.ParseMode != "" && strings.Contains(errStr, "can't parse entities") {
			t.logger.Warn("telegram markdown parse error, retrying as plain text", "err", err)
			continue
		}
		if attempt < telegramMaxSendRetries {
			backoff := time.Duration(attempt+1) * time.Second
			t.logger.Warn("telegram send error, retrying", "err", err, "backoff", backoff)
			if !sleepCtx(ctx, backoff) {
				return
			}
			continue
		}
		t.logger.Error("telegram send failed after retries", "err", err, "attempts", telegramMaxSendRetries+1)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
