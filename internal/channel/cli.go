package channel

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"ragdesk/internal/browser"
	"ragdesk/internal/bus"
	"ragdesk/internal/config"
	"ragdesk/internal/domain"
	"ragdesk/internal/session"
	"ragdesk/internal/timeline"
)

const cliHelp = `Type a question and press Enter. Commands:
  /upload <path>          upload a file (videos: .mp4 .mov .avi)
  /text <content>         ingest text; /text alone starts a multi-line draft ended by "."
  /scrape <url>           scrape and ingest a web page
  /render <url>           render a page in Chrome and ingest its text
  /config [field value]   show or change vectordb, retriever_type, parser_type
  /copy                   copy the last answer to the clipboard
  /history                print the whole timeline
  /quit                   exit`

// PageRenderer renders a URL into plain text.
type PageRenderer interface {
	Render(ctx context.Context, url string) (*browser.Page, error)
}

// CLI implements domain.Channel for the interactive terminal.
type CLI struct {
	session   *session.Session
	events    *bus.EventBus
	renderer  *Renderer
	pages     PageRenderer
	clipboard func(string) error
	in        io.Reader
	logger    *slog.Logger

	intents   domain.IntentBus
	handlerID string
	drafting  bool
}

type CLIConfig struct {
	Session   *session.Session
	Events    *bus.EventBus
	Renderer  *Renderer
	Pages     PageRenderer       // optional: enables /render
	Clipboard func(string) error // optional: enables /copy
	In        io.Reader
	Logger    *slog.Logger
}

func NewCLI(cfg CLIConfig) *CLI {
	if cfg.In == nil {
		cfg.In = os.Stdin
	}
	if cfg.Renderer == nil {
		cfg.Renderer = NewRenderer(os.Stdout, true)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &CLI{
		session:   cfg.Session,
		events:    cfg.Events,
		renderer:  cfg.Renderer,
		pages:     cfg.Pages,
		clipboard: cfg.Clipboard,
		in:        cfg.In,
		logger:    cfg.Logger,
	}
}

func (c *CLI) Name() string { return "cli" }

// Start prints timeline entries as they are appended and runs the REPL until
// EOF, /quit or cancellation.
func (c *CLI) Start(ctx context.Context, intents domain.IntentBus) error {
	c.intents = intents
	if c.events != nil {
		c.handlerID = c.events.On(bus.EventTimelineAppended, func(e bus.Event) {
			if m, ok := timeline.MessageFromEvent(e); ok {
				c.renderer.Message(m)
			}
		})
	}

	c.renderer.Notice("ragdesk. %s", c.session.AgentConfig().String())
	c.renderer.Notice("Type /help for commands.")

	scanner := bufio.NewScanner(c.in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if !scanner.Scan() {
			return scanner.Err()
		}
		if quit := c.handleLine(ctx, scanner.Text()); quit {
			c.logger.Info("user requested quit")
			return nil
		}
	}
}

// Stop detaches the CLI from the event bus.
func (c *CLI) Stop() error {
	if c.events != nil && c.handlerID != "" {
		c.events.Off(bus.EventTimelineAppended, c.handlerID)
		c.handlerID = ""
	}
	return nil
}

// handleLine processes one input line and reports whether the user quit.
func (c *CLI) handleLine(ctx context.Context, raw string) bool {
	drafts := c.session.Drafts()
	if c.drafting {
		if strings.TrimSpace(raw) == "." {
			c.drafting = false
			text := drafts.Get(domain.ActionUploadText)
			drafts.Clear(domain.ActionUploadText)
			c.publish(domain.ActionUploadText, text, domain.FileRef{})
			return false
		}
		drafts.Append(domain.ActionUploadText, raw)
		return false
	}

	line := strings.TrimSpace(raw)
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		c.publish(domain.ActionSend, line, domain.FileRef{})
		return false
	}

	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "/quit", "/exit", "/q":
		return true
	case "/help":
		c.renderer.Notice("%s", cliHelp)
	case "/upload":
		c.upload(arg)
	case "/text":
		if arg == "" {
			c.drafting = true
			c.renderer.Notice("Enter text, finish with a line containing only \".\"")
			return false
		}
		c.publish(domain.ActionUploadText, arg, domain.FileRef{})
	case "/scrape":
		c.publish(domain.ActionScrape, arg, domain.FileRef{})
	case "/render":
		c.render(ctx, arg)
	case "/config":
		c.config(arg)
	case "/copy":
		c.copyLast()
	case "/history":
		for _, m := range c.session.Timeline().Snapshot() {
			c.renderer.Message(m)
		}
	default:
		c.renderer.Warn("Unknown command %s. Type /help for available commands.", cmd)
	}
	return false
}

func (c *CLI) publish(action domain.Action, text string, file domain.FileRef) {
	c.intents.Publish(domain.Intent{
		Channel: "cli",
		ChatID:  "direct",
		Action:  action,
		Text:    text,
		File:    file,
	})
}

func (c *CLI) upload(path string) {
	if path == "" {
		return
	}
	path = config.ExpandPath(path)
	info, err := os.Stat(path)
	if err != nil {
		c.renderer.Warn("Cannot read %s: %v", path, err)
		return
	}
	if info.IsDir() {
		c.renderer.Warn("%s is a directory", path)
		return
	}
	c.publish(domain.ActionUploadFile, "", domain.FileRef{Name: filepath.Base(path), Path: path})
}

func (c *CLI) render(ctx context.Context, url string) {
	if url == "" {
		return
	}
	if c.pages == nil {
		c.renderer.Warn("Page rendering is disabled (set browser.enabled in the config).")
		return
	}
	c.renderer.Notice("Rendering %s...", url)
	page, err := c.pages.Render(ctx, url)
	if err != nil {
		c.logger.Warn("render failed", "url", url, "error", err)
		c.renderer.Warn("Could not render %s: %v", url, err)
		return
	}
	c.publish(domain.ActionUploadText, page.Text, domain.FileRef{})
}

func (c *CLI) config(arg string) {
	if arg == "" {
		fields := c.session.AgentConfig().Fields()
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			c.renderer.Notice("%s = %s", k, fields[k])
		}
		return
	}
	field, value, ok := strings.Cut(arg, " ")
	if !ok {
		c.renderer.Warn("Usage: /config <field> <value>")
		return
	}
	cfg, err := c.session.SetConfigField(field, value)
	if err != nil {
		c.renderer.Warn("%v", err)
		return
	}
	c.renderer.Notice("Config updated: %s", cfg.String())
}

func (c *CLI) copyLast() {
	if c.clipboard == nil {
		c.renderer.Warn("Clipboard is not available.")
		return
	}
	m, ok := c.session.Timeline().LastAssistant()
	if !ok {
		c.renderer.Warn("Nothing to copy yet.")
		return
	}
	if err := c.clipboard(m.Content); err != nil {
		c.renderer.Warn("Copy failed: %v", err)
		return
	}
	c.renderer.Notice("Copied last answer (%d chars).", len(m.Content))
}
