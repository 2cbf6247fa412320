// Package browser renders JavaScript-heavy pages in headless Chrome and
// extracts their paragraph text for ingestion.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
)

const userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// Page is the text extracted from a rendered page.
type Page struct {
	URL   string
	Title string
	Text  string
}

// Renderer drives a Chrome instance per render.
type Renderer struct {
	profileDir string
	headless   bool
	timeout    time.Duration
	logger     *slog.Logger
}

// RendererConfig holds configuration for the page renderer.
type RendererConfig struct {
	ProfileDir string // Chrome user data directory (cookies survive between renders)
	Headless   bool
	Timeout    time.Duration
	Logger     *slog.Logger
}

func NewRenderer(cfg RendererConfig) *Renderer {
	if cfg.ProfileDir == "" {
		home, _ := os.UserHomeDir()
		cfg.ProfileDir = filepath.Join(home, ".ragdesk", "chrome-profile")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Renderer{
		profileDir: cfg.ProfileDir,
		headless:   cfg.Headless,
		timeout:    cfg.Timeout,
		logger:     cfg.Logger,
	}
}

// newContext creates a chromedp context with the renderer's profile.
// The caller must call cancel.
func (r *Renderer) newContext(parent context.Context) (context.Context, context.CancelFunc) {
	if err := os.MkdirAll(r.profileDir, 0o755); err != nil {
		r.logger.Error("failed to create profile dir", "dir", r.profileDir, "err", err)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserDataDir(r.profileDir),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(userAgent),
	)
	if r.headless {
		opts = append(opts, chromedp.Headless)
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(parent, opts...)
	taskCtx, taskCancel := chromedp.NewContext(allocCtx)
	return taskCtx, func() {
		taskCancel()
		allocCancel()
	}
}

const paragraphsJS = `Array.from(document.querySelectorAll('p')).map(function (p) {
	return (p.innerText || p.textContent || '');
})`

// Render loads rawURL, waits for the body and returns its paragraph text.
func (r *Renderer) Render(ctx context.Context, rawURL string) (*Page, error) {
	u, err := ValidateURL(rawURL)
	if err != nil {
		return nil, err
	}

	taskCtx, cancel := r.newContext(ctx)
	defer cancel()
	taskCtx, timeoutCancel := context.WithTimeout(taskCtx, r.timeout)
	defer timeoutCancel()

	start := time.Now()
	var title string
	var paragraphs []string
	err = chromedp.Run(taskCtx,
		chromedp.Navigate(u),
		chromedp.WaitReady("body"),
		chromedp.Title(&title),
		chromedp.Evaluate(paragraphsJS, &paragraphs),
	)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", u, err)
	}

	text := JoinParagraphs(paragraphs)
	r.logger.Info("page rendered", "url", u, "paragraphs", len(paragraphs), "chars", len(text), "latency", time.Since(start))
	if text == "" {
		return nil, fmt.Errorf("render %s: no paragraph text found", u)
	}
	return &Page{URL: u, Title: strings.TrimSpace(title), Text: text}, nil
}

// JoinParagraphs trims each paragraph, drops empty ones and separates the
// rest with blank lines.
func JoinParagraphs(paragraphs []string) string {
	kept := make([]string, 0, len(paragraphs))
	for _, p := range paragraphs {
		p = strings.Join(strings.Fields(p), " ")
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n\n")
}

// ValidateURL accepts absolute http(s) URLs and returns them normalized.
func ValidateURL(rawURL string) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", errors.New("url is empty")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", rawURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("invalid url %q: scheme must be http or https", rawURL)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid url %q: missing host", rawURL)
	}
	return u.String(), nil
}
