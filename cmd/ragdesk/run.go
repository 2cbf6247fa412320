package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ragdesk/internal/browser"
	"ragdesk/internal/bus"
	"ragdesk/internal/channel"
	"ragdesk/internal/config"
	"ragdesk/internal/domain"
	"ragdesk/internal/journal"
	"ragdesk/internal/metrics"
	"ragdesk/internal/session"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

// runtime holds the pieces shared by the chat and gateway commands.
type runtime struct {
	cfg     *config.Config
	intents *bus.InMemoryBus
	events  *bus.EventBus
	store   *journal.Store
	metrics *http.Server
}

func newRuntime(cfg *config.Config) (*runtime, error) {
	rt := &runtime{
		cfg:     cfg,
		intents: bus.New(100, logger),
		events:  bus.NewEventBus(logger),
	}
	if cfg.Journal.Enabled {
		store, err := journal.Open(cfg.Journal.DBPath, logger)
		if err != nil {
			return nil, fmt.Errorf("journal: %w", err)
		}
		rt.store = store
	}
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Endpoint, metrics.Collector.Handler())
		rt.metrics = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			logger.Info("metrics listening", "addr", cfg.Metrics.Addr, "endpoint", cfg.Metrics.Endpoint)
			if err := rt.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server error", "err", err)
			}
		}()
	}
	return rt, nil
}

func (rt *runtime) newSession(notifier domain.Notifier) *session.Session {
	sc := session.Config{
		Backend: newBackendClient(rt.cfg),
		Events:  rt.events,
		Metrics: metrics.NewDispatch(metrics.Collector),
		Agent:   rt.cfg.Agent.Domain(),
		Logger:  logger,
	}
	if rt.cfg.General.NotifyUploads {
		sc.Notifier = notifier
	}
	if rt.store != nil {
		sc.Journal = rt.store
	}
	return session.New(sc)
}

// shutdown waits for in-flight actions to settle, then releases resources.
func (rt *runtime) shutdown(s *session.Session) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var shutdownErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Wait()
	}()
	select {
	case <-done:
	case <-ctx.Done():
		logger.Warn("shutdown timed out with actions in flight", "inflight", s.InFlight())
		shutdownErr = fmt.Errorf("shutdown timed out")
	}

	rt.intents.Close()
	if rt.metrics != nil {
		rt.metrics.Shutdown(ctx)
	}
	if rt.store != nil {
		rt.store.Close()
	}
	return shutdownErr
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadOrDefaults()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(cfg)
	if err != nil {
		return err
	}

	renderer := channel.NewRenderer(os.Stdout, cfg.Channels.CLI.Color)
	s := rt.newSession(channel.NewTerminalNotifier(renderer))
	go s.Run(ctx, rt.intents)

	cliCfg := channel.CLIConfig{
		Session:   s,
		Events:    rt.events,
		Renderer:  renderer,
		Clipboard: clipboard.WriteAll,
		Logger:    logger,
	}
	if clipboard.Unsupported {
		cliCfg.Clipboard = nil
	}
	if cfg.Browser.Enabled {
		cliCfg.Pages = browser.NewRenderer(browser.RendererConfig{
			ProfileDir: cfg.Browser.ProfileDir,
			Headless:   cfg.Browser.Headless,
			Timeout:    time.Duration(cfg.Browser.TimeoutSeconds) * time.Second,
			Logger:     logger,
		})
	}

	cli := channel.NewCLI(cliCfg)
	errCh := make(chan error, 1)
	go func() { errCh <- cli.Start(ctx, rt.intents) }()

	// The REPL blocks on stdin; a signal ends the chat without waiting for it.
	select {
	case err = <-errCh:
	case <-ctx.Done():
		fmt.Fprintln(os.Stdout)
	}
	cli.Stop()
	if s.InFlight() > 0 {
		renderer.Notice("Waiting for %d action(s) to finish...", s.InFlight())
	}
	if shutdownErr := rt.shutdown(s); err == nil {
		err = shutdownErr
	}
	return err
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger = newLogger(cfg.General.LogLevel)
	if !cfg.Channels.Telegram.Enabled {
		return fmt.Errorf("telegram channel is disabled in %s", cfgPath)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(cfg)
	if err != nil {
		return err
	}

	client := newBackendClient(cfg)
	if err := client.Healthy(ctx); err != nil {
		logger.Warn("backend unreachable at startup", "url", client.BaseURL(), "err", err)
	} else {
		logger.Info("backend healthy", "url", client.BaseURL())
	}

	// Upload notifications go to the chat the upload came from.
	var tg *channel.Telegram
	s := rt.newSession(channel.NewChatNotifier(
		func(chatID int64, text string) { tg.Send(chatID, text) },
		func() int64 { return tg.LastChat() },
	))
	tg = channel.NewTelegram(channel.TelegramConfig{
		Token:     cfg.Channels.Telegram.Token,
		AllowFrom: cfg.Channels.Telegram.AllowFrom,
		ParseMode: cfg.Channels.Telegram.ParseMode,
		Session:   s,
		Events:    rt.events,
		Logger:    logger,
	})
	go s.Run(ctx, rt.intents)

	errCh := make(chan error, 1)
	go func() { errCh <- tg.Start(ctx, rt.intents) }()
	logger.Info("gateway started. Press Ctrl+C to stop.")

	select {
	case <-ctx.Done():
		err = nil
	case err = <-errCh:
		if err != nil {
			logger.Error("telegram channel error", "err", err)
		}
	}
	logger.Info("shutting down gateway...")
	tg.Stop()
	if shutdownErr := rt.shutdown(s); err == nil {
		err = shutdownErr
	}
	if err == nil {
		logger.Info("shutdown complete")
	}
	return err
}
