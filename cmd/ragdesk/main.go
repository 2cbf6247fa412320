package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"ragdesk/internal/backend"
	"ragdesk/internal/channel"
	"ragdesk/internal/config"
	"ragdesk/internal/journal"
	"ragdesk/internal/travel"

	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = newLogger("info")

	root := &cobra.Command{
		Use:   "ragdesk",
		Short: "ragdesk: terminal and Telegram front end for a RAG assistant",
		Long: "ragdesk sends questions, files, text and URLs to a retrieval-augmented assistant " +
			"backend and shows the answers as a running conversation.",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json or config.yaml (default: ~/.ragdesk/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(chatCmd())
	root.AddCommand(gatewayCmd())
	root.AddCommand(planCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(journalCmd())
	root.AddCommand(configCmd())
	root.AddCommand(doctorCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

// loadOrDefaults loads the config file, falling back to defaults only when
// it does not exist, and applies the configured log level. A file that
// exists but cannot be parsed or validated is an error.
func loadOrDefaults() (*config.Config, error) {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		logger.Warn("config not found, using defaults", "path", cfgPath)
		cfg = config.Defaults()
	case err != nil:
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger = newLogger(cfg.General.LogLevel)
	return cfg, nil
}

func newBackendClient(cfg *config.Config) *backend.Client {
	ep := cfg.Backend.Endpoints
	return backend.NewClient(backend.ClientConfig{
		BaseURL: cfg.Backend.BaseURL,
		Endpoints: backend.Endpoints{
			Send:       ep.Send,
			UploadFile: ep.UploadFile,
			UploadText: ep.UploadText,
			Scrape:     ep.Scrape,
			Plan:       ep.Plan,
			Health:     ep.Health,
		},
		Timeout: cfg.Backend.Timeout(),
		Logger:  logger,
	})
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			if _, err := os.Stat(cfgPath); err == nil {
				return fmt.Errorf("config already exists at %s", cfgPath)
			}
			cfg := config.Defaults()
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath, "backend", cfg.Backend.BaseURL)
			return nil
		},
	}
}

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start interactive chat (CLI)",
		RunE:  runChat,
	}
}

func gatewayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "Start the Telegram gateway",
		Long:  "Serves the assistant over Telegram. Press Ctrl+C to stop.",
		RunE:  runGateway,
	}
}

func planCmd() *cobra.Command {
	form := travel.NewForm()
	cmd := &cobra.Command{
		Use:   "plan [destination]",
		Short: "Ask the trip planner for an itinerary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadOrDefaults()
			if err != nil {
				return err
			}
			from := form.From
			form.SetDestination(args[0])
			if from != "" {
				form.From = strings.ToUpper(from)
			}
			if err := form.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			r := channel.NewRenderer(os.Stdout, cfg.Channels.CLI.Color)
			r.Notice("Planning a trip to %s (%s -> %s)...", form.Destination, form.From, form.To)
			plan, err := travel.Request(ctx, newBackendClient(cfg), form, logger)
			if err != nil {
				return err
			}
			r.Plan(plan)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&form.Currency, "currency", form.Currency, "currency for prices ("+strings.Join(travel.Currencies, ", ")+")")
	f.IntVar(&form.Adults, "adults", form.Adults, "number of adults")
	f.IntVar(&form.Nights, "nights", form.Nights, "number of nights")
	f.StringVar(&form.From, "from", "", "departure airport code (default: the destination's airport)")
	f.StringVar(&form.StartDate, "start", "", "start date (YYYY-MM-DD)")
	f.StringVar(&form.ReturnDate, "return", "", "return date (YYYY-MM-DD)")
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show backend reachability and session defaults",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				logger.Info("config", "path", cfgPath, "loaded", false)
				cfg = config.Defaults()
			} else {
				logger.Info("config", "path", cfgPath, "loaded", true)
			}
			logger.Info("agent", "config", cfg.Agent.Domain().String())

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			client := newBackendClient(cfg)
			if err := client.Healthy(ctx); err != nil {
				logger.Info("backend", "url", client.BaseURL(), "healthy", false, "err", err)
			} else {
				logger.Info("backend", "url", client.BaseURL(), "healthy", true)
			}
			return nil
		},
	}
}

func journalCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Show recently settled actions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadOrDefaults()
			if err != nil {
				return err
			}
			store, err := journal.Open(cfg.Journal.DBPath, logger)
			if err != nil {
				return fmt.Errorf("journal: %w", err)
			}
			defer store.Close()

			ctx := context.Background()
			entries, err := store.Recent(ctx, limit)
			if err != nil {
				return err
			}
			for _, e := range entries {
				line := fmt.Sprintf("%s  %-11s %-7s %6dms  %s",
					e.CreatedAt.Local().Format("2006-01-02 15:04:05"), e.Action, e.Outcome, e.Latency.Milliseconds(), e.Config)
				if e.Error != "" {
					line += "  error=" + e.Error
				}
				fmt.Println(line)
			}

			counts, err := store.Counts(ctx)
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(counts, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries to show")
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
		Long:  "Get, set, and list configuration values. Changes are saved to the config file.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. agent.vectordb)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			val, err := config.GetByPath(cfg, args[0])
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(val, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set [path] [value]",
		Short: "Set a config value (e.g. agent.vectordb milvus)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := config.SetByPath(cfg, args[0], args[1]); err != nil {
				return fmt.Errorf("set value: %w", err)
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}
			if err := config.Save(cfgPath, cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			logger.Info("config updated", "path", args[0], "value", args[1], "file", cfgPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all config values",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			sanitized := config.Sanitize(cfg)
			flat := config.ListPaths(sanitized)
			for _, p := range config.SortedPaths(sanitized) {
				fmt.Printf("%s = %v\n", p, flat[p])
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(resolveConfigPath())
		},
	})

	return cmd
}
