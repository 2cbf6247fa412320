package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:      "info",
			NotifyUploads: true,
		},
		Backend: BackendConfig{
			BaseURL:        "http://localhost:5000",
			TimeoutSeconds: 120,
			Endpoints: EndpointsConfig{
				Send:       "/api/invoke_agent",
				UploadFile: "/api/upload-file",
				UploadText: "/api/upload-text",
				Scrape:     "/api/scrape-website",
				Plan:       "/api/travelsgent",
				Health:     "/api/list_documents",
			},
		},
		Agent: AgentConfig{
			VectorDB:      "chroma",
			RetrieverType: "vectorstore",
			ParserType:    "recursive",
		},
		Channels: ChannelsConfig{
			CLI: CLIConfig{
				Color: true,
			},
			Telegram: TelegramConfig{
				Enabled:   false,
				ParseMode: "Markdown",
			},
		},
		Browser: BrowserConfig{
			Enabled:        false,
			Headless:       true,
			ProfileDir:     "~/.ragdesk/chrome-profile",
			TimeoutSeconds: 60,
		},
		Journal: JournalConfig{
			Enabled: true,
			DBPath:  "~/.ragdesk/journal.db",
		},
		Metrics: MetricsConfig{
			Enabled:  false,
			Addr:     "127.0.0.1:9464",
			Endpoint: "/metrics",
		},
	}
}
